// Package models resolves, verifies, and downloads whisper.cpp ggml models.
package models

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/lectern/internal/version"
)

// ggml files open with the little-endian magic 0x67676d6c.
var ggmlMagic = []byte("lmgg")

// Status describes one model file on disk.
type Status struct {
	Name    string
	Path    string
	Size    int64
	Present bool
	Valid   bool
	Problem string
}

// Check inspects path without modifying it.
func Check(path string) Status {
	st := Status{Name: filepath.Base(path), Path: path}
	info, err := os.Stat(path)
	if err != nil {
		st.Problem = "missing"
		return st
	}
	if info.IsDir() {
		st.Problem = "is a directory"
		return st
	}
	st.Size = info.Size()
	st.Present = st.Size > 0
	if !st.Present {
		st.Problem = "empty file"
		return st
	}
	if err := verifyMagic(path); err != nil {
		st.Problem = err.Error()
		return st
	}
	st.Valid = true
	return st
}

func verifyMagic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, len(ggmlMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(head, ggmlMagic) {
		return fmt.Errorf("not a ggml model (header %q)", head)
	}
	return nil
}

// Downloader fetches ggml-<name>.bin files from a whisper.cpp model mirror.
type Downloader struct {
	BaseURL  string
	Client   *http.Client
	Progress io.Writer
	Logger   *slog.Logger
}

// Ensure downloads path when it is missing or empty and reports whether a
// download happened.
func (d *Downloader) Ensure(ctx context.Context, path string) (bool, error) {
	if st := Check(path); st.Present {
		return false, nil
	}
	return true, d.Download(ctx, path)
}

// Download fetches BaseURL/<base name of path> into path, writing to a .tmp
// sibling first and renaming on success.
func (d *Downloader) Download(ctx context.Context, path string) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	base := strings.TrimRight(strings.TrimSpace(d.BaseURL), "/")
	if base == "" {
		return fmt.Errorf("models.base_url is empty")
	}

	name := filepath.Base(path)
	url := base + "/" + name
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating models dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	logger.Info("model download start", "model", name, "url", url)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s failed: HTTP %d", name, resp.StatusCode)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	var w io.Writer = f
	if d.Progress != nil {
		w = &progressWriter{writer: f, out: d.Progress, total: resp.ContentLength, label: name}
	}
	written, err := io.Copy(w, resp.Body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing model file: %w", err)
	}
	if d.Progress != nil {
		fmt.Fprintf(d.Progress, "\n")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("moving model file: %w", err)
	}
	logger.Info("model download complete", "model", name, "bytes", written)
	return nil
}

// progressWriter reports download progress on one rewritten line.
type progressWriter struct {
	writer  io.Writer
	out     io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label,
			float64(pw.written)/(1024*1024),
			float64(pw.total)/(1024*1024),
			float64(pw.written)/float64(pw.total)*100)
	} else {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB downloaded", pw.label, float64(pw.written)/(1024*1024))
	}
	return n, err
}
