package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbright/lectern/internal/config"
	"github.com/rbright/lectern/internal/models"
)

// localModelPaths returns the ggml files the exec passes read.
func localModelPaths(cfg config.Config, passes ...config.PassConfig) []string {
	var paths []string
	seen := map[string]bool{}
	for _, pass := range passes {
		backend := strings.ToLower(strings.TrimSpace(pass.Backend))
		if backend != "" && backend != "exec" {
			continue
		}
		path := cfg.ModelPath(pass.Model)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
	}
	return paths
}

// ensureModels downloads missing models when models.auto_download is set,
// and otherwise fails fast with a hint.
func (r Runner) ensureModels(ctx context.Context, cfg config.Config, logger *slog.Logger, passes ...config.PassConfig) error {
	downloader := &models.Downloader{BaseURL: cfg.Models.BaseURL, Progress: r.Stderr, Logger: logger}
	for _, path := range localModelPaths(cfg, passes...) {
		st := models.Check(path)
		if st.Present {
			continue
		}
		if !cfg.Models.AutoDownload {
			return fmt.Errorf("model %s is %s (run `lectern models --download` or set models.auto_download)", path, st.Problem)
		}
		fmt.Fprintf(r.Stderr, "downloading %s...\n", st.Name)
		if _, err := downloader.Ensure(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func (r Runner) commandModels(ctx context.Context, cfg config.Config, download bool, logger *slog.Logger) int {
	paths := localModelPaths(cfg, cfg.Streaming, cfg.Refining)
	if len(paths) == 0 {
		fmt.Fprintln(r.Stdout, "no local models configured")
		return 0
	}

	downloader := &models.Downloader{BaseURL: cfg.Models.BaseURL, Progress: r.Stderr, Logger: logger}
	ok := true
	for _, path := range paths {
		st := models.Check(path)
		if !st.Present && download {
			if _, err := downloader.Ensure(ctx, path); err != nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", err)
			}
			st = models.Check(path)
		}
		if st.Valid {
			fmt.Fprintf(r.Stdout, "[OK] %s (%.1f MB)\n", st.Path, float64(st.Size)/(1024*1024))
			continue
		}
		ok = false
		fmt.Fprintf(r.Stdout, "[FAIL] %s: %s\n", st.Path, st.Problem)
	}
	if !ok {
		return 1
	}
	return 0
}
