package asr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rbright/lectern/internal/audio"
)

// ExecConfig configures a whisper.cpp style command-line recognizer.
type ExecConfig struct {
	Name    string
	Command []string
	Model   string
	Args    []string
	Timeout time.Duration
	Logger  *slog.Logger
}

// ExecRecognizer runs one CLI process per request. Audio is handed over as a
// temporary WAV file and text is read from the -otxt sidecar, or stdout when
// the sidecar is missing.
type ExecRecognizer struct {
	cfg ExecConfig
}

// NewExec validates cfg and returns an ExecRecognizer.
func NewExec(cfg ExecConfig) (*ExecRecognizer, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("asr command is empty")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("asr model path is empty")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &ExecRecognizer{cfg: cfg}, nil
}

// Name returns the pass label.
func (r *ExecRecognizer) Name() string { return r.cfg.Name }

// Close is a no-op; processes do not outlive Recognize.
func (r *ExecRecognizer) Close() error { return nil }

// Recognize transcribes req.PCM.
func (r *ExecRecognizer) Recognize(ctx context.Context, req Request) (string, error) {
	if len(req.PCM) == 0 {
		return "", ErrEmptyTranscript
	}

	dir, err := os.MkdirTemp("", "lectern-asr-*")
	if err != nil {
		return "", fmt.Errorf("create asr temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "segment.wav")
	if err := audio.WriteWAVFile(wavPath, req.PCM, req.SampleRate); err != nil {
		return "", err
	}

	argv := r.argv(wavPath, req)
	callCtx, cancel := withTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(callCtx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	if err := cmd.Run(); err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return "", fmt.Errorf("%s recognizer timed out after %s", r.cfg.Name, r.cfg.Timeout)
		}
		detail := lastLine(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("run %s: %w: %s", argv[0], err, detail)
		}
		return "", fmt.Errorf("run %s: %w", argv[0], err)
	}

	text := ""
	if data, err := os.ReadFile(wavPath + ".txt"); err == nil {
		text = cleanText(string(data))
	} else {
		text = parseWhisperStdout(stdout.String())
	}

	r.cfg.Logger.Debug("asr exec complete",
		"pass", r.cfg.Name,
		"audio_bytes", len(req.PCM),
		"elapsed_ms", time.Since(started).Milliseconds(),
		"chars", len(text),
	)

	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func (r *ExecRecognizer) argv(wavPath string, req Request) []string {
	argv := append([]string{}, r.cfg.Command...)
	argv = append(argv, "-m", r.cfg.Model, "-f", wavPath, "-otxt")
	argv = append(argv, r.cfg.Args...)
	argv = append(argv, req.Args...)
	if req.Offset > 0 {
		argv = append(argv, "--offset-t", strconv.FormatInt(req.Offset.Milliseconds(), 10))
	}
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		argv = append(argv, "--prompt", prompt)
	}
	return argv
}

var whisperTimestamp = regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\.\d{3} --> \d{2}:\d{2}:\d{2}\.\d{3}\]\s*`)

// parseWhisperStdout strips timestamp prefixes and joins segment lines.
func parseWhisperStdout(out string) string {
	lines := strings.Split(out, "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(whisperTimestamp.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" {
			continue
		}
		parts = append(parts, line)
	}
	return cleanText(strings.Join(parts, " "))
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
