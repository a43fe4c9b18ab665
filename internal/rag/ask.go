package rag

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rbright/lectern/internal/config"
)

// Runner executes the AI command with the prompt as its last argument.
type Runner struct {
	Argv    []string
	Timeout time.Duration
	EnvFile string
}

// Run returns the command's trimmed stdout.
func (r Runner) Run(ctx context.Context, prompt string) (string, error) {
	if len(r.Argv) == 0 {
		return "", errors.New("ask.command is empty")
	}

	env, err := r.environ()
	if err != nil {
		return "", err
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string(nil), r.Argv[1:]...), prompt)
	cmd := exec.CommandContext(runCtx, r.Argv[0], args...)
	cmd.Env = env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s timed out after %s", r.Argv[0], timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s failed: %w: %s", r.Argv[0], err, msg)
		}
		return "", fmt.Errorf("%s failed: %w", r.Argv[0], err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// environ layers the env file over the process environment.
func (r Runner) environ() ([]string, error) {
	env := os.Environ()
	if strings.TrimSpace(r.EnvFile) == "" {
		return env, nil
	}
	extra, err := godotenv.Read(r.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("load ask env file %s: %w", r.EnvFile, err)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env, nil
}

// Asker answers questions against a transcript library.
type Asker struct {
	Library    *Library
	Runner     Runner
	MaxContext int
	Logger     *slog.Logger
}

// NewAsker builds an Asker from ask.* configuration.
func NewAsker(lib *Library, cfg config.AskConfig, logger *slog.Logger) *Asker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Asker{
		Library: lib,
		Runner: Runner{
			Argv:    cfg.Command.Argv,
			Timeout: cfg.Timeout,
			EnvFile: cfg.EnvFile,
		},
		MaxContext: cfg.MaxContextChars,
		Logger:     logger,
	}
}

// Ask answers a question using as many transcripts as fit the context cap.
func (a *Asker) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("question is empty")
	}
	return a.query(ctx, question, a.Library.Context(a.MaxContext))
}

// Summary summarizes the session at a 1-based index, or every session
// that fits the context cap when index is 0.
func (a *Asker) Summary(ctx context.Context, index int) (string, error) {
	if index == 0 {
		return a.query(ctx, allSessionsSummary, a.Library.Context(a.MaxContext))
	}
	t, err := a.Library.Get(index)
	if err != nil {
		return "", err
	}
	return a.query(ctx, sessionSummaryQuestion(t.Date), t.Content)
}

func (a *Asker) query(ctx context.Context, question string, material string) (string, error) {
	a.Logger.Info("ask start",
		"transcripts", len(a.Library.Transcripts),
		"context_chars", len(material),
		"command", firstArg(a.Runner.Argv),
	)
	start := time.Now()
	answer, err := a.Runner.Run(ctx, Prompt(question, material))
	if err != nil {
		a.Logger.Error("ask failed", "error", err.Error())
		return "", err
	}
	a.Logger.Info("ask complete", "elapsed_ms", time.Since(start).Milliseconds(), "answer_chars", len(answer))
	return answer, nil
}

func firstArg(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	return argv[0]
}
