// Package asr wraps speech recognizers behind one request/response contract.
package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/lectern/internal/config"
)

// ErrEmptyTranscript reports a recognizer call that produced no usable text.
var ErrEmptyTranscript = errors.New("empty transcript")

// Request is one recognition call over a PCM segment.
type Request struct {
	PCM        []byte
	SampleRate int
	// Prompt biases decoding, e.g. the streaming draft for a refine call.
	Prompt string
	// Offset skips leading audio.
	Offset time.Duration
	// Args are extra backend arguments for this call only.
	Args []string
}

// Recognizer turns audio into text.
type Recognizer interface {
	Recognize(ctx context.Context, req Request) (string, error)
	Name() string
	Close() error
}

// Options build one recognizer from a pass profile.
type Options struct {
	Name      string
	Pass      config.PassConfig
	ModelPath string
	Logger    *slog.Logger
}

// New constructs the recognizer selected by opts.Pass.Backend.
func New(ctx context.Context, opts Options) (Recognizer, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	switch strings.ToLower(strings.TrimSpace(opts.Pass.Backend)) {
	case "", "exec":
		return NewExec(ExecConfig{
			Name:    opts.Name,
			Command: opts.Pass.Command.Argv,
			Model:   opts.ModelPath,
			Args:    opts.Pass.Args,
			Timeout: opts.Pass.Timeout,
			Logger:  opts.Logger,
		})
	case "grpc":
		return DialGRPC(ctx, GRPCConfig{
			Name:     opts.Name,
			Address:  opts.Pass.Address,
			Model:    opts.Pass.Model,
			Language: opts.Pass.Language,
			Timeout:  opts.Pass.Timeout,
		})
	case "openai":
		return NewOpenAI(OpenAIConfig{
			Name:     opts.Name,
			APIKey:   opts.Pass.APIKey,
			BaseURL:  opts.Pass.BaseURL,
			Model:    opts.Pass.Model,
			Language: opts.Pass.Language,
			Timeout:  opts.Pass.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported asr backend %q", opts.Pass.Backend)
	}
}

// cleanText normalizes recognizer whitespace.
func cleanText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return strings.Join(strings.Fields(raw), " ")
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
