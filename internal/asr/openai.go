package asr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rbright/lectern/internal/audio"
	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the hosted transcription backend.
type OpenAIConfig struct {
	Name     string
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
}

// OpenAIRecognizer uploads each segment to an OpenAI-compatible
// /audio/transcriptions endpoint.
type OpenAIRecognizer struct {
	cfg    OpenAIConfig
	client *openai.Client
}

// NewOpenAI builds a client. The API key falls back to OPENAI_API_KEY.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIRecognizer, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if key == "" {
		return nil, fmt.Errorf("%s: openai api key is empty (set api_key or OPENAI_API_KEY)", cfg.Name)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = openai.Whisper1
	}

	clientCfg := openai.DefaultConfig(key)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	return &OpenAIRecognizer{cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}, nil
}

// Name returns the pass label.
func (r *OpenAIRecognizer) Name() string { return r.cfg.Name }

// Close is a no-op.
func (r *OpenAIRecognizer) Close() error { return nil }

// Recognize uploads req.PCM as WAV. Offset is not supported by the hosted API
// and is applied by trimming the PCM locally.
func (r *OpenAIRecognizer) Recognize(ctx context.Context, req Request) (string, error) {
	pcm := trimOffset(req.PCM, req.SampleRate, req.Offset)
	if len(pcm) == 0 {
		return "", ErrEmptyTranscript
	}
	wav, err := audio.WAVBytes(pcm, req.SampleRate)
	if err != nil {
		return "", err
	}

	callCtx, cancel := withTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	resp, err := r.client.CreateTranscription(callCtx, openai.AudioRequest{
		Model:    r.cfg.Model,
		FilePath: "segment.wav",
		Reader:   bytes.NewReader(wav),
		Prompt:   strings.TrimSpace(req.Prompt),
		Language: strings.TrimSpace(r.cfg.Language),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("%s transcription: %w", r.cfg.Name, err)
	}

	text := cleanText(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func trimOffset(pcm []byte, sampleRate int, offset time.Duration) []byte {
	if offset <= 0 || sampleRate <= 0 {
		return pcm
	}
	skip := int(offset.Seconds()*float64(sampleRate)) * 2
	if skip >= len(pcm) {
		return nil
	}
	return pcm[skip:]
}
