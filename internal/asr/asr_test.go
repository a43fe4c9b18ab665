package asr

import (
	"context"
	"errors"
	"testing"

	"github.com/rbright/lectern/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default()

	rec, err := New(context.Background(), Options{Name: "streaming", Pass: cfg.Streaming, ModelPath: "models/ggml-tiny.en.bin"})
	require.NoError(t, err)
	require.IsType(t, &ExecRecognizer{}, rec)
	require.Equal(t, "streaming", rec.Name())

	pass := cfg.Refining
	pass.Backend = "openai"
	pass.APIKey = "k"
	rec, err = New(context.Background(), Options{Name: "refining", Pass: pass})
	require.NoError(t, err)
	require.IsType(t, &OpenAIRecognizer{}, rec)

	pass.Backend = "vosk"
	_, err = New(context.Background(), Options{Name: "refining", Pass: pass})
	require.ErrorContains(t, err, `unsupported asr backend "vosk"`)
}

func TestStaticScriptsResults(t *testing.T) {
	rec := &Static{Results: []string{"one", " two "}}
	ctx := context.Background()

	first, err := rec.Recognize(ctx, Request{Prompt: "a"})
	require.NoError(t, err)
	require.Equal(t, "one", first)

	for range 2 {
		next, err := rec.Recognize(ctx, Request{})
		require.NoError(t, err)
		require.Equal(t, "two", next)
	}
	require.Len(t, rec.Requests(), 3)

	failing := &Static{Err: errors.New("boom")}
	_, err = failing.Recognize(ctx, Request{})
	require.EqualError(t, err, "boom")

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = rec.Recognize(canceled, Request{})
	require.ErrorIs(t, err, context.Canceled)
}
