package asr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenAIRecognizerUploadsSegment(t *testing.T) {
	var gotPrompt, gotModel, gotPath string
	var gotFileSize int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotPrompt = r.FormValue("prompt")
		gotModel = r.FormValue("model")
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		gotFileSize = header.Size
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  the derivative   of x squared  "}`))
	}))
	defer server.Close()

	rec, err := NewOpenAI(OpenAIConfig{
		Name:    "refining",
		APIKey:  "test-key",
		BaseURL: server.URL + "/v1/",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	text, err := rec.Recognize(context.Background(), Request{
		PCM:        make([]byte, 3200),
		SampleRate: 16000,
		Prompt:     "draft",
	})
	require.NoError(t, err)
	require.Equal(t, "the derivative of x squared", text)
	require.Equal(t, "/v1/audio/transcriptions", gotPath)
	require.Equal(t, "draft", gotPrompt)
	require.Equal(t, "whisper-1", gotModel)
	require.Equal(t, int64(44+3200), gotFileSize)
}

func TestOpenAIRecognizerRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAI(OpenAIConfig{Name: "streaming"})
	require.ErrorContains(t, err, "api key is empty")
}

func TestOpenAIRecognizerSurfacesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	rec, err := NewOpenAI(OpenAIConfig{Name: "streaming", APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = rec.Recognize(context.Background(), Request{PCM: make([]byte, 320), SampleRate: 16000})
	require.ErrorContains(t, err, "bad key")
}

func TestTrimOffset(t *testing.T) {
	pcm := make([]byte, 32000)
	require.Len(t, trimOffset(pcm, 16000, 500*time.Millisecond), 16000)
	require.Nil(t, trimOffset(pcm, 16000, 2*time.Second))
	require.Len(t, trimOffset(pcm, 16000, 0), 32000)
}
