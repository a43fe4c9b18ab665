package config

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONCRemovesCommentsAndTrailingCommas(t *testing.T) {
	input := `
{
  // line comment
  "items": [
    "one", /* block comment */
    "two",
  ],
  "nested": {
    "enabled": true,
  },
}
`

	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.NotContains(t, normalized, "//")
	require.NotContains(t, normalized, "/*")
	require.NotContains(t, normalized, ",]")
	require.NotContains(t, normalized, ",}")
}

func TestNormalizeJSONCRetainsCommentLikeTextInsideStrings(t *testing.T) {
	input := `{"value":"contains // and /* comment-like */ text",}`
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Contains(t, normalized, "// and /* comment-like */")
}

func TestNormalizeJSONCUnterminatedBlockCommentFails(t *testing.T) {
	_, err := normalizeJSONC("{ /* unterminated ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated block comment")
}

func TestNormalizeJSONCPreservesOffsets(t *testing.T) {
	input := "{\n  // note\n  \"log\": {\"level\": \"info\",},\n}"
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Len(t, normalized, len(input))
	require.Equal(t, strings.Count(input, "\n"), strings.Count(normalized, "\n"))
	require.Equal(t, strings.Index(input, `"log"`), strings.Index(normalized, `"log"`))

	var decoded map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(normalized), &decoded))
	require.Equal(t, "info", decoded["log"]["level"])
}

func TestDecodeJSONCLocatesUnknownField(t *testing.T) {
	_, err := decodeJSONC("{\n  // archive\n  \"stor\": {}\n}")
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 3 column 3")
	require.Contains(t, err.Error(), "unknown field")
}

func TestDecodeJSONCRejectsExtraPayload(t *testing.T) {
	_, err := decodeJSONC(`{"log":{"level":"info"}} {"log":{"level":"debug"}}`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestOffsetToLineCol(t *testing.T) {
	content := "line1\nline2\nline3"
	line, col := offsetToLineCol(content, 1)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)

	line, col = offsetToLineCol(content, 8) // line2, col2
	require.Equal(t, 2, line)
	require.Equal(t, 2, col)

	line, col = offsetToLineCol(content, 999)
	require.Equal(t, 3, line)
	require.Equal(t, 5, col)
}

func TestStringListUnmarshalJSON(t *testing.T) {
	var list stringList
	require.NoError(t, list.UnmarshalJSON([]byte(`["--beam-size","5"]`)))
	require.Equal(t, []string{"--beam-size", "5"}, []string(list))

	require.NoError(t, list.UnmarshalJSON([]byte(`"--threads 8 --prompt 'a b'"`)))
	require.Equal(t, []string{"--threads", "8", "--prompt", "a b"}, []string(list))

	err := list.UnmarshalJSON([]byte(`123`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected string array")
}

func TestParseJSONCAppliesSections(t *testing.T) {
	cfg, _, err := Parse(`{
  // tuned for a long lecture
  "audio": {"backend": "malgo", "chunk_seconds": 10},
  "queue": {"audio_capacity": 3, "retry_ms": 250},
  "asr": {
    "streaming": {"model": "ggml-tiny.bin", "args": ["--threads", "2"]},
    "refining": {"backend": "grpc", "address": "127.0.0.1:50051", "timeout_seconds": 90},
  },
  "session": {"format": " MD ", "autosave_seconds": 0},
  "memory": {"warn_mb": 700, "cleanup_mb": 1400},
  "ask": {"command": "llm -m 'gemini pro'", "max_context_chars": 1000},
  "liveview": {"enable": false},
}`, Default())
	require.NoError(t, err)
	require.Equal(t, "malgo", cfg.Audio.Backend)
	require.Equal(t, 10.0, cfg.Audio.ChunkSeconds)
	require.Equal(t, 320000, cfg.Audio.ChunkBytes())
	require.Equal(t, 3, cfg.Queue.AudioCapacity)
	require.Equal(t, 250*time.Millisecond, cfg.Queue.RetryDelay)
	require.Equal(t, "ggml-tiny.bin", cfg.Streaming.Model)
	require.Equal(t, []string{"--threads", "2"}, cfg.Streaming.Args)
	require.Equal(t, "grpc", cfg.Refining.Backend)
	require.Equal(t, 90*time.Second, cfg.Refining.Timeout)
	require.Equal(t, "md", cfg.Session.Format)
	require.Zero(t, cfg.Session.AutosaveInterval)
	require.Equal(t, uint64(1400), cfg.Memory.CleanupMB)
	require.Equal(t, []string{"llm", "-m", "gemini pro"}, cfg.Ask.Command.Argv)
	require.Equal(t, 1000, cfg.Ask.MaxContextChars)
	require.False(t, cfg.LiveView.Enable)
}

func TestParseJSONCRejectsInvalidCommandArgv(t *testing.T) {
	_, _, err := Parse(`{"clipboard_cmd":"unterminated ' quote"}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid clipboard_cmd")

	_, _, err = Parse(`{"ask":{"command":"unterminated ' quote"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid ask.command")

	_, _, err = Parse(`{"asr":{"refining":{"command":"whisper \"oops"}}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid asr.refining.command")
}

func TestParseJSONCRejectsUnknownField(t *testing.T) {
	_, _, err := Parse(`{"riva":{"grpc":"127.0.0.1:50051"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseJSONCTrimsIndicatorFields(t *testing.T) {
	cfg, _, err := Parse(`{
  "indicator": {
    "backend": " Beeep ",
    "desktop_app_name": "  lectern  "
  }
}`, Default())
	require.NoError(t, err)
	require.Equal(t, "beeep", cfg.Indicator.Backend)
	require.Equal(t, "lectern", cfg.Indicator.DesktopAppName)
}

func TestParseJSONCRejectsMultipleTopLevelValues(t *testing.T) {
	_, _, err := Parse(`{"liveview":{"enable":false}}{"liveview":{"enable":true}}`, Default())
	require.Error(t, err)
	require.True(
		t,
		strings.Contains(err.Error(), "multiple JSON values") || strings.Contains(err.Error(), "unknown field"),
		"unexpected error: %v",
		err,
	)
}

func TestParseJSONCTypeErrorIncludesLocation(t *testing.T) {
	_, _, err := Parse(`{
  "queue": {"audio_capacity": "many"}
}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line")
	require.Contains(t, err.Error(), "column")
}

func TestParseJSONCWarnsOnInlineAPIKey(t *testing.T) {
	_, warnings, err := Parse(`{"asr":{"refining":{"backend":"openai","api_key":"sk-test"}}}`, Default())
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	require.Contains(t, warnings[0].Message, "plain text")
}
