package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseYAMLAppliesSections(t *testing.T) {
	cfg, _, err := Parse(`
# lecture hall laptop
audio:
  input: alsa_input.usb
asr:
  streaming:
    args: --no-timestamps --beam-size 1
  refining:
    backend: openai
    model: whisper-1
session:
  dir: /tmp/lectures
  drain_timeout_seconds: 5
bus:
  enable: true
  url: nats://10.0.0.2:4222
`, Default())
	require.NoError(t, err)
	require.Equal(t, "alsa_input.usb", cfg.Audio.Input)
	require.Equal(t, []string{"--no-timestamps", "--beam-size", "1"}, cfg.Streaming.Args)
	require.Equal(t, "openai", cfg.Refining.Backend)
	require.Equal(t, "whisper-1", cfg.Refining.Model)
	require.Equal(t, "/tmp/lectures", cfg.Session.Dir)
	require.Equal(t, 5*time.Second, cfg.Session.DrainTimeout)
	require.True(t, cfg.Bus.Enable)
	require.Equal(t, "nats://10.0.0.2:4222", cfg.Bus.URL)
}

func TestParseYAMLSequenceArgs(t *testing.T) {
	cfg, _, err := Parse(`
asr:
  refining:
    args: ["--beam-size", "3"]
`, Default())
	require.NoError(t, err)
	require.Equal(t, []string{"--beam-size", "3"}, cfg.Refining.Args)
}

func TestParseYAMLRejectsUnknownKey(t *testing.T) {
	_, _, err := Parse("paste:\n  enable: true\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "paste")
}

func TestParseYAMLRejectsMultipleDocuments(t *testing.T) {
	_, _, err := Parse("log:\n  level: debug\n---\nlog:\n  level: info\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple YAML documents")
}

func TestParseCommentOnlyYAMLUsesDefaults(t *testing.T) {
	cfg, _, err := Parse("# nothing configured yet\n", Default())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}
