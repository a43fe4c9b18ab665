package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/lectern/internal/session"
)

func TestConsolePrintsDraftsAndRefinements(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out)

	c.EntryAdded(session.Entry{ID: 1, Text: "the mitochondria is the powerhouse", Offset: 65 * time.Second})
	c.EntryRefined(session.Entry{ID: 1, Text: "The mitochondria is the powerhouse.", Offset: 65 * time.Second})
	c.EntryRefined(session.Entry{ID: 1, Text: "The mitochondria is the powerhouse.", Offset: 65 * time.Second})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, []string{
		"[01:05] ~ #1 the mitochondria is the powerhouse",
		"[01:05] = #1 The mitochondria is the powerhouse.",
	}, lines)
}

func TestConsoleBannerHistoryAndSummary(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out)

	c.Banner("session_20260101_090000", "alsa_input.usb", "ggml-tiny.en.bin", "ggml-base.en.bin")
	c.History([]session.Entry{
		{ID: 1, Text: "carried over.", Status: session.StatusRefined},
		{ID: 2, Text: "still a draft", Status: session.StatusStreaming},
	})
	c.Summary("/tmp/session.txt", 2, 1, 90*time.Second)

	text := out.String()
	require.NotContains(t, text, "\x1b[")
	require.Contains(t, text, "lectern live session session_20260101_090000")
	require.Contains(t, text, "device:    alsa_input.usb")
	require.Contains(t, text, "[00:00] = #1 carried over.")
	require.Contains(t, text, "[00:00] ~ #2 still a draft")
	require.Contains(t, text, "2 entries (1 refined) in 1m30s")
	require.Contains(t, text, "saved /tmp/session.txt")
}

func TestClock(t *testing.T) {
	require.Equal(t, "00:00", clock(-time.Second))
	require.Equal(t, "59:59", clock(time.Hour-time.Second))
	require.Equal(t, "1:02:03", clock(time.Hour+2*time.Minute+3*time.Second))
}
