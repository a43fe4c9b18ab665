package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		ID:        "abc",
		Name:      StemFor(testStart),
		StartedAt: testStart,
		Model:     "ggml-base.en.bin",
		Entries: []Entry{
			{ID: 1, Text: "Welcome to the lecture.", Status: StatusRefined},
			{ID: 2, Text: "today we cover limits", Status: StatusStreaming},
		},
	}
}

func TestRenderText(t *testing.T) {
	data, err := Render(sampleSnapshot(), "txt")
	require.NoError(t, err)

	want := "Transcription Session - 2026-03-04 09:05:07\n" +
		"==================================================\n\n" +
		"[Refined] Welcome to the lecture.\n\n" +
		"[Streaming] today we cover limits\n\n"
	require.Equal(t, want, string(data))
}

func TestRenderMarkdown(t *testing.T) {
	data, err := Render(sampleSnapshot(), "md")
	require.NoError(t, err)
	require.Contains(t, string(data), "# Lecture Transcript\n\n")
	require.Contains(t, string(data), "Welcome to the lecture.\n\n")
}

func TestRenderJSON(t *testing.T) {
	data, err := Render(sampleSnapshot(), "json")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "abc", decoded["id"])
	require.Equal(t, "ggml-base.en.bin", decoded["model"])
	require.Len(t, decoded["entries"], 2)
	require.NotContains(t, decoded, "finished_at")
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := Render(sampleSnapshot(), "docx")
	require.ErrorContains(t, err, `unsupported session format "docx"`)
}

func TestStemHelpers(t *testing.T) {
	require.Equal(t, "session_20260304_090507", StemFor(testStart))
	require.Equal(t, "session_20260304_090507.md", FileName(StemFor(testStart), "md"))
	require.Equal(t, "20260304", DateFromStem("transcripts/session_20260304_090507.txt"))
	require.Equal(t, "20260304", DateFromStem("session_20260304_090507"))
}
