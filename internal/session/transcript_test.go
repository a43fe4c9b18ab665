package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 4, 9, 5, 7, 0, time.Local)

func TestTranscriptAddAndRefineKeepOrder(t *testing.T) {
	tr := NewTranscript(testStart, "ggml-base.en.bin")
	require.Equal(t, "session_20260304_090507", tr.Name())
	require.NotEmpty(t, tr.ID())

	first := tr.Add(" the first sentence. ", StatusStreaming, 0, 0)
	second := tr.Add("the second sentence.", StatusStreaming, 3, 15*time.Second)
	require.Equal(t, 1, first.ID)
	require.Equal(t, 2, second.ID)
	require.Equal(t, "the first sentence.", first.Text)

	refined, ok := tr.Refine(first.ID, "The first sentence.")
	require.True(t, ok)
	require.Equal(t, StatusRefined, refined.Status)

	_, ok = tr.Refine(99, "nope")
	require.False(t, ok)

	snap := tr.Snapshot()
	require.Len(t, snap.Entries, 2)
	require.Equal(t, "The first sentence.", snap.Entries[0].Text)
	require.Equal(t, StatusStreaming, snap.Entries[1].Status)
	require.Equal(t, "The first sentence. the second sentence.", snap.Text())

	total, refinedCount := tr.Counts()
	require.Equal(t, 2, total)
	require.Equal(t, 1, refinedCount)
}

func TestTranscriptVersionAndFinish(t *testing.T) {
	tr := NewTranscript(testStart, "")
	v0 := tr.Version()
	tr.Add("hello world again", StatusStreaming, 0, 0)
	require.Greater(t, tr.Version(), v0)

	tr.Finish()
	finished := tr.Snapshot().FinishedAt
	require.False(t, finished.IsZero())
	tr.Finish()
	require.Equal(t, finished, tr.Snapshot().FinishedAt)
}

func TestResumeContinuesIDs(t *testing.T) {
	prev := Snapshot{
		ID:        "prev-id",
		Name:      "session_20260101_080000",
		StartedAt: testStart,
		Entries: []Entry{
			{ID: 1, Text: "one", Status: StatusRefined},
			{ID: 4, Text: "four", Status: StatusStreaming},
		},
	}

	tr := Resume(prev, "model")
	require.Equal(t, "prev-id", tr.ID())
	require.Equal(t, "session_20260101_080000", tr.Name())

	next := tr.Add("five", StatusStreaming, 0, 0)
	require.Equal(t, 5, next.ID)

	_, ok := tr.Refine(4, "Four.")
	require.True(t, ok)
	require.Equal(t, 3, tr.Len())
}
