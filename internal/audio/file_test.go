package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileStreamEmitsAllChunksAndMarksFinal(t *testing.T) {
	stream := NewFileStream(context.Background(), "lecture.wav", make([]byte, 20), testFormat(), false)
	require.Equal(t, "file:lecture.wav", stream.Describe())

	var chunks []Chunk
	for chunk := range stream.Chunks() {
		chunks = append(chunks, chunk)
	}

	require.Len(t, chunks, 3)
	require.Len(t, chunks[0].PCM, 8)
	require.Len(t, chunks[2].PCM, 4)
	require.False(t, chunks[1].Final)
	require.True(t, chunks[2].Final)
	require.Equal(t, 2, chunks[2].Seq)
	require.Equal(t, int64(20), stream.BytesCaptured())
	require.NoError(t, stream.Stop())
}

func TestFileStreamStopEndsReplay(t *testing.T) {
	stream := NewFileStream(context.Background(), "lecture.wav", make([]byte, 800), testFormat(), false)
	<-stream.Chunks()

	require.NoError(t, stream.Stop())
	require.NoError(t, stream.Stop())

	for range stream.Chunks() {
	}
	require.Less(t, stream.BytesCaptured(), int64(800))
}

func TestFileStreamPacedHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	format := Format{SampleRate: 16000, ChunkBytes: 32000}
	stream := NewFileStream(ctx, "lecture.wav", make([]byte, 32000*5), format, true)
	require.Equal(t, 5*time.Second, stream.Duration())

	<-stream.Chunks()
	cancel()

	select {
	case <-waitClosed(stream.Chunks()):
	case <-time.After(2 * time.Second):
		t.Fatal("paced stream did not stop on cancel")
	}
}

func waitClosed(ch <-chan Chunk) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	return done
}
