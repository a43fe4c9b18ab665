//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// These need a running sound server with at least one input.

func TestListDevicesIntegration(t *testing.T) {
	for _, backend := range Backends() {
		t.Run(backend, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			devices, err := ListDevices(ctx, backend)
			require.NoError(t, err)
			require.NotEmpty(t, devices)
		})
	}
}

func TestOpenDeliversOneChunkIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	format := Format{SampleRate: 16000, ChunkBytes: 16000}
	stream, selection, err := Open(ctx, Options{Backend: "pulse", Input: "default", Fallback: "default", Format: format})
	require.NoError(t, err)
	require.NotEmpty(t, selection.Device.ID)

	select {
	case chunk := <-stream.Chunks():
		require.Len(t, chunk.PCM, format.ChunkBytes)
	case <-ctx.Done():
		t.Fatal("no audio chunk within deadline")
	}
	require.NoError(t, stream.Stop())
}
