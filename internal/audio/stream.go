package audio

import (
	"context"
	"fmt"
	"strings"
)

// Stream is a running audio source producing fixed-size chunks.
type Stream interface {
	Chunks() <-chan Chunk
	Stop() error
	DiscardPending() int
	BytesCaptured() int64
	Describe() string
}

// Options selects a capture backend and device.
type Options struct {
	Backend  string
	Input    string
	Fallback string
	Format   Format
}

// Backends lists the supported capture backends.
func Backends() []string {
	return []string{"pulse", "malgo"}
}

// ListDevices returns input devices for the given backend.
func ListDevices(ctx context.Context, backend string) ([]Device, error) {
	switch normalizeBackend(backend) {
	case "pulse":
		return ListPulseDevices(ctx)
	case "malgo":
		return ListMalgoDevices(ctx)
	default:
		return nil, fmt.Errorf("unsupported audio backend %q", backend)
	}
}

// Open resolves the configured device and starts capturing. The returned
// Selection carries any fallback warning.
func Open(ctx context.Context, opts Options) (Stream, Selection, error) {
	if opts.Format.SampleRate <= 0 || opts.Format.ChunkBytes <= 0 {
		return nil, Selection{}, fmt.Errorf("invalid capture format %+v", opts.Format)
	}

	devices, err := ListDevices(ctx, opts.Backend)
	if err != nil {
		return nil, Selection{}, err
	}
	selection, err := SelectDevice(devices, opts.Input, opts.Fallback)
	if err != nil {
		return nil, Selection{}, err
	}

	switch normalizeBackend(opts.Backend) {
	case "pulse":
		stream, err := StartPulse(ctx, selection.Device, opts.Format)
		if err != nil {
			return nil, selection, err
		}
		return stream, selection, nil
	default:
		stream, err := StartMalgo(ctx, selection.Device, opts.Format)
		if err != nil {
			return nil, selection, err
		}
		return stream, selection, nil
	}
}

func normalizeBackend(backend string) string {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		return "pulse"
	}
	return backend
}
