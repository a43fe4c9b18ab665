package audio

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Format describes the PCM layout every capture backend produces:
// mono, signed 16-bit little-endian.
type Format struct {
	SampleRate int
	ChunkBytes int
}

// BytesPerSecond is the s16le mono byte rate.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * 2
}

// Duration converts a PCM byte count into playback time.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(f.BytesPerSecond()))
}

// Chunk is one fixed-duration block of captured PCM.
type Chunk struct {
	Seq    int
	Offset time.Duration
	PCM    []byte
	Final  bool
}

// chunker slices an arbitrary byte stream into fixed-size chunks.
type chunker struct {
	format  Format
	pending []byte
	seq     int
	emitted int
}

func (c *chunker) write(p []byte) []Chunk {
	c.pending = append(c.pending, p...)
	size := c.format.ChunkBytes
	if size <= 0 {
		return nil
	}

	out := make([]Chunk, 0, len(c.pending)/size)
	for len(c.pending) >= size {
		pcm := make([]byte, size)
		copy(pcm, c.pending[:size])
		c.pending = c.pending[size:]
		out = append(out, c.next(pcm))
	}
	return out
}

// flush emits the residual partial chunk, if any.
func (c *chunker) flush() (Chunk, bool) {
	if len(c.pending) == 0 {
		return Chunk{}, false
	}
	// Keep sample alignment.
	n := len(c.pending) &^ 1
	pcm := make([]byte, n)
	copy(pcm, c.pending[:n])
	c.pending = nil
	if n == 0 {
		return Chunk{}, false
	}
	chunk := c.next(pcm)
	chunk.Final = true
	return chunk, true
}

// discard drops the residual partial chunk and reports its size.
func (c *chunker) discard() int {
	n := len(c.pending)
	c.pending = nil
	return n
}

func (c *chunker) next(pcm []byte) Chunk {
	chunk := Chunk{Seq: c.seq, Offset: c.format.Duration(c.emitted), PCM: pcm}
	c.seq++
	c.emitted += len(pcm)
	return chunk
}

// emitter is the chunk fan-out shared by every capture backend. Backends feed
// raw PCM through push from their device callback; Chunks closes exactly once.
type emitter struct {
	chunks chan Chunk
	stopCh chan struct{}

	mu      sync.Mutex
	chunker chunker
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

func newEmitter(format Format) *emitter {
	return &emitter{
		chunks:  make(chan Chunk, 4),
		stopCh:  make(chan struct{}),
		chunker: chunker{format: format},
	}
}

// Chunks returns the capture stream.
func (e *emitter) Chunks() <-chan Chunk {
	return e.chunks
}

// BytesCaptured reports total bytes accepted from the device.
func (e *emitter) BytesCaptured() int64 {
	return e.bytes.Load()
}

// DiscardPending drops PCM that has not yet filled a chunk.
func (e *emitter) DiscardPending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chunker.discard()
}

func (e *emitter) push(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-e.stopCh:
		return 0, io.EOF
	default:
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as stopped so finish never races Wait.
	e.inflight.Add(1)
	chunks := e.chunker.write(buffer)
	e.mu.Unlock()
	defer e.inflight.Done()

	e.bytes.Add(int64(len(buffer)))

	for _, chunk := range chunks {
		select {
		case <-e.stopCh:
			return 0, io.EOF
		case e.chunks <- chunk:
		}
	}
	return len(buffer), nil
}

// beginStop marks the emitter stopped. It reports false when already stopped.
func (e *emitter) beginStop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	e.stopped = true
	close(e.stopCh)
	return true
}

// finish waits for in-flight pushes, emits the residual chunk, and closes Chunks.
func (e *emitter) finish() {
	e.inflight.Wait()

	e.mu.Lock()
	last, ok := e.chunker.flush()
	e.mu.Unlock()

	if ok {
		timer := time.NewTimer(2 * time.Second)
		select {
		case e.chunks <- last:
		case <-timer.C:
		}
		timer.Stop()
	}
	close(e.chunks)
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
