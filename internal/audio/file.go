package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/wav"
)

// DecodeFile loads an audio file as s16le mono PCM at sampleRate. WAV files
// already in that layout (or needing only a downmix) are decoded in-process;
// everything else is converted by the ffmpeg argv prefix.
func DecodeFile(ctx context.Context, path string, sampleRate int, ffmpeg []string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		pcm, err := decodeWAV(path, sampleRate)
		if err == nil {
			return pcm, nil
		}
		if !errors.Is(err, errNeedsConversion) {
			return nil, err
		}
	}
	return convertWithFFmpeg(ctx, path, sampleRate, ffmpeg)
}

var errNeedsConversion = errors.New("wav needs conversion")

func decodeWAV(path string, sampleRate int) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, errNeedsConversion
	}
	if int(decoder.SampleRate) != sampleRate || decoder.BitDepth != 16 || decoder.NumChans == 0 {
		return nil, errNeedsConversion
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}

	return intsToPCM(downmix(buffer.Data, int(decoder.NumChans))), nil
}

func convertWithFFmpeg(ctx context.Context, path string, sampleRate int, ffmpeg []string) ([]byte, error) {
	if len(ffmpeg) == 0 {
		return nil, fmt.Errorf("cannot decode %q: audio.ffmpeg_cmd is empty", path)
	}

	args := append([]string{}, ffmpeg[1:]...)
	args = append(args,
		"-nostdin", "-loglevel", "error",
		"-i", path,
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ac", "1", "-ar", strconv.Itoa(sampleRate),
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffmpeg[0], args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("ffmpeg decode %q: %w: %s", path, err, detail)
		}
		return nil, fmt.Errorf("ffmpeg decode %q: %w", path, err)
	}

	pcm := stdout.Bytes()
	return pcm[:len(pcm)&^1], nil
}

// FileStream replays decoded PCM as a Stream. Paced streams emit chunks in
// real time; unpaced streams emit as fast as the consumer reads.
type FileStream struct {
	path     string
	format   Format
	pcm      []byte
	chunks   chan Chunk
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	sent     atomic.Int64
	paced    bool
}

// NewFileStream starts replaying pcm.
func NewFileStream(ctx context.Context, path string, pcm []byte, format Format, paced bool) *FileStream {
	s := &FileStream{
		path:   path,
		format: format,
		pcm:    pcm,
		chunks: make(chan Chunk),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		paced:  paced,
	}
	go s.run(ctx)
	return s
}

func (s *FileStream) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.chunks)

	c := chunker{format: s.format}
	chunks := c.write(s.pcm)
	if last, ok := c.flush(); ok {
		chunks = append(chunks, last)
	}
	if len(chunks) > 0 {
		chunks[len(chunks)-1].Final = true
	}

	var tick <-chan time.Time
	if s.paced && s.format.ChunkBytes > 0 {
		ticker := time.NewTicker(s.format.Duration(s.format.ChunkBytes))
		defer ticker.Stop()
		tick = ticker.C
	}

	for i, chunk := range chunks {
		if tick != nil && i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-tick:
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case s.chunks <- chunk:
			s.sent.Add(int64(len(chunk.PCM)))
		}
	}
}

// Chunks returns the replay stream.
func (s *FileStream) Chunks() <-chan Chunk {
	return s.chunks
}

// Stop ends replay early and waits for the channel to close.
func (s *FileStream) Stop() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
	return nil
}

// DiscardPending is a no-op; replay chunks are cut up front.
func (s *FileStream) DiscardPending() int {
	return 0
}

// BytesCaptured reports bytes handed to the consumer so far.
func (s *FileStream) BytesCaptured() int64 {
	return s.sent.Load()
}

// Describe names the replayed file.
func (s *FileStream) Describe() string {
	return "file:" + s.path
}

// Duration is the playback length of the full file.
func (s *FileStream) Duration() time.Duration {
	return s.format.Duration(len(s.pcm))
}
