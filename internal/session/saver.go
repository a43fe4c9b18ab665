package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrAlreadySaved is returned by every Save call after the first.
var ErrAlreadySaved = errors.New("session already saved")

const partialSuffix = ".partial"

// Saver writes a transcript to its session file exactly once. Autosave
// snapshots go to a .partial sibling that the final save removes.
type Saver struct {
	transcript *Transcript
	dir        string
	format     string
	logger     *slog.Logger

	once  sync.Once
	mu    sync.Mutex
	path  string
	err   error
	saved bool

	lastAutosave uint64
	onSaved      []func(Snapshot, string)
}

// NewSaver binds a transcript to dir/format.
func NewSaver(transcript *Transcript, dir string, format string, logger *slog.Logger) *Saver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Saver{
		transcript: transcript,
		dir:        dir,
		format:     format,
		logger:     logger,
		path:       filepath.Join(dir, FileName(transcript.Name(), format)),
	}
}

// Path is the final session file path.
func (s *Saver) Path() string {
	return s.path
}

// OnSaved registers a hook run after the final file is written.
func (s *Saver) OnSaved(fn func(Snapshot, string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSaved = append(s.onSaved, fn)
}

// Save finishes the transcript and writes the session file. Only the first
// call writes; later calls return the first result's path and ErrAlreadySaved.
func (s *Saver) Save() (string, error) {
	first := false
	s.once.Do(func() {
		first = true
		s.transcript.Finish()
		snap := s.transcript.Snapshot()

		s.mu.Lock()
		defer s.mu.Unlock()
		s.saved = true
		if err := s.write(s.path, snap); err != nil {
			s.err = err
			s.logger.Error("session save failed", "path", s.path, "error", err.Error())
			return
		}
		if err := os.Remove(s.path + partialSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("remove autosave snapshot failed", "path", s.path+partialSuffix, "error", err.Error())
		}
		s.logger.Info("session saved", "path", s.path, "entries", len(snap.Entries))
		for _, fn := range s.onSaved {
			fn(snap, s.path)
		}
	})
	if !first {
		return s.path, ErrAlreadySaved
	}
	return s.path, s.err
}

// Autosave writes a .partial snapshot whenever the transcript changed since
// the last write, until ctx is done or the session is saved.
func (s *Saver) Autosave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.snapshotPartial(); err != nil {
				s.logger.Warn("session autosave failed", "error", err.Error())
			}
		}
	}
}

func (s *Saver) snapshotPartial() error {
	version := s.transcript.Version()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved || version == s.lastAutosave {
		return nil
	}
	if err := s.write(s.path+partialSuffix, s.transcript.Snapshot()); err != nil {
		return err
	}
	s.lastAutosave = version
	return nil
}

// write renders snap and atomically replaces path.
func (s *Saver) write(path string, snap Snapshot) error {
	data, err := Render(snap, s.format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create session temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}
