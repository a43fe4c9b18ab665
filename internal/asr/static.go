package asr

import (
	"context"
	"sync"
)

// Static is an in-process recognizer returning scripted results for tests
// of packages that drive a Recognizer.
type Static struct {
	Label string
	// Results are returned in order; the last one repeats.
	Results []string
	Err     error

	mu       sync.Mutex
	calls    int
	requests []Request
}

// Recognize returns the next scripted result.
func (s *Static) Recognize(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	s.calls++
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Results) == 0 {
		return "", ErrEmptyTranscript
	}
	idx := s.calls - 1
	if idx >= len(s.Results) {
		idx = len(s.Results) - 1
	}
	text := cleanText(s.Results[idx])
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// Requests returns a copy of every request seen so far.
func (s *Static) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Static) Name() string {
	if s.Label == "" {
		return "static"
	}
	return s.Label
}

func (s *Static) Close() error { return nil }
