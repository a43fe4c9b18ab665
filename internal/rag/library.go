// Package rag answers questions about saved lecture transcripts by handing
// them, with the question, to an external AI command.
package rag

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rbright/lectern/internal/session"
)

// ErrNoTranscripts reports an empty transcripts directory.
var ErrNoTranscripts = errors.New("no session transcripts found")

var sessionPatterns = []string{"session_*.txt", "session_*.md", "session_*.json"}

// Transcript is one saved session file.
type Transcript struct {
	Path    string
	Stem    string
	Date    string
	Content string
}

// Length is the transcript size in characters.
func (t Transcript) Length() int {
	return utf8.RuneCountInString(t.Content)
}

// Library is the ordered set of saved transcripts in one directory.
type Library struct {
	Dir         string
	Transcripts []Transcript
}

// Load reads every session file in dir, oldest first.
func Load(dir string) (*Library, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("transcripts directory not found: %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("transcripts path is not a directory: %s", dir)
	}

	var paths []string
	for _, pattern := range sessionPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("list transcripts: %w", err)
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoTranscripts, dir)
	}
	sort.Strings(paths)

	lib := &Library{Dir: dir}
	for _, path := range paths {
		content, err := readTranscript(path)
		if err != nil {
			return nil, err
		}
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		lib.Transcripts = append(lib.Transcripts, Transcript{
			Path:    path,
			Stem:    stem,
			Date:    session.DateFromStem(stem),
			Content: content,
		})
	}
	return lib, nil
}

// readTranscript returns plain text for a session file. JSON sessions are
// rendered to the text layout so every prompt sees the same shape.
func readTranscript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read transcript %s: %w", path, err)
	}
	if filepath.Ext(path) != ".json" {
		return string(data), nil
	}

	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return "", fmt.Errorf("decode transcript %s: %w", path, err)
	}
	text, err := session.Render(snap, "txt")
	if err != nil {
		return "", err
	}
	return string(text), nil
}

// TotalLength sums the character counts of all transcripts.
func (l *Library) TotalLength() int {
	total := 0
	for _, t := range l.Transcripts {
		total += t.Length()
	}
	return total
}

// Get returns the transcript at a 1-based index.
func (l *Library) Get(index int) (Transcript, error) {
	if index < 1 || index > len(l.Transcripts) {
		return Transcript{}, fmt.Errorf("invalid session index %d (have %d sessions)", index, len(l.Transcripts))
	}
	return l.Transcripts[index-1], nil
}

// Context concatenates transcripts oldest first, stopping before the one
// that would push the total past maxChars.
func (l *Library) Context(maxChars int) string {
	parts := make([]string, 0, len(l.Transcripts))
	length := 0
	for _, t := range l.Transcripts {
		if maxChars > 0 && length+t.Length() > maxChars {
			break
		}
		parts = append(parts, contextBlock(t))
		length += t.Length()
	}
	return strings.Join(parts, "\n")
}

func contextBlock(t Transcript) string {
	return fmt.Sprintf("=== Session %s ===\n%s\n", t.Date, t.Content)
}
