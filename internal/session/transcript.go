package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status marks which pass produced an entry's current text.
type Status string

const (
	StatusStreaming Status = "Streaming"
	StatusRefined   Status = "Refined"
	StatusSystem    Status = "System"
)

// Entry is one transcript paragraph.
type Entry struct {
	ID       int           `json:"id"`
	Text     string        `json:"text"`
	Status   Status        `json:"status"`
	ChunkSeq int           `json:"chunk_seq"`
	Offset   time.Duration `json:"offset_ns"`
	At       time.Time     `json:"at"`
}

// Snapshot is an immutable copy of a transcript.
type Snapshot struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Model      string    `json:"model"`
	Entries    []Entry   `json:"entries"`
}

// Transcript is the append-only entry list of one session. Refinement
// replaces an entry's text in place and never reorders.
type Transcript struct {
	id        string
	name      string
	startedAt time.Time
	model     string
	now       func() time.Time

	mu         sync.RWMutex
	entries    []Entry
	index      map[int]int
	nextID     int
	version    uint64
	finishedAt time.Time
}

// NewTranscript starts an empty transcript. Name is the session file stem.
func NewTranscript(startedAt time.Time, model string) *Transcript {
	return &Transcript{
		id:        uuid.NewString(),
		name:      StemFor(startedAt),
		startedAt: startedAt,
		model:     model,
		now:       time.Now,
		index:     make(map[int]int),
		nextID:    1,
	}
}

// Resume rebuilds a transcript from a previous snapshot so new entries
// continue after the restored ones.
func Resume(prev Snapshot, model string) *Transcript {
	t := NewTranscript(prev.StartedAt, model)
	if prev.ID != "" {
		t.id = prev.ID
	}
	if prev.Name != "" {
		t.name = prev.Name
	}
	for _, entry := range prev.Entries {
		t.index[entry.ID] = len(t.entries)
		t.entries = append(t.entries, entry)
		if entry.ID >= t.nextID {
			t.nextID = entry.ID + 1
		}
	}
	return t
}

func (t *Transcript) ID() string           { return t.id }
func (t *Transcript) Name() string         { return t.name }
func (t *Transcript) StartedAt() time.Time { return t.startedAt }

// Add appends a new entry and returns it.
func (t *Transcript) Add(text string, status Status, chunkSeq int, offset time.Duration) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := Entry{
		ID:       t.nextID,
		Text:     strings.TrimSpace(text),
		Status:   status,
		ChunkSeq: chunkSeq,
		Offset:   offset,
		At:       t.now(),
	}
	t.nextID++
	t.index[entry.ID] = len(t.entries)
	t.entries = append(t.entries, entry)
	t.version++
	return entry
}

// Refine replaces the text of entry id and marks it refined.
func (t *Transcript) Refine(id int, text string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.index[id]
	if !ok {
		return Entry{}, false
	}
	entry := &t.entries[pos]
	entry.Text = strings.TrimSpace(text)
	entry.Status = StatusRefined
	t.version++
	return *entry, true
}

// Finish stamps the end time.
func (t *Transcript) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finishedAt.IsZero() {
		t.finishedAt = t.now()
		t.version++
	}
}

// Len reports the number of entries.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Counts reports total and refined entry counts.
func (t *Transcript) Counts() (total int, refined int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, entry := range t.entries {
		if entry.Status == StatusRefined {
			refined++
		}
	}
	return len(t.entries), refined
}

// Version increments on every mutation.
func (t *Transcript) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Snapshot copies the current state.
func (t *Transcript) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		ID:         t.id,
		Name:       t.name,
		StartedAt:  t.startedAt,
		FinishedAt: t.finishedAt,
		Model:      t.model,
		Entries:    append([]Entry(nil), t.entries...),
	}
}

// Text joins entry texts with single spaces.
func (s Snapshot) Text() string {
	parts := make([]string, 0, len(s.Entries))
	for _, entry := range s.Entries {
		if entry.Status == StatusSystem || entry.Text == "" {
			continue
		}
		parts = append(parts, entry.Text)
	}
	return strings.Join(parts, " ")
}
