package store

import (
	"context"
	"log/slog"

	"github.com/rbright/lectern/internal/session"
)

// Recorder writes pipeline entries into the archive as they arrive so a
// crashed run still leaves a searchable record.
type Recorder struct {
	store     *Store
	sessionID string
	ctx       context.Context
	log       *slog.Logger
}

// Recorder binds entry writes to one session. BeginSession must run first.
func (s *Store) Recorder(ctx context.Context, sessionID string) *Recorder {
	return &Recorder{store: s, sessionID: sessionID, ctx: context.WithoutCancel(ctx), log: s.log}
}

// EntryAdded archives a new draft entry.
func (r *Recorder) EntryAdded(entry session.Entry) { r.put(entry) }

// EntryRefined overwrites the archived entry with its refined text.
func (r *Recorder) EntryRefined(entry session.Entry) { r.put(entry) }

func (r *Recorder) put(entry session.Entry) {
	if err := r.store.PutEntry(r.ctx, r.sessionID, entry); err != nil {
		r.log.Warn("archive entry write failed", "entry", entry.ID, "error", err.Error())
	}
}
