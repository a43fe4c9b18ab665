// Package store archives transcript sessions in SQLite for search, resume,
// and retention.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/lectern/internal/session"
	_ "modernc.org/sqlite"
)

// ErrNotFound reports a session name missing from the archive.
var ErrNotFound = errors.New("session not found in archive")

// Options configure the archive.
type Options struct {
	Path string
	// RetentionDays deletes sessions started earlier than this many days
	// ago. Zero keeps everything.
	RetentionDays int
	Logger        *slog.Logger
}

// Summary is one archived session row.
type Summary struct {
	ID         string
	Name       string
	Model      string
	Path       string
	StartedAt  time.Time
	FinishedAt time.Time
	Entries    int
}

// Hit is one search match.
type Hit struct {
	Session   string
	StartedAt time.Time
	EntryID   int
	Status    session.Status
	Text      string
}

// Store wraps the SQLite session archive.
type Store struct {
	db            *sql.DB
	log           *slog.Logger
	retentionDays int
	clock         func() time.Time
}

// Open creates or opens the archive and applies retention.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("store path is empty")
	}

	dir := filepath.Dir(opts.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", opts.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: opts.Logger, retentionDays: opts.RetentionDays, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}
	if _, err := s.Prune(ctx); err != nil {
		s.log.Warn("archive prune on open failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    model TEXT,
    file_path TEXT,
    started_at INTEGER NOT NULL,
    finished_at INTEGER
);
CREATE TABLE IF NOT EXISTS entries (
    session_id TEXT NOT NULL,
    entry_id INTEGER NOT NULL,
    text TEXT NOT NULL,
    status TEXT NOT NULL,
    chunk_seq INTEGER NOT NULL,
    offset_ns INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL,
    PRIMARY KEY(session_id, entry_id),
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginSession records the session row so entries can be written live.
func (s *Store) BeginSession(ctx context.Context, snap session.Snapshot) error {
	return s.upsertSession(ctx, s.db, snap, "")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) upsertSession(ctx context.Context, db execer, snap session.Snapshot, path string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, name, model, file_path, started_at, finished_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   model=excluded.model,
		   file_path=COALESCE(NULLIF(excluded.file_path, ''), sessions.file_path),
		   finished_at=excluded.finished_at`,
		snap.ID, snap.Name, snap.Model, path, snap.StartedAt.UnixNano(), nullableTime(snap.FinishedAt))
	return err
}

// PutEntry inserts or replaces one entry of an existing session.
func (s *Store) PutEntry(ctx context.Context, sessionID string, entry session.Entry) error {
	return putEntry(ctx, s.db, sessionID, entry)
}

func putEntry(ctx context.Context, db execer, sessionID string, entry session.Entry) error {
	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO entries(session_id, entry_id, text, status, chunk_seq, offset_ns, recorded_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, entry_id) DO UPDATE SET
		   text=excluded.text, status=excluded.status`,
		sessionID, entry.ID, entry.Text, string(entry.Status), entry.ChunkSeq, int64(entry.Offset), at.UnixNano())
	return err
}

// SaveSnapshot writes a full session and replaces its entries.
func (s *Store) SaveSnapshot(ctx context.Context, snap session.Snapshot, path string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.upsertSession(ctx, tx, snap, path); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM entries WHERE session_id = ?`, snap.ID); err != nil {
		return err
	}
	for _, entry := range snap.Entries {
		if err = putEntry(ctx, tx, snap.ID, entry); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load returns the archived session with the given file stem.
func (s *Store) Load(ctx context.Context, name string) (session.Snapshot, error) {
	var (
		snap     session.Snapshot
		model    sql.NullString
		started  int64
		finished sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, name, model, started_at, finished_at FROM sessions WHERE name = ?`, name,
	).Scan(&snap.ID, &snap.Name, &model, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return session.Snapshot{}, err
	}
	snap.Model = model.String
	snap.StartedAt = time.Unix(0, started)
	if finished.Valid {
		snap.FinishedAt = time.Unix(0, finished.Int64)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, text, status, chunk_seq, offset_ns, recorded_at
		 FROM entries WHERE session_id = ? ORDER BY entry_id ASC`, snap.ID)
	if err != nil {
		return session.Snapshot{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e              session.Entry
			status         string
			offset, record int64
		)
		if err := rows.Scan(&e.ID, &e.Text, &status, &e.ChunkSeq, &offset, &record); err != nil {
			return session.Snapshot{}, err
		}
		e.Status = session.Status(status)
		e.Offset = time.Duration(offset)
		e.At = time.Unix(0, record)
		snap.Entries = append(snap.Entries, e)
	}
	return snap, rows.Err()
}

// List returns archived sessions, oldest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.session_id, s.name, s.model, s.file_path, s.started_at, s.finished_at, COUNT(e.entry_id)
		 FROM sessions s LEFT JOIN entries e ON e.session_id = s.session_id
		 GROUP BY s.session_id ORDER BY s.started_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum         Summary
			model, path sql.NullString
			started     int64
			finished    sql.NullInt64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &model, &path, &started, &finished, &sum.Entries); err != nil {
			return nil, err
		}
		sum.Model = model.String
		sum.Path = path.String
		sum.StartedAt = time.Unix(0, started)
		if finished.Valid {
			sum.FinishedAt = time.Unix(0, finished.Int64)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Search finds entries containing term, case-insensitively for ASCII.
func (s *Store) Search(ctx context.Context, term string, limit int) ([]Hit, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("search term is empty")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT s.name, s.started_at, e.entry_id, e.status, e.text
		 FROM entries e JOIN sessions s ON s.session_id = e.session_id
		 WHERE e.text LIKE ? ESCAPE '\'
		 ORDER BY s.started_at ASC, e.entry_id ASC LIMIT ?`,
		"%"+escapeLike(term)+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h       Hit
			started int64
			status  string
		)
		if err := rows.Scan(&h.Session, &started, &h.EntryID, &status, &h.Text); err != nil {
			return nil, err
		}
		h.StartedAt = time.Unix(0, started)
		h.Status = session.Status(status)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Prune deletes sessions older than the retention window and returns how
// many were removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.clock().Add(-time.Duration(s.retentionDays) * 24 * time.Hour)
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info("archive pruned", "sessions", n, "retention_days", s.retentionDays)
	}
	return n, nil
}

func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}
