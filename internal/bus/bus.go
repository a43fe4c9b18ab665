// Package bus publishes transcript events over NATS for other local tools.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rbright/lectern/internal/config"
	"github.com/rbright/lectern/internal/session"
)

// Event kinds, used as the last subject token.
const (
	KindAdded   = "added"
	KindRefined = "refined"
	KindSaved   = "saved"
)

// Event is the JSON payload of every published message.
type Event struct {
	Kind      string         `json:"kind"`
	SessionID string         `json:"session_id"`
	Session   string         `json:"session"`
	Entry     *session.Entry `json:"entry,omitempty"`
	Path      string         `json:"path,omitempty"`
	At        time.Time      `json:"at"`
}

// Publisher owns one NATS connection.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	log    *slog.Logger
}

// Connect dials the configured NATS server.
func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("bus.url is empty")
	}

	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("lectern"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err.Error())
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	prefix := strings.Trim(cfg.SubjectPrefix, ".")
	if prefix == "" {
		prefix = "lectern.transcript"
	}
	log.Info("connected to NATS", slog.String("url", cfg.URL), slog.String("prefix", prefix))
	return &Publisher{conn: conn, prefix: prefix, log: log}, nil
}

// Subject returns the subject for an event kind.
func (p *Publisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

// Publish sends one event.
func (p *Publisher) Publish(evt Event) error {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.Subject(evt.Kind), data)
}

// Healthy reports whether the connection is up.
func (p *Publisher) Healthy() bool {
	return p != nil && p.conn != nil && p.conn.Status() == nats.CONNECTED
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// SessionPublisher publishes one session's entry events.
type SessionPublisher struct {
	pub       *Publisher
	sessionID string
	name      string
}

// ForSession binds events to a session.
func (p *Publisher) ForSession(sessionID, name string) *SessionPublisher {
	return &SessionPublisher{pub: p, sessionID: sessionID, name: name}
}

func (s *SessionPublisher) EntryAdded(entry session.Entry)   { s.send(KindAdded, &entry, "") }
func (s *SessionPublisher) EntryRefined(entry session.Entry) { s.send(KindRefined, &entry, "") }

// Saved announces the final session file.
func (s *SessionPublisher) Saved(_ session.Snapshot, path string) { s.send(KindSaved, nil, path) }

func (s *SessionPublisher) send(kind string, entry *session.Entry, path string) {
	err := s.pub.Publish(Event{
		Kind:      kind,
		SessionID: s.sessionID,
		Session:   s.name,
		Entry:     entry,
		Path:      path,
	})
	if err != nil {
		s.pub.log.Warn("bus publish failed", "kind", kind, "error", err.Error())
	}
}
