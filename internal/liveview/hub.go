package liveview

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/rbright/lectern/internal/session"
)

// Message kinds pushed to browsers.
const (
	KindSnapshot = "snapshot"
	KindAdded    = "added"
	KindRefined  = "refined"
)

// Message is one websocket frame.
type Message struct {
	Kind     string            `json:"kind"`
	Entry    *session.Entry    `json:"entry,omitempty"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
}

const clientBuffer = 64

type client struct {
	send chan []byte
}

// hub fans transcript changes out to connected browsers. A client whose
// buffer is full misses the message rather than stalling the workers.
type hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	dropped uint64
}

func newHub(log *slog.Logger) *hub {
	return &hub{log: log, clients: make(map[*client]struct{})}
}

func (h *hub) register() (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &client{send: make(chan []byte, clientBuffer)}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn("live view encode failed", "error", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped++
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
