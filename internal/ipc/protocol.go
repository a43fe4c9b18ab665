// Package ipc carries status and stop commands between a live session and
// short-lived CLI invocations over a unix socket.
package ipc

const (
	CommandStatus = "status"
	CommandStop   = "stop"
)

// Request is one newline-delimited JSON command.
type Request struct {
	Command string `json:"command"`
}

// Response is the owner's reply. Session is set for status and stop.
type Response struct {
	OK      bool           `json:"ok"`
	State   string         `json:"state,omitempty"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Session *SessionStatus `json:"session,omitempty"`
}

// SessionStatus summarizes an active live session.
type SessionStatus struct {
	ID            string `json:"id"`
	Path          string `json:"path"`
	Device        string `json:"device,omitempty"`
	StartedAt     string `json:"started_at"`
	Entries       int    `json:"entries"`
	Refined       int    `json:"refined"`
	PendingRefine int    `json:"pending_refine"`
	Dropped       uint64 `json:"dropped"`
	BytesCaptured int64  `json:"bytes_captured"`
}
