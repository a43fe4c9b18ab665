// Package version carries build metadata injected with -ldflags.
package version

import "runtime"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the full build line printed by `lectern version`.
func String() string {
	return "lectern " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// UserAgent identifies lectern in outbound HTTP requests.
func UserAgent() string {
	return "lectern/" + Version
}
