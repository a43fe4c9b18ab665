package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	stemPrefix = "session_"
	stemLayout = "20060102_150405"
)

// StemFor names the session file for a start time.
func StemFor(startedAt time.Time) string {
	return stemPrefix + startedAt.Format(stemLayout)
}

// FileName returns the session file name for a stem and format.
func FileName(stem string, format string) string {
	return stem + "." + format
}

// DateFromStem extracts the YYYYMMDD portion of a session stem.
func DateFromStem(stem string) string {
	date := strings.TrimPrefix(filepath.Base(stem), stemPrefix)
	if len(date) > 8 {
		date = date[:8]
	}
	return date
}

// Render serializes a snapshot in txt, md, or json form.
func Render(snap Snapshot, format string) ([]byte, error) {
	switch format {
	case "txt":
		return renderText(snap), nil
	case "md":
		return renderMarkdown(snap), nil
	case "json":
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode session json: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported session format %q", format)
	}
}

func renderText(snap Snapshot) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Transcription Session - %s\n", snap.StartedAt.Format(time.DateTime))
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString("\n\n")
	for _, entry := range snap.Entries {
		fmt.Fprintf(&b, "[%s] %s\n\n", entry.Status, entry.Text)
	}
	return b.Bytes()
}

func renderMarkdown(snap Snapshot) []byte {
	var b bytes.Buffer
	b.WriteString("# Lecture Transcript\n\n")
	fmt.Fprintf(&b, "_Session %s", snap.StartedAt.Format(time.DateTime))
	if snap.Model != "" {
		fmt.Fprintf(&b, " · %s", snap.Model)
	}
	b.WriteString("_\n\n")
	for _, entry := range snap.Entries {
		if entry.Status == StatusSystem {
			fmt.Fprintf(&b, "> %s\n\n", entry.Text)
			continue
		}
		fmt.Fprintf(&b, "%s\n\n", entry.Text)
	}
	return b.Bytes()
}
