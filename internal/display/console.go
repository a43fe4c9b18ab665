// Package display prints live transcript entries to a terminal.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/rbright/lectern/internal/session"
)

const (
	ansiDim   = "\x1b[2m"
	ansiBold  = "\x1b[1m"
	ansiReset = "\x1b[0m"
)

// Console renders streaming drafts and their refinements as they arrive.
// Drafts are marked "~", refinements "=". On a terminal drafts are dimmed.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
	shown map[int]string
}

// NewConsole writes to out, enabling ANSI styling when out is a terminal.
func NewConsole(out io.Writer) *Console {
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) && os.Getenv("NO_COLOR") == ""
	}
	return &Console{out: out, color: color, shown: make(map[int]string)}
}

// Banner prints the session header.
func (c *Console) Banner(name string, device string, streamingModel string, refiningModel string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	title := "lectern live session " + name
	if c.color {
		title = ansiBold + title + ansiReset
	}
	fmt.Fprintln(c.out, title)
	fmt.Fprintf(c.out, "  device:    %s\n", device)
	fmt.Fprintf(c.out, "  streaming: %s\n", streamingModel)
	fmt.Fprintf(c.out, "  refining:  %s\n", refiningModel)
	fmt.Fprintln(c.out, strings.Repeat("-", 50))
}

// History prints entries carried over from a resumed session.
func (c *Console) History(entries []session.Entry) {
	for _, e := range entries {
		if e.Status == session.StatusRefined {
			c.EntryRefined(e)
			continue
		}
		c.EntryAdded(e)
	}
}

func (c *Console) EntryAdded(e session.Entry) {
	c.print(e, "~")
}

func (c *Console) EntryRefined(e session.Entry) {
	c.mu.Lock()
	same := c.shown[e.ID] == e.Text
	c.mu.Unlock()
	if same {
		return
	}
	c.print(e, "=")
}

// Summary prints the closing line after a session is saved.
func (c *Console) Summary(path string, entries int, refined int, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, strings.Repeat("-", 50))
	fmt.Fprintf(c.out, "%d entries (%d refined) in %s\n", entries, refined, elapsed.Round(time.Second))
	if path != "" {
		fmt.Fprintf(c.out, "saved %s\n", path)
	}
}

func (c *Console) print(e session.Entry, mark string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shown[e.ID] = e.Text
	line := fmt.Sprintf("[%s] %s #%d %s", clock(e.Offset), mark, e.ID, e.Text)
	if c.color && mark == "~" {
		line = ansiDim + line + ansiReset
	}
	fmt.Fprintln(c.out, line)
}

// clock renders an offset as MM:SS, or H:MM:SS past the hour.
func clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
