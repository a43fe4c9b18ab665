// Package output hands finished text to desktop side channels.
package output

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const clipboardTimeout = 2 * time.Second

// Clipboard pipes text into a clipboard command such as wl-copy.
type Clipboard struct {
	argv   []string
	logger *slog.Logger
}

// NewClipboard returns a clipboard writer. An empty argv disables copying.
func NewClipboard(argv []string, logger *slog.Logger) *Clipboard {
	return &Clipboard{argv: argv, logger: logger}
}

// Copy writes text to the clipboard command's stdin.
func (c *Clipboard) Copy(ctx context.Context, text string) error {
	if c == nil || len(c.argv) == 0 || strings.TrimSpace(text) == "" {
		return nil
	}

	copyCtx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	if err := runCommandWithInput(copyCtx, c.argv, text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	if c.logger != nil {
		c.logger.Debug("clipboard set", "command", c.argv[0], "chars", len(text))
	}
	return nil
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
