// Package indicator shows live-session state as desktop notifications and
// plays short audio cues as the session starts, drains, saves, or fails.
package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rbright/lectern/internal/config"
)

// backend delivers one notification surface.
type backend interface {
	notify(ctx context.Context, text string, timeoutMS int) error
	dismiss(ctx context.Context) error
}

// messages are the notification texts for each session state.
type messages struct {
	recording string
	draining  string
	saved     string
	errorText string
}

var lectureMessages = messages{
	recording: "Recording lecture…",
	draining:  "Finishing transcription…",
	saved:     "Transcript saved: %s",
	errorText: "Transcription error",
}

const savedTimeoutMS = 3000

// Notifier implements the session indicator over the configured backend.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	backend  backend

	soundMu sync.Mutex
	play    func(cueKind, config.IndicatorConfig) error
}

// New creates a notifier from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	appName := strings.TrimSpace(cfg.DesktopAppName)
	if appName == "" {
		appName = "lectern"
	}

	var b backend
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "beeep":
		b = &beeepBackend{title: appName}
	default:
		b = &desktopBackend{appName: appName}
	}

	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: lectureMessages,
		backend:  b,
		play:     emitCue,
	}
}

// ShowRecording announces capture and plays the start cue.
func (n *Notifier) ShowRecording(ctx context.Context) {
	n.playCue(cueStart)
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.backend.notify(ctx, n.messages.recording, 0)
	})
}

// ShowDraining announces that capture stopped and queued audio is finishing.
func (n *Notifier) ShowDraining(ctx context.Context) {
	n.playCue(cueDraining)
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.backend.notify(ctx, n.messages.draining, 0)
	})
}

// ShowError displays text, or the default error message when text is empty.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	n.playCue(cueError)
	if !n.cfg.Enable {
		return
	}
	if text == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.backend.notify(ctx, text, timeout)
	})
}

// ShowSaved replaces the session bubble with a short-lived saved notice.
// An empty path means nothing was written, so the bubble is dismissed.
func (n *Notifier) ShowSaved(ctx context.Context, path string) {
	n.playCue(cueSaved)
	if !n.cfg.Enable {
		return
	}
	if path == "" {
		n.run(ctx, n.backend.dismiss)
		return
	}
	text := fmt.Sprintf(n.messages.saved, filepath.Base(path))
	n.run(ctx, func(ctx context.Context) error {
		return n.backend.notify(ctx, text, savedTimeoutMS)
	})
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := n.play(kind, n.cfg); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
