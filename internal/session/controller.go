// Package session owns one live transcription run: lifecycle state, the
// transcript, and its exactly-once persistence.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rbright/lectern/internal/fsm"
	"github.com/rbright/lectern/internal/ipc"
)

// Engine is the capture and transcription pipeline driven by a Controller.
type Engine interface {
	// Start begins capture and the worker goroutines.
	Start(ctx context.Context) error
	// Stop ends capture and drains queued work until ctx is done.
	Stop(ctx context.Context) error
	// Done is closed when capture ends without a stop request, such as a
	// replayed file reaching its end or a device disappearing.
	Done() <-chan struct{}
	Status() EngineStatus
}

// EngineStatus is a point-in-time pipeline summary.
type EngineStatus struct {
	Device        string
	BytesCaptured int64
	Dropped       uint64
	PendingRefine int
}

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	State         fsm.State
	SessionID     string
	Path          string
	Entries       int
	Refined       int
	Interrupted   bool
	Err           error
	AudioDevice   string
	BytesCaptured int64
	Dropped       uint64
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowRecording(context.Context)
	ShowDraining(context.Context)
	ShowError(context.Context, string)
	ShowSaved(context.Context, string)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowRecording(context.Context)     {}
func (noopIndicator) ShowDraining(context.Context)      {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) ShowSaved(context.Context, string) {}

// Controller orchestrates session state transitions and side effects.
type Controller struct {
	logger       *slog.Logger
	engine       Engine
	transcript   *Transcript
	saver        *Saver
	indicator    Indicator
	drainTimeout time.Duration

	mu    sync.RWMutex
	state fsm.State

	stopRequests chan struct{}
}

// NewController wires a controller. A nil indicator disables cues.
func NewController(
	logger *slog.Logger,
	engine Engine,
	transcript *Transcript,
	saver *Saver,
	indicator Indicator,
	drainTimeout time.Duration,
) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if indicator == nil {
		indicator = noopIndicator{}
	}
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}

	return &Controller{
		logger:       logger,
		engine:       engine,
		transcript:   transcript,
		saver:        saver,
		indicator:    indicator,
		drainTimeout: drainTimeout,
		state:        fsm.StateIdle,
		stopRequests: make(chan struct{}, 1),
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Run records until ctx is done or a stop is requested, drains the pipeline,
// and saves the session file. Once recording has started the file is written
// exactly once, including when the run panics.
func (c *Controller) Run(ctx context.Context) (result Result) {
	result = Result{StartedAt: time.Now(), SessionID: c.transcript.ID()}

	if err := c.transition(fsm.EventStart); err != nil {
		result.State = c.State()
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}

	c.indicator.ShowRecording(ctx)

	if err := c.engine.Start(ctx); err != nil {
		c.indicator.ShowError(context.Background(), "Unable to start recording")
		c.toErrorAndReset()
		result.State = c.State()
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("live session panic", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			c.indicator.ShowError(context.Background(), "Session crashed; transcript saved")
			c.toErrorAndReset()
			c.finish(&result)
			result.Err = errors.Join(fmt.Errorf("session panic: %v", r), result.Err)
		}
	}()

	select {
	case <-ctx.Done():
		result.Interrupted = true
		c.logger.Info("live session interrupted", "cause", context.Cause(ctx).Error())
	case <-c.stopRequests:
		c.logger.Info("live session stop requested")
	case <-c.engine.Done():
		c.logger.Info("live session capture ended")
	}

	if err := c.transition(fsm.EventStop); err != nil {
		c.toErrorAndReset()
		c.finish(&result)
		result.Err = errors.Join(err, result.Err)
		return result
	}
	c.indicator.ShowDraining(context.Background())

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.drainTimeout)
	stopErr := c.engine.Stop(drainCtx)
	cancel()
	if stopErr != nil {
		c.logger.Warn("pipeline drain incomplete", "error", stopErr.Error())
	}

	c.finish(&result)
	if result.Err != nil {
		c.indicator.ShowError(context.Background(), "Session save failed")
		c.toErrorAndReset()
		result.State = c.State()
		return result
	}

	_ = c.transition(fsm.EventDrained)
	result.State = c.State()
	c.indicator.ShowSaved(context.Background(), result.Path)
	return result
}

// finish saves the session and fills result counters.
func (c *Controller) finish(result *Result) {
	path, err := c.saver.Save()
	if err != nil && !errors.Is(err, ErrAlreadySaved) {
		result.Err = err
	}
	result.Path = path
	result.Entries, result.Refined = c.transcript.Counts()

	status := c.engine.Status()
	result.AudioDevice = status.Device
	result.BytesCaptured = status.BytesCaptured
	result.Dropped = status.Dropped
	result.State = c.State()
	result.FinishedAt = time.Now()
}

// Handle serves IPC commands for the active live session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.Response{OK: true, State: string(c.State()), Message: "status", Session: c.SessionStatus()}
	case ipc.CommandStop:
		return c.requestStop()
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// RequestStop asks Run to stop recording, as the IPC stop command does.
func (c *Controller) RequestStop() ipc.Response {
	return c.requestStop()
}

func (c *Controller) requestStop() ipc.Response {
	state := c.State()
	if state == fsm.StateDraining {
		return ipc.Response{OK: false, State: string(state), Error: "already draining"}
	}
	if state != fsm.StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot stop from state %s", state)}
	}

	select {
	case c.stopRequests <- struct{}{}:
		return ipc.Response{OK: true, State: string(state), Message: "stop requested", Session: c.SessionStatus()}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "stop already requested"}
	}
}

// SessionStatus summarizes the session for status requests and the live view.
func (c *Controller) SessionStatus() *ipc.SessionStatus {
	if c == nil {
		return nil
	}
	total, refined := c.transcript.Counts()
	engine := c.engine.Status()
	return &ipc.SessionStatus{
		ID:            c.transcript.ID(),
		Path:          c.saver.Path(),
		Device:        engine.Device,
		StartedAt:     c.transcript.StartedAt().Format(time.RFC3339),
		Entries:       total,
		Refined:       refined,
		PendingRefine: engine.PendingRefine,
		Dropped:       engine.Dropped,
		BytesCaptured: engine.BytesCaptured,
	}
}

// toErrorAndReset transitions to error and back to idle best-effort.
func (c *Controller) toErrorAndReset() {
	_ = c.transition(fsm.EventFail)
	_ = c.transition(fsm.EventReset)
}
