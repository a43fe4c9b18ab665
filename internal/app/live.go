package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbright/lectern/internal/asr"
	"github.com/rbright/lectern/internal/audio"
	"github.com/rbright/lectern/internal/bus"
	"github.com/rbright/lectern/internal/cli"
	"github.com/rbright/lectern/internal/config"
	"github.com/rbright/lectern/internal/display"
	"github.com/rbright/lectern/internal/indicator"
	"github.com/rbright/lectern/internal/ipc"
	"github.com/rbright/lectern/internal/liveview"
	"github.com/rbright/lectern/internal/memory"
	"github.com/rbright/lectern/internal/pipeline"
	"github.com/rbright/lectern/internal/session"
	"github.com/rbright/lectern/internal/store"
	"github.com/rbright/lectern/internal/telemetry"
)

// commandLive owns the runtime socket for the duration of one live session.
func (r Runner) commandLive(ctx context.Context, cfg config.Config, opts cli.LiveOptions, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return r.fail(err)
	}
	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintf(r.Stderr, "error: %v (use `lectern stop`)\n", err)
			return 1
		}
		return r.fail(err)
	}
	defer func() {
		if err := ipc.Release(listener, socketPath); err != nil {
			logger.Warn("release runtime socket failed", "error", err.Error())
		}
	}()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry setup failed; continuing without it", "error", err.Error())
		tel = telemetry.Disabled()
	}
	defer shutdownTelemetry(tel, logger)

	if err := r.ensureModels(ctx, cfg, logger, cfg.Streaming, cfg.Refining); err != nil {
		return r.fail(err)
	}
	streaming, refining, err := newRecognizers(ctx, cfg, logger, true, true)
	if err != nil {
		return r.fail(err)
	}
	defer closeRecognizers(streaming, refining)

	archive := openArchive(ctx, cfg, logger)
	if archive != nil {
		defer archive.Close()
	}

	transcript, err := loadTranscript(ctx, archive, opts.Session, cfg.Refining.Model)
	if err != nil {
		return r.fail(err)
	}
	saver := session.NewSaver(transcript, cfg.Session.Dir, cfg.Session.Format, logger)

	console := display.NewConsole(r.Stdout)
	observers := []pipeline.Observer{console}

	if archive != nil {
		if err := archive.BeginSession(ctx, transcript.Snapshot()); err != nil {
			logger.Warn("archive session start failed", "error", err.Error())
		} else {
			observers = append(observers, archive.Recorder(ctx, transcript.ID()))
			saver.OnSaved(func(snap session.Snapshot, path string) {
				if err := archive.SaveSnapshot(context.WithoutCancel(ctx), snap, path); err != nil {
					logger.Warn("archive snapshot failed", "error", err.Error())
				}
			})
		}
	}

	if cfg.Bus.Enable {
		publisher, err := bus.Connect(ctx, cfg.Bus, logger)
		if err != nil {
			logger.Warn("event bus unavailable; continuing without it", "error", err.Error())
		} else {
			defer publisher.Close()
			events := publisher.ForSession(transcript.ID(), transcript.Name())
			observers = append(observers, events)
			saver.OnSaved(events.Saved)
		}
	}

	var controller *session.Controller
	var view *liveview.Server
	if cfg.LiveView.Enable && !opts.NoWeb {
		view = liveview.New(liveview.Options{
			Bind:     cfg.LiveView.Bind,
			Snapshot: transcript.Snapshot,
			Status:   func() *ipc.SessionStatus { return controller.SessionStatus() },
			Metrics:  tel.Handler,
			Logger:   logger,
		})
		observers = append(observers, view)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	watchdog := startWatchdog(runCtx, cfg.Memory, tel.Metrics, logger)

	engineCfg := pipeline.ConfigFrom(cfg)
	open, device, err := streamOpener(ctx, cfg, opts.Replay, engineCfg.Format, logger)
	if err != nil {
		return r.fail(err)
	}
	engineCfg.Lossless = opts.Replay != ""

	engine := pipeline.NewEngine(engineCfg, pipeline.Deps{
		Open:       open,
		Streaming:  streaming,
		Refining:   refining,
		Transcript: transcript,
		Observers:  observers,
		Metrics:    tel.Metrics,
		Tracer:     tel.Tracer(),
		Watchdog:   watchdog,
		Logger:     logger,
	})
	controller = session.NewController(
		logger,
		engine,
		transcript,
		saver,
		indicator.New(cfg.Indicator, logger),
		cfg.Session.DrainTimeout,
	)

	// The view serves only once controller is set; its handlers read it.
	if view != nil {
		if err := view.Start(); err != nil {
			logger.Warn("live view unavailable", "bind", cfg.LiveView.Bind, "error", err.Error())
			view = nil
		}
	}

	go saver.Autosave(runCtx, cfg.Session.AutosaveInterval)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(runCtx, listener, controller)
	}()

	console.Banner(transcript.Name(), device, passLabel(cfg.Streaming), passLabel(cfg.Refining))
	if view != nil {
		fmt.Fprintf(r.Stdout, "live view: http://%s\n", view.Addr())
	}
	console.History(transcript.Snapshot().Entries)

	result := controller.Run(ctx)
	cancelRun()
	if view != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = view.Shutdown(shutdownCtx)
		cancel()
	}
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logSessionResult(logger, result)
	console.Summary(result.Path, result.Entries, result.Refined, result.FinishedAt.Sub(result.StartedAt))

	if result.Err != nil {
		return r.fail(result.Err)
	}
	return 0
}

// loadTranscript starts a fresh transcript, or resumes a named session from
// the archive.
func loadTranscript(ctx context.Context, archive *store.Store, name string, model string) (*session.Transcript, error) {
	if name == "" {
		return session.NewTranscript(time.Now(), model), nil
	}
	if archive == nil {
		return nil, errors.New("--session needs the session archive (store.enable)")
	}
	snap, err := archive.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resume session %q: %w", name, err)
	}
	return session.Resume(snap, model), nil
}

// streamOpener returns the capture opener and a label for the banner. A
// replay path feeds the file through the live pipeline in real time.
func streamOpener(ctx context.Context, cfg config.Config, replay string, format audio.Format, logger *slog.Logger) (pipeline.Opener, string, error) {
	if replay != "" {
		pcm, err := audio.DecodeFile(ctx, replay, cfg.Audio.SampleRate, cfg.Audio.FFmpeg.Argv)
		if err != nil {
			return nil, "", err
		}
		open := func(ctx context.Context) (audio.Stream, error) {
			return audio.NewFileStream(ctx, replay, pcm, format, true), nil
		}
		return open, "file:" + replay, nil
	}

	open := func(ctx context.Context) (audio.Stream, error) {
		stream, selection, err := audio.Open(ctx, audio.Options{
			Backend:  cfg.Audio.Backend,
			Input:    cfg.Audio.Input,
			Fallback: cfg.Audio.Fallback,
			Format:   format,
		})
		if selection.Warning != "" {
			logger.Warn("audio device fallback", "warning", selection.Warning)
		}
		return stream, err
	}
	return open, cfg.Audio.Input, nil
}

// openArchive opens the SQLite archive when enabled. Failures degrade to
// file-only persistence.
func openArchive(ctx context.Context, cfg config.Config, logger *slog.Logger) *store.Store {
	if !cfg.Store.Enable {
		return nil
	}
	path, err := cfg.StorePath()
	if err != nil {
		logger.Warn("archive path unavailable", "error", err.Error())
		return nil
	}
	archive, err := store.Open(ctx, store.Options{Path: path, RetentionDays: cfg.Store.RetentionDays, Logger: logger})
	if err != nil {
		logger.Warn("archive unavailable; continuing without it", "path", path, "error", err.Error())
		return nil
	}
	return archive
}

func startWatchdog(ctx context.Context, cfg config.MemoryConfig, metrics *telemetry.Metrics, logger *slog.Logger) *memory.Watchdog {
	if !cfg.Enable {
		return nil
	}
	sampler, err := memory.NewProcessSampler(ctx)
	if err != nil {
		logger.Warn("memory watchdog disabled", "error", err.Error())
		return nil
	}
	watchdog := memory.New(memory.Options{
		CheckInterval:   cfg.CheckInterval,
		CleanupInterval: cfg.CleanupInterval,
		WarnMB:          cfg.WarnMB,
		CleanupMB:       cfg.CleanupMB,
		Sampler:         sampler,
		Logger:          logger,
		OnCleanup: func(_, after memory.Sample) {
			metrics.MemoryCleanup(ctx, after.RSSMB())
		},
	})
	go watchdog.Run(ctx)
	return watchdog
}

// newRecognizers builds the requested pass recognizers.
func newRecognizers(ctx context.Context, cfg config.Config, logger *slog.Logger, wantStreaming, wantRefining bool) (asr.Recognizer, asr.Recognizer, error) {
	var streaming, refining asr.Recognizer
	var err error
	if wantStreaming {
		streaming, err = asr.New(ctx, asr.Options{
			Name:      "streaming",
			Pass:      cfg.Streaming,
			ModelPath: cfg.ModelPath(cfg.Streaming.Model),
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("streaming recognizer: %w", err)
		}
	}
	if wantRefining {
		refining, err = asr.New(ctx, asr.Options{
			Name:      "refining",
			Pass:      cfg.Refining,
			ModelPath: cfg.ModelPath(cfg.Refining.Model),
			Logger:    logger,
		})
		if err != nil {
			closeRecognizers(streaming)
			return nil, nil, fmt.Errorf("refining recognizer: %w", err)
		}
	}
	return streaming, refining, nil
}

// passLabel names a pass by backend and model for display.
func passLabel(pass config.PassConfig) string {
	backend := pass.Backend
	if backend == "" {
		backend = "exec"
	}
	if pass.Model == "" {
		return backend
	}
	return backend + ":" + pass.Model
}

func closeRecognizers(recognizers ...asr.Recognizer) {
	for _, r := range recognizers {
		if r != nil {
			_ = r.Close()
		}
	}
}

func shutdownTelemetry(tel *telemetry.Provider, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown failed", "error", err.Error())
	}
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", result.State,
		"session_id", result.SessionID,
		"path", result.Path,
		"interrupted", result.Interrupted,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"audio_device", result.AudioDevice,
		"bytes_captured", result.BytesCaptured,
		"dropped", result.Dropped,
		"entries", result.Entries,
		"refined", result.Refined,
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}
