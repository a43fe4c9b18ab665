package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbright/lectern/internal/cli"
	"github.com/rbright/lectern/internal/config"
	"github.com/rbright/lectern/internal/pipeline"
	"github.com/rbright/lectern/internal/telemetry"
)

func (r Runner) commandFile(ctx context.Context, cfg config.Config, opts cli.FileOptions, logger *slog.Logger) int {
	mode, err := pipeline.ParseMode(opts.Mode)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	}
	if !config.IsSessionFormat(opts.Format) {
		fmt.Fprintf(r.Stderr, "error: unsupported format %q (expected txt, md, or json)\n", opts.Format)
		return 2
	}
	if opts.StreamingModel != "" {
		cfg.Streaming.Model = opts.StreamingModel
	}
	if opts.RefiningModel != "" {
		cfg.Refining.Model = opts.RefiningModel
	}

	wantStreaming := mode == pipeline.ModeTwoPass || mode == pipeline.ModeStream
	wantRefining := mode != pipeline.ModeStream

	var passes []config.PassConfig
	if wantStreaming {
		passes = append(passes, cfg.Streaming)
	}
	if wantRefining {
		passes = append(passes, cfg.Refining)
	}
	if err := r.ensureModels(ctx, cfg, logger, passes...); err != nil {
		return r.fail(err)
	}

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry setup failed; continuing without it", "error", err.Error())
		tel = telemetry.Disabled()
	}
	defer shutdownTelemetry(tel, logger)

	streaming, refining, err := newRecognizers(ctx, cfg, logger, wantStreaming, wantRefining)
	if err != nil {
		return r.fail(err)
	}
	defer closeRecognizers(streaming, refining)

	transcriber := &pipeline.FileTranscriber{
		SampleRate: cfg.Audio.SampleRate,
		FFmpeg:     cfg.Audio.FFmpeg.Argv,
		Streaming:  streaming,
		Refining:   refining,
		Metrics:    tel.Metrics,
		Tracer:     tel.Tracer(),
		Logger:     logger,
	}
	fmt.Fprintf(r.Stderr, "transcribing %s (%s)...\n", opts.Input, mode)

	result, err := transcriber.Transcribe(ctx, pipeline.FileJob{
		Input:       opts.Input,
		Output:      opts.Output,
		Mode:        mode,
		Format:      opts.Format,
		PartialPath: opts.Partial,
		StartTime:   time.Duration(opts.StartSeconds * float64(time.Second)),
	})
	if err != nil {
		return r.fail(err)
	}

	if result.StreamingOutput != "" {
		fmt.Fprintf(r.Stdout, "streaming draft: %s\n", result.StreamingOutput)
	}
	fmt.Fprintf(r.Stdout, "transcript: %s\n", result.Output)
	fmt.Fprintf(r.Stdout, "audio %s transcribed in %s%s\n",
		result.AudioDuration.Round(time.Second),
		result.Elapsed.Round(100*time.Millisecond),
		realtimeFactor(result.AudioDuration, result.Elapsed),
	)
	return 0
}

func realtimeFactor(audio, elapsed time.Duration) string {
	if audio <= 0 || elapsed <= 0 {
		return ""
	}
	return fmt.Sprintf(" (%.1fx realtime)", audio.Seconds()/elapsed.Seconds())
}
