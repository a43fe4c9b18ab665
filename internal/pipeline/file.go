package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rbright/lectern/internal/asr"
	"github.com/rbright/lectern/internal/audio"
	"github.com/rbright/lectern/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Mode selects how a file is transcribed.
type Mode string

const (
	ModeTwoPass Mode = "two-pass"
	ModeStream  Mode = "stream"
	ModeRefine  Mode = "refine"
	ModeResume  Mode = "resume"
)

// Modes lists the accepted file modes.
func Modes() []Mode {
	return []Mode{ModeTwoPass, ModeStream, ModeRefine, ModeResume}
}

// ParseMode validates a --mode value. Empty selects two-pass.
func ParseMode(raw string) (Mode, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ModeTwoPass, nil
	}
	for _, mode := range Modes() {
		if string(mode) == raw {
			return mode, nil
		}
	}
	return "", fmt.Errorf("unsupported mode %q (expected two-pass, stream, refine, or resume)", raw)
}

// FileJob describes one file transcription.
type FileJob struct {
	Input  string
	Output string
	Mode   Mode
	Format string
	// PartialPath holds the transcript so far for resume mode.
	PartialPath string
	StartTime   time.Duration
}

// FileResult reports what a file transcription produced.
type FileResult struct {
	Output          string
	StreamingOutput string
	Text            string
	Draft           string
	Model           string
	AudioDuration   time.Duration
	Elapsed         time.Duration
}

// FileTranscriber runs whole-file passes.
type FileTranscriber struct {
	SampleRate int
	FFmpeg     []string
	Streaming  asr.Recognizer
	Refining   asr.Recognizer
	Metrics    *telemetry.Metrics
	Tracer     trace.Tracer
	Logger     *slog.Logger
	Now        func() time.Time
}

// Transcribe decodes job.Input, runs the selected passes, and writes the
// output file.
func (f *FileTranscriber) Transcribe(ctx context.Context, job FileJob) (FileResult, error) {
	f.defaults()
	started := f.Now()

	if job.Mode == "" {
		job.Mode = ModeTwoPass
	}
	if job.Format == "" {
		job.Format = "txt"
	}
	if job.Output == "" {
		job.Output = DefaultOutput(job.Input, job.Format)
	}

	pcm, err := audio.DecodeFile(ctx, job.Input, f.SampleRate, f.FFmpeg)
	if err != nil {
		return FileResult{}, err
	}
	format := audio.Format{SampleRate: f.SampleRate}
	result := FileResult{Output: job.Output, AudioDuration: format.Duration(len(pcm))}

	f.Logger.Info("file transcription start",
		"input", job.Input,
		"mode", string(job.Mode),
		"audio_seconds", result.AudioDuration.Seconds(),
	)

	req := asr.Request{PCM: pcm, SampleRate: f.SampleRate}
	switch job.Mode {
	case ModeStream:
		result.Model, result.Text, err = f.pass(ctx, passStreaming, f.Streaming, req)
	case ModeRefine:
		result.Model, result.Text, err = f.pass(ctx, passRefining, f.Refining, req)
	case ModeTwoPass:
		err = f.twoPass(ctx, req, job, &result)
	case ModeResume:
		err = f.resume(ctx, req, job, &result)
	default:
		err = fmt.Errorf("unsupported mode %q", job.Mode)
	}
	if err != nil {
		return result, err
	}

	data, err := RenderFile(result.Text, job.Format, result.Model, f.Now())
	if err != nil {
		return result, err
	}
	if err := writeFile(job.Output, data); err != nil {
		return result, err
	}

	result.Elapsed = f.Now().Sub(started)
	f.Logger.Info("file transcription complete",
		"output", job.Output,
		"chars", len(result.Text),
		"elapsed_ms", result.Elapsed.Milliseconds(),
	)
	return result, nil
}

// twoPass runs streaming then refining with the draft as the prompt. A
// failed streaming pass falls back to plain refining; a failed refining
// pass keeps the draft.
func (f *FileTranscriber) twoPass(ctx context.Context, req asr.Request, job FileJob, result *FileResult) error {
	_, draft, streamErr := f.pass(ctx, passStreaming, f.Streaming, req)
	if streamErr != nil {
		f.Logger.Warn("streaming pass failed; refining without draft", "error", streamErr.Error())
		model, text, err := f.pass(ctx, passRefining, f.Refining, req)
		if err != nil {
			return errors.Join(streamErr, err)
		}
		result.Model, result.Text = model, text
		return nil
	}

	result.Draft = draft
	result.StreamingOutput = StreamingOutput(job.Input, job.Output)
	if err := writeFile(result.StreamingOutput, []byte(draft)); err != nil {
		return err
	}

	req.Prompt = draft
	model, text, err := f.pass(ctx, passRefining, f.Refining, req)
	if err != nil {
		f.Logger.Warn("refining pass failed; keeping streaming draft", "error", err.Error())
		result.Model, result.Text = f.Streaming.Name(), draft
		return nil
	}
	result.Model, result.Text = model, text
	return nil
}

// resume continues a partial transcript from job.StartTime.
func (f *FileTranscriber) resume(ctx context.Context, req asr.Request, job FileJob, result *FileResult) error {
	if strings.TrimSpace(job.PartialPath) == "" {
		return errors.New("resume mode requires --partial")
	}
	raw, err := os.ReadFile(job.PartialPath)
	if err != nil {
		return fmt.Errorf("read partial transcript: %w", err)
	}
	partial := strings.TrimSpace(string(raw))

	req.Prompt = ResumePrompt(job.StartTime, partial)
	req.Offset = job.StartTime
	req.Args = []string{"--max-tokens", "0", "--beam-size", "5"}

	model, text, err := f.pass(ctx, passRefining, f.Refining, req)
	if err != nil {
		return err
	}
	result.Model = model
	result.Text = strings.TrimSpace(partial + " " + text)
	return nil
}

func (f *FileTranscriber) pass(ctx context.Context, pass string, r asr.Recognizer, req asr.Request) (string, string, error) {
	if r == nil {
		return "", "", fmt.Errorf("%s recognizer is not configured", pass)
	}
	text, err := recognize(ctx, f.Tracer, f.Metrics, f.Logger, pass, r, req)
	if err != nil {
		return r.Name(), "", fmt.Errorf("%s pass: %w", pass, err)
	}
	return r.Name(), text, nil
}

func (f *FileTranscriber) defaults() {
	if f.Logger == nil {
		f.Logger = slog.New(slog.DiscardHandler)
	}
	if f.Tracer == nil {
		f.Tracer = telemetry.Disabled().Tracer()
	}
	if f.Now == nil {
		f.Now = time.Now
	}
	if f.SampleRate <= 0 {
		f.SampleRate = 16000
	}
}

// ResumePrompt seeds the recognizer with the transcript so far.
func ResumePrompt(start time.Duration, partial string) string {
	return "Continuing from timestamp " + strconv.FormatFloat(start.Seconds(), 'f', -1, 64) + "s: " + partial
}

// DefaultOutput is <dir>/<stem>_transcript.<format> next to the input.
func DefaultOutput(input, format string) string {
	return filepath.Join(filepath.Dir(input), stem(input)+"_transcript."+format)
}

// StreamingOutput is the draft path written beside the final output.
func StreamingOutput(input, output string) string {
	return filepath.Join(filepath.Dir(output), stem(input)+"_streaming.txt")
}

// RenderFile formats a file transcript.
func RenderFile(text, format, model string, now time.Time) ([]byte, error) {
	switch format {
	case "", "txt":
		return []byte(text), nil
	case "md":
		return []byte("# Lecture Transcript\n\n" + text), nil
	case "json":
		return json.MarshalIndent(struct {
			Transcript string `json:"transcript"`
			Timestamp  string `json:"timestamp"`
			Model      string `json:"model"`
		}{text, now.Format(time.RFC3339), model}, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
