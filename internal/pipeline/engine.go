// Package pipeline runs the two-pass transcription pipeline: a fast
// streaming pass that assembles sentences for live display, and a slower
// refining pass that re-transcribes each emitted segment.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rbright/lectern/internal/asr"
	"github.com/rbright/lectern/internal/audio"
	"github.com/rbright/lectern/internal/config"
	"github.com/rbright/lectern/internal/memory"
	"github.com/rbright/lectern/internal/queue"
	"github.com/rbright/lectern/internal/session"
	"github.com/rbright/lectern/internal/telemetry"
	"github.com/rbright/lectern/internal/transcript"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	passStreaming = "streaming"
	passRefining  = "refining"

	// maxSegment bounds the audio handed to one refine call.
	maxSegment = 30 * time.Second
)

// Observer receives transcript changes as the workers produce them.
// Callbacks run on worker goroutines and must not block for long.
type Observer interface {
	EntryAdded(session.Entry)
	EntryRefined(session.Entry)
}

// Opener starts the capture stream for one run.
type Opener func(ctx context.Context) (audio.Stream, error)

// Config tunes queue sizing and sentence assembly.
type Config struct {
	Format             audio.Format
	AudioCapacity      int
	RefineCapacity     int
	RetryDelay         time.Duration
	Sentence           transcript.BufferOptions
	MinTranscriptChars int
	// SegmentChunks caps how many chunks one refine job covers.
	SegmentChunks int
	// Lossless makes producers block on a full queue instead of dropping.
	// File replay uses it; live capture does not.
	Lossless bool
}

// ConfigFrom derives engine settings from runtime config.
func ConfigFrom(cfg config.Config) Config {
	format := audio.Format{SampleRate: cfg.Audio.SampleRate, ChunkBytes: cfg.Audio.ChunkBytes()}
	segment := 1
	if cfg.Audio.ChunkSeconds > 0 {
		segment = max(1, int(maxSegment.Seconds()/cfg.Audio.ChunkSeconds))
	}
	return Config{
		Format:         format,
		AudioCapacity:  cfg.Queue.AudioCapacity,
		RefineCapacity: cfg.Queue.RefineCapacity,
		RetryDelay:     cfg.Queue.RetryDelay,
		Sentence: transcript.BufferOptions{
			MinChars:   cfg.Sentence.MinChars,
			MaxChars:   cfg.Sentence.MaxBufferChars,
			Capitalize: true,
		},
		MinTranscriptChars: cfg.Sentence.MinTranscriptChars,
		SegmentChunks:      segment,
	}
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	Open       Opener
	Streaming  asr.Recognizer
	Refining   asr.Recognizer
	Transcript *session.Transcript
	Observers  []Observer
	Metrics    *telemetry.Metrics
	Tracer     trace.Tracer
	Watchdog   *memory.Watchdog
	Logger     *slog.Logger
}

type refineJob struct {
	entryID int
	pcm     []byte
	draft   string
	offset  time.Duration
}

// Engine owns one capture stream and the two transcription workers.
type Engine struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	audioQ  *queue.Bounded[audio.Chunk]
	refineQ *queue.Bounded[refineJob]

	mu      sync.Mutex
	started bool
	stream  audio.Stream
	cancel  context.CancelFunc
	workErr error

	captureDone chan struct{}
	streamDone  chan struct{}
	refineDone  chan struct{}

	// Owned by the streaming worker.
	buffer  *transcript.SentenceBuffer
	pending []audio.Chunk
}

// NewEngine wires an engine; Start begins capture.
func NewEngine(cfg Config, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.Disabled().Tracer()
	}
	if cfg.SegmentChunks <= 0 {
		cfg.SegmentChunks = 1
	}

	onDrop := func(name string) { deps.Metrics.Dropped(context.Background(), name) }
	opts := queue.Options{RetryDelay: cfg.RetryDelay, Logger: deps.Logger, OnDrop: onDrop}

	return &Engine{
		cfg:         cfg,
		deps:        deps,
		log:         deps.Logger,
		audioQ:      queue.New[audio.Chunk]("audio", cfg.AudioCapacity, opts),
		refineQ:     queue.New[refineJob]("refine", cfg.RefineCapacity, opts),
		captureDone: make(chan struct{}),
		streamDone:  make(chan struct{}),
		refineDone:  make(chan struct{}),
		buffer:      transcript.NewSentenceBuffer(cfg.Sentence),
	}
}

// Start opens capture and launches the forwarder and both workers. Workers
// run on a context detached from ctx so they can drain after ctx ends.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return errors.New("pipeline already started")
	}
	if e.deps.Open == nil || e.deps.Streaming == nil || e.deps.Transcript == nil {
		return errors.New("pipeline is missing capture, recognizer, or transcript")
	}

	stream, err := e.deps.Open(ctx)
	if err != nil {
		return err
	}
	e.stream = stream

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel

	go e.forward(workCtx, stream)
	go e.streamLoop(workCtx)
	if e.deps.Refining != nil {
		go e.refineLoop(workCtx)
	} else {
		go func() {
			defer close(e.refineDone)
			for {
				if _, err := e.refineQ.Get(workCtx); err != nil {
					return
				}
			}
		}()
	}

	if e.deps.Watchdog != nil {
		e.deps.Watchdog.AddCleaner("audio_queue", e.audioQ.Drain)
		e.deps.Watchdog.AddCleaner("capture_pending", stream.DiscardPending)
	}
	if err := e.deps.Metrics.ObserveQueues(map[string]func() int{
		e.audioQ.Name():  e.audioQ.Len,
		e.refineQ.Name(): e.refineQ.Len,
	}); err != nil {
		e.log.Warn("queue depth metrics unavailable", "error", err.Error())
	}

	e.started = true
	e.log.Info("pipeline started",
		"device", stream.Describe(),
		"streaming", e.deps.Streaming.Name(),
		"refining", recognizerName(e.deps.Refining),
		"segment_chunks", e.cfg.SegmentChunks,
	)
	return nil
}

// Stop ends capture and waits for both workers to drain. When ctx expires
// first the workers are cancelled and the remaining work is abandoned.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	started, stream, cancel := e.started, e.stream, e.cancel
	e.mu.Unlock()
	if !started {
		return nil
	}
	defer cancel()

	stopErr := stream.Stop()

	drained := make(chan struct{})
	go func() {
		<-e.streamDone
		<-e.refineDone
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		cancel()
		<-drained
		e.log.Warn("pipeline drain timed out",
			"audio_left", e.audioQ.Len(),
			"refine_left", e.refineQ.Len(),
		)
		return errors.Join(fmt.Errorf("drain pipeline: %w", ctx.Err()), stopErr)
	}

	e.mu.Lock()
	workErr := e.workErr
	e.mu.Unlock()
	return errors.Join(stopErr, workErr)
}

// Done is closed once capture has ended and the audio queue is closed.
func (e *Engine) Done() <-chan struct{} {
	return e.captureDone
}

// Status reports capture and queue counters.
func (e *Engine) Status() session.EngineStatus {
	e.mu.Lock()
	stream := e.stream
	e.mu.Unlock()

	status := session.EngineStatus{
		Dropped:       e.audioQ.Dropped() + e.refineQ.Dropped(),
		PendingRefine: e.refineQ.Len(),
	}
	if stream != nil {
		status.Device = stream.Describe()
		status.BytesCaptured = stream.BytesCaptured()
	}
	return status
}

// forward moves captured chunks into the audio queue and closes it when
// capture ends.
func (e *Engine) forward(ctx context.Context, stream audio.Stream) {
	defer close(e.captureDone)
	defer e.audioQ.Close()

	for chunk := range stream.Chunks() {
		e.deps.Metrics.ChunkCaptured(ctx)

		var err error
		if e.cfg.Lossless {
			err = e.audioQ.Put(ctx, chunk)
		} else {
			err = e.audioQ.PutWithRetry(ctx, chunk)
		}
		switch {
		case err == nil, errors.Is(err, queue.ErrDropped):
		default:
			e.log.Warn("capture forwarding stopped", "error", err.Error())
			go func() { _ = stream.Stop() }()
			for range stream.Chunks() {
			}
			return
		}
	}
}

func (e *Engine) streamLoop(ctx context.Context) {
	defer close(e.streamDone)
	defer e.refineQ.Close()
	defer e.recoverWorker(passStreaming)

	for {
		chunk, err := e.audioQ.Get(ctx)
		if err != nil {
			break
		}
		e.handleChunk(ctx, chunk)
	}
	e.flush(ctx)
}

// handleChunk recognizes one chunk and emits an entry when sentences
// complete or the segment grows past SegmentChunks.
func (e *Engine) handleChunk(ctx context.Context, chunk audio.Chunk) {
	e.pending = append(e.pending, chunk)

	text, err := e.recognize(ctx, passStreaming, e.deps.Streaming, asr.Request{
		PCM:        chunk.PCM,
		SampleRate: e.cfg.Format.SampleRate,
	})
	if err == nil && utf8.RuneCountInString(text) >= e.cfg.MinTranscriptChars {
		sentences, forced := e.buffer.Append(text)
		if len(sentences) > 0 {
			if forced {
				e.log.Debug("sentence buffer force-flushed", "seq", chunk.Seq)
			}
			e.emit(ctx, sentences)
			return
		}
	}

	if len(e.pending) >= e.cfg.SegmentChunks {
		e.flush(ctx)
	}
}

// flush emits whatever the buffer holds, or drops pending audio that
// produced no text.
func (e *Engine) flush(ctx context.Context) {
	if rest, ok := e.buffer.Flush(); ok {
		e.emit(ctx, []string{rest})
		return
	}
	e.pending = nil
}

// emit records one streaming entry covering every pending chunk and queues
// the same audio for refinement. A trailing fragment still in the buffer is
// folded into the entry so each entry maps to exactly its own audio.
func (e *Engine) emit(ctx context.Context, sentences []string) {
	if rest, ok := e.buffer.Flush(); ok {
		sentences = append(sentences, rest)
	}
	if len(e.pending) == 0 {
		return
	}

	draft := strings.Join(sentences, " ")
	first := e.pending[0]
	entry := e.deps.Transcript.Add(draft, session.StatusStreaming, first.Seq, first.Offset)
	e.deps.Metrics.EntryRecorded(ctx, string(session.StatusStreaming))
	for _, o := range e.deps.Observers {
		o.EntryAdded(entry)
	}

	job := refineJob{
		entryID: entry.ID,
		pcm:     concatPCM(e.pending),
		draft:   draft,
		offset:  first.Offset,
	}
	e.pending = nil

	if e.deps.Refining == nil {
		return
	}
	var err error
	if e.cfg.Lossless {
		err = e.refineQ.Put(ctx, job)
	} else {
		err = e.refineQ.PutWithRetry(ctx, job)
	}
	if err != nil && !errors.Is(err, queue.ErrDropped) {
		e.log.Warn("refine job not queued", "entry", entry.ID, "error", err.Error())
	}
}

func (e *Engine) refineLoop(ctx context.Context) {
	defer close(e.refineDone)
	defer e.recoverWorker(passRefining)

	for {
		job, err := e.refineQ.Get(ctx)
		if err != nil {
			return
		}
		e.refine(ctx, job)
	}
}

// refine re-transcribes one segment with its draft as the prompt. On
// failure the streaming entry stays as it is.
func (e *Engine) refine(ctx context.Context, job refineJob) {
	text, err := e.recognize(ctx, passRefining, e.deps.Refining, asr.Request{
		PCM:        job.pcm,
		SampleRate: e.cfg.Format.SampleRate,
		Prompt:     job.draft,
	})
	if err != nil || utf8.RuneCountInString(text) < e.cfg.MinTranscriptChars {
		return
	}

	text = transcript.Normalize(text, e.cfg.Sentence.Capitalize)
	entry, ok := e.deps.Transcript.Refine(job.entryID, text)
	if !ok {
		e.log.Warn("refined entry not found", "entry", job.entryID)
		return
	}
	e.deps.Metrics.EntryRecorded(ctx, string(session.StatusRefined))
	for _, o := range e.deps.Observers {
		o.EntryRefined(entry)
	}
}

// recognize runs one recognizer call inside a span and records its latency.
func (e *Engine) recognize(ctx context.Context, pass string, r asr.Recognizer, req asr.Request) (string, error) {
	return recognize(ctx, e.deps.Tracer, e.deps.Metrics, e.log, pass, r, req)
}

func recognize(
	ctx context.Context,
	tracer trace.Tracer,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
	pass string,
	r asr.Recognizer,
	req asr.Request,
) (string, error) {
	ctx, span := tracer.Start(ctx, "asr."+pass, trace.WithAttributes(
		attribute.String("asr.recognizer", r.Name()),
		attribute.Int("audio.bytes", len(req.PCM)),
		attribute.Bool("asr.prompted", req.Prompt != ""),
	))
	defer span.End()

	started := time.Now()
	text, err := r.Recognize(ctx, req)
	elapsed := time.Since(started)

	switch {
	case err == nil:
		metrics.Recognized(ctx, pass, elapsed.Seconds(), nil)
	case errors.Is(err, asr.ErrEmptyTranscript):
		metrics.Recognized(ctx, pass, elapsed.Seconds(), nil)
		logger.Debug("recognizer returned no text", "pass", pass)
	default:
		metrics.Recognized(ctx, pass, elapsed.Seconds(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("recognizer failed",
			"pass", pass,
			"recognizer", r.Name(),
			"elapsed_ms", elapsed.Milliseconds(),
			"error", err.Error(),
		)
	}
	return text, err
}

// recoverWorker converts a worker panic into a stop: capture is ended so the
// session drains and saves.
func (e *Engine) recoverWorker(pass string) {
	r := recover()
	if r == nil {
		return
	}
	e.log.Error("pipeline worker panic", "pass", pass, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))

	e.mu.Lock()
	e.workErr = errors.Join(e.workErr, fmt.Errorf("%s worker panic: %v", pass, r))
	stream := e.stream
	e.mu.Unlock()

	if stream != nil {
		go func() { _ = stream.Stop() }()
	}
}

func concatPCM(chunks []audio.Chunk) []byte {
	size := 0
	for _, c := range chunks {
		size += len(c.PCM)
	}
	out := make([]byte, 0, size)
	for _, c := range chunks {
		out = append(out, c.PCM...)
	}
	return out
}

func recognizerName(r asr.Recognizer) string {
	if r == nil {
		return "none"
	}
	return r.Name()
}
