package memory

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Cleaner releases buffered data and reports how many items it dropped.
type Cleaner func() int

// Options configure a Watchdog.
type Options struct {
	CheckInterval   time.Duration
	CleanupInterval time.Duration
	WarnMB          uint64
	CleanupMB       uint64
	Sampler         Sampler
	Logger          *slog.Logger
	// OnCleanup observes threshold cleanups, e.g. for metrics.
	OnCleanup func(before, after Sample)
}

// Watchdog periodically samples memory. Above WarnMB it logs; above
// CleanupMB it runs registered cleaners and returns memory to the OS. Every
// CleanupInterval it runs a GC-only cleanup that drops no data.
type Watchdog struct {
	opts Options

	mu       sync.Mutex
	cleaners []namedCleaner

	cleanups atomic.Uint64
	lastRSS  atomic.Uint64
}

type namedCleaner struct {
	name string
	fn   Cleaner
}

// New builds a watchdog. A nil sampler disables Run.
func New(opts Options) *Watchdog {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 10 * time.Second
	}
	return &Watchdog{opts: opts}
}

// AddCleaner registers a named cleaner run on threshold cleanup.
func (w *Watchdog) AddCleaner(name string, fn Cleaner) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cleaners = append(w.cleaners, namedCleaner{name: name, fn: fn})
}

// Cleanups reports how many threshold cleanups ran.
func (w *Watchdog) Cleanups() uint64 {
	return w.cleanups.Load()
}

// LastRSSMB reports the most recent resident memory sample.
func (w *Watchdog) LastRSSMB() float64 {
	return float64(w.lastRSS.Load()) / mib
}

// Run checks on every CheckInterval until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	if w.opts.Sampler == nil {
		return
	}

	check := time.NewTicker(w.opts.CheckInterval)
	defer check.Stop()

	var forced <-chan time.Time
	if w.opts.CleanupInterval > 0 {
		ticker := time.NewTicker(w.opts.CleanupInterval)
		defer ticker.Stop()
		forced = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-check.C:
			w.Check(ctx)
		case <-forced:
			w.collect()
			w.opts.Logger.Debug("memory periodic gc")
		}
	}
}

// Check samples once and acts on the thresholds. It reports whether a
// cleanup ran.
func (w *Watchdog) Check(ctx context.Context) bool {
	sample, err := w.opts.Sampler.Sample(ctx)
	if err != nil {
		w.opts.Logger.Warn("memory sample failed", "error", err.Error())
		return false
	}
	w.lastRSS.Store(sample.RSSBytes)

	rss := sample.RSSMB()
	switch {
	case w.opts.CleanupMB > 0 && rss > float64(w.opts.CleanupMB):
		w.opts.Logger.Warn("memory above cleanup threshold",
			"rss_mb", round1(rss),
			"threshold_mb", w.opts.CleanupMB,
		)
		w.cleanup(ctx, sample)
		return true
	case w.opts.WarnMB > 0 && rss > float64(w.opts.WarnMB):
		level, _ := Assess(sample)
		w.opts.Logger.Warn("memory above warning threshold",
			"rss_mb", round1(rss),
			"threshold_mb", w.opts.WarnMB,
			"system_used_pct", round1(sample.SystemUsedPercent),
			"health", level,
		)
	}
	return false
}

func (w *Watchdog) cleanup(ctx context.Context, before Sample) {
	w.mu.Lock()
	cleaners := append([]namedCleaner(nil), w.cleaners...)
	w.mu.Unlock()

	dropped := make(map[string]int, len(cleaners))
	for _, c := range cleaners {
		dropped[c.name] = c.fn()
	}
	w.collect()
	w.cleanups.Add(1)

	after, err := w.opts.Sampler.Sample(ctx)
	if err != nil {
		w.opts.Logger.Warn("memory resample failed", "error", err.Error())
		return
	}
	w.lastRSS.Store(after.RSSBytes)

	attrs := []any{
		"before_mb", round1(before.RSSMB()),
		"after_mb", round1(after.RSSMB()),
	}
	for name, n := range dropped {
		attrs = append(attrs, "dropped_"+name, n)
	}
	w.opts.Logger.Info("memory cleanup complete", attrs...)

	if w.opts.OnCleanup != nil {
		w.opts.OnCleanup(before, after)
	}
}

func (w *Watchdog) collect() {
	runtime.GC()
	debug.FreeOSMemory()
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
