// Package queue provides the bounded mailboxes that connect capture and the
// transcription passes.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrFull is returned by TryPut when the queue has no free slot.
	ErrFull = errors.New("queue full")
	// ErrDropped is returned by PutWithRetry when the item was discarded.
	ErrDropped = errors.New("queue full; item dropped")
	// ErrClosed is returned once the queue has been closed (and drained, for Get).
	ErrClosed = errors.New("queue closed")
)

// Options tunes overflow handling.
type Options struct {
	RetryDelay time.Duration
	Logger     *slog.Logger
	OnDrop     func(queue string)
}

// Bounded is a FIFO mailbox whose length never exceeds its capacity.
type Bounded[T any] struct {
	name   string
	items  chan T
	opts   Options
	mu     sync.RWMutex
	closed bool

	dropped atomic.Uint64
}

// New creates a bounded queue. Capacity below one is clamped to one.
func New[T any](name string, capacity int, opts Options) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Bounded[T]{
		name:  name,
		items: make(chan T, capacity),
		opts:  opts,
	}
}

// Name identifies the queue in logs and metrics.
func (q *Bounded[T]) Name() string { return q.name }

// Len reports the number of buffered items.
func (q *Bounded[T]) Len() int { return len(q.items) }

// Cap reports the configured capacity.
func (q *Bounded[T]) Cap() int { return cap(q.items) }

// Dropped reports how many items PutWithRetry has discarded.
func (q *Bounded[T]) Dropped() uint64 { return q.dropped.Load() }

// TryPut enqueues without blocking.
func (q *Bounded[T]) TryPut(item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.items <- item:
		return nil
	default:
		return ErrFull
	}
}

// Put blocks until item is enqueued or ctx is done. A concurrent Close waits
// for a blocked Put to return.
func (q *Bounded[T]) Put(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PutWithRetry enqueues item; when the queue is full it waits RetryDelay,
// tries once more, and otherwise drops the item with a warning.
func (q *Bounded[T]) PutWithRetry(ctx context.Context, item T) error {
	err := q.TryPut(item)
	if !errors.Is(err, ErrFull) {
		return err
	}

	if q.opts.RetryDelay > 0 {
		timer := time.NewTimer(q.opts.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	err = q.TryPut(item)
	if !errors.Is(err, ErrFull) {
		return err
	}

	total := q.dropped.Add(1)
	q.opts.Logger.Warn("queue full; dropping item",
		"queue", q.name,
		"capacity", q.Cap(),
		"dropped_total", total,
	)
	if q.opts.OnDrop != nil {
		q.opts.OnDrop(q.name)
	}
	return ErrDropped
}

// Get blocks until an item is available, the queue is closed and empty, or
// ctx is done.
func (q *Bounded[T]) Get(ctx context.Context) (T, error) {
	var zero T
	select {
	case item, ok := <-q.items:
		if !ok {
			return zero, ErrClosed
		}
		return item, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Drain discards every buffered item and returns how many were removed.
func (q *Bounded[T]) Drain() int {
	n := 0
	for {
		select {
		case _, ok := <-q.items:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// Close stops accepting new items. Buffered items remain readable via Get.
func (q *Bounded[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.items)
}
