package queue

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTryPutRespectsCapacity(t *testing.T) {
	q := New[int]("audio", 2, Options{})

	require.NoError(t, q.TryPut(1))
	require.NoError(t, q.TryPut(2))
	require.ErrorIs(t, q.TryPut(3), ErrFull)
	require.Equal(t, 2, q.Len())
	require.Equal(t, 2, q.Cap())
}

func TestNewClampsCapacity(t *testing.T) {
	q := New[int]("audio", 0, Options{})
	require.Equal(t, 1, q.Cap())
}

func TestPutWithRetryDropsNewestAndLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	var drops atomic.Int32
	q := New[string]("refine", 1, Options{
		RetryDelay: time.Millisecond,
		Logger:     logger,
		OnDrop:     func(string) { drops.Add(1) },
	})

	require.NoError(t, q.PutWithRetry(context.Background(), "first"))
	err := q.PutWithRetry(context.Background(), "second")
	require.ErrorIs(t, err, ErrDropped)
	require.Equal(t, uint64(1), q.Dropped())
	require.Equal(t, int32(1), drops.Load())
	require.Contains(t, buf.String(), "queue full; dropping item")
	require.Contains(t, buf.String(), `"queue":"refine"`)

	item, err := q.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "first", item)
}

func TestPutWithRetrySucceedsWhenSlotFreesDuringDelay(t *testing.T) {
	q := New[int]("audio", 1, Options{RetryDelay: 200 * time.Millisecond})
	require.NoError(t, q.TryPut(1))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = q.Get(context.Background())
	}()

	require.NoError(t, q.PutWithRetry(context.Background(), 2))
	require.Zero(t, q.Dropped())

	item, err := q.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, item)
}

func TestPutWithRetryHonorsContextDuringDelay(t *testing.T) {
	q := New[int]("audio", 1, Options{RetryDelay: time.Hour})
	require.NoError(t, q.TryPut(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, q.PutWithRetry(ctx, 2), context.Canceled)
	require.Zero(t, q.Dropped())
}

func TestLengthNeverExceedsCapacityUnderConcurrentProducers(t *testing.T) {
	const capacity = 4
	q := New[int]("audio", capacity, Options{})

	var (
		wg       sync.WaitGroup
		maxSeen  atomic.Int64
		accepted atomic.Int64
	)
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if err := q.PutWithRetry(context.Background(), i); err == nil {
					accepted.Add(1)
				}
				if n := int64(q.Len()); n > maxSeen.Load() {
					maxSeen.Store(n)
				}
			}
		}()
	}

	consumed := make(chan int, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		n := 0
		for {
			if _, err := q.Get(ctx); err != nil {
				consumed <- n
				return
			}
			n++
		}
	}()

	wg.Wait()
	q.Close()
	n := <-consumed
	cancel()

	require.LessOrEqual(t, maxSeen.Load(), int64(capacity))
	require.Equal(t, accepted.Load(), int64(n))
	require.Equal(t, uint64(8*200)-uint64(accepted.Load()), q.Dropped())
}

func TestGetReturnsBufferedItemsThenClosed(t *testing.T) {
	q := New[int]("audio", 3, Options{})
	require.NoError(t, q.TryPut(1))
	require.NoError(t, q.TryPut(2))
	q.Close()
	q.Close()

	require.ErrorIs(t, q.TryPut(3), ErrClosed)
	require.ErrorIs(t, q.PutWithRetry(context.Background(), 3), ErrClosed)

	for _, want := range []int{1, 2} {
		got, err := q.Get(context.Background())
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := q.Get(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestGetHonorsContext(t *testing.T) {
	q := New[int]("audio", 1, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDrainEmptiesQueue(t *testing.T) {
	q := New[int]("audio", 5, Options{})
	for i := 0; i < 4; i++ {
		require.NoError(t, q.TryPut(i))
	}

	require.Equal(t, 4, q.Drain())
	require.Zero(t, q.Len())
	require.Zero(t, q.Drain())
}

func TestPutBlocksUntilSlotFrees(t *testing.T) {
	q := New[int]("refine", 1, Options{})
	require.NoError(t, q.TryPut(1))

	done := make(chan error, 1)
	go func() { done <- q.Put(context.Background(), 2) }()

	select {
	case <-done:
		t.Fatal("put returned while queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	got, err := q.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, got)
	require.NoError(t, <-done)
	require.Equal(t, 1, q.Len())
	require.Zero(t, q.Dropped())
}

func TestPutHonorsContextAndClose(t *testing.T) {
	q := New[int]("refine", 1, Options{})
	require.NoError(t, q.TryPut(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Put(ctx, 2), context.DeadlineExceeded)

	q.Close()
	require.ErrorIs(t, q.Put(context.Background(), 3), ErrClosed)
}
