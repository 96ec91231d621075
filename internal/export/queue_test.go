package export

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaqa/internal/retry"
	"github.com/vyrodovalexey/avaqa/internal/trace"
)

// fakeExporter records exported batches and can be told to fail.
type fakeExporter struct {
	mu      sync.Mutex
	batches [][]*trace.Span
	fail    bool
	calls   int
}

func (f *fakeExporter) Export(ctx context.Context, spans []*trace.Span) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return errors.New("collector unreachable")
	}
	f.batches = append(f.batches, spans)
	return nil
}

func (f *fakeExporter) Shutdown(ctx context.Context) error { return nil }

func (f *fakeExporter) exportedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func (f *fakeExporter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeExporter) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func makeSpan(name string) *trace.Span {
	ctx := trace.StartRoot()
	now := time.Now()
	return &trace.Span{
		TraceID:   ctx.TraceID,
		SpanID:    ctx.SpanID,
		Name:      name,
		StartTime: now,
		EndTime:   now,
		Status:    trace.StatusOK,
	}
}

func TestQueue_FlushOnBatchSize(t *testing.T) {
	exporter := &fakeExporter{}
	q := NewQueue(exporter, QueueConfig{
		Capacity:      64,
		BatchSize:     8,
		FlushInterval: time.Hour, // only the size trigger should fire
	})
	defer func() { _ = q.Shutdown(context.Background()) }()

	for i := 0; i < 8; i++ {
		q.Enqueue(makeSpan("s"))
	}

	require.Eventually(t, func() bool {
		return exporter.exportedCount() == 8
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueue_FlushOnInterval(t *testing.T) {
	exporter := &fakeExporter{}
	q := NewQueue(exporter, QueueConfig{
		Capacity:      64,
		BatchSize:     1000,
		FlushInterval: 50 * time.Millisecond,
	})
	defer func() { _ = q.Shutdown(context.Background()) }()

	q.Enqueue(makeSpan("lonely"))

	require.Eventually(t, func() bool {
		return exporter.exportedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// stalledExporter parks every Export call until released, simulating a
// slow collector.
type stalledExporter struct {
	release chan struct{}
}

func (s *stalledExporter) Export(ctx context.Context, spans []*trace.Span) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func (s *stalledExporter) Shutdown(ctx context.Context) error { return nil }

func TestQueue_DropOldestNeverBlocks(t *testing.T) {
	exporter := &stalledExporter{release: make(chan struct{})}
	q := NewQueue(exporter, QueueConfig{
		Capacity:      16,
		BatchSize:     16,
		FlushInterval: time.Hour,
		ExportTimeout: time.Hour,
	})
	defer close(exporter.release)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = q.Shutdown(ctx)
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			q.Enqueue(makeSpan("burst"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked while the exporter was stalled")
	}

	stats := q.Stats()
	assert.LessOrEqual(t, stats.Buffered, 16, "buffer must stay within capacity")
	assert.GreaterOrEqual(t, stats.DroppedOverflow, uint64(168), "evictions must be counted")
	assert.Equal(t, uint64(200), stats.Enqueued)
}

func TestQueue_DropCounterMonotonic(t *testing.T) {
	exporter := &fakeExporter{fail: true}
	q := NewQueue(exporter, QueueConfig{
		Capacity:      4,
		BatchSize:     4,
		FlushInterval: time.Hour,
		MaxAttempts:   1,
	})
	defer func() { _ = q.Shutdown(context.Background()) }()

	var last uint64
	for i := 0; i < 50; i++ {
		q.Enqueue(makeSpan("b"))
		dropped := q.Stats().DroppedOverflow
		assert.GreaterOrEqual(t, dropped, last)
		last = dropped
	}
}

func TestQueue_RetryThenSuccess(t *testing.T) {
	exporter := &fakeExporter{fail: true}
	q := NewQueue(exporter, QueueConfig{
		Capacity:      16,
		BatchSize:     1,
		FlushInterval: 20 * time.Millisecond,
		MaxAttempts:   5,
		Backoff:       retry.NewConstantBackoff(10 * time.Millisecond),
	})
	defer func() { _ = q.Shutdown(context.Background()) }()

	q.Enqueue(makeSpan("retry-me"))

	require.Eventually(t, func() bool {
		return exporter.callCount() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	exporter.setFail(false)

	require.Eventually(t, func() bool {
		return exporter.exportedCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, q.Stats().DroppedRetryExhausted)
}

func TestQueue_RetryExhaustionDropsBatch(t *testing.T) {
	exporter := &fakeExporter{fail: true}
	q := NewQueue(exporter, QueueConfig{
		Capacity:      16,
		BatchSize:     1,
		FlushInterval: 20 * time.Millisecond,
		MaxAttempts:   2,
		Backoff:       retry.NewConstantBackoff(5 * time.Millisecond),
	})
	defer func() { _ = q.Shutdown(context.Background()) }()

	q.Enqueue(makeSpan("doomed"))

	require.Eventually(t, func() bool {
		return q.Stats().DroppedRetryExhausted == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, q.Stats().Buffered, "dropped batch must not be requeued")
}

func TestQueue_ShutdownFlushesBuffered(t *testing.T) {
	exporter := &fakeExporter{}
	q := NewQueue(exporter, QueueConfig{
		Capacity:      64,
		BatchSize:     1000,
		FlushInterval: time.Hour,
	})

	for i := 0; i < 10; i++ {
		q.Enqueue(makeSpan("pending"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))

	assert.Equal(t, 10, exporter.exportedCount())
	assert.Equal(t, uint64(10), q.Stats().Exported)
}

func TestQueue_ShutdownDropsWithoutRetry(t *testing.T) {
	exporter := &fakeExporter{fail: true}
	q := NewQueue(exporter, QueueConfig{
		Capacity:      64,
		BatchSize:     1000,
		FlushInterval: time.Hour,
	})

	for i := 0; i < 5; i++ {
		q.Enqueue(makeSpan("pending"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))

	assert.Equal(t, uint64(5), q.Stats().DroppedRetryExhausted)
	assert.Equal(t, 1, exporter.callCount(), "shutdown flush gets exactly one attempt per batch")
}

func TestQueue_StatsSnapshot(t *testing.T) {
	exporter := &fakeExporter{}
	q := NewQueue(exporter, QueueConfig{
		Capacity:      8,
		BatchSize:     8,
		FlushInterval: time.Hour,
	})
	defer func() { _ = q.Shutdown(context.Background()) }()

	q.Enqueue(makeSpan("a"))
	q.Enqueue(makeSpan("b"))

	stats := q.Stats()
	assert.Equal(t, uint64(2), stats.Enqueued)
	assert.Equal(t, 2, stats.Buffered)
}
