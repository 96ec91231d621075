package export

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/avaqa/internal/observability"
	"github.com/vyrodovalexey/avaqa/internal/retry"
	"github.com/vyrodovalexey/avaqa/internal/trace"
)

// Queue defaults. The source parameters are deliberately conservative
// and every one of them is configurable.
const (
	// DefaultCapacity is the default ring buffer capacity in spans.
	DefaultCapacity = 2048

	// DefaultBatchSize is the default maximum batch size per export.
	DefaultBatchSize = 512

	// DefaultFlushInterval is the default maximum wait between flushes.
	DefaultFlushInterval = 5 * time.Second

	// DefaultMaxAttempts is the default number of export attempts per batch.
	DefaultMaxAttempts = 3

	// DefaultExportTimeout is the default deadline for one export attempt.
	DefaultExportTimeout = 10 * time.Second
)

// Drop reasons reported to metrics.
const (
	DropReasonOverflow       = "buffer_overflow"
	DropReasonRetryExhausted = "retry_exhausted"
	DropReasonShutdown       = "shutdown"
)

// QueueConfig configures the export queue.
type QueueConfig struct {
	// Capacity is the ring buffer size; enqueueing beyond it evicts the
	// oldest unexported span.
	Capacity int

	// BatchSize bounds the number of spans per export call; reaching it
	// triggers an early flush.
	BatchSize int

	// FlushInterval bounds how long a span waits before export.
	FlushInterval time.Duration

	// MaxAttempts bounds export attempts per batch; an exhausted batch
	// is dropped, never requeued.
	MaxAttempts int

	// ExportTimeout is the deadline for a single export attempt.
	ExportTimeout time.Duration

	// Backoff is the wait strategy between attempts. Defaults to
	// exponential 500ms x2.0 capped at 5s with 20% jitter.
	Backoff retry.Backoff
}

// withDefaults fills zero values with the package defaults.
func (c QueueConfig) withDefaults() QueueConfig {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchSize > c.Capacity {
		c.BatchSize = c.Capacity
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = DefaultExportTimeout
	}
	if c.Backoff == nil {
		c.Backoff = retry.NewExponentialBackoff(500*time.Millisecond, 5*time.Second, 2.0, 0.2)
	}
	return c
}

// QueueStats is a snapshot of the queue's counters.
type QueueStats struct {
	Enqueued              uint64 `json:"enqueued"`
	Exported              uint64 `json:"exported"`
	DroppedOverflow       uint64 `json:"dropped_overflow"`
	DroppedRetryExhausted uint64 `json:"dropped_retry_exhausted"`
	Buffered              int    `json:"buffered"`
}

// Queue is a bounded producer/consumer buffer between request goroutines
// and the export worker. Enqueue never blocks and never fails the caller;
// the single worker goroutine owns all Exporter access.
type Queue struct {
	exporter Exporter
	cfg      QueueConfig
	logger   observability.Logger
	metrics  *observability.Metrics

	mu   sync.Mutex
	buf  []*trace.Span
	head int
	size int

	notify   chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	enqueued     atomic.Uint64
	exported     atomic.Uint64
	droppedFull  atomic.Uint64
	droppedRetry atomic.Uint64
}

// QueueOption is a functional option for configuring the queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the logger for the queue.
func WithQueueLogger(logger observability.Logger) QueueOption {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithQueueMetrics wires the queue counters into service metrics.
func WithQueueMetrics(metrics *observability.Metrics) QueueOption {
	return func(q *Queue) {
		q.metrics = metrics
	}
}

// NewQueue creates the queue and starts its background worker.
func NewQueue(exporter Exporter, cfg QueueConfig, opts ...QueueOption) *Queue {
	cfg = cfg.withDefaults()

	q := &Queue{
		exporter: exporter,
		cfg:      cfg,
		logger:   observability.NopLogger(),
		buf:      make([]*trace.Span, cfg.Capacity),
		notify:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	go q.run()

	return q
}

// Enqueue adds a completed span to the buffer. O(1), non-blocking: when
// the buffer is full the oldest unexported span is evicted to make room
// and the drop counter is incremented.
func (q *Queue) Enqueue(span *trace.Span) {
	q.mu.Lock()
	if q.size == len(q.buf) {
		// Evict the oldest span.
		q.buf[q.head] = span
		q.head = (q.head + 1) % len(q.buf)
		q.droppedFull.Add(1)
		if q.metrics != nil {
			q.metrics.AddSpansDropped(DropReasonOverflow, 1)
		}
	} else {
		q.buf[(q.head+q.size)%len(q.buf)] = span
		q.size++
	}
	q.enqueued.Add(1)
	size := q.size
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.SetExportQueueSize(size)
	}

	if size >= q.cfg.BatchSize {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	buffered := q.size
	q.mu.Unlock()

	return QueueStats{
		Enqueued:              q.enqueued.Load(),
		Exported:              q.exported.Load(),
		DroppedOverflow:       q.droppedFull.Load(),
		DroppedRetryExhausted: q.droppedRetry.Load(),
		Buffered:              buffered,
	}
}

// Shutdown stops the worker, performs one best-effort final flush bounded
// by the context deadline, and shuts the exporter down. Batches that fail
// during the final flush are dropped without retry.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.stopOnce.Do(func() {
		close(q.stopCh)
	})

	select {
	case <-q.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		batch := q.takeBatch()
		if len(batch) == 0 {
			break
		}
		if err := q.exporter.Export(ctx, batch); err != nil {
			q.droppedRetry.Add(uint64(len(batch)))
			if q.metrics != nil {
				q.metrics.AddSpansDropped(DropReasonShutdown, len(batch))
			}
			q.logger.Warn("dropped spans during shutdown flush",
				observability.Int("count", len(batch)),
				observability.Error(err),
			)
		} else {
			q.recordExported(len(batch))
		}
		if ctx.Err() != nil {
			break
		}
	}

	return q.exporter.Shutdown(ctx)
}

// run is the single draining worker. It flushes when a batch worth of
// spans is buffered or when the flush interval elapses, whichever first.
func (q *Queue) run() {
	defer close(q.doneCh)

	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.drain()
		case <-q.notify:
			q.drain()
		case <-q.stopCh:
			return
		}
	}
}

// drain exports buffered spans batch by batch until the buffer is empty
// or shutdown is requested.
func (q *Queue) drain() {
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		batch := q.takeBatch()
		if len(batch) == 0 {
			return
		}
		q.exportBatch(batch)
	}
}

// takeBatch removes up to BatchSize spans from the front of the ring.
func (q *Queue) takeBatch() []*trace.Span {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.size
	if n > q.cfg.BatchSize {
		n = q.cfg.BatchSize
	}
	if n == 0 {
		return nil
	}

	batch := make([]*trace.Span, n)
	for i := 0; i < n; i++ {
		idx := (q.head + i) % len(q.buf)
		batch[i] = q.buf[idx]
		q.buf[idx] = nil
	}
	q.head = (q.head + n) % len(q.buf)
	q.size -= n

	if q.metrics != nil {
		q.metrics.SetExportQueueSize(q.size)
	}

	return batch
}

// exportBatch submits one batch with bounded retries. A batch that
// exhausts its attempts is dropped and counted, never requeued.
func (q *Queue) exportBatch(batch []*trace.Span) {
	for attempt := 0; attempt < q.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(q.cfg.Backoff.Next(attempt - 1)):
			case <-q.stopCh:
				// Shutdown will flush whatever remains in the buffer;
				// this in-flight batch gets no further retries.
				q.dropBatch(batch, attempt)
				return
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), q.cfg.ExportTimeout)
		err := q.exporter.Export(ctx, batch)
		cancel()

		if err == nil {
			q.recordExported(len(batch))
			return
		}

		if q.metrics != nil {
			q.metrics.IncExportFailure()
		}
		q.logger.Warn("span export attempt failed",
			observability.Int("attempt", attempt+1),
			observability.Int("batch_size", len(batch)),
			observability.Error(err),
		)
	}

	q.dropBatch(batch, q.cfg.MaxAttempts)
}

// dropBatch records a batch abandoned after failed attempts.
func (q *Queue) dropBatch(batch []*trace.Span, attempts int) {
	q.droppedRetry.Add(uint64(len(batch)))
	if q.metrics != nil {
		q.metrics.AddSpansDropped(DropReasonRetryExhausted, len(batch))
	}
	q.logger.Error("dropping span batch after failed export attempts",
		observability.Int("batch_size", len(batch)),
		observability.Int("attempts", attempts),
	)
}

// recordExported updates counters after a successful export.
func (q *Queue) recordExported(n int) {
	q.exported.Add(uint64(n))
	if q.metrics != nil {
		q.metrics.AddSpansExported(n)
	}
}
