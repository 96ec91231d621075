package trace

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/avaqa/internal/observability"
)

// Sink receives completed spans. Enqueue must be non-blocking; the
// export queue satisfies this.
type Sink interface {
	Enqueue(span *Span)
}

// Recorder opens spans and hands them to a sink on close.
type Recorder struct {
	sink   Sink
	logger observability.Logger

	doubleCloses atomic.Uint64
}

// RecorderOption is a functional option for configuring the recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger for the recorder.
func WithRecorderLogger(logger observability.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// NewRecorder creates a new span recorder feeding the given sink.
func NewRecorder(sink Sink, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		sink:   sink,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DoubleCloses returns the number of spans that were closed more than
// once. A non-zero value indicates a programming error in a caller.
func (r *Recorder) DoubleCloses() uint64 {
	return r.doubleCloses.Load()
}

// Open starts a span for the given context and registers it as open.
// Attribute writes, events, and Close happen synchronously on the
// request goroutine and never block on the network.
func (r *Recorder) Open(ctx Context, name string) *SpanHandle {
	return &SpanHandle{
		recorder: r,
		span: &Span{
			TraceID:      ctx.TraceID,
			SpanID:       ctx.SpanID,
			ParentSpanID: ctx.ParentSpanID,
			Name:         name,
			StartTime:    time.Now(),
			Attributes:   make(map[string]any),
		},
	}
}

// SpanHandle is the mutable view of one open span. All methods are safe
// for concurrent use; after Close the underlying span is immutable.
type SpanHandle struct {
	recorder *Recorder

	mu     sync.Mutex
	span   *Span
	closed bool
}

// Context returns the span's trace context, for deriving children.
func (h *SpanHandle) Context() Context {
	return Context{
		TraceID:      h.span.TraceID,
		SpanID:       h.span.SpanID,
		ParentSpanID: h.span.ParentSpanID,
	}
}

// SetAttribute attaches a scalar attribute to the open span. Writes to a
// closed span are advisory no-ops and only log a warning.
func (h *SpanHandle) SetAttribute(key string, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		h.recorder.logger.Warn("attribute set on closed span",
			observability.String("span", h.span.Name),
			observability.String("key", key),
		)
		return
	}
	h.span.Attributes[key] = value
}

// AddEvent appends a timestamped event to the open span. Events on a
// closed span are dropped with a warning.
func (h *SpanHandle) AddEvent(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		h.recorder.logger.Warn("event added to closed span",
			observability.String("span", h.span.Name),
		)
		return
	}
	h.span.Events = append(h.span.Events, Event{
		Timestamp: time.Now(),
		Message:   message,
	})
}

// Close stamps the end time and hands the completed span to the sink.
// A second Close is a reported anomaly: it is counted and logged but
// does not enqueue the span again or corrupt its state.
func (h *SpanHandle) Close(status Status) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.recorder.doubleCloses.Add(1)
		h.recorder.logger.Error("span closed twice",
			observability.String("span", h.span.Name),
			observability.String("span_id", h.span.SpanID.String()),
		)
		return
	}
	h.closed = true
	h.span.EndTime = time.Now()
	h.span.Status = status
	span := h.span
	h.mu.Unlock()

	h.recorder.sink.Enqueue(span)
}
