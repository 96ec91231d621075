package trace

import "time"

// Status is the terminal status of a span.
type Status string

// Span statuses.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Event is a timestamped message attached to an open span.
type Event struct {
	Timestamp time.Time
	Message   string
}

// Span is the timed record of one unit of work. It is owned exclusively
// by the service that created it until closed; after Close it is handed
// to the export queue and must not be mutated.
type Span struct {
	TraceID      TraceID
	SpanID       SpanID
	ParentSpanID SpanID
	Name         string
	StartTime    time.Time
	EndTime      time.Time
	Status       Status
	Attributes   map[string]any
	Events       []Event
}

// Duration returns the span's elapsed time. Zero until closed.
func (s *Span) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}
