package trace

import (
	"fmt"
	"net/http"
	"strings"
)

// Propagation headers. Traceparent follows the W3C Trace Context format;
// the parent span header carries the third element of the identifier
// triple so Encode/Decode round-trip losslessly.
const (
	TraceparentHeader  = "Traceparent"
	ParentSpanIDHeader = "X-Parent-Span-Id"

	traceparentVersion = "00"
	traceparentFlags   = "01"
)

// Context identifies one span's position within a trace. It is immutable
// once created: child spans derive a new Context via StartChild.
type Context struct {
	TraceID      TraceID
	SpanID       SpanID
	ParentSpanID SpanID // zero when the span is a root
}

// IsValid reports whether both the trace and span IDs are non-zero.
func (c Context) IsValid() bool {
	return c.TraceID.IsValid() && c.SpanID.IsValid()
}

// HasParent reports whether the context belongs to a non-root span.
func (c Context) HasParent() bool {
	return c.ParentSpanID.IsValid()
}

// StartRoot mints a fresh trace with a new root span ID and no parent.
func StartRoot() Context {
	return Context{
		TraceID: NewTraceID(),
		SpanID:  NewSpanID(),
	}
}

// StartChild derives a child context: the trace ID is inherited, the
// parent span ID is the caller's span ID, and a new span ID is minted.
func StartChild(parent Context) Context {
	return Context{
		TraceID:      parent.TraceID,
		SpanID:       NewSpanID(),
		ParentSpanID: parent.SpanID,
	}
}

// Encode renders the context in its wire form: the traceparent value and
// the parent span value (empty when the span is a root).
func Encode(c Context) (traceparent, parentSpan string) {
	traceparent = fmt.Sprintf("%s-%s-%s-%s",
		traceparentVersion, c.TraceID.String(), c.SpanID.String(), traceparentFlags)
	if c.HasParent() {
		parentSpan = c.ParentSpanID.String()
	}
	return traceparent, parentSpan
}

// Decode parses the wire form produced by Encode. Malformed input of any
// kind yields ok=false and never an error; callers treat that as "start
// a new root".
func Decode(traceparent, parentSpan string) (Context, bool) {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return Context{}, false
	}
	if len(parts[0]) != 2 || parts[0] == "ff" {
		return Context{}, false
	}

	traceID, ok := ParseTraceID(parts[1])
	if !ok {
		return Context{}, false
	}
	spanID, ok := ParseSpanID(parts[2])
	if !ok {
		return Context{}, false
	}
	if len(parts[3]) != 2 {
		return Context{}, false
	}

	c := Context{TraceID: traceID, SpanID: spanID}
	if parentSpan != "" {
		parentID, ok := ParseSpanID(parentSpan)
		if !ok {
			return Context{}, false
		}
		c.ParentSpanID = parentID
	}
	return c, true
}

// Inject writes the context into outbound request headers.
func Inject(c Context, header http.Header) {
	traceparent, parentSpan := Encode(c)
	header.Set(TraceparentHeader, traceparent)
	if parentSpan != "" {
		header.Set(ParentSpanIDHeader, parentSpan)
	} else {
		header.Del(ParentSpanIDHeader)
	}
}

// Extract reads a propagated context from inbound request headers.
// Absent or malformed headers yield ok=false.
func Extract(header http.Header) (Context, bool) {
	traceparent := header.Get(TraceparentHeader)
	if traceparent == "" {
		return Context{}, false
	}
	return Decode(traceparent, header.Get(ParentSpanIDHeader))
}
