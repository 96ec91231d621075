package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaqa/internal/observability"
	"github.com/vyrodovalexey/avaqa/internal/trace"
)

// Gin context keys for tracing state.
const (
	// SpanKey holds the server span handle for the current request.
	SpanKey = "span"
	// TraceContextKey holds the trace.Context of the server span.
	TraceContextKey = "traceContext"
)

// Tracing returns a middleware that opens one server span per request.
// Incoming trace headers continue the caller's trace; otherwise the
// request starts a new root. The span closes when the handler returns,
// with an error status for 5xx responses.
func Tracing(recorder *trace.Recorder, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, ok := trace.Extract(c.Request.Header)
		if ok {
			tc = trace.StartChild(tc)
		} else {
			tc = trace.StartRoot()
		}

		span := recorder.Open(tc, serviceName+" "+c.Request.Method+" "+c.Request.URL.Path)
		span.SetAttribute("http.method", c.Request.Method)
		span.SetAttribute("http.target", c.Request.URL.Path)
		span.SetAttribute("service.name", serviceName)
		if requestID := GetRequestID(c); requestID != "" {
			span.SetAttribute("request.id", requestID)
		}

		c.Set(SpanKey, span)
		c.Set(TraceContextKey, tc)

		// Make the identifiers available to WithContext loggers.
		ctx := c.Request.Context()
		ctx = observability.ContextWithTraceID(ctx, tc.TraceID.String())
		ctx = observability.ContextWithSpanID(ctx, tc.SpanID.String())
		if requestID := GetRequestID(c); requestID != "" {
			ctx = observability.ContextWithRequestID(ctx, requestID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttribute("http.status_code", status)
		if status >= 500 {
			span.Close(trace.StatusError)
		} else {
			span.Close(trace.StatusOK)
		}
	}
}

// GetSpan returns the server span handle from the gin context, or nil.
func GetSpan(c *gin.Context) *trace.SpanHandle {
	if v, exists := c.Get(SpanKey); exists {
		if span, ok := v.(*trace.SpanHandle); ok {
			return span
		}
	}
	return nil
}

// GetTraceContext returns the trace context of the server span. The
// second return reports whether tracing middleware ran.
func GetTraceContext(c *gin.Context) (trace.Context, bool) {
	if v, exists := c.Get(TraceContextKey); exists {
		if tc, ok := v.(trace.Context); ok {
			return tc, true
		}
	}
	return trace.Context{}, false
}
