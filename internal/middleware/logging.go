// Package middleware provides the gin middleware chain shared by all
// services: recovery, request identification, logging, metrics,
// tracing, authentication and rate limiting.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/avaqa/internal/observability"
)

const (
	// RequestIDHeader is the header name for request ID.
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the gin context key for request ID.
	RequestIDKey = "requestID"
	// ResponseTimeHeader carries the server-side elapsed time back to
	// the caller.
	ResponseTimeHeader = "X-Response-Time"
)

// RequestID returns a middleware that generates and sets a request ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID returns the request ID from the context.
func GetRequestID(c *gin.Context) string {
	if id, exists := c.Get(RequestIDKey); exists {
		if requestID, ok := id.(string); ok {
			return requestID
		}
	}
	return ""
}

// Logging returns a middleware that logs each completed request. The
// log level follows the response status.
func Logging(logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []observability.Field{
			observability.String("request_id", GetRequestID(c)),
			observability.String("method", c.Request.Method),
			observability.String("path", path),
			observability.Int("status", status),
			observability.Duration("latency", time.Since(start)),
			observability.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, observability.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("request completed", fields...)
		case status >= 400:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}

// responseTimeWriter injects the X-Response-Time header just before the
// status line is written, which is the last moment headers can change.
type responseTimeWriter struct {
	gin.ResponseWriter
	start   time.Time
	written bool
}

func (w *responseTimeWriter) WriteHeader(code int) {
	if !w.written {
		w.written = true
		w.Header().Set(ResponseTimeHeader, time.Since(w.start).String())
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseTimeWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(w.ResponseWriter.Status())
	}
	return w.ResponseWriter.Write(b)
}

// ResponseTime returns a middleware that reports server-side elapsed
// time on every response.
func ResponseTime() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &responseTimeWriter{ResponseWriter: c.Writer, start: time.Now()}
		c.Next()
	}
}
