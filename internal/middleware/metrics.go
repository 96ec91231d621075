package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaqa/internal/observability"
)

// Metrics returns a middleware that records request count, duration and
// in-flight gauge per method and route.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		m.RequestStarted()

		c.Next()

		m.RequestFinished()

		// FullPath is the registered route pattern, which keeps the
		// label cardinality bounded. Unmatched requests fall back to
		// a single catch-all label.
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(
			c.Request.Method,
			route,
			c.Writer.Status(),
			time.Since(start),
		)
	}
}
