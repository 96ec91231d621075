package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaqa/internal/observability"
	"github.com/vyrodovalexey/avaqa/internal/ratelimit"
)

// RateLimit returns a middleware that admits requests through a
// per-principal token bucket. Rejections answer 429 with a Retry-After
// hint in whole seconds.
func RateLimit(limiter *ratelimit.Limiter, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := limiter.Allow(GetPrincipal(c).RateKey())
		if !result.Allowed {
			if m != nil {
				m.IncRateLimitHit()
			}
			if span := GetSpan(c); span != nil {
				span.SetAttribute("ratelimit.rejected", true)
			}

			retryAfter := int(result.RetryAfter.Seconds()) + 1
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
		c.Next()
	}
}
