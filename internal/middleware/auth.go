package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaqa/internal/auth"
	"github.com/vyrodovalexey/avaqa/internal/observability"
)

// PrincipalKey is the gin context key for the authenticated principal.
const PrincipalKey = "principal"

// Auth returns a middleware that derives a principal from the
// Authorization header. Invalid credentials are rejected with 401 and a
// stable error shape; missing credentials pass through as anonymous.
func Auth(authenticator *auth.Authenticator, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := authenticator.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			if m != nil {
				m.IncAuthFailure()
			}
			if span := GetSpan(c); span != nil {
				span.SetAttribute("auth.failed", true)
			}

			msg := "invalid credentials"
			if errors.Is(err, auth.ErrMalformedHeader) {
				msg = "malformed authorization header"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		if span := GetSpan(c); span != nil {
			span.SetAttribute("auth.subject", principal.Subject)
			span.SetAttribute("auth.role", string(principal.Role))
		}
		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// GetPrincipal returns the authenticated principal for the request. The
// zero principal is returned when auth middleware did not run.
func GetPrincipal(c *gin.Context) auth.Principal {
	if v, exists := c.Get(PrincipalKey); exists {
		if p, ok := v.(auth.Principal); ok {
			return p
		}
	}
	return auth.Principal{Subject: auth.AnonymousSubject, Role: auth.RoleAnonymous}
}
