// Package auth provides bearer credential authentication for the API
// Gateway. Credentials are static pattern matches: the configured admin
// token, per-user tokens with a "user-" prefix, or no credential at all
// (anonymous access is allowed).
package auth

import (
	"errors"
	"strings"
)

// Role is the access level derived from a credential.
type Role string

// Principal roles.
const (
	RoleAnonymous Role = "anonymous"
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
)

// Sentinel errors for authentication operations.
var (
	// ErrInvalidCredentials indicates that the provided credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMalformedHeader indicates an Authorization header without a bearer scheme.
	ErrMalformedHeader = errors.New("malformed authorization header")
)

// Bearer scheme constants.
const (
	bearerPrefix = "Bearer "

	// UserTokenPrefix marks per-user credentials; the token itself is
	// the user's subject (e.g. "user-alice").
	UserTokenPrefix = "user-"

	// DefaultAdminToken is the development admin credential; override it
	// via configuration in any real deployment.
	DefaultAdminToken = "demo-token"

	// AnonymousSubject is the subject assigned to unauthenticated requests.
	AnonymousSubject = "anonymous"

	// AdminSubject is the subject assigned to the admin credential.
	AdminSubject = "demo-user"
)

// Principal is the authenticated identity of one request. It is derived
// once per request and never mutated afterwards.
type Principal struct {
	// Subject is the unique identifier for the principal.
	Subject string `json:"subject"`

	// Role is the access level.
	Role Role `json:"role"`
}

// RateKey returns the rate-limit bucket key for the principal.
func (p Principal) RateKey() string {
	return string(p.Role) + ":" + p.Subject
}

// Authenticator validates bearer credentials.
type Authenticator struct {
	adminToken string
}

// NewAuthenticator creates an authenticator. An empty adminToken falls
// back to the development default.
func NewAuthenticator(adminToken string) *Authenticator {
	if adminToken == "" {
		adminToken = DefaultAdminToken
	}
	return &Authenticator{adminToken: adminToken}
}

// Authenticate derives a principal from the Authorization header value.
// An empty header yields the anonymous principal; any unrecognized
// non-empty credential is rejected with ErrInvalidCredentials.
func (a *Authenticator) Authenticate(authorization string) (Principal, error) {
	if authorization == "" {
		return Principal{Subject: AnonymousSubject, Role: RoleAnonymous}, nil
	}

	if !strings.HasPrefix(authorization, bearerPrefix) {
		return Principal{}, ErrMalformedHeader
	}

	token := strings.TrimSpace(strings.TrimPrefix(authorization, bearerPrefix))
	switch {
	case token == a.adminToken:
		return Principal{Subject: AdminSubject, Role: RoleAdmin}, nil
	case strings.HasPrefix(token, UserTokenPrefix) && len(token) > len(UserTokenPrefix):
		return Principal{Subject: token, Role: RoleUser}, nil
	default:
		return Principal{}, ErrInvalidCredentials
	}
}
