package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	authenticator := NewAuthenticator("")

	tests := []struct {
		name          string
		authorization string
		wantRole      Role
		wantSubject   string
		wantErr       error
	}{
		{
			name:          "no credential is anonymous",
			authorization: "",
			wantRole:      RoleAnonymous,
			wantSubject:   "anonymous",
		},
		{
			name:          "admin token",
			authorization: "Bearer demo-token",
			wantRole:      RoleAdmin,
			wantSubject:   "demo-user",
		},
		{
			name:          "per-user token",
			authorization: "Bearer user-alice",
			wantRole:      RoleUser,
			wantSubject:   "user-alice",
		},
		{
			name:          "unknown token rejected",
			authorization: "Bearer garbage",
			wantErr:       ErrInvalidCredentials,
		},
		{
			name:          "bare user prefix rejected",
			authorization: "Bearer user-",
			wantErr:       ErrInvalidCredentials,
		},
		{
			name:          "non-bearer scheme rejected",
			authorization: "Basic dXNlcjpwYXNz",
			wantErr:       ErrMalformedHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal, err := authenticator.Authenticate(tt.authorization)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, principal.Role)
			assert.Equal(t, tt.wantSubject, principal.Subject)
		})
	}
}

func TestAuthenticate_CustomAdminToken(t *testing.T) {
	authenticator := NewAuthenticator("s3cret")

	principal, err := authenticator.Authenticate("Bearer s3cret")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, principal.Role)

	_, err = authenticator.Authenticate("Bearer demo-token")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPrincipal_RateKey(t *testing.T) {
	assert.Equal(t, "user:user-alice", Principal{Subject: "user-alice", Role: RoleUser}.RateKey())
	assert.Equal(t, "anonymous:anonymous", Principal{Subject: "anonymous", Role: RoleAnonymous}.RateKey())
}
