package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(t *testing.T, now *time.Time) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator("test-key", WithIssuer("commerce"), WithClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return a
}

func TestRequireAuthAllowsValidToken(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	a := newTestAuthenticator(t, &now)
	token, err := a.Issue("acc_1", []string{"Staff", "staff"}, time.Hour)
	require.NoError(t, err)

	var got *Identity
	handler := a.RequireAuth(RoleStaff)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "acc_1", got.UID)
	assert.Equal(t, []string{"staff"}, got.Roles)
}

func TestRequireAuthRejectsMissingRole(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	a := newTestAuthenticator(t, &now)
	token, err := a.Issue("acc_1", nil, time.Hour)
	require.NoError(t, err)

	handler := a.RequireAuth(RoleStaff)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient_role")
}

func TestRequireAuthRejectsExpiredAndForgedTokens(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	a := newTestAuthenticator(t, &now)
	expired, err := a.Issue("acc_1", nil, time.Minute)
	require.NoError(t, err)
	now = now.Add(time.Hour)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "acc_1", Issuer: "commerce", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString([]byte("other-key"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{name: "missing", header: "", code: "unauthenticated"},
		{name: "scheme", header: "Basic abc", code: "unauthenticated"},
		{name: "expired", header: "Bearer " + expired, code: "token_expired"},
		{name: "forged", header: "Bearer " + forged, code: "invalid_token"},
	}
	handler := a.RequireAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
		})
	}
}

func TestVerifyAppliesFallbackRole(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	a := newTestAuthenticator(t, &now)
	token, err := a.Issue("acc_2", nil, 0)
	require.NoError(t, err)

	identity, err := a.Verify(token)
	require.NoError(t, err)
	assert.True(t, identity.HasRole(RoleCustomer))
	assert.False(t, identity.HasAnyRole(RoleStaff, RoleAdmin))
}

func TestNewAuthenticatorRequiresKey(t *testing.T) {
	_, err := NewAuthenticator(" ")
	require.Error(t, err)
}
