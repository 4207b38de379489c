package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bearerFor(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestKeyFromRequest_UserTakesPrecedence(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/completion", nil)
	r.RemoteAddr = "203.0.113.7:41000"
	r.Header.Set("Authorization", bearerFor(t, "alice"))

	assert.Equal(t, "user:alice", KeyFromRequest(r))
}

func TestKeyFromRequest_FallsBackToIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/completion", nil)
	r.RemoteAddr = "203.0.113.7:41000"

	assert.Equal(t, "ip:203.0.113.7", KeyFromRequest(r))
}

func TestKeyFromRequest_MalformedTokenFallsBackToIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/completion", nil)
	r.RemoteAddr = "203.0.113.7:41000"
	r.Header.Set("Authorization", "Bearer not-a-jwt")

	assert.Equal(t, "ip:203.0.113.7", KeyFromRequest(r))
}

func TestClientIP_ForwardedForWins(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.1")

	assert.Equal(t, "198.51.100.9", clientIP(r))
}

func TestHasPathPrefix_SegmentBoundaries(t *testing.T) {
	assert.True(t, hasPathPrefix("/v1/completion", "/v1"))
	assert.True(t, hasPathPrefix("/v1", "/v1"))
	assert.False(t, hasPathPrefix("/v1x", "/v1"))
	assert.False(t, hasPathPrefix("/v", "/v1"))
}
