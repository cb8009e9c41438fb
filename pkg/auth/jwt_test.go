package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", "nightwatch", 30*time.Minute)

	token, expiresIn, err := issuer.Issue("admin", "tenant-a", []string{"logs:write", "logs:read"}, "203.0.113.5")
	require.NoError(t, err)
	assert.Equal(t, 1800, expiresIn)

	claims, err := issuer.Verify(token, "203.0.113.5")
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "tenant-a", claims.TenantID)
	assert.True(t, claims.HasScope("logs:write"))
	assert.False(t, claims.HasScope("admin"))
}

func TestVerifyRejectsIPMismatch(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", "nightwatch", 30*time.Minute)
	token, _, err := issuer.Issue("admin", "tenant-a", []string{"logs:write"}, "203.0.113.5")
	require.NoError(t, err)

	_, err = issuer.Verify(token, "198.51.100.9")
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", "nightwatch", 30*time.Minute)
	token, _, err := issuer.Issue("admin", "tenant-a", []string{"logs:write"}, "203.0.113.5")
	require.NoError(t, err)

	other := NewTokenIssuer("different-secret", "nightwatch", 30*time.Minute)
	_, err = other.Verify(token, "203.0.113.5")
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", "nightwatch", -time.Minute)
	token, _, err := issuer.Issue("admin", "tenant-a", []string{"logs:write"}, "203.0.113.5")
	require.NoError(t, err)

	_, err = issuer.Verify(token, "203.0.113.5")
	assert.Error(t, err)
}

func TestRequireScope(t *testing.T) {
	claims := &Claims{Scopes: []string{"logs:write"}}
	assert.NoError(t, RequireScope(claims, "logs:write"))
	assert.Error(t, RequireScope(claims, "alerts:write"))
}
