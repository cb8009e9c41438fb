package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserStoreSeedsAdmin(t *testing.T) {
	store := NewMemoryUserStore()

	user, err := store.GetUser(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.True(t, user.HasScope("logs:write"))
	assert.True(t, VerifyPassword(user.PasswordHash, "admin"))
	assert.False(t, VerifyPassword(user.PasswordHash, "wrong-password"))
}

func TestMemoryUserStoreUnknownUser(t *testing.T) {
	store := NewMemoryUserStore()
	_, err := store.GetUser(context.Background(), "nobody")
	assert.Error(t, err)
}

func TestHashPasswordVerifiesBack(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "s3cret!"))
	assert.False(t, VerifyPassword(hash, "wrong"))
}
