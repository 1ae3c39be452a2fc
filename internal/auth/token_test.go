package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/domain"
)

func TestTokens(t *testing.T) {
	tokens := NewTokens("secret", TokenTTL)

	t.Run("round trip", func(t *testing.T) {
		raw, err := tokens.Issue("user-1", domain.RoleCustomer)
		require.NoError(t, err)

		claims, err := tokens.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, domain.RoleCustomer, claims.Role)
		assert.WithinDuration(t, time.Now().Add(TokenTTL), claims.ExpiresAt.Time, time.Minute)
	})

	t.Run("expired", func(t *testing.T) {
		past := NewTokens("secret", TokenTTL)
		past.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
		raw, err := past.Issue("user-1", domain.RoleCustomer)
		require.NoError(t, err)

		_, err = tokens.Parse(raw)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("wrong secret", func(t *testing.T) {
		raw, err := NewTokens("other", TokenTTL).Issue("user-1", domain.RoleAdmin)
		require.NoError(t, err)

		_, err = tokens.Parse(raw)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.Parse("not-a-token")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}

func TestCookieName(t *testing.T) {
	assert.Equal(t, "token", CookieName(domain.RoleCustomer))
	assert.Equal(t, "Admin", CookieName(domain.RoleAdmin))
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))

	_, err = HashPassword("short")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
