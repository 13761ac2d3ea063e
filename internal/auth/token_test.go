package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_RoundTrip(t *testing.T) {
	tok := NewTokens("s3cret", 24*time.Hour)
	s, err := tok.Issue(7, "a@b.co")
	require.NoError(t, err)

	c, err := tok.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.UserID)
	assert.Equal(t, "a@b.co", c.Email)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), c.ExpiresAt.Time, time.Minute)
}

func TestTokens_Rejects(t *testing.T) {
	tok := NewTokens("s3cret", time.Hour)

	t.Run("expired", func(t *testing.T) {
		old := NewTokens("s3cret", time.Hour)
		old.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		s, err := old.Issue(1, "a@b.co")
		require.NoError(t, err)
		_, err = tok.Parse(s)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		s, err := NewTokens("other", time.Hour).Issue(1, "a@b.co")
		require.NoError(t, err)
		_, err = tok.Parse(s)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		claims := Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("s3cret"))
		require.NoError(t, err)
		_, err = tok.Parse(s)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tok.Parse("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
