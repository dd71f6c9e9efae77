package services

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_GenerateAndValidate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	auth := NewAuthService("test-secret", 15*time.Minute, 24*time.Hour, clock)

	tokens, err := auth.GenerateTokens("u1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 900, tokens.ExpiresIn)

	claims, err := auth.ValidateToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", string(claims.UserID))
	assert.Equal(t, "alice", claims.Username)
	assert.NotEmpty(t, claims.ID)

	refresh, err := auth.ValidateRefreshToken(tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, refresh.ID)
}

func TestAuthService_TokenTypesAreNotInterchangeable(t *testing.T) {
	auth := NewAuthService("test-secret", time.Minute, time.Hour, clockwork.NewFakeClock())

	tokens, err := auth.GenerateTokens("u1", "alice")
	require.NoError(t, err)

	_, err = auth.ValidateToken(tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = auth.ValidateRefreshToken(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	auth := NewAuthService("test-secret", time.Minute, time.Hour, clock)

	tokens, err := auth.GenerateTokens("u1", "alice")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = auth.ValidateToken(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = auth.ValidateRefreshToken(tokens.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_WrongSecret(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer := NewAuthService("secret-a", time.Minute, time.Hour, clock)
	verifier := NewAuthService("secret-b", time.Minute, time.Hour, clock)

	tokens, err := issuer.GenerateTokens("u1", "alice")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = verifier.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_Revoke(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	auth := NewAuthService("test-secret", time.Minute, time.Hour, clock)

	tokens, err := auth.GenerateTokens("u1", "alice")
	require.NoError(t, err)
	claims, err := auth.ValidateToken(tokens.AccessToken)
	require.NoError(t, err)

	auth.Revoke(claims.ID, claims.ExpiresAt.Time)

	_, err = auth.ValidateToken(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrRevokedToken)

	_, err = auth.ValidateRefreshToken(tokens.RefreshToken)
	assert.NoError(t, err)
}
