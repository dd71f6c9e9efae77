package services

import (
	"context"
	"strings"
	"testing"

	"novaled/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_Register(t *testing.T) {
	env := newTestEnv(t)
	accounts := env.accounts()
	ctx := context.Background()

	user, tokens, err := accounts.Register(ctx, "alice", " Alice@Example.com ", "secret1", "secret1")
	require.NoError(t, err)
	require.NotNil(t, tokens)

	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.False(t, user.IsOwner)
	assert.Equal(t, domain.DefaultAvatar, user.Avatar)
	assert.Zero(t, user.PostCount)

	stored, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, stored.Username)

	claims, err := env.auth.ValidateToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestAccountService_RegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	accounts := env.accounts()
	ctx := context.Background()
	env.seedUser(t, "u1", "taken")

	tests := []struct {
		name     string
		username string
		email    string
		password string
		confirm  string
		wantErr  error
	}{
		{"mismatched passwords", "bob", "bob@example.com", "secret1", "secret2", domain.ErrInvalidInput},
		{"short password", "bob", "bob@example.com", "abc", "abc", domain.ErrInvalidInput},
		{"bad email", "bob", "bob", "secret1", "secret1", domain.ErrInvalidInput},
		{"emoji for regular user", "bob🔥", "bob@example.com", "secret1", "secret1", domain.ErrEmojiNotAllowed},
		{"username taken", "Taken", "bob@example.com", "secret1", "secret1", domain.ErrUsernameTaken},
		{"email taken", "bob", "taken@example.com", "secret1", "secret1", domain.ErrEmailTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := accounts.Register(ctx, tt.username, tt.email, tt.password, tt.confirm)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAccountService_RegisterOwnerMayUseEmoji(t *testing.T) {
	env := newTestEnv(t)

	user, _, err := env.accounts().Register(context.Background(), "dev🔥", "dev@example.com", "secret1", "secret1")
	require.NoError(t, err)
	assert.True(t, user.IsOwner)
	assert.True(t, strings.HasPrefix(user.DisplayName(), domain.OwnerBadge))
}

func TestAccountService_Login(t *testing.T) {
	env := newTestEnv(t)
	accounts := env.accounts()
	ctx := context.Background()
	env.seedUser(t, "u1", "alice")
	env.seedUser(t, "u2", "mallory", banned)

	user, tokens, err := accounts.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), user.ID)
	assert.NotEmpty(t, tokens.AccessToken)

	_, _, err = accounts.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, _, err = accounts.Login(ctx, "nobody", "secret1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, _, err = accounts.Login(ctx, "mallory", "secret1")
	assert.ErrorIs(t, err, domain.ErrBanned)
}

func TestAccountService_RefreshRevokesOldToken(t *testing.T) {
	env := newTestEnv(t)
	accounts := env.accounts()
	ctx := context.Background()
	env.seedUser(t, "u1", "alice")

	_, tokens, err := accounts.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	fresh, err := accounts.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, fresh.RefreshToken)

	_, err = accounts.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrRevokedToken)
}

func TestAccountService_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	accounts := env.accounts()
	ctx := context.Background()
	env.seedUser(t, "u1", "alice")

	err := accounts.ChangePassword(ctx, "u1", "wrong", "newpass1", "newpass1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	err = accounts.ChangePassword(ctx, "u1", "secret1", "newpass1", "other")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	require.NoError(t, accounts.ChangePassword(ctx, "u1", "secret1", "newpass1", "newpass1"))

	_, _, err = accounts.Login(ctx, "alice", "secret1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, _, err = accounts.Login(ctx, "alice", "newpass1")
	assert.NoError(t, err)
}

func TestAccountService_UpdateUsername(t *testing.T) {
	env := newTestEnv(t)
	accounts := env.accounts()
	ctx := context.Background()
	env.seedUser(t, "u1", "alice")
	env.seedUser(t, "u2", "bob")

	_, err := accounts.UpdateUsername(ctx, "u1", "bob")
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)

	_, err = accounts.UpdateUsername(ctx, "u1", "alice😀")
	assert.ErrorIs(t, err, domain.ErrEmojiNotAllowed)

	user, err := accounts.UpdateUsername(ctx, "u1", "alice_dev")
	require.NoError(t, err)
	assert.Equal(t, "alice_dev", user.Username)
	assert.True(t, user.IsOwner)

	user, err = accounts.UpdateUsername(ctx, "u1", "alice")
	require.NoError(t, err)
	assert.False(t, user.IsOwner)
}

func TestAccountService_UpdateAvatar(t *testing.T) {
	env := newTestEnv(t)
	accounts := env.accounts()
	ctx := context.Background()
	env.seedUser(t, "u1", "alice")

	user, err := accounts.UpdateAvatar(ctx, "u1", pngDataURL)
	require.NoError(t, err)
	assert.Equal(t, pngDataURL, user.Avatar)

	_, err = accounts.UpdateAvatar(ctx, "u1", mp4DataURL)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	small := NewAccountService(env.users, env.auth, env.clock, AccountConfig{MaxAvatarBytes: 4}, nil)
	_, err = small.UpdateAvatar(ctx, "u1", pngDataURL)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
