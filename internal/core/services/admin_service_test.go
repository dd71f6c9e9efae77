package services

import (
	"context"
	"testing"
	"time"

	"novaled/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBanListener struct {
	mock.Mock
}

func (m *mockBanListener) UserBanned(ctx context.Context, id domain.UserID) {
	m.Called(id)
}

func seedAdminFixture(t *testing.T, env *testEnv) {
	t.Helper()
	env.seedUser(t, "owner", "the_dev")
	env.clock.Advance(time.Minute)
	env.seedUser(t, "u1", "carol")
	env.clock.Advance(time.Minute)
	env.seedUser(t, "u2", "alice", banned)
	env.clock.Advance(time.Minute)
	env.seedUser(t, "u3", "Bob")
}

func usernames(users []*domain.User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.Username
	}
	return out
}

func TestAdminService_RequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	seedAdminFixture(t, env)
	admin := NewAdminService(env.users, env.posts, env.lives, nil)
	ctx := context.Background()

	_, err := admin.Stats(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrOwnerOnly)
	_, err = admin.ListUsers(ctx, "u1", "")
	assert.ErrorIs(t, err, domain.ErrOwnerOnly)
	_, err = admin.BanList(ctx, "u1", domain.BanFilterAll, "")
	assert.ErrorIs(t, err, domain.ErrOwnerOnly)
	assert.ErrorIs(t, admin.SetBanned(ctx, "u1", "u3", true), domain.ErrOwnerOnly)
}

func TestAdminService_Stats(t *testing.T) {
	env := newTestEnv(t)
	seedAdminFixture(t, env)
	admin := NewAdminService(env.users, env.posts, env.lives, nil)
	ctx := context.Background()

	require.NoError(t, env.store.Write(ctx, domain.LivePath("u1"), &domain.BroadcastSession{
		OwnerID: "u1", IsLive: true, StartTime: env.clock.Now(),
	}))
	require.NoError(t, env.store.Write(ctx, domain.PostPath("p1"), &domain.Post{UserID: "u1"}))

	stats, err := admin.Stats(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{TotalUsers: 4, BannedUsers: 1, TotalPosts: 1, ActiveLives: 1}, *stats)
}

func TestAdminService_ListUsers(t *testing.T) {
	env := newTestEnv(t)
	seedAdminFixture(t, env)
	admin := NewAdminService(env.users, env.posts, env.lives, nil)
	ctx := context.Background()

	users, err := admin.ListUsers(ctx, "owner", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "alice", "carol", "the_dev"}, usernames(users))

	users, err = admin.ListUsers(ctx, "owner", "CAROL@")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, usernames(users))
}

func TestAdminService_BanList(t *testing.T) {
	env := newTestEnv(t)
	seedAdminFixture(t, env)
	admin := NewAdminService(env.users, env.posts, env.lives, nil)
	ctx := context.Background()

	all, err := admin.BanList(ctx, "owner", domain.BanFilterAll, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "Bob", "carol"}, usernames(all))

	bannedOnly, err := admin.BanList(ctx, "owner", domain.BanFilterBanned, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, usernames(bannedOnly))

	active, err := admin.BanList(ctx, "owner", domain.BanFilterActive, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, usernames(active))
}

func TestAdminService_SetBanned(t *testing.T) {
	env := newTestEnv(t)
	seedAdminFixture(t, env)
	env.seedUser(t, "owner2", "devops")
	admin := NewAdminService(env.users, env.posts, env.lives, nil)
	listener := &mockBanListener{}
	listener.On("UserBanned", domain.UserID("u3")).Once()
	admin.SetBanListener(listener)
	ctx := context.Background()

	require.NoError(t, admin.SetBanned(ctx, "owner", "u3", true))
	user, err := env.users.GetByID(ctx, "u3")
	require.NoError(t, err)
	assert.True(t, user.Banned)

	require.NoError(t, admin.SetBanned(ctx, "owner", "u2", false))
	user, err = env.users.GetByID(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, user.Banned)

	assert.ErrorIs(t, admin.SetBanned(ctx, "owner", "owner2", true), domain.ErrOwnerCannotBeBanned)
	assert.ErrorIs(t, admin.SetBanned(ctx, "owner", "missing", true), domain.ErrUserNotFound)

	listener.AssertExpectations(t)
}
