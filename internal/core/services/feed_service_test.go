package services

import (
	"context"
	"testing"
	"time"

	"novaled/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedService_CreatePost(t *testing.T) {
	env := newTestEnv(t)
	feed := NewFeedService(env.store, env.posts, env.users, 0, nil)
	ctx := context.Background()
	env.seedUser(t, "u1", "alice_dev")

	post, err := feed.CreatePost(ctx, "u1", "  sunset  ", domain.MediaImage, pngDataURL)
	require.NoError(t, err)

	assert.Equal(t, "sunset", post.Caption)
	assert.Equal(t, domain.OwnerBadge+" alice_dev", post.Username)
	assert.Equal(t, testEpoch, post.Timestamp)

	user, err := env.users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, user.PostCount)
}

func TestFeedService_CreatePostValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "u1", "alice")
	env.seedUser(t, "u2", "mallory", banned)

	feed := NewFeedService(env.store, env.posts, env.users, 0, nil)

	_, err := feed.CreatePost(ctx, "u1", "", domain.MediaVideo, pngDataURL)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "type must match MIME")

	_, err = feed.CreatePost(ctx, "u1", "", domain.MediaType("gif"), pngDataURL)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = feed.CreatePost(ctx, "u1", "", domain.MediaImage, "not a data url")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = feed.CreatePost(ctx, "u2", "", domain.MediaImage, pngDataURL)
	assert.ErrorIs(t, err, domain.ErrBanned)

	tiny := NewFeedService(env.store, env.posts, env.users, 4, nil)
	_, err = tiny.CreatePost(ctx, "u1", "", domain.MediaImage, pngDataURL)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	count, err := env.posts.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFeedService_ListOrdering(t *testing.T) {
	env := newTestEnv(t)
	feed := NewFeedService(env.store, env.posts, env.users, 0, nil)
	ctx := context.Background()
	env.seedUser(t, "u1", "alice")
	env.seedUser(t, "u2", "bob")

	first, err := feed.CreatePost(ctx, "u1", "one", domain.MediaImage, pngDataURL)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	second, err := feed.CreatePost(ctx, "u2", "two", domain.MediaVideo, mp4DataURL)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	third, err := feed.CreatePost(ctx, "u1", "three", domain.MediaImage, pngDataURL)
	require.NoError(t, err)

	all, err := feed.ListFeed(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []domain.PostID{third.ID, second.ID, first.ID}, []domain.PostID{all[0].ID, all[1].ID, all[2].ID})

	mine, err := feed.ListUserPosts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, third.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)
}
