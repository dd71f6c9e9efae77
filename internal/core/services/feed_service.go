package services

import (
	"context"
	"fmt"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
	"novaled/pkg/utils"
	"novaled/pkg/validation"

	"go.uber.org/zap"
)

// FeedService creates posts and serves the feed and per-user post lists.
type FeedService struct {
	store        ports.SessionStore
	posts        ports.PostRepository
	users        ports.UserRepository
	maxPostBytes int
	logger       *zap.SugaredLogger
}

// NewFeedService creates a feed service.
func NewFeedService(
	store ports.SessionStore,
	posts ports.PostRepository,
	users ports.UserRepository,
	maxPostBytes int,
	logger *zap.SugaredLogger,
) *FeedService {
	if maxPostBytes == 0 {
		maxPostBytes = 10 << 20
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &FeedService{
		store:        store,
		posts:        posts,
		users:        users,
		maxPostBytes: maxPostBytes,
		logger:       logger,
	}
}

// CreatePost publishes an image or video post. The declared type must match
// the media's MIME type.
func (s *FeedService) CreatePost(ctx context.Context, author domain.UserID, caption string, mediaType domain.MediaType, mediaDataURL string) (*domain.Post, error) {
	caption = utils.SanitizeString(caption)
	if err := validation.ValidateStringLength(caption, 0, validation.MaxCaptionLength, "caption"); err != nil {
		return nil, invalidInput(err)
	}
	if mediaType != domain.MediaImage && mediaType != domain.MediaVideo {
		return nil, invalidInput(fmt.Errorf("post type must be image or video"))
	}
	if _, err := validation.ParseDataURL(mediaDataURL, s.maxPostBytes, string(mediaType)+"/"); err != nil {
		return nil, invalidInput(err)
	}

	user, err := s.users.GetByID(ctx, author)
	if err != nil {
		return nil, err
	}
	if user.Banned {
		return nil, domain.ErrBanned
	}

	now, err := s.store.ServerTimestamp(ctx)
	if err != nil {
		return nil, domain.NewStoreError("timestamp", domain.PostsCollection, err)
	}

	post := &domain.Post{
		ID:        domain.PostID(utils.NewPostID(now)),
		UserID:    user.ID,
		Username:  user.DisplayName(),
		Avatar:    user.Avatar,
		Caption:   caption,
		Type:      mediaType,
		MediaURL:  mediaDataURL,
		Timestamp: now,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}

	// The counter is advisory; a lost update only skews the profile badge.
	if err := s.users.Update(ctx, user.ID, map[string]any{"postCount": user.PostCount + 1}); err != nil {
		s.logger.Warnw("failed to bump post count", "user_id", user.ID, "error", err)
	}

	s.logger.Infow("post created", "post_id", post.ID, "user_id", user.ID, "type", mediaType)
	return post, nil
}

// ListFeed returns all posts, newest first.
func (s *FeedService) ListFeed(ctx context.Context) ([]*domain.Post, error) {
	return s.posts.List(ctx)
}

// ListUserPosts returns the posts of author, newest first.
func (s *FeedService) ListUserPosts(ctx context.Context, author domain.UserID) ([]*domain.Post, error) {
	posts, err := s.posts.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Post, 0)
	for _, p := range posts {
		if p.UserID == author {
			out = append(out, p)
		}
	}
	return out, nil
}

// SubscribeFeed calls fn with the whole feed, newest first, now and after
// every change to the posts collection. Posts that do not decode are left
// out.
func (s *FeedService) SubscribeFeed(ctx context.Context, fn func(posts []*domain.Post)) (ports.Unsubscribe, error) {
	unsubscribe, err := s.store.Subscribe(ctx, domain.PostsCollection, func(snap ports.Snapshot) {
		posts, skipped := PostsFromSnapshot(snap)
		if len(skipped) > 0 {
			s.logger.Warnw("skipping undecodable posts", "keys", skipped)
		}
		fn(posts)
	})
	if err != nil {
		return nil, domain.NewStoreError("subscribe", domain.PostsCollection, err)
	}
	return unsubscribe, nil
}

// PostsFromSnapshot decodes a posts snapshot, newest first, and returns the
// keys it could not decode.
func PostsFromSnapshot(snap ports.Snapshot) ([]*domain.Post, []string) {
	posts := make([]*domain.Post, 0, len(snap.Children))
	skipped := ports.ForEachValid(snap, func(key string, p *domain.Post) {
		p.ID = domain.PostID(key)
		posts = append(posts, p)
	})
	domain.SortNewestFirst(posts)
	return posts, skipped
}
