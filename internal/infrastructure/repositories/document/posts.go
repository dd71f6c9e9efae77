package document

import (
	"context"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
)

// PostRepository stores posts under the posts collection.
type PostRepository struct {
	store ports.SessionStore
}

// NewPostRepository creates a post repository over store.
func NewPostRepository(store ports.SessionStore) *PostRepository {
	return &PostRepository{store: store}
}

func (r *PostRepository) Create(ctx context.Context, post *domain.Post) error {
	path := domain.PostPath(post.ID)
	if err := r.store.Write(ctx, path, post); err != nil {
		return domain.NewStoreError("write", path, err)
	}
	return nil
}

// List returns all posts, newest first.
func (r *PostRepository) List(ctx context.Context) ([]*domain.Post, error) {
	snap, err := r.store.Read(ctx, domain.PostsCollection)
	if err != nil {
		return nil, domain.NewStoreError("read", domain.PostsCollection, err)
	}

	posts := make([]*domain.Post, 0, len(snap.Children))
	err = ports.ForEach(snap, func(key string, p *domain.Post) error {
		p.ID = domain.PostID(key)
		posts = append(posts, p)
		return nil
	})
	if err != nil {
		return nil, domain.NewStoreError("decode", domain.PostsCollection, err)
	}

	domain.SortNewestFirst(posts)
	return posts, nil
}

func (r *PostRepository) Count(ctx context.Context) (int, error) {
	snap, err := r.store.Read(ctx, domain.PostsCollection)
	if err != nil {
		return 0, domain.NewStoreError("read", domain.PostsCollection, err)
	}
	return len(snap.Children), nil
}
