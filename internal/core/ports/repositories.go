package ports

import (
	"context"

	"novaled/internal/core/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User, account *domain.Account) error
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetAccount(ctx context.Context, id domain.UserID) (*domain.Account, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	Update(ctx context.Context, id domain.UserID, fields map[string]any) error
	UpdatePassword(ctx context.Context, id domain.UserID, hash string) error
}

type PostRepository interface {
	Create(ctx context.Context, post *domain.Post) error
	List(ctx context.Context) ([]*domain.Post, error)
	Count(ctx context.Context) (int, error)
}

type LiveRepository interface {
	ListLive(ctx context.Context) ([]*domain.BroadcastSession, error)
	Delete(ctx context.Context, id domain.UserID) error
}
