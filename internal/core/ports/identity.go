package ports

import (
	"context"

	"novaled/internal/core/domain"
)

// IdentityProvider is the authenticated principal of one client connection.
type IdentityProvider interface {
	CurrentUserID() domain.UserID
	IsAuthenticated() bool
	SignOut(ctx context.Context) error
}
