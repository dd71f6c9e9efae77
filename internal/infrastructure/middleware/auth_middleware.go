package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
	"novaled/internal/core/services"
	"novaled/pkg/cache"
	apperrors "novaled/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

const (
	ContextUserID = "user_id"
	ContextClaims = "claims"
	ContextUser   = "user"
)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) (string, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func abortWith(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, err.Response())
}

func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			abortWith(c, apperrors.NewUnauthorizedError("authorization header required"))
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			abortWith(c, apperrors.NewUnauthorizedError(err.Error()))
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// ActiveUserMiddleware loads the caller and rejects banned accounts. Lookups
// are cached briefly so a ban takes effect within ttl.
func ActiveUserMiddleware(users ports.UserRepository, ttl time.Duration, clock clockwork.Clock) gin.HandlerFunc {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	seen := cache.New[*domain.User](ttl, cache.WithClock(clock))

	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			abortWith(c, apperrors.NewUnauthorizedError("authentication required"))
			return
		}

		user, err := seen.GetOrLoad(c.Request.Context(), string(userID), func(ctx context.Context) (*domain.User, error) {
			return users.GetByID(ctx, userID)
		})
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				abortWith(c, apperrors.NewUnauthorizedError("account no longer exists"))
				return
			}
			abortWith(c, AppErrorFrom(err))
			return
		}
		if user.Banned {
			abortWith(c, AppErrorFrom(domain.ErrBanned))
			return
		}

		c.Set(ContextUser, user)
		c.Next()
	}
}

// OwnerOnlyMiddleware must run after ActiveUserMiddleware.
func OwnerOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || !user.IsOwner {
			abortWith(c, AppErrorFrom(domain.ErrOwnerOnly))
			return
		}
		c.Next()
	}
}

func UserID(c *gin.Context) (domain.UserID, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return "", false
	}
	id, ok := v.(domain.UserID)
	return id, ok && id != ""
}

func Claims(c *gin.Context) (*services.Claims, bool) {
	v, exists := c.Get(ContextClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*services.Claims)
	return claims, ok
}

func CurrentUser(c *gin.Context) (*domain.User, bool) {
	v, exists := c.Get(ContextUser)
	if !exists {
		return nil, false
	}
	user, ok := v.(*domain.User)
	return user, ok
}
