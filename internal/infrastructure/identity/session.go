package identity

import (
	"context"
	"sync"

	"novaled/internal/core/domain"
	"novaled/internal/core/services"
)

// Session is the authenticated principal of one WebSocket connection.
// Signing out revokes the access token and runs the registered hooks once.
type Session struct {
	auth   services.AuthService
	claims *services.Claims

	mu        sync.Mutex
	signedOut bool
	hooks     []func()
}

// NewSession wraps the claims of an authenticated connection. Nil claims mean signed out.
func NewSession(auth services.AuthService, claims *services.Claims) *Session {
	return &Session{auth: auth, claims: claims}
}

// CurrentUserID returns the signed-in user, or empty.
func (s *Session) CurrentUserID() domain.UserID {
	if s.claims == nil {
		return ""
	}
	return s.claims.UserID
}

func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims != nil && s.claims.UserID != "" && !s.signedOut
}

// OnSignOut registers fn to run when the session signs out.
func (s *Session) OnSignOut(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if s.signedOut {
		s.mu.Unlock()
		return nil
	}
	s.signedOut = true
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	if s.claims != nil && s.claims.ExpiresAt != nil {
		s.auth.Revoke(s.claims.ID, s.claims.ExpiresAt.Time)
	}
	for _, fn := range hooks {
		fn()
	}
	return nil
}
