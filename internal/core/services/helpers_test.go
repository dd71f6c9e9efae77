package services

import (
	"context"
	"testing"
	"time"

	"novaled/internal/core/domain"
	"novaled/internal/infrastructure/repositories/document"
	"novaled/internal/infrastructure/store/memory"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testEpoch = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	clock *clockwork.FakeClock
	store *memory.MemoryStore
	users *document.UserRepository
	posts *document.PostRepository
	lives *document.LiveRepository
	auth  AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	store := memory.NewMemoryStore(nil, memory.WithClock(clock))
	t.Cleanup(func() { _ = store.Close() })

	// The revocation cache runs its own ticker; keep it off the shared
	// clock so BlockUntil counts only the code under test.
	auth := NewAuthService("test-secret", time.Hour, 24*time.Hour, clockwork.NewFakeClockAt(testEpoch))

	return &testEnv{
		clock: clock,
		store: store,
		users: document.NewUserRepository(store),
		posts: document.NewPostRepository(store),
		lives: document.NewLiveRepository(store, nil),
		auth:  auth,
	}
}

func (e *testEnv) accounts() *AccountService {
	return NewAccountService(e.users, e.auth, e.clock, AccountConfig{BcryptCost: bcrypt.MinCost}, nil)
}

// seedUser stores a user directly, bypassing registration rules.
func (e *testEnv) seedUser(t *testing.T, id, username string, mutate ...func(*domain.User)) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:        domain.UserID(id),
		Username:  username,
		Email:     username + "@example.com",
		IsOwner:   domain.IsOwnerName(username),
		Avatar:    domain.DefaultAvatar,
		CreatedAt: e.clock.Now(),
	}
	for _, fn := range mutate {
		fn(user)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, e.users.Create(context.Background(), user, &domain.Account{
		Email:        user.Email,
		PasswordHash: string(hash),
	}))
	return user
}

func banned(u *domain.User) { u.Banned = true }

const (
	pngDataURL = "data:image/png;base64,iVBORw0KGgo="
	mp4DataURL = "data:video/mp4;base64,AAAAIGZ0eXBpc29t"
)
