package repositories

import (
	"context"
	"testing"

	"novaled/internal/core/domain"
	"novaled/pkg/config"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRepositoryFactory_MemoryBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	factory, err := NewRepositoryFactory(cfg, clockwork.NewRealClock(), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer factory.Close()

	assert.Equal(t, "memory", factory.Backend())
	assert.NoError(t, factory.HealthCheck(context.Background()))

	ctx := context.Background()
	users := factory.CreateUserRepository()
	require.NoError(t, users.Create(ctx, &domain.User{ID: "u1", Username: "alice"}, &domain.Account{}))

	user, err := users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	release, err := factory.Locker().Acquire(ctx, "live:u1", cfg.Live.LockTTL)
	require.NoError(t, err)
	release()
}

func TestRepositoryFactory_FallsBackWhenRedisUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Backend = "redis"
	cfg.Redis.Address = "127.0.0.1:1"

	factory, err := NewRepositoryFactory(cfg, clockwork.NewRealClock(), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer factory.Close()

	assert.Equal(t, "memory", factory.Backend())
	lives, err := factory.CreateLiveRepository().ListLive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, lives)
}
