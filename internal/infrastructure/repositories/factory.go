package repositories

import (
	"context"
	"time"

	"novaled/internal/core/ports"
	"novaled/internal/infrastructure/reliability"
	"novaled/internal/infrastructure/repositories/document"
	memstore "novaled/internal/infrastructure/store/memory"
	redisstore "novaled/internal/infrastructure/store/redis"
	"novaled/pkg/circuitbreaker"
	"novaled/pkg/config"
	"novaled/pkg/retry"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory builds the session store and the repositories on top of
// it. A Redis backend that cannot be reached falls back to memory.
type RepositoryFactory struct {
	backend     string
	redisClient *redis.Client
	redisStore  *redisstore.RedisStore
	memoryStore *memstore.MemoryStore
	store       *reliability.StoreWrapper
	locker      ports.Locker
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects the configured store backend.
func NewRepositoryFactory(cfg *config.Config, clock clockwork.Clock, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		backend: "memory",
		logger:  logger,
	}

	var raw ports.SessionStore
	if cfg.Store.Backend == "redis" {
		client, err := redisstore.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory store",
				"error", err,
			)
		} else {
			factory.backend = "redis"
			factory.redisClient = client
			factory.redisStore = redisstore.NewRedisStore(client, logger)
			factory.locker = redisstore.NewLocker(client, logger)
			raw = factory.redisStore
		}
	}

	if raw == nil {
		factory.memoryStore = memstore.NewMemoryStore(logger, memstore.WithClock(clock))
		factory.locker = memstore.NewLocker()
		raw = factory.memoryStore
	}
	logger.Infow("session store ready", "backend", factory.backend)

	retryConfig := retry.DefaultConfig()
	retryConfig.MaxAttempts = cfg.Store.ReadRetries + 1

	breakerConfig := circuitbreaker.DefaultConfig()
	breakerConfig.FailureThreshold = cfg.Store.BreakerFailures
	breakerConfig.Timeout = cfg.Store.BreakerTimeout

	factory.store = reliability.NewStoreWrapper(raw, retryConfig, breakerConfig, logger,
		circuitbreaker.WithClock(clock))
	return factory, nil
}

// Backend reports "redis" or "memory".
func (f *RepositoryFactory) Backend() string {
	return f.backend
}

// Store returns the wrapped document store.
func (f *RepositoryFactory) Store() ports.SessionStore {
	return f.store
}

// Locker returns the lock manager for the configured backend.
func (f *RepositoryFactory) Locker() ports.Locker {
	return f.locker
}

func (f *RepositoryFactory) BreakerState() circuitbreaker.State {
	return f.store.State()
}

// CreateUserRepository creates a user repository.
func (f *RepositoryFactory) CreateUserRepository() ports.UserRepository {
	return document.NewUserRepository(f.store)
}

// CreatePostRepository creates a post repository.
func (f *RepositoryFactory) CreatePostRepository() ports.PostRepository {
	return document.NewPostRepository(f.store)
}

// CreateLiveRepository creates a live session repository.
func (f *RepositoryFactory) CreateLiveRepository() ports.LiveRepository {
	return document.NewLiveRepository(f.store, f.logger)
}

// Close stops subscriptions and closes the Redis connection if used.
func (f *RepositoryFactory) Close() error {
	if f.memoryStore != nil {
		_ = f.memoryStore.Close()
	}
	if f.redisStore != nil {
		_ = f.redisStore.Close()
	}
	if f.redisClient != nil {
		return redisstore.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck pings Redis when it backs the store.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
