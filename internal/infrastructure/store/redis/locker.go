package redis

import (
	"context"
	"time"

	"novaled/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker serializes broadcast transitions for a user across server instances.
type Locker struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// NewLocker creates a lock manager backed by client.
func NewLocker(client *redis.Client, logger *zap.SugaredLogger) *Locker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Locker{client: client, logger: logger}
}

// Acquire takes the lock for key, retrying for at most ttl.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	mutex := distributed.NewMutex(l.client, lockKey(key), ttl)
	if err := mutex.Lock(ctx, ttl); err != nil {
		return nil, err
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := mutex.Unlock(ctx); err != nil {
			l.logger.Warnw("failed to release lock", "key", key, "error", err)
		}
	}, nil
}
