package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockTimeout = errors.New("lock acquisition timeout")
	ErrNotHeld     = errors.New("lock was not held by this holder")
)

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward only for the current holder.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Mutex is a single-holder lease on a Redis key. The lease is renewed at
// half its TTL until Unlock is called.
type Mutex struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
	retry  time.Duration

	mu       sync.Mutex
	stopOnce sync.Once
	stop     chan struct{}
}

func NewMutex(client redis.Cmdable, key string, ttl time.Duration) *Mutex {
	return &Mutex{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		stop:   make(chan struct{}),
	}
}

// Lock blocks until the lease is acquired, ctx ends, or timeout elapses.
// A zero timeout waits for ctx alone.
func (m *Mutex) Lock(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		ok, err := m.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrLockTimeout, m.key)
			}
			return ctx.Err()
		case <-time.After(m.retry):
		}
	}
}

func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	acquired, err := m.client.SetNX(ctx, m.key, m.token, m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", m.key, err)
	}
	if acquired {
		go m.renew()
	}
	return acquired, nil
}

// Unlock releases the lease. Calling it more than once is harmless.
func (m *Mutex) Unlock(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := releaseScript.Run(ctx, m.client, []string{m.key}, m.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", m.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (m *Mutex) renew() {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.ttl/2)
			n, err := extendScript.Run(ctx, m.client, []string{m.key}, m.token, m.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil || n == 0 {
				return
			}
		}
	}
}
