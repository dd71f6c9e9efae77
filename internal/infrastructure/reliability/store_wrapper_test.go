package reliability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
	"novaled/internal/infrastructure/store/memory"
	"novaled/pkg/circuitbreaker"
	"novaled/pkg/retry"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend unavailable")

// failingStore fails the first n reads and every write while failWrites is set.
type failingStore struct {
	*memory.MemoryStore

	mu         sync.Mutex
	readFails  int
	reads      int
	failWrites bool
	writes     int
}

func (s *failingStore) Read(ctx context.Context, path string) (ports.Snapshot, error) {
	s.mu.Lock()
	s.reads++
	fail := s.readFails > 0
	if fail {
		s.readFails--
	}
	s.mu.Unlock()
	if fail {
		return ports.Snapshot{}, errBackend
	}
	return s.MemoryStore.Read(ctx, path)
}

func (s *failingStore) Write(ctx context.Context, path string, value any) error {
	s.mu.Lock()
	s.writes++
	fail := s.failWrites
	s.mu.Unlock()
	if fail {
		return errBackend
	}
	return s.MemoryStore.Write(ctx, path, value)
}

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
}

func TestStoreWrapper_RetriesReads(t *testing.T) {
	backend := &failingStore{MemoryStore: memory.NewMemoryStore(nil), readFails: 2}
	store := NewStoreWrapper(backend, fastRetry(), circuitbreaker.DefaultConfig(), nil)
	ctx := context.Background()

	require.NoError(t, backend.MemoryStore.Write(ctx, "lives/u1", map[string]any{"isLive": true}))

	snap, err := store.Read(ctx, "lives/u1")
	require.NoError(t, err)
	assert.True(t, snap.Exists())
	assert.Equal(t, 3, backend.reads)
}

func TestStoreWrapper_ReadGivesUp(t *testing.T) {
	backend := &failingStore{MemoryStore: memory.NewMemoryStore(nil), readFails: 10}
	store := NewStoreWrapper(backend, fastRetry(), circuitbreaker.DefaultConfig(), nil)

	_, err := store.Read(context.Background(), "lives/u1")
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, 3, backend.reads)
}

func TestStoreWrapper_InvalidInputIsNotRetried(t *testing.T) {
	store := NewStoreWrapper(memory.NewMemoryStore(nil), fastRetry(), circuitbreaker.DefaultConfig(), nil)

	err := store.Write(context.Background(), "lives/u1", "not an object")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, circuitbreaker.StateClosed, store.State())
}

func TestStoreWrapper_MutationsAreNotRetried(t *testing.T) {
	backend := &failingStore{MemoryStore: memory.NewMemoryStore(nil), failWrites: true}
	store := NewStoreWrapper(backend, fastRetry(), circuitbreaker.DefaultConfig(), nil)

	err := store.Write(context.Background(), "lives/u1", map[string]any{"isLive": true})
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, 1, backend.writes)
}

func TestStoreWrapper_BreakerOpensAndRecovers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	backend := &failingStore{MemoryStore: memory.NewMemoryStore(nil), failWrites: true}
	cfg := circuitbreaker.Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             10 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
	store := NewStoreWrapper(backend, fastRetry(), cfg, nil, circuitbreaker.WithClock(clock))
	ctx := context.Background()
	value := map[string]any{"isLive": true}

	assert.ErrorIs(t, store.Write(ctx, "lives/u1", value), errBackend)
	assert.ErrorIs(t, store.Write(ctx, "lives/u1", value), errBackend)
	assert.Equal(t, circuitbreaker.StateOpen, store.State())

	assert.ErrorIs(t, store.Write(ctx, "lives/u1", value), circuitbreaker.ErrOpen)
	assert.Equal(t, 2, backend.writes, "an open breaker does not reach the backend")

	_, err := store.Read(ctx, "lives/u1")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)

	backend.mu.Lock()
	backend.failWrites = false
	backend.mu.Unlock()
	clock.Advance(11 * time.Second)

	require.NoError(t, store.Write(ctx, "lives/u1", value))
	assert.Equal(t, circuitbreaker.StateClosed, store.State())
}
