package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_ExpiresAfterTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[string](time.Minute, WithClock(clock), WithCleanupInterval(0))
	defer c.Stop()

	c.Set("a", "1")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	clock.Advance(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_SetWithTTLAndDelete(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[int](time.Minute, WithClock(clock), WithCleanupInterval(0))
	defer c.Stop()

	c.SetWithTTL("short", 1, time.Second)
	c.Set("long", 2)
	clock.Advance(2 * time.Second)

	_, ok := c.Get("short")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Delete("long")
	assert.Equal(t, 0, c.Len())
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c := New[bool](time.Minute, WithCleanupInterval(0))
	defer c.Stop()

	c.Set("user:1", true)
	c.Set("user:2", true)
	c.Set("post:1", true)

	c.Invalidate("user:")
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("post:1")
	assert.True(t, ok)
}

func TestCache_GetOrLoad(t *testing.T) {
	c := New[string](time.Minute, WithCleanupInterval(0))
	defer c.Stop()

	loads := 0
	load := func(context.Context) (string, error) {
		loads++
		return "loaded", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad(context.Background(), "k", load)
		require.NoError(t, err)
		assert.Equal(t, "loaded", v)
	}
	assert.Equal(t, 1, loads)

	_, err := c.GetOrLoad(context.Background(), "bad", func(context.Context) (string, error) {
		return "", errors.New("nope")
	})
	assert.Error(t, err)
	_, ok := c.Get("bad")
	assert.False(t, ok)
}

func TestCache_SweeperRemovesExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[int](time.Second, WithClock(clock), WithCleanupInterval(time.Second))
	defer c.Stop()

	c.Set("a", 1)
	clock.BlockUntil(1)
	clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return len(c.items) == 0
	}, time.Second, 5*time.Millisecond)
}
