package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"novaled/internal/infrastructure/store/memory"
	"novaled/pkg/circuitbreaker"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestHealthChecker_AllHealthy(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := memory.NewMemoryStore(zap.NewNop().Sugar(), memory.WithClock(clock))
	defer store.Close()

	h := NewHealthChecker(clock)
	h.AddStoreCheck(store, time.Second)
	h.AddBreakerCheck(func() circuitbreaker.State { return circuitbreaker.StateClosed })
	h.AddPingCheck("redis", func(ctx context.Context) error { return nil }, time.Second)

	status := h.CheckAll(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, clock.Now(), status.Timestamp)
	assert.Equal(t, map[string]string{
		"store":         "healthy",
		"store_breaker": "healthy",
		"redis":         "healthy",
	}, status.Checks)
	assert.True(t, h.IsReady(context.Background()))
}

func TestHealthChecker_FailingChecks(t *testing.T) {
	h := NewHealthChecker(clockwork.NewFakeClock())
	h.AddPingCheck("redis", func(ctx context.Context) error {
		return errors.New("connection refused")
	}, time.Second)
	h.AddBreakerCheck(func() circuitbreaker.State { return circuitbreaker.StateOpen })

	status := h.CheckAll(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "connection refused", status.Checks["redis"])
	assert.Contains(t, status.Checks["store_breaker"], "circuit breaker")
	assert.False(t, h.IsReady(context.Background()))
}

func TestHealthChecker_Timeout(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 10*time.Millisecond)

	status := h.CheckAll(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"])
}
