package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"novaled/internal/core/ports"
	"novaled/pkg/circuitbreaker"

	"github.com/jonboulle/clockwork"
)

// HealthChecker runs registered health checks.
type HealthChecker struct {
	checks []HealthCheck
	clock  clockwork.Clock
	mu     sync.RWMutex
}

// HealthCheck reports the health of one dependency.
type HealthCheck struct {
	Name    string
	Check   func(ctx context.Context) error
	Timeout time.Duration
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// NewHealthChecker creates a checker with no checks.
func NewHealthChecker(clock clockwork.Clock) *HealthChecker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthChecker{
		checks: make([]HealthCheck, 0),
		clock:  clock,
	}
}

// AddCheck registers a named check.
func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.checks = append(h.checks, HealthCheck{
		Name:    name,
		Check:   check,
		Timeout: timeout,
	})
}

// AddPingCheck registers a dependency ping, such as the Redis health check
// exposed by the repository factory.
func (h *HealthChecker) AddPingCheck(name string, ping func(ctx context.Context) error, timeout time.Duration) {
	h.AddCheck(name, ping, timeout)
}

// AddStoreCheck asks the session store for its clock, which exercises a
// round trip without touching documents.
func (h *HealthChecker) AddStoreCheck(store ports.SessionStore, timeout time.Duration) {
	h.AddCheck("store", func(ctx context.Context) error {
		_, err := store.ServerTimestamp(ctx)
		return err
	}, timeout)
}

// AddBreakerCheck fails while the store circuit breaker is open.
func (h *HealthChecker) AddBreakerCheck(state func() circuitbreaker.State) {
	h.AddCheck("store_breaker", func(ctx context.Context) error {
		if s := state(); s == circuitbreaker.StateOpen {
			return fmt.Errorf("circuit breaker %s", s)
		}
		return nil
	}, time.Second)
}

// CheckAll runs every check and returns the aggregate status.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: h.clock.Now(),
		Checks:    make(map[string]string, len(checks)),
	}

	for _, check := range checks {
		err := h.run(ctx, check)
		if err != nil {
			status.Status = "unhealthy"
			status.Checks[check.Name] = err.Error()
			continue
		}
		status.Checks[check.Name] = "healthy"
	}

	return status
}

// IsReady reports whether every check passes.
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == "healthy"
}

func (h *HealthChecker) run(ctx context.Context, check HealthCheck) error {
	if check.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, check.Timeout)
		defer cancel()
	}

	err := check.Check(ctx)
	if err == nil && ctx.Err() != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return err
}
