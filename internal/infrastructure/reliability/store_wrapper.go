package reliability

import (
	"context"
	"errors"
	"time"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
	"novaled/pkg/circuitbreaker"
	"novaled/pkg/retry"
	"novaled/pkg/tracing"

	"go.uber.org/zap"
)

// StoreWrapper guards a SessionStore with a circuit breaker and traces every
// call. Reads are retried; mutations are not, because callers reconcile a
// failed mutation by reading back.
type StoreWrapper struct {
	store          ports.SessionStore
	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.SugaredLogger
}

// isDependencyFailure keeps caller mistakes and cancellations from tripping
// the breaker or being retried.
func isDependencyFailure(err error) bool {
	return !errors.Is(err, domain.ErrInvalidInput) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// NewStoreWrapper wraps store with retries and a circuit breaker.
func NewStoreWrapper(
	store ports.SessionStore,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
	opts ...circuitbreaker.Option,
) *StoreWrapper {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if retryConfig.Permanent == nil {
		retryConfig.Permanent = func(err error) bool {
			return !isDependencyFailure(err) || errors.Is(err, circuitbreaker.ErrOpen)
		}
	}
	if cbConfig.IsFailure == nil {
		cbConfig.IsFailure = isDependencyFailure
	}

	opts = append(opts, circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	}))

	return &StoreWrapper{
		store:          store,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig, opts...),
		logger:         logger,
	}
}

func (w *StoreWrapper) Read(ctx context.Context, path string) (ports.Snapshot, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "read", path)
	snap, err := retry.DoWithResult(ctx, w.retryConfig, func(ctx context.Context) (ports.Snapshot, error) {
		return circuitbreaker.ExecuteWithResult(ctx, w.circuitBreaker, func(ctx context.Context) (ports.Snapshot, error) {
			return w.store.Read(ctx, path)
		})
	})
	tracing.End(span, err)
	return snap, err
}

func (w *StoreWrapper) Write(ctx context.Context, path string, value any) error {
	return w.mutate(ctx, "write", path, func(ctx context.Context) error {
		return w.store.Write(ctx, path, value)
	})
}

func (w *StoreWrapper) Patch(ctx context.Context, path string, fields map[string]any) error {
	return w.mutate(ctx, "patch", path, func(ctx context.Context) error {
		return w.store.Patch(ctx, path, fields)
	})
}

func (w *StoreWrapper) Delete(ctx context.Context, path string) error {
	return w.mutate(ctx, "delete", path, func(ctx context.Context) error {
		return w.store.Delete(ctx, path)
	})
}

func (w *StoreWrapper) mutate(ctx context.Context, op, path string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.TraceStoreOperation(ctx, op, path)
	err := w.circuitBreaker.Execute(ctx, fn)
	if err != nil {
		w.logger.Warnw("store mutation failed", "op", op, "path", path, "error", err)
	}
	tracing.End(span, err)
	return err
}

func (w *StoreWrapper) Subscribe(ctx context.Context, path string, onChange func(ports.Snapshot)) (ports.Unsubscribe, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "subscribe", path)
	unsubscribe, err := circuitbreaker.ExecuteWithResult(ctx, w.circuitBreaker, func(ctx context.Context) (ports.Unsubscribe, error) {
		return w.store.Subscribe(ctx, path, onChange)
	})
	tracing.End(span, err)
	return unsubscribe, err
}

func (w *StoreWrapper) ServerTimestamp(ctx context.Context) (time.Time, error) {
	return retry.DoWithResult(ctx, w.retryConfig, func(ctx context.Context) (time.Time, error) {
		return circuitbreaker.ExecuteWithResult(ctx, w.circuitBreaker, w.store.ServerTimestamp)
	})
}

// State exposes the breaker for health reporting.
func (w *StoreWrapper) State() circuitbreaker.State {
	return w.circuitBreaker.State()
}
