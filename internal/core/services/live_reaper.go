package services

import (
	"context"
	"time"

	"novaled/internal/core/ports"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// LiveReaper deletes live records whose broadcaster stopped heartbeating,
// e.g. after a crash or a dropped connection that never ran its stop path.
type LiveReaper struct {
	lives      ports.LiveRepository
	store      ports.SessionStore
	clock      clockwork.Clock
	interval   time.Duration
	staleAfter time.Duration
	onScan     func(live, reaped int)
	logger     *zap.SugaredLogger
}

// NewLiveReaper creates a reaper. Call Start to run it.
func NewLiveReaper(
	lives ports.LiveRepository,
	store ports.SessionStore,
	clock clockwork.Clock,
	interval, staleAfter time.Duration,
	logger *zap.SugaredLogger,
) *LiveReaper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LiveReaper{
		lives:      lives,
		store:      store,
		clock:      clock,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// OnScan registers fn to receive the number of live records seen and removed
// after every successful scan.
func (r *LiveReaper) OnScan(fn func(live, reaped int)) {
	r.onScan = fn
}

// Run reaps on every interval until ctx is cancelled.
func (r *LiveReaper) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := r.ReapOnce(ctx); err != nil {
				r.logger.Warnw("live reap failed", "error", err)
			}
		}
	}
}

// ReapOnce deletes every stale record and returns how many were removed.
func (r *LiveReaper) ReapOnce(ctx context.Context) (int, error) {
	now, err := r.store.ServerTimestamp(ctx)
	if err != nil {
		return 0, err
	}
	sessions, err := r.lives.ListLive(ctx)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, s := range sessions {
		if now.Sub(s.Heartbeat()) < r.staleAfter {
			continue
		}
		if err := r.lives.Delete(ctx, s.OwnerID); err != nil {
			r.logger.Warnw("failed to reap live", "user_id", s.OwnerID, "error", err)
			continue
		}
		reaped++
		r.logger.Infow("reaped stale live",
			"user_id", s.OwnerID,
			"last_seen", s.Heartbeat(),
		)
	}
	if r.onScan != nil {
		r.onScan(len(sessions), reaped)
	}
	return reaped, nil
}
