package services

import (
	"context"

	"novaled/internal/core/domain"
)

// A stop whose store mutations failed leaves the store behind the local
// state. The manager keeps retrying on cooldown ticks and lives
// notifications until a re-read shows the store caught up.

func (m *LiveSessionManager) repairStore(ctx context.Context) {
	if m.staleRecord {
		m.retryStaleDelete(ctx)
	}
	if m.unsavedCooldown && m.state == domain.LiveStateCooldown {
		m.retryCooldownWrite(ctx)
	}
}

// retryStaleDelete removes lives/{uid} if it is still the record this
// manager stopped. A record with another start time belongs to a newer
// broadcast and is left alone.
func (m *LiveSessionManager) retryStaleDelete(ctx context.Context) {
	session, err := m.readOwnSession(ctx)
	if err != nil {
		m.logger.Warnw("stale broadcast record check failed", "error", err)
		return
	}

	if session != nil && session.StartTime.Equal(m.recordStart) {
		path := domain.LivePath(m.uid)
		if err := m.store.Delete(ctx, path); err != nil {
			m.observer.StoreError("delete")
			m.logger.Warnw("retry of broadcast record delete failed", "error", err)
			return
		}
	}

	m.staleRecord = false
	m.logger.Infow("stale broadcast record cleared")
}

func (m *LiveSessionManager) retryCooldownWrite(ctx context.Context) {
	path := domain.CooldownPath(m.uid)
	record := domain.CooldownRecord{OwnerID: m.uid, EndTime: m.cooldownDeadline}
	if err := m.store.Write(ctx, path, record); err != nil {
		m.observer.StoreError("write")
		m.logger.Warnw("retry of cooldown write failed", "error", err)
		return
	}

	m.unsavedCooldown = false
	m.logger.Infow("cooldown record persisted after retry")
}

// retireExpired handles a record found at start that outlived the cap. Its
// broadcaster is gone, so the record is removed and the cooldown its forced
// stop would have started is applied.
func (m *LiveSessionManager) retireExpired(ctx context.Context, session *domain.BroadcastSession) error {
	m.logger.Warnw("found broadcast record past the cap", "start_time", session.StartTime)
	m.recordStart = session.StartTime
	m.staleRecord = true
	m.retryStaleDelete(ctx)

	if err := m.restoreCooldown(ctx); err != nil {
		return err
	}
	if m.state != domain.LiveStateIdle {
		return nil
	}

	end := session.StartTime.Add(m.cfg.BroadcastCap + m.cfg.CooldownPeriod)
	if !end.After(m.serverNow(ctx)) {
		return nil
	}
	if err := m.startCooldownUntil(ctx, end); err != nil {
		m.logger.Warnw("failed to persist cooldown for expired broadcast", "error", err)
	}
	return nil
}
