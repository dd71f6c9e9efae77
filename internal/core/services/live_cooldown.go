package services

import (
	"context"
	"time"

	"novaled/internal/core/domain"
)

func (m *LiveSessionManager) readCooldown(ctx context.Context) (*domain.CooldownRecord, error) {
	path := domain.CooldownPath(m.uid)
	snap, err := m.store.Read(ctx, path)
	if err != nil {
		m.observer.StoreError("read")
		return nil, domain.NewStoreError("read", path, err)
	}
	if !snap.Exists() {
		return nil, nil
	}

	var record domain.CooldownRecord
	if err := snap.Decode(&record); err != nil {
		return nil, domain.NewStoreError("decode", path, err)
	}
	return &record, nil
}

// restoreCooldown re-enters Cooldown from a persisted, unexpired record and
// removes an expired one.
func (m *LiveSessionManager) restoreCooldown(ctx context.Context) error {
	record, err := m.readCooldown(ctx)
	if err != nil || record == nil {
		return err
	}

	if record.Active(m.serverNow(ctx)) {
		m.enterCooldown(record.EndTime)
		return nil
	}

	path := domain.CooldownPath(m.uid)
	if err := m.store.Delete(ctx, path); err != nil {
		m.observer.StoreError("delete")
		m.logger.Warnw("failed to delete expired cooldown", "error", err)
	}
	return nil
}

// startCooldown persists cooldowns/{uid} with endTime = now + period and
// enters Cooldown.
func (m *LiveSessionManager) startCooldown(ctx context.Context) error {
	return m.startCooldownUntil(ctx, m.serverNow(ctx).Add(m.cfg.CooldownPeriod))
}

// startCooldownUntil enters Cooldown until end. The local transition happens
// even when the write fails; the write is then retried on later ticks.
func (m *LiveSessionManager) startCooldownUntil(ctx context.Context, end time.Time) error {
	path := domain.CooldownPath(m.uid)
	record := domain.CooldownRecord{OwnerID: m.uid, EndTime: end}

	var result error
	m.unsavedCooldown = false
	if err := m.store.Write(ctx, path, record); err != nil {
		m.observer.StoreError("write")
		if !m.recordPresent(ctx, path) {
			m.unsavedCooldown = true
			result = domain.NewStoreError("write", path, err)
			m.logger.Errorw("failed to persist cooldown", "error", err)
		}
	}

	m.enterCooldown(end)
	m.observer.CooldownStarted()
	return result
}

// expireCooldown deletes the record and re-enables starting.
func (m *LiveSessionManager) expireCooldown(ctx context.Context) {
	m.stopCooldown()
	m.state = domain.LiveStateIdle
	m.unsavedCooldown = false

	path := domain.CooldownPath(m.uid)
	if err := m.store.Delete(ctx, path); err != nil {
		// An expired record no longer blocks a start, so this is not a desync.
		m.observer.StoreError("delete")
		m.logger.Warnw("failed to delete cooldown record", "error", err)
	}

	m.logger.Infow("cooldown finished")
	m.publish()
}
