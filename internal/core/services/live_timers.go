package services

import (
	"time"

	"novaled/internal/core/domain"
	"novaled/pkg/utils"

	"github.com/jonboulle/clockwork"
)

// Both timers keep only an absolute deadline. Each tick recomputes the
// remaining time from it, so late or coalesced ticks never drift.

func (m *LiveSessionManager) startCountdown(deadline time.Time) {
	m.stopCountdown()
	m.countdownDeadline = deadline
	m.countdown = m.clock.NewTicker(m.cfg.TickInterval)
}

func (m *LiveSessionManager) stopCountdown() {
	if m.countdown != nil {
		m.countdown.Stop()
		m.countdown = nil
	}
}

func (m *LiveSessionManager) onCountdownTick() {
	if m.state != domain.LiveStateLive || m.countdown == nil {
		return
	}

	if utils.Remaining(m.countdownDeadline, m.clock.Now()) > 0 {
		m.publish()
		return
	}

	ctx, cancel := m.opContext()
	defer cancel()
	if err := m.stopBroadcast(ctx, domain.StopCapReached); err != nil {
		m.logger.Errorw("forced stop at broadcast cap failed", "error", err)
	}
}

func (m *LiveSessionManager) enterCooldown(deadline time.Time) {
	m.state = domain.LiveStateCooldown
	m.stopCooldown()
	m.cooldownDeadline = deadline
	m.cooldown = m.clock.NewTicker(m.cfg.TickInterval)
}

func (m *LiveSessionManager) stopCooldown() {
	if m.cooldown != nil {
		m.cooldown.Stop()
		m.cooldown = nil
	}
}

func (m *LiveSessionManager) onCooldownTick() {
	if m.state != domain.LiveStateCooldown || m.cooldown == nil {
		return
	}

	ctx, cancel := m.opContext()
	defer cancel()
	m.repairStore(ctx)

	if utils.Remaining(m.cooldownDeadline, m.clock.Now()) > 0 {
		m.publish()
		return
	}
	m.expireCooldown(ctx)
}

func (m *LiveSessionManager) stopHeartbeat() {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
}

func (m *LiveSessionManager) onHeartbeat() {
	if m.state != domain.LiveStateLive || m.handle == nil {
		m.stopHeartbeat()
		return
	}

	ctx, cancel := m.opContext()
	defer cancel()

	path := domain.LivePath(m.uid)
	if err := m.store.Patch(ctx, path, map[string]any{"lastSeen": m.serverNow(ctx)}); err != nil {
		m.observer.StoreError("patch")
		m.logger.Warnw("failed to refresh broadcast heartbeat", "error", err)
	}
}

func (m *LiveSessionManager) stopTimers() {
	m.stopCountdown()
	m.stopCooldown()
	m.stopHeartbeat()
}

// tickerChan lets a nil ticker sit in a select without ever firing.
func tickerChan(t clockwork.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}
