package services

import (
	"context"
	"sort"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
)

// onLivesSnapshot runs on the store's delivery goroutine. It parks the
// snapshot and wakes the loop; a newer snapshot replaces an unprocessed one.
func (m *LiveSessionManager) onLivesSnapshot(snap ports.Snapshot) {
	m.mu.Lock()
	m.pendingLives = &snap
	m.mu.Unlock()

	select {
	case m.rosterDirty <- struct{}{}:
	default:
	}
}

func (m *LiveSessionManager) onLivesChanged() {
	m.mu.Lock()
	snap := m.pendingLives
	m.pendingLives = nil
	m.mu.Unlock()
	if snap == nil {
		return
	}

	roster, own, skipped := BuildRoster(*snap, m.uid)
	if len(skipped) > 0 {
		m.logger.Warnw("skipping undecodable live records", "keys", skipped)
	}
	m.roster = roster
	m.observer.RosterUpdated(len(roster))

	ctx, cancel := m.opContext()
	defer cancel()
	m.repairStore(ctx)
	m.reconcileOwn(ctx, own)

	m.publish()
}

// BuildRoster filters a lives snapshot to sessions that are live and not
// owned by self, ordered by start time. It also returns self's own live
// session when present. Children that do not decode are left out and their
// keys returned.
func BuildRoster(snap ports.Snapshot, self domain.UserID) ([]domain.RosterEntry, *domain.BroadcastSession, []string) {
	sessions := make([]*domain.BroadcastSession, 0, len(snap.Children))
	skipped := ports.ForEachValid(snap, func(key string, s *domain.BroadcastSession) {
		if s.OwnerID == "" {
			s.OwnerID = domain.UserID(key)
		}
		sessions = append(sessions, s)
	})

	var own *domain.BroadcastSession
	for _, s := range sessions {
		if s.IsLive && s.OwnerID == self {
			own = s
		}
	}
	return RosterFromSessions(sessions, self), own, skipped
}

// RosterFromSessions is the roster self sees for the given live records.
func RosterFromSessions(sessions []*domain.BroadcastSession, self domain.UserID) []domain.RosterEntry {
	roster := make([]domain.RosterEntry, 0, len(sessions))
	for _, s := range sessions {
		if !s.IsLive || s.OwnerID == self {
			continue
		}
		roster = append(roster, domain.RosterEntry{
			OwnerID:     s.OwnerID,
			DisplayName: s.DisplayName,
			AvatarRef:   s.AvatarRef,
			ViewerCount: s.ViewerCount,
			StartTime:   s.StartTime,
		})
	}

	sort.Slice(roster, func(i, j int) bool {
		if !roster[i].StartTime.Equal(roster[j].StartTime) {
			return roster[i].StartTime.Before(roster[j].StartTime)
		}
		return roster[i].OwnerID < roster[j].OwnerID
	})
	return roster
}

// reconcileOwn keeps this connection in step with the user's own record
// when another connection starts or stops it. Notifications can be stale,
// so a point read confirms before acting.
func (m *LiveSessionManager) reconcileOwn(ctx context.Context, own *domain.BroadcastSession) {
	switch {
	case own == nil && m.state == domain.LiveStateLive:
		current, err := m.readOwnSession(ctx)
		if err != nil || current != nil {
			return
		}
		m.endRemoteBroadcast(ctx)

	case own != nil && m.state == domain.LiveStateIdle:
		current, err := m.readOwnSession(ctx)
		if err != nil || current == nil {
			return
		}
		if m.capPassed(current) {
			m.logger.Warnw("not adopting broadcast record past the cap", "start_time", current.StartTime)
			return
		}
		m.adoptLive(current)
		m.notify(domain.NoticeInfo, "Live is running on another device")
		m.logger.Infow("adopted broadcast from another connection")
	}
}

// endRemoteBroadcast follows a stop made elsewhere. When this connection
// still holds the capture and no cooldown was persisted, nobody ran the stop
// sequence (the reaper or a store-level delete removed the record), so it is
// run here as a forced stop.
func (m *LiveSessionManager) endRemoteBroadcast(ctx context.Context) {
	var record *domain.CooldownRecord
	if !m.livePrivileged {
		r, err := m.readCooldown(ctx)
		if err == nil && r != nil && r.Active(m.serverNow(ctx)) {
			record = r
		}
	}

	if m.handle != nil && record == nil {
		if err := m.stopBroadcast(ctx, domain.StopReaped); err != nil {
			m.logger.Errorw("forced stop after record removal failed", "error", err)
		}
		return
	}

	if m.handle != nil {
		m.releaseCapture(m.handle)
		m.handle = nil
	}
	m.stopCountdown()
	m.stopHeartbeat()
	m.state = domain.LiveStateIdle
	if record != nil {
		m.enterCooldown(record.EndTime)
	}

	m.notify(domain.NoticeInfo, "Live ended on another device")
	m.logger.Infow("broadcast ended by another connection", "state", m.state)
}
