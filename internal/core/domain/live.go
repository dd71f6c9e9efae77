package domain

import "time"

const (
	// BroadcastCap is the longest a non-owner broadcast may run.
	BroadcastCap = 600 * time.Second
	// CooldownPeriod is how long a non-owner waits after a broadcast stops.
	CooldownPeriod = 600 * time.Second
)

// BroadcastSession is stored at lives/{uid} while the user is live.
// Presence is the existence of the record; stopping deletes it.
type BroadcastSession struct {
	OwnerID     UserID    `json:"ownerId"`
	DisplayName string    `json:"displayName"`
	AvatarRef   string    `json:"avatarRef"`
	IsLive      bool      `json:"isLive"`
	StartTime   time.Time `json:"startTime"`
	ViewerCount int       `json:"viewerCount"`
	// LastSeen is refreshed by the broadcasting connection; stale records are reaped.
	LastSeen time.Time `json:"lastSeen"`
}

// Heartbeat is the most recent sign of life for the broadcast.
func (b *BroadcastSession) Heartbeat() time.Time {
	if b.LastSeen.After(b.StartTime) {
		return b.LastSeen
	}
	return b.StartTime
}

// CooldownRecord is stored at cooldowns/{uid} during a cooldown window.
type CooldownRecord struct {
	OwnerID UserID    `json:"ownerId"`
	EndTime time.Time `json:"endTime"`
}

// CapPassed reports whether a capped broadcast would already have been
// force-stopped at now.
func (b *BroadcastSession) CapPassed(now time.Time, limit time.Duration) bool {
	return !now.Before(b.StartTime.Add(limit))
}

// Active reports whether the cooldown has not yet elapsed at now.
func (c *CooldownRecord) Active(now time.Time) bool {
	return c.EndTime.After(now)
}

// RosterEntry is one card in another user's list of live broadcasts.
type RosterEntry struct {
	OwnerID     UserID    `json:"ownerId"`
	DisplayName string    `json:"displayName"`
	AvatarRef   string    `json:"avatarRef"`
	ViewerCount int       `json:"viewerCount"`
	StartTime   time.Time `json:"startTime"`
}

type LiveState int

const (
	LiveStateIdle LiveState = iota
	LiveStateLive
	LiveStateCooldown
)

func (s LiveState) String() string {
	switch s {
	case LiveStateIdle:
		return "idle"
	case LiveStateLive:
		return "live"
	case LiveStateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

func (s LiveState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StopReason records why a broadcast ended.
type StopReason string

const (
	StopManual     StopReason = "manual"
	StopCapReached StopReason = "cap_reached"
	StopDisconnect StopReason = "disconnect"
	StopBanned     StopReason = "banned"
	// StopReaped is a broadcast whose record was removed by something other
	// than this connection, such as the stale-session reaper.
	StopReaped StopReason = "reaped"
)

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user-facing message attached to a status update.
type Notice struct {
	Seq   uint64      `json:"seq"`
	Level NoticeLevel `json:"level"`
	Text  string      `json:"text"`
}

// LiveStatus is everything a client renders for the live page.
type LiveStatus struct {
	UserID            UserID        `json:"userId"`
	State             LiveState     `json:"state"`
	Online            bool          `json:"online"`
	StatusText        string        `json:"statusText"`
	Privileged        bool          `json:"privileged"`
	CanStart          bool          `json:"canStart"`
	Countdown         string        `json:"countdown,omitempty"`
	Remaining         time.Duration `json:"remaining,omitempty"`
	Cooldown          string        `json:"cooldown,omitempty"`
	CooldownRemaining time.Duration `json:"cooldownRemaining,omitempty"`
	Roster            []RosterEntry `json:"roster"`
	Notice            *Notice       `json:"notice,omitempty"`
	Desynced          bool          `json:"desynced,omitempty"`
}
