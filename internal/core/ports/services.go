package ports

import "novaled/internal/core/domain"

// LiveObserver receives live-session events for metrics.
type LiveObserver interface {
	BroadcastStarted(privileged bool)
	BroadcastStopped(reason domain.StopReason, duration float64)
	StartRejected(reason string)
	CooldownStarted()
	RosterUpdated(size int)
	StoreError(op string)
}

type nopObserver struct{}

func (nopObserver) BroadcastStarted(bool)                       {}
func (nopObserver) BroadcastStopped(domain.StopReason, float64) {}
func (nopObserver) StartRejected(string)                        {}
func (nopObserver) CooldownStarted()                            {}
func (nopObserver) RosterUpdated(int)                           {}
func (nopObserver) StoreError(string)                           {}

// NopObserver discards all events.
var NopObserver LiveObserver = nopObserver{}
