package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
	"novaled/pkg/utils"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// LiveSessionConfig holds the broadcast limits and timer periods.
type LiveSessionConfig struct {
	BroadcastCap   time.Duration
	CooldownPeriod time.Duration
	TickInterval   time.Duration
	// HeartbeatInterval refreshes lives/{uid}.lastSeen while broadcasting. Zero disables it.
	HeartbeatInterval time.Duration
	LockTTL           time.Duration
	OpTimeout         time.Duration
}

// DefaultLiveSessionConfig returns the 600s cap and cooldown with a one second tick.
func DefaultLiveSessionConfig() LiveSessionConfig {
	return LiveSessionConfig{
		BroadcastCap:      domain.BroadcastCap,
		CooldownPeriod:    domain.CooldownPeriod,
		TickInterval:      time.Second,
		HeartbeatInterval: 15 * time.Second,
		LockTTL:           10 * time.Second,
		OpTimeout:         5 * time.Second,
	}
}

// LiveSessionDeps are the collaborators of a LiveSessionManager. Clock,
// Logger and Observer are optional.
type LiveSessionDeps struct {
	Store    ports.SessionStore
	Identity ports.IdentityProvider
	Capture  ports.CaptureDevice
	Users    ports.UserRepository
	Locker   ports.Locker
	Observer ports.LiveObserver
	Clock    clockwork.Clock
	Logger   *zap.SugaredLogger
}

type command struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	reply chan error
}

// LiveSessionManager owns one client's broadcast lifecycle. All state
// transitions, timer ticks and store notifications are handled on a single
// goroutine, so fields below the loop marker are never shared.
type LiveSessionManager struct {
	cfg      LiveSessionConfig
	store    ports.SessionStore
	identity ports.IdentityProvider
	capture  ports.CaptureDevice
	users    ports.UserRepository
	locker   ports.Locker
	observer ports.LiveObserver
	clock    clockwork.Clock
	logger   *zap.SugaredLogger

	cmds        chan command
	done        chan struct{}
	rosterDirty chan struct{}
	updates     chan domain.LiveStatus
	running     atomic.Bool
	startOnce   sync.Once
	closeOnce   sync.Once

	mu           sync.RWMutex
	status       domain.LiveStatus
	pendingLives *ports.Snapshot

	// loop
	uid               domain.UserID
	profile           *domain.User
	state             domain.LiveState
	livePrivileged    bool
	handle            ports.CaptureHandle
	liveSince         time.Time
	countdownDeadline time.Time
	cooldownDeadline  time.Time
	countdown         clockwork.Ticker
	cooldown          clockwork.Ticker
	heartbeat         clockwork.Ticker
	roster            []domain.RosterEntry
	unsubscribe       ports.Unsubscribe
	recordStart       time.Time
	staleRecord       bool
	unsavedCooldown   bool
	noticeSeq         uint64
	notice            *domain.Notice
	closing           bool
}

// NewLiveSessionManager creates an idle manager; call Start to run it.
func NewLiveSessionManager(deps LiveSessionDeps, cfg LiveSessionConfig) *LiveSessionManager {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Observer == nil {
		deps.Observer = ports.NopObserver
	}

	return &LiveSessionManager{
		cfg:         cfg,
		store:       deps.Store,
		identity:    deps.Identity,
		capture:     deps.Capture,
		users:       deps.Users,
		locker:      deps.Locker,
		observer:    deps.Observer,
		clock:       deps.Clock,
		logger:      deps.Logger,
		cmds:        make(chan command),
		done:        make(chan struct{}),
		rosterDirty: make(chan struct{}, 1),
		updates:     make(chan domain.LiveStatus, 1),
		state:       domain.LiveStateIdle,
	}
}

// Start loads the user's profile, restores Live or Cooldown from the
// persisted anchors and begins watching the lives collection.
func (m *LiveSessionManager) Start(ctx context.Context) error {
	err := errors.New("live session manager already started")
	m.startOnce.Do(func() {
		err = m.init(ctx)
		if err != nil {
			m.stopTimers()
			if m.unsubscribe != nil {
				m.unsubscribe()
			}
			close(m.updates)
			close(m.done)
			return
		}
		m.running.Store(true)
		go m.run()
	})
	return err
}

func (m *LiveSessionManager) init(ctx context.Context) error {
	if !m.identity.IsAuthenticated() {
		return domain.ErrUnauthenticated
	}
	m.uid = m.identity.CurrentUserID()
	m.logger = m.logger.With("user_id", m.uid)

	profile, err := m.users.GetByID(ctx, m.uid)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if profile.Banned {
		if err := m.identity.SignOut(ctx); err != nil {
			m.logger.Warnw("failed to sign out banned user", "error", err)
		}
		return domain.ErrBanned
	}
	m.profile = profile

	if err := m.restore(ctx); err != nil {
		return err
	}

	unsubscribe, err := m.store.Subscribe(ctx, domain.LivesCollection, m.onLivesSnapshot)
	if err != nil {
		return domain.NewStoreError("subscribe", domain.LivesCollection, err)
	}
	m.unsubscribe = unsubscribe

	m.logger.Infow("live session started",
		"state", m.state,
		"privileged", m.privileged(),
	)
	m.publish()
	return nil
}

// restore rebuilds local state from lives/{uid} and cooldowns/{uid}.
func (m *LiveSessionManager) restore(ctx context.Context) error {
	session, err := m.readOwnSession(ctx)
	if err != nil {
		return err
	}
	if session != nil && !m.capPassed(session) {
		m.adoptLive(session)
		return nil
	}
	if session != nil {
		return m.retireExpired(ctx, session)
	}

	if m.privileged() {
		return nil
	}
	return m.restoreCooldown(ctx)
}

// StartBroadcast moves Idle to Live and returns the capture answer for the client.
func (m *LiveSessionManager) StartBroadcast(ctx context.Context, req ports.CaptureRequest) (string, error) {
	return m.StartBroadcastAnswering(ctx, req, nil)
}

// StartBroadcastAnswering is StartBroadcast with onAnswer called on the
// manager goroutine before the Live status is published, so a transport can
// queue the answer ahead of that status.
func (m *LiveSessionManager) StartBroadcastAnswering(ctx context.Context, req ports.CaptureRequest, onAnswer func(answer string)) (string, error) {
	var answer string
	err := m.exec(ctx, func(ctx context.Context) error {
		var err error
		answer, err = m.startBroadcast(ctx, req, onAnswer)
		return err
	})
	return answer, err
}

// StopBroadcast is the user's manual stop.
func (m *LiveSessionManager) StopBroadcast(ctx context.Context) error {
	return m.exec(ctx, func(ctx context.Context) error {
		if m.state != domain.LiveStateLive {
			m.reject("not_live", domain.NoticeError, "No live broadcast to stop")
			return domain.ErrNotLive
		}
		return m.stopBroadcast(ctx, domain.StopManual)
	})
}

// ForceStop ends an active broadcast for reason; it is a no-op when not live.
func (m *LiveSessionManager) ForceStop(ctx context.Context, reason domain.StopReason) error {
	return m.exec(ctx, func(ctx context.Context) error {
		if m.state != domain.LiveStateLive {
			return nil
		}
		return m.stopBroadcast(ctx, reason)
	})
}

// AddICECandidate forwards a trickled candidate to the active capture handle.
func (m *LiveSessionManager) AddICECandidate(ctx context.Context, candidate string) error {
	return m.exec(ctx, func(ctx context.Context) error {
		if m.handle == nil {
			return domain.ErrNotLive
		}
		adder, ok := m.handle.(ports.ICECandidateAdder)
		if !ok {
			return nil
		}
		return adder.AddICECandidate(candidate)
	})
}

// Status returns the most recently published status.
func (m *LiveSessionManager) Status() domain.LiveStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Updates yields the latest status after every change. Intermediate values
// may be skipped. The channel is closed when the manager stops.
func (m *LiveSessionManager) Updates() <-chan domain.LiveStatus {
	return m.updates
}

// UserID is the managed user, empty until Start succeeds.
func (m *LiveSessionManager) UserID() domain.UserID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.UserID
}

// Done is closed once the manager has stopped.
func (m *LiveSessionManager) Done() <-chan struct{} {
	return m.done
}

// Close ends the managing session: an owned broadcast is stopped, timers are
// cancelled and the lives subscription is dropped. Persisted cooldowns stay.
func (m *LiveSessionManager) Close(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		if !m.running.Load() {
			return
		}
		err = m.exec(ctx, m.shutdown)
		if errors.Is(err, domain.ErrManagerClosed) {
			err = nil
		}
	})
	return err
}

func (m *LiveSessionManager) shutdown(ctx context.Context) error {
	var err error
	if m.state == domain.LiveStateLive && m.handle != nil {
		err = m.stopBroadcast(ctx, domain.StopDisconnect)
	}
	m.stopTimers()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.closing = true
	m.logger.Infow("live session closed", "state", m.state)
	return err
}

func (m *LiveSessionManager) exec(ctx context.Context, fn func(ctx context.Context) error) error {
	if !m.running.Load() {
		return domain.ErrManagerClosed
	}

	reply := make(chan error, 1)
	select {
	case m.cmds <- command{ctx: ctx, fn: fn, reply: reply}:
	case <-m.done:
		return domain.ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// The command runs to completion once accepted, so wait for its result.
	return <-reply
}

func (m *LiveSessionManager) run() {
	defer close(m.done)
	defer close(m.updates)

	for {
		select {
		case cmd := <-m.cmds:
			cmd.reply <- cmd.fn(cmd.ctx)
			if m.closing {
				return
			}
		case <-tickerChan(m.countdown):
			m.onCountdownTick()
		case <-tickerChan(m.cooldown):
			m.onCooldownTick()
		case <-tickerChan(m.heartbeat):
			m.onHeartbeat()
		case <-m.rosterDirty:
			m.onLivesChanged()
		}
	}
}

func (m *LiveSessionManager) startBroadcast(ctx context.Context, req ports.CaptureRequest, onAnswer func(string)) (string, error) {
	if !m.identity.IsAuthenticated() {
		m.reject("unauthenticated", domain.NoticeError, "Please sign in again")
		return "", domain.ErrUnauthenticated
	}

	profile, err := m.users.GetByID(ctx, m.uid)
	if err != nil {
		m.notify(domain.NoticeError, "Failed to start live. Please try again.")
		m.publish()
		return "", fmt.Errorf("load profile: %w", err)
	}
	m.profile = profile
	if profile.Banned {
		m.reject("banned", domain.NoticeError, "Your account has been banned")
		return "", domain.ErrBanned
	}

	switch m.state {
	case domain.LiveStateLive:
		m.reject("already_live", domain.NoticeError, "You are already live")
		return "", domain.ErrAlreadyLive
	case domain.LiveStateCooldown:
		m.reject("cooldown", domain.NoticeError, "You are still in cooldown! Please wait.")
		return "", domain.ErrCooldownActive
	}

	release, err := m.locker.Acquire(ctx, "live:"+string(m.uid), m.cfg.LockTTL)
	if err != nil {
		m.notify(domain.NoticeError, "Failed to start live. Please try again.")
		m.publish()
		return "", fmt.Errorf("acquire broadcast lock: %w", err)
	}
	defer release()

	if m.staleRecord {
		m.retryStaleDelete(ctx)
	}

	privileged := m.privileged()
	if err := m.checkStartPreconditions(ctx, privileged); err != nil {
		return "", err
	}

	handle, err := m.capture.Acquire(ctx, req)
	if err != nil {
		m.observer.StartRejected("capture")
		m.notify(domain.NoticeError, "Failed to start live. Make sure the camera is allowed.")
		m.publish()
		m.logger.Warnw("capture acquisition failed", "error", err)
		return "", err
	}

	startTime := m.serverNow(ctx)
	path := domain.LivePath(m.uid)
	session := domain.BroadcastSession{
		OwnerID:     m.uid,
		DisplayName: profile.DisplayName(),
		AvatarRef:   profile.Avatar,
		IsLive:      true,
		StartTime:   startTime,
		ViewerCount: 0,
		LastSeen:    startTime,
	}

	if err := m.store.Write(ctx, path, session); err != nil {
		storeErr := domain.NewStoreError("write", path, err)
		m.observer.StoreError("write")

		if !m.recordPresent(ctx, path) {
			m.releaseCapture(handle)
			m.notify(domain.NoticeError, "Failed to start live. Please try again.")
			m.publish()
			m.logger.Errorw("failed to write broadcast record", "error", err)
			return "", storeErr
		}
		m.logger.Warnw("broadcast record write reported failure but the record landed", "error", err)
	}

	m.handle = handle
	m.recordStart = startTime
	m.liveSince = m.clock.Now()
	m.enterLive(m.liveSince, privileged)
	m.observer.BroadcastStarted(privileged)
	if onAnswer != nil {
		onAnswer(handle.Answer())
	}
	m.notify(domain.NoticeSuccess, "Live started!")
	m.publish()

	m.logger.Infow("broadcast started",
		"capture_id", handle.ID(),
		"privileged", privileged,
	)
	return handle.Answer(), nil
}

// checkStartPreconditions runs the store-side guards under the user's lock.
func (m *LiveSessionManager) checkStartPreconditions(ctx context.Context, privileged bool) error {
	existing, err := m.readOwnSession(ctx)
	if err != nil {
		m.notify(domain.NoticeError, "Failed to start live. Please try again.")
		m.publish()
		return err
	}
	if existing != nil {
		// Live on another connection; the lives subscription will adopt it.
		m.reject("already_live", domain.NoticeError, "You are already live on another device")
		return domain.ErrAlreadyLive
	}

	if privileged {
		return nil
	}

	record, err := m.readCooldown(ctx)
	if err != nil {
		m.notify(domain.NoticeError, "Failed to start live. Please try again.")
		m.publish()
		return err
	}
	if record != nil && record.Active(m.serverNow(ctx)) {
		m.enterCooldown(record.EndTime)
		m.reject("cooldown", domain.NoticeError, "You are still in cooldown! Please wait.")
		return domain.ErrCooldownActive
	}
	return nil
}

// stopBroadcast runs the stop sequence: release capture, cancel the
// countdown, delete the record and, for non-privileged users, persist a
// cooldown. The local transition always completes; store failures are
// reconciled by re-reading and returned.
func (m *LiveSessionManager) stopBroadcast(ctx context.Context, reason domain.StopReason) error {
	if m.handle != nil {
		m.releaseCapture(m.handle)
		m.handle = nil
	}
	m.stopCountdown()
	m.stopHeartbeat()

	var result error
	path := domain.LivePath(m.uid)
	if err := m.store.Delete(ctx, path); err != nil {
		m.observer.StoreError("delete")
		if m.recordPresent(ctx, path) {
			m.staleRecord = true
			result = domain.NewStoreError("delete", path, err)
			m.logger.Errorw("broadcast record still present after failed delete", "error", err)
		} else {
			m.logger.Warnw("broadcast delete reported failure but the record is gone", "error", err)
		}
	}

	elapsed := m.clock.Since(m.liveSince)
	m.observer.BroadcastStopped(reason, elapsed.Seconds())

	if m.livePrivileged {
		m.state = domain.LiveStateIdle
	} else if err := m.startCooldown(ctx); err != nil {
		result = errors.Join(result, err)
	}

	switch reason {
	case domain.StopCapReached:
		m.notify(domain.NoticeInfo, fmt.Sprintf("Live ended (%d minutes)", int(m.cfg.BroadcastCap.Minutes())))
	case domain.StopBanned:
		m.notify(domain.NoticeError, "Your account has been banned")
	case domain.StopReaped:
		m.notify(domain.NoticeInfo, "Live ended: the connection to the server was lost")
	case domain.StopManual:
		m.notify(domain.NoticeSuccess, "Live stopped")
	default:
		m.notify(domain.NoticeInfo, "Live ended")
	}
	m.publish()

	m.logger.Infow("broadcast stopped",
		"reason", reason,
		"duration", utils.FormatDuration(elapsed),
		"state", m.state,
		"desynced", m.desynced(),
	)
	return result
}

func (m *LiveSessionManager) enterLive(anchor time.Time, privileged bool) {
	m.state = domain.LiveStateLive
	m.livePrivileged = privileged
	m.stopCooldown()

	if !privileged {
		m.startCountdown(anchor.Add(m.cfg.BroadcastCap))
	}
	if m.handle != nil && m.cfg.HeartbeatInterval > 0 {
		m.heartbeat = m.clock.NewTicker(m.cfg.HeartbeatInterval)
	}
}

// adoptLive takes over a broadcast that is already recorded in the store,
// e.g. after a reconnect or from another device. No capture is held.
func (m *LiveSessionManager) adoptLive(session *domain.BroadcastSession) {
	m.recordStart = session.StartTime
	m.liveSince = session.StartTime
	m.enterLive(session.StartTime, m.privileged())
}

func (m *LiveSessionManager) releaseCapture(handle ports.CaptureHandle) {
	if err := m.capture.Release(handle); err != nil {
		m.logger.Warnw("failed to release capture", "capture_id", handle.ID(), "error", err)
	}
}

func (m *LiveSessionManager) readOwnSession(ctx context.Context) (*domain.BroadcastSession, error) {
	path := domain.LivePath(m.uid)
	snap, err := m.store.Read(ctx, path)
	if err != nil {
		m.observer.StoreError("read")
		return nil, domain.NewStoreError("read", path, err)
	}
	if !snap.Exists() {
		return nil, nil
	}

	var session domain.BroadcastSession
	if err := snap.Decode(&session); err != nil {
		return nil, domain.NewStoreError("decode", path, err)
	}
	if !session.IsLive {
		return nil, nil
	}
	return &session, nil
}

// recordPresent re-reads path after a failed mutation. An unreadable path
// counts as absent.
func (m *LiveSessionManager) recordPresent(ctx context.Context, path string) bool {
	snap, err := m.store.Read(ctx, path)
	if err != nil {
		m.observer.StoreError("read")
		m.logger.Warnw("reconciliation read failed", "path", path, "error", err)
		return false
	}
	return snap.Exists()
}

// serverNow prefers the store's clock so anchors agree across instances.
func (m *LiveSessionManager) serverNow(ctx context.Context) time.Time {
	ts, err := m.store.ServerTimestamp(ctx)
	if err != nil {
		m.logger.Warnw("server timestamp unavailable, using local clock", "error", err)
		return m.clock.Now()
	}
	return ts
}

func (m *LiveSessionManager) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.cfg.OpTimeout)
}

func (m *LiveSessionManager) privileged() bool {
	return m.profile != nil && domain.IsOwnerName(m.profile.Username)
}

// capPassed reports whether session outlived the cap and is therefore a
// leftover rather than a running broadcast.
func (m *LiveSessionManager) capPassed(session *domain.BroadcastSession) bool {
	return !m.privileged() && session.CapPassed(m.clock.Now(), m.cfg.BroadcastCap)
}

func (m *LiveSessionManager) desynced() bool {
	return m.staleRecord || m.unsavedCooldown
}

func (m *LiveSessionManager) reject(reason string, level domain.NoticeLevel, text string) {
	m.observer.StartRejected(reason)
	m.notify(level, text)
	m.publish()
}

func (m *LiveSessionManager) notify(level domain.NoticeLevel, text string) {
	m.noticeSeq++
	m.notice = &domain.Notice{Seq: m.noticeSeq, Level: level, Text: text}
}

func (m *LiveSessionManager) buildStatus() domain.LiveStatus {
	now := m.clock.Now()
	banned := m.profile != nil && m.profile.Banned

	st := domain.LiveStatus{
		UserID:     m.uid,
		State:      m.state,
		Online:     m.state == domain.LiveStateLive,
		StatusText: "Offline",
		Privileged: m.privileged(),
		CanStart:   m.state == domain.LiveStateIdle && !banned,
		Roster:     append([]domain.RosterEntry(nil), m.roster...),
		Desynced:   m.desynced(),
	}
	if st.Online {
		st.StatusText = "Online"
	}
	if m.notice != nil {
		n := *m.notice
		st.Notice = &n
	}

	switch {
	case m.state == domain.LiveStateLive && m.countdown != nil:
		st.Remaining = utils.Remaining(m.countdownDeadline, now)
		st.Countdown = utils.FormatCountdown(st.Remaining)
	case m.state == domain.LiveStateCooldown:
		st.CooldownRemaining = utils.Remaining(m.cooldownDeadline, now)
		st.Cooldown = utils.FormatCountdown(st.CooldownRemaining)
	}
	return st
}

// publish stores the current status and offers it on the updates channel,
// replacing any value the consumer has not taken yet.
func (m *LiveSessionManager) publish() {
	st := m.buildStatus()

	m.mu.Lock()
	m.status = st
	m.mu.Unlock()

	select {
	case <-m.updates:
	default:
	}
	m.updates <- st
}
