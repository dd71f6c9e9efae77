package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
	"novaled/pkg/optimize"
	"novaled/pkg/utils"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// IngestConfig configures broadcaster ingest connections.
type IngestConfig struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	// PLIInterval is how often a keyframe is requested from video tracks.
	PLIInterval time.Duration
	// GatherTimeout bounds ICE gathering for the answer.
	GatherTimeout time.Duration
}

// rtpBufferSize fits one packet at the common Ethernet MTU.
const rtpBufferSize = 1500

// IngestDevice is the server-side capture device. Acquiring accepts the
// broadcaster's offer and opens a receive-only PeerConnection.
type IngestDevice struct {
	config IngestConfig
	api    *webrtc.API

	sessions map[string]*IngestSession
	mu       sync.RWMutex

	buffers *optimize.BytePool
	logger  *zap.SugaredLogger
}

// IngestSession is one broadcaster's ingest connection.
type IngestSession struct {
	id     string
	pc     *webrtc.PeerConnection
	answer string
	done   chan struct{}
	closed sync.Once

	tracks    atomic.Int32
	packets   atomic.Uint64
	bytes     atomic.Uint64
	keyframes atomic.Uint64
	reports   atomic.Uint64
}

// IngestStats is a snapshot of one session's received media.
type IngestStats struct {
	Tracks        int    `json:"tracks"`
	Packets       uint64 `json:"packets"`
	Bytes         uint64 `json:"bytes"`
	Keyframes     uint64 `json:"keyframes"`
	SenderReports uint64 `json:"senderReports"`
}

// NewIngestDevice creates a capture device that accepts WebRTC publishers.
func NewIngestDevice(config IngestConfig, logger *zap.SugaredLogger) (*IngestDevice, error) {
	if config.PLIInterval <= 0 {
		config.PLIInterval = 3 * time.Second
	}
	if config.GatherTimeout <= 0 {
		config.GatherTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if config.PortRange.Min > 0 && config.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(config.PortRange.Min, config.PortRange.Max); err != nil {
			return nil, fmt.Errorf("set port range: %w", err)
		}
	}

	return &IngestDevice{
		config:   config,
		api:      webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithSettingEngine(settingEngine)),
		sessions: make(map[string]*IngestSession),
		buffers:  optimize.NewBytePool(rtpBufferSize),
		logger:   logger,
	}, nil
}

// Acquire answers the broadcaster's offer. An empty offer means the browser
// could not open its camera or microphone.
func (d *IngestDevice) Acquire(ctx context.Context, req ports.CaptureRequest) (ports.CaptureHandle, error) {
	if req.Offer == "" {
		return nil, domain.ErrCaptureDenied
	}
	if !req.Video && !req.Audio {
		return nil, fmt.Errorf("%w: no media requested", domain.ErrCaptureUnavailable)
	}

	pc, err := d.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   d.config.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCaptureUnavailable, err)
	}

	session := &IngestSession{
		id:   "ingest_" + utils.NewTokenID(),
		pc:   pc,
		done: make(chan struct{}),
	}

	answer, err := d.negotiate(ctx, session, req)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	session.answer = answer

	d.mu.Lock()
	d.sessions[session.id] = session
	d.mu.Unlock()

	d.logger.Infow("ingest session opened",
		"capture_id", session.id,
		"video", req.Video,
		"audio", req.Audio,
	)
	return session, nil
}

func (d *IngestDevice) negotiate(ctx context.Context, session *IngestSession, req ports.CaptureRequest) (string, error) {
	pc := session.pc
	recvOnly := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}

	if req.Video {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, recvOnly); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrCaptureUnavailable, err)
		}
	}
	if req.Audio {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, recvOnly); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrCaptureUnavailable, err)
		}
	}

	pc.OnTrack(d.handleTrack(session))
	pc.OnConnectionStateChange(d.handleConnectionState(session))

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: req.Offer}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("%w: invalid offer: %v", domain.ErrCaptureUnavailable, err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCaptureUnavailable, err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCaptureUnavailable, err)
	}

	timer := time.NewTimer(d.config.GatherTimeout)
	defer timer.Stop()
	select {
	case <-gathered:
	case <-timer.C:
		// Trickled candidates still complete the connection.
		d.logger.Debugw("ICE gathering incomplete, answering early", "capture_id", session.id)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return pc.LocalDescription().SDP, nil
}

func (d *IngestDevice) handleTrack(session *IngestSession) func(*webrtc.TrackRemote, *webrtc.RTPReceiver) {
	return func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		session.tracks.Add(1)
		d.logger.Infow("broadcaster track received",
			"capture_id", session.id,
			"track_id", track.ID(),
			"codec", track.Codec().MimeType,
		)

		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go d.requestKeyframes(session, track)
		}
		go d.readRTCP(session, receiver)
		d.readRTP(session, track)
	}
}

// readRTP drains the track and accounts for what arrived.
func (d *IngestDevice) readRTP(session *IngestSession, track *webrtc.TrackRemote) {
	buf := d.buffers.Get()
	defer d.buffers.Put(buf)
	packet := &rtp.Packet{}
	isKeyframe := keyframeDetector(track.Codec().MimeType)

	for {
		n, _, err := track.Read(*buf)
		if err != nil {
			d.logger.Debugw("track ended", "capture_id", session.id, "track_id", track.ID(), "error", err)
			return
		}
		if err := packet.Unmarshal((*buf)[:n]); err != nil {
			continue
		}
		session.packets.Add(1)
		session.bytes.Add(uint64(len(packet.Payload)))
		if isKeyframe != nil && isKeyframe(packet) {
			session.keyframes.Add(1)
		}
	}
}

func (d *IngestDevice) readRTCP(session *IngestSession, receiver *webrtc.RTPReceiver) {
	for {
		packets, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}
		for _, packet := range packets {
			if report, ok := packet.(*rtcp.SenderReport); ok {
				session.reports.Add(1)
				d.logger.Debugw("sender report",
					"capture_id", session.id,
					"packet_count", report.PacketCount,
					"octet_count", report.OctetCount,
				)
			}
		}
	}
}

// requestKeyframes sends periodic PLIs so late viewers get a decodable frame.
func (d *IngestDevice) requestKeyframes(session *IngestSession, track *webrtc.TrackRemote) {
	ticker := time.NewTicker(d.config.PLIInterval)
	defer ticker.Stop()

	for {
		select {
		case <-session.done:
			return
		case <-ticker.C:
			pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}}
			if err := session.pc.WriteRTCP(pli); err != nil {
				return
			}
		}
	}
}

func (d *IngestDevice) handleConnectionState(session *IngestSession) func(webrtc.PeerConnectionState) {
	return func(state webrtc.PeerConnectionState) {
		d.logger.Infow("ingest connection state changed",
			"capture_id", session.id,
			"connection_state", state,
		)
	}
}

// Release closes the ingest connection. Releasing twice is a no-op.
func (d *IngestDevice) Release(handle ports.CaptureHandle) error {
	d.mu.Lock()
	session, ok := d.sessions[handle.ID()]
	delete(d.sessions, handle.ID())
	d.mu.Unlock()

	if !ok {
		return nil
	}
	err := session.close()
	d.logger.Infow("ingest session closed", "capture_id", session.id, "stats", session.Stats())
	return err
}

// Active is the number of open ingest sessions.
func (d *IngestDevice) Active() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// Close releases every open session.
func (d *IngestDevice) Close() error {
	d.mu.Lock()
	sessions := d.sessions
	d.sessions = make(map[string]*IngestSession)
	d.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		errs = append(errs, s.close())
	}
	return errors.Join(errs...)
}

func (s *IngestSession) ID() string     { return s.id }
func (s *IngestSession) Answer() string { return s.answer }

func (s *IngestSession) AddICECandidate(candidate string) error {
	return s.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate})
}

func (s *IngestSession) Stats() IngestStats {
	return IngestStats{
		Tracks:        int(s.tracks.Load()),
		Packets:       s.packets.Load(),
		Bytes:         s.bytes.Load(),
		Keyframes:     s.keyframes.Load(),
		SenderReports: s.reports.Load(),
	}
}

func (s *IngestSession) close() error {
	var err error
	s.closed.Do(func() {
		close(s.done)
		err = s.pc.Close()
	})
	return err
}
