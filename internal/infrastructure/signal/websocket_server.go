package signal

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"novaled/internal/core/domain"
	"novaled/internal/core/services"
	"novaled/internal/infrastructure/identity"
	"novaled/internal/infrastructure/middleware"
	"novaled/pkg/config"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds WebSocket server settings.
type Config struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	CloseTimeout      time.Duration
	MessagesPerSecond float64
	Burst             int
	MaxMessageSize    int64
	AllowedOrigins    []string
}

func ConfigFrom(cfg *config.Config) Config {
	c := Config{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		CloseTimeout:   cfg.Store.OpTimeout,
		MaxMessageSize: cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		AllowedOrigins: cfg.Auth.AllowedOrigins,
	}
	if cfg.RateLimiting.Enabled {
		c.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		c.Burst = cfg.RateLimiting.WebSocket.Burst
	}
	return c
}

// ConnectionObserver records connection-level metrics.
type ConnectionObserver interface {
	ClientConnected()
	ClientDisconnected()
	RecordMessage(messageType string)
}

type nopConnectionObserver struct{}

func (nopConnectionObserver) ClientConnected()     {}
func (nopConnectionObserver) ClientDisconnected()  {}
func (nopConnectionObserver) RecordMessage(string) {}

// Server accepts one WebSocket per client and runs a LiveSessionManager for
// each. It also implements services.BanListener so that a ban ends the
// user's broadcast and disconnects every one of their clients.
type Server struct {
	cfg      Config
	auth     services.AuthService
	popups   *services.PopupService
	feed     *services.FeedService
	deps     services.LiveSessionDeps
	liveCfg  services.LiveSessionConfig
	observer ConnectionObserver
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[domain.UserID]map[*client]struct{}
	wg      sync.WaitGroup
}

// NewServer builds the server. deps is the template for every connection's
// manager; its Identity is replaced per connection.
func NewServer(
	cfg Config,
	auth services.AuthService,
	popups *services.PopupService,
	deps services.LiveSessionDeps,
	liveCfg services.LiveSessionConfig,
	observer ConnectionObserver,
	logger *zap.SugaredLogger,
) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		cfg.PongTimeout = 2 * cfg.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 5 * time.Second
	}
	if observer == nil {
		observer = nopConnectionObserver{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Server{
		cfg:      cfg,
		auth:     auth,
		popups:   popups,
		deps:     deps,
		liveCfg:  liveCfg,
		observer: observer,
		logger:   logger,
		clients:  make(map[domain.UserID]map[*client]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetFeed enables the realtime feed and owner user list on new connections.
func (s *Server) SetFeed(feed *services.FeedService) {
	s.feed = feed
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket authenticates the access token given as ?token= (or a
// bearer header) and serves the connection until it closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		appErr := middleware.AppErrorFrom(err)
		http.Error(w, appErr.Message, http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	s.serve(newClient(s, conn, identity.NewSession(s.auth, claims)))
}

func (s *Server) serve(c *client) {
	s.observer.ClientConnected()
	defer s.observer.ClientDisconnected()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := s.deps
	deps.Identity = c.session
	deps.Logger = c.logger
	c.manager = services.NewLiveSessionManager(deps, s.liveCfg)

	go c.writePump()

	startCtx, startCancel := context.WithTimeout(ctx, s.cfg.CloseTimeout)
	err := c.manager.Start(startCtx)
	startCancel()
	if err != nil {
		c.logger.Infow("live session refused", "error", err)
		c.sendError(err)
		c.shutdown(websocket.ClosePolicyViolation, "session refused")
		<-c.writerDone
		return
	}

	c.session.OnSignOut(func() {
		c.shutdown(websocket.CloseNormalClosure, "signed out")
	})
	unsubscribe := c.watch(ctx)
	defer unsubscribe()

	s.register(c)
	defer s.unregister(c)

	c.logger.Infow("client connected")
	c.readPump(ctx)
	c.shutdown(websocket.CloseNormalClosure, "")

	closeCtx, closeCancel := context.WithTimeout(context.Background(), s.cfg.CloseTimeout)
	defer closeCancel()
	if err := c.manager.Close(closeCtx); err != nil {
		c.logger.Warnw("failed to close live session", "error", err)
	}
	<-c.writerDone
	c.logger.Infow("client disconnected")
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid := c.session.CurrentUserID()
	if s.clients[uid] == nil {
		s.clients[uid] = make(map[*client]struct{})
	}
	s.clients[uid][c] = struct{}{}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid := c.session.CurrentUserID()
	delete(s.clients[uid], c)
	if len(s.clients[uid]) == 0 {
		delete(s.clients, uid)
	}
}

func (s *Server) clientsOf(uid domain.UserID) []*client {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*client, 0, len(s.clients[uid]))
	for c := range s.clients[uid] {
		out = append(out, c)
	}
	return out
}

// UserBanned stops the user's broadcast and disconnects all their clients.
func (s *Server) UserBanned(ctx context.Context, id domain.UserID) {
	for _, c := range s.clientsOf(id) {
		c.kick(ctx)
	}
}

// ClientCount is the number of connected, started clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, set := range s.clients {
		n += len(set)
	}
	return n
}

// IsConnected reports whether uid has at least one connected client.
func (s *Server) IsConnected(uid domain.UserID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[uid]) > 0
}

// Close disconnects every client and waits for their sessions to finish
// or for ctx to expire.
func (s *Server) Close(ctx context.Context) error {
	s.mu.RLock()
	for _, set := range s.clients {
		for c := range set {
			c.shutdown(websocket.CloseGoingAway, "server shutting down")
		}
	}
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ services.BanListener = (*Server)(nil)

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.MessagesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.Burst)
}
