package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
	"novaled/internal/core/services"
	"novaled/internal/infrastructure/identity"
	"novaled/internal/infrastructure/middleware"
	apperrors "novaled/pkg/errors"
	"novaled/pkg/tracing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const sendBuffer = 16

type client struct {
	server  *Server
	conn    *websocket.Conn
	session *identity.Session
	manager *services.LiveSessionManager
	limiter *rate.Limiter
	logger  *zap.SugaredLogger

	send       chan Message
	done       chan struct{}
	writerDone chan struct{}

	closeOnce   sync.Once
	closeCode   int
	closeReason string
	kickOnce    sync.Once
}

func newClient(s *Server, conn *websocket.Conn, session *identity.Session) *client {
	return &client{
		server:     s,
		conn:       conn,
		session:    session,
		limiter:    newLimiter(s.cfg),
		logger:     s.logger.With("user_id", session.CurrentUserID()),
		send:       make(chan Message, sendBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// shutdown asks the writer to send a close frame and drop the connection.
func (c *client) shutdown(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

func (c *client) enqueue(msg Message) {
	select {
	case c.send <- msg:
	case <-c.done:
	}
}

func (c *client) sendMessage(msgType string, payload any) {
	msg, err := newMessage(msgType, payload)
	if err != nil {
		c.logger.Errorw("failed to encode message", "type", msgType, "error", err)
		return
	}
	c.enqueue(msg)
}

func (c *client) sendError(err error) {
	appErr := middleware.AppErrorFrom(err)
	c.sendMessage(TypeError, ErrorPayload{Code: string(appErr.Code), Message: appErr.Message})
}

// kick ends the user's broadcast and signs the connection out after a ban.
func (c *client) kick(ctx context.Context) {
	c.kickOnce.Do(func() {
		if err := c.manager.ForceStop(ctx, domain.StopBanned); err != nil && !errors.Is(err, domain.ErrManagerClosed) {
			c.logger.Warnw("failed to stop broadcast of banned user", "error", err)
		}
		c.sendError(domain.ErrBanned)
		_ = c.session.SignOut(ctx)
		c.logger.Infow("banned client disconnected")
	})
}

// watch subscribes to owner popups, the feed, the user list for owners and
// the user's own profile, which catches bans issued through another server
// instance.
func (c *client) watch(ctx context.Context) ports.Unsubscribe {
	var unsubs []ports.Unsubscribe

	if c.server.popups != nil {
		since, err := c.server.deps.Store.ServerTimestamp(ctx)
		if err != nil {
			since = c.server.deps.Clock.Now()
		}
		unsubscribe, err := c.server.popups.Subscribe(ctx, since, func(p domain.OwnerPopup) {
			c.sendMessage(TypeOwnerPopup, p)
		})
		if err != nil {
			c.logger.Warnw("failed to subscribe to owner popups", "error", err)
		} else {
			unsubs = append(unsubs, unsubscribe)
		}
	}

	if c.server.feed != nil {
		unsubscribe, err := c.server.feed.SubscribeFeed(ctx, func(posts []*domain.Post) {
			c.sendMessage(TypeFeed, FeedPayload{Posts: posts})
		})
		if err != nil {
			c.logger.Warnw("failed to subscribe to feed", "error", err)
		} else {
			unsubs = append(unsubs, unsubscribe)
		}

		if c.manager.Status().Privileged {
			unsubscribe, err := c.server.deps.Store.Subscribe(ctx, domain.UsersCollection, func(snap ports.Snapshot) {
				users, skipped := services.UsersFromSnapshot(snap)
				if len(skipped) > 0 {
					c.logger.Warnw("skipping undecodable users", "keys", skipped)
				}
				c.sendMessage(TypeUsers, newUsersPayload(users))
			})
			if err != nil {
				c.logger.Warnw("failed to subscribe to users", "error", err)
			} else {
				unsubs = append(unsubs, unsubscribe)
			}
		}
	}

	uid := c.session.CurrentUserID()
	unsubscribe, err := c.server.deps.Store.Subscribe(ctx, domain.UserPath(uid), func(snap ports.Snapshot) {
		var user domain.User
		if !snap.Exists() || snap.Decode(&user) != nil || !user.Banned {
			return
		}
		go c.kick(context.Background())
	})
	if err != nil {
		c.logger.Warnw("failed to watch profile", "error", err)
	} else {
		unsubs = append(unsubs, unsubscribe)
	}

	return func() {
		for _, fn := range unsubs {
			fn()
		}
	}
}

func (c *client) readPump(ctx context.Context) {
	cfg := c.server.cfg
	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(cfg.MaxMessageSize)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Infow("websocket read failed", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))

		if !c.limiter.Allow() {
			c.sendError(apperrors.NewRateLimitError())
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(fmt.Errorf("%w: malformed message", domain.ErrInvalidInput))
			continue
		}
		c.server.observer.RecordMessage(msg.Type)

		if err := c.handle(ctx, msg); err != nil {
			c.logger.Debugw("message rejected", "type", msg.Type, "error", err)
			c.sendError(err)
		}
	}
}

func (c *client) handle(ctx context.Context, msg Message) (err error) {
	ctx, span := tracing.TraceWebSocketMessage(ctx, msg.Type, string(c.session.CurrentUserID()))
	defer func() { tracing.End(span, err) }()

	switch msg.Type {
	case TypeStartLive:
		payload, err := decodePayload[StartLivePayload](msg)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		if payload.SDP != "" {
			if err := validateSDP(payload.SDP); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
			}
		}
		// The answer is queued before the Live status is published.
		_, err = c.manager.StartBroadcastAnswering(ctx, ports.CaptureRequest{
			Video: payload.Video,
			Audio: payload.Audio,
			Offer: payload.SDP,
		}, func(answer string) {
			c.sendMessage(TypeAnswer, AnswerPayload{SDP: answer})
		})
		return err

	case TypeStopLive:
		return c.manager.StopBroadcast(ctx)

	case TypeICECandidate:
		payload, err := decodePayload[ICECandidatePayload](msg)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return c.manager.AddICECandidate(ctx, payload.Candidate)

	case TypeLogout:
		if err := c.manager.ForceStop(ctx, domain.StopManual); err != nil {
			c.logger.Warnw("failed to stop broadcast on logout", "error", err)
		}
		return c.session.SignOut(ctx)

	default:
		return fmt.Errorf("%w: unknown message type %q", domain.ErrInvalidInput, msg.Type)
	}
}

func (c *client) writePump() {
	defer close(c.writerDone)
	defer c.conn.Close()

	ping := time.NewTicker(c.server.cfg.PingInterval)
	defer ping.Stop()

	updates := c.manager.Updates()
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}

		case status, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			// Messages queued before this status was published go first.
			if err := c.flush(); err != nil {
				c.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}
			msg, err := newMessage(TypeStatus, status)
			if err != nil {
				continue
			}
			if err := c.write(msg); err != nil {
				c.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.server.cfg.WriteTimeout)); err != nil {
				c.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.done:
			_ = c.flush()
			if c.closeCode != websocket.CloseAbnormalClosure {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(c.closeCode, c.closeReason),
					time.Now().Add(c.server.cfg.WriteTimeout))
			}
			return
		}
	}
}

// flush writes whatever is queued, e.g. a start answer ahead of the status
// it produced or the reason a session was refused.
func (c *client) flush() error {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (c *client) write(msg Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
	return c.conn.WriteJSON(msg)
}
