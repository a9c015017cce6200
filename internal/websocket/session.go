package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"chat-relay/internal/auth"
	"chat-relay/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is one live connection bound to one group for its whole lifetime.
type Session struct {
	id       string
	group    string
	identity auth.Identity
	conn     *websocket.Conn
	manager  *Manager
	limiter  *rateLimiter
	log      *slog.Logger

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards send and closed; send is closed exactly once, under mu.
	mu     sync.Mutex
	send   chan []byte
	closed bool

	registered atomic.Bool
	closeOnce  sync.Once
}

func (s *Session) ID() string              { return s.id }
func (s *Session) Group() string           { return s.group }
func (s *Session) Identity() auth.Identity { return s.identity }
func (s *Session) State() SessionState     { return SessionState(s.state.Load()) }

// Send exposes the outbound queue. It is closed when the session disconnects.
func (s *Session) Send() <-chan []byte { return s.send }

// connect registers the session and moves it to Active. On failure the
// session is Disconnected.
func (s *Session) connect() error {
	if err := s.manager.registry.Register(s.group, s); err != nil {
		s.Close()
		return err
	}
	s.registered.Store(true)

	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		// Closed concurrently, e.g. by a shutdown racing the registration.
		s.manager.registry.Deregister(s.group, s)
		return ErrRegistryClosed
	}
	activeSessions.Inc()
	s.log.Info("session connected", "user", s.identity.DisplayName())
	return nil
}

// Close moves the session to Disconnected. Only the first call has any
// effect: the outbound queue stops accepting frames, the session context is
// cancelled and the session leaves its group.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		// The state and the queue change together so that no frame is
		// enqueued once the session reads as Disconnected.
		s.mu.Lock()
		previous := SessionState(s.state.Swap(int32(StateDisconnected)))
		s.closed = true
		close(s.send)
		s.mu.Unlock()

		s.cancel()
		if s.registered.Load() {
			s.manager.registry.Deregister(s.group, s)
		}
		if previous == StateActive {
			activeSessions.Dec()
		}
		s.log.Info("session disconnected", "previous_state", previous)
	})
}

// enqueue reports false only when the outbound queue is full. Frames for a
// closed session are discarded.
func (s *Session) enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) readPump() {
	defer func() {
		s.Close()
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Debug("error closing connection", "error", err)
		}
	}()

	s.conn.SetReadLimit(s.manager.opts.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.log.Warn("failed to set read deadline", "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}

		if !s.limiter.allow() {
			inboundFrames.WithLabelValues(outcomeRateLimited).Inc()
			s.log.Warn("rate limit exceeded, dropping frame")
			continue
		}

		s.handleFrame(frame)
	}
}

// handleFrame runs on the read goroutine, so frames of one session are
// handled one at a time in arrival order.
func (s *Session) handleFrame(frame []byte) {
	if s.State() != StateActive {
		inboundFrames.WithLabelValues(outcomeNotActive).Inc()
		s.log.Debug("dropping frame, session not active", "state", s.State())
		return
	}

	err := s.manager.dispatcher.Handle(s.ctx, s.group, s.identity, frame)
	switch {
	case err == nil:
		inboundFrames.WithLabelValues(outcomeHandled).Inc()
	case errors.Is(err, models.ErrMalformedEvent):
		inboundFrames.WithLabelValues(outcomeMalformed).Inc()
		s.log.Warn("dropping malformed frame", "error", err)
	case errors.Is(err, context.Canceled):
		inboundFrames.WithLabelValues(outcomeFailed).Inc()
		s.log.Debug("frame aborted by disconnect", "error", err)
	default:
		inboundFrames.WithLabelValues(outcomeFailed).Inc()
		s.log.Error("failed to handle frame", "error", err)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Debug("error closing connection", "error", err)
		}
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.log.Debug("failed to set write deadline", "error", err)
				return
			}
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				if err := s.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
					s.log.Debug("failed to write close message", "error", err)
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Warn("write error", "error", err)
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn("frame exceeded maximum size", "limit", s.manager.opts.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		s.log.Debug("client closed connection", "error", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		s.log.Warn("unexpected close", "error", err)
	case isExpectedCloseError(err):
		s.log.Debug("connection closed", "error", err)
	default:
		s.log.Warn("read error", "error", err)
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure)
}

func newSessionID() string {
	return uuid.NewString()
}
