package websocket

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/internal/auth"

	"github.com/gorilla/websocket"
)

type Options struct {
	SendBufferSize    int
	MaxMessageSize    int64
	RateLimitBurst    int
	RateLimitInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 256
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	if o.RateLimitBurst <= 0 {
		o.RateLimitBurst = 10
	}
	if o.RateLimitInterval <= 0 {
		o.RateLimitInterval = time.Second
	}
	return o
}

// Manager owns the registry, the router and the dispatcher, and creates the
// sessions that use them.
type Manager struct {
	registry   *Registry
	router     *Router
	dispatcher *Dispatcher
	opts       Options
	log        *slog.Logger
}

func NewManager(registry *Registry, router *Router, dispatcher *Dispatcher, opts Options, log *slog.Logger) *Manager {
	return &Manager{
		registry:   registry,
		router:     router,
		dispatcher: dispatcher,
		opts:       opts.withDefaults(),
		log:        log,
	}
}

func (m *Manager) Registry() *Registry { return m.registry }

// NewSession creates a session in the Connecting state. conn must already
// have completed the WebSocket handshake.
func (m *Manager) NewSession(conn *websocket.Conn, group string, identity auth.Identity) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := newSessionID()
	s := &Session{
		id:       id,
		group:    group,
		identity: identity,
		conn:     conn,
		manager:  m,
		limiter:  newRateLimiter(m.opts.RateLimitBurst, m.opts.RateLimitInterval),
		log:      m.log.With("session_id", id, "group", group),
		ctx:      ctx,
		cancel:   cancel,
		send:     make(chan []byte, m.opts.SendBufferSize),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// Serve registers the session and pumps its connection until it closes.
// It returns early with an error if the session cannot become Active.
func (m *Manager) Serve(s *Session) error {
	if err := s.connect(); err != nil {
		return err
	}

	go s.writePump()
	s.readPump()
	return nil
}

// Shutdown refuses new sessions and disconnects every live one.
func (m *Manager) Shutdown() {
	sessions := m.registry.Close()
	for _, s := range sessions {
		s.Close()
	}
	m.log.Info("relay shut down", "sessions_closed", len(sessions))
}
