// Package ws bridges the chat screen to a session coordinator over a
// WebSocket. Each connection gets its own read goroutine and its own
// coordinator; client commands are dispatched to the coordinator and the
// coordinator's renders, toasts and navigations are written back.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/onetalk/support-chat/internal/backend"
	"github.com/onetalk/support-chat/internal/coordinator"
	"github.com/onetalk/support-chat/internal/domain"
	"github.com/onetalk/support-chat/internal/metrics"
)

// HeaderProfileID carries the signed-in participant's profile ID. Browsers
// cannot set headers on a WebSocket handshake, so the profile_id query
// parameter is accepted as well.
const HeaderProfileID = "X-Profile-ID"

// Session is the coordinator API a connection drives.
type Session interface {
	Run(ctx context.Context) (coordinator.Outcome, error)
	SetDraft(ctx context.Context, text string) error
	Send(ctx context.Context) error
	EndChat(ctx context.Context) error
	RequestExtension(ctx context.Context, minutes int) error
	AcceptExtension(ctx context.Context) error
	DeclineExtension(ctx context.Context) error
}

// SessionFactory builds the session for a new connection. view receives
// everything the session renders.
type SessionFactory func(view coordinator.View, self domain.Participant, sessionID string) Session

// ServerConfig holds tunable parameters for the bridge.
type ServerConfig struct {
	MaxConnections int           // hard cap on total connections
	WriteTimeout   time.Duration // per outbound frame
	CommandTimeout time.Duration // per dispatched client command
	Heartbeat      HeartbeatConfig
}

// DefaultServerConfig returns the default bridge settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxConnections: 10000,
		WriteTimeout:   10 * time.Second,
		CommandTimeout: 15 * time.Second,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// Server upgrades HTTP requests to WebSocket chat connections.
type Server struct {
	config     ServerConfig
	conns      *ConnectionManager
	profiles   coordinator.ProfileResolver
	factory    SessionFactory
	dispatcher *MessageDispatcher
	done       chan struct{}
	startedAt  time.Time
}

// NewServer creates a bridge. profiles resolves the connecting participant;
// factory creates their session.
func NewServer(config ServerConfig, profiles coordinator.ProfileResolver, factory SessionFactory) *Server {
	return &Server{
		config:     config,
		conns:      NewConnectionManager(),
		profiles:   profiles,
		factory:    factory,
		dispatcher: NewMessageDispatcher(config.CommandTimeout),
		done:       make(chan struct{}),
		startedAt:  time.Now(),
	}
}

// Start launches the heartbeat monitor.
func (s *Server) Start() {
	StartHeartbeat(s, s.config.Heartbeat)
	log.Printf("[ws] bridge ready (max_conns=%d)", s.config.MaxConnections)
}

// Dispatcher exposes the message dispatcher so extra handlers can be
// registered before serving.
func (s *Server) Dispatcher() *MessageDispatcher {
	return s.dispatcher
}

// HandleUpgrade serves GET /ws?session_id=<id>. The participant is taken
// from the X-Profile-ID header or the profile_id query parameter and must
// resolve to a profile before the upgrade happens.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}
	profileID := r.Header.Get(HeaderProfileID)
	if profileID == "" {
		profileID = r.URL.Query().Get("profile_id")
	}
	if profileID == "" {
		http.Error(w, "missing profile", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	profile, err := s.profiles.Profile(ctx, profileID)
	cancel()
	if errors.Is(err, backend.ErrNotFound) {
		http.Error(w, "unknown profile", http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Printf("[ws] resolve profile %s: %v", profileID, err)
		http.Error(w, "profile lookup failed", http.StatusBadGateway)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}

	self := domain.Participant{ProfileID: profile.ID, Nickname: profile.Nickname}
	c := &Connection{
		ID:           uuid.NewString(),
		Conn:         conn,
		Participant:  self,
		SessionID:    sessionID,
		CreatedAt:    time.Now(),
		writeTimeout: s.config.WriteTimeout,
	}
	c.touch()
	c.session = s.factory(c, self, sessionID)

	runCtx, stop := context.WithCancel(context.Background())
	c.cancel = stop

	s.conns.Add(c)
	metrics.BridgeConnections.Inc()
	log.Printf("[ws] new connection conn=%s profile=%s session=%s (total=%d)",
		c.ID, self.ProfileID, sessionID, s.conns.Count())

	go s.runSession(runCtx, c)
	go s.readLoop(c)
}

// runSession drives the coordinator until it finishes or the connection
// goes away. A finished session closes the socket once its final
// navigation has been written.
func (s *Server) runSession(ctx context.Context, c *Connection) {
	outcome, err := c.session.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		log.Printf("[ws] session=%s conn=%s entry failed: %v", c.SessionID, c.ID, err)
	default:
		log.Printf("[ws] session=%s conn=%s finished trigger=%s route=%s",
			c.SessionID, c.ID, outcome.Trigger, outcome.Route)
	}
	s.RemoveConnection(c)
}

// readLoop reads frames until the connection fails or closes.
func (s *Server) readLoop(c *Connection) {
	defer s.RemoveConnection(c)

	for {
		header, reader, err := wsutil.NextReader(c.Conn, ws.StateServerSide)
		if err != nil {
			return
		}
		c.touch()

		if header.OpCode.IsControl() {
			if header.OpCode == ws.OpClose {
				return
			}
			if _, err := io.Copy(io.Discard, reader); err != nil {
				return
			}
			continue
		}

		data, err := io.ReadAll(reader)
		if err != nil {
			return
		}
		if len(data) == 0 || header.OpCode != ws.OpText {
			continue
		}
		s.dispatcher.Dispatch(c, data)
	}
}

// RemoveConnection stops the connection's session and closes the socket.
// It is safe to call more than once.
func (s *Server) RemoveConnection(c *Connection) {
	if !s.conns.Remove(c.ID) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	metrics.BridgeConnections.Dec()
	log.Printf("[ws] connection closed conn=%s (total=%d)", c.ID, s.conns.Count())
}

// Connections returns the connection registry.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// HandleHealth reports the live connection count and uptime.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// Shutdown stops the heartbeat and closes every connection. Sessions are
// left as they are; participants can reconnect.
func (s *Server) Shutdown() {
	log.Println("[ws] shutting down bridge...")
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	for _, c := range s.conns.All() {
		s.RemoveConnection(c)
	}
	log.Printf("[ws] bridge stopped, all connections closed")
}
