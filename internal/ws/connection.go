package ws

import (
	"context"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/onetalk/support-chat/internal/coordinator"
	"github.com/onetalk/support-chat/internal/domain"
	"github.com/onetalk/support-chat/internal/protocol"
)

// Connection is one participant's WebSocket attached to one chat session.
// It is the coordinator's View: renders, toasts and navigations are written
// to the socket as protocol messages.
type Connection struct {
	ID          string   // connection ID (UUID)
	Conn        net.Conn // underlying TCP connection
	Participant domain.Participant
	SessionID   string
	CreatedAt   time.Time

	session      Session
	cancel       context.CancelFunc
	writeTimeout time.Duration
	writeMu      sync.Mutex   // serializes writes to this connection
	lastSeen     atomic.Int64 // unix nanos of the last frame read
}

var _ coordinator.View = (*Connection)(nil)

// WriteMessage sends a WebSocket text frame to this connection.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.Conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a protocol-level ping frame.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// LastSeen is when the last frame arrived from the client.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Connection) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// Render implements coordinator.View.
func (c *Connection) Render(s coordinator.Snapshot) {
	c.send(protocol.TypeState, protocol.StateMsg{State: s})
}

// Toast implements coordinator.View.
func (c *Connection) Toast(t coordinator.Toast) {
	c.send(protocol.TypeToast, protocol.ToastMsg{
		Title:       t.Title,
		Description: t.Description,
		Variant:     string(t.Variant),
	})
}

// Navigate implements coordinator.View.
func (c *Connection) Navigate(route string) {
	c.send(protocol.TypeNavigate, protocol.NavigateMsg{Route: route})
}

func (c *Connection) send(msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[ws] build %s conn=%s: %v", msgType, c.ID, err)
		return
	}
	if err := c.WriteMessage(data); err != nil {
		log.Printf("[ws] write %s conn=%s: %v", msgType, c.ID, err)
	}
}

// ConnectionManager is a thread-safe registry of live connections.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection
}

// NewConnectionManager creates an empty ConnectionManager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{byID: make(map[string]*Connection)}
}

// Add registers a connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.mu.Unlock()
}

// Remove unregisters a connection and closes it. It returns false if the
// connection was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection with the given ID, or nil.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// Count returns the number of live connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
