package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/inquest/pkg/models"
	"github.com/codeready-toolchain/inquest/pkg/session"
	"github.com/codeready-toolchain/inquest/pkg/worker"
)

// ClientMessage is a message from a WebSocket client.
type ClientMessage struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id,omitempty"`
	FromSeq   int64  `json:"from_seq,omitempty"`
}

// ConnectionManager manages WebSocket connections and their session
// subscriptions. One instance per process. WebSocket serves live sessions
// only; retired session history is available over REST and SSE.
type ConnectionManager struct {
	store        *session.Store
	pool         *worker.Pool
	writeTimeout time.Duration

	mu          sync.RWMutex
	connections map[string]*Connection
}

// Connection represents a single WebSocket client.
type Connection struct {
	ID   string
	Conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	// writeMu serializes writes: forwarder goroutines for different
	// sessions share one socket.
	writeMu sync.Mutex

	// subMu guards subscriptions, which are mutated by the read loop and
	// read by forwarder cleanup.
	subMu         sync.Mutex
	subscriptions map[string]*wsSubscription
}

type wsSubscription struct {
	rec    *session.Record
	sub    *session.Subscriber
	cancel context.CancelFunc
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager(store *session.Store, pool *worker.Pool, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		store:        store,
		pool:         pool,
		writeTimeout: writeTimeout,
		connections:  make(map[string]*Connection),
	}
}

// wsHandler upgrades HTTP connections to WebSocket and delegates to the
// ConnectionManager.
func (s *Server) wsHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Origin validation is delegated to the fronting proxy.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	// HandleConnection blocks until the WebSocket closes.
	s.connManager.HandleConnection(c.Request().Context(), conn)
	return nil
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Blocks until the connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{
		ID:            connID,
		Conn:          conn,
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]*wsSubscription),
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": connID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "connection_id", connID, "error", err)
			continue
		}

		m.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	m.connections[c.ID] = c
	m.mu.Unlock()
	slog.Debug("WebSocket connection registered", "connection_id", c.ID)
}

func (m *ConnectionManager) unregisterConnection(c *Connection) {
	c.cancel()

	c.subMu.Lock()
	for sessionID, ws := range c.subscriptions {
		ws.cancel()
		ws.rec.Unsubscribe(ws.sub)
		delete(c.subscriptions, sessionID)
	}
	c.subMu.Unlock()

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()
	slog.Debug("WebSocket connection unregistered", "connection_id", c.ID)
}

func (m *ConnectionManager) handleClientMessage(c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.SessionID == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "session_id is required for subscribe"})
			return
		}
		m.subscribe(c, msg.SessionID, msg.FromSeq)
	case "unsubscribe":
		if msg.SessionID == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "session_id is required for unsubscribe"})
			return
		}
		m.unsubscribe(c, msg.SessionID)
	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	default:
		m.sendJSON(c, map[string]string{"type": "error", "message": "unknown action: " + msg.Action})
	}
}

func (m *ConnectionManager) subscribe(c *Connection, sessionID string, fromSeq int64) {
	rec, err := m.store.Get(sessionID)
	if err != nil {
		m.sendJSON(c, map[string]string{
			"type":       "subscription.error",
			"session_id": sessionID,
			"message":    "session not live",
		})
		return
	}

	c.subMu.Lock()
	if _, exists := c.subscriptions[sessionID]; exists {
		c.subMu.Unlock()
		m.sendJSON(c, map[string]string{
			"type":       "subscription.error",
			"session_id": sessionID,
			"message":    "already subscribed",
		})
		return
	}

	m.pool.EnsureStarted(rec)
	sub, replay := rec.Subscribe(fromSeq)
	fwdCtx, fwdCancel := context.WithCancel(c.ctx)
	c.subscriptions[sessionID] = &wsSubscription{rec: rec, sub: sub, cancel: fwdCancel}
	c.subMu.Unlock()

	m.sendJSON(c, map[string]any{
		"type":       "subscription.confirmed",
		"session_id": sessionID,
		"from_seq":   fromSeq,
	})

	go m.forward(fwdCtx, c, sessionID, rec, sub, replay)
}

func (m *ConnectionManager) unsubscribe(c *Connection, sessionID string) {
	c.subMu.Lock()
	ws, exists := c.subscriptions[sessionID]
	if exists {
		ws.cancel()
		ws.rec.Unsubscribe(ws.sub)
		delete(c.subscriptions, sessionID)
	}
	c.subMu.Unlock()

	if exists {
		m.sendJSON(c, map[string]string{"type": "subscription.removed", "session_id": sessionID})
	}
}

// forward pushes replay and live events for one subscription to the client.
// Runs on its own goroutine per subscription.
func (m *ConnectionManager) forward(ctx context.Context, c *Connection, sessionID string,
	rec *session.Record, sub *session.Subscriber, replay []models.Event) {
	for _, e := range replay {
		if ctx.Err() != nil {
			return
		}
		m.sendEvent(c, sessionID, e)
	}

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				m.sendJSON(c, map[string]any{
					"type":       "stream.closed",
					"session_id": sessionID,
					"status":     rec.Status(),
				})
				m.removeSubscription(c, sessionID)
				return
			}
			m.sendEvent(c, sessionID, event)
		case <-sub.Dropped():
			m.sendJSON(c, map[string]string{
				"type":       "stream.overflow",
				"session_id": sessionID,
				"message":    "subscriber evicted due to slow consumer",
			})
			m.removeSubscription(c, sessionID)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *ConnectionManager) removeSubscription(c *Connection, sessionID string) {
	c.subMu.Lock()
	delete(c.subscriptions, sessionID)
	c.subMu.Unlock()
}

func (m *ConnectionManager) sendEvent(c *Connection, sessionID string, event models.Event) {
	m.sendJSON(c, map[string]any{
		"type":       "event",
		"session_id": sessionID,
		"event":      event,
	})
}

func (m *ConnectionManager) sendJSON(c *Connection, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal WebSocket payload", "connection_id", c.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()

	c.writeMu.Lock()
	err = c.Conn.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if err != nil {
		slog.Warn("Failed to send to WebSocket client", "connection_id", c.ID, "error", err)
		c.cancel()
	}
}
