package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"trip-dispatch/internal/logger"
	"trip-dispatch/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	ctrlTimeout    = 5 * time.Second
	readDeadline   = 60 * time.Second
)

// Hub keeps the live driver and passenger sockets and pushes outbound events
// to them. It satisfies ports.Notifier; a notification for a user with no
// open socket is dropped silently, the queue copy still reaches them.
type Hub struct {
	logger *logger.Logger

	writeLocks sync.Map // key: *websocket.Conn -> *sync.Mutex
	conns      sync.Map // key: userID(string) -> *websocket.Conn
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{logger: log}
}

// register binds a user to a connection, replacing any previous socket.
func (h *Hub) register(userID string, conn *websocket.Conn) {
	if old, loaded := h.conns.Swap(userID, conn); loaded {
		if oldConn, ok := old.(*websocket.Conn); ok && oldConn != conn {
			_ = oldConn.Close()
			h.writeLocks.Delete(oldConn)
		}
	}
}

// unregister removes the binding only if it still points at conn.
func (h *Hub) unregister(userID string, conn *websocket.Conn) {
	h.conns.CompareAndDelete(userID, conn)
	h.writeLocks.Delete(conn)
}

// lockOf returns the per-connection writer mutex, creating it on first use.
// gorilla/websocket allows a single concurrent writer per connection.
func (h *Hub) lockOf(conn *websocket.Conn) *sync.Mutex {
	mu, _ := h.writeLocks.LoadOrStore(conn, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// writeMessage serializes writes on one connection.
func (h *Hub) writeMessage(conn *websocket.Conn, messageType int, data []byte) error {
	mu := h.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(messageType, data)
}

// writeClose sends a close frame; best effort.
func (h *Hub) writeClose(conn *websocket.Conn, code int, reason string) {
	mu := h.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(ctrlTimeout))
}

// PushEvent sends a typed JSON event to one user, if connected. Reports
// whether a socket was found.
func (h *Hub) PushEvent(ctx context.Context, userID, eventType string, data any) bool {
	v, ok := h.conns.Load(userID)
	if !ok {
		return false
	}
	conn := v.(*websocket.Conn)

	payload, err := json.Marshal(map[string]any{
		"type":      eventType,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Error(ctx, "ws_event_marshal_failed", "Failed to encode outbound event", err, map[string]any{
			"user_id":    userID,
			"event_type": eventType,
		})
		return false
	}

	if err := h.writeMessage(conn, websocket.TextMessage, payload); err != nil {
		h.logger.Error(ctx, "ws_push_failed", "Failed to push event, dropping connection", err, map[string]any{
			"user_id":    userID,
			"event_type": eventType,
		})
		_ = conn.Close()
		h.unregister(userID, conn)
		return false
	}
	return true
}

// Notify implements ports.Notifier over the live sockets.
func (h *Hub) Notify(ctx context.Context, n ports.Notification) error {
	h.PushEvent(ctx, n.UserID, n.Type, map[string]any{
		"title":    n.Title,
		"message":  n.Message,
		"data":     n.Data,
		"priority": n.Priority,
	})
	return nil
}
