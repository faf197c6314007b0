package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"trip-dispatch/internal/ports"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler exposes the socket endpoints. Identity comes from the path; the
// gateway in front of this service has already authenticated the caller.
type Handler struct {
	hub       *Hub
	locations ports.LocationIndex
}

// NewHandler wires the hub and the driver location sink.
func NewHandler(hub *Hub, locations ports.LocationIndex) *Handler {
	return &Handler{hub: hub, locations: locations}
}

// ConnectDriver handles WebSocket connections from drivers. Inbound
// location_update frames feed the proximity index; everything else on this
// socket is outbound pushes from the hub.
func (h *Handler) ConnectDriver(w http.ResponseWriter, r *http.Request) {
	driverID := r.PathValue("driver_id")
	if driverID == "" {
		http.Error(w, "driver_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20) // 1 MiB

	h.hub.register(driverID, conn)
	defer h.hub.unregister(driverID, conn)

	h.hub.logger.Info(r.Context(), "ws_connected", "Driver WebSocket connected",
		map[string]any{"driver_id": driverID})

	h.startPingLoop(conn)
	h.readLoop(r, conn, driverID, true)
}

// ConnectPassenger handles WebSocket connections from passengers. The socket
// is push-only; inbound frames other than pings are rejected.
func (h *Handler) ConnectPassenger(w http.ResponseWriter, r *http.Request) {
	passengerID := r.PathValue("passenger_id")
	if passengerID == "" {
		http.Error(w, "passenger_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20) // 1 MiB

	h.hub.register(passengerID, conn)
	defer h.hub.unregister(passengerID, conn)

	h.hub.logger.Info(r.Context(), "ws_connected", "Passenger WebSocket connected",
		map[string]any{"passenger_id": passengerID})

	h.startPingLoop(conn)
	h.readLoop(r, conn, passengerID, false)
}

// startPingLoop pings every 30s using the per-connection writer lock; a
// failed ping closes the socket to unblock the reader.
func (h *Handler) startPingLoop(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			mu := h.hub.lockOf(conn)
			mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
			mu.Unlock()
			if err != nil {
				_ = conn.Close()
				return
			}
		}
	}()
}

func (h *Handler) readLoop(r *http.Request, conn *websocket.Conn, userID string, isDriver bool) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.hub.logger.Error(r.Context(), "ws_unexpected_close", "Connection closed unexpectedly", err, map[string]any{
					"user_id": userID,
				})
				h.hub.writeClose(conn, websocket.CloseInternalServerErr, "internal error")
			} else {
				h.hub.logger.Info(r.Context(), "ws_connection_closed", "Connection closed normally", map[string]any{
					"user_id": userID,
				})
				h.hub.writeClose(conn, websocket.CloseNormalClosure, "bye")
			}
			return
		}

		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = h.hub.writeMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"bad json"}`))
			continue
		}

		switch {
		case isDriver && msg.Type == "location_update":
			h.handleLocationUpdate(r, conn, userID, msg.Data)
		default:
			_ = h.hub.writeMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"unknown message type"}`))
		}
	}
}

func (h *Handler) handleLocationUpdate(r *http.Request, conn *websocket.Conn, driverID string, data json.RawMessage) {
	var loc struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.Unmarshal(data, &loc); err != nil {
		_ = h.hub.writeMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"bad location payload"}`))
		return
	}
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		_ = h.hub.writeMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"coordinates out of range"}`))
		return
	}

	if err := h.locations.Update(r.Context(), driverID, loc.Latitude, loc.Longitude); err != nil {
		h.hub.logger.Error(r.Context(), "location_update_failed", "Failed to record driver location", err, map[string]any{
			"driver_id": driverID,
		})
	}
}
