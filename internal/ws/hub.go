package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// Hub maintains the active websocket rooms, one room per conversation. Each
// room is fed full ordered message snapshots by a single relay subscription.
type Hub struct {
	rooms map[string]map[*websocket.Conn]ConnInfo
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*websocket.Conn]ConnInfo)}
}

// AddClient registers a connection to a conversation room. Reports whether it
// is the room's first connection, so the caller can arm the relay.
func (h *Hub) AddClient(conversationID string, conn *websocket.Conn, info ConnInfo) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[*websocket.Conn]ConnInfo)
		h.rooms[conversationID] = room
	}
	room[conn] = info
	return !ok
}

// RemoveClient removes a connection. Reports whether the room became empty,
// so the caller can tear the relay down.
func (h *Hub) RemoveClient(conversationID string, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[conversationID]
	if !ok {
		return false
	}
	delete(room, conn)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
		return true
	}
	return false
}

// RoomSize returns the number of connections in a conversation room.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// BroadcastMessages sends a full ordered snapshot to every client in the
// conversation room.
func (h *Hub) BroadcastMessages(conversationID string, msgs []models.Message) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[conversationID]))
	for conn := range h.rooms[conversationID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	event := models.MessageEvent{Type: "snapshot", Messages: msgs}
	payload, _ := json.Marshal(event)
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			h.publishWSError(conversationID, conn, err)
			conn.Close()
			h.RemoveClient(conversationID, conn)
		}
	}
}

func (h *Hub) publishWSError(conversationID string, conn *websocket.Conn, err error) {
	info, ok := h.getConnInfo(conversationID, conn)
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":            "conversation",
			"conversation_id": conversationID,
			"event":           "ws_error",
			"conn_id":         info.ConnID,
			"duration_ms":     time.Since(info.ConnectedAt).Milliseconds(),
			"reason":          err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.conversations", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("conversation", "ws_error")
}

func (h *Hub) getConnInfo(conversationID string, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.rooms[conversationID]; ok {
		info, exists := room[conn]
		return info, exists
	}
	return ConnInfo{}, false
}
