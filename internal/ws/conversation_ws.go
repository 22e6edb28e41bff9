package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/identity"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// ConversationSocketHandler serves the live ordered message feed of one
// conversation: every insert or status change pushes a full snapshot.
type ConversationSocketHandler struct {
	hub           *Hub
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	provider      identity.Provider

	mu     sync.Mutex
	relays map[string]context.CancelFunc
}

// NewConversationSocketHandler constructs a ConversationSocketHandler.
func NewConversationSocketHandler(hub *Hub, conversations repositories.ConversationRepository, messages repositories.MessageRepository, provider identity.Provider) *ConversationSocketHandler {
	return &ConversationSocketHandler{
		hub:           hub,
		conversations: conversations,
		messages:      messages,
		provider:      provider,
		relays:        make(map[string]context.CancelFunc),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, registers the client and keeps the room's
// relay subscription running while the room is occupied.
func (h *ConversationSocketHandler) Handle(c *gin.Context) {
	conversationID := c.Param("conversation_id")

	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	claims, err := authenticate(c, h.provider)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conv, err := h.conversations.Get(c.Request.Context(), conversationID)
	if err != nil || !conv.HasParticipant(claims.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for conversation"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      claims.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}

	if first := h.hub.AddClient(conversationID, conn, info); first {
		h.startRelay(conversationID)
	}

	observability.IncWSActive("conversation")
	observability.IncWSEvent("conversation", "ws_connect")
	publishConnEvent(ctx, "ws_connect", conversationID, info, "")

	go h.readPump(ctx, conversationID, conn, info)
}

// startRelay arms one subscription per occupied room; snapshots fan out to
// every client in the room.
func (h *ConversationSocketHandler) startRelay(conversationID string) {
	relayCtx, cancel := context.WithCancel(context.Background())

	h.mu.Lock()
	if old, ok := h.relays[conversationID]; ok {
		old()
	}
	h.relays[conversationID] = cancel
	h.mu.Unlock()

	go func() {
		updates, err := h.messages.Subscribe(relayCtx, conversationID)
		if err != nil {
			cancel()
			return
		}
		for msgs := range updates {
			h.hub.BroadcastMessages(conversationID, msgs)
		}
	}()
}

func (h *ConversationSocketHandler) stopRelay(conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cancel, ok := h.relays[conversationID]; ok {
		cancel()
		delete(h.relays, conversationID)
	}
}

// readPump keeps the connection alive and cleans up on close.
func (h *ConversationSocketHandler) readPump(ctx context.Context, conversationID string, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		if empty := h.hub.RemoveClient(conversationID, conn); empty {
			h.stopRelay(conversationID)
		}
		observability.DecWSActive("conversation")
		observability.IncWSEvent("conversation", "ws_disconnect")
		publishConnEvent(ctx, "ws_disconnect", conversationID, info, closeReason)
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("conversation", "ws_error")
				publishConnEvent(ctx, "ws_error", conversationID, info, closeReason)
			}
			return
		}
	}
}

func publishConnEvent(ctx context.Context, event, conversationID string, info ConnInfo, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events.conversations", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":            "conversation",
				"conversation_id": conversationID,
				"event":           event,
				"conn_id":         info.ConnID,
				"duration_ms":     time.Since(info.ConnectedAt).Milliseconds(),
				"reason":          reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

// authenticate accepts the bearer header or a token query parameter.
func authenticate(c *gin.Context, provider identity.Provider) (identity.Claims, error) {
	token := c.GetHeader("Authorization")
	if token == "" {
		if q := c.Query("token"); q != "" {
			token = "Bearer " + q
		}
	}
	parts := strings.SplitN(token, " ", 2)
	if len(parts) != 2 {
		return provider.Verify("")
	}
	return provider.Verify(parts[1])
}
