package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"messaging-service/internal/identity"
	"messaging-service/internal/observability"
	"messaging-service/internal/session"
)

// SessionSocketHandler binds one websocket connection to the user's messaging
// session: client intents arrive as JSON commands, every state change is
// pushed back as a full session snapshot.
type SessionSocketHandler struct {
	manager  *session.Manager
	provider identity.Provider
}

// NewSessionSocketHandler constructs a SessionSocketHandler.
func NewSessionSocketHandler(manager *session.Manager, provider identity.Provider) *SessionSocketHandler {
	return &SessionSocketHandler{manager: manager, provider: provider}
}

// sessionCommand is one client intent.
type sessionCommand struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id,omitempty"`
	OtherID        string `json:"other_id,omitempty"`
	OtherName      string `json:"other_name,omitempty"`
	Content        string `json:"content,omitempty"`
}

// Handle upgrades the connection and runs the command loop until the client
// disconnects.
func (h *SessionSocketHandler) Handle(c *gin.Context) {
	claims, err := authenticate(c, h.provider)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	sess, err := h.manager.Acquire(claims)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.manager.Release(claims.UserID)
		return
	}

	observability.IncWSActive("session")
	observability.IncWSEvent("session", "ws_connect")

	// gorilla connections allow one concurrent writer.
	var writeMu sync.Mutex
	removeObserver := sess.AddObserver(func(snap session.Snapshot) {
		payload, err := json.Marshal(snap)
		if err != nil {
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteMessage(websocket.TextMessage, payload)
	})

	defer func() {
		removeObserver()
		h.manager.Release(claims.UserID)
		observability.DecWSActive("session")
		observability.IncWSEvent("session", "ws_disconnect")
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("session", "ws_error")
			}
			return
		}

		var cmd sessionCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		h.dispatch(sess, cmd)
	}
}

func (h *SessionSocketHandler) dispatch(sess *session.Session, cmd sessionCommand) {
	switch cmd.Action {
	case "select":
		_ = sess.SelectConversation(cmd.ConversationID)
	case "deselect":
		sess.Deselect()
	case "start":
		_ = sess.StartConversationWith(cmd.OtherID, cmd.OtherName)
	case "send":
		_ = sess.SendMessage(cmd.Content)
	case "delete":
		_ = sess.DeleteConversation(cmd.ConversationID)
	case "refresh":
		_ = sess.RefreshConversations()
	case "clear_error":
		sess.ClearError()
	}
}
