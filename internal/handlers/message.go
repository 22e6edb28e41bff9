package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// MessageHandler manages the message endpoints of a conversation.
type MessageHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	emitter       *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(conversations repositories.ConversationRepository, messages repositories.MessageRepository, emitter *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{conversations: conversations, messages: messages, emitter: emitter}
}

// List returns the conversation's messages in chronological order.
func (h *MessageHandler) List(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := c.GetString("userID")

	conv, err := h.conversations.Get(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !conv.HasParticipant(userID) {
		respondError(c, apperrors.Forbidden("not a participant"))
		return
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Post appends a message to the conversation and updates its summary.
func (h *MessageHandler) Post(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := c.GetString("userID")

	conv, err := h.conversations.Get(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !conv.HasParticipant(userID) {
		respondError(c, apperrors.Forbidden("not a participant"))
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.Append(c.Request.Context(), conversationID, userID, conv.Other(userID), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.conversations.UpdateSummary(c.Request.Context(), conversationID, msg.Content, msg.SenderID, msg.Timestamp); err != nil {
		respondError(c, apperrors.Partial("message stored but summary not updated", err))
		return
	}

	observability.IncMessageSent()
	h.emitter.Emit(c.Request.Context(), "INFO", "message sent", requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusCreated, msg)
}
