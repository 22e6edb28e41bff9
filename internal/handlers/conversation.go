package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/directory"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// ConversationHandler manages the conversation endpoints.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	directory     directory.Directory
	emitter       *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversations repositories.ConversationRepository, messages repositories.MessageRepository, dir directory.Directory, emitter *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		directory:     dir,
		emitter:       emitter,
	}
}

// List returns the authenticated user's conversations, most recent first,
// with counterpart names filled in from the directory where the denormalized
// snapshot is empty.
func (h *ConversationHandler) List(c *gin.Context) {
	userID := c.GetString("userID")

	convs, err := h.conversations.ListForParticipant(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	missing := make([]string, 0, len(convs))
	for _, conv := range convs {
		other := conv.Other(userID)
		if conv.ParticipantNames[other] == "" {
			missing = append(missing, other)
		}
	}
	names := map[string]string{}
	if len(missing) > 0 {
		if users, err := h.directory.BulkUsers(c.Request.Context(), missing); err == nil {
			for _, u := range users {
				names[u.ID] = u.FullName
			}
		}
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary := conv.SummaryFor(userID)
		if summary.OtherName == "" {
			summary.OtherName = names[summary.OtherID]
		}
		summaries = append(summaries, summary)
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// Start resolves or creates the conversation with another user.
func (h *ConversationHandler) Start(c *gin.Context) {
	var req struct {
		OtherID   string `json:"other_id" binding:"required"`
		OtherName string `json:"other_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims := middleware.ClaimsFromContext(c)
	if req.OtherID == claims.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot message yourself"})
		return
	}

	selfName := claims.DisplayName
	if user, err := h.directory.GetUserByID(c.Request.Context(), claims.UserID); err == nil && user.FullName != "" {
		selfName = user.FullName
	}
	if selfName == "" {
		selfName = claims.EmailLocalPart()
	}
	if selfName == "" {
		selfName = "Unknown User"
	}
	otherName := req.OtherName
	if otherName == "" {
		if user, err := h.directory.GetUserByID(c.Request.Context(), req.OtherID); err == nil {
			otherName = user.FullName
		}
	}

	conv, err := h.conversations.ResolveOrCreate(c.Request.Context(), claims.UserID, req.OtherID, selfName, otherName)
	if err != nil {
		respondError(c, err)
		return
	}

	observability.IncConversationStarted()
	h.emitter.Emit(c.Request.Context(), "INFO", "conversation started", requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusOK, conv)
}

// Unread returns the user's total unread badge count.
func (h *ConversationHandler) Unread(c *gin.Context) {
	total, err := h.conversations.TotalUnread(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total})
}

// MarkRead marks every message addressed to the user in the conversation as
// read and resets the unread badge.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
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

	if err := h.messages.MarkDelivered(c.Request.Context(), conversationID, userID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.messages.MarkRead(c.Request.Context(), conversationID, userID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.conversations.SetUnreadCount(c.Request.Context(), conversationID, userID, 0); err != nil {
		respondError(c, apperrors.Partial("messages read but unread badge not reset", err))
		return
	}

	observability.IncConversationRead()
	c.Status(http.StatusNoContent)
}

// Delete removes the conversation and its messages.
func (h *ConversationHandler) Delete(c *gin.Context) {
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

	if err := h.conversations.Delete(c.Request.Context(), conversationID); err != nil {
		respondError(c, err)
		return
	}

	h.emitter.Emit(c.Request.Context(), "INFO", "conversation deleted", requestIDFromContext(c), userIDFromContext(c))
	c.Status(http.StatusNoContent)
}
