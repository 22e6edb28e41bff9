package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/directory"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

func pairConversation(id string) models.Conversation {
	return models.Conversation{
		ID:               id,
		ParticipantIDs:   []string{"alice", "bob"},
		ParticipantNames: map[string]string{"alice": "Alice A", "bob": "Bob B"},
		UnreadCount:      map[string]int{"alice": 0, "bob": 0},
		IsActive:         true,
		CreatedAt:        time.Now(),
	}
}

func setupConversationRouter(handler *ConversationHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "alice")
		c.Set("displayName", "Alice A")
		c.Set("email", "alice@example.com")
		c.Next()
	})
	r.GET("/conversations", handler.List)
	r.POST("/conversations/start", handler.Start)
	r.GET("/conversations/unread", handler.Unread)
	r.POST("/conversations/:conversation_id/read", handler.MarkRead)
	r.DELETE("/conversations/:conversation_id", handler.Delete)
	return r
}

func TestListConversationsSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	dir := new(mocks.DirectoryMock)
	handler := NewConversationHandler(convRepo, nil, dir, nil)
	router := setupConversationRouter(handler)

	convRepo.On("ListForParticipant", mock.Anything, "alice").
		Return([]models.Conversation{pairConversation("c1")}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "bob", resp.Conversations[0].OtherID)
	assert.Equal(t, "Bob B", resp.Conversations[0].OtherName)
	convRepo.AssertExpectations(t)
}

func TestListConversationsFillsMissingNames(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	dir := new(mocks.DirectoryMock)
	handler := NewConversationHandler(convRepo, nil, dir, nil)
	router := setupConversationRouter(handler)

	conv := pairConversation("c1")
	conv.ParticipantNames["bob"] = ""
	convRepo.On("ListForParticipant", mock.Anything, "alice").
		Return([]models.Conversation{conv}, nil).Once()
	dir.On("BulkUsers", mock.Anything, []string{"bob"}).
		Return([]directory.User{{ID: "bob", FullName: "Bob B"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "Bob B", resp.Conversations[0].OtherName)
	convRepo.AssertExpectations(t)
	dir.AssertExpectations(t)
}

func TestListConversationsRepoError(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo, nil, new(mocks.DirectoryMock), nil)
	router := setupConversationRouter(handler)

	convRepo.On("ListForParticipant", mock.Anything, "alice").
		Return(([]models.Conversation)(nil), apperrors.Unavailable("db down", assert.AnError)).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestStartConversationSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	dir := new(mocks.DirectoryMock)
	handler := NewConversationHandler(convRepo, nil, dir, nil)
	router := setupConversationRouter(handler)

	dir.On("GetUserByID", mock.Anything, "alice").
		Return(directory.User{ID: "alice", FullName: "Alice A"}, nil).Once()
	dir.On("GetUserByID", mock.Anything, "bob").
		Return(directory.User{ID: "bob", FullName: "Bob B"}, nil).Once()
	convRepo.On("ResolveOrCreate", mock.Anything, "alice", "bob", "Alice A", "Bob B").
		Return(pairConversation("c1"), nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/start", bytes.NewBufferString(`{"other_id":"bob"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	convRepo.AssertExpectations(t)
	dir.AssertExpectations(t)
}

func TestStartConversationRejectsSelf(t *testing.T) {
	handler := NewConversationHandler(new(mocks.ConversationRepositoryMock), nil, new(mocks.DirectoryMock), nil)
	router := setupConversationRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/conversations/start", bytes.NewBufferString(`{"other_id":"alice"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartConversationMissingBody(t *testing.T) {
	handler := NewConversationHandler(new(mocks.ConversationRepositoryMock), nil, new(mocks.DirectoryMock), nil)
	router := setupConversationRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/conversations/start", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnreadTotal(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo, nil, new(mocks.DirectoryMock), nil)
	router := setupConversationRouter(handler)

	convRepo.On("TotalUnread", mock.Anything, "alice").Return(7, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/unread", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 7, resp["total"])
	convRepo.AssertExpectations(t)
}

func TestMarkReadSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewConversationHandler(convRepo, messageRepo, new(mocks.DirectoryMock), nil)
	router := setupConversationRouter(handler)

	convRepo.On("Get", mock.Anything, "c1").Return(pairConversation("c1"), nil).Once()
	messageRepo.On("MarkDelivered", mock.Anything, "c1", "alice").Return(nil).Once()
	messageRepo.On("MarkRead", mock.Anything, "c1", "alice").Return(nil).Once()
	convRepo.On("SetUnreadCount", mock.Anything, "c1", "alice", 0).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/c1/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	convRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestMarkReadNotParticipant(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo, new(mocks.MessageRepositoryMock), new(mocks.DirectoryMock), nil)
	router := setupConversationRouter(handler)

	conv := pairConversation("c1")
	conv.ParticipantIDs = []string{"bob", "carol"}
	convRepo.On("Get", mock.Anything, "c1").Return(conv, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/c1/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestMarkReadBadgeResetFailure(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewConversationHandler(convRepo, messageRepo, new(mocks.DirectoryMock), nil)
	router := setupConversationRouter(handler)

	convRepo.On("Get", mock.Anything, "c1").Return(pairConversation("c1"), nil).Once()
	messageRepo.On("MarkDelivered", mock.Anything, "c1", "alice").Return(nil).Once()
	messageRepo.On("MarkRead", mock.Anything, "c1", "alice").Return(nil).Once()
	convRepo.On("SetUnreadCount", mock.Anything, "c1", "alice", 0).Return(assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/c1/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	convRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestDeleteConversationSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo, nil, new(mocks.DirectoryMock), nil)
	router := setupConversationRouter(handler)

	convRepo.On("Get", mock.Anything, "c1").Return(pairConversation("c1"), nil).Once()
	convRepo.On("Delete", mock.Anything, "c1").Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/conversations/c1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestDeleteConversationNotFound(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo, nil, new(mocks.DirectoryMock), nil)
	router := setupConversationRouter(handler)

	convRepo.On("Get", mock.Anything, "missing").
		Return(models.Conversation{}, apperrors.NotFound("conversation not found")).Once()

	req := httptest.NewRequest(http.MethodDelete, "/conversations/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	convRepo.AssertExpectations(t)
}
