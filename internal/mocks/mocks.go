package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/directory"
	"messaging-service/internal/identity"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) ResolveOrCreate(ctx context.Context, selfID, otherID, selfName, otherName string) (models.Conversation, error) {
	args := m.Called(ctx, selfID, otherID, selfName, otherName)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForParticipant(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) SubscribeForParticipant(ctx context.Context, userID string) (<-chan []models.Conversation, error) {
	args := m.Called(ctx, userID)
	var ch <-chan []models.Conversation
	if val := args.Get(0); val != nil {
		ch = val.(<-chan []models.Conversation)
	}
	return ch, args.Error(1)
}

func (m *ConversationRepositoryMock) UpdateSummary(ctx context.Context, conversationID, lastMessage, senderID string, ts time.Time) error {
	args := m.Called(ctx, conversationID, lastMessage, senderID, ts)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) SetUnreadCount(ctx context.Context, conversationID, userID string, count int) error {
	args := m.Called(ctx, conversationID, userID, count)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) TotalUnread(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *ConversationRepositoryMock) Deactivate(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) Delete(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, conversationID, senderID, receiverID, content string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, receiverID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) Subscribe(ctx context.Context, conversationID string) (<-chan []models.Message, error) {
	args := m.Called(ctx, conversationID)
	var ch <-chan []models.Message
	if val := args.Get(0); val != nil {
		ch = val.(<-chan []models.Message)
	}
	return ch, args.Error(1)
}

func (m *MessageRepositoryMock) MarkDelivered(ctx context.Context, conversationID, readerID string) error {
	args := m.Called(ctx, conversationID, readerID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, conversationID, readerID string) error {
	args := m.Called(ctx, conversationID, readerID)
	return args.Error(0)
}

type DirectoryMock struct {
	mock.Mock
}

func (m *DirectoryMock) GetUserByID(ctx context.Context, userID string) (directory.User, error) {
	args := m.Called(ctx, userID)
	var user directory.User
	if val := args.Get(0); val != nil {
		user = val.(directory.User)
	}
	return user, args.Error(1)
}

func (m *DirectoryMock) BulkUsers(ctx context.Context, ids []string) ([]directory.User, error) {
	args := m.Called(ctx, ids)
	var users []directory.User
	if val := args.Get(0); val != nil {
		users = val.([]directory.User)
	}
	return users, args.Error(1)
}

type ProviderMock struct {
	mock.Mock
}

func (m *ProviderMock) Verify(token string) (identity.Claims, error) {
	args := m.Called(token)
	var claims identity.Claims
	if val := args.Get(0); val != nil {
		claims = val.(identity.Claims)
	}
	return claims, args.Error(1)
}

var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ directory.Directory = (*DirectoryMock)(nil)
var _ identity.Provider = (*ProviderMock)(nil)
