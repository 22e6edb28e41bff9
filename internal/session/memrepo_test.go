package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/broker"
	"messaging-service/internal/directory"
	"messaging-service/internal/models"
)

// memStore is an in-memory implementation of the conversation and message
// repository contracts, used to drive sessions in tests.
type memStore struct {
	mu     sync.Mutex
	broker *broker.Broker
	convs  map[string]models.Conversation
	msgs   map[string][]models.Message
	seq    int64
	now    time.Time
}

func newMemStore() *memStore {
	return &memStore{
		broker: broker.New(),
		convs:  make(map[string]models.Conversation),
		msgs:   make(map[string][]models.Message),
		now:    time.Unix(1700000000, 0),
	}
}

func cloneConv(c models.Conversation) models.Conversation {
	copied := c
	copied.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)
	copied.ParticipantNames = make(map[string]string, len(c.ParticipantNames))
	for k, v := range c.ParticipantNames {
		copied.ParticipantNames[k] = v
	}
	copied.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		copied.UnreadCount[k] = v
	}
	return copied
}

func (s *memStore) tick() time.Time {
	s.now = s.now.Add(time.Millisecond)
	return s.now
}

func (s *memStore) ResolveOrCreate(_ context.Context, selfID, otherID, selfName, otherName string) (models.Conversation, error) {
	if selfID == "" || otherID == "" {
		return models.Conversation{}, apperrors.InvalidArg("missing participant")
	}
	if selfID == otherID {
		return models.Conversation{}, apperrors.InvalidArg("cannot message yourself")
	}

	s.mu.Lock()
	for _, c := range s.convs {
		if c.HasParticipant(selfID) && c.HasParticipant(otherID) {
			out := cloneConv(c)
			s.mu.Unlock()
			return out, nil
		}
	}
	conv := models.Conversation{
		ID:               uuid.NewString(),
		ParticipantIDs:   []string{selfID, otherID},
		ParticipantNames: map[string]string{selfID: selfName, otherID: otherName},
		UnreadCount:      map[string]int{selfID: 0, otherID: 0},
		LastMessageTime:  s.tick(),
		IsActive:         true,
		CreatedAt:        s.now,
	}
	s.convs[conv.ID] = conv
	out := cloneConv(conv)
	s.mu.Unlock()

	s.broker.Notify(broker.UserTopic(selfID), broker.UserTopic(otherID))
	return out, nil
}

func (s *memStore) Get(_ context.Context, conversationID string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return models.Conversation{}, apperrors.NotFound("conversation not found")
	}
	return cloneConv(conv), nil
}

func (s *memStore) ListForParticipant(_ context.Context, userID string) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Conversation
	for _, c := range s.convs {
		if c.IsActive && c.HasParticipant(userID) {
			result = append(result, cloneConv(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessageTime.After(result[j].LastMessageTime)
	})
	return result, nil
}

func (s *memStore) SubscribeForParticipant(ctx context.Context, userID string) (<-chan []models.Conversation, error) {
	out := make(chan []models.Conversation, 1)
	nudge := s.broker.Subscribe(broker.UserTopic(userID))
	go func() {
		defer close(out)
		defer s.broker.Unsubscribe(broker.UserTopic(userID), nudge)
		for {
			if list, err := s.ListForParticipant(ctx, userID); err == nil {
				select {
				case <-out:
				default:
				}
				out <- list
			}
			select {
			case <-ctx.Done():
				return
			case <-nudge:
			}
		}
	}()
	return out, nil
}

func (s *memStore) UpdateSummary(_ context.Context, conversationID, lastMessage, senderID string, ts time.Time) error {
	s.mu.Lock()
	conv, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return apperrors.NotFound("conversation not found")
	}
	conv = cloneConv(conv)
	conv.LastMessage = lastMessage
	conv.LastMessageSender = senderID
	conv.LastMessageTime = ts
	receiver := conv.Other(senderID)
	conv.UnreadCount[receiver]++
	s.convs[conversationID] = conv
	s.mu.Unlock()

	s.broker.Notify(
		broker.ConversationTopic(conversationID),
		broker.UserTopic(conv.ParticipantIDs[0]),
		broker.UserTopic(conv.ParticipantIDs[1]),
	)
	return nil
}

func (s *memStore) SetUnreadCount(_ context.Context, conversationID, userID string, count int) error {
	if count < 0 {
		return apperrors.InvalidArg("unread count must not be negative")
	}
	s.mu.Lock()
	conv, ok := s.convs[conversationID]
	if !ok || !conv.HasParticipant(userID) {
		s.mu.Unlock()
		return apperrors.NotFound("conversation not found")
	}
	conv = cloneConv(conv)
	conv.UnreadCount[userID] = count
	s.convs[conversationID] = conv
	s.mu.Unlock()

	s.broker.Notify(
		broker.ConversationTopic(conversationID),
		broker.UserTopic(conv.ParticipantIDs[0]),
		broker.UserTopic(conv.ParticipantIDs[1]),
	)
	return nil
}

func (s *memStore) TotalUnread(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, c := range s.convs {
		if c.IsActive && c.HasParticipant(userID) {
			total += c.UnreadFor(userID)
		}
	}
	return total, nil
}

func (s *memStore) Deactivate(_ context.Context, conversationID string) error {
	s.mu.Lock()
	conv, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return apperrors.NotFound("conversation not found")
	}
	conv = cloneConv(conv)
	conv.IsActive = false
	s.convs[conversationID] = conv
	s.mu.Unlock()

	s.broker.Notify(broker.UserTopic(conv.ParticipantIDs[0]), broker.UserTopic(conv.ParticipantIDs[1]))
	return nil
}

func (s *memStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	conv, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return apperrors.NotFound("conversation not found")
	}
	delete(s.convs, conversationID)
	delete(s.msgs, conversationID)
	s.mu.Unlock()

	s.broker.Notify(
		broker.ConversationTopic(conversationID),
		broker.UserTopic(conv.ParticipantIDs[0]),
		broker.UserTopic(conv.ParticipantIDs[1]),
	)
	return nil
}

func (s *memStore) Append(_ context.Context, conversationID, senderID, receiverID, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, apperrors.InvalidArg("message content must not be blank")
	}

	s.mu.Lock()
	conv, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return models.Message{}, apperrors.NotFound("conversation not found")
	}
	if !conv.HasParticipant(senderID) || !conv.HasParticipant(receiverID) || senderID == receiverID {
		s.mu.Unlock()
		return models.Message{}, apperrors.InvalidArg("sender and receiver must be the conversation participants")
	}
	s.seq++
	msg := models.Message{
		ID:             uuid.NewString(),
		Seq:            s.seq,
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		MessageType:    models.MessageTypeText,
		DeliveryStatus: models.StatusSent,
		Timestamp:      s.tick(),
	}
	s.msgs[conversationID] = append(s.msgs[conversationID], msg)
	s.mu.Unlock()

	s.broker.Notify(broker.ConversationTopic(conversationID))
	return msg, nil
}

func (s *memStore) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append([]models.Message(nil), s.msgs[conversationID]...)
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Seq < msgs[j].Seq
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}

func (s *memStore) Subscribe(ctx context.Context, conversationID string) (<-chan []models.Message, error) {
	s.mu.Lock()
	_, ok := s.convs[conversationID]
	s.mu.Unlock()
	if !ok {
		return nil, apperrors.NotFound("conversation not found")
	}

	out := make(chan []models.Message, 1)
	nudge := s.broker.Subscribe(broker.ConversationTopic(conversationID))
	go func() {
		defer close(out)
		defer s.broker.Unsubscribe(broker.ConversationTopic(conversationID), nudge)
		for {
			if msgs, err := s.ListMessages(ctx, conversationID); err == nil {
				select {
				case <-out:
				default:
				}
				out <- msgs
			}
			select {
			case <-ctx.Done():
				return
			case <-nudge:
			}
		}
	}()
	return out, nil
}

func (s *memStore) MarkDelivered(_ context.Context, conversationID, readerID string) error {
	s.mu.Lock()
	changed := false
	for i, m := range s.msgs[conversationID] {
		if m.ReceiverID == readerID && m.DeliveryStatus == models.StatusSent {
			s.msgs[conversationID][i].DeliveryStatus = models.StatusDelivered
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.broker.Notify(broker.ConversationTopic(conversationID))
	}
	return nil
}

func (s *memStore) MarkRead(_ context.Context, conversationID, readerID string) error {
	s.mu.Lock()
	conv, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return apperrors.NotFound("conversation not found")
	}
	for i, m := range s.msgs[conversationID] {
		if m.ReceiverID == readerID && m.DeliveryStatus != models.StatusRead {
			s.msgs[conversationID][i].DeliveryStatus = models.StatusRead
		}
	}
	conv = cloneConv(conv)
	conv.UnreadCount[readerID] = 0
	s.convs[conversationID] = conv
	s.mu.Unlock()

	s.broker.Notify(
		broker.ConversationTopic(conversationID),
		broker.UserTopic(conv.ParticipantIDs[0]),
		broker.UserTopic(conv.ParticipantIDs[1]),
	)
	return nil
}

// memDirectory is an in-memory directory for tests.
type memDirectory struct {
	users map[string]directory.User
}

func (d *memDirectory) GetUserByID(_ context.Context, userID string) (directory.User, error) {
	user, ok := d.users[userID]
	if !ok {
		return directory.User{}, apperrors.NotFound("user not found")
	}
	return user, nil
}

func (d *memDirectory) BulkUsers(_ context.Context, ids []string) ([]directory.User, error) {
	var users []directory.User
	for _, id := range ids {
		if user, ok := d.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}
