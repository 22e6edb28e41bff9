package session

import (
	"context"
	"log"
	"sync"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/directory"
	"messaging-service/internal/identity"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// Snapshot is the observable state of one user's messaging session.
type Snapshot struct {
	Conversations []models.ConversationSummary `json:"conversations"`
	Current       *models.Conversation         `json:"current,omitempty"`
	Messages      []models.Message             `json:"messages"`
	TotalUnread   int                          `json:"total_unread"`
	Loading       bool                         `json:"loading"`
	Err           string                       `json:"error,omitempty"`
}

// Observer receives a snapshot after every state change.
type Observer func(Snapshot)

// Session orchestrates one user's conversations: it mediates between intents
// (open, send, mark read) and the conversation/message repositories, and owns
// the session-scoped observable state. All state mutation is serialized behind
// one mutex; subscription deliveries and operation results funnel through it.
type Session struct {
	claims identity.Claims

	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	directory     directory.Directory

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	convs        []models.Conversation
	current      *models.Conversation
	msgs         []models.Message
	totalUnread  int
	loading      bool
	errMsg       string
	initialized  bool
	cancelMsgs   context.CancelFunc
	observers    map[int]Observer
	nextObserver int
}

// New creates an idle session for the given identity. EnsureInitialized arms it.
func New(claims identity.Claims, convs repositories.ConversationRepository, msgs repositories.MessageRepository, dir directory.Directory) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		claims:        claims,
		conversations: convs,
		messages:      msgs,
		directory:     dir,
		ctx:           ctx,
		cancel:        cancel,
		observers:     make(map[int]Observer),
	}
}

// AddObserver registers a snapshot listener and returns its removal func.
// Observers are invoked outside the session lock.
func (s *Session) AddObserver(fn Observer) func() {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()
	s.publish()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	summaries := make([]models.ConversationSummary, 0, len(s.convs))
	for _, c := range s.convs {
		summaries = append(summaries, c.SummaryFor(s.claims.UserID))
	}
	var current *models.Conversation
	if s.current != nil {
		copied := *s.current
		current = &copied
	}
	msgs := make([]models.Message, len(s.msgs))
	copy(msgs, s.msgs)
	return Snapshot{
		Conversations: summaries,
		Current:       current,
		Messages:      msgs,
		TotalUnread:   s.totalUnread,
		Loading:       s.loading,
		Err:           s.errMsg,
	}
}

func (s *Session) publish() {
	s.mu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	for _, fn := range observers {
		fn(snap)
	}
}

// fail records an operation failure: the error is flattened into the
// user-facing string, prior state is left intact.
func (s *Session) fail(op string, err error) error {
	log.Printf("session %s: %s failed: %v", s.claims.UserID, op, err)
	s.mu.Lock()
	s.errMsg = err.Error()
	s.loading = false
	s.mu.Unlock()
	s.publish()
	return err
}

// EnsureInitialized performs the initial conversation load and arms the live
// inbox subscription. Idempotent: once armed, later calls do nothing.
func (s *Session) EnsureInitialized() error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	if s.claims.UserID == "" {
		s.mu.Unlock()
		return s.fail("initialize", apperrors.Unauthenticated("no signed-in identity"))
	}
	s.initialized = true
	s.loading = true
	s.mu.Unlock()

	if err := s.reloadConversations(); err != nil {
		s.mu.Lock()
		s.initialized = false
		s.mu.Unlock()
		return s.fail("initialize", err)
	}

	updates, err := s.conversations.SubscribeForParticipant(s.ctx, s.claims.UserID)
	if err != nil {
		s.mu.Lock()
		s.initialized = false
		s.mu.Unlock()
		return s.fail("initialize", err)
	}
	go func() {
		for list := range updates {
			total, err := s.conversations.TotalUnread(s.ctx, s.claims.UserID)
			s.mu.Lock()
			s.convs = list
			if err == nil {
				s.totalUnread = total
			}
			s.mu.Unlock()
			s.publish()
		}
	}()

	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
	s.publish()
	return nil
}

func (s *Session) reloadConversations() error {
	list, err := s.conversations.ListForParticipant(s.ctx, s.claims.UserID)
	if err != nil {
		return err
	}
	total, err := s.conversations.TotalUnread(s.ctx, s.claims.UserID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.convs = list
	s.totalUnread = total
	s.mu.Unlock()
	return nil
}

// displayName resolves the current user's name: directory profile first, then
// auth display name, then the email local part, then a literal fallback.
func (s *Session) displayName() string {
	if user, err := s.directory.GetUserByID(s.ctx, s.claims.UserID); err == nil && user.FullName != "" {
		return user.FullName
	}
	if s.claims.DisplayName != "" {
		return s.claims.DisplayName
	}
	if local := s.claims.EmailLocalPart(); local != "" {
		return local
	}
	return "Unknown User"
}

// StartConversationWith resolves or creates the conversation with the given
// user and selects it.
func (s *Session) StartConversationWith(otherID, otherName string) error {
	if s.claims.UserID == "" {
		return s.fail("start conversation", apperrors.Unauthenticated("no signed-in identity"))
	}
	if otherID == s.claims.UserID {
		return s.fail("start conversation", apperrors.InvalidArg("cannot message yourself"))
	}

	if otherName == "" {
		if user, err := s.directory.GetUserByID(s.ctx, otherID); err == nil {
			otherName = user.FullName
		}
	}

	conv, err := s.conversations.ResolveOrCreate(s.ctx, s.claims.UserID, otherID, s.displayName(), otherName)
	if err != nil {
		return s.fail("start conversation", err)
	}

	s.mu.Lock()
	known := false
	for _, c := range s.convs {
		if c.ID == conv.ID {
			known = true
			break
		}
	}
	if !known {
		s.convs = append([]models.Conversation{conv}, s.convs...)
	}
	s.mu.Unlock()

	return s.SelectConversation(conv.ID)
}

// SelectConversation makes the conversation current, arms its live message
// subscription, and marks everything addressed to the user delivered and read.
func (s *Session) SelectConversation(conversationID string) error {
	conv, err := s.conversations.Get(s.ctx, conversationID)
	if err != nil {
		return s.fail("select conversation", err)
	}
	if !conv.HasParticipant(s.claims.UserID) {
		return s.fail("select conversation", apperrors.Forbidden("not a participant"))
	}

	msgCtx, cancel := context.WithCancel(s.ctx)
	updates, err := s.messages.Subscribe(msgCtx, conversationID)
	if err != nil {
		cancel()
		return s.fail("select conversation", err)
	}

	s.mu.Lock()
	if s.cancelMsgs != nil {
		s.cancelMsgs()
	}
	s.cancelMsgs = cancel
	s.current = &conv
	s.msgs = nil
	s.mu.Unlock()
	s.publish()

	go func() {
		for msgs := range updates {
			s.mu.Lock()
			if s.current == nil || s.current.ID != conversationID {
				s.mu.Unlock()
				return
			}
			s.msgs = msgs
			s.mu.Unlock()
			s.publish()
		}
	}()

	if err := s.messages.MarkDelivered(s.ctx, conversationID, s.claims.UserID); err != nil {
		return s.fail("select conversation", err)
	}
	if err := s.messages.MarkRead(s.ctx, conversationID, s.claims.UserID); err != nil {
		return s.fail("select conversation", err)
	}
	// MarkRead already reset the counter transactionally; the explicit setter
	// keeps the badge correct even if the counter drifted before this session.
	if err := s.conversations.SetUnreadCount(s.ctx, conversationID, s.claims.UserID, 0); err != nil {
		return s.fail("select conversation", apperrors.Partial("messages read but unread badge not reset", err))
	}

	if err := s.reloadConversations(); err != nil {
		return s.fail("select conversation", err)
	}
	s.publish()
	return nil
}

// SendMessage appends to the current conversation. The message is not spliced
// in locally; the live subscription reflects it.
func (s *Session) SendMessage(content string) error {
	if s.claims.UserID == "" {
		return s.fail("send message", apperrors.Unauthenticated("no signed-in identity"))
	}

	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil {
		return s.fail("send message", apperrors.InvalidArg("no conversation selected"))
	}

	receiver := current.Other(s.claims.UserID)
	if receiver == "" {
		return s.fail("send message", apperrors.Forbidden("not a participant"))
	}

	msg, err := s.messages.Append(s.ctx, current.ID, s.claims.UserID, receiver, content)
	if err != nil {
		return s.fail("send message", err)
	}
	if err := s.conversations.UpdateSummary(s.ctx, current.ID, msg.Content, msg.SenderID, msg.Timestamp); err != nil {
		return s.fail("send message", apperrors.Partial("message stored but summary not updated", err))
	}

	if err := s.reloadConversations(); err != nil {
		return s.fail("send message", err)
	}
	s.publish()
	return nil
}

// DeleteConversation removes the conversation and clears it from the session
// state if it was current.
func (s *Session) DeleteConversation(conversationID string) error {
	conv, err := s.conversations.Get(s.ctx, conversationID)
	if err != nil {
		return s.fail("delete conversation", err)
	}
	if !conv.HasParticipant(s.claims.UserID) {
		return s.fail("delete conversation", apperrors.Forbidden("not a participant"))
	}

	if err := s.conversations.Delete(s.ctx, conversationID); err != nil {
		return s.fail("delete conversation", err)
	}

	s.mu.Lock()
	if s.current != nil && s.current.ID == conversationID {
		if s.cancelMsgs != nil {
			s.cancelMsgs()
			s.cancelMsgs = nil
		}
		s.current = nil
		s.msgs = nil
	}
	s.mu.Unlock()

	if err := s.reloadConversations(); err != nil {
		return s.fail("delete conversation", err)
	}
	s.publish()
	return nil
}

// Deselect returns the session to the unselected state (back navigation).
func (s *Session) Deselect() {
	s.mu.Lock()
	if s.cancelMsgs != nil {
		s.cancelMsgs()
		s.cancelMsgs = nil
	}
	s.current = nil
	s.msgs = nil
	s.mu.Unlock()
	s.publish()
}

// RefreshConversations re-runs the one-shot inbox load.
func (s *Session) RefreshConversations() error {
	if err := s.reloadConversations(); err != nil {
		return s.fail("refresh conversations", err)
	}
	s.publish()
	return nil
}

// ClearError dismisses the surfaced error without retrying anything.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
	s.publish()
}

// Close tears the session down; live subscriptions stop delivering.
func (s *Session) Close() {
	s.cancel()
}
