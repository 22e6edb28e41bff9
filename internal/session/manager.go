package session

import (
	"sync"

	"messaging-service/internal/directory"
	"messaging-service/internal/identity"
	"messaging-service/internal/repositories"
)

// Manager hands out one session per authenticated user and tears them down
// when the last holder releases.
type Manager struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	directory     directory.Directory

	mu       sync.Mutex
	sessions map[string]*managed
}

type managed struct {
	session *Session
	refs    int
}

// NewManager constructs a Manager.
func NewManager(convs repositories.ConversationRepository, msgs repositories.MessageRepository, dir directory.Directory) *Manager {
	return &Manager{
		conversations: convs,
		messages:      msgs,
		directory:     dir,
		sessions:      make(map[string]*managed),
	}
}

// Acquire returns the user's session, creating and initializing it on first
// use. Each Acquire must be paired with a Release.
func (m *Manager) Acquire(claims identity.Claims) (*Session, error) {
	m.mu.Lock()
	entry, ok := m.sessions[claims.UserID]
	if !ok {
		entry = &managed{session: New(claims, m.conversations, m.messages, m.directory)}
		m.sessions[claims.UserID] = entry
	}
	entry.refs++
	m.mu.Unlock()

	if err := entry.session.EnsureInitialized(); err != nil {
		m.Release(claims.UserID)
		return nil, err
	}
	return entry.session, nil
}

// Release drops one reference; the session closes when none remain.
func (m *Manager) Release(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[userID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		entry.session.Close()
		delete(m.sessions, userID)
	}
}
