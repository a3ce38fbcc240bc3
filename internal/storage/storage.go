package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/imagechat/internal/conversation"
)

// Session pairs a conversation store with the lock that serializes its events
type Session struct {
	ID        string
	CreatedAt time.Time
	Store     *conversation.Store

	mu sync.Mutex
}

// SessionStore is the in-memory registry of live sessions
type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	factory  func() *conversation.Store
}

// New returns an empty registry. factory builds the Store for each new session.
func New(factory func() *conversation.Store) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

// Create starts a new session with an empty store
func (s *SessionStore) Create() *Session {
	session := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Store:     s.factory(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return session
}

func (s *SessionStore) Get(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

// Do runs fn with exclusive access to the session's store. The registry lock
// is not held while fn runs, so a slow model call only blocks its own session.
func (s *SessionStore) Do(sessionID string, fn func(*Session) error) error {
	session, ok := s.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return fn(session)
}

// List returns all sessions, oldest first
func (s *SessionStore) List() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Session, 0, len(s.sessions))
	for _, v := range s.sessions {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Delete discards a session; it reports whether the session existed
func (s *SessionStore) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return ok
}
