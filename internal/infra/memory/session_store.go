package memory

import (
	"context"
	"sync"

	"quiz-ledger/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Sessions do not expire; they are removed on finish.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Session),
	}
}

func (s *SessionStore) Save(_ context.Context, session domain.Session) error {
	answers := make(map[string]bool, len(session.Answers))
	for k, v := range session.Answers {
		answers[k] = v
	}
	session.Answers = answers

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	answers := make(map[string]bool, len(session.Answers))
	for k, v := range session.Answers {
		answers[k] = v
	}
	session.Answers = answers
	return session, nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Len reports how many sessions are held.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
