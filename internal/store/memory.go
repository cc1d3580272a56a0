package store

import (
	"context"
	"sync"

	"github.com/zhouzirui/campus-assistant/backend/internal/model/chat"
)

// MemoryStore keeps sessions and logs in process memory. Everything is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	messages map[string][]chat.Message
	closed   bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
	}
}

// GetSession implements Store.
func (s *MemoryStore) GetSession(_ context.Context, token string) (*chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	session, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	copied := session.Clone()
	return &copied, nil
}

// CreateSession implements Store.
func (s *MemoryStore) CreateSession(_ context.Context, session *chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, exists := s.sessions[session.SessionToken]; exists {
		return ErrAlreadyExists
	}
	s.sessions[session.SessionToken] = session.Clone()
	if _, ok := s.messages[session.SessionToken]; !ok {
		s.messages[session.SessionToken] = make([]chat.Message, 0, 16)
	}
	return nil
}

// UpdateSession implements Store.
func (s *MemoryStore) UpdateSession(_ context.Context, session *chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, exists := s.sessions[session.SessionToken]; !exists {
		return ErrNotFound
	}
	s.sessions[session.SessionToken] = session.Clone()
	return nil
}

// AppendMessage implements Store.
func (s *MemoryStore) AppendMessage(_ context.Context, message *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.messages[message.SessionToken] = append(s.messages[message.SessionToken], message.Clone())
	return nil
}

// ListMessages implements Store.
func (s *MemoryStore) ListMessages(_ context.Context, token string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	stored := s.messages[token]
	copied := make([]chat.Message, len(stored))
	for i, m := range stored {
		copied[i] = m.Clone()
	}
	return copied, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.sessions = nil
	s.messages = nil
	return nil
}
