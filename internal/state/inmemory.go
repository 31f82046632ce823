package state

import (
	"context"
	"sync"
)

// InMemoryStore keeps both records in process memory for local/dev use and
// tests. It honors the same per-key sequential consistency as the durable
// backends.
type InMemoryStore struct {
	mu      sync.RWMutex
	session *Session
	pending map[int]PendingNavigation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{pending: make(map[int]PendingNavigation)}
}

func (s *InMemoryStore) ActiveSession(_ context.Context) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone(), nil
}

func (s *InMemoryStore) SaveActiveSession(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sess.Clone()
	return nil
}

func (s *InMemoryStore) ClearActiveSession(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

func (s *InMemoryStore) PendingNavigations(_ context.Context) (map[int]PendingNavigation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]PendingNavigation, len(s.pending))
	for k, v := range s.pending {
		out[k] = v
	}
	return out, nil
}

func (s *InMemoryStore) SavePendingNavigations(_ context.Context, pending map[int]PendingNavigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[int]PendingNavigation, len(pending))
	for k, v := range pending {
		next[k] = v
	}
	s.pending = next
	return nil
}

func (s *InMemoryStore) EnsureShape(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = make(map[int]PendingNavigation)
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
