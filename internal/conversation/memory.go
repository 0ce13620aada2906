package conversation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in-process. Entries older than ttl are dropped
// lazily on access and by Sweep.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

type memoryEntry struct {
	session   *Session
	touchedAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{
		sessions: map[string]memoryEntry{},
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, conversationID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[conversationID]
	if !ok {
		return nil, nil
	}
	if s.now().Sub(entry.touchedAt) > s.ttl {
		delete(s.sessions, conversationID)
		return nil, nil
	}
	// Clone on the way out: concurrent requests on the same conversation
	// must not share turn slices or the entity map.
	return entry.session.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ConversationID] = memoryEntry{session: session.Clone(), touchedAt: s.now()}
	return nil
}

// Sweep removes every expired session and reports how many were dropped.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	dropped := 0
	for id, entry := range s.sessions {
		if entry.touchedAt.Before(cutoff) {
			delete(s.sessions, id)
			dropped++
		}
	}
	return dropped
}
