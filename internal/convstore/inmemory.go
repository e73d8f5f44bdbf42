package convstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cartpilot/cartpilot/internal/agent/core"
)

type memoryEntry struct {
	conv      *Conversation
	expiresAt time.Time
}

// InMemoryStore keeps conversations in a mutex-guarded map. Expired
// entries are pruned lazily on access.
type InMemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewInMemoryStore creates an in-memory store with the given TTL.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		ttl:     ttl,
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (s *InMemoryStore) Ensure(_ context.Context, id string) (*Conversation, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	if id != "" {
		if e, ok := s.entries[id]; ok {
			e.expiresAt = s.now().Add(s.ttl)
			return e.conv, id, nil
		}
	}

	newID := id
	if newID == "" {
		newID = uuid.NewString()
	}
	conv := &Conversation{Session: core.NewSession(newID)}
	s.entries[newID] = &memoryEntry{conv: conv, expiresAt: s.now().Add(s.ttl)}
	return conv, newID, nil
}

func (s *InMemoryStore) Save(_ context.Context, id string, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &memoryEntry{conv: conv, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *InMemoryStore) pruneLocked() {
	now := s.now()
	for id, e := range s.entries {
		if e.expiresAt.Before(now) {
			delete(s.entries, id)
		}
	}
}
