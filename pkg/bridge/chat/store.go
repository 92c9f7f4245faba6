// Package chat forwards chat-thread messages to the answer backend with
// at-most-once delivery per message ID.
package chat

import (
	"sync"
	"time"
)

// DedupTTL is how long a message ID stays recorded. A redelivery inside the
// window is dropped; after the window it counts as new.
const DedupTTL = 5 * time.Minute

// Store records message IDs for duplicate suppression.
type Store interface {
	// CheckAndRecord reports whether id is new, recording it if so.
	CheckAndRecord(id string, now time.Time) bool
}

// MemoryStore is an in-process Store with lazy eviction: expired entries are
// swept on each call, never by a background goroutine.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DedupTTL
	}
	return &MemoryStore{
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}
}

func (s *MemoryStore) CheckAndRecord(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, expiry := range s.seen {
		if now.After(expiry) {
			delete(s.seen, k)
		}
	}

	if _, dup := s.seen[id]; dup {
		return false
	}
	s.seen[id] = now.Add(s.ttl)
	return true
}

// Len reports the number of live entries. Test hook.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
