// Package memory provides an in-memory store.Store, for use in tests or
// where an external store is not available.
package memory

import (
	"context"
	"sync"
	"time"
)

// Store is a simple in-memory session store. Write copies the payload bytes
// it's given, so callers may safely reuse or mutate their buffer afterward.
//
// Eviction: expired entries are garbage collected on entry to Read and
// Write, and also on an explicit GC call.
type Store struct {
	// Clock can be overridden in tests (e.g., to exercise eviction logic).
	Clock func() time.Time

	mu       sync.Mutex
	items    map[string][]byte
	expiries *expiryQueue
}

// New returns a new, empty Store.
func New() *Store {
	return &Store{
		Clock:    func() time.Time { return time.Now() },
		items:    make(map[string][]byte),
		expiries: newExpiryQueue(),
	}
}

func (s *Store) evict(t time.Time) {
	for _, id := range s.expiries.PopExpired(t) {
		delete(s.items, id)
	}
}

// Read returns the payload for id, or (nil, false, nil) if absent or
// expired.
func (s *Store) Read(ctx context.Context, id string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict(s.Clock())
	payload, ok := s.items[id]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, true, nil
}

// Write overwrites any prior payload for id.
func (s *Store) Write(ctx context.Context, id string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.Clock()
	s.evict(t)
	stored := make([]byte, len(payload))
	copy(stored, payload)
	s.items[id] = stored
	s.expiries.Track(id, t.Add(ttl))
	return nil
}

// Destroy removes any payload for id.
func (s *Store) Destroy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Note: we let the corresponding evictions entry get cleaned up lazily.
	delete(s.items, id)
	return nil
}

// GC purges expired entries immediately.
func (s *Store) GC(ctx context.Context, maxTTL time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict(s.Clock())
	return nil
}
