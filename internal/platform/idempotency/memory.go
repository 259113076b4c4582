package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process. Used in tests and when Redis is not configured.
type MemoryStore struct {
	clock func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	entry   Entry
	expires time.Time
}

// NewMemoryStore returns an empty store. A nil clock uses time.Now.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{clock: clock, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, ttl time.Duration) (Entry, bool, error) {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.entries[key]; ok && now.Before(current.expires) {
		return current.entry, false, nil
	}
	s.entries[key] = memoryEntry{entry: Entry{Fingerprint: fingerprint}, expires: now.Add(ttlOrDefault(ttl))}
	s.pruneLocked(now)
	return Entry{}, true, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{entry: entry, expires: now.Add(ttlOrDefault(ttl))}
	return nil
}

func (s *MemoryStore) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) pruneLocked(now time.Time) {
	for key, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, key)
		}
	}
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
