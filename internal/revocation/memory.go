package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map. It is suitable for
// tests and single-process development; it does not share state across
// processes the way the Redis store does.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	bounds  Bounds
	// now is swappable for tests.
	now func() time.Time
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// NewMemoryStore returns an empty in-memory Store with the given bounds.
func NewMemoryStore(bounds Bounds) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		bounds:  bounds,
		now:     time.Now,
	}
}

// Revoke records jti with a lifetime clamped to the store bounds.
func (s *MemoryStore) Revoke(ctx context.Context, jti string, expiresAt time.Time, userID, reason string) bool {
	if jti == "" {
		return false
	}
	now := s.now().UTC()
	ttl := s.bounds.clampTTL(now, expiresAt)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = memoryEntry{
		entry:     Entry{JTI: jti, UserID: userID, Reason: reason, RevokedAt: now},
		expiresAt: now.Add(ttl),
	}
	return true
}

// IsRevoked reports whether an unexpired entry exists for jti.
// Expired entries are dropped lazily on lookup.
func (s *MemoryStore) IsRevoked(ctx context.Context, jti string) bool {
	if jti == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[jti]
	if !ok {
		return false
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, jti)
		return false
	}
	return true
}

// Cleanup drops all expired entries. Optional; IsRevoked already expires lazily.
func (s *MemoryStore) Cleanup(ctx context.Context) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, jti)
		}
	}
	return nil
}
