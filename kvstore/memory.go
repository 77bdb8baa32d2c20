package kvstore

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node
// development. It honors the same lazy-expiry semantics as the NATS
// implementation.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	rev     uint64

	// now is overridable in tests.
	now func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
	rev       uint64
}

// nextRev issues a store-wide monotonic revision. Caller must hold the
// lock.
func (s *MemoryStore) nextRev() uint64 {
	s.rev++
	return s.rev
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the store's time source. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// live returns the entry for key if present and unexpired, deleting it
// otherwise. Caller must hold the lock.
func (s *MemoryStore) live(key string) (memoryEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

// Get returns the value for key.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	if !ok {
		return "", ErrNotFound
	}
	return entry.value, nil
}

// Set stores value under key with an optional TTL.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{value: value, rev: s.nextRev()}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

// Incr atomically increments the integer value of key.
func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	if !ok {
		s.entries[key] = memoryEntry{value: "1", rev: s.nextRev()}
		return 1, nil
	}

	current, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, err
	}
	next := current + 1
	entry.value = strconv.FormatInt(next, 10)
	entry.rev = s.nextRev()
	s.entries[key] = entry
	return next, nil
}

// GetRev returns the value for key and its revision.
func (s *MemoryStore) GetRev(_ context.Context, key string) (string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	if !ok {
		return "", 0, ErrNotFound
	}
	return entry.value, entry.rev, nil
}

// Swap stores value under key if the revision still matches. A rev of
// zero creates the key.
func (s *MemoryStore) Swap(_ context.Context, key, value string, ttl time.Duration, rev uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	if rev == 0 {
		if ok {
			return ErrConflict
		}
	} else if !ok || entry.rev != rev {
		return ErrConflict
	}

	next := memoryEntry{value: value, rev: s.nextRev()}
	if ttl > 0 {
		next.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = next
	return nil
}

// Expire sets the TTL of an existing key.
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	if !ok {
		return ErrNotFound
	}
	entry.expiresAt = s.now().Add(ttl)
	entry.rev = s.nextRev()
	s.entries[key] = entry
	return nil
}

// TTL returns the remaining time to live of key.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	if !ok {
		return 0, ErrNotFound
	}
	if entry.expiresAt.IsZero() {
		return NoExpiry, nil
	}
	return entry.expiresAt.Sub(s.now()), nil
}

// Del removes key.
func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
