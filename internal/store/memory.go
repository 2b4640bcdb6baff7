package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value    string
	count    int64
	deadline time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// MemoryStore is the in-process StateStore fallback. Expired entries are
// dropped lazily on access; SweepExpired removes the rest on the rate
// limiter's periodic sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	clock   func() time.Time
}

var (
	_ StateStore = (*MemoryStore)(nil)
	_ Sweeper    = (*MemoryStore)(nil)
)

// NewMemoryStore constructs an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		clock:   time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// live returns the entry at key, dropping it first if expired.
func (s *MemoryStore) live(key string, now time.Time) (*memoryEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expired(now) {
		delete(s.entries, key)
		return nil, false
	}
	return entry, true
}

// Get returns the value at key.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.live(key, s.clock())
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set writes value at key; zero ttl persists without expiry.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.deadline = s.clock().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// IncrWithExpiry increments the counter at key, arming the window on create.
func (s *MemoryStore) IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	entry, ok := s.live(key, now)
	if !ok {
		entry = &memoryEntry{deadline: now.Add(window)}
		s.entries[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// SetWithExpiry writes value with a mandatory expiry.
func (s *MemoryStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.Set(ctx, key, value, ttl)
}

// RemainingTTL returns the time until key expires.
func (s *MemoryStore) RemainingTTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	entry, ok := s.live(key, now)
	if !ok || entry.deadline.IsZero() {
		return TTLMissing, nil
	}
	return entry.deadline.Sub(now), nil
}

// CompareAndDelete consumes key iff its value equals expected.
func (s *MemoryStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.live(key, s.clock())
	if !ok || entry.value != expected {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// HealthCheck always succeeds for the in-process store.
func (s *MemoryStore) HealthCheck(ctx context.Context) bool {
	return true
}

// SweepExpired removes every expired entry and reports how many were dropped.
func (s *MemoryStore) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	removed := 0
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of resident entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
