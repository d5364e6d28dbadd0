package store

import (
	"context"
	"sync"
	"time"
)

// MemoryCooldownStore is an in-process CooldownStore.
// Expired entries are dropped lazily on read and by Sweep.
type MemoryCooldownStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryCooldownStore creates an empty in-memory cooldown store
func NewMemoryCooldownStore() *MemoryCooldownStore {
	return &MemoryCooldownStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetClock replaces the time source (for testing)
func (s *MemoryCooldownStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryCooldownStore) PutUntil(_ context.Context, key string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !until.After(s.now()) {
		delete(s.entries, key)
		return nil
	}
	s.entries[key] = until
	return nil
}

func (s *MemoryCooldownStore) Get(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.entries[key]
	if !ok {
		return time.Time{}, false, nil
	}
	if !until.After(s.now()) {
		delete(s.entries, key)
		return time.Time{}, false, nil
	}
	return until, true, nil
}

// Sweep removes every expired entry and returns how many were dropped
func (s *MemoryCooldownStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, until := range s.entries {
		if !until.After(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not
func (s *MemoryCooldownStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// MemoryFlagStore is an in-process FlagStore
type MemoryFlagStore struct {
	mu    sync.Mutex
	flags map[string]time.Time
	now   func() time.Time
}

// NewMemoryFlagStore creates an empty in-memory flag store
func NewMemoryFlagStore() *MemoryFlagStore {
	return &MemoryFlagStore{
		flags: make(map[string]time.Time),
		now:   time.Now,
	}
}

// SetClock replaces the time source (for testing)
func (s *MemoryFlagStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryFlagStore) Mark(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = s.now().Add(ttl)
	return nil
}

func (s *MemoryFlagStore) Consume(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires, ok := s.flags[key]
	if !ok {
		return false, nil
	}
	delete(s.flags, key)
	return expires.After(s.now()), nil
}

// Sweep removes flags whose TTL has passed and returns how many were dropped
func (s *MemoryFlagStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, expires := range s.flags {
		if !expires.After(now) {
			delete(s.flags, key)
			removed++
		}
	}
	return removed
}

var (
	_ CooldownStore = (*MemoryCooldownStore)(nil)
	_ FlagStore     = (*MemoryFlagStore)(nil)
)
