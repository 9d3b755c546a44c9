package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Cache. Expiry is checked on read and expired
// entries are reclaimed by Purge.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory returns an empty Memory cache. A ttl ≤ 0 selects DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, userID, message string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(userID, message)
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Put implements Cache.
func (m *Memory) Put(_ context.Context, userID, message string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[Key(userID, message)] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: m.now().Add(m.ttl),
	}
	return nil
}

// Purge implements Cache.
func (m *Memory) Purge(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
