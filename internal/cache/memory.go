// Package cache – in-memory backend.
//
// A mutex-guarded map of expiring entries with opportunistic sweeping to
// bound memory, suitable for single-process deployments and tests. Expiry is
// checked on read, so a stale entry is a miss even before the sweeper runs.
package cache

import (
	"context"
	"sync"
	"time"
)

// entry holds one cached value and its expiry instant.
type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a process-local Store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	sweepN  uint64
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry)}
}

// Get returns the fresh value for key, treating expired entries as misses
// and dropping them eagerly.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if now.After(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set stores value under key for ttl, sweeping expired entries after a
// threshold of writes so the map stays bounded.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now()
	v := make([]byte, len(value))
	copy(v, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepN++
	if m.sweepN >= 1000 {
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
		m.sweepN = 0
	}

	m.entries[key] = entry{value: v, expiresAt: now.Add(ttl)}
	return nil
}

// Del removes key.
func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory backend.
func (m *Memory) Close() error { return nil }
