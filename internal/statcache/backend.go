package statcache

import (
	"context"
	"sync"
	"time"
)

// Entry is one persisted aggregation result.
type Entry struct {
	Value      []byte
	ComputedAt time.Time
}

// Backend persists entries. Freshness is judged by the Cache, not the backend.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	DeleteAll(ctx context.Context) error
	Close() error
}

// MemoryBackend keeps entries in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryBackend returns an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	m.entries[key] = Entry{Value: append([]byte(nil), e.Value...), ComputedAt: e.ComputedAt}
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]Entry)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// Len reports the number of stored entries.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
