package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value   string
	expires time.Time
}

// Memory is an in-process KV/Locker for tests and store-less deployments.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok || (!entry.expires.IsZero() && m.now().After(entry.expires)) {
		delete(m.entries, key)
		return "", ErrMiss
	}
	return entry.value, nil
}

func (m *Memory) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(key, value, ttl)
	return nil
}

func (m *Memory) GetOrCompute(ctx context.Context, key string, ttl time.Duration, producer func() (string, error)) (string, error) {
	if value, err := m.Get(ctx, key); err == nil {
		return value, nil
	}
	value, err := producer()
	if err != nil {
		return "", err
	}
	return value, m.Put(ctx, key, value, ttl)
}

func (m *Memory) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, held := m.entries[key]
	if held && (entry.expires.IsZero() || m.now().Before(entry.expires)) {
		return false, nil
	}
	m.put(key, "locked", ttl)
	return true, nil
}

func (m *Memory) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) put(key, value string, ttl time.Duration) {
	expires := time.Time{}
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.entries[key] = memoryEntry{value: value, expires: expires}
}
