package kvlog

import (
	"sort"
	"sync"
)

// MemoryBackend keeps values in a map. It is the fallback when no durable
// storage is configured and the backend used by tests.
type MemoryBackend struct {
	mu       sync.RWMutex
	values   map[string][]byte
	maxBytes int64
	size     int64
}

// NewMemoryBackend creates an empty in-memory backend. maxBytes <= 0 means
// unlimited.
func NewMemoryBackend(maxBytes int64) *MemoryBackend {
	return &MemoryBackend{
		values:   make(map[string][]byte),
		maxBytes: maxBytes,
	}
}

func (m *MemoryBackend) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *MemoryBackend) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	newSize := m.size - int64(len(m.values[key])) + int64(len(value))
	if m.maxBytes > 0 && newSize > m.maxBytes {
		return ErrQuotaExceeded
	}

	cp := make([]byte, len(value))
	copy(cp, value)
	m.values[key] = cp
	m.size = newSize
	return nil
}

func (m *MemoryBackend) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryBackend) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values = make(map[string][]byte)
	m.size = 0
	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}
