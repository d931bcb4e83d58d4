package store

import (
	"context"
	"sync"
)

// MemoryBackend keeps blobs in process memory. It backs tests and the CLI.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
	// FailSaves makes every Save return this error when set.
	FailSaves error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: map[string][]byte{}}
}

func (m *MemoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *MemoryBackend) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves != nil {
		return m.FailSaves
	}
	b := make([]byte, len(data))
	copy(b, data)
	m.data[key] = b
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) Modify(_ context.Context, key string, fn func(old []byte, found bool) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, found := m.data[key]
	next, err := fn(old, found)
	if err != nil {
		return err
	}
	if m.FailSaves != nil {
		return m.FailSaves
	}
	m.data[key] = next
	return nil
}
