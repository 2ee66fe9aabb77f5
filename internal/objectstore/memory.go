package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/book-expert/voice-studio/internal/core"
)

// Memory is an in-process core.ObjectStore for runs without NATS.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Download returns a copy of the object.
func (m *Memory) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object '%s': %w", key, core.ErrNotFound)
	}

	return bytes.Clone(data), nil
}

// Upload stores a copy of data under key.
func (m *Memory) Upload(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = bytes.Clone(data)

	return nil
}

// Delete removes key if present.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)

	return nil
}

// Len reports how many objects are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.objects)
}
