package store

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/book-expert/voice-studio/internal/core"
)

// Backend is a durable key-value store holding one serialized document per
// key. Put replaces a value atomically. Implementations report a missing key
// with core.ErrNotFound and storage exhaustion with core.ErrQuotaExceeded.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

var validKey = regexp.MustCompile(`^[a-z0-9_-]+$`)

func checkKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid document key %q", key)
	}

	return nil
}

// MemoryBackend keeps documents in process memory. A positive quota caps the
// total stored bytes.
type MemoryBackend struct {
	mu    sync.Mutex
	data  map[string][]byte
	quota int
}

// NewMemoryBackend creates an empty in-memory backend. quotaBytes <= 0
// disables the quota.
func NewMemoryBackend(quotaBytes int) *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte), quota: quotaBytes}
}

// Get returns a copy of the stored value.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", key, core.ErrNotFound)
	}

	return append([]byte(nil), value...), nil
}

// Put stores a copy of value unless it would exceed the quota.
func (m *MemoryBackend) Put(_ context.Context, key string, value []byte) error {
	err := checkKey(key)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quota > 0 {
		total := len(value)
		for existing, stored := range m.data {
			if existing != key {
				total += len(stored)
			}
		}

		if total > m.quota {
			return fmt.Errorf("%w: %d of %d bytes", core.ErrQuotaExceeded, total, m.quota)
		}
	}

	m.data[key] = append([]byte(nil), value...)

	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)

	return nil
}
