package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-studio/internal/core"
)

// NATSBackend stores documents in a JetStream key-value bucket.
type NATSBackend struct {
	bucket string
	kv     nats.KeyValue
}

// NewNATSBackend creates the bucket, or binds to it when it already exists.
// maxBytes <= 0 leaves the bucket unbounded.
func NewNATSBackend(jetstreamContext nats.JetStreamContext, bucket string, maxBytes int64) (*NATSBackend, error) {
	if maxBytes <= 0 {
		maxBytes = -1
	}

	kv, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucket,
		Description: "voice-studio preferences, profiles and history",
		History:     1,
		MaxBytes:    maxBytes,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		existing, bindErr := jetstreamContext.KeyValue(bucket)
		if bindErr != nil {
			return nil, fmt.Errorf("failed to create key-value bucket '%s': %w", bucket, err)
		}

		kv = existing
	}

	return &NATSBackend{bucket: bucket, kv: kv}, nil
}

// Get reads the latest revision of a key.
func (n *NATSBackend) Get(_ context.Context, key string) ([]byte, error) {
	entry, err := n.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, fmt.Errorf("document %q: %w", key, core.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return entry.Value(), nil
}

// Put writes a new revision of a key.
func (n *NATSBackend) Put(_ context.Context, key string, value []byte) error {
	err := checkKey(key)
	if err != nil {
		return err
	}

	_, err = n.kv.Put(key, value)
	if err != nil {
		if isQuotaError(err) {
			return fmt.Errorf("%w: bucket '%s': %w", core.ErrQuotaExceeded, n.bucket, err)
		}

		return fmt.Errorf("failed to put '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (n *NATSBackend) Delete(_ context.Context, key string) error {
	err := n.kv.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// isQuotaError recognises JetStream storage limits. The server reports them
// as API errors whose only stable part is the description.
func isQuotaError(err error) bool {
	if errors.Is(err, nats.ErrMaxPayload) {
		return true
	}

	message := strings.ToLower(err.Error())

	return strings.Contains(message, "maximum bytes") ||
		strings.Contains(message, "insufficient resources") ||
		strings.Contains(message, "exceeds maximum")
}
