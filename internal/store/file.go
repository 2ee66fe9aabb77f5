package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/book-expert/voice-studio/internal/core"
)

const (
	documentExt  = ".json"
	dirPerm      = 0o750
	documentPerm = 0o600
)

// FileBackend stores each document as a JSON file in one directory. Writes go
// to a temporary file that is renamed over the target, so a reader never sees
// a partially written document.
type FileBackend struct {
	mu    sync.Mutex
	dir   string
	quota int64
}

// NewFileBackend creates the directory if needed. quotaBytes <= 0 disables
// the quota; the filesystem running out of space is always reported as
// core.ErrQuotaExceeded.
func NewFileBackend(dir string, quotaBytes int64) (*FileBackend, error) {
	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}

	return &FileBackend{dir: dir, quota: quotaBytes}, nil
}

func (f *FileBackend) path(key string) string {
	return filepath.Join(f.dir, key+documentExt)
}

// Get reads a document file.
func (f *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	err := checkKey(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("document %q: %w", key, core.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read document %q: %w", key, err)
	}

	return data, nil
}

// Put writes a document through a temporary file and an atomic rename.
func (f *FileBackend) Put(_ context.Context, key string, value []byte) error {
	err := checkKey(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	err = f.checkQuota(key, len(value))
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return f.wrapWriteError(key, err)
	}

	tmpName := tmp.Name()

	_, writeErr := tmp.Write(value)
	if writeErr == nil {
		writeErr = tmp.Sync()
	}

	closeErr := tmp.Close()
	if writeErr == nil {
		writeErr = closeErr
	}

	if writeErr == nil {
		writeErr = os.Chmod(tmpName, documentPerm)
	}

	if writeErr == nil {
		writeErr = os.Rename(tmpName, f.path(key))
	}

	if writeErr != nil {
		_ = os.Remove(tmpName)

		return f.wrapWriteError(key, writeErr)
	}

	return nil
}

// Delete removes a document file. Deleting a missing document is not an error.
func (f *FileBackend) Delete(_ context.Context, key string) error {
	err := checkKey(key)
	if err != nil {
		return err
	}

	err = os.Remove(f.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete document %q: %w", key, err)
	}

	return nil
}

func (f *FileBackend) checkQuota(key string, size int) error {
	if f.quota <= 0 {
		return nil
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("failed to list store directory: %w", err)
	}

	total := int64(size)

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != documentExt || entry.Name() == key+documentExt {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}

		total += info.Size()
	}

	if total > f.quota {
		return fmt.Errorf("%w: %d of %d bytes", core.ErrQuotaExceeded, total, f.quota)
	}

	return nil
}

func (f *FileBackend) wrapWriteError(key string, err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: document %q: %w", core.ErrQuotaExceeded, key, err)
	}

	return fmt.Errorf("failed to write document %q: %w", key, err)
}
