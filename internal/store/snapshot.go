package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
)

// Snapshot is the export format holding every collection.
type Snapshot struct {
	Version     int                 `json:"version"`
	ExportedAt  time.Time           `json:"exported_at"`
	Preferences core.Preferences    `json:"preferences"`
	Profiles    []core.VoiceProfile `json:"profiles"`
	History     []core.HistoryEntry `json:"history"`
}

// ErrInvalidSnapshot is returned by Import for a payload of the wrong shape.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Export reads all collections into one snapshot.
func (s *Store) Export(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.loadPreferences(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	history, err := s.loadHistory(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Version:     SchemaVersion,
		ExportedAt:  s.now().UTC(),
		Preferences: prefs,
		Profiles:    profiles,
		History:     history,
	}, nil
}

// Import replaces every collection with the content of a serialized snapshot.
// The payload must be an object with a preferences object and profiles and
// history arrays. Either all three documents are written or, when a write
// fails, the previous documents are restored.
func (s *Store) Import(ctx context.Context, payload []byte) error {
	snapshot, err := parseSnapshot(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := make(map[string][]byte, len(documentKeys))

	for _, key := range documentKeys {
		raw, getErr := s.backend.Get(ctx, key)
		if getErr != nil && !errors.Is(getErr, core.ErrNotFound) {
			return fmt.Errorf("failed to read %s before import: %w", key, getErr)
		}

		previous[key] = raw
	}

	history := snapshot.History
	if len(history) > MaxHistory {
		history = history[:MaxHistory]
	}

	values := map[string]any{
		KeyPreferences: snapshot.Preferences,
		KeyProfiles:    snapshot.Profiles,
		KeyHistory:     history,
	}

	for index, key := range documentKeys {
		data, encodeErr := encode(values[key])
		if encodeErr == nil {
			encodeErr = s.backend.Put(ctx, key, data)
		}

		if encodeErr != nil {
			s.rollback(ctx, documentKeys[:index], previous)

			return fmt.Errorf("import failed writing %s: %w", key, encodeErr)
		}
	}

	return nil
}

func (s *Store) rollback(ctx context.Context, keys []string, previous map[string][]byte) {
	for _, key := range keys {
		var err error
		if previous[key] == nil {
			err = s.backend.Delete(ctx, key)
		} else {
			err = s.backend.Put(ctx, key, previous[key])
		}

		if err != nil {
			s.log.Error("Failed to restore %s after a failed import: %v", key, err)
		}
	}
}

func parseSnapshot(payload []byte) (Snapshot, error) {
	var fields map[string]json.RawMessage

	err := json.Unmarshal(payload, &fields)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	shapes := []struct {
		key   string
		delim byte
	}{
		{key: KeyPreferences, delim: '{'},
		{key: KeyProfiles, delim: '['},
		{key: KeyHistory, delim: '['},
	}

	for _, shape := range shapes {
		value := bytes.TrimSpace(fields[shape.key])
		if len(value) == 0 || value[0] != shape.delim {
			return Snapshot{}, fmt.Errorf("%w: %q must be %s", ErrInvalidSnapshot, shape.key, describeDelim(shape.delim))
		}
	}

	var snapshot Snapshot

	err = json.Unmarshal(payload, &snapshot)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	if snapshot.Version > SchemaVersion {
		return Snapshot{}, fmt.Errorf("%w: version %d is newer than %d", ErrInvalidSnapshot, snapshot.Version, SchemaVersion)
	}

	for _, profile := range snapshot.Profiles {
		if profile.ID == "" {
			return Snapshot{}, fmt.Errorf("%w: profile without id", ErrInvalidSnapshot)
		}
	}

	for _, entry := range snapshot.History {
		if entry.ID == "" {
			return Snapshot{}, fmt.Errorf("%w: history entry without id", ErrInvalidSnapshot)
		}
	}

	return snapshot, nil
}

func describeDelim(delim byte) string {
	if delim == '{' {
		return "an object"
	}

	return "an array"
}

// Stats reports collection sizes and the stored bytes per document.
type Stats struct {
	Profiles   int            `json:"profiles"`
	Favorites  int            `json:"favorites"`
	History    int            `json:"history"`
	Bytes      map[string]int `json:"bytes"`
	TotalBytes int            `json:"total_bytes"`
}

// Stats reads every document and summarises it.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{Bytes: make(map[string]int, len(documentKeys))}

	for _, key := range documentKeys {
		raw, err := s.backend.Get(ctx, key)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return Stats{}, fmt.Errorf("failed to read %s: %w", key, err)
		}

		stats.Bytes[key] = len(raw)
		stats.TotalBytes += len(raw)
	}

	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return Stats{}, err
	}

	history, err := s.loadHistory(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats.Profiles = len(profiles)
	stats.History = len(history)

	for _, profile := range profiles {
		if profile.Favorite {
			stats.Favorites++
		}
	}

	return stats, nil
}
