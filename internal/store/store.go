// Package store persists preferences, voice profiles and synthesis history as
// versioned JSON documents on a pluggable key-value backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/voice-studio/internal/core"
)

// SchemaVersion is written into every document envelope.
const SchemaVersion = 1

// MaxHistory caps the history collection; the oldest entries are evicted.
const MaxHistory = 50

// historyCleanupBatch is how many of the oldest history entries one cleanup
// pass drops when storage is exhausted.
const historyCleanupBatch = 10

// Document keys.
const (
	KeyPreferences = "preferences"
	KeyProfiles    = "profiles"
	KeyHistory     = "history"
)

var documentKeys = []string{KeyPreferences, KeyProfiles, KeyHistory}

// envelope wraps every stored document.
type envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Store is the typed, write-through persistence layer. Every mutation reads
// the current document, applies the change and writes the whole document
// back in one backend put. Operations are serialised by a mutex and callers
// receive copies.
type Store struct {
	mu      sync.Mutex
	backend Backend
	log     *logger.Logger
	now     func() time.Time
}

// New creates a store over backend.
func New(backend Backend, log *logger.Logger) *Store {
	return &Store{backend: backend, log: log, now: time.Now}
}

// Preferences returns the stored preferences, creating and persisting the
// defaults on first use. A corrupt document reads as the defaults.
func (s *Store) Preferences(ctx context.Context) (core.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadPreferences(ctx)
}

// SavePreferences replaces the stored preferences.
func (s *Store) SavePreferences(ctx context.Context, prefs core.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(prefs.RecentVoices) > core.MaxRecentVoices {
		prefs.RecentVoices = prefs.RecentVoices[:core.MaxRecentVoices]
	}

	return s.write(ctx, KeyPreferences, prefs)
}

// Profiles returns every stored voice profile in insertion order.
func (s *Store) Profiles(ctx context.Context) ([]core.VoiceProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadProfiles(ctx)
}

// Profile returns one profile or core.ErrNotFound.
func (s *Store) Profile(ctx context.Context, id string) (core.VoiceProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return core.VoiceProfile{}, err
	}

	index := indexOfProfile(profiles, id)
	if index < 0 {
		return core.VoiceProfile{}, fmt.Errorf("profile %s: %w", id, core.ErrNotFound)
	}

	return profiles[index], nil
}

// AddProfile stores a profile, assigning an ID and creation time when unset.
// A profile with an existing ID replaces the stored one.
func (s *Store) AddProfile(ctx context.Context, profile core.VoiceProfile) (core.VoiceProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}

	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = s.now().UTC()
	}

	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return core.VoiceProfile{}, err
	}

	if index := indexOfProfile(profiles, profile.ID); index >= 0 {
		profiles[index] = profile
	} else {
		profiles = append(profiles, profile)
	}

	err = s.write(ctx, KeyProfiles, profiles)
	if err != nil {
		return core.VoiceProfile{}, err
	}

	return profile, nil
}

// DeleteProfile removes a profile and clears it from the default voice and
// the recent voices list.
func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return err
	}

	index := indexOfProfile(profiles, id)
	if index < 0 {
		return fmt.Errorf("profile %s: %w", id, core.ErrNotFound)
	}

	err = s.write(ctx, KeyProfiles, slices.Delete(profiles, index, index+1))
	if err != nil {
		return err
	}

	prefs, err := s.loadPreferences(ctx)
	if err != nil {
		return err
	}

	changed := false
	if prefs.DefaultVoice == id {
		prefs.DefaultVoice = ""
		changed = true
	}

	if slices.Contains(prefs.RecentVoices, id) {
		prefs.RecentVoices = slices.DeleteFunc(prefs.RecentVoices, func(recent string) bool { return recent == id })
		changed = true
	}

	if !changed {
		return nil
	}

	return s.write(ctx, KeyPreferences, prefs)
}

// RecordUsage bumps a profile's usage counter and moves it to the front of the
// recent voices list.
func (s *Store) RecordUsage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return err
	}

	index := indexOfProfile(profiles, id)
	if index < 0 {
		return fmt.Errorf("profile %s: %w", id, core.ErrNotFound)
	}

	usedAt := s.now().UTC()
	profiles[index].UsageCount++
	profiles[index].LastUsedAt = &usedAt

	err = s.write(ctx, KeyProfiles, profiles)
	if err != nil {
		return err
	}

	prefs, err := s.loadPreferences(ctx)
	if err != nil {
		return err
	}

	prefs.RecentVoices = pushRecent(prefs.RecentVoices, id)

	return s.write(ctx, KeyPreferences, prefs)
}

// ToggleFavorite flips a profile's favorite flag and returns the new value.
func (s *Store) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return false, err
	}

	index := indexOfProfile(profiles, id)
	if index < 0 {
		return false, fmt.Errorf("profile %s: %w", id, core.ErrNotFound)
	}

	profiles[index].Favorite = !profiles[index].Favorite

	err = s.write(ctx, KeyProfiles, profiles)
	if err != nil {
		return false, err
	}

	return profiles[index].Favorite, nil
}

// Favorites returns the profiles flagged as favorite.
func (s *Store) Favorites(ctx context.Context) ([]core.VoiceProfile, error) {
	profiles, err := s.Profiles(ctx)
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(profiles, func(profile core.VoiceProfile) bool { return !profile.Favorite }), nil
}

// History returns the history, newest first.
func (s *Store) History(ctx context.Context) ([]core.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadHistory(ctx)
}

// AddHistory prepends an entry, assigning an ID and time when unset, and
// drops entries beyond MaxHistory from the tail.
func (s *Store) AddHistory(ctx context.Context, entry core.HistoryEntry) (core.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	history, err := s.loadHistory(ctx)
	if err != nil {
		return core.HistoryEntry{}, err
	}

	history = append([]core.HistoryEntry{entry}, history...)
	if len(history) > MaxHistory {
		history = history[:MaxHistory]
	}

	err = s.write(ctx, KeyHistory, history)
	if err != nil {
		return core.HistoryEntry{}, err
	}

	return entry, nil
}

// ClearHistory removes every history entry.
func (s *Store) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(ctx, KeyHistory, []core.HistoryEntry{})
}

func (s *Store) loadPreferences(ctx context.Context) (core.Preferences, error) {
	data, found, err := s.read(ctx, KeyPreferences)
	if err != nil {
		return core.Preferences{}, err
	}

	if !found {
		prefs := core.DefaultPreferences()

		writeErr := s.write(ctx, KeyPreferences, prefs)
		if writeErr != nil {
			s.log.Warn("Failed to persist default preferences: %v", writeErr)
		}

		return prefs, nil
	}

	var prefs core.Preferences

	err = json.Unmarshal(data, &prefs)
	if err != nil {
		s.log.Warn("Preferences document is corrupt, using defaults: %v", err)

		return core.DefaultPreferences(), nil
	}

	return prefs, nil
}

func (s *Store) loadProfiles(ctx context.Context) ([]core.VoiceProfile, error) {
	return loadCollection(ctx, s, KeyProfiles, func(profile core.VoiceProfile) bool { return profile.ID != "" })
}

func (s *Store) loadHistory(ctx context.Context) ([]core.HistoryEntry, error) {
	return loadCollection(ctx, s, KeyHistory, func(entry core.HistoryEntry) bool { return entry.ID != "" })
}

// loadCollection decodes a list document element by element, skipping
// elements that are corrupt or fail the valid check.
func loadCollection[T any](ctx context.Context, s *Store, key string, valid func(T) bool) ([]T, error) {
	data, found, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}

	items := []T{}
	if !found {
		return items, nil
	}

	var elements []json.RawMessage

	err = json.Unmarshal(data, &elements)
	if err != nil {
		s.log.Warn("Document %s is corrupt, treating as empty: %v", key, err)

		return items, nil
	}

	for index, element := range elements {
		var item T

		decodeErr := json.Unmarshal(element, &item)
		if decodeErr != nil || !valid(item) {
			s.log.Warn("Skipping corrupt %s element %d: %v", key, index, decodeErr)

			continue
		}

		items = append(items, item)
	}

	return items, nil
}

// read returns the payload of a document, unwrapping the envelope. Documents
// written before the envelope existed are returned as they are.
func (s *Store) read(ctx context.Context, key string) (json.RawMessage, bool, error) {
	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, core.ErrNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	return unwrap(raw), true, nil
}

func unwrap(raw []byte) json.RawMessage {
	var fields map[string]json.RawMessage

	err := json.Unmarshal(raw, &fields)
	if err != nil {
		return raw
	}

	_, hasVersion := fields["version"]

	data, hasData := fields["data"]
	if !hasVersion || !hasData {
		return raw
	}

	return data
}

func encode(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	wrapped, err := json.Marshal(envelope{Version: SchemaVersion, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	return wrapped, nil
}

// write stores one document. When the backend reports exhausted storage, one
// cleanup pass drops the oldest history entries and the write is retried once.
func (s *Store) write(ctx context.Context, key string, value any) error {
	data, err := encode(value)
	if err != nil {
		return err
	}

	putErr := s.backend.Put(ctx, key, data)
	if putErr == nil {
		return nil
	}

	if !errors.Is(putErr, core.ErrQuotaExceeded) {
		return fmt.Errorf("failed to write %s: %w", key, putErr)
	}

	s.log.Warn("Storage quota exceeded writing %s, dropping oldest history entries", key)

	data, err = s.reclaim(ctx, key, value, data)
	if err != nil {
		return err
	}

	retryErr := s.backend.Put(ctx, key, data)
	if retryErr != nil {
		if errors.Is(retryErr, core.ErrQuotaExceeded) {
			return fmt.Errorf("writing %s after cleanup: %w", key, core.ErrQuotaExceeded)
		}

		return fmt.Errorf("failed to write %s: %w", key, retryErr)
	}

	return nil
}

// reclaim frees space and returns the payload to retry with. A pending history
// write is trimmed itself but always keeps its newest entry; any other write
// trims the stored history.
func (s *Store) reclaim(ctx context.Context, key string, value any, data []byte) ([]byte, error) {
	if history, ok := value.([]core.HistoryEntry); ok && key == KeyHistory {
		return encode(dropOldest(history, 1))
	}

	history, err := s.loadHistory(ctx)
	if err != nil || len(history) == 0 {
		return data, nil
	}

	trimmed, err := encode(dropOldest(history, 0))
	if err != nil {
		return nil, err
	}

	putErr := s.backend.Put(ctx, KeyHistory, trimmed)
	if putErr != nil {
		s.log.Warn("History cleanup failed: %v", putErr)
	}

	return data, nil
}

// dropOldest removes up to historyCleanupBatch entries from the tail, never
// going below floor.
func dropOldest(history []core.HistoryEntry, floor int) []core.HistoryEntry {
	keep := min(max(len(history)-historyCleanupBatch, floor), len(history))

	return history[:keep]
}

func indexOfProfile(profiles []core.VoiceProfile, id string) int {
	return slices.IndexFunc(profiles, func(profile core.VoiceProfile) bool { return profile.ID == id })
}

func pushRecent(recent []string, id string) []string {
	updated := []string{id}

	for _, existing := range recent {
		if existing != id && len(updated) < core.MaxRecentVoices {
			updated = append(updated, existing)
		}
	}

	return updated
}
