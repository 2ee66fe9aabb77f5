package core_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-studio/internal/core"
)

func TestVoiceProfile_PreservesUnknownFields(t *testing.T) {
	t.Parallel()

	input := `{"id":"p1","name":"Lan","language":"vi","created_at":"2025-01-02T03:04:05Z",` +
		`"quality_score":0.8,"usage_count":2,"favorite":true,"accent":"northern","tags":["a","b"]}`

	var profile core.VoiceProfile

	require.NoError(t, json.Unmarshal([]byte(input), &profile))
	assert.Equal(t, "p1", profile.ID)
	assert.Equal(t, "Lan", profile.Name)
	assert.True(t, profile.Favorite)
	assert.Equal(t, 2, profile.UsageCount)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), profile.CreatedAt)
	require.Len(t, profile.Extra, 2)
	assert.JSONEq(t, `"northern"`, string(profile.Extra["accent"]))

	profile.Name = "Lan 2"

	out, err := json.Marshal(profile)
	require.NoError(t, err)

	var fields map[string]any

	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, "Lan 2", fields["name"])
	assert.Equal(t, "northern", fields["accent"])
	assert.Equal(t, []any{"a", "b"}, fields["tags"])
}

func TestVoiceProfile_KnownFieldsWinOverExtra(t *testing.T) {
	t.Parallel()

	profile := core.VoiceProfile{
		ID:    "p1",
		Name:  "real",
		Extra: map[string]core.RawJSON{"name": core.RawJSON(`"stale"`)},
	}

	out, err := json.Marshal(profile)
	require.NoError(t, err)

	var decoded core.VoiceProfile

	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "real", decoded.Name)
	assert.Empty(t, decoded.Extra)
}

func TestPreferences_MissingFieldsTakeDefaults(t *testing.T) {
	t.Parallel()

	var prefs core.Preferences

	require.NoError(t, json.Unmarshal([]byte(`{"default_voice":"p9","theme":"dark"}`), &prefs))
	assert.Equal(t, core.DefaultLanguage, prefs.DefaultLanguage)
	assert.InDelta(t, core.DefaultRate, prefs.DefaultRate, 1e-9)
	assert.True(t, prefs.AutoClean)
	assert.Equal(t, "p9", prefs.DefaultVoice)
	assert.JSONEq(t, `"dark"`, string(prefs.Extra["theme"]))
}

func TestHistoryEntry_RoundTripKeepsStats(t *testing.T) {
	t.Parallel()

	entry := core.HistoryEntry{
		ID:        "h1",
		Text:      "Xin chào",
		Language:  "vi",
		CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Stats:     core.TextStats{Characters: 8, Words: 2, Sentences: 1, EstimatedSeconds: 1},
	}

	out, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "audio_key")

	var decoded core.HistoryEntry

	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, entry.Stats, decoded.Stats)
	assert.Equal(t, entry.Text, decoded.Text)
	assert.Nil(t, decoded.Extra)
}

func TestUnmarshal_RejectsWrongShape(t *testing.T) {
	t.Parallel()

	var profile core.VoiceProfile

	require.Error(t, json.Unmarshal([]byte(`{"usage_count":"many"}`), &profile))
	require.Error(t, json.Unmarshal([]byte(`[1,2]`), &profile))
}

func TestProviderError(t *testing.T) {
	t.Parallel()

	var err error = &core.ProviderError{Provider: "cloning", Message: "bad key", Code: core.ProviderCodeUnauthorized}

	assert.Equal(t, "provider cloning: bad key (code: unauthorized)", err.Error())

	var providerErr *core.ProviderError

	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, core.ProviderCodeUnauthorized, providerErr.Code)

	validation := core.NewValidationError("sample %d too short", 2)
	assert.True(t, errors.Is(validation, core.ErrValidation))
	assert.Contains(t, validation.Error(), "sample 2 too short")
}
