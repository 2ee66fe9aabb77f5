package provider

import "sort"

// Voice is a stock voice offered by the cloud neural provider.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Type     string `json:"type"`
}

const voiceTypeDefault = "default"

var defaultVoices = map[string]Voice{
	"vi": {ID: "vi-VN-HoaiMyNeural", Name: "Vietnamese (Hoai My)", Language: "vi", Type: voiceTypeDefault},
	"en": {ID: "en-US-AriaNeural", Name: "English (Aria)", Language: "en", Type: voiceTypeDefault},
	"fr": {ID: "fr-FR-DeniseNeural", Name: "French (Denise)", Language: "fr", Type: voiceTypeDefault},
}

// VoiceCatalog resolves the stock voice for a language. Overrides replace the
// built-in voice id per language.
type VoiceCatalog struct {
	overrides map[string]string
}

// NewVoiceCatalog creates a catalog with per-language voice id overrides.
func NewVoiceCatalog(overrides map[string]string) *VoiceCatalog {
	copied := make(map[string]string, len(overrides))
	for language, id := range overrides {
		if id != "" {
			copied[language] = id
		}
	}

	return &VoiceCatalog{overrides: copied}
}

// VoiceFor returns the stock voice id for language, falling back to English.
func (c *VoiceCatalog) VoiceFor(language string) string {
	if id, ok := c.overrides[language]; ok {
		return id
	}

	if voice, ok := defaultVoices[language]; ok {
		return voice.ID
	}

	return defaultVoices["en"].ID
}

// Voices lists the stock voices, one per supported language, ordered by language.
func (c *VoiceCatalog) Voices() []Voice {
	voices := make([]Voice, 0, len(defaultVoices))

	for language, voice := range defaultVoices {
		if id, ok := c.overrides[language]; ok {
			voice.ID = id
		}

		voices = append(voices, voice)
	}

	sort.Slice(voices, func(i, j int) bool { return voices[i].Language < voices[j].Language })

	return voices
}
