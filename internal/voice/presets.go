package voice

// Preset seeds the cloned-voice parameters for a language.
type Preset struct {
	Stability  float64
	Similarity float64
	Style      float64
}

var (
	defaultPreset = Preset{Stability: 0.5, Similarity: 0.75, Style: 0}

	presets = map[string]Preset{
		"vi": {Stability: 0.75, Similarity: 0.8, Style: 0.2},
		"en": {Stability: 0.5, Similarity: 0.75, Style: 0},
		"fr": {Stability: 0.4, Similarity: 0.75, Style: 0.45},
	}
)

// PresetFor returns the preset for language, or the neutral preset.
func PresetFor(language string) Preset {
	if preset, ok := presets[language]; ok {
		return preset
	}

	return defaultPreset
}

// ModelFor selects the cloned-voice model. English uses the faster turbo
// model; every other language needs the multilingual one.
func ModelFor(language string) string {
	if language == "en" {
		return ModelTurbo
	}

	return ModelMultilingual
}
