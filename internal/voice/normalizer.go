// Package voice maps the single user-facing synthesis settings surface onto
// the parameter domain of the provider that will serve a request.
package voice

import (
	"errors"
	"fmt"
	"math"
)

// Provider identifies the parameter domain of a synthesis backend. It is
// resolved once per request and every later step switches on it.
type Provider int

const (
	// ProviderCloudNeural serves stock neural voices and takes rate and pitch.
	ProviderCloudNeural Provider = iota + 1
	// ProviderCloned serves cloned voices and takes stability, similarity and style.
	ProviderCloned
)

// String returns the provider name used in logs, history and errors.
func (p Provider) String() string {
	switch p {
	case ProviderCloudNeural:
		return "cloud-neural"
	case ProviderCloned:
		return "cloned"
	default:
		return fmt.Sprintf("provider(%d)", int(p))
	}
}

// ErrUnknownProvider is returned for a Provider value outside the known set.
var ErrUnknownProvider = errors.New("unknown synthesis provider")

// Parameter ranges.
const (
	MinRate  = 0.25
	MaxRate  = 4.0
	MinPitch = -20.0
	MaxPitch = 20.0

	DefaultRate  = 1.0
	DefaultPitch = 0.0
)

// Synthesis models for cloned voices.
const (
	ModelMultilingual = "eleven_multilingual_v2"
	ModelTurbo        = "eleven_turbo_v2"
)

// Settings is the unified parameter surface. A nil field, or a NaN value, means
// the user did not set it.
type Settings struct {
	Rate       *float64 `json:"rate,omitempty"`
	Pitch      *float64 `json:"pitch,omitempty"`
	Stability  *float64 `json:"stability,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
	Style      *float64 `json:"style,omitempty"`
}

// Float returns a pointer to value, for building Settings literals.
func Float(value float64) *float64 {
	return &value
}

// CloudNeuralParams is what the stock neural provider receives.
type CloudNeuralParams struct {
	Rate  float64 `json:"rate"`
	Pitch float64 `json:"pitch"`
}

// RatePercent renders the rate as a signed percentage offset, e.g. "+50%".
func (c CloudNeuralParams) RatePercent() string {
	return fmt.Sprintf("%+d%%", int(math.Round((c.Rate-1)*100)))
}

// PitchHertz renders the pitch as a signed offset in hertz, e.g. "-5Hz".
func (c CloudNeuralParams) PitchHertz() string {
	return fmt.Sprintf("%+dHz", int(math.Round(c.Pitch)))
}

// ClonedParams is what the cloned-voice provider receives. Rate and pitch have
// no equivalent there and are never sent.
type ClonedParams struct {
	Model           string  `json:"model_id"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// Params is the tagged result of normalisation; exactly one of CloudNeural and
// Cloned is set, matching Provider.
type Params struct {
	Provider    Provider
	CloudNeural *CloudNeuralParams
	Cloned      *ClonedParams
}

// Value returns the populated variant for handing to a backend.
func (p Params) Value() any {
	if p.Provider == ProviderCloned {
		return *p.Cloned
	}

	return *p.CloudNeural
}

// Normalize resolves settings for provider. Cloud neural parameters are
// clamped to their ranges; cloned parameters start from the language preset
// and each value the user set replaces the preset value before clamping.
func Normalize(provider Provider, language string, settings Settings) (Params, error) {
	switch provider {
	case ProviderCloudNeural:
		return Params{
			Provider: provider,
			CloudNeural: &CloudNeuralParams{
				Rate:  clamp(valueOr(settings.Rate, DefaultRate), MinRate, MaxRate),
				Pitch: clamp(valueOr(settings.Pitch, DefaultPitch), MinPitch, MaxPitch),
			},
		}, nil
	case ProviderCloned:
		preset := PresetFor(language)

		return Params{
			Provider: provider,
			Cloned: &ClonedParams{
				Model:           ModelFor(language),
				Stability:       clamp(valueOr(settings.Stability, preset.Stability), 0, 1),
				SimilarityBoost: clamp(valueOr(settings.Similarity, preset.Similarity), 0, 1),
				Style:           clamp(valueOr(settings.Style, preset.Style), 0, 1),
				SpeakerBoost:    true,
			},
		}, nil
	default:
		return Params{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

func valueOr(value *float64, fallback float64) float64 {
	if value == nil || math.IsNaN(*value) {
		return fallback
	}

	return *value
}

func clamp(value, low, high float64) float64 {
	return math.Max(low, math.Min(high, value))
}
