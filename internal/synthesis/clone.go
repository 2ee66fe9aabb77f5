package synthesis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/wave"
)

// Sample limits for cloning.
const (
	MinSamples       = 1
	MaxSamples       = 5
	MaxSampleBytes   = 50 << 20
	MinSampleSeconds = 3.0
	MaxSampleSeconds = 300.0
)

const (
	logFmtSampleNotStored = "Failed to store sample %s: %v"
	logFmtSampleNotFreed  = "Failed to delete sample %s of removed profile %s: %v"
	logFmtCloned          = "Cloned voice %q (%s) from %d samples, quality %.2f"
)

var allowedExtensions = map[string]struct{}{
	".wav": {}, ".mp3": {}, ".flac": {}, ".m4a": {}, ".ogg": {}, ".webm": {},
}

// CloneRequest asks for a new cloned voice.
type CloneRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Language    string             `json:"language,omitempty"`
	Samples     []core.AudioSample `json:"-"`
}

// ValidateSample checks one sample and resolves its duration when unset. It
// returns the sample with the resolved duration.
func ValidateSample(sample core.AudioSample) (core.AudioSample, error) {
	name := sample.Filename
	if name == "" {
		name = "sample." + ExtensionFor(sample.Format)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedExtensions[ext]; !ok {
		return sample, core.NewValidationError("%s: unsupported file type %q", name, ext)
	}

	size := len(sample.Data)
	if size == 0 {
		return sample, core.NewValidationError("%s: file is empty", name)
	}

	if size > MaxSampleBytes {
		return sample, core.NewValidationError("%s: %d bytes exceeds the %d byte limit", name, size, MaxSampleBytes)
	}

	sample.Size = size

	if !sample.HasDuration() {
		duration, err := wave.Duration(sample.Data, wave.Source{Format: sample.Format})
		if err != nil {
			return sample, core.NewValidationError("%s: duration could not be resolved: %v", name, err)
		}

		sample.Duration = duration
	}

	if sample.Duration < MinSampleSeconds {
		return sample, core.NewValidationError("%s: %.1f s is shorter than %.0f s", name, sample.Duration, MinSampleSeconds)
	}

	if sample.Duration > MaxSampleSeconds {
		return sample, core.NewValidationError("%s: %.1f s is longer than %.0f s", name, sample.Duration, MaxSampleSeconds)
	}

	return sample, nil
}

// CloneVoice validates the samples, submits them to the cloning backend and
// stores the resulting profile with an estimated quality score. Samples are
// kept in the object store when one is configured.
func (o *Orchestrator) CloneVoice(ctx context.Context, req CloneRequest) (core.VoiceProfile, error) {
	if o.deps.Cloner == nil {
		return core.VoiceProfile{}, &core.ProviderError{Provider: "cloning", Message: "backend is not configured"}
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return core.VoiceProfile{}, core.NewValidationError("voice name is required")
	}

	if len(req.Samples) < MinSamples || len(req.Samples) > MaxSamples {
		return core.VoiceProfile{}, core.NewValidationError("between %d and %d samples are required, got %d",
			MinSamples, MaxSamples, len(req.Samples))
	}

	samples := make([]core.AudioSample, 0, len(req.Samples))

	for _, sample := range req.Samples {
		validated, err := ValidateSample(sample)
		if err != nil {
			return core.VoiceProfile{}, err
		}

		samples = append(samples, validated)
	}

	language := req.Language
	if language == "" {
		language = o.preferences(ctx).DefaultLanguage
	}

	out, err := o.deps.Cloner.Clone(ctx, core.CloneCall{
		Name:        name,
		Description: req.Description,
		Language:    language,
		Samples:     samples,
	})
	if err != nil {
		return core.VoiceProfile{}, err
	}

	profile := core.VoiceProfile{
		ID:           uuid.NewString(),
		Name:         name,
		Language:     language,
		Description:  req.Description,
		CreatedAt:    o.now().UTC(),
		QualityScore: EstimateQuality(samples),
		BackendID:    out.BackendID,
	}

	profile.SampleKeys = o.storeSamples(ctx, profile.ID, samples)

	if o.deps.Store != nil {
		profile, err = o.deps.Store.AddProfile(ctx, profile)
		if err != nil {
			return core.VoiceProfile{}, fmt.Errorf("voice %s was cloned but not saved: %w", out.BackendID, err)
		}
	}

	o.log.Info(logFmtCloned, profile.Name, profile.BackendID, len(samples), profile.QualityScore)

	return profile, nil
}

// EstimateQuality averages the quality score of every decodable sample.
// Samples that cannot be decoded count as wave.DefaultQualityScore.
func EstimateQuality(samples []core.AudioSample) float64 {
	if len(samples) == 0 {
		return wave.DefaultQualityScore
	}

	total := 0.0

	for _, sample := range samples {
		buf, err := wave.Decode(sample.Data, wave.Source{Format: sample.Format})
		if err != nil {
			total += wave.DefaultQualityScore

			continue
		}

		total += wave.QualityScore(buf)
	}

	return math.Round(total/float64(len(samples))*100) / 100
}

func (o *Orchestrator) storeSamples(ctx context.Context, profileID string, samples []core.AudioSample) []string {
	if o.deps.Objects == nil {
		return nil
	}

	keys := make([]string, 0, len(samples))

	for index, sample := range samples {
		key := SampleKey(profileID, index, sample.Format)

		err := o.deps.Objects.Upload(ctx, key, sample.Data)
		if err != nil {
			o.log.Warn(logFmtSampleNotStored, key, err)

			continue
		}

		keys = append(keys, key)
	}

	return keys
}

// DeleteVoice removes a profile and the samples stored for it.
func (o *Orchestrator) DeleteVoice(ctx context.Context, id string) error {
	if o.deps.Store == nil {
		return fmt.Errorf("profile %s: %w", id, core.ErrNotFound)
	}

	profile, err := o.deps.Store.Profile(ctx, id)
	if err != nil {
		return err
	}

	err = o.deps.Store.DeleteProfile(ctx, id)
	if err != nil {
		return err
	}

	if o.deps.Objects == nil {
		return nil
	}

	for _, key := range profile.SampleKeys {
		deleteErr := o.deps.Objects.Delete(ctx, key)
		if deleteErr != nil && !errors.Is(deleteErr, core.ErrNotFound) {
			o.log.Warn(logFmtSampleNotFreed, key, id, deleteErr)
		}
	}

	return nil
}
