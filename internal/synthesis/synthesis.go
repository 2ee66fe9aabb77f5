// Package synthesis composes the text processor and the voice settings
// normalizer into provider calls and records the outcome in the store.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/store"
	"github.com/book-expert/voice-studio/internal/text"
	"github.com/book-expert/voice-studio/internal/voice"
)

// Defaults applied to a zero Config.
const (
	DefaultWorkers          = 2
	DefaultCloudChunkChars  = 3000
	DefaultClonedChunkChars = 2500
	DefaultFallbackLanguage = core.DefaultLanguage
	HistoryTextLength       = 100
)

const (
	logFmtChunkFailed    = "Failed to synthesize chunk %d/%d with %s: %v"
	logFmtChunkDone      = "Synthesized chunk %d/%d with %s (%d bytes)"
	logFmtHistoryFailed  = "Failed to record history for a %s synthesis: %v"
	logFmtUsageFailed    = "Failed to record usage of profile %s: %v"
	logFmtAudioNotStored = "Failed to store synthesized audio under %s: %v"
	logFmtPrefsFallback  = "Using default preferences, store read failed: %v"
)

// Config tunes the orchestrator.
type Config struct {
	Workers          int
	CloudChunkChars  int
	ClonedChunkChars int
	FallbackLanguage string
	ExpandForSpeech  bool
	StoreAudio       bool
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}

	if c.CloudChunkChars <= 0 {
		c.CloudChunkChars = DefaultCloudChunkChars
	}

	if c.ClonedChunkChars <= 0 {
		c.ClonedChunkChars = DefaultClonedChunkChars
	}

	if c.FallbackLanguage == "" {
		c.FallbackLanguage = DefaultFallbackLanguage
	}

	return c
}

// VoiceResolver picks the stock voice for a language.
type VoiceResolver interface {
	VoiceFor(language string) string
}

// Dependencies are the collaborators of an Orchestrator. CloudNeural, Cloned,
// Cloner and Objects may be nil when the corresponding backend is not
// configured.
type Dependencies struct {
	Processor   *text.Processor
	Store       *store.Store
	CloudNeural core.Synthesizer
	Cloned      core.Synthesizer
	Cloner      core.Cloner
	Objects     core.ObjectStore
	Voices      VoiceResolver
}

// Orchestrator serves synthesis and cloning requests.
type Orchestrator struct {
	deps Dependencies
	cfg  Config
	log  *logger.Logger
	now  func() time.Time
}

// New creates an orchestrator.
func New(deps Dependencies, cfg Config, log *logger.Logger) *Orchestrator {
	if deps.Processor == nil {
		deps.Processor = text.NewProcessor(text.DefaultMaxLength)
	}

	return &Orchestrator{deps: deps, cfg: cfg.withDefaults(), log: log, now: time.Now}
}

// Request is one synthesis request. Empty fields fall back to the stored
// preferences.
type Request struct {
	Text      string         `json:"text"`
	Language  string         `json:"language,omitempty"`
	VoiceID   string         `json:"voice_id,omitempty"`
	Settings  voice.Settings `json:"settings"`
	AutoClean *bool          `json:"auto_clean,omitempty"`
}

// Result is the outcome of a synthesis request.
type Result struct {
	Audio     []byte         `json:"-"`
	Format    string         `json:"format"`
	Provider  string         `json:"provider"`
	Backend   string         `json:"backend"`
	Language  string         `json:"language"`
	Voice     string         `json:"voice"`
	Text      string         `json:"text"`
	Chunks    int            `json:"chunks"`
	Stats     core.TextStats `json:"stats"`
	AudioKey  string         `json:"audio_key,omitempty"`
	HistoryID string         `json:"history_id,omitempty"`
}

// target is the provider variant resolved once per request.
type target struct {
	provider  voice.Provider
	backend   core.Synthesizer
	voice     string
	voiceRef  string
	profileID string
}

// Synthesize validates and prepares the text, resolves the provider once,
// calls it for every chunk and records the request in the history. Provider
// failures come back as the backend's *core.ProviderError without retry.
// Failing to store audio or history is logged and does not fail the request.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (*Result, error) {
	prefs := o.preferences(ctx)

	validateErr := o.deps.Processor.Validate(req.Text)
	if validateErr != nil {
		return nil, validateErr
	}

	body := req.Text
	if autoClean(req, prefs) {
		body = o.deps.Processor.Clean(body)
		if strings.TrimSpace(body) == "" {
			return nil, fmt.Errorf("%w: nothing left after cleaning", core.ErrEmptyText)
		}
	}

	language := o.resolveLanguage(req.Language, body)

	resolved, targetErr := o.resolveTarget(ctx, req.VoiceID, prefs, language)
	if targetErr != nil {
		return nil, targetErr
	}

	params, normalizeErr := voice.Normalize(resolved.provider, language, withPreferenceDefaults(req.Settings, prefs))
	if normalizeErr != nil {
		return nil, normalizeErr
	}

	spoken := body
	if o.cfg.ExpandForSpeech {
		spoken = o.deps.Processor.ExpandForSpeech(spoken, language)
	}

	chunks := text.Chunk(spoken, o.chunkLimit(resolved.provider))

	outputs, chunkErr := o.synthesizeChunks(ctx, resolved, chunks, language, params.Value())
	if chunkErr != nil {
		return nil, chunkErr
	}

	audio, format, joinErr := joinAudio(outputs)
	if joinErr != nil {
		return nil, joinErr
	}

	result := &Result{
		Audio:    audio,
		Format:   format,
		Provider: resolved.provider.String(),
		Backend:  resolved.backend.Name(),
		Language: language,
		Voice:    resolved.voice,
		Text:     body,
		Chunks:   len(chunks),
		Stats:    text.Stats(body),
	}

	o.storeAudio(ctx, result)
	o.record(ctx, result, resolved)

	return result, nil
}

func (o *Orchestrator) preferences(ctx context.Context) core.Preferences {
	if o.deps.Store == nil {
		return core.DefaultPreferences()
	}

	prefs, err := o.deps.Store.Preferences(ctx)
	if err != nil {
		o.log.Warn(logFmtPrefsFallback, err)

		return core.DefaultPreferences()
	}

	return prefs
}

func autoClean(req Request, prefs core.Preferences) bool {
	if req.AutoClean != nil {
		return *req.AutoClean
	}

	return prefs.AutoClean
}

// resolveLanguage never returns text.LanguageUnknown.
func (o *Orchestrator) resolveLanguage(requested, body string) string {
	if requested != "" && requested != text.LanguageUnknown {
		return requested
	}

	return text.DetectLanguageOr(body, o.cfg.FallbackLanguage)
}

// resolveTarget picks the provider variant. A stored profile with a backend
// id selects the cloned provider; any other voice reference is a stock voice.
func (o *Orchestrator) resolveTarget(ctx context.Context, voiceID string, prefs core.Preferences, language string) (target, error) {
	if voiceID == "" {
		voiceID = prefs.DefaultVoice
	}

	resolved := target{provider: voice.ProviderCloudNeural, voiceRef: voiceID}

	if voiceID != "" && o.deps.Store != nil {
		profile, err := o.deps.Store.Profile(ctx, voiceID)

		switch {
		case err == nil && profile.BackendID != "":
			resolved.provider = voice.ProviderCloned
			resolved.voice = profile.BackendID
			resolved.profileID = profile.ID
		case err == nil:
			voiceID = ""
		case !errors.Is(err, core.ErrNotFound):
			return target{}, err
		}
	}

	if resolved.provider == voice.ProviderCloudNeural {
		resolved.voice = voiceID
		if resolved.voice == "" && o.deps.Voices != nil {
			resolved.voice = o.deps.Voices.VoiceFor(language)
		}
	}

	resolved.backend = o.backendFor(resolved.provider)
	if resolved.backend == nil {
		return target{}, &core.ProviderError{Provider: resolved.provider.String(), Message: "backend is not configured"}
	}

	return resolved, nil
}

func (o *Orchestrator) backendFor(provider voice.Provider) core.Synthesizer {
	if provider == voice.ProviderCloned {
		return o.deps.Cloned
	}

	return o.deps.CloudNeural
}

func (o *Orchestrator) chunkLimit(provider voice.Provider) int {
	if provider == voice.ProviderCloned {
		return o.cfg.ClonedChunkChars
	}

	return o.cfg.CloudChunkChars
}

func withPreferenceDefaults(settings voice.Settings, prefs core.Preferences) voice.Settings {
	if settings.Rate == nil && prefs.DefaultRate > 0 {
		settings.Rate = voice.Float(prefs.DefaultRate)
	}

	if settings.Pitch == nil {
		settings.Pitch = voice.Float(prefs.DefaultPitch)
	}

	return settings
}

// synthesizeChunks calls the backend for every chunk on a bounded worker
// pool. Outputs keep chunk order; the first failure cancels the rest.
func (o *Orchestrator) synthesizeChunks(
	ctx context.Context,
	resolved target,
	chunks []string,
	language string,
	params any,
) ([]*core.SynthesisOutput, error) {
	outputs := make([]*core.SynthesisOutput, len(chunks))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.cfg.Workers)

	for index, chunk := range chunks {
		group.Go(func() error {
			out, err := resolved.backend.Synthesize(groupCtx, core.SynthesisCall{
				Text:     chunk,
				Language: language,
				Voice:    resolved.voice,
				Params:   params,
			})
			if err != nil {
				o.log.Error(logFmtChunkFailed, index+1, len(chunks), resolved.backend.Name(), err)

				return err
			}

			outputs[index] = out
			o.log.Info(logFmtChunkDone, index+1, len(chunks), resolved.backend.Name(), len(out.Audio))

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	return outputs, nil
}

func (o *Orchestrator) storeAudio(ctx context.Context, result *Result) {
	if !o.cfg.StoreAudio || o.deps.Objects == nil {
		return
	}

	key := AudioKey(uuid.NewString(), result.Format)

	err := o.deps.Objects.Upload(ctx, key, result.Audio)
	if err != nil {
		o.log.Warn(logFmtAudioNotStored, key, err)

		return
	}

	result.AudioKey = key
}

func (o *Orchestrator) record(ctx context.Context, result *Result, resolved target) {
	if o.deps.Store == nil {
		return
	}

	entry, err := o.deps.Store.AddHistory(ctx, core.HistoryEntry{
		Text:      text.Truncate(result.Text, HistoryTextLength),
		Language:  result.Language,
		VoiceRef:  firstNonEmpty(resolved.voiceRef, resolved.voice),
		Provider:  result.Provider,
		AudioKey:  result.AudioKey,
		CreatedAt: o.now().UTC(),
		Stats:     result.Stats,
	})
	if err != nil {
		o.log.Warn(logFmtHistoryFailed, result.Provider, err)
	} else {
		result.HistoryID = entry.ID
	}

	if resolved.profileID != "" {
		err = o.deps.Store.RecordUsage(ctx, resolved.profileID)
		if err != nil {
			o.log.Warn(logFmtUsageFailed, resolved.profileID, err)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}
