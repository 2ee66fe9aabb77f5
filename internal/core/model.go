package core

import (
	"time"
)

// Audio format tags.
const (
	FormatWAV      = "audio/wav"
	FormatMPEG     = "audio/mpeg"
	FormatFLAC     = "audio/flac"
	FormatOGG      = "audio/ogg"
	FormatWebM     = "audio/webm"
	FormatMP4      = "audio/mp4"
	FormatPCMFloat = "audio/pcm-f32le"
	FormatPCMInt16 = "audio/pcm-s16le"
)

// AudioSample is a captured or uploaded audio payload. A sample is never
// mutated after creation; Duration <= 0 means the duration is unresolved.
type AudioSample struct {
	Data     []byte  `json:"-"`
	Format   string  `json:"format"`
	Filename string  `json:"filename,omitempty"`
	Duration float64 `json:"duration"`
	Size     int     `json:"size"`
	// Degraded marks a sample submitted in its original encoding because it
	// could not be converted to the canonical waveform container.
	Degraded bool `json:"degraded,omitempty"`
}

// NewAudioSample builds a sample and fills Size from the payload.
func NewAudioSample(data []byte, format string, duration float64) AudioSample {
	return AudioSample{
		Data:     data,
		Format:   format,
		Duration: duration,
		Size:     len(data),
	}
}

// HasDuration reports whether the sample duration has been resolved.
func (s AudioSample) HasDuration() bool {
	return s.Duration > 0
}

// TextStats summarises a text body.
type TextStats struct {
	Characters       int `json:"characters"`
	Words            int `json:"words"`
	Sentences        int `json:"sentences"`
	EstimatedSeconds int `json:"estimated_seconds"`
}

// VoiceProfile is a backend-resolved cloned voice.
type VoiceProfile struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Language     string     `json:"language"`
	Description  string     `json:"description,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	QualityScore float64    `json:"quality_score"`
	BackendID    string     `json:"backend_id,omitempty"`
	SampleKeys   []string   `json:"sample_keys,omitempty"`
	UsageCount   int        `json:"usage_count"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	Favorite     bool       `json:"favorite"`

	Extra map[string]RawJSON `json:"-"`
}

// Preferences is the process-wide singleton of user defaults.
type Preferences struct {
	DefaultLanguage string   `json:"default_language"`
	DefaultRate     float64  `json:"default_rate"`
	DefaultPitch    float64  `json:"default_pitch"`
	AutoClean       bool     `json:"auto_clean"`
	DefaultVoice    string   `json:"default_voice,omitempty"`
	RecentVoices    []string `json:"recent_voices,omitempty"`

	Extra map[string]RawJSON `json:"-"`
}

// Default preference values.
const (
	DefaultLanguage = "vi"
	DefaultRate     = 1.0
	DefaultPitch    = 0.0
	MaxRecentVoices = 5
)

// DefaultPreferences returns the preferences created on first read.
func DefaultPreferences() Preferences {
	return Preferences{
		DefaultLanguage: DefaultLanguage,
		DefaultRate:     DefaultRate,
		DefaultPitch:    DefaultPitch,
		AutoClean:       true,
	}
}

// HistoryEntry is a lightweight record of a past synthesis request. It never
// carries the synthesized audio, only the optional object-store key.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Language  string    `json:"language"`
	VoiceRef  string    `json:"voice_ref,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	AudioKey  string    `json:"audio_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Stats     TextStats `json:"stats"`

	Extra map[string]RawJSON `json:"-"`
}
