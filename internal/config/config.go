// Package config provides the configuration structure for voice-studio.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreNATS   = "nats"
	StoreMemory = "memory"
)

// Cloud neural modes.
const (
	ModeHTTP    = "http"
	ModeEdgeTTS = "edge-tts"
)

// Defaults applied after load.
const (
	DefaultAddress          = ":8080"
	DefaultNATSURL          = "nats://127.0.0.1:4222"
	DefaultKVBucket         = "voice_studio"
	DefaultObjectBucket     = "voice_studio_audio"
	DefaultJobSubject       = "voice.synthesis.requested"
	DefaultCompletedSubject = "voice.synthesis.completed"
	DefaultStoreDir         = "data"
	DefaultQuotaBytes       = 5 << 20
	DefaultTimeoutSeconds   = 60
	DefaultCloudChunkChars  = 3000
	DefaultClonedChunkChars = 2500
	DefaultMaxLength        = 5000
	DefaultFallback         = "vi"
	DefaultMinSeconds       = 5
	DefaultWorkers          = 2
	DefaultLogsDir          = "logs"
)

var (
	// ErrUnknownStore indicates an unsupported store backend.
	ErrUnknownStore = errors.New("unknown store backend")
	// ErrUnknownMode indicates an unsupported cloud neural mode.
	ErrUnknownMode = errors.New("unknown cloud neural mode")
	// ErrMissingBaseURL indicates an HTTP backend without a base URL.
	ErrMissingBaseURL = errors.New("base_url is required")
)

var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address string `toml:"address"`
}

// NATSConfig holds the configuration for NATS. The worker runs only when
// Enabled is set.
type NATSConfig struct {
	Enabled          bool   `toml:"enabled"`
	URL              string `toml:"url"`
	KVBucket         string `toml:"kv_bucket"`
	ObjectBucket     string `toml:"object_bucket"`
	JobSubject       string `toml:"job_subject"`
	CompletedSubject string `toml:"completed_subject"`
}

// StoreConfig selects and sizes the persistent store backend.
type StoreConfig struct {
	Backend    string `toml:"backend"`
	Dir        string `toml:"dir"`
	QuotaBytes int64  `toml:"quota_bytes"`
}

// CloudNeuralConfig configures the stock voice backend.
type CloudNeuralConfig struct {
	Mode           string            `toml:"mode"`
	BaseURL        string            `toml:"base_url"`
	Binary         string            `toml:"binary"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	MaxChunkChars  int               `toml:"max_chunk_chars"`
	DefaultVoices  map[string]string `toml:"default_voices"`
}

// ClonedConfig configures the cloned voice backend.
type ClonedConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxChunkChars  int    `toml:"max_chunk_chars"`
}

// CloningConfig configures the voice cloning backend.
type CloningConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ProvidersConfig groups the backends.
type ProvidersConfig struct {
	CloudNeural CloudNeuralConfig `toml:"cloud_neural"`
	Cloned      ClonedConfig      `toml:"cloned"`
	Cloning     CloningConfig     `toml:"cloning"`
}

// TextConfig tunes text preparation.
type TextConfig struct {
	MaxLength        int    `toml:"max_length"`
	FallbackLanguage string `toml:"fallback_language"`
	ExpandForSpeech  bool   `toml:"expand_for_speech"`
}

// RecordingConfig tunes capture sessions.
type RecordingConfig struct {
	MinSeconds    int  `toml:"min_seconds"`
	AllowDegraded bool `toml:"allow_degraded"`
}

// SynthesisConfig tunes the orchestrator.
type SynthesisConfig struct {
	Workers    int  `toml:"workers"`
	StoreAudio bool `toml:"store_audio"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	NATS      NATSConfig      `toml:"nats"`
	Store     StoreConfig     `toml:"store"`
	Providers ProvidersConfig `toml:"providers"`
	Text      TextConfig      `toml:"text"`
	Recording RecordingConfig `toml:"recording"`
	Synthesis SynthesisConfig `toml:"synthesis"`
	Paths     PathsConfig     `toml:"paths"`
}

// LoadEnv loads a .env file into the environment. A missing file is not an
// error; variables already set are kept.
func LoadEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	return nil
}

// Load loads the configuration through configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile loads the configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes TOML, resolves ${VAR} references in API keys, applies
// defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.Providers.Cloned.APIKey = ResolveEnv(cfg.Providers.Cloned.APIKey)
	cfg.Providers.Cloning.APIKey = ResolveEnv(cfg.Providers.Cloning.APIKey)
	cfg.Providers.CloudNeural.BaseURL = ResolveEnv(cfg.Providers.CloudNeural.BaseURL)
	cfg.Providers.Cloned.BaseURL = ResolveEnv(cfg.Providers.Cloned.BaseURL)
	cfg.Providers.Cloning.BaseURL = ResolveEnv(cfg.Providers.Cloning.BaseURL)

	cfg.applyDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ResolveEnv replaces ${VAR} references with environment values. Unset
// variables resolve to the empty string.
func ResolveEnv(value string) string {
	return envReference.ReplaceAllStringFunc(value, func(reference string) string {
		return os.Getenv(envReference.FindStringSubmatch(reference)[1])
	})
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Address, DefaultAddress)
	setDefault(&c.NATS.URL, DefaultNATSURL)
	setDefault(&c.NATS.KVBucket, DefaultKVBucket)
	setDefault(&c.NATS.ObjectBucket, DefaultObjectBucket)
	setDefault(&c.NATS.JobSubject, DefaultJobSubject)
	setDefault(&c.NATS.CompletedSubject, DefaultCompletedSubject)
	setDefault(&c.Store.Backend, StoreFile)
	setDefault(&c.Store.Dir, DefaultStoreDir)
	setPositive(&c.Store.QuotaBytes, DefaultQuotaBytes)

	cloud := &c.Providers.CloudNeural
	setDefault(&cloud.Mode, ModeHTTP)
	setPositive(&cloud.TimeoutSeconds, DefaultTimeoutSeconds)
	setPositive(&cloud.MaxChunkChars, DefaultCloudChunkChars)

	setPositive(&c.Providers.Cloned.TimeoutSeconds, DefaultTimeoutSeconds)
	setPositive(&c.Providers.Cloned.MaxChunkChars, DefaultClonedChunkChars)
	setPositive(&c.Providers.Cloning.TimeoutSeconds, DefaultTimeoutSeconds)

	setPositive(&c.Text.MaxLength, DefaultMaxLength)
	setDefault(&c.Text.FallbackLanguage, DefaultFallback)
	setPositive(&c.Recording.MinSeconds, DefaultMinSeconds)
	setPositive(&c.Synthesis.Workers, DefaultWorkers)
	setDefault(&c.Paths.BaseLogsDir, DefaultLogsDir)
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreFile, StoreNATS, StoreMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.Store.Backend)
	}

	switch c.Providers.CloudNeural.Mode {
	case ModeHTTP:
		if c.Providers.CloudNeural.BaseURL == "" {
			return fmt.Errorf("providers.cloud_neural: %w", ErrMissingBaseURL)
		}
	case ModeEdgeTTS:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.Providers.CloudNeural.Mode)
	}

	return nil
}

// Timeout converts a seconds setting to a duration.
func Timeout(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setPositive[T int | int64](field *T, value T) {
	if *field <= 0 {
		*field = value
	}
}
