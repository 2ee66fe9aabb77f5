// Package config_test tests the configuration loading for voice-studio.
package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-studio/internal/config"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tomlData := `
[server]
address = "127.0.0.1:9000"

[nats]
enabled = true
url = "nats://nats:4222"
kv_bucket = "studio"
object_bucket = "studio_audio"
job_subject = "jobs.synthesis"

[store]
backend = "nats"
quota_bytes = 1048576

[providers.cloud_neural]
mode = "edge-tts"
binary = "/usr/local/bin/edge-tts"
max_chunk_chars = 1200

[providers.cloud_neural.default_voices]
vi = "vi-VN-NamMinhNeural"

[providers.cloned]
base_url = "https://cloned.example"
api_key = "literal-key"
timeout_seconds = 90

[text]
max_length = 8000
fallback_language = "en"
expand_for_speech = true

[recording]
min_seconds = 3
allow_degraded = true

[synthesis]
workers = 4
store_audio = true

[paths]
base_logs_dir = "/var/log/voice-studio"
`

	cfg, err := config.Parse([]byte(tomlData))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)
	assert.Equal(t, "studio", cfg.NATS.KVBucket)
	assert.Equal(t, "studio_audio", cfg.NATS.ObjectBucket)
	assert.Equal(t, "jobs.synthesis", cfg.NATS.JobSubject)
	assert.Equal(t, config.DefaultCompletedSubject, cfg.NATS.CompletedSubject)
	assert.Equal(t, config.StoreNATS, cfg.Store.Backend)
	assert.Equal(t, int64(1048576), cfg.Store.QuotaBytes)

	cloud := cfg.Providers.CloudNeural
	assert.Equal(t, config.ModeEdgeTTS, cloud.Mode)
	assert.Equal(t, "/usr/local/bin/edge-tts", cloud.Binary)
	assert.Equal(t, 1200, cloud.MaxChunkChars)
	assert.Equal(t, config.DefaultTimeoutSeconds, cloud.TimeoutSeconds)
	assert.Equal(t, map[string]string{"vi": "vi-VN-NamMinhNeural"}, cloud.DefaultVoices)

	assert.Equal(t, "literal-key", cfg.Providers.Cloned.APIKey)
	assert.Equal(t, 90, cfg.Providers.Cloned.TimeoutSeconds)
	assert.Equal(t, config.DefaultClonedChunkChars, cfg.Providers.Cloned.MaxChunkChars)

	assert.Equal(t, 8000, cfg.Text.MaxLength)
	assert.Equal(t, "en", cfg.Text.FallbackLanguage)
	assert.True(t, cfg.Text.ExpandForSpeech)
	assert.Equal(t, 3, cfg.Recording.MinSeconds)
	assert.True(t, cfg.Recording.AllowDegraded)
	assert.Equal(t, 4, cfg.Synthesis.Workers)
	assert.True(t, cfg.Synthesis.StoreAudio)
	assert.Equal(t, "/var/log/voice-studio", cfg.Paths.BaseLogsDir)
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte(`
[providers.cloud_neural]
base_url = "http://localhost:5050"
`))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultAddress, cfg.Server.Address)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, config.DefaultNATSURL, cfg.NATS.URL)
	assert.Equal(t, config.DefaultJobSubject, cfg.NATS.JobSubject)
	assert.Equal(t, config.StoreFile, cfg.Store.Backend)
	assert.Equal(t, config.DefaultStoreDir, cfg.Store.Dir)
	assert.Equal(t, int64(config.DefaultQuotaBytes), cfg.Store.QuotaBytes)
	assert.Equal(t, config.ModeHTTP, cfg.Providers.CloudNeural.Mode)
	assert.Equal(t, config.DefaultCloudChunkChars, cfg.Providers.CloudNeural.MaxChunkChars)
	assert.Equal(t, config.DefaultTimeoutSeconds, cfg.Providers.Cloning.TimeoutSeconds)
	assert.Equal(t, config.DefaultMaxLength, cfg.Text.MaxLength)
	assert.Equal(t, config.DefaultFallback, cfg.Text.FallbackLanguage)
	assert.Equal(t, config.DefaultMinSeconds, cfg.Recording.MinSeconds)
	assert.Equal(t, config.DefaultWorkers, cfg.Synthesis.Workers)
	assert.Equal(t, config.DefaultLogsDir, cfg.Paths.BaseLogsDir)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		data    string
		wantErr error
	}{
		{
			name:    "unknown store",
			data:    "[store]\nbackend = \"redis\"\n[providers.cloud_neural]\nmode = \"edge-tts\"\n",
			wantErr: config.ErrUnknownStore,
		},
		{
			name:    "unknown mode",
			data:    "[providers.cloud_neural]\nmode = \"grpc\"\n",
			wantErr: config.ErrUnknownMode,
		},
		{
			name:    "http without base url",
			data:    "[providers.cloud_neural]\nmode = \"http\"\n",
			wantErr: config.ErrMissingBaseURL,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Parse([]byte(testCase.data))
			require.ErrorIs(t, err, testCase.wantErr)
		})
	}

	_, err := config.Parse([]byte("[server\naddress ="))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voice-studio.toml")
	require.NoError(t, os.WriteFile(path, []byte("[providers.cloud_neural]\nmode = \"edge-tts\"\n"), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.ModeEdgeTTS, cfg.Providers.CloudNeural.Mode)

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

//nolint:paralleltest // mutates the process environment
func TestEnvResolution(t *testing.T) {
	t.Setenv("VOICE_STUDIO_TEST_CLONED_KEY", "secret-from-env")

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("VOICE_STUDIO_TEST_CLONING_KEY=cloning-secret\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("VOICE_STUDIO_TEST_CLONING_KEY") })

	require.NoError(t, config.LoadEnv(envPath))
	require.NoError(t, config.LoadEnv(filepath.Join(dir, "absent.env")))

	cfg, err := config.Parse([]byte(`
[providers.cloud_neural]
mode = "edge-tts"

[providers.cloned]
api_key = "${VOICE_STUDIO_TEST_CLONED_KEY}"

[providers.cloning]
api_key = "${VOICE_STUDIO_TEST_CLONING_KEY}"
base_url = "https://clone.example/${VOICE_STUDIO_TEST_UNSET}"
`))
	require.NoError(t, err)

	assert.Equal(t, "secret-from-env", cfg.Providers.Cloned.APIKey)
	assert.Equal(t, "cloning-secret", cfg.Providers.Cloning.APIKey)
	assert.Equal(t, "https://clone.example/", cfg.Providers.Cloning.BaseURL)
	assert.Equal(t, "plain", config.ResolveEnv("plain"))
}
