package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/provider"
	"github.com/book-expert/voice-studio/internal/voice"
)

const (
	testAPIKey    = "test-key"
	testAudioData = "fake-mp3-data"
	testTimeout   = 5 * time.Second
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "provider-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func cloudParams(t *testing.T, settings voice.Settings) voice.CloudNeuralParams {
	t.Helper()

	params, err := voice.Normalize(voice.ProviderCloudNeural, "vi", settings)
	require.NoError(t, err)

	return *params.CloudNeural
}

func clonedParams(t *testing.T, language string) voice.ClonedParams {
	t.Helper()

	params, err := voice.Normalize(voice.ProviderCloned, language, voice.Settings{})
	require.NoError(t, err)

	return *params.Cloned
}

func sendAudio(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "audio/mpeg")
	_, _ = w.Write([]byte(testAudioData))
}

func TestCloudNeuralClient_Synthesize(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/speech", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{
			"text":     "Xin chào",
			"voice":    "vi-VN-HoaiMyNeural",
			"language": "vi",
			"rate":     "+50%",
			"pitch":    "-5Hz",
		}, body)

		sendAudio(w)
	}))
	defer server.Close()

	client := provider.NewCloudNeuralClient(server.URL+"/", testTimeout)
	assert.Equal(t, provider.NameCloudNeural, client.Name())

	out, err := client.Synthesize(context.Background(), core.SynthesisCall{
		Text:     "Xin chào",
		Language: "vi",
		Voice:    "vi-VN-HoaiMyNeural",
		Params:   cloudParams(t, voice.Settings{Rate: voice.Float(1.5), Pitch: voice.Float(-5)}),
	})
	require.NoError(t, err)
	assert.Equal(t, testAudioData, string(out.Audio))
	assert.Equal(t, core.FormatMPEG, out.Format)
}

func TestCloudNeuralClient_RejectsWrongParams(t *testing.T) {
	t.Parallel()

	client := provider.NewCloudNeuralClient("http://127.0.0.1:1", testTimeout)

	_, err := client.Synthesize(context.Background(), core.SynthesisCall{
		Text:   "hello",
		Params: clonedParams(t, "en"),
	})
	require.ErrorIs(t, err, provider.ErrWrongParams)
}

func TestCloudNeuralClient_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantMessage string
		wantCode    string
	}{
		{
			name:        "structured detail",
			status:      http.StatusBadRequest,
			contentType: "application/json",
			body:        `{"detail": "voice not found", "error_code": "VOICE_NOT_FOUND"}`,
			wantMessage: "voice not found",
			wantCode:    core.ProviderCodeValidation,
		},
		{
			name:        "plain text",
			status:      http.StatusInternalServerError,
			contentType: "text/plain",
			body:        "engine crashed",
			wantMessage: "engine crashed",
			wantCode:    "",
		},
		{
			name:        "rate limited",
			status:      http.StatusTooManyRequests,
			contentType: "application/json",
			body:        `{"message": "slow down"}`,
			wantMessage: "slow down",
			wantCode:    core.ProviderCodeQuotaExceeded,
		},
		{
			name:        "not audio",
			status:      http.StatusOK,
			contentType: "text/html",
			body:        "<html></html>",
			wantMessage: `unexpected content type: expected audio, got "text/html"`,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", testCase.contentType)
				w.WriteHeader(testCase.status)
				_, _ = w.Write([]byte(testCase.body))
			}))
			defer server.Close()

			client := provider.NewCloudNeuralClient(server.URL, testTimeout)

			_, err := client.Synthesize(context.Background(), core.SynthesisCall{
				Text:   "hello",
				Params: cloudParams(t, voice.Settings{}),
			})

			var providerErr *core.ProviderError
			require.ErrorAs(t, err, &providerErr)
			assert.Equal(t, provider.NameCloudNeural, providerErr.Provider)
			assert.Equal(t, testCase.wantMessage, providerErr.Message)
			assert.Equal(t, testCase.wantCode, providerErr.Code)
			assert.Equal(t, testCase.status, providerErr.StatusCode)
		})
	}
}

func TestCloudNeuralClient_Unreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client := provider.NewCloudNeuralClient(baseURL, testTimeout)

	_, err := client.Synthesize(context.Background(), core.SynthesisCall{
		Text:   "hello",
		Params: cloudParams(t, voice.Settings{}),
	})

	var providerErr *core.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Contains(t, providerErr.Message, baseURL)

	require.Error(t, client.HealthCheck(context.Background()))
}

func TestCloudNeuralClient_HealthCheck(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, provider.NewCloudNeuralClient(server.URL, testTimeout).HealthCheck(context.Background()))
}

func TestClonedClient_Synthesize(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice-123", r.URL.Path)
		assert.Equal(t, testAPIKey, r.Header.Get("xi-api-key"))

		var body struct {
			Text          string         `json:"text"`
			ModelID       string         `json:"model_id"`
			LanguageCode  string         `json:"language_code"`
			VoiceSettings map[string]any `json:"voice_settings"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Bonjour", body.Text)
		assert.Equal(t, voice.ModelMultilingual, body.ModelID)
		assert.Equal(t, "fr", body.LanguageCode)
		assert.InDelta(t, 0.4, body.VoiceSettings["stability"], 1e-9)
		assert.InDelta(t, 0.75, body.VoiceSettings["similarity_boost"], 1e-9)
		assert.InDelta(t, 0.45, body.VoiceSettings["style"], 1e-9)
		assert.Equal(t, true, body.VoiceSettings["use_speaker_boost"])
		assert.NotContains(t, body.VoiceSettings, "rate")

		sendAudio(w)
	}))
	defer server.Close()

	client := provider.NewClonedClient(server.URL, testAPIKey, testTimeout)

	out, err := client.Synthesize(context.Background(), core.SynthesisCall{
		Text:     "Bonjour",
		Language: "fr",
		Voice:    "voice-123",
		Params:   clonedParams(t, "fr"),
	})
	require.NoError(t, err)
	assert.Equal(t, testAudioData, string(out.Audio))
}

func TestClonedClient_Validation(t *testing.T) {
	t.Parallel()

	client := provider.NewClonedClient("http://127.0.0.1:1", testAPIKey, testTimeout)

	_, err := client.Synthesize(context.Background(), core.SynthesisCall{Text: "hi", Params: clonedParams(t, "en")})
	require.ErrorIs(t, err, core.ErrValidation)

	_, err = client.Synthesize(context.Background(), core.SynthesisCall{Voice: "v", Params: clonedParams(t, "en")})
	require.ErrorIs(t, err, core.ErrEmptyText)

	_, err = client.Synthesize(context.Background(), core.SynthesisCall{Text: "hi", Voice: "v", Params: cloudParams(t, voice.Settings{})})
	require.ErrorIs(t, err, provider.ErrWrongParams)
}

func TestClonedClient_HealthCheckUnauthorized(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/user", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail": {"status": "invalid_api_key", "message": "Invalid API key"}}`))
	}))
	defer server.Close()

	err := provider.NewClonedClient(server.URL, "wrong", testTimeout).HealthCheck(context.Background())

	var providerErr *core.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "Invalid API key", providerErr.Message)
	assert.Equal(t, core.ProviderCodeUnauthorized, providerErr.Code)
}

func TestCloningClient_Clone(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/voices/add", r.URL.Path)
		assert.Equal(t, testAPIKey, r.Header.Get("xi-api-key"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "Mai", r.FormValue("name"))
		assert.Equal(t, "warm narrator", r.FormValue("description"))
		assert.JSONEq(t, `{"language": "vi"}`, r.FormValue("labels"))

		files := r.MultipartForm.File["files"]
		if assert.Len(t, files, 2) {
			assert.Equal(t, "recording.wav", files[0].Filename)
			assert.Equal(t, "audio/wav", files[0].Header.Get("Content-Type"))
			assert.Equal(t, "sample-2.mp3", files[1].Filename)

			file, err := files[1].Open()
			if assert.NoError(t, err) {
				data, _ := io.ReadAll(file)
				assert.Equal(t, "mp3-bytes", string(data))
				_ = file.Close()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"voice_id": "backend-42", "preview_url": "https://cdn.example/p.mp3"}`))
	}))
	defer server.Close()

	client := provider.NewCloningClient(server.URL, testAPIKey, testTimeout)

	out, err := client.Clone(context.Background(), core.CloneCall{
		Name:        "Mai",
		Description: "warm narrator",
		Language:    "vi",
		Samples: []core.AudioSample{
			{Data: []byte("wav-bytes"), Format: core.FormatWAV, Filename: "recording.wav", Duration: 6},
			{Data: []byte("mp3-bytes"), Format: core.FormatMPEG, Duration: 4},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "backend-42", out.BackendID)
	assert.Equal(t, "https://cdn.example/p.mp3", out.PreviewURL)
	assert.Equal(t, "Mai", out.Name)
}

func TestCloningClient_SampleCount(t *testing.T) {
	t.Parallel()

	client := provider.NewCloningClient("http://127.0.0.1:1", testAPIKey, testTimeout)

	_, err := client.Clone(context.Background(), core.CloneCall{Name: "none"})
	require.ErrorIs(t, err, core.ErrValidation)

	samples := make([]core.AudioSample, provider.MaxCloneSamples+1)
	_, err = client.Clone(context.Background(), core.CloneCall{Name: "many", Samples: samples})
	require.ErrorIs(t, err, core.ErrValidation)
}

func TestCloningClient_ErrorMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"detail": "bad key"}`, wantCode: core.ProviderCodeUnauthorized},
		{name: "quota by status", status: http.StatusBadRequest, body: `{"detail": {"status": "voice_limit_reached_quota", "message": "too many voices"}}`, wantCode: core.ProviderCodeQuotaExceeded},
		{name: "validation", status: http.StatusUnprocessableEntity, body: `{"detail": "sample too noisy"}`, wantCode: core.ProviderCodeValidation},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(testCase.status)
				_, _ = w.Write([]byte(testCase.body))
			}))
			defer server.Close()

			client := provider.NewCloningClient(server.URL, testAPIKey, testTimeout)

			_, err := client.Clone(context.Background(), core.CloneCall{
				Name:    "Mai",
				Samples: []core.AudioSample{{Data: []byte("x"), Format: core.FormatWAV, Duration: 5}},
			})

			var providerErr *core.ProviderError
			require.ErrorAs(t, err, &providerErr)
			assert.Equal(t, provider.NameCloning, providerErr.Provider)
			assert.Equal(t, testCase.wantCode, providerErr.Code)
		})
	}
}

// writeFakeEdgeTTS installs a script that writes its arguments to the
// --write-media path.
func writeFakeEdgeTTS(t *testing.T, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "edge-tts")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))

	return path
}

func TestEdgeTTS_Synthesize(t *testing.T) {
	t.Parallel()

	binary := writeFakeEdgeTTS(t, `#!/bin/sh
out=""
args=""
while [ $# -gt 0 ]; do
  case "$1" in
    --write-media) out="$2"; shift 2 ;;
    *) args="$args $1"; shift ;;
  esac
done
printf '%s' "$args" > "$out"
`)

	edge := provider.NewEdgeTTS(binary, newTestLogger(t))
	assert.Equal(t, provider.NameEdgeTTS, edge.Name())
	require.NoError(t, edge.HealthCheck(context.Background()))

	out, err := edge.Synthesize(context.Background(), core.SynthesisCall{
		Text:   "hello",
		Voice:  "en-US-AriaNeural",
		Params: cloudParams(t, voice.Settings{Rate: voice.Float(0.5), Pitch: voice.Float(3)}),
	})
	require.NoError(t, err)
	assert.Equal(t, core.FormatMPEG, out.Format)
	assert.Equal(t, " --text hello --voice en-US-AriaNeural --rate=-50% --pitch=+3Hz", string(out.Audio))
}

func TestEdgeTTS_Failure(t *testing.T) {
	t.Parallel()

	binary := writeFakeEdgeTTS(t, "#!/bin/sh\necho 'no network' >&2\nexit 3\n")

	_, err := provider.NewEdgeTTS(binary, newTestLogger(t)).Synthesize(context.Background(), core.SynthesisCall{
		Text:   "hello",
		Params: cloudParams(t, voice.Settings{}),
	})

	var providerErr *core.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Contains(t, providerErr.Message, "no network")
}

func TestEdgeTTS_MissingBinary(t *testing.T) {
	t.Parallel()

	edge := provider.NewEdgeTTS(filepath.Join(t.TempDir(), "missing-edge-tts"), newTestLogger(t))

	err := edge.HealthCheck(context.Background())
	require.ErrorIs(t, err, provider.ErrBinaryNotFound)

	_, err = edge.Synthesize(context.Background(), core.SynthesisCall{Text: "hi", Params: cloudParams(t, voice.Settings{})})
	require.True(t, errors.Is(err, provider.ErrBinaryNotFound))
}

func TestVoiceCatalog(t *testing.T) {
	t.Parallel()

	catalog := provider.NewVoiceCatalog(map[string]string{"fr": "fr-FR-HenriNeural", "en": ""})

	assert.Equal(t, "vi-VN-HoaiMyNeural", catalog.VoiceFor("vi"))
	assert.Equal(t, "fr-FR-HenriNeural", catalog.VoiceFor("fr"))
	assert.Equal(t, "en-US-AriaNeural", catalog.VoiceFor("en"))
	assert.Equal(t, "en-US-AriaNeural", catalog.VoiceFor("de"))

	voices := catalog.Voices()
	require.Len(t, voices, 3)
	assert.Equal(t, []string{"en", "fr", "vi"}, []string{voices[0].Language, voices[1].Language, voices[2].Language})
	assert.Equal(t, "fr-FR-HenriNeural", voices[1].ID)
}
