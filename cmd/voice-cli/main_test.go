package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/synthesis"
	"github.com/book-expert/voice-studio/internal/wave"
)

const markdownInput = "# Hello\n\nThis is **bold** and a [link](http://x.com)."

func newTestCLI(t *testing.T, stdin string) (*cli, *bytes.Buffer) {
	t.Helper()

	log, err := logger.New(t.TempDir(), "voice-cli-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	var stdout bytes.Buffer

	return &cli{stdin: strings.NewReader(stdin), stdout: &stdout, log: log, client: &http.Client{}}, &stdout
}

func TestRun_Usage(t *testing.T) {
	t.Parallel()

	app, _ := newTestCLI(t, "")

	require.ErrorIs(t, app.run(context.Background(), nil), errUsage)
	require.ErrorIs(t, app.run(context.Background(), []string{"dance"}), errUsage)
}

func TestClean(t *testing.T) {
	t.Parallel()

	app, stdout := newTestCLI(t, "")

	require.NoError(t, app.run(context.Background(), []string{cmdClean, "-text", markdownInput}))
	assert.Equal(t, "Hello\nThis is bold and a link.\n", stdout.String())
}

func TestClean_InputErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "no input", args: []string{cmdClean}, wantErr: errNoInput},
		{name: "both inputs", args: []string{cmdClean, "-text", "a", "-file", "b.txt"}, wantErr: errBothInputs},
		{name: "empty text", args: []string{cmdClean, "-text", "   "}, wantErr: core.ErrEmptyText},
		{name: "too long", args: []string{cmdClean, "-text", "abcdef", "-max-length", "3"}, wantErr: core.ErrTooLong},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			app, _ := newTestCLI(t, "")
			require.ErrorIs(t, app.run(context.Background(), testCase.args), testCase.wantErr)
		})
	}
}

func TestAnalyze_FromStdin(t *testing.T) {
	t.Parallel()

	app, stdout := newTestCLI(t, markdownInput)

	require.NoError(t, app.run(context.Background(), []string{cmdAnalyze, "-file", "-"}))

	var analysis synthesis.Analysis

	require.NoError(t, json.Unmarshal(stdout.Bytes(), &analysis))
	assert.Equal(t, "Hello\nThis is bold and a link.", analysis.Cleaned)
	assert.Equal(t, "en", analysis.Language)
	assert.True(t, analysis.HasMarkdown)
}

func TestChunk(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("One two three. Four five six. Seven eight nine."), 0o600))

	app, stdout := newTestCLI(t, "")

	require.NoError(t, app.run(context.Background(), []string{cmdChunk, "-file", path, "-limit", "20"}))

	var chunks []string

	require.NoError(t, json.Unmarshal(stdout.Bytes(), &chunks))
	assert.Equal(t, []string{"One two three.", "Four five six.", "Seven eight nine."}, chunks)
}

func TestConvert(t *testing.T) {
	t.Parallel()

	const rate = 8000

	samples := make([]float32, rate)
	for i := range samples {
		samples[i] = float32(0.2 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}

	wav, err := wave.Encode(wave.Buffer{SampleRate: rate, Channels: [][]float32{samples}})
	require.NoError(t, err)

	dir := t.TempDir()
	input := filepath.Join(dir, "take.wav")
	output := filepath.Join(dir, "canonical.wav")
	require.NoError(t, os.WriteFile(input, wav, 0o600))

	app, stdout := newTestCLI(t, "")

	require.NoError(t, app.run(context.Background(), []string{cmdConvert, "-file", input, "-output", output}))
	assert.Contains(t, stdout.String(), "1.00 s")

	converted, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.True(t, wave.IsCanonical(converted))

	require.ErrorIs(t, app.run(context.Background(), []string{cmdConvert, "-file", input}), errNoOutput)

	garbage := filepath.Join(dir, "notes.webm")
	require.NoError(t, os.WriteFile(garbage, []byte("not audio"), 0o600))
	require.ErrorIs(t, app.run(context.Background(), []string{cmdConvert, "-file", garbage, "-output", output}), core.ErrDecode)
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	var received synthesis.Request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tts/synthesize", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &received))

		if received.Text == "fail" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"provider cloned: quota","code":"quota_exceeded"}`))

			return
		}

		w.Header().Set("Content-Type", core.FormatMPEG)
		w.Header().Set("X-Provider", "cloud-neural")
		w.Header().Set("X-Language", "fr")
		w.Header().Set("X-Chunks", "1")
		_, _ = w.Write([]byte("mp3 bytes"))
	}))
	t.Cleanup(server.Close)

	output := filepath.Join(t.TempDir(), "out.mp3")
	app, stdout := newTestCLI(t, "")

	err := app.run(context.Background(), []string{
		cmdSynthesize, "-server", server.URL, "-text", "Bonjour", "-language", "fr",
		"-rate", "1.5", "-output", output,
	})
	require.NoError(t, err)

	audio, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "mp3 bytes", string(audio))
	assert.Contains(t, stdout.String(), "cloud-neural")

	assert.Equal(t, "Bonjour", received.Text)
	assert.Equal(t, "fr", received.Language)
	require.NotNil(t, received.Settings.Rate)
	assert.InDelta(t, 1.5, *received.Settings.Rate, 1e-9)
	assert.Nil(t, received.Settings.Pitch)

	err = app.run(context.Background(), []string{cmdSynthesize, "-server", server.URL, "-text", "fail", "-output", output})
	require.ErrorIs(t, err, errServerError)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "quota")
}

func TestHealth(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","backends":[]}`))
	}))
	t.Cleanup(server.Close)

	app, stdout := newTestCLI(t, "")

	require.NoError(t, app.run(context.Background(), []string{cmdHealth, "-server", server.URL}))
	assert.Contains(t, stdout.String(), `"status": "healthy"`)
}
