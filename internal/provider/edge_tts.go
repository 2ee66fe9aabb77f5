package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/voice"
)

const defaultEdgeTTSBinary = "edge-tts"

// ErrBinaryNotFound is returned when the edge-tts executable cannot be located.
var ErrBinaryNotFound = errors.New("edge-tts binary not found")

// EdgeTTS serves stock neural voices through a local edge-tts executable.
type EdgeTTS struct {
	binary string
	log    *logger.Logger
}

// NewEdgeTTS creates a backend running binary. An empty binary is looked up
// on PATH.
func NewEdgeTTS(binary string, log *logger.Logger) *EdgeTTS {
	if binary == "" {
		binary = defaultEdgeTTSBinary
	}

	return &EdgeTTS{binary: binary, log: log}
}

// Name identifies the backend.
func (e *EdgeTTS) Name() string {
	return NameEdgeTTS
}

// Synthesize runs the binary once and returns the MP3 it writes.
func (e *EdgeTTS) Synthesize(ctx context.Context, call core.SynthesisCall) (*core.SynthesisOutput, error) {
	params, ok := call.Params.(voice.CloudNeuralParams)
	if !ok {
		return nil, fmt.Errorf(errFmtWrongParams, ErrWrongParams, NameEdgeTTS, voice.CloudNeuralParams{}, call.Params)
	}

	if call.Text == "" {
		return nil, core.ErrEmptyText
	}

	binPath, err := e.resolve()
	if err != nil {
		return nil, err
	}

	tempFile, err := os.CreateTemp("", "edge-tts-*.mp3")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for edge-tts output: %w", err)
	}

	_ = tempFile.Close()

	defer func() {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil && !os.IsNotExist(removeErr) {
			e.log.Warn("Failed to remove temp file '%s': %v", tempFile.Name(), removeErr)
		}
	}()

	// The "=" form keeps negative offsets from being parsed as flags.
	args := []string{
		"--text", call.Text,
		"--voice", call.Voice,
		"--rate=" + params.RatePercent(),
		"--pitch=" + params.PitchHertz(),
		"--write-media", tempFile.Name(),
	}

	// #nosec G204 -- the binary comes from configuration and arguments are passed without a shell
	cmd := exec.CommandContext(ctx, binPath, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, &core.ProviderError{
			Provider: NameEdgeTTS,
			Message:  fmt.Sprintf("edge-tts execution failed: %v: %s", err, strings.TrimSpace(string(output))),
		}
	}

	audio, err := os.ReadFile(tempFile.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data from temp file: %w", err)
	}

	if len(audio) == 0 {
		return nil, &core.ProviderError{Provider: NameEdgeTTS, Message: "edge-tts produced no audio"}
	}

	return &core.SynthesisOutput{Audio: audio, Format: core.FormatMPEG}, nil
}

// HealthCheck verifies that the binary can be found.
func (e *EdgeTTS) HealthCheck(context.Context) error {
	_, err := e.resolve()

	return err
}

func (e *EdgeTTS) resolve() (string, error) {
	path, err := exec.LookPath(e.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrBinaryNotFound, e.binary, err)
	}

	return path, nil
}
