// Package provider implements the speech synthesis and voice cloning
// backends behind core.Synthesizer and core.Cloner.
package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerAPIKey      = "xi-api-key"
	contentTypeJSON   = "application/json"
)

// Backend names reported in errors and history.
const (
	NameCloudNeural = "cloud-neural"
	NameEdgeTTS     = "edge-tts"
	NameCloned      = "cloned"
	NameCloning     = "cloning"
)

// DefaultTimeout applies when a client is built with a zero timeout.
const DefaultTimeout = 60 * time.Second

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 4096

const (
	errFmtMarshalRequest = "failed to marshal request: %w"
	errFmtCreateRequest  = "failed to create request: %w"
	errFmtSendRequest    = "failed to send request to %s: %w"
	errFmtReadAudio      = "failed to read audio data: %w"
	errFmtUnexpectedType = "unexpected content type: expected audio, got %q"
	errFmtWrongParams    = "%w: %s expects %T parameters, got %T"
)

// ErrWrongParams is returned when a call carries parameters for another provider.
var ErrWrongParams = errors.New("wrong parameter set for provider")

// errorResponse covers the structured error bodies the backends return.
// Detail is either a plain message or an object with status and message.
type errorResponse struct {
	Detail    json.RawMessage `json:"detail"`
	ErrorCode string          `json:"error_code,omitempty"`
	Message   string          `json:"message,omitempty"`
}

type errorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{Timeout: timeout}
}

// parseJSON parses JSON data into the target.
func parseJSON(data []byte, target any) error {
	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

// parseErrorResponse turns a non-OK response into a *core.ProviderError. A
// structured body supplies the message and code; otherwise the raw body is
// kept as the message.
func parseErrorResponse(provider string, resp *http.Response) *core.ProviderError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	providerErr := &core.ProviderError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}

	var errorResp errorResponse
	if parseJSON(body, &errorResp) == nil {
		message, status := errorResp.describe()
		if message != "" {
			providerErr.Message = message
		}

		providerErr.Code = classify(resp.StatusCode, firstNonEmpty(errorResp.ErrorCode, status))
	} else {
		providerErr.Code = classify(resp.StatusCode, "")
	}

	if providerErr.Message == "" {
		providerErr.Message = resp.Status
	}

	return providerErr
}

func (e errorResponse) describe() (string, string) {
	detail := bytes.TrimSpace(e.Detail)

	if len(detail) > 0 && detail[0] == '{' {
		var nested errorDetail
		if parseJSON(detail, &nested) == nil {
			return firstNonEmpty(nested.Message, e.Message), nested.Status
		}
	}

	var text string
	if len(detail) > 0 && parseJSON(detail, &text) == nil {
		return firstNonEmpty(text, e.Message), ""
	}

	return e.Message, ""
}

// classify maps a status code and backend status string onto the error codes
// callers act on. Unmapped failures carry the backend status verbatim.
func classify(statusCode int, status string) string {
	lowered := strings.ToLower(status)

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden,
		strings.Contains(lowered, "unauthorized"), strings.Contains(lowered, "invalid_api_key"):
		return core.ProviderCodeUnauthorized
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusPaymentRequired,
		strings.Contains(lowered, "quota"):
		return core.ProviderCodeQuotaExceeded
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity,
		strings.Contains(lowered, "invalid"):
		return core.ProviderCodeValidation
	default:
		return status
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

// transportError wraps a failure to reach the backend at all.
func transportError(provider, baseURL string, err error) *core.ProviderError {
	return &core.ProviderError{
		Provider: provider,
		Message:  fmt.Errorf(errFmtSendRequest, baseURL, err).Error(),
	}
}

// readAudio validates and reads an audio response body.
func readAudio(provider string, resp *http.Response) (*core.SynthesisOutput, error) {
	contentType := resp.Header.Get(headerContentType)
	if !strings.HasPrefix(contentType, "audio/") {
		return nil, &core.ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf(errFmtUnexpectedType, contentType),
		}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf(errFmtReadAudio, err)
	}

	if len(audio) == 0 {
		return nil, &core.ProviderError{Provider: provider, StatusCode: resp.StatusCode, Message: "received empty audio data"}
	}

	mediaType, _, _ := strings.Cut(contentType, ";")

	return &core.SynthesisOutput{Audio: audio, Format: strings.TrimSpace(mediaType)}, nil
}
