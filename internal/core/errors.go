package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every component. Callers match with errors.Is.
var (
	// ErrDeviceUnavailable indicates the capture device is missing or permission was denied.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	// ErrInvalidState indicates an operation that the current session state does not allow.
	ErrInvalidState = errors.New("invalid recording state")
	// ErrTooShort indicates a recording stopped before the minimum duration.
	ErrTooShort = errors.New("recording too short")
	// ErrEncoding indicates the waveform encoder could not produce a container.
	ErrEncoding = errors.New("waveform encoding failed")
	// ErrDecode indicates the source audio could not be decoded.
	ErrDecode = errors.New("audio decode failed")
	// ErrEmptyText indicates empty or whitespace-only text.
	ErrEmptyText = errors.New("text is empty")
	// ErrTooLong indicates text over the configured maximum length.
	ErrTooLong = errors.New("text too long")
	// ErrUnsafeContent indicates text carrying script-injection patterns.
	ErrUnsafeContent = errors.New("text contains unsafe content")
	// ErrQuotaExceeded indicates persistent storage is exhausted.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrValidation indicates an uploaded sample or request failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a missing profile or object.
	ErrNotFound = errors.New("not found")
)

// ProviderError is an opaque failure reported by a synthesis or cloning
// backend, tagged with the backend name.
type ProviderError struct {
	Provider   string
	Message    string
	StatusCode int
	Code       string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider %s: %s (code: %s)", e.Provider, e.Message, e.Code)
	}

	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// Provider error codes reported by cloning backends.
const (
	ProviderCodeUnauthorized  = "unauthorized"
	ProviderCodeQuotaExceeded = "quota_exceeded"
	ProviderCodeValidation    = "validation"
)

// NewValidationError wraps ErrValidation with a reason.
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
