package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/store"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Provider string `json:"provider,omitempty"`
}

var sentinelStatus = []struct {
	err    error
	status int
	code   string
}{
	{core.ErrEmptyText, http.StatusBadRequest, "empty_text"},
	{core.ErrUnsafeContent, http.StatusBadRequest, "unsafe_content"},
	{core.ErrValidation, http.StatusBadRequest, "validation"},
	{core.ErrTooShort, http.StatusBadRequest, "too_short"},
	{store.ErrInvalidSnapshot, http.StatusBadRequest, "invalid_snapshot"},
	{core.ErrTooLong, http.StatusRequestEntityTooLarge, "too_long"},
	{core.ErrNotFound, http.StatusNotFound, "not_found"},
	{core.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{core.ErrDecode, http.StatusUnprocessableEntity, "decode"},
	{core.ErrEncoding, http.StatusUnprocessableEntity, "encoding"},
	{core.ErrDeviceUnavailable, http.StatusServiceUnavailable, "device_unavailable"},
	{core.ErrQuotaExceeded, http.StatusInsufficientStorage, "quota_exceeded"},
}

// classify maps an error onto a status code and body.
func classify(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}

	var providerErr *core.ProviderError
	if errors.As(err, &providerErr) {
		body.Code = providerErr.Code
		body.Provider = providerErr.Provider

		return http.StatusBadGateway, body
	}

	for _, entry := range sentinelStatus {
		if errors.Is(err, entry.err) {
			body.Code = entry.code

			return entry.status, body
		}
	}

	return http.StatusInternalServerError, body
}

func (s *Server) fail(c *gin.Context, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}

	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: message, Code: "bad_request"})
}
