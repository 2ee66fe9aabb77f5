package api

import (
	"net/http"
	"path"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/provider"
	"github.com/book-expert/voice-studio/internal/synthesis"
)

// Response headers describing a synthesis.
const (
	HeaderProvider  = "X-Provider"
	HeaderBackend   = "X-Backend"
	HeaderLanguage  = "X-Language"
	HeaderVoice     = "X-Voice"
	HeaderChunks    = "X-Chunks"
	HeaderHistoryID = "X-History-Id"
	HeaderAudioKey  = "X-Audio-Key"
)

var audioID = regexp.MustCompile(`^[A-Za-z0-9-]+\.[a-z0-9]+$`)

func (s *Server) synthesize(c *gin.Context) {
	var req synthesis.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")

		return
	}

	result, err := s.deps.Orchestrator.Synthesize(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)

		return
	}

	c.Header(HeaderProvider, result.Provider)
	c.Header(HeaderBackend, result.Backend)
	c.Header(HeaderLanguage, result.Language)
	c.Header(HeaderVoice, result.Voice)
	c.Header(HeaderChunks, strconv.Itoa(result.Chunks))

	if result.HistoryID != "" {
		c.Header(HeaderHistoryID, result.HistoryID)
	}

	if result.AudioKey != "" {
		c.Header(HeaderAudioKey, result.AudioKey)
	}

	c.Data(http.StatusOK, result.Format, result.Audio)
}

func (s *Server) audio(c *gin.Context) {
	id := c.Param("id")
	if !audioID.MatchString(id) {
		badRequest(c, "invalid audio id")

		return
	}

	s.serveObject(c, "audio/"+id)
}

// serveObject streams a stored object with the content type implied by its
// extension.
func (s *Server) serveObject(c *gin.Context, key string) {
	if s.deps.Objects == nil {
		s.fail(c, core.ErrNotFound)

		return
	}

	data, err := s.deps.Objects.Download(c.Request.Context(), key)
	if err != nil {
		s.fail(c, err)

		return
	}

	contentType := synthesis.FormatFor(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Data(http.StatusOK, contentType, data)
}

func (s *Server) voices(c *gin.Context) {
	var stock []provider.Voice
	if s.deps.Voices != nil {
		stock = s.deps.Voices.Voices()
	}

	profiles, err := s.deps.Store.Profiles(c.Request.Context())
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"stock": stock, "cloned": profiles})
}
