package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/book-expert/voice-studio/internal/core"
)

const maxSnapshotBytes = 16 << 20

func (s *Server) preferences(c *gin.Context) {
	prefs, err := s.deps.Store.Preferences(c.Request.Context())
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, prefs)
}

func (s *Server) savePreferences(c *gin.Context) {
	var prefs core.Preferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		badRequest(c, "invalid preferences")

		return
	}

	err := s.deps.Store.SavePreferences(c.Request.Context(), prefs)
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, prefs)
}

func (s *Server) history(c *gin.Context) {
	history, err := s.deps.Store.History(c.Request.Context())
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, history)
}

func (s *Server) clearHistory(c *gin.Context) {
	err := s.deps.Store.ClearHistory(c.Request.Context())
	if err != nil {
		s.fail(c, err)

		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) exportStore(c *gin.Context) {
	snapshot, err := s.deps.Store.Export(c.Request.Context())
	if err != nil {
		s.fail(c, err)

		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="voice-studio-%s.json"`,
		snapshot.ExportedAt.Format("20060102-150405")))
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) importStore(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSnapshotBytes))
	if err != nil {
		badRequest(c, "failed to read snapshot")

		return
	}

	err = s.deps.Store.Import(c.Request.Context(), payload)
	if err != nil {
		s.fail(c, err)

		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) storeStats(c *gin.Context) {
	stats, err := s.deps.Store.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, stats)
}
