package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) cleanText(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")

		return
	}

	processor := s.deps.Orchestrator.Processor()

	err := processor.Validate(req.Text)
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cleaned":      processor.Clean(req.Text),
		"has_markdown": processor.HasMarkdown(req.Text),
	})
}

func (s *Server) analyzeText(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")

		return
	}

	analysis, err := s.deps.Orchestrator.Analyze(req.Text)
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, analysis)
}
