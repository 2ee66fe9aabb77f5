// Package api exposes the studio over HTTP: a gin REST surface for text,
// synthesis, voices and the persistent store, and a websocket endpoint that
// streams microphone capture into a recording session.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/gin-gonic/gin"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/provider"
	"github.com/book-expert/voice-studio/internal/recording"
	"github.com/book-expert/voice-studio/internal/store"
	"github.com/book-expert/voice-studio/internal/synthesis"
)

const (
	// DefaultMaxUploadBytes bounds a multipart upload.
	DefaultMaxUploadBytes = 6 * synthesis.MaxSampleBytes
	shutdownTimeout       = 10 * time.Second
	readHeaderTimeout     = 10 * time.Second
)

// HealthChecker is a backend that can report whether it is reachable.
type HealthChecker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// Dependencies are the collaborators of a Server. Objects may be nil.
type Dependencies struct {
	Orchestrator *synthesis.Orchestrator
	Store        *store.Store
	Objects      core.ObjectStore
	Voices       *provider.VoiceCatalog
	Health       []HealthChecker
}

// Config tunes the server.
type Config struct {
	Address        string
	MaxUploadBytes int64
	// Recording is the template for capture sessions. Source is taken from
	// the socket query when the client sends one.
	Recording recording.Config
}

// Server is the HTTP front of the studio.
type Server struct {
	deps   Dependencies
	cfg    Config
	log    *logger.Logger
	router *gin.Engine
}

// NewServer builds the router.
func NewServer(deps Dependencies, cfg Config, log *logger.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	s := &Server{deps: deps, cfg: cfg, log: log}
	s.router = s.routes()

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.MaxMultipartMemory = s.cfg.MaxUploadBytes

	router.GET("/health", s.health)

	v1 := router.Group("/api/v1")

	text := v1.Group("/text")
	text.POST("/clean", s.cleanText)
	text.POST("/analyze", s.analyzeText)

	tts := v1.Group("/tts")
	tts.POST("/synthesize", s.synthesize)
	tts.GET("/audio/:id", s.audio)
	tts.GET("/voices", s.voices)

	voices := v1.Group("/voices")
	voices.POST("/upload-sample", s.uploadSample)
	voices.POST("/clone", s.cloneVoice)
	voices.GET("/profiles", s.profiles)
	voices.GET("/profiles/:id", s.profile)
	voices.DELETE("/profiles/:id", s.deleteProfile)
	voices.POST("/profiles/:id/favorite", s.toggleFavorite)
	voices.GET("/profiles/:id/samples/:index", s.profileSample)
	voices.GET("/favorites", s.favorites)

	v1.POST("/audio/convert", s.convertAudio)
	v1.GET("/recording/ws", s.capture)

	v1.GET("/preferences", s.preferences)
	v1.PUT("/preferences", s.savePreferences)
	v1.GET("/history", s.history)
	v1.DELETE("/history", s.clearHistory)

	storage := v1.Group("/storage")
	storage.GET("/export", s.exportStore)
	storage.POST("/import", s.importStore)
	storage.GET("/stats", s.storeStats)

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.log.Info("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errChan := make(chan error, 1)

	go func() {
		s.log.System("HTTP API listening on %s", s.cfg.Address)
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}

	err = <-errChan
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server stopped: %w", err)
	}

	return nil
}

type healthStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Server) health(c *gin.Context) {
	statuses := make([]healthStatus, 0, len(s.deps.Health))
	healthy := true

	for _, checker := range s.deps.Health {
		status := healthStatus{Name: checker.Name(), OK: true}

		err := checker.HealthCheck(c.Request.Context())
		if err != nil {
			status.OK = false
			status.Error = err.Error()
			healthy = false
		}

		statuses = append(statuses, status)
	}

	code := http.StatusOK
	state := "healthy"

	if !healthy {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}

	c.JSON(code, gin.H{"status": state, "backends": statuses})
}
