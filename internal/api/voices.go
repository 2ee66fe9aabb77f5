package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/synthesis"
	"github.com/book-expert/voice-studio/internal/wave"
)

const (
	formFile        = "file"
	formFiles       = "files"
	formName        = "name"
	formDescription = "description"
	formLanguage    = "language"
)

type sampleReport struct {
	Filename     string  `json:"filename"`
	Format       string  `json:"format"`
	Size         int     `json:"size"`
	Duration     float64 `json:"duration"`
	QualityScore float64 `json:"quality_score"`
}

// readSample loads one uploaded file. The format comes from the part's
// content type, or from the extension when the client sent a generic one.
func readSample(header *multipart.FileHeader, limit int64) (core.AudioSample, error) {
	if header.Size > limit {
		return core.AudioSample{}, core.NewValidationError("%s: %d bytes exceeds the %d byte limit",
			header.Filename, header.Size, limit)
	}

	file, err := header.Open()
	if err != nil {
		return core.AudioSample{}, fmt.Errorf("failed to open upload %s: %w", header.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return core.AudioSample{}, fmt.Errorf("failed to read upload %s: %w", header.Filename, err)
	}

	format := wave.MediaType(header.Header.Get("Content-Type"))
	if format == "" || format == "application/octet-stream" {
		format = synthesis.FormatFor(filepath.Ext(header.Filename))
	}

	return core.AudioSample{Data: data, Format: format, Filename: header.Filename, Size: len(data)}, nil
}

func (s *Server) uploadSample(c *gin.Context) {
	header, err := c.FormFile(formFile)
	if err != nil {
		badRequest(c, "a sample file is required")

		return
	}

	sample, err := readSample(header, synthesis.MaxSampleBytes)
	if err != nil {
		s.fail(c, err)

		return
	}

	sample, err = synthesis.ValidateSample(sample)
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, sampleReport{
		Filename:     sample.Filename,
		Format:       sample.Format,
		Size:         sample.Size,
		Duration:     sample.Duration,
		QualityScore: synthesis.EstimateQuality([]core.AudioSample{sample}),
	})
}

func (s *Server) cloneVoice(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "a multipart form is required")

		return
	}

	headers := form.File[formFiles]
	samples := make([]core.AudioSample, 0, len(headers))

	for _, header := range headers {
		sample, readErr := readSample(header, synthesis.MaxSampleBytes)
		if readErr != nil {
			s.fail(c, readErr)

			return
		}

		samples = append(samples, sample)
	}

	profile, err := s.deps.Orchestrator.CloneVoice(c.Request.Context(), synthesis.CloneRequest{
		Name:        c.PostForm(formName),
		Description: c.PostForm(formDescription),
		Language:    c.PostForm(formLanguage),
		Samples:     samples,
	})
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusCreated, profile)
}

func (s *Server) profiles(c *gin.Context) {
	profiles, err := s.deps.Store.Profiles(c.Request.Context())
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, profiles)
}

func (s *Server) profile(c *gin.Context) {
	profile, err := s.deps.Store.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, profile)
}

func (s *Server) deleteProfile(c *gin.Context) {
	err := s.deps.Orchestrator.DeleteVoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)

		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) toggleFavorite(c *gin.Context) {
	favorite, err := s.deps.Store.ToggleFavorite(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "favorite": favorite})
}

func (s *Server) favorites(c *gin.Context) {
	favorites, err := s.deps.Store.Favorites(c.Request.Context())
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, favorites)
}

// profileSample serves the index-th stored sample, counting from 1.
func (s *Server) profileSample(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 1 {
		badRequest(c, "sample index must be a positive integer")

		return
	}

	profile, err := s.deps.Store.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)

		return
	}

	if index > len(profile.SampleKeys) {
		s.fail(c, fmt.Errorf("sample %d of profile %s: %w", index, profile.ID, core.ErrNotFound))

		return
	}

	s.serveObject(c, profile.SampleKeys[index-1])
}

func (s *Server) convertAudio(c *gin.Context) {
	header, err := c.FormFile(formFile)
	if err != nil {
		badRequest(c, "an audio file is required")

		return
	}

	sample, err := readSample(header, s.cfg.MaxUploadBytes)
	if err != nil {
		s.fail(c, err)

		return
	}

	source := wave.Source{Format: sample.Format}
	source.SampleRate, _ = strconv.Atoi(c.Query("sample_rate"))
	source.Channels, _ = strconv.Atoi(c.Query("channels"))

	canonical, err := wave.Canonicalize(sample.Data, source)
	if err != nil {
		s.fail(c, err)

		return
	}

	c.Header("X-Duration", strconv.FormatFloat(canonical.Duration, 'f', 3, 64))
	c.Data(http.StatusOK, core.FormatWAV, canonical.Data)
}
