package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/voice"
)

const (
	apiTextToSpeech = "/v1/text-to-speech/"
	apiUser         = "/v1/user"
)

// ClonedClient synthesizes speech with cloned voices. It takes stability,
// similarity and style; the voice is the backend id of a cloned profile.
type ClonedClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

type clonedSpeechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	LanguageCode  string        `json:"language_code,omitempty"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// NewClonedClient creates a client for the backend at baseURL authenticated
// with apiKey.
func NewClonedClient(baseURL, apiKey string, timeout time.Duration) *ClonedClient {
	return &ClonedClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: newHTTPClient(timeout),
	}
}

// Name identifies the backend.
func (c *ClonedClient) Name() string {
	return NameCloned
}

// Synthesize sends one request for call.Voice and returns the audio payload.
func (c *ClonedClient) Synthesize(ctx context.Context, call core.SynthesisCall) (*core.SynthesisOutput, error) {
	params, ok := call.Params.(voice.ClonedParams)
	if !ok {
		return nil, fmt.Errorf(errFmtWrongParams, ErrWrongParams, NameCloned, voice.ClonedParams{}, call.Params)
	}

	if call.Text == "" {
		return nil, core.ErrEmptyText
	}

	if call.Voice == "" {
		return nil, core.NewValidationError("cloned synthesis needs a backend voice id")
	}

	requestBody, err := json.Marshal(clonedSpeechRequest{
		Text:         call.Text,
		ModelID:      params.Model,
		LanguageCode: call.Language,
		VoiceSettings: voiceSettings{
			Stability:       params.Stability,
			SimilarityBoost: params.SimilarityBoost,
			Style:           params.Style,
			SpeakerBoost:    params.SpeakerBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf(errFmtMarshalRequest, err)
	}

	endpoint := c.baseURL + apiTextToSpeech + url.PathEscape(call.Voice)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf(errFmtCreateRequest, err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, core.FormatMPEG)
	httpReq.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(NameCloned, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(NameCloned, resp)
	}

	return readAudio(NameCloned, resp)
}

// HealthCheck verifies the backend accepts the configured key.
func (c *ClonedClient) HealthCheck(ctx context.Context) error {
	return checkAccount(ctx, c.httpClient, NameCloned, c.baseURL, c.apiKey)
}

func checkAccount(ctx context.Context, client *http.Client, provider, baseURL, apiKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+apiUser, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	req.Header.Set(headerAPIKey, apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return transportError(provider, baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(provider, resp)
	}

	return nil
}
