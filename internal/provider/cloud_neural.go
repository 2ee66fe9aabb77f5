package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/voice"
)

const (
	apiCloudSpeech = "/v1/speech"
	apiHealth      = "/health"
)

// CloudNeuralClient talks to an HTTP speech service serving stock neural
// voices. It takes rate and pitch offsets.
type CloudNeuralClient struct {
	httpClient *http.Client
	baseURL    string
}

// cloudSpeechRequest is the JSON body of a synthesis request.
type cloudSpeechRequest struct {
	Text     string `json:"text"`
	Voice    string `json:"voice"`
	Language string `json:"language"`
	Rate     string `json:"rate"`
	Pitch    string `json:"pitch"`
}

// NewCloudNeuralClient creates a client for the service at baseURL, e.g.
// "http://localhost:8000".
func NewCloudNeuralClient(baseURL string, timeout time.Duration) *CloudNeuralClient {
	return &CloudNeuralClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(timeout),
	}
}

// Name identifies the backend.
func (c *CloudNeuralClient) Name() string {
	return NameCloudNeural
}

// Synthesize sends one request and returns the audio payload.
func (c *CloudNeuralClient) Synthesize(ctx context.Context, call core.SynthesisCall) (*core.SynthesisOutput, error) {
	params, ok := call.Params.(voice.CloudNeuralParams)
	if !ok {
		return nil, fmt.Errorf(errFmtWrongParams, ErrWrongParams, NameCloudNeural, voice.CloudNeuralParams{}, call.Params)
	}

	if call.Text == "" {
		return nil, core.ErrEmptyText
	}

	requestBody, err := json.Marshal(cloudSpeechRequest{
		Text:     call.Text,
		Voice:    call.Voice,
		Language: call.Language,
		Rate:     params.RatePercent(),
		Pitch:    params.PitchHertz(),
	})
	if err != nil {
		return nil, fmt.Errorf(errFmtMarshalRequest, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiCloudSpeech, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf(errFmtCreateRequest, err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, core.FormatMPEG)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(NameCloudNeural, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(NameCloudNeural, resp)
	}

	return readAudio(NameCloudNeural, resp)
}

// HealthCheck verifies that the service is up.
func (c *CloudNeuralClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}
