package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
)

const apiAddVoice = "/v1/voices/add"

// Sample count limits for one cloning submission.
const (
	MinCloneSamples = 1
	MaxCloneSamples = 5
)

// Multipart form field names.
const (
	formFieldName        = "name"
	formFieldDescription = "description"
	formFieldLabels      = "labels"
	formFieldFiles       = "files"
)

const (
	errFmtCreateFormFile = "failed to create form file: %w"
	errFmtCopyFileData   = "failed to copy file data: %w"
	errFmtWriteField     = "failed to write %s field: %w"
	errFmtCloseWriter    = "failed to close multipart writer: %w"
	errFmtDecodeResponse = "failed to decode response: %w"
)

// CloningClient submits samples to a voice-cloning backend.
type CloningClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type addVoiceResponse struct {
	VoiceID    string `json:"voice_id"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// NewCloningClient creates a client for the backend at baseURL authenticated
// with apiKey.
func NewCloningClient(baseURL, apiKey string, timeout time.Duration) *CloningClient {
	return &CloningClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: newHTTPClient(timeout),
	}
}

// Name identifies the backend.
func (c *CloningClient) Name() string {
	return NameCloning
}

// Clone uploads the samples as one multipart submission and returns the
// backend's id for the new voice. Backend rejections come back as a
// *core.ProviderError whose Code is unauthorized, quota_exceeded or validation.
func (c *CloningClient) Clone(ctx context.Context, call core.CloneCall) (*core.CloneOutput, error) {
	if len(call.Samples) < MinCloneSamples || len(call.Samples) > MaxCloneSamples {
		return nil, core.NewValidationError("between %d and %d samples are required, got %d",
			MinCloneSamples, MaxCloneSamples, len(call.Samples))
	}

	body, contentType, err := buildCloneForm(call)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiAddVoice, body)
	if err != nil {
		return nil, fmt.Errorf(errFmtCreateRequest, err)
	}

	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set(headerContentType, contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(NameCloning, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, parseErrorResponse(NameCloning, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf(errFmtDecodeResponse, err)
	}

	var added addVoiceResponse

	err = parseJSON(data, &added)
	if err != nil {
		return nil, fmt.Errorf(errFmtDecodeResponse, err)
	}

	if added.VoiceID == "" {
		return nil, &core.ProviderError{Provider: NameCloning, StatusCode: resp.StatusCode, Message: "response carries no voice_id"}
	}

	return &core.CloneOutput{
		BackendID:  added.VoiceID,
		PreviewURL: added.PreviewURL,
		Name:       call.Name,
		Language:   call.Language,
	}, nil
}

// HealthCheck verifies the backend accepts the configured key.
func (c *CloningClient) HealthCheck(ctx context.Context) error {
	return checkAccount(ctx, c.httpClient, NameCloning, c.baseURL, c.apiKey)
}

func buildCloneForm(call core.CloneCall) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	err := writer.WriteField(formFieldName, call.Name)
	if err != nil {
		return nil, "", fmt.Errorf(errFmtWriteField, formFieldName, err)
	}

	if call.Description != "" {
		err = writer.WriteField(formFieldDescription, call.Description)
		if err != nil {
			return nil, "", fmt.Errorf(errFmtWriteField, formFieldDescription, err)
		}
	}

	if call.Language != "" {
		labels, marshalErr := json.Marshal(map[string]string{"language": call.Language})
		if marshalErr != nil {
			return nil, "", fmt.Errorf(errFmtMarshalRequest, marshalErr)
		}

		err = writer.WriteField(formFieldLabels, string(labels))
		if err != nil {
			return nil, "", fmt.Errorf(errFmtWriteField, formFieldLabels, err)
		}
	}

	for index, sample := range call.Samples {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`,
			formFieldFiles, sampleFilename(sample, index)))
		header.Set(headerContentType, sample.Format)

		part, partErr := writer.CreatePart(header)
		if partErr != nil {
			return nil, "", fmt.Errorf(errFmtCreateFormFile, partErr)
		}

		_, partErr = part.Write(sample.Data)
		if partErr != nil {
			return nil, "", fmt.Errorf(errFmtCopyFileData, partErr)
		}
	}

	err = writer.Close()
	if err != nil {
		return nil, "", fmt.Errorf(errFmtCloseWriter, err)
	}

	return &buf, writer.FormDataContentType(), nil
}

func sampleFilename(sample core.AudioSample, index int) string {
	if sample.Filename != "" {
		return sample.Filename
	}

	return "sample-" + strconv.Itoa(index+1) + extensionFor(sample.Format)
}

func extensionFor(format string) string {
	mediaType, _, _ := strings.Cut(format, ";")

	switch strings.TrimSpace(mediaType) {
	case core.FormatWAV:
		return ".wav"
	case core.FormatMPEG:
		return ".mp3"
	case core.FormatFLAC:
		return ".flac"
	case core.FormatOGG:
		return ".ogg"
	case core.FormatWebM:
		return ".webm"
	case core.FormatMP4:
		return ".m4a"
	default:
		return ".bin"
	}
}
