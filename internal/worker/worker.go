// Package worker provides a NATS worker that serves synthesis jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/synthesis"
	"github.com/book-expert/voice-studio/internal/voice"
)

const handleMessageTimeout = 5 * time.Minute

var (
	// ErrNoText indicates a job that carries neither inline text nor a text key.
	ErrNoText = errors.New("job carries no text")
	// ErrSubjectEmpty indicates that no job subject was configured.
	ErrSubjectEmpty = errors.New("job subject cannot be empty")
)

// SynthesisRequestedEvent asks the worker to synthesize a text. The text is
// either inline or stored in the object store under TextKey.
type SynthesisRequestedEvent struct {
	Header    events.EventHeader `json:"header"`
	Text      string             `json:"text,omitempty"`
	TextKey   string             `json:"text_key,omitempty"`
	Language  string             `json:"language,omitempty"`
	VoiceID   string             `json:"voice_id,omitempty"`
	Settings  voice.Settings     `json:"settings"`
	AutoClean *bool              `json:"auto_clean,omitempty"`
}

// SynthesisCompletedEvent reports the outcome of a job. Error is set and
// AudioKey is empty when the job failed.
type SynthesisCompletedEvent struct {
	Header    events.EventHeader `json:"header"`
	AudioKey  string             `json:"audio_key,omitempty"`
	Format    string             `json:"format,omitempty"`
	Provider  string             `json:"provider,omitempty"`
	Language  string             `json:"language,omitempty"`
	Chunks    int                `json:"chunks,omitempty"`
	HistoryID string             `json:"history_id,omitempty"`
	Error     string             `json:"error,omitempty"`
	ErrorCode string             `json:"error_code,omitempty"`
}

// Synthesizer serves one synthesis request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synthesis.Request) (*synthesis.Result, error)
}

// NatsWorker listens for synthesis jobs on a NATS subject and answers each
// with a SynthesisCompletedEvent, on the reply subject when the job has one
// and on the completion subject otherwise.
type NatsWorker struct {
	natsConnection   *nats.Conn
	subject          string
	completedSubject string
	store            core.ObjectStore
	synthesizer      Synthesizer
	log              *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	completedSubject string,
	store core.ObjectStore,
	synthesizer Synthesizer,
	log *logger.Logger,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	return &NatsWorker{
		natsConnection:   natsConnection,
		subject:          subject,
		completedSubject: completedSubject,
		store:            store,
		synthesizer:      synthesizer,
		log:              log,
	}, nil
}

// Run starts the worker and blocks until ctx is done.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.System("Worker listening on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse event: %v", err)

		return
	}

	completed := w.process(ctx, event)
	if completed.Error != "" {
		w.log.Error("Failed to process synthesis job for workflow %s: %s", event.Header.WorkflowID, completed.Error)
	}

	err = w.publish(msg, completed)
	if err != nil {
		w.log.Error("Failed to publish completion for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// process runs one job. Failures are reported in the returned event.
func (w *NatsWorker) process(ctx context.Context, event *SynthesisRequestedEvent) *SynthesisCompletedEvent {
	completed := &SynthesisCompletedEvent{Header: replyHeader(event.Header)}

	body, err := w.loadText(ctx, event)
	if err != nil {
		return failed(completed, err)
	}

	result, err := w.synthesizer.Synthesize(ctx, synthesis.Request{
		Text:      body,
		Language:  event.Language,
		VoiceID:   event.VoiceID,
		Settings:  event.Settings,
		AutoClean: event.AutoClean,
	})
	if err != nil {
		return failed(completed, err)
	}

	audioKey := result.AudioKey
	if audioKey == "" {
		audioKey = synthesis.AudioKey(uuid.NewString(), result.Format)

		err = w.store.Upload(ctx, audioKey, result.Audio)
		if err != nil {
			return failed(completed, fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err))
		}
	}

	completed.AudioKey = audioKey
	completed.Format = result.Format
	completed.Provider = result.Provider
	completed.Language = result.Language
	completed.Chunks = result.Chunks
	completed.HistoryID = result.HistoryID

	return completed
}

func (w *NatsWorker) loadText(ctx context.Context, event *SynthesisRequestedEvent) (string, error) {
	if event.Text != "" {
		return event.Text, nil
	}

	if event.TextKey == "" {
		return "", ErrNoText
	}

	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	return string(textData), nil
}

func failed(completed *SynthesisCompletedEvent, err error) *SynthesisCompletedEvent {
	completed.Error = err.Error()

	var providerErr *core.ProviderError
	if errors.As(err, &providerErr) {
		completed.ErrorCode = providerErr.Code
	}

	return completed
}

func replyHeader(request events.EventHeader) events.EventHeader {
	header := request
	header.EventID = uuid.NewString()
	header.Timestamp = time.Now().UTC()

	return header
}

func (w *NatsWorker) publish(msg *nats.Msg, completed *SynthesisCompletedEvent) error {
	data, err := json.Marshal(completed)
	if err != nil {
		return fmt.Errorf("failed to marshal completion event: %w", err)
	}

	if msg.Reply != "" {
		err = msg.Respond(data)
		if err != nil {
			return fmt.Errorf("failed to respond with completion event: %w", err)
		}

		return nil
	}

	if w.completedSubject == "" {
		return nil
	}

	err = w.natsConnection.Publish(w.completedSubject, data)
	if err != nil {
		return fmt.Errorf("failed to publish completion event: %w", err)
	}

	return nil
}

func parseEvent(msg *nats.Msg) (*SynthesisRequestedEvent, error) {
	var event SynthesisRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}
