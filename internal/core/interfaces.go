// Package core defines the shared data model, error taxonomy and collaborator
// interfaces for the voice studio.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// SynthesisCall is a single request to a synthesis backend. Params carries the
// provider-specific parameter subset produced by the voice normalizer.
type SynthesisCall struct {
	Text     string
	Language string
	Voice    string
	Params   any
}

// SynthesisOutput is the audio payload returned by a synthesis backend.
type SynthesisOutput struct {
	Audio      []byte
	Format     string
	SampleRate int
}

// Synthesizer issues one request/response exchange against a speech backend.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, call SynthesisCall) (*SynthesisOutput, error)
}

// CloneCall is a multipart submission to a cloning backend.
type CloneCall struct {
	Name        string
	Description string
	Language    string
	Samples     []AudioSample
}

// CloneOutput is what a cloning backend returns for an accepted submission.
type CloneOutput struct {
	BackendID    string
	PreviewURL   string
	Name         string
	Language     string
	QualityScore float64
}

// Cloner submits audio samples to a voice-cloning backend.
type Cloner interface {
	Name() string
	Clone(ctx context.Context, call CloneCall) (*CloneOutput, error)
}
