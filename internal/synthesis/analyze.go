package synthesis

import (
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/text"
)

// PreviewLength bounds the preview returned by Analyze.
const PreviewLength = 200

// Analysis describes a text before synthesis.
type Analysis struct {
	Original    string         `json:"original"`
	Cleaned     string         `json:"cleaned"`
	Stats       core.TextStats `json:"stats"`
	HasMarkdown bool           `json:"has_markdown"`
	Language    string         `json:"language"`
	Preview     string         `json:"preview"`
	Chunks      int            `json:"chunks"`
}

// Analyze cleans text and reports its statistics, markdown hint, detected
// language and a short preview. The detected language may be
// text.LanguageUnknown; it is a hint, not a synthesis input.
func (o *Orchestrator) Analyze(input string) (Analysis, error) {
	err := o.deps.Processor.Validate(input)
	if err != nil {
		return Analysis{}, err
	}

	cleaned := o.deps.Processor.Clean(input)

	return Analysis{
		Original:    input,
		Cleaned:     cleaned,
		Stats:       text.Stats(cleaned),
		HasMarkdown: o.deps.Processor.HasMarkdown(input),
		Language:    text.DetectLanguage(cleaned),
		Preview:     text.Preview(cleaned, PreviewLength),
		Chunks:      len(text.Chunk(cleaned, o.cfg.CloudChunkChars)),
	}, nil
}

// Processor exposes the text processor used by the orchestrator.
func (o *Orchestrator) Processor() *text.Processor {
	return o.deps.Processor
}
