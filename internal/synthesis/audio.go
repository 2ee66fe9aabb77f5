package synthesis

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/wave"
)

// Object key prefixes.
const (
	audioPrefix  = "audio"
	samplePrefix = "samples"
)

var extensions = map[string]string{
	core.FormatWAV:  "wav",
	core.FormatMPEG: "mp3",
	core.FormatFLAC: "flac",
	core.FormatOGG:  "ogg",
	core.FormatWebM: "webm",
	core.FormatMP4:  "m4a",
}

// ExtensionFor returns the file extension for a format tag, without the dot.
func ExtensionFor(format string) string {
	if ext, ok := extensions[wave.MediaType(format)]; ok {
		return ext
	}

	return "bin"
}

// AudioKey is the object key of a synthesized clip.
func AudioKey(id, format string) string {
	return path.Join(audioPrefix, id+"."+ExtensionFor(format))
}

// SampleKey is the object key of the index-th sample of a profile.
func SampleKey(profileID string, index int, format string) string {
	return path.Join(samplePrefix, profileID, fmt.Sprintf("sample-%d.%s", index+1, ExtensionFor(format)))
}

// joinAudio concatenates chunk outputs into one payload. WAV chunks are joined
// into one container; MPEG frames are self-delimiting and join byte-wise.
func joinAudio(outputs []*core.SynthesisOutput) ([]byte, string, error) {
	if len(outputs) == 0 {
		return nil, "", fmt.Errorf("%w: no audio was synthesized", core.ErrEncoding)
	}

	format := wave.MediaType(outputs[0].Format)

	if len(outputs) == 1 {
		return outputs[0].Audio, format, nil
	}

	parts := make([][]byte, 0, len(outputs))

	for index, out := range outputs {
		if wave.MediaType(out.Format) != format {
			return nil, "", fmt.Errorf("%w: chunk %d is %s, expected %s", core.ErrEncoding, index+1, out.Format, format)
		}

		parts = append(parts, out.Audio)
	}

	switch format {
	case core.FormatWAV:
		joined, err := wave.Concat(parts...)
		if err != nil {
			return nil, "", err
		}

		return joined, format, nil
	case core.FormatMPEG:
		return bytes.Join(parts, nil), format, nil
	default:
		return nil, "", fmt.Errorf("%w: cannot join %s chunks", core.ErrEncoding, strings.TrimSpace(format))
	}
}

// FormatFor returns the format tag for a file extension, with or without the
// leading dot. Unknown extensions yield the empty string.
func FormatFor(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))

	for format, candidate := range extensions {
		if candidate == ext {
			return format
		}
	}

	if ext == "mp4" {
		return core.FormatMP4
	}

	return ""
}
