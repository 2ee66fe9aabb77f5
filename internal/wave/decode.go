package wave

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/hajimehoshi/go-mp3"

	"github.com/book-expert/voice-studio/internal/core"
)

// WAV format codes.
const (
	formatPCM        = 1
	formatIEEEFloat  = 3
	formatExtensible = 0xFFFE
)

const (
	riffHeaderSize  = 12
	chunkHeaderSize = 8
	mp3Channels     = 2
)

const (
	errFmtUnsupportedCodec   = "%w: unsupported source codec %q"
	errFmtUnsupportedBits    = "%w: unsupported %d-bit sample format %d"
	errFmtMissingChunk       = "%w: missing %s chunk"
	errFmtPCMParamsRequired  = "%w: raw pcm requires sample rate and channel count"
	errFmtTruncatedContainer = "%w: truncated container"
)

// Source describes the encoding of a payload handed to Decode. SampleRate and
// Channels are only consulted for raw PCM formats.
type Source struct {
	Format     string
	SampleRate int
	Channels   int
}

// MediaType strips codec parameters and normalises aliases of a format tag.
func MediaType(format string) string {
	mediaType, _, _ := strings.Cut(format, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	switch mediaType {
	case "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return core.FormatWAV
	case "audio/mp3", "audio/x-mp3", "audio/mpeg3":
		return core.FormatMPEG
	case "audio/x-flac":
		return core.FormatFLAC
	case "audio/x-m4a", "audio/m4a", "audio/aac":
		return core.FormatMP4
	default:
		return mediaType
	}
}

// Decode converts an encoded payload into a floating-point buffer. Payloads
// whose codec is unsupported or corrupt yield an error wrapping core.ErrDecode.
func Decode(data []byte, src Source) (Buffer, error) {
	switch MediaType(src.Format) {
	case core.FormatWAV:
		return decodeWAV(data)
	case core.FormatMPEG:
		return decodeMP3(data)
	case core.FormatPCMFloat:
		return decodeRawPCM(data, src, 32, formatIEEEFloat)
	case core.FormatPCMInt16:
		return decodeRawPCM(data, src, 16, formatPCM)
	default:
		return Buffer{}, fmt.Errorf(errFmtUnsupportedCodec, core.ErrDecode, src.Format)
	}
}

type fmtChunk struct {
	audioFormat   uint16
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// Info describes a parsed WAV container.
type Info struct {
	AudioFormat   int
	Channels      int
	SampleRate    int
	BitsPerSample int
	Data          []byte
}

// Parse reads the fmt and data chunks of a RIFF/WAVE container.
func Parse(data []byte) (Info, error) {
	if len(data) < riffHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Info{}, fmt.Errorf("%w: not a RIFF/WAVE container", core.ErrDecode)
	}

	var (
		format    *fmtChunk
		audioData []byte
	)

	offset := riffHeaderSize
	for offset+chunkHeaderSize <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + chunkHeaderSize

		end := body + chunkSize
		if chunkSize < 0 || end > len(data) {
			// Streaming writers leave the data size unset; take what is there.
			if chunkID != "data" {
				return Info{}, fmt.Errorf(errFmtTruncatedContainer, core.ErrDecode)
			}

			end = len(data)
		}

		switch chunkID {
		case "fmt ":
			parsed, parseErr := parseFmtChunk(data[body:end])
			if parseErr != nil {
				return Info{}, parseErr
			}

			format = parsed
		case "data":
			audioData = data[body:end]
		}

		offset = end + chunkSize%2
	}

	if format == nil {
		return Info{}, fmt.Errorf(errFmtMissingChunk, core.ErrDecode, "fmt")
	}

	if audioData == nil {
		return Info{}, fmt.Errorf(errFmtMissingChunk, core.ErrDecode, "data")
	}

	return Info{
		AudioFormat:   int(format.audioFormat),
		Channels:      int(format.channels),
		SampleRate:    int(format.sampleRate),
		BitsPerSample: int(format.bitsPerSample),
		Data:          audioData,
	}, nil
}

func parseFmtChunk(body []byte) (*fmtChunk, error) {
	if len(body) < fmtChunkSize {
		return nil, fmt.Errorf(errFmtTruncatedContainer, core.ErrDecode)
	}

	chunk := &fmtChunk{
		audioFormat:   binary.LittleEndian.Uint16(body[0:2]),
		channels:      binary.LittleEndian.Uint16(body[2:4]),
		sampleRate:    binary.LittleEndian.Uint32(body[4:8]),
		bitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
	}

	// WAVE_FORMAT_EXTENSIBLE stores the real format code in the sub-format GUID.
	const subFormatOffset = 24
	if chunk.audioFormat == formatExtensible && len(body) >= subFormatOffset+2 {
		chunk.audioFormat = binary.LittleEndian.Uint16(body[subFormatOffset : subFormatOffset+2])
	}

	return chunk, nil
}

func decodeWAV(data []byte) (Buffer, error) {
	info, err := Parse(data)
	if err != nil {
		return Buffer{}, err
	}

	return deinterleave(info.Data, info.SampleRate, info.Channels, info.BitsPerSample, info.AudioFormat)
}

func decodeRawPCM(data []byte, src Source, bits, format int) (Buffer, error) {
	if src.SampleRate <= 0 || src.Channels <= 0 {
		return Buffer{}, fmt.Errorf(errFmtPCMParamsRequired, core.ErrDecode)
	}

	return deinterleave(data, src.SampleRate, src.Channels, bits, format)
}

func decodeMP3(data []byte) (Buffer, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %w", core.ErrDecode, err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %w", core.ErrDecode, err)
	}

	return deinterleave(pcm, decoder.SampleRate(), mp3Channels, 16, formatPCM)
}

func deinterleave(data []byte, sampleRate, channels, bits, format int) (Buffer, error) {
	if sampleRate <= 0 || channels <= 0 || channels > MaxChannels {
		return Buffer{}, fmt.Errorf("%w: invalid stream parameters %d Hz, %d channels", core.ErrDecode, sampleRate, channels)
	}

	readSample, width, err := sampleReader(bits, format)
	if err != nil {
		return Buffer{}, err
	}

	frameWidth := width * channels
	frames := len(data) / frameWidth

	buf := Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for ch := range buf.Channels {
		buf.Channels[ch] = make([]float32, frames)
	}

	for frame := range frames {
		base := frame * frameWidth
		for ch := range channels {
			buf.Channels[ch][frame] = readSample(data[base+ch*width:])
		}
	}

	return buf, nil
}

func sampleReader(bits, format int) (func([]byte) float32, int, error) {
	switch {
	case format == formatPCM && bits == 8:
		return func(b []byte) float32 { return (float32(b[0]) - 128) / 128 }, 1, nil
	case format == formatPCM && bits == 16:
		return func(b []byte) float32 {
			return Int16ToSample(int16(binary.LittleEndian.Uint16(b)))
		}, 2, nil
	case format == formatPCM && bits == 24:
		return func(b []byte) float32 {
			value := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8

			return float32(value) / (1 << 23)
		}, 3, nil
	case format == formatPCM && bits == 32:
		return func(b []byte) float32 {
			return float32(int32(binary.LittleEndian.Uint32(b))) / (1 << 31)
		}, 4, nil
	case format == formatIEEEFloat && bits == 32:
		return func(b []byte) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(b))
		}, 4, nil
	default:
		return nil, 0, fmt.Errorf(errFmtUnsupportedBits, core.ErrDecode, bits, format)
	}
}
