package wave

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/book-expert/voice-studio/internal/core"
)

// Canonicalize decodes a payload and re-encodes it as the canonical WAV
// container. When decoding fails the original bytes come back unmodified in a
// sample flagged Degraded, together with an error wrapping core.ErrDecode, so
// the caller can decide whether to submit the degraded sample. Encoding
// failures return core.ErrEncoding and no sample.
func Canonicalize(data []byte, src Source) (core.AudioSample, error) {
	buf, decodeErr := Decode(data, src)
	if decodeErr != nil {
		degraded := core.NewAudioSample(data, src.Format, 0)
		degraded.Degraded = true

		return degraded, decodeErr
	}

	encoded, encodeErr := Encode(buf)
	if encodeErr != nil {
		return core.AudioSample{}, encodeErr
	}

	return core.NewAudioSample(encoded, core.FormatWAV, buf.Duration()), nil
}

// IsCanonical reports whether data already is a PCM16 WAV container.
func IsCanonical(data []byte) bool {
	info, err := Parse(data)

	return err == nil && info.AudioFormat == formatPCM && info.BitsPerSample == bitsPerSample
}

// Duration resolves the duration of an encoded payload in seconds.
func Duration(data []byte, src Source) (float64, error) {
	if MediaType(src.Format) == core.FormatWAV {
		info, err := Parse(data)
		if err != nil {
			return 0, err
		}

		frameWidth := info.Channels * info.BitsPerSample / 8
		if frameWidth == 0 || info.SampleRate == 0 {
			return 0, fmt.Errorf("%w: invalid frame layout", core.ErrDecode)
		}

		return float64(len(info.Data)/frameWidth) / float64(info.SampleRate), nil
	}

	buf, err := Decode(data, src)
	if err != nil {
		return 0, err
	}

	return buf.Duration(), nil
}

// ErrMismatchedStreams is returned when joined containers disagree on layout.
var ErrMismatchedStreams = errors.New("containers have different sample rates or channel counts")

// Concat joins canonical WAV containers that share sample rate and channel
// count. PCM16 inputs are joined without requantizing.
func Concat(parts ...[]byte) ([]byte, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: nothing to join", core.ErrEncoding)
	}

	if len(parts) == 1 {
		return parts[0], nil
	}

	infos := make([]Info, 0, len(parts))
	for index, part := range parts {
		info, err := Parse(part)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", index, err)
		}

		if info.AudioFormat != formatPCM || info.BitsPerSample != bitsPerSample {
			return concatDecoded(parts)
		}

		if len(infos) > 0 && (info.SampleRate != infos[0].SampleRate || info.Channels != infos[0].Channels) {
			return nil, fmt.Errorf("%w: %w", core.ErrEncoding, ErrMismatchedStreams)
		}

		infos = append(infos, info)
	}

	var pcm bytes.Buffer
	for _, info := range infos {
		pcm.Write(info.Data)
	}

	if uint64(pcm.Len()) > math.MaxUint32-riffBaseSize {
		return nil, fmt.Errorf(errFmtDataTooLarge, core.ErrEncoding, pcm.Len())
	}

	out := make([]byte, HeaderSize+pcm.Len())
	writeHeader(out, infos[0].SampleRate, infos[0].Channels, uint32(pcm.Len()))
	copy(out[HeaderSize:], pcm.Bytes())

	return out, nil
}

func concatDecoded(parts [][]byte) ([]byte, error) {
	var joined Buffer

	for index, part := range parts {
		buf, err := decodeWAV(part)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", index, err)
		}

		if index == 0 {
			joined = buf

			continue
		}

		if buf.SampleRate != joined.SampleRate || len(buf.Channels) != len(joined.Channels) {
			return nil, fmt.Errorf("%w: %w", core.ErrEncoding, ErrMismatchedStreams)
		}

		for ch := range joined.Channels {
			joined.Channels[ch] = append(joined.Channels[ch], buf.Channels[ch]...)
		}
	}

	return Encode(joined)
}
