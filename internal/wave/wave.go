// Package wave converts decoded audio buffers into the canonical PCM16 WAV
// container consumed by the cloning backend, and decodes the source formats
// a sample can arrive in.
package wave

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/book-expert/voice-studio/internal/core"
)

// Container layout constants.
const (
	HeaderSize    = 44
	bitsPerSample = 16
	bytesPerFrame = bitsPerSample / 8
	fmtChunkSize  = 16
	riffBaseSize  = 36
)

// Quality validation limits.
const (
	MaxSampleRate = 192000
	MaxChannels   = 8
)

const (
	errFmtSampleRateRange = "%w: sample rate %d must be between 1 and %d Hz"
	errFmtChannelsRange   = "%w: channel count %d must be between 1 and %d"
	errFmtChannelLength   = "%w: channel %d has %d samples, expected %d"
	errFmtDataTooLarge    = "%w: %d bytes of sample data exceed the container limit"
)

// Buffer is a decoded, uncompressed, multi-channel audio buffer. Every
// channel holds the same number of samples in [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the number of sample frames in the buffer.
func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}

	return len(b.Channels[0])
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}

	return float64(b.Frames()) / float64(b.SampleRate)
}

// Validate checks the buffer shape before encoding.
func (b Buffer) Validate() error {
	if b.SampleRate <= 0 || b.SampleRate > MaxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, core.ErrEncoding, b.SampleRate, MaxSampleRate)
	}

	if len(b.Channels) == 0 || len(b.Channels) > MaxChannels {
		return fmt.Errorf(errFmtChannelsRange, core.ErrEncoding, len(b.Channels), MaxChannels)
	}

	frames := len(b.Channels[0])
	for index, channel := range b.Channels {
		if len(channel) != frames {
			return fmt.Errorf(errFmtChannelLength, core.ErrEncoding, index, len(channel), frames)
		}
	}

	return nil
}

// Encode writes the buffer as a little-endian RIFF/WAVE PCM16 container with
// the samples interleaved frame by frame.
func Encode(buf Buffer) ([]byte, error) {
	validateErr := buf.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	numChannels := len(buf.Channels)
	frames := buf.Frames()

	dataSize := uint64(frames) * uint64(numChannels) * bytesPerFrame
	if dataSize > math.MaxUint32-riffBaseSize {
		return nil, fmt.Errorf(errFmtDataTooLarge, core.ErrEncoding, dataSize)
	}

	out := make([]byte, HeaderSize+int(dataSize))
	writeHeader(out, buf.SampleRate, numChannels, uint32(dataSize))

	offset := HeaderSize

	for frame := range frames {
		for _, channel := range buf.Channels {
			binary.LittleEndian.PutUint16(out[offset:], uint16(SampleToInt16(channel[frame])))
			offset += bytesPerFrame
		}
	}

	return out, nil
}

// SampleToInt16 clamps a floating sample to [-1, 1] and scales it
// asymmetrically so both ends of the int16 range are reachable.
func SampleToInt16(sample float32) int16 {
	value := float64(sample)

	switch {
	case math.IsNaN(value):
		return 0
	case value > 1:
		value = 1
	case value < -1:
		value = -1
	}

	if value >= 0 {
		return int16(value * math.MaxInt16)
	}

	return int16(value * -math.MinInt16)
}

// Int16ToSample is the inverse mapping of SampleToInt16 up to quantization.
func Int16ToSample(value int16) float32 {
	if value >= 0 {
		return float32(value) / math.MaxInt16
	}

	return float32(value) / -math.MinInt16
}

func writeHeader(out []byte, sampleRate, numChannels int, dataSize uint32) {
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], riffBaseSize+dataSize)
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], fmtChunkSize)
	binary.LittleEndian.PutUint16(out[20:22], formatPCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(numChannels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*numChannels*bytesPerFrame))
	binary.LittleEndian.PutUint16(out[32:34], uint16(numChannels*bytesPerFrame))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], dataSize)
}
