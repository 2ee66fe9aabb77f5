package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
)

// Frame is one chunk of captured audio in the device's source encoding.
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

// Device is an audio input. Start opens the input and streams frames until
// ctx ends or Close is called; Close releases the input and is safe to call
// more than once.
type Device interface {
	Name() string
	Start(ctx context.Context) (<-chan Frame, error)
	Close() error
}

const defaultStreamBuffer = 256

// ErrStreamFull is returned by StreamDevice.Write when the session is not
// draining frames fast enough.
var ErrStreamFull = errors.New("capture stream buffer full")

// StreamDevice is a Device fed by an external producer, such as a browser
// streaming microphone chunks over a socket. It can be started again after
// Close.
type StreamDevice struct {
	name   string
	buffer int

	mu     sync.Mutex
	frames chan Frame
	ended  chan struct{}
	now    func() time.Time
}

// NewStreamDevice creates an idle stream device. buffer <= 0 selects the
// default frame buffer.
func NewStreamDevice(name string, buffer int) *StreamDevice {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}

	return &StreamDevice{name: name, buffer: buffer, now: time.Now}
}

// Name identifies the device in logs.
func (d *StreamDevice) Name() string {
	return d.name
}

// Start opens a new stream. Only one stream can be open at a time.
func (d *StreamDevice) Start(ctx context.Context) (<-chan Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frames != nil {
		return nil, fmt.Errorf("%w: %s is already streaming", core.ErrDeviceUnavailable, d.name)
	}

	frames := make(chan Frame, d.buffer)
	ended := make(chan struct{})
	d.frames = frames
	d.ended = ended

	go func() {
		select {
		case <-ctx.Done():
			d.endStream(frames)
		case <-ended:
		}
	}()

	return frames, nil
}

// Write delivers one chunk to the open stream.
func (d *StreamDevice) Write(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frames == nil {
		return fmt.Errorf("%w: %s is not streaming", core.ErrInvalidState, d.name)
	}

	select {
	case d.frames <- Frame{Data: append([]byte(nil), data...), Timestamp: d.now()}:
		return nil
	default:
		return ErrStreamFull
	}
}

// Streaming reports whether a stream is open.
func (d *StreamDevice) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.frames != nil
}

// Close ends the open stream, if any.
func (d *StreamDevice) Close() error {
	d.mu.Lock()
	frames := d.frames
	d.mu.Unlock()

	if frames != nil {
		d.endStream(frames)
	}

	return nil
}

func (d *StreamDevice) endStream(frames chan Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frames != frames {
		return
	}

	close(frames)
	close(d.ended)
	d.frames = nil
	d.ended = nil
}
