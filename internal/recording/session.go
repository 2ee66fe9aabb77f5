// Package recording drives microphone capture through an explicit session
// state machine and turns the captured audio into a cloning-ready sample.
package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/wave"
)

// State is a recording session state.
type State int

// Session states.
const (
	Idle State = iota
	Capturing
	Stopping
	Converting
	Ready
	Failed
)

var stateNames = map[State]string{
	Idle:       "idle",
	Capturing:  "capturing",
	Stopping:   "stopping",
	Converting: "converting",
	Ready:      "ready",
	Failed:     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("state(%d)", int(s))
}

// DefaultMinSeconds is the shortest recording accepted for cloning.
const DefaultMinSeconds = 5

const recordingFilename = "recording.wav"

// Converter turns captured bytes into a sample. wave.Canonicalize is the
// default.
type Converter func(data []byte, src wave.Source) (core.AudioSample, error)

// Config tunes a session. Zero values select the defaults.
type Config struct {
	// MinSeconds is the minimum elapsed time Stop accepts.
	MinSeconds int
	// Source describes the encoding of captured frames.
	Source wave.Source
	// AllowDegraded keeps a recording whose source cannot be decoded, in its
	// original encoding, instead of failing it.
	AllowDegraded bool
	// Convert overrides the conversion step.
	Convert Converter
	// Clock overrides the time source for the elapsed counter.
	Clock func() time.Time
	// OnStateChange is called after every transition, outside the session lock.
	OnStateChange func(from, to State)
	// OnTick is called once per second of capture with the elapsed seconds.
	OnTick func(elapsed int)
}

// Session is one microphone recording. It owns at most one capture stream and
// releases the device on every exit path. A Session is safe for concurrent use.
type Session struct {
	device Device
	cfg    Config
	log    *logger.Logger

	mu         sync.Mutex
	state      State
	startedAt  time.Time
	buffer     bytes.Buffer
	release    func()
	collected  chan struct{}
	converted  chan struct{}
	generation int
	sample     core.AudioSample
	err        error
}

// NewSession creates an idle session over device.
func NewSession(device Device, cfg Config, log *logger.Logger) *Session {
	if cfg.MinSeconds <= 0 {
		cfg.MinSeconds = DefaultMinSeconds
	}

	if cfg.Convert == nil {
		cfg.Convert = wave.Canonicalize
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Session{device: device, cfg: cfg, log: log}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Elapsed returns the whole seconds captured so far, or zero when not
// capturing.
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() int {
	if s.state != Capturing {
		return 0
	}

	return int(s.cfg.Clock().Sub(s.startedAt) / time.Second)
}

// Start opens the device and begins capturing. It fails with
// core.ErrInvalidState unless the session is Idle and with
// core.ErrDeviceUnavailable when the device cannot be opened.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.state != Idle {
		state := s.state
		s.mu.Unlock()

		return fmt.Errorf("%w: cannot start while %s", core.ErrInvalidState, state)
	}

	captureCtx, cancel := context.WithCancel(ctx)

	frames, err := s.device.Start(captureCtx)
	if err != nil {
		cancel()
		s.closeDevice()
		s.mu.Unlock()

		if errors.Is(err, core.ErrDeviceUnavailable) {
			return err
		}

		return fmt.Errorf("%w: %s: %w", core.ErrDeviceUnavailable, s.device.Name(), err)
	}

	var once sync.Once

	s.release = func() {
		once.Do(func() {
			cancel()
			s.closeDevice()
		})
	}

	s.buffer.Reset()
	s.sample = core.AudioSample{}
	s.err = nil
	s.startedAt = s.cfg.Clock()
	s.collected = make(chan struct{})
	collected := s.collected
	generation := s.generation
	notify := s.transitionLocked(Capturing)
	s.mu.Unlock()

	go s.collect(captureCtx, frames, generation, collected)

	if s.cfg.OnTick != nil {
		go s.tick(captureCtx)
	}

	notify()

	return nil
}

// Stop ends capture and converts the recording in the background. It fails
// with core.ErrTooShort, leaving the session Capturing, when fewer than the
// minimum seconds have elapsed. Use Wait for the result.
func (s *Session) Stop() error {
	s.mu.Lock()

	if s.state != Capturing {
		state := s.state
		s.mu.Unlock()

		return fmt.Errorf("%w: cannot stop while %s", core.ErrInvalidState, state)
	}

	elapsed := s.elapsedLocked()
	if elapsed < s.cfg.MinSeconds {
		s.mu.Unlock()

		return fmt.Errorf("%w: %d of %d seconds", core.ErrTooShort, elapsed, s.cfg.MinSeconds)
	}

	release := s.release
	collected := s.collected
	generation := s.generation
	s.converted = make(chan struct{})
	converted := s.converted
	notify := s.transitionLocked(Stopping)
	s.mu.Unlock()

	notify()

	release()
	<-collected

	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()

		return nil
	}

	data := bytes.Clone(s.buffer.Bytes())
	notify = s.transitionLocked(Converting)
	s.mu.Unlock()

	notify()

	go s.convert(data, elapsed, generation, converted)

	return nil
}

// Cancel abandons the session from any state, releases the device and
// returns to Idle. A pending conversion result is discarded.
func (s *Session) Cancel() {
	s.mu.Lock()

	release := s.release
	s.release = nil
	s.generation++

	if s.converted != nil && (s.state == Stopping || s.state == Converting) {
		close(s.converted)
	}

	s.converted = nil
	s.buffer.Reset()
	s.sample = core.AudioSample{}
	s.err = nil
	notify := s.transitionLocked(Idle)
	s.mu.Unlock()

	if release != nil {
		release()
	}

	notify()
}

// Wait blocks until a stopped recording has been converted and returns the
// sample, or the conversion error when the session Failed.
func (s *Session) Wait(ctx context.Context) (core.AudioSample, error) {
	s.mu.Lock()

	switch s.state {
	case Ready:
		defer s.mu.Unlock()

		return s.sample, nil
	case Failed:
		defer s.mu.Unlock()

		return core.AudioSample{}, s.err
	case Stopping, Converting:
	default:
		state := s.state
		s.mu.Unlock()

		return core.AudioSample{}, fmt.Errorf("%w: nothing to wait for while %s", core.ErrInvalidState, state)
	}

	converted := s.converted
	s.mu.Unlock()

	select {
	case <-converted:
	case <-ctx.Done():
		return core.AudioSample{}, fmt.Errorf("waiting for conversion: %w", ctx.Err())
	}

	return s.Wait(ctx)
}

// Sample returns the converted sample once the session is Ready.
func (s *Session) Sample() (core.AudioSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sample, s.state == Ready
}

func (s *Session) collect(ctx context.Context, frames <-chan Frame, generation int, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}

			s.appendFrame(frame, generation)
		case <-ctx.Done():
			// Keep what the device had already delivered.
			for {
				select {
				case frame, ok := <-frames:
					if !ok {
						return
					}

					s.appendFrame(frame, generation)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) appendFrame(frame Frame, generation int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation {
		return
	}

	s.buffer.Write(frame.Data)
}

func (s *Session) tick(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cfg.OnTick(s.Elapsed())
		}
	}
}

func (s *Session) convert(data []byte, elapsed, generation int, converted chan struct{}) {
	sample, err := s.runConverter(data, elapsed)

	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()

		return
	}

	var notify func()

	if err != nil {
		s.err = err
		notify = s.transitionLocked(Failed)
	} else {
		sample.Filename = recordingFilename
		s.sample = sample
		notify = s.transitionLocked(Ready)
	}

	close(converted)
	s.mu.Unlock()

	notify()
}

func (s *Session) runConverter(data []byte, elapsed int) (core.AudioSample, error) {
	if len(data) == 0 {
		return core.AudioSample{}, fmt.Errorf("%w: no audio was captured", core.ErrEncoding)
	}

	sample, err := s.cfg.Convert(data, s.cfg.Source)
	if err == nil {
		return sample, nil
	}

	if errors.Is(err, core.ErrDecode) && s.cfg.AllowDegraded && sample.Degraded {
		if !sample.HasDuration() {
			sample.Duration = float64(elapsed)
		}

		s.log.Warn("Recording kept in its original %s encoding at degraded quality: %v", s.cfg.Source.Format, err)

		return sample, nil
	}

	if errors.Is(err, core.ErrDecode) || errors.Is(err, core.ErrEncoding) {
		return core.AudioSample{}, err
	}

	return core.AudioSample{}, fmt.Errorf("%w: %w", core.ErrEncoding, err)
}

func (s *Session) closeDevice() {
	err := s.device.Close()
	if err != nil {
		s.log.Warn("Failed to release capture device %s: %v", s.device.Name(), err)
	}
}

// transitionLocked moves to a new state and returns the notification to run
// once the lock is released.
func (s *Session) transitionLocked(to State) func() {
	from := s.state
	s.state = to

	if s.cfg.OnStateChange == nil || from == to {
		return func() {}
	}

	return func() { s.cfg.OnStateChange(from, to) }
}
