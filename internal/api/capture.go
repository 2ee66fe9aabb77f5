package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/book-expert/voice-studio/internal/recording"
	"github.com/book-expert/voice-studio/internal/wave"
)

// Capture protocol. Clients send text commands and binary audio frames; the
// server answers with JSON events and, once a recording is ready, one binary
// message holding the sample.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionCancel = "cancel"

	EventState = "state"
	EventTick  = "tick"
	EventError = "error"
	EventReady = "ready"
)

const (
	captureBufferSize = 1024
	captureWriteWait  = 10 * time.Second
	captureMaxMessage = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  captureBufferSize,
	WriteBufferSize: captureBufferSize,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type captureCommand struct {
	Action string `json:"action"`
}

// CaptureEvent is a server message on the capture socket.
type CaptureEvent struct {
	Type     string  `json:"type"`
	State    string  `json:"state,omitempty"`
	Elapsed  int     `json:"elapsed,omitempty"`
	Error    string  `json:"error,omitempty"`
	Code     string  `json:"code,omitempty"`
	Filename string  `json:"filename,omitempty"`
	Format   string  `json:"format,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Size     int     `json:"size,omitempty"`
	Degraded bool    `json:"degraded,omitempty"`
}

// captureConn serialises writes; gorilla connections allow one writer.
type captureConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *captureConn) send(event CaptureEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return c.write(websocket.TextMessage, data)
}

func (c *captureConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(captureWriteWait))

	return c.conn.WriteMessage(messageType, data)
}

func (c *captureConn) sendError(err error) error {
	_, body := classify(err)

	return c.send(CaptureEvent{Type: EventError, Error: body.Error, Code: body.Code})
}

// captureSource reads the frame encoding from the query string.
func captureSource(c *gin.Context, fallback wave.Source) wave.Source {
	source := fallback

	if format := c.Query("format"); format != "" {
		source.Format = format
	}

	if rate, err := strconv.Atoi(c.Query("sample_rate")); err == nil {
		source.SampleRate = rate
	}

	if channels, err := strconv.Atoi(c.Query("channels")); err == nil {
		source.Channels = channels
	}

	return source
}

func (s *Server) capture(c *gin.Context) {
	source := captureSource(c, s.cfg.Recording.Source)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("Capture upgrade failed: %v", err)

		return
	}
	defer conn.Close()

	conn.SetReadLimit(captureMaxMessage)

	out := &captureConn{conn: conn}
	device := recording.NewStreamDevice("socket-"+uuid.NewString()[:8], 0)

	cfg := s.cfg.Recording
	cfg.Source = source
	cfg.OnStateChange = func(_, to recording.State) {
		_ = out.send(CaptureEvent{Type: EventState, State: to.String()})
	}
	cfg.OnTick = func(elapsed int) {
		_ = out.send(CaptureEvent{Type: EventTick, Elapsed: elapsed})
	}

	session := recording.NewSession(device, cfg, s.log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer session.Cancel()

	s.log.Info("Capture socket opened (%s)", device.Name())

	for {
		messageType, data, readErr := conn.ReadMessage()
		if readErr != nil {
			if !websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("Capture socket %s closed: %v", device.Name(), readErr)
			}

			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			writeErr := device.Write(data)
			if writeErr != nil {
				_ = out.sendError(writeErr)
			}
		case websocket.TextMessage:
			s.handleCaptureCommand(ctx, out, session, data)
		}
	}
}

func (s *Server) handleCaptureCommand(ctx context.Context, out *captureConn, session *recording.Session, data []byte) {
	var command captureCommand

	err := json.Unmarshal(data, &command)
	if err != nil {
		_ = out.send(CaptureEvent{Type: EventError, Error: "invalid command", Code: "bad_request"})

		return
	}

	switch command.Action {
	case ActionStart:
		err = session.Start(ctx)
	case ActionStop:
		err = session.Stop()
		if err == nil {
			go s.deliverSample(ctx, out, session)
		}
	case ActionCancel:
		session.Cancel()
	default:
		_ = out.send(CaptureEvent{Type: EventError, Error: "unknown action " + strconv.Quote(command.Action), Code: "bad_request"})

		return
	}

	if err != nil {
		_ = out.sendError(err)
	}
}

// deliverSample waits for the conversion and sends the result. A cancelled
// recording is silent.
func (s *Server) deliverSample(ctx context.Context, out *captureConn, session *recording.Session) {
	sample, err := session.Wait(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || session.State() == recording.Idle {
			return
		}

		_ = out.sendError(err)

		return
	}

	err = out.send(CaptureEvent{
		Type:     EventReady,
		Filename: sample.Filename,
		Format:   sample.Format,
		Duration: sample.Duration,
		Size:     sample.Size,
		Degraded: sample.Degraded,
	})
	if err == nil {
		err = out.write(websocket.BinaryMessage, sample.Data)
	}

	if err != nil {
		s.log.Warn("Failed to deliver recording: %v", err)
	}
}
