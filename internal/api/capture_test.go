package api_test

import (
	"encoding/binary"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-studio/internal/api"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/recording"
	"github.com/book-expert/voice-studio/internal/wave"
)

const captureRate = 8000

// steppingClock moves two seconds forward on every reading.
func steppingClock() func() time.Time {
	var calls atomic.Int64

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	return func() time.Time {
		return base.Add(time.Duration(calls.Add(1)) * 2 * time.Second)
	}
}

func pcmSecond() []byte {
	data := make([]byte, captureRate*2)
	for i := range captureRate {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(i%200-100)*50))
	}

	return data
}

func dialCapture(t *testing.T, f fixture, query string) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(f.server.Handler())
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/recording/ws?" + query

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func sendAction(t *testing.T, conn *websocket.Conn, action string) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(map[string]string{"action": action}))
}

// nextEvent returns the next JSON event, skipping ticks.
func nextEvent(t *testing.T, conn *websocket.Conn) api.CaptureEvent {
	t.Helper()

	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		messageType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.TextMessage, messageType)

		var event api.CaptureEvent

		require.NoError(t, json.Unmarshal(data, &event))

		if event.Type != api.EventTick {
			return event
		}
	}
}

func waitForState(t *testing.T, conn *websocket.Conn, state string) {
	t.Helper()

	for {
		event := nextEvent(t, conn)
		require.NotEqual(t, api.EventError, event.Type, event.Error)

		if event.Type == api.EventState && event.State == state {
			return
		}
	}
}

func TestCapture_RecordsSample(t *testing.T) {
	t.Parallel()

	f := newFixture(t, recording.Config{MinSeconds: 1, Clock: steppingClock()})
	conn := dialCapture(t, f, "format="+core.FormatPCMInt16+"&sample_rate=8000&channels=1")

	sendAction(t, conn, api.ActionStart)
	waitForState(t, conn, "capturing")

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pcmSecond()))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pcmSecond()))
	sendAction(t, conn, api.ActionStop)

	var (
		ready   *api.CaptureEvent
		payload []byte
	)

	for payload == nil {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		messageType, data, err := conn.ReadMessage()
		require.NoError(t, err)

		if messageType == websocket.BinaryMessage {
			payload = data

			break
		}

		var event api.CaptureEvent

		require.NoError(t, json.Unmarshal(data, &event))
		require.NotEqual(t, api.EventError, event.Type, event.Error)

		if event.Type == api.EventReady {
			ready = &event
		}
	}

	require.NotNil(t, ready, "ready event precedes the sample")
	assert.Equal(t, "recording.wav", ready.Filename)
	assert.Equal(t, core.FormatWAV, ready.Format)
	assert.InDelta(t, 2.0, ready.Duration, 1e-6)
	assert.False(t, ready.Degraded)
	assert.Equal(t, len(payload), ready.Size)
	assert.True(t, wave.IsCanonical(payload))
}

func TestCapture_TooShortKeepsRecording(t *testing.T) {
	t.Parallel()

	f := newFixture(t, recording.Config{MinSeconds: 30})
	conn := dialCapture(t, f, "format="+core.FormatPCMInt16+"&sample_rate=8000&channels=1")

	sendAction(t, conn, api.ActionStart)
	waitForState(t, conn, "capturing")

	sendAction(t, conn, api.ActionStop)

	event := nextEvent(t, conn)
	assert.Equal(t, api.EventError, event.Type)
	assert.Equal(t, "too_short", event.Code)

	sendAction(t, conn, api.ActionStart)

	event = nextEvent(t, conn)
	assert.Equal(t, api.EventError, event.Type)
	assert.Equal(t, "invalid_state", event.Code)

	sendAction(t, conn, api.ActionCancel)
	waitForState(t, conn, "idle")
}

func TestCapture_BadCommands(t *testing.T) {
	t.Parallel()

	f := newFixture(t, recording.Config{})
	conn := dialCapture(t, f, "")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, "bad_request", nextEvent(t, conn).Code)

	sendAction(t, conn, "rewind")
	assert.Equal(t, "bad_request", nextEvent(t, conn).Code)

	sendAction(t, conn, api.ActionStop)
	assert.Equal(t, "invalid_state", nextEvent(t, conn).Code)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2}))
	assert.Equal(t, "invalid_state", nextEvent(t, conn).Code)
}
