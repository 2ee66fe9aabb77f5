package store_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/store"
)

// exerciseBackend runs the behaviour every backend shares.
func exerciseBackend(t *testing.T, backend store.Backend) {
	t.Helper()

	ctx := context.Background()

	_, err := backend.Get(ctx, "profiles")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, backend.Put(ctx, "profiles", []byte(`[1]`)))
	require.NoError(t, backend.Put(ctx, "profiles", []byte(`[1,2]`)))

	value, err := backend.Get(ctx, "profiles")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1,2]`), value)

	require.NoError(t, backend.Delete(ctx, "profiles"))
	require.NoError(t, backend.Delete(ctx, "profiles"))

	_, err = backend.Get(ctx, "profiles")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.Error(t, backend.Put(ctx, "../escape", []byte(`{}`)))
}

func TestMemoryBackend(t *testing.T) {
	t.Parallel()

	exerciseBackend(t, store.NewMemoryBackend(0))
}

func TestFileBackend(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "store")

	backend, err := store.NewFileBackend(dir, 0)
	require.NoError(t, err)

	exerciseBackend(t, backend)

	require.NoError(t, backend.Put(context.Background(), "history", []byte(`[]`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "history.json", entries[0].Name())
}

func TestFileBackend_Quota(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	backend, err := store.NewFileBackend(t.TempDir(), 64)
	require.NoError(t, err)

	require.NoError(t, backend.Put(ctx, "preferences", []byte(strings.Repeat("a", 40))))
	require.NoError(t, backend.Put(ctx, "preferences", []byte(strings.Repeat("b", 60))))
	require.ErrorIs(t, backend.Put(ctx, "history", []byte(strings.Repeat("c", 10))), core.ErrQuotaExceeded)

	value, err := backend.Get(ctx, "preferences")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("b", 60), string(value))
}

func TestFileBackend_StoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	first, err := store.NewFileBackend(dir, 0)
	require.NoError(t, err)

	_, err = newStore(t, first).AddProfile(ctx, core.VoiceProfile{ID: "persisted", Name: "Mai"})
	require.NoError(t, err)

	second, err := store.NewFileBackend(dir, 0)
	require.NoError(t, err)

	profile, err := newStore(t, second).Profile(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "Mai", profile.Name)
}

func startJetStream(t *testing.T) nats.JetStreamContext {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	return jetstreamContext
}

func TestNATSBackend(t *testing.T) {
	t.Parallel()

	jetstreamContext := startJetStream(t)

	backend, err := store.NewNATSBackend(jetstreamContext, "voice-studio-test", 0)
	require.NoError(t, err)

	exerciseBackend(t, backend)

	rebound, err := store.NewNATSBackend(jetstreamContext, "voice-studio-test", 0)
	require.NoError(t, err)

	ctx := context.Background()
	s := newStore(t, backend)

	_, err = s.AddHistory(ctx, core.HistoryEntry{ID: "h1", Text: "Xin chào"})
	require.NoError(t, err)

	history, err := newStore(t, rebound).History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Xin chào", history[0].Text)
}
