package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"chat-relay/internal/auth"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(store Store, opts Options) *Manager {
	log := discardLogger()
	registry := NewRegistry()
	router := NewRouter(registry, log)
	dispatcher := NewDispatcher(store, router, time.UTC, log)
	return NewManager(registry, router, dispatcher, opts, log)
}

// connectedSession returns an Active session without a transport; frames
// published to it stay in its queue.
func connectedSession(t *testing.T, m *Manager, group string, identity auth.Identity) *Session {
	t.Helper()
	s := m.NewSession(nil, group, identity)
	require.NoError(t, s.connect())
	require.Equal(t, StateActive, s.State())
	return s
}

func receiveFrame(t *testing.T, s *Session) map[string]any {
	t.Helper()
	select {
	case frame, ok := <-s.Send():
		require.True(t, ok, "queue closed")
		var out map[string]any
		require.NoError(t, json.Unmarshal(frame, &out))
		return out
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func requireNoFrame(t *testing.T, s *Session) {
	t.Helper()
	select {
	case frame, ok := <-s.Send():
		if ok {
			t.Fatalf("unexpected frame: %s", frame)
		}
	default:
	}
}
