package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chat-relay/internal/auth"
	"chat-relay/internal/config"
	"chat-relay/internal/database"
	"chat-relay/internal/models"
	"chat-relay/internal/services"
	ws "chat-relay/internal/websocket"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type testRelay struct {
	srv     *httptest.Server
	db      database.Database
	auth    *auth.Service
	manager *ws.Manager
}

func newTestRelay(t *testing.T, origins ...string) *testRelay {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.Open(context.Background(), database.DriverSQLite, filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	authService := auth.NewService(config.JWTConfig{Secret: "test-secret", ExpiresIn: time.Hour})
	registry := ws.NewRegistry()
	router := ws.NewRouter(registry, log)
	dispatcher := ws.NewDispatcher(db, router, time.UTC, log)
	manager := ws.NewManager(registry, router, dispatcher, ws.Options{}, log)

	groupService := services.NewGroupService(db, registry, 0)
	mux := http.NewServeMux()
	RegisterRoutes(mux,
		NewGroupHandlers(groupService, time.UTC),
		NewWebSocketHandlers(authService, manager, NewOriginPolicy(origins)),
	)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		manager.Shutdown()
		srv.Close()
	})
	return &testRelay{srv: srv, db: db, auth: authService, manager: manager}
}

func (tr *testRelay) wsURL(group, token string) string {
	u := "ws" + strings.TrimPrefix(tr.srv.URL, "http") + "/ws/" + url.PathEscape(group)
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

func (tr *testRelay) dial(t *testing.T, group, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(tr.wsURL(group, token), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (tr *testRelay) token(t *testing.T, userID int64, username string) string {
	t.Helper()
	token, err := tr.auth.IssueToken(userID, username)
	require.NoError(t, err)
	return token
}

func (tr *testRelay) waitForMembers(t *testing.T, group string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return tr.manager.Registry().Count(group) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func (tr *testRelay) page(t *testing.T, group string) models.GroupPage {
	t.Helper()
	resp, err := http.Get(tr.srv.URL + "/groups/" + url.PathEscape(group) + "?format=json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page models.GroupPage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	return page
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestWebSocket_PostAndDelete(t *testing.T) {
	req := require.New(t)
	tr := newTestRelay(t)

	alice := tr.dial(t, "lobby", tr.token(t, 1, "alice"))
	bob := tr.dial(t, "lobby", tr.token(t, 2, "bob"))
	tr.waitForMembers(t, "lobby", 2)

	req.NoError(alice.WriteJSON(map[string]any{"message": "hello"}))
	evt := readEvent(t, alice)
	req.Equal("chat", evt["type"])
	req.Equal("alice", evt["user"])
	id := evt["message_id"]
	req.NotNil(id)
	req.Equal(evt, readEvent(t, bob))

	// bob cannot delete alice's message; nobody hears about it. bob's
	// frames are handled in order, so his typing event arriving means the
	// delete attempt is done.
	req.NoError(bob.WriteJSON(map[string]any{"type": "delete", "message_id": id}))
	req.NoError(bob.WriteJSON(map[string]any{"type": "typing", "typing": true}))
	for _, conn := range []*websocket.Conn{alice, bob} {
		req.Equal("typing", readEvent(t, conn)["type"])
	}

	page := tr.page(t, "lobby")
	req.Len(page.Messages, 1)
	req.Equal(id, float64(page.Messages[0].ID))
	req.Equal("hello", page.Messages[0].Content)

	req.NoError(alice.WriteJSON(map[string]any{"type": "delete", "message_id": id}))
	for _, conn := range []*websocket.Conn{alice, bob} {
		evt := readEvent(t, conn)
		req.Equal("delete", evt["type"])
		req.Equal(id, evt["message_id"])
	}

	req.Empty(tr.page(t, "lobby").Messages)
}

func TestWebSocket_Rejections(t *testing.T) {
	tr := newTestRelay(t, "https://chat.example.com")

	t.Run("invalid token", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(tr.wsURL("lobby", "not-a-token"), nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid group", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(tr.wsURL(" ", ""), nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("disallowed origin", func(t *testing.T) {
		header := http.Header{"Origin": {"https://evil.example.com"}}
		_, resp, err := websocket.DefaultDialer.Dial(tr.wsURL("lobby", ""), header)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("allowed origin", func(t *testing.T) {
		header := http.Header{"Origin": {"https://CHAT.example.com"}}
		conn, resp, err := websocket.DefaultDialer.Dial(tr.wsURL("lobby", ""), header)
		require.NoError(t, err)
		resp.Body.Close()
		conn.Close()
	})
}

func TestGroupPage(t *testing.T) {
	ctx := context.Background()
	tr := newTestRelay(t)

	group, err := tr.db.GetOrCreateGroup(ctx, "lobby")
	require.NoError(t, err)
	_, err = tr.db.CreateMessage(ctx, models.Author{UserID: 1, Username: "alice"}, group.ID, "<b>hi</b>")
	require.NoError(t, err)

	t.Run("html", func(t *testing.T) {
		req := require.New(t)
		resp, err := http.Get(tr.srv.URL + "/groups/lobby")
		req.NoError(err)
		defer resp.Body.Close()

		req.Equal(http.StatusOK, resp.StatusCode)
		req.Contains(resp.Header.Get("Content-Type"), "text/html")
		body, err := io.ReadAll(resp.Body)
		req.NoError(err)
		req.Contains(string(body), "&lt;b&gt;hi&lt;/b&gt;")
		req.Contains(string(body), "alice")
	})

	t.Run("json via accept header", func(t *testing.T) {
		req := require.New(t)
		r, err := http.NewRequest(http.MethodGet, tr.srv.URL+"/groups/lobby", nil)
		req.NoError(err)
		r.Header.Set("Accept", "application/json")
		resp, err := http.DefaultClient.Do(r)
		req.NoError(err)
		defer resp.Body.Close()

		var page models.GroupPage
		req.NoError(json.NewDecoder(resp.Body).Decode(&page))
		req.Equal("lobby", page.Group.Name)
		req.Len(page.Messages, 1)
		req.Equal("<b>hi</b>", page.Messages[0].Content)
	})

	t.Run("unknown group is created", func(t *testing.T) {
		req := require.New(t)
		resp, err := http.Get(tr.srv.URL + "/groups/kitchen?format=json")
		req.NoError(err)
		defer resp.Body.Close()
		req.Equal(http.StatusOK, resp.StatusCode)

		groups, err := tr.db.ListGroups(ctx)
		req.NoError(err)
		req.Len(groups, 2)
	})
}

func TestActiveSessions(t *testing.T) {
	req := require.New(t)
	tr := newTestRelay(t)

	tr.dial(t, "lobby", "")
	tr.dial(t, "lobby", "")
	tr.waitForMembers(t, "lobby", 2)

	resp, err := http.Get(tr.srv.URL + "/groups/lobby/active")
	req.NoError(err)
	defer resp.Body.Close()

	var count models.ActiveCount
	req.NoError(json.NewDecoder(resp.Body).Decode(&count))
	req.Equal(models.ActiveCount{Group: "lobby", Sessions: 2}, count)
}

func TestOriginPolicy(t *testing.T) {
	check := func(p *OriginPolicy, origin string) bool {
		r := httptest.NewRequest(http.MethodGet, "/ws/lobby", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return p.Check(r)
	}

	open := NewOriginPolicy(nil)
	require.True(t, check(open, "https://anything.example"))

	wildcard := NewOriginPolicy([]string{"https://a.example", "*"})
	require.True(t, check(wildcard, "https://b.example"))

	strict := NewOriginPolicy([]string{" https://A.example ", "not a url"})
	require.True(t, check(strict, "https://a.example"))
	require.True(t, check(strict, ""))
	require.False(t, check(strict, "https://b.example"))
	require.False(t, check(strict, "::bad"))
}

func TestOriginPolicy_CORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	serve := func(p *OriginPolicy, method, origin string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(method, "/groups/lobby", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		rec := httptest.NewRecorder()
		p.CORS(next).ServeHTTP(rec, r)
		return rec
	}

	t.Run("open policy allows any origin", func(t *testing.T) {
		rec := serve(NewOriginPolicy(nil), http.MethodGet, "https://anything.example")
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("restricted policy echoes allowed origins", func(t *testing.T) {
		p := NewOriginPolicy([]string{"https://chat.example.com"})

		rec := serve(p, http.MethodGet, "https://chat.example.com")
		require.Equal(t, "https://chat.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "Origin", rec.Header().Get("Vary"))

		rec = serve(p, http.MethodGet, "https://evil.example.com")
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight is answered", func(t *testing.T) {
		rec := serve(NewOriginPolicy(nil), http.MethodOptions, "https://anything.example")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
	})
}
