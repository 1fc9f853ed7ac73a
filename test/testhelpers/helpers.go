// Package testhelpers provides common utilities for testing the Breakroom
// chat server.
//
// It contains reusable helpers for starting a fully wired test instance,
// dialing WebSocket clients, and reading typed protocol events, to reduce
// duplication across integration tests.
package testhelpers

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/breakroom/breakroom/internal/server"
)

// TestOrigin is the Origin header test clients present. Test instances allow
// all origins unless a test overrides the allow-list.
const TestOrigin = "http://test.local"

// ChatServer bundles a running chat service instance for integration tests.
type ChatServer struct {
	URL   string
	Hub   *server.Hub
	Store *server.Store
	HTTP  *httptest.Server
}

// StartChatServer wires a store, hub, and router and serves them from an
// httptest server. The optional mutate callback adjusts configuration before
// anything is built. Shutdown is registered as test cleanup.
func StartChatServer(t *testing.T, mutate func(*server.Config)) *ChatServer {
	t.Helper()

	cfg := server.DefaultConfig()
	cfg.AllowedOrigins = []string{"*"}
	// Generous rate limit so multi-frame tests never trip throttling.
	cfg.RateLimitBurst = 100
	if mutate != nil {
		mutate(&cfg)
	}

	store := server.NewStore(cfg.HistoryLimit)
	hub := server.NewHub(cfg, store, zerolog.Nop())
	go hub.Run()

	handler := server.NewHandler(hub, zerolog.Nop())
	ts := httptest.NewServer(server.NewRouter(handler, zerolog.Nop()))

	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})

	return &ChatServer{URL: ts.URL, Hub: hub, Store: store, HTTP: ts}
}

// WebSocketURL converts the test server's base URL to its ws:// endpoint.
func (cs *ChatServer) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(cs.URL, "http") + "/ws"
}

// Dial opens a WebSocket connection to the chat server with the standard test
// origin. The connection is closed on test cleanup.
func Dial(t *testing.T, cs *ChatServer) *websocket.Conn {
	t.Helper()
	return DialWithOrigin(t, cs, TestOrigin)
}

// DialWithOrigin opens a WebSocket connection presenting a specific Origin
// header.
func DialWithOrigin(t *testing.T, cs *ChatServer, origin string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Origin", origin)

	conn, resp, err := websocket.DefaultDialer.Dial(cs.WebSocketURL(), header)
	require.NoError(t, err, "WebSocket dial failed")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// SendEvent marshals and sends one event frame.
func SendEvent(t *testing.T, conn *websocket.Conn, event any) {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

// SendRaw sends an arbitrary text frame, valid or not.
func SendRaw(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

// ReadEnvelope reads the next event frame and returns its type discriminator
// together with the raw payload.
func ReadEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) (string, []byte) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err, "expected an event frame")

	var envelope struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(payload, &envelope))
	return envelope.Type, payload
}

// ReadEvent reads the next frame and requires it to have the given type,
// decoding the payload into out.
func ReadEvent(t *testing.T, conn *websocket.Conn, wantType string, out any) {
	t.Helper()

	gotType, payload := ReadEnvelope(t, conn, 2*time.Second)
	require.Equal(t, wantType, gotType, "unexpected event type (payload: %s)", payload)
	require.NoError(t, json.Unmarshal(payload, out))
}

// Join performs the join handshake for a connection and returns the init
// snapshot the server answers with.
func Join(t *testing.T, conn *websocket.Conn, username string) server.InitEvent {
	t.Helper()

	SendEvent(t, conn, map[string]string{"type": "join", "username": username})

	var init server.InitEvent
	ReadEvent(t, conn, "init", &init)
	require.NotEmpty(t, init.UserID, "init must carry the assigned user id")
	return init
}

// ExpectNoEvent asserts that no frame arrives within the wait window.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, payload, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no event, got frame: %s", payload)
	}

	var netErr net.Error
	require.ErrorAs(t, err, &netErr, "read should fail with a timeout, got: %v", err)
	require.True(t, netErr.Timeout(), "read should fail with a timeout, got: %v", err)
}
