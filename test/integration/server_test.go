// Package integration contains end-to-end tests that exercise the chat
// service through real HTTP and WebSocket connections.
package integration

import (
	"io"
	"net/http"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breakroom/breakroom/internal/server"
	"github.com/breakroom/breakroom/test/testhelpers"
)

func TestHealthEndpoint(t *testing.T) {
	cs := testhelpers.StartChatServer(t, nil)

	resp, err := http.Get(cs.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "running")
}

func TestOriginValidation(t *testing.T) {
	allowed := "http://allowed.test"
	cs := testhelpers.StartChatServer(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{allowed}
	})

	t.Run("allowed origin connects", func(t *testing.T) {
		conn := testhelpers.DialWithOrigin(t, cs, allowed)
		testhelpers.Join(t, conn, "Ann")
	})

	t.Run("blocked origin is rejected", func(t *testing.T) {
		header := http.Header{}
		header.Set("Origin", "http://blocked.test")

		conn, resp, err := websocket.DefaultDialer.Dial(cs.WebSocketURL(), header)
		require.Error(t, err)
		if conn != nil {
			_ = conn.Close()
		}
		require.NotNil(t, resp)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
