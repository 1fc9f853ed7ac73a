// Package server exposes HTTP handlers, including the WebSocket upgrade and
// health check endpoints.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Handler bundles the HTTP endpoints with their hub and upgrader.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler builds the HTTP handler set for a hub. The upgrader enforces the
// configured origin allow-list.
func NewHandler(hub *Hub, log zerolog.Logger) *Handler {
	policy := newOriginPolicy(hub.cfg.AllowedOrigins, log)

	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
		log: log,
	}
}

// WebSocket handles WebSocket upgrade requests and hands the connection to
// the hub, which launches the client's read/write pumps.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, h.hub, r.RemoteAddr)

	select {
	case h.hub.register <- client:
	case <-h.hub.ctx.Done():
		client.closeConnection()
	}
}

// Health provides a simple health check endpoint that returns server status.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Breakroom server is running!")
}
