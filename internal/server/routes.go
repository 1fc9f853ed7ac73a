// Package server wires HTTP handlers into a chi router for the Breakroom
// application.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// NewRouter configures and returns the application router with all routes and
// middleware: request ids, real client IPs, request logging, and panic
// recovery.
func NewRouter(h *Handler, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Get("/ws", h.WebSocket)

	return r
}

// requestLogger logs one structured line per request. WebSocket requests log
// when the connection ends, so their duration covers the session lifetime.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				log.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("duration", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("http request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
