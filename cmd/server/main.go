package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/breakroom/breakroom/internal/server"
)

func main() {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := server.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("invalid log level")
	}
	logger = logger.Level(level)

	store := server.NewStore(cfg.HistoryLimit)
	hub := server.NewHub(cfg, store, logger)
	go hub.Run()

	handler := server.NewHandler(hub, logger)
	httpServer := server.CreateServer(cfg.Port, server.NewRouter(handler, logger))

	go func() {
		logger.Info().Str("addr", cfg.Port).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	// Stop accepting connections before tearing down the hub so no client
	// registers against a hub that is already draining.
	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn().Err(err).Msg("hub shutdown incomplete")
	}
}
