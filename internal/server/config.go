// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the Breakroom service.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the server configuration settings. Every limit the chat engine
// enforces (history depth, username and message lengths, heartbeat cadence)
// is configurable here rather than hard-coded, with defaults matching the
// values the service shipped with.
type Config struct {
	Port           string   `envconfig:"SERVER_PORT" default:":8080" validate:"required"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`

	HistoryLimit     int   `envconfig:"HISTORY_LIMIT" default:"100" validate:"min=1,max=10000"`
	MaxUsernameChars int   `envconfig:"MAX_USERNAME_CHARS" default:"20" validate:"min=1,max=256"`
	MaxMessageChars  int   `envconfig:"MAX_MESSAGE_CHARS" default:"500" validate:"min=1,max=65536"`
	MaxFrameBytes    int64 `envconfig:"MAX_FRAME_BYTES" default:"4096" validate:"min=512"`

	PingInterval time.Duration `envconfig:"PING_INTERVAL" default:"30s" validate:"min=1s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s" validate:"min=1s"`
	SendBuffer   int           `envconfig:"SEND_BUFFER" default:"256" validate:"min=1"`

	RateLimitBurst          int           `envconfig:"RATE_LIMIT_BURST" default:"5" validate:"min=1"`
	RateLimitRefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s" validate:"min=100ms"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"min=1s"`
}

// LoadConfig builds a Config from environment variables, falling back to
// defaults for anything unset, and validates the result. A value outside the
// recognized bounds is a startup error, not something to silently clamp.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	// Allow SERVER_PORT to be given as "8080" or ":8080".
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	return cfg, nil
}

// DefaultConfig returns the configuration the server uses when no environment
// overrides are present. Useful for tests that need a known-good baseline.
func DefaultConfig() Config {
	return Config{
		Port:                    ":8080",
		AllowedOrigins:          []string{"http://localhost:8080"},
		LogLevel:                "info",
		HistoryLimit:            100,
		MaxUsernameChars:        20,
		MaxMessageChars:         500,
		MaxFrameBytes:           4096,
		PingInterval:            30 * time.Second,
		WriteTimeout:            10 * time.Second,
		SendBuffer:              256,
		RateLimitBurst:          5,
		RateLimitRefillInterval: time.Second,
		ShutdownTimeout:         10 * time.Second,
	}
}
