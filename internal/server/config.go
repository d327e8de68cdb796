// Package server provides configuration loading with runtime defaults and
// validation for the Whisperwire service.
package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server configuration, populated from environment
// variables with sensible defaults for local development.
type Config struct {
	Addr            string        `env:"SERVER_ADDR" envDefault:":8080"`
	DatabasePath    string        `env:"DATABASE_PATH" envDefault:"whisperwire.db"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:8080"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE" envDefault:"4096"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST" envDefault:"10"`
	RateLimitRefill time.Duration `env:"RATE_LIMIT_REFILL" envDefault:"1s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoadConfig reads configuration from the environment and applies bounds.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg.sanitized(), nil
}

// DefaultConfig returns the built-in defaults without touching the
// environment; used by tests.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		DatabasePath:    "whisperwire.db",
		AllowedOrigins:  []string{"http://localhost:8080"},
		MaxMessageSize:  4096,
		RateLimitBurst:  10,
		RateLimitRefill: time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// sanitized clamps nonsensical values back to defaults rather than failing
// startup on a sloppy environment.
func (c Config) sanitized() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "whisperwire.db"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 10
	}
	if c.RateLimitRefill <= 0 {
		c.RateLimitRefill = time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}
