// Package server provides configuration loading with runtime defaults,
// validation, and rate-limiting parameters for the roomcast service.
package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/quangtn/roomcast/internal/chat"
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST" envDefault:"5"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"1s"`
}

// Config holds the server configuration settings, including security
// controls and the fixed chat room set.
type Config struct {
	Port               string   `env:"SERVER_PORT" envDefault:":8080"`
	AllowedOrigins     []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:8080"`
	MaxMessageSize     int64    `env:"MAX_MESSAGE_SIZE" envDefault:"4096"`
	Rooms              []string `env:"CHAT_ROOMS" envDefault:"general,tech,random"`
	MaxMessagesPerRoom int      `env:"MAX_MESSAGES_PER_ROOM" envDefault:"100"`
	RateLimit          RateLimitConfig
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.sanitize()
	return cfg
}

// NewConfigFromEnv creates a Config from environment variables, falling back
// to defaults for anything unset. Invalid values are replaced rather than
// rejected so a misconfigured knob cannot keep the server from starting.
func NewConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.sanitize()
	return cfg, nil
}

func (cfg *Config) sanitize() {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:8080"}
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	if len(cfg.Rooms) == 0 {
		cfg.Rooms = append([]string(nil), chat.DefaultRooms...)
	}
	if cfg.MaxMessagesPerRoom <= 0 {
		cfg.MaxMessagesPerRoom = chat.DefaultMaxMessagesPerRoom
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
}
