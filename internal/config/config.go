package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" default:"development"`
	Port     string `env:"PORT" default:"8080"`
	RedisURL string `env:"REDIS_URL"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// AllowedOrigins is a comma-separated list of origins permitted to open
	// websocket connections and issue cross-origin API calls. "*" allows all.
	AllowedOrigins string `env:"ALLOWED_ORIGINS" default:"*"`

	MaxConnections int `env:"MAX_CONNECTIONS" default:"10000"`

	// API request rate limiting, per client IP and instance.
	RequestRateLimit float64 `env:"REQUEST_RATE_LIMIT" default:"50"`
	RequestRateBurst int     `env:"REQUEST_RATE_BURST" default:"100"`

	// Vote rate limiting, per client IP and shared across instances.
	VoteRateLimit float64 `env:"VOTE_RATE_LIMIT" default:"25"`
	VoteRateBurst int     `env:"VOTE_RATE_BURST" default:"50"`

	// Websocket connection limits, per client IP.
	WSMaxPerIP     int     `env:"WS_MAX_PER_IP" default:"64"`
	WSConnectRate  float64 `env:"WS_CONNECT_RATE" default:"10"`
	WSConnectBurst int     `env:"WS_CONNECT_BURST" default:"20"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be positive, got %d", cfg.MaxConnections)
	}

	if cfg.RequestRateLimit <= 0 || cfg.RequestRateBurst <= 0 {
		return fmt.Errorf("REQUEST_RATE_LIMIT and REQUEST_RATE_BURST must be positive")
	}

	if cfg.VoteRateLimit <= 0 || cfg.VoteRateBurst <= 0 {
		return fmt.Errorf("VOTE_RATE_LIMIT and VOTE_RATE_BURST must be positive")
	}

	if cfg.WSMaxPerIP <= 0 || cfg.WSConnectRate <= 0 || cfg.WSConnectBurst <= 0 {
		return fmt.Errorf("WS_MAX_PER_IP, WS_CONNECT_RATE and WS_CONNECT_BURST must be positive")
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", cfg.ShutdownTimeout)
	}

	return nil
}

// Origins returns the allowed origins as a slice, trimming whitespace
// around each entry.
func (c *Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
