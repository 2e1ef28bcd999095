// Package config provides hierarchical configuration loading for fleetwatch.
// Precedence: defaults < YAML file < environment variables < CLI flags.
package config

import (
	"time"

	"github.com/Strob0t/fleetwatch/internal/domain/threshold"
)

// Config holds all runtime configuration for the fleetwatch service.
type Config struct {
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	Retention Retention `yaml:"retention"`
	Bus       Bus       `yaml:"bus"`
	Threshold Threshold `yaml:"threshold"`
	NATS      NATS      `yaml:"nats"`
	Relay     Relay     `yaml:"relay"`
	Breaker   Breaker   `yaml:"breaker"`
	Cache     Cache     `yaml:"cache"`
	Sampling  Sampling  `yaml:"sampling"`
	OTEL      OTEL      `yaml:"otel"`
	Notify    Notify    `yaml:"notify"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string  `yaml:"port"`
	CORSOrigin string  `yaml:"cors_origin"`
	RateLimit  float64 `yaml:"rate_limit"` // Mutation requests per second per IP (0 = unlimited)
	RateBurst  int     `yaml:"rate_burst"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level        string `yaml:"level"`
	Service      string `yaml:"service"`
	Format       string `yaml:"format"` // "auto" | "json" | "text"
	Async        bool   `yaml:"async"`
	AsyncBuffer  int    `yaml:"async_buffer"`
	AsyncWorkers int    `yaml:"async_workers"`
}

// Retention holds the caps of the bounded history buffers. Every cap must be at least 1.
type Retention struct {
	Logs    int `yaml:"logs"`
	Errors  int `yaml:"errors"`
	Audit   int `yaml:"audit"`
	Metrics int `yaml:"metrics"`
	Hooks   int `yaml:"hooks"`
}

// Bus holds hook bus configuration.
type Bus struct {
	MaxDepth int `yaml:"max_depth"` // Deepest cascade hop accepted (default: 4)
}

// Threshold holds threshold engine configuration.
type Threshold struct {
	SeedDefaults bool              `yaml:"seed_defaults"`
	Rules        []threshold.Named `yaml:"rules"` // Installed after the seed rules
}

// NATS holds NATS JetStream configuration. An empty URL disables ingest and relay.
type NATS struct {
	URL    string `yaml:"url"`
	Stream string `yaml:"stream"`
}

// Relay holds hook relay configuration.
type Relay struct {
	Enabled bool `yaml:"enabled"`
}

// Breaker holds circuit breaker configuration for the relay.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Cache holds the L1 response cache configuration.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	TTL         time.Duration `yaml:"ttl"`
}

// Sampling holds the periodic resource sampling configuration. Zero disables it.
type Sampling struct {
	Interval time.Duration `yaml:"interval"`
}

// OTEL holds OpenTelemetry exporter configuration. An empty endpoint disables export.
type OTEL struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Notify holds outbound alert notification configuration. Providers with an
// empty webhook URL are skipped.
type Notify struct {
	SlackWebhookURL   string `yaml:"slack_webhook_url"`
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
	MinSeverity       string `yaml:"min_severity"` // low | medium | high | critical
	AgentErrors       bool   `yaml:"agent_errors"` // Also notify when an agent enters the error state
	// Cooldown suppresses repeats of the same alert for the same agent.
	Cooldown time.Duration `yaml:"cooldown"`
}

// Defaults returns a Config with sensible defaults for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
			RateBurst:  50,
		},
		Logging: Logging{
			Level:        "info",
			Service:      "fleetwatch",
			Format:       "auto",
			AsyncBuffer:  10000,
			AsyncWorkers: 4,
		},
		Retention: Retention{
			Logs:    1000,
			Errors:  1000,
			Audit:   1000,
			Metrics: 10000,
			Hooks:   5000,
		},
		Bus: Bus{
			MaxDepth: 4,
		},
		Threshold: Threshold{
			SeedDefaults: true,
		},
		NATS: NATS{
			Stream: "FLEETWATCH",
		},
		Relay: Relay{
			Enabled: true,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Cache: Cache{
			L1MaxSizeMB: 16,
			TTL:         2 * time.Second,
		},
		OTEL: OTEL{
			ServiceName: "fleetwatch",
		},
		Notify: Notify{
			MinSeverity: "high",
			AgentErrors: true,
			Cooldown:    5 * time.Minute,
		},
	}
}
