package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/fleetwatch/internal/domain/threshold"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "fleetwatch.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "FLEETWATCH_PORT")
	setString(&cfg.Server.CORSOrigin, "FLEETWATCH_CORS_ORIGIN")
	setFloat64(&cfg.Server.RateLimit, "FLEETWATCH_RATE_LIMIT")
	setInt(&cfg.Server.RateBurst, "FLEETWATCH_RATE_BURST")
	setString(&cfg.Logging.Level, "FLEETWATCH_LOG_LEVEL")
	setString(&cfg.Logging.Service, "FLEETWATCH_LOG_SERVICE")
	setString(&cfg.Logging.Format, "FLEETWATCH_LOG_FORMAT")
	setBool(&cfg.Logging.Async, "FLEETWATCH_LOG_ASYNC")
	setInt(&cfg.Logging.AsyncBuffer, "FLEETWATCH_LOG_ASYNC_BUFFER")
	setInt(&cfg.Logging.AsyncWorkers, "FLEETWATCH_LOG_ASYNC_WORKERS")

	// Retention
	setInt(&cfg.Retention.Logs, "FLEETWATCH_RETENTION_LOGS")
	setInt(&cfg.Retention.Errors, "FLEETWATCH_RETENTION_ERRORS")
	setInt(&cfg.Retention.Audit, "FLEETWATCH_RETENTION_AUDIT")
	setInt(&cfg.Retention.Metrics, "FLEETWATCH_RETENTION_METRICS")
	setInt(&cfg.Retention.Hooks, "FLEETWATCH_RETENTION_HOOKS")

	setInt(&cfg.Bus.MaxDepth, "FLEETWATCH_BUS_MAX_DEPTH")
	setBool(&cfg.Threshold.SeedDefaults, "FLEETWATCH_THRESHOLD_SEED_DEFAULTS")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "FLEETWATCH_NATS_STREAM")
	setBool(&cfg.Relay.Enabled, "FLEETWATCH_RELAY_ENABLED")
	setInt(&cfg.Breaker.MaxFailures, "FLEETWATCH_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "FLEETWATCH_BREAKER_TIMEOUT")

	setInt64(&cfg.Cache.L1MaxSizeMB, "FLEETWATCH_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "FLEETWATCH_CACHE_TTL")
	setDuration(&cfg.Sampling.Interval, "FLEETWATCH_SAMPLING_INTERVAL")

	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")

	setString(&cfg.Notify.SlackWebhookURL, "FLEETWATCH_SLACK_WEBHOOK_URL")
	setString(&cfg.Notify.DiscordWebhookURL, "FLEETWATCH_DISCORD_WEBHOOK_URL")
	setString(&cfg.Notify.MinSeverity, "FLEETWATCH_NOTIFY_MIN_SEVERITY")
	setBool(&cfg.Notify.AgentErrors, "FLEETWATCH_NOTIFY_AGENT_ERRORS")
	setDuration(&cfg.Notify.Cooldown, "FLEETWATCH_NOTIFY_COOLDOWN")
}

// validate checks that required fields are set and bounds are sane.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.RateLimit < 0 {
		return errors.New("server.rate_limit must be >= 0")
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst < 1 {
		return errors.New("server.rate_burst must be >= 1 when rate limiting is enabled")
	}
	switch cfg.Logging.Format {
	case "auto", "json", "text":
	default:
		return fmt.Errorf("logging.format must be auto, json or text, got %q", cfg.Logging.Format)
	}
	r := cfg.Retention
	if r.Logs < 1 || r.Errors < 1 || r.Audit < 1 || r.Metrics < 1 || r.Hooks < 1 {
		return errors.New("retention caps must be >= 1")
	}
	if cfg.Bus.MaxDepth < 1 {
		return errors.New("bus.max_depth must be >= 1")
	}
	for _, rule := range cfg.Threshold.Rules {
		if rule.ID == "" {
			return errors.New("threshold.rules: id is required")
		}
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("threshold.rules %s: %w", rule.ID, err)
		}
	}
	if cfg.NATS.URL != "" && cfg.NATS.Stream == "" {
		return errors.New("nats.stream is required when nats.url is set")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Cache.L1MaxSizeMB < 0 {
		return errors.New("cache.l1_max_size_mb must be >= 0")
	}
	if cfg.Sampling.Interval < 0 {
		return errors.New("sampling.interval must be >= 0")
	}
	if !threshold.Severity(cfg.Notify.MinSeverity).Valid() {
		return fmt.Errorf("notify.min_severity: unknown severity %q", cfg.Notify.MinSeverity)
	}
	if cfg.Notify.Cooldown < 0 {
		return errors.New("notify.cooldown must be >= 0")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
