package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/fleetwatch/internal/domain/threshold"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleetwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Retention.Metrics != 10000 || cfg.Retention.Hooks != 5000 {
		t.Errorf("unexpected retention defaults: %+v", cfg.Retention)
	}
	if cfg.Retention.Errors != 1000 {
		t.Errorf("expected errors capped at 1000, got %d", cfg.Retention.Errors)
	}
	if cfg.Bus.MaxDepth != 4 {
		t.Errorf("expected max depth 4, got %d", cfg.Bus.MaxDepth)
	}
	if !cfg.Threshold.SeedDefaults {
		t.Error("expected seed_defaults on by default")
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
	if cfg.NATS.URL != "" {
		t.Errorf("expected NATS disabled by default, got %s", cfg.NATS.URL)
	}
	if err := validate(&cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "9090"
logging:
  level: "debug"
  format: "text"
retention:
  metrics: 500
threshold:
  seed_defaults: false
  rules:
    - id: queue-depth
      metric: queue_depth
      operator: ">="
      value: 100
      severity: high
`)

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging: %+v", cfg.Logging)
	}
	if cfg.Retention.Metrics != 500 {
		t.Errorf("expected metrics cap 500, got %d", cfg.Retention.Metrics)
	}
	// Unchanged fields keep defaults
	if cfg.Retention.Logs != 1000 {
		t.Errorf("expected default logs cap, got %d", cfg.Retention.Logs)
	}
	if cfg.Threshold.SeedDefaults {
		t.Error("expected seed_defaults false from YAML")
	}
	if len(cfg.Threshold.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(cfg.Threshold.Rules))
	}
	r := cfg.Threshold.Rules[0]
	if r.ID != "queue-depth" || r.Metric != "queue_depth" || r.Operator != threshold.OpGreaterEqual || r.Value != 100 {
		t.Errorf("unexpected rule: %+v", r)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, "/nonexistent/path.yaml"); err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestLoadFromMalformedYAML(t *testing.T) {
	path := writeYAML(t, "server: [unclosed")
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("FLEETWATCH_PORT", "7070")
	t.Setenv("FLEETWATCH_LOG_LEVEL", "warn")
	t.Setenv("FLEETWATCH_RETENTION_HOOKS", "42")
	t.Setenv("FLEETWATCH_BUS_MAX_DEPTH", "2")
	t.Setenv("FLEETWATCH_SAMPLING_INTERVAL", "15s")
	t.Setenv("FLEETWATCH_THRESHOLD_SEED_DEFAULTS", "false")
	t.Setenv("NATS_URL", "nats://queue:4222")
	t.Setenv("FLEETWATCH_SLACK_WEBHOOK_URL", "https://hooks.slack.test/x")
	t.Setenv("FLEETWATCH_NOTIFY_MIN_SEVERITY", "critical")

	loadEnv(&cfg)

	if cfg.Notify.SlackWebhookURL != "https://hooks.slack.test/x" || cfg.Notify.MinSeverity != "critical" {
		t.Errorf("unexpected notify config from env: %+v", cfg.Notify)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Retention.Hooks != 42 {
		t.Errorf("expected hooks cap 42, got %d", cfg.Retention.Hooks)
	}
	if cfg.Bus.MaxDepth != 2 {
		t.Errorf("expected max depth 2, got %d", cfg.Bus.MaxDepth)
	}
	if cfg.Sampling.Interval != 15*time.Second {
		t.Errorf("expected sampling 15s, got %v", cfg.Sampling.Interval)
	}
	if cfg.Threshold.SeedDefaults {
		t.Error("expected seed_defaults false from env")
	}
	if cfg.NATS.URL != "nats://queue:4222" {
		t.Errorf("expected NATS URL from env, got %s", cfg.NATS.URL)
	}
}

func TestEnvInvalidValuesIgnored(t *testing.T) {
	cfg := Defaults()
	t.Setenv("FLEETWATCH_RETENTION_LOGS", "lots")
	t.Setenv("FLEETWATCH_BREAKER_TIMEOUT", "soon")

	loadEnv(&cfg)

	if cfg.Retention.Logs != 1000 {
		t.Errorf("invalid int should be ignored, got %d", cfg.Retention.Logs)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("invalid duration should be ignored, got %v", cfg.Breaker.Timeout)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "9090"
`)
	t.Setenv("FLEETWATCH_PORT", "7070")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected env to win over YAML, got %s", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }, "server.port"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"negative retention", func(c *Config) { c.Retention.Errors = -1 }, "retention"},
		{"zero error retention", func(c *Config) { c.Retention.Errors = 0 }, "retention caps must be >= 1"},
		{"zero hook retention", func(c *Config) { c.Retention.Hooks = 0 }, "retention caps must be >= 1"},
		{"zero depth", func(c *Config) { c.Bus.MaxDepth = 0 }, "bus.max_depth"},
		{"rule without id", func(c *Config) {
			c.Threshold.Rules = []threshold.Named{{Rule: threshold.Rule{Metric: "m", Operator: ">", Severity: "low"}}}
		}, "id is required"},
		{"invalid rule", func(c *Config) {
			c.Threshold.Rules = []threshold.Named{{ID: "r", Rule: threshold.Rule{Metric: "m", Operator: "~", Severity: "low"}}}
		}, "threshold.rules r"},
		{"nats without stream", func(c *Config) { c.NATS.URL = "nats://x"; c.NATS.Stream = "" }, "nats.stream"},
		{"zero breaker", func(c *Config) { c.Breaker.MaxFailures = 0 }, "breaker.max_failures"},
		{"negative sampling", func(c *Config) { c.Sampling.Interval = -time.Second }, "sampling.interval"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }, "server.rate_limit"},
		{"limit without burst", func(c *Config) { c.Server.RateLimit = 5; c.Server.RateBurst = 0 }, "server.rate_burst"},
		{"unknown notify severity", func(c *Config) { c.Notify.MinSeverity = "urgent" }, "notify.min_severity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got %v", tt.want, err)
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	flags, err := ParseFlags([]string{"--port", "9090", "--log-level", "debug"})
	if err != nil {
		t.Fatal(err)
	}

	if flags.Port == nil || *flags.Port != "9090" {
		t.Errorf("expected port 9090, got %v", flags.Port)
	}
	if flags.LogLevel == nil || *flags.LogLevel != "debug" {
		t.Errorf("expected log-level debug, got %v", flags.LogLevel)
	}
	// Unset flags remain nil
	if flags.NatsURL != nil {
		t.Errorf("expected nil NatsURL, got %v", *flags.NatsURL)
	}
	if flags.ConfigPath != nil {
		t.Errorf("expected nil ConfigPath, got %v", *flags.ConfigPath)
	}
}

func TestParseFlagsShorthand(t *testing.T) {
	flags, err := ParseFlags([]string{"-p", "7070", "-c", "custom.yaml"})
	if err != nil {
		t.Fatal(err)
	}
	if flags.Port == nil || *flags.Port != "7070" {
		t.Errorf("expected port 7070, got %v", flags.Port)
	}
	if flags.ConfigPath == nil || *flags.ConfigPath != "custom.yaml" {
		t.Errorf("expected config custom.yaml, got %v", flags.ConfigPath)
	}
}

func TestParseFlagsInvalid(t *testing.T) {
	if _, err := ParseFlags([]string{"--unknown-flag"}); err == nil {
		t.Error("expected error for unknown flag, got nil")
	}
}

func TestCLIOverridesEnv(t *testing.T) {
	t.Setenv("FLEETWATCH_PORT", "7070")
	t.Setenv("FLEETWATCH_LOG_LEVEL", "warn")

	flags, err := ParseFlags([]string{"--port", "3333", "--log-level", "error", "-c", filepath.Join(t.TempDir(), "none.yaml")})
	if err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadWithCLI(flags)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "3333" {
		t.Errorf("expected CLI port 3333 to override ENV 7070, got %s", cfg.Server.Port)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("expected CLI log-level error to override ENV warn, got %s", cfg.Logging.Level)
	}
}

func TestLoadWithCLICustomConfig(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "5555"
`)
	flags, err := ParseFlags([]string{"--config", path})
	if err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := LoadWithCLI(flags)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path {
		t.Errorf("expected resolved path %s, got %s", path, resolved)
	}
	if cfg.Server.Port != "5555" {
		t.Errorf("expected port 5555 from custom YAML, got %s", cfg.Server.Port)
	}
}
