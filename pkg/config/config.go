// Package config provides configuration structures and loading logic for the
// webhook gateway.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/custodix/custos-oss/pkg/domain"
)

// Backend identifiers for the pluggable dedupe store and processing queue.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendAMQP   = "amqp"
)

// Config holds the global configuration for the gateway.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Custody    CustodyConfig    `yaml:"custody"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Preflight  PreflightConfig  `yaml:"preflight"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP servers.
type ServerConfig struct {
	WebhookAddress string `yaml:"webhook_address" env:"CUSTOS_WEBHOOK_ADDR"`
	AdminAddress   string `yaml:"admin_address"   env:"CUSTOS_ADMIN_ADDR"`
}

// CustodyConfig holds the custody provider credentials and environment.
// Credentials are normally injected through the environment rather than the
// file; they are read once at startup and never hot-rotated.
type CustodyConfig struct {
	Enabled        bool          `yaml:"enabled"`
	APIKey         string        `yaml:"api_key"         env:"CUSTOS_CUSTODY_API_KEY"`
	SecretKey      string        `yaml:"secret_key"      env:"CUSTOS_CUSTODY_SECRET_KEY"`
	BasePath       string        `yaml:"base_path"       env:"CUSTOS_CUSTODY_BASE_PATH"`
	WebhookSecret  string        `yaml:"webhook_secret"  env:"CUSTOS_CUSTODY_WEBHOOK_SECRET"`
	Environment    string        `yaml:"environment"     env:"CUSTOS_CUSTODY_ENVIRONMENT"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// WebhookConfig tunes the inbound event pipeline.
type WebhookConfig struct {
	DedupeBackend string        `yaml:"dedupe_backend"`
	DedupeTTL     time.Duration `yaml:"dedupe_ttl"`
	RedisAddr     string        `yaml:"redis_addr"   env:"CUSTOS_REDIS_ADDR"`
	QueueBackend  string        `yaml:"queue_backend"`
	QueueCapacity int           `yaml:"queue_capacity"`
	QueueWorkers  int           `yaml:"queue_workers"`
	AMQPURI       string        `yaml:"amqp_uri"     env:"CUSTOS_AMQP_URI"`
	AMQPExchange  string        `yaml:"amqp_exchange"`
	RateLimit     RateLimit     `yaml:"rate_limit"`
}

// RateLimit bounds inbound webhook deliveries.
type RateLimit struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

// ResilienceConfig tunes the custody circuit breaker.
type ResilienceConfig struct {
	MaxFailures       int           `yaml:"max_failures"`
	OpenTimeout       time.Duration `yaml:"open_timeout"`
	MaxHalfOpenProbes int           `yaml:"max_half_open_probes"`
}

// PreflightConfig parameterizes the transfer preflight rules.
type PreflightConfig struct {
	AllowedAssets []string `yaml:"allowed_assets"`
	MaxAmount     float64  `yaml:"max_amount"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"CUSTOS_OTLP_ENDPOINT"`
	Insecure     bool   `yaml:"insecure"      env:"CUSTOS_OTLP_INSECURE"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"CUSTOS_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration defaults applied before file and
// environment values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			WebhookAddress: ":8090",
			AdminAddress:   ":19090",
		},
		Custody: CustodyConfig{
			Environment:    "sandbox",
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
		},
		Webhook: WebhookConfig{
			DedupeBackend: BackendMemory,
			DedupeTTL:     24 * time.Hour,
			QueueBackend:  BackendMemory,
			QueueCapacity: 256,
			QueueWorkers:  4,
			RateLimit: RateLimit{
				RequestsPerSecond: 50,
				BurstSize:         100,
			},
		},
		Resilience: ResilienceConfig{
			MaxFailures:       5,
			OpenTimeout:       30 * time.Second,
			MaxHalfOpenProbes: 3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a file and applies environment variable
// overrides. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Environment overrides win over both defaults and the file.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field consistency. Credential presence is enforced
// by the custody options provider, which owns that contract.
func (c *Config) Validate() error {
	switch c.Webhook.DedupeBackend {
	case BackendMemory:
	case BackendRedis:
		if c.Webhook.RedisAddr == "" {
			return fmt.Errorf("%w: redis dedupe backend requires webhook.redis_addr", domain.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown dedupe backend %q", domain.ErrConfigInvalid, c.Webhook.DedupeBackend)
	}

	switch c.Webhook.QueueBackend {
	case BackendMemory:
	case BackendAMQP:
		if c.Webhook.AMQPURI == "" {
			return fmt.Errorf("%w: amqp queue backend requires webhook.amqp_uri", domain.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown queue backend %q", domain.ErrConfigInvalid, c.Webhook.QueueBackend)
	}

	if c.Webhook.QueueCapacity < 0 || c.Webhook.QueueWorkers < 0 {
		return fmt.Errorf("%w: queue capacity and workers must be non-negative", domain.ErrConfigInvalid)
	}
	if c.Custody.MaxRetries < 0 {
		return fmt.Errorf("%w: custody.max_retries must be non-negative", domain.ErrConfigInvalid)
	}

	return nil
}
