// Package config loads pipeline configuration from the environment.
// Variables are prefixed with SPANFLOW_, e.g. SPANFLOW_COLLECTOR_URL.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/spanflow/spanflow-go/core/redact"
)

const envPrefix = "spanflow"

// Config holds all pipeline configuration.
type Config struct {
	// CollectorURL is the base URL of the remote collector. When empty the
	// pipeline still buffers, but flushes discard spans with a warning.
	CollectorURL string `envconfig:"COLLECTOR_URL"`

	// APIKey is sent as "Authorization: ApiKey <key>".
	APIKey string `envconfig:"API_KEY"`

	// FlushInterval is the auto-flush period.
	FlushInterval time.Duration `envconfig:"FLUSH_INTERVAL" default:"5s"`

	// MaxBufferEntries bounds the in-memory buffer; excess appends are
	// dropped.
	MaxBufferEntries int `envconfig:"MAX_BUFFER_ENTRIES" default:"10000"`

	// MaxBatchBytes bounds the serialized size of one transport payload.
	MaxBatchBytes int `envconfig:"MAX_BATCH_BYTES" default:"5242880"`

	// SendTimeout bounds each batch send against the collector.
	SendTimeout time.Duration `envconfig:"SEND_TIMEOUT" default:"30s"`

	// SendRetryMax is the number of HTTP-level retries per send attempt,
	// before the pipeline's own requeue takes over.
	SendRetryMax int `envconfig:"SEND_RETRY_MAX" default:"0"`

	// RedactionFilters is the comma-separated enabled rule set.
	RedactionFilters string `envconfig:"REDACTION_FILTERS" default:"RemovePasswords,RemoveJWT"`

	// CheckpointPath, when set, enables spilling undelivered spans to a
	// BoltDB file at shutdown and restoring them on the next start.
	CheckpointPath string `envconfig:"CHECKPOINT_PATH"`

	// LogLevel is the minimum level emitted, e.g. "debug", "info", "warn".
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// LogDevelopment switches from JSON output to colored console output.
	LogDevelopment bool `envconfig:"LOG_DEV" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string
	Development bool
}

// LogConfig bundles the logging fields for the logger constructor.
func (c *Config) LogConfig() LogConfig {
	return LogConfig{Level: c.LogLevel, Development: c.LogDevelopment}
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		FlushInterval:    5 * time.Second,
		MaxBufferEntries: 10000,
		MaxBatchBytes:    5 * 1024 * 1024,
		SendTimeout:      30 * time.Second,
		RedactionFilters: "RemovePasswords,RemoveJWT",
		LogLevel:         "info",
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.MaxBufferEntries <= 0 {
		return fmt.Errorf("max_buffer_entries must be greater than 0, got %d", c.MaxBufferEntries)
	}
	if c.MaxBatchBytes <= 0 {
		return fmt.Errorf("max_batch_bytes must be greater than 0, got %d", c.MaxBatchBytes)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive, got %s", c.FlushInterval)
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("send_timeout must be positive, got %s", c.SendTimeout)
	}
	if c.SendRetryMax < 0 {
		return fmt.Errorf("send_retry_max must not be negative, got %d", c.SendRetryMax)
	}
	if _, err := redact.ParseRules(c.RedactionFilters); err != nil {
		return fmt.Errorf("invalid redaction_filters: %w", err)
	}
	return nil
}

// Rules parses the enabled redaction rule set.
func (c *Config) Rules() ([]redact.Rule, error) {
	return redact.ParseRules(c.RedactionFilters)
}
