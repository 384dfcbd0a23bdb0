// Package config provides configuration management for gosandbox.
package config

import (
	"time"

	"github.com/victoralfred/gosandbox/observability"
	"github.com/victoralfred/gosandbox/resilience"
)

// Config is the main configuration for gosandbox.
type Config struct {
	RateLimiter    resilience.RateLimiterConfig
	Telemetry      observability.TelemetryConfig
	PolicyPath     string
	PolicyBasePath string
	AuditBasePath  string
	Executor       ExecutorConfig
}

// ExecutorConfig configures the executor.
type ExecutorConfig struct {
	Interpreter      string
	QuarantineDir    string
	AnomalyThreshold time.Duration
	EnableRateLimit  bool
	EnableMetrics    bool
	EnableTracing    bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Executor: ExecutorConfig{
			Interpreter:      "python3",
			QuarantineDir:    "/tmp/sandbox_quarantine",
			AnomalyThreshold: 250 * time.Second,
			EnableRateLimit:  true,
			EnableMetrics:    true,
			EnableTracing:    true,
		},
		RateLimiter:    resilience.DefaultRateLimiterConfig(),
		Telemetry:      observability.DefaultTelemetryConfig(),
		PolicyPath:     "policy.yaml",
		PolicyBasePath: "/etc/gosandbox",
		AuditBasePath:  "/var/log/gosandbox",
	}
}

// DevelopmentConfig returns configuration suitable for development.
func DevelopmentConfig() Config {
	cfg := DefaultConfig()
	cfg.Executor.EnableRateLimit = false
	cfg.RateLimiter.DefaultLimit = 1000
	cfg.RateLimiter.DefaultBurst = 2000
	cfg.Telemetry.Environment = "development"
	return cfg
}

// ProductionConfig returns configuration suitable for production.
func ProductionConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimiter.DefaultLimit = 5
	cfg.RateLimiter.DefaultBurst = 10
	cfg.Telemetry.Environment = "production"
	return cfg
}

// Validate validates the configuration, filling unusable values with
// defaults.
func (c *Config) Validate() error {
	if c.Executor.Interpreter == "" {
		c.Executor.Interpreter = "python3"
	}

	if c.Executor.AnomalyThreshold <= 0 {
		c.Executor.AnomalyThreshold = 250 * time.Second
	}

	if c.RateLimiter.DefaultBurst <= 0 {
		c.RateLimiter.DefaultBurst = 1
	}

	return nil
}
