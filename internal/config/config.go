package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"unibox/internal/constants"
	"unibox/internal/models"
	"unibox/internal/security"
)

var (
	ErrMissingDBPath      = models.ConfigError{Message: "missing database path"}
	ErrUnsupportedFormat  = models.ConfigError{Message: "unsupported config format (use .json, .yaml, or .yml)"}
	ErrInvalidLogLevel    = models.ConfigError{Message: "log level must be one of debug, info, warn, error"}
	ErrInvalidRetention   = models.ConfigError{Message: "retention days must be between 1 and 3650"}
	ErrInvalidRateLimit   = models.ConfigError{Message: "rate limit must be at least 1 request per minute"}
	ErrInvalidSampleRate  = models.ConfigError{Message: "tracing sample rate must be between 0 and 1"}
	ErrInvalidBufferSize  = models.ConfigError{Message: "event buffer size must be at least 1"}
	ErrInvalidMaxAttempts = models.ConfigError{Message: "retry max attempts must be at least 1"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		return nil, ErrUnsupportedFormat
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	// Perform security validation after environment overrides
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	if c.Server.Host == "" {
		c.Server.Host = constants.DefaultServerHost
	}
	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid server port: %d", c.Server.Port)}
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.Ingest.MaxContentLength <= 0 {
		c.Ingest.MaxContentLength = constants.DefaultMaxContentLength
	}
	if c.Ingest.OperatorIdentity == "" {
		c.Ingest.OperatorIdentity = constants.DefaultOperatorIdentity
	}

	if c.History.CleanupIntervalSec <= 0 {
		c.History.CleanupIntervalSec = constants.DefaultCleanupIntervalSec
	}

	if c.Events.BufferSize == 0 {
		c.Events.BufferSize = constants.DefaultEventBufferSize
	}
	if c.Events.BufferSize < 1 {
		return ErrInvalidBufferSize
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}
	if c.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = constants.DefaultRateLimitPerMinute
	}
	if c.RateLimit.RequestsPerMinute < 1 {
		return ErrInvalidRateLimit
	}

	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return ErrInvalidSampleRate
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "unibox"
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = "development"
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}

	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultRetentionDays
	}
	if c.RetentionDays > 3650 {
		return ErrInvalidRetention
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if path := os.Getenv("UNIBOX_DB_PATH"); path != "" {
		c.Database.Path = path
	}

	// SECURITY: Webhook secrets should be set via environment variables
	if secret := os.Getenv("UNIBOX_WEBHOOK_SECRET"); secret != "" {
		c.Server.WebhookSecret = secret
	}

	if level := os.Getenv("UNIBOX_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}

	if port := os.Getenv("UNIBOX_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if endpoint := os.Getenv("UNIBOX_TRACING_ENDPOINT"); endpoint != "" {
		c.Tracing.Endpoint = endpoint
		c.Tracing.Enabled = true
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	// Check if we're in production mode
	isProduction := os.Getenv("UNIBOX_ENV") == "production"

	if isProduction {
		// In production, the webhook secret is mandatory
		if c.Server.WebhookSecret == "" {
			return models.ConfigError{Message: "webhook secret is required in production (set UNIBOX_WEBHOOK_SECRET environment variable)"}
		}

		// Validate webhook secret strength
		if len(c.Server.WebhookSecret) < 32 {
			return models.ConfigError{Message: "webhook secret must be at least 32 characters long"}
		}

		// Warn about debug logging in production
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else {
		// In development, warn if secrets are missing
		if c.Server.WebhookSecret == "" {
			fmt.Fprintf(os.Stderr, "WARNING: webhook secret not set. Set UNIBOX_WEBHOOK_SECRET environment variable for security.\n")
		}
	}

	return nil
}
