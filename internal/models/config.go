package models

// Config holds the application configuration
type Config struct {
	Server        ServerConfig    `json:"server" yaml:"server"`
	Database      DatabaseConfig  `json:"database" yaml:"database"`
	Ingest        IngestConfig    `json:"ingest" yaml:"ingest"`
	History       HistoryConfig   `json:"history" yaml:"history"`
	Events        EventsConfig    `json:"events" yaml:"events"`
	Retry         RetryConfig     `json:"retry" yaml:"retry"`
	RateLimit     RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Tracing       TracingConfig   `json:"tracing" yaml:"tracing"`
	LogLevel      string          `json:"log_level" yaml:"log_level"`
	RetentionDays int             `json:"retentionDays" yaml:"retentionDays"`
}

// ServerConfig holds HTTP server related configurations
type ServerConfig struct {
	Host            string `json:"host" yaml:"host"`
	Port            int    `json:"port" yaml:"port"`
	ReadTimeoutSec  int    `json:"readTimeoutSec" yaml:"readTimeoutSec"`
	WriteTimeoutSec int    `json:"writeTimeoutSec" yaml:"writeTimeoutSec"`
	IdleTimeoutSec  int    `json:"idleTimeoutSec" yaml:"idleTimeoutSec"`
	WebhookSecret   string `json:"webhook_secret" yaml:"webhook_secret"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// IngestConfig holds ingestion related configurations
type IngestConfig struct {
	MaxContentLength int    `json:"maxContentLength" yaml:"maxContentLength"`
	OperatorIdentity string `json:"operator_identity" yaml:"operator_identity"`
}

// HistoryConfig holds audit log related configurations
type HistoryConfig struct {
	Enabled            bool `json:"enabled" yaml:"enabled"`
	CleanupIntervalSec int  `json:"cleanupIntervalSec" yaml:"cleanupIntervalSec"`
}

// EventsConfig holds the WebSocket event stream configurations
type EventsConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	BufferSize int  `json:"bufferSize" yaml:"bufferSize"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs" yaml:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs" yaml:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts" yaml:"maxAttempts"`
}

// RateLimitConfig holds the per-IP API rate limit configurations
type RateLimitConfig struct {
	Enabled           bool `json:"enabled" yaml:"enabled"`
	RequestsPerMinute int  `json:"requestsPerMinute" yaml:"requestsPerMinute"`
}

// TracingConfig holds OpenTelemetry related configurations
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	UseStdout   bool    `json:"useStdout" yaml:"useStdout"`
	SampleRate  float64 `json:"sampleRate" yaml:"sampleRate"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	Environment string  `json:"environment" yaml:"environment"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
