// Package config loads server configuration. Precedence is built-in
// defaults, then an optional YAML profile named by WEBHOOKD_CONFIG, then
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	// DatabaseURL is the PostgreSQL DSN. Empty selects lite mode: an
	// embedded SQLite database under DataDir.
	DatabaseURL string
	DataDir     string
	DBTimezone  string
	// DBAutoCreate controls whether the store creates its schema at boot.
	DBAutoCreate bool

	OperationTimeout time.Duration
	ProcessingDelay  time.Duration
	StaleTimeout     time.Duration

	// RateLimitRPS of zero disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	OTelEnabled  bool
	OTLPEndpoint string
	Environment  string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:             "8080",
		LogLevel:         "INFO",
		DatabaseURL:      "",
		DataDir:          "./data",
		DBTimezone:       "Asia/Kolkata",
		DBAutoCreate:     true,
		OperationTimeout: 8 * time.Second,
		ProcessingDelay:  30 * time.Second,
		StaleTimeout:     120 * time.Second,
		RateLimitRPS:     0,
		RateLimitBurst:   0,
		OTelEnabled:      false,
		OTLPEndpoint:     "localhost:4317",
		Environment:      "development",
	}
}

// Load builds the configuration: defaults, the WEBHOOKD_CONFIG profile
// when set, then environment variables on top.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("WEBHOOKD_CONFIG"); path != "" {
		if err := cfg.applyProfile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.DataDir, "WEBHOOKD_DATA_DIR")
	setString(&c.DBTimezone, "DB_TIMEZONE")
	setBool(&c.DBAutoCreate, "DB_AUTO_CREATE")
	setSeconds(&c.OperationTimeout, "DB_OPERATION_TIMEOUT_SECONDS")
	setSeconds(&c.ProcessingDelay, "PROCESSING_DELAY_SECONDS")
	setSeconds(&c.StaleTimeout, "PROCESSING_STALE_TIMEOUT_SECONDS")
	setFloat(&c.RateLimitRPS, "RATE_LIMIT_RPS")
	setInt(&c.RateLimitBurst, "RATE_LIMIT_BURST")
	setBool(&c.OTelEnabled, "OTEL_ENABLED")
	setString(&c.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&c.Environment, "ENVIRONMENT")
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("operation timeout must be positive, got %s", c.OperationTimeout)
	}
	if c.StaleTimeout <= 0 {
		return fmt.Errorf("stale timeout must be positive, got %s", c.StaleTimeout)
	}
	if c.ProcessingDelay < 0 {
		return fmt.Errorf("processing delay must not be negative, got %s", c.ProcessingDelay)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit rps must not be negative, got %g", c.RateLimitRPS)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("port must be numeric, got %q", c.Port)
	}
	return nil
}

// LiteMode reports whether the server runs on the embedded database.
func (c *Config) LiteMode() bool {
	return c.DatabaseURL == ""
}

// SlogLevel maps LogLevel to its slog value; unknown strings mean INFO.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setSeconds(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = time.Duration(f * float64(time.Second))
		}
	}
}
