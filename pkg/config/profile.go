package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is the YAML shape of a deployment profile. Every field is
// optional; set fields override the defaults and env still wins.
type Profile struct {
	Port     *string `yaml:"port"`
	LogLevel *string `yaml:"log_level"`

	Database struct {
		URL                     *string  `yaml:"url"`
		DataDir                 *string  `yaml:"data_dir"`
		Timezone                *string  `yaml:"timezone"`
		AutoCreate              *bool    `yaml:"auto_create"`
		OperationTimeoutSeconds *float64 `yaml:"operation_timeout_seconds"`
	} `yaml:"database"`

	Processing struct {
		DelaySeconds        *float64 `yaml:"delay_seconds"`
		StaleTimeoutSeconds *float64 `yaml:"stale_timeout_seconds"`
	} `yaml:"processing"`

	RateLimit struct {
		RPS   *float64 `yaml:"rps"`
		Burst *int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Telemetry struct {
		Enabled      *bool   `yaml:"enabled"`
		OTLPEndpoint *string `yaml:"otlp_endpoint"`
		Environment  *string `yaml:"environment"`
	} `yaml:"telemetry"`
}

func (c *Config) applyProfile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load profile %q: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse profile %q: %w", path, err)
	}

	overrideString(&c.Port, p.Port)
	overrideString(&c.LogLevel, p.LogLevel)
	overrideString(&c.DatabaseURL, p.Database.URL)
	overrideString(&c.DataDir, p.Database.DataDir)
	overrideString(&c.DBTimezone, p.Database.Timezone)
	overrideBool(&c.DBAutoCreate, p.Database.AutoCreate)
	overrideSeconds(&c.OperationTimeout, p.Database.OperationTimeoutSeconds)
	overrideSeconds(&c.ProcessingDelay, p.Processing.DelaySeconds)
	overrideSeconds(&c.StaleTimeout, p.Processing.StaleTimeoutSeconds)
	overrideFloat(&c.RateLimitRPS, p.RateLimit.RPS)
	overrideInt(&c.RateLimitBurst, p.RateLimit.Burst)
	overrideBool(&c.OTelEnabled, p.Telemetry.Enabled)
	overrideString(&c.OTLPEndpoint, p.Telemetry.OTLPEndpoint)
	overrideString(&c.Environment, p.Telemetry.Environment)
	return nil
}

func overrideString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func overrideBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func overrideInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func overrideFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func overrideSeconds(dst *time.Duration, v *float64) {
	if v != nil {
		*dst = time.Duration(*v * float64(time.Second))
	}
}
