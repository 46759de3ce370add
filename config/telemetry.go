package config

import (
	"time"

	"github.com/kbukum/bytepipe/observability"
	"github.com/kbukum/bytepipe/validation"
)

// TelemetryConfig configures OTLP export of traces and metrics. Export is off
// unless Enabled is set.
type TelemetryConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint       string        `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,hostname_port"`
	Insecure       bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate     float64       `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	MetricInterval time.Duration `yaml:"metric_interval" mapstructure:"metric_interval" validate:"gte=0"`
}

// ApplyDefaults fills unset fields.
func (c *TelemetryConfig) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.MetricInterval == 0 {
		c.MetricInterval = 15 * time.Second
	}
}

// Validate validates the telemetry configuration.
func (c *TelemetryConfig) Validate() error {
	return validation.Validate(c)
}

// TracerConfig returns the tracer settings for a service.
func (c *TelemetryConfig) TracerConfig(service, version, env string) observability.TracerConfig {
	return observability.TracerConfig{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    env,
		Endpoint:       c.Endpoint,
		Insecure:       c.Insecure,
		SampleRate:     c.SampleRate,
	}
}

// MeterConfig returns the meter settings for a service.
func (c *TelemetryConfig) MeterConfig(service, version, env string) *observability.MeterConfig {
	return &observability.MeterConfig{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    env,
		Endpoint:       c.Endpoint,
		Insecure:       c.Insecure,
		Interval:       c.MetricInterval,
	}
}
