package config

import (
	"fmt"

	"github.com/kbukum/bytepipe/logger"
	"github.com/kbukum/bytepipe/validation"
	"github.com/kbukum/bytepipe/version"
)

var environments = []string{"development", "staging", "production"}

// ServiceConfig is the configuration of the bytepipe CLI and HTTP front.
//
// Example config.yml:
//
//	name: bytepipe
//	environment: production
//	logging:
//	  level: info
//	  format: json
//	stream:
//	  high_water_mark: 256KB
//	  delimiter: '\r\n'
//	  trailing_partial_policy: require-delimiter
//	http:
//	  addr: 0.0.0.0:8080
type ServiceConfig struct {
	Name        string          `yaml:"name" mapstructure:"name"`
	Environment string          `yaml:"environment" mapstructure:"environment"`
	Version     string          `yaml:"version" mapstructure:"version"`
	Debug       bool            `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config   `yaml:"logging" mapstructure:"logging"`
	Stream      StreamConfig    `yaml:"stream" mapstructure:"stream"`
	HTTP        HTTPConfig      `yaml:"http" mapstructure:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// ApplyDefaults applies default values to every section.
func (c *ServiceConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "bytepipe"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Version == "" {
		c.Version = version.GetShortVersion()
	}
	if c.Debug && c.Logging.Level == "" {
		c.Logging.Level = "debug"
	}
	c.Logging.ApplyDefaults()
	c.Stream.ApplyDefaults()
	c.HTTP.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
}

// Validate validates every section.
func (c *ServiceConfig) Validate() error {
	v := validation.New().
		Required("config.name", c.Name).
		Required("config.environment", c.Environment).
		OneOf("config.environment", c.Environment, environments)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("config.stream: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("config.http: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("config.telemetry: %w", err)
	}
	return nil
}
