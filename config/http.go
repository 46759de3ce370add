package config

import (
	"time"

	"github.com/kbukum/bytepipe/validation"
)

// HTTPConfig configures the HTTP front.
type HTTPConfig struct {
	Addr              string        `yaml:"addr" mapstructure:"addr" validate:"required,hostname_port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gte=0"`
	MaxBodySize       string        `yaml:"max_body_size" mapstructure:"max_body_size" validate:"size"`
}

// ApplyDefaults fills unset fields.
func (c *HTTPConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:8080"
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	if c.MaxBodySize == "" {
		c.MaxBodySize = "0"
	}
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.Validate(c)
}
