package config

import (
	"fmt"
	"time"
)

// GateConfig configures the HTTP server that accepts notification attempts.
type GateConfig struct {
	Port              string        `envconfig:"PORT" default:"8080"`
	Host              string        `envconfig:"HOST" default:"0.0.0.0"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxBodyBytes      int64         `envconfig:"MAX_BODY_BYTES" default:"1048576" validate:"min=1"`
}

// Address returns the listen address in host:port format.
func (c *GateConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Validate performs validation on the GateConfig.
func (c *GateConfig) Validate() error {
	if err := validatePort(c.Port, "gate"); err != nil {
		return err
	}

	if err := validateHost(c.Host, "gate"); err != nil {
		return err
	}

	// Dispatch runs inside the request, so the write deadline must leave room for it.
	if c.WriteTimeout < c.ReadTimeout {
		return fmt.Errorf("gate write timeout (%s) cannot be shorter than read timeout (%s)", c.WriteTimeout, c.ReadTimeout)
	}

	return nil
}
