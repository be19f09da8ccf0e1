package config

import (
	"fmt"
	"strings"
	"time"
)

// ObservabilityConfig holds configuration for the observability server (metrics, probes).
type ObservabilityConfig struct {
	// Port defines where the observability server listens.
	Port string `envconfig:"PORT" default:"9090"`

	// Timeout is the unified safety valve for Read/Write/Idle operations.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s" validate:"min=1s"`

	// LivenessPath is the HTTP path for k8s liveness probe.
	LivenessPath string `envconfig:"LIVENESS_PATH" default:"/healthz"`

	// ReadinessPath is the HTTP path for k8s readiness probe.
	ReadinessPath string `envconfig:"READINESS_PATH" default:"/readyz"`

	// MetricsPath is the HTTP path for Prometheus scraping.
	MetricsPath string `envconfig:"METRICS_PATH" default:"/metrics"`
}

// Validate performs validation on the ObservabilityConfig.
func (c *ObservabilityConfig) Validate() error {
	if err := validatePort(c.Port, "observability"); err != nil {
		return err
	}

	for name, path := range map[string]string{
		"liveness":  c.LivenessPath,
		"readiness": c.ReadinessPath,
		"metrics":   c.MetricsPath,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("observability %s path must start with '/', got %q", name, path)
		}
	}

	return nil
}
