// Package logger builds the gate's slog logger and carries request-scoped
// loggers through a context.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/rafaeljc/herald/internal/config"
)

// Redacted replaces notification bodies in production logs.
const Redacted = "[redacted]"

// ContentKey is the attribute key for notification bodies. Values logged under
// it are dropped in production, where bodies may carry personal data.
const ContentKey = "content"

// New returns a logger for cfg writing to os.Stdout.
func New(cfg *config.AppConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter returns a logger for cfg writing to w.
//
// Every line carries service, version, env and instance (the host name, so
// lines from gate replicas can be told apart). Source locations are added
// outside production.
func NewWithWriter(cfg *config.AppConfig, w io.Writer) *slog.Logger {
	if cfg == nil {
		panic("logger: config cannot be nil")
	}

	production := cfg.Environment == config.EnvironmentProduction
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.LogLevel),
		AddSource: !production,
	}
	if production {
		opts.ReplaceAttr = redactContent
	}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("service", cfg.Name),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Environment),
		slog.String("instance", instanceName()),
	)
}

func redactContent(_ []string, a slog.Attr) slog.Attr {
	if a.Key == ContentKey && a.Value.Kind() == slog.KindString && a.Value.String() != "" {
		return slog.String(ContentKey, Redacted)
	}
	return a
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}

// parseLevel converts a string to slog.Level. Defaults to INFO.
func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
