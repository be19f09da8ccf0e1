package logger

import (
	"context"
	"log/slog"
)

// contextKey is a private type to prevent key collisions in the context map.
type contextKey struct{}

// WithContext returns a new context containing the provided logger.
// The gate's request middleware uses it to inject a request-scoped logger.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext retrieves the logger from the context.
// It never returns nil: without an injected logger it falls back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// With derives a logger carrying args from the one in ctx and stores it back,
// so deeper calls (engine, dispatch) log with the same attributes.
func With(ctx context.Context, args ...any) (context.Context, *slog.Logger) {
	l := FromContext(ctx).With(args...)
	return WithContext(ctx, l), l
}
