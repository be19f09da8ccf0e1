package gateapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rafaeljc/herald/internal/logger"
	"github.com/rafaeljc/herald/internal/observability"
)

// routeNotFound collapses unmatched paths into one label value.
const routeNotFound = "not_found"

// RequestLogger creates a middleware that injects a request-scoped logger into
// the context and logs the end of each request with RequestID, Method, Path,
// Status, and Duration.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Get RequestID set by Chi's RequestID middleware
			reqID := middleware.GetReqID(r.Context())
			reqLogger := base.With(slog.String("request_id", reqID))

			// Wrap the ResponseWriter to capture the status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), reqLogger)))

			// We use Info level for success, Warn for 4xx, Error for 5xx
			level := slog.LevelInfo
			status := ww.Status()

			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}

			reqLogger.Log(r.Context(), level, "HTTP request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.String("duration", time.Since(start).String()),
				slog.String("remote_ip", r.RemoteAddr),
			)
		})
	}
}

// Metrics records request count and latency labelled by the matched route
// pattern, never the raw path, to keep label cardinality bounded.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := routeNotFound
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		observability.GateReqDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		observability.GateReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
