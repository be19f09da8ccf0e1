// Package gateapi implements the REST API of the Herald gate: rule evaluation,
// the send workflow and per-recipient delivery stats.
package gateapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/herald/internal/notifier"
	"github.com/rafaeljc/herald/internal/ruleengine"
	"github.com/rafaeljc/herald/internal/stats"
	"github.com/rafaeljc/herald/internal/validation"
)

// defaultMaxBodyBytes caps request payloads unless WithMaxBodyBytes says otherwise.
const defaultMaxBodyBytes = 1 << 20

// Notifier runs evaluations and sends. Implemented by *notifier.Service.
type Notifier interface {
	Evaluate(ctx context.Context, req notifier.Request) (ruleengine.Result, error)
	Send(ctx context.Context, req notifier.Request) (*notifier.Outcome, error)
}

// StatsService records and reads recipient stats. Implemented by *ruleengine.Engine.
type StatsService interface {
	UpdateStats(ctx context.Context, recipientID string) error
	RecipientStats(ctx context.Context, recipientID string) (stats.Stats, error)
}

var (
	_ Notifier     = (*notifier.Service)(nil)
	_ StatsService = (*ruleengine.Engine)(nil)
)

// API holds dependencies and the router for the gate.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	notifier     Notifier
	stats        StatsService
	logger       *slog.Logger
	maxBodyBytes int64
}

// Option customizes an API.
type Option func(*API)

// WithMaxBodyBytes limits the size of notification payloads.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// NewAPI creates a new API instance. If logger is nil, it defaults to slog.Default().
func NewAPI(n Notifier, s StatsService, logger *slog.Logger, opts ...Option) *API {
	validation.AssertDependency(n, "notifier")
	validation.AssertDependency(s, "stats service")

	if logger == nil {
		logger = slog.Default()
	}

	api := &API{
		Router:       chi.NewRouter(),
		notifier:     n,
		stats:        s,
		logger:       logger,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(api)
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	// 1. Global Middleware Stack
	// RequestID: Adds a unique ID to each request context (essential for tracing).
	a.Router.Use(middleware.RequestID)
	// RealIP: correctly sets the IP if behind a proxy/LB.
	a.Router.Use(middleware.RealIP)
	// Metrics: Records latency and status per route pattern.
	a.Router.Use(Metrics)
	// Logger: Injects a request-scoped logger and logs the outcome.
	a.Router.Use(RequestLogger(a.logger))
	// Recoverer: Prevents the server from crashing on panics, returning 500 instead.
	a.Router.Use(middleware.Recoverer)
	// Content-Type: Forces JSON content type for API responses.
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.NotFound(a.handleNotFound)

	// 2. Public Routes
	a.Router.Get("/health", a.handleHealthCheck)

	// 3. API V1 Routes
	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Route("/notifications", func(r chi.Router) {
			r.Post("/evaluate", a.handleEvaluate)
			r.Post("/send", a.handleSend)
		})

		r.Get("/recipients/{recipientID}/stats", a.handleGetStats)
		r.Post("/recipients/{recipientID}/stats", a.handleRecordSend)
	})
}

// handleHealthCheck reports that the HTTP server is serving. Dependency checks
// live on the observability server's readiness probe.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (a *API) handleNotFound(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, ErrorResponse{Code: "ERR_NOT_FOUND", Message: "Route not found"})
}
