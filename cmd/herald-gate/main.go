// Command herald-gate serves the notification gate: it evaluates each
// recipient's rules, dispatches allowed notifications and records sends.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rafaeljc/herald/internal/cache"
	"github.com/rafaeljc/herald/internal/config"
	"github.com/rafaeljc/herald/internal/database"
	"github.com/rafaeljc/herald/internal/dispatch"
	"github.com/rafaeljc/herald/internal/gateapi"
	"github.com/rafaeljc/herald/internal/logger"
	"github.com/rafaeljc/herald/internal/notifier"
	"github.com/rafaeljc/herald/internal/observability"
	"github.com/rafaeljc/herald/internal/ruleengine"
	"github.com/rafaeljc/herald/internal/stats"
	"github.com/rafaeljc/herald/internal/store"
)

const (
	serviceName     = "herald-gate"
	metricsInterval = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(&cfg.App)
	slog.SetDefault(log)
	cfg.LogConfig(log)

	if err := run(cfg, log); err != nil {
		log.Error("gate terminated", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	// 1. Storage
	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	go database.RunPoolMonitor(ctx, pool, metricsInterval)

	checkers := []observability.Checker{database.NewHealthChecker(pool)}

	// 2. Stats tracker
	tracker, trackerCheckers, closeTracker, err := newTracker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTracker()
	checkers = append(checkers, trackerCheckers...)

	// 3. Rule source, optionally behind the L1 cache
	pgStore := store.NewPostgresStore(pool, log)

	var source ruleengine.RuleSource = pgStore
	if cfg.RulesCache.Enabled {
		ruleCache, err := cache.NewRuleCache(cfg.RulesCache.Capacity, cfg.RulesCache.TTL)
		if err != nil {
			return err
		}
		defer ruleCache.Close()
		go ruleCache.RunMetricsCollector(ctx, metricsInterval)

		source = store.NewCachedRuleSource(pgStore, ruleCache)
	}

	// 4. Engine, dispatch and the send workflow
	loc, err := stats.LoadLocation(cfg.Stats.Timezone)
	if err != nil {
		return fmt.Errorf("invalid stats timezone: %w", err)
	}
	engine := ruleengine.New(source, tracker, log, ruleengine.WithClock(func() time.Time {
		return time.Now().In(loc)
	}))

	dispatcher, err := newDispatcher(cfg, log, pgStore)
	if err != nil {
		return err
	}
	service := notifier.New(engine, dispatcher)

	// 5. Servers
	obsServer := observability.NewServer(log, &cfg.Observability, serviceName, checkers...)
	obsServer.Start()

	api := gateapi.NewAPI(service, engine, log, gateapi.WithMaxBodyBytes(cfg.Gate.MaxBodyBytes))
	srv := &http.Server{
		Addr:              cfg.Gate.Address(),
		Handler:           api.Router,
		ReadTimeout:       cfg.Gate.ReadTimeout,
		WriteTimeout:      cfg.Gate.WriteTimeout,
		ReadHeaderTimeout: cfg.Gate.ReadHeaderTimeout,
		IdleTimeout:       cfg.Gate.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting gate server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("gate server failed: %w", err)
		}
	}

	// 6. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("gate server shutdown failed", slog.String("error", err.Error()))
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	log.Info("gate stopped")
	return nil
}

// newTracker builds the configured stats backend and the checkers it adds to readiness.
func newTracker(ctx context.Context, cfg *config.Config) (stats.Tracker, []observability.Checker, func(), error) {
	loc, err := stats.LoadLocation(cfg.Stats.Timezone)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid stats timezone: %w", err)
	}

	switch cfg.Stats.Backend {
	case config.StatsBackendRedis:
		client, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		tracker, err := stats.NewRedisTracker(client, cfg.Stats.KeyPrefix, cfg.Stats.TTL, stats.WithLocation(loc))
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		closeFn := func() { _ = client.Close() }
		return tracker, []observability.Checker{cache.NewHealthChecker(client)}, closeFn, nil

	default:
		tracker, err := stats.NewMemoryTracker(cfg.Stats.Capacity, cfg.Stats.TTL, stats.WithLocation(loc))
		if err != nil {
			return nil, nil, nil, err
		}
		go tracker.RunMetricsCollector(ctx, metricsInterval)
		return tracker, nil, tracker.Close, nil
	}
}

// newDispatcher enables every channel that has configuration.
func newDispatcher(cfg *config.Config, log *slog.Logger, templates dispatch.TemplateSource) (*dispatch.Dispatcher, error) {
	opts := []dispatch.Option{dispatch.WithTemplates(templates)}
	d := cfg.Dispatch

	if d.SMTP.IsConfigured() {
		email, err := dispatch.NewSMTPChannel(d.SMTP)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dispatch.WithEmail(email))
	}

	if d.ChatWebhookURL != "" {
		chat, err := dispatch.NewWebhookChannel(d.ChatWebhookURL, d.WebhookTimeout, d.WebhookRetries, d.WebhookRetryDelay)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dispatch.WithChat(chat))
	}

	if d.BroadcastWebhookURL != "" {
		broadcast, err := dispatch.NewWebhookChannel(d.BroadcastWebhookURL, d.WebhookTimeout, d.WebhookRetries, d.WebhookRetryDelay)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dispatch.WithBroadcast(broadcast))
	}

	return dispatch.New(log, opts...), nil
}
