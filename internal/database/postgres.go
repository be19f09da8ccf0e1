// Package database provides the PostgreSQL connection factory used by the rule store.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/herald/internal/config"
	"github.com/rafaeljc/herald/internal/logger"
	"github.com/rafaeljc/herald/internal/observability"
)

// NewPostgresPool initializes a PostgreSQL connection pool from configuration.
// It returns the pool directly, allowing the caller to manage the lifecycle via Dependency Injection.
func NewPostgresPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config cannot be nil")
	}

	// 1. Parse the configuration string
	poolCfg, parseErr := pgxpool.ParseConfig(cfg.ConnectionString())
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", parseErr)
	}

	// 2. Configure settings (Pool Tuning)
	// MaxConns prevents the app from starving the DB (connection exhaustion).
	// MinConns keeps some connections warm to reduce latency for new requests.
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	// 3. Create the pool with a short timeout for fail-fast behavior
	initCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(initCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// 4. Verify connection (Ping) immediately to ensure network is healthy
	if err := pool.Ping(initCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.FromContext(ctx).Info("connected to postgres",
		slog.Int("max_conns", cfg.MaxConns),
		slog.Int("min_conns", cfg.MinConns),
	)
	return pool, nil
}

// RunPoolMonitor samples pool statistics into Prometheus until ctx is cancelled.
// pgxpool exposes cumulative counters, so only the deltas are added.
func RunPoolMonitor(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		lastAcquire  int64
		lastWait     int64
		lastDuration time.Duration
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := pool.Stat()

			observability.DBPoolConnections.WithLabelValues("total").Set(float64(st.TotalConns()))
			observability.DBPoolConnections.WithLabelValues("idle").Set(float64(st.IdleConns()))
			observability.DBPoolConnections.WithLabelValues("in_use").Set(float64(st.AcquiredConns()))
			observability.DBPoolConnections.WithLabelValues("max").Set(float64(st.MaxConns()))

			if d := st.AcquireCount() - lastAcquire; d > 0 {
				observability.DBPoolAcquireCount.Add(float64(d))
			}
			if d := st.EmptyAcquireCount() - lastWait; d > 0 {
				observability.DBPoolWaitCount.Add(float64(d))
			}
			if d := st.AcquireDuration() - lastDuration; d > 0 {
				observability.DBPoolAcquireDuration.Add(d.Seconds())
			}

			lastAcquire = st.AcquireCount()
			lastWait = st.EmptyAcquireCount()
			lastDuration = st.AcquireDuration()
		}
	}
}
