package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (e.g., herald_...).
const namespace = "herald"

// lowLatencyBuckets defines custom buckets for the evaluation hot path.
// Standard buckets are too coarse (starting at 5ms), so we add 1ms and 2ms resolution.
// Range: 1ms to 500ms.
var lowLatencyBuckets = []float64{.001, .002, .005, .010, .015, .020, .025, .030, .050, .100, .500}

// Rule skip reasons reported by EngineRulesSkipped.
const (
	SkipReasonUnknownType  = "unknown_type"
	SkipReasonCompileError = "compile_error"
	SkipReasonEvalError    = "eval_error"
)

var (
	// -------------------------------------------------------------------------
	// GATE (HTTP)
	// -------------------------------------------------------------------------

	// GateReqDuration measures the latency of HTTP requests.
	// Metric: herald_gate_http_handling_seconds
	GateReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gate",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests in the gate API",
		Buckets:   prometheus.DefBuckets, // send requests include channel I/O
	}, []string{"method", "route"})

	// GateReqTotal counts the total number of HTTP requests.
	// Metric: herald_gate_http_requests_total
	GateReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gate",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests in the gate API",
	}, []string{"method", "route", "code"})

	// -------------------------------------------------------------------------
	// ENGINE
	// -------------------------------------------------------------------------

	// EngineEvalDuration measures a full evaluation (rule fetch + evaluators).
	// Metric: herald_engine_evaluation_seconds
	EngineEvalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "evaluation_seconds",
		Help:      "Time taken to evaluate all rules of a recipient",
		Buckets:   lowLatencyBuckets,
	})

	// EngineDecisions counts evaluation outcomes.
	// Metric: herald_engine_decisions_total{decision="allowed|blocked"}
	EngineDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "decisions_total",
		Help:      "Total evaluations by outcome",
	}, []string{"decision"})

	// EngineRulesSkipped counts rules treated as non-matching because they could not be evaluated.
	// Metric: herald_engine_rules_skipped_total{reason}
	EngineRulesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "rules_skipped_total",
		Help:      "Total rules skipped during evaluation (fail-open)",
	}, []string{"reason"})

	// --- Rules L1 cache (Otter) ---

	RulesCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules_cache",
		Name:      "hits_total",
		Help:      "Total rule cache hits (in-memory)",
	})

	RulesCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules_cache",
		Name:      "misses_total",
		Help:      "Total rule cache misses",
	})

	RulesCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules_cache",
		Name:      "evictions_total",
		Help:      "Total rule sets evicted due to capacity pressure",
	})

	RulesCacheUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "rules_cache",
		Name:      "items_count",
		Help:      "Current number of recipients with cached rules",
	})

	// -------------------------------------------------------------------------
	// STATS TRACKER
	// -------------------------------------------------------------------------

	// StatsUpdates counts UpdateStats calls per backend.
	// Metric: herald_stats_updates_total{backend,status}
	StatsUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stats",
		Name:      "updates_total",
		Help:      "Total per-recipient stats updates",
	}, []string{"backend", "status"})

	// StatsRecipients reports how many recipients the memory tracker currently holds.
	StatsRecipients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stats",
		Name:      "recipients_count",
		Help:      "Current number of recipients tracked in memory",
	})

	// StatsEvictions tracks recipients dropped by the memory tracker's eviction policy.
	StatsEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stats",
		Name:      "evictions_total",
		Help:      "Total recipients evicted from the in-memory tracker",
	})

	// -------------------------------------------------------------------------
	// DISPATCH
	// -------------------------------------------------------------------------

	// DispatchDuration measures a single channel delivery.
	// Metric: herald_dispatch_delivery_seconds{channel}
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "delivery_seconds",
		Help:      "Time taken to hand a notification to its channel",
		Buckets:   prometheus.DefBuckets,
	}, []string{"channel"})

	// DispatchTotal counts deliveries by channel and status (success, fail).
	// Metric: herald_dispatch_deliveries_total{channel,status}
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "deliveries_total",
		Help:      "Total notification deliveries",
	}, []string{"channel", "status"})

	// -------------------------------------------------------------------------
	// DATABASE POOL
	// -------------------------------------------------------------------------

	// DBPoolConnections reports pgxpool connection counts by state (total, idle, in_use, max).
	// Metric: herald_database_pool_connections{state}
	DBPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "Current number of database pool connections by state",
	}, []string{"state"})

	// DBPoolAcquireCount counts successful connection acquisitions.
	DBPoolAcquireCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_count_total",
		Help:      "Total successful connection acquisitions from the pool",
	})

	// DBPoolAcquireDuration accumulates the time spent acquiring connections.
	DBPoolAcquireDuration = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_duration_seconds_total",
		Help:      "Total time spent acquiring connections from the pool",
	})

	// DBPoolWaitCount counts acquisitions that had to wait for a free connection.
	DBPoolWaitCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_wait_count_total",
		Help:      "Total acquisitions that waited because the pool was exhausted",
	})

	// -------------------------------------------------------------------------
	// READINESS
	// -------------------------------------------------------------------------

	// DependencyUp reports the last readiness result per dependency (1 up, 0 down).
	// Metric: herald_dependency_up
	DependencyUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dependency_up",
		Help:      "Whether a dependency passed its last readiness check",
	}, []string{"component"})
)
