package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync counters and histograms are partitioned by requested category + direction.

var (
	// Syncer
	SyncCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "syncer",
		Name:      "calls_total",
		Help:      "Total synchronize calls by outcome (cache_hit, fetched, empty_both)",
	}, []string{"category", "direction", "outcome"})

	SyncErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "syncer",
		Name:      "errors_total",
		Help:      "Total failed synchronize calls by error class",
	}, []string{"category", "direction", "class"})

	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tracker",
		Subsystem: "syncer",
		Name:      "duration_seconds",
		Help:      "Synchronize call duration",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"category", "direction"})

	SyncPagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "syncer",
		Name:      "pages_fetched_total",
		Help:      "Total ledger pages fetched",
	}, []string{"category", "direction"})

	SyncTransfersFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "syncer",
		Name:      "transfers_fetched_total",
		Help:      "Total transfers fetched from the ledger",
	}, []string{"category", "direction"})

	SyncSeedRecords = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tracker",
		Subsystem: "syncer",
		Name:      "seed_records",
		Help:      "Archived records served per call before fetching",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"category", "direction"})

	SyncLockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tracker",
		Subsystem: "syncer",
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting for the sync-key lock",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
	})

	// Archive
	ArchiveRecordsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "archive",
		Name:      "records_upserted_total",
		Help:      "Total transfer records written to the archive",
	})

	// Scheduler
	SchedulerTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "scheduler",
		Name:      "ticks_total",
		Help:      "Total scheduler ticks",
	})

	SchedulerTargetErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "scheduler",
		Name:      "target_errors_total",
		Help:      "Total failed watched-target syncs",
	}, []string{"category", "direction"})

	// PostgreSQL connection pool
	DBPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "postgres",
		Name:      "db_pool_open",
		Help:      "Current number of open PostgreSQL connections in the pool",
	})

	DBPoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "postgres",
		Name:      "db_pool_in_use",
		Help:      "Current number of in-use PostgreSQL connections in the pool",
	})

	DBPoolIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "postgres",
		Name:      "db_pool_idle",
		Help:      "Current number of idle PostgreSQL connections in the pool",
	})

	DBPoolWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "postgres",
		Name:      "db_pool_wait_count",
		Help:      "Cumulative count of waits for PostgreSQL connections from pool",
	})

	// Ledger RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total ledger RPC calls by method and status",
	}, []string{"provider", "method", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total times RPC calls waited for rate limiter",
	}, []string{"provider"})

	RPCCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "rpc",
		Name:      "circuit_state",
		Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"provider"})

	HeadCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "rpc",
		Name:      "head_cache_total",
		Help:      "Chain head lookups by cache result (hit, miss)",
	}, []string{"result"})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alerts delivered by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Alerts suppressed by the per-target cooldown",
	}, []string{"type"})
)
