package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	memerrors "memstore/internal/errors"
)

var (
	scopeOpensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memstore_scope_opens_total",
		Help: "Total number of scope database opens, by provider strategy.",
	}, []string{"strategy"})

	pooledHandles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memstore_pooled_handles",
		Help: "Number of scope databases currently held open by the pooled provider.",
	})

	pooledEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memstore_pooled_evictions_total",
		Help: "Total number of scope handles evicted from the pooled provider.",
	})

	backupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memstore_backups_total",
		Help: "Total number of database backups written, by label.",
	}, []string{"label"})

	integrityFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memstore_integrity_failures_total",
		Help: "Total number of scope databases that failed quick_check on reopen.",
	})

	migrationsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memstore_migrations_applied_total",
		Help: "Total number of schema migration steps applied.",
	})

	operationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memstore_operation_total",
		Help: "Total number of repository operations, by operation and result code.",
	}, []string{"operation", "code"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memstore_operation_duration_seconds",
		Help:    "Duration of repository operations in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"operation"})
)

// observe records the outcome of a repository operation started at begin.
func observe(operation string, begin time.Time, err error) {
	code := "OK"
	if err != nil {
		if c := memerrors.CodeOf(err); c != "" {
			code = string(c)
		} else {
			code = "UNCLASSIFIED"
		}
	}
	operationTotal.WithLabelValues(operation, code).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(begin).Seconds())
}
