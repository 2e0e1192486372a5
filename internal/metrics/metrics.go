package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage metrics
var (
	StageProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_coach_stage_processed_total",
			Help: "Total number of images processed per pipeline stage",
		},
		[]string{"stage", "status"}, // status: "ok" or "failed"
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataset_coach_stage_duration_seconds",
			Help:    "Duration of a full pipeline stage run in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)
)

// Cache metrics
var (
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataset_coach_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_coach_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"reason"}, // "absent", "source_missing", "fingerprint", "output_missing", "output_mismatch", "error"
	)

	CacheEntriesEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataset_coach_cache_entries_evicted_total",
			Help: "Total number of cache entries removed by age-based cleanup",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_coach_cache_entries",
			Help: "Number of entries currently in the cache",
		},
	)

	CachePersistErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataset_coach_cache_persist_errors_total",
			Help: "Total number of failed cache persist attempts",
		},
	)
)

// Remote generation service metrics
var (
	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_coach_remote_requests_total",
			Help: "Total number of requests to the generation service",
		},
		[]string{"endpoint", "status"}, // status: "ok", "retryable", "fatal"
	)

	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataset_coach_remote_request_duration_seconds",
			Help:    "Duration of generation service requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"endpoint"},
	)

	RemoteRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_coach_remote_retries_total",
			Help: "Total number of retried generation service requests",
		},
		[]string{"endpoint"},
	)

	BatchFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataset_coach_batch_fallbacks_total",
			Help: "Total number of batch calls that fell back to per-image processing",
		},
	)
)
