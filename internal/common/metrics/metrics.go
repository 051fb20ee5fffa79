package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	PipelineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_requests_total",
			Help: "Resolve requests by outcome (answered, degraded, registry_error)",
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"stage"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_cache_lookups_total",
			Help: "Enrichment cache (entity, field) lookups by result",
		},
		[]string{"result"},
	)

	BatchEntities = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrichment_batch_entities",
			Help:    "Entities sent per batched enrichment call",
			Buckets: []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		},
	)

	ExternalCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_calls_total",
			Help: "External boundary calls by outcome (ok, error, timeout, fallback)",
		},
		[]string{"boundary", "outcome"},
	)

	SynthesisTier = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesis_tier_total",
			Help: "Response synthesis calls per selected reasoning tier",
		},
		[]string{"tier"},
	)

	RegistryRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "registry_rows_returned",
			Help:    "Rows returned per registry query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)
)

func ObserveStage(stage string, elapsed time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func RecordCacheLookups(hits, misses int) {
	if hits > 0 {
		CacheLookups.WithLabelValues("hit").Add(float64(hits))
	}
	if misses > 0 {
		CacheLookups.WithLabelValues("miss").Add(float64(misses))
	}
}
