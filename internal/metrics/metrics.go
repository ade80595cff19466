// Package metrics holds the worker's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job metrics
var (
	// JobsProcessedTotal counts finished deliveries by outcome
	// (completed, failed_retryable, failed_permanent, skipped).
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsecwatch_jobs_processed_total",
			Help: "Scan job deliveries processed, by outcome",
		},
		[]string{"outcome"},
	)

	// JobsInProgress tracks jobs currently owned by a worker slot.
	JobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devsecwatch_jobs_in_progress",
			Help: "Scan jobs currently being processed",
		},
	)

	// StageDuration tracks per-stage latency.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devsecwatch_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 180, 300},
		},
		[]string{"stage"},
	)

	// StaleJobs is the number of PROCESSING jobs older than the janitor cutoff.
	StaleJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devsecwatch_stale_jobs",
			Help: "Scan jobs stuck in PROCESSING past the stale cutoff",
		},
	)
)

// Enrichment metrics
var (
	// EnrichmentLookupsTotal counts cache lookups by result (hit, miss, error).
	EnrichmentLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsecwatch_enrichment_cache_lookups_total",
			Help: "Explanation cache lookups by result",
		},
		[]string{"result"},
	)

	// EnrichmentFallbacksTotal counts findings served from static templates.
	EnrichmentFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devsecwatch_enrichment_template_fallbacks_total",
			Help: "Findings explained by a static template after the AI service failed",
		},
	)
)

// Result metrics
var (
	// VulnerabilitiesPersistedTotal counts stored vulnerabilities by severity.
	VulnerabilitiesPersistedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsecwatch_vulnerabilities_persisted_total",
			Help: "Vulnerabilities persisted, by severity",
		},
		[]string{"severity"},
	)

	// NotificationsTotal counts notification sends by channel and status.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsecwatch_notifications_total",
			Help: "Notification deliveries by channel and status",
		},
		[]string{"channel", "status"},
	)
)
