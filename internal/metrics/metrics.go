package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetscr_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetscr_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Aggregation Metrics
	AggregationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetscr_aggregation_runs_total",
			Help: "Total number of aggregation runs by outcome",
		},
		[]string{"outcome"},
	)

	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fetscr_aggregation_duration_seconds",
			Help:    "End-to-end aggregation run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	AggregationResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fetscr_aggregation_results",
			Help:    "Number of results returned per aggregation run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 to 2048
		},
	)

	KeywordsPerRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fetscr_keywords_per_run",
			Help:    "Number of keywords per aggregation run",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)

	// Upstream Metrics
	UpstreamPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetscr_upstream_pages_total",
			Help: "Total number of upstream search pages fetched by status",
		},
		[]string{"status"},
	)

	UpstreamPageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fetscr_upstream_page_duration_seconds",
			Help:    "Upstream search page latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Quota Metrics
	QuotaRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetscr_quota_rejections_total",
			Help: "Total number of runs rejected for lack of quota",
		},
		[]string{"plan"},
	)

	PlanActivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetscr_plan_activations_total",
			Help: "Total number of plan activations",
		},
		[]string{"plan", "platform"},
	)

	// Database Metrics
	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetscr_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	DatabaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetscr_database_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetscr_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetscr_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Event Metrics
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetscr_events_published_total",
			Help: "Total number of events published",
		},
		[]string{"event", "status"},
	)

	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetscr_events_consumed_total",
			Help: "Total number of events consumed by the worker",
		},
		[]string{"event", "status"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetscr_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordAggregation records a finished aggregation run
func RecordAggregation(outcome string, keywords, results int, duration float64) {
	AggregationRunsTotal.WithLabelValues(outcome).Inc()
	if outcome != "success" {
		return
	}
	AggregationDuration.Observe(duration)
	AggregationResults.Observe(float64(results))
	KeywordsPerRun.Observe(float64(keywords))
}

// RecordUpstreamPage records one upstream page fetch
func RecordUpstreamPage(status string, duration float64) {
	UpstreamPagesTotal.WithLabelValues(status).Inc()
	UpstreamPageDuration.Observe(duration)
}

// RecordQuotaRejection records a run refused for lack of quota
func RecordQuotaRejection(plan string) {
	QuotaRejectionsTotal.WithLabelValues(plan).Inc()
}

// RecordPlanActivation records a plan change
func RecordPlanActivation(plan, platform string) {
	PlanActivationsTotal.WithLabelValues(plan, platform).Inc()
}

// RecordDatabaseOperation records database operation metrics
func RecordDatabaseOperation(operation, status string, duration float64) {
	DatabaseOperations.WithLabelValues(operation, status).Inc()
	DatabaseDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCacheAccess records cache hit/miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cacheType).Inc()
	} else {
		CacheMisses.WithLabelValues(cacheType).Inc()
	}
}

// RecordEventPublished records an event publish attempt
func RecordEventPublished(event string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	EventsPublishedTotal.WithLabelValues(event, status).Inc()
}

// RecordEventConsumed records the handling of a consumed event.
// status is one of processed, retried or dead_lettered.
func RecordEventConsumed(event, status string) {
	EventsConsumedTotal.WithLabelValues(event, status).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
