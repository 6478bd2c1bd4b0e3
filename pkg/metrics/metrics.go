// Package metrics defines the Prometheus collectors used across the platform
// and serves them for scraping.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	CreditOperationsTotal *prometheus.CounterVec
	CreditsSpentTotal     prometheus.Counter

	SearchJobsTotal       *prometheus.CounterVec
	SearchStageDuration   *prometheus.HistogramVec
	SearchPipelineLatency prometheus.Histogram
	PipelinesInFlight     prometheus.Gauge
	StuckJobs             prometheus.Gauge

	CacheRequestsTotal  *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
	EventsDroppedTotal  prometheus.Counter
}

// New creates all collectors and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry(); binaries pass prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		CreditOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_operations_total",
				Help: "Ledger operations by kind (deduction, grant) and outcome (ok, insufficient, error).",
			},
			[]string{"kind", "outcome"},
		),
		CreditsSpentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "credits_spent_total",
				Help: "Total credits deducted across all accounts.",
			},
		),
		SearchJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_jobs_total",
				Help: "Search jobs by lifecycle event (initiated, completed, failed, rejected).",
			},
			[]string{"event"},
		),
		SearchStageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_stage_duration_seconds",
				Help:    "Time a search stage spent in the loading state.",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10, 30},
			},
			[]string{"stage"},
		),
		SearchPipelineLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_pipeline_duration_seconds",
				Help:    "End-to-end pipeline duration for terminal search jobs.",
				Buckets: []float64{1, 2, 5, 8, 10, 15, 30, 60, 120},
			},
		),
		PipelinesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "search_pipelines_in_flight",
				Help: "Number of search pipelines currently executing.",
			},
		),
		StuckJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "search_jobs_stuck",
				Help: "Jobs in processing longer than the stuck threshold at the last check.",
			},
		),
		CacheRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "results_cache_requests_total",
				Help: "Results cache lookups by outcome (hit, miss, error).",
			},
			[]string{"outcome"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		EventsDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analytics_events_dropped_total",
				Help: "Analytics events dropped because the buffer was full or the broker unavailable.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.CreditOperationsTotal,
		m.CreditsSpentTotal,
		m.SearchJobsTotal,
		m.SearchStageDuration,
		m.SearchPipelineLatency,
		m.PipelinesInFlight,
		m.StuckJobs,
		m.CacheRequestsTotal,
		m.CircuitBreakerState,
		m.EventsDroppedTotal,
	)

	return m
}

// NewUnregistered returns collectors bound to a private registry. Components
// accept a nil *Metrics, but tests that assert on counters use this.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
