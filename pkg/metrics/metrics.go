// Package metrics defines the Prometheus collectors for index builds, queries
// and the HTTP API, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	BuildsTotal          *prometheus.CounterVec
	BuildDuration        *prometheus.HistogramVec
	DocumentsScanned     prometheus.Counter
	TermsAdmitted        *prometheus.CounterVec
	GenerationSize       *prometheus.GaugeVec
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CacheBreakerState    prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates all collectors on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates all collectors and registers them with reg. When
// reg is not also a Gatherer, Handler serves the default registry.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		gatherer: prometheus.DefaultGatherer,
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
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_builds_total",
				Help: "Index builds by storage mode and status (ok, failed).",
			},
			[]string{"mode", "status"},
		),
		BuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Index build phase duration in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"phase"},
		),
		DocumentsScanned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_documents_scanned_total",
				Help: "Total corpus documents tokenized.",
			},
		),
		TermsAdmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_terms_total",
				Help: "Distinct terms by admission verdict.",
			},
			[]string{"verdict"},
		),
		GenerationSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "index_generation_records",
				Help: "Records in the live generation by kind (documents, tokens, postings).",
			},
			[]string{"kind"},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, miss, corrupt, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"store"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of documents returned per search term.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of search cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of search cache misses.",
			},
		),
		CacheBreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cache_breaker_state",
				Help: "State of the search cache circuit (0 closed, 1 open, 2 half-open).",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.BuildsTotal,
		m.BuildDuration,
		m.DocumentsScanned,
		m.TermsAdmitted,
		m.GenerationSize,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheBreakerState,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler serves the registry m was created on in the Prometheus exposition
// format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
