// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchesTotal        *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	RateLimitRejections  prometheus.Counter
	DocsIngestedTotal    prometheus.Counter
	IngestCyclesTotal    *prometheus.CounterVec
	SourceFetchFailures  *prometheus.CounterVec
	IndexRebuildsTotal   *prometheus.CounterVec
	IndexGeneration      prometheus.Gauge
	IndexDocuments       prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
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
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_requests_total",
				Help: "Total search requests by outcome (served, rejected, invalid, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search request.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "result_cache_hits_total",
				Help: "Total number of result-cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "result_cache_misses_total",
				Help: "Total number of result-cache misses.",
			},
		),
		RateLimitRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limit_rejections_total",
				Help: "Total requests rejected by the rate limiter.",
			},
		),
		DocsIngestedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documents_ingested_total",
				Help: "Total documents accepted by ingestion.",
			},
		),
		IngestCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_cycles_total",
				Help: "Total ingestion cycles by status (clean, partial).",
			},
			[]string{"status"},
		),
		SourceFetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_fetch_failures_total",
				Help: "Total failed source fetches by source name.",
			},
			[]string{"source"},
		),
		IndexRebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_rebuilds_total",
				Help: "Total relevance-index rebuilds by status.",
			},
			[]string{"status"},
		),
		IndexGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_generation",
				Help: "Generation number of the currently published index.",
			},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_documents",
				Help: "Number of documents in the currently published index.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RateLimitRejections,
		m.DocsIngestedTotal,
		m.IngestCyclesTotal,
		m.SourceFetchFailures,
		m.IndexRebuildsTotal,
		m.IndexGeneration,
		m.IndexDocuments,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
