// Package metrics defines the Prometheus metric collectors used across the
// crawler, the index builder, and the search API, and exposes an HTTP handler
// for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitedTotal     prometheus.Counter

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      prometheus.Histogram
	SearchResultsCount prometheus.Histogram

	BuildsTotal    *prometheus.CounterVec
	BuildDuration  prometheus.Histogram
	IndexedDocs    prometheus.Gauge
	IndexedTerms   prometheus.Gauge
	SkippedDocs    prometheus.Gauge
	PagesCrawled   prometheus.Counter
	CrawlErrors    prometheus.Counter
	CrawlQueueSize prometheus.Gauge
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg. Tests
// pass a private registry so repeated construction does not panic.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
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
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limited_requests_total",
				Help: "Total requests rejected by the rate limiter.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by outcome (hit, zero_result, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50},
			},
		),
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_builds_total",
				Help: "Total index rebuilds by status (success, failure, skipped).",
			},
			[]string{"status"},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Duration of a full index rebuild in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
		),
		IndexedDocs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_documents",
				Help: "Documents in the most recently published index.",
			},
		),
		IndexedTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_terms",
				Help: "Distinct terms in the most recently published index.",
			},
		),
		SkippedDocs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_skipped_documents",
				Help: "Pages skipped during the most recent rebuild.",
			},
		),
		PagesCrawled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total pages fetched and stored by the crawler.",
			},
		),
		CrawlErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_errors_total",
				Help: "Total fetch or parse failures during crawling.",
			},
		),
		CrawlQueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_queue_size",
				Help: "URLs currently waiting in the crawl frontier.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RateLimitedTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.BuildsTotal,
		m.BuildDuration,
		m.IndexedDocs,
		m.IndexedTerms,
		m.SkippedDocs,
		m.PagesCrawled,
		m.CrawlErrors,
		m.CrawlQueueSize,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
