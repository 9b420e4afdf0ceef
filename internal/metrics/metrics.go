// Package metrics exposes Prometheus collectors for the search service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes recorded by ObserveFetch.
const (
	FetchIndexed   = "indexed"
	FetchDuplicate = "duplicate"
	FetchRejected  = "rejected"
	FetchError     = "error"
)

var (
	crawlerPagesTotal           *prometheus.CounterVec
	crawlerBytesTotal           *prometheus.CounterVec
	crawlerFetchDurationSeconds prometheus.Histogram
	crawlerInflightFetches      prometheus.Gauge
	crawlerOutboundLinksTotal   *prometheus.CounterVec
	crawlerHostWaitSeconds      prometheus.Histogram
	schedulerTicksTotal         *prometheus.CounterVec
	searchQueriesTotal          *prometheus.CounterVec
	searchFallbacksTotal        prometheus.Counter
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	once                        sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Pages fetched, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 6},
			},
		)

		crawlerInflightFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_inflight_fetches",
				Help: "Number of page fetches currently in flight across traversals.",
			},
		)

		crawlerOutboundLinksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_outbound_links_total",
				Help: "Outbound links recorded, labeled by category.",
			},
			[]string{"category"},
		)

		crawlerHostWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_host_wait_seconds",
				Help:    "Histogram of per-host politeness waits.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		schedulerTicksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_ticks_total",
				Help: "Scheduler ticks, labeled by result (ran, skipped, error).",
			},
			[]string{"result"},
		)

		searchQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Search queries served, labeled by backend.",
			},
			[]string{"backend"},
		)

		searchFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "search_fallbacks_total",
				Help: "Queries that fell back from the full-text index to the substring scan.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records a completed page fetch.
func ObserveFetch(site, outcome string, bytesFetched int, duration time.Duration) {
	Init()
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, outcome).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
	if duration > 0 {
		crawlerFetchDurationSeconds.Observe(duration.Seconds())
	}
}

// IncInflightFetches increments the in-flight fetch gauge.
func IncInflightFetches() {
	Init()
	crawlerInflightFetches.Inc()
}

// DecInflightFetches decrements the in-flight fetch gauge.
func DecInflightFetches() {
	Init()
	crawlerInflightFetches.Dec()
}

// ObserveOutboundLink counts a newly recorded outbound link.
func ObserveOutboundLink(category string) {
	Init()
	crawlerOutboundLinksTotal.WithLabelValues(category).Inc()
}

// ObserveHostWait records the time spent waiting on the per-host policy.
func ObserveHostWait(duration time.Duration) {
	Init()
	crawlerHostWaitSeconds.Observe(duration.Seconds())
}

// ObserveSchedulerTick counts a scheduler tick by result.
func ObserveSchedulerTick(result string) {
	Init()
	schedulerTicksTotal.WithLabelValues(result).Inc()
}

// ObserveSearch counts a query served by backend.
func ObserveSearch(backend string) {
	Init()
	searchQueriesTotal.WithLabelValues(backend).Inc()
}

// ObserveSearchFallback counts a query that fell back to the scan backend.
func ObserveSearchFallback() {
	Init()
	searchFallbacksTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
