// Package metrics exposes Prometheus collectors for the harvester.
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

var (
	listingPagesTotal          *prometheus.CounterVec
	postingsTotal              *prometheus.CounterVec
	detailUnavailableTotal     *prometheus.CounterVec
	fetchErrorsTotal           *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	fetchBytesTotal            *prometheus.CounterVec
	rateLimitWaitSeconds       *prometheus.HistogramVec
	activePostingWorkers       prometheus.Gauge
	headlessSessionsInUse      prometheus.Gauge
	runsTotal                  *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times.
func Init() {
	once.Do(func() {
		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_listing_pages_total",
				Help: "Listing pages processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		postingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_postings_total",
				Help: "Postings processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		detailUnavailableTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_detail_unavailable_total",
				Help: "Postings stored with default detail facts, labeled by failing stage.",
			},
			[]string{"stage"},
		)

		fetchErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_errors_total",
				Help: "Fetch failures, labeled by fetch kind and site.",
			},
			[]string{"kind", "site"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by fetch kind.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		rateLimitWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_wait_seconds",
				Help:    "Histogram of per-host limiter waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		activePostingWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_posting_workers",
				Help: "Number of postings currently being processed.",
			},
		)

		headlessSessionsInUse = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_headless_sessions_in_use",
				Help: "Number of browser tabs currently checked out of the session pool.",
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_runs_total",
				Help: "Finished harvest runs, labeled by stop reason.",
			},
			[]string{"reason"},
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
	Init()
	return promhttp.Handler()
}

// ObserveListingPage counts a listing page outcome (ok, empty, failed).
func ObserveListingPage(outcome string) {
	Init()
	listingPagesTotal.WithLabelValues(outcome).Inc()
}

// ObservePosting counts a posting outcome (stored, failed, skipped).
func ObservePosting(outcome string) {
	Init()
	postingsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDetailUnavailable counts a posting stored with default detail facts.
func ObserveDetailUnavailable(stage string) {
	Init()
	detailUnavailableTotal.WithLabelValues(stage).Inc()
}

// ObserveFetch records a completed fetch.
func ObserveFetch(kind, site string, bytesFetched int, duration time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveFetchError counts a failed fetch.
func ObserveFetchError(kind, site string) {
	Init()
	fetchErrorsTotal.WithLabelValues(kind, SanitizeSite(site)).Inc()
}

// ObserveRateLimitWait records the time spent waiting on the host limiter.
func ObserveRateLimitWait(site string, duration time.Duration) {
	Init()
	rateLimitWaitSeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active posting workers gauge.
func IncActiveWorkers() {
	Init()
	activePostingWorkers.Inc()
}

// DecActiveWorkers decrements the active posting workers gauge.
func DecActiveWorkers() {
	Init()
	activePostingWorkers.Dec()
}

// SetHeadlessSessions sets the number of checked-out browser sessions.
func SetHeadlessSessions(n int) {
	Init()
	headlessSessionsInUse.Set(float64(n))
}

// ObserveRun counts a finished run by stop reason.
func ObserveRun(reason string) {
	Init()
	runsTotal.WithLabelValues(reason).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
