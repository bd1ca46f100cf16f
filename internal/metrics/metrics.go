// Package metrics exposes Prometheus collectors for the lead engine.
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
	candidatesTotal              *prometheus.CounterVec
	upsertsTotal                 *prometheus.CounterVec
	placesRequestsTotal          *prometheus.CounterVec
	placesRequestDurationSeconds prometheus.Histogram
	browserRunsTotal             *prometheus.CounterVec
	browserScrollsTotal          *prometheus.CounterVec
	scanPagesTotal               prometheus.Counter
	activeBrowserRuns            prometheus.Gauge
	browserRunQueueDepth         prometheus.Gauge
	browserRunRejectionsTotal    *prometheus.CounterVec
	rateLimitDelaysSeconds       *prometheus.HistogramVec
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_candidates_total",
				Help: "Candidates evaluated by the qualification policy, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		upsertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_upserts_total",
				Help: "Lead upserts, labeled by source and result (inserted, updated, failed).",
			},
			[]string{"source", "result"},
		)

		placesRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_places_requests_total",
				Help: "Places API requests, labeled by HTTP status code.",
			},
			[]string{"code"},
		)

		placesRequestDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadscout_places_request_duration_seconds",
				Help:    "Histogram of Places API request latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		browserRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_browser_runs_total",
				Help: "Browser-automation runs, labeled by final state.",
			},
			[]string{"final_state"},
		)

		browserScrollsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_browser_scrolls_total",
				Help: "Result feed scroll attempts, labeled by technique.",
			},
			[]string{"technique"},
		)

		scanPagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadscout_scan_pages_total",
				Help: "Places result pages processed by the scan orchestrator.",
			},
		)

		activeBrowserRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadscout_active_browser_runs",
				Help: "Number of browser runs currently executing.",
			},
		)

		browserRunQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadscout_browser_run_queue_depth",
				Help: "Browser runs waiting for a worker.",
			},
		)

		browserRunRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_browser_run_rejections_total",
				Help: "Browser run submissions refused by the queue.",
			},
			[]string{"reason"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadscout_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
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

// ObserveCandidate counts one policy evaluation. outcome is "qualified" or a
// lowercase rejection reason.
func ObserveCandidate(source, outcome string) {
	Init()
	candidatesTotal.WithLabelValues(source, strings.ToLower(outcome)).Inc()
}

// ObserveWrites adds a batch of upsert outcomes.
func ObserveWrites(source string, inserted, updated, failed int) {
	Init()
	upsertsTotal.WithLabelValues(source, "inserted").Add(float64(inserted))
	upsertsTotal.WithLabelValues(source, "updated").Add(float64(updated))
	upsertsTotal.WithLabelValues(source, "failed").Add(float64(failed))
}

// ObservePlacesRequest records a Places API round trip. Transport failures use code 0.
func ObservePlacesRequest(code int, duration time.Duration) {
	Init()
	placesRequestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
	placesRequestDurationSeconds.Observe(duration.Seconds())
}

// ObserveBrowserRun counts a finished browser run.
func ObserveBrowserRun(finalState string) {
	Init()
	browserRunsTotal.WithLabelValues(finalState).Inc()
}

// ObserveScroll counts one feed scroll attempt.
func ObserveScroll(technique string) {
	Init()
	browserScrollsTotal.WithLabelValues(technique).Inc()
}

// ObserveScanPage counts one orchestrated Places page.
func ObserveScanPage() {
	Init()
	scanPagesTotal.Inc()
}

// IncActiveBrowserRuns increments the active browser runs gauge.
func IncActiveBrowserRuns() {
	Init()
	activeBrowserRuns.Inc()
}

// DecActiveBrowserRuns decrements the active browser runs gauge.
func DecActiveBrowserRuns() {
	Init()
	activeBrowserRuns.Dec()
}

// SetQueueDepth reports how many browser runs are waiting.
func SetQueueDepth(n int) {
	Init()
	browserRunQueueDepth.Set(float64(n))
}

// ObserveQueueRejection counts a refused submission ("full" or "closed").
func ObserveQueueRejection(reason string) {
	Init()
	browserRunRejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
