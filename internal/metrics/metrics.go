// Package metrics exposes Prometheus collectors for the ingestion service.
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
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerBytesTotal             *prometheus.CounterVec
	crawlerRateLimitDelaySeconds  prometheus.Histogram
	crawlerRobotsFallbackTotal    prometheus.Counter
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	ingestTasksTotal              *prometheus.CounterVec
	ingestActiveTasks             prometheus.Gauge
	ingestChunksTotal             prometheus.Counter
	ingestEmbeddingBatchesSeconds prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerRateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delay_seconds",
				Help:    "Histogram of time spent waiting on the global fetch limiter.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		crawlerRobotsFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_robots_fallback_total",
				Help: "Total robots.txt probes that timed out and fell back to allow-all.",
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

		ingestTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_tasks_total",
				Help: "Total number of ingestion tasks that reached a terminal state, labeled by state.",
			},
			[]string{"state"},
		)

		ingestActiveTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_active_tasks",
				Help: "Number of ingestion tasks currently running.",
			},
		)

		ingestChunksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_chunks_total",
				Help: "Total number of chunks stored.",
			},
		)

		ingestEmbeddingBatchesSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_embedding_batch_seconds",
				Help:    "Histogram of embedding batch latencies.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
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

// ObserveFetch increments the fetch counters for one page.
func ObserveFetch(site string, status string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveRateLimitDelay records the duration of a limiter wait.
func ObserveRateLimitDelay(duration time.Duration) {
	crawlerRateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveRobotsFallback increments the robots.txt fallback counter.
func ObserveRobotsFallback() {
	crawlerRobotsFallbackTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveTask increments the terminal task counter for the given state.
func ObserveTask(state string) {
	ingestTasksTotal.WithLabelValues(state).Inc()
}

// IncActiveTasks increments the active tasks gauge.
func IncActiveTasks() {
	ingestActiveTasks.Inc()
}

// DecActiveTasks decrements the active tasks gauge.
func DecActiveTasks() {
	ingestActiveTasks.Dec()
}

// AddChunks adds stored chunks to the chunk counter.
func AddChunks(n int) {
	if n > 0 {
		ingestChunksTotal.Add(float64(n))
	}
}

// ObserveEmbeddingBatch records the latency of one embedding call.
func ObserveEmbeddingBatch(duration time.Duration) {
	ingestEmbeddingBatchesSeconds.Observe(duration.Seconds())
}
