package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for Busara outside the
// orchestrator (which registers its own subsystem on the same registry).
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// LLM metrics.
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMTokensUsed      *prometheus.CounterVec

	// Web scraper metrics.
	ScrapeFetchesTotal *prometheus.CounterVec
	ScrapeCacheEvents  *prometheus.CounterVec

	// Vector retrieval metrics.
	RetrievalSearchesTotal *prometheus.CounterVec
	RetrievalDuration      *prometheus.HistogramVec

	// Chat metrics.
	ChatMessagesTotal *prometheus.CounterVec

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		LLMRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total LLM API requests.",
		}, []string{"provider", "model", "status"}),

		LLMRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "busara",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "LLM API request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),

		LLMTokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total LLM tokens consumed.",
		}, []string{"provider", "model", "direction"}),

		ScrapeFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "scraper",
			Name:      "fetches_total",
			Help:      "Total web fetches by outcome.",
		}, []string{"status"}),

		ScrapeCacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "scraper",
			Name:      "cache_events_total",
			Help:      "Scraper cache hits and misses.",
		}, []string{"event"}),

		RetrievalSearchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "retrieval",
			Name:      "searches_total",
			Help:      "Total vector searches by backend and outcome.",
		}, []string{"backend", "status"}),

		RetrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "busara",
			Subsystem: "retrieval",
			Name:      "search_duration_seconds",
			Help:      "Vector search duration in seconds by backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),

		ChatMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Total chat messages by path (simple, orchestrated) and status.",
		}, []string{"path", "status"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "busara",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "busara",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.LLMRequestsTotal,
		m.LLMRequestDuration,
		m.LLMTokensUsed,
		m.ScrapeFetchesTotal,
		m.ScrapeCacheEvents,
		m.RetrievalSearchesTotal,
		m.RetrievalDuration,
		m.ChatMessagesTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}
