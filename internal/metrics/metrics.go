// Package metrics exposes the coordination core's Prometheus metrics,
// grounded on the teacher's grouped promauto-built CounterVec/HistogramVec/
// Gauge struct (internal/monitoring/prometheus.go), trimmed to this
// domain's concerns: HTTP, the engine connection, the store, the DJ
// pipeline, and provider tiers.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every Prometheus collector the coordination core emits.
// Only the HTTP collectors are updated (by GinMiddleware); the engine,
// store, DJ, provider and event-bus collectors are registered and exported
// but no component updates them.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsActive  prometheus.Gauge

	EngineReconnectsTotal prometheus.Counter
	EngineConnected       prometheus.Gauge
	EngineCommandDuration *prometheus.HistogramVec

	StoreOperationsTotal  *prometheus.CounterVec
	StoreOperationLatency *prometheus.HistogramVec

	DJJobsTotal           *prometheus.CounterVec
	DJJobDuration         prometheus.Histogram
	ProviderTierSelected  *prometheus.CounterVec
	ProviderTierFailures  *prometheus.CounterVec

	EventBusDroppedTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New constructs and registers every collector against a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aircast",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "aircast",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestsActive: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "aircast",
				Subsystem: "http",
				Name:      "requests_active",
				Help:      "Current number of active HTTP requests.",
			},
		),

		EngineReconnectsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Namespace: "aircast",
				Subsystem: "engine",
				Name:      "reconnects_total",
				Help:      "Total number of engine control-port reconnect attempts.",
			},
		),
		EngineConnected: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "aircast",
				Subsystem: "engine",
				Name:      "connected",
				Help:      "1 if the engine control connection is currently live.",
			},
		),
		EngineCommandDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "aircast",
				Subsystem: "engine",
				Name:      "command_duration_seconds",
				Help:      "Engine control-port command duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"command", "status"},
		),

		StoreOperationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aircast",
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Total number of store operations.",
			},
			[]string{"operation", "status"},
		),
		StoreOperationLatency: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "aircast",
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Store operation duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"operation"},
		),

		DJJobsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aircast",
				Subsystem: "dj",
				Name:      "jobs_total",
				Help:      "Total number of DJ jobs by terminal state.",
			},
			[]string{"state"},
		),
		DJJobDuration: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "aircast",
				Subsystem: "dj",
				Name:      "job_duration_seconds",
				Help:      "Time from arming to terminal state for a DJ job.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
		ProviderTierSelected: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aircast",
				Subsystem: "provider",
				Name:      "tier_selected_total",
				Help:      "Total number of times a provider tier produced the accepted output.",
			},
			[]string{"family", "tier"},
		),
		ProviderTierFailures: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aircast",
				Subsystem: "provider",
				Name:      "tier_failures_total",
				Help:      "Total number of provider tier failures, by reason.",
			},
			[]string{"family", "tier", "reason"},
		),

		EventBusDroppedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aircast",
				Subsystem: "eventbus",
				Name:      "dropped_total",
				Help:      "Total number of messages dropped due to a saturated subscriber buffer.",
			},
			[]string{"topic"},
		),
	}
}

// GinMiddleware records HTTP request counters/latency, grounded on the
// teacher's PrometheusMiddleware.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.HTTPRequestsActive.Inc()
		defer m.HTTPRequestsActive.Dec()

		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())

		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, endpoint, status).Observe(duration)
	}
}

// Handler returns the /metrics scrape endpoint.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return gin.WrapH(h)
}
