package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for one service instance.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	activeRequests  prometheus.Gauge
	authFailures    prometheus.Counter
	rateLimitHits   prometheus.Counter
	exportQueueSize prometheus.Gauge
	spansExported   prometheus.Counter
	spansDropped    *prometheus.CounterVec
	exportFailures  prometheus.Counter
	buildInfo       *prometheus.GaugeVec
	registry        *prometheus.Registry
}

// NewMetrics creates a new Metrics instance with its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "service"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.activeRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of requests currently being served",
		},
	)

	m.authFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of rejected credentials",
		},
	)

	m.rateLimitHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of requests rejected by rate limiting",
		},
	)

	m.exportQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "export_queue_size",
			Help:      "Number of spans buffered for export",
		},
	)

	m.spansExported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spans_exported_total",
			Help:      "Total number of spans delivered to the collector",
		},
	)

	m.spansDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spans_dropped_total",
			Help:      "Total number of spans dropped, by reason",
		},
		[]string{"reason"},
	)

	m.exportFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_failures_total",
			Help:      "Total number of failed export attempts",
		},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version"},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.activeRequests,
		m.authFailures,
		m.rateLimitHits,
		m.exportQueueSize,
		m.spansExported,
		m.spansDropped,
		m.exportFailures,
		m.buildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// SetBuildInfo records the build version gauge.
func (m *Metrics) SetBuildInfo(version string) {
	m.buildInfo.WithLabelValues(version).Set(1)
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RequestStarted increments the in-flight request gauge.
func (m *Metrics) RequestStarted() {
	m.activeRequests.Inc()
}

// RequestFinished decrements the in-flight request gauge.
func (m *Metrics) RequestFinished() {
	m.activeRequests.Dec()
}

// IncAuthFailure counts a rejected credential.
func (m *Metrics) IncAuthFailure() {
	m.authFailures.Inc()
}

// IncRateLimitHit counts a rate-limited request.
func (m *Metrics) IncRateLimitHit() {
	m.rateLimitHits.Inc()
}

// SetExportQueueSize records the current export buffer depth.
func (m *Metrics) SetExportQueueSize(n int) {
	m.exportQueueSize.Set(float64(n))
}

// AddSpansExported counts spans delivered to the collector.
func (m *Metrics) AddSpansExported(n int) {
	m.spansExported.Add(float64(n))
}

// AddSpansDropped counts dropped spans with the given reason.
func (m *Metrics) AddSpansDropped(reason string, n int) {
	m.spansDropped.WithLabelValues(reason).Add(float64(n))
}

// IncExportFailure counts one failed export attempt.
func (m *Metrics) IncExportFailure() {
	m.exportFailures.Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
