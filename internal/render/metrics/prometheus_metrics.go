package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

const subsystem = "capture"

// PrometheusMetrics owns the raw collectors of the capture service
type PrometheusMetrics struct {
	// Browser pool
	poolSize      prometheus.Gauge
	poolAvailable prometheus.Gauge
	poolActive    prometheus.Gauge
	poolRestarts  prometheus.Gauge

	// Captures
	capturesTotal   *prometheus.CounterVec
	captureDuration *prometheus.HistogramVec

	// Page traffic seen while capturing
	pageRequests *prometheus.CounterVec
	pageBytes    *prometheus.CounterVec
	pageBlocked  prometheus.Counter
	pageFailed   prometheus.Counter

	// HTTP API
	httpRequests *prometheus.CounterVec
	rateLimited  prometheus.Counter
	errorsTotal  *prometheus.CounterVec

	httpHandler fasthttp.RequestHandler
}

// NewPrometheusMetrics registers on the default registry
func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewPrometheusMetricsWithRegistry registers on registerer, which is also
// gathered from when it implements prometheus.Gatherer
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help})
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
	}

	pm := &PrometheusMetrics{
		poolSize:      gauge("browser_pool_size", "Browsers in the pool"),
		poolAvailable: gauge("browser_available", "Idle browsers"),
		poolActive:    gauge("browser_active", "Browsers running a capture"),
		poolRestarts:  gauge("browser_restarts", "Browser restarts since the pool started"),

		capturesTotal: counterVec("captures_total", "Captures by format and outcome", "format", "outcome"),
		captureDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Time spent capturing",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~2m
		}, []string{"format"}),

		pageRequests: counterVec("page_requests_total", "Requests made by captured pages", "party"),
		pageBytes:    counterVec("page_bytes_total", "Bytes transferred by captured pages", "party"),
		pageBlocked:  counter("page_blocked_requests_total", "Requests aborted by the blocklist"),
		pageFailed:   counter("page_failed_requests_total", "Requests that failed to load"),

		httpRequests: counterVec("http_requests_total", "HTTP requests by endpoint and status", "endpoint", "status"),
		rateLimited:  counter("rate_limited_total", "Requests refused by the rate limiter"),
		errorsTotal:  counterVec("errors_total", "Errors by type", "type"),
	}

	registerer.MustRegister(
		pm.poolSize, pm.poolAvailable, pm.poolActive, pm.poolRestarts,
		pm.capturesTotal, pm.captureDuration,
		pm.pageRequests, pm.pageBytes, pm.pageBlocked, pm.pageFailed,
		pm.httpRequests, pm.rateLimited, pm.errorsTotal,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Debug("Prometheus metrics initialized", zap.String("namespace", namespace))
	return pm
}

// ServeHTTP serves the Prometheus exposition format
func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}
