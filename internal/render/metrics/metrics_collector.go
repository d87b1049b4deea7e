package metrics

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/render/chrome"
	"github.com/elidickinson/shot-power-scraper/internal/render/netbus"
)

// Capture outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeSkipped  = "skipped"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
	OutcomeCacheHit = "cache_hit"
)

// Error types
const (
	ErrorValidation = "validation"
	ErrorCapture    = "capture"
	ErrorStorage    = "storage"
	ErrorInternal   = "internal"
)

// MetricsCollector records capture-service metrics from domain values
type MetricsCollector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

// NewMetricsCollector registers on the default Prometheus registry
func NewMetricsCollector(namespace string, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetrics(namespace, logger),
		logger:     logger,
	}
}

// NewMetricsCollectorWith wraps already registered metrics
func NewMetricsCollectorWith(pm *PrometheusMetrics, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{prometheus: pm, logger: logger}
}

// UpdatePool mirrors a pool snapshot; pass it to Pool.OnChange
func (mc *MetricsCollector) UpdatePool(stats chrome.PoolStats) {
	mc.prometheus.poolSize.Set(float64(stats.TotalInstances))
	mc.prometheus.poolAvailable.Set(float64(stats.AvailableInstances))
	mc.prometheus.poolActive.Set(float64(stats.ActiveInstances))
	mc.prometheus.poolRestarts.Set(float64(stats.TotalRestarts))
}

// RecordCapture counts one capture. Durations are only observed for
// captures that ran.
func (mc *MetricsCollector) RecordCapture(format, outcome string, duration time.Duration) {
	mc.prometheus.capturesTotal.WithLabelValues(format, outcome).Inc()
	if outcome != OutcomeCacheHit && duration > 0 {
		mc.prometheus.captureDuration.WithLabelValues(format).Observe(duration.Seconds())
	}
}

// RecordNetwork adds a capture's page traffic
func (mc *MetricsCollector) RecordNetwork(summary netbus.Summary) {
	p := mc.prometheus
	p.pageRequests.WithLabelValues("first").Add(float64(summary.SameOriginRequests))
	p.pageRequests.WithLabelValues("third").Add(float64(summary.ThirdPartyRequests))
	p.pageBytes.WithLabelValues("first").Add(float64(summary.SameOriginBytes))
	p.pageBytes.WithLabelValues("third").Add(float64(summary.ThirdPartyBytes))
	p.pageBlocked.Add(float64(summary.BlockedCount))
	p.pageFailed.Add(float64(summary.FailedCount))
}

func (mc *MetricsCollector) RecordHTTPRequest(endpoint string, status int) {
	mc.prometheus.httpRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func (mc *MetricsCollector) RecordRateLimited() {
	mc.prometheus.rateLimited.Inc()
	mc.logger.Debug("Recorded rate limited request")
}

func (mc *MetricsCollector) RecordError(kind string) {
	mc.prometheus.errorsTotal.WithLabelValues(kind).Inc()
}

// ServeHTTP serves Prometheus metrics
func (mc *MetricsCollector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	mc.prometheus.ServeHTTP(ctx)
}
