package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/render/chrome"
	"github.com/elidickinson/shot-power-scraper/internal/render/netbus"
)

func newTestCollector(t *testing.T) (*MetricsCollector, *PrometheusMetrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	pm := NewPrometheusMetricsWithRegistry("sps", registry, zap.NewNop())
	return NewMetricsCollectorWith(pm, zap.NewNop()), pm, registry
}

func findFamily(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func TestUpdatePool(t *testing.T) {
	mc, pm, _ := newTestCollector(t)
	mc.UpdatePool(chrome.PoolStats{TotalInstances: 4, AvailableInstances: 1, ActiveInstances: 3, TotalRestarts: 2})

	assert.Equal(t, 4.0, testutil.ToFloat64(pm.poolSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.poolAvailable))
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.poolActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.poolRestarts))
}

func TestRecordCapture(t *testing.T) {
	mc, pm, registry := newTestCollector(t)

	mc.RecordCapture("png", OutcomeSuccess, 1500*time.Millisecond)
	mc.RecordCapture("png", OutcomeSuccess, 3*time.Second)
	mc.RecordCapture("png", OutcomeCacheHit, time.Millisecond)
	mc.RecordCapture("pdf", OutcomeSkipped, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.capturesTotal.WithLabelValues("png", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.capturesTotal.WithLabelValues("png", OutcomeCacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.capturesTotal.WithLabelValues("pdf", OutcomeSkipped)))

	family := findFamily(t, registry, "sps_capture_duration_seconds")
	require.Len(t, family.GetMetric(), 1)
	hist := family.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 4.5, hist.GetSampleSum(), 0.001)
}

func TestRecordNetwork(t *testing.T) {
	mc, pm, _ := newTestCollector(t)
	mc.RecordNetwork(netbus.Summary{
		SameOriginRequests: 5, SameOriginBytes: 1000,
		ThirdPartyRequests: 3, ThirdPartyBytes: 250,
		BlockedCount: 2, FailedCount: 1,
	})

	assert.Equal(t, 5.0, testutil.ToFloat64(pm.pageRequests.WithLabelValues("first")))
	assert.Equal(t, 250.0, testutil.ToFloat64(pm.pageBytes.WithLabelValues("third")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.pageBlocked))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.pageFailed))
}

func TestServeHTTP(t *testing.T) {
	mc, _, _ := newTestCollector(t)
	mc.RecordHTTPRequest("/shot", 200)
	mc.RecordRateLimited()
	mc.RecordError(ErrorValidation)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/metrics")
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	mc.ServeHTTP(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	body := string(ctx.Response.Body())
	assert.Contains(t, body, `sps_capture_http_requests_total{endpoint="/shot",status="200"} 1`)
	assert.Contains(t, body, "sps_capture_rate_limited_total 1")
	assert.Contains(t, body, `sps_capture_errors_total{type="validation"} 1`)
}
