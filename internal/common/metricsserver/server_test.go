package metricsserver

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type stubMetrics struct{}

func (stubMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	ctx.SetBodyString("# TYPE sps_capture_captures_total counter\n")
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestStartMetricsServer_Disabled(t *testing.T) {
	server, err := StartMetricsServer(false, ":0", "/metrics", stubMetrics{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, server)
}

func TestStartMetricsServer_Serves(t *testing.T) {
	addr := freeAddr(t)
	server, err := StartMetricsServer(true, addr, "/metrics", stubMetrics{}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, server)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.ShutdownWithContext(ctx)
	})

	status, body, err := fasthttp.Get(nil, fmt.Sprintf("http://%s/metrics", addr))
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, string(body), "sps_capture_captures_total")

	status, _, err = fasthttp.Get(nil, fmt.Sprintf("http://%s/other", addr))
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusNotFound, status)
}

func TestStartMetricsServer_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = StartMetricsServer(true, ln.Addr().String(), "/metrics", stubMetrics{}, zap.NewNop())
	assert.Error(t, err)
}

func TestHandler_CustomPath(t *testing.T) {
	handler := newHandler("/internal/metrics", stubMetrics{})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/internal/metrics")
	handler(ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/metrics")
	handler(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}
