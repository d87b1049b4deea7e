package metricsserver

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const startupGrace = 100 * time.Millisecond

// MetricsHandler serves the exposition format
type MetricsHandler interface {
	ServeHTTP(ctx *fasthttp.RequestCtx)
}

// StartMetricsServer serves metricsPath on its own listener. It returns
// nil when metrics are disabled. The port is checked against the API
// port when the configuration is loaded.
func StartMetricsServer(
	enabled bool,
	metricsListen string,
	metricsPath string,
	metricsHandler MetricsHandler,
	logger *zap.Logger,
) (*fasthttp.Server, error) {
	if !enabled {
		logger.Info("Metrics collection disabled")
		return nil, nil
	}

	server := &fasthttp.Server{
		Handler:            newHandler(metricsPath, metricsHandler),
		Name:               "shot-power-scraper-metrics",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRequestBodySize: 1024,
		TCPKeepalive:       true,
		TCPKeepalivePeriod: 30 * time.Second,
		MaxConnsPerIP:      100,
		Concurrency:        100,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening",
			zap.String("listen", metricsListen),
			zap.String("path", metricsPath))
		if err := server.ListenAndServe(metricsListen); err != nil {
			logger.Error("Metrics server stopped", zap.String("listen", metricsListen), zap.Error(err))
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return nil, err
	case <-time.After(startupGrace):
	}
	return server, nil
}

func newHandler(metricsPath string, metrics MetricsHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != metricsPath {
			ctx.Error("Not Found", fasthttp.StatusNotFound)
			return
		}
		metrics.ServeHTTP(ctx)
	}
}
