// Package service is the HTTP capture API
package service

import (
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/capturelog"
	"github.com/elidickinson/shot-power-scraper/internal/common/config"
	"github.com/elidickinson/shot-power-scraper/internal/common/redis"
	"github.com/elidickinson/shot-power-scraper/internal/common/urlutil"
	"github.com/elidickinson/shot-power-scraper/internal/render/chrome"
	"github.com/elidickinson/shot-power-scraper/internal/render/metrics"
)

const harPathPrefix = "/har/"

// Options wires a Server. Store, Guard, Limiter, Events and PoolStats are
// optional.
type Options struct {
	Capturer        Capturer
	Store           *redis.Store
	Guard           *urlutil.CaptureGuard
	Limiter         *RateLimiter
	Events          capturelog.Emitter
	Metrics         *metrics.MetricsCollector
	Defaults        config.CaptureDefaults
	ClientIPHeaders []string
	PoolStats       func() chrome.PoolStats
	// HardTimeout bounds a whole request including the wait for a
	// browser; zero derives it from the capture timeout.
	HardTimeout time.Duration
	Logger      *zap.Logger
}

// Server routes capture requests
type Server struct {
	Options
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = capturelog.Discard()
	}
	return &Server{Options: opts}
}

// Handler returns the request router
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		method := string(ctx.Method())
		start := time.Now()

		endpoint := path
		switch {
		case method == fasthttp.MethodPost && path == "/shot":
			s.handleShot(ctx)
		case method == fasthttp.MethodPost && path == "/pdf":
			s.handlePDF(ctx)
		case method == fasthttp.MethodPost && path == "/html":
			s.handleHTML(ctx)
		case method == fasthttp.MethodPost && path == "/har":
			s.handleHAR(ctx)
		case method == fasthttp.MethodGet && strings.HasPrefix(path, harPathPrefix):
			endpoint = harPathPrefix + "{id}"
			s.handleLoadHAR(ctx, strings.TrimPrefix(path, harPathPrefix))
		case method == fasthttp.MethodGet && path == "/health":
			s.handleHealth(ctx)
		case method == fasthttp.MethodGet && path == "/":
			s.handleIndex(ctx)
		default:
			endpoint = "other"
			writeError(ctx, fasthttp.StatusNotFound, "Not Found")
		}

		status := ctx.Response.StatusCode()
		if s.Metrics != nil {
			s.Metrics.RecordHTTPRequest(endpoint, status)
		}
		s.Logger.Debug("Request served",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)))
	}
}
