package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/capture"
	"github.com/elidickinson/shot-power-scraper/internal/capturelog"
	"github.com/elidickinson/shot-power-scraper/internal/common/cachekey"
	"github.com/elidickinson/shot-power-scraper/internal/common/clientip"
	"github.com/elidickinson/shot-power-scraper/internal/common/httputil"
	"github.com/elidickinson/shot-power-scraper/internal/common/redis"
	"github.com/elidickinson/shot-power-scraper/internal/render/metrics"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

const storeTimeout = 5 * time.Second

var errPoolUnavailable = errors.New("no browser available")

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorType string `json:"error_type,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status             string `json:"status"`
	PoolSize           int    `json:"pool_size,omitempty"`
	AvailableInstances int    `json:"available_instances,omitempty"`
	ActiveInstances    int    `json:"active_instances,omitempty"`
}

// HTMLResponse is returned by POST /html
type HTMLResponse struct {
	URL       string  `json:"url"`
	HTML      string  `json:"html"`
	Selector  *string `json:"selector"`
	Timestamp float64 `json:"timestamp"`
}

// HARStoredResponse is returned by POST /har when archives are stored
type HARStoredResponse struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Entries int    `json:"entries"`
}

// result is a finished capture, fresh or from the cache
type result struct {
	job      *capture.Job
	artifact *capture.Artifact
	cached   bool
}

func (s *Server) handleShot(ctx *fasthttp.RequestCtx) {
	res, ok := s.run(ctx, types.FormatPNG)
	if !ok {
		return
	}
	name := "screenshot." + res.artifact.Format.Extension()
	writeBinary(ctx, res, name)
}

func (s *Server) handlePDF(ctx *fasthttp.RequestCtx) {
	res, ok := s.run(ctx, types.FormatPDF)
	if !ok {
		return
	}
	writeBinary(ctx, res, "capture.pdf")
}

func (s *Server) handleHTML(ctx *fasthttp.RequestCtx) {
	res, ok := s.run(ctx, types.FormatHTML)
	if !ok {
		return
	}
	resp := HTMLResponse{
		URL:       res.job.Request.URL,
		HTML:      string(res.artifact.Data),
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
	}
	if sel := res.job.Request.HTMLSelector; sel != "" {
		resp.Selector = &sel
	}
	setCaptureHeaders(ctx, res)
	httputil.JSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) handleHAR(ctx *fasthttp.RequestCtx) {
	res, ok := s.run(ctx, types.FormatHAR)
	if !ok {
		return
	}
	setCaptureHeaders(ctx, res)

	if s.Store == nil {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetContentType(res.artifact.ContentType)
		ctx.SetBody(res.artifact.Data)
		return
	}

	storeCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	id := res.job.RequestID
	if err := s.Store.SaveHAR(storeCtx, id, res.artifact.Data); err != nil {
		s.recordError(metrics.ErrorStorage)
		res.job.Logger.Error("Failed to store HAR", zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "Failed to store HAR")
		return
	}
	entries := 0
	if res.artifact.HAR != nil {
		entries = len(res.artifact.HAR.Log.Entries)
	}
	httputil.JSON(ctx, fasthttp.StatusCreated, HARStoredResponse{ID: id, URL: res.job.Request.URL, Entries: entries})
}

func (s *Server) handleLoadHAR(ctx *fasthttp.RequestCtx, id string) {
	if s.Store == nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "HAR storage is not configured")
		return
	}
	if id == "" {
		writeError(ctx, fasthttp.StatusNotFound, "HAR id is required")
		return
	}
	storeCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	data, err := s.Store.LoadHAR(storeCtx, id)
	switch {
	case errors.Is(err, redis.ErrNotFound):
		writeError(ctx, fasthttp.StatusNotFound, fmt.Sprintf("HAR %q not found", id))
	case err != nil:
		s.recordError(metrics.ErrorStorage)
		s.Logger.Error("Failed to load HAR", zap.String("har_id", id), zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "Failed to load HAR")
	default:
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetContentType(types.FormatHAR.ContentType())
		ctx.SetBody(data)
	}
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	resp := HealthResponse{Status: "healthy"}
	if s.PoolStats != nil {
		stats := s.PoolStats()
		resp.PoolSize = stats.TotalInstances
		resp.AvailableInstances = stats.AvailableInstances
		resp.ActiveInstances = stats.ActiveInstances
	}
	httputil.JSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) handleIndex(ctx *fasthttp.RequestCtx) {
	httputil.JSON(ctx, fasthttp.StatusOK, map[string]any{
		"message": "Shot Power Scraper API Server",
		"endpoints": map[string]string{
			"/shot":     "POST - Take a screenshot",
			"/pdf":      "POST - Print the page to PDF",
			"/html":     "POST - Extract HTML content",
			"/har":      "POST - Record an HTTP Archive",
			"/har/{id}": "GET - Fetch a recorded HTTP Archive",
			"/health":   "GET - Health check",
		},
	})
}

// run performs the shared part of every capture endpoint: rate limiting,
// decoding, validation, the SSRF guard, the artifact cache and the
// capture itself. It writes the error response and returns false when the
// request cannot be served.
func (s *Server) run(ctx *fasthttp.RequestCtx, format types.Format) (*result, bool) {
	client := clientip.Extract(ctx, s.ClientIPHeaders)
	if !s.Limiter.Allow(client) {
		if s.Metrics != nil {
			s.Metrics.RecordRateLimited()
		}
		writeError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded, please slow down")
		return nil, false
	}

	var body CaptureBody
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		s.recordError(metrics.ErrorValidation)
		writeError(ctx, fasthttp.StatusBadRequest, "Invalid JSON body")
		return nil, false
	}
	req, err := body.toRequest(format, s.Defaults)
	if err != nil {
		s.recordError(metrics.ErrorValidation)
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
		return nil, false
	}
	reqCtx, cancel := context.WithTimeout(context.Background(), s.hardTimeout(req))
	defer cancel()

	if s.Guard != nil {
		if err := s.Guard.Check(reqCtx, req.URL); err != nil {
			s.recordError(metrics.ErrorValidation)
			s.Logger.Warn("Refused capture target", zap.String("url", req.URL), zap.String("client_ip", client), zap.Error(err))
			writeError(ctx, fasthttp.StatusForbidden, err.Error())
			return nil, false
		}
	}

	job := capture.NewJob(req, s.Logger, string(ctx.Request.Header.Peek("X-Request-ID")))
	ctx.Response.Header.Set("X-Request-ID", job.RequestID)

	cacheKey := ""
	if s.Store.CacheEnabled() && format != types.FormatHAR {
		if cacheKey, err = cachekey.Key(req); err != nil {
			job.Logger.Warn("Could not compute cache key", zap.Error(err))
			cacheKey = ""
		}
	}
	if cacheKey != "" {
		if res := s.fromCache(reqCtx, job, cacheKey); res != nil {
			s.finish(job, client, res.artifact, nil, true)
			return res, true
		}
	}

	job.Logger.Info("Starting capture", zap.String("format", string(req.Format)), zap.String("client_ip", client))
	artifact, err := s.Capturer.Capture(reqCtx, job)
	s.finish(job, client, artifact, err, false)
	if err != nil {
		s.writeCaptureError(ctx, job, err)
		return nil, false
	}

	if cacheKey != "" {
		stored := &redis.StoredArtifact{
			ContentType: artifact.ContentType,
			Status:      artifact.Status,
			FinalURL:    artifact.FinalURL,
			Title:       artifact.Title,
			CapturedAt:  time.Now().UTC(),
			Data:        artifact.Data,
		}
		storeCtx, storeCancel := context.WithTimeout(context.Background(), storeTimeout)
		defer storeCancel()
		if err := s.Store.SaveArtifact(storeCtx, cacheKey, stored); err != nil {
			s.recordError(metrics.ErrorStorage)
			job.Logger.Warn("Failed to cache artifact", zap.Error(err))
		}
	}
	return &result{job: job, artifact: artifact}, true
}

func (s *Server) fromCache(ctx context.Context, job *capture.Job, key string) *result {
	stored, err := s.Store.LoadArtifact(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrNotFound) {
			s.recordError(metrics.ErrorStorage)
			job.Logger.Warn("Artifact cache lookup failed", zap.Error(err))
		}
		return nil
	}
	job.Logger.Debug("Serving cached artifact", zap.Time("captured_at", stored.CapturedAt))
	return &result{
		job:    job,
		cached: true,
		artifact: &capture.Artifact{
			Format:      job.Request.Format,
			Data:        stored.Data,
			ContentType: stored.ContentType,
			Status:      stored.Status,
			FinalURL:    stored.FinalURL,
			Title:       stored.Title,
		},
	}
}

// finish records metrics and the capture event
func (s *Server) finish(job *capture.Job, client string, artifact *capture.Artifact, err error, cached bool) {
	format := string(job.Request.Format)
	ev := capturelog.NewEvent(job, capturelog.SourceAPI, artifact, err)
	ev.ClientIP = client

	outcome := metrics.OutcomeSuccess
	switch {
	case cached:
		outcome = metrics.OutcomeCacheHit
		ev.Outcome = capturelog.OutcomeCacheHit
	case capture.IsSkip(err):
		outcome = metrics.OutcomeSkipped
	case capture.ErrorType(err) == capture.ErrorTypeTimeout || capture.ErrorType(err) == capture.ErrorTypeConditionTimeout:
		outcome = metrics.OutcomeTimeout
	case err != nil:
		outcome = metrics.OutcomeError
	}

	if s.Metrics != nil {
		var duration time.Duration
		if artifact != nil {
			duration = artifact.Duration
			if artifact.Network != nil {
				s.Metrics.RecordNetwork(*artifact.Network)
			}
		}
		s.Metrics.RecordCapture(format, outcome, duration)
		if outcome == metrics.OutcomeError || outcome == metrics.OutcomeTimeout {
			s.Metrics.RecordError(metrics.ErrorCapture)
		}
	}
	s.Events.Emit(ev)
}

// browserWaitMargin is the extra time a request may queue for a browser
const browserWaitMargin = 10 * time.Second

func (s *Server) hardTimeout(req types.CaptureRequest) time.Duration {
	if s.HardTimeout > 0 {
		return s.HardTimeout
	}
	return capture.Budget(req) + browserWaitMargin
}

// writeCaptureError maps capture failures to HTTP statuses
func (s *Server) writeCaptureError(ctx *fasthttp.RequestCtx, job *capture.Job, err error) {
	var (
		status    *capture.HttpStatusError
		transport *capture.NavigationTransportError
		selector  *capture.SelectorNotFoundError
		cfg       *capture.ConfigError
	)
	code := fasthttp.StatusInternalServerError
	switch {
	case capture.IsSkip(err):
		job.Logger.Info("Capture skipped", zap.Error(err))
		ctx.Response.Header.Set("X-Skip-Reason", err.Error())
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	case errors.Is(err, errPoolUnavailable):
		code = fasthttp.StatusServiceUnavailable
	case errors.As(err, &cfg):
		code = fasthttp.StatusBadRequest
	case errors.As(err, &transport):
		code = fasthttp.StatusBadRequest
	case errors.As(err, &selector):
		code = fasthttp.StatusNotFound
	case errors.As(err, &status):
		code = fasthttp.StatusBadGateway
	case capture.ErrorType(err) == capture.ErrorTypeConditionTimeout,
		capture.ErrorType(err) == capture.ErrorTypeTimeout:
		code = fasthttp.StatusGatewayTimeout
	}

	if code >= fasthttp.StatusInternalServerError {
		job.Logger.Error("Capture failed", zap.Error(err))
	} else {
		job.Logger.Warn("Capture failed", zap.Error(err))
	}
	httputil.JSON(ctx, code, ErrorResponse{
		Detail:    err.Error(),
		ErrorType: capture.ErrorType(err),
		RequestID: job.RequestID,
	})
}

func (s *Server) recordError(kind string) {
	if s.Metrics != nil {
		s.Metrics.RecordError(kind)
	}
}

func setCaptureHeaders(ctx *fasthttp.RequestCtx, res *result) {
	if res.cached {
		ctx.Response.Header.Set("X-Cache", "HIT")
	} else {
		ctx.Response.Header.Set("X-Cache", "MISS")
	}
	if res.artifact.Status > 0 {
		ctx.Response.Header.Set("X-Page-Status", fmt.Sprint(res.artifact.Status))
	}
	if res.artifact.FinalURL != "" {
		ctx.Response.Header.Set("X-Final-URL", res.artifact.FinalURL)
	}
}

func writeBinary(ctx *fasthttp.RequestCtx, res *result, filename string) {
	setCaptureHeaders(ctx, res)
	httputil.Inline(ctx, res.artifact.ContentType, filename, res.artifact.Data)
}

func writeError(ctx *fasthttp.RequestCtx, statusCode int, detail string) {
	httputil.JSON(ctx, statusCode, ErrorResponse{Detail: detail})
}
