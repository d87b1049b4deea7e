package capture

import (
	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/common/requestid"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

// Job carries one capture's request and its request-scoped settings
// (policy, verbosity, logger) through the pipeline. It is read-only once
// the capture starts.
type Job struct {
	Request   types.CaptureRequest
	RequestID string
	Logger    *zap.Logger
}

// NewJob binds req to a logger tagged with a fresh request id.
// customID is optional and is sanitized into the id.
func NewJob(req types.CaptureRequest, logger *zap.Logger, customID string) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := requestid.New(customID)
	return &Job{
		Request:   req,
		RequestID: id,
		Logger:    logger.With(zap.String("request_id", id), zap.String("url", req.URL)),
	}
}

// Policy returns the skip/fail/warn policy for this capture
func (j *Job) Policy() types.ErrorPolicy {
	return j.Request.Policy
}

// applyPolicy resolves a recoverable navigation failure: skip wraps it in
// SkipError, fail returns it, warn logs it and returns nil.
func (j *Job) applyPolicy(err error) error {
	switch j.Policy() {
	case types.PolicySkip:
		return &SkipError{Cause: err}
	case types.PolicyFail:
		return err
	default:
		if !j.Request.Silent {
			j.Logger.Warn("Continuing after page error", zap.Error(err))
		}
		return nil
	}
}

// verbose logs at info when the request asked for verbose output, debug otherwise
func (j *Job) verbose(msg string, fields ...zap.Field) {
	if j.Request.Verbose {
		j.Logger.Info(msg, fields...)
		return
	}
	j.Logger.Debug(msg, fields...)
}
