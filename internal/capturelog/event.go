// Package capturelog writes one line per finished capture to a rotating
// file, formatted from a placeholder template.
package capturelog

import (
	"errors"
	"time"

	"github.com/elidickinson/shot-power-scraper/internal/capture"
)

// Sources
const (
	SourceCLI   = "cli"
	SourceBatch = "batch"
	SourceAPI   = "api"
	SourceMCP   = "mcp"
)

// Outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeSkipped  = "skipped"
	OutcomeError    = "error"
	OutcomeCacheHit = "cache_hit"
)

// Event describes one capture attempt
type Event struct {
	CreatedAt    time.Time
	RequestID    string
	Source       string
	ClientIP     string
	URL          string
	FinalURL     string
	Format       string
	Outcome      string
	StatusCode   int
	Bytes        int
	Duration     time.Duration
	Title        string
	ErrorType    string
	ErrorMessage string

	TotalRequests      int
	TotalBytes         int64
	ThirdPartyRequests int
	BlockedCount       int
	FailedCount        int
}

// NewEvent builds an event from a capture's result. artifact is nil when
// the capture failed or was skipped.
func NewEvent(job *capture.Job, source string, artifact *capture.Artifact, err error) *Event {
	ev := &Event{
		CreatedAt: time.Now().UTC(),
		RequestID: job.RequestID,
		Source:    source,
		URL:       job.Request.URL,
		Format:    string(job.Request.Format),
		Outcome:   OutcomeSuccess,
	}

	if err != nil {
		var skip *capture.SkipError
		if errors.As(err, &skip) {
			ev.Outcome = OutcomeSkipped
		} else {
			ev.Outcome = OutcomeError
		}
		ev.ErrorType = capture.ErrorType(err)
		ev.ErrorMessage = err.Error()
	}

	if artifact != nil {
		ev.FinalURL = artifact.FinalURL
		ev.StatusCode = artifact.Status
		ev.Bytes = len(artifact.Data)
		ev.Duration = artifact.Duration
		ev.Title = artifact.Title
		if n := artifact.Network; n != nil {
			ev.TotalRequests = n.TotalRequests
			ev.TotalBytes = n.TotalBytes
			ev.ThirdPartyRequests = n.ThirdPartyRequests
			ev.BlockedCount = n.BlockedCount
			ev.FailedCount = n.FailedCount
		}
	}
	return ev
}
