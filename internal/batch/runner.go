package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/capture"
	"github.com/elidickinson/shot-power-scraper/internal/capturelog"
	"github.com/elidickinson/shot-power-scraper/internal/common/urlutil"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

// Capturer runs one capture job. *capture.Executor satisfies it.
type Capturer interface {
	Capture(ctx context.Context, job *capture.Job) (*capture.Artifact, error)
}

// Options control a batch run
type Options struct {
	Defaults Defaults
	// Noclobber skips shots whose output file already exists
	Noclobber bool
	// Outputs restricts the run to shots with these output paths
	Outputs []string
	// FailOnError stops at the first failed shot
	FailOnError bool
}

// Status is what happened to one shot
type Status string

const (
	StatusWritten  Status = "written"
	StatusSkipped  Status = "skipped"  // the page asked to be skipped
	StatusExists   Status = "exists"   // noclobber
	StatusFiltered Status = "filtered" // not in Outputs
	StatusFailed   Status = "failed"
)

// Result reports one shot
type Result struct {
	Index  int
	URL    string
	Output string
	Status Status
	Err    error
}

// Runner executes shots one after another
type Runner struct {
	capturer Capturer
	events   capturelog.Emitter
	opts     Options
	logger   *zap.Logger
	stdout   io.Writer
	exists   func(string) bool
}

// NewRunner creates a runner. events may be nil.
func NewRunner(capturer Capturer, events capturelog.Emitter, opts Options, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = capturelog.Discard()
	}
	return &Runner{
		capturer: capturer,
		events:   events,
		opts:     opts,
		logger:   logger,
		stdout:   os.Stdout,
		exists:   urlutil.FileExists,
	}
}

// SetStdout redirects "-" outputs
func (r *Runner) SetStdout(w io.Writer) {
	r.stdout = w
}

// Run captures every shot in order. It returns the per-shot results and,
// when a failure stopped the run, the error that did.
func (r *Runner) Run(ctx context.Context, shots []Shot) ([]Result, error) {
	results := make([]Result, 0, len(shots))
	for i, shot := range shots {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := r.runShot(ctx, i, shot)
		results = append(results, res)
		if res.Status != StatusFailed {
			continue
		}

		if r.opts.FailOnError || shot.Fail {
			return results, fmt.Errorf("shot %d (%s): %w", i+1, shot.URL, res.Err)
		}
		if !shot.Silent && !r.opts.Defaults.Silent {
			r.logger.Error("Shot failed, continuing",
				zap.Int("shot", i+1),
				zap.String("url", shot.URL),
				zap.Error(res.Err))
		}
	}
	return results, nil
}

func (r *Runner) runShot(ctx context.Context, index int, shot Shot) Result {
	res := Result{Index: index, URL: shot.URL, Output: shot.Output}

	if len(r.opts.Outputs) > 0 && !slices.Contains(r.opts.Outputs, shot.Output) {
		res.Status = StatusFiltered
		return res
	}
	if r.opts.Noclobber && shot.Output != "" && shot.Output != "-" && r.exists(shot.Output) {
		r.logger.Info("Output exists, skipping", zap.String("output", shot.Output))
		res.Status = StatusExists
		return res
	}

	req, err := shot.Request(r.opts.Defaults)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}
	if req.Output == "" {
		req.Output = urlutil.FilenameForURL(req.URL, req.Format.Extension(), r.exists)
	}
	res.Output = req.Output

	artifact, err := r.capture(ctx, req)
	if err != nil {
		if capture.IsSkip(err) {
			r.logger.Warn(err.Error(), zap.String("url", req.URL))
			res.Status = StatusSkipped
			return res
		}
		res.Status, res.Err = StatusFailed, err
		return res
	}

	if err := r.write(req.Output, artifact.Data); err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}
	res.Status = StatusWritten

	if shot.SaveHTML && req.Format.IsImage() {
		r.saveHTML(ctx, req)
	}
	return res
}

func (r *Runner) capture(ctx context.Context, req types.CaptureRequest) (*capture.Artifact, error) {
	job := capture.NewJob(req, r.logger, "")
	artifact, err := r.capturer.Capture(ctx, job)
	r.events.Emit(capturelog.NewEvent(job, capturelog.SourceBatch, artifact, err))
	return artifact, err
}

// saveHTML writes the page markup next to a screenshot, same base name
func (r *Runner) saveHTML(ctx context.Context, shot types.CaptureRequest) {
	if shot.Output == "-" {
		return
	}
	req := shot
	req.Format = types.FormatHTML
	req.Quality = 0
	req.Output = strings.TrimSuffix(shot.Output, filepath.Ext(shot.Output)) + ".html"

	artifact, err := r.capture(ctx, req)
	if err == nil {
		err = r.write(req.Output, artifact.Data)
	}
	if err != nil {
		r.logger.Warn("Failed to save HTML", zap.String("output", req.Output), zap.Error(err))
	}
}

func (r *Runner) write(path string, data []byte) error {
	if path == "-" {
		_, err := r.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	r.logger.Info("Capture written", zap.String("output", path), zap.Int("bytes", len(data)))
	return nil
}

// Counts tallies results by status
func Counts(results []Result) map[Status]int {
	counts := make(map[Status]int, 5)
	for _, r := range results {
		counts[r.Status]++
	}
	return counts
}
