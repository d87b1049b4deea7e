package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/common/htmlprocessor"
	"github.com/elidickinson/shot-power-scraper/internal/render/har"
	"github.com/elidickinson/shot-power-scraper/internal/render/netbus"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

const titleJS = `document.title || ''`

// Artifact is the output of one capture
type Artifact struct {
	Format      types.Format
	Data        []byte
	ContentType string
	Filename    string
	Status      int
	FinalURL    string
	Title       string
	Duration    time.Duration
	HAR         *har.HAR
	Region      *RegionBox
	Navigation  *NavigationResult
	Network     *netbus.Summary
}

// Executor runs capture jobs against a browser
type Executor struct {
	browser Browser
	logger  *zap.Logger
}

// captureMargin covers producing the artifact once the page is ready:
// screenshot or print, HAR body fetches and teardown
const captureMargin = 15 * time.Second

// Budget is the longest a capture of req can take when every bounded
// stage runs to its limit: navigation, load and wait-for each up to
// Timeout, the fixed Wait, the response grace, the challenge window,
// annoyance clicks and the lazy load passes. It is a backstop for a hung
// browser; the stages enforce their own limits first.
func Budget(req types.CaptureRequest) time.Duration {
	d := req.Wait + 3*req.Timeout + maxResponseGrace + 2*lazyLoadWindow + captureMargin
	if !req.SkipChallengeCheck {
		d += challengeMaxWait + challengeMinElapsed
	}
	if req.ClearAnnoyances {
		d += time.Duration(len(annoyanceSelectors)) * annoyanceSettleDelay
	}
	if req.BlockingEnabled() {
		d += viewportSettleDelay
	}
	return d
}

// NewExecutor creates an executor that opens tabs on browser
func NewExecutor(browser Browser, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{browser: browser, logger: logger}
}

// Capture opens a fresh tab for job and closes it afterwards
func (e *Executor) Capture(ctx context.Context, job *Job) (*Artifact, error) {
	tab, err := e.browser.NewTab(ctx, TabOptionsFor(job.Request))
	if err != nil {
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	defer func() {
		if cerr := tab.Close(); cerr != nil {
			job.Logger.Debug("Failed to close tab", zap.Error(cerr))
		}
	}()
	return e.CaptureOnTab(ctx, job, tab)
}

// CaptureOnTab runs job on a tab the caller owns; the tab is left open.
// Capture uses it with a fresh tab per job.
func (e *Executor) CaptureOnTab(ctx context.Context, job *Job, tab Tab) (*Artifact, error) {
	start := time.Now()
	req := job.Request

	ctx, cancel := context.WithTimeout(ctx, Budget(req))
	defer cancel()

	var assembler *har.Assembler
	if req.Format == types.FormatHAR {
		assembler = har.NewAssembler(req.URL, job.RequestID, req.HARBodies)
		assembler.Attach(tab.Events())
		defer assembler.Detach()
	}

	stats := netbus.NewStats(req.URL)
	stats.Attach(tab.Events())
	defer stats.Detach()

	if err := tab.SetViewport(ctx, req.Width, req.Height); err != nil {
		return nil, protocolErr("set viewport", err)
	}

	nav, err := NewNavigationController(job, tab).Run(ctx)
	if err != nil {
		job.Logger.Debug("Navigation ended early",
			zap.String("state", nav.State.String()),
			zap.Error(err))
		return nil, err
	}

	artifact := &Artifact{
		Format:      req.Format,
		ContentType: req.Format.ContentType(),
		Filename:    req.Output,
		Status:      nav.Status,
		FinalURL:    nav.FinalURL,
		Navigation:  nav,
	}
	if err := tab.Evaluate(ctx, titleJS, &artifact.Title); err != nil {
		job.Logger.Debug("Could not read page title", zap.Error(err))
	}

	switch {
	case req.Format.IsImage():
		err = e.screenshot(ctx, job, tab, artifact)
	case req.Format == types.FormatPDF:
		artifact.Data, err = renderPDF(ctx, tab, req.PDF)
	case req.Format == types.FormatHTML:
		artifact.Data, err = e.html(ctx, job, tab)
	case req.Format == types.FormatHAR:
		err = e.archive(ctx, tab, assembler, artifact)
	default:
		err = &ConfigError{Field: "format", Message: fmt.Sprintf("unsupported format %q", req.Format)}
	}
	if err != nil {
		return nil, err
	}

	artifact.Duration = time.Since(start)
	summary := stats.Summary()
	artifact.Network = &summary
	job.verbose("Capture complete",
		zap.String("format", string(req.Format)),
		zap.Int("bytes", len(artifact.Data)),
		zap.Duration("duration", artifact.Duration),
		zap.Int("requests", summary.TotalRequests),
		zap.Int("blocked", summary.BlockedCount))
	return artifact, nil
}

// Evaluate navigates like a capture and returns the JSON result of expr.
// A returned promise is awaited.
func (e *Executor) Evaluate(ctx context.Context, job *Job, expr string) (json.RawMessage, error) {
	req := job.Request
	tab, err := e.browser.NewTab(ctx, TabOptionsFor(req))
	if err != nil {
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	defer func() {
		if cerr := tab.Close(); cerr != nil {
			job.Logger.Debug("Failed to close tab", zap.Error(cerr))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, Budget(req))
	defer cancel()
	if err := tab.SetViewport(ctx, req.Width, req.Height); err != nil {
		return nil, protocolErr("set viewport", err)
	}
	if _, err := NewNavigationController(job, tab).Run(ctx); err != nil {
		return nil, err
	}

	var result json.RawMessage
	if err := tab.Evaluate(ctx, expr, &result); err != nil {
		return nil, &ScriptError{Err: err}
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return result, nil
}

func (e *Executor) screenshot(ctx context.Context, job *Job, tab Tab, artifact *Artifact) error {
	req := job.Request
	opts := ScreenshotOptions{Format: req.Format, Quality: req.Quality, FullPage: req.FullPage}

	if req.HasSelectors() {
		selector := NewRegionSelector(tab)
		defer selector.Cleanup(context.WithoutCancel(ctx))

		region, err := selector.Select(ctx, req.Selectors, req.SelectorsAll, req.JSSelectors, req.JSSelectorsAll, req.Padding)
		if err != nil {
			return err
		}
		job.verbose("Capturing region",
			zap.Strings("selectors", region.Selectors),
			zap.Float64("top", region.Box.Top),
			zap.Float64("left", region.Box.Left),
			zap.Float64("width", region.Box.Width),
			zap.Float64("height", region.Box.Height))
		artifact.Region = &region.Box
		opts.Selector = region.Selector()
		opts.FullPage = false
	}

	data, err := tab.Screenshot(ctx, opts)
	if err != nil {
		return protocolErr("capture screenshot", err)
	}
	artifact.Data = data
	return nil
}

func (e *Executor) html(ctx context.Context, job *Job, tab Tab) ([]byte, error) {
	req := job.Request
	selector := req.HTMLSelector
	if selector == "" && len(req.Selectors) == 1 && len(req.SelectorsAll) == 0 {
		selector = req.Selectors[0]
	}

	markup, err := tab.OuterHTML(ctx, selector)
	if err != nil {
		return nil, protocolErr("read html", err)
	}
	if req.StripScripts {
		stripped, err := htmlprocessor.StripScripts(markup)
		if err != nil {
			job.Logger.Debug("Script stripping failed, returning markup unchanged", zap.Error(err))
		} else {
			markup = stripped
		}
	}
	return []byte(markup), nil
}

func (e *Executor) archive(ctx context.Context, tab Tab, assembler *har.Assembler, artifact *Artifact) error {
	assembler.Detach()
	page := har.PageInfo{Title: artifact.Title}
	if e.browser != nil {
		page.BrowserVersion = e.browser.Version()
	}
	archive := assembler.Finalize(ctx, tab, page)
	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode har: %w", err)
	}
	artifact.HAR = archive
	artifact.Data = data
	return nil
}
