package chrome

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/capture"
	"github.com/elidickinson/shot-power-scraper/internal/render/netbus"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

// Network buffers used when response bodies must survive until the
// archive is written.
const (
	harTotalBufferSize    = 10 * 1024 * 1024
	harResourceBufferSize = 5 * 1024 * 1024
)

const (
	fetchCommandTimeout = 2 * time.Second
	fetchDrainTimeout   = 5 * time.Second
	extractAttempts     = 3
	extractRetryDelay   = 300 * time.Millisecond
)

// Tab drives one browser tab over the DevTools protocol
type Tab struct {
	ctx       context.Context
	cancel    context.CancelFunc
	bus       *netbus.Bus
	blocklist *Blocklist
	opts      capture.TabOptions
	logger    *zap.Logger

	mu       sync.Mutex
	viewport capture.Viewport

	fetchHandlers atomic.Int64
	closed        atomic.Bool
}

// openTab creates a target under browserCtx and prepares it for capture.
// The event listener is attached before the target exists.
func openTab(ctx, browserCtx context.Context, opts capture.TabOptions, blocklist *Blocklist, logger *zap.Logger) (*Tab, error) {
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	t := &Tab{
		ctx:       tabCtx,
		cancel:    cancel,
		bus:       netbus.NewBus(),
		blocklist: blocklist,
		opts:      opts,
		logger:    logger,
		viewport:  capture.Viewport{Width: opts.Width, Height: opts.Height},
	}

	// The target's event loop lives as long as the context of the first
	// Run, so the target is created on tabCtx itself.
	chromedp.ListenTarget(tabCtx, t.handleEvent)
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		cancel()
		t.bus.Close()
		return nil, fmt.Errorf("failed to create target: %w", err)
	}

	tasks := chromedp.Tasks{
		t.enableNetwork(),
		page.Enable(),
	}
	if !blocklist.Empty() {
		tasks = append(tasks, fetch.Enable())
	}
	if opts.LogConsole {
		tasks = append(tasks, cdpruntime.Enable())
	}
	if opts.Stealth {
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealth.JS).Do(ctx)
			return err
		}))
	}
	if opts.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(opts.UserAgent))
	}
	if opts.Width > 0 && opts.Height > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(int64(opts.Width), int64(opts.Height), 1, false))
	}

	if err := t.run(ctx, tasks); err != nil {
		cancel()
		t.bus.Close()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return t, nil
}

func (t *Tab) enableNetwork() chromedp.Action {
	if t.opts.HARBodies {
		return network.Enable().
			WithMaxTotalBufferSize(harTotalBufferSize).
			WithMaxResourceBufferSize(harResourceBufferSize)
	}
	return network.Enable()
}

// run executes actions on the tab, stopping early when ctx ends. Only
// the derived context is cancelled, never the tab itself.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	if t.closed.Load() {
		return ErrTabClosed
	}
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (t *Tab) handleEvent(event any) {
	switch ev := event.(type) {
	case *fetch.EventRequestPaused:
		t.fetchHandlers.Add(1)
		go t.resolvePaused(ev)
	case *network.EventRequestWillBeSent:
		t.bus.Publish(requestStartedEvent(ev))
	case *network.EventResponseReceived:
		t.bus.Publish(responseReceivedEvent(ev))
	case *network.EventLoadingFinished:
		t.bus.Publish(loadingFinishedEvent(ev))
	case *network.EventLoadingFailed:
		t.bus.Publish(loadingFailedEvent(ev))
	case *page.EventDomContentEventFired:
		t.bus.Publish(domContentLoadedEvent(ev))
	case *page.EventLoadEventFired:
		t.bus.Publish(pageLoadedEvent(ev))
	case *cdpruntime.EventConsoleAPICalled:
		if t.opts.LogConsole {
			t.logConsole(ev)
		}
	}
}

// resolvePaused continues or aborts an intercepted request. It runs on
// its own goroutine so the event loop is never blocked on a command.
func (t *Tab) resolvePaused(ev *fetch.EventRequestPaused) {
	defer t.fetchHandlers.Add(-1)

	cmdCtx, cancel := context.WithTimeout(t.ctx, fetchCommandTimeout)
	defer cancel()
	c := chromedp.FromContext(cmdCtx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(cmdCtx, c.Target)

	requestURL := ""
	if ev.Request != nil {
		requestURL = ev.Request.URL
	}

	reason, blocked := t.blocklist.Match(requestURL)
	if !blocked {
		if err := fetch.ContinueRequest(ev.RequestID).Do(execCtx); err != nil {
			t.logger.Debug("Failed to continue request, failing instead",
				zap.String("url", requestURL),
				zap.Error(err))
			_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonAborted).Do(execCtx)
		}
		return
	}

	id := string(ev.NetworkID)
	if id == "" {
		id = string(ev.RequestID)
	}
	t.bus.Publish(netbus.Event{
		Kind:         netbus.RequestBlocked,
		RequestID:    id,
		FrameID:      string(ev.FrameID),
		URL:          requestURL,
		ResourceType: string(ev.ResourceType),
		ErrorText:    reason,
		WallTime:     time.Now().UTC(),
	})
	if err := fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx); err != nil {
		t.logger.Debug("Failed to block request",
			zap.String("url", requestURL),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

func (t *Tab) logConsole(ev *cdpruntime.EventConsoleAPICalled) {
	message := consoleMessage(ev)
	if message == "" {
		return
	}
	source, location := sourceInfo(ev.StackTrace)
	fields := []zap.Field{
		zap.String("type", string(ev.Type)),
		zap.String("message", message),
		zap.String("source", source),
		zap.String("location", location),
	}
	switch ev.Type {
	case cdpruntime.APITypeError, cdpruntime.APITypeAssert:
		t.logger.Warn("Console", fields...)
	default:
		t.logger.Info("Console", fields...)
	}
}

func (t *Tab) Navigate(ctx context.Context, url string) error {
	return t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return &capture.NavigationTransportError{
				URL:    url,
				Reason: errorText,
				Err:    errors.New(errorText),
			}
		}
		return nil
	}))
}

func (t *Tab) Evaluate(ctx context.Context, expr string, out any) error {
	return t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return evaluate(ctx, expr, out)
	}))
}

func evaluate(ctx context.Context, expr string, out any) error {
	obj, exception, err := cdpruntime.Evaluate(expr).
		WithAwaitPromise(true).
		WithReturnByValue(true).
		Do(ctx)
	if err != nil {
		return err
	}
	if exception != nil {
		return exception
	}
	if out == nil || obj == nil || len(obj.Value) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(obj.Value), out)
}

func elementRectsJS(selector string, all bool) string {
	return fmt.Sprintf(`(() => {
  const sel = %s;
  const els = %t ? Array.from(document.querySelectorAll(sel)) : [document.querySelector(sel)].filter(Boolean);
  return els.map(el => {
    const r = el.getBoundingClientRect();
    return {top: r.top + window.scrollY, left: r.left + window.scrollX, width: r.width, height: r.height};
  });
})()`, strconv.Quote(selector), all)
}

func (t *Tab) ElementRects(ctx context.Context, selector string, all bool) ([]capture.Rect, error) {
	var rects []capture.Rect
	if err := t.Evaluate(ctx, elementRectsJS(selector, all), &rects); err != nil {
		return nil, err
	}
	return rects, nil
}

func (t *Tab) Screenshot(ctx context.Context, opts capture.ScreenshotOptions) ([]byte, error) {
	var clip *page.Viewport
	switch {
	case opts.Selector != "":
		rects, err := t.ElementRects(ctx, opts.Selector, false)
		if err != nil {
			return nil, err
		}
		if len(rects) == 0 {
			return nil, &capture.SelectorNotFoundError{Selector: opts.Selector}
		}
		r := rects[0]
		if r.Width <= 0 || r.Height <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoElementRect, opts.Selector)
		}
		clip = &page.Viewport{X: r.Left, Y: r.Top, Width: r.Width, Height: r.Height, Scale: 1}
	case opts.FullPage:
		size, err := t.contentSize(ctx)
		if err != nil {
			return nil, err
		}
		clip = &page.Viewport{X: 0, Y: 0, Width: size.Width, Height: size.Height, Scale: 1}
	}

	format := page.CaptureScreenshotFormatPng
	if opts.Format == types.FormatJPEG {
		format = page.CaptureScreenshotFormatJpeg
	}

	var buf []byte
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().
			WithFormat(format).
			WithFromSurface(true)
		if format == page.CaptureScreenshotFormatJpeg && opts.Quality > 0 {
			params = params.WithQuality(int64(opts.Quality))
		}
		if clip != nil {
			params = params.WithClip(clip).WithCaptureBeyondViewport(true)
		}
		var err error
		buf, err = params.Do(ctx)
		return err
	}))
	return buf, err
}

type contentSize struct {
	Width  float64
	Height float64
}

func (t *Tab) contentSize(ctx context.Context) (contentSize, error) {
	var size contentSize
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, _, css, err := page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return err
		}
		if css == nil {
			return ErrNoLayout
		}
		size = contentSize{Width: math.Ceil(css.Width), Height: math.Ceil(css.Height)}
		return nil
	}))
	return size, err
}

func (t *Tab) PrintToPDF(ctx context.Context, opts capture.PrintOptions) ([]byte, error) {
	var buf []byte
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.PrintToPDF().
			WithLandscape(opts.Landscape).
			WithPrintBackground(opts.PrintBackground).
			WithMarginTop(opts.MarginTop).
			WithMarginBottom(opts.MarginBottom).
			WithMarginLeft(opts.MarginLeft).
			WithMarginRight(opts.MarginRight)
		if opts.PaperWidth > 0 && opts.PaperHeight > 0 {
			params = params.WithPaperWidth(opts.PaperWidth).WithPaperHeight(opts.PaperHeight)
		}
		if opts.Scale > 0 {
			params = params.WithScale(opts.Scale)
		}
		var err error
		buf, _, err = params.Do(ctx)
		return err
	}))
	return buf, err
}

func (t *Tab) SetViewport(ctx context.Context, width, height int) error {
	err := t.run(ctx, emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, false))
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.viewport = capture.Viewport{Width: width, Height: height}
	t.mu.Unlock()
	return nil
}

func (t *Tab) Viewport() capture.Viewport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewport
}

func (t *Tab) EmulateMedia(ctx context.Context, media string) error {
	return t.run(ctx, emulation.SetEmulatedMedia().WithMedia(media))
}

func (t *Tab) Events() *netbus.Bus {
	return t.bus
}

func (t *Tab) ResponseBody(ctx context.Context, requestID string) (netbus.Body, error) {
	var body netbus.Body
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := network.GetResponseBody(network.RequestID(requestID)).Do(ctx)
		if err != nil {
			return err
		}
		if utf8.Valid(raw) {
			body = netbus.Body{Text: string(raw)}
		} else {
			body = netbus.Body{Text: base64.StdEncoding.EncodeToString(raw), Base64: true}
		}
		return nil
	}))
	return body, err
}

func outerHTMLJS(selector string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); return el ? el.outerHTML : null; })()`,
		strconv.Quote(selector))
}

func (t *Tab) OuterHTML(ctx context.Context, selector string) (string, error) {
	if selector != "" {
		var markup *string
		if err := t.Evaluate(ctx, outerHTMLJS(selector), &markup); err != nil {
			return "", err
		}
		if markup == nil {
			return "", &capture.SelectorNotFoundError{Selector: selector}
		}
		return *markup, nil
	}

	var markup string
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var lastErr error
		for attempt := 0; attempt < extractAttempts; attempt++ {
			root, err := dom.GetDocument().Do(ctx)
			if err == nil {
				markup, err = dom.GetOuterHTML().WithNodeID(root.NodeID).Do(ctx)
				if err == nil {
					return nil
				}
			}
			lastErr = err
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(extractRetryDelay):
			}
		}
		return fmt.Errorf("%w after %d attempts: %v", ErrExtractHTML, extractAttempts, lastErr)
	}))
	return markup, err
}

func (t *Tab) Location(ctx context.Context) (string, error) {
	var loc string
	err := t.run(ctx, chromedp.Location(&loc))
	return loc, err
}

// Close waits briefly for in-flight interception handlers, then closes
// the target. Safe to call more than once.
func (t *Tab) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	deadline := time.Now().Add(fetchDrainTimeout)
	for t.fetchHandlers.Load() > 0 && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	if n := t.fetchHandlers.Load(); n > 0 {
		t.logger.Warn("Timeout waiting for fetch handlers to complete", zap.Int64("remaining", n))
	}

	closeCtx, cancel := context.WithTimeout(t.ctx, 2*time.Second)
	err := page.Close().Do(cdp.WithExecutor(closeCtx, chromedp.FromContext(closeCtx).Target))
	cancel()
	t.cancel()
	t.bus.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		t.logger.Debug("Page close returned error", zap.Error(err))
	}
	return nil
}
