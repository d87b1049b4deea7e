package capture

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/render/netbus"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

// fakeTab scripts a browser tab. Evaluate falls back to sensible page
// answers for the expressions the pipeline issues.
type fakeTab struct {
	mu sync.Mutex

	bus      *netbus.Bus
	viewport Viewport
	location string

	status      int    // main document status published on Navigate
	navigateErr error  // returned by Navigate
	failDoc     string // when set, the document fails with this error text
	subresource []string

	eval     func(expr string) (any, bool, error) // handled reports whether eval answered
	rects    map[string][]Rect
	html     map[string]string
	bodies   map[string]netbus.Body
	title    string
	pageBody string

	evaluated   []string
	viewports   []Viewport
	screenshots []ScreenshotOptions
	prints      []PrintOptions
	media       []string
	closed      bool
}

func newFakeTab() *fakeTab {
	return &fakeTab{
		bus:      netbus.NewBus(),
		viewport: Viewport{Width: types.DefaultViewportWidth, Height: types.DefaultViewportHeight},
		status:   200,
		rects:    map[string][]Rect{},
		html:     map[string]string{},
		bodies:   map[string]netbus.Body{},
		title:    "Example Domain",
		pageBody: "This domain is for use in illustrative examples in documents. You may use this domain in literature without prior coordination or asking for permission.",
	}
}

func (f *fakeTab) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	f.location = url
	f.mu.Unlock()
	if f.navigateErr != nil {
		return f.navigateErr
	}

	f.bus.Publish(netbus.Event{Kind: netbus.RequestStarted, RequestID: "doc", URL: url, Method: "GET",
		ResourceType: netbus.ResourceDocument, Timestamp: 1, WallTime: time.Now()})
	if f.failDoc != "" {
		f.bus.Publish(netbus.Event{Kind: netbus.LoadingFailed, RequestID: "doc", ResourceType: netbus.ResourceDocument,
			ErrorText: f.failDoc, Timestamp: 1.1})
		return nil
	}
	f.bus.Publish(netbus.Event{Kind: netbus.ResponseReceived, RequestID: "doc", URL: url, ResourceType: netbus.ResourceDocument,
		Response: &netbus.ResponseInfo{Status: f.status, StatusText: "status", MimeType: "text/html", Protocol: "http/1.1",
			Headers: map[string]string{"Content-Type": "text/html"}}})
	f.bus.Publish(netbus.Event{Kind: netbus.LoadingFinished, RequestID: "doc", Timestamp: 1.2, EncodedDataLength: 512})

	for i, sub := range f.subresource {
		id := "sub" + string(rune('a'+i))
		ts := 1.3 + float64(i)/10
		f.bus.Publish(netbus.Event{Kind: netbus.RequestStarted, RequestID: id, URL: sub, Method: "GET",
			ResourceType: "Image", Timestamp: ts, WallTime: time.Now()})
		f.bus.Publish(netbus.Event{Kind: netbus.ResponseReceived, RequestID: id, URL: sub, ResourceType: "Image",
			Response: &netbus.ResponseInfo{Status: 200, MimeType: "image/png", Protocol: "h2"}})
		f.bus.Publish(netbus.Event{Kind: netbus.LoadingFinished, RequestID: id, Timestamp: ts + 0.05, EncodedDataLength: 64})
	}
	return nil
}

func (f *fakeTab) Evaluate(_ context.Context, expr string, out any) error {
	f.mu.Lock()
	f.evaluated = append(f.evaluated, expr)
	eval := f.eval
	f.mu.Unlock()

	var (
		result any
		err    error
	)
	handled := false
	if eval != nil {
		result, handled, err = eval(expr)
	}
	if !handled {
		result, err = f.defaultEval(expr)
	}
	if err != nil || out == nil {
		return err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeTab) defaultEval(expr string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch expr {
	case readyStateJS:
		return true, nil
	case challengeDetectJS:
		return false, nil
	case navErrorStateJS:
		return map[string]string{"url": f.location, "title": f.title, "body": f.pageBody}, nil
	case titleJS:
		return f.title, nil
	case scrollHeightJS:
		return 3000, nil
	case scrollStepJS, imagesCompleteJS:
		return true, nil
	case promoteDeferredSourcesJS:
		return 0, nil
	}
	return nil, nil
}

func (f *fakeTab) ElementRects(_ context.Context, selector string, all bool) ([]Rect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rects := f.rects[selector]
	if !all && len(rects) > 1 {
		rects = rects[:1]
	}
	return rects, nil
}

func (f *fakeTab) Screenshot(_ context.Context, opts ScreenshotOptions) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screenshots = append(f.screenshots, opts)
	return []byte("\x89PNG fake"), nil
}

func (f *fakeTab) PrintToPDF(_ context.Context, opts PrintOptions) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prints = append(f.prints, opts)
	return []byte("%PDF-1.4 fake"), nil
}

func (f *fakeTab) SetViewport(_ context.Context, width, height int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewport = Viewport{Width: width, Height: height}
	f.viewports = append(f.viewports, f.viewport)
	return nil
}

func (f *fakeTab) Viewport() Viewport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewport
}

func (f *fakeTab) EmulateMedia(_ context.Context, media string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, media)
	return nil
}

func (f *fakeTab) Events() *netbus.Bus { return f.bus }

func (f *fakeTab) ResponseBody(_ context.Context, requestID string) (netbus.Body, error) {
	if b, ok := f.bodies[requestID]; ok {
		return b, nil
	}
	return netbus.Body{}, errors.New("no body")
}

func (f *fakeTab) OuterHTML(_ context.Context, selector string) (string, error) {
	if h, ok := f.html[selector]; ok {
		return h, nil
	}
	return "", &SelectorNotFoundError{Selector: selector}
}

func (f *fakeTab) Location(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.location, nil
}

func (f *fakeTab) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTab) evaluatedCount(expr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.evaluated {
		if e == expr {
			n++
		}
	}
	return n
}

type fakeBrowser struct {
	tab  *fakeTab
	opts []TabOptions
}

func (b *fakeBrowser) NewTab(_ context.Context, opts TabOptions) (Tab, error) {
	b.opts = append(b.opts, opts)
	return b.tab, nil
}

func (b *fakeBrowser) Version() string { return "HeadlessChrome/120.0.0.0" }

// testJob builds a job from a configured builder, failing the test on error
func testJob(t *testing.T, b *types.CaptureRequestBuilder) *Job {
	t.Helper()
	req, err := b.Build()
	require.NoError(t, err)
	return NewJob(req, zap.NewNop(), "")
}
