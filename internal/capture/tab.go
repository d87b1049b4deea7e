package capture

import (
	"context"

	"github.com/elidickinson/shot-power-scraper/internal/render/netbus"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

// Rect is an element box in document coordinates (scroll offset applied)
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Bottom() float64 { return r.Top + r.Height }
func (r Rect) Right() float64  { return r.Left + r.Width }

// Viewport is the emulated window size in CSS pixels
type Viewport struct {
	Width  int
	Height int
}

// ScreenshotOptions selects what a screenshot covers
type ScreenshotOptions struct {
	Selector string // element to capture; empty captures the page
	Format   types.Format
	Quality  int
	FullPage bool
}

// PrintOptions are passed to the browser's print-to-PDF command.
// Sizes are in inches.
type PrintOptions struct {
	PaperWidth      float64
	PaperHeight     float64
	Landscape       bool
	Scale           float64
	PrintBackground bool
	MarginTop       float64
	MarginBottom    float64
	MarginLeft      float64
	MarginRight     float64
}

// Tab is one browser tab driven by a single capture at a time.
// Implementations publish the tab's network lifecycle on Events.
type Tab interface {
	// Navigate starts loading url and returns once the navigation has
	// committed. It does not wait for the load event. A page that cannot
	// be reached yields a NavigationTransportError.
	Navigate(ctx context.Context, url string) error
	// Evaluate runs a JavaScript expression, awaiting a returned promise,
	// and decodes the JSON result into out (which may be nil).
	Evaluate(ctx context.Context, expr string, out any) error
	// ElementRects resolves selector to document-relative boxes: the first
	// match only, or every match when all is set.
	ElementRects(ctx context.Context, selector string, all bool) ([]Rect, error)
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	PrintToPDF(ctx context.Context, opts PrintOptions) ([]byte, error)
	SetViewport(ctx context.Context, width, height int) error
	Viewport() Viewport
	// EmulateMedia switches CSS media emulation ("screen", "print", "" to reset)
	EmulateMedia(ctx context.Context, media string) error
	Events() *netbus.Bus
	ResponseBody(ctx context.Context, requestID string) (netbus.Body, error)
	// OuterHTML returns the whole document when selector is empty
	OuterHTML(ctx context.Context, selector string) (string, error)
	Location(ctx context.Context) (string, error)
	Close() error
}

// TabOptions configure a tab before its first navigation
type TabOptions struct {
	Width      int
	Height     int
	UserAgent  string
	AdBlock    bool
	PopupBlock bool
	Stealth    bool
	LogConsole bool
	// HARBodies enlarges the browser's network buffers so bodies survive
	// until the archive is finalized.
	HARBodies bool
}

// Browser opens tabs
type Browser interface {
	NewTab(ctx context.Context, opts TabOptions) (Tab, error)
	Version() string
}

// TabOptionsFor derives tab settings from a request
func TabOptionsFor(req types.CaptureRequest) TabOptions {
	return TabOptions{
		Width:      req.Width,
		Height:     req.Height,
		UserAgent:  req.UserAgent,
		AdBlock:    req.AdBlock,
		PopupBlock: req.PopupBlock,
		Stealth:    req.Stealth,
		LogConsole: req.LogConsole,
		HARBodies:  req.HARBodies,
	}
}
