package types

import (
	"fmt"
	"strings"
	"time"
)

// Format is the artifact a capture produces
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
	FormatHAR  Format = "har"
)

// Capture defaults
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultTimeout        = 30 * time.Second
)

// ParseFormat accepts the format names used on the command line and in batch files.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "pdf":
		return FormatPDF, nil
	case "html":
		return FormatHTML, nil
	case "har":
		return FormatHAR, nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}

// IsImage reports whether the format is a screenshot format
func (f Format) IsImage() bool {
	return f == FormatPNG || f == FormatJPEG
}

// Extension returns the file extension without the dot
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// ContentType returns the MIME type of the artifact
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatPDF:
		return "application/pdf"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatHAR:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// ErrorPolicy decides what happens when a page answers with an error status
// or fails to load.
type ErrorPolicy int

const (
	PolicyWarn ErrorPolicy = iota // log and continue
	PolicySkip                    // abort this capture silently
	PolicyFail                    // abort with an error
)

func (p ErrorPolicy) String() string {
	switch p {
	case PolicySkip:
		return "skip"
	case PolicyFail:
		return "fail"
	default:
		return "warn"
	}
}

// MarshalText implements encoding.TextMarshaler
func (p ErrorPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// PDFOptions controls print-to-PDF output
type PDFOptions struct {
	Paper           string  `json:"paper,omitempty"`  // named paper size, letter by default
	Width           float64 `json:"width,omitempty"`  // inches, overrides Paper when set with Height
	Height          float64 `json:"height,omitempty"` // inches
	Landscape       bool    `json:"landscape,omitempty"`
	Scale           float64 `json:"scale"`
	PrintBackground bool    `json:"print_background,omitempty"`
	MediaScreen     bool    `json:"media_screen,omitempty"` // emulate screen media instead of print
	CSS             string  `json:"css,omitempty"`
}

// CaptureRequest is a fully resolved capture description. Build it with
// CaptureRequestBuilder; the value is not modified after Build.
type CaptureRequest struct {
	URL string `json:"url"`

	// Viewport; Height > 0 disables full page capture unless FullPage is forced
	Width    int  `json:"width"`
	Height   int  `json:"height"`
	FullPage bool `json:"full_page"`

	// Region selection
	Selectors      []string `json:"selectors,omitempty"`
	SelectorsAll   []string `json:"selectors_all,omitempty"`
	JSSelectors    []string `json:"js_selectors,omitempty"`
	JSSelectorsAll []string `json:"js_selectors_all,omitempty"`
	Padding        int      `json:"padding,omitempty"`

	// Page preparation
	JavaScript string        `json:"javascript,omitempty"`
	Wait       time.Duration `json:"wait,omitempty"`
	WaitFor    string        `json:"wait_for,omitempty"`
	Timeout    time.Duration `json:"timeout"`

	// Output
	Format       Format     `json:"format"`
	Quality      int        `json:"quality,omitempty"` // JPEG only
	Output       string     `json:"output,omitempty"`
	HTMLSelector string     `json:"html_selector,omitempty"`
	StripScripts bool       `json:"strip_scripts,omitempty"`
	HARBodies    bool       `json:"har_bodies,omitempty"`
	PDF          PDFOptions `json:"pdf"`

	// Behaviour flags
	SkipChallengeCheck bool   `json:"skip_challenge_check,omitempty"`
	SkipWaitForLoad    bool   `json:"skip_wait_for_load,omitempty"`
	TriggerLazyLoad    bool   `json:"trigger_lazy_load,omitempty"`
	AdBlock            bool   `json:"ad_block,omitempty"`
	PopupBlock         bool   `json:"popup_block,omitempty"`
	ClearAnnoyances    bool   `json:"clear_annoyances"`
	Stealth            bool   `json:"stealth,omitempty"`
	UserAgent          string `json:"user_agent,omitempty"`
	LogConsole         bool   `json:"log_console,omitempty"`

	Policy  ErrorPolicy `json:"policy"`
	Verbose bool        `json:"-"`
	Silent  bool        `json:"-"`
}

// HasSelectors reports whether any region selector was given
func (r CaptureRequest) HasSelectors() bool {
	return len(r.Selectors) > 0 || len(r.SelectorsAll) > 0 ||
		len(r.JSSelectors) > 0 || len(r.JSSelectorsAll) > 0
}

// BlockingEnabled reports whether ad or popup blocking is on
func (r CaptureRequest) BlockingEnabled() bool {
	return r.AdBlock || r.PopupBlock
}

// ConfigError reports a malformed or incomplete capture request
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CaptureRequestBuilder collects optional capture settings. Zero values
// mean "use the default"; defaults are resolved once in Build.
type CaptureRequestBuilder struct {
	req        CaptureRequest
	fullPage   *bool
	annoyances *bool
	skip       bool
	fail       bool
	format     string
	pdfScale   float64
}

// NewCaptureRequestBuilder starts a request for url
func NewCaptureRequestBuilder(url string) *CaptureRequestBuilder {
	return &CaptureRequestBuilder{req: CaptureRequest{URL: strings.TrimSpace(url)}}
}

func (b *CaptureRequestBuilder) Viewport(width, height int) *CaptureRequestBuilder {
	b.req.Width, b.req.Height = width, height
	return b
}

// FullPage forces (or disables) full page capture regardless of height
func (b *CaptureRequestBuilder) FullPage(v bool) *CaptureRequestBuilder {
	b.fullPage = &v
	return b
}

func (b *CaptureRequestBuilder) Selector(s ...string) *CaptureRequestBuilder {
	b.req.Selectors = appendNonEmpty(b.req.Selectors, s)
	return b
}

func (b *CaptureRequestBuilder) SelectorAll(s ...string) *CaptureRequestBuilder {
	b.req.SelectorsAll = appendNonEmpty(b.req.SelectorsAll, s)
	return b
}

func (b *CaptureRequestBuilder) JSSelector(s ...string) *CaptureRequestBuilder {
	b.req.JSSelectors = appendNonEmpty(b.req.JSSelectors, s)
	return b
}

func (b *CaptureRequestBuilder) JSSelectorAll(s ...string) *CaptureRequestBuilder {
	b.req.JSSelectorsAll = appendNonEmpty(b.req.JSSelectorsAll, s)
	return b
}

func (b *CaptureRequestBuilder) Padding(px int) *CaptureRequestBuilder {
	b.req.Padding = px
	return b
}

func (b *CaptureRequestBuilder) JavaScript(js string) *CaptureRequestBuilder {
	b.req.JavaScript = js
	return b
}

func (b *CaptureRequestBuilder) Wait(d time.Duration) *CaptureRequestBuilder {
	b.req.Wait = d
	return b
}

func (b *CaptureRequestBuilder) WaitFor(expr string) *CaptureRequestBuilder {
	b.req.WaitFor = strings.TrimSpace(expr)
	return b
}

func (b *CaptureRequestBuilder) Timeout(d time.Duration) *CaptureRequestBuilder {
	b.req.Timeout = d
	return b
}

// Format sets the output format by name. When unset the format is derived
// from the output path extension, then from Quality (jpeg), then png.
// Either way a Quality turns an image format into jpeg.
func (b *CaptureRequestBuilder) Format(name string) *CaptureRequestBuilder {
	b.format = name
	return b
}

func (b *CaptureRequestBuilder) Quality(q int) *CaptureRequestBuilder {
	b.req.Quality = q
	return b
}

func (b *CaptureRequestBuilder) Output(path string) *CaptureRequestBuilder {
	b.req.Output = strings.TrimSpace(path)
	return b
}

func (b *CaptureRequestBuilder) HTMLSelector(s string) *CaptureRequestBuilder {
	b.req.HTMLSelector = s
	return b
}

func (b *CaptureRequestBuilder) StripScripts(v bool) *CaptureRequestBuilder {
	b.req.StripScripts = v
	return b
}

func (b *CaptureRequestBuilder) HARBodies(v bool) *CaptureRequestBuilder {
	b.req.HARBodies = v
	return b
}

// PDF sets print options; a zero Scale becomes 1.0
func (b *CaptureRequestBuilder) PDF(opts PDFOptions) *CaptureRequestBuilder {
	b.req.PDF = opts
	b.pdfScale = opts.Scale
	return b
}

func (b *CaptureRequestBuilder) SkipChallengeCheck(v bool) *CaptureRequestBuilder {
	b.req.SkipChallengeCheck = v
	return b
}

func (b *CaptureRequestBuilder) SkipWaitForLoad(v bool) *CaptureRequestBuilder {
	b.req.SkipWaitForLoad = v
	return b
}

func (b *CaptureRequestBuilder) TriggerLazyLoad(v bool) *CaptureRequestBuilder {
	b.req.TriggerLazyLoad = v
	return b
}

func (b *CaptureRequestBuilder) Blocking(ads, popups bool) *CaptureRequestBuilder {
	b.req.AdBlock, b.req.PopupBlock = ads, popups
	return b
}

// ClearAnnoyances toggles close-button dismissal; on by default
func (b *CaptureRequestBuilder) ClearAnnoyances(v bool) *CaptureRequestBuilder {
	b.annoyances = &v
	return b
}

func (b *CaptureRequestBuilder) Stealth(v bool) *CaptureRequestBuilder {
	b.req.Stealth = v
	return b
}

func (b *CaptureRequestBuilder) UserAgent(ua string) *CaptureRequestBuilder {
	b.req.UserAgent = ua
	return b
}

func (b *CaptureRequestBuilder) LogConsole(v bool) *CaptureRequestBuilder {
	b.req.LogConsole = v
	return b
}

// Skip and Fail select the error policy; setting both is a ConfigError.
func (b *CaptureRequestBuilder) Skip(v bool) *CaptureRequestBuilder {
	b.skip = v
	return b
}

func (b *CaptureRequestBuilder) Fail(v bool) *CaptureRequestBuilder {
	b.fail = v
	return b
}

func (b *CaptureRequestBuilder) Verbosity(verbose, silent bool) *CaptureRequestBuilder {
	b.req.Verbose, b.req.Silent = verbose, silent
	return b
}

// Build validates the collected settings and resolves every default.
func (b *CaptureRequestBuilder) Build() (CaptureRequest, error) {
	r := b.req

	if r.URL == "" {
		return CaptureRequest{}, &ConfigError{Field: "url", Message: "url is required"}
	}
	if r.Width < 0 || r.Height < 0 {
		return CaptureRequest{}, &ConfigError{Field: "viewport", Message: fmt.Sprintf("invalid viewport %dx%d", r.Width, r.Height)}
	}
	if r.Padding < 0 {
		return CaptureRequest{}, &ConfigError{Field: "padding", Message: "padding must not be negative"}
	}
	if r.Quality < 0 || r.Quality > 100 {
		return CaptureRequest{}, &ConfigError{Field: "quality", Message: fmt.Sprintf("quality must be between 1 and 100, got %d", r.Quality)}
	}
	if r.Wait < 0 || r.Timeout < 0 {
		return CaptureRequest{}, &ConfigError{Field: "timeout", Message: "durations must not be negative"}
	}
	if b.skip && b.fail {
		return CaptureRequest{}, &ConfigError{Field: "policy", Message: "skip and fail cannot be used together"}
	}

	switch {
	case b.skip:
		r.Policy = PolicySkip
	case b.fail:
		r.Policy = PolicyFail
	default:
		r.Policy = PolicyWarn
	}

	format, err := b.resolveFormat()
	if err != nil {
		return CaptureRequest{}, err
	}
	// An image with a quality is a JPEG whatever the extension or name says
	if format.IsImage() && r.Quality > 0 {
		format = FormatJPEG
	}
	r.Format = format
	if r.Format == FormatJPEG && r.Quality == 0 {
		r.Quality = 80
	}
	if r.Format != FormatJPEG {
		r.Quality = 0
	}

	// Full page is the default unless an explicit height is given
	r.FullPage = r.Height == 0
	if b.fullPage != nil {
		r.FullPage = *b.fullPage
	}
	if r.Width == 0 {
		r.Width = DefaultViewportWidth
	}
	if r.Height == 0 {
		r.Height = DefaultViewportHeight
	}
	if r.Timeout == 0 {
		r.Timeout = DefaultTimeout
	}

	r.ClearAnnoyances = true
	if b.annoyances != nil {
		r.ClearAnnoyances = *b.annoyances
	}

	if r.Format == FormatPDF {
		if b.pdfScale == 0 {
			r.PDF.Scale = 1.0
		}
		if r.PDF.Scale < 0.1 || r.PDF.Scale > 2.0 {
			return CaptureRequest{}, &ConfigError{Field: "pdf.scale", Message: fmt.Sprintf("scale must be between 0.1 and 2.0, got %g", r.PDF.Scale)}
		}
		if r.PDF.Paper == "" {
			r.PDF.Paper = DefaultPaper
		}
		if _, _, ok := PaperSize(r.PDF.Paper); !ok {
			return CaptureRequest{}, &ConfigError{Field: "pdf.paper", Message: fmt.Sprintf("unknown paper size %q", r.PDF.Paper)}
		}
	}

	if r.HTMLSelector != "" && r.Format != FormatHTML {
		return CaptureRequest{}, &ConfigError{Field: "html_selector", Message: "html selector only applies to html output"}
	}

	r.Selectors = cloneStrings(r.Selectors)
	r.SelectorsAll = cloneStrings(r.SelectorsAll)
	r.JSSelectors = cloneStrings(r.JSSelectors)
	r.JSSelectorsAll = cloneStrings(r.JSSelectorsAll)

	return r, nil
}

func (b *CaptureRequestBuilder) resolveFormat() (Format, error) {
	if b.format != "" {
		f, err := ParseFormat(b.format)
		if err != nil {
			return "", &ConfigError{Field: "format", Message: err.Error()}
		}
		return f, nil
	}

	if out := strings.ToLower(b.req.Output); out != "" && out != "-" {
		for _, candidate := range []string{".pdf", ".html", ".har", ".jpg", ".jpeg", ".png"} {
			if strings.HasSuffix(out, candidate) {
				f, _ := ParseFormat(strings.TrimPrefix(candidate, "."))
				return f, nil
			}
		}
	}

	if b.req.Quality > 0 {
		return FormatJPEG, nil
	}
	return FormatPNG, nil
}

func appendNonEmpty(dst, src []string) []string {
	for _, s := range src {
		if strings.TrimSpace(s) != "" {
			dst = append(dst, s)
		}
	}
	return dst
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
