package service

import (
	"time"

	"github.com/elidickinson/shot-power-scraper/internal/common/config"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

// CaptureBody is the JSON body accepted by the capture endpoints. Times
// are milliseconds. Pointer fields fall back to the configured defaults.
type CaptureBody struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	Selector       string   `json:"selector"`
	Selectors      []string `json:"selectors"`
	SelectorAll    string   `json:"selector_all"`
	SelectorsAll   []string `json:"selectors_all"`
	JSSelector     string   `json:"js_selector"`
	JSSelectors    []string `json:"js_selectors"`
	JSSelectorAll  string   `json:"js_selector_all"`
	JSSelectorsAll []string `json:"js_selectors_all"`
	Padding        int      `json:"padding"`

	JavaScript string `json:"javascript"`
	Quality    int    `json:"quality"`
	Wait       *int   `json:"wait"`
	WaitFor    string `json:"wait_for"`
	Timeout    int    `json:"timeout"`
	FullPage   *bool  `json:"full_page"`

	SkipChallengeCheck  bool   `json:"skip_challenge_check"`
	SkipCloudflareCheck bool   `json:"skip_cloudflare_check"` // older name of skip_challenge_check
	SkipWaitForLoad     bool   `json:"skip_wait_for_load"`
	TriggerLazyLoad     bool   `json:"trigger_lazy_load"`
	AdBlock             *bool  `json:"ad_block"`
	PopupBlock          *bool  `json:"popup_block"`
	ClearAnnoyances     *bool  `json:"clear_annoyances"`
	Stealth             *bool  `json:"stealth"`
	UserAgent           string `json:"user_agent"`
	Skip                bool   `json:"skip"`
	Fail                bool   `json:"fail"`

	// html
	StripScripts bool `json:"strip_scripts"`

	// har
	HARBodies bool `json:"har_bodies"`

	// pdf
	Paper           string  `json:"paper"`
	PDFWidth        string  `json:"pdf_width"`
	PDFHeight       string  `json:"pdf_height"`
	Landscape       bool    `json:"landscape"`
	Scale           float64 `json:"scale"`
	PrintBackground bool    `json:"print_background"`
	MediaScreen     bool    `json:"media_screen"`
}

// toRequest resolves the body into a capture request of the given format.
// Timeouts are clamped to defaults.MaxTimeout.
func (b *CaptureBody) toRequest(format types.Format, defaults config.CaptureDefaults) (types.CaptureRequest, error) {
	builder := types.NewCaptureRequestBuilder(b.URL).
		Selector(b.Selectors...).
		SelectorAll(b.SelectorsAll...).
		JSSelector(b.JSSelectors...).
		JSSelectorAll(b.JSSelectorsAll...).
		JavaScript(b.JavaScript).
		WaitFor(b.WaitFor).
		SkipChallengeCheck(b.SkipChallengeCheck || b.SkipCloudflareCheck).
		SkipWaitForLoad(b.SkipWaitForLoad).
		TriggerLazyLoad(b.TriggerLazyLoad).
		Blocking(orDefault(b.AdBlock, defaults.AdBlock), orDefault(b.PopupBlock, defaults.PopupBlock)).
		Stealth(orDefault(b.Stealth, defaults.Stealth)).
		Skip(b.Skip).
		Fail(b.Fail).
		Verbosity(false, true)

	if format == types.FormatHTML {
		// a single selector picks the element to return, not a region
		builder.HTMLSelector(b.Selector).StripScripts(b.StripScripts)
	} else {
		builder.Selector(b.Selector)
	}
	builder.SelectorAll(b.SelectorAll).JSSelector(b.JSSelector).JSSelectorAll(b.JSSelectorAll)

	if b.Padding != 0 {
		builder.Padding(b.Padding)
	}

	width := b.Width
	if width == 0 {
		width = defaults.Width
	}
	height := b.Height
	if height == 0 {
		// no height keeps full page capture on, at the default viewport
		height = defaults.Height
		if b.FullPage == nil {
			builder.FullPage(true)
		}
	}
	builder.Viewport(width, height)
	if b.FullPage != nil {
		builder.FullPage(*b.FullPage)
	}

	wait := defaults.Wait.ToDuration()
	if b.Wait != nil {
		wait = time.Duration(*b.Wait) * time.Millisecond
	}
	builder.Wait(wait)

	timeout := defaults.Timeout.ToDuration()
	if b.Timeout > 0 {
		timeout = time.Duration(b.Timeout) * time.Millisecond
	}
	if limit := defaults.MaxTimeout.ToDuration(); limit > 0 && timeout > limit {
		timeout = limit
	}
	builder.Timeout(timeout)

	ua := b.UserAgent
	if ua == "" {
		ua = defaults.UserAgent
	}
	builder.UserAgent(ua)

	if b.ClearAnnoyances != nil {
		builder.ClearAnnoyances(*b.ClearAnnoyances)
	}

	switch format {
	case types.FormatPNG:
		if b.Quality > 0 {
			builder.Format(string(types.FormatJPEG)).Quality(b.Quality)
		} else {
			builder.Format(string(types.FormatPNG))
		}
	case types.FormatPDF:
		opts, err := b.pdfOptions()
		if err != nil {
			return types.CaptureRequest{}, err
		}
		builder.Format(string(format)).PDF(opts)
	case types.FormatHAR:
		builder.Format(string(format)).HARBodies(b.HARBodies)
	default:
		builder.Format(string(format))
	}

	return builder.Build()
}

func (b *CaptureBody) pdfOptions() (types.PDFOptions, error) {
	opts := types.PDFOptions{
		Paper:           b.Paper,
		Landscape:       b.Landscape,
		Scale:           b.Scale,
		PrintBackground: b.PrintBackground,
		MediaScreen:     b.MediaScreen,
	}
	var err error
	if opts.Width, err = types.ParseDimension(b.PDFWidth); err != nil {
		return opts, &types.ConfigError{Field: "pdf_width", Message: err.Error()}
	}
	if opts.Height, err = types.ParseDimension(b.PDFHeight); err != nil {
		return opts, &types.ConfigError{Field: "pdf_height", Message: err.Error()}
	}
	return opts, nil
}

func orDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
