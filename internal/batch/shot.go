// Package batch runs a YAML list of captures sequentially against one
// browser.
package batch

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/elidickinson/shot-power-scraper/internal/common/yamlutil"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

// ErrNotList is returned when a batch file is not a YAML sequence
var ErrNotList = errors.New("YAML file must contain a list")

// Shot is one entry of a batch file. Durations accept milliseconds as a
// bare number or a Go duration string.
type Shot struct {
	URL    string `yaml:"url"`
	Output string `yaml:"output"`
	Format string `yaml:"format"`

	Width   int `yaml:"width"`
	Height  int `yaml:"height"`
	Quality int `yaml:"quality"`
	Padding int `yaml:"padding"`

	Selector       string   `yaml:"selector"`
	Selectors      []string `yaml:"selectors"`
	SelectorAll    string   `yaml:"selector_all"`
	SelectorsAll   []string `yaml:"selectors_all"`
	JSSelector     string   `yaml:"js_selector"`
	JSSelectors    []string `yaml:"js_selectors"`
	JSSelectorAll  string   `yaml:"js_selector_all"`
	JSSelectorsAll []string `yaml:"js_selectors_all"`

	JavaScript string         `yaml:"javascript"`
	Wait       types.Duration `yaml:"wait"`
	WaitFor    string         `yaml:"wait_for"`
	Timeout    types.Duration `yaml:"timeout"`

	SkipChallengeCheck  bool   `yaml:"skip_challenge_check"`
	SkipCloudflareCheck bool   `yaml:"skip_cloudflare_check"`
	SkipWaitForLoad     bool   `yaml:"skip_wait_for_load"`
	TriggerLazyLoad     bool   `yaml:"trigger_lazy_load"`
	AdBlock             *bool  `yaml:"ad_block"`
	PopupBlock          *bool  `yaml:"popup_block"`
	ClearAnnoyances     *bool  `yaml:"clear_annoyances"`
	Stealth             *bool  `yaml:"stealth"`
	UserAgent           string `yaml:"user_agent"`
	LogConsole          bool   `yaml:"log_console"`
	SaveHTML            bool   `yaml:"save_html"`

	PDFPaper           string  `yaml:"pdf_paper"`
	PDFLandscape       bool    `yaml:"pdf_landscape"`
	PDFScale           float64 `yaml:"pdf_scale"`
	PDFPrintBackground bool    `yaml:"pdf_print_background"`
	PDFMediaScreen     bool    `yaml:"pdf_media_screen"`

	Skip   bool `yaml:"skip"`
	Fail   bool `yaml:"fail"`
	Silent bool `yaml:"silent"`
}

// Parse decodes a batch file. Unknown keys are rejected.
func Parse(data []byte) ([]Shot, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	if root.Content[0].Kind != yaml.SequenceNode {
		return nil, ErrNotList
	}

	var shots []Shot
	if err := yamlutil.UnmarshalStrict(data, &shots); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	return shots, nil
}

// Defaults are applied to every shot that does not set the value itself
type Defaults struct {
	Timeout    types.Duration
	AdBlock    bool
	PopupBlock bool
	Stealth    bool
	UserAgent  string
	Verbose    bool
	Silent     bool
}

// Request builds the capture request for the shot
func (s Shot) Request(d Defaults) (types.CaptureRequest, error) {
	b := types.NewCaptureRequestBuilder(s.URL).
		Viewport(s.Width, s.Height).
		Output(s.Output).
		Quality(s.Quality).
		Padding(s.Padding).
		Selector(merge(s.Selectors, s.Selector)...).
		SelectorAll(merge(s.SelectorsAll, s.SelectorAll)...).
		JSSelector(merge(s.JSSelectors, s.JSSelector)...).
		JSSelectorAll(merge(s.JSSelectorsAll, s.JSSelectorAll)...).
		JavaScript(s.JavaScript).
		Wait(s.Wait.ToDuration()).
		WaitFor(s.WaitFor).
		SkipChallengeCheck(s.SkipChallengeCheck || s.SkipCloudflareCheck).
		SkipWaitForLoad(s.SkipWaitForLoad).
		TriggerLazyLoad(s.TriggerLazyLoad).
		Blocking(boolOr(s.AdBlock, d.AdBlock), boolOr(s.PopupBlock, d.PopupBlock)).
		Stealth(boolOr(s.Stealth, d.Stealth)).
		UserAgent(firstNonEmpty(s.UserAgent, d.UserAgent)).
		LogConsole(s.LogConsole).
		Skip(s.Skip).
		Fail(s.Fail).
		Verbosity(d.Verbose, d.Silent || s.Silent)

	timeout := s.Timeout
	if timeout == 0 {
		timeout = d.Timeout
	}
	b.Timeout(timeout.ToDuration())

	if s.ClearAnnoyances != nil {
		b.ClearAnnoyances(*s.ClearAnnoyances)
	}
	if s.Format != "" {
		b.Format(s.Format)
	}
	if s.isPDF() {
		b.Format(string(types.FormatPDF))
		b.PDF(types.PDFOptions{
			Paper:           s.PDFPaper,
			Landscape:       s.PDFLandscape,
			Scale:           s.PDFScale,
			PrintBackground: s.PDFPrintBackground,
			MediaScreen:     s.PDFMediaScreen,
		})
	}
	return b.Build()
}

func (s Shot) isPDF() bool {
	if s.Format != "" {
		return strings.EqualFold(s.Format, string(types.FormatPDF))
	}
	return strings.EqualFold(filepath.Ext(s.Output), ".pdf")
}

func merge(list []string, single string) []string {
	if single == "" {
		return list
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, list...)
	return append(out, single)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
