package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/elidickinson/shot-power-scraper/internal/common/config"
	"github.com/elidickinson/shot-power-scraper/internal/render/chrome"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

// stringList collects a repeatable flag
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// optionalBool is a bool flag that remembers whether it was given, so
// saved defaults apply only when it was not
type optionalBool struct {
	set   bool
	value bool
}

func (b *optionalBool) String() string {
	if b == nil || !b.set {
		return ""
	}
	return strconv.FormatBool(b.value)
}

func (b *optionalBool) Set(v string) error {
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("expected true or false, got %q", v)
	}
	b.set, b.value = true, parsed
	return nil
}

func (b *optionalBool) IsBoolFlag() bool { return true }

func (b *optionalBool) or(def bool) bool {
	if b.set {
		return b.value
	}
	return def
}

// valueBool needs an explicit value: --ad-block true
type valueBool struct{ optionalBool }

func (b *valueBool) IsBoolFlag() bool { return false }

// browserFlags select and launch the browser
type browserFlags struct {
	remote      string
	execPath    string
	browserArgs stringList
	enableGPU   optionalBool
	noSandbox   bool
}

func (f *browserFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.remote, "remote-browser", "", "DevTools websocket URL of a running browser (ws://...)")
	fs.StringVar(&f.execPath, "browser", "", "Path to the browser executable")
	fs.Var(&f.browserArgs, "browser-arg", "Additional argument to pass to the browser (repeatable)")
	fs.Var(&f.enableGPU, "enable-gpu", "Enable GPU acceleration")
	fs.BoolVar(&f.noSandbox, "no-sandbox", false, "Disable the browser sandbox")
}

func (f *browserFlags) config(defaults config.CLIDefaults) *chrome.Config {
	cfg := chrome.DefaultConfig()
	cfg.RemoteURL = f.remote
	cfg.ExecPath = f.execPath
	cfg.ExtraFlags = append([]string(nil), f.browserArgs...)
	cfg.EnableGPU = f.enableGPU.or(defaults.EnableGPU)
	cfg.NoSandbox = f.noSandbox
	return cfg
}

// commonFlags are shared by every command that loads a page
type commonFlags struct {
	browserFlags

	width, height int
	output        string
	javascript    string
	wait          int
	waitFor       string
	timeout       int

	skip, fail      bool
	verbose, silent bool
	logConsole      bool

	adBlock    optionalBool
	popupBlock optionalBool
	stealth    bool
	userAgent  string

	skipChallenge     bool
	skipCloudflare    bool
	skipWaitForLoad   bool
	triggerLazyLoad   bool
	noClearAnnoyances bool
	eventLog          string
}

func (c *commonFlags) register(fs *flag.FlagSet, outputHelp string) {
	c.browserFlags.register(fs)

	fs.IntVar(&c.width, "width", types.DefaultViewportWidth, "Width of browser window")
	fs.IntVar(&c.width, "w", types.DefaultViewportWidth, "Shorthand for --width")
	fs.IntVar(&c.height, "height", 0, "Height of browser window and shot, full page when omitted")
	fs.IntVar(&c.height, "h", 0, "Shorthand for --height")
	fs.StringVar(&c.output, "output", "", outputHelp)
	fs.StringVar(&c.output, "o", "", "Shorthand for --output")
	fs.StringVar(&c.javascript, "javascript", "", "Execute this JavaScript before the capture")
	fs.StringVar(&c.javascript, "j", "", "Shorthand for --javascript")
	fs.IntVar(&c.wait, "wait", 0, "Wait this many milliseconds before the capture")
	fs.StringVar(&c.waitFor, "wait-for", "", "Wait until this JavaScript expression is true")
	fs.IntVar(&c.timeout, "timeout", 0, "Wait this many milliseconds before failing")

	fs.BoolVar(&c.skip, "skip", false, "Skip pages that return HTTP errors")
	fs.BoolVar(&c.fail, "fail", false, "Fail with an error on HTTP errors")
	fs.BoolVar(&c.verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&c.verbose, "v", false, "Shorthand for --verbose")
	fs.BoolVar(&c.silent, "silent", false, "Only print errors")
	fs.BoolVar(&c.logConsole, "log-console", false, "Write console.log() output to stderr")

	fs.Var(&c.adBlock, "ad-block", "Block ads and trackers")
	fs.Var(&c.popupBlock, "popup-block", "Block cookie notices and popups")
	fs.BoolVar(&c.stealth, "stealth", false, "Hide automation fingerprints")
	fs.StringVar(&c.userAgent, "user-agent", "", "User-Agent header to use")

	fs.BoolVar(&c.skipChallenge, "skip-challenge-check", false, "Do not wait for anti-bot challenges to clear")
	fs.BoolVar(&c.skipCloudflare, "skip-cloudflare-check", false, "Alias for --skip-challenge-check")
	fs.BoolVar(&c.skipWaitForLoad, "skip-wait-for-load", false, "Do not wait for the page to finish loading")
	fs.BoolVar(&c.triggerLazyLoad, "trigger-lazy-load", false, "Scroll the page to load deferred images")
	fs.BoolVar(&c.noClearAnnoyances, "no-clear-annoyances", false, "Do not click close buttons on overlays")
	fs.StringVar(&c.eventLog, "event-log", "", "Append one line per capture to this file")
}

// builder starts a request with the shared settings applied
func (c *commonFlags) builder(url string, defaults config.CLIDefaults) *types.CaptureRequestBuilder {
	return types.NewCaptureRequestBuilder(url).
		Viewport(c.width, c.height).
		Output(c.output).
		JavaScript(c.javascript).
		Wait(time.Duration(c.wait) * time.Millisecond).
		WaitFor(c.waitFor).
		Timeout(time.Duration(c.timeout) * time.Millisecond).
		SkipChallengeCheck(c.skipChallenge || c.skipCloudflare).
		SkipWaitForLoad(c.skipWaitForLoad).
		TriggerLazyLoad(c.triggerLazyLoad).
		ClearAnnoyances(!c.noClearAnnoyances).
		Blocking(c.adBlock.or(defaults.AdBlock), c.popupBlock.or(defaults.PopupBlock)).
		Stealth(c.stealth).
		UserAgent(firstNonEmpty(c.userAgent, defaults.UserAgent)).
		LogConsole(c.logConsole).
		Skip(c.skip).
		Fail(c.fail).
		Verbosity(c.verbose, c.silent)
}

// selectorFlags choose screenshot regions
type selectorFlags struct {
	selectors      stringList
	selectorsAll   stringList
	jsSelectors    stringList
	jsSelectorsAll stringList
	padding        int
}

func (s *selectorFlags) register(fs *flag.FlagSet) {
	fs.Var(&s.selectors, "selector", "Capture the first element matching this CSS selector (repeatable)")
	fs.Var(&s.selectors, "s", "Shorthand for --selector")
	fs.Var(&s.selectorsAll, "selector-all", "Capture every element matching this CSS selector (repeatable)")
	fs.Var(&s.jsSelectors, "js-selector", "Capture the first element for which this JS (el) expression is true")
	fs.Var(&s.jsSelectorsAll, "js-selector-all", "Capture every element for which this JS (el) expression is true")
	fs.IntVar(&s.padding, "padding", 0, "Padding in pixels around selected elements")
	fs.IntVar(&s.padding, "p", 0, "Shorthand for --padding")
}

func (s *selectorFlags) apply(b *types.CaptureRequestBuilder) {
	b.Selector(s.selectors...).
		SelectorAll(s.selectorsAll...).
		JSSelector(s.jsSelectors...).
		JSSelectorAll(s.jsSelectorsAll...).
		Padding(s.padding)
}

// pdfFlags are print options
type pdfFlags struct {
	paper           string
	pageWidth       string
	pageHeight      string
	landscape       bool
	scale           float64
	printBackground bool
	mediaScreen     bool
	css             string
}

func (p *pdfFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.paper, "paper", types.DefaultPaper, "Paper size: letter, legal, tabloid, ledger, a0-a6")
	fs.StringVar(&p.pageWidth, "pdf-width", "", "Page width, e.g. 8.5in, 21cm, 210mm")
	fs.StringVar(&p.pageHeight, "pdf-height", "", "Page height, e.g. 11in, 29.7cm, 297mm")
	fs.BoolVar(&p.landscape, "landscape", false, "Use landscape orientation")
	fs.Float64Var(&p.scale, "scale", 0, "Scale of the webpage rendering, 0.1 to 2.0")
	fs.BoolVar(&p.printBackground, "print-background", false, "Print background graphics")
	fs.BoolVar(&p.mediaScreen, "media-screen", false, "Use screen rather than print styles")
	fs.StringVar(&p.css, "pdf-css", "", "Inject custom CSS for PDF generation")
}

func (p *pdfFlags) options() (types.PDFOptions, error) {
	opts := types.PDFOptions{
		Paper:           p.paper,
		Landscape:       p.landscape,
		Scale:           p.scale,
		PrintBackground: p.printBackground,
		MediaScreen:     p.mediaScreen,
		CSS:             p.css,
	}
	if (p.pageWidth == "") != (p.pageHeight == "") {
		return opts, &types.ConfigError{Field: "pdf", Message: "--pdf-width and --pdf-height must be given together"}
	}
	if p.pageWidth != "" {
		w, err := types.ParseDimension(p.pageWidth)
		if err != nil {
			return opts, &types.ConfigError{Field: "pdf-width", Message: err.Error()}
		}
		h, err := types.ParseDimension(p.pageHeight)
		if err != nil {
			return opts, &types.ConfigError{Field: "pdf-height", Message: err.Error()}
		}
		opts.Width, opts.Height = w, h
	}
	return opts, nil
}

// parseInterspersed lets flags follow positional arguments, e.g.
// "shot example.com -o out.png"
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
