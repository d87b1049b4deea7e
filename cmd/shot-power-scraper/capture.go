package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/capture"
	"github.com/elidickinson/shot-power-scraper/internal/capturelog"
	"github.com/elidickinson/shot-power-scraper/internal/common/config"
	"github.com/elidickinson/shot-power-scraper/internal/common/configtypes"
	"github.com/elidickinson/shot-power-scraper/internal/common/urlutil"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

type captureCommand int

const (
	cmdShot captureCommand = iota
	cmdPDF
	cmdHTML
	cmdHAR
)

func (c captureCommand) name() string {
	return [...]string{"shot", "pdf", "html", "har"}[c]
}

// captureFlags holds every flag a capture command may register
type captureFlags struct {
	commonFlags
	selectorFlags
	pdfFlags

	quality      int
	saveHTML     bool
	htmlSelector string
	stripScripts bool
	harBodies    bool
}

func newCaptureFlagSet(cmd captureCommand, f *captureFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(cmd.name(), flag.ContinueOnError)
	switch cmd {
	case cmdShot:
		f.commonFlags.register(fs, "Output file, - for stdout; defaults to a name derived from the URL")
		f.selectorFlags.register(fs)
		fs.IntVar(&f.quality, "quality", 0, "Save as JPEG with this quality, e.g. 80")
		fs.BoolVar(&f.saveHTML, "save-html", false, "Save HTML alongside the screenshot with the same base name")
	case cmdPDF:
		f.commonFlags.register(fs, "Output PDF file, - for stdout")
		f.pdfFlags.register(fs)
	case cmdHTML:
		f.commonFlags.register(fs, "Output HTML file, - for stdout")
		fs.StringVar(&f.htmlSelector, "selector", "", "Return outerHTML of the first element matching this CSS selector")
		fs.StringVar(&f.htmlSelector, "s", "", "Shorthand for --selector")
		fs.BoolVar(&f.stripScripts, "strip-scripts", false, "Remove <script> elements from the output")
	case cmdHAR:
		f.commonFlags.register(fs, "Output HAR file, - for stdout")
		fs.BoolVar(&f.harBodies, "bodies", false, "Include text response bodies in the archive")
	}
	return fs
}

// request builds the capture request for one command invocation
func (f *captureFlags) request(cmd captureCommand, url string, defaults config.CLIDefaults) (types.CaptureRequest, error) {
	b := f.builder(url, defaults)
	switch cmd {
	case cmdShot:
		f.selectorFlags.apply(b)
		b.Quality(f.quality)
		format := types.FormatPNG
		if ext := strings.ToLower(filepath.Ext(f.output)); f.quality > 0 || ext == ".jpg" || ext == ".jpeg" {
			format = types.FormatJPEG
		}
		b.Format(string(format))
	case cmdPDF:
		opts, err := f.pdfFlags.options()
		if err != nil {
			return types.CaptureRequest{}, err
		}
		b.Format(string(types.FormatPDF)).PDF(opts)
	case cmdHTML:
		b.Format(string(types.FormatHTML)).
			HTMLSelector(f.htmlSelector).
			StripScripts(f.stripScripts)
	case cmdHAR:
		b.Format(string(types.FormatHAR)).HARBodies(f.harBodies)
	}

	req, err := b.Build()
	if err != nil {
		return req, err
	}
	if req.Output == "" {
		req.Output = urlutil.FilenameForURL(req.URL, req.Format.Extension(), urlutil.FileExists)
	}
	return req, nil
}

func (a *app) runCapture(ctx context.Context, cmd captureCommand, args []string) int {
	var f captureFlags
	fs := newCaptureFlagSet(cmd, &f)
	fs.SetOutput(a.stderr)
	positional, err := parseInterspersed(fs, args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}
	if len(positional) != 1 {
		return a.fail(fmt.Errorf("%s takes exactly one URL, got %d arguments", cmd.name(), len(positional)))
	}

	defaults := a.loadDefaults()
	url := urlutil.URLOrFilePath(positional[0], urlutil.LocalFile)
	req, err := f.request(cmd, url, defaults)
	if err != nil {
		return a.fail(err)
	}

	logger, err := a.newLogger(f.verbose, f.silent)
	if err != nil {
		return a.fail(err)
	}
	defer func() { _ = logger.Sync() }()

	events, err := openEventLog(f.eventLog, logger)
	if err != nil {
		return a.fail(err)
	}
	defer events.Close()

	browser, stop, err := a.openBrowser(f.browserFlags.config(defaults), logger)
	if err != nil {
		return a.fail(fmt.Errorf("failed to start browser: %w", err))
	}
	defer stop()

	executor := capture.NewExecutor(browser, logger)
	artifact, err := a.captureOne(ctx, executor, events, req, logger)
	if err != nil {
		if capture.IsSkip(err) {
			fmt.Fprintln(a.stderr, err.Error())
			return 0
		}
		return a.fail(err)
	}
	if err := a.writeOutput(req.Output, artifact.Data); err != nil {
		return a.fail(err)
	}
	if !req.Silent {
		a.reportWritten(cmd, req)
	}

	if cmd == cmdShot && f.saveHTML && req.Output != "-" {
		htmlReq := req
		htmlReq.Format = types.FormatHTML
		htmlReq.Quality = 0
		htmlReq.Output = strings.TrimSuffix(req.Output, filepath.Ext(req.Output)) + ".html"
		page, err := a.captureOne(ctx, executor, events, htmlReq, logger)
		if err == nil {
			err = a.writeOutput(htmlReq.Output, page.Data)
		}
		if err != nil {
			return a.fail(fmt.Errorf("failed to save HTML: %w", err))
		}
	}
	return 0
}

func (a *app) captureOne(ctx context.Context, executor *capture.Executor, events capturelog.Emitter, req types.CaptureRequest, logger *zap.Logger) (*capture.Artifact, error) {
	job := capture.NewJob(req, logger, "")
	artifact, err := executor.Capture(ctx, job)
	events.Emit(capturelog.NewEvent(job, capturelog.SourceCLI, artifact, err))
	return artifact, err
}

func (a *app) writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := a.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (a *app) reportWritten(cmd captureCommand, req types.CaptureRequest) {
	if req.Output == "-" {
		return
	}
	switch cmd {
	case cmdShot:
		fmt.Fprintf(a.stderr, "Screenshot of '%s' written to '%s'\n", req.URL, req.Output)
	case cmdPDF:
		fmt.Fprintf(a.stderr, "PDF created: %s\n", req.Output)
	case cmdHTML:
		fmt.Fprintf(a.stderr, "HTML snapshot of '%s' written to '%s'\n", req.URL, req.Output)
	case cmdHAR:
		fmt.Fprintf(a.stderr, "Wrote to HAR file: %s\n", req.Output)
	}
}

func openEventLog(path string, logger *zap.Logger) (capturelog.Emitter, error) {
	return capturelog.New(configtypes.CaptureLogConfig{Enabled: path != "", Path: path}, logger)
}
