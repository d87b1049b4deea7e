package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/capture"
	"github.com/elidickinson/shot-power-scraper/internal/common/config"
	logutil "github.com/elidickinson/shot-power-scraper/internal/common/logger"
	"github.com/elidickinson/shot-power-scraper/internal/render/chrome"
	"github.com/elidickinson/shot-power-scraper/internal/scriptsrc"
)

const usage = `Usage: shot-power-scraper <command> [flags] URL

Commands:
  shot        Take a screenshot (default when the first argument is a URL)
  pdf         Create a PDF of the page
  html        Write the rendered HTML of the page
  har         Record the page's network activity as a HAR file
  javascript  Execute JavaScript against the page and print the JSON result
  multi       Take the screenshots described in a YAML file
  config      Show or change saved default settings

Run "shot-power-scraper <command> -help" for the flags of a command.
`

// browserOpener starts a browser and returns a function that stops it
type browserOpener func(cfg *chrome.Config, logger *zap.Logger) (capture.Browser, func(), error)

func openChrome(cfg *chrome.Config, logger *zap.Logger) (capture.Browser, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	inst, err := chrome.NewInstance(0, cfg, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	return inst, func() {
		if err := inst.Terminate(); err != nil {
			logger.Debug("Failed to stop browser", zap.Error(err))
		}
	}, nil
}

type app struct {
	stdout       io.Writer
	stderr       io.Writer
	stdin        io.Reader
	defaultsPath string
	openBrowser  browserOpener
	scripts      *scriptsrc.Loader
	newLogger    func(verbose, silent bool) (*zap.Logger, error)
}

func newApp() *app {
	path, err := config.DefaultCLIDefaultsPath()
	if err != nil {
		path = ""
	}
	return &app{
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		stdin:        os.Stdin,
		defaultsPath: path,
		openBrowser:  openChrome,
		scripts:      scriptsrc.NewLoader(),
		newLogger: func(verbose, silent bool) (*zap.Logger, error) {
			dl, err := logutil.NewCLILogger(verbose, silent)
			if err != nil {
				return nil, err
			}
			return dl.Logger, nil
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newApp().run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run dispatches a command and returns the process exit code
func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.stderr, usage)
		return 2
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "-h", "-help", "--help", "help":
		fmt.Fprint(a.stdout, usage)
		return 0
	case "shot":
		return a.runCapture(ctx, cmdShot, rest)
	case "pdf":
		return a.runCapture(ctx, cmdPDF, rest)
	case "html":
		return a.runCapture(ctx, cmdHTML, rest)
	case "har":
		return a.runCapture(ctx, cmdHAR, rest)
	case "javascript":
		return a.runJavaScript(ctx, rest)
	case "multi":
		return a.runMulti(ctx, rest)
	case "config":
		return a.runConfig(rest)
	default:
		// shot-power-scraper https://example.com/ behaves like shot
		return a.runCapture(ctx, cmdShot, args)
	}
}

// loadDefaults returns saved defaults; an unreadable file is reported and ignored
func (a *app) loadDefaults() config.CLIDefaults {
	if a.defaultsPath == "" {
		return config.CLIDefaults{}
	}
	d, err := config.LoadCLIDefaults(a.defaultsPath)
	if err != nil {
		fmt.Fprintf(a.stderr, "Warning: %v\n", err)
	}
	return d
}

func (a *app) fail(err error) int {
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	return 1
}
