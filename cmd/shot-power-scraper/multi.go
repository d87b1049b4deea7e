package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/elidickinson/shot-power-scraper/internal/batch"
	"github.com/elidickinson/shot-power-scraper/internal/capture"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

func (a *app) runMulti(ctx context.Context, args []string) int {
	var (
		bf          browserFlags
		noclobber   bool
		outputs     stringList
		failOnError bool
		timeout     int
		verbose     bool
		silent      bool
		adBlock     optionalBool
		popupBlock  optionalBool
		stealth     bool
		userAgent   string
		eventLog    string
	)
	fs := flag.NewFlagSet("multi", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	bf.register(fs)
	fs.BoolVar(&noclobber, "no-clobber", false, "Skip images that already exist")
	fs.BoolVar(&noclobber, "n", false, "Shorthand for --no-clobber")
	fs.Var(&outputs, "output", "Just take shots matching these output files (repeatable)")
	fs.Var(&outputs, "o", "Shorthand for --output")
	fs.BoolVar(&failOnError, "fail-on-error", false, "Stop at the first failed shot")
	fs.IntVar(&timeout, "timeout", 0, "Default timeout in milliseconds for shots that set none")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verbose, "v", false, "Shorthand for --verbose")
	fs.BoolVar(&silent, "silent", false, "Only print errors")
	fs.Var(&adBlock, "ad-block", "Block ads and trackers")
	fs.Var(&popupBlock, "popup-block", "Block cookie notices and popups")
	fs.BoolVar(&stealth, "stealth", false, "Hide automation fingerprints")
	fs.StringVar(&userAgent, "user-agent", "", "User-Agent header to use")
	fs.StringVar(&eventLog, "event-log", "", "Append one line per capture to this file")

	positional, err := parseInterspersed(fs, args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}
	if len(positional) != 1 {
		return a.fail(fmt.Errorf("multi takes exactly one YAML file"))
	}

	data, err := a.readConfigFile(positional[0])
	if err != nil {
		return a.fail(err)
	}
	shots, err := batch.Parse(data)
	if err != nil {
		return a.fail(err)
	}

	defaults := a.loadDefaults()
	logger, err := a.newLogger(verbose, silent)
	if err != nil {
		return a.fail(err)
	}
	defer func() { _ = logger.Sync() }()

	events, err := openEventLog(eventLog, logger)
	if err != nil {
		return a.fail(err)
	}
	defer events.Close()

	browser, stop, err := a.openBrowser(bf.config(defaults), logger)
	if err != nil {
		return a.fail(fmt.Errorf("failed to start browser: %w", err))
	}
	defer stop()

	runner := batch.NewRunner(capture.NewExecutor(browser, logger), events, batch.Options{
		Defaults: batch.Defaults{
			Timeout:    types.Duration(time.Duration(timeout) * time.Millisecond),
			AdBlock:    adBlock.or(defaults.AdBlock),
			PopupBlock: popupBlock.or(defaults.PopupBlock),
			Stealth:    stealth,
			UserAgent:  firstNonEmpty(userAgent, defaults.UserAgent),
			Verbose:    verbose,
			Silent:     silent,
		},
		Noclobber:   noclobber,
		Outputs:     outputs,
		FailOnError: failOnError,
	}, logger)
	runner.SetStdout(a.stdout)

	results, err := runner.Run(ctx, shots)
	for _, res := range results {
		if silent {
			break
		}
		switch res.Status {
		case batch.StatusWritten:
			if res.Output != "-" {
				fmt.Fprintf(a.stderr, "Screenshot of '%s' written to '%s'\n", res.URL, res.Output)
			}
		case batch.StatusFailed:
			if err == nil {
				fmt.Fprintf(a.stderr, "Error: %s: %v\n", res.URL, res.Err)
			}
		}
	}
	if err != nil {
		return a.fail(err)
	}
	return 0
}

// readConfigFile reads path, or stdin for "-"
func (a *app) readConfigFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(a.stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
