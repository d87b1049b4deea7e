package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/elidickinson/shot-power-scraper/internal/capture"
	"github.com/elidickinson/shot-power-scraper/internal/capturelog"
	"github.com/elidickinson/shot-power-scraper/internal/common/urlutil"
)

func (a *app) runJavaScript(ctx context.Context, args []string) int {
	var (
		c     commonFlags
		input string
		raw   bool
	)
	fs := flag.NewFlagSet("javascript", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	c.register(fs, "Save output JSON to this file, - for stdout")
	fs.StringVar(&input, "input", "-", "Read JavaScript from this file, - for stdin, or gh:user/script")
	fs.StringVar(&input, "i", "-", "Shorthand for --input")
	fs.BoolVar(&raw, "raw", false, "Output JSON strings as raw text")
	fs.BoolVar(&raw, "r", false, "Shorthand for --raw")

	positional, err := parseInterspersed(fs, args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}
	if len(positional) < 1 || len(positional) > 2 {
		return a.fail(fmt.Errorf("javascript takes a URL and an optional expression"))
	}
	if c.output == "" {
		c.output = "-"
	}

	var expr string
	if len(positional) == 2 {
		expr = positional[1]
	} else {
		expr, err = a.scripts.WithStdin(a.stdin).Load(ctx, input)
		if err != nil {
			return a.fail(err)
		}
	}

	defaults := a.loadDefaults()
	url := urlutil.URLOrFilePath(positional[0], urlutil.LocalFile)
	b := c.builder(url, defaults).Format("html")
	// The output path is ours, not the capture's
	b.Output("")
	req, err := b.Build()
	if err != nil {
		return a.fail(err)
	}

	logger, err := a.newLogger(c.verbose, c.silent)
	if err != nil {
		return a.fail(err)
	}
	defer func() { _ = logger.Sync() }()

	events, err := openEventLog(c.eventLog, logger)
	if err != nil {
		return a.fail(err)
	}
	defer events.Close()

	browser, stop, err := a.openBrowser(c.browserFlags.config(defaults), logger)
	if err != nil {
		return a.fail(fmt.Errorf("failed to start browser: %w", err))
	}
	defer stop()

	job := capture.NewJob(req, logger, "")
	result, err := capture.NewExecutor(browser, logger).Evaluate(ctx, job, expr)
	events.Emit(capturelog.NewEvent(job, capturelog.SourceCLI, nil, err))
	if err != nil {
		if capture.IsSkip(err) {
			fmt.Fprintln(a.stderr, err.Error())
			return 0
		}
		return a.fail(err)
	}

	out, err := formatResult(result, raw, c.output == "-")
	if err != nil {
		return a.fail(err)
	}
	if c.output == "-" {
		_, err = a.stdout.Write(out)
	} else {
		err = os.WriteFile(c.output, out, 0o644)
	}
	if err != nil {
		return a.fail(err)
	}
	return 0
}

// formatResult renders an evaluation result: raw strings unquoted,
// compact JSON for stdout, four-space indented JSON for files.
func formatResult(result json.RawMessage, raw, compact bool) ([]byte, error) {
	if raw {
		var s string
		if err := json.Unmarshal(result, &s); err == nil {
			return []byte(s), nil
		}
		return result, nil
	}

	var buf bytes.Buffer
	var err error
	if compact {
		err = json.Compact(&buf, result)
	} else {
		err = json.Indent(&buf, result, "", "    ")
	}
	if err != nil {
		return nil, fmt.Errorf("invalid result: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
