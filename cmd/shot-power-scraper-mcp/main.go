// Command shot-power-scraper-mcp exposes page captures as Model Context
// Protocol tools over stdio.
package main

import (
	"flag"
	"os"
	"strconv"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/capturelog"
	"github.com/elidickinson/shot-power-scraper/internal/common/config"
	"github.com/elidickinson/shot-power-scraper/internal/common/configtypes"
	logutil "github.com/elidickinson/shot-power-scraper/internal/common/logger"
	"github.com/elidickinson/shot-power-scraper/internal/render/chrome"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		remote     = flag.String("remote-browser", "", "DevTools websocket URL of a running browser (ws://...)")
		execPath   = flag.String("browser", "", "Path to the browser executable")
		browsers   = flag.Int("browsers", 1, "Number of browsers to keep running")
		noSandbox  = flag.Bool("no-sandbox", false, "Disable the browser sandbox")
		adBlock    = flag.Bool("ad-block", false, "Block ads and trackers")
		popupBlock = flag.Bool("popup-block", false, "Block cookie notices and popups")
		stealth    = flag.Bool("stealth", false, "Hide automation fingerprints")
		userAgent  = flag.String("user-agent", "", "User-Agent header to use")
		eventLog   = flag.String("event-log", "", "Append one line per capture to this file")
		verbose    = flag.Bool("v", false, "Verbose logging on stderr")
	)
	flag.Parse()

	// stdout carries the protocol, so logs go to stderr
	dl, err := logutil.NewCLILogger(*verbose, false)
	if err != nil {
		panic(err)
	}
	logger := dl.Logger
	defer func() { _ = logger.Sync() }()

	defaults := config.CLIDefaults{}
	if path, err := config.DefaultCLIDefaultsPath(); err == nil {
		if d, err := config.LoadCLIDefaults(path); err == nil {
			defaults = d
		} else {
			logger.Warn("Ignoring unreadable saved defaults", zap.String("path", path), zap.Error(err))
		}
	}

	cfg := chrome.DefaultConfig()
	cfg.RemoteURL = *remote
	cfg.ExecPath = *execPath
	cfg.NoSandbox = *noSandbox
	cfg.EnableGPU = defaults.EnableGPU
	cfg.PoolSize = strconv.Itoa(*browsers)

	pool, err := chrome.NewPool(cfg, nil, logger)
	if err != nil {
		logger.Fatal("Failed to create browser pool", zap.Error(err))
	}
	defer func() {
		if err := pool.Shutdown(); err != nil {
			logger.Error("Browser pool shutdown error", zap.Error(err))
		}
	}()

	events, err := capturelog.New(configtypes.CaptureLogConfig{Enabled: *eventLog != "", Path: *eventLog}, logger)
	if err != nil {
		logger.Fatal("Failed to open capture event log", zap.Error(err))
	}
	defer events.Close()

	t := &tools{
		runner: &poolRunner{pool: pool, logger: logger},
		events: events,
		defaults: toolDefaults{
			AdBlock:    *adBlock || defaults.AdBlock,
			PopupBlock: *popupBlock || defaults.PopupBlock,
			Stealth:    *stealth,
			UserAgent:  firstNonEmpty(*userAgent, defaults.UserAgent),
		},
		logger: logger,
	}

	logger.Info("MCP server ready", zap.Int("browsers", pool.Size()))
	if err := server.ServeStdio(newServer(t, version)); err != nil {
		logger.Error("MCP server error", zap.Error(err))
		return 1
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
