package chrome

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/capture"
)

const healthCheckTimeout = 5 * time.Second

// Instance is one browser, launched locally or reached over a DevTools
// websocket. It opens capture tabs and tracks its own restart policy.
type Instance struct {
	id     int
	config *Config
	custom []string
	logger *zap.Logger

	mu          sync.RWMutex
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	createdAt   time.Time
	version     string

	status       atomic.Int32
	capturesDone atomic.Int32
}

// NewInstance starts a browser. customBlock are extra URL patterns
// aborted in every tab this instance opens.
func NewInstance(id int, config *Config, customBlock []string, logger *zap.Logger) (*Instance, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	inst := &Instance{
		id:     id,
		config: config,
		custom: customBlock,
		logger: logger.With(zap.Int("instance_id", id)),
	}
	if err := inst.start(); err != nil {
		return nil, fmt.Errorf("failed to start browser %d: %w", id, err)
	}
	inst.logger.Info("Browser instance started",
		zap.String("version", inst.Version()),
		zap.Bool("remote", config.RemoteURL != ""))
	return inst, nil
}

// allocatorOptions builds launch flags on top of chromedp's defaults
func allocatorOptions(config *Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if config.EnableGPU {
		opts = append(opts, chromedp.Flag("disable-gpu", false))
	}
	if config.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecPath))
	}
	for _, flag := range config.ExtraFlags {
		name, value := parseFlag(flag)
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

func (i *Instance) start() error {
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if i.config.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), i.config.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOptions(i.config)...)
	}
	ctx, cancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return err
	}

	var version string
	if err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, product, _, _, _, err := browser.GetVersion().Do(ctx)
		version = product
		return err
	})); err != nil {
		i.logger.Warn("Failed to read browser version", zap.Error(err))
	}

	now := time.Now().UTC()
	i.mu.Lock()
	i.allocCancel = allocCancel
	i.ctx = ctx
	i.cancel = cancel
	i.createdAt = now
	i.version = version
	i.mu.Unlock()

	i.capturesDone.Store(0)
	i.status.Store(int32(StatusIdle))
	return nil
}

// ID returns the pool slot of the instance
func (i *Instance) ID() int { return i.id }

// NewTab opens a tab configured for one capture
func (i *Instance) NewTab(ctx context.Context, opts capture.TabOptions) (capture.Tab, error) {
	if i.Status() == StatusDead {
		return nil, ErrInstanceDead
	}
	i.mu.RLock()
	browserCtx := i.ctx
	i.mu.RUnlock()

	blocklist := NewBlocklist(opts.AdBlock, opts.PopupBlock, i.custom)
	tab, err := openTab(ctx, browserCtx, opts, blocklist, i.logger)
	if err != nil {
		return nil, err
	}
	return tab, nil
}

// Version returns the browser product string, e.g. "HeadlessChrome/120.0.6099.109"
func (i *Instance) Version() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.version
}

// IsAlive asks the browser for its version
func (i *Instance) IsAlive() bool {
	if i.Status() == StatusDead {
		return false
	}
	i.mu.RLock()
	browserCtx := i.ctx
	i.mu.RUnlock()

	ctx, cancel := context.WithTimeout(browserCtx, healthCheckTimeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, _, err := browser.GetVersion().Do(ctx)
		return err
	})) == nil
}

// Age returns how long the current browser process has been running
func (i *Instance) Age() time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return time.Since(i.createdAt)
}

// ShouldRestart applies the capture count and age policies. A remote
// browser is never recycled.
func (i *Instance) ShouldRestart() bool {
	if i.config.RemoteURL != "" {
		return false
	}
	if int(i.capturesDone.Load()) >= i.config.RestartAfterCount {
		return true
	}
	return i.Age() >= i.config.RestartAfterTime
}

// Restart replaces the browser with a fresh one
func (i *Instance) Restart() error {
	i.logger.Info("Restarting browser instance",
		zap.Int32("captures_done", i.capturesDone.Load()),
		zap.Duration("age", i.Age()))

	i.status.Store(int32(StatusRestarting))
	i.shutdown()
	if err := i.start(); err != nil {
		i.status.Store(int32(StatusDead))
		return fmt.Errorf("%w: %v", ErrRestartFailed, err)
	}
	return nil
}

// Terminate stops the browser. A remote browser is only disconnected.
func (i *Instance) Terminate() error {
	i.status.Store(int32(StatusDead))
	i.shutdown()
	return nil
}

func (i *Instance) shutdown() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancel != nil {
		i.cancel()
	}
	if i.allocCancel != nil {
		i.allocCancel()
	}
}

// MarkUsed records a finished capture
func (i *Instance) MarkUsed() {
	i.capturesDone.Add(1)
}

func (i *Instance) Status() Status {
	return Status(i.status.Load())
}

func (i *Instance) SetStatus(s Status) {
	i.status.Store(int32(s))
}

// CapturesDone returns captures since the last (re)start
func (i *Instance) CapturesDone() int32 {
	return i.capturesDone.Load()
}
