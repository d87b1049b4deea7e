package chrome

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
)

// Memory budget used when the pool size is "auto"
const (
	reservedSystemBytes = int64(2 * 1024 * 1024 * 1024)
	perBrowserBytes     = int64(500 * 1024 * 1024)
	fallbackTotalBytes  = int64(8 * 1024 * 1024 * 1024)
	minAutoPoolSize     = 1
	maxAutoPoolSize     = 32
)

// Config describes how browsers are obtained and recycled
type Config struct {
	// RemoteURL is a DevTools websocket URL of an already running browser.
	// When set no local process is launched.
	RemoteURL string
	// ExecPath overrides the browser binary; empty uses the driver's lookup.
	ExecPath  string
	Headless  bool
	NoSandbox bool
	EnableGPU bool
	// ExtraFlags are passed to a launched browser as --name or --name=value
	ExtraFlags []string

	PoolSize        string // "auto" or a positive integer
	ShutdownTimeout time.Duration

	// Restart policies for pooled browsers
	RestartAfterCount int
	RestartAfterTime  time.Duration
}

// DefaultConfig launches one local headless browser
func DefaultConfig() *Config {
	return &Config{
		Headless:          true,
		PoolSize:          "1",
		ShutdownTimeout:   30 * time.Second,
		RestartAfterCount: 200,
		RestartAfterTime:  60 * time.Minute,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.PoolSize != "auto" {
		size, err := strconv.Atoi(c.PoolSize)
		if err != nil {
			return fmt.Errorf("pool size must be 'auto' or valid integer")
		}
		if size <= 0 {
			return fmt.Errorf("pool size must be positive")
		}
	}
	if c.RestartAfterCount <= 0 {
		return fmt.Errorf("restart after count must be positive")
	}
	if c.RestartAfterTime <= 0 {
		return fmt.Errorf("restart after time must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.RemoteURL != "" && !strings.HasPrefix(c.RemoteURL, "ws://") && !strings.HasPrefix(c.RemoteURL, "wss://") {
		return fmt.Errorf("remote url must be a ws:// or wss:// DevTools endpoint")
	}
	for _, flag := range c.ExtraFlags {
		if strings.TrimSpace(strings.TrimLeft(flag, "-")) == "" {
			return fmt.Errorf("empty browser flag")
		}
	}
	return nil
}

// CalculatePoolSize resolves PoolSize. "auto" sizes by system memory:
// (total RAM - 2GB) / 500MB per browser. A remote browser is never pooled.
func (c *Config) CalculatePoolSize() int {
	if c.RemoteURL != "" {
		return 1
	}
	if c.PoolSize == "auto" {
		return autoPoolSize()
	}
	size, err := strconv.Atoi(c.PoolSize)
	if err != nil || size <= 0 {
		return autoPoolSize()
	}
	return size
}

func autoPoolSize() int {
	total := fallbackTotalBytes
	if v, err := mem.VirtualMemory(); err == nil {
		total = int64(v.Total)
	}

	size := int((total - reservedSystemBytes) / perBrowserBytes)
	if size < minAutoPoolSize {
		size = minAutoPoolSize
	}
	if size > maxAutoPoolSize {
		size = maxAutoPoolSize
	}
	return size
}

// parseFlag splits "--name=value" into its name and value. A bare flag
// has value true.
func parseFlag(flag string) (string, any) {
	flag = strings.TrimLeft(strings.TrimSpace(flag), "-")
	if name, value, ok := strings.Cut(flag, "="); ok {
		return name, value
	}
	return flag, true
}
