package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/elidickinson/shot-power-scraper/internal/common/configtypes"
	"github.com/elidickinson/shot-power-scraper/internal/common/yamlutil"
	"github.com/elidickinson/shot-power-scraper/internal/render/chrome"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

const (
	// SafetyMargin is added to the longest capture timeout for the HTTP
	// server's read and write timeouts
	SafetyMargin = 10 * time.Second

	DefaultListen = "127.0.0.1:8123"

	defaultServerID          = "capture-1"
	defaultMaxBodySize       = 1 << 20
	defaultRestartAfterCount = 200
	defaultRestartAfterTime  = 60 * time.Minute
	defaultShutdownTimeout   = 30 * time.Second
	defaultMaxTimeout        = 120 * time.Second
	defaultHARTTL            = 24 * time.Hour
	defaultMetricsPath       = "/metrics"
	defaultMetricsNamespace  = "shot_power_scraper"
	defaultRateBurst         = 10
	defaultRateIdleTTL       = 10 * time.Minute
)

var namespaceRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ServiceConfig is the capture-service configuration file
type ServiceConfig struct {
	Server          configtypes.ServerConfig     `yaml:"server"`
	Chrome          ChromeYAMLConfig             `yaml:"chrome"`
	CaptureDefaults CaptureDefaults              `yaml:"capture_defaults"`
	Redis           configtypes.RedisConfig      `yaml:"redis"`
	Metrics         configtypes.MetricsConfig    `yaml:"metrics"`
	Log             configtypes.LogConfig        `yaml:"log"`
	EventLog        configtypes.CaptureLogConfig `yaml:"event_log"`
	RateLimit       configtypes.RateLimitConfig  `yaml:"rate_limit"`
}

// ChromeYAMLConfig is the browser section
type ChromeYAMLConfig struct {
	RemoteURL string   `yaml:"remote_url"`
	ExecPath  string   `yaml:"exec_path"`
	Headless  *bool    `yaml:"headless,omitempty"` // default true
	NoSandbox bool     `yaml:"no_sandbox"`
	EnableGPU bool     `yaml:"enable_gpu"`
	Flags     []string `yaml:"flags"`
	PoolSize  string   `yaml:"pool_size"`
	// BlockPatterns are aborted in every tab in addition to the ad and popup sets
	BlockPatterns   []string       `yaml:"block_patterns"`
	ShutdownTimeout types.Duration `yaml:"shutdown_timeout"`
	Restart         RestartConfig  `yaml:"restart"`
}

// RestartConfig recycles a launched browser after a number of captures or an age
type RestartConfig struct {
	AfterCount int            `yaml:"after_count"`
	AfterTime  types.Duration `yaml:"after_time"`
}

// CaptureDefaults fill in what an API request leaves out
type CaptureDefaults struct {
	Width      int            `yaml:"width"`
	Height     int            `yaml:"height"`
	Timeout    types.Duration `yaml:"timeout"`
	MaxTimeout types.Duration `yaml:"max_timeout"` // longest timeout a request may ask for
	Wait       types.Duration `yaml:"wait"`
	AdBlock    bool           `yaml:"ad_block"`
	PopupBlock bool           `yaml:"popup_block"`
	Stealth    bool           `yaml:"stealth"`
	UserAgent  string         `yaml:"user_agent"`
}

// LoadServiceConfig reads, defaults and validates a configuration file
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg ServiceConfig
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (cfg *ServiceConfig) applyDefaults() {
	if cfg.Server.ID == "" {
		cfg.Server.ID = defaultServerID
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = defaultMaxBodySize
	}

	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = configtypes.LogLevelInfo
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = configtypes.LogFormatText
	}

	if cfg.Chrome.PoolSize == "" {
		cfg.Chrome.PoolSize = "auto"
	}
	if cfg.Chrome.Restart.AfterCount == 0 {
		cfg.Chrome.Restart.AfterCount = defaultRestartAfterCount
	}
	if cfg.Chrome.Restart.AfterTime == 0 {
		cfg.Chrome.Restart.AfterTime = types.Duration(defaultRestartAfterTime)
	}
	if cfg.Chrome.ShutdownTimeout == 0 {
		cfg.Chrome.ShutdownTimeout = types.Duration(defaultShutdownTimeout)
	}

	if cfg.CaptureDefaults.Width == 0 {
		cfg.CaptureDefaults.Width = types.DefaultViewportWidth
	}
	if cfg.CaptureDefaults.Height == 0 {
		cfg.CaptureDefaults.Height = types.DefaultViewportHeight
	}
	if cfg.CaptureDefaults.Timeout == 0 {
		cfg.CaptureDefaults.Timeout = types.Duration(types.DefaultTimeout)
	}
	if cfg.CaptureDefaults.MaxTimeout == 0 {
		cfg.CaptureDefaults.MaxTimeout = types.Duration(defaultMaxTimeout)
	}

	if cfg.Redis.HARTTL == 0 {
		cfg.Redis.HARTTL = types.Duration(defaultHARTTL)
	}
	if cfg.Redis.Compression == "" {
		cfg.Redis.Compression = configtypes.CompressionSnappy
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaultMetricsNamespace
	}

	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = defaultRateBurst
	}
	if cfg.RateLimit.IdleTTL == 0 {
		cfg.RateLimit.IdleTTL = types.Duration(defaultRateIdleTTL)
	}
}

// Validate checks configuration validity and rewrites listen addresses
// to host:port
func (cfg *ServiceConfig) Validate() error {
	serverAddr, err := configtypes.ParseListen(cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("invalid server.listen: %w", err)
	}
	cfg.Server.Listen = serverAddr.String()
	if cfg.Server.MaxBodySize < 0 {
		return fmt.Errorf("server.max_body_size must not be negative")
	}

	if err := cfg.Chrome.ToChromeConfig().Validate(); err != nil {
		return fmt.Errorf("invalid chrome section: %w", err)
	}

	d := cfg.CaptureDefaults
	if d.Width < 0 || d.Height < 0 {
		return fmt.Errorf("capture_defaults viewport must not be negative")
	}
	if d.Timeout <= 0 || d.MaxTimeout <= 0 {
		return fmt.Errorf("capture_defaults timeouts must be positive")
	}
	if d.Timeout > d.MaxTimeout {
		return fmt.Errorf("capture_defaults.timeout (%s) exceeds max_timeout (%s)", d.Timeout, d.MaxTimeout)
	}
	if d.Wait < 0 {
		return fmt.Errorf("capture_defaults.wait must not be negative")
	}

	if cfg.Redis.Enabled {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when redis is enabled")
		}
		if cfg.Redis.HARTTL < 0 || cfg.Redis.ArtifactTTL < 0 {
			return fmt.Errorf("redis ttls must not be negative")
		}
		switch cfg.Redis.Compression {
		case configtypes.CompressionNone, configtypes.CompressionSnappy, configtypes.CompressionLZ4:
		default:
			return fmt.Errorf("invalid redis.compression: %s (must be none, snappy or lz4)", cfg.Redis.Compression)
		}
	}

	if err := validateLog(cfg.Log); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		metricsAddr, err := configtypes.ParseListen(cfg.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}
		if metricsAddr.Conflicts(serverAddr) {
			return fmt.Errorf("metrics.listen must use a different port than server.listen")
		}
		cfg.Metrics.Listen = metricsAddr.String()
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics.path: %s (must start with /)", cfg.Metrics.Path)
	}
	if !namespaceRe.MatchString(cfg.Metrics.Namespace) {
		return fmt.Errorf("invalid metrics.namespace: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", cfg.Metrics.Namespace)
	}

	if cfg.EventLog.Enabled && cfg.EventLog.Path == "" {
		return fmt.Errorf("event_log.path is required when the event log is enabled")
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limit.requests_per_second must be positive")
		}
		if cfg.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate_limit.burst must be positive")
		}
	}
	return nil
}

func validateLog(log configtypes.LogConfig) error {
	switch log.Level {
	case configtypes.LogLevelDebug, configtypes.LogLevelInfo, configtypes.LogLevelWarn, configtypes.LogLevelError:
	default:
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn or error)", log.Level)
	}

	if log.Console.Enabled {
		switch log.Console.Format {
		case configtypes.LogFormatJSON, configtypes.LogFormatConsole:
		default:
			return fmt.Errorf("invalid log.console.format: %s (must be json or console)", log.Console.Format)
		}
		switch log.Console.Stream {
		case "", configtypes.LogStreamStdout, configtypes.LogStreamStderr:
		default:
			return fmt.Errorf("invalid log.console.stream: %s (must be stdout or stderr)", log.Console.Stream)
		}
	}

	if log.File.Enabled {
		if log.File.Path == "" {
			return fmt.Errorf("log.file.path must be specified when file logging is enabled")
		}
		switch log.File.Format {
		case configtypes.LogFormatJSON, configtypes.LogFormatText:
		default:
			return fmt.Errorf("invalid log.file.format: %s (must be json or text)", log.File.Format)
		}
		r := log.File.Rotation
		if r.MaxSize < 0 || r.MaxAge < 0 || r.MaxBackups < 0 {
			return fmt.Errorf("log.file.rotation values must be >= 0")
		}
	}
	return nil
}

// ToChromeConfig converts the browser section for the driver
func (c *ChromeYAMLConfig) ToChromeConfig() *chrome.Config {
	cfg := chrome.DefaultConfig()
	cfg.RemoteURL = c.RemoteURL
	cfg.ExecPath = c.ExecPath
	if c.Headless != nil {
		cfg.Headless = *c.Headless
	}
	cfg.NoSandbox = c.NoSandbox
	cfg.EnableGPU = c.EnableGPU
	cfg.ExtraFlags = c.Flags
	if c.PoolSize != "" {
		cfg.PoolSize = c.PoolSize
	}
	if c.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = c.ShutdownTimeout.ToDuration()
	}
	if c.Restart.AfterCount > 0 {
		cfg.RestartAfterCount = c.Restart.AfterCount
	}
	if c.Restart.AfterTime > 0 {
		cfg.RestartAfterTime = c.Restart.AfterTime.ToDuration()
	}
	return cfg
}

// ServerTimeout is the longest capture plus SafetyMargin. The executor
// may run up to twice the navigation timeout.
func (cfg *ServiceConfig) ServerTimeout() time.Duration {
	if cfg.Server.Timeout > 0 {
		return cfg.Server.Timeout.ToDuration()
	}
	return 2*cfg.CaptureDefaults.MaxTimeout.ToDuration() + SafetyMargin
}

// SSRFProtection reports whether private capture targets are refused
func (cfg *ServiceConfig) SSRFProtection() bool {
	return cfg.Server.SSRFProtection == nil || *cfg.Server.SSRFProtection
}

// GetConfigPath resolves the config file path and checks it exists
func GetConfigPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("config path cannot be empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("config file does not exist: %s", absPath)
	}
	return absPath, nil
}
