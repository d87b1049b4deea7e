package configtypes

import (
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

// Log level constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// Console log streams. The CLI logs to stderr so artifacts can be piped
// from stdout.
const (
	LogStreamStdout = "stdout"
	LogStreamStderr = "stderr"
)

// Artifact compression algorithms
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionLZ4    = "lz4"
)

type ServerConfig struct {
	ID          string         `yaml:"id"`
	Listen      string         `yaml:"listen"`
	Timeout     types.Duration `yaml:"timeout"`
	MaxBodySize int            `yaml:"max_body_size"`
	// SSRFProtection refuses capture URLs that point at private addresses (default: true)
	SSRFProtection *bool `yaml:"ssrf_protection,omitempty"`
	// ClientIPHeaders are consulted in order before the peer address,
	// e.g. X-Forwarded-For behind a proxy
	ClientIPHeaders []string `yaml:"client_ip_headers"`
}

// RedisConfig enables the HAR and artifact store
type RedisConfig struct {
	Enabled     bool           `yaml:"enabled"`
	Addr        string         `yaml:"addr"`
	Password    string         `yaml:"password"`
	DB          int            `yaml:"db"`
	HARTTL      types.Duration `yaml:"har_ttl"`
	ArtifactTTL types.Duration `yaml:"artifact_ttl"` // 0 disables the artifact cache
	Compression string         `yaml:"compression"`  // none, snappy, lz4
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
	Stream  string `yaml:"stream,omitempty"` // stdout (default) or stderr
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

// RotationConfig is passed to lumberjack; sizes in megabytes, age in days
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// CaptureLogConfig writes one line per finished capture
type CaptureLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Template string         `yaml:"template"`
	Rotation RotationConfig `yaml:"rotation"`
}

// RateLimitConfig is a per-client token bucket for the HTTP API
type RateLimitConfig struct {
	Enabled           bool           `yaml:"enabled"`
	RequestsPerSecond float64        `yaml:"requests_per_second"`
	Burst             int            `yaml:"burst"`
	IdleTTL           types.Duration `yaml:"idle_ttl"` // forget clients idle this long
}
