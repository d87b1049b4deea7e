package capturelog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/elidickinson/shot-power-scraper/internal/common/configtypes"
	"github.com/elidickinson/shot-power-scraper/internal/common/logger"
)

// Emitter receives finished captures
type Emitter interface {
	Emit(ev *Event)
	Close() error
}

// New returns a file emitter, or a no-op emitter when the log is disabled
func New(cfg configtypes.CaptureLogConfig, log *zap.Logger) (Emitter, error) {
	if !cfg.Enabled {
		return Discard(), nil
	}
	return NewFileEmitter(cfg, log)
}

type nopEmitter struct{}

func (nopEmitter) Emit(*Event)  {}
func (nopEmitter) Close() error { return nil }

// FileEmitter appends formatted events to a rotating file
type FileEmitter struct {
	mu        sync.Mutex
	writer    *lumberjack.Logger
	formatter *Formatter
	logger    *zap.Logger
}

func NewFileEmitter(cfg configtypes.CaptureLogConfig, log *zap.Logger) (*FileEmitter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory %s: %w", dir, err)
	}

	template := cfg.Template
	if template == "" {
		template = DefaultTemplate
	}
	formatter, err := NewFormatter(template)
	if err != nil {
		return nil, fmt.Errorf("invalid template for event log %s: %w", cfg.Path, err)
	}

	return &FileEmitter{
		writer:    logger.NewRotatingWriter(cfg.Path, cfg.Rotation),
		formatter: formatter,
		logger:    log,
	}, nil
}

// Emit writes one line. Write errors are logged, never returned.
func (f *FileEmitter) Emit(ev *Event) {
	line := f.formatter.Format(ev) + "\n"
	f.mu.Lock()
	_, err := f.writer.Write([]byte(line))
	f.mu.Unlock()
	if err != nil {
		f.logger.Warn("Failed to write capture event", zap.String("request_id", ev.RequestID), zap.Error(err))
	}
}

func (f *FileEmitter) Close() error {
	return f.writer.Close()
}

// Discard returns an emitter that drops every event
func Discard() Emitter { return nopEmitter{} }
