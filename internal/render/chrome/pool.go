package chrome

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/capture"
)

// Member is a pooled browser
type Member interface {
	capture.Browser
	ID() int
	IsAlive() bool
	ShouldRestart() bool
	Restart() error
	Terminate() error
	MarkUsed()
	SetStatus(Status)
}

// Launcher creates the browser for pool slot id
type Launcher func(id int) (Member, error)

// Pool hands out browsers through a FIFO queue of slot ids. A slot is
// held by at most one capture at a time.
type Pool struct {
	config        *Config
	logger        *zap.Logger
	members       []Member
	queue         chan int
	mu            sync.RWMutex
	active        atomic.Int32
	totalCaptures atomic.Int64
	totalRestarts atomic.Int64
	createdAt     time.Time
	ctx           context.Context
	cancel        context.CancelFunc
	onChange      func(PoolStats)
}

// NewPool launches config.CalculatePoolSize() browsers
func NewPool(config *Config, customBlock []string, logger *zap.Logger) (*Pool, error) {
	return newPool(config, logger, func(id int) (Member, error) {
		return NewInstance(id, config, customBlock, logger)
	})
}

func newPool(config *Config, logger *zap.Logger, launch Launcher) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid browser config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	size := config.CalculatePoolSize()
	logger.Info("Initializing browser pool", zap.Int("pool_size", size))

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		config:    config,
		logger:    logger,
		members:   make([]Member, size),
		queue:     make(chan int, size),
		createdAt: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < size; i++ {
		m, err := launch(i)
		if err != nil {
			_ = p.ShutdownWithTimeout(time.Second)
			return nil, fmt.Errorf("failed to launch browser %d: %w", i, err)
		}
		p.members[i] = m
		p.queue <- i
	}
	return p, nil
}

// OnChange registers a callback run after every acquire and release
func (p *Pool) OnChange(fn func(PoolStats)) {
	p.onChange = fn
}

// Acquire blocks until a browser is free, ctx ends or the pool shuts
// down. Dead browsers are restarted and the recycling policy applied
// before the browser is handed out.
func (p *Pool) Acquire(ctx context.Context, requestID string) (Member, error) {
	var slot int
	select {
	case <-p.ctx.Done():
		return nil, ErrPoolShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	case slot = <-p.queue:
	}

	// shutdown may have started while waiting
	if p.ctx.Err() != nil {
		p.requeue(slot)
		return nil, ErrPoolShutdown
	}

	p.active.Add(1)
	p.mu.RLock()
	m := p.members[slot]
	p.mu.RUnlock()

	logger := p.logger.With(zap.String("request_id", requestID), zap.Int("instance_id", slot))

	if !m.IsAlive() {
		logger.Warn("Browser instance is dead, restarting")
		if err := m.Restart(); err != nil {
			logger.Error("Failed to restart dead instance", zap.Error(err))
			p.active.Add(-1)
			p.requeue(slot)
			return nil, fmt.Errorf("%w: instance %d", ErrInstanceDead, slot)
		}
		p.totalRestarts.Add(1)
	} else if m.ShouldRestart() {
		logger.Info("Browser instance due for restart")
		if err := m.Restart(); err != nil {
			logger.Error("Failed to restart instance", zap.Error(err))
		} else {
			p.totalRestarts.Add(1)
		}
	}

	m.SetStatus(StatusCapturing)
	logger.Debug("Browser instance acquired", zap.Int32("active", p.active.Load()))
	p.notify()
	return m, nil
}

// Release returns a browser acquired with Acquire
func (p *Pool) Release(m Member) {
	m.SetStatus(StatusIdle)
	m.MarkUsed()
	p.totalCaptures.Add(1)
	p.active.Add(-1)
	p.requeue(m.ID())
	p.notify()
}

func (p *Pool) requeue(slot int) {
	select {
	case p.queue <- slot:
	case <-p.ctx.Done():
	default:
		p.logger.Error("Queue full when returning instance",
			zap.Int("instance_id", slot),
			zap.Int("queue_len", len(p.queue)))
	}
}

func (p *Pool) notify() {
	if p.onChange != nil {
		p.onChange(p.Stats())
	}
}

// Stats returns current occupancy
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	total := len(p.members)
	p.mu.RUnlock()
	return PoolStats{
		TotalInstances:     total,
		AvailableInstances: len(p.queue),
		ActiveInstances:    int(p.active.Load()),
		TotalCaptures:      p.totalCaptures.Load(),
		TotalRestarts:      p.totalRestarts.Load(),
		Uptime:             time.Since(p.createdAt),
	}
}

func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.members)
}

// Shutdown drains with the configured timeout
func (p *Pool) Shutdown() error {
	return p.ShutdownWithTimeout(p.config.ShutdownTimeout)
}

// ShutdownWithTimeout stops handing out browsers, waits for running
// captures up to timeout and terminates every browser.
func (p *Pool) ShutdownWithTimeout(timeout time.Duration) error {
	p.cancel()
	p.logger.Info("Shutting down browser pool",
		zap.Duration("timeout", timeout),
		zap.Int32("active", p.active.Load()))

	if !p.waitForActive(timeout) {
		p.logger.Warn("Shutdown timeout exceeded, forcing termination",
			zap.Int32("stuck_captures", p.active.Load()))
	}

	p.mu.Lock()
	var failed int
	for i, m := range p.members {
		if m == nil {
			continue
		}
		if err := m.Terminate(); err != nil {
			p.logger.Error("Error terminating instance", zap.Int("instance_id", i), zap.Error(err))
			failed++
		}
	}
	p.mu.Unlock()

	stats := p.Stats()
	p.logger.Info("Browser pool shut down",
		zap.Int64("total_captures", stats.TotalCaptures),
		zap.Int64("total_restarts", stats.TotalRestarts),
		zap.Duration("uptime", stats.Uptime))

	if failed > 0 {
		return fmt.Errorf("encountered %d errors during shutdown", failed)
	}
	return nil
}

func (p *Pool) waitForActive(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if p.active.Load() <= 0 {
			return true
		}
		<-ticker.C
		if time.Now().After(deadline) {
			return false
		}
	}
}
