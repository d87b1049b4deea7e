package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/capture"
	"github.com/elidickinson/shot-power-scraper/internal/render/chrome"
)

// Capturer runs one capture job
type Capturer interface {
	Capture(ctx context.Context, job *capture.Job) (*capture.Artifact, error)
}

// PoolCapturer runs each job on a browser borrowed from the pool
type PoolCapturer struct {
	pool   *chrome.Pool
	logger *zap.Logger
}

func NewPoolCapturer(pool *chrome.Pool, logger *zap.Logger) *PoolCapturer {
	return &PoolCapturer{pool: pool, logger: logger}
}

func (c *PoolCapturer) Capture(ctx context.Context, job *capture.Job) (*capture.Artifact, error) {
	member, err := c.pool.Acquire(ctx, job.RequestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errPoolUnavailable, err)
	}
	defer c.pool.Release(member)
	return capture.NewExecutor(member, job.Logger).Capture(ctx, job)
}
