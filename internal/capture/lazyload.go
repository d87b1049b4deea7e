package capture

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	lazyLoadWindow      = 5 * time.Second
	lazyScrollInterval  = 150 * time.Millisecond
	lazyImagePoll       = 100 * time.Millisecond
	maxExpandedViewport = 16384
	viewportSettleDelay = 300 * time.Millisecond
	// Bound on restoring the viewport after the caller gave up
	viewportRestoreTimeout = 2 * time.Second
)

const promoteDeferredSourcesJS = `(() => {
	let count = 0;
	document.querySelectorAll('img[data-src]').forEach(img => {
		if (img.dataset.src) {
			img.src = img.dataset.src;
			delete img.dataset.src;
			count++;
		}
		if (img.loading === 'lazy') {
			img.removeAttribute('loading');
		}
	});
	document.querySelectorAll('img[loading="lazy"], iframe[loading="lazy"]').forEach(el => el.removeAttribute('loading'));
	document.querySelectorAll('[data-src]:not(img)').forEach(el => {
		if (el.dataset.src) {
			el.src = el.dataset.src;
			delete el.dataset.src;
			count++;
		}
	});
	return count;
})()`

const scrollStepJS = `(() => {
	window.scrollBy(0, window.innerHeight * 1.1);
	return window.innerHeight + window.scrollY >= document.documentElement.scrollHeight - 2;
})()`

const scrollTopJS = `window.scrollTo(0, 0)`

const scrollHeightJS = `Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight)`

const imagesCompleteJS = `Array.from(document.images).every(img => img.complete)`

// LazyLoadTrigger makes deferred content load before capture
type LazyLoadTrigger struct {
	tab    Tab
	logger *zap.Logger
	window time.Duration
}

// NewLazyLoadTrigger uses the default 5s window
func NewLazyLoadTrigger(tab Tab, logger *zap.Logger) *LazyLoadTrigger {
	return &LazyLoadTrigger{tab: tab, logger: logger, window: lazyLoadWindow}
}

// Trigger promotes deferred sources, scrolls the page, briefly expands the
// viewport to the document height, waits for images and restores the
// viewport. Every step is best effort; only a context error is returned.
//
// The viewport expansion is a compatibility shim: intersection-based
// loaders do not always fire under automation, and making the whole page
// "visible" at once usually starts them. It is not a guarantee.
func (l *LazyLoadTrigger) Trigger(ctx context.Context) error {
	start := time.Now()

	var converted int
	if err := l.tab.Evaluate(ctx, promoteDeferredSourcesJS, &converted); err != nil {
		l.logger.Debug("Deferred source promotion failed", zap.Error(err))
	} else if converted > 0 {
		l.logger.Debug("Promoted deferred sources", zap.Int("count", converted))
	}

	scrolls, err := l.scrollPass(ctx)
	if err != nil {
		return err
	}

	original := l.tab.Viewport()
	expanded := false
	var height int
	if err := l.tab.Evaluate(ctx, scrollHeightJS, &height); err == nil && height > original.Height {
		if height > maxExpandedViewport {
			height = maxExpandedViewport
		}
		if err := l.tab.SetViewport(ctx, original.Width, height); err != nil {
			l.logger.Debug("Viewport expansion failed", zap.Error(err))
		} else {
			expanded = true
		}
	}

	remaining := l.window - time.Since(start)
	if remaining < lazyImagePoll {
		remaining = lazyImagePoll
	}
	_, err = Poll(ctx, remaining, lazyImagePoll, func(ctx context.Context, _ time.Duration) (bool, error) {
		var done bool
		if err := l.tab.Evaluate(ctx, imagesCompleteJS, &done); err != nil {
			return false, nil
		}
		return done, nil
	})
	if expanded {
		restoreViewport(ctx, l.tab, original, l.logger)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		l.logger.Debug("Images still loading after lazy load window", zap.Duration("window", l.window))
	}

	l.logger.Debug("Lazy load triggering completed",
		zap.Int("scrolls", scrolls),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// scrollPass scrolls down in 110% viewport steps until the bottom or the
// window elapses, then returns to the top.
func (l *LazyLoadTrigger) scrollPass(ctx context.Context) (int, error) {
	scrolls := 0
	_, err := Poll(ctx, l.window, lazyScrollInterval, func(ctx context.Context, _ time.Duration) (bool, error) {
		var atBottom bool
		if err := l.tab.Evaluate(ctx, scrollStepJS, &atBottom); err != nil {
			return false, nil
		}
		scrolls++
		return atBottom, nil
	})
	if ctx.Err() != nil {
		return scrolls, ctx.Err()
	}
	if err != nil {
		l.logger.Debug("Scroll pass did not reach the bottom", zap.Int("scrolls", scrolls))
	}

	if err := l.tab.Evaluate(ctx, scrollTopJS, nil); err != nil {
		l.logger.Debug("Scroll to top failed", zap.Error(err))
	}
	return scrolls, sleepCtx(ctx, lazyScrollInterval)
}

// expandViewportForBlocking enlarges the viewport to the document height
// for a moment so content-blocking rules that act on rendered elements
// see the whole page, then restores it.
func expandViewportForBlocking(ctx context.Context, tab Tab, logger *zap.Logger) error {
	original := tab.Viewport()
	var height int
	if err := tab.Evaluate(ctx, scrollHeightJS, &height); err != nil {
		logger.Debug("Could not read document height", zap.Error(err))
		return nil
	}
	if height <= original.Height {
		return nil
	}
	if height > maxExpandedViewport {
		height = maxExpandedViewport
	}
	if err := tab.SetViewport(ctx, original.Width, height); err != nil {
		logger.Debug("Viewport expansion failed", zap.Error(err))
		return nil
	}
	err := sleepCtx(ctx, viewportSettleDelay)
	restoreViewport(ctx, tab, original, logger)
	return err
}

// restoreViewport puts the original size back. A tab may outlive the job,
// so this still runs when ctx is already done.
func restoreViewport(ctx context.Context, tab Tab, original Viewport, logger *zap.Logger) {
	restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), viewportRestoreTimeout)
	defer cancel()
	if err := tab.SetViewport(restoreCtx, original.Width, original.Height); err != nil {
		logger.Debug("Viewport restore failed", zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
