package capture

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	challengePollInterval = 300 * time.Millisecond
	challengeMaxWait      = 8 * time.Second
	// challengeMinElapsed debounces a challenge that flickers away and back
	challengeMinElapsed = time.Second
)

const challengeDetectJS = `(() => {
	return document.title === 'Just a moment...' ||
		!!window._cf_chl_opt ||
		!!document.querySelector('script[src*="/cdn-cgi/challenge-platform/"]') ||
		(!!document.querySelector('meta[http-equiv="refresh"]') && document.title.includes('Just a moment'));
})()`

// ChallengeDetector recognises anti-bot interstitials and waits them out
type ChallengeDetector struct {
	tab        Tab
	logger     *zap.Logger
	interval   time.Duration
	maxWait    time.Duration
	minElapsed time.Duration
}

// NewChallengeDetector uses the standard 300ms / 8s / 1s windows
func NewChallengeDetector(tab Tab, logger *zap.Logger) *ChallengeDetector {
	return &ChallengeDetector{
		tab:        tab,
		logger:     logger,
		interval:   challengePollInterval,
		maxWait:    challengeMaxWait,
		minElapsed: challengeMinElapsed,
	}
}

// Detect reports whether the page currently shows a challenge.
// Evaluation errors count as no challenge.
func (d *ChallengeDetector) Detect(ctx context.Context) bool {
	var detected bool
	if err := d.tab.Evaluate(ctx, challengeDetectJS, &detected); err != nil {
		d.logger.Debug("Challenge detection failed", zap.Error(err))
		return false
	}
	return detected
}

// Bypass polls until the challenge has been absent with at least
// minElapsed gone by. It returns ChallengeTimeoutError when the window
// closes first; callers treat that as a warning.
func (d *ChallengeDetector) Bypass(ctx context.Context) (time.Duration, error) {
	checks := 0
	elapsed, err := Poll(ctx, d.maxWait, d.interval, func(ctx context.Context, elapsed time.Duration) (bool, error) {
		checks++
		present := d.Detect(ctx)
		if checks%10 == 0 {
			d.logger.Debug("Challenge check",
				zap.Int("check", checks),
				zap.Bool("challenge_detected", present),
				zap.Duration("elapsed", elapsed))
		}
		return !present && elapsed >= d.minElapsed, nil
	})
	if err != nil {
		if _, ok := err.(errPollTimeout); ok {
			return elapsed, &ChallengeTimeoutError{Waited: elapsed}
		}
		return elapsed, err
	}
	return elapsed, nil
}
