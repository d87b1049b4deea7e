package capture

import (
	"context"
	"time"
)

// DefaultPollInterval is the fixed interval between condition checks
const DefaultPollInterval = 100 * time.Millisecond

// errPollTimeout is returned by Poll when the window elapses
type errPollTimeout struct {
	elapsed time.Duration
}

func (e errPollTimeout) Error() string { return "poll timeout after " + e.elapsed.String() }

// Poll calls check every interval until it reports true or timeout elapses.
// The first check runs immediately. It returns the time taken on success;
// on timeout the error is errPollTimeout. A check error stops polling.
func Poll(ctx context.Context, timeout, interval time.Duration, check func(ctx context.Context, elapsed time.Duration) (bool, error)) (time.Duration, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	start := time.Now()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := check(ctx, time.Since(start))
		if err != nil {
			return time.Since(start), err
		}
		if ok {
			return time.Since(start), nil
		}

		select {
		case <-ctx.Done():
			return time.Since(start), ctx.Err()
		case <-deadline.C:
			return time.Since(start), errPollTimeout{elapsed: time.Since(start)}
		case <-ticker.C:
		}
	}
}

// ConditionWaiter waits for JavaScript predicates to become truthy
type ConditionWaiter struct {
	tab      Tab
	interval time.Duration
}

// NewConditionWaiter polls tab at DefaultPollInterval
func NewConditionWaiter(tab Tab) *ConditionWaiter {
	return &ConditionWaiter{tab: tab, interval: DefaultPollInterval}
}

// Wait evaluates predicate until it is truthy. Evaluation errors count as
// false; pages throw transiently while they are still loading.
func (w *ConditionWaiter) Wait(ctx context.Context, predicate string, timeout time.Duration) (time.Duration, error) {
	elapsed, err := Poll(ctx, timeout, w.interval, func(ctx context.Context, _ time.Duration) (bool, error) {
		var result any
		if err := w.tab.Evaluate(ctx, predicate, &result); err != nil {
			return false, nil
		}
		return truthy(result), nil
	})
	if err != nil {
		if _, ok := err.(errPollTimeout); ok {
			return elapsed, &ConditionTimeoutError{Predicate: predicate, Elapsed: elapsed}
		}
		return elapsed, err
	}
	return elapsed, nil
}

// truthy mirrors JavaScript truthiness for JSON decoded values
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}
