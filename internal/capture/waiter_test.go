package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionWaiter_FlipsAfter300ms(t *testing.T) {
	tab := newFakeTab()
	start := time.Now()
	tab.eval = func(expr string) (any, bool, error) {
		return time.Since(start) >= 300*time.Millisecond, true, nil
	}

	elapsed, err := NewConditionWaiter(tab).Wait(context.Background(), "window.done", 2*time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 450*time.Millisecond)
}

func TestConditionWaiter_ImmediateTrue(t *testing.T) {
	tab := newFakeTab()
	tab.eval = func(string) (any, bool, error) { return "yes", true, nil }

	elapsed, err := NewConditionWaiter(tab).Wait(context.Background(), "'yes'", time.Second)
	require.NoError(t, err)
	assert.Less(t, elapsed, 50*time.Millisecond)
	assert.Equal(t, 1, len(tab.evaluated))
}

func TestConditionWaiter_EvaluationErrorsCountAsFalse(t *testing.T) {
	tab := newFakeTab()
	calls := 0
	tab.eval = func(string) (any, bool, error) {
		calls++
		if calls < 3 {
			return nil, true, errors.New("Execution context was destroyed")
		}
		return true, true, nil
	}

	w := NewConditionWaiter(tab)
	w.interval = 10 * time.Millisecond
	_, err := w.Wait(context.Background(), "x", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestConditionWaiter_Timeout(t *testing.T) {
	tab := newFakeTab()
	tab.eval = func(string) (any, bool, error) { return 0, true, nil }

	w := NewConditionWaiter(tab)
	w.interval = 20 * time.Millisecond
	elapsed, err := w.Wait(context.Background(), "window.never", 100*time.Millisecond)
	var timeout *ConditionTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "window.never", timeout.Predicate)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestPoll_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := Poll(ctx, time.Second, 10*time.Millisecond, func(context.Context, time.Duration) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoll_CheckErrorStops(t *testing.T) {
	boom := errors.New("boom")
	_, err := Poll(context.Background(), time.Second, 10*time.Millisecond, func(context.Context, time.Duration) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{0.0, false},
		{1.5, true},
		{"", false},
		{"x", true},
		{map[string]any{}, true},
		{[]any{}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truthy(tt.in), "%#v", tt.in)
	}
}
