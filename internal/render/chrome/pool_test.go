package chrome

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/capture"
)

type fakeMember struct {
	id         int
	alive      atomic.Bool
	due        atomic.Bool
	restartErr error
	restarts   atomic.Int32
	uses       atomic.Int32
	terminated atomic.Bool
	status     atomic.Int32
}

func newFakeMember(id int) *fakeMember {
	m := &fakeMember{id: id}
	m.alive.Store(true)
	return m
}

func (m *fakeMember) NewTab(context.Context, capture.TabOptions) (capture.Tab, error) {
	return nil, errors.New("not implemented")
}
func (m *fakeMember) Version() string     { return "HeadlessChrome/120.0.0.0" }
func (m *fakeMember) ID() int             { return m.id }
func (m *fakeMember) IsAlive() bool       { return m.alive.Load() }
func (m *fakeMember) ShouldRestart() bool { return m.due.Load() }
func (m *fakeMember) Restart() error {
	m.restarts.Add(1)
	if m.restartErr != nil {
		return m.restartErr
	}
	m.alive.Store(true)
	m.due.Store(false)
	return nil
}
func (m *fakeMember) Terminate() error   { m.terminated.Store(true); return nil }
func (m *fakeMember) MarkUsed()          { m.uses.Add(1) }
func (m *fakeMember) SetStatus(s Status) { m.status.Store(int32(s)) }

func testPool(t *testing.T, size string) (*Pool, []*fakeMember) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PoolSize = size
	cfg.ShutdownTimeout = time.Second

	var members []*fakeMember
	pool, err := newPool(cfg, zap.NewNop(), func(id int) (Member, error) {
		m := newFakeMember(id)
		members = append(members, m)
		return m, nil
	})
	require.NoError(t, err)
	return pool, members
}

func TestPool_AcquireRelease(t *testing.T) {
	pool, members := testPool(t, "2")
	ctx := context.Background()

	a, err := pool.Acquire(ctx, "req-1")
	require.NoError(t, err)
	b, err := pool.Acquire(ctx, "req-2")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	stats := pool.Stats()
	assert.Equal(t, 2, stats.TotalInstances)
	assert.Equal(t, 2, stats.ActiveInstances)
	assert.Zero(t, stats.AvailableInstances)
	assert.Equal(t, int32(StatusCapturing), members[a.ID()].status.Load())

	pool.Release(a)
	pool.Release(b)

	stats = pool.Stats()
	assert.Zero(t, stats.ActiveInstances)
	assert.Equal(t, 2, stats.AvailableInstances)
	assert.Equal(t, int64(2), stats.TotalCaptures)
	assert.Equal(t, int32(1), members[0].uses.Load())
	assert.Equal(t, int32(StatusIdle), members[0].status.Load())
}

func TestPool_AcquireBlocksUntilRelease(t *testing.T) {
	pool, _ := testPool(t, "1")
	first, err := pool.Acquire(context.Background(), "a")
	require.NoError(t, err)

	got := make(chan Member, 1)
	go func() {
		m, err := pool.Acquire(context.Background(), "b")
		if err == nil {
			got <- m
		}
	}()

	select {
	case <-got:
		t.Fatal("second acquire should wait")
	case <-time.After(50 * time.Millisecond):
	}

	pool.Release(first)
	select {
	case m := <-got:
		assert.Equal(t, first.ID(), m.ID())
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed")
	}
}

func TestPool_AcquireHonorsContext(t *testing.T) {
	pool, _ := testPool(t, "1")
	_, err := pool.Acquire(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx, "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_RestartsDeadAndDueInstances(t *testing.T) {
	pool, members := testPool(t, "1")
	members[0].alive.Store(false)

	m, err := pool.Acquire(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int32(1), members[0].restarts.Load())
	pool.Release(m)

	members[0].due.Store(true)
	m, err = pool.Acquire(context.Background(), "b")
	require.NoError(t, err)
	pool.Release(m)

	assert.Equal(t, int32(2), members[0].restarts.Load())
	assert.Equal(t, int64(2), pool.Stats().TotalRestarts)
}

func TestPool_FailedRestartOfDeadInstance(t *testing.T) {
	pool, members := testPool(t, "1")
	members[0].alive.Store(false)
	members[0].restartErr = ErrRestartFailed

	_, err := pool.Acquire(context.Background(), "a")
	assert.ErrorIs(t, err, ErrInstanceDead)

	// the slot goes back to the queue
	stats := pool.Stats()
	assert.Equal(t, 1, stats.AvailableInstances)
	assert.Zero(t, stats.ActiveInstances)
}

func TestPool_FailedPolicyRestartStillServes(t *testing.T) {
	pool, members := testPool(t, "1")
	members[0].due.Store(true)
	members[0].restartErr = ErrRestartFailed

	m, err := pool.Acquire(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 0, m.ID())
	assert.Zero(t, pool.Stats().TotalRestarts)
}

func TestPool_OnChange(t *testing.T) {
	pool, _ := testPool(t, "1")
	var mu sync.Mutex
	var active []int
	pool.OnChange(func(s PoolStats) {
		mu.Lock()
		active = append(active, s.ActiveInstances)
		mu.Unlock()
	})

	m, err := pool.Acquire(context.Background(), "a")
	require.NoError(t, err)
	pool.Release(m)

	assert.Equal(t, []int{1, 0}, active)
}

func TestPool_Shutdown(t *testing.T) {
	pool, members := testPool(t, "2")
	m, err := pool.Acquire(context.Background(), "a")
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		pool.Release(m)
	}()
	require.NoError(t, pool.Shutdown())

	for _, fm := range members {
		assert.True(t, fm.terminated.Load())
	}
	_, err = pool.Acquire(context.Background(), "b")
	assert.ErrorIs(t, err, ErrPoolShutdown)
}

func TestNewPool_LaunchFailureCleansUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PoolSize = "3"

	var launched []*fakeMember
	_, err := newPool(cfg, nil, func(id int) (Member, error) {
		if id == 2 {
			return nil, errors.New("no browser binary")
		}
		m := newFakeMember(id)
		launched = append(launched, m)
		return m, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to launch browser 2")
	for _, m := range launched {
		assert.True(t, m.terminated.Load())
	}
}

func TestNewPool_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PoolSize = "zero"
	_, err := newPool(cfg, nil, func(int) (Member, error) { return newFakeMember(0), nil })
	assert.Error(t, err)
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusIdle, "idle"},
		{StatusCapturing, "capturing"},
		{StatusRestarting, "restarting"},
		{StatusDead, "dead"},
		{Status(999), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.String())
		})
	}
}
