package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

func TestNavigation_HappyPathReachesReady(t *testing.T) {
	tab := newFakeTab()
	job := testJob(t, types.NewCaptureRequestBuilder("https://example.com/"))

	res, err := NewNavigationController(job, tab).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateReady, res.State)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "https://example.com/", res.FinalURL)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, []State{
		StateInit, StateNavigating, StateAwaitLoad, StateCheckResponse,
		StateChallengeCheck, StateNavErrorCheck, StateClearAnnoyances, StateReady,
	}, res.Trace)
	assert.Equal(t, 0, tab.bus.Len(), "response tracker must unsubscribe")
}

func TestNavigation_HTTPErrorPolicies(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*types.CaptureRequestBuilder)
		wantState State
		check     func(t *testing.T, res *NavigationResult, err error)
	}{
		{
			name:      "fail returns status error",
			configure: func(b *types.CaptureRequestBuilder) { b.Fail(true) },
			wantState: StateFailed,
			check: func(t *testing.T, _ *NavigationResult, err error) {
				var statusErr *HttpStatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, "404 error for http://host/404page", err.Error())
				assert.True(t, IsFatal(err))
			},
		},
		{
			name:      "skip returns skip error",
			configure: func(b *types.CaptureRequestBuilder) { b.Skip(true) },
			wantState: StateSkipped,
			check: func(t *testing.T, _ *NavigationResult, err error) {
				assert.True(t, IsSkip(err))
				assert.False(t, IsFatal(err))
				assert.Equal(t, "404 error for http://host/404page, skipping", err.Error())
			},
		},
		{
			name:      "warn continues",
			configure: func(*types.CaptureRequestBuilder) {},
			wantState: StateReady,
			check: func(t *testing.T, res *NavigationResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, 404, res.Status)
				require.Len(t, res.Warnings, 1)
				var statusErr *HttpStatusError
				assert.ErrorAs(t, res.Warnings[0], &statusErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tab := newFakeTab()
			tab.status = 404
			b := types.NewCaptureRequestBuilder("http://host/404page").Verbosity(false, true)
			tt.configure(b)

			res, err := NewNavigationController(testJob(t, b), tab).Run(context.Background())
			require.NotNil(t, res)
			assert.Equal(t, tt.wantState, res.State)
			tt.check(t, res, err)
			assert.Equal(t, 0, tab.bus.Len())
		})
	}
}

func TestNavigation_TransportFailure(t *testing.T) {
	t.Run("loading failed for document", func(t *testing.T) {
		tab := newFakeTab()
		tab.failDoc = "net::ERR_NAME_NOT_RESOLVED"
		job := testJob(t, types.NewCaptureRequestBuilder("https://nope.invalid/").Fail(true))

		res, err := NewNavigationController(job, tab).Run(context.Background())
		var transport *NavigationTransportError
		require.ErrorAs(t, err, &transport)
		assert.Equal(t, "Page failed to load: net::ERR_NAME_NOT_RESOLVED", err.Error())
		assert.Equal(t, StateFailed, res.State)
	})

	t.Run("navigate error with warn skips error page check", func(t *testing.T) {
		tab := newFakeTab()
		tab.navigateErr = &NavigationTransportError{URL: "https://nope.invalid/", Reason: "net::ERR_CONNECTION_REFUSED"}
		job := testJob(t, types.NewCaptureRequestBuilder("https://nope.invalid/").Verbosity(false, true))

		res, err := NewNavigationController(job, tab).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StateReady, res.State)
		assert.Len(t, res.Warnings, 1)
		assert.NotContains(t, res.Trace, StateNavErrorCheck)
		assert.NotContains(t, res.Trace, StateCheckResponse)
	})

	t.Run("protocol error is fatal", func(t *testing.T) {
		tab := newFakeTab()
		tab.navigateErr = errors.New("websocket closed")
		job := testJob(t, types.NewCaptureRequestBuilder("https://example.com/"))

		_, err := NewNavigationController(job, tab).Run(context.Background())
		var proto *ProtocolError
		require.ErrorAs(t, err, &proto)
		assert.Equal(t, "navigate", proto.Op)
	})
}

func TestNavigation_ChromeErrorPage(t *testing.T) {
	tab := newFakeTab()
	tab.eval = func(expr string) (any, bool, error) {
		if expr == navErrorStateJS {
			return map[string]string{"url": "chrome-error://chromewebdata/", "title": "", "body": ""}, true, nil
		}
		return nil, false, nil
	}
	job := testJob(t, types.NewCaptureRequestBuilder("https://example.com/").Skip(true))

	res, err := NewNavigationController(job, tab).Run(context.Background())
	require.True(t, IsSkip(err))
	assert.Equal(t, "Page failed to load: Chrome error page: chrome-error://chromewebdata/, skipping", err.Error())
	assert.Equal(t, StateSkipped, res.State)
}

func TestDetectNavError(t *testing.T) {
	tests := []struct {
		name   string
		state  navErrorState
		want   string
		failed bool
	}{
		{"normal page", navErrorState{URL: "https://example.com/", Title: "Example", Body: "hello"}, "", false},
		{"chrome error", navErrorState{URL: "chrome-error://chromewebdata/"}, "Chrome error page: chrome-error://chromewebdata/", true},
		{"dns failure page", navErrorState{URL: "https://example.com/", Title: "example.com", Body: "This site can't be reached"}, "DNS or network error", true},
		{"long body mentioning the phrase", navErrorState{URL: "https://example.com/", Title: "example.com",
			Body: "This site can't be reached " + string(make([]byte, 250))}, "", false},
		{"title differs from host", navErrorState{URL: "https://example.com/", Title: "Blog", Body: "This site can't be reached"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, failed := detectNavError(tt.state, "https://example.com/")
			assert.Equal(t, tt.failed, failed)
			assert.Equal(t, tt.want, reason)
		})
	}
}

func TestNavigation_WaitForCondition(t *testing.T) {
	t.Run("resolves once the predicate flips", func(t *testing.T) {
		tab := newFakeTab()
		var flipAt time.Time
		tab.eval = func(expr string) (any, bool, error) {
			if expr == "window.ready === true" {
				return !flipAt.IsZero() && time.Now().After(flipAt), true, nil
			}
			return nil, false, nil
		}
		job := testJob(t, types.NewCaptureRequestBuilder("https://example.com/").WaitFor("window.ready === true").ClearAnnoyances(false))

		flipAt = time.Now().Add(300 * time.Millisecond)
		res, err := NewNavigationController(job, tab).Run(context.Background())
		require.NoError(t, err)
		assert.Contains(t, res.Trace, StateAwaitCondition)
	})

	t.Run("timeout is fatal", func(t *testing.T) {
		tab := newFakeTab()
		tab.eval = func(expr string) (any, bool, error) {
			if expr == "false" {
				return false, true, nil
			}
			return nil, false, nil
		}
		job := testJob(t, types.NewCaptureRequestBuilder("https://example.com/").WaitFor("false").Timeout(250*time.Millisecond))

		res, err := NewNavigationController(job, tab).Run(context.Background())
		var timeout *ConditionTimeoutError
		require.ErrorAs(t, err, &timeout)
		assert.Equal(t, "Timeout waiting for condition: false", err.Error())
		assert.Equal(t, StateFailed, res.State)
	})
}

func TestNavigation_InlineScriptAndDelay(t *testing.T) {
	tab := newFakeTab()
	job := testJob(t, types.NewCaptureRequestBuilder("https://example.com/").
		JavaScript("document.body.style.background = 'red'").
		Wait(50*time.Millisecond))

	start := time.Now()
	res, err := NewNavigationController(job, tab).Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 1, tab.evaluatedCount("document.body.style.background = 'red'"))
	assert.Contains(t, res.Trace, StateFixedDelay)
	assert.Contains(t, res.Trace, StateExecInlineScript)
}

func TestNavigation_InlineScriptErrorIsFatal(t *testing.T) {
	tab := newFakeTab()
	tab.eval = func(expr string) (any, bool, error) {
		if expr == "throw new Error('boom')" {
			return nil, true, errors.New("Uncaught Error: boom")
		}
		return nil, false, nil
	}
	job := testJob(t, types.NewCaptureRequestBuilder("https://example.com/").JavaScript("throw new Error('boom')"))

	_, err := NewNavigationController(job, tab).Run(context.Background())
	var proto *ProtocolError
	require.ErrorAs(t, err, &proto)
	assert.True(t, IsFatal(err))
}

func TestNavigation_LazyLoadWinsOverBlockingExpansion(t *testing.T) {
	tab := newFakeTab()
	job := testJob(t, types.NewCaptureRequestBuilder("https://example.com/").
		TriggerLazyLoad(true).
		Blocking(true, true).
		ClearAnnoyances(false))

	res, err := NewNavigationController(job, tab).Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.Trace, StateLazyLoad)
	assert.NotContains(t, res.Trace, StateExpandViewport)
}

func TestNavigation_BlockingExpandsViewport(t *testing.T) {
	tab := newFakeTab()
	job := testJob(t, types.NewCaptureRequestBuilder("https://example.com/").
		Blocking(true, false).
		ClearAnnoyances(false))

	res, err := NewNavigationController(job, tab).Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.Trace, StateExpandViewport)
	require.Len(t, tab.viewports, 2)
	assert.Equal(t, 3000, tab.viewports[0].Height)
	assert.Equal(t, types.DefaultViewportHeight, tab.viewports[1].Height)
}

func TestNavigation_SkipFlags(t *testing.T) {
	tab := newFakeTab()
	job := testJob(t, types.NewCaptureRequestBuilder("https://example.com/").
		SkipWaitForLoad(true).
		SkipChallengeCheck(true).
		ClearAnnoyances(false))

	res, err := NewNavigationController(job, tab).Run(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, res.Trace, StateAwaitLoad)
	assert.NotContains(t, res.Trace, StateChallengeCheck)
	assert.Equal(t, 0, tab.evaluatedCount(readyStateJS))
	assert.Equal(t, 0, tab.evaluatedCount(challengeDetectJS))
}

func TestNavigation_NonHTTPSkipsResponseCheck(t *testing.T) {
	tab := newFakeTab()
	job := testJob(t, types.NewCaptureRequestBuilder("file:///tmp/page.html").ClearAnnoyances(false))

	res, err := NewNavigationController(job, tab).Run(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, res.Trace, StateCheckResponse)
	assert.Equal(t, 0, res.Status)
}

func TestNavigation_ContextCancelled(t *testing.T) {
	tab := newFakeTab()
	job := testJob(t, types.NewCaptureRequestBuilder("https://example.com/").Wait(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := NewNavigationController(job, tab).Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 0, tab.bus.Len())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "AwaitCondition", StateAwaitCondition.String())
	assert.Equal(t, "Unknown", State(99).String())
	assert.True(t, StateSkipped.Terminal())
	assert.False(t, StateLazyLoad.Terminal())
}
