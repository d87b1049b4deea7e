package capture

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// State is a step of the navigation state machine
type State int

const (
	StateInit State = iota
	StateNavigating
	StateAwaitLoad
	StateCheckResponse
	StateChallengeCheck
	StateChallengeBypass
	StateNavErrorCheck
	StateFixedDelay
	StateClearAnnoyances
	StateExecInlineScript
	StateAwaitCondition
	StateLazyLoad
	StateExpandViewport
	StateReady
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateNavigating:
		return "Navigating"
	case StateAwaitLoad:
		return "AwaitLoad"
	case StateCheckResponse:
		return "CheckResponse"
	case StateChallengeCheck:
		return "ChallengeCheck"
	case StateChallengeBypass:
		return "ChallengeBypass"
	case StateNavErrorCheck:
		return "NavErrorCheck"
	case StateFixedDelay:
		return "FixedDelay"
	case StateClearAnnoyances:
		return "ClearAnnoyances"
	case StateExecInlineScript:
		return "ExecInlineScript"
	case StateAwaitCondition:
		return "AwaitCondition"
	case StateLazyLoad:
		return "LazyLoad"
	case StateExpandViewport:
		return "ExpandViewport"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	case StateSkipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed || s == StateSkipped
}

// maxResponseGrace bounds how long CHECK_RESPONSE waits after load
const maxResponseGrace = 5 * time.Second

const readyStateJS = `document.readyState === 'complete'`

const navErrorStateJS = `(() => ({
	url: window.location.href,
	title: document.title || '',
	body: document.body ? document.body.innerText : ''
}))()`

// NavigationResult describes how a navigation ended
type NavigationResult struct {
	Status            int
	FinalURL          string
	State             State
	Trace             []State
	ChallengeDetected bool
	ChallengeBypassed bool
	Warnings          []error
}

// NavigationController drives one tab from blank to ready for capture
type NavigationController struct {
	job    *Job
	tab    Tab
	logger *zap.Logger
	result *NavigationResult

	transportFailed bool
}

// NewNavigationController binds a job to the tab it will navigate
func NewNavigationController(job *Job, tab Tab) *NavigationController {
	return &NavigationController{
		job:    job,
		tab:    tab,
		logger: job.Logger,
	}
}

func (c *NavigationController) enter(s State) {
	c.result.State = s
	c.result.Trace = append(c.result.Trace, s)
	c.logger.Debug("Navigation state", zap.String("state", s.String()))
}

// fail records a terminal state for err and returns it
func (c *NavigationController) fail(err error) (*NavigationResult, error) {
	if IsSkip(err) {
		c.enter(StateSkipped)
	} else {
		c.enter(StateFailed)
	}
	return c.result, err
}

func (c *NavigationController) warn(err error) {
	c.result.Warnings = append(c.result.Warnings, err)
	if !c.job.Request.Silent {
		c.logger.Warn("Navigation warning", zap.Error(err))
	}
}

// Run navigates and prepares the page. The returned result is never nil;
// its State is Ready on success, Skipped for a SkipError and Failed otherwise.
func (c *NavigationController) Run(ctx context.Context) (*NavigationResult, error) {
	req := c.job.Request
	c.result = &NavigationResult{}
	c.enter(StateInit)

	tracker := NewResponseTracker(c.tab.Events())
	defer tracker.Close()

	c.enter(StateNavigating)
	c.job.verbose("Navigating", zap.String("url", req.URL))
	if err := c.tab.Navigate(ctx, req.URL); err != nil {
		var transport *NavigationTransportError
		if !errors.As(err, &transport) {
			return c.fail(protocolErr("navigate", err))
		}
		c.transportFailed = true
		if perr := c.job.applyPolicy(err); perr != nil {
			return c.fail(perr)
		}
		c.result.Warnings = append(c.result.Warnings, err)
	}

	if !req.SkipWaitForLoad {
		c.enter(StateAwaitLoad)
		if err := c.awaitLoad(ctx); err != nil {
			return c.fail(err)
		}
	}

	if err := c.checkResponse(ctx, tracker); err != nil {
		return c.fail(err)
	}

	if !req.SkipChallengeCheck {
		if err := c.handleChallenge(ctx); err != nil {
			return c.fail(err)
		}
	}

	if !c.transportFailed {
		if err := c.checkNavError(ctx); err != nil {
			return c.fail(err)
		}
	}

	if req.Wait > 0 {
		c.enter(StateFixedDelay)
		c.job.verbose("Waiting", zap.Duration("wait", req.Wait))
		if err := sleepCtx(ctx, req.Wait); err != nil {
			return c.fail(err)
		}
	}

	if req.ClearAnnoyances {
		c.enter(StateClearAnnoyances)
		clicked, err := clearAnnoyances(ctx, c.tab, c.logger)
		if err != nil {
			return c.fail(err)
		}
		if clicked > 0 {
			c.job.verbose("Cleared annoyances", zap.Int("clicked", clicked))
		}
	}

	if req.JavaScript != "" {
		c.enter(StateExecInlineScript)
		if err := c.tab.Evaluate(ctx, req.JavaScript, nil); err != nil {
			return c.fail(protocolErr("execute javascript", err))
		}
	}

	if req.WaitFor != "" {
		c.enter(StateAwaitCondition)
		elapsed, err := NewConditionWaiter(c.tab).Wait(ctx, req.WaitFor, req.Timeout)
		if err != nil {
			return c.fail(err)
		}
		c.job.verbose("Condition met", zap.String("wait_for", req.WaitFor), zap.Duration("elapsed", elapsed))
	}

	switch {
	case req.TriggerLazyLoad:
		c.enter(StateLazyLoad)
		if err := NewLazyLoadTrigger(c.tab, c.logger).Trigger(ctx); err != nil {
			return c.fail(err)
		}
	case req.BlockingEnabled():
		c.enter(StateExpandViewport)
		if err := expandViewportForBlocking(ctx, c.tab, c.logger); err != nil {
			return c.fail(err)
		}
	}

	if loc, err := c.tab.Location(ctx); err == nil && loc != "" {
		c.result.FinalURL = loc
	}
	c.enter(StateReady)
	return c.result, nil
}

// awaitLoad polls readyState within the request timeout. Expiry is soft:
// slow pages are still captured as they are.
func (c *NavigationController) awaitLoad(ctx context.Context) error {
	_, err := Poll(ctx, c.job.Request.Timeout, DefaultPollInterval, func(ctx context.Context, _ time.Duration) (bool, error) {
		var complete bool
		if err := c.tab.Evaluate(ctx, readyStateJS, &complete); err != nil {
			return false, nil
		}
		return complete, nil
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		c.logger.Debug("Page load did not complete before timeout", zap.Duration("timeout", c.job.Request.Timeout))
	}
	return nil
}

func (c *NavigationController) checkResponse(ctx context.Context, tracker *ResponseTracker) error {
	if c.transportFailed || !isHTTPURL(c.job.Request.URL) {
		return nil
	}
	c.enter(StateCheckResponse)

	grace := c.job.Request.Timeout
	if grace <= 0 || grace > maxResponseGrace {
		grace = maxResponseGrace
	}
	resp, err := tracker.Await(ctx, grace)
	if err != nil {
		var (
			transport *NavigationTransportError
			timeout   *ConditionTimeoutError
		)
		switch {
		case errors.As(err, &transport):
			c.transportFailed = true
			if perr := c.job.applyPolicy(err); perr != nil {
				return perr
			}
			c.result.Warnings = append(c.result.Warnings, err)
			return nil
		case errors.As(err, &timeout):
			c.logger.Debug("No main document response observed", zap.Duration("waited", timeout.Elapsed))
			return nil
		default:
			return err
		}
	}

	c.result.Status = resp.Status
	c.result.FinalURL = resp.URL
	c.logger.Debug("Main document response", zap.Int("status", resp.Status), zap.String("response_url", resp.URL))

	if resp.Status >= 400 {
		statusErr := &HttpStatusError{Status: resp.Status, URL: c.job.Request.URL}
		if perr := c.job.applyPolicy(statusErr); perr != nil {
			return perr
		}
		c.result.Warnings = append(c.result.Warnings, statusErr)
	}
	return nil
}

func (c *NavigationController) handleChallenge(ctx context.Context) error {
	c.enter(StateChallengeCheck)
	detector := NewChallengeDetector(c.tab, c.logger)
	if !detector.Detect(ctx) {
		return nil
	}
	c.result.ChallengeDetected = true
	c.job.verbose("Challenge detected, waiting for it to clear")

	c.enter(StateChallengeBypass)
	elapsed, err := detector.Bypass(ctx)
	if err != nil {
		var timeout *ChallengeTimeoutError
		if errors.As(err, &timeout) {
			c.warn(err)
			return nil
		}
		return err
	}
	c.result.ChallengeBypassed = true
	c.job.verbose("Challenge cleared", zap.Duration("elapsed", elapsed))
	return nil
}

type navErrorState struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (c *NavigationController) checkNavError(ctx context.Context) error {
	c.enter(StateNavErrorCheck)
	var state navErrorState
	if err := c.tab.Evaluate(ctx, navErrorStateJS, &state); err != nil {
		c.logger.Debug("Navigation error check failed", zap.Error(err))
		return nil
	}
	reason, failed := detectNavError(state, c.job.Request.URL)
	if !failed {
		return nil
	}
	navErr := &NavigationTransportError{URL: state.URL, Reason: reason, Err: errors.New(reason)}
	if perr := c.job.applyPolicy(navErr); perr != nil {
		return perr
	}
	c.result.Warnings = append(c.result.Warnings, navErr)
	return nil
}

// detectNavError recognises the browser's own error pages
func detectNavError(p navErrorState, requested string) (string, bool) {
	if strings.HasPrefix(p.URL, "chrome-error://") {
		return "Chrome error page: " + p.URL, true
	}
	host := hostOf(p.URL)
	if host == "" {
		host = hostOf(requested)
	}
	if len(p.Body) < 200 && host != "" && p.Title == host &&
		strings.Contains(p.Body, "This site can't be reached") {
		return "DNS or network error", true
	}
	return "", false
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func isHTTPURL(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
