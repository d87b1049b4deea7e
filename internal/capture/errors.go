package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

// ConfigError is returned when a capture request is malformed
type ConfigError = types.ConfigError

// NavigationTransportError reports that the page could not be reached at
// all (DNS failure, refused connection, browser error page).
type NavigationTransportError struct {
	URL    string
	Reason string
	Err    error
}

func (e *NavigationTransportError) Error() string {
	return fmt.Sprintf("Page failed to load: %s", e.Reason)
}

func (e *NavigationTransportError) Unwrap() error { return e.Err }

// HttpStatusError reports a 4xx/5xx status for the main document
type HttpStatusError struct {
	Status int
	URL    string
}

func (e *HttpStatusError) Error() string {
	return fmt.Sprintf("%d error for %s", e.Status, e.URL)
}

// ChallengeTimeoutError reports that an anti-bot interstitial was still
// present when the bypass window closed. It is never fatal.
type ChallengeTimeoutError struct {
	Waited time.Duration
}

func (e *ChallengeTimeoutError) Error() string {
	return fmt.Sprintf("challenge still present after %s", e.Waited.Round(time.Millisecond))
}

// ConditionTimeoutError reports that a wait-for expression never became true
type ConditionTimeoutError struct {
	Predicate string
	Elapsed   time.Duration
}

func (e *ConditionTimeoutError) Error() string {
	return fmt.Sprintf("Timeout waiting for condition: %s", e.Predicate)
}

// SelectorNotFoundError reports that a required selector matched nothing
type SelectorNotFoundError struct {
	Selector string
}

func (e *SelectorNotFoundError) Error() string {
	return fmt.Sprintf("Could not find element matching selector: %s", e.Selector)
}

// ProtocolError wraps a failed remote call to the browser
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ScriptError is a JavaScript exception raised by a user expression
type ScriptError struct {
	Err error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("javascript error: %v", e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// SkipError aborts a single capture without reporting a failure. Callers
// print Message and move on (exit status 0 for the CLI).
type SkipError struct {
	Cause error
}

func (e *SkipError) Error() string {
	return e.Cause.Error() + ", skipping"
}

func (e *SkipError) Unwrap() error { return e.Cause }

// IsSkip reports whether err asks for the capture to be skipped silently
func IsSkip(err error) bool {
	var skip *SkipError
	return errors.As(err, &skip)
}

// IsFatal reports whether err must abort the capture. Challenge timeouts
// are always tolerated; skips are not failures.
func IsFatal(err error) bool {
	if err == nil || IsSkip(err) {
		return false
	}
	var challenge *ChallengeTimeoutError
	return !errors.As(err, &challenge)
}

// protocolErr wraps err as a ProtocolError unless it already carries a
// more specific capture error.
func protocolErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		selector  *SelectorNotFoundError
		transport *NavigationTransportError
		condition *ConditionTimeoutError
		proto     *ProtocolError
	)
	if errors.As(err, &selector) || errors.As(err, &transport) ||
		errors.As(err, &condition) || errors.As(err, &proto) {
		return err
	}
	return &ProtocolError{Op: op, Err: err}
}

// Error types reported in logs, metrics and API responses
const (
	ErrorTypeConfig           = "config"
	ErrorTypeTransport        = "transport"
	ErrorTypeHTTPStatus       = "http_status"
	ErrorTypeConditionTimeout = "condition_timeout"
	ErrorTypeSelectorNotFound = "selector_not_found"
	ErrorTypeTimeout          = "timeout"
	ErrorTypeProtocol         = "protocol"
	ErrorTypeScript           = "script"
	ErrorTypeInternal         = "internal"
)

// ErrorType classifies err; skips are classified by their cause
func ErrorType(err error) string {
	var (
		cfg       *ConfigError
		transport *NavigationTransportError
		status    *HttpStatusError
		condition *ConditionTimeoutError
		selector  *SelectorNotFoundError
		proto     *ProtocolError
		script    *ScriptError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfg):
		return ErrorTypeConfig
	case errors.As(err, &transport):
		return ErrorTypeTransport
	case errors.As(err, &status):
		return ErrorTypeHTTPStatus
	case errors.As(err, &condition):
		return ErrorTypeConditionTimeout
	case errors.As(err, &selector):
		return ErrorTypeSelectorNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.As(err, &script):
		return ErrorTypeScript
	case errors.As(err, &proto):
		return ErrorTypeProtocol
	default:
		return ErrorTypeInternal
	}
}
