package chrome

import "errors"

// Tab errors
var (
	ErrTabClosed     = errors.New("tab is closed")
	ErrExtractHTML   = errors.New("HTML extraction failed")
	ErrNoLayout      = errors.New("page has no layout")
	ErrNoElementRect = errors.New("element has no box")
)

// Browser and pool errors
var (
	ErrPoolShutdown  = errors.New("pool is shutting down")
	ErrInstanceDead  = errors.New("browser instance is dead")
	ErrRestartFailed = errors.New("browser restart failed")
)
