// Package netbus carries a tab's network lifecycle events to independent
// consumers. Each consumer subscribes for the kinds it cares about and
// closes its subscription when done.
package netbus

import "time"

// Kind identifies a network lifecycle event
type Kind int

const (
	RequestStarted Kind = iota
	ResponseReceived
	LoadingFinished
	LoadingFailed
	// RequestBlocked is published when the tab's blocklist aborts a
	// request; ErrorText carries the reason. Not part of the per-id order.
	RequestBlocked
	// DOMContentLoaded and PageLoaded are main frame milestones. Only
	// Timestamp is set.
	DOMContentLoaded
	PageLoaded
)

func (k Kind) String() string {
	switch k {
	case RequestStarted:
		return "RequestStarted"
	case ResponseReceived:
		return "ResponseReceived"
	case LoadingFinished:
		return "LoadingFinished"
	case LoadingFailed:
		return "LoadingFailed"
	case RequestBlocked:
		return "RequestBlocked"
	case DOMContentLoaded:
		return "DOMContentLoaded"
	case PageLoaded:
		return "PageLoaded"
	default:
		return "Unknown"
	}
}

// Resource types as reported by the browser
const (
	ResourceDocument = "Document"
	ResourceOther    = "Other"
)

// Timing mirrors the browser's per-response timing record. Offsets are
// milliseconds relative to the request start; -1 means not applicable.
type Timing struct {
	DNSStart          float64
	DNSEnd            float64
	ConnectStart      float64
	ConnectEnd        float64
	SSLStart          float64
	SSLEnd            float64
	SendStart         float64
	SendEnd           float64
	ReceiveHeadersEnd float64
}

// ResponseInfo describes a response, either the one delivered with
// ResponseReceived or the redirect response that ended a previous hop.
type ResponseInfo struct {
	Status          int
	StatusText      string
	Headers         map[string]string
	MimeType        string
	Protocol        string
	RemoteIPAddress string
	ConnectionID    string
	Timing          *Timing
}

// Event is one network lifecycle event. Fields not meaningful for a kind
// are left zero.
type Event struct {
	Kind      Kind
	RequestID string // correlation id
	FrameID   string
	LoaderID  string

	URL          string
	Method       string
	Headers      map[string]string
	PostData     string
	Initiator    string
	ResourceType string

	// ResponseReceived
	Response *ResponseInfo

	// RequestStarted that continues a redirect chain under the same id
	RedirectResponse *ResponseInfo

	// LoadingFinished / LoadingFailed
	EncodedDataLength int64
	ErrorText         string
	Canceled          bool

	// Monotonic browser timestamp in seconds and, for RequestStarted,
	// the wall clock time the request was issued.
	Timestamp float64
	WallTime  time.Time
}

// Body is a fetched response body
type Body struct {
	Text   string
	Base64 bool
}

// IsDocument reports whether the event concerns a document load
func (e Event) IsDocument() bool {
	return e.ResourceType == ResourceDocument
}

// Status returns the response status, 0 when the event carries no response
func (e Event) Status() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.Status
}
