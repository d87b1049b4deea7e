package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/elidickinson/shot-power-scraper/internal/render/netbus"
)

// MainResponse is the resolved main document response
type MainResponse struct {
	Status    int
	URL       string
	RequestID string
}

// ResponseTracker resolves the main document status for one navigation.
// Create it (which subscribes) before navigating and Close it afterwards.
type ResponseTracker struct {
	sub  *netbus.Subscription
	done chan struct{}

	mu        sync.Mutex
	resolved  bool
	result    MainResponse
	err       error
	documents map[string]string // document request id -> url
}

// NewResponseTracker subscribes to bus immediately
func NewResponseTracker(bus *netbus.Bus) *ResponseTracker {
	t := &ResponseTracker{
		done:      make(chan struct{}),
		documents: make(map[string]string),
	}
	t.sub = bus.Subscribe(t.handle, netbus.RequestStarted, netbus.ResponseReceived, netbus.LoadingFailed)
	return t
}

func (t *ResponseTracker) handle(ev netbus.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved {
		return
	}

	switch ev.Kind {
	case netbus.RequestStarted:
		if ev.IsDocument() {
			t.documents[ev.RequestID] = ev.URL
		}
	case netbus.ResponseReceived:
		if !ev.IsDocument() || ev.Response == nil {
			return
		}
		url := ev.URL
		if url == "" {
			url = t.documents[ev.RequestID]
		}
		t.resolveLocked(MainResponse{Status: ev.Response.Status, URL: url, RequestID: ev.RequestID}, nil)
	case netbus.LoadingFailed:
		url, isDocument := t.documents[ev.RequestID]
		if !isDocument && !ev.IsDocument() {
			return
		}
		if url == "" {
			url = ev.URL
		}
		reason := ev.ErrorText
		if reason == "" {
			reason = "network loading failed"
		}
		t.resolveLocked(MainResponse{}, &NavigationTransportError{
			URL:    url,
			Reason: reason,
			Err:    errors.New(reason),
		})
	}
}

func (t *ResponseTracker) resolveLocked(res MainResponse, err error) {
	t.resolved = true
	t.result = res
	t.err = err
	close(t.done)
}

// Await returns the first document response, a NavigationTransportError if
// the document failed to load, or a ConditionTimeoutError when neither
// happened within timeout. The outcome never changes once resolved.
func (t *ResponseTracker) Await(ctx context.Context, timeout time.Duration) (MainResponse, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	start := time.Now()

	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.result, t.err
	case <-timer.C:
		return MainResponse{}, &ConditionTimeoutError{Predicate: "main document response", Elapsed: time.Since(start)}
	case <-ctx.Done():
		return MainResponse{}, ctx.Err()
	}
}

// Close unsubscribes from the bus
func (t *ResponseTracker) Close() {
	t.sub.Close()
}
