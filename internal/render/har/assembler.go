package har

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/elidickinson/shot-power-scraper/internal/render/netbus"
)

// BodyFetcher retrieves a finished response body from the browser
type BodyFetcher interface {
	ResponseBody(ctx context.Context, requestID string) (netbus.Body, error)
}

// PageInfo describes the page the archive was recorded for
type PageInfo struct {
	Title          string
	BrowserVersion string
}

// Assembler rebuilds an HTTP archive from a tab's network event stream.
// State is kept in three maps keyed by request id: started requests,
// received responses and closing (finished/failed) records.
type Assembler struct {
	mu            sync.Mutex
	requests      map[string]*requestData
	responses     map[string]*netbus.ResponseInfo
	closings      map[string]*closingData
	order         []string // request ids in first-seen order
	pendingBodies []string
	bodies        map[string]netbus.Body
	blocked       []BlockedRequest
	hops          map[string]int // redirect hops archived per request id

	// Latest main frame milestones, monotonic seconds
	domContentLoaded float64
	loaded           float64

	includeBodies bool
	pageURL       string
	captureID     string
	sub           *netbus.Subscription
}

type requestData struct {
	URL          string
	Method       string
	Headers      map[string]string
	PostData     string
	Initiator    string
	ResourceType string
	Timestamp    float64
	WallTime     time.Time
	RedirectURL  string
}

type closingData struct {
	Timestamp         float64
	EncodedDataLength int64
	Failed            bool
	ErrorText         string
	Canceled          bool
}

// NewAssembler creates an assembler for one capture
func NewAssembler(pageURL, captureID string, includeBodies bool) *Assembler {
	return &Assembler{
		requests:      make(map[string]*requestData),
		responses:     make(map[string]*netbus.ResponseInfo),
		closings:      make(map[string]*closingData),
		bodies:        make(map[string]netbus.Body),
		hops:          make(map[string]int),
		includeBodies: includeBodies,
		pageURL:       pageURL,
		captureID:     captureID,
	}
}

// Attach subscribes the assembler to bus. Attach before navigating so the
// document request is not missed.
func (a *Assembler) Attach(bus *netbus.Bus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sub != nil {
		a.sub.Close()
	}
	a.sub = bus.Subscribe(a.Handle)
}

// Detach stops receiving events. Collected data is kept for Finalize.
func (a *Assembler) Detach() {
	a.mu.Lock()
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

// Handle applies one network event
func (a *Assembler) Handle(ev netbus.Event) {
	switch ev.Kind {
	case netbus.RequestStarted:
		a.onRequestStarted(ev)
	case netbus.ResponseReceived:
		a.onResponseReceived(ev)
	case netbus.LoadingFinished:
		a.onLoadingFinished(ev)
	case netbus.LoadingFailed:
		a.onLoadingFailed(ev)
	case netbus.RequestBlocked:
		a.OnRequestBlocked(ev.URL, ev.ErrorText, ev.ResourceType)
	case netbus.DOMContentLoaded, netbus.PageLoaded:
		a.onPageMilestone(ev)
	}
}

func (a *Assembler) onPageMilestone(ev netbus.Event) {
	if ev.Timestamp <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if ev.Kind == netbus.DOMContentLoaded {
		a.domContentLoaded = ev.Timestamp
	} else {
		a.loaded = ev.Timestamp
	}
}

func (a *Assembler) onRequestStarted(ev netbus.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, ok := a.requests[ev.RequestID]; ok && ev.RedirectResponse != nil {
		// The id continues a redirect chain; archive the finished hop under
		// a derived id so each hop becomes its own entry.
		a.hops[ev.RequestID]++
		hopID := ev.RequestID + ".redirect." + strconv.Itoa(a.hops[ev.RequestID])
		prev.RedirectURL = ev.URL
		a.requests[hopID] = prev
		a.responses[hopID] = ev.RedirectResponse
		a.closings[hopID] = &closingData{Timestamp: ev.Timestamp}
		a.order = append(a.order, hopID)
		delete(a.responses, ev.RequestID)
		delete(a.closings, ev.RequestID)
	} else if !ok {
		a.order = append(a.order, ev.RequestID)
	}

	wall := ev.WallTime
	if wall.IsZero() {
		wall = time.Now().UTC()
	}
	a.requests[ev.RequestID] = &requestData{
		URL:          ev.URL,
		Method:       ev.Method,
		Headers:      ev.Headers,
		PostData:     ev.PostData,
		Initiator:    ev.Initiator,
		ResourceType: ev.ResourceType,
		Timestamp:    ev.Timestamp,
		WallTime:     wall,
	}
}

func (a *Assembler) onResponseReceived(ev netbus.Event) {
	if ev.Response == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.requests[ev.RequestID]; !ok {
		return
	}
	a.responses[ev.RequestID] = ev.Response
}

func (a *Assembler) onLoadingFinished(ev netbus.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.requests[ev.RequestID]; !ok {
		return
	}
	a.closings[ev.RequestID] = &closingData{
		Timestamp:         ev.Timestamp,
		EncodedDataLength: ev.EncodedDataLength,
	}
	if _, hasResponse := a.responses[ev.RequestID]; a.includeBodies && hasResponse {
		a.pendingBodies = append(a.pendingBodies, ev.RequestID)
	}
}

func (a *Assembler) onLoadingFailed(ev netbus.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.requests[ev.RequestID]; !ok {
		return
	}
	a.closings[ev.RequestID] = &closingData{
		Timestamp: ev.Timestamp,
		Failed:    true,
		ErrorText: ev.ErrorText,
		Canceled:  ev.Canceled,
	}
}

// OnRequestBlocked records a request aborted by the blocklist
func (a *Assembler) OnRequestBlocked(url, reason, resourceType string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocked = append(a.blocked, BlockedRequest{URL: url, Reason: reason, ResourceType: resourceType})
}

// Finalize fetches queued response bodies (best effort) and builds the
// archive. Requests that never received a response are left out. The
// assembler is detached from its bus.
func (a *Assembler) Finalize(ctx context.Context, fetcher BodyFetcher, page PageInfo) *HAR {
	a.Detach()

	a.mu.Lock()
	pending := append([]string(nil), a.pendingBodies...)
	a.pendingBodies = nil
	a.mu.Unlock()

	fetched, missing := 0, 0
	if fetcher != nil {
		for _, id := range pending {
			if ctx.Err() != nil {
				missing += len(pending) - fetched - missing
				break
			}
			body, err := fetcher.ResponseBody(ctx, id)
			if err != nil {
				// Evicted or discarded bodies are normal; the entry just has no text
				missing++
				continue
			}
			fetched++
			a.mu.Lock()
			a.bodies[id] = body
			a.mu.Unlock()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	builder := NewHARBuilder(a.pageURL, a.captureID, page.BrowserVersion)
	builder.SetPageTitle(page.Title)

	dropped := 0
	var first *requestData
	for _, id := range a.order {
		req := a.requests[id]
		resp, ok := a.responses[id]
		if req == nil || !ok {
			dropped++
			continue
		}
		if first == nil || req.WallTime.Before(first.WallTime) {
			first = req
		}
		builder.AddEntry(a.entryData(id, req, resp))
	}
	if first != nil {
		builder.SetPageStart(first.WallTime)
		builder.SetPageTimings(
			sinceStart(first.Timestamp, a.domContentLoaded),
			sinceStart(first.Timestamp, a.loaded))
	}

	builder.SetMetadata(Metadata{
		BlockedRequests: append([]BlockedRequest(nil), a.blocked...),
		DroppedRequests: dropped,
		BodiesFetched:   fetched,
		BodiesMissing:   missing,
		CaptureID:       a.captureID,
	})
	return builder.Finalize()
}

func (a *Assembler) entryData(id string, req *requestData, resp *netbus.ResponseInfo) EntryData {
	data := EntryData{
		RequestID:       id,
		URL:             req.URL,
		Method:          req.Method,
		RequestHeaders:  req.Headers,
		PostData:        req.PostData,
		StartTime:       req.WallTime,
		ResourceType:    req.ResourceType,
		RedirectURL:     req.RedirectURL,
		Status:          resp.Status,
		StatusText:      resp.StatusText,
		ResponseHeaders: resp.Headers,
		MimeType:        resp.MimeType,
		Protocol:        resp.Protocol,
		ServerIPAddress: resp.RemoteIPAddress,
		Connection:      resp.ConnectionID,
		Timing:          resp.Timing,
		Duration:        -1,
	}

	if closing, ok := a.closings[id]; ok {
		if closing.Timestamp > 0 && req.Timestamp > 0 && closing.Timestamp >= req.Timestamp {
			data.Duration = (closing.Timestamp - req.Timestamp) * 1000
		}
		data.BodySize = closing.EncodedDataLength
		if closing.Failed {
			data.Error = closing.ErrorText
			if closing.Canceled && data.Error == "" {
				data.Error = "canceled"
			}
		}
	}
	if body, ok := a.bodies[id]; ok {
		data.Body = &body
	}
	return data
}

// sinceStart converts a monotonic milestone to milliseconds after start,
// or unknownTiming when either end is missing or out of order
func sinceStart(start, milestone float64) float64 {
	if start <= 0 || milestone < start {
		return unknownTiming
	}
	return (milestone - start) * 1000
}

// sortedHeaders converts a header map to HAR headers ordered by name
func sortedHeaders(h map[string]string) []Header {
	headers := make([]Header, 0, len(h))
	for name, value := range h {
		headers = append(headers, Header{Name: name, Value: value})
	}
	sort.Slice(headers, func(i, j int) bool {
		return headers[i].Name < headers[j].Name
	})
	return headers
}
