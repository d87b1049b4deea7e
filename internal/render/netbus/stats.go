package netbus

import (
	"sort"
	"sync"

	"github.com/elidickinson/shot-power-scraper/internal/common/urlutil"
)

const maxDomainStats = 100

// Status classes used in Summary.StatusCounts
const (
	StatusClass2xx = "2xx"
	StatusClass3xx = "3xx"
	StatusClass4xx = "4xx"
	StatusClass5xx = "5xx"
)

// DomainStats aggregates traffic for one hostname
type DomainStats struct {
	Requests int   `json:"requests"`
	Bytes    int64 `json:"bytes"`
	Failed   int   `json:"failed"`
	Blocked  int   `json:"blocked"`
}

// Summary is the traffic of one capture
type Summary struct {
	TotalRequests      int                     `json:"total_requests"`
	TotalBytes         int64                   `json:"total_bytes"`
	SameOriginRequests int                     `json:"same_origin_requests"`
	SameOriginBytes    int64                   `json:"same_origin_bytes"`
	ThirdPartyRequests int                     `json:"third_party_requests"`
	ThirdPartyBytes    int64                   `json:"third_party_bytes"`
	ThirdPartyDomains  int                     `json:"third_party_domains"`
	BlockedCount       int                     `json:"blocked_count"`
	FailedCount        int                     `json:"failed_count"`
	BytesByType        map[string]int64        `json:"bytes_by_type,omitempty"`
	RequestsByType     map[string]int64        `json:"requests_by_type,omitempty"`
	StatusCounts       map[string]int64        `json:"status_counts,omitempty"`
	Domains            map[string]*DomainStats `json:"domains,omitempty"`
}

type pendingResponse struct {
	resourceType string
	status       int
	host         string
}

// Stats counts requests, bytes and failures per resource type and
// per domain from a tab's event stream. Requests are attributed when
// they finish; failures of blocked requests are not counted twice.
type Stats struct {
	mu       sync.Mutex
	baseHost string
	pending  map[string]*pendingResponse
	blocked  map[string]struct{}
	summary  Summary
	thirdPty map[string]struct{}
	domains  map[string]*domainEntry
	sub      *Subscription
}

type domainEntry struct {
	DomainStats
	sameOrigin bool
}

// NewStats creates a collector for a capture of pageURL
func NewStats(pageURL string) *Stats {
	return &Stats{
		baseHost: urlutil.ExtractHost(pageURL),
		pending:  make(map[string]*pendingResponse),
		blocked:  make(map[string]struct{}),
		thirdPty: make(map[string]struct{}),
		domains:  make(map[string]*domainEntry),
		summary: Summary{
			BytesByType:    make(map[string]int64),
			RequestsByType: make(map[string]int64),
			StatusCounts:   make(map[string]int64),
		},
	}
}

// Attach subscribes to bus
func (s *Stats) Attach(bus *Bus) {
	s.sub = bus.Subscribe(s.Handle, ResponseReceived, LoadingFinished, LoadingFailed, RequestBlocked)
}

// Detach stops collecting
func (s *Stats) Detach() {
	if s.sub != nil {
		s.sub.Close()
	}
}

// Handle folds one event into the counters
func (s *Stats) Handle(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case ResponseReceived:
		s.pending[ev.RequestID] = &pendingResponse{
			resourceType: ev.ResourceType,
			status:       ev.Status(),
			host:         urlutil.ExtractHost(ev.URL),
		}
	case LoadingFinished:
		s.finish(ev.RequestID, ev.EncodedDataLength)
	case LoadingFailed:
		s.fail(ev.RequestID)
	case RequestBlocked:
		s.summary.BlockedCount++
		s.blocked[ev.RequestID] = struct{}{}
		host := urlutil.ExtractHost(ev.URL)
		if d := s.domain(host); d != nil {
			d.Blocked++
		}
	}
}

func (s *Stats) finish(id string, bytes int64) {
	resp, ok := s.pending[id]
	if !ok {
		return
	}
	delete(s.pending, id)

	sum := &s.summary
	sum.TotalRequests++
	sum.TotalBytes += bytes

	resourceType := resp.resourceType
	if resourceType == "" {
		resourceType = ResourceOther
	}
	sum.BytesByType[resourceType] += bytes
	sum.RequestsByType[resourceType]++
	if class := classifyStatus(resp.status); class != "" {
		sum.StatusCounts[class]++
	}

	if urlutil.IsSameOrigin(s.baseHost, resp.host) {
		sum.SameOriginRequests++
		sum.SameOriginBytes += bytes
	} else {
		sum.ThirdPartyRequests++
		sum.ThirdPartyBytes += bytes
		if hostname := urlutil.ExtractHostname(resp.host); hostname != "" {
			s.thirdPty[hostname] = struct{}{}
		}
	}

	if d := s.domain(resp.host); d != nil {
		d.Requests++
		d.Bytes += bytes
	}
}

func (s *Stats) fail(id string) {
	resp, ok := s.pending[id]
	delete(s.pending, id)
	if _, wasBlocked := s.blocked[id]; wasBlocked {
		return
	}
	s.summary.FailedCount++
	if ok {
		if d := s.domain(resp.host); d != nil {
			d.Failed++
		}
	}
}

func (s *Stats) domain(host string) *domainEntry {
	hostname := urlutil.ExtractHostname(host)
	if hostname == "" {
		return nil
	}
	d, ok := s.domains[hostname]
	if !ok {
		d = &domainEntry{sameOrigin: urlutil.IsSameOrigin(s.baseHost, host)}
		s.domains[hostname] = d
	}
	return d
}

// Summary returns a copy of the counters. Per-domain entries are capped
// at the busiest domains; the page's own domain is always kept.
func (s *Stats) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.summary
	out.ThirdPartyDomains = len(s.thirdPty)
	out.BytesByType = copyCounts(s.summary.BytesByType)
	out.RequestsByType = copyCounts(s.summary.RequestsByType)
	out.StatusCounts = copyCounts(s.summary.StatusCounts)

	if len(s.domains) > 0 {
		out.Domains = make(map[string]*DomainStats)
		for _, name := range s.topDomains() {
			ds := s.domains[name].DomainStats
			out.Domains[name] = &ds
		}
	}
	return out
}

func (s *Stats) topDomains() []string {
	names := make([]string, 0, len(s.domains))
	for name := range s.domains {
		names = append(names, name)
	}
	if len(names) <= maxDomainStats {
		return names
	}

	sort.Slice(names, func(i, j int) bool {
		a, b := s.domains[names[i]], s.domains[names[j]]
		if a.Requests != b.Requests {
			return a.Requests > b.Requests
		}
		return names[i] < names[j]
	})

	top := names[:maxDomainStats]
	for _, name := range top {
		if s.domains[name].sameOrigin {
			return top
		}
	}
	for _, name := range names[maxDomainStats:] {
		if s.domains[name].sameOrigin {
			top[maxDomainStats-1] = name
			break
		}
	}
	return top
}

func copyCounts(in map[string]int64) map[string]int64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func classifyStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return StatusClass2xx
	case code >= 300 && code < 400:
		return StatusClass3xx
	case code >= 400 && code < 500:
		return StatusClass4xx
	case code >= 500 && code < 600:
		return StatusClass5xx
	default:
		return ""
	}
}
