package har

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/elidickinson/shot-power-scraper/internal/render/netbus"
)

// HARBuilder assembles the HAR document from finished entry data
type HARBuilder struct {
	har    *HAR
	pageID string
}

// NewHARBuilder creates a builder with a single page for pageURL
func NewHARBuilder(pageURL, captureID, browserVersion string) *HARBuilder {
	pageID := "page_1"
	if captureID != "" {
		pageID = "page_" + captureID
	}

	var browser *Browser
	if browserVersion != "" {
		browser = &Browser{Name: "Chrome", Version: browserVersion}
	}

	return &HARBuilder{
		har: &HAR{
			Log: Log{
				Version: harVersion,
				Creator: Creator{Name: creatorName, Version: creatorVersion},
				Browser: browser,
				Pages: []Page{{
					StartedDateTime: formatDateTime(time.Now()),
					ID:              pageID,
					Title:           pageURL,
					PageTimings:     PageTimings{OnContentLoad: unknownTiming, OnLoad: unknownTiming},
				}},
				Entries: []Entry{},
			},
		},
		pageID: pageID,
	}
}

// SetPageTitle replaces the default title (the page URL) when title is set
func (b *HARBuilder) SetPageTitle(title string) {
	if title != "" {
		b.har.Log.Pages[0].Title = title
	}
}

// SetPageStart sets when the page load began
func (b *HARBuilder) SetPageStart(t time.Time) {
	b.har.Log.Pages[0].StartedDateTime = formatDateTime(t)
}

// SetPageTimings sets page milestones in milliseconds since page start
func (b *HARBuilder) SetPageTimings(onContentLoad, onLoad float64) {
	b.har.Log.Pages[0].PageTimings = PageTimings{OnContentLoad: onContentLoad, OnLoad: onLoad}
}

// SetMetadata attaches capture details
func (b *HARBuilder) SetMetadata(m Metadata) {
	b.har.Metadata = &m
}

// GetPageID returns the page reference ID
func (b *HARBuilder) GetPageID() string {
	return b.pageID
}

// Finalize sorts entries by start time and returns the document
func (b *HARBuilder) Finalize() *HAR {
	sort.SliceStable(b.har.Log.Entries, func(i, j int) bool {
		return b.har.Log.Entries[i].StartedDateTime < b.har.Log.Entries[j].StartedDateTime
	})
	return b.har
}

// ToJSON marshals the document
func (b *HARBuilder) ToJSON() ([]byte, error) {
	return json.Marshal(b.Finalize())
}

// EntryData is everything known about one answered request
type EntryData struct {
	RequestID       string
	URL             string
	Method          string
	RequestHeaders  map[string]string
	PostData        string
	StartTime       time.Time
	ResourceType    string
	RedirectURL     string
	Status          int
	StatusText      string
	ResponseHeaders map[string]string
	MimeType        string
	Protocol        string
	ServerIPAddress string
	Connection      string
	Timing          *netbus.Timing
	Duration        float64 // ms from request start to close, -1 if it never closed
	BodySize        int64
	Body            *netbus.Body
	Error           string
}

// AddEntry appends one request/response exchange
func (b *HARBuilder) AddEntry(data EntryData) {
	timings := convertTiming(data.Timing, data.Duration)
	httpVersion := protocolToHTTPVersion(data.Protocol)

	total := data.Duration
	if total < 0 {
		total = calculateTotalTime(timings)
	}

	entry := Entry{
		PageRef:         b.pageID,
		StartedDateTime: formatDateTime(data.StartTime),
		Time:            total,
		Request: Request{
			Method:      data.Method,
			URL:         data.URL,
			HTTPVersion: httpVersion,
			Cookies:     requestCookies(data.RequestHeaders),
			Headers:     sortedHeaders(data.RequestHeaders),
			QueryString: parseQueryString(data.URL),
			HeadersSize: -1,
			BodySize:    int64(len(data.PostData)),
		},
		Response: Response{
			Status:      data.Status,
			StatusText:  data.StatusText,
			HTTPVersion: httpVersion,
			Cookies:     responseCookies(data.ResponseHeaders),
			Headers:     sortedHeaders(data.ResponseHeaders),
			Content: Content{
				Size:     data.BodySize,
				MimeType: data.MimeType,
			},
			RedirectURL: data.RedirectURL,
			HeadersSize: -1,
			BodySize:    data.BodySize,
		},
		Cache:           Cache{},
		Timings:         timings,
		ServerIPAddress: strings.Trim(data.ServerIPAddress, "[]"),
		Connection:      data.Connection,
		ResourceType:    data.ResourceType,
		Error:           data.Error,
	}

	if data.PostData != "" {
		mimeType := headerValue(data.RequestHeaders, "Content-Type")
		if mimeType == "" {
			mimeType = "application/x-www-form-urlencoded"
		}
		entry.Request.PostData = &PostData{MimeType: mimeType, Text: data.PostData}
	}

	if data.Body != nil {
		entry.Response.Content.Text = data.Body.Text
		if data.Body.Base64 {
			entry.Response.Content.Encoding = "base64"
		}
	}

	b.har.Log.Entries = append(b.har.Log.Entries, entry)
}

// convertTiming maps the browser timing record onto HAR phases; anything
// the browser did not report stays at -1.
func convertTiming(td *netbus.Timing, duration float64) Timings {
	t := Timings{
		Blocked: unknownTiming,
		DNS:     unknownTiming,
		Connect: unknownTiming,
		Send:    unknownTiming,
		Wait:    unknownTiming,
		Receive: unknownTiming,
		SSL:     unknownTiming,
	}
	if td == nil {
		return t
	}

	// First network activity: DNS, else connect if DNS was cached, else send
	firstActivity := td.SendStart
	if td.DNSStart >= 0 {
		firstActivity = td.DNSStart
	} else if td.ConnectStart >= 0 {
		firstActivity = td.ConnectStart
	}
	if firstActivity > 0 {
		t.Blocked = firstActivity
	}

	if td.DNSStart >= 0 && td.DNSEnd >= td.DNSStart {
		t.DNS = td.DNSEnd - td.DNSStart
	}
	if td.ConnectStart >= 0 && td.ConnectEnd >= td.ConnectStart {
		t.Connect = td.ConnectEnd - td.ConnectStart
	}
	if td.SSLStart >= 0 && td.SSLEnd >= td.SSLStart {
		t.SSL = td.SSLEnd - td.SSLStart
	}
	if td.SendStart >= 0 && td.SendEnd >= td.SendStart {
		t.Send = td.SendEnd - td.SendStart
	}
	if td.SendEnd >= 0 && td.ReceiveHeadersEnd >= td.SendEnd {
		t.Wait = td.ReceiveHeadersEnd - td.SendEnd
	}
	if duration >= 0 && td.ReceiveHeadersEnd >= 0 {
		t.Receive = duration - td.ReceiveHeadersEnd
		if t.Receive < 0 {
			t.Receive = 0
		}
	}
	return t
}

// calculateTotalTime sums the known phases. SSL is already part of connect.
func calculateTotalTime(t Timings) float64 {
	total := 0.0
	for _, v := range []float64{t.Blocked, t.DNS, t.Connect, t.Send, t.Wait, t.Receive} {
		if v > 0 {
			total += v
		}
	}
	return total
}

// formatDateTime formats a time as ISO 8601 with milliseconds
func formatDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// protocolToHTTPVersion converts the browser protocol string to HAR form
func protocolToHTTPVersion(protocol string) string {
	switch strings.ToLower(protocol) {
	case "h2":
		return "HTTP/2"
	case "h3", "h3-29":
		return "HTTP/3"
	case "http/1.0":
		return "HTTP/1.0"
	default:
		return "HTTP/1.1"
	}
}

// parseQueryString extracts query parameters sorted by name
func parseQueryString(rawURL string) []QueryString {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.RawQuery == "" {
		return []QueryString{}
	}

	values := parsed.Query()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]QueryString, 0, len(values))
	for _, key := range keys {
		for _, val := range values[key] {
			result = append(result, QueryString{Name: key, Value: val})
		}
	}
	return result
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func requestCookies(headers map[string]string) []Cookie {
	cookies := []Cookie{}
	line := headerValue(headers, "Cookie")
	if line == "" {
		return cookies
	}
	parsed, err := http.ParseCookie(line)
	if err != nil {
		return cookies
	}
	for _, c := range parsed {
		cookies = append(cookies, Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies
}

func responseCookies(headers map[string]string) []Cookie {
	cookies := []Cookie{}
	// Multiple Set-Cookie headers arrive newline separated
	for _, line := range strings.Split(headerValue(headers, "Set-Cookie"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		c, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		cookies = append(cookies, Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies
}
