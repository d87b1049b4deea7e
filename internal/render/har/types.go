package har

// HAR 1.2 constants
const (
	harVersion     = "1.2"
	creatorName    = "shot-power-scraper"
	creatorVersion = "1.0"

	// unknownTiming marks a timing phase the browser did not report
	unknownTiming = -1.0
)

// HAR is the root of an HTTP Archive document
type HAR struct {
	Log      Log       `json:"log"`
	Metadata *Metadata `json:"_metadata,omitempty"`
}

// Log contains the archive body
type Log struct {
	Version string   `json:"version"`
	Creator Creator  `json:"creator"`
	Browser *Browser `json:"browser,omitempty"`
	Pages   []Page   `json:"pages"`
	Entries []Entry  `json:"entries"`
	Comment string   `json:"comment,omitempty"`
}

// Creator names the tool that produced the archive
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Browser names the browser the archive was recorded in
type Browser struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Page is one top level page load
type Page struct {
	StartedDateTime string      `json:"startedDateTime"`
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	PageTimings     PageTimings `json:"pageTimings"`
}

// PageTimings holds page level milestones in ms since page start, -1 when unknown
type PageTimings struct {
	OnContentLoad float64 `json:"onContentLoad"`
	OnLoad        float64 `json:"onLoad"`
}

// Entry is one request/response exchange
type Entry struct {
	PageRef         string   `json:"pageref,omitempty"`
	StartedDateTime string   `json:"startedDateTime"`
	Time            float64  `json:"time"`
	Request         Request  `json:"request"`
	Response        Response `json:"response"`
	Cache           Cache    `json:"cache"`
	Timings         Timings  `json:"timings"`
	ServerIPAddress string   `json:"serverIPAddress,omitempty"`
	Connection      string   `json:"connection,omitempty"`

	// Non-standard fields, prefixed per the HAR custom field convention
	ResourceType string `json:"_resourceType,omitempty"`
	Error        string `json:"_error,omitempty"`
}

// Request contains HTTP request details
type Request struct {
	Method      string        `json:"method"`
	URL         string        `json:"url"`
	HTTPVersion string        `json:"httpVersion"`
	Cookies     []Cookie      `json:"cookies"`
	Headers     []Header      `json:"headers"`
	QueryString []QueryString `json:"queryString"`
	PostData    *PostData     `json:"postData,omitempty"`
	HeadersSize int64         `json:"headersSize"`
	BodySize    int64         `json:"bodySize"`
}

// Response contains HTTP response details
type Response struct {
	Status      int      `json:"status"`
	StatusText  string   `json:"statusText"`
	HTTPVersion string   `json:"httpVersion"`
	Cookies     []Cookie `json:"cookies"`
	Headers     []Header `json:"headers"`
	Content     Content  `json:"content"`
	RedirectURL string   `json:"redirectURL"`
	HeadersSize int64    `json:"headersSize"`
	BodySize    int64    `json:"bodySize"`
}

// Cookie is an HTTP cookie
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Header is one HTTP header
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// QueryString is one URL query parameter
type QueryString struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PostData is a request body
type PostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// Content describes a response body
type Content struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

// Cache is left empty; the browser does not expose cache state per request
type Cache struct{}

// Timings is the per-phase breakdown in milliseconds. Every phase is
// always present; -1 means the phase does not apply or was not reported.
type Timings struct {
	Blocked float64 `json:"blocked"`
	DNS     float64 `json:"dns"`
	Connect float64 `json:"connect"`
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
	SSL     float64 `json:"ssl"`
}

// Metadata carries capture details outside the HAR schema
type Metadata struct {
	BlockedRequests []BlockedRequest `json:"blockedRequests,omitempty"`
	DroppedRequests int              `json:"droppedRequests,omitempty"` // started but never answered
	BodiesFetched   int              `json:"bodiesFetched,omitempty"`
	BodiesMissing   int              `json:"bodiesMissing,omitempty"`
	CaptureID       string           `json:"captureId,omitempty"`
}

// BlockedRequest is a request the blocklist aborted
type BlockedRequest struct {
	URL          string `json:"url"`
	Reason       string `json:"reason"`
	ResourceType string `json:"resourceType"`
}
