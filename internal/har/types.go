package har

// HAR 1.2 constants
const (
	harVersion     = "1.2"
	creatorName    = "pageinfo"
	creatorVersion = "1.0"
)

// HAR is the root container for HTTP Archive format
type HAR struct {
	Log      Log       `json:"log"`
	Metadata *Metadata `json:"_metadata,omitempty"`
}

// Log contains the main HAR data
type Log struct {
	Version string   `json:"version"`
	Creator Creator  `json:"creator"`
	Browser *Browser `json:"browser,omitempty"`
	Pages   []Page   `json:"pages,omitempty"`
	Entries []Entry  `json:"entries"`
	Comment string   `json:"comment,omitempty"`
}

type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Browser struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Page struct {
	StartedDateTime string      `json:"startedDateTime"`
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	PageTimings     PageTimings `json:"pageTimings"`
}

type PageTimings struct {
	OnContentLoad *float64 `json:"onContentLoad,omitempty"`
	OnLoad        *float64 `json:"onLoad,omitempty"`
}

// Entry represents a single HTTP request/response pair
type Entry struct {
	StartedDateTime string   `json:"startedDateTime"`
	Time            float64  `json:"time"`
	Request         Request  `json:"request"`
	Response        Response `json:"response"`
	Cache           Cache    `json:"cache"`
	Timings         Timings  `json:"timings"`
	PageRef         string   `json:"pageref,omitempty"`
	Comment         string   `json:"comment,omitempty"`

	// Chrome DevTools extensions
	ResourceType string `json:"_resourceType,omitempty"`
	ResourceID   string `json:"_resourceId,omitempty"`
}

type Request struct {
	Method      string        `json:"method"`
	URL         string        `json:"url"`
	HTTPVersion string        `json:"httpVersion"`
	Cookies     []Cookie      `json:"cookies"`
	Headers     []Header      `json:"headers"`
	QueryString []QueryString `json:"queryString"`
	HeadersSize int64         `json:"headersSize"`
	BodySize    int64         `json:"bodySize"`
}

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

type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type QueryString struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Content describes the response body. The body itself is never captured.
type Content struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

type Cache struct{}

// Timings in milliseconds; -1 marks a phase that does not apply
type Timings struct {
	Blocked float64 `json:"blocked,omitempty"`
	DNS     float64 `json:"dns,omitempty"`
	Connect float64 `json:"connect,omitempty"`
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

// Metadata carries capture details that HAR 1.2 has no place for
type Metadata struct {
	CaptureID      string          `json:"captureId,omitempty"`
	FailedRequests []FailedRequest `json:"failedRequests,omitempty"`
	Summary        *Summary        `json:"summary,omitempty"`
}

// FailedRequest describes a resource that never completed
type FailedRequest struct {
	ResourceID   string `json:"resourceId"`
	URL          string `json:"url,omitempty"`
	Error        string `json:"error"`
	Canceled     bool   `json:"canceled,omitempty"`
	ResourceType string `json:"resourceType"`
}

// Summary mirrors the headline numbers of the network report
type Summary struct {
	TotalRequests      int            `json:"totalRequests"`
	TotalSize          int64          `json:"totalSize"`
	LoadTimeMs         int64          `json:"loadTimeMs"`
	RequestsByType     map[string]int `json:"requestsByType,omitempty"`
	ThirdPartyRequests int            `json:"thirdPartyRequests"`
}
