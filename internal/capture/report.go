package capture

// UnknownResourceType is reported for requests whose resource type was not declared
const UnknownResourceType = "unknown"

// Status code classes used in Report.StatusCounts
const (
	StatusClass2xx = "2xx"
	StatusClass3xx = "3xx"
	StatusClass4xx = "4xx"
	StatusClass5xx = "5xx"
)

// Report is the immutable result of analyzing one capture window.
type Report struct {
	TotalRequests  int             `json:"total_requests"`
	RequestsByType map[string]int  `json:"requests_by_type"`
	TotalSize      int64           `json:"total_size"` // bytes, sum of encoded lengths
	LoadTimeMs     int64           `json:"load_time_ms"`
	Requests       []RequestEntry  `json:"requests"`
	Responses      []ResponseEntry `json:"responses"`
	FailedRequests []string        `json:"failed_requests"`

	StatusCounts       map[string]int         `json:"status_counts"`
	SameOriginRequests int                    `json:"same_origin_requests"`
	ThirdPartyRequests int                    `json:"third_party_requests"`
	ThirdPartyDomains  int                    `json:"third_party_domains"`
	Domains            map[string]DomainStats `json:"domains"`

	// Resources correlates every observed resource id with its request, response and outcome
	Resources []Resource `json:"resources"`
}

// RequestEntry is a normalized request record
type RequestEntry struct {
	ResourceID   string            `json:"resource_id"`
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	ResourceType string            `json:"resource_type"`
	Headers      map[string]string `json:"headers,omitempty"`
	Timestamp    float64           `json:"timestamp"`
}

// ResponseEntry is a normalized response record.
// ResourceType comes from the request with the same resource id, "unknown" for orphans.
type ResponseEntry struct {
	ResourceID        string            `json:"resource_id"`
	URL               string            `json:"url"`
	Status            int               `json:"status"`
	StatusText        string            `json:"status_text,omitempty"`
	MimeType          string            `json:"mime_type"`
	Protocol          string            `json:"protocol,omitempty"`
	EncodedDataLength int64             `json:"encoded_data_length"`
	ResourceType      string            `json:"resource_type"`
	Headers           map[string]string `json:"headers,omitempty"`
	Timestamp         float64           `json:"timestamp"`
}

// Resource is the correlated view of one resource id
type Resource struct {
	ResourceID   string         `json:"resource_id"`
	ResourceType string         `json:"resource_type"`
	Request      *RequestEntry  `json:"request,omitempty"`
	Response     *ResponseEntry `json:"response,omitempty"`
	Failed       bool           `json:"failed,omitempty"`
	Error        string         `json:"error,omitempty"`
	Canceled     bool           `json:"canceled,omitempty"`
	Finished     bool           `json:"finished"`
	Redirects    int            `json:"redirects,omitempty"`
	// Hops are the earlier redirect hops of this resource id, oldest first.
	// Request holds the final hop.
	Hops     []Hop   `json:"hops,omitempty"`
	FailedAt float64 `json:"failed_at,omitempty"`
}

// Hop is one redirected request and, when the protocol reported it, the redirect response
type Hop struct {
	Request  RequestEntry   `json:"request"`
	Response *ResponseEntry `json:"response,omitempty"`
}

// DomainStats aggregates requests per hostname
type DomainStats struct {
	Requests   int   `json:"requests"`
	Bytes      int64 `json:"bytes"`
	Failed     int   `json:"failed"`
	SameOrigin bool  `json:"same_origin"`
}
