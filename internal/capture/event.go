package capture

// Kind identifies one of the four observable network occurrences.
type Kind uint8

const (
	// KindRequest is Network.requestWillBeSent
	KindRequest Kind = iota + 1
	// KindResponse is Network.responseReceived
	KindResponse
	// KindFinished is Network.loadingFinished
	KindFinished
	// KindFailed is Network.loadingFailed
	KindFailed
)

// Kinds lists every event category, in the order collectors are started.
var Kinds = []Kind{KindRequest, KindResponse, KindFinished, KindFailed}

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindFinished:
		return "finished"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one normalized network notification.
// Exactly one payload pointer is set and it always matches Kind; Finished carries none.
// Events are never mutated after construction.
type Event struct {
	Kind       Kind
	ResourceID string
	Timestamp  float64 // seconds since the protocol's monotonic epoch

	Request  *RequestPayload
	Response *ResponsePayload
	Failure  *FailurePayload
}

// RequestPayload holds the fields of a request-will-be-sent notification
type RequestPayload struct {
	URL          string
	Method       string
	ResourceType string // empty when the protocol did not declare one
	Headers      map[string]string
	// RedirectResponse is the response that ended the previous hop of the same resource id
	RedirectResponse *ResponsePayload
}

// ResponsePayload holds the fields of a response-received notification
type ResponsePayload struct {
	URL               string
	Status            int
	StatusText        string
	MimeType          string
	Protocol          string
	EncodedDataLength int64 // 0 when absent
	Headers           map[string]string
}

// FailurePayload holds the fields of a loading-failed notification
type FailurePayload struct {
	ErrorText    string
	Canceled     bool
	ResourceType string
}

// NewRequestEvent creates a Request record
func NewRequestEvent(resourceID string, timestamp float64, payload RequestPayload) Event {
	return Event{Kind: KindRequest, ResourceID: resourceID, Timestamp: timestamp, Request: &payload}
}

// NewResponseEvent creates a Response record. Negative lengths are clamped to zero.
func NewResponseEvent(resourceID string, timestamp float64, payload ResponsePayload) Event {
	if payload.EncodedDataLength < 0 {
		payload.EncodedDataLength = 0
	}
	return Event{Kind: KindResponse, ResourceID: resourceID, Timestamp: timestamp, Response: &payload}
}

// NewFinishedEvent creates a Finished record
func NewFinishedEvent(resourceID string, timestamp float64) Event {
	return Event{Kind: KindFinished, ResourceID: resourceID, Timestamp: timestamp}
}

// NewFailedEvent creates a Failed record
func NewFailedEvent(resourceID string, timestamp float64, payload FailurePayload) Event {
	return Event{Kind: KindFailed, ResourceID: resourceID, Timestamp: timestamp, Failure: &payload}
}
