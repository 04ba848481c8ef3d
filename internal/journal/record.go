package journal

import (
	"time"

	"github.com/pageinfo/pageinfo/internal/capture"
)

// Record is one journal line describing a finished capture
type Record struct {
	CreatedAt  time.Time `json:"created_at"`
	CaptureID  string    `json:"capture_id"`
	URL        string    `json:"url"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Source     string    `json:"source,omitempty"` // cli or service

	Network *NetworkSummary `json:"network,omitempty"`
}

// NetworkSummary is the slice of the network report worth keeping per capture
type NetworkSummary struct {
	TotalRequests      int            `json:"total_requests"`
	TotalSize          int64          `json:"total_size"`
	LoadTimeMs         int64          `json:"load_time_ms"`
	FailedRequests     int            `json:"failed_requests"`
	SameOriginRequests int            `json:"same_origin_requests"`
	ThirdPartyRequests int            `json:"third_party_requests"`
	ThirdPartyDomains  int            `json:"third_party_domains"`
	RequestsByType     map[string]int `json:"requests_by_type,omitempty"`
	StatusCounts       map[string]int `json:"status_counts,omitempty"`
}

// NewRecord builds a record from a capture result. res may be nil when the capture failed.
func NewRecord(captureID, pageURL, source string, res *capture.Result, duration time.Duration, err error) *Record {
	rec := &Record{
		CreatedAt:  time.Now().UTC(),
		CaptureID:  captureID,
		URL:        pageURL,
		Outcome:    capture.Outcome(err),
		DurationMs: duration.Milliseconds(),
		Source:     source,
	}
	if err != nil {
		rec.Error = err.Error()
	}

	if res != nil && res.Report != nil {
		r := res.Report
		rec.Network = &NetworkSummary{
			TotalRequests:      r.TotalRequests,
			TotalSize:          r.TotalSize,
			LoadTimeMs:         r.LoadTimeMs,
			FailedRequests:     len(r.FailedRequests),
			SameOriginRequests: r.SameOriginRequests,
			ThirdPartyRequests: r.ThirdPartyRequests,
			ThirdPartyDomains:  r.ThirdPartyDomains,
			RequestsByType:     r.RequestsByType,
			StatusCounts:       r.StatusCounts,
		}
	}
	return rec
}
