package har

import (
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pageinfo/pageinfo/internal/capture"
)

const pageID = "page_1"

// Options adds identity that the capture result does not carry
type Options struct {
	CaptureID      string
	BrowserVersion string // e.g. "Chrome/137.0.7151.55"; omitted when empty
}

// FromResult builds a HAR document from a finished capture.
// Every redirect hop and every resource with a request or response becomes an entry;
// failures are additionally listed in the metadata.
func FromResult(res *capture.Result, opts Options) *HAR {
	report := res.Report
	base := earliestTimestamp(report.Resources)
	started := res.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	onLoad := float64(report.LoadTimeMs)
	doc := &HAR{
		Log: Log{
			Version: harVersion,
			Creator: Creator{Name: creatorName, Version: creatorVersion},
			Browser: browserOf(opts.BrowserVersion),
			Pages: []Page{{
				StartedDateTime: formatDateTime(started),
				ID:              pageID,
				Title:           res.URL,
				PageTimings:     PageTimings{OnLoad: &onLoad},
			}},
			Entries: []Entry{},
		},
		Metadata: &Metadata{
			CaptureID: opts.CaptureID,
			Summary: &Summary{
				TotalRequests:      report.TotalRequests,
				TotalSize:          report.TotalSize,
				LoadTimeMs:         report.LoadTimeMs,
				RequestsByType:     report.RequestsByType,
				ThirdPartyRequests: report.ThirdPartyRequests,
			},
		},
	}

	for _, r := range report.Resources {
		if r.Failed {
			doc.Metadata.FailedRequests = append(doc.Metadata.FailedRequests, FailedRequest{
				ResourceID:   r.ResourceID,
				URL:          resourceURL(r),
				Error:        r.Error,
				Canceled:     r.Canceled,
				ResourceType: r.ResourceType,
			})
		}
		for _, hop := range r.Hops {
			doc.Log.Entries = append(doc.Log.Entries, newEntry(hopResource(r, hop), started, base))
		}
		if r.Request == nil && r.Response == nil {
			continue
		}
		doc.Log.Entries = append(doc.Log.Entries, newEntry(r, started, base))
	}

	// Entries must be chronological
	sort.SliceStable(doc.Log.Entries, func(i, j int) bool {
		return doc.Log.Entries[i].StartedDateTime < doc.Log.Entries[j].StartedDateTime
	})
	return doc
}

func newEntry(r capture.Resource, started time.Time, base float64) Entry {
	entry := Entry{
		Request: Request{
			Method:      "GET",
			Cookies:     []Cookie{},
			Headers:     []Header{},
			HeadersSize: -1,
		},
		Response: Response{
			Cookies:     []Cookie{},
			Headers:     []Header{},
			HTTPVersion: "HTTP/1.1",
			HeadersSize: -1,
		},
		PageRef:      pageID,
		ResourceType: r.ResourceType,
		ResourceID:   r.ResourceID,
	}

	var startTS float64
	if r.Request != nil {
		entry.Request.Method = r.Request.Method
		entry.Request.URL = r.Request.URL
		entry.Request.Headers = sortedHeaders(r.Request.Headers)
		startTS = r.Request.Timestamp
	}

	if resp := r.Response; resp != nil {
		if entry.Request.URL == "" {
			entry.Request.URL = resp.URL
			startTS = resp.Timestamp
		}
		httpVersion := protocolToHTTPVersion(resp.Protocol)
		entry.Request.HTTPVersion = httpVersion
		entry.Response.HTTPVersion = httpVersion
		entry.Response.Status = resp.Status
		entry.Response.StatusText = resp.StatusText
		entry.Response.Headers = sortedHeaders(resp.Headers)
		entry.Response.RedirectURL = headerValue(resp.Headers, "Location")
		entry.Response.BodySize = resp.EncodedDataLength
		entry.Response.Content = Content{Size: resp.EncodedDataLength, MimeType: resp.MimeType}
		entry.Timings.Wait = elapsedMs(startTS, resp.Timestamp)
	} else {
		entry.Request.HTTPVersion = "HTTP/1.1"
		entry.Response.StatusText = r.Error
		if r.Failed && r.FailedAt > 0 {
			entry.Timings.Wait = elapsedMs(startTS, r.FailedAt)
		}
	}

	entry.Request.QueryString = parseQueryString(entry.Request.URL)
	entry.StartedDateTime = formatDateTime(wallClock(started, base, startTS))
	entry.Time = entry.Timings.Send + entry.Timings.Wait + entry.Timings.Receive
	if r.Failed {
		entry.Comment = r.Error
	}
	return entry
}

// hopResource presents one redirect hop as a finished resource of its own
func hopResource(r capture.Resource, hop capture.Hop) capture.Resource {
	req := hop.Request
	return capture.Resource{
		ResourceID:   r.ResourceID,
		ResourceType: r.ResourceType,
		Request:      &req,
		Response:     hop.Response,
		Finished:     true,
	}
}

func browserOf(version string) *Browser {
	if version == "" {
		return nil
	}
	return &Browser{Name: "Chrome", Version: version}
}

func resourceURL(r capture.Resource) string {
	switch {
	case r.Request != nil:
		return r.Request.URL
	case r.Response != nil:
		return r.Response.URL
	default:
		return ""
	}
}

// earliestTimestamp returns the smallest monotonic timestamp, anchoring entries to the page start
func earliestTimestamp(resources []capture.Resource) float64 {
	base := math.MaxFloat64
	for _, r := range resources {
		for _, hop := range r.Hops {
			if hop.Request.Timestamp > 0 {
				base = min(base, hop.Request.Timestamp)
			}
		}
		if r.Request != nil && r.Request.Timestamp > 0 {
			base = min(base, r.Request.Timestamp)
		}
		if r.Response != nil && r.Response.Timestamp > 0 {
			base = min(base, r.Response.Timestamp)
		}
	}
	if base == math.MaxFloat64 {
		return 0
	}
	return base
}

func wallClock(started time.Time, base, ts float64) time.Time {
	if ts <= 0 || ts < base {
		return started
	}
	return started.Add(time.Duration(math.Round((ts-base)*1e6)) * time.Microsecond)
}

func elapsedMs(from, to float64) float64 {
	if from <= 0 || to <= from {
		return 0
	}
	return math.Round((to-from)*1e6) / 1e3
}

// formatDateTime formats a time to ISO 8601 with milliseconds
func formatDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func sortedHeaders(headers map[string]string) []Header {
	result := make([]Header, 0, len(headers))
	for name, value := range headers {
		result = append(result, Header{Name: name, Value: value})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// protocolToHTTPVersion converts a DevTools protocol string to HAR HTTP version format
func protocolToHTTPVersion(protocol string) string {
	switch protocol {
	case "h2":
		return "HTTP/2"
	case "h3":
		return "HTTP/3"
	case "http/1.0":
		return "HTTP/1.0"
	default:
		return "HTTP/1.1"
	}
}

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
