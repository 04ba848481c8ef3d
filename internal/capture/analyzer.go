package capture

import (
	"fmt"
	"time"
)

// Analyzer reduces a frozen capture buffer into a Report.
// It holds no state between calls.
type Analyzer struct {
	pageHost string
}

// NewAnalyzer creates an analyzer; pageURL decides which requests count as same-origin.
func NewAnalyzer(pageURL string) *Analyzer {
	return &Analyzer{pageHost: hostnameOf(pageURL)}
}

// correlation accumulates everything seen for one resource id
type correlation struct {
	request   *RequestEntry
	response  *ResponseEntry
	failure   *FailurePayload
	failedAt  float64
	finished  bool
	hops      []Hop
}

// Analyze walks events once and builds the report. Records are correlated only by
// resource id, so the relative interleaving of categories does not affect the result.
func (a *Analyzer) Analyze(events []Event, loadTime time.Duration) *Report {
	report := &Report{
		RequestsByType: make(map[string]int),
		LoadTimeMs:     loadTime.Milliseconds(),
		Requests:       []RequestEntry{},
		Responses:      []ResponseEntry{},
		FailedRequests: []string{},
		StatusCounts:   make(map[string]int),
		Domains:        make(map[string]DomainStats),
		Resources:      []Resource{},
	}

	byID := make(map[string]*correlation)
	var requestIDs, responseIDs, failureIDs []string
	lookup := func(id string, order *[]string) *correlation {
		c, ok := byID[id]
		if !ok {
			c = &correlation{}
			byID[id] = c
		}
		*order = append(*order, id)
		return c
	}

	var finishedIDs []string
	for _, ev := range events {
		switch ev.Kind {
		case KindRequest:
			if ev.Request == nil {
				continue
			}
			entry := RequestEntry{
				ResourceID:   ev.ResourceID,
				URL:          ev.Request.URL,
				Method:       ev.Request.Method,
				ResourceType: resourceTypeOrUnknown(ev.Request.ResourceType),
				Headers:      ev.Request.Headers,
				Timestamp:    ev.Timestamp,
			}
			report.TotalRequests++
			report.RequestsByType[entry.ResourceType]++
			report.Requests = append(report.Requests, entry)

			c := lookup(ev.ResourceID, &requestIDs)
			if c.request != nil {
				// a repeated request id starts a new redirect hop
				hop := Hop{Request: *c.request}
				if redirect := ev.Request.RedirectResponse; redirect != nil {
					hop.Response = &ResponseEntry{
						ResourceID:        ev.ResourceID,
						URL:               redirect.URL,
						Status:            redirect.Status,
						StatusText:        redirect.StatusText,
						MimeType:          redirect.MimeType,
						Protocol:          redirect.Protocol,
						EncodedDataLength: redirect.EncodedDataLength,
						ResourceType:      c.request.ResourceType,
						Headers:           redirect.Headers,
						Timestamp:         ev.Timestamp,
					}
				}
				c.hops = append(c.hops, hop)
			}
			c.request = &entry

		case KindResponse:
			if ev.Response == nil {
				continue
			}
			entry := ResponseEntry{
				ResourceID:        ev.ResourceID,
				URL:               ev.Response.URL,
				Status:            ev.Response.Status,
				StatusText:        ev.Response.StatusText,
				MimeType:          ev.Response.MimeType,
				Protocol:          ev.Response.Protocol,
				EncodedDataLength: ev.Response.EncodedDataLength,
				Headers:           ev.Response.Headers,
				Timestamp:         ev.Timestamp,
			}
			report.TotalSize += entry.EncodedDataLength
			if class := classifyStatusCode(entry.Status); class != "" {
				report.StatusCounts[class]++
			}
			report.Responses = append(report.Responses, entry)
			lookup(ev.ResourceID, &responseIDs).response = &entry

		case KindFailed:
			if ev.Failure == nil {
				continue
			}
			report.FailedRequests = append(report.FailedRequests,
				fmt.Sprintf("Request %s failed: %s", ev.ResourceID, ev.Failure.ErrorText))
			c := lookup(ev.ResourceID, &failureIDs)
			c.failure = ev.Failure
			c.failedAt = ev.Timestamp

		case KindFinished:
			finishedIDs = append(finishedIDs, ev.ResourceID)
		}
	}

	for _, id := range finishedIDs {
		if c, ok := byID[id]; ok {
			c.finished = true
		}
	}

	// response entries inherit the type of their own request, never a neighbour's
	for i := range report.Responses {
		report.Responses[i].ResourceType = UnknownResourceType
		if c := byID[report.Responses[i].ResourceID]; c.request != nil {
			report.Responses[i].ResourceType = c.request.ResourceType
		}
	}

	seen := make(map[string]bool, len(byID))
	for _, order := range [][]string{requestIDs, responseIDs, failureIDs} {
		for _, id := range order {
			if seen[id] {
				continue
			}
			seen[id] = true
			report.Resources = append(report.Resources, a.resource(id, byID[id]))
		}
	}

	a.aggregateDomains(report)
	return report
}

func (a *Analyzer) resource(id string, c *correlation) Resource {
	res := Resource{
		ResourceID:   id,
		ResourceType: UnknownResourceType,
		Finished:     c.finished,
		Redirects:    len(c.hops),
	}
	if len(c.hops) > 0 {
		res.Hops = append([]Hop(nil), c.hops...)
	}
	if c.request != nil {
		req := *c.request
		res.Request = &req
		res.ResourceType = req.ResourceType
	}
	if c.response != nil {
		resp := *c.response
		resp.ResourceType = res.ResourceType
		res.Response = &resp
	}
	if c.failure != nil {
		res.Failed = true
		res.Error = c.failure.ErrorText
		res.Canceled = c.failure.Canceled
		res.FailedAt = c.failedAt
		if res.ResourceType == UnknownResourceType && c.failure.ResourceType != "" {
			res.ResourceType = c.failure.ResourceType
		}
	}
	return res
}

// aggregateDomains fills the per-host statistics from the correlated resources.
// Every redirect hop counts as a request of its own host.
func (a *Analyzer) aggregateDomains(report *Report) {
	countRequest := func(host string) {
		stats := report.Domains[host]
		stats.SameOrigin = sameSite(a.pageHost, host)
		stats.Requests++
		if stats.SameOrigin {
			report.SameOriginRequests++
		} else {
			report.ThirdPartyRequests++
		}
		report.Domains[host] = stats
	}

	for _, res := range report.Resources {
		for _, hop := range res.Hops {
			if host := hostnameOf(hop.Request.URL); host != "" {
				countRequest(host)
			}
		}

		host := ""
		switch {
		case res.Request != nil:
			host = hostnameOf(res.Request.URL)
		case res.Response != nil:
			host = hostnameOf(res.Response.URL)
		}
		if host == "" {
			continue
		}

		if res.Request != nil {
			countRequest(host)
		}
		stats := report.Domains[host]
		stats.SameOrigin = sameSite(a.pageHost, host)
		if res.Response != nil {
			stats.Bytes += res.Response.EncodedDataLength
		}
		if res.Failed {
			stats.Failed++
		}
		report.Domains[host] = stats
	}

	for _, stats := range report.Domains {
		if !stats.SameOrigin {
			report.ThirdPartyDomains++
		}
	}
}

func resourceTypeOrUnknown(resourceType string) string {
	if resourceType == "" {
		return UnknownResourceType
	}
	return resourceType
}
