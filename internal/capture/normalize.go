package capture

import (
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

// Normalize converts one raw CDP notification of the given kind into an Event.
// Returns ErrMalformedEvent when the notification has the wrong type or lacks the
// fields needed to correlate it.
func Normalize(kind Kind, raw any) (Event, error) {
	switch kind {
	case KindRequest:
		ev, ok := raw.(*network.EventRequestWillBeSent)
		if !ok || ev == nil {
			return Event{}, mismatch(kind, raw)
		}
		if ev.RequestID == "" || ev.Request == nil {
			return Event{}, fmt.Errorf("%w: request without id or request body", ErrMalformedEvent)
		}
		payload := RequestPayload{
			URL:          ev.Request.URL,
			Method:       ev.Request.Method,
			ResourceType: string(ev.Type),
			Headers:      flattenHeaders(ev.Request.Headers),
		}
		if ev.RedirectResponse != nil {
			redirect := responsePayload(ev.RedirectResponse)
			payload.RedirectResponse = &redirect
		}
		return NewRequestEvent(string(ev.RequestID), monotonicSeconds(ev.Timestamp), payload), nil

	case KindResponse:
		ev, ok := raw.(*network.EventResponseReceived)
		if !ok || ev == nil {
			return Event{}, mismatch(kind, raw)
		}
		if ev.RequestID == "" || ev.Response == nil {
			return Event{}, fmt.Errorf("%w: response without id or response body", ErrMalformedEvent)
		}
		return NewResponseEvent(string(ev.RequestID), monotonicSeconds(ev.Timestamp), responsePayload(ev.Response)), nil

	case KindFinished:
		ev, ok := raw.(*network.EventLoadingFinished)
		if !ok || ev == nil {
			return Event{}, mismatch(kind, raw)
		}
		if ev.RequestID == "" {
			return Event{}, fmt.Errorf("%w: loading finished without id", ErrMalformedEvent)
		}
		return NewFinishedEvent(string(ev.RequestID), monotonicSeconds(ev.Timestamp)), nil

	case KindFailed:
		ev, ok := raw.(*network.EventLoadingFailed)
		if !ok || ev == nil {
			return Event{}, mismatch(kind, raw)
		}
		if ev.RequestID == "" {
			return Event{}, fmt.Errorf("%w: loading failed without id", ErrMalformedEvent)
		}
		return NewFailedEvent(string(ev.RequestID), monotonicSeconds(ev.Timestamp), FailurePayload{
			ErrorText:    ev.ErrorText,
			Canceled:     ev.Canceled,
			ResourceType: string(ev.Type),
		}), nil
	}

	return Event{}, fmt.Errorf("%w: unknown kind %d", ErrMalformedEvent, kind)
}

func responsePayload(r *network.Response) ResponsePayload {
	return ResponsePayload{
		URL:               r.URL,
		Status:            int(r.Status),
		StatusText:        r.StatusText,
		MimeType:          r.MimeType,
		Protocol:          r.Protocol,
		EncodedDataLength: max(int64(r.EncodedDataLength), 0),
		Headers:           flattenHeaders(r.Headers),
	}
}

func mismatch(kind Kind, raw any) error {
	return fmt.Errorf("%w: %s collector received %T", ErrMalformedEvent, kind, raw)
}

// monotonicSeconds returns the seconds value the protocol sent, relative to its
// monotonic epoch. Missing → 0.
func monotonicSeconds(ts *cdp.MonotonicTime) float64 {
	if ts == nil {
		return 0
	}
	return ts.Time().Sub(*cdp.MonotonicTimeEpoch).Seconds()
}

// flattenHeaders keeps string-valued headers only, as Chrome reports multi-value
// headers as a single newline-joined string.
func flattenHeaders(h network.Headers) map[string]string {
	if len(h) == 0 {
		return nil
	}
	headers := make(map[string]string, len(h))
	for k, v := range h {
		if str, ok := v.(string); ok {
			headers[k] = str
		}
	}
	return headers
}
