package capture

import (
	"context"
	"errors"
)

// Setup and navigation errors - fatal to the whole capture, no report is produced
var (
	ErrPageCreate     = errors.New("page creation failed")
	ErrEnableNetwork  = errors.New("network domain enable failed")
	ErrSubscribe      = errors.New("event subscription failed")
	ErrNavigate       = errors.New("navigation failed")
	ErrContent        = errors.New("content read failed")
	ErrCaptureTimeout = errors.New("capture deadline exceeded")
)

// ErrMalformedEvent is returned by Normalize for notifications that cannot become an Event.
// Collectors skip these; they never abort a capture.
var ErrMalformedEvent = errors.New("malformed network event")

// Capture outcomes as reported by Outcome
const (
	OutcomeOK            = "ok"
	OutcomeTimeout       = "timeout"
	OutcomeCanceled      = "canceled"
	OutcomePageCreate    = "page_create"
	OutcomeEnableNetwork = "enable_network"
	OutcomeSubscribe     = "subscribe"
	OutcomeNavigate      = "navigate"
	OutcomeContent       = "content"
	OutcomeError         = "error"
)

// Outcome classifies the error returned by a capture into a short label.
// A deadline wins over the step that observed it.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrCaptureTimeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.Is(err, ErrPageCreate):
		return OutcomePageCreate
	case errors.Is(err, ErrEnableNetwork):
		return OutcomeEnableNetwork
	case errors.Is(err, ErrSubscribe):
		return OutcomeSubscribe
	case errors.Is(err, ErrNavigate):
		return OutcomeNavigate
	case errors.Is(err, ErrContent):
		return OutcomeContent
	default:
		return OutcomeError
	}
}
