package browser

import "errors"

var (
	ErrBrowserStart   = errors.New("browser start failed")
	ErrBrowserClosed  = errors.New("browser is closed")
	ErrTabClosed      = errors.New("tab is closed")
	ErrWaitTimeout    = errors.New("wait timeout exceeded")
	ErrNavigateFailed = errors.New("navigation failed")
	ErrExtractHTML    = errors.New("HTML extraction failed")
	ErrSubscribed     = errors.New("already subscribed")
)
