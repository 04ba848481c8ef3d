package capture

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSession(browser Browser, cfg Config, observer Observer) *Session {
	return NewSession(browser, cfg, observer, zap.NewNop())
}

func TestSession_Capture(t *testing.T) {
	page := newFakePage()
	page.onNavigate = []fakeNotification{
		rawRequest("1", "https://example.com/", network.ResourceTypeDocument),
		rawRequest("2", "https://example.com/app.js", network.ResourceTypeScript),
		rawResponse("1", "https://example.com/", 200, 1024),
		rawFinished("1"),
		rawFailed("2", "net::ERR_ABORTED"),
		{KindResponse, "not an event"},
	}

	observer := newCountingObserver()
	session := newTestSession(&fakeBrowser{page: page}, Config{SettleDuration: 100 * time.Millisecond}, observer)

	result, err := session.Capture(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "https://example.com/", result.URL)
	assert.Equal(t, page.content, result.Content)
	assert.Len(t, result.Events, 5)
	assert.False(t, result.StartedAt.IsZero())

	report := result.Report
	assert.Equal(t, 2, report.TotalRequests)
	assert.Equal(t, map[string]int{"Document": 1, "Script": 1}, report.RequestsByType)
	assert.Equal(t, int64(1024), report.TotalSize)
	assert.Equal(t, []string{"Request 2 failed: net::ERR_ABORTED"}, report.FailedRequests)
	assert.GreaterOrEqual(t, report.LoadTimeMs, int64(100))

	assert.Equal(t, 1, observer.Dropped(KindResponse))
	assert.Equal(t, 2, observer.Captured(KindRequest))

	calls := page.Calls()
	assert.Equal(t, "enable", calls[0])
	assert.Equal(t, []string{"navigate:https://example.com/", "wait", "content", "close"}, calls[len(calls)-4:])
	// every subscription is in place before navigation
	assert.ElementsMatch(t, []string{
		"subscribe:request", "subscribe:response", "subscribe:finished", "subscribe:failed",
	}, calls[1:5])
	assert.True(t, page.Closed())
}

func TestSession_SetupFailures(t *testing.T) {
	t.Run("page creation", func(t *testing.T) {
		session := newTestSession(&fakeBrowser{err: errBoom}, Config{SettleDuration: -1}, nil)
		result, err := session.Capture(context.Background(), "https://example.com/")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrPageCreate)
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("enable network", func(t *testing.T) {
		page := newFakePage()
		page.enableErr = errBoom
		session := newTestSession(&fakeBrowser{page: page}, Config{SettleDuration: -1}, nil)

		result, err := session.Capture(context.Background(), "https://example.com/")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrEnableNetwork)
		assert.True(t, page.Closed())
		assert.NotContains(t, page.Calls(), "navigate:https://example.com/")
	})

	t.Run("subscribe", func(t *testing.T) {
		page := newFakePage()
		page.subscribeErr[KindFailed] = errBoom
		session := newTestSession(&fakeBrowser{page: page}, Config{SettleDuration: -1}, nil)

		result, err := session.Capture(context.Background(), "https://example.com/")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrSubscribe)
		assert.True(t, page.Closed())
	})
}

func TestSession_NavigationFailureStopsCollectors(t *testing.T) {
	page := newFakePage()
	page.navigateErr = errBoom
	session := newTestSession(&fakeBrowser{page: page}, Config{SettleDuration: -1}, nil)

	result, err := session.Capture(context.Background(), "https://example.invalid/")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrNavigate)
	assert.ErrorIs(t, err, errBoom)
	assert.True(t, page.Closed())
	assert.NotContains(t, page.Calls(), "content")
}

func TestSession_ContentFailure(t *testing.T) {
	page := newFakePage()
	page.contentErr = errBoom
	session := newTestSession(&fakeBrowser{page: page}, Config{SettleDuration: -1}, nil)

	result, err := session.Capture(context.Background(), "https://example.com/")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrContent)
}

func TestSession_Timeout(t *testing.T) {
	page := newFakePage()
	page.blockWait = true
	session := newTestSession(&fakeBrowser{page: page}, Config{SettleDuration: -1, Timeout: 50 * time.Millisecond}, nil)

	start := time.Now()
	result, err := session.Capture(context.Background(), "https://example.com/")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrNavigate)
	assert.ErrorIs(t, err, ErrCaptureTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSession_CallerDeadlineIsTimeout(t *testing.T) {
	page := newFakePage()
	page.blockWait = true
	session := newTestSession(&fakeBrowser{page: page}, Config{SettleDuration: -1, Timeout: 100 * time.Millisecond}, nil)

	// the caller's deadline starts before the capture window and expires first
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result, err := session.Capture(ctx, "https://example.com/")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrNavigate)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, OutcomeTimeout, Outcome(err))
	assert.True(t, page.Closed())
}

func TestSession_SettleInterruptedByCancel(t *testing.T) {
	page := newFakePage()
	session := newTestSession(&fakeBrowser{page: page}, Config{SettleDuration: time.Minute}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	result, err := session.Capture(ctx, "https://example.com/")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrNavigate)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, page.Closed())
}

func TestConfig_Settle(t *testing.T) {
	assert.Equal(t, DefaultSettleDuration, Config{}.settle())
	assert.Equal(t, time.Duration(0), Config{SettleDuration: -1}.settle())
	assert.Equal(t, 250*time.Millisecond, Config{SettleDuration: 250 * time.Millisecond}.settle())
}
