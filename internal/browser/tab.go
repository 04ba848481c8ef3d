package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/pageinfo/pageinfo/internal/capture"
)

// Tab is one browser page used for a single capture.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
	logger *zap.Logger

	streams map[capture.Kind]*stream

	mu         sync.Mutex
	subscribed map[capture.Kind]bool
	lifecycle  []lifecycleEvent
	frameID    string
	loaderID   string
	navigated  chan struct{}
	isDone     bool
	closed     bool

	onClose func()
}

type lifecycleEvent struct {
	frameID  string
	loaderID string
	name     string
}

var _ capture.Page = (*Tab)(nil)

// newTab opens about:blank in a new target under browserCtx and attaches listeners.
func newTab(ctx, browserCtx context.Context, cfg *Config, logger *zap.Logger) (*Tab, error) {
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	t := &Tab{
		ctx:        tabCtx,
		cancel:     cancel,
		cfg:        cfg,
		logger:     logger,
		streams:    make(map[capture.Kind]*stream, len(capture.Kinds)),
		subscribed: make(map[capture.Kind]bool, len(capture.Kinds)),
		navigated:  make(chan struct{}),
	}
	for _, kind := range capture.Kinds {
		t.streams[kind] = newStream()
	}

	// first Run creates the target on about:blank
	if err := t.run(ctx); err != nil {
		cancel()
		return nil, err
	}

	chromedp.ListenTarget(tabCtx, t.dispatch)

	if err := t.run(ctx, enableLifeCycle()); err != nil {
		cancel()
		return nil, err
	}
	return t, nil
}

// dispatch runs on the CDP event goroutine and must never block.
func (t *Tab) dispatch(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.streams[capture.KindRequest].push(e)
	case *network.EventResponseReceived:
		t.streams[capture.KindResponse].push(e)
	case *network.EventLoadingFinished:
		t.streams[capture.KindFinished].push(e)
	case *network.EventLoadingFailed:
		t.streams[capture.KindFailed].push(e)
	case *page.EventLifecycleEvent:
		t.onLifecycle(lifecycleEvent{
			frameID:  string(e.FrameID),
			loaderID: string(e.LoaderID),
			name:     string(e.Name),
		})
	}
}

// run executes actions on the tab, aborting when either ctx or the tab is done.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return errors.Join(err, context.Cause(ctx))
	}
	return err
}

// Subscribe returns the notification stream of one category. Each kind may be
// subscribed once; the stream closes when ctx is done or the tab is closed.
func (t *Tab) Subscribe(ctx context.Context, kind capture.Kind) (<-chan any, error) {
	s, ok := t.streams[kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %d", kind)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTabClosed
	}
	if t.subscribed[kind] {
		return nil, fmt.Errorf("%w: %s", ErrSubscribed, kind)
	}
	t.subscribed[kind] = true

	pumpCtx, cancel := context.WithCancel(t.ctx)
	context.AfterFunc(ctx, cancel)
	go s.run(pumpCtx)
	return s.out, nil
}

// EnableNetwork enables the network domain and applies the configured identity.
func (t *Tab) EnableNetwork(ctx context.Context) error {
	actions := chromedp.Tasks{network.Enable()}

	if len(t.cfg.ExtraHeaders) > 0 {
		headers := make(network.Headers, len(t.cfg.ExtraHeaders))
		for k, v := range t.cfg.ExtraHeaders {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	if t.cfg.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(t.cfg.UserAgent))
	}
	if t.cfg.ViewportWidth > 0 && t.cfg.ViewportHeight > 0 {
		actions = append(actions, emulation.SetDeviceMetricsOverride(
			int64(t.cfg.ViewportWidth),
			int64(t.cfg.ViewportHeight),
			1.0,
			t.cfg.ViewportWidth < 768,
		))
	}

	return t.run(ctx, actions)
}

// Navigate starts loading url and records the frame and loader ids used by WaitNavigated.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	var frameID, loaderID, errorText string
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		fid, lid, text, err := page.Navigate(url).Do(ctx)
		frameID, loaderID, errorText = string(fid), string(lid), text
		return err
	}))
	if err != nil {
		return errors.Join(ErrNavigateFailed, err)
	}
	if errorText != "" {
		return fmt.Errorf("%w: %s", ErrNavigateFailed, errorText)
	}

	t.mu.Lock()
	t.frameID, t.loaderID = frameID, loaderID
	if loaderID == "" {
		// same-document navigation produces no lifecycle events
		t.markNavigatedLocked()
	} else {
		t.checkNavigatedLocked()
	}
	t.mu.Unlock()

	t.logger.Debug("Navigation started",
		zap.String("url", url),
		zap.String("frame_id", frameID),
		zap.String("loader_id", loaderID))
	return nil
}

func (t *Tab) onLifecycle(ev lifecycleEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lifecycle = append(t.lifecycle, ev)
	t.checkNavigatedLocked()
}

func (t *Tab) checkNavigatedLocked() {
	if t.isDone || t.loaderID == "" {
		return
	}
	for _, ev := range t.lifecycle {
		if ev.frameID == t.frameID && ev.loaderID == t.loaderID && ev.name == t.cfg.WaitEvent {
			t.markNavigatedLocked()
			return
		}
	}
}

func (t *Tab) markNavigatedLocked() {
	if !t.isDone {
		t.isDone = true
		close(t.navigated)
	}
}

// WaitNavigated blocks until the configured lifecycle event fires for the current
// navigation, bounded by the navigation timeout.
func (t *Tab) WaitNavigated(ctx context.Context) error {
	timer := time.NewTimer(t.cfg.NavigationTimeout)
	defer timer.Stop()

	select {
	case <-t.navigated:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s after %s", ErrWaitTimeout, t.cfg.WaitEvent, t.cfg.NavigationTimeout)
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.ctx.Done():
		return ErrTabClosed
	}
}

// LifecycleEvents returns the names of lifecycle events seen for the current navigation
func (t *Tab) LifecycleEvents() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var names []string
	for _, ev := range t.lifecycle {
		if ev.loaderID == t.loaderID && ev.frameID == t.frameID {
			names = append(names, ev.name)
		}
	}
	return names
}

// Content returns the outer HTML of the document, retrying transient DOM errors.
func (t *Tab) Content(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt < t.cfg.ContentRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", errors.Join(ErrExtractHTML, context.Cause(ctx))
			case <-time.After(t.cfg.ContentRetryDelay):
			}
		}

		var html string
		err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			root, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(root.NodeID).Do(ctx)
			return err
		}))
		if err == nil {
			return html, nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w after %d attempts: %v", ErrExtractHTML, t.cfg.ContentRetries, lastErr)
}

// Close closes the target and releases every stream. Safe to call more than once.
func (t *Tab) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	closeCtx, cancel := context.WithTimeout(t.ctx, 2*time.Second)
	err := chromedp.Run(closeCtx, page.Close())
	cancel()
	t.cancel()

	if t.onClose != nil {
		t.onClose()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func enableLifeCycle() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if err := page.Enable().Do(ctx); err != nil {
			return err
		}
		return page.SetLifecycleEventsEnabled(true).Do(ctx)
	}
}
