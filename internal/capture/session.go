package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultSettleDuration is the extra wait after navigation completes
const DefaultSettleDuration = time.Second

// Browser creates pages for capture sessions.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
}

// Page is a single blank page handle. Subscribe must yield order-preserving streams and
// must not block the browser's dispatch goroutine.
type Page interface {
	Source
	EnableNetwork(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	WaitNavigated(ctx context.Context) error
	Content(ctx context.Context) (string, error)
	Close() error
}

// Config holds capture window settings
type Config struct {
	// SettleDuration is slept after navigation completes. Zero means DefaultSettleDuration,
	// a negative value disables settling.
	SettleDuration time.Duration
	// Timeout bounds collector start through content read. Zero disables it.
	Timeout time.Duration
}

func (c Config) settle() time.Duration {
	switch {
	case c.SettleDuration == 0:
		return DefaultSettleDuration
	case c.SettleDuration < 0:
		return 0
	default:
		return c.SettleDuration
	}
}

// Result is the outcome of one successful capture
type Result struct {
	URL       string
	Content   string
	Report    *Report
	StartedAt time.Time
	Events    []Event
}

// Session coordinates one capture window around a page navigation.
type Session struct {
	browser  Browser
	cfg      Config
	observer Observer
	logger   *zap.Logger
}

// NewSession creates a session coordinator. observer may be nil.
func NewSession(browser Browser, cfg Config, observer Observer, logger *zap.Logger) *Session {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Session{
		browser:  browser,
		cfg:      cfg,
		observer: observer,
		logger:   logger,
	}
}

// Capture loads url on a fresh page and returns the rendered content with its network report.
// Collectors are always stopped before the buffer is analyzed. On error no report is produced.
func (s *Session) Capture(ctx context.Context, url string) (*Result, error) {
	return s.CaptureWithSettle(ctx, url, s.cfg.settle())
}

// CaptureWithSettle is Capture with a per-call settle duration; settle <= 0 skips the sleep.
func (s *Session) CaptureWithSettle(ctx context.Context, url string, settle time.Duration) (*Result, error) {
	logger := s.logger.With(zap.String("url", url))

	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return nil, errors.Join(ErrPageCreate, err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			logger.Debug("Failed to close page", zap.Error(closeErr))
		}
	}()

	if err := page.EnableNetwork(ctx); err != nil {
		return nil, errors.Join(ErrEnableNetwork, err)
	}

	windowCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		windowCtx, cancel = context.WithTimeoutCause(ctx, s.cfg.Timeout, ErrCaptureTimeout)
		defer cancel()
	}

	startedAt := time.Now()
	buf := NewBuffer()
	fanIn := NewFanIn(buf, s.observer, logger)
	if err := fanIn.Start(windowCtx, page); err != nil {
		return nil, err
	}

	content, err := s.drive(windowCtx, page, url, settle)
	loadTime := time.Since(startedAt)

	if stopErr := fanIn.Stop(); stopErr != nil {
		logger.Warn("Network collector exited with error", zap.Error(stopErr))
	}
	if err != nil {
		if cause := context.Cause(windowCtx); cause != nil && !errors.Is(err, cause) {
			err = errors.Join(err, cause)
		}
		return nil, err
	}

	events := buf.Freeze()
	report := NewAnalyzer(url).Analyze(events, loadTime)

	logger.Debug("Capture complete",
		zap.Int("events", len(events)),
		zap.Int("requests", report.TotalRequests),
		zap.Int("failed", len(report.FailedRequests)),
		zap.Duration("load_time", loadTime))

	return &Result{
		URL:       url,
		Content:   content,
		Report:    report,
		StartedAt: startedAt,
		Events:    events,
	}, nil
}

// drive runs navigation, settle and content read while the collectors are live.
func (s *Session) drive(ctx context.Context, page Page, url string, settle time.Duration) (string, error) {
	if err := page.Navigate(ctx, url); err != nil {
		return "", errors.Join(ErrNavigate, err)
	}
	if err := page.WaitNavigated(ctx); err != nil {
		return "", errors.Join(ErrNavigate, err)
	}

	if settle > 0 {
		timer := time.NewTimer(settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", errors.Join(ErrNavigate, fmt.Errorf("settle interrupted: %w", context.Cause(ctx)))
		case <-timer.C:
		}
	}

	content, err := page.Content(ctx)
	if err != nil {
		return "", errors.Join(ErrContent, err)
	}
	return content, nil
}
