// Package browser drives Chrome over the DevTools protocol and exposes pages to the
// capture session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/pageinfo/pageinfo/internal/capture"
)

// Status represents the current state of an Instance
type Status int32

const (
	// StatusReady indicates the browser accepts new pages
	StatusReady Status = iota
	// StatusClosed indicates the browser has been terminated
	StatusClosed
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Instance is one launched or attached Chrome browser.
type Instance struct {
	cfg             *Config
	logger          *zap.Logger
	ctx             context.Context
	cancel          context.CancelFunc
	allocatorCancel context.CancelFunc
	createdAt       time.Time
	version         string

	status    atomic.Int32
	pagesOpen atomic.Int32
	pagesDone atomic.Int64
}

var _ capture.Browser = (*Instance)(nil)

// New starts or attaches to a browser according to cfg.
func New(cfg *Config, logger *zap.Logger) (*Instance, error) {
	inst := &Instance{
		cfg:       cfg,
		logger:    logger,
		createdAt: time.Now().UTC(),
	}

	if err := inst.start(); err != nil {
		return nil, errors.Join(ErrBrowserStart, err)
	}

	logger.Info("Browser ready",
		zap.String("mode", string(cfg.Mode)),
		zap.String("version", inst.version))
	return inst, nil
}

func (i *Instance) start() error {
	var allocatorCtx context.Context
	switch i.cfg.Mode {
	case ModeConnect:
		allocatorCtx, i.allocatorCancel = chromedp.NewRemoteAllocator(context.Background(), i.cfg.RemoteURL)
	default:
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", i.cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("disable-extensions", true),
			chromedp.Flag("mute-audio", true),
			chromedp.Flag("disable-sync", true),
		)
		if i.cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(i.cfg.ExecPath))
		}
		allocatorCtx, i.allocatorCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	i.ctx, i.cancel = chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(i.ctx); err != nil {
		i.Close()
		return fmt.Errorf("failed to start Chrome: %w", err)
	}

	version, err := i.fetchVersion(i.ctx)
	if err != nil {
		i.logger.Warn("Failed to capture browser version", zap.Error(err))
	}
	i.version = version
	return nil
}

func (i *Instance) fetchVersion(ctx context.Context) (string, error) {
	var product string
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		_, product, _, _, _, err = browser.GetVersion().Do(ctx)
		return err
	}))
	return product, err
}

// NewPage opens a blank tab with network and lifecycle listeners attached.
func (i *Instance) NewPage(ctx context.Context) (capture.Page, error) {
	if i.Status() == StatusClosed {
		return nil, ErrBrowserClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tab, err := newTab(ctx, i.ctx, i.cfg, i.logger)
	if err != nil {
		return nil, err
	}

	i.pagesOpen.Add(1)
	tab.onClose = func() {
		i.pagesOpen.Add(-1)
		i.pagesDone.Add(1)
	}
	return tab, nil
}

// IsAlive checks that the browser still answers protocol commands
func (i *Instance) IsAlive(ctx context.Context) bool {
	if i.Status() == StatusClosed {
		return false
	}
	checkCtx, cancel := context.WithTimeout(i.ctx, 5*time.Second)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	_, err := i.fetchVersion(checkCtx)
	return err == nil
}

// Close terminates the browser and its allocator
func (i *Instance) Close() error {
	if !i.status.CompareAndSwap(int32(StatusReady), int32(StatusClosed)) {
		return nil
	}
	if i.cancel != nil {
		i.cancel()
	}
	if i.allocatorCancel != nil {
		i.allocatorCancel()
	}
	i.logger.Info("Browser closed",
		zap.Duration("uptime", i.Uptime()),
		zap.Int64("pages", i.pagesDone.Load()))
	return nil
}

// Status returns the current status
func (i *Instance) Status() Status {
	return Status(i.status.Load())
}

// Version returns the browser product string (e.g. "HeadlessChrome/137.0.7151.68")
func (i *Instance) Version() string {
	return i.version
}

// Uptime returns how long the instance has been running
func (i *Instance) Uptime() time.Duration {
	return time.Since(i.createdAt)
}

// PagesOpen returns the number of tabs not yet closed
func (i *Instance) PagesOpen() int {
	return int(i.pagesOpen.Load())
}
