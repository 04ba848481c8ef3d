package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Observer receives capture telemetry. Implementations must be cheap and non-blocking,
// they are called from collector goroutines.
type Observer interface {
	EventCaptured(kind Kind)
	EventDropped(kind Kind)
}

type noopObserver struct{}

func (noopObserver) EventCaptured(Kind) {}
func (noopObserver) EventDropped(Kind)  {}

// Collector drains notifications of one category into the shared buffer.
type Collector struct {
	kind     Kind
	source   <-chan any
	buf      *Buffer
	observer Observer
	logger   *zap.Logger
}

// NewCollector creates a collector for one event category
func NewCollector(kind Kind, source <-chan any, buf *Buffer, observer Observer, logger *zap.Logger) *Collector {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Collector{
		kind:     kind,
		source:   source,
		buf:      buf,
		observer: observer,
		logger:   logger,
	}
}

// Run appends every notification until ctx is cancelled or the source is closed.
// Notifications not yet taken when ctx is cancelled are abandoned.
func (c *Collector) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-c.source:
			if !ok {
				return nil
			}
			c.handle(raw)
		}
	}
}

func (c *Collector) handle(raw any) {
	ev, err := Normalize(c.kind, raw)
	if err != nil {
		c.observer.EventDropped(c.kind)
		c.logger.Debug("Skipping malformed network event",
			zap.String("kind", c.kind.String()),
			zap.Error(err))
		return
	}

	if !c.buf.Append(ev) {
		c.observer.EventDropped(c.kind)
		return
	}
	c.observer.EventCaptured(c.kind)
}

// Source is the subscription side of a page: one notification stream per category.
type Source interface {
	Subscribe(ctx context.Context, kind Kind) (<-chan any, error)
}

// FanIn runs one Collector per category against a single buffer.
type FanIn struct {
	buf      *Buffer
	observer Observer
	logger   *zap.Logger

	cancel   context.CancelFunc
	group    *errgroup.Group
	stopOnce sync.Once
	stopErr  error
}

// NewFanIn creates a fan-in writing into buf
func NewFanIn(buf *Buffer, observer Observer, logger *zap.Logger) *FanIn {
	return &FanIn{
		buf:      buf,
		observer: observer,
		logger:   logger,
	}
}

// Start subscribes to every category and launches the collectors.
// On a subscription error the collectors already running are stopped before returning.
func (f *FanIn) Start(ctx context.Context, src Source) error {
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	f.cancel = cancel
	f.group = group

	for _, kind := range Kinds {
		stream, err := src.Subscribe(groupCtx, kind)
		if err != nil {
			f.Stop()
			return errors.Join(ErrSubscribe, fmt.Errorf("%s: %w", kind, err))
		}

		collector := NewCollector(kind, stream, f.buf, f.observer, f.logger)
		group.Go(func() error {
			return collector.Run(groupCtx)
		})
	}

	f.logger.Debug("Network collectors started", zap.Int("collectors", len(Kinds)))
	return nil
}

// Stop signals every collector and waits until all of them have returned.
// After Stop returns no collector writes to the buffer. Safe to call more than once.
func (f *FanIn) Stop() error {
	f.stopOnce.Do(func() {
		if f.cancel == nil {
			return
		}
		f.cancel()
		f.stopErr = f.group.Wait()
		f.logger.Debug("Network collectors stopped", zap.Int("events", f.buf.Len()))
	})
	return f.stopErr
}
