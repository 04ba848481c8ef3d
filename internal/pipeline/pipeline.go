package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pageinfo/pageinfo/internal/capture"
	"github.com/pageinfo/pageinfo/internal/common/captureid"
	"github.com/pageinfo/pageinfo/internal/har"
	"github.com/pageinfo/pageinfo/internal/journal"
	"github.com/pageinfo/pageinfo/internal/pageinfo"
)

// Capturer runs one capture window
type Capturer interface {
	Capture(ctx context.Context, url string) (*capture.Result, error)
	CaptureWithSettle(ctx context.Context, url string, settle time.Duration) (*capture.Result, error)
}

// Store persists finished captures
type Store interface {
	SaveCapture(ctx context.Context, captureID, pageURL string, doc *har.HAR) error
}

// Recorder receives capture outcomes
type Recorder interface {
	CaptureStarted()
	RecordCapture(outcome string, duration time.Duration, report *capture.Report)
}

// Options wires the optional collaborators. Nil fields are skipped.
type Options struct {
	Store          Store
	Journal        journal.Emitter
	Recorder       Recorder
	BrowserVersion string
	Source         string // journal source label
}

// Request describes one capture
type Request struct {
	URL    string
	Label  string        // optional, becomes part of the capture id
	Settle time.Duration // 0 uses the session default
}

// Output is everything derived from a successful capture
type Output struct {
	CaptureID string
	Result    *capture.Result
	Info      *pageinfo.Info // nil when the content could not be parsed
	HAR       *har.HAR
	Duration  time.Duration
	Stored    bool
}

// Pipeline turns a capture into page info, a HAR document, a journal record and metrics.
type Pipeline struct {
	capturer Capturer
	opts     Options
	logger   *zap.Logger
}

func New(capturer Capturer, opts Options, logger *zap.Logger) *Pipeline {
	if opts.Journal == nil {
		opts.Journal = journal.Noop{}
	}
	return &Pipeline{
		capturer: capturer,
		opts:     opts,
		logger:   logger,
	}
}

// Run captures req.URL. Storage failures are logged and reported through Output.Stored.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Output, error) {
	id := captureid.New(req.Label)
	logger := p.logger.With(zap.String("capture_id", id), zap.String("url", req.URL))

	if p.opts.Recorder != nil {
		p.opts.Recorder.CaptureStarted()
	}
	start := time.Now()

	var (
		res *capture.Result
		err error
	)
	if req.Settle > 0 {
		res, err = p.capturer.CaptureWithSettle(ctx, req.URL, req.Settle)
	} else {
		res, err = p.capturer.Capture(ctx, req.URL)
	}
	duration := time.Since(start)

	var report *capture.Report
	if res != nil {
		report = res.Report
	}
	if p.opts.Recorder != nil {
		p.opts.Recorder.RecordCapture(capture.Outcome(err), duration, report)
	}
	p.opts.Journal.Emit(journal.NewRecord(id, req.URL, p.opts.Source, res, duration, err))

	if err != nil {
		return nil, err
	}

	out := &Output{
		CaptureID: id,
		Result:    res,
		Duration:  duration,
		HAR:       har.FromResult(res, har.Options{CaptureID: id, BrowserVersion: p.opts.BrowserVersion}),
	}

	info, err := pageinfo.Extract(res.Content, res.URL)
	switch {
	case errors.Is(err, pageinfo.ErrEmptyDocument):
		logger.Warn("Captured page has no content")
	case err != nil:
		logger.Warn("Failed to parse captured content", zap.Error(err))
	default:
		out.Info = info
	}

	if p.opts.Store != nil {
		if err := p.opts.Store.SaveCapture(ctx, id, req.URL, out.HAR); err != nil {
			logger.Error("Failed to store capture", zap.Error(err))
		} else {
			out.Stored = true
		}
	}

	logger.Debug("Capture pipeline finished",
		zap.Duration("duration", duration),
		zap.Int("requests", res.Report.TotalRequests),
		zap.Bool("stored", out.Stored))
	return out, nil
}
