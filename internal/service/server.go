package service

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/pageinfo/pageinfo/internal/pipeline"
	"github.com/pageinfo/pageinfo/internal/storage"
)

// Runner executes one capture pipeline
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Output, error)
}

// Store reads persisted captures
type Store interface {
	GetCapture(ctx context.Context, captureID string) (*storage.Entry, error)
	LatestCaptureID(ctx context.Context, pageURL string) (string, error)
}

// Browser reports the health of the shared browser
type Browser interface {
	IsAlive(ctx context.Context) bool
	Version() string
	PagesOpen() int
	Uptime() time.Duration
}

// Recorder receives HTTP level metrics
type Recorder interface {
	RecordHTTPRequest(endpoint, status string)
	RecordQueueRejection()
}

// Config holds the service limits
type Config struct {
	ServerID       string
	MaxConcurrent  int
	RequestTimeout time.Duration // upper bound for one POST /capture
	MaxSettle      time.Duration
	AllowPrivate   bool
}

const (
	defaultMaxSettle      = 30 * time.Second
	defaultRequestTimeout = 2 * time.Minute
	storeTimeout          = 5 * time.Second
)

// Server routes the capture HTTP API
type Server struct {
	runner   Runner
	store    Store // nil when storage is disabled
	browser  Browser
	recorder Recorder
	cfg      Config
	logger   *zap.Logger

	slots  *semaphore.Weighted
	inUse  atomic.Int64
	served atomic.Int64
}

// New creates the HTTP service. store may be nil.
func New(runner Runner, store Store, browser Browser, recorder Recorder, cfg Config, logger *zap.Logger) *Server {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxSettle <= 0 {
		cfg.MaxSettle = defaultMaxSettle
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &Server{
		runner:   runner,
		store:    store,
		browser:  browser,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		slots:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// Handler returns the routing request handler
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		method := string(ctx.Method())

		switch {
		case method == fasthttp.MethodPost && path == "/capture":
			s.handleCapture(ctx)
		case method == fasthttp.MethodGet && strings.HasPrefix(path, "/har/"):
			s.handleHAR(ctx, strings.TrimPrefix(path, "/har/"))
		case method == fasthttp.MethodGet && path == "/latest":
			s.handleLatest(ctx)
		case method == fasthttp.MethodGet && path == "/health":
			s.handleHealth(ctx)
		default:
			s.writeError(ctx, fasthttp.StatusNotFound, ErrorTypeNotFound, "Not Found", "other")
		}
	}
}

// InUse returns the number of captures currently holding a slot
func (s *Server) InUse() int {
	return int(s.inUse.Load())
}
