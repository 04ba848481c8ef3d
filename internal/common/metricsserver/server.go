package metricsserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/pageinfo/pageinfo/internal/common/configtypes"
)

// MetricsHandler serves the metrics exposition
type MetricsHandler interface {
	ServeHTTP(ctx *fasthttp.RequestCtx)
}

// Server is the dedicated metrics listener.
type Server struct {
	srv      *fasthttp.Server
	listener net.Listener
	logger   *zap.Logger
}

// Start binds the metrics listener and serves in the background.
// Returns nil, nil when metrics are disabled.
func Start(cfg configtypes.MetricsConfig, handler MetricsHandler, logger *zap.Logger) (*Server, error) {
	if !cfg.Enabled {
		logger.Info("Metrics collection disabled")
		return nil, nil
	}

	listen, err := configtypes.NormalizeListen(cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("invalid metrics listen address: %w", err)
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("metrics listen failed: %w", err)
	}

	s := &Server{
		listener: ln,
		logger:   logger,
		srv: &fasthttp.Server{
			Handler:            newHandler(cfg.Path, handler),
			Name:               "pageinfo-metrics",
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       10 * time.Second,
			MaxRequestBodySize: 1024,
			TCPKeepalive:       true,
			TCPKeepalivePeriod: 30 * time.Second,
			MaxConnsPerIP:      100,
			Concurrency:        100,
		},
	}

	go func() {
		logger.Info("Metrics server listening",
			zap.String("listen", ln.Addr().String()),
			zap.String("path", cfg.Path))
		if err := s.srv.Serve(ln); err != nil {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	return s, nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for in-flight scrapes
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

func newHandler(path string, metrics MetricsHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == path {
			metrics.ServeHTTP(ctx)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString("Not Found")
	}
}
