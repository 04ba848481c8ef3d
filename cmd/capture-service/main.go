package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/pageinfo/pageinfo/internal/browser"
	"github.com/pageinfo/pageinfo/internal/capture"
	"github.com/pageinfo/pageinfo/internal/common/config"
	logutil "github.com/pageinfo/pageinfo/internal/common/logger"
	"github.com/pageinfo/pageinfo/internal/common/metricsserver"
	"github.com/pageinfo/pageinfo/internal/har"
	"github.com/pageinfo/pageinfo/internal/journal"
	"github.com/pageinfo/pageinfo/internal/metrics"
	"github.com/pageinfo/pageinfo/internal/pipeline"
	"github.com/pageinfo/pageinfo/internal/service"
	"github.com/pageinfo/pageinfo/internal/storage"
)

func main() {
	configPath := flag.String("c", "configs/capture-service.yaml", "Path to configuration file")
	flag.Parse()

	initialLogger := logutil.NewDefault("info")

	initialLogger.Info("Loading configuration", zap.String("path", *configPath))

	absPath, err := config.GetConfigPath(*configPath)
	if err != nil {
		initialLogger.Fatal("Invalid config path", zap.Error(err))
	}

	cfg, err := config.Load(absPath)
	if err != nil {
		initialLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	configured, err := logutil.New(cfg.Log)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	defer configured.Close()
	logger := configured.Logger

	browserCfg := cfg.ToBrowserConfig()
	maxConcurrent := browserCfg.CalculateMaxConcurrent()

	logger.Info("Capture Service starting",
		zap.String("id", cfg.Server.ID),
		zap.String("listen", cfg.Server.Listen),
		zap.String("browser_mode", string(browserCfg.Mode)),
		zap.Int("max_concurrent", maxConcurrent))

	metricsCollector := metrics.New(cfg.Metrics.Namespace, logger)

	metricsServer, err := metricsserver.Start(cfg.Metrics, metricsCollector, logger)
	if err != nil {
		logger.Fatal("Failed to start metrics server", zap.Error(err))
	}

	var (
		pipeStore    pipeline.Store
		serviceStore service.Store
	)
	if cfg.Storage.Enabled {
		store, err := storage.New(&cfg.Storage.Redis, storage.Options{
			TTL:   cfg.Storage.TTL.ToDuration(),
			Codec: har.Codec(cfg.Storage.Codec),
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer store.Close()
		pipeStore = store
		serviceStore = store
	} else {
		logger.Info("HAR storage disabled")
	}

	emitters := []journal.Emitter{journal.NewLog(logger)}
	if cfg.Journal.Enabled {
		file, err := journal.NewFile(cfg.Journal.Path, cfg.Journal.Rotation, logger)
		if err != nil {
			logger.Fatal("Failed to open capture journal", zap.Error(err))
		}
		emitters = append(emitters, file)
	}
	captureJournal := journal.NewMulti(emitters...)
	defer captureJournal.Close()

	logger.Info("Starting browser")
	instance, err := browser.New(browserCfg, logger)
	if err != nil {
		logger.Fatal("Failed to start browser", zap.Error(err))
	}

	session := capture.NewSession(instance, cfg.ToCaptureConfig(), metricsCollector, logger)
	runner := pipeline.New(session, pipeline.Options{
		Store:          pipeStore,
		Journal:        captureJournal,
		Recorder:       metricsCollector,
		BrowserVersion: instance.Version(),
		Source:         "service",
	}, logger)

	serverTimeout := cfg.ServerTimeout()
	svc := service.New(runner, serviceStore, instance, metricsCollector, service.Config{
		ServerID:       cfg.Server.ID,
		MaxConcurrent:  maxConcurrent,
		RequestTimeout: cfg.RequestTimeout(),
		AllowPrivate:   cfg.Server.AllowPrivate,
	}, logger)

	server := &fasthttp.Server{
		Handler:      svc.Handler(),
		ReadTimeout:  serverTimeout,
		WriteTimeout: serverTimeout,
		IdleTimeout:  serverTimeout,
		Name:         "CaptureService/" + cfg.Server.ID,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("listen", cfg.Server.Listen))
		if err := server.ListenAndServe(cfg.Server.Listen); err != nil {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		logger.Error("Server error", zap.Error(err))
	}

	logger.Info("Shutting down gracefully...")

	if metricsServer != nil {
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
		metricsShutdownCancel()
	}

	// In-flight captures finish before the browser goes away
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverTimeout)
	defer shutdownCancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	if err := instance.Close(); err != nil {
		logger.Error("Browser shutdown error", zap.Error(err))
	}

	logger.Info("Capture Service stopped", zap.Int("in_use", svc.InUse()))
}
