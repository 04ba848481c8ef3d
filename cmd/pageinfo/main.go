package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/pageinfo/pageinfo/internal/browser"
	"github.com/pageinfo/pageinfo/internal/capture"
	"github.com/pageinfo/pageinfo/internal/common/config"
	"github.com/pageinfo/pageinfo/internal/common/configtypes"
	logutil "github.com/pageinfo/pageinfo/internal/common/logger"
	"github.com/pageinfo/pageinfo/internal/common/urlutil"
	"github.com/pageinfo/pageinfo/internal/har"
	"github.com/pageinfo/pageinfo/internal/journal"
	"github.com/pageinfo/pageinfo/internal/pipeline"
	"github.com/pageinfo/pageinfo/internal/storage"
	"github.com/pageinfo/pageinfo/pkg/types"
)

type options struct {
	url        string
	configPath string
	settle     time.Duration
	timeout    time.Duration
	harPath    string
	jsonOut    bool
	verbose    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.url, "u", "", "URL to capture (required)")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file")
	flag.DurationVar(&opts.settle, "settle", 0, "Quiet period after navigation (default from config, 1s)")
	flag.DurationVar(&opts.timeout, "timeout", 0, "Whole capture budget (default from config)")
	flag.StringVar(&opts.harPath, "har", "", "Write the HAR document to this file (.gz, .lz4 and .sz are compressed)")
	flag.BoolVar(&opts.jsonOut, "json", false, "Print the result as JSON")
	flag.BoolVar(&opts.verbose, "v", false, "Debug logging")
	flag.Parse()

	if opts.url == "" {
		fmt.Fprintln(os.Stderr, "error: -u URL is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(opts options, stdout io.Writer) error {
	target, err := urlutil.ValidateTarget(opts.url, true)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	// Command output owns stdout
	cfg.Log.Console.Stream = configtypes.StreamStderr
	if opts.verbose {
		cfg.Log.Level = configtypes.LogLevelDebug
	}
	log, err := logutil.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()
	logger := log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	instance, err := browser.New(cfg.ToBrowserConfig(), logger)
	if err != nil {
		return err
	}
	defer instance.Close()

	pipeOpts := pipeline.Options{
		BrowserVersion: instance.Version(),
		Source:         "cli",
	}

	if cfg.Storage.Enabled {
		store, err := storage.New(&cfg.Storage.Redis, storage.Options{
			TTL:   cfg.Storage.TTL.ToDuration(),
			Codec: har.Codec(cfg.Storage.Codec),
		}, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		pipeOpts.Store = store
	}

	if cfg.Journal.Enabled {
		emitter, err := journal.NewFile(cfg.Journal.Path, cfg.Journal.Rotation, logger)
		if err != nil {
			return err
		}
		defer emitter.Close()
		pipeOpts.Journal = emitter
	}

	session := capture.NewSession(instance, cfg.ToCaptureConfig(), nil, logger)
	out, err := pipeline.New(session, pipeOpts, logger).Run(ctx, pipeline.Request{URL: target})
	if err != nil {
		return err
	}

	if opts.harPath != "" {
		if err := writeHAR(opts.harPath, out.HAR); err != nil {
			return err
		}
		logger.Info("HAR written", zap.String("path", opts.harPath))
	}

	if opts.jsonOut {
		return printJSON(stdout, out)
	}
	return printText(stdout, out)
}

func loadConfig(opts options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		path, err := config.GetConfigPath(opts.configPath)
		if err != nil {
			return nil, err
		}
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if opts.settle > 0 {
		cfg.Capture.Settle = types.Duration(opts.settle)
	}
	if opts.timeout > 0 {
		cfg.Capture.Timeout = types.Duration(opts.timeout)
	}
	return cfg, nil
}

func printText(w io.Writer, out *pipeline.Output) error {
	if out.Info != nil {
		fmt.Fprintln(w, "Info:")
		if err := out.Info.Format(w); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	return out.Result.Report.Format(w)
}

type jsonOutput struct {
	CaptureID  string          `json:"capture_id"`
	URL        string          `json:"url"`
	DurationMs int64           `json:"duration_ms"`
	Stored     bool            `json:"stored"`
	Info       any             `json:"info,omitempty"`
	Report     *capture.Report `json:"report"`
}

func printJSON(w io.Writer, out *pipeline.Output) error {
	doc := jsonOutput{
		CaptureID:  out.CaptureID,
		URL:        out.Result.URL,
		DurationMs: out.Duration.Milliseconds(),
		Stored:     out.Stored,
		Report:     out.Result.Report,
	}
	if out.Info != nil {
		doc.Info = out.Info
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeHAR(path string, doc *har.HAR) error {
	data, err := har.Encode(doc, codecForPath(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Join(fmt.Errorf("failed to write HAR to %s", path), err)
	}
	return nil
}

func codecForPath(path string) har.Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return har.CodecGzip
	case ".lz4":
		return har.CodecLZ4
	case ".sz":
		return har.CodecSnappy
	default:
		return har.CodecNone
	}
}
