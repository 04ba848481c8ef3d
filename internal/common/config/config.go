package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pageinfo/pageinfo/internal/browser"
	"github.com/pageinfo/pageinfo/internal/capture"
	"github.com/pageinfo/pageinfo/internal/common/configtypes"
	"github.com/pageinfo/pageinfo/internal/har"
	"github.com/pageinfo/pageinfo/pkg/types"
)

const (
	// SafetyMargin is added on top of the capture budget for the HTTP server timeout
	SafetyMargin = 10 * time.Second

	defaultServerID      = "pageinfo"
	defaultServerListen  = ":10080"
	defaultCaptureTO     = 60 * time.Second
	defaultStorageTTL    = 24 * time.Hour
	defaultRedisAddr     = "localhost:6379"
	defaultMetricsListen = ":10090"
	defaultMetricsPath   = "/metrics"
	defaultNamespace     = "pageinfo"
)

var namespacePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config is the root of the YAML configuration file
type Config struct {
	Server  ServerConfig              `yaml:"server"`
	Browser BrowserConfig             `yaml:"browser"`
	Capture CaptureConfig             `yaml:"capture"`
	Storage StorageConfig             `yaml:"storage"`
	Journal JournalConfig             `yaml:"journal"`
	Log     configtypes.LogConfig     `yaml:"log"`
	Metrics configtypes.MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	ID           string `yaml:"id"`
	Listen       string `yaml:"listen"`
	AllowPrivate bool   `yaml:"allow_private"` // permit loopback and private targets
}

type BrowserConfig struct {
	Mode              string            `yaml:"mode"`       // launch or connect
	RemoteURL         string            `yaml:"remote_url"` // used in connect mode
	ExecPath          string            `yaml:"exec_path"`
	Headless          *bool             `yaml:"headless"`
	UserAgent         string            `yaml:"user_agent"`
	ExtraHeaders      map[string]string `yaml:"extra_headers"`
	Viewport          ViewportConfig    `yaml:"viewport"`
	NavigationTimeout types.Duration    `yaml:"navigation_timeout"`
	WaitEvent         string            `yaml:"wait_event"`
	ContentRetries    int               `yaml:"content_retries"`
	ContentRetryDelay types.Duration    `yaml:"content_retry_delay"`
}

type ViewportConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// CaptureConfig controls a single capture window
type CaptureConfig struct {
	Settle        types.Duration `yaml:"settle"`  // post-navigation quiet period, 0 means 1s
	Timeout       types.Duration `yaml:"timeout"` // whole capture budget
	MaxConcurrent string         `yaml:"max_concurrent"`
}

type StorageConfig struct {
	Enabled bool                    `yaml:"enabled"`
	Redis   configtypes.RedisConfig `yaml:"redis"`
	TTL     types.Duration          `yaml:"ttl"`
	Codec   string                  `yaml:"codec"`
}

// JournalConfig configures the per-capture JSON lines file
type JournalConfig struct {
	Enabled  bool                       `yaml:"enabled"`
	Path     string                     `yaml:"path"`
	Rotation configtypes.RotationConfig `yaml:"rotation"`
}

// DefaultConfig returns a fully defaulted configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, decodes, defaults and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := unmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func unmarshalStrict(data []byte, v interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(v); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "field") && strings.Contains(errStr, "not found") {
			return fmt.Errorf("unknown configuration field (check for typos): %w", err)
		}
		return err
	}
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.ID == "" {
		cfg.Server.ID = defaultServerID
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaultServerListen
	}

	defaults := browser.DefaultConfig()
	b := &cfg.Browser
	if b.Mode == "" {
		b.Mode = string(defaults.Mode)
	}
	if b.Mode == string(browser.ModeConnect) && b.RemoteURL == "" {
		b.RemoteURL = defaults.RemoteURL
	}
	if b.Headless == nil {
		headless := defaults.Headless
		b.Headless = &headless
	}
	if b.UserAgent == "" {
		b.UserAgent = defaults.UserAgent
	}
	if b.Viewport.Width == 0 {
		b.Viewport.Width = defaults.ViewportWidth
	}
	if b.Viewport.Height == 0 {
		b.Viewport.Height = defaults.ViewportHeight
	}
	if b.NavigationTimeout == 0 {
		b.NavigationTimeout = types.Duration(defaults.NavigationTimeout)
	}
	if b.WaitEvent == "" {
		b.WaitEvent = defaults.WaitEvent
	}
	if b.ContentRetries == 0 {
		b.ContentRetries = defaults.ContentRetries
	}
	if b.ContentRetryDelay == 0 {
		b.ContentRetryDelay = types.Duration(defaults.ContentRetryDelay)
	}

	if cfg.Capture.Settle == 0 {
		cfg.Capture.Settle = types.Duration(capture.DefaultSettleDuration)
	}
	if cfg.Capture.Timeout == 0 {
		cfg.Capture.Timeout = types.Duration(defaultCaptureTO)
	}
	if cfg.Capture.MaxConcurrent == "" {
		cfg.Capture.MaxConcurrent = defaults.MaxConcurrent
	}

	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = defaultRedisAddr
	}
	if cfg.Storage.TTL == 0 {
		cfg.Storage.TTL = types.Duration(defaultStorageTTL)
	}
	if cfg.Storage.Codec == "" {
		cfg.Storage.Codec = string(har.CodecGzip)
	}

	// If both outputs are disabled, enable console by default
	if cfg.Log.Level == "" {
		cfg.Log.Level = configtypes.LogLevelInfo
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = configtypes.LogFormatText
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = defaultMetricsListen
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaultNamespace
	}
}

// Validate checks configuration validity
func (cfg *Config) Validate() error {
	if cfg.Server.ID == "" {
		return fmt.Errorf("server.id is required")
	}
	if err := configtypes.ValidateListenAddress(cfg.Server.Listen); err != nil {
		return fmt.Errorf("invalid server.listen: %w", err)
	}

	if err := cfg.ToBrowserConfig().Validate(); err != nil {
		return fmt.Errorf("invalid browser: %w", err)
	}

	if cfg.Capture.Settle < 0 {
		return fmt.Errorf("capture.settle cannot be negative")
	}
	if cfg.Capture.Timeout <= 0 {
		return fmt.Errorf("capture.timeout must be positive")
	}
	if cfg.Capture.MaxConcurrent != "auto" {
		size, err := strconv.Atoi(cfg.Capture.MaxConcurrent)
		if err != nil || size <= 0 {
			return fmt.Errorf("capture.max_concurrent must be 'auto' or positive integer")
		}
	}

	if cfg.Storage.Enabled {
		if cfg.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required when storage enabled")
		}
		if cfg.Storage.TTL <= 0 {
			return fmt.Errorf("storage.ttl must be positive")
		}
	}
	if _, err := har.ParseCodec(cfg.Storage.Codec); err != nil {
		return fmt.Errorf("invalid storage.codec: %w", err)
	}

	if cfg.Journal.Enabled {
		if cfg.Journal.Path == "" {
			return fmt.Errorf("journal.path must be specified when journal is enabled")
		}
		if err := validateRotation("journal.rotation", cfg.Journal.Rotation); err != nil {
			return err
		}
	}

	if err := cfg.validateLog(); err != nil {
		return err
	}
	return cfg.validateMetrics()
}

func (cfg *Config) validateLog() error {
	if !configtypes.ValidLogLevel(cfg.Log.Level) {
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn or error)", cfg.Log.Level)
	}

	if cfg.Log.Console.Enabled {
		switch cfg.Log.Console.Format {
		case configtypes.LogFormatJSON, configtypes.LogFormatConsole:
		default:
			return fmt.Errorf("invalid log.console.format: %s (must be json or console)", cfg.Log.Console.Format)
		}
		switch cfg.Log.Console.Stream {
		case "", configtypes.StreamStdout, configtypes.StreamStderr:
		default:
			return fmt.Errorf("invalid log.console.stream: %s (must be stdout or stderr)", cfg.Log.Console.Stream)
		}
	}

	if cfg.Log.File.Enabled {
		if cfg.Log.File.Path == "" {
			return fmt.Errorf("log.file.path must be specified when file logging is enabled")
		}
		switch cfg.Log.File.Format {
		case configtypes.LogFormatJSON, configtypes.LogFormatText:
		default:
			return fmt.Errorf("invalid log.file.format: %s (must be json or text)", cfg.Log.File.Format)
		}
		if err := validateRotation("log.file.rotation", cfg.Log.File.Rotation); err != nil {
			return err
		}
	}
	return nil
}

func validateRotation(prefix string, r configtypes.RotationConfig) error {
	if r.MaxSize < 0 {
		return fmt.Errorf("%s.max_size must be >= 0, got %d", prefix, r.MaxSize)
	}
	if r.MaxAge < 0 {
		return fmt.Errorf("%s.max_age must be >= 0, got %d", prefix, r.MaxAge)
	}
	if r.MaxBackups < 0 {
		return fmt.Errorf("%s.max_backups must be >= 0, got %d", prefix, r.MaxBackups)
	}
	return nil
}

func (cfg *Config) validateMetrics() error {
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics.path: %s (must start with /)", cfg.Metrics.Path)
	}
	if !namespacePattern.MatchString(cfg.Metrics.Namespace) {
		return fmt.Errorf("invalid metrics.namespace: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", cfg.Metrics.Namespace)
	}
	if !cfg.Metrics.Enabled {
		return nil
	}

	if err := configtypes.ValidateListenAddress(cfg.Metrics.Listen); err != nil {
		return fmt.Errorf("invalid metrics.listen: %w", err)
	}
	_, metricsPort, err1 := configtypes.ParseListenAddress(cfg.Metrics.Listen)
	_, serverPort, err2 := configtypes.ParseListenAddress(cfg.Server.Listen)
	if err1 == nil && err2 == nil && metricsPort == serverPort {
		return fmt.Errorf("metrics.listen port (%d) must differ from server.listen port (%d) when metrics enabled", metricsPort, serverPort)
	}
	return nil
}

// ToBrowserConfig converts the YAML browser section
func (cfg *Config) ToBrowserConfig() *browser.Config {
	b := cfg.Browser
	headless := true
	if b.Headless != nil {
		headless = *b.Headless
	}
	return &browser.Config{
		Mode:              browser.Mode(b.Mode),
		RemoteURL:         b.RemoteURL,
		ExecPath:          b.ExecPath,
		Headless:          headless,
		UserAgent:         b.UserAgent,
		ExtraHeaders:      b.ExtraHeaders,
		ViewportWidth:     b.Viewport.Width,
		ViewportHeight:    b.Viewport.Height,
		NavigationTimeout: b.NavigationTimeout.ToDuration(),
		WaitEvent:         b.WaitEvent,
		ContentRetries:    b.ContentRetries,
		ContentRetryDelay: b.ContentRetryDelay.ToDuration(),
		MaxConcurrent:     cfg.Capture.MaxConcurrent,
	}
}

// ToCaptureConfig converts the YAML capture section
func (cfg *Config) ToCaptureConfig() capture.Config {
	return capture.Config{
		SettleDuration: cfg.Capture.Settle.ToDuration(),
		Timeout:        cfg.Capture.Timeout.ToDuration(),
	}
}

// ServerTimeout returns the HTTP read/write timeout.
// It covers the full capture budget plus SafetyMargin so fasthttp never cuts a capture short.
func (cfg *Config) ServerTimeout() time.Duration {
	return cfg.Capture.Timeout.ToDuration() + SafetyMargin
}

// RequestTimeout bounds one capture request in the service.
// It sits between the capture window and ServerTimeout so the window deadline fires first.
func (cfg *Config) RequestTimeout() time.Duration {
	return cfg.Capture.Timeout.ToDuration() + SafetyMargin/2
}

// GetConfigPath resolves the config file path
func GetConfigPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("config path cannot be empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("config file does not exist: %s", absPath)
	}

	return absPath, nil
}
