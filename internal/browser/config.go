package browser

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
)

// Mode selects how the browser is obtained
type Mode string

const (
	// ModeLaunch starts a local Chrome process
	ModeLaunch Mode = "launch"
	// ModeConnect attaches to a running Chrome DevTools endpoint
	ModeConnect Mode = "connect"
)

// Lifecycle events accepted as navigation completion
const (
	WaitDOMContentLoaded = "DOMContentLoaded"
	WaitLoad             = "load"
	WaitNetworkIdle      = "networkIdle"
	WaitNetworkAlmost    = "networkAlmostIdle"
)

// DefaultUserAgent is presented when no user agent is configured
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36"

// Config holds browser and page identity settings
type Config struct {
	Mode      Mode
	RemoteURL string // DevTools endpoint for ModeConnect
	ExecPath  string // optional Chrome binary for ModeLaunch
	Headless  bool

	// Identity presented by every page
	UserAgent      string
	ExtraHeaders   map[string]string
	ViewportWidth  int
	ViewportHeight int

	NavigationTimeout time.Duration
	WaitEvent         string
	ContentRetries    int
	ContentRetryDelay time.Duration

	// MaxConcurrent is "auto" or a positive integer string
	MaxConcurrent string
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() *Config {
	return &Config{
		Mode:              ModeLaunch,
		RemoteURL:         "http://localhost:9222",
		Headless:          true,
		UserAgent:         DefaultUserAgent,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		NavigationTimeout: 30 * time.Second,
		WaitEvent:         WaitLoad,
		ContentRetries:    3,
		ContentRetryDelay: 300 * time.Millisecond,
		MaxConcurrent:     "auto",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLaunch:
	case ModeConnect:
		if c.RemoteURL == "" {
			return fmt.Errorf("remote URL is required in %s mode", ModeConnect)
		}
		if _, err := url.Parse(c.RemoteURL); err != nil {
			return fmt.Errorf("invalid remote URL: %w", err)
		}
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeLaunch, ModeConnect, c.Mode)
	}

	switch c.WaitEvent {
	case WaitDOMContentLoaded, WaitLoad, WaitNetworkIdle, WaitNetworkAlmost:
	default:
		return fmt.Errorf("unsupported wait event %q", c.WaitEvent)
	}

	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be positive")
	}
	if c.ViewportWidth < 0 || c.ViewportHeight < 0 {
		return fmt.Errorf("viewport dimensions cannot be negative")
	}
	if c.ContentRetries <= 0 {
		return fmt.Errorf("content retries must be positive")
	}

	if c.MaxConcurrent != "auto" {
		size, err := strconv.Atoi(c.MaxConcurrent)
		if err != nil {
			return fmt.Errorf("max concurrent must be 'auto' or valid integer")
		}
		if size <= 0 {
			return fmt.Errorf("max concurrent must be positive")
		}
	}

	return nil
}

// CalculateMaxConcurrent returns how many pages may capture at once.
// "auto" derives it from system RAM: (total - 2GB) / 500MB per page, clamped to 2..50.
func (c *Config) CalculateMaxConcurrent() int {
	if c.MaxConcurrent != "auto" {
		if size, err := strconv.Atoi(c.MaxConcurrent); err == nil && size > 0 {
			return size
		}
	}
	return autoMaxConcurrent()
}

func autoMaxConcurrent() int {
	var totalRAMBytes int64
	if v, err := mem.VirtualMemory(); err != nil {
		totalRAMBytes = int64(8 * 1024 * 1024 * 1024)
	} else {
		totalRAMBytes = int64(v.Total)
	}

	reservedBytes := int64(2 * 1024 * 1024 * 1024)
	pageBytes := int64(500 * 1024 * 1024)

	size := int((totalRAMBytes - reservedBytes) / pageBytes)
	return min(max(size, 2), 50)
}
