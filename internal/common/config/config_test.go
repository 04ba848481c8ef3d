package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageinfo/pageinfo/internal/browser"
	"github.com/pageinfo/pageinfo/internal/common/configtypes"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  listen: \":8080\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "pageinfo", cfg.Server.ID)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, string(browser.ModeLaunch), cfg.Browser.Mode)
	require.NotNil(t, cfg.Browser.Headless)
	assert.True(t, *cfg.Browser.Headless)
	assert.Equal(t, browser.WaitLoad, cfg.Browser.WaitEvent)
	assert.Equal(t, time.Second, cfg.Capture.Settle.ToDuration())
	assert.Equal(t, 60*time.Second, cfg.Capture.Timeout.ToDuration())
	assert.Equal(t, "auto", cfg.Capture.MaxConcurrent)
	assert.Equal(t, "gzip", cfg.Storage.Codec)
	assert.Equal(t, 24*time.Hour, cfg.Storage.TTL.ToDuration())
	assert.Equal(t, configtypes.LogLevelInfo, cfg.Log.Level)
	assert.True(t, cfg.Log.Console.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "pageinfo", cfg.Metrics.Namespace)
}

func TestParse_FullDocument(t *testing.T) {
	doc := `
server:
  id: capture-1
  listen: "0.0.0.0:9000"
browser:
  mode: connect
  remote_url: "http://chrome:9222"
  headless: false
  user_agent: "TestAgent/1.0"
  extra_headers:
    X-Trace: "1"
  viewport:
    width: 390
    height: 844
  navigation_timeout: 45s
  wait_event: networkIdle
  content_retries: 5
  content_retry_delay: 100ms
capture:
  settle: 2s
  timeout: 2m
  max_concurrent: "4"
storage:
  enabled: true
  redis:
    addr: "redis:6379"
    db: 2
  ttl: 1w
  codec: lz4
journal:
  enabled: true
  path: /tmp/captures.jsonl
log:
  level: debug
  console:
    enabled: true
    format: json
    stream: stderr
metrics:
  enabled: true
  listen: ":9100"
  path: /prom
  namespace: capture_svc
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, 7*24*time.Hour, cfg.Storage.TTL.ToDuration())
	assert.Equal(t, 2, cfg.Storage.Redis.DB)

	bc := cfg.ToBrowserConfig()
	assert.Equal(t, browser.ModeConnect, bc.Mode)
	assert.Equal(t, "http://chrome:9222", bc.RemoteURL)
	assert.False(t, bc.Headless)
	assert.Equal(t, "TestAgent/1.0", bc.UserAgent)
	assert.Equal(t, map[string]string{"X-Trace": "1"}, bc.ExtraHeaders)
	assert.Equal(t, 390, bc.ViewportWidth)
	assert.Equal(t, 844, bc.ViewportHeight)
	assert.Equal(t, 45*time.Second, bc.NavigationTimeout)
	assert.Equal(t, browser.WaitNetworkIdle, bc.WaitEvent)
	assert.Equal(t, 5, bc.ContentRetries)
	assert.Equal(t, 100*time.Millisecond, bc.ContentRetryDelay)
	assert.Equal(t, 4, bc.CalculateMaxConcurrent())

	cc := cfg.ToCaptureConfig()
	assert.Equal(t, 2*time.Second, cc.SettleDuration)
	assert.Equal(t, 2*time.Minute, cc.Timeout)
	assert.Equal(t, 2*time.Minute+SafetyMargin, cfg.ServerTimeout())
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("capture:\n  setle: 2s\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown configuration field")
}

func TestParse_InvalidDuration(t *testing.T) {
	_, err := Parse([]byte("capture:\n  timeout: soon\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad listen", func(c *Config) { c.Server.Listen = "nope" }, "server.listen"},
		{"bad mode", func(c *Config) { c.Browser.Mode = "spawn" }, "invalid browser"},
		{"bad wait event", func(c *Config) { c.Browser.WaitEvent = "idle" }, "invalid browser"},
		{"negative settle", func(c *Config) { c.Capture.Settle = -1 }, "capture.settle"},
		{"zero timeout", func(c *Config) { c.Capture.Timeout = 0 }, "capture.timeout"},
		{"bad max concurrent", func(c *Config) { c.Capture.MaxConcurrent = "many" }, "concurrent"},
		{"bad codec", func(c *Config) { c.Storage.Codec = "brotli" }, "storage.codec"},
		{"journal without path", func(c *Config) { c.Journal.Enabled = true }, "journal.path"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad console stream", func(c *Config) { c.Log.Console.Stream = "stdlog" }, "log.console.stream"},
		{"file without path", func(c *Config) { c.Log.File.Enabled = true }, "log.file.path"},
		{"bad metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
		{"bad namespace", func(c *Config) { c.Metrics.Namespace = "1bad" }, "metrics.namespace"},
		{"metrics port clash", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Listen = c.Server.Listen
		}, "must differ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadAndGetConfigPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pageinfo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capture:\n  settle: 500ms\n"), 0o644))

	resolved, err := GetConfigPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)

	cfg, err := Load(resolved)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Capture.Settle.ToDuration())

	_, err = GetConfigPath(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
	_, err = GetConfigPath("")
	assert.Error(t, err)
	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "capture-service.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "capture-1", cfg.Server.ID)
	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, 7*24*time.Hour, cfg.Storage.TTL.ToDuration())
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "en-US,en;q=0.9", cfg.Browser.ExtraHeaders["Accept-Language"])
	assert.Equal(t, 70*time.Second, cfg.ServerTimeout())
	assert.Equal(t, 65*time.Second, cfg.RequestTimeout())
	assert.Greater(t, cfg.RequestTimeout(), cfg.Capture.Timeout.ToDuration())
	assert.Less(t, cfg.RequestTimeout(), cfg.ServerTimeout())
}
