package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageinfo/pageinfo/internal/har"
)

func TestCodecForPath(t *testing.T) {
	assert.Equal(t, har.CodecGzip, codecForPath("out.har.gz"))
	assert.Equal(t, har.CodecLZ4, codecForPath("out.har.LZ4"))
	assert.Equal(t, har.CodecSnappy, codecForPath("out.sz"))
	assert.Equal(t, har.CodecNone, codecForPath("out.har"))
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	cfg, err := loadConfig(options{settle: 3 * time.Second, timeout: 90 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Capture.Settle.ToDuration())
	assert.Equal(t, 90*time.Second, cfg.Capture.Timeout.ToDuration())
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capture:\n  settle: 250ms\n"), 0o644))

	cfg, err := loadConfig(options{configPath: path})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Capture.Settle.ToDuration())

	_, err = loadConfig(options{configPath: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestWriteHAR(t *testing.T) {
	doc := &har.HAR{Log: har.Log{Version: "1.2", Entries: []har.Entry{}}}
	path := filepath.Join(t.TempDir(), "capture.har.gz")

	require.NoError(t, writeHAR(path, doc))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	decoded, err := har.Decode(data, har.CodecGzip)
	require.NoError(t, err)
	assert.Equal(t, "1.2", decoded.Log.Version)
}
