package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pageinfo/pageinfo/internal/common/configtypes"
)

// Rotation defaults applied when a value is zero
const (
	DefaultMaxSize    = 100 // MB
	DefaultMaxAge     = 30  // days
	DefaultMaxBackups = 10
)

// Emitter receives finished capture records.
// Emit is fire-and-forget: failures are logged, never returned.
type Emitter interface {
	Emit(rec *Record)
	Close() error
}

// Noop discards every record
type Noop struct{}

func (Noop) Emit(*Record) {}
func (Noop) Close() error { return nil }

// File appends one JSON object per line to a rotating file.
type File struct {
	writer *lumberjack.Logger
	logger *zap.Logger
}

// NewFile creates the parent directory and opens the rotating writer lazily
func NewFile(path string, rotation configtypes.RotationConfig, logger *zap.Logger) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory %s: %w", dir, err)
	}

	maxSize := rotation.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	maxAge := rotation.MaxAge
	if maxAge == 0 {
		maxAge = DefaultMaxAge
	}
	maxBackups := rotation.MaxBackups
	if maxBackups == 0 {
		maxBackups = DefaultMaxBackups
	}

	return &File{
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSize,
			MaxAge:     maxAge,
			MaxBackups: maxBackups,
			Compress:   rotation.Compress,
		},
		logger: logger,
	}, nil
}

// Emit writes the record as a single line. lumberjack serializes concurrent writes.
func (f *File) Emit(rec *Record) {
	line, err := json.Marshal(rec)
	if err != nil {
		f.logger.Warn("failed to encode journal record",
			zap.Error(err),
			zap.String("capture_id", rec.CaptureID))
		return
	}
	line = append(line, '\n')
	if _, err := f.writer.Write(line); err != nil {
		f.logger.Warn("failed to write journal record",
			zap.Error(err),
			zap.String("capture_id", rec.CaptureID))
	}
}

func (f *File) Close() error {
	return f.writer.Close()
}

// Multi dispatches records to several emitters
type Multi struct {
	emitters []Emitter
}

func NewMulti(emitters ...Emitter) *Multi {
	return &Multi{emitters: emitters}
}

func (m *Multi) Emit(rec *Record) {
	for _, e := range m.emitters {
		e.Emit(rec)
	}
}

// Close closes every emitter and joins their errors
func (m *Multi) Close() error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
