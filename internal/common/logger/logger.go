package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pageinfo/pageinfo/internal/common/configtypes"
)

// Logger is a zap.Logger whose output levels can be changed at runtime.
type Logger struct {
	*zap.Logger
	levels []zap.AtomicLevel
	closer io.Closer
}

// New builds a logger with one core per enabled output.
func New(cfg configtypes.LogConfig) (*Logger, error) {
	global := parseLogLevel(cfg.Level)

	var cores []zapcore.Core
	l := &Logger{}

	if cfg.Console.Enabled {
		level := zap.NewAtomicLevelAt(resolveLogLevel(cfg.Console.Level, global))
		l.levels = append(l.levels, level)
		cores = append(cores, zapcore.NewCore(
			createEncoder(cfg.Console.Format),
			zapcore.Lock(consoleStream(cfg.Console.Stream)),
			level))
	}

	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("file.path must be specified when file logging is enabled")
		}
		level := zap.NewAtomicLevelAt(resolveLogLevel(cfg.File.Level, global))
		l.levels = append(l.levels, level)

		writer := newRotatingWriter(cfg.File.Path, cfg.File.Rotation)
		l.closer = writer
		cores = append(cores, zapcore.NewCore(createEncoder(cfg.File.Format), zapcore.AddSync(writer), level))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one log output (console or file) must be enabled")
	}

	l.Logger = zap.New(zapcore.NewTee(cores...))
	return l, nil
}

// NewDefault creates the startup logger used before configuration is loaded.
// It writes to stderr so stdout stays free for command output.
func NewDefault(level string) *Logger {
	l, err := New(configtypes.LogConfig{
		Level: level,
		Console: configtypes.ConsoleLogConfig{
			Enabled: true,
			Format:  configtypes.LogFormatConsole,
			Stream:  configtypes.StreamStderr,
		},
	})
	if err != nil {
		// unreachable: console output is always enabled
		return &Logger{Logger: zap.NewNop()}
	}
	return l
}

// SetLevel changes the level of every output
func (l *Logger) SetLevel(level string) {
	parsed := parseLogLevel(level)
	for _, atomic := range l.levels {
		atomic.SetLevel(parsed)
	}
}

// Close flushes buffered entries and closes the log file, if any
func (l *Logger) Close() error {
	_ = l.Sync()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func consoleStream(stream string) zapcore.WriteSyncer {
	if stream == configtypes.StreamStderr {
		return os.Stderr
	}
	return os.Stdout
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case configtypes.LogLevelDebug:
		return zap.DebugLevel
	case configtypes.LogLevelWarn:
		return zap.WarnLevel
	case configtypes.LogLevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func resolveLogLevel(outputLevel string, global zapcore.Level) zapcore.Level {
	if outputLevel != "" {
		return parseLogLevel(outputLevel)
	}
	return global
}

// createEncoder returns a JSON encoder, a plain text encoder for files or a colored
// console encoder for terminals.
func createEncoder(format string) zapcore.Encoder {
	if format == configtypes.LogFormatJSON {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if format == configtypes.LogFormatText {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func newRotatingWriter(path string, rotation configtypes.RotationConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSize,
		MaxAge:     rotation.MaxAge,
		MaxBackups: rotation.MaxBackups,
		Compress:   rotation.Compress,
	}
}
