package journal

import "go.uber.org/zap"

// Log writes a one-line summary of each record to the application logger
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Emit(rec *Record) {
	fields := []zap.Field{
		zap.String("capture_id", rec.CaptureID),
		zap.String("url", rec.URL),
		zap.String("outcome", rec.Outcome),
		zap.Int64("duration_ms", rec.DurationMs),
	}
	if rec.Network != nil {
		fields = append(fields,
			zap.Int("requests", rec.Network.TotalRequests),
			zap.Int64("bytes", rec.Network.TotalSize),
			zap.Int("failed", rec.Network.FailedRequests))
	}
	if rec.Error != "" {
		l.logger.Warn("Capture failed", append(fields, zap.String("error", rec.Error))...)
		return
	}
	l.logger.Info("Capture finished", fields...)
}

func (l *Log) Close() error { return nil }
