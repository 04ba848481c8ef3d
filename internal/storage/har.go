package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pageinfo/pageinfo/internal/har"
)

// Entry is a stored capture as read back from Redis
type Entry struct {
	CaptureID string
	URL       string
	CreatedAt time.Time
	HAR       *har.HAR
}

// SaveCapture stores the compressed document and points the URL's latest index at it.
// Both keys share the store TTL.
func (s *Store) SaveCapture(ctx context.Context, captureID, pageURL string, doc *har.HAR) error {
	data, err := har.Encode(doc, s.codec)
	if err != nil {
		return err
	}

	key := harKey(captureID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		fieldCodec, string(s.codec),
		fieldData, data,
		fieldURL, pageURL,
		fieldCreatedAt, time.Now().UTC().Unix(),
	)
	pipe.Expire(ctx, key, s.ttl)
	pipe.Set(ctx, latestKey(pageURL), captureID, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Redis capture store failed",
			zap.String("capture_id", captureID),
			zap.Duration("ttl", s.ttl),
			zap.Error(err))
		return fmt.Errorf("redis store capture failed: %w", err)
	}

	s.logger.Debug("Stored capture",
		zap.String("capture_id", captureID),
		zap.String("url", pageURL),
		zap.Int("bytes", len(data)))
	return nil
}

// GetCapture loads a stored capture. Returns nil, nil when it does not exist or expired.
func (s *Store) GetCapture(ctx context.Context, captureID string) (*Entry, error) {
	fields, err := s.rdb.HGetAll(ctx, harKey(captureID)).Result()
	if err != nil {
		s.logger.Error("Redis HGETALL failed",
			zap.String("capture_id", captureID),
			zap.Error(err))
		return nil, fmt.Errorf("redis get capture failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	doc, err := har.Decode([]byte(fields[fieldData]), har.Codec(fields[fieldCodec]))
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", captureID, err)
	}

	entry := &Entry{
		CaptureID: captureID,
		URL:       fields[fieldURL],
		HAR:       doc,
	}
	if ts, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64); err == nil {
		entry.CreatedAt = time.Unix(ts, 0).UTC()
	}
	return entry, nil
}

// LatestCaptureID returns the id of the most recent capture of pageURL, or "" when none is stored
func (s *Store) LatestCaptureID(ctx context.Context, pageURL string) (string, error) {
	id, err := s.rdb.Get(ctx, latestKey(pageURL)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		s.logger.Error("Redis GET failed",
			zap.String("url", pageURL),
			zap.Error(err))
		return "", fmt.Errorf("redis get latest failed: %w", err)
	}
	return id, nil
}

// DeleteCapture removes a stored capture. The latest index is left to expire.
func (s *Store) DeleteCapture(ctx context.Context, captureID string) error {
	if err := s.rdb.Del(ctx, harKey(captureID)).Err(); err != nil {
		return fmt.Errorf("redis delete capture failed: %w", err)
	}
	return nil
}
