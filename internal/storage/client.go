package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pageinfo/pageinfo/internal/common/configtypes"
	"github.com/pageinfo/pageinfo/internal/har"
)

const defaultTTL = 24 * time.Hour

// Options controls how captures are persisted
type Options struct {
	TTL   time.Duration
	Codec har.Codec
}

// Store persists HAR documents in Redis
type Store struct {
	rdb    *redis.Client
	logger *zap.Logger
	ttl    time.Duration
	codec  har.Codec
}

// New connects to Redis and verifies the connection with a ping
func New(cfg *configtypes.RedisConfig, opts Options, logger *zap.Logger) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	codec, err := har.ParseCodec(string(opts.Codec))
	if err != nil {
		return nil, err
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	// go-redis defaults: 5s dial, 3s read/write, pool 10*GOMAXPROCS
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	s := &Store{
		rdb:    rdb,
		logger: logger,
		ttl:    ttl,
		codec:  codec,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Debug("Redis client connected successfully",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("codec", string(codec)))

	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	result, err := s.rdb.Ping(ctx).Result()
	if err != nil {
		s.logger.Error("Redis ping failed", zap.Error(err))
		return err
	}
	if result != "PONG" {
		s.logger.Error("Redis ping returned unexpected response", zap.String("response", result))
		return fmt.Errorf("unexpected ping response: %s", result)
	}
	return nil
}

// Codec returns the codec new documents are written with
func (s *Store) Codec() har.Codec {
	return s.codec
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		s.logger.Error("Failed to close Redis client", zap.Error(err))
		return err
	}
	s.logger.Debug("Redis client closed")
	return nil
}
