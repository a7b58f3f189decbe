package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"signalbots/internal/marketdata"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const DefaultPrefix = "signalbots:klines:"

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// DatasetMirror copies every refreshed dataset into Redis as JSON. Entries
// expire once the dataset would be stale in the in-process cache.
type DatasetMirror struct {
	client *redis.Client
	prefix string
	ttl    func(timeframe string) time.Duration
	logger *zap.Logger
}

func NewDatasetMirror(cfg Config, logger *zap.Logger) *DatasetMirror {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newDatasetMirror(client, cfg.Prefix, logger)
}

func newDatasetMirror(client *redis.Client, prefix string, logger *zap.Logger) *DatasetMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &DatasetMirror{
		client: client,
		prefix: prefix,
		ttl:    marketdata.MaxAge,
		logger: logger.Named("redis"),
	}
}

func (m *DatasetMirror) Name() string { return "redis" }

func (m *DatasetMirror) Key(key marketdata.Key) string {
	return m.prefix + key.Symbol + ":" + key.Timeframe
}

func (m *DatasetMirror) Store(ctx context.Context, key marketdata.Key, data marketdata.Dataset) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode dataset %s: %w", key, err)
	}
	if err := m.client.Set(ctx, m.Key(key), b, m.ttl(key.Timeframe)).Err(); err != nil {
		return fmt.Errorf("mirror dataset %s: %w", key, err)
	}
	return nil
}

// load reads a mirrored dataset. A missing or expired entry reports false.
func (m *DatasetMirror) load(ctx context.Context, key marketdata.Key) (marketdata.Dataset, bool, error) {
	b, err := m.client.Get(ctx, m.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load dataset %s: %w", key, err)
	}
	var data marketdata.Dataset
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, false, fmt.Errorf("decode dataset %s: %w", key, err)
	}
	return data, true, nil
}

func (m *DatasetMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *DatasetMirror) Close() error {
	return m.client.Close()
}
