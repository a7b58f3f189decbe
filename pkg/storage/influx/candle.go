package influx

import (
	"context"
	"fmt"

	"signalbots/internal/marketdata"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const Measurement = "candles"

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// CandleSink writes refreshed bars as points of the candles measurement,
// tagged by symbol and interval. Rewriting a bar overwrites its point.
type CandleSink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	logger *zap.Logger
}

func NewCandleSink(cfg Config, logger *zap.Logger) (*CandleSink, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx url, org and bucket are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &CandleSink{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger: logger.Named("influx"),
	}, nil
}

func (s *CandleSink) Name() string { return "influx" }

func (s *CandleSink) Store(ctx context.Context, key marketdata.Key, data marketdata.Dataset) error {
	if len(data) == 0 {
		return nil
	}
	if err := s.write.WritePoint(ctx, Points(key, data)...); err != nil {
		return fmt.Errorf("write %d candles %s: %w", len(data), key, err)
	}
	s.logger.Debug("candles written", zap.Stringer("key", key), zap.Int("points", len(data)))
	return nil
}

// Healthy reports whether the server answers its health endpoint with pass.
func (s *CandleSink) Healthy(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influx health: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return fmt.Errorf("influx not ready: %+v", health)
	}
	return nil
}

func (s *CandleSink) Close() {
	s.client.Close()
}

// Points converts a dataset into candle points.
func Points(key marketdata.Key, data marketdata.Dataset) []*write.Point {
	out := make([]*write.Point, len(data))
	for i, b := range data {
		out[i] = influxdb2.NewPoint(
			Measurement,
			map[string]string{
				"symbol":   key.Symbol,
				"interval": key.Timeframe,
			},
			map[string]interface{}{
				"open":   b.Open,
				"high":   b.High,
				"low":    b.Low,
				"close":  b.Close,
				"volume": b.Volume,
			},
			b.OpenTime,
		)
	}
	return out
}
