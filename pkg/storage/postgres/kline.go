package postgres

import (
	"context"
	"fmt"
	"time"

	"signalbots/internal/marketdata"

	"gorm.io/gorm/clause"
)

const klineBatchSize = 200

// KlineSink upserts every refreshed dataset into kline_record.
type KlineSink struct {
	client    *PostgresClient
	retention time.Duration
	now       func() time.Time
}

// NewKlineSink returns a sink writing through client. With a positive
// retention, bars older than it are deleted for the key after each write.
func NewKlineSink(client *PostgresClient, retention time.Duration) *KlineSink {
	return &KlineSink{client: client, retention: retention, now: time.Now}
}

func (s *KlineSink) Name() string { return "postgres" }

func (s *KlineSink) Store(ctx context.Context, key marketdata.Key, data marketdata.Dataset) error {
	if len(data) == 0 {
		return nil
	}
	if err := s.client.UpsertKlines(ctx, ToKlineRecords(key, data)); err != nil {
		return err
	}
	if s.retention > 0 {
		if err := s.client.DeleteOldKlines(ctx, key, s.now().Add(-s.retention)); err != nil {
			return err
		}
	}
	return nil
}

// UpsertKlines inserts records, overwriting the prices of bars already stored.
// The newest bar is still forming, so its values change between refreshes.
func (p *PostgresClient) UpsertKlines(ctx context.Context, records []KlineRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "interval"},
			{Name: "start"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "updated_at"}),
	}).CreateInBatches(records, klineBatchSize).Error
	if err != nil {
		return fmt.Errorf("upsert klines: %w", err)
	}
	return nil
}

// getKlines returns stored bars of a key starting at or after since, oldest first.
func (p *PostgresClient) getKlines(ctx context.Context, key marketdata.Key, since time.Time) ([]KlineRecord, error) {
	var out []KlineRecord
	err := p.DB.WithContext(ctx).
		Where(`symbol = ? AND "interval" = ? AND start >= ?`, key.Symbol, key.Timeframe, since).
		Order("start ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("get klines %s: %w", key, err)
	}
	return out, nil
}

func (p *PostgresClient) DeleteOldKlines(ctx context.Context, key marketdata.Key, before time.Time) error {
	err := p.DB.WithContext(ctx).
		Where(`symbol = ? AND "interval" = ? AND start < ?`, key.Symbol, key.Timeframe, before).
		Delete(&KlineRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete old klines %s: %w", key, err)
	}
	return nil
}

// ToKlineRecords converts a dataset into rows for key.
func ToKlineRecords(key marketdata.Key, data marketdata.Dataset) []KlineRecord {
	out := make([]KlineRecord, len(data))
	for i, b := range data {
		out[i] = KlineRecord{
			Symbol:   key.Symbol,
			Interval: key.Timeframe,
			Start:    b.OpenTime.UTC(),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			Volume:   b.Volume,
		}
	}
	return out
}
