package postgres

import "time"

// KlineRecord is one bar of a refreshed dataset, unique per symbol, interval and start.
type KlineRecord struct {
	ID uint `gorm:"primaryKey"`

	Symbol   string    `gorm:"type:text;not null;index:idx_kline_symbol;index:idx_symbol_interval_start,unique"`
	Interval string    `gorm:"type:varchar(10);not null;index:idx_symbol_interval_start,unique"`
	Start    time.Time `gorm:"not null;index:idx_symbol_interval_start,unique"`

	Open   float64 `gorm:"type:numeric;not null"`
	High   float64 `gorm:"type:numeric;not null"`
	Low    float64 `gorm:"type:numeric;not null"`
	Close  float64 `gorm:"type:numeric;not null"`
	Volume float64 `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (KlineRecord) TableName() string {
	return "kline_record"
}
