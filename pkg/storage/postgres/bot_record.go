package postgres

import "time"

const BotStatusActive = "active"

// BotRecord is a persisted signal bot.
type BotRecord struct {
	ID     uint   `gorm:"primaryKey"`
	UserID uint   `gorm:"not null;index:idx_signal_bots_user"`
	Name   string `gorm:"type:text;not null"`

	BotToken string `gorm:"type:text;not null"`
	ChatID   string `gorm:"type:text;not null"`

	Symbol        string `gorm:"type:text;not null"`
	Timeframe     string `gorm:"type:varchar(10);not null"`
	CheckInterval int    `gorm:"not null;default:60"` // seconds
	Strategy      string `gorm:"type:text"`           // JSON rules per zone

	Status                 string `gorm:"type:varchar(20);not null;default:paused;index:idx_signal_bots_status"`
	IgnorePositionTracking bool   `gorm:"not null;default:false"`

	SignalsSent    int    `gorm:"not null;default:0"`
	Uptime         int64  `gorm:"not null;default:0"` // seconds
	LastSignal     int64  // unix milliseconds
	LastSignalText string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BotRecord) TableName() string {
	return "signal_bots"
}

// SignalRecord is one delivered signal.
type SignalRecord struct {
	ID         uint      `gorm:"primaryKey"`
	BotID      uint      `gorm:"not null;index:idx_bot_signals_bot"`
	SignalType string    `gorm:"type:varchar(20);not null"`
	SignalText string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"not null;index:idx_bot_signals_created"`
}

func (SignalRecord) TableName() string {
	return "bot_signals"
}
