package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signalbots/internal/bot"
	"signalbots/internal/strategy"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BotStore persists bot configuration, runtime stats and the signal log.
type BotStore struct {
	client *PostgresClient
}

func NewBotStore(client *PostgresClient) *BotStore {
	return &BotStore{client: client}
}

func (s *BotStore) LoadBotConfig(ctx context.Context, id string) (bot.BotConfig, error) {
	n, err := bot.ParseBotID(id)
	if err != nil {
		return bot.BotConfig{}, fmt.Errorf("%w: %v", bot.ErrBotNotFound, err)
	}

	var rec BotRecord
	err = s.client.DB.WithContext(ctx).First(&rec, n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return bot.BotConfig{}, fmt.Errorf("%w: %s", bot.ErrBotNotFound, id)
	}
	if err != nil {
		return bot.BotConfig{}, fmt.Errorf("load bot %s: %w", id, err)
	}
	return rec.BotConfig()
}

func (s *BotStore) SaveBotRuntimeStats(ctx context.Context, id string, uptime time.Duration, signalsSent int) error {
	n, err := bot.ParseBotID(id)
	if err != nil {
		return err
	}
	err = s.client.DB.WithContext(ctx).Model(&BotRecord{}).Where("id = ?", n).
		Updates(map[string]any{
			"uptime":       int64(uptime / time.Second),
			"signals_sent": signalsSent,
		}).Error
	if err != nil {
		return fmt.Errorf("save stats %s: %w", id, err)
	}
	return nil
}

// AppendSignalLog records a delivered signal and stamps it on the bot row.
func (s *BotStore) AppendSignalLog(ctx context.Context, id string, kind bot.SignalKind, text string, at time.Time) error {
	n, err := bot.ParseBotID(id)
	if err != nil {
		return err
	}
	err = s.client.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&SignalRecord{BotID: n, SignalType: string(kind), SignalText: text, CreatedAt: at}).Error; err != nil {
			return err
		}
		return tx.Model(&BotRecord{}).Where("id = ?", n).Updates(map[string]any{
			"last_signal":      at.UnixMilli(),
			"last_signal_text": text,
			"signals_sent":     gorm.Expr("signals_sent + 1"),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("append signal %s: %w", id, err)
	}
	return nil
}

// ListActiveBots returns the config of every bot with status active. Rows that
// cannot be converted are logged and skipped.
func (s *BotStore) ListActiveBots(ctx context.Context) ([]bot.BotConfig, error) {
	var recs []BotRecord
	err := s.client.DB.WithContext(ctx).Where("status = ?", BotStatusActive).Order("id").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list active bots: %w", err)
	}

	out := make([]bot.BotConfig, 0, len(recs))
	for _, rec := range recs {
		cfg, err := rec.BotConfig()
		if err != nil {
			s.client.logger.Warn("skipping unreadable bot", zap.Uint("id", rec.ID), zap.Error(err))
			continue
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (s *BotStore) createBot(ctx context.Context, rec *BotRecord) error {
	if err := s.client.DB.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	return nil
}

func (s *BotStore) setStatus(ctx context.Context, id uint, status string) error {
	err := s.client.DB.WithContext(ctx).Model(&BotRecord{}).Where("id = ?", id).Update("status", status).Error
	if err != nil {
		return fmt.Errorf("set status of bot %d: %w", id, err)
	}
	return nil
}

func (s *BotStore) signals(ctx context.Context, id uint, limit int) ([]SignalRecord, error) {
	var out []SignalRecord
	err := s.client.DB.WithContext(ctx).Where("bot_id = ?", id).Order("created_at DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("signals of bot %d: %w", id, err)
	}
	return out, nil
}

// BotConfig converts the row into a runner config.
func (r BotRecord) BotConfig() (bot.BotConfig, error) {
	rules, err := strategy.ParseRules([]byte(r.Strategy))
	if err != nil {
		return bot.BotConfig{}, fmt.Errorf("bot %d: %w", r.ID, err)
	}
	return bot.BotConfig{
		ID:                     bot.BotID(r.ID),
		Name:                   r.Name,
		Symbol:                 r.Symbol,
		Timeframe:              r.Timeframe,
		CheckInterval:          time.Duration(r.CheckInterval) * time.Second,
		Rules:                  rules,
		BotToken:               r.BotToken,
		ChatID:                 r.ChatID,
		IgnorePositionTracking: r.IgnorePositionTracking,
	}, nil
}
