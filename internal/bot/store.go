package bot

import (
	"context"
	"time"

	"signalbots/internal/marketdata"
)

// MarketData is the part of the market data service a runner needs.
type MarketData interface {
	Subscribe(botID, symbol, timeframe string)
	Unsubscribe(botID, symbol, timeframe string)
	GetData(symbol, timeframe string) (marketdata.Dataset, bool)
}

// Notifier delivers a message. A nil error means the message was acknowledged.
type Notifier interface {
	Notify(ctx context.Context, text string, silent bool) error
}

// NotifierFactory builds the notifier for one bot from its credentials.
type NotifierFactory func(cfg BotConfig) (Notifier, error)

// Store is the persistent bot configuration store.
// LoadBotConfig returns ErrBotNotFound when no bot has the id.
type Store interface {
	LoadBotConfig(ctx context.Context, id string) (BotConfig, error)
	SaveBotRuntimeStats(ctx context.Context, id string, uptime time.Duration, signalsSent int) error
	AppendSignalLog(ctx context.Context, id string, kind SignalKind, text string, at time.Time) error
}

// ActiveBotLister lists persisted bots marked active.
type ActiveBotLister interface {
	ListActiveBots(ctx context.Context) ([]BotConfig, error)
}

// NopStore persists nothing and knows no bots.
type NopStore struct{}

func (NopStore) LoadBotConfig(context.Context, string) (BotConfig, error) {
	return BotConfig{}, ErrBotNotFound
}

func (NopStore) SaveBotRuntimeStats(context.Context, string, time.Duration, int) error {
	return nil
}

func (NopStore) AppendSignalLog(context.Context, string, SignalKind, string, time.Time) error {
	return nil
}
