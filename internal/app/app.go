package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"signalbots/config"
	"signalbots/internal/bot"
	"signalbots/internal/marketdata"
	"signalbots/pkg/binance"
	"signalbots/pkg/bybit"
	"signalbots/pkg/storage/influx"
	"signalbots/pkg/storage/postgres"
	"signalbots/pkg/storage/redis"
	"signalbots/pkg/telegram"

	"go.uber.org/zap"
)

const statsInterval = time.Minute

// App owns the market data service, the bot supervisor and every backend they use.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Market     *marketdata.Service
	Supervisor *bot.Supervisor

	lister  bot.ActiveBotLister
	closers []io.Closer
}

// New builds the upstream fetcher, the optional sinks and stores, the market
// data service and the supervisor. Backends that fail to connect are fatal.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	fetcher, err := NewFetcher(cfg.Exchange, logger)
	if err != nil {
		return nil, err
	}

	var (
		sinks []marketdata.Sink
		store bot.Store = bot.NopStore{}
	)

	if cfg.Postgres.Enabled {
		client, err := postgres.Open(cfg.Postgres, cfg.Environment, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		a.closers = append(a.closers, client)

		botStore := postgres.NewBotStore(client)
		store, a.lister = botStore, botStore
		if cfg.Postgres.KlineSink {
			sinks = append(sinks, postgres.NewKlineSink(client, cfg.Postgres.KlineRetention))
		}
	}

	if cfg.Redis.Enabled {
		mirror := redis.NewDatasetMirror(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := mirror.Ping(ctx)
		cancel()
		if err != nil {
			a.Close()
			_ = mirror.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, mirror)
		sinks = append(sinks, mirror)
	}

	if cfg.Influx.Enabled {
		sink, err := influx.NewCandleSink(influx.Config{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, closerFunc(func() error { sink.Close(); return nil }))
		sinks = append(sinks, sink)
	}

	a.Market = marketdata.NewService(fetcher, logger,
		marketdata.WithSinks(sinks...),
		marketdata.WithKlineLimit(cfg.Exchange.KlineLimit),
		marketdata.WithFetchTimeout(cfg.MarketData.FetchTimeout),
	)
	a.Supervisor = bot.NewSupervisor(a.Market, NotifierFactory(cfg.Telegram, logger), logger,
		bot.WithStore(store),
		bot.WithStopTimeout(cfg.Bots.StopTimeout),
	)
	return a, nil
}

// NewFetcher returns the kline source selected by cfg.Provider.
func NewFetcher(cfg config.ExchangeConfig, logger *zap.Logger) (marketdata.Fetcher, error) {
	switch cfg.Provider {
	case "", "binance":
		return binance.NewFetcher(binance.Config{Market: cfg.Market, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}, logger)
	case "bybit":
		return bybit.NewRESTClient(cfg.BaseURL, cfg.Category, cfg.Timeout, logger), nil
	}
	return nil, fmt.Errorf("unknown exchange provider %q", cfg.Provider)
}

// NotifierFactory builds one Telegram client per bot from its token and chat.
func NotifierFactory(cfg config.TelegramConfig, logger *zap.Logger) bot.NotifierFactory {
	return func(bc bot.BotConfig) (bot.Notifier, error) {
		client, err := telegram.NewClient(telegram.Config{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}, bc.BotToken, bc.ChatID,
			logger.With(zap.String("bot_id", bc.ID)))
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Run loads the persisted active bots and blocks until ctx is cancelled, then
// stops every bot and shuts the market data service down.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Bots.LoadActiveOnStart && a.lister != nil {
		if _, err := a.Supervisor.LoadActiveBots(ctx, a.lister); err != nil {
			return errors.Join(fmt.Errorf("failed to load active bots: %w", err), a.shutdown())
		}
	}

	// Periodically print subscription stats for visibility
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return a.shutdown()
		case <-ticker.C:
			st := a.Market.Stats()
			a.logger.Info("market data stats",
				zap.Int("bots", a.Supervisor.Len()),
				zap.Int("active_keys", st.ActiveKeys),
				zap.Int("live_workers", st.LiveWorkers),
				zap.Int("subscribers", st.TotalSubscribers),
				zap.Int("cached", st.CachedDatasets),
			)
		}
	}
}

func (a *App) shutdown() error {
	a.logger.Info("shutting down", zap.Int("bots", a.Supervisor.Len()))
	a.Supervisor.StopAll()

	timeout := a.cfg.MarketData.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := a.Market.Shutdown(ctx)
	return errors.Join(err, a.Close())
}

// Close releases the backends in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
