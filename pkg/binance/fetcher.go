package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"signalbots/internal/marketdata"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"
)

const (
	MarketSpot    = "spot"
	MarketFutures = "futures"
)

// Config selects the Binance market and endpoint used for klines.
type Config struct {
	Market  string
	BaseURL string
	Timeout time.Duration
}

// Fetcher reads klines through the public Binance REST API.
type Fetcher struct {
	spot    *binance.Client
	futures *futures.Client
	market  string
	logger  *zap.Logger
}

func NewFetcher(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	market := cfg.Market
	if market == "" {
		market = MarketSpot
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	f := &Fetcher{market: market, logger: logger.Named("binance")}
	switch market {
	case MarketSpot:
		f.spot = binance.NewClient("", "")
		f.spot.HTTPClient = httpClient
		if cfg.BaseURL != "" {
			f.spot.BaseURL = cfg.BaseURL
		}
	case MarketFutures:
		f.futures = futures.NewClient("", "")
		f.futures.HTTPClient = httpClient
		if cfg.BaseURL != "" {
			f.futures.BaseURL = cfg.BaseURL
		}
	default:
		return nil, fmt.Errorf("unknown binance market %q", cfg.Market)
	}
	return f, nil
}

// FetchKlines returns up to limit bars, oldest first.
func (f *Fetcher) FetchKlines(ctx context.Context, symbol, timeframe string, limit int) (marketdata.Dataset, error) {
	var (
		rows []row
		err  error
	)
	if f.market == MarketFutures {
		rows, err = f.futuresKlines(ctx, symbol, timeframe, limit)
	} else {
		rows, err = f.spotKlines(ctx, symbol, timeframe, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: binance %s klines %s/%s: %v", marketdata.ErrFetch, f.market, symbol, timeframe, err)
	}

	out := make(marketdata.Dataset, 0, len(rows))
	for _, r := range rows {
		bar, err := r.bar()
		if err != nil {
			return nil, fmt.Errorf("%w: binance kline %s/%s: %v", marketdata.ErrFetch, symbol, timeframe, err)
		}
		out = append(out, bar)
	}
	f.logger.Debug("klines fetched", zap.String("symbol", symbol), zap.String("timeframe", timeframe), zap.Int("bars", len(out)))
	return out, nil
}

func (f *Fetcher) spotKlines(ctx context.Context, symbol, timeframe string, limit int) ([]row, error) {
	klines, err := f.spot.NewKlinesService().
		Symbol(symbol).
		Interval(timeframe).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]row, len(klines))
	for i, k := range klines {
		rows[i] = row{openTime: k.OpenTime, open: k.Open, high: k.High, low: k.Low, close: k.Close, volume: k.Volume}
	}
	return rows, nil
}

func (f *Fetcher) futuresKlines(ctx context.Context, symbol, timeframe string, limit int) ([]row, error) {
	klines, err := f.futures.NewKlinesService().
		Symbol(symbol).
		Interval(timeframe).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]row, len(klines))
	for i, k := range klines {
		rows[i] = row{openTime: k.OpenTime, open: k.Open, high: k.High, low: k.Low, close: k.Close, volume: k.Volume}
	}
	return rows, nil
}

// row is a kline as both Binance clients return it: millisecond open time
// and decimal strings.
type row struct {
	openTime int64
	open     string
	high     string
	low      string
	close    string
	volume   string
}

func (r row) bar() (marketdata.Bar, error) {
	var (
		b   = marketdata.Bar{OpenTime: time.UnixMilli(r.openTime).UTC()}
		err error
	)
	fields := []struct {
		dst *float64
		src string
	}{
		{&b.Open, r.open},
		{&b.High, r.high},
		{&b.Low, r.low},
		{&b.Close, r.close},
		{&b.Volume, r.volume},
	}
	for _, fld := range fields {
		if *fld.dst, err = strconv.ParseFloat(fld.src, 64); err != nil {
			return marketdata.Bar{}, fmt.Errorf("parse %q: %w", fld.src, err)
		}
	}
	return b, nil
}
