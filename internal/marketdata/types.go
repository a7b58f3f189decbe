package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrFetch marks a transient upstream failure (network, timeout, non-2xx, rate limit).
// Workers log it and retry on the next cycle.
var ErrFetch = errors.New("market data fetch failed")

// Key identifies one shareable market-data stream.
type Key struct {
	Symbol    string `json:"symbol"`    // e.g. "BTCUSDT"
	Timeframe string `json:"timeframe"` // e.g. "15m"
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Symbol, k.Timeframe)
}

// Bar is a single OHLCV candle.
type Bar struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Dataset is an ordered (oldest first) sequence of bars.
type Dataset []Bar

// Last returns the most recent bar.
func (d Dataset) Last() (Bar, bool) {
	if len(d) == 0 {
		return Bar{}, false
	}
	return d[len(d)-1], true
}

// Closes returns the close column.
func (d Dataset) Closes() []float64 {
	out := make([]float64, len(d))
	for i, b := range d {
		out[i] = b.Close
	}
	return out
}

// Highs returns the high column.
func (d Dataset) Highs() []float64 {
	out := make([]float64, len(d))
	for i, b := range d {
		out[i] = b.High
	}
	return out
}

// Lows returns the low column.
func (d Dataset) Lows() []float64 {
	out := make([]float64, len(d))
	for i, b := range d {
		out[i] = b.Low
	}
	return out
}

func (d Dataset) clone() Dataset {
	if d == nil {
		return nil
	}
	cp := make(Dataset, len(d))
	copy(cp, d)
	return cp
}

// Fetcher loads the latest bars for a key from the upstream exchange.
// Implementations must return bars in chronological order and wrap failures with ErrFetch.
type Fetcher interface {
	FetchKlines(ctx context.Context, symbol, timeframe string, limit int) (Dataset, error)
}

// Sink receives every dataset a worker successfully refreshed.
type Sink interface {
	Name() string
	Store(ctx context.Context, key Key, data Dataset) error
}
