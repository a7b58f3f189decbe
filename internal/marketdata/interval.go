package marketdata

import "time"

// DefaultUpdateInterval applies to timeframes outside the refresh table.
const DefaultUpdateInterval = 120 * time.Second

// refreshIntervals maps a candle timeframe to how often its worker polls upstream.
// Shorter candles go stale faster and are polled more often.
var refreshIntervals = map[string]time.Duration{
	"1m":  30 * time.Second,
	"3m":  45 * time.Second,
	"5m":  60 * time.Second,
	"15m": 2 * time.Minute,
	"30m": 3 * time.Minute,
	"1h":  5 * time.Minute,
	"2h":  8 * time.Minute,
	"4h":  10 * time.Minute,
	"6h":  15 * time.Minute,
	"8h":  20 * time.Minute,
	"12h": 30 * time.Minute,
	"1d":  time.Hour,
}

// IntervalFunc resolves the refresh interval of a timeframe.
type IntervalFunc func(timeframe string) time.Duration

// UpdateInterval returns the refresh period for timeframe.
func UpdateInterval(timeframe string) time.Duration {
	if d, ok := refreshIntervals[timeframe]; ok {
		return d
	}
	return DefaultUpdateInterval
}

// IsKnownTimeframe reports whether timeframe has an entry in the refresh table.
func IsKnownTimeframe(timeframe string) bool {
	_, ok := refreshIntervals[timeframe]
	return ok
}

// maxAge is the oldest an entry may be and still be served: one missed refresh is tolerated.
func maxAge(interval IntervalFunc, timeframe string) time.Duration {
	return 2 * interval(timeframe)
}

// MaxAge returns 2 × UpdateInterval(timeframe).
func MaxAge(timeframe string) time.Duration {
	return maxAge(UpdateInterval, timeframe)
}
