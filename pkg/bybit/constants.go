package bybit

import "fmt"

// KlineInterval is the interval value of the v5 kline endpoint.
type KlineInterval string

const (
	Interval1Min    KlineInterval = "1"
	Interval3Min    KlineInterval = "3"
	Interval5Min    KlineInterval = "5"
	Interval15Min   KlineInterval = "15"
	Interval30Min   KlineInterval = "30"
	Interval60Min   KlineInterval = "60"
	Interval120Min  KlineInterval = "120"
	Interval240Min  KlineInterval = "240"
	Interval360Min  KlineInterval = "360"
	Interval720Min  KlineInterval = "720"
	IntervalDaily   KlineInterval = "D"
	IntervalWeekly  KlineInterval = "W"
	IntervalMonthly KlineInterval = "M"
)

// timeframeIntervals maps the timeframe strings bots use ("15m", "4h") to Bybit intervals.
var timeframeIntervals = map[string]KlineInterval{
	"1m":  Interval1Min,
	"3m":  Interval3Min,
	"5m":  Interval5Min,
	"15m": Interval15Min,
	"30m": Interval30Min,
	"1h":  Interval60Min,
	"2h":  Interval120Min,
	"4h":  Interval240Min,
	"6h":  Interval360Min,
	"12h": Interval720Min,
	"1d":  IntervalDaily,
	"1w":  IntervalWeekly,
	"1M":  IntervalMonthly,
}

// IntervalForTimeframe converts a timeframe such as "15m" to its Bybit interval.
// Native interval values ("15", "D") are accepted unchanged.
func IntervalForTimeframe(tf string) (KlineInterval, error) {
	if iv, ok := timeframeIntervals[tf]; ok {
		return iv, nil
	}
	for _, iv := range timeframeIntervals {
		if string(iv) == tf {
			return iv, nil
		}
	}
	return "", fmt.Errorf("unsupported timeframe %q", tf)
}
