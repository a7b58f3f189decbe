package strategy

import (
	"math"

	"signalbots/internal/marketdata"

	"github.com/markcheno/go-talib"
)

// IndicatorFunc computes the latest value of an indicator over data.
// It returns 0 when the value cannot be computed.
type IndicatorFunc func(data marketdata.Dataset, params Params) float64

func defaultIndicators() map[string]IndicatorFunc {
	return map[string]IndicatorFunc{
		"EMA":    ema,
		"SMA":    sma,
		"RSI":    rsi,
		"MACD":   macd,
		"BBands": bbands,
		"ATR":    atr,
		"Swing":  swing,
	}
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func ema(data marketdata.Dataset, p Params) float64 {
	period := p.Int("period", 20)
	if period < 2 || len(data) < period {
		return 0
	}
	return last(talib.Ema(data.Closes(), period))
}

func sma(data marketdata.Dataset, p Params) float64 {
	period := p.Int("period", 20)
	if period < 2 || len(data) < period {
		return 0
	}
	return last(talib.Sma(data.Closes(), period))
}

func rsi(data marketdata.Dataset, p Params) float64 {
	period := p.Int("period", 14)
	if period < 2 || len(data) <= period {
		return 0
	}
	return last(talib.Rsi(data.Closes(), period))
}

func macd(data marketdata.Dataset, p Params) float64 {
	fast := p.Int("fast", 12)
	slow := p.Int("slow", 26)
	signal := p.Int("signal", 9)
	if fast < 2 || slow < 2 || signal < 1 || len(data) < slow+signal {
		return 0
	}

	line, sig, hist := talib.Macd(data.Closes(), fast, slow, signal)
	switch p.String("component", "macd") {
	case "signal":
		return last(sig)
	case "histogram":
		return last(hist)
	default:
		return last(line)
	}
}

func bbands(data marketdata.Dataset, p Params) float64 {
	period := p.Int("period", 20)
	dev := p.Float("std_dev", 2)
	if period < 2 || len(data) < period {
		return 0
	}

	upper, middle, lower := talib.BBands(data.Closes(), period, dev, dev, talib.SMA)
	switch p.String("band", "middle") {
	case "upper":
		return last(upper)
	case "lower":
		return last(lower)
	default:
		return last(middle)
	}
}

func atr(data marketdata.Dataset, p Params) float64 {
	period := p.Int("period", 14)
	if period < 1 || len(data) <= period {
		return 0
	}
	return last(talib.Atr(data.Highs(), data.Lows(), data.Closes(), period))
}

// swing returns the most recent local extreme that is strictly above (high) or
// below (low) the lookback bars on each side.
func swing(data marketdata.Dataset, p Params) float64 {
	lookback := p.Int("lookback", 5)
	if lookback < 1 {
		return 0
	}

	series := data.Highs()
	better := func(a, b float64) bool { return a > b }
	if p.String("type", "high") == "low" {
		series = data.Lows()
		better = func(a, b float64) bool { return a < b }
	}

	for i := len(series) - 1 - lookback; i >= lookback; i-- {
		extreme := true
		for j := 1; j <= lookback; j++ {
			if !better(series[i], series[i-j]) || !better(series[i], series[i+j]) {
				extreme = false
				break
			}
		}
		if extreme {
			return series[i]
		}
	}
	return 0
}
