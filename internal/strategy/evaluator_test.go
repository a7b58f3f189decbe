package strategy

import (
	"testing"
	"time"

	"signalbots/internal/marketdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// trend builds n bars whose close rises by step each bar, ending at last.
func trend(n int, last, step float64) marketdata.Dataset {
	out := make(marketdata.Dataset, n)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		c := last - float64(n-1-i)*step
		out[i] = marketdata.Bar{
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     c - step/2,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   100,
		}
	}
	return out
}

func num(v float64) ValueBlock {
	return ValueBlock{Name: "Number", Params: Params{"value": v}}
}

func price() ValueBlock { return ValueBlock{Name: "Price"} }

func cmp(op Comparator) ComparisonBlock { return ComparisonBlock{Op: op} }

func logic(op LogicOp) LogicBlock { return LogicBlock{Op: op} }

func newTestEvaluator(t *testing.T) *Evaluator {
	return NewEvaluator(zaptest.NewLogger(t))
}

// go test -v --run TestPriceAboveEMA
func TestPriceAboveEMA(t *testing.T) {
	e := newTestEvaluator(t)
	ema50 := IndicatorBlock{Name: "EMA", Params: Params{"period": 50.0}}

	up := trend(120, 200, 1)
	down := trend(120, 80, -1)

	rules := Rules{EntryLong: {price(), cmp(GreaterThan), ema50}}
	assert.True(t, e.Evaluate(up, rules, EntryLong), "rising close sits above its EMA")
	assert.False(t, e.Evaluate(down, rules, EntryLong), "falling close sits below its EMA")

	// unrelated zones with their own blocks must not affect the result
	rules[ExitLong] = Blocks{num(1), num(2), num(3), cmp(LessThan), cmp(GreaterThan), logic(Not)}
	rules[EntryShort] = Blocks{cmp(GreaterThan), num(5)}
	assert.True(t, e.Evaluate(up, rules, EntryLong))
}

// go test -v --run TestInfixRewrite
func TestInfixRewrite(t *testing.T) {
	blocks := Blocks{price(), cmp(GreaterThan), num(10)}
	got := toPostfix(blocks)
	require.Len(t, got, 3)
	assert.Equal(t, price(), got[0])
	assert.Equal(t, num(10), got[1])
	assert.Equal(t, cmp(GreaterThan), got[2])

	postfix := Blocks{price(), num(10), cmp(GreaterThan), num(1), num(2), cmp(LessThan), logic(And)}
	assert.Equal(t, postfix, toPostfix(postfix), "postfix input passes through unchanged")
}

// go test -v --run TestComparisons
func TestComparisons(t *testing.T) {
	e := newTestEvaluator(t)
	data := trend(5, 100, 1)

	cases := []struct {
		name  string
		left  float64
		op    Comparator
		right float64
		want  bool
	}{
		{"gt", 2, GreaterThan, 1, true},
		{"gt equal", 1, GreaterThan, 1, false},
		{"lt", 1, LessThan, 2, true},
		{"ge", 1, GreaterOrEqual, 1, true},
		{"le", 2, LessOrEqual, 1, false},
		{"eq within tolerance", 1.00005, Equal, 1, true},
		{"eq outside tolerance", 1.0002, Equal, 1, false},
		{"ne within tolerance", 1.00005, NotEqual, 1, false},
		{"ne outside tolerance", 1.0002, NotEqual, 1, true},
		{"crosses", 3, Crosses, 2, true},
		{"unparsed symbol", 3, Comparator(">"), 2, false},
		{"unknown", 3, Comparator("Between"), 2, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rules := Rules{EntryLong: {num(tc.left), cmp(tc.op), num(tc.right)}}
			assert.Equal(t, tc.want, e.Evaluate(data, rules, EntryLong))
		})
	}
}

// go test -v --run TestLogicOperators
func TestLogicOperators(t *testing.T) {
	e := newTestEvaluator(t)
	data := trend(5, 100, 1)

	truth := Blocks{num(2), num(1), cmp(GreaterThan)}
	lie := Blocks{num(1), num(2), cmp(GreaterThan)}
	combine := func(a, b Blocks, op LogicOp) Blocks {
		out := append(Blocks{}, a...)
		out = append(out, b...)
		return append(out, logic(op))
	}

	cases := []struct {
		op   LogicOp
		a, b Blocks
		want bool
	}{
		{And, truth, truth, true},
		{And, truth, lie, false},
		{Or, lie, truth, true},
		{Or, lie, lie, false},
		{Xor, truth, lie, true},
		{Xor, truth, truth, false},
		{Nand, truth, truth, false},
		{Nand, lie, truth, true},
		{Nor, lie, lie, true},
		{Nor, truth, lie, false},
	}
	for _, tc := range cases {
		rules := Rules{EntryLong: combine(tc.a, tc.b, tc.op)}
		assert.Equal(t, tc.want, e.Evaluate(data, rules, EntryLong), tc.op)
	}

	rules := Rules{EntryLong: append(append(Blocks{}, lie...), logic(Not))}
	assert.True(t, e.Evaluate(data, rules, EntryLong))
}

// go test -v --run TestMalformedRulesDegradeToFalse
func TestMalformedRulesDegradeToFalse(t *testing.T) {
	e := newTestEvaluator(t)
	data := trend(5, 100, 1)

	cases := map[string]Blocks{
		"empty":                {},
		"lonely comparison":    {cmp(GreaterThan)},
		"lonely logic":         {logic(And)},
		"comparison first":     {cmp(GreaterThan), num(0)},
		"unknown only":         {UnknownBlock{Type: "widget"}},
		"not without operand":  {logic(Not)},
		"false then bad logic": {num(1), num(2), cmp(GreaterThan), logic(And)},
		"bare number":          {num(5)},
		"bare price":           {price()},
		"half entered":         {price(), cmp(GreaterThan)},
		"trailing value":       {num(1), num(2), cmp(GreaterThan), num(3)},
	}
	for name, blocks := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, e.Evaluate(data, Rules{EntryLong: blocks}, EntryLong))
			})
		})
	}

	// a skipped block does not discard the best-effort result
	rules := Rules{EntryLong: {logic(Or), num(2), cmp(GreaterThan), num(1)}}
	assert.True(t, e.Evaluate(data, rules, EntryLong))

	assert.False(t, e.Evaluate(data, Rules{}, ExitShort), "missing zone never fires")
	assert.False(t, e.Evaluate(nil, Rules{EntryLong: {price(), cmp(GreaterThan), num(0)}}, EntryLong))
}

// go test -v --run TestValueBlocks
func TestValueBlocks(t *testing.T) {
	e := newTestEvaluator(t)
	data := trend(5, 200, 1)

	pct := ValueBlock{Name: "Percentage", Params: Params{"block_3_value": "50"}}
	assert.InDelta(t, 100, e.value(data, pct), 1e-9)

	legacy := ValueBlock{Name: "Number", Params: Params{"block_8_value": "1.234,5"}}
	assert.InDelta(t, 1234.5, e.value(data, legacy), 1e-9)

	plain := ValueBlock{Name: "Number", Params: Params{"value": "0.5"}}
	assert.InDelta(t, 0.5, e.value(data, plain), 1e-9)

	assert.Equal(t, 200.0, e.value(data, price()))
	assert.Zero(t, e.value(data, ValueBlock{Name: "Mystery"}))
}

// go test -v --run TestIndicators
func TestIndicators(t *testing.T) {
	e := newTestEvaluator(t)
	data := trend(100, 200, 1)

	sma := e.indicator(data, IndicatorBlock{Name: "SMA", Params: Params{"period": 10.0}})
	assert.InDelta(t, 195.5, sma, 1e-9)

	rsi := e.indicator(data, IndicatorBlock{Name: "RSI", Params: Params{"period": 14.0}})
	assert.InDelta(t, 100, rsi, 1e-6, "monotonic gains pin RSI to 100")

	upper := e.indicator(data, IndicatorBlock{Name: "BBands", Params: Params{"period": 20.0, "band": "upper"}})
	lower := e.indicator(data, IndicatorBlock{Name: "BBands", Params: Params{"period": 20.0, "band": "lower"}})
	assert.Greater(t, upper, lower)

	macd := e.indicator(data, IndicatorBlock{Name: "MACD", Params: Params{"component": "macd"}})
	assert.Greater(t, macd, 0.0, "fast EMA leads the slow EMA in an uptrend")

	atr := e.indicator(data, IndicatorBlock{Name: "ATR", Params: Params{"period": 14.0}})
	assert.Greater(t, atr, 0.0)

	short := trend(5, 200, 1)
	assert.Zero(t, e.indicator(short, IndicatorBlock{Name: "EMA", Params: Params{"period": 50.0}}), "not enough bars")
	assert.Zero(t, e.indicator(data, IndicatorBlock{Name: "Ichimoku"}))

	e.Register("Boom", func(marketdata.Dataset, Params) float64 { panic("boom") })
	assert.Zero(t, e.indicator(data, IndicatorBlock{Name: "Boom"}))
}

// go test -v --run TestSwing
func TestSwing(t *testing.T) {
	highs := []float64{1, 2, 3, 4, 5, 9, 5, 4, 3, 2, 1, 2, 5, 2, 1, 0}
	data := make(marketdata.Dataset, len(highs))
	for i, h := range highs {
		data[i] = marketdata.Bar{High: h, Low: h - 0.5, Close: h}
	}

	assert.Equal(t, 5.0, swing(data, Params{"lookback": 2.0, "type": "high"}), "latest swing high wins")
	assert.Equal(t, 9.0, swing(data, Params{"lookback": 4.0, "type": "high"}), "late peak lacks bars on its right")
	assert.Equal(t, 0.5, swing(data, Params{"lookback": 2.0, "type": "low"}))
	assert.Zero(t, swing(data[:3], Params{"lookback": 2.0}))
}

// go test -v --run TestParseRules
func TestParseRules(t *testing.T) {
	doc := []byte(`{
		"entry_long": [
			{"type": "value", "name": "Price", "params": {}},
			{"type": "operator", "name": "GreaterThan"},
			{"type": "indicator", "name": "EMA", "params": {"period": "50"}}
		],
		"exit_long": [
			{"type": "indicator", "name": "RSI", "params": {"period": 14}},
			{"type": "comparison", "name": "GreaterThan"},
			{"type": "value", "name": "Number", "params": {"value": 70}},
			{"type": "sticker", "name": "smile"}
		]
	}`)

	rules, err := ParseRules(doc)
	require.NoError(t, err)
	require.Len(t, rules[EntryLong], 3)
	assert.Equal(t, ComparisonBlock{Op: GreaterThan}, rules[EntryLong][1])
	assert.Equal(t, 50, rules[EntryLong][2].(IndicatorBlock).Params.Int("period", 0))
	assert.Equal(t, UnknownBlock{Type: "sticker", Name: "smile"}, rules[ExitLong][3])

	e := newTestEvaluator(t)
	assert.True(t, e.Evaluate(trend(120, 200, 1), rules, EntryLong))

	empty, err := ParseRules(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseRules([]byte(`{"entry_long": 5}`))
	assert.Error(t, err)
}

// go test -v --run TestParseRulesToleratesBadParams
func TestParseRulesToleratesBadParams(t *testing.T) {
	doc := []byte(`{
		"entry_long": [
			{"type": "value", "name": "Price", "params": []},
			{"type": "comparison", "name": ">"},
			{"type": "value", "name": "Number", "params": {"value": 1}}
		],
		"exit_long": [
			{"type": "indicator", "name": "EMA", "params": ""}
		]
	}`)

	rules, err := ParseRules(doc)
	require.NoError(t, err)
	require.Len(t, rules[EntryLong], 3)
	assert.Equal(t, ValueBlock{Name: "Price"}, rules[EntryLong][0])
	assert.Equal(t, IndicatorBlock{Name: "EMA"}, rules[ExitLong][0])

	e := newTestEvaluator(t)
	assert.True(t, e.Evaluate(trend(5, 100, 1), rules, EntryLong))
	assert.False(t, e.Evaluate(trend(5, 100, 1), rules, ExitLong))
}
