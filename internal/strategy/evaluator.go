package strategy

import (
	"math"

	"signalbots/internal/marketdata"

	"go.uber.org/zap"
)

// EqualityTolerance is the absolute tolerance of Equal and NotEqual.
const EqualityTolerance = 0.0001

// Signals holds the evaluation of all four zones on one dataset.
type Signals struct {
	EntryLong  bool `json:"entry_long"`
	ExitLong   bool `json:"exit_long"`
	EntryShort bool `json:"entry_short"`
	ExitShort  bool `json:"exit_short"`
}

// Evaluator turns a zone's block list into a boolean. It never fails: malformed
// lists degrade to false, unknown indicators and values to 0.
type Evaluator struct {
	indicators map[string]IndicatorFunc
	logger     *zap.Logger
}

func NewEvaluator(logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		indicators: defaultIndicators(),
		logger:     logger.Named("strategy"),
	}
}

// Register adds or replaces an indicator. Not safe to call while evaluating.
func (e *Evaluator) Register(name string, fn IndicatorFunc) {
	e.indicators[name] = fn
}

// EvaluateAll evaluates every zone of rules against data.
func (e *Evaluator) EvaluateAll(data marketdata.Dataset, rules Rules) Signals {
	return Signals{
		EntryLong:  e.Evaluate(data, rules, EntryLong),
		ExitLong:   e.Evaluate(data, rules, ExitLong),
		EntryShort: e.Evaluate(data, rules, EntryShort),
		ExitShort:  e.Evaluate(data, rules, ExitShort),
	}
}

// Evaluate returns the truth of one zone. Empty zones are false.
func (e *Evaluator) Evaluate(data marketdata.Dataset, rules Rules, zone Zone) bool {
	blocks := rules[zone]
	if len(blocks) == 0 {
		return false
	}

	var st stack
	for _, b := range toPostfix(blocks) {
		switch v := b.(type) {
		case IndicatorBlock:
			st.push(number(e.indicator(data, v)))
		case ValueBlock:
			st.push(number(e.value(data, v)))
		case ComparisonBlock:
			if st.len() < 2 {
				e.logger.Debug("comparison skipped, missing operands", zap.String("zone", string(zone)), zap.String("op", string(v.Op)))
				continue
			}
			right := st.pop().num()
			left := st.pop().num()
			st.push(boolean(compare(left, right, v.Op)))
		case LogicBlock:
			if st.len() < v.Op.Arity() {
				e.logger.Debug("logic skipped, missing operands", zap.String("zone", string(zone)), zap.String("op", string(v.Op)))
				continue
			}
			st.push(boolean(apply(&st, v.Op)))
		default:
			e.logger.Debug("unknown block skipped", zap.String("zone", string(zone)), zap.Any("block", b))
		}
	}

	// a number left on top means the rule was never completed
	top, ok := st.peek()
	if !ok || !top.isBool {
		return false
	}
	return top.truth()
}

func (e *Evaluator) indicator(data marketdata.Dataset, b IndicatorBlock) (v float64) {
	fn, ok := e.indicators[b.Name]
	if !ok {
		e.logger.Debug("unknown indicator", zap.String("name", b.Name))
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("indicator panicked", zap.String("name", b.Name), zap.Any("panic", r))
			v = 0
		}
	}()
	return fn(data, b.Params)
}

func (e *Evaluator) value(data marketdata.Dataset, b ValueBlock) float64 {
	price := 0.0
	if bar, ok := data.Last(); ok {
		price = bar.Close
	}

	switch b.Name {
	case "Price":
		return price
	case "Number":
		n, _ := b.Params.valueParam()
		return n
	case "Percentage":
		pct, _ := b.Params.valueParam()
		return price * pct / 100
	default:
		e.logger.Debug("unknown value block", zap.String("name", b.Name))
		return 0
	}
}

// toPostfix rewrites human-entered infix comparisons ([a, >, b]) to postfix
// ([a, b, >]). A comparison is treated as infix when exactly one number is
// pending before it and a value-producing block follows; lists already written
// in postfix ([a, b, >]) pass through unchanged.
func toPostfix(blocks Blocks) Blocks {
	out := make(Blocks, 0, len(blocks))

	// kinds simulates the operand stack: true for a number, false for a boolean
	var kinds []bool
	pendingNumbers := func() int {
		n := 0
		for i := len(kinds) - 1; i >= 0 && kinds[i]; i-- {
			n++
		}
		return n
	}
	consume := func(k int, result bool) {
		if len(kinds) < k {
			return
		}
		kinds = append(kinds[:len(kinds)-k], result)
	}

	for i := 0; i < len(blocks); i++ {
		b := blocks[i]
		switch v := b.(type) {
		case IndicatorBlock, ValueBlock:
			out = append(out, b)
			kinds = append(kinds, true)
		case ComparisonBlock:
			if i > 0 && producesValue(blocks[i-1]) && i+1 < len(blocks) && producesValue(blocks[i+1]) && pendingNumbers() == 1 {
				out = append(out, blocks[i+1], b)
				kinds = append(kinds, true)
				i++
			} else {
				out = append(out, b)
			}
			consume(2, false)
		case LogicBlock:
			out = append(out, b)
			consume(v.Op.Arity(), false)
		default:
			out = append(out, b)
		}
	}
	return out
}

func compare(left, right float64, op Comparator) bool {
	switch op {
	case GreaterThan, Crosses:
		return left > right
	case LessThan:
		return left < right
	case GreaterOrEqual:
		return left >= right
	case LessOrEqual:
		return left <= right
	case Equal:
		return math.Abs(left-right) < EqualityTolerance
	case NotEqual:
		return math.Abs(left-right) >= EqualityTolerance
	default:
		return false
	}
}

// apply pops the operator's operands; the caller has checked there are enough.
func apply(st *stack, op LogicOp) bool {
	if op == Not {
		return !st.pop().truth()
	}

	right := st.pop().truth()
	left := st.pop().truth()
	switch op {
	case And:
		return left && right
	case Or:
		return left || right
	case Xor:
		return left != right
	case Nand:
		return !(left && right)
	case Nor:
		return !(left || right)
	default:
		return false
	}
}

// operand is a stack slot. Booleans are stored as 1 or 0 so a comparison
// against a boolean operand still has a numeric meaning.
type operand struct {
	value  float64
	isBool bool
}

func number(v float64) operand { return operand{value: v} }

func boolean(b bool) operand {
	if b {
		return operand{value: 1, isBool: true}
	}
	return operand{isBool: true}
}

func (o operand) num() float64 { return o.value }

func (o operand) truth() bool { return o.value != 0 }

type stack struct {
	items []operand
}

func (s *stack) push(o operand) { s.items = append(s.items, o) }

func (s *stack) pop() operand {
	o := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return o
}

func (s *stack) peek() (operand, bool) {
	if len(s.items) == 0 {
		return operand{}, false
	}
	return s.items[len(s.items)-1], true
}

func (s *stack) len() int { return len(s.items) }
