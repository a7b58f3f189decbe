package strategy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Zone is one of the four rule slots of a strategy.
type Zone string

const (
	EntryLong  Zone = "entry_long"
	ExitLong   Zone = "exit_long"
	EntryShort Zone = "entry_short"
	ExitShort  Zone = "exit_short"
)

// Zones lists every zone in signal priority order.
var Zones = []Zone{EntryLong, ExitLong, EntryShort, ExitShort}

// Rules holds the block list of each zone. Missing zones never fire.
type Rules map[Zone]Blocks

// Block is one element of a zone's rule list: an IndicatorBlock, ValueBlock,
// ComparisonBlock, LogicBlock or UnknownBlock.
type Block interface {
	block()
}

// IndicatorBlock pushes the latest value of a named indicator.
type IndicatorBlock struct {
	Name   string
	Params Params
}

// ValueBlock pushes a constant or a value derived from the current price.
type ValueBlock struct {
	Name   string
	Params Params
}

// ComparisonBlock pops two numbers and pushes their comparison.
type ComparisonBlock struct {
	Op Comparator
}

// LogicBlock pops one or two booleans and pushes their combination.
type LogicBlock struct {
	Op LogicOp
}

// UnknownBlock keeps the position of a block whose type is not recognised. It is skipped.
type UnknownBlock struct {
	Type string
	Name string
}

func (IndicatorBlock) block()  {}
func (ValueBlock) block()      {}
func (ComparisonBlock) block() {}
func (LogicBlock) block()      {}
func (UnknownBlock) block()    {}

// producesValue reports whether b pushes a number.
func producesValue(b Block) bool {
	switch b.(type) {
	case IndicatorBlock, ValueBlock:
		return true
	}
	return false
}

// Comparator is a binary numeric predicate.
type Comparator string

const (
	GreaterThan    Comparator = "GreaterThan"
	LessThan       Comparator = "LessThan"
	GreaterOrEqual Comparator = "GreaterOrEqual"
	LessOrEqual    Comparator = "LessOrEqual"
	Equal          Comparator = "Equal"
	NotEqual       Comparator = "NotEqual"
	// Crosses only sees current values, so it behaves as GreaterThan.
	Crosses Comparator = "Crosses"
)

var comparatorAliases = map[string]Comparator{
	">":  GreaterThan,
	"<":  LessThan,
	">=": GreaterOrEqual,
	"<=": LessOrEqual,
	"=":  Equal,
	"==": Equal,
	"!=": NotEqual,
}

func parseComparator(name string) Comparator {
	if c, ok := comparatorAliases[name]; ok {
		return c
	}
	return Comparator(name)
}

// LogicOp is a boolean combinator.
type LogicOp string

const (
	And  LogicOp = "AND"
	Or   LogicOp = "OR"
	Not  LogicOp = "NOT"
	Xor  LogicOp = "XOR"
	Nand LogicOp = "NAND"
	Nor  LogicOp = "NOR"
)

// Arity returns how many operands the operator consumes.
func (op LogicOp) Arity() int {
	if op == Not {
		return 1
	}
	return 2
}

// Blocks is a zone's rule list. On the wire each block is {"type","name","params"}.
type Blocks []Block

type wireBlock struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Params Params `json:"params,omitempty"`
}

// rawBlock defers params decoding so one block with malformed params does not
// reject the whole strategy.
type rawBlock struct {
	Type   string          `json:"type"`
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (r rawBlock) wire() wireBlock {
	w := wireBlock{Type: r.Type, Name: r.Name}
	if len(r.Params) > 0 {
		if err := json.Unmarshal(r.Params, &w.Params); err != nil {
			w.Params = nil
		}
	}
	return w
}

func (bs *Blocks) UnmarshalJSON(data []byte) error {
	var raw []rawBlock
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode blocks: %w", err)
	}

	out := make(Blocks, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.wire().decode())
	}
	*bs = out
	return nil
}

func (bs Blocks) MarshalJSON() ([]byte, error) {
	raw := make([]wireBlock, 0, len(bs))
	for _, b := range bs {
		raw = append(raw, encode(b))
	}
	return json.Marshal(raw)
}

func (w wireBlock) decode() Block {
	switch w.Type {
	case "indicator":
		return IndicatorBlock{Name: w.Name, Params: w.Params}
	case "value":
		return ValueBlock{Name: w.Name, Params: w.Params}
	case "comparison", "operator":
		return ComparisonBlock{Op: parseComparator(w.Name)}
	case "logic":
		return LogicBlock{Op: LogicOp(strings.ToUpper(w.Name))}
	default:
		return UnknownBlock{Type: w.Type, Name: w.Name}
	}
}

func encode(b Block) wireBlock {
	switch v := b.(type) {
	case IndicatorBlock:
		return wireBlock{Type: "indicator", Name: v.Name, Params: v.Params}
	case ValueBlock:
		return wireBlock{Type: "value", Name: v.Name, Params: v.Params}
	case ComparisonBlock:
		return wireBlock{Type: "comparison", Name: string(v.Op)}
	case LogicBlock:
		return wireBlock{Type: "logic", Name: string(v.Op)}
	case UnknownBlock:
		return wireBlock{Type: v.Type, Name: v.Name}
	}
	return wireBlock{}
}

// ParseRules decodes a strategy JSON document. An empty document yields empty rules.
func ParseRules(data []byte) (Rules, error) {
	rules := Rules{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return rules, nil
	}
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse strategy rules: %w", err)
	}
	return rules, nil
}

// Params carries a block's user-entered parameters. Values arrive as JSON numbers or strings.
type Params map[string]any

// Float returns params[key] as a number, or def when missing or unparsable.
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return def
}

// Int returns params[key] truncated to an int, or def.
func (p Params) Int(key string, def int) int {
	return int(p.Float(key, float64(def)))
}

// String returns params[key] as a string, or def.
func (p Params) String(key, def string) string {
	v, ok := p[key]
	if !ok {
		return def
	}
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

// valueParam finds the entered number of a value block. The builder UI names the
// field "value" or "block_<n>_value", so any key containing "value" is accepted.
func (p Params) valueParam() (float64, bool) {
	if f, ok := toFloat(p["value"]); ok {
		return f, true
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		if strings.Contains(strings.ToLower(k), "value") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if f, ok := toFloat(p[k]); ok {
			return f, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		return parseNumber(n)
	}
	return 0, false
}

// parseNumber accepts plain numbers and comma-decimal input with dot thousands separators ("1.234,5").
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
