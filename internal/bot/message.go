package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SignalKind identifies an emitted signal. The zero value means no signal.
type SignalKind string

const (
	NoSignal         SignalKind = ""
	EntryLongSignal  SignalKind = "ENTRY_LONG"
	ExitLongSignal   SignalKind = "EXIT_LONG"
	EntryShortSignal SignalKind = "ENTRY_SHORT"
	ExitShortSignal  SignalKind = "EXIT_SHORT"
)

func (k SignalKind) label() string {
	switch k {
	case EntryLongSignal:
		return "LONG ENTRY"
	case ExitLongSignal:
		return "LONG EXIT"
	case EntryShortSignal:
		return "SHORT ENTRY"
	case ExitShortSignal:
		return "SHORT EXIT"
	}
	return string(k)
}

func (k SignalKind) emoji() string {
	switch k {
	case EntryLongSignal:
		return "🟢"
	case EntryShortSignal:
		return "🔴"
	}
	return "⚪"
}

func (k SignalKind) detail() string {
	switch k {
	case EntryLongSignal:
		return "Bullish entry conditions detected"
	case ExitLongSignal:
		return "Bullish exit conditions detected"
	case EntryShortSignal:
		return "Bearish entry conditions detected"
	case ExitShortSignal:
		return "Bearish exit conditions detected"
	}
	return ""
}

// FormatSignal renders the Telegram HTML message for a signal.
func FormatSignal(symbol string, kind SignalKind, price float64, at time.Time) string {
	var b strings.Builder
	e := kind.emoji()
	fmt.Fprintf(&b, "%s <b>TRADING SIGNAL</b> %s\n\n", e, e)
	fmt.Fprintf(&b, "📊 Pair: <b>%s</b>\n", html.EscapeString(symbol))
	fmt.Fprintf(&b, "📈 Type: <b>%s</b>\n", kind.label())
	fmt.Fprintf(&b, "💰 Price: <b>$%s</b>\n\n", decimal.NewFromFloat(price).StringFixed(2))
	fmt.Fprintf(&b, "🕐 Time: <b>%s</b>\n\n", at.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "%s %s\n\n", e, kind.detail())
	b.WriteString("⚠️ <i>This is an automated message. Always do your own analysis before trading.</i>")
	return b.String()
}

func startNotice(cfg BotConfig) string {
	return fmt.Sprintf("🤖 Bot '%s' started\n📊 Monitoring %s on %s\n⏰ Checking every %s",
		html.EscapeString(cfg.Name), html.EscapeString(cfg.Symbol), html.EscapeString(cfg.Timeframe), cfg.CheckInterval)
}
