package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"signalbots/internal/strategy"
)

var (
	ErrBotNotFound   = errors.New("bot not found")
	ErrInvalidConfig = errors.New("invalid bot config")
	ErrNotRunning    = errors.New("bot not running")
)

const botIDPrefix = "bot_"

// BotConfig is the immutable snapshot a runner is started with.
// Changing any field requires StartBot with the new config.
type BotConfig struct {
	ID            string
	Name          string
	Symbol        string
	Timeframe     string
	CheckInterval time.Duration
	Rules         strategy.Rules

	// Telegram credentials used by the notifier factory.
	BotToken string
	ChatID   string

	// IgnorePositionTracking disables signal gating (test mode).
	IgnorePositionTracking bool
}

func (c BotConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.ID) == "" {
		problems = append(problems, "id is empty")
	}
	if strings.TrimSpace(c.Symbol) == "" {
		problems = append(problems, "symbol is empty")
	}
	if strings.TrimSpace(c.Timeframe) == "" {
		problems = append(problems, "timeframe is empty")
	}
	if c.CheckInterval < time.Second {
		problems = append(problems, fmt.Sprintf("check interval %s is below 1s", c.CheckInterval))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, ", "))
	}
	return nil
}

// Mode names the position tracking mode.
func (c BotConfig) Mode() string {
	if c.IgnorePositionTracking {
		return "test"
	}
	return "professional"
}

// BotID returns the runtime id of a persisted bot.
func BotID(n uint) string {
	return botIDPrefix + strconv.FormatUint(uint64(n), 10)
}

// ParseBotID extracts the numeric key from a runtime id such as "bot_12".
func ParseBotID(id string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(id, botIDPrefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse bot id %q: %w", id, err)
	}
	return uint(n), nil
}
