package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"signalbots/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestSupervisor(t *testing.T, m MarketData, store Store) (*Supervisor, *fakeNotifier) {
	t.Helper()
	n := &fakeNotifier{}
	factory := func(cfg BotConfig) (Notifier, error) {
		if cfg.BotToken == "" {
			return nil, errors.New("missing bot token")
		}
		return n, nil
	}
	s := NewSupervisor(m, factory, zaptest.NewLogger(t), WithStore(store), WithStopTimeout(time.Second))
	t.Cleanup(s.StopAll)
	return s, n
}

// go test -v --run TestStartBotReplacesRunner
func TestStartBotReplacesRunner(t *testing.T) {
	m := newFakeMarket(100)
	s, _ := newTestSupervisor(t, m, NopStore{})

	cfg := testConfig("bot_1", nil)
	require.NoError(t, s.StartBot(cfg))
	first, ok := s.Status("bot_1")
	require.True(t, ok)

	cfg.Symbol = "ETHUSDT"
	require.NoError(t, s.StartBot(cfg))
	second, ok := s.Status("bot_1")
	require.True(t, ok)

	assert.Equal(t, 1, s.Len(), "replace never leaks a duplicate runner")
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, "ETHUSDT", second.Symbol)
	assert.True(t, second.Running)

	key, ok := m.Subscribed("bot_1")
	require.True(t, ok, "the replacement keeps its subscription")
	assert.Equal(t, "ETHUSDT", key.Symbol)
}

// go test -v --run TestStartBotRejectsInvalidConfig
func TestStartBotRejectsInvalidConfig(t *testing.T) {
	s, _ := newTestSupervisor(t, newFakeMarket(100), NopStore{})

	bad := testConfig("", nil)
	bad.CheckInterval = 0
	err := s.StartBot(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	noToken := testConfig("bot_2", nil)
	noToken.BotToken = ""
	assert.ErrorIs(t, s.StartBot(noToken), ErrInvalidConfig)
	assert.Zero(t, s.Len())
}

// go test -v --run TestStopBotIsIdempotent
func TestStopBotIsIdempotent(t *testing.T) {
	m := newFakeMarket(100)
	s, _ := newTestSupervisor(t, m, NopStore{})

	require.NoError(t, s.StartBot(testConfig("bot_1", nil)))
	assert.True(t, s.StopBot("bot_1"))
	assert.False(t, s.StopBot("bot_1"))
	assert.False(t, s.StopBot("bot_404"))

	_, ok := s.Status("bot_1")
	assert.False(t, ok)
	_, ok = m.Subscribed("bot_1")
	assert.False(t, ok)
}

// go test -v --run TestRestartBot
func TestRestartBot(t *testing.T) {
	stored := testConfig("bot_3", nil)
	stored.Name = "reloaded"
	s, _ := newTestSupervisor(t, newFakeMarket(100), newMemoryStore(stored))

	err := s.RestartBot(context.Background(), "bot_9")
	assert.ErrorIs(t, err, ErrBotNotFound)

	running := testConfig("bot_3", nil)
	require.NoError(t, s.StartBot(running))
	require.NoError(t, s.RestartBot(context.Background(), "bot_3"))

	st, ok := s.Status("bot_3")
	require.True(t, ok)
	assert.Equal(t, "reloaded", st.Name)
	assert.Equal(t, 1, s.Len())
}

// go test -v --run TestSupervisorForceCheck
func TestSupervisorForceCheck(t *testing.T) {
	s, n := newTestSupervisor(t, newFakeMarket(100), NopStore{})

	_, err := s.ForceCheck(context.Background(), "bot_1")
	assert.ErrorIs(t, err, ErrBotNotFound)

	require.NoError(t, s.StartBot(testConfig("bot_1", strategy.Rules{strategy.EntryLong: alwaysTrue})))
	require.Eventually(t, func() bool { return n.Signals() == 1 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := s.ForceCheck(ctx, "bot_1")
	require.NoError(t, err)
	assert.Equal(t, EntryLongSignal, res.Sent, "forced check re-emits a gated entry")
	assert.Equal(t, 2, n.Signals())

	st, _ := s.Status("bot_1")
	assert.Equal(t, 2, st.SignalsSent)
	assert.True(t, st.InLong)
}

// go test -v --run TestStopAll
func TestStopAll(t *testing.T) {
	m := newFakeMarket(100)
	s, _ := newTestSupervisor(t, m, NopStore{})

	for _, id := range []string{"bot_1", "bot_2", "bot_3"} {
		require.NoError(t, s.StartBot(testConfig(id, nil)))
	}
	require.Len(t, s.Statuses(), 3)
	assert.Equal(t, "bot_1", s.Statuses()[0].ID)

	s.StopAll()
	assert.Zero(t, s.Len())
	for _, id := range []string{"bot_1", "bot_2", "bot_3"} {
		_, ok := m.Subscribed(id)
		assert.False(t, ok, id)
	}
}

// go test -v --run TestLoadActiveBots
func TestLoadActiveBots(t *testing.T) {
	invalid := testConfig("bot_3", nil)
	invalid.Symbol = ""
	store := newMemoryStore(testConfig("bot_1", nil), testConfig("bot_2", nil), invalid)
	s, _ := newTestSupervisor(t, newFakeMarket(100), store)

	started, err := s.LoadActiveBots(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 2, started)
	assert.Equal(t, 2, s.Len())
}

// go test -v --run TestBotID
func TestBotID(t *testing.T) {
	assert.Equal(t, "bot_12", BotID(12))

	n, err := ParseBotID("bot_12")
	require.NoError(t, err)
	assert.Equal(t, uint(12), n)

	_, err = ParseBotID("bot_x")
	assert.Error(t, err)
}
