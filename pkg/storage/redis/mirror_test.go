package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"signalbots/internal/marketdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// go test -v --run TestMirrorKey
func TestMirrorKey(t *testing.T) {
	m := NewDatasetMirror(Config{Addr: "localhost:6379"}, nil)
	defer m.Close()

	assert.Equal(t, "signalbots:klines:BTCUSDT:15m", m.Key(marketdata.Key{Symbol: "BTCUSDT", Timeframe: "15m"}))

	custom := NewDatasetMirror(Config{Addr: "localhost:6379", Prefix: "x:"}, nil)
	defer custom.Close()
	assert.Equal(t, "x:ETHUSDT:1h", custom.Key(marketdata.Key{Symbol: "ETHUSDT", Timeframe: "1h"}))
}

// go test -v --run TestMirrorRoundTrip
func TestMirrorRoundTrip(t *testing.T) {
	addr := os.Getenv("SIGNALBOTS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SIGNALBOTS_TEST_REDIS_ADDR not set")
	}
	m := NewDatasetMirror(Config{Addr: addr, Prefix: "signalbots:test:"}, zaptest.NewLogger(t))
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Ping(ctx))

	key := marketdata.Key{Symbol: "BTCUSDT", Timeframe: "1m"}
	defer m.client.Del(context.Background(), m.Key(key))

	data := marketdata.Dataset{{OpenTime: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3}}
	require.NoError(t, m.Store(ctx, key, data))

	got, ok, err := m.load(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, got)

	ttl, err := m.client.TTL(ctx, m.Key(key)).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= marketdata.MaxAge("1m"), ttl)

	_, ok, err = m.load(ctx, marketdata.Key{Symbol: "NONE", Timeframe: "1m"})
	require.NoError(t, err)
	assert.False(t, ok)
}
