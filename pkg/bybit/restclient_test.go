package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"signalbots/internal/marketdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newBybitServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/kline" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("category") != "linear" || q.Get("interval") != "15" || q.Get("limit") != "3" {
			http.Error(w, "unexpected query "+r.URL.RawQuery, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// go test -v --run TestFetchKlines
func TestFetchKlines(t *testing.T) {
	srv := newBybitServer(t, `{"retCode":0,"retMsg":"OK","result":{"category":"linear","symbol":"BTCUSDT","list":[
		["1735691400000","103","104","102","103.5","30","3100"],
		["1735690500000","102","103","101","103","20","2050"],
		["1735689600000","101","102","100","102","10","1010"]
	]},"time":1735691412345}`)

	client := NewRESTClient(srv.URL, "", 5*time.Second, zaptest.NewLogger(t))
	data, err := client.FetchKlines(context.Background(), "BTCUSDT", "15m", 3)
	require.NoError(t, err)
	require.Len(t, data, 3)

	assert.Equal(t, time.UnixMilli(1735689600000).UTC(), data[0].OpenTime, "oldest bar comes first")
	assert.Equal(t, 102.0, data[0].Close)
	assert.Equal(t, 103.5, data[2].Close)
	assert.Equal(t, 30.0, data[2].Volume)
}

// go test -v --run TestFetchKlinesErrors
func TestFetchKlinesErrors(t *testing.T) {
	srv := newBybitServer(t, `{"retCode":10001,"retMsg":"params error: symbol invalid","result":{}}`)
	client := NewRESTClient(srv.URL, "linear", 5*time.Second, zaptest.NewLogger(t))

	_, err := client.FetchKlines(context.Background(), "NOPE", "15m", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, marketdata.ErrFetch)
	assert.Contains(t, err.Error(), "symbol invalid")

	_, err = client.FetchKlines(context.Background(), "BTCUSDT", "7m", 3)
	assert.ErrorIs(t, err, marketdata.ErrFetch)

	_, err = client.FetchKlines(context.Background(), "BTCUSDT", "15m", 4)
	assert.ErrorIs(t, err, marketdata.ErrFetch, "non-200 responses are fetch failures")
}

// go test -v --run TestIntervalForTimeframe
func TestIntervalForTimeframe(t *testing.T) {
	cases := map[string]KlineInterval{
		"1m":  Interval1Min,
		"15m": Interval15Min,
		"1h":  Interval60Min,
		"4h":  Interval240Min,
		"1d":  IntervalDaily,
		"D":   IntervalDaily,
		"240": Interval240Min,
	}
	for tf, want := range cases {
		got, err := IntervalForTimeframe(tf)
		require.NoError(t, err, tf)
		assert.Equal(t, want, got, tf)
	}

	_, err := IntervalForTimeframe("8h")
	assert.Error(t, err)
}

// go test -v --run TestParseKlinesRejectsShortRows
func TestParseKlinesRejectsShortRows(t *testing.T) {
	_, err := parseKlines([][]string{{"1", "2"}})
	assert.Error(t, err)

	data, err := parseKlines(nil)
	require.NoError(t, err)
	assert.Empty(t, data)
}
