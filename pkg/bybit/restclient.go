package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"signalbots/internal/marketdata"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL  = "https://api.bybit.com"
	DefaultCategory = "linear"
	maxKlineLimit   = 1000
)

type RESTClient struct {
	baseURL    string
	category   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewRESTClient(baseURL, category string, timeout time.Duration, logger *zap.Logger) *RESTClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if category == "" {
		category = DefaultCategory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTClient{
		baseURL:    baseURL,
		category:   category,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("bybit"),
	}
}

// FetchKlines implements marketdata.Fetcher. Bars are returned oldest first.
func (c *RESTClient) FetchKlines(ctx context.Context, symbol, timeframe string, limit int) (marketdata.Dataset, error) {
	interval, err := IntervalForTimeframe(timeframe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", marketdata.ErrFetch, err)
	}
	data, err := c.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: bybit klines %s/%s: %v", marketdata.ErrFetch, symbol, timeframe, err)
	}
	c.logger.Debug("klines fetched", zap.String("symbol", symbol), zap.String("timeframe", timeframe), zap.Int("bars", len(data)))
	return data, nil
}

// GetKlines requests the latest limit klines of symbol.
func (c *RESTClient) GetKlines(ctx context.Context, symbol string, interval KlineInterval, limit int) (marketdata.Dataset, error) {
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	q := url.Values{}
	q.Set("category", c.category)
	q.Set("symbol", symbol)
	q.Set("interval", string(interval))
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.baseURL + "/v5/market/kline?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("bybit http %d: %s", resp.StatusCode, body)
	}

	var raw Response
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if raw.RetCode != 0 {
		return nil, fmt.Errorf("bybit error %d: %s", raw.RetCode, raw.RetMsg)
	}

	var result KlinesResult
	if err := json.Unmarshal(raw.Result, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return parseKlines(result.List)
}

// parseKlines converts newest-first rows into a chronological dataset.
func parseKlines(rows [][]string) (marketdata.Dataset, error) {
	out := make(marketdata.Dataset, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row %d has %d fields", i, len(row))
		}
		start, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("kline row %d start: %w", i, err)
		}
		var vals [5]float64
		for j := range vals {
			if vals[j], err = strconv.ParseFloat(row[j+1], 64); err != nil {
				return nil, fmt.Errorf("kline row %d field %d: %w", i, j+1, err)
			}
		}
		out[len(rows)-1-i] = marketdata.Bar{
			OpenTime: time.UnixMilli(start).UTC(),
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		}
	}
	return out, nil
}
