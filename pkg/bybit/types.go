package bybit

import "encoding/json"

// Response is the v5 REST envelope.
type Response struct {
	RetCode int             `json:"retCode"` // 0 means success
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// KlinesResult is the result of /v5/market/kline. Each row is
// [startTime, open, high, low, close, volume, turnover], newest first.
type KlinesResult struct {
	Category string     `json:"category"`
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"`
}
