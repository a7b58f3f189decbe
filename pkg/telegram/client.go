package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL    = "https://api.telegram.org"
	DefaultTimeout    = 10 * time.Second
	defaultRetryAfter = 5 * time.Second
	maxRetryAfter     = 30 * time.Second
)

// ErrNotAcknowledged is returned when Telegram answers without "ok": true.
var ErrNotAcknowledged = errors.New("telegram did not acknowledge message")

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client sends messages to one chat through the Bot API.
type Client struct {
	baseURL    string
	token      string
	chatID     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg Config, token, chatID string, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	if strings.TrimSpace(chatID) == "" {
		return nil, errors.New("telegram chat id is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      token,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("telegram").With(zap.String("chat_id", chatID)),
	}, nil
}

type sendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode"`
	DisableNotification bool   `json:"disable_notification"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Notify sends an HTML message. A silent message is delivered without a
// notification sound. Rate-limited requests are retried once.
func (c *Client) Notify(ctx context.Context, text string, silent bool) error {
	payload := sendMessageRequest{
		ChatID:              c.chatID,
		Text:                text,
		ParseMode:           "HTML",
		DisableNotification: silent,
	}

	resp, err := c.call(ctx, "sendMessage", payload)
	if err == nil && !resp.OK && resp.ErrorCode == http.StatusTooManyRequests {
		wait := time.Duration(resp.Parameters.RetryAfter) * time.Second
		if wait <= 0 {
			wait = defaultRetryAfter
		}
		if wait > maxRetryAfter {
			wait = maxRetryAfter
		}
		c.logger.Warn("rate limited, retrying once", zap.Duration("retry_after", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("telegram sendMessage: %w", ctx.Err())
		}
		resp, err = c.call(ctx, "sendMessage", payload)
	}
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("%w: %d %s", ErrNotAcknowledged, resp.ErrorCode, resp.Description)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, payload any) (apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return apiResponse{}, fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return apiResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the URL carries the token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return apiResponse{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiResponse{}, fmt.Errorf("read response: %w", err)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return apiResponse{}, fmt.Errorf("decode response (http %d): %w", resp.StatusCode, err)
	}
	return out, nil
}
