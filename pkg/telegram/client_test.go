package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, "123:abc", "-100200", zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

// go test -v --run TestNotifySendsMessage
func TestNotifySendsMessage(t *testing.T) {
	var got sendMessageRequest
	var path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	})

	require.NoError(t, c.Notify(context.Background(), "<b>hi</b>", true))
	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "-100200", got.ChatID)
	assert.Equal(t, "<b>hi</b>", got.Text)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.True(t, got.DisableNotification)
}

// go test -v --run TestNotifyNotAcknowledged
func TestNotifyNotAcknowledged(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	})

	err := c.Notify(context.Background(), "x", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAcknowledged)
	assert.Contains(t, err.Error(), "chat not found")
}

// go test -v --run TestNotifyRetriesRateLimit
func TestNotifyRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":1}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, c.Notify(context.Background(), "x", false))
	assert.Equal(t, int32(2), calls.Load())
}

// go test -v --run TestNotifyGarbage
func TestNotifyGarbage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})
	assert.Error(t, c.Notify(context.Background(), "x", false))
}

// go test -v --run TestNewClientValidates
func TestNewClientValidates(t *testing.T) {
	_, err := NewClient(Config{}, "", "1", nil)
	assert.Error(t, err)
	_, err = NewClient(Config{}, "t", " ", nil)
	assert.Error(t, err)

	c, err := NewClient(Config{}, "t", "1", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}
