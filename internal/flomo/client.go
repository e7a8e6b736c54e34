// Package flomo sends rendered notes to a flomo incoming webhook.
//
// flomo limits webhook calls per day, so the client counts every request it
// issues and refuses to send once the configured limit is reached. The
// counter starts over on a new local calendar day.
package flomo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/mrlokans/weread2flomo/internal/entities"
)

const (
	DefaultDailyLimit = 100

	defaultTimeout = 10 * time.Second
	maxReasonBytes = 300
)

type Client struct {
	httpClient *http.Client
	apiURL     string
	dailyLimit int
	now        func() time.Time

	mu    sync.Mutex
	calls int
	day   string
}

type memoRequest struct {
	Content string `json:"content"`
}

type memoResponse struct {
	Code    *int   `json:"code"`
	Message string `json:"message"`
}

// NewClient creates a client for the webhook URL. A non-positive dailyLimit
// falls back to DefaultDailyLimit.
func NewClient(apiURL string, dailyLimit int, timeout time.Duration) *Client {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     apiURL,
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
}

// Deliver posts content as a new memo. It never returns an error; the outcome
// is carried by the result.
func (c *Client) Deliver(ctx context.Context, content string) entities.DeliveryResult {
	if !c.reserve() {
		return entities.QuotaExhausted()
	}

	body, err := json.Marshal(memoRequest{Content: content})
	if err != nil {
		return entities.DeliveryFailure(fmt.Sprintf("encode memo: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return entities.DeliveryFailure(fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return entities.DeliveryFailure(fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return entities.DeliveryFailure(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, shorten(string(data))))
	}

	// Webhook errors arrive as HTTP 200 with a non-zero code.
	var parsed memoResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Code != nil && *parsed.Code != 0 {
		return entities.DeliveryFailure(fmt.Sprintf("flomo code %d: %s", *parsed.Code, parsed.Message))
	}

	return entities.Delivered()
}

// reserve counts a call against today's limit, reporting false when the limit
// was already reached.
func (c *Client) reserve() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	if c.calls >= c.dailyLimit {
		return false
	}
	c.calls++
	return true
}

func (c *Client) rollover() {
	today := c.now().Format("2006-01-02")
	if today != c.day {
		c.day = today
		c.calls = 0
	}
}

// CallCount is the number of requests issued today.
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	return c.calls
}

func (c *Client) DailyLimit() int {
	return c.dailyLimit
}

func shorten(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxReasonBytes {
		return s
	}
	runes := []rune(s)
	if len(runes) > maxReasonBytes/3 {
		runes = runes[:maxReasonBytes/3]
	}
	return string(runes) + "..."
}
