package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/swiftlogix/order-pipeline/internal/domain"
)

// Client is the best-effort push notifier for both status transitions and
// driver assignment: fire the request, swallow any error, never block the
// caller on a downstream facade being unavailable.
type Client struct {
	statusURL string
	notifyURL string
	client    *http.Client
	timeout   time.Duration
}

func NewClient(statusURL, notifyURL string, timeout time.Duration) *Client {
	return &Client{
		statusURL: statusURL,
		notifyURL: notifyURL,
		client:    &http.Client{Timeout: timeout},
		timeout:   timeout,
	}
}

// NotifyStatus pushes a status transition to the facade. Best effort: a
// failure is logged and never returned, matching the Notifier contract.
func (c *Client) NotifyStatus(ctx context.Context, orderID string, status domain.Status) {
	url := fmt.Sprintf("%s/%s/status", c.statusURL, orderID)
	body := map[string]any{"status": string(status)}
	c.post(ctx, url, body, "status")
}

// NotifyDriver pushes a driver-facing event to the facade.
func (c *Client) NotifyDriver(ctx context.Context, driverID, orderID string, payload map[string]any) {
	url := fmt.Sprintf("%s/%s/notify", c.notifyURL, driverID)
	body := map[string]any{
		"type":     "NEW_ASSIGNMENT",
		"order_id": orderID,
		"payload":  payload,
	}
	c.post(ctx, url, body, "driver")
}

func (c *Client) post(ctx context.Context, url string, body map[string]any, kind string) {
	raw, err := json.Marshal(body)
	if err != nil {
		zlog.Warn().Err(err).Str("kind", kind).Msg("notify: marshal failed")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		zlog.Warn().Err(err).Str("kind", kind).Msg("notify: build request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		zlog.Warn().Err(err).Str("kind", kind).Str("url", url).Msg("notify: request failed, ignoring")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		zlog.Warn().Int("status", resp.StatusCode).Str("kind", kind).Str("url", url).Msg("notify: non-2xx response, ignoring")
	}
}
