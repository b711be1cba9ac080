package ros

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/swiftlogix/order-pipeline/internal/application/pipeline"
)

// Adapter wraps the Route Optimization Service: POSTs {"order_id": ...}
// and hands the returned JSON object back verbatim so the worker can
// persist it under payload.route.
type Adapter struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

func NewAdapter(url string, timeout time.Duration) *Adapter {
	return &Adapter{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (a *Adapter) Execute(ctx context.Context, orderID string) (pipeline.StageResult, error) {
	reqBody, err := json.Marshal(map[string]any{"order_id": orderID})
	if err != nil {
		return pipeline.StageResult{}, fmt.Errorf("ros: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(reqBody))
	if err != nil {
		return pipeline.StageResult{}, fmt.Errorf("ros: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	zlog.Debug().Str("order_id", orderID).Str("url", a.url).Msg("ros: requesting route optimization")

	resp, err := a.client.Do(req)
	if err != nil {
		return pipeline.StageResult{}, fmt.Errorf("ros route optimize call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pipeline.StageResult{}, fmt.Errorf("ros route optimize call returned status %d", resp.StatusCode)
	}

	var route map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&route); err != nil {
		return pipeline.StageResult{}, fmt.Errorf("ros: decode route response: %w", err)
	}

	return pipeline.StageResult{Route: route}, nil
}
