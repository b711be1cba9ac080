package cms

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/swiftlogix/order-pipeline/internal/application/pipeline"
)

// Adapter wraps the legacy Customer/Order Management System: it POSTs the
// SOAP-flavored XML envelope the service expects and treats any 2xx as
// success. The response body is opaque to the pipeline.
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
	body := fmt.Sprintf(
		"<Envelope><Body><CreateOrder><OrderId>%s</OrderId></CreateOrder></Body></Envelope>",
		orderID,
	)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewBufferString(body))
	if err != nil {
		return pipeline.StageResult{}, fmt.Errorf("cms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")

	zlog.Debug().Str("order_id", orderID).Str("url", a.url).Msg("cms: calling CreateOrder")

	resp, err := a.client.Do(req)
	if err != nil {
		return pipeline.StageResult{}, fmt.Errorf("cms soap call failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pipeline.StageResult{}, fmt.Errorf("cms soap call returned status %d", resp.StatusCode)
	}

	return pipeline.StageResult{}, nil
}
