package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gatewise-data/gatewise/internal/engine"
	"github.com/gatewise-data/gatewise/internal/httputil"
	"github.com/gatewise-data/gatewise/internal/metrics"
	"github.com/gatewise-data/gatewise/internal/timeutil"
)

// ReportWebhook POSTs finished cycle reports as JSON to an external
// receiver. Delivery is best-effort with the standard retry policy; a report
// that cannot be delivered is logged and dropped, never blocking the cycle.
type ReportWebhook struct {
	url     string
	client  httputil.HTTPClient
	clock   timeutil.Clock
	metrics *metrics.Metrics
}

// NewReportWebhook builds a webhook sender for url. client may be nil for a
// default HTTP client with a 10s timeout; m may be nil.
func NewReportWebhook(url string, client httputil.HTTPClient, m *metrics.Metrics) *ReportWebhook {
	if client == nil {
		client = httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Second})
	}
	return &ReportWebhook{url: url, client: client, clock: timeutil.RealClock{}, metrics: m}
}

// Deliver sends one cycle report, retrying transient failures. Any 2xx
// response counts as delivered; anything else is an error.
func (w *ReportWebhook) Deliver(ctx context.Context, report engine.CycleReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		w.metrics.IncrementWebhookDelivery("error")
		return fmt.Errorf("marshal report: %w", err)
	}

	err = withRetry(ctx, w.clock, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return fmt.Errorf("post report: %w", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		w.metrics.IncrementWebhookDelivery("error")
		return err
	}

	w.metrics.IncrementWebhookDelivery("ok")
	return nil
}
