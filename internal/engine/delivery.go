package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"tours-backend/internal/config"
	"tours-backend/internal/instrument"
)

// DeliveryResult is the outcome of one outbound webhook POST.
// Status is 0 when the request never produced an HTTP response.
type DeliveryResult struct {
	Status  int
	Body    string
	Success bool
	Error   string
	Latency time.Duration
}

// DeliveryClient performs single-attempt webhook deliveries. It never retries.
type DeliveryClient struct {
	client           *http.Client
	userAgent        string
	maxResponseBytes int64
}

// NewDeliveryClient builds a client from webhook config. A zero timeout
// leaves the transport defaults in charge.
func NewDeliveryClient(cfg config.WebhookConfig) *DeliveryClient {
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = 64 * 1024
	}
	return &DeliveryClient{
		client:           &http.Client{Timeout: cfg.Timeout},
		userAgent:        cfg.UserAgent,
		maxResponseBytes: maxBytes,
	}
}

// Deliver POSTs payload to url. Every failure is reported in the result;
// Deliver does not return errors.
func (d *DeliveryClient) Deliver(ctx context.Context, url string, payload []byte, secret string) *DeliveryResult {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "webhook", "client", "webhook.deliver")
	defer span.End()
	span.SetMetadata("url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		span.SetStatus("error")
		span.SetMetadata("error", fmt.Sprintf("build request: %v", err))
		return &DeliveryResult{Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	if secret != "" {
		req.Header.Set("X-Webhook-Secret", secret)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	latency := time.Since(start)
	span.SetMetadata("latency_ms", latency.Milliseconds())

	if err != nil {
		span.SetStatus("error")
		span.SetMetadata("error", err.Error())
		return &DeliveryResult{Error: err.Error(), Latency: latency}
	}
	defer resp.Body.Close()

	// a body read failure still leaves a usable status
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, d.maxResponseBytes))

	result := &DeliveryResult{
		Status:  resp.StatusCode,
		Body:    string(respBody),
		Success: resp.StatusCode >= 200 && resp.StatusCode < 300,
		Latency: latency,
	}
	span.SetMetadata("status_code", resp.StatusCode)
	if result.Success {
		span.SetStatus("ok")
	} else {
		span.SetStatus("error")
		span.SetMetadata("error", fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
	return result
}
