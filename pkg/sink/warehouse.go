package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ingestd/pkg/models"

	"golang.org/x/time/rate"
)

// Warehouse loads extracted rows into the analytics warehouse over HTTP.
// Network failures, 408/429 and 5xx responses are transient; any other
// non-2xx response is a fatal rejection of the record.
type Warehouse struct {
	url     string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

var _ Sink = (*Warehouse)(nil)

// NewWarehouse builds a warehouse sink. rps <= 0 disables the outbound
// rate limiter.
func NewWarehouse(url, apiKey string, timeout time.Duration, rps float64, burst int) *Warehouse {
	w := &Warehouse{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return w
}

func (w *Warehouse) Write(ctx context.Context, rec models.Record) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return Fatal(fmt.Errorf("marshal record: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url+"/v1/rows", bytes.NewReader(body))
	if err != nil {
		return Fatal(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		// connection refused, DNS failure, client timeout: all worth a retry
		return Transient(fmt.Errorf("send rows: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return Transient(fmt.Errorf("warehouse busy (status %d)", resp.StatusCode))
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Fatal(fmt.Errorf("warehouse rejected record (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
}
