package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"ingestd/pkg/models"
)

// Service calls the extraction service over HTTP: the item's payload is
// posted as an opaque body and the service answers with the parsed rows.
type Service struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

var _ Extractor = (*Service)(nil)

// NewService builds an extractor client for the given base URL.
func NewService(url string, timeout time.Duration) *Service {
	return &Service{
		url:     strings.TrimRight(url, "/"),
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

type extractResponse struct {
	Rows []map[string]any `json:"rows"`
}

func (s *Service) Extract(ctx context.Context, item models.WorkItem) (*models.Record, error) {
	payload, err := os.ReadFile(item.Path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if len(payload) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Item-ID", item.ID)
	req.Header.Set("X-Item-Name", item.Name)

	resp, err := s.client.Do(req)
	if err != nil {
		if IsTimeout(err) {
			return nil, &TimeoutError{Err: err}
		}
		return nil, fmt.Errorf("call extractor: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		// service recognized the input as empty, not an error
		return nil, nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return nil, &TimeoutError{Err: fmt.Errorf("extractor returned status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("extractor rejected item (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode extractor response: %w", err)
	}
	if len(out.Rows) == 0 {
		return nil, nil
	}
	return &models.Record{
		ItemID:      item.ID,
		ItemName:    item.Name,
		Rows:        out.Rows,
		ExtractedTS: time.Now().UTC().UnixNano(),
	}, nil
}
