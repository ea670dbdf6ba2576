package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"ingestd/pkg/models"
)

// Sidecar is the built-in development extractor used when no extraction
// service URL is configured. JSON payloads are decoded into rows directly;
// anything else yields a single metadata row.
type Sidecar struct{}

var _ Extractor = (*Sidecar)(nil)

func (Sidecar) Extract(ctx context.Context, item models.WorkItem) (*models.Record, error) {
	payload, err := os.ReadFile(item.Path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var rows []map[string]any
	if likelyJSON(payload) {
		if err := json.Unmarshal(payload, &rows); err != nil {
			var single map[string]any
			if err := json.Unmarshal(payload, &single); err != nil {
				return nil, fmt.Errorf("payload looks like JSON but does not parse: %w", err)
			}
			rows = []map[string]any{single}
		}
	} else {
		rows = []map[string]any{{
			"file":  item.Name,
			"bytes": item.Size,
		}}
	}

	return &models.Record{
		ItemID:      item.ID,
		ItemName:    item.Name,
		Rows:        rows,
		ExtractedTS: time.Now().UTC().UnixNano(),
	}, nil
}

// likelyJSON heuristically checks whether a payload starts with a JSON
// object or array, skipping leading whitespace.
func likelyJSON(b []byte) bool {
	for _, c := range b {
		if c == ' ' || c == '\n' || c == '\r' || c == '\t' {
			continue
		}
		return c == '{' || c == '['
	}
	return false
}
