package sink

import (
	"context"

	"ingestd/pkg/logger"
	"ingestd/pkg/models"
)

// Logging is the development sink used when no warehouse URL is
// configured. It accepts every record and emits a log line.
type Logging struct{}

var _ Sink = (*Logging)(nil)

func (Logging) Write(ctx context.Context, rec models.Record) error {
	logger.Info("sink_record_logged", "item", rec.ItemID, "rows", len(rec.Rows))
	return nil
}
