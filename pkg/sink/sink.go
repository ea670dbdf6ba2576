// Package sink carries extracted records into the downstream row store.
// The concrete sinks (warehouse HTTP client, logging sink) classify their
// failures as transient or fatal; RetryingSink wraps any of them with
// bounded exponential-backoff retry.
package sink

import (
	"context"

	"ingestd/pkg/models"
)

// Sink writes one extracted record downstream. Implementations classify
// failures by returning *TransientError or *FatalError; unclassified
// errors are treated as fatal by RetryingSink.
type Sink interface {
	Write(ctx context.Context, rec models.Record) error
}
