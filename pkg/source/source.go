// Package source enumerates work items deposited into a holding area by
// the harvester. Enumeration is resumable: iterators expose an opaque
// cursor that, fed back into Open, continues strictly after the last item
// already returned.
package source

import (
	"context"

	"ingestd/pkg/models"
)

// Source opens one enumeration pass. An empty cursor starts from the
// beginning; a cursor from a previous pass resumes after the items that
// pass already yielded. Cursors are only meaningful against the same
// source configuration that produced them.
type Source interface {
	Open(ctx context.Context, cursor string) (Iterator, error)
}

// Iterator yields work items in a stable order. Next returns ok=false on
// exhaustion. Cursor returns the resume token covering everything
// returned so far; it must be persisted before abandoning the pass.
type Iterator interface {
	Next(ctx context.Context) (models.WorkItem, bool, error)
	Cursor() string
	Close() error
}
