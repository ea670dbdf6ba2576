// Package extract turns a work item's payload into structured rows. The
// engine treats extraction as an opaque, fallible operation: a nil record
// with a nil error means "recognized empty input", a TimeoutError means
// the downstream extractor timed out, and any other error is a permanent
// parse failure for that item.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net"

	"ingestd/pkg/models"
)

// Extractor produces the structured record for one work item.
type Extractor interface {
	Extract(ctx context.Context, item models.WorkItem) (*models.Record, error)
}

// TimeoutError marks an extraction that ran past its deadline.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("extraction timed out: %v", e.Err) }
func (e *TimeoutError) Unwrap() error { return e.Err }

// IsTimeout reports whether err carries a timeout signature from the
// extraction path.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
