package sink

import (
	"context"
	"errors"
	"time"

	"ingestd/pkg/logger"
	"ingestd/pkg/metrics"
	"ingestd/pkg/models"
)

// Policy controls RetryingSink. MaxAttempts counts total attempts; the
// delay before retry n+1 is InitialDelay * Multiplier^(n-1), so the
// defaults (4 attempts, 1s, x2) sleep 1s, 2s, 4s between attempts.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	// Transient decides whether an error is worth retrying. Nil selects
	// IsTransient.
	Transient func(error) bool
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 4
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Transient == nil {
		p.Transient = IsTransient
	}
	return p
}

// RetryingSink wraps an inner sink with bounded exponential-backoff
// retry. Fatal errors pass through immediately; transient errors are
// retried until the policy is exhausted, then surfaced as
// RetryExhaustedError wrapping the last failure.
type RetryingSink struct {
	inner  Sink
	policy Policy
	sleep  func(context.Context, time.Duration) error
}

// NewRetrying wraps inner with the given policy.
func NewRetrying(inner Sink, p Policy) *RetryingSink {
	return &RetryingSink{inner: inner, policy: p.withDefaults(), sleep: sleepCtx}
}

func (s *RetryingSink) Write(ctx context.Context, rec models.Record) error {
	delay := s.policy.InitialDelay
	var last error
	for attempt := 1; ; attempt++ {
		err := s.inner.Write(ctx, rec)
		if err == nil {
			metrics.SinkWrites.WithLabelValues("success").Inc()
			return nil
		}
		if !s.policy.Transient(err) {
			metrics.SinkWrites.WithLabelValues("fatal").Inc()
			var fe *FatalError
			if errors.As(err, &fe) {
				return err
			}
			return &FatalError{Err: err}
		}
		last = err
		if attempt >= s.policy.MaxAttempts {
			break
		}
		metrics.SinkRetries.Inc()
		logger.Warn("sink_write_retrying",
			"item", rec.ItemID,
			"attempt", attempt,
			"delay", delay.String(),
			"error", err.Error())
		if serr := s.sleep(ctx, delay); serr != nil {
			return serr
		}
		delay = time.Duration(float64(delay) * s.policy.Multiplier)
	}
	metrics.SinkWrites.WithLabelValues("exhausted").Inc()
	logger.Error("sink_write_exhausted", "item", rec.ItemID, "attempts", s.policy.MaxAttempts, "error", last.Error())
	return &RetryExhaustedError{Attempts: s.policy.MaxAttempts, Err: last}
}

// sleepCtx waits without busy polling and aborts when the context ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
