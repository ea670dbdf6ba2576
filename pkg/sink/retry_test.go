package sink

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ingestd/pkg/models"
)

// scriptedSink fails with the queued errors in order, then succeeds.
type scriptedSink struct {
	script   []error
	attempts int
}

func (s *scriptedSink) Write(ctx context.Context, rec models.Record) error {
	s.attempts++
	if len(s.script) == 0 {
		return nil
	}
	err := s.script[0]
	s.script = s.script[1:]
	return err
}

func recordedSleeps(s *RetryingSink) *[]time.Duration {
	var sleeps []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return &sleeps
}

func TestRetrying_TransientThenSuccess(t *testing.T) {
	inner := &scriptedSink{script: []error{
		Transient(errors.New("busy")),
		Transient(errors.New("busy")),
	}}
	s := NewRetrying(inner, Policy{MaxAttempts: 4, InitialDelay: time.Second, Multiplier: 2})
	sleeps := recordedSleeps(s)

	if err := s.Write(context.Background(), models.Record{ItemID: "a"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if inner.attempts != 3 {
		t.Fatalf("attempts = %d, want 3", inner.attempts)
	}
	if len(*sleeps) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(*sleeps))
	}
}

func TestRetrying_BackoffDelays(t *testing.T) {
	inner := &scriptedSink{script: []error{
		Transient(errors.New("busy")),
		Transient(errors.New("busy")),
		Transient(errors.New("busy")),
		Transient(errors.New("busy")),
	}}
	s := NewRetrying(inner, Policy{MaxAttempts: 4, InitialDelay: time.Second, Multiplier: 2})
	sleeps := recordedSleeps(s)

	err := s.Write(context.Background(), models.Record{ItemID: "a"})
	if err == nil {
		t.Fatalf("expected exhaustion error")
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *sleeps, want)
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Fatalf("sleep %d = %v, want %v", i, (*sleeps)[i], d)
		}
	}
}

func TestRetrying_Exhaustion(t *testing.T) {
	last := Transient(errors.New("still busy"))
	inner := &scriptedSink{script: []error{
		Transient(errors.New("busy 1")),
		Transient(errors.New("busy 2")),
		Transient(errors.New("busy 3")),
		last,
	}}
	s := NewRetrying(inner, Policy{MaxAttempts: 4, InitialDelay: time.Millisecond, Multiplier: 2})
	recordedSleeps(s)

	err := s.Write(context.Background(), models.Record{ItemID: "a"})
	if !IsRetryExhausted(err) {
		t.Fatalf("expected RetryExhaustedError, got %v", err)
	}
	var re *RetryExhaustedError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RetryExhaustedError, got %T", err)
	}
	if re.Attempts != 4 {
		t.Fatalf("Attempts = %d, want 4", re.Attempts)
	}
	if !errors.Is(err, last) {
		t.Fatalf("exhaustion should wrap the last failure, got %v", re.Err)
	}
	if inner.attempts != 4 {
		t.Fatalf("attempts = %d, want 4", inner.attempts)
	}
}

func TestRetrying_FatalNoRetry(t *testing.T) {
	inner := &scriptedSink{script: []error{
		Fatal(errors.New("schema mismatch")),
	}}
	s := NewRetrying(inner, Policy{MaxAttempts: 4, InitialDelay: time.Second, Multiplier: 2})
	sleeps := recordedSleeps(s)

	err := s.Write(context.Background(), models.Record{ItemID: "a"})
	if !IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if inner.attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retries on fatal)", inner.attempts)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("fatal errors must not sleep, slept %v", *sleeps)
	}
}

func TestRetrying_UnclassifiedIsFatal(t *testing.T) {
	inner := &scriptedSink{script: []error{
		fmt.Errorf("some surprise"),
	}}
	s := NewRetrying(inner, Policy{MaxAttempts: 4, InitialDelay: time.Second, Multiplier: 2})
	recordedSleeps(s)

	err := s.Write(context.Background(), models.Record{ItemID: "a"})
	if !IsFatal(err) {
		t.Fatalf("unclassified errors should surface as fatal, got %v", err)
	}
	if inner.attempts != 1 {
		t.Fatalf("attempts = %d, want 1", inner.attempts)
	}
}

func TestRetrying_ContextCancelDuringBackoff(t *testing.T) {
	inner := &scriptedSink{script: []error{
		Transient(errors.New("busy")),
		Transient(errors.New("busy")),
	}}
	s := NewRetrying(inner, Policy{MaxAttempts: 4, InitialDelay: time.Minute, Multiplier: 2})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := s.Write(ctx, models.Record{ItemID: "a"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("cancel did not interrupt the backoff sleep")
	}
	if inner.attempts != 1 {
		t.Fatalf("attempts = %d, want 1", inner.attempts)
	}
}

func TestPolicy_Defaults(t *testing.T) {
	p := Policy{}.withDefaults()
	if p.MaxAttempts != 4 || p.InitialDelay != time.Second || p.Multiplier != 2 {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	if p.Transient == nil {
		t.Fatalf("default predicate missing")
	}
	if !p.Transient(Transient(errors.New("x"))) {
		t.Fatalf("default predicate rejects TransientError")
	}
	if p.Transient(Fatal(errors.New("x"))) {
		t.Fatalf("default predicate accepts FatalError")
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(context.DeadlineExceeded) {
		t.Fatalf("deadline expiry should classify as timeout")
	}
	if !IsTimeout(fmt.Errorf("write: %w", context.DeadlineExceeded)) {
		t.Fatalf("wrapped deadline expiry should classify as timeout")
	}
	if IsTimeout(errors.New("plain failure")) {
		t.Fatalf("plain failure misclassified as timeout")
	}
	if IsTimeout(nil) {
		t.Fatalf("nil misclassified as timeout")
	}
}
