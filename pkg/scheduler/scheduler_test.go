package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"ingestd/pkg/store"
)

func openStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func TestScheduler_ScheduleAndList(t *testing.T) {
	openStore(t)
	s := New()

	before := time.Now().UTC()
	h, err := s.ScheduleOnce("reports", 30*time.Second)
	if err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	if h == "" {
		t.Fatalf("empty handle")
	}

	pending, err := s.ListPending("reports")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	c := pending[0]
	if c.Handle != h || c.Job != "reports" {
		t.Fatalf("bad continuation %+v", c)
	}
	fireAt := time.Unix(0, c.FireAtTS)
	if fireAt.Before(before.Add(29*time.Second)) || fireAt.After(before.Add(35*time.Second)) {
		t.Fatalf("fire_at %v not ~30s after %v", fireAt, before)
	}
}

func TestScheduler_CancelAllScopedToJob(t *testing.T) {
	openStore(t)
	s := New()

	if _, err := s.ScheduleOnce("reports", time.Second); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	if _, err := s.ScheduleOnce("reports", time.Minute); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	if _, err := s.ScheduleOnce("invoices", time.Minute); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}

	n, err := s.CancelAll("reports")
	if err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	if n != 2 {
		t.Fatalf("cancelled %d, want 2", n)
	}
	left, err := s.ListPending("reports")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("reports still has %d pending", len(left))
	}
	other, err := s.ListPending("invoices")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("invoices lost its continuation")
	}
}

func TestScheduler_ListPendingOrdersByFireAt(t *testing.T) {
	openStore(t)
	s := New()

	if _, err := s.ScheduleOnce("reports", time.Hour); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	if _, err := s.ScheduleOnce("reports", time.Second); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}

	pending, err := s.ListPending("reports")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].FireAtTS > pending[1].FireAtTS {
		t.Fatalf("pending not ordered by fire time")
	}
}

func TestDispatcher_FiresDueContinuations(t *testing.T) {
	openStore(t)
	s := New()

	// overdue continuation, as after a restart
	s.now = func() time.Time { return time.Now().Add(-time.Hour) }
	if _, err := s.ScheduleOnce("reports", time.Second); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	s.now = time.Now

	var ran []string
	d := NewDispatcher(s, func(ctx context.Context, job string) error {
		ran = append(ran, job)
		return nil
	}, time.Second)

	d.Tick(context.Background())
	if len(ran) != 1 || ran[0] != "reports" {
		t.Fatalf("ran = %v, want [reports]", ran)
	}

	// the fired continuation is dropped
	pending, err := s.ListPending("reports")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("fired continuation still pending: %+v", pending)
	}

	// nothing due, nothing fires
	d.Tick(context.Background())
	if len(ran) != 1 {
		t.Fatalf("tick with nothing due ran %v", ran)
	}
}

func TestDispatcher_NotDueDoesNotFire(t *testing.T) {
	openStore(t)
	s := New()
	if _, err := s.ScheduleOnce("reports", time.Hour); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}

	var ran int
	d := NewDispatcher(s, func(ctx context.Context, job string) error {
		ran++
		return nil
	}, time.Second)
	d.Tick(context.Background())
	if ran != 0 {
		t.Fatalf("future continuation fired early")
	}
}

func TestDispatcher_OneFirePerJobPerTick(t *testing.T) {
	openStore(t)
	s := New()
	s.now = func() time.Time { return time.Now().Add(-time.Hour) }
	for i := 0; i < 3; i++ {
		if _, err := s.ScheduleOnce("reports", time.Second); err != nil {
			t.Fatalf("ScheduleOnce: %v", err)
		}
	}
	s.now = time.Now

	var ran int
	d := NewDispatcher(s, func(ctx context.Context, job string) error {
		ran++
		return nil
	}, time.Second)
	d.Tick(context.Background())
	if ran != 1 {
		t.Fatalf("ran %d times in one tick, want 1", ran)
	}
}

func TestDispatcher_FailedRunKeepsContinuation(t *testing.T) {
	openStore(t)
	s := New()
	s.now = func() time.Time { return time.Now().Add(-time.Hour) }
	if _, err := s.ScheduleOnce("reports", time.Second); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	s.now = time.Now

	var ran int
	d := NewDispatcher(s, func(ctx context.Context, job string) error {
		ran++
		return errors.New("lease held")
	}, time.Second)

	d.Tick(context.Background())
	d.Tick(context.Background())
	if ran != 2 {
		t.Fatalf("ran %d times, want 2 (errored runs re-fire)", ran)
	}
	pending, err := s.ListPending("reports")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1 (kept for retry)", len(pending))
	}
}
