package scheduler

import (
	"context"
	"time"

	"ingestd/pkg/logger"
	"ingestd/pkg/metrics"
)

// RunFunc is invoked when a continuation fires. The engine's lease makes
// a duplicate fire harmless, so the dispatcher leans at-least-once: the
// continuation is dropped only after the run returns cleanly. A run that
// errors (lease still held by a dying process, store hiccup) keeps its
// continuation, which re-fires on a later tick.
type RunFunc func(ctx context.Context, job string) error

// Dispatcher polls the store for due continuations and runs them. Runs
// for distinct jobs happen sequentially within one tick; the engine is
// single-threaded per invocation anyway.
type Dispatcher struct {
	sched *Scheduler
	run   RunFunc
	poll  time.Duration
}

// NewDispatcher wires a dispatcher to a scheduler. poll is floored at one
// second to spare the store.
func NewDispatcher(sched *Scheduler, run RunFunc, poll time.Duration) *Dispatcher {
	if poll < time.Second {
		poll = time.Second
	}
	return &Dispatcher{sched: sched, run: run, poll: poll}
}

// Start polls until ctx is cancelled. Call in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	logger.Info("dispatcher_started", "poll", d.poll.String())
	t := time.NewTicker(d.poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("dispatcher_stopping")
			return
		case <-t.C:
			d.Tick(ctx)
		}
	}
}

// Tick fires every due continuation once. Exposed so startup catchup and
// tests can dispatch synchronously.
func (d *Dispatcher) Tick(ctx context.Context) {
	pending, err := d.sched.listAll()
	if err != nil {
		logger.Error("dispatcher_list_failed", "error", err)
		return
	}
	now := time.Now().UTC().UnixNano()
	fired := make(map[string]bool)
	for _, c := range pending {
		if c.FireAtTS > now {
			continue
		}
		if fired[c.Job] {
			// one invocation per job per tick; the rest are duplicates
			// the run's own cancelAll will clear
			continue
		}
		fired[c.Job] = true
		metrics.ContinuationsFired.WithLabelValues(c.Job).Inc()
		logger.Info("continuation_firing", "job", c.Job, "handle", c.Handle)
		if err := d.run(ctx, c.Job); err != nil {
			logger.Error("continuation_run_failed", "job", c.Job, "handle", c.Handle, "error", err)
			continue
		}
		if err := d.sched.drop(c); err != nil {
			logger.Warn("continuation_drop_failed", "job", c.Job, "handle", c.Handle, "error", err)
		}
	}
}
