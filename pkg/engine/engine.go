// Package engine drives checkpointed batch passes over a work source.
//
// A pass enumerates items from a cursor, extracts and writes each one, and
// records a terminal outcome per item in the processing ledger. The engine
// polls an execution budget between items; when the budget runs out it
// persists the cursor, schedules a single continuation and returns, so the
// pass resumes later exactly where it stopped. The ledger makes reprocessing
// of already-classified items a no-op, which keeps crash/retry overlap safe.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ingestd/pkg/budget"
	"ingestd/pkg/extract"
	"ingestd/pkg/keys"
	"ingestd/pkg/logger"
	"ingestd/pkg/metrics"
	"ingestd/pkg/models"
	"ingestd/pkg/sink"
	"ingestd/pkg/source"
	"ingestd/pkg/telemetry"
)

// ErrAlreadyRunning is returned when another invocation holds the job lease.
var ErrAlreadyRunning = errors.New("job already running")

// Ledger records one terminal outcome per work item.
type Ledger interface {
	Get(itemID string) (models.LedgerEntry, error)
	Set(itemID string, outcome models.Outcome, note string) error
	Reset() (int, error)
}

// Scheduler manages the job's durable one-shot continuations.
type Scheduler interface {
	ScheduleOnce(job string, after time.Duration) (string, error)
	CancelAll(job string) (int, error)
}

// Locker serializes invocations of the same job.
type Locker interface {
	Acquire(owner string, ttl time.Duration) (bool, error)
	Release(owner string) error
	Heartbeat(ctx context.Context, owner string, ttl time.Duration, abort context.CancelFunc)
}

// Config carries the per-job tuning knobs.
type Config struct {
	Job           string
	HardLimit     time.Duration
	SafetyBuffer  time.Duration
	RetryInterval time.Duration
	LeaseTTL      time.Duration

	// Now is the engine clock. Defaults to time.Now.
	Now func() time.Time

	// Transient decides whether a setup or enumeration error is worth a
	// scheduled retry. Defaults to sink.IsTransient.
	Transient func(error) bool
}

// Engine runs passes for a single job.
type Engine struct {
	cfg   Config
	src   source.Source
	ext   extract.Extractor
	snk   sink.Sink
	led   Ledger
	sched Scheduler
	lock  Locker
}

func New(cfg Config, src source.Source, ext extract.Extractor, snk sink.Sink, led Ledger, sched Scheduler, lock Locker) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Transient == nil {
		cfg.Transient = sink.IsTransient
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = cfg.HardLimit + 2*cfg.SafetyBuffer
	}
	return &Engine{cfg: cfg, src: src, ext: ext, snk: snk, led: led, sched: sched, lock: lock}
}

// Run resumes the job from its persisted cursor (or starts a first pass).
func (e *Engine) Run(ctx context.Context) (models.JobState, error) {
	return e.run(ctx, false)
}

// RunFresh clears the ledger and cursor, then runs a full pass from the
// beginning. Previously successful items will be re-processed.
func (e *Engine) RunFresh(ctx context.Context) (models.JobState, error) {
	return e.run(ctx, true)
}

func (e *Engine) run(ctx context.Context, fresh bool) (models.JobState, error) {
	owner := keys.GenHandle()
	ok, err := e.lock.Acquire(owner, e.cfg.LeaseTTL)
	if err != nil {
		return models.JobState{}, fmt.Errorf("acquire job lease: %w", err)
	}
	if !ok {
		return models.JobState{}, ErrAlreadyRunning
	}
	defer func() {
		if rerr := e.lock.Release(owner); rerr != nil {
			logger.Warn("job_lease_release_failed", "job", e.cfg.Job, "error", rerr.Error())
		}
	}()

	// The heartbeat cancels runCtx if the lease cannot be kept alive, which
	// surfaces in the item loop as an interruption.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	hbCtx, stopHB := context.WithCancel(context.Background())
	defer stopHB()
	go e.lock.Heartbeat(hbCtx, owner, e.cfg.LeaseTTL, cancelRun)

	start := e.cfg.Now()
	final, err := e.pass(runCtx, fresh, owner)
	if final.Status != "" {
		metrics.RunDuration.WithLabelValues(e.cfg.Job).Observe(e.cfg.Now().Sub(start).Seconds())
		metrics.RunsTotal.WithLabelValues(e.cfg.Job, string(final.Status)).Inc()
	}
	return final, err
}

func (e *Engine) pass(ctx context.Context, fresh bool, owner string) (models.JobState, error) {
	tr := telemetry.Track("engine.run")
	defer tr.Finish()

	start := e.cfg.Now()
	b := budget.NewWithClock(e.cfg.HardLimit, e.cfg.SafetyBuffer, e.cfg.Now)

	st, err := LoadState(e.cfg.Job)
	if err != nil {
		return models.JobState{}, err
	}
	st.RunID = owner
	st.LastRunTS = start.UTC().UnixNano()

	if fresh {
		reset, err := e.led.Reset()
		if err != nil {
			return e.fail(&st, "ledger", fmt.Errorf("reset ledger: %w", err))
		}
		st = models.JobState{
			Job:       e.cfg.Job,
			Status:    models.StatusStarting,
			Detail:    "starting fresh pass",
			RunID:     owner,
			LastRunTS: start.UTC().UnixNano(),
		}
		if err := saveState(&st, e.cfg.Now(), true); err != nil {
			return st, err
		}
		logger.Info("fresh_pass_started", "job", e.cfg.Job, "ledger_cleared", reset)
	}
	tr.Mark("prepare")

	it, err := e.src.Open(ctx, st.Cursor)
	if err != nil {
		if e.cfg.Transient(err) {
			return e.retryLater(&st, "setup", err)
		}
		return e.fail(&st, "setup", err)
	}
	defer it.Close()
	tr.Mark("open_source")

	st.Status = models.StatusRunning
	st.Detail = "processing items"
	st.LastError = nil
	if err := saveState(&st, e.cfg.Now(), true); err != nil {
		return st, err
	}

	final, err := e.drain(ctx, &st, it, b)
	tr.Mark("drain")
	return final, err
}

// drain pulls items until the source is exhausted, the budget expires or the
// run is interrupted. It owns every terminal transition of the pass.
func (e *Engine) drain(ctx context.Context, st *models.JobState, it source.Iterator, b *budget.Budget) (models.JobState, error) {
	for {
		// Checkpoint before pulling: everything up to here is classified.
		checkpoint := it.Cursor()

		if ctx.Err() != nil {
			return e.interrupt(st, checkpoint, "run canceled")
		}
		if b.Expired() {
			metrics.BudgetInterruptions.WithLabelValues(e.cfg.Job).Inc()
			logger.Info("budget_expired", "job", e.cfg.Job,
				"elapsed", b.Elapsed().Round(time.Second).String(),
				"processed", st.ProcessedCount)
			return e.interrupt(st, checkpoint,
				fmt.Sprintf("budget expired after %s", b.Elapsed().Round(time.Second)))
		}

		item, ok, err := it.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return e.interrupt(st, checkpoint, "run canceled")
			}
			if e.cfg.Transient(err) {
				return e.retryLater(st, "source", err)
			}
			return e.fail(st, "source", err)
		}
		if !ok {
			return e.complete(st)
		}

		ent, err := e.led.Get(item.ID)
		if err != nil {
			return e.fail(st, "ledger", fmt.Errorf("ledger read for %s: %w", item.ID, err))
		}
		if ent.Outcome.Seen() {
			metrics.ItemsSkipped.WithLabelValues(e.cfg.Job).Inc()
			logger.Debug("item_skipped", "job", e.cfg.Job, "item", item.ID, "outcome", string(ent.Outcome))
			continue
		}

		outcome, note, perr := e.processItem(ctx, item)
		if perr != nil {
			if ctx.Err() != nil {
				// The write was cut short by cancellation, not by the item.
				// Leave it unclassified; the next pass picks it up.
				return e.interrupt(st, checkpoint, "run canceled")
			}
			// Unexpected failure: record it on the job, leave the item
			// unclassified and move on. The pass never dies for one item.
			st.LastError = &models.RunError{
				Phase:   "item",
				ItemID:  item.ID,
				Message: clip(perr.Error()),
				TS:      e.cfg.Now().UTC().UnixNano(),
			}
			if err := saveState(st, e.cfg.Now(), false); err != nil {
				return e.fail(st, "ledger", err)
			}
			logger.Warn("item_error_recorded", "job", e.cfg.Job, "item", item.ID, "error", perr.Error())
			continue
		}

		if err := e.led.Set(item.ID, outcome, note); err != nil {
			return e.fail(st, "ledger", fmt.Errorf("ledger write for %s: %w", item.ID, err))
		}
		metrics.ItemsProcessed.WithLabelValues(e.cfg.Job, string(outcome)).Inc()
		if outcome == models.OutcomeSuccess {
			st.ProcessedCount++
		} else {
			logger.Info("item_classified", "job", e.cfg.Job, "item", item.ID,
				"outcome", string(outcome), "note", note)
		}
		if err := saveState(st, e.cfg.Now(), false); err != nil {
			return e.fail(st, "ledger", err)
		}
	}
}

// processItem runs one item through extraction and the sink and maps the
// result onto a ledger outcome. A non-nil error means the item could not be
// classified this pass.
func (e *Engine) processItem(ctx context.Context, item models.WorkItem) (models.Outcome, string, error) {
	rec, err := e.ext.Extract(ctx, item)
	if err != nil {
		if extract.IsTimeout(err) {
			return models.OutcomeTimedOut, clip(err.Error()), nil
		}
		return models.OutcomeFailedParse, clip(err.Error()), nil
	}
	if rec == nil {
		// Recognized empty input: nothing to write, but the item is done.
		return models.OutcomeFailedParse, "empty input", nil
	}

	err = e.snk.Write(ctx, *rec)
	if err == nil {
		return models.OutcomeSuccess, "", nil
	}
	if sink.IsFatal(err) {
		return models.OutcomeFailedParse, clip(err.Error()), nil
	}
	if sink.IsRetryExhausted(err) && sink.IsTimeout(err) {
		return models.OutcomeTimedOut, clip(err.Error()), nil
	}
	return "", "", err
}

// interrupt checkpoints the cursor, swaps the pending continuation for a new
// one and parks the job until the continuation fires.
func (e *Engine) interrupt(st *models.JobState, cursor, why string) (models.JobState, error) {
	if _, err := e.sched.CancelAll(e.cfg.Job); err != nil {
		return e.fail(st, "schedule", fmt.Errorf("cancel continuations: %w", err))
	}
	st.Status = models.StatusWaiting
	st.Cursor = cursor
	st.Detail = fmt.Sprintf("waiting: will continue in %s (%s)", e.cfg.RetryInterval, why)
	if err := saveState(st, e.cfg.Now(), true); err != nil {
		return *st, err
	}
	handle, err := e.sched.ScheduleOnce(e.cfg.Job, e.cfg.RetryInterval)
	if err != nil {
		return e.fail(st, "schedule", fmt.Errorf("schedule continuation: %w", err))
	}
	logger.Info("run_interrupted", "job", e.cfg.Job, "cursor", cursor,
		"continuation", handle, "reason", why)
	return *st, nil
}

// retryLater handles transient setup and enumeration failures: no cursor
// movement, one continuation at the retry interval.
func (e *Engine) retryLater(st *models.JobState, phase string, cause error) (models.JobState, error) {
	if _, err := e.sched.CancelAll(e.cfg.Job); err != nil {
		return e.fail(st, "schedule", fmt.Errorf("cancel continuations: %w", err))
	}
	st.Status = models.StatusRetryScheduled
	st.Detail = fmt.Sprintf("%s failed, retrying in %s", phase, e.cfg.RetryInterval)
	st.LastError = &models.RunError{
		Phase:   phase,
		Message: clip(cause.Error()),
		TS:      e.cfg.Now().UTC().UnixNano(),
	}
	if err := saveState(st, e.cfg.Now(), true); err != nil {
		return *st, err
	}
	handle, err := e.sched.ScheduleOnce(e.cfg.Job, e.cfg.RetryInterval)
	if err != nil {
		return e.fail(st, "schedule", fmt.Errorf("schedule continuation: %w", err))
	}
	logger.Warn("run_retry_scheduled", "job", e.cfg.Job, "phase", phase,
		"continuation", handle, "error", cause.Error())
	return *st, nil
}

// complete ends the pass: cursor cleared, continuations cancelled.
func (e *Engine) complete(st *models.JobState) (models.JobState, error) {
	if _, err := e.sched.CancelAll(e.cfg.Job); err != nil {
		return e.fail(st, "schedule", fmt.Errorf("cancel continuations: %w", err))
	}
	st.Status = models.StatusCompleted
	st.Cursor = ""
	st.Detail = fmt.Sprintf("completed: %d items written", st.ProcessedCount)
	if err := saveState(st, e.cfg.Now(), true); err != nil {
		return *st, err
	}
	logger.Info("run_completed", "job", e.cfg.Job, "processed", st.ProcessedCount)
	return *st, nil
}

// fail parks the job without a continuation. Someone has to look at it.
func (e *Engine) fail(st *models.JobState, phase string, cause error) (models.JobState, error) {
	if _, err := e.sched.CancelAll(e.cfg.Job); err != nil {
		logger.Error("continuation_cancel_failed", "job", e.cfg.Job, "error", err.Error())
	}
	st.Status = models.StatusFailed
	st.Detail = fmt.Sprintf("failed: %s", clip(cause.Error()))
	st.LastError = &models.RunError{
		Phase:   phase,
		Message: clip(cause.Error()),
		TS:      e.cfg.Now().UTC().UnixNano(),
	}
	if err := saveState(st, e.cfg.Now(), true); err != nil {
		logger.Error("job_state_persist_failed", "job", e.cfg.Job, "error", err.Error())
	}
	logger.Error("run_failed", "job", e.cfg.Job, "phase", phase, "error", cause.Error())
	return *st, nil
}

const maxDetailLen = 512

func clip(s string) string {
	if len(s) > maxDetailLen {
		return s[:maxDetailLen] + "..."
	}
	return s
}
