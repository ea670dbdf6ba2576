// Package retention sweeps old ledger entries on a cron schedule so the
// store does not grow without bound. A sweep holds its own lease, so two
// processes (or a slow sweep meeting the next tick) never double-run.
package retention

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/adhocore/gronx"

	"ingestd/pkg/config"
	"ingestd/pkg/keys"
	"ingestd/pkg/ledger"
	"ingestd/pkg/lease"
	"ingestd/pkg/logger"
	"ingestd/pkg/metrics"
	"ingestd/pkg/state"
)

// leaseTTL is renewed by a heartbeat while a sweep runs.
const leaseTTL = 2 * time.Minute

type target struct {
	cfg  config.RetentionConfig
	jobs []string
}

var stored *target

// SetTarget registers the retention config and job list so RunImmediate
// can trigger sweeps on demand (operator endpoint, tests).
func SetTarget(cfg config.RetentionConfig, jobs []string) {
	stored = &target{cfg: cfg, jobs: jobs}
}

// RunImmediate triggers a single sweep using the registered target.
// Returns an error if no target was registered.
func RunImmediate(ctx context.Context) error {
	if stored == nil {
		return fmt.Errorf("no retention target registered")
	}
	if state.PathsVar.Leases == "" {
		return fmt.Errorf("state paths not initialized")
	}
	return runOnce(ctx, stored.cfg, stored.jobs)
}

// Start launches the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg config.RetentionConfig, jobs []string) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	if err := os.MkdirAll(state.PathsVar.Leases, 0o700); err != nil {
		logger.Error("retention_lease_dir_create_failed", "path", state.PathsVar.Leases, "error", err)
		return nil, err
	}

	// map empty cron to default daily @03:00
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	SetTarget(cfg, jobs)

	logger.Info("retention_enabled",
		"cron", cronExpr,
		"max_age", cfg.MaxAge.Duration().String(),
		"dry_run", cfg.DryRun,
		"jobs", len(jobs))
	ctx2, cancel := context.WithCancel(ctx)

	go runScheduler(ctx2, cfg, jobs, cronExpr)

	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time. This yields sharper scheduling and
// supports full cron syntax.
func runScheduler(ctx context.Context, cfg config.RetentionConfig, jobs []string, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		// compute next tick after now (UTC). allowCurrent=false so we get the
		// next future tick.
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			// fallback sleep then retry
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			// due now-ish; run immediately
			go func() {
				if err := runOnce(ctx, cfg, jobs); err != nil {
					logger.Error("retention_run_error", "error", err)
				}
			}()
			// small sleep to avoid tight loop
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		// wait until the exact next tick or cancellation
		select {
		case <-time.After(wait):
			go func() {
				if err := runOnce(ctx, cfg, jobs); err != nil {
					logger.Error("retention_run_error", "error", err)
				}
			}()
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// runOnce executes a single sweep: acquire the lease, walk each job's
// ledger in batches, write audit events. Entries younger than both
// max_age and min_age always survive.
func runOnce(ctx context.Context, cfg config.RetentionConfig, jobs []string) error {
	owner := keys.GenHandle()
	lk := lease.New(state.PathsVar.Leases, "retention")
	acq, err := lk.Acquire(owner, leaseTTL)
	if err != nil {
		logger.Error("retention_lease_acquire_error", "error", err)
		return fmt.Errorf("lease acquire failed: %w", err)
	}
	if !acq {
		logger.Info("retention_lease_not_acquired")
		return nil
	}
	defer func() {
		if err := lk.Release(owner); err != nil {
			logger.Error("retention_lease_release_error", "error", err)
		}
	}()

	// abort the sweep if the lease cannot be renewed
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	hbCtx, hbCancel := context.WithCancel(context.Background())
	defer hbCancel()
	go lk.Heartbeat(hbCtx, owner, leaseTTL, runCancel)

	age := cfg.MaxAge.Duration()
	if min := cfg.MinAge.Duration(); min > age {
		age = min
	}
	now := time.Now().UTC()
	cutoff := now.Add(-age).UnixNano()
	runID := owner

	if logger.Audit != nil {
		logger.Audit.Info("retention_audit_header", "run_id", runID, "started_at", now.Format(time.RFC3339), "dry_run", cfg.DryRun, "cutoff", now.Add(-age).Format(time.RFC3339))
	} else {
		logger.Info("retention_audit_header", "run_id", runID, "started_at", now.Format(time.RFC3339), "dry_run", cfg.DryRun, "cutoff", now.Add(-age).Format(time.RFC3339))
	}

	scanned := 0
	swept := 0
	for _, job := range jobs {
		select {
		case <-runCtx.Done():
			logger.Warn("retention_run_aborted", "run_id", runID, "job", job)
			return runCtx.Err()
		default:
		}

		led := ledger.New(job)

		if cfg.DryRun {
			n, err := led.CountBefore(cutoff)
			if err != nil {
				logger.Error("retention_count_failed", "run_id", runID, "job", job, "error", err)
				return err
			}
			scanned += n
			if logger.Audit != nil {
				logger.Audit.Info("retention_audit_item", "run_id", runID, "job", job, "status", "dry_run", "eligible", n)
			} else {
				logger.Info("retention_audit_item", "run_id", runID, "job", job, "status", "dry_run", "eligible", n)
			}
			continue
		}

		jobSwept := 0
		for {
			n, err := led.SweepBefore(cutoff, cfg.BatchSize)
			if err != nil {
				logger.Error("retention_sweep_failed", "run_id", runID, "job", job, "error", err)
				return err
			}
			jobSwept += n
			metrics.LedgerSwept.Add(float64(n))
			if cfg.BatchSize <= 0 || n < cfg.BatchSize {
				break
			}
			select {
			case <-runCtx.Done():
				logger.Warn("retention_run_aborted", "run_id", runID, "job", job)
				return runCtx.Err()
			default:
			}
		}
		scanned += jobSwept
		swept += jobSwept
		if logger.Audit != nil {
			logger.Audit.Info("retention_audit_item", "run_id", runID, "job", job, "status", "swept", "deleted", jobSwept)
		} else {
			logger.Info("retention_audit_item", "run_id", runID, "job", job, "status", "swept", "deleted", jobSwept)
		}
	}

	if logger.Audit != nil {
		logger.Audit.Info("retention_audit_footer", "run_id", runID, "scanned", scanned, "swept", swept)
	} else {
		logger.Info("retention_audit_footer", "run_id", runID, "scanned", scanned, "swept", swept)
	}
	logger.Info("retention_run_complete", "run_id", runID, "swept", swept, "dry_run", cfg.DryRun)
	return nil
}
