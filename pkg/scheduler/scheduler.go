// Package scheduler registers one-shot job continuations durably in the
// store and fires them from a polling dispatcher. Continuations survive
// restarts: anything overdue fires on the first dispatcher tick after
// startup.
package scheduler

import (
	"encoding/json"
	"sort"
	"time"

	"ingestd/pkg/keys"
	"ingestd/pkg/logger"
	"ingestd/pkg/metrics"
	"ingestd/pkg/models"
	"ingestd/pkg/store"
)

// Scheduler persists continuations under sched:<job>:<handle>.
type Scheduler struct {
	now func() time.Time
}

func New() *Scheduler {
	return &Scheduler{now: time.Now}
}

// ScheduleOnce registers a continuation of job to fire after the delay and
// returns its handle. Callers that must keep a single pending continuation
// cancel before scheduling.
func (s *Scheduler) ScheduleOnce(job string, after time.Duration) (string, error) {
	now := s.now().UTC()
	c := models.Continuation{
		Handle:    keys.GenHandle(),
		Job:       job,
		FireAtTS:  now.Add(after).UnixNano(),
		CreatedTS: now.UnixNano(),
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	if err := store.SaveKey(keys.GenSchedKey(job, c.Handle), b); err != nil {
		return "", err
	}
	metrics.ContinuationsScheduled.WithLabelValues(job).Inc()
	logger.Info("continuation_scheduled", "job", job, "handle", c.Handle, "after", after.String())
	return c.Handle, nil
}

// CancelAll removes every pending continuation for job and returns how
// many were dropped.
func (s *Scheduler) CancelAll(job string) (int, error) {
	n, err := store.DeletePrefix(keys.GenSchedScope(job))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("continuations_cancelled", "job", job, "dropped", n)
	}
	return n, nil
}

// ListPending returns the pending continuations for job, earliest first.
func (s *Scheduler) ListPending(job string) ([]models.Continuation, error) {
	return s.listScope(keys.GenSchedScope(job))
}

// listAll returns every pending continuation across jobs, earliest first.
func (s *Scheduler) listAll() ([]models.Continuation, error) {
	return s.listScope(keys.SchedAllScope)
}

func (s *Scheduler) listScope(scope string) ([]models.Continuation, error) {
	ks, err := store.ListKeys(scope)
	if err != nil {
		return nil, err
	}
	out := make([]models.Continuation, 0, len(ks))
	for _, k := range ks {
		v, err := store.GetKey(k)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		var c models.Continuation
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			logger.Warn("continuation_decode_failed", "key", k, "error", err)
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAtTS < out[j].FireAtTS })
	return out, nil
}

// drop removes a single continuation by handle. Missing keys are fine:
// the engine usually cancelled the fired continuation already.
func (s *Scheduler) drop(c models.Continuation) error {
	return store.DeleteKey(keys.GenSchedKey(c.Job, c.Handle))
}
