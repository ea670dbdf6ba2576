// Package ledger is the durable record of per-item outcomes. The engine
// consults it before submitting an item and writes it after classifying
// one; entries survive process restarts so reprocessing the same item
// never produces a duplicate downstream submission.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ingestd/pkg/keys"
	"ingestd/pkg/logger"
	"ingestd/pkg/models"
	"ingestd/pkg/store"
)

// UnavailableError wraps a storage failure. Any read or write that fails
// for a reason other than key-not-found surfaces as one of these; callers
// must treat it as fatal for the current run and must not guess outcomes.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("ledger unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is (or wraps) an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// Summary aggregates a job's ledger for the operator surface.
type Summary struct {
	Job       string                 `json:"job"`
	Total     int                    `json:"total"`
	ByOutcome map[models.Outcome]int `json:"by_outcome"`
	OldestTS  int64                  `json:"oldest_ts,omitempty"`
	NewestTS  int64                  `json:"newest_ts,omitempty"`
}

// Ledger is a pebble-backed outcome record scoped to one job.
type Ledger struct {
	job string
}

func New(job string) *Ledger { return &Ledger{job: job} }

func (l *Ledger) Job() string { return l.job }

// Get returns the stored entry for an item. Items never recorded return a
// zero entry whose Outcome is OutcomeUnseen and a nil error.
func (l *Ledger) Get(itemID string) (models.LedgerEntry, error) {
	var ent models.LedgerEntry
	v, err := store.GetKey(keys.GenLedgerKey(l.job, itemID))
	if err != nil {
		if store.IsNotFound(err) {
			return ent, nil
		}
		return ent, &UnavailableError{Op: "get", Err: err}
	}
	if err := json.Unmarshal([]byte(v), &ent); err != nil {
		return ent, &UnavailableError{Op: "decode", Err: err}
	}
	return ent, nil
}

// Set records a terminal outcome for an item with a durable write. An
// item may be re-recorded (e.g. after a start-fresh) and the newest entry
// wins.
func (l *Ledger) Set(itemID string, outcome models.Outcome, note string) error {
	if !outcome.Seen() {
		return fmt.Errorf("refusing to record unseen outcome for item %q", itemID)
	}
	ent := models.LedgerEntry{
		Outcome: outcome,
		TS:      time.Now().UTC().UnixNano(),
		Note:    note,
	}
	b, err := json.Marshal(ent)
	if err != nil {
		return &UnavailableError{Op: "encode", Err: err}
	}
	if err := store.SaveKey(keys.GenLedgerKey(l.job, itemID), b); err != nil {
		return &UnavailableError{Op: "set", Err: err}
	}
	logger.Debug("ledger_entry_set", "job", l.job, "item", itemID, "outcome", string(outcome))
	return nil
}

// Reset removes every entry for the job and returns how many were
// dropped. Used by the operator start-fresh surface.
func (l *Ledger) Reset() (int, error) {
	n, err := store.DeletePrefix(keys.GenLedgerScope(l.job))
	if err != nil {
		return 0, &UnavailableError{Op: "reset", Err: err}
	}
	logger.Info("ledger_reset", "job", l.job, "dropped", n)
	return n, nil
}

// Summary walks the job's entries and tallies outcomes.
func (l *Ledger) Summary() (Summary, error) {
	sum := Summary{Job: l.job, ByOutcome: make(map[models.Outcome]int)}
	scope := keys.GenLedgerScope(l.job)
	ks, err := store.ListKeys(scope)
	if err != nil {
		return sum, &UnavailableError{Op: "summary", Err: err}
	}
	for _, k := range ks {
		v, err := store.GetKey(k)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return sum, &UnavailableError{Op: "summary", Err: err}
		}
		var ent models.LedgerEntry
		if err := json.Unmarshal([]byte(v), &ent); err != nil {
			continue
		}
		sum.Total++
		sum.ByOutcome[ent.Outcome]++
		if sum.OldestTS == 0 || ent.TS < sum.OldestTS {
			sum.OldestTS = ent.TS
		}
		if ent.TS > sum.NewestTS {
			sum.NewestTS = ent.TS
		}
	}
	return sum, nil
}

// CountBefore reports how many entries were recorded before cutoff
// (unix nanos) without touching them. Used by dry-run sweeps.
func (l *Ledger) CountBefore(cutoff int64) (int, error) {
	scope := keys.GenLedgerScope(l.job)
	ks, err := store.ListKeys(scope)
	if err != nil {
		return 0, &UnavailableError{Op: "count", Err: err}
	}
	n := 0
	for _, k := range ks {
		v, err := store.GetKey(k)
		if err != nil {
			continue
		}
		var ent models.LedgerEntry
		if err := json.Unmarshal([]byte(v), &ent); err != nil {
			continue
		}
		if ent.TS < cutoff {
			n++
		}
	}
	return n, nil
}

// SweepBefore deletes up to max entries recorded before cutoff (unix
// nanos) in one atomic batch. Returns the number deleted. max <= 0 means
// no batch cap.
func (l *Ledger) SweepBefore(cutoff int64, max int) (int, error) {
	scope := keys.GenLedgerScope(l.job)
	ks, err := store.ListKeys(scope)
	if err != nil {
		return 0, &UnavailableError{Op: "sweep", Err: err}
	}
	batch := store.Client.NewBatch()
	defer batch.Close()
	deleted := 0
	for _, k := range ks {
		if max > 0 && deleted >= max {
			break
		}
		v, err := store.GetKey(k)
		if err != nil {
			continue
		}
		var ent models.LedgerEntry
		if err := json.Unmarshal([]byte(v), &ent); err != nil {
			continue
		}
		if ent.TS >= cutoff {
			continue
		}
		if err := batch.Delete([]byte(k), nil); err != nil {
			return 0, &UnavailableError{Op: "sweep", Err: err}
		}
		deleted++
	}
	if deleted == 0 {
		return 0, nil
	}
	if err := store.ApplyBatch(batch, true); err != nil {
		return 0, &UnavailableError{Op: "sweep", Err: err}
	}
	return deleted, nil
}
