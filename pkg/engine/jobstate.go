package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"ingestd/pkg/keys"
	"ingestd/pkg/models"
	"ingestd/pkg/store"
)

// LoadState returns the durable job state, or an Idle state when the job
// has never run. Used by the engine and the status surface.
func LoadState(job string) (models.JobState, error) {
	v, err := store.GetKey(keys.GenJobStateKey(job))
	if err != nil {
		if store.IsNotFound(err) {
			return models.JobState{Job: job, Status: models.StatusIdle}, nil
		}
		return models.JobState{}, fmt.Errorf("load job state: %w", err)
	}
	var st models.JobState
	if err := json.Unmarshal([]byte(v), &st); err != nil {
		return models.JobState{}, fmt.Errorf("decode job state: %w", err)
	}
	return st, nil
}

// saveState persists the state record. Control transitions request a
// synced write; the per-item progress counter rides NoSync.
func saveState(st *models.JobState, now time.Time, requestSync bool) error {
	st.UpdatedTS = now.UTC().UnixNano()
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode job state: %w", err)
	}
	if err := store.SaveKeyOpt(keys.GenJobStateKey(st.Job), b, requestSync); err != nil {
		return fmt.Errorf("persist job state: %w", err)
	}
	return nil
}
