package models

// RunStatus is the control state of an ingestion job. Diagnostic detail
// lives in JobState.Detail and JobState.LastError, never here.
type RunStatus string

const (
	StatusIdle           RunStatus = "idle"
	StatusStarting       RunStatus = "starting"
	StatusRunning        RunStatus = "running"
	StatusWaiting        RunStatus = "waiting_for_continuation"
	StatusRetryScheduled RunStatus = "retry_scheduled"
	StatusCompleted      RunStatus = "completed"
	StatusFailed         RunStatus = "failed"
)

// Terminal reports whether the status ends a run. Waiting and
// retry_scheduled are not terminal: a continuation is pending.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// RunError is the last classified error observed by a run. It is
// diagnostic only; control flow is carried by RunStatus.
type RunError struct {
	Phase   string `json:"phase"` // "setup", "source", "item", "ledger", "schedule"
	ItemID  string `json:"item_id,omitempty"`
	Message string `json:"message"`
	TS      int64  `json:"ts"`
}

// JobState is the single durable record an ingestion job keeps between
// invocations. Owned and mutated exclusively by the engine; the status
// surface returns it verbatim.
type JobState struct {
	Job            string    `json:"job"`
	Status         RunStatus `json:"status"`
	Detail         string    `json:"detail,omitempty"`
	ProcessedCount int64     `json:"processed_count"`
	// Cursor, when set, is the resume token from the most recent
	// enumeration that was interrupted. Cleared on completion.
	Cursor    string    `json:"cursor,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	LastRunTS int64     `json:"last_run_ts,omitempty"`
	UpdatedTS int64     `json:"updated_ts,omitempty"`
	LastError *RunError `json:"last_error,omitempty"`
}

// Continuation is one pending scheduled re-invocation of a job.
type Continuation struct {
	Handle    string `json:"handle"`
	Job       string `json:"job"`
	FireAtTS  int64  `json:"fire_at_ts"`
	CreatedTS int64  `json:"created_ts"`
}
