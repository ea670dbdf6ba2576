package models

// Outcome is the terminal classification of a work item in the ledger.
// OutcomeUnseen is the zero value returned for items with no entry.
type Outcome string

const (
	OutcomeUnseen      Outcome = ""
	OutcomeSuccess     Outcome = "success"
	OutcomeFailedParse Outcome = "failed_parse"
	OutcomeTimedOut    Outcome = "timed_out"
)

// Seen reports whether the outcome is anything other than Unseen. Items
// with a seen outcome are never re-submitted downstream.
func (o Outcome) Seen() bool { return o != OutcomeUnseen }

// LedgerEntry is the stored value for one classified work item. TS lets the
// retention sweep age entries out; Note carries an optional human hint
// ("empty input", a truncated error) and is never interpreted.
type LedgerEntry struct {
	Outcome Outcome `json:"outcome"`
	TS      int64   `json:"ts"`
	Note    string  `json:"note,omitempty"`
}
