package keys

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// notation dictionary for key formats:
	// led  = ledger entry (one per classified work item)
	// job  = job state record
	// sched = pending continuation
	// All keys are lowercase; segments are separated by ":"
	// <...> = variable segment (e.g. <job>, <item_id>)

	LedgerKey      = "led:%s:item:%s" // led:<job>:item:<item_id>
	LedgerScope    = "led:%s:item:"   // prefix covering one job's ledger
	LedgerAllScope = "led:"           // prefix covering every job's ledger
	JobStateKey    = "job:%s:state"   // job:<job>:state
	SchedKey       = "sched:%s:%s"    // sched:<job>:<handle>
	SchedScope     = "sched:%s:"      // prefix covering one job's continuations
	SchedAllScope  = "sched:"         // prefix covering every job's continuations

	// system keys
	SystemVersionKey    = "system:schema_version"
	SystemInProgressKey = "system:migration_in_progress"
)

func GenLedgerKey(job, itemID string) string { return fmt.Sprintf(LedgerKey, job, itemID) }

func GenLedgerScope(job string) string { return fmt.Sprintf(LedgerScope, job) }

func GenJobStateKey(job string) string { return fmt.Sprintf(JobStateKey, job) }

func GenSchedKey(job, handle string) string { return fmt.Sprintf(SchedKey, job, handle) }

func GenSchedScope(job string) string { return fmt.Sprintf(SchedScope, job) }

// ParseLedgerItemID returns the item id segment of a ledger key, or "" when
// the key does not belong to the given job's ledger scope.
func ParseLedgerItemID(job, key string) string {
	scope := GenLedgerScope(job)
	if !strings.HasPrefix(key, scope) {
		return ""
	}
	return key[len(scope):]
}

// ParseSchedHandle returns the handle segment of a sched key, or "" when the
// key does not belong to the given job's scope.
func ParseSchedHandle(job, key string) string {
	scope := GenSchedScope(job)
	if !strings.HasPrefix(key, scope) {
		return ""
	}
	return key[len(scope):]
}

// GenHandle returns a fresh identifier for continuations, run ids and lease
// owners.
func GenHandle() string { return uuid.NewString() }
