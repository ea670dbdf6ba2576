package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ingestd/pkg/keys"
	"ingestd/pkg/logger"
	"ingestd/pkg/models"
	"ingestd/pkg/store"
)

// SchemaVersion identifies the store layout this build writes. Bump it
// when a migration in Sync must run.
const SchemaVersion = "2"

// Sync performs upgrade work between schema versions. Edit in-place for
// migration logic.
func Sync(ctx context.Context, from, to string) error {
	logger.Info("migrate_sync_start", "from", from, "to", to)

	// Migration: wrap legacy bare-outcome ledger values into entry
	// envelopes. Early builds stored the outcome string directly; the
	// current schema stores a JSON object with outcome and timestamp.
	// Idempotent and safe to run multiple times.
	ks, err := store.ListKeys(keys.LedgerAllScope)
	if err != nil {
		logger.Error("migrate_list_ledger_failed", "error", err)
		return err
	}
	for _, k := range ks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		v, err := store.GetKey(k)
		if err != nil {
			logger.Error("migrate_read_ledger_failed", "key", k, "error", err)
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(v), "{") {
			continue
		}
		ent := models.LedgerEntry{
			Outcome: models.Outcome(strings.TrimSpace(v)),
			TS:      time.Now().UTC().UnixNano(),
			Note:    "migrated legacy value",
		}
		nb, _ := json.Marshal(ent)
		if err := store.SaveKey(k, nb); err != nil {
			logger.Error("migrate_save_ledger_failed", "key", k, "error", err)
			continue
		}
		logger.Info("migrate_ledger_entry_wrapped", "key", k)
	}

	logger.Info("migrate_sync_done", "from", from, "to", to)
	return nil
}

// Run checks for a schema version change and runs Sync if needed.
// Returns (invoked, error): invoked is true if Sync ran.
func Run(ctx context.Context, newVersion string) (bool, error) {
	logger.Info("migrate_version_check", "stored", getStoredVersion(), "running", newVersion)

	stored, err := store.GetKey(keys.SystemVersionKey)
	if err != nil && !store.IsNotFound(err) {
		logger.Error("migrate_read_version_failed", "error", err)
	}
	if stored == newVersion {
		logger.Info("migrate_noop", "version", newVersion)
		return false, nil
	}

	marker := map[string]string{
		"from":       stored,
		"to":         newVersion,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}
	mb, _ := json.Marshal(marker)
	if err := store.SaveKey(keys.SystemInProgressKey, mb); err != nil {
		logger.Error("migrate_write_inprogress_failed", "error", err)
		return true, fmt.Errorf("failed to write in-progress marker: %w", err)
	}

	logger.Info("migrate_start_sync", "from", stored, "to", newVersion)
	if err := Sync(ctx, stored, newVersion); err != nil {
		logger.Error("migrate_sync_failed", "from", stored, "to", newVersion, "error", err)
		return true, err
	}
	logger.Info("migrate_sync_succeeded", "from", stored, "to", newVersion)

	if err := store.SaveKey(keys.SystemVersionKey, []byte(newVersion)); err != nil {
		logger.Error("migrate_persist_version_failed", "version", newVersion, "error", err)
		return true, fmt.Errorf("failed to persist new version: %w", err)
	}

	if err := store.DeleteKey(keys.SystemInProgressKey); err != nil {
		logger.Error("migrate_delete_inprogress_failed", "error", err)
	}

	logger.Info("migrate_version_persisted", "version", newVersion)
	return true, nil
}

func getStoredVersion() string {
	v, _ := store.GetKey(keys.SystemVersionKey)
	return v
}
