package migrate

import (
	"context"
	"encoding/json"
	"testing"

	"ingestd/pkg/keys"
	"ingestd/pkg/models"
	"ingestd/pkg/store"
)

func openStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func TestRun_WrapsLegacyLedgerValues(t *testing.T) {
	openStore(t)

	legacyKey := keys.GenLedgerKey("reports", "old-item.json")
	if err := store.SaveKey(legacyKey, []byte("success")); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	modern := models.LedgerEntry{Outcome: models.OutcomeFailedParse, TS: 42, Note: "bad json"}
	mb, _ := json.Marshal(modern)
	modernKey := keys.GenLedgerKey("reports", "new-item.json")
	if err := store.SaveKey(modernKey, mb); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}

	invoked, err := Run(context.Background(), SchemaVersion)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !invoked {
		t.Fatalf("expected migration to run on a fresh store")
	}

	v, err := store.GetKey(legacyKey)
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	var ent models.LedgerEntry
	if err := json.Unmarshal([]byte(v), &ent); err != nil {
		t.Fatalf("legacy value not wrapped: %v (value %q)", err, v)
	}
	if ent.Outcome != models.OutcomeSuccess {
		t.Fatalf("expected wrapped outcome success, got %q", ent.Outcome)
	}
	if ent.TS == 0 {
		t.Fatalf("expected wrapped entry to carry a timestamp")
	}

	v, err = store.GetKey(modernKey)
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	var kept models.LedgerEntry
	if err := json.Unmarshal([]byte(v), &kept); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if kept.TS != 42 || kept.Note != "bad json" {
		t.Fatalf("expected modern entry untouched, got %+v", kept)
	}
}

func TestRun_PersistsVersionAndClearsMarker(t *testing.T) {
	openStore(t)

	invoked, err := Run(context.Background(), SchemaVersion)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !invoked {
		t.Fatalf("expected first run to invoke sync")
	}

	v, err := store.GetKey(keys.SystemVersionKey)
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if v != SchemaVersion {
		t.Fatalf("expected stored version %q, got %q", SchemaVersion, v)
	}
	if _, err := store.GetKey(keys.SystemInProgressKey); !store.IsNotFound(err) {
		t.Fatalf("expected in-progress marker to be removed, got %v", err)
	}

	// same version again is a noop
	invoked, err = Run(context.Background(), SchemaVersion)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if invoked {
		t.Fatalf("expected rerun at same version to be a noop")
	}
}
