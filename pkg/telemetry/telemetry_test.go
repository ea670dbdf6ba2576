package telemetry

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTelemetry_WritesTracePerOpFile(t *testing.T) {
	dir := t.TempDir()
	tel, err := New(dir, 1024, 16, 50*time.Millisecond, 1<<20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr := tel.Track("engine.run")
	tr.Mark("acquire_lease")
	tr.Mark("drain")
	tr.Finish()
	tel.Close()

	raw, err := os.ReadFile(filepath.Join(dir, "engine.run.jsonl"))
	if err != nil {
		t.Fatalf("trace file not written: %v", err)
	}
	var got Trace
	if err := json.Unmarshal(bytes.TrimSpace(raw), &got); err != nil {
		t.Fatalf("trace line is not json: %v", err)
	}
	if got.Name != "engine.run" {
		t.Fatalf("unexpected trace name %q", got.Name)
	}
	if len(got.Steps) < 2 || got.Steps[0].Name != "acquire_lease" || got.Steps[1].Name != "drain" {
		t.Fatalf("unexpected steps %+v", got.Steps)
	}
	if got.TotalMS < 0 {
		t.Fatalf("negative total duration %f", got.TotalMS)
	}
}

func TestTelemetry_OpsLandInSeparateFiles(t *testing.T) {
	dir := t.TempDir()
	tel, err := New(dir, 1024, 16, 50*time.Millisecond, 1<<20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tel.Track("db.get_key").Finish()
	tel.Track("db.save_key").Finish()
	tel.Close()

	for _, name := range []string{"db.get_key.jsonl", "db.save_key.jsonl"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected per-op file %s: %v", name, err)
		}
	}
}

func TestTrack_InertWithoutInit(t *testing.T) {
	tr := Track("db.get_key")
	tr.Mark("lookup")
	tr.Finish()
	if tr.Name != "db.get_key" {
		t.Fatalf("unexpected name %q", tr.Name)
	}
}
