package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ingestd/pkg/models"
)

func seedDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("payload of "+n), 0o644); err != nil {
			t.Fatalf("seed %s: %v", n, err)
		}
	}
	return dir
}

func drain(t *testing.T, it Iterator) []models.WorkItem {
	t.Helper()
	var out []models.WorkItem
	for {
		item, ok, err := it.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, item)
	}
}

func TestFS_EnumeratesInNameOrder(t *testing.T) {
	dir := seedDir(t, "20240103-c.pdf", "20240101-a.pdf", "20240102-b.pdf")
	src := NewFS(dir, "", 0)

	it, err := src.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer it.Close()

	items := drain(t, it)
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	want := []string{"20240101-a.pdf", "20240102-b.pdf", "20240103-c.pdf"}
	for i, w := range want {
		if items[i].ID != w {
			t.Fatalf("item %d = %q, want %q", i, items[i].ID, w)
		}
	}
	if items[0].Size == 0 || items[0].Path == "" {
		t.Fatalf("item metadata not populated: %+v", items[0])
	}
}

func TestFS_CursorResumesStrictlyAfter(t *testing.T) {
	dir := seedDir(t, "a.pdf", "b.pdf", "c.pdf", "d.pdf")
	src := NewFS(dir, "", 0)

	it, err := src.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// consume two items, remember the cursor, abandon the pass
	for i := 0; i < 2; i++ {
		if _, ok, err := it.Next(context.Background()); err != nil || !ok {
			t.Fatalf("Next %d: ok=%v err=%v", i, ok, err)
		}
	}
	cur := it.Cursor()
	it.Close()
	if cur != "b.pdf" {
		t.Fatalf("Cursor = %q, want b.pdf", cur)
	}

	it2, err := src.Open(context.Background(), cur)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer it2.Close()
	rest := drain(t, it2)
	if len(rest) != 2 || rest[0].ID != "c.pdf" || rest[1].ID != "d.pdf" {
		t.Fatalf("resume yielded %+v, want c.pdf d.pdf", rest)
	}
}

func TestFS_CursorBeforeFirstNextIsOpeningCursor(t *testing.T) {
	dir := seedDir(t, "a.pdf", "b.pdf")
	src := NewFS(dir, "", 0)

	it, err := src.Open(context.Background(), "a.pdf")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer it.Close()
	if got := it.Cursor(); got != "a.pdf" {
		t.Fatalf("Cursor before Next = %q, want the opening cursor", got)
	}
}

func TestFS_NewDepositsAppearOnResume(t *testing.T) {
	dir := seedDir(t, "a.pdf", "b.pdf")
	src := NewFS(dir, "", 0)

	it, err := src.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	drain(t, it)
	cur := it.Cursor()
	it.Close()

	// harvester deposits another file that sorts after the cursor
	if err := os.WriteFile(filepath.Join(dir, "c.pdf"), []byte("late"), 0o644); err != nil {
		t.Fatalf("late deposit: %v", err)
	}

	it2, err := src.Open(context.Background(), cur)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer it2.Close()
	rest := drain(t, it2)
	if len(rest) != 1 || rest[0].ID != "c.pdf" {
		t.Fatalf("resume yielded %+v, want just c.pdf", rest)
	}
}

func TestFS_PatternAndHiddenFiles(t *testing.T) {
	dir := seedDir(t, "a.pdf", "b.tmp", ".hidden.pdf")
	src := NewFS(dir, "*.pdf", 0)

	it, err := src.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer it.Close()
	items := drain(t, it)
	if len(items) != 1 || items[0].ID != "a.pdf" {
		t.Fatalf("got %+v, want only a.pdf", items)
	}
}

func TestFS_OversizedSkipped(t *testing.T) {
	dir := seedDir(t, "small.pdf")
	big := filepath.Join(dir, "big.pdf")
	if err := os.WriteFile(big, make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("write big: %v", err)
	}
	src := NewFS(dir, "", 1024)

	it, err := src.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer it.Close()
	items := drain(t, it)
	if len(items) != 1 || items[0].ID != "small.pdf" {
		t.Fatalf("got %+v, want only small.pdf", items)
	}
}

func TestFS_MissingDirFails(t *testing.T) {
	src := NewFS(filepath.Join(t.TempDir(), "nope"), "", 0)
	if _, err := src.Open(context.Background(), ""); err == nil {
		t.Fatalf("expected error for missing holding dir")
	}
}

func TestFS_CanceledContext(t *testing.T) {
	dir := seedDir(t, "a.pdf")
	src := NewFS(dir, "", 0)
	it, err := src.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer it.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := it.Next(ctx); err == nil {
		t.Fatalf("expected context error from Next")
	}
}
