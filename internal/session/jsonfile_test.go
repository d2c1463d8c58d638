package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

func newTestFileBackend(t *testing.T, backup bool, maxFiles int) (*FileBackend, string) {
	t.Helper()
	dir := t.TempDir()
	b, err := NewFileBackend(filepath.Join(dir, "data", "conversation_history.json"), BackupOptions{
		Enabled:  backup,
		Dir:      filepath.Join(dir, "backups"),
		MaxFiles: maxFiles,
	})
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	return b, dir
}

func TestFileBackend_LoadMissingFile(t *testing.T) {
	b, _ := newTestFileBackend(t, false, 0)
	data, err := b.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("first run must not fail: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected empty map, got %v", data)
	}
}

func TestFileBackend_SaveLoadRoundTrip(t *testing.T) {
	b, _ := newTestFileBackend(t, false, 0)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := map[string]schema.Messages{
		"discord:1": {
			{Role: schema.RoleUser, Content: "hi", Timestamp: ts},
			{Role: schema.RoleAssistant, Content: "hello there", Timestamp: ts},
		},
	}
	if err := b.SaveAll(context.Background(), in); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	out, err := b.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	got := out["discord:1"]
	if len(got) != 2 || got[1].Content != "hello there" || !got[0].Timestamp.Equal(ts) {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestFileBackend_LoadLegacyWithoutTimestamps(t *testing.T) {
	b, _ := newTestFileBackend(t, false, 0)
	legacy := `{"123":[{"role":"user","content":"ciao"},{"role":"assistant","content":"salve"}]}`
	if err := os.WriteFile(b.Path(), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := b.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(out["123"]) != 2 || !out["123"][0].Timestamp.IsZero() {
		t.Errorf("unexpected legacy load: %+v", out)
	}
}

func TestFileBackend_LoadRejectsCorruptFile(t *testing.T) {
	b, _ := newTestFileBackend(t, false, 0)
	if err := os.WriteFile(b.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := b.LoadAll(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFileBackend_LoadRejectsUnknownRole(t *testing.T) {
	b, _ := newTestFileBackend(t, false, 0)
	if err := os.WriteFile(b.Path(), []byte(`{"c":[{"role":"tool","content":"x"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := b.LoadAll(context.Background()); err == nil {
		t.Fatal("expected role error")
	}
}

func TestFileBackend_BackupRotation(t *testing.T) {
	b, _ := newTestFileBackend(t, true, 3)
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	data := map[string]schema.Messages{"c": {{Role: schema.RoleUser, Content: "x"}}}
	for i := 0; i < 6; i++ {
		if err := b.SaveAll(context.Background(), data); err != nil {
			t.Fatalf("SaveAll #%d: %v", i, err)
		}
	}

	names, err := b.Backups()
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	// The first save has nothing to back up; five backups were taken and
	// three survive.
	if len(names) != 3 {
		t.Fatalf("expected 3 backups, got %d: %v", len(names), names)
	}
	if names[0] != "conversation_history_20260501_120005.json" {
		t.Errorf("expected newest backup first, got %q", names[0])
	}
}

func TestFileBackend_NoTempFilesLeft(t *testing.T) {
	b, _ := newTestFileBackend(t, false, 0)
	if err := b.SaveAll(context.Background(), map[string]schema.Messages{}); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Dir(b.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the history file, found %d entries", len(entries))
	}
}
