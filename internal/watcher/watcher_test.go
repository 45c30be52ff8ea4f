package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestIsDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	w, err := New(filepath.Join(dir, "embycord.db"), func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()

	tests := []struct {
		name string
		want bool
	}{
		{"embycord.db", true},
		{"embycord.db-wal", true},
		{"embycord.db-journal", true},
		{"embycord.db-shm", false},
		{"embycord.db.bak", false},
		{"other.db", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.isDatabaseFile(filepath.Join(dir, tt.name)); got != tt.want {
				t.Errorf("isDatabaseFile(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "embycord.db")
	if err := os.WriteFile(dbPath, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	var reloads atomic.Int32
	w, err := New(dbPath, func(context.Context) error {
		reloads.Add(1)
		return nil
	}, WithDebounce(100*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	for i := range 5 {
		if err := os.WriteFile(dbPath, []byte{byte(i)}, 0o600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	deadline := time.Now().Add(3 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)

	if got := reloads.Load(); got != 1 {
		t.Fatalf("reloads = %d, want 1", got)
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "embycord.db")

	var reloads atomic.Int32
	w, err := New(dbPath, func(context.Context) error {
		reloads.Add(1)
		return nil
	}, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "embycord.log"), []byte("line"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	w.Stop()
	if w.IsRunning() {
		t.Fatal("watcher still running after Stop")
	}
	if got := reloads.Load(); got != 0 {
		t.Fatalf("reloads = %d, want 0", got)
	}
}
