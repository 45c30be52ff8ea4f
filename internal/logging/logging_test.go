package logging

import (
	"path/filepath"
	"testing"
)

func TestRedact(t *testing.T) {
	in := map[string]any{
		"address":     "media.local",
		"Password":    "hunter2",
		"AccessToken": "abc",
		"port":        8096,
	}

	out := Redact(in)

	if out["Password"] != redacted || out["AccessToken"] != redacted {
		t.Errorf("sensitive fields not redacted: %v", out)
	}
	if out["address"] != "media.local" || out["port"] != 8096 {
		t.Errorf("non-sensitive fields changed: %v", out)
	}
	if in["Password"] != "hunter2" {
		t.Error("Redact modified its input")
	}
}

func TestRedactExplicitKeys(t *testing.T) {
	out := Redact(map[string]any{"username": "alice", "password": "x"}, "username")
	if out["username"] != redacted {
		t.Errorf("username = %v, want redacted", out["username"])
	}
	if out["password"] != "x" {
		t.Errorf("password = %v, explicit key list should replace defaults", out["password"])
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		verbosity int
		debug     bool
		want      string
	}{
		{0, false, "info"},
		{0, true, "debug"},
		{1, false, "debug"},
		{2, false, "trace"},
		{3, true, "trace"},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.verbosity, tt.debug); got != tt.want {
			t.Errorf("LevelFor(%d, %v) = %q, want %q", tt.verbosity, tt.debug, got, tt.want)
		}
	}
}

func TestFilePathForDB(t *testing.T) {
	dir := t.TempDir()
	got := FilePathForDB(filepath.Join(dir, "embycord.db"))
	want := filepath.Join(dir, "logs", DefaultLogFilePath)
	if got != want {
		t.Errorf("FilePathForDB() = %q, want %q", got, want)
	}
	if FilePathForDB("") != DefaultLogFilePath {
		t.Errorf("empty db path should use default log file")
	}
}
