package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteCrashLog(t *testing.T) {
	dir := t.TempDir()
	SetBasePath(dir)
	SetVersion("test")
	SetSession("work", 3)
	t.Cleanup(func() {
		SetBasePath("")
		SetSession("", 0)
	})

	if err := WriteCrashLog("boom"); err != nil {
		t.Fatalf("WriteCrashLog failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, CrashLogDir))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("crash logs = %d, want 1", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(dir, CrashLogDir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var entry CrashLog
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("crash log is not valid JSON: %v", err)
	}
	if entry.PanicValue != "boom" {
		t.Errorf("panic value = %q, want boom", entry.PanicValue)
	}
	if entry.Session != "work" || entry.PendingOps != 3 {
		t.Errorf("session context = %s/%d, want work/3", entry.Session, entry.PendingOps)
	}
	if entry.StackTrace == "" {
		t.Error("crash log should carry a stack trace")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in).String(); got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
