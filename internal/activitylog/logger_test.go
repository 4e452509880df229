package activitylog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStateChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	l := New(true, path, "agent", "sess")
	defer l.Close()

	l.StateChange("active", "idle")

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var e struct {
		Actor     string `json:"actor"`
		SessionID string `json:"session_id"`
		Event     string `json:"event"`
		From      string `json:"from"`
		To        string `json:"to"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Actor != "agent" {
		t.Errorf("actor = %q, want %q", e.Actor, "agent")
	}
	if e.SessionID != "sess" {
		t.Errorf("session_id = %q, want %q", e.SessionID, "sess")
	}
	if e.Event != "state_change" {
		t.Errorf("event = %q, want %q", e.Event, "state_change")
	}
	if e.From != "active" || e.To != "idle" {
		t.Errorf("from/to = %q/%q, want active/idle", e.From, e.To)
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	l := New(false, path, "agent", "sess")
	defer l.Close()

	l.StateChange("active", "idle")

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected no file to be created when disabled")
	}
}

func TestNopLoggerIsNoop(t *testing.T) {
	l := Nop()
	// Should not panic.
	l.StateChange("active", "idle")
	l.Close()
}

func TestMultipleEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	l := New(true, path, "agent", "sess")
	defer l.Close()

	l.StateChange("", "running")
	l.StateChange("running", "ready")
	l.StateChange("ready", "terminated")

	lines := readLines(t, path)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
}

func TestTimestampPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	l := New(true, path, "agent", "sess")
	defer l.Close()

	l.StateChange("", "running")

	lines := readLines(t, path)
	var e struct {
		Timestamp string `json:"ts"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Timestamp == "" {
		t.Error("expected ts field to be present")
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}
