package transcript

import (
	"strings"
	"testing"
	"time"
)

func TestOpenCreatesFilesAndMeta(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, "sess-1", Metadata{ID: "sess-1", Created: time.Now(), Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	meta, err := ReadMeta(root, "sess-1")
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if meta.ID != "sess-1" || meta.Rows != 24 || meta.Cols != 80 {
		t.Fatalf("ReadMeta = %+v, unexpected", meta)
	}
}

func TestOpenRefusesSecondOwner(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, "sess-2", Metadata{ID: "sess-2"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := Open(root, "sess-2", Metadata{ID: "sess-2"}); err == nil {
		t.Fatal("expected second Open of the same session dir to fail while the first is still held")
	}
}

func TestAppendRawRoundTrips(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, "sess-3", Metadata{ID: "sess-3"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.AppendRaw([]byte("hello\x1b[31mworld")); err != nil {
		t.Fatalf("AppendRaw: %v", err)
	}
	s.Close()

	raw, err := ReadRaw(root, "sess-3")
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	if string(raw) != "hello\x1b[31mworld" {
		t.Fatalf("ReadRaw = %q, want exact raw bytes preserved", raw)
	}
}

func TestAppendInteractionRedactsPassword(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, "sess-4", Metadata{ID: "sess-4"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.AppendInteraction("input", "hunter2", true); err != nil {
		t.Fatalf("AppendInteraction: %v", err)
	}
	if err := s.AppendInteraction("input", "ls -la", false); err != nil {
		t.Fatalf("AppendInteraction: %v", err)
	}
	s.Close()

	records, err := ReadInteractions(root, "sess-4")
	if err != nil {
		t.Fatalf("ReadInteractions: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].Payload != RedactedPasswordMarker {
		t.Fatalf("records[0].Payload = %q, want redaction marker", records[0].Payload)
	}
	if strings.Contains(records[0].Payload, "hunter2") {
		t.Fatal("the literal secret must never reach the interaction log")
	}
	if records[1].Payload != "ls -la" {
		t.Fatalf("records[1].Payload = %q, want %q", records[1].Payload, "ls -la")
	}
}

func TestUpdateMetaPersists(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, "sess-5", Metadata{ID: "sess-5"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	err = s.UpdateMeta(func(m *Metadata) {
		m.State = "ready"
		m.StateWhy = "shell prompt is awaiting a command"
	})
	if err != nil {
		t.Fatalf("UpdateMeta: %v", err)
	}
	s.Close()

	meta, err := ReadMeta(root, "sess-5")
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if meta.State != "ready" {
		t.Fatalf("meta.State = %q, want %q", meta.State, "ready")
	}
}

func TestCloseReleasesLockForReopen(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, "sess-6", Metadata{ID: "sess-6"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(root, "sess-6", Metadata{ID: "sess-6"})
	if err != nil {
		t.Fatalf("reopen after Close: %v", err)
	}
	s2.Close()
}
