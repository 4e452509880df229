package session

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"piloty/internal/activitylog"
)

func newTestSession(t *testing.T, command string, args []string) *Session {
	t.Helper()
	s, err := New(Options{
		ID:               "test-" + t.Name(),
		Rows:             24,
		Cols:             80,
		Command:          command,
		Args:             args,
		TranscriptRoot:   t.TempDir(),
		QuiescenceWindow: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Terminate() })
	return s
}

func TestRunCollectsCommandOutput(t *testing.T) {
	s := newTestSession(t, "/bin/sh", nil)

	resp, err := s.Run(context.Background(), "echo hello-session", time.Second, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(resp.Output, "hello-session") {
		t.Fatalf("Output = %q, want it to contain %q", resp.Output, "hello-session")
	}
}

func TestSendInputNoNewline(t *testing.T) {
	s := newTestSession(t, "/bin/cat", nil)

	resp, err := s.SendInput(context.Background(), "partial", time.Second, false)
	if err != nil {
		t.Fatalf("SendInput: %v", err)
	}
	if !strings.Contains(resp.Output, "partial") {
		t.Fatalf("Output = %q, want it to contain %q", resp.Output, "partial")
	}
}

func TestSendControlCtrlDEndsCat(t *testing.T) {
	s := newTestSession(t, "/bin/cat", nil)

	if _, err := s.SendControl(context.Background(), "d", time.Second, false); err != nil {
		t.Fatalf("SendControl: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	eof, _ := s.loop.EOF()
	if !eof {
		t.Fatal("expected cat to exit after Ctrl-D (EOF)")
	}
}

func TestSendControlRejectsUnknownMnemonic(t *testing.T) {
	s := newTestSession(t, "/bin/cat", nil)

	_, err := s.SendControl(context.Background(), "q", time.Second, false)
	if err == nil {
		t.Fatal("expected an error for an unrecognized control mnemonic")
	}
}

func TestSendPasswordRedactsInteractionLog(t *testing.T) {
	root := t.TempDir()
	s, err := New(Options{
		ID:               "pw-session",
		Command:          "/bin/cat",
		TranscriptRoot:   root,
		QuiescenceWindow: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Terminate()

	if _, err := s.SendPassword(context.Background(), "hunter2", time.Second); err != nil {
		t.Fatalf("SendPassword: %v", err)
	}

	td, err := s.Transcript()
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	for _, rec := range td.Interactions {
		if strings.Contains(rec.Payload, "hunter2") {
			t.Fatal("the literal password must never reach the interaction log")
		}
	}
	if !strings.Contains(string(td.Raw), "hunter2") {
		t.Fatal("the raw transcript should still contain the password as the PTY echoed it")
	}
}

func TestExpectMatchesPattern(t *testing.T) {
	s := newTestSession(t, "/bin/sh", nil)

	if _, err := s.SendInput(context.Background(), "echo waiting-for-me\n", time.Second, false); err != nil {
		t.Fatalf("SendInput: %v", err)
	}

	pattern := regexp.MustCompile(`waiting-for-me`)
	resp, err := s.Expect(context.Background(), pattern, 2*time.Second)
	if err != nil {
		t.Fatalf("Expect: %v", err)
	}
	if !strings.Contains(joinLines(resp.Screen.Lines), "waiting-for-me") {
		t.Fatalf("Expect returned without the expected text present: %+v", resp.Screen.Lines)
	}
}

func TestGetScreenReflectsCurrentState(t *testing.T) {
	s := newTestSession(t, "/bin/sh", nil)

	if _, err := s.Run(context.Background(), "echo on-screen", time.Second, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	resp := s.GetScreen()
	if !strings.Contains(joinLines(resp.Screen.Lines), "on-screen") {
		t.Fatalf("GetScreen did not reflect prior output: %+v", resp.Screen.Lines)
	}
}

func TestGetScrollbackAndClear(t *testing.T) {
	s := newTestSession(t, "/bin/sh", nil)

	for i := 0; i < 40; i++ {
		s.Run(context.Background(), "echo line", 500*time.Millisecond, false) //nolint:errcheck
	}

	sb := s.GetScrollback(0)
	if len(sb) == 0 {
		t.Skip("scrollback empty; terminal dimensions did not force a scroll in this environment")
	}

	s.ClearScrollback()
	if len(s.GetScrollback(0)) != 0 {
		t.Fatal("ClearScrollback did not empty the scrollback")
	}
}

func TestTerminateMakesSubsequentOperationsReturnTerminated(t *testing.T) {
	s := newTestSession(t, "/bin/cat", nil)

	if err := s.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	resp, err := s.Run(context.Background(), "echo should-not-run", time.Second, false)
	if err != nil {
		t.Fatalf("Run after Terminate: %v", err)
	}
	if resp.Status != "terminated" {
		t.Fatalf("Status = %q, want terminated", resp.Status)
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	s := newTestSession(t, "/bin/cat", nil)

	if err := s.Terminate(); err != nil {
		t.Fatalf("first Terminate: %v", err)
	}
	if err := s.Terminate(); err != nil {
		t.Fatalf("second Terminate: %v", err)
	}
}

func TestGetMetadataReportsDimensions(t *testing.T) {
	s := newTestSession(t, "/bin/cat", nil)

	meta := s.GetMetadata()
	if meta.Rows != 24 || meta.Cols != 80 {
		t.Fatalf("GetMetadata dimensions = %dx%d, want 24x80", meta.Rows, meta.Cols)
	}
	time.Sleep(1100 * time.Millisecond)
	meta = s.GetMetadata()
	if !strings.Contains(meta.StateReason, "idle") {
		t.Fatalf("StateReason = %q, want an idle-duration prefix after a second of silence", meta.StateReason)
	}
}

func TestConfigureSessionSetsTagAndPromptOverride(t *testing.T) {
	s := newTestSession(t, "/bin/cat", nil)

	tag := "my-tag"
	s.ConfigureSession(&tag, regexp.MustCompile(`custom>\s*$`))

	meta := s.GetMetadata()
	if meta.Tag != "my-tag" {
		t.Fatalf("Tag = %q, want %q", meta.Tag, "my-tag")
	}
}

func TestTerminateLogsStateChangeToActivityLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "activity.log")
	s, err := New(Options{
		ID:               "test-" + t.Name(),
		Rows:             24,
		Cols:             80,
		Command:          "/bin/cat",
		TranscriptRoot:   t.TempDir(),
		QuiescenceWindow: 50 * time.Millisecond,
		ActivityLog:      activitylog.New(true, logPath, "test-agent", "test-session"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read activity log: %v", err)
	}
	if !strings.Contains(string(data), `"state_change"`) {
		t.Fatalf("activity log = %q, want a state_change entry", data)
	}
	if !strings.Contains(string(data), `"to":"terminated"`) {
		t.Fatalf("activity log = %q, want a transition to terminated", data)
	}
}
