// Package activitylog writes a structured, append-only JSONL record of
// session state transitions. It is deliberately separate from the
// transcript's raw byte log and interaction log (internal/transcript) —
// this is a higher-level activity feed meant for dashboards and
// post-hoc analysis, not for replaying keystrokes.
package activitylog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Logger appends JSON-encoded activity records to a file, one per line.
// A disabled or Nop Logger accepts every call as a no-op.
type Logger struct {
	enabled   bool
	agent     string
	sessionID string

	mu   sync.Mutex
	file *os.File
}

// New creates a Logger writing to path. When enabled is false, the
// returned Logger accepts all calls without creating or writing to the
// file.
func New(enabled bool, path, agentName, sessionID string) *Logger {
	l := &Logger{enabled: enabled, agent: agentName, sessionID: sessionID}
	if !enabled {
		return l
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		// Degrade to a no-op logger rather than fail the caller.
		l.enabled = false
		return l
	}
	l.file = f
	return l
}

// Nop returns a Logger that discards every call. Useful when a caller
// has no path to log to but wants to avoid nil checks.
func Nop() *Logger {
	return &Logger{enabled: false}
}

// Close closes the underlying file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// StateChange records a classifier state transition.
func (l *Logger) StateChange(from, to string) {
	l.write(map[string]any{
		"event": "state_change",
		"from":  from,
		"to":    to,
	})
}

func (l *Logger) write(rec map[string]any) {
	if l == nil || !l.enabled || l.file == nil {
		return
	}
	rec["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	rec["actor"] = l.agent
	rec["session_id"] = l.sessionID

	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	data = append(data, '\n')
	l.file.Write(data) //nolint:errcheck // best-effort logging
}
