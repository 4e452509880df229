// Package transcript is the on-disk record of one session: raw PTY
// bytes, a structured interaction log, and a metadata snapshot. It is
// one file per session,
// append/read access, append-only os.OpenFile flags, tolerant
// line-by-line parsing on read) plus a fixed redaction marker in place
// of secret payloads, with gofrs/flock added for the exclusive
// per-session-directory ownership: no two processes may append to the
// same session's transcript concurrently.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	rawFileName   = "transcript.log"
	interFileName = "interaction.log"
	metaFileName  = "session.json"
	lockFileName  = ".lock"
)

// RedactedPasswordMarker replaces a password payload in the interaction
// log, so a fixed marker is written instead of the secret.
const RedactedPasswordMarker = "[redacted:password]"

// Metadata is the content of session.json, updated on significant
// session lifecycle events.
type Metadata struct {
	ID        string     `json:"id"`
	Created   time.Time  `json:"created"`
	Ended     *time.Time `json:"ended,omitempty"`
	Cwd       string     `json:"cwd"`
	Tag       string     `json:"tag,omitempty"`
	Pid       int        `json:"pid"`
	Rows      int        `json:"rows"`
	Cols      int        `json:"cols"`
	State     string     `json:"state,omitempty"`
	StateWhy  string     `json:"state_reason,omitempty"`
}

// Interaction is one record in interaction.log: a timestamped,
// directional payload. Password payloads are replaced with
// RedactedPasswordMarker before being written.
type Interaction struct {
	Timestamp time.Time `json:"ts"`
	Direction string    `json:"direction"` // "input" or "output"
	Payload   string    `json:"payload"`
}

// formatInteraction renders rec as a UTF-8 line:
// "<iso8601> <direction> <payload-or-redaction>". A payload spanning
// multiple lines has its newlines escaped so the on-disk log stays one
// record per line.
func formatInteraction(rec Interaction) string {
	payload := strings.ReplaceAll(rec.Payload, "\n", "\\n")
	return fmt.Sprintf("%s %s %s", rec.Timestamp.Format(time.RFC3339Nano), rec.Direction, payload)
}

// parseInteraction reverses formatInteraction. Malformed lines are
// reported via ok=false so callers can skip them, matching eventstore's
// tolerant read behavior.
func parseInteraction(line string) (Interaction, bool) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) != 3 {
		return Interaction{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		return Interaction{}, false
	}
	return Interaction{
		Timestamp: ts,
		Direction: fields[1],
		Payload:   strings.ReplaceAll(fields[2], "\\n", "\n"),
	}, true
}

// Store owns one session's transcript directory.
type Store struct {
	dir string

	lock *flock.Flock

	mu        sync.Mutex
	rawFile   *os.File
	interFile *os.File
	meta      Metadata
}

// Open creates (or reopens) the transcript directory for id under root,
// acquiring an exclusive lock on it so no second process can append to
// the same session concurrently.
func Open(root, id string, initial Metadata) (*Store, error) {
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript: create session dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("transcript: acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("transcript: session %s is already owned by another process", id)
	}

	rawFile, err := os.OpenFile(filepath.Join(dir, rawFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		lock.Unlock() //nolint:errcheck
		return nil, fmt.Errorf("transcript: open raw log: %w", err)
	}
	interFile, err := os.OpenFile(filepath.Join(dir, interFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		rawFile.Close() //nolint:errcheck
		lock.Unlock()   //nolint:errcheck
		return nil, fmt.Errorf("transcript: open interaction log: %w", err)
	}

	s := &Store{
		dir:       dir,
		lock:      lock,
		rawFile:   rawFile,
		interFile: interFile,
		meta:      initial,
	}
	if err := s.writeMetaLocked(); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// Dir returns the session's transcript directory.
func (s *Store) Dir() string { return s.dir }

// AppendRaw appends raw PTY bytes to the raw byte log, exactly as
// received — no ANSI stripping, no redaction. This is the replay source
// a session's full history can be reconstructed from.
func (s *Store) AppendRaw(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.rawFile.Write(data)
	return err
}

// AppendInteraction records a structured (timestamp, direction,
// payload) entry. When redact is true, payload is replaced with
// RedactedPasswordMarker before it ever reaches the encoder — the
// secret is never serialized.
func (s *Store) AppendInteraction(direction, payload string, redact bool) error {
	if redact {
		payload = RedactedPasswordMarker
	}
	rec := Interaction{
		Timestamp: time.Now().UTC(),
		Direction: direction,
		Payload:   payload,
	}
	line := formatInteraction(rec) + "\n"

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.interFile.Write([]byte(line))
	return err
}

// UpdateMeta applies fn to the in-memory metadata and persists
// session.json.
func (s *Store) UpdateMeta(fn func(*Metadata)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.meta)
	return s.writeMetaLocked()
}

// Meta returns a copy of the current in-memory metadata.
func (s *Store) Meta() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

func (s *Store) writeMetaLocked() error {
	data, err := json.MarshalIndent(s.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("transcript: marshal metadata: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dir, metaFileName), data, 0o644)
}

// Close releases the directory lock and closes both log files. It does
// not delete any on-disk data — a terminated session's transcript
// remains queryable after the Store itself has been closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	if err := s.rawFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.interFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ReadMeta reads session.json from an on-disk transcript directory
// without needing to hold the directory's lock — used to answer
// get_metadata/transcript queries against a terminated session whose
// Store has already been closed and evicted.
func ReadMeta(root, id string) (Metadata, error) {
	var m Metadata
	data, err := os.ReadFile(filepath.Join(root, id, metaFileName))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("transcript: parse session.json: %w", err)
	}
	return m, nil
}

// ReadInteractions reads every interaction record from an on-disk
// transcript directory, in file order.
func ReadInteractions(root, id string) ([]Interaction, error) {
	data, err := os.ReadFile(filepath.Join(root, id, interFileName))
	if err != nil {
		return nil, err
	}
	var out []Interaction
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		rec, ok := parseInteraction(string(line))
		if !ok {
			continue // skip malformed lines, matching eventstore's tolerant Read
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadRaw reads the complete raw byte log from an on-disk transcript
// directory.
func ReadRaw(root, id string) ([]byte, error) {
	return os.ReadFile(filepath.Join(root, id, rawFileName))
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
