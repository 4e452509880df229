// Package config resolves piloty's on-disk root and the small set of
// tunables the core reads from the environment. It deliberately does not
// implement a full configuration-file system (that is an external
// concern); it exposes just enough to locate the session tree and pick
// sane defaults.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultRows and DefaultCols are the terminal dimensions used when a
	// session does not request an explicit size.
	DefaultRows = 24
	DefaultCols = 80

	// DefaultQuiescenceMS is the quiescence window used when a session
	// does not override it and QUIESCENCE_MS is unset.
	DefaultQuiescenceMS = 1000

	// DefaultScrollbackLines bounds the Emulator's captured scrollback.
	DefaultScrollbackLines = 5000
)

// RootDir returns the piloty root directory (~/.piloty by default,
// overridable with PILOTY_HOME).
func RootDir() string {
	if dir := os.Getenv("PILOTY_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".piloty")
	}
	return filepath.Join(home, ".piloty")
}

// SessionsDir returns the directory under which per-session transcript
// directories live (~/.piloty/sessions/).
func SessionsDir() string {
	return filepath.Join(RootDir(), "sessions")
}

// SessionDir returns the transcript directory for a given session id.
func SessionDir(id string) string {
	return filepath.Join(SessionsDir(), id)
}

// ActiveDir returns the directory holding best-effort symlinks to live
// session directories (~/.piloty/active/).
func ActiveDir() string {
	return filepath.Join(RootDir(), "active")
}

// QuiescenceWindow returns the default quiescence window: QUIESCENCE_MS
// from the environment if set and valid, otherwise DefaultQuiescenceMS.
func QuiescenceWindow() time.Duration {
	if v := os.Getenv("QUIESCENCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return time.Duration(DefaultQuiescenceMS) * time.Millisecond
}

// Defaults holds the small set of tunables that may be overridden by an
// optional ~/.piloty/config.yaml. A zero field means "use the package
// default."
type Defaults struct {
	Rows             int    `yaml:"rows,omitempty"`
	Cols             int    `yaml:"cols,omitempty"`
	QuiescenceMS     int    `yaml:"quiescence_ms,omitempty"`
	ScrollbackLines  int    `yaml:"scrollback_lines,omitempty"`
	ShellPromptRegex string `yaml:"shell_prompt_regex,omitempty"`
}

// LoadDefaults reads ~/.piloty/config.yaml. A missing file is not an
// error; it yields a zero-valued Defaults (every knob falls back to the
// package default).
func LoadDefaults() (*Defaults, error) {
	return LoadDefaultsFrom(filepath.Join(RootDir(), "config.yaml"))
}

// LoadDefaultsFrom reads defaults from an explicit path, for tests.
func LoadDefaultsFrom(path string) (*Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Defaults{}, nil
		}
		return nil, err
	}
	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// RowsOr returns d.Rows or DefaultRows if unset.
func (d *Defaults) RowsOr() int {
	if d == nil || d.Rows <= 0 {
		return DefaultRows
	}
	return d.Rows
}

// ColsOr returns d.Cols or DefaultCols if unset.
func (d *Defaults) ColsOr() int {
	if d == nil || d.Cols <= 0 {
		return DefaultCols
	}
	return d.Cols
}

// ScrollbackLinesOr returns d.ScrollbackLines or DefaultScrollbackLines if unset.
func (d *Defaults) ScrollbackLinesOr() int {
	if d == nil || d.ScrollbackLines <= 0 {
		return DefaultScrollbackLines
	}
	return d.ScrollbackLines
}
