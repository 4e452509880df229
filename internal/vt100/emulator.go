// Package vt100 implements the core's Terminal Emulator: a pull-side VT
// consumer that turns a byte stream into a fixed-size screen and a
// bounded scrollback. It wraps github.com/vito/midterm (a VT10x/ECMA-48
// implementation), adding the bounded-scrollback and health-bit behavior
// requires on top.
package vt100

import (
	"strings"
	"sync"

	"github.com/vito/midterm"
)

// Cursor is a 0-indexed screen position.
type Cursor struct {
	X, Y int
}

// Screen is a rendered snapshot: one string per row, the cursor
// position, whether the alternate screen buffer is active, and whether
// the emulator is in a healthy state.
type Screen struct {
	Lines     []string
	Cursor    Cursor
	AltScreen bool
	Healthy   bool
}

// Emulator is the single-writer VT model: the Ingestion Loop is the
// only caller of Feed; every other caller reads rendered snapshots.
type Emulator struct {
	mu sync.Mutex

	rows, cols int

	vt *midterm.Terminal // live W×H screen, including alternate-screen support

	// scrollCapture holds ANSI-formatted lines that scrolled off the top
	// of vt, captured via midterm's OnScrollback hook. Bounded by capLines.
	scrollCapture []string
	capLines      int

	// history is an ever-growing, append-only terminal mirroring every
	// byte fed to vt. It is the scrollback source of last resort for
	// programs that redraw via scroll regions (DECSTBM) rather than
	// linefeeds, where scrollCapture alone under-counts history.
	history       *midterm.Terminal
	scrollRegion  bool
	altScreen     bool
	healthy       bool
}

// New creates an Emulator with the given screen dimensions and scrollback
// line cap.
func New(rows, cols, scrollbackCap int) *Emulator {
	e := &Emulator{
		rows:     rows,
		cols:     cols,
		vt:       midterm.NewTerminal(rows, cols),
		history:  midterm.NewTerminal(rows, cols),
		capLines: scrollbackCap,
		healthy:  true,
	}
	e.history.AutoResizeY = true
	e.history.AppendOnly = true
	e.vt.OnScrollback(func(line midterm.Line) {
		e.scrollCapture = append(e.scrollCapture, line.Display()+"\033[0m")
		if len(e.scrollCapture) > e.capLines {
			trim := len(e.scrollCapture) - e.capLines
			e.scrollCapture = e.scrollCapture[trim:]
		}
	})
	return e
}

// Feed advances the VT state machine. It accepts arbitrary partial
// sequences across calls — escape sequences may be split between Feed
// calls, which midterm handles internally by buffering incomplete
// sequences.
func (e *Emulator) Feed(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			// A panic out of the VT parser means the escape stream fed to
			// it was corrupt enough to violate the parser's own
			// invariants. The screen is left at its last good state; the
			// health bit flips so callers can surface the corruption.
			e.healthy = false
		}
	}()

	e.trackModes(data)
	e.vt.Write(data) //nolint:errcheck // midterm.Terminal.Write never returns a real error
	e.history.Write(data) //nolint:errcheck
}

// trackModes does a light, non-parsing scan of data for the handful of
// escape sequences the classifier and scrollback logic need to know
// about, without duplicating a full VT parser.
func (e *Emulator) trackModes(data []byte) {
	if bytesContainsAny(data, "\x1b[?1049h", "\x1b[?1047h", "\x1b[?47h") {
		e.altScreen = true
	}
	if bytesContainsAny(data, "\x1b[?1049l", "\x1b[?1047l", "\x1b[?47l") {
		e.altScreen = false
	}
	if bytesContainsCSIFinal(data, 'r') {
		e.scrollRegion = true
	}
}

func bytesContainsAny(data []byte, subs ...string) bool {
	s := string(data)
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// bytesContainsCSIFinal reports whether data contains a complete CSI
// sequence (ESC [ ... final) whose final byte is final.
func bytesContainsCSIFinal(data []byte, final byte) bool {
	const (
		stNormal = iota
		stEsc
		stCSI
	)
	state := stNormal
	for _, b := range data {
		switch state {
		case stEsc:
			if b == '[' {
				state = stCSI
			} else {
				state = stNormal
			}
		case stCSI:
			if b >= 0x40 && b <= 0x7E {
				if b == final {
					return true
				}
				state = stNormal
			}
		default:
			if b == 0x1B {
				state = stEsc
			}
		}
	}
	return false
}

// Screen renders the current main or alternate screen.
func (e *Emulator) Screen() Screen {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.screenLocked()
}

func (e *Emulator) screenLocked() Screen {
	lines := make([]string, len(e.vt.Content))
	for i, row := range e.vt.Content {
		lines[i] = strings.TrimRight(string(row), " ")
	}
	return Screen{
		Lines:     lines,
		Cursor:    Cursor{X: e.vt.Cursor.X, Y: e.vt.Cursor.Y},
		AltScreen: e.altScreen,
		Healthy:   e.healthy,
	}
}

// LastNonEmptyLine returns the last non-blank rendered line, used by the
// prompt detector and state classifier.
func (e *Emulator) LastNonEmptyLine() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.vt.Content) - 1; i >= 0; i-- {
		line := strings.TrimRight(string(e.vt.Content[i]), " ")
		if line != "" {
			return line
		}
	}
	return ""
}

// Scrollback returns up to the most recent n scrollback lines,
// ANSI-formatted. When the child has used scroll regions (DECSTBM), the
// append-only history mirror is the more complete source; otherwise the
// lines captured as they scrolled off the top of the live screen are
// used. Either way at most the scrollback cap's worth of the most recent
// lines is returned.
func (e *Emulator) Scrollback(n int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var lines []string
	if e.scrollRegion {
		lines = historyLines(e.history)
		if e.capLines > 0 && len(lines) > e.capLines {
			lines = lines[len(lines)-e.capLines:]
		}
	} else {
		lines = e.scrollCapture
	}
	if n <= 0 || n >= len(lines) {
		return append([]string(nil), lines...)
	}
	return append([]string(nil), lines[len(lines)-n:]...)
}

func historyLines(t *midterm.Terminal) []string {
	lines := make([]string, 0, len(t.Content))
	for _, row := range t.Content {
		lines = append(lines, strings.TrimRight(string(row), " "))
	}
	return lines
}

// ClearScrollback drops scrollback history. The current visible screen
// is left untouched.
func (e *Emulator) ClearScrollback() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scrollCapture = nil
	e.history = midterm.NewTerminal(e.rows, e.cols)
	e.history.AutoResizeY = true
	e.history.AppendOnly = true
	e.scrollRegion = false
}

// Healthy reports the renderer health bit: false after a catastrophic
// parser failure.
func (e *Emulator) Healthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthy
}

// Dimensions returns the configured rows and cols.
func (e *Emulator) Dimensions() (rows, cols int) {
	return e.rows, e.cols
}
