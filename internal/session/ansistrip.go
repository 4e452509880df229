package session

import "regexp"

// ansiPattern matches CSI sequences (ESC [ ... final), OSC sequences
// (ESC ] ... BEL or ST), charset designations (ESC ( or ESC ) plus one
// of A, B, 0, 1, 2) and keypad-mode switches (ESC = and ESC >). Used
// only to honor strip_ansi on a
// Response's Output field; the transcript's raw log and the emulator's
// VT state are never touched by this.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*(\x07|\x1b\\)|\x1b[()][AB012]|\x1b[=>]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
