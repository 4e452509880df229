// Package stateclassifier maps a rendered screen, a prompt-detector
// hint, and a little recent-activity bookkeeping to an agent-facing
// status vocabulary: a small enum, a String() method, and a human label
// formatter, driven by a fixed priority-ordered rule list rather than an
// event-driven state machine.
package stateclassifier

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"piloty/internal/promptdetect"
)

// Status is the classifier's output vocabulary.
type Status string

const (
	StatusRunning    Status = "running"
	StatusReady      Status = "ready"
	StatusRepl       Status = "repl"
	StatusPassword   Status = "password"
	StatusConfirm    Status = "confirm"
	StatusEditor     Status = "editor"
	StatusPager      Status = "pager"
	StatusError      Status = "error"
	StatusEOF        Status = "eof"
	StatusTerminated Status = "terminated"
	StatusUnknown    Status = "unknown"
)

// String satisfies fmt.Stringer, mirroring monitor.State.String().
func (s Status) String() string { return string(s) }

// Input is everything the classifier needs to produce a Result: the
// currently rendered lines (screen, then any editor/pager status bar is
// drawn as part of it), whether the alternate screen is active, the
// prompt detector's classification of the last non-empty line, whether
// the PTY has reached EOF, whether the session was explicitly
// terminated, and how long it's been since the last output.
type Input struct {
	Lines          []string
	AltScreen      bool
	PromptKind     promptdetect.Kind
	EOF            bool
	Terminated     bool
	TimeSinceInput time.Duration
}

// Result is the classification outcome plus a short human-readable
// justification.
type Result struct {
	Status Status
	Reason string
}

var (
	passwordCue = regexp.MustCompile(`(?i)(password|passphrase|enter key for)\s*:?\s*$`)
	confirmCue  = regexp.MustCompile(`(?i)(\[y/n\]|\(yes/no\)|\[yes/no\])\s*$`)
	replCue     = regexp.MustCompile(`(?i)(>>>\s*$|^\.\.\.\s*$|in\s*\[\d+\]:\s*$|mysql>\s*$)`)
	errorCue    = regexp.MustCompile(`(?i)(traceback \(most recent call last\)|command not found|error:|panic:|fatal:)`)
	pagerCue    = regexp.MustCompile(`(?i)(\(END\)|lines?\s+\d+-\d+/\d+|^:)`)
	editorCue   = regexp.MustCompile(`(?i)(-- insert --|-- visual --|\[no name\]|\bmodified\b)`)
)

// Sampler is the external, optional hook consulted only when every
// built-in rule falls through to unknown. The core never implements
// one; callers may inject any function matching this shape (an LLM
// call, a heuristic service, etc). A Sampler is expected to return ""
// when it cannot decide, which the classifier treats the same as a
// nil/absent Sampler.
type Sampler func(screen, scrollback string) Status

// Classifier applies a fixed priority-ordered set of rules. It holds no
// per-session state itself; Classify is a pure function of its Input
// plus an optional Sampler.
type Classifier struct {
	Sampler Sampler
}

// New creates a Classifier with no sampler installed.
func New() *Classifier {
	return &Classifier{}
}

// Classify applies a fixed priority order: password, confirm, error,
// repl, editor, pager, ready, running, unknown — with terminated and eof
// checked first since they override everything.
// scrollback is passed through to the sampler only; it plays no role in
// the built-in rules, which look only at the currently rendered screen.
func (c *Classifier) Classify(in Input, scrollback string) Result {
	if in.Terminated {
		return Result{StatusTerminated, "session was explicitly terminated"}
	}
	if in.EOF {
		return Result{StatusEOF, "child process ended"}
	}

	last := lastNonEmpty(in.Lines)
	recentLines := tailNonEmpty(in.Lines, 5)
	recentText := strings.Join(recentLines, "\n")

	if passwordCue.MatchString(last) {
		return Result{StatusPassword, "prompt looks like a password/passphrase request"}
	}
	if confirmCue.MatchString(last) {
		return Result{StatusConfirm, "prompt is awaiting a yes/no-style response"}
	}
	if errorCue.MatchString(recentText) {
		return Result{StatusError, "recent output contains an error or traceback banner"}
	}
	if in.PromptKind == promptdetect.KindPython || in.PromptKind == promptdetect.KindPdb || replCue.MatchString(last) {
		return Result{StatusRepl, "an interactive interpreter prompt is awaiting input"}
	}
	if in.AltScreen && editorCue.MatchString(last) {
		return Result{StatusEditor, "alternate screen active with an editor-style status bar"}
	}
	if in.AltScreen && pagerCue.MatchString(last) {
		return Result{StatusPager, "alternate screen active with a pager-style status line"}
	}
	if in.PromptKind == promptdetect.KindShell {
		return Result{StatusReady, "shell prompt is awaiting a command"}
	}
	if in.TimeSinceInput < 2*time.Second {
		return Result{StatusRunning, "output was produced recently with no other cue matching"}
	}

	if c.Sampler != nil {
		if sampled := c.Sampler(strings.Join(in.Lines, "\n"), scrollback); sampled != "" {
			return Result{sampled, "external sampler classified an otherwise-unknown screen"}
		}
	}
	return Result{StatusUnknown, "no heuristic matched and no sampler resolved it"}
}

func lastNonEmpty(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

func tailNonEmpty(lines []string, n int) []string {
	var out []string
	for i := len(lines) - 1; i >= 0 && len(out) < n; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			out = append([]string{lines[i]}, out...)
		}
	}
	return out
}

// FormatReason renders a compact, human-readable status+reason suffix
// like "ready (idle 3s)", mirroring FormatStateLabel's "State
// (sub-state)" composition, adapted to append an idle-duration suffix
// instead of a sub-state name.
func FormatReason(status Status, idle time.Duration) string {
	label := string(status)
	if idle <= 0 {
		return label
	}
	return label + " (idle " + formatIdleDuration(idle) + ")"
}

// formatIdleDuration renders a compact duration like "3s", "2m14s", or
// "1h3m" for display alongside a status's reason string.
func formatIdleDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	var b strings.Builder
	if h > 0 {
		b.WriteString(strconv.Itoa(int(h)))
		b.WriteByte('h')
	}
	if h > 0 || m > 0 {
		b.WriteString(strconv.Itoa(int(m)))
		b.WriteByte('m')
	}
	b.WriteString(strconv.Itoa(int(s)))
	b.WriteByte('s')
	return b.String()
}
