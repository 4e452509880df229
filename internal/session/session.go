// Package session composes the PTY channel, terminal emulator,
// ingestion loop, quiescence collector, prompt detector, state
// classifier, and transcript store into the single type tools actually
// call: Session.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"syscall"
	"time"

	"piloty/internal/activitylog"
	"piloty/internal/ingestion"
	"piloty/internal/promptdetect"
	"piloty/internal/ptychannel"
	"piloty/internal/ptyerr"
	"piloty/internal/quiescence"
	"piloty/internal/stateclassifier"
	"piloty/internal/transcript"
	"piloty/internal/vt100"
)

// DefaultWriteTimeout is how long a single PTY write may block before
// the child is considered hung.
const DefaultWriteTimeout = 3 * time.Second

// DefaultCloseGrace is how long Terminate waits after SIGHUP before
// escalating to SIGKILL.
const DefaultCloseGrace = 2 * time.Second

// Options configures a new Session.
type Options struct {
	ID      string
	Rows    int
	Cols    int
	Cwd     string
	Env     map[string]string
	Tag     string
	Command string // defaults to an interactive, no-rc shell if empty
	Args    []string

	ScrollbackLines int
	QuiescenceWindow time.Duration
	RingCapacity     int

	TranscriptRoot string
	ActivityLog    *activitylog.Logger
	Sampler        stateclassifier.Sampler
	PromptRegex    *regexp.Regexp
}

// Response is the uniform shape every Session operation returns.
type Response struct {
	Status      stateclassifier.Status `json:"status"`
	Output      string                 `json:"output"`
	Screen      vt100.Screen           `json:"screen"`
	StateReason string                 `json:"state_reason"`
}

// Session is one live PTY plus its child, emulator, transcript, and
// metadata, addressed by a client-supplied id.
type Session struct {
	id string

	// opLock serializes input-generating operations (run, send_input,
	// send_control, send_password) so only one proceeds at a time.
	// View-only operations (get_screen, poll_output, expect) do not take it.
	opLock sync.Mutex

	// cursorMu guards the shared incremental-output cursor every
	// operation (including view-only ones) advances.
	cursorMu sync.Mutex
	cursor   int64

	ch         *ptychannel.Channel
	vt         *vt100.Emulator
	ring       *ingestion.Ring
	loop       *ingestion.Loop
	quies      *quiescence.Collector
	prompt     *promptdetect.Detector
	classifier *stateclassifier.Classifier
	store      *transcript.Store

	activityLog *activitylog.Logger
	stateLogMu  sync.Mutex
	lastStatus  stateclassifier.Status

	created    time.Time
	cwd        string
	rows, cols int

	ctx    context.Context
	cancel context.CancelFunc

	termMu     sync.Mutex
	terminated bool
}

// DefaultShell is used when Options.Command is empty: an interactive
// shell started without profile/rc files, so prompt detection sees a
// predictable PS1 rather than whatever dotfiles happen to customize it.
var DefaultShell = struct {
	Command string
	Args    []string
}{Command: "/bin/bash", Args: []string{"--noprofile", "--norc", "-i"}}

// New spawns a child under a PTY and wires up every component. On
// spawn failure, no transcript directory is created and the returned
// error is a spawn-error-class piloty error.
func New(opts Options) (*Session, error) {
	rows, cols := opts.Rows, opts.Cols
	if rows <= 0 {
		rows = 24
	}
	if cols <= 0 {
		cols = 80
	}

	command := opts.Command
	args := opts.Args
	if command == "" {
		command = DefaultShell.Command
		args = DefaultShell.Args
	}

	env := map[string]string{"TERM": "xterm-256color"}
	for k, v := range opts.Env {
		env[k] = v
	}

	ch, err := ptychannel.Open(command, args, rows, cols, env)
	if err != nil {
		return nil, ptyerr.Wrap(ptyerr.SpawnError, "spawn child", err)
	}

	scrollbackCap := opts.ScrollbackLines
	if scrollbackCap <= 0 {
		scrollbackCap = 5000
	}
	vt := vt100.New(rows, cols, scrollbackCap)

	ringCap := opts.RingCapacity
	if ringCap <= 0 {
		ringCap = ingestion.DefaultCapacity
	}
	ring := ingestion.NewRing(ringCap)

	window := opts.QuiescenceWindow
	if window <= 0 {
		window = quiescence.DefaultWindow
	}
	quies := quiescence.New(ring, window)

	now := time.Now()
	meta := transcript.Metadata{
		ID:      opts.ID,
		Created: now,
		Cwd:     opts.Cwd,
		Tag:     opts.Tag,
		Pid:     ch.Pid(),
		Rows:    rows,
		Cols:    cols,
	}

	store, err := transcript.Open(opts.TranscriptRoot, opts.ID, meta)
	if err != nil {
		ch.Close(DefaultCloseGrace) //nolint:errcheck
		return nil, ptyerr.Wrap(ptyerr.IOError, "open transcript", err)
	}

	activityLog := opts.ActivityLog
	if activityLog == nil {
		activityLog = activitylog.Nop()
	}

	detector := promptdetect.New()
	if opts.PromptRegex != nil {
		detector.SetOverride(opts.PromptRegex)
	}

	classifier := &stateclassifier.Classifier{Sampler: opts.Sampler}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:          opts.ID,
		ch:          ch,
		vt:          vt,
		ring:        ring,
		quies:       quies,
		prompt:      detector,
		classifier:  classifier,
		store:       store,
		activityLog: activityLog,
		created:     now,
		cwd:         opts.Cwd,
		rows:        rows,
		cols:        cols,
		ctx:         ctx,
		cancel:      cancel,
	}

	s.loop = ingestion.NewLoop(ch, vt, ring)
	s.loop.OnChunk = func(chunk []byte) {
		s.store.AppendRaw(chunk) //nolint:errcheck
	}
	go s.loop.Run()
	go s.watchEOF()

	return s, nil
}

// ID returns the session's stable identifier.
func (s *Session) ID() string { return s.id }

// watchEOF observes the ingestion loop finishing (PTY EOF or read
// error) and updates transcript metadata accordingly. It does not mark
// the session terminated — eof and terminated are distinct statuses.
func (s *Session) watchEOF() {
	<-s.loop.Done()
	now := time.Now()
	s.store.UpdateMeta(func(m *transcript.Metadata) { //nolint:errcheck
		if m.Ended == nil {
			m.Ended = &now
		}
	})
}

// Run writes command plus a newline, then collects output until
// quiescence or timeout.
func (s *Session) Run(ctx context.Context, command string, timeout time.Duration, stripANSIOut bool) (Response, error) {
	return s.writeAndCollect(ctx, []byte(command+"\n"), "input", command, false, timeout, stripANSIOut)
}

// SendInput writes text with no appended newline, then collects.
func (s *Session) SendInput(ctx context.Context, text string, timeout time.Duration, stripANSIOut bool) (Response, error) {
	return s.writeAndCollect(ctx, []byte(text), "input", text, false, timeout, stripANSIOut)
}

// SendControl translates key to its control byte, writes it, then
// collects.
func (s *Session) SendControl(ctx context.Context, key string, timeout time.Duration, stripANSIOut bool) (Response, error) {
	b, err := controlByte(key)
	if err != nil {
		return Response{}, err
	}
	return s.writeAndCollect(ctx, []byte{b}, "input", fmt.Sprintf("^%s", key), false, timeout, stripANSIOut)
}

// SendPassword writes password plus a newline; the transcript's
// structured interaction log records only a redaction marker.
func (s *Session) SendPassword(ctx context.Context, password string, timeout time.Duration) (Response, error) {
	return s.writeAndCollect(ctx, []byte(password+"\n"), "input", password, true, timeout, false)
}

// writeAndCollect is the shared body of every input-generating
// operation: acquire the operation lock, write, wait for quiescence,
// classify, release. Holding the lock across the quiescence wait is
// intentional and safe only because the ingestion loop runs on its own
// goroutine outside this lock.
func (s *Session) writeAndCollect(ctx context.Context, payload []byte, direction, logPayload string, redact bool, timeout time.Duration, stripANSIOut bool) (Response, error) {
	if s.isTerminated() {
		return s.terminatedResponse(), nil
	}

	s.opLock.Lock()
	defer s.opLock.Unlock()

	if s.isTerminated() {
		return s.terminatedResponse(), nil
	}

	if _, err := s.ch.Write(payload, DefaultWriteTimeout); err != nil {
		if errors.Is(err, ptychannel.ErrWriteTimeout) {
			s.markEOF()
			return s.eofResponse(), nil
		}
		return Response{}, ptyerr.Wrap(ptyerr.IOError, "write to child", err)
	}
	s.store.AppendInteraction(direction, logPayload, redact) //nolint:errcheck

	return s.collect(ctx, timeout, stripANSIOut)
}

// PollOutput is the collector variant that never writes: it returns
// whatever output accumulates within timeout without sending anything
// to the child.
func (s *Session) PollOutput(ctx context.Context, timeout time.Duration) (Response, error) {
	if s.isTerminated() {
		return s.terminatedResponse(), nil
	}
	return s.collect(ctx, timeout, false)
}

// collect waits for quiescence (or timeout) and returns the classified
// response.
func (s *Session) collect(ctx context.Context, timeout time.Duration, stripANSIOut bool) (Response, error) {
	collectCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-collectCtx.Done():
			}
		}()
	}

	s.cursorMu.Lock()
	cursor := s.cursor
	s.cursorMu.Unlock()

	data, newCursor, _, err := s.quies.Poll(collectCtx, cursor, timeout)
	if err != nil && s.isTerminated() {
		return s.terminatedResponse(), nil
	}

	s.cursorMu.Lock()
	s.cursor = newCursor
	s.cursorMu.Unlock()

	output := string(data)
	if stripANSIOut {
		output = stripANSI(output)
	}

	return s.classify(output), nil
}

// shellLikePattern is a loose net used by ExpectPrompt to know when to
// stop waiting; the precise shell/REPL distinction is still made by the
// prompt detector inside classify.
var shellLikePattern = regexp.MustCompile(`[\$#%>]\s*$`)

// Expect repeats quiescence rounds until pattern matches the rendered
// screen+scrollback, or ctx/timeout ends first.
func (s *Session) Expect(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) (Response, error) {
	if s.isTerminated() {
		return s.terminatedResponse(), nil
	}

	expectCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-expectCtx.Done():
		}
	}()

	s.cursorMu.Lock()
	cursor := s.cursor
	s.cursorMu.Unlock()

	_, newCursor, err := s.quies.Expect(expectCtx, s.vt, cursor, pattern)

	s.cursorMu.Lock()
	s.cursor = newCursor
	s.cursorMu.Unlock()

	if err != nil && s.isTerminated() {
		return s.terminatedResponse(), nil
	}

	data, _ := s.ring.ReadSince(cursor)
	return s.classify(string(data)), nil
}

// ExpectPrompt waits for a shell-like prompt to appear at the end of
// the rendered screen.
func (s *Session) ExpectPrompt(ctx context.Context, timeout time.Duration) (Response, error) {
	return s.Expect(ctx, shellLikePattern, timeout)
}

// GetScreen returns the current rendered screen without consuming any
// bytes.
func (s *Session) GetScreen() Response {
	return s.classify("")
}

// GetScrollback returns up to n scrollback lines.
func (s *Session) GetScrollback(n int) []string {
	return s.vt.Scrollback(n)
}

// ClearScrollback drops scrollback history, leaving the visible screen
// untouched.
func (s *Session) ClearScrollback() {
	s.vt.ClearScrollback()
}

// SendSignal delivers sig to the child's foreground process group.
func (s *Session) SendSignal(sig syscall.Signal) error {
	if s.isTerminated() {
		return ptyerr.New(ptyerr.Terminated, "session is terminated")
	}
	if err := s.ch.Signal(sig); err != nil {
		return ptyerr.Wrap(ptyerr.IOError, "signal child", err)
	}
	return nil
}

// Metadata is the snapshot get_metadata() returns: everything in
// session.json plus the live state and its reason.
type Metadata struct {
	transcript.Metadata
	State       stateclassifier.Status `json:"state"`
	StateReason string                 `json:"state_reason"`
}

// GetMetadata returns the session's metadata snapshot plus current
// state. StateReason is prefixed with a compact "status (idle Ns)"
// label when the session has been idle.
func (s *Session) GetMetadata() Metadata {
	resp := s.classify("")
	idle := time.Since(s.loop.LastActivity())
	label := stateclassifier.FormatReason(resp.Status, idle)
	reason := resp.StateReason
	if label != string(resp.Status) {
		reason = fmt.Sprintf("%s: %s", label, resp.StateReason)
	}
	return Metadata{
		Metadata:    s.store.Meta(),
		State:       resp.Status,
		StateReason: reason,
	}
}

// ConfigureSession updates the optional tag and/or prompt override
// regex. A nil argument leaves the corresponding setting unchanged.
func (s *Session) ConfigureSession(tag *string, promptRegex *regexp.Regexp) {
	if tag != nil {
		s.store.UpdateMeta(func(m *transcript.Metadata) { m.Tag = *tag }) //nolint:errcheck
	}
	if promptRegex != nil {
		s.prompt.SetOverride(promptRegex)
	}
}

// TranscriptData is what Transcript() returns: the raw byte log and the
// structured interaction records.
type TranscriptData struct {
	Raw          []byte
	Interactions []transcript.Interaction
}

// Transcript reads the session's on-disk transcript directly from its
// own transcript directory.
func (s *Session) Transcript() (TranscriptData, error) {
	dir := s.store.Dir()
	root := filepath.Dir(dir)
	raw, err := transcript.ReadRaw(root, s.id)
	if err != nil {
		return TranscriptData{}, err
	}
	interactions, err := transcript.ReadInteractions(root, s.id)
	if err != nil {
		return TranscriptData{}, err
	}
	return TranscriptData{Raw: raw, Interactions: interactions}, nil
}

// Terminate irrevocably ends the session. Future operations return
// status=terminated.
func (s *Session) Terminate() error {
	s.termMu.Lock()
	if s.terminated {
		s.termMu.Unlock()
		return nil
	}
	s.terminated = true
	s.termMu.Unlock()

	s.cancel()
	closeErr := s.ch.Close(DefaultCloseGrace)
	now := time.Now()
	s.store.UpdateMeta(func(m *transcript.Metadata) { //nolint:errcheck
		m.Ended = &now
		m.State = string(stateclassifier.StatusTerminated)
	})
	s.store.Close() //nolint:errcheck
	s.logStateChange(stateclassifier.StatusTerminated)
	return closeErr
}

// logStateChange records a classifier status transition to the
// activity log, but only when the status actually changed since the
// last observation — repeated view-only polls at a steady state don't
// spam the log with no-op transitions.
func (s *Session) logStateChange(status stateclassifier.Status) {
	s.stateLogMu.Lock()
	prev := s.lastStatus
	changed := prev != status
	s.lastStatus = status
	s.stateLogMu.Unlock()
	if changed {
		s.activityLog.StateChange(string(prev), string(status))
	}
}

func (s *Session) isTerminated() bool {
	s.termMu.Lock()
	defer s.termMu.Unlock()
	return s.terminated
}

func (s *Session) markEOF() {
	s.store.UpdateMeta(func(m *transcript.Metadata) { //nolint:errcheck
		if m.Ended == nil {
			now := time.Now()
			m.Ended = &now
		}
	})
}

func (s *Session) terminatedResponse() Response {
	return Response{
		Status:      stateclassifier.StatusTerminated,
		Output:      "",
		Screen:      s.vt.Screen(),
		StateReason: "session was explicitly terminated",
	}
}

func (s *Session) eofResponse() Response {
	return Response{
		Status:      stateclassifier.StatusEOF,
		Output:      "",
		Screen:      s.vt.Screen(),
		StateReason: "child process stopped reading input and the write timed out",
	}
}

// classify builds a Response from the emulator's current state, the
// prompt detector, and the state classifier.
func (s *Session) classify(output string) Response {
	screen := s.vt.Screen()
	eof, _ := s.loop.EOF()
	terminated := s.isTerminated()

	last := ""
	for i := len(screen.Lines) - 1; i >= 0; i-- {
		if screen.Lines[i] != "" {
			last = screen.Lines[i]
			break
		}
	}
	kind := s.prompt.Classify(last)

	scrollback := s.vt.Scrollback(0)
	in := stateclassifier.Input{
		Lines:          screen.Lines,
		AltScreen:      screen.AltScreen,
		PromptKind:     kind,
		EOF:            eof,
		Terminated:     terminated,
		TimeSinceInput: time.Since(s.loop.LastActivity()),
	}
	result := s.classifier.Classify(in, joinLines(scrollback))
	s.logStateChange(result.Status)

	return Response{
		Status:      result.Status,
		Output:      output,
		Screen:      screen,
		StateReason: result.Reason,
	}
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
