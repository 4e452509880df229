// Package quiescence turns the raw byte stream carried by an
// ingestion.Ring into discrete response units: runs of output bounded
// by a configurable silence window (the "quiescence window", default
// 1000ms, overridable via QUIESCENCE_MS). It derives active/idle state
// from a notify-then-reset-timer idiom built on the Ring's WaitSince
// primitive, returning accumulated bytes rather than a state enum.
package quiescence

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"piloty/internal/ingestion"
	"piloty/internal/vt100"
)

// DefaultWindow is the default quiescence window.
const DefaultWindow = time.Second

// Collector accumulates ring output until a run of silence at least as
// long as Window passes, or the caller's context ends.
type Collector struct {
	ring   *ingestion.Ring
	Window time.Duration
}

// New creates a Collector reading from ring with the given default
// quiescence window.
func New(ring *ingestion.Ring, window time.Duration) *Collector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Collector{ring: ring, Window: window}
}

type waitResult struct {
	data []byte
	next int64
	err  error
}

// Collect blocks until the ring has been silent for at least c.Window,
// then returns every byte appended since cursor along with the cursor
// to resume from. If ctx ends first, Collect returns whatever was
// accumulated and ctx's error — the partial-output-on-timeout case
// pollOutput relies on.
func (c *Collector) Collect(ctx context.Context, cursor int64) ([]byte, int64, error) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var acc []byte
	cur := cursor

	timer := time.NewTimer(c.Window)
	defer timer.Stop()

	resultCh := make(chan waitResult, 1)
	spawn := func(from int64) {
		go func() {
			d, next, err := c.ring.WaitSince(waitCtx, from)
			resultCh <- waitResult{d, next, err}
		}()
	}
	spawn(cur)

	for {
		select {
		case res := <-resultCh:
			if res.err != nil {
				return acc, cur, res.err
			}
			acc = append(acc, res.data...)
			cur = res.next
			resetTimer(timer, c.Window)
			spawn(cur)
		case <-timer.C:
			return acc, cur, nil
		case <-ctx.Done():
			return acc, cur, ctx.Err()
		}
	}
}

// Poll waits up to timeout for quiescence, returning whatever output
// accumulated in that window and whether quiescence (rather than the
// timeout) ended the wait.
func (c *Collector) Poll(ctx context.Context, cursor int64, timeout time.Duration) (data []byte, newCursor int64, quiesced bool, err error) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, newCursor, err = c.Collect(pctx, cursor)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return data, newCursor, false, nil
		}
		return data, newCursor, false, err
	}
	return data, newCursor, true, nil
}

// Expect checks the emulator's rendered scrollback+screen text against
// pattern before waiting for anything: a caller whose pattern is already
// satisfied by what's on screen returns immediately, paying no
// quiescence delay. Only when the pattern is absent does it fall into
// Collect rounds until a match appears or ctx ends. The regex always
// runs against rendered text, never raw bytes, so escape sequences and
// partial multi-byte writes can't spoof a match.
func (c *Collector) Expect(ctx context.Context, vt *vt100.Emulator, cursor int64, pattern *regexp.Regexp) (matched bool, newCursor int64, err error) {
	cur := cursor
	if pattern.MatchString(renderedText(vt)) {
		return true, cur, nil
	}
	for {
		_, next, cerr := c.Collect(ctx, cur)
		cur = next

		if pattern.MatchString(renderedText(vt)) {
			return true, cur, nil
		}
		if cerr != nil {
			return false, cur, cerr
		}
	}
}

func renderedText(vt *vt100.Emulator) string {
	var b strings.Builder
	for _, line := range vt.Scrollback(0) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	for _, line := range vt.Screen().Lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// resetTimer safely resets t to fire after d, draining a pending tick
// if Stop raced a firing.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
