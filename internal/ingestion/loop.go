package ingestion

import (
	"errors"
	"io"
	"sync"
	"time"

	"piloty/internal/ptychannel"
	"piloty/internal/vt100"
)

// Loop is the single-goroutine-per-session reader that drains a
// Channel's output and fans it out, in a fixed order, to the transcript,
// the emulator, and the ring. No lock of the Loop is held across the
// fan-out; each sink does its own locking. The fan-out order here (transcript append, emulator feed, ring append,
// activity timestamp) guarantees the raw byte log always reflects bytes
// no renderer has had a chance to
// corrupt or reorder.
type Loop struct {
	ch  *ptychannel.Channel
	vt  *vt100.Emulator
	ring *Ring

	// OnChunk is called with each raw chunk before it reaches the
	// emulator, giving the transcript's raw-byte log first crack at it.
	OnChunk func([]byte)

	mu         sync.Mutex
	lastActive time.Time
	eof        bool
	exitErr    error

	done chan struct{}
}

// NewLoop builds a Loop over an already-open channel, emulator, and
// ring. Run must be called (typically in its own goroutine) to start
// draining.
func NewLoop(ch *ptychannel.Channel, vt *vt100.Emulator, ring *Ring) *Loop {
	return &Loop{
		ch:   ch,
		vt:   vt,
		ring: ring,
		done: make(chan struct{}),
	}
}

// Run drains the channel until it hits EOF or a read error, updating
// last-activity time on every chunk. It returns once the channel is
// exhausted; callers typically run it in its own goroutine for the
// lifetime of the session.
func (l *Loop) Run() {
	buf := make([]byte, 4096)
	for {
		n, err := l.ch.ReadAvailable(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)

			if l.OnChunk != nil {
				l.OnChunk(chunk)
			}
			l.vt.Feed(chunk)
			l.ring.Append(chunk)

			l.mu.Lock()
			l.lastActive = time.Now()
			l.mu.Unlock()
		}
		if err != nil {
			l.mu.Lock()
			l.eof = true
			if !errors.Is(err, io.EOF) {
				l.exitErr = err
			}
			l.mu.Unlock()
			l.ring.Close()
			close(l.done)
			return
		}
	}
}

// Done returns a channel closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// EOF reports whether the channel has reached end-of-output, and the
// non-EOF error that ended the loop, if any.
func (l *Loop) EOF() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eof, l.exitErr
}

// LastActivity returns the time of the most recent chunk, or the zero
// time if no output has been observed yet.
func (l *Loop) LastActivity() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastActive
}

// IdleFor reports whether the loop has been idle at least d, mirroring
// VT.IsIdle's threshold check.
func (l *Loop) IdleFor(d time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.lastActive.IsZero() && time.Since(l.lastActive) >= d
}
