// Package ptychannel owns a single child process's PTY master, its
// lifecycle, and the raw byte-level read/write/signal/close operations
// that make up the PTY Channel. It wraps PTY open/resize/kill,
// stripped of VT-rendering concerns (those live in internal/vt100) and
// extended with process-group signal delivery and a graceful-then-
// forceful close.
package ptychannel

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// ErrWriteTimeout is returned by Write when the child is not draining its
// stdin and the kernel PTY buffer fills, blocking the write past the
// deadline.
var ErrWriteTimeout = errors.New("ptychannel: write timed out")

// Channel owns one child process's PTY master and exposes the raw
// byte-level operations open/read_available/write/signal/close. It has
// no knowledge of VT rendering or quiescence; those are layered on top
// by the ingestion and quiescence packages.
type Channel struct {
	mu sync.Mutex

	ptm *os.File
	cmd *exec.Cmd

	rows, cols int

	exited    bool
	exitErr   error
	closeOnce sync.Once
}

// Open spawns command with args inside a new PTY sized rows×cols, with
// extraEnv values added to (and overriding) the inherited environment.
// On failure the returned error is the raw spawn error; no Channel is
// registered anywhere by this call.
func Open(command string, args []string, rows, cols int, extraEnv map[string]string) (*Channel, error) {
	cmd := exec.Command(command, args...)
	if len(extraEnv) > 0 {
		env := make([]string, 0, len(os.Environ())+len(extraEnv))
		for _, e := range os.Environ() {
			key := e
			if idx := strings.Index(e, "="); idx >= 0 {
				key = e[:idx]
			}
			if _, override := extraEnv[key]; !override {
				env = append(env, e)
			}
		}
		for k, v := range extraEnv {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("ptychannel: spawn %s: %w", command, err)
	}
	return &Channel{ptm: ptm, cmd: cmd, rows: rows, cols: cols}, nil
}

// ReadAvailable blocks until at least one byte is available or the PTY
// is closed, and returns what's there without waiting to fill buf. It
// is the blocking primitive the ingestion loop wraps; deadline support
// belongs to that caller, since os.File read deadlines on a PTY master
// are unreliable across platforms; a plain blocking Read per iteration
// is the portable approach.
func (c *Channel) ReadAvailable(buf []byte) (int, error) {
	n, err := c.ptm.Read(buf)
	if err != nil {
		c.mu.Lock()
		c.exited = true
		c.exitErr = err
		c.mu.Unlock()
	}
	return n, err
}

// Write writes p to the child's stdin, giving up after timeout if the
// child isn't reading (the kernel PTY buffer is full). Grounded on
// VT.WritePTY's goroutine+timer pattern, which exists because a plain
// blocking write can hang forever under a wedged child.
func (c *Channel) Write(p []byte, timeout time.Duration) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := c.ptm.Write(p)
		ch <- result{n, err}
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-timer.C:
		return 0, ErrWriteTimeout
	}
}

// Resize updates the PTY window size.
func (c *Channel) Resize(rows, cols int) error {
	c.mu.Lock()
	c.rows, c.cols = rows, cols
	c.mu.Unlock()
	return pty.Setsize(c.ptm, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Dimensions returns the current rows, cols.
func (c *Channel) Dimensions() (rows, cols int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows, c.cols
}

// Pid returns the child process's pid, or 0 if it was never started.
func (c *Channel) Pid() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Signal delivers sig to the foreground process group of the PTY, the
// same target a real terminal driver would deliver a typed Ctrl-C or
// Ctrl-\ to. When the foreground process group can't be determined
// (already reaped, or TIOCGPGRP fails), it falls back to signaling the
// child process directly, mirroring KillChild's simpler direct-process
// delivery for that case.
func (c *Channel) Signal(sig syscall.Signal) error {
	pgid, err := unix.IoctlGetInt(int(c.ptm.Fd()), unix.TIOCGPGRP)
	if err == nil {
		if kerr := syscall.Kill(-pgid, sig); kerr == nil {
			return nil
		}
	}
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Signal(sig)
	}
	return errors.New("ptychannel: no process to signal")
}

// Kill sends SIGKILL directly to the child process, bypassing process
// group resolution. Used when the child is hung and unresponsive to
// normal signals, mirroring VT.KillChild.
func (c *Channel) Kill() {
	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill() //nolint:errcheck
	}
}

// Close performs a graceful-then-forceful shutdown: it signals SIGHUP
// to the foreground process group, waits a grace period, and escalates
// to SIGKILL if the child is still alive. The PTY master is always
// closed. Close is idempotent.
func (c *Channel) Close(grace time.Duration) error {
	var err error
	c.closeOnce.Do(func() {
		c.Signal(syscall.SIGHUP) //nolint:errcheck

		done := make(chan struct{})
		go func() {
			if c.cmd != nil {
				c.cmd.Wait() //nolint:errcheck
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(grace):
			c.Kill()
			<-done
		}

		err = c.ptm.Close()
	})
	return err
}

// Exited reports whether the last ReadAvailable call observed EOF or an
// error, and returns the error that signaled exit (io.EOF on a normal
// child exit).
func (c *Channel) Exited() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exited, c.exitErr
}

// ExitStatus returns the child's exit code once it has been reaped, or
// -1 if it hasn't exited or the status couldn't be determined.
func (c *Channel) ExitStatus() int {
	if c.cmd == nil || c.cmd.ProcessState == nil {
		return -1
	}
	return c.cmd.ProcessState.ExitCode()
}
