// Package ptyerr defines the error taxonomy shared across piloty's core
// packages. Callers distinguish cases with errors.Is against the
// sentinel Code values.
package ptyerr

import "fmt"

// Code identifies which class of error occurred.
type Code string

const (
	// NoSuchSession is returned by a view-only operation on an id the
	// registry has never seen.
	NoSuchSession Code = "no-such-session"
	// Terminated is returned when a lookup or a signal targets a session
	// that has been explicitly terminated. Session operations that return
	// a Response report that case as status=terminated instead.
	Terminated Code = "terminated"
	// SpawnError is returned when fork/exec fails; the session id is
	// never registered.
	SpawnError Code = "spawn-error"
	// IOError is returned on a PTY write/read failure after spawn.
	IOError Code = "io-error"
	// InvalidArgument is returned for malformed input: an unknown control
	// mnemonic, an unknown signal name, or dimensions below 1.
	InvalidArgument Code = "invalid-argument"
)

// Error wraps a Code with a human-readable message and optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Code, so that
// errors.Is(err, ptyerr.New(ptyerr.Terminated, "")) style checks work
// against a bare Code sentinel created with just the code set.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds an *Error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error carrying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeSentinel returns a minimal *Error usable only as an errors.Is
// target, e.g. errors.Is(err, ptyerr.CodeSentinel(ptyerr.Terminated)).
func CodeSentinel(code Code) *Error {
	return &Error{Code: code}
}
