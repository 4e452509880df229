// Package registry owns the map of live and terminated session ids to
// their Session, so a client can address sessions by a short stable
// name instead of holding a reference. It resolves its on-disk root the
// way the rest of the ambient stack does (internal/config.SessionsDir),
// resolving a stable transcript directory from a short id.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"piloty/internal/activitylog"
	"piloty/internal/config"
	"piloty/internal/ptyerr"
	"piloty/internal/session"
	"piloty/internal/stateclassifier"
	"piloty/internal/transcript"
)

// entry is either a live Session or, once terminated and evicted from
// memory, a sentinel recording where its transcript still lives on
// disk.
type entry struct {
	live           *session.Session
	terminated     bool
	transcriptRoot string
}

// Registry is the process-wide id -> Session directory. The map lock
// only ever protects the map itself; it is never held across a Session
// operation, so a slow or blocked session can never stall lookups for
// every other session.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*entry
	root  string

	activityLog *activitylog.Logger
	sampler     stateclassifier.Sampler
}

// Options configures a Registry.
type Options struct {
	Root        string // defaults to config.SessionsDir()
	ActivityLog *activitylog.Logger
	Sampler     stateclassifier.Sampler
}

// New creates an empty Registry.
func New(opts Options) *Registry {
	root := opts.Root
	if root == "" {
		root = config.SessionsDir()
	}
	return &Registry{
		byID:        make(map[string]*entry),
		root:        root,
		activityLog: opts.ActivityLog,
		sampler:     opts.Sampler,
	}
}

// SpawnOptions configures a newly created session, layered on top of
// the Registry's own defaults.
type SpawnOptions struct {
	ID      string // empty generates a uuid
	Command string
	Args    []string
	Rows    int
	Cols    int
	Cwd     string
	Env     map[string]string
	Tag     string

	ScrollbackLines  int
	QuiescenceWindow time.Duration
	PromptRegex      *regexp.Regexp
}

// Spawn creates and registers a new Session, generating an id if one
// was not supplied.
func (r *Registry) Spawn(opts SpawnOptions) (*session.Session, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.RLock()
	_, exists := r.byID[id]
	r.mu.RUnlock()
	if exists {
		return nil, ptyerr.New(ptyerr.InvalidArgument, fmt.Sprintf("session id %q already exists", id))
	}

	rows, cols := opts.Rows, opts.Cols
	if rows <= 0 {
		rows = config.DefaultRows
	}
	if cols <= 0 {
		cols = config.DefaultCols
	}
	scrollback := opts.ScrollbackLines
	if scrollback <= 0 {
		scrollback = config.DefaultScrollbackLines
	}
	window := opts.QuiescenceWindow
	if window <= 0 {
		window = config.QuiescenceWindow()
	}

	s, err := session.New(session.Options{
		ID:               id,
		Rows:             rows,
		Cols:             cols,
		Cwd:              opts.Cwd,
		Env:              opts.Env,
		Tag:              opts.Tag,
		Command:          opts.Command,
		Args:             opts.Args,
		ScrollbackLines:  scrollback,
		QuiescenceWindow: window,
		TranscriptRoot:   r.root,
		ActivityLog:      r.activityLog,
		Sampler:          r.sampler,
		PromptRegex:      opts.PromptRegex,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.byID[id] = &entry{live: s}
	r.mu.Unlock()

	return s, nil
}

// Get resolves id to a live Session. An id the Registry has never seen
// returns no-such-session. An id that was terminated through
// Registry.Terminate returns terminated instead — its id stays
// reserved rather than falling back to no-such-session, so a caller
// can't mistake "terminated" for "never existed" and spawn a fresh
// session under the same id. A session whose child exited on its own
// stays registered as live until Terminate is called; Get still returns
// it, and its classified status is eof.
func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ptyerr.New(ptyerr.NoSuchSession, fmt.Sprintf("no session with id %q", id))
	}
	if e.live == nil {
		return nil, ptyerr.New(ptyerr.Terminated, fmt.Sprintf("session %q was terminated; its transcript is still on disk", id))
	}
	return e.live, nil
}

// GetOrSpawn resolves id if already registered — live or terminated —
// or creates a new session under that id using opts if and only if the
// Registry has never seen it. This is the "create on first
// input-generating tool call" semantics an unknown id gets from run,
// send_input, send_control, and send_password: once an id has been
// used, even a terminated session keeps it reserved, and GetOrSpawn
// returns the terminated error rather than silently resurrecting it as
// a freshly spawned child.
func (r *Registry) GetOrSpawn(id string, opts SpawnOptions) (*session.Session, error) {
	if id != "" {
		r.mu.RLock()
		_, exists := r.byID[id]
		r.mu.RUnlock()
		if exists {
			return r.Get(id)
		}
	}
	opts.ID = id
	return r.Spawn(opts)
}

// Terminate ends a session and evicts its in-memory Session, keeping
// only a terminated sentinel that records where its transcript lives on
// disk so Transcript/Metadata queries keep working by id.
func (r *Registry) Terminate(id string) error {
	r.mu.Lock()
	e, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return ptyerr.New(ptyerr.NoSuchSession, fmt.Sprintf("no session with id %q", id))
	}
	if e.live == nil {
		return nil // already terminated and evicted
	}

	err := e.live.Terminate()

	r.mu.Lock()
	e.terminated = true
	e.transcriptRoot = r.root
	e.live = nil
	r.mu.Unlock()

	return err
}

// List returns the ids of every session the Registry has ever created,
// live or terminated.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}

// Metadata resolves id's metadata whether the session is still live or
// has been terminated and evicted, reading session.json from disk in
// the latter case.
func (r *Registry) Metadata(id string) (transcript.Metadata, error) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return transcript.Metadata{}, ptyerr.New(ptyerr.NoSuchSession, fmt.Sprintf("no session with id %q", id))
	}
	if e.live != nil {
		return e.live.GetMetadata().Metadata, nil
	}
	return transcript.ReadMeta(e.transcriptRoot, id)
}

// TerminateAll terminates every still-live session, used for orderly
// process shutdown.
func (r *Registry) TerminateAll(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byID))
	for id, e := range r.byID {
		if e.live != nil {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.Terminate(id) //nolint:errcheck
	}
}
