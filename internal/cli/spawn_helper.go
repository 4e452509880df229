package cli

import (
	"fmt"

	"github.com/google/shlex"

	"piloty/internal/registry"
)

// splitCommand turns a single --command string into a command plus
// argv, shell-lexing it the same way a command-running tool splits a
// user-supplied argument string before exec'ing it.
func splitCommand(s string) (string, []string, error) {
	if s == "" {
		return "", nil, nil
	}
	argv, err := shlex.Split(s)
	if err != nil {
		return "", nil, fmt.Errorf("invalid --command: %w", err)
	}
	if len(argv) == 0 {
		return "", nil, nil
	}
	return argv[0], argv[1:], nil
}

// spawnEphemeral spawns a session in r per the flags the caller
// collected, scoped to this single CLI invocation.
func spawnEphemeral(r *registry.Registry, f *spawnFlags) (string, error) {
	command, args, err := splitCommand(f.command)
	if err != nil {
		return "", err
	}
	s, err := r.Spawn(registry.SpawnOptions{
		Command: command,
		Args:    args,
		Rows:    f.rows,
		Cols:    f.cols,
		Cwd:     f.cwd,
	})
	if err != nil {
		return "", err
	}
	return s.ID(), nil
}
