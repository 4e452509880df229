package cli

import (
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"piloty/internal/config"
)

// spawnFlags are the flags every subcommand needs to spawn the
// ephemeral session it demonstrates an operation against.
type spawnFlags struct {
	command string
	rows    int
	cols    int
	cwd     string
	timeout time.Duration
}

func addSpawnFlags(cmd *cobra.Command) *spawnFlags {
	f := &spawnFlags{}
	defRows, defCols := defaultDimensions()
	cmd.Flags().StringVar(&f.command, "command", "", "command to spawn (defaults to an interactive shell)")
	cmd.Flags().IntVar(&f.rows, "rows", defRows, "terminal rows")
	cmd.Flags().IntVar(&f.cols, "cols", defCols, "terminal columns")
	cmd.Flags().StringVar(&f.cwd, "cwd", "", "working directory")
	cmd.Flags().DurationVar(&f.timeout, "timeout", config.QuiescenceWindow()*3, "how long to wait for output to settle")
	return f
}

// defaultDimensions reports the size to spawn sessions at: the real
// terminal size when stdout is an actual tty, falling back to the
// configured defaults when it's redirected or unavailable (pipes, CI).
func defaultDimensions() (rows, cols int) {
	fd := int(os.Stdout.Fd())
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return config.DefaultRows, config.DefaultCols
	}
	w, h, err := term.GetSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return config.DefaultRows, config.DefaultCols
	}
	return h, w
}
