package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"piloty/internal/config"
	"piloty/internal/transcript"
)

func newTerminateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminate <id>",
		Short: "Kill a session's child process by pid, read from its on-disk metadata",
		Long: "Since pilotyctl keeps no session registry alive between invocations, " +
			"terminate resolves the pid recorded in session.json and sends it SIGKILL " +
			"directly, rather than going through a live Session.Terminate.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			meta, err := transcript.ReadMeta(config.SessionsDir(), id)
			if err != nil {
				return fmt.Errorf("no session %q on disk: %w", id, err)
			}
			if meta.Ended != nil {
				fmt.Printf("session %s already ended\n", id)
				return nil
			}
			if meta.Pid == 0 {
				return fmt.Errorf("session %q has no recorded pid", id)
			}
			proc, err := os.FindProcess(meta.Pid)
			if err != nil {
				return err
			}
			if err := proc.Signal(syscall.SIGKILL); err != nil {
				return fmt.Errorf("signal pid %d: %w", meta.Pid, err)
			}
			fmt.Printf("sent SIGKILL to session %s (pid %d)\n", id, meta.Pid)
			return nil
		},
	}
}
