package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <line>",
		Short: "Spawn a shell, run a line, print what comes back, then terminate",
		Args:  cobra.ExactArgs(1),
	}
	f := addSpawnFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		r := sharedRegistry()
		id, err := spawnEphemeral(r, f)
		if err != nil {
			return err
		}
		defer r.Terminate(id) //nolint:errcheck

		s, err := r.Get(id)
		if err != nil {
			return err
		}
		resp, err := s.Run(context.Background(), args[0], f.timeout, false)
		if err != nil {
			return err
		}
		fmt.Printf("status=%s reason=%q\n", resp.Status, resp.StateReason)
		fmt.Print(resp.Output)
		return nil
	}
	return cmd
}
