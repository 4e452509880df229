package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCtrlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctrl <key>",
		Short: "Spawn a session and send a control-key mnemonic (c, d, z, l, [), print the result",
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
		resp, err := s.SendControl(context.Background(), args[0], f.timeout, false)
		if err != nil {
			return err
		}
		fmt.Printf("status=%s reason=%q\n", resp.Status, resp.StateReason)
		fmt.Print(resp.Output)
		return nil
	}
	return cmd
}
