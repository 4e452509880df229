package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Spawn a session, send raw input with no newline appended, print the result",
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
		resp, err := s.SendInput(context.Background(), args[0], f.timeout, false)
		if err != nil {
			return err
		}
		fmt.Printf("status=%s reason=%q\n", resp.Status, resp.StateReason)
		fmt.Print(resp.Output)
		return nil
	}
	return cmd
}
