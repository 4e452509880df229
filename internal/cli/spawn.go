package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSpawnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Spawn a session, print its id and initial screen, then terminate it",
		Long: "spawn exercises Registry.Spawn in isolation. Because pilotyctl holds no " +
			"daemon process, the session cannot be addressed by a later pilotyctl " +
			"invocation — use run/send/expect/screen with --command to spawn and act " +
			"on a session within a single invocation.",
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
		resp := s.GetScreen()
		fmt.Printf("session %s (status=%s)\n", id, resp.Status)
		for _, line := range resp.Screen.Lines {
			fmt.Println(line)
		}
		return nil
	}
	return cmd
}
