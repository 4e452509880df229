package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newScreenCmd() *cobra.Command {
	var run string
	var scrollback int
	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Spawn a session, optionally run a line, dump the rendered screen (and scrollback)",
	}
	f := addSpawnFlags(cmd)
	cmd.Flags().StringVar(&run, "run", "", "a command line to run before dumping the screen")
	cmd.Flags().IntVar(&scrollback, "scrollback", 0, "also print up to N scrollback lines (0 disables)")
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

		if run != "" {
			if _, err := s.Run(context.Background(), run, f.timeout, false); err != nil {
				return err
			}
		}

		if scrollback > 0 {
			fmt.Println("--- scrollback ---")
			for _, line := range s.GetScrollback(scrollback) {
				fmt.Println(line)
			}
		}

		resp := s.GetScreen()
		fmt.Printf("--- screen (status=%s) ---\n", resp.Status)
		for _, line := range resp.Screen.Lines {
			fmt.Println(line)
		}
		return nil
	}
	return cmd
}
