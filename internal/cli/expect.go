package cli

import (
	"context"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"
)

func newExpectCmd() *cobra.Command {
	var run string
	cmd := &cobra.Command{
		Use:   "expect <pattern>",
		Short: "Spawn a session, optionally run a line, then wait for pattern to appear on screen",
		Args:  cobra.ExactArgs(1),
	}
	f := addSpawnFlags(cmd)
	cmd.Flags().StringVar(&run, "run", "", "a command line to run before waiting for pattern")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		pattern, err := regexp.Compile(args[0])
		if err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}

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

		ctx := context.Background()
		if run != "" {
			if _, err := s.Run(ctx, run, f.timeout, false); err != nil {
				return err
			}
		}

		resp, err := s.Expect(ctx, pattern, f.timeout)
		if err != nil {
			return err
		}
		fmt.Printf("status=%s reason=%q\n", resp.Status, resp.StateReason)
		for _, line := range resp.Screen.Lines {
			fmt.Println(line)
		}
		return nil
	}
	return cmd
}
