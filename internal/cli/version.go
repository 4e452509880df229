package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"piloty/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pilotyctl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version.DisplayVersion())
			return nil
		},
	}
}
