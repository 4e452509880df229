package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"piloty/internal/config"
	"piloty/internal/transcript"
)

var lsOutput = termenv.NewOutput(os.Stdout)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List every session recorded on disk, live or terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := config.SessionsDir()
			entries, err := os.ReadDir(root)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("No sessions.")
					return nil
				}
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No sessions.")
				return nil
			}

			for _, de := range entries {
				if !de.IsDir() {
					continue
				}
				meta, err := transcript.ReadMeta(root, de.Name())
				if err != nil {
					faint := lsOutput.String(fmt.Sprintf("(unreadable: %v)", err)).Faint()
					fmt.Printf("  %s %s\n", de.Name(), faint)
					continue
				}
				printSessionLine(meta)
			}
			return nil
		},
	}
}

func printSessionLine(meta transcript.Metadata) {
	symbol, status := lsOutput.String("●").Foreground(termenv.ANSIGreen), "running"
	if meta.Ended != nil {
		symbol, status = lsOutput.String("●").Foreground(termenv.ANSIRed), "ended"
	}
	age := time.Since(meta.Created).Round(time.Second)
	tag := ""
	if meta.Tag != "" {
		tag = " " + lsOutput.String(fmt.Sprintf("(%s)", meta.Tag)).Foreground(termenv.ANSICyan).String()
	}
	fmt.Printf("  %s %s%s — %s, pid %d, up %s\n", symbol, meta.ID, tag, status, meta.Pid, age)
}
