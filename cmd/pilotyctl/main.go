// Command pilotyctl is a thin developer CLI that drives a Registry
// in-process for local smoke-testing: spawn a session, push input at
// it, watch what comes back. It is not a server and speaks no wire
// protocol — every subcommand opens its own Registry, does one thing,
// and exits.
package main

import (
	"fmt"
	"os"

	"piloty/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
