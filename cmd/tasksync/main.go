// Command tasksync is the developer tool for the task-sync core.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/tasksync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report their own ExitErrors; anything else is a flag or
		// argument error from cobra.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
