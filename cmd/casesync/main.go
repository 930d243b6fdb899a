// Command casesync reconciles NetSuite support cases with Azure DevOps
// work items.
package main

import (
	"os"

	"github.com/roach88/casesync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		cli.PrintError(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
