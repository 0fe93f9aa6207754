// Command fusionsync syncs Fusion design structure exports into a parts
// database and answers bill of materials queries.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/fusionsync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
