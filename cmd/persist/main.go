// Command persist compiles role schemas and runs persist scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/persist/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
