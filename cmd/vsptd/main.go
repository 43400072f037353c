// Command vsptd evaluates ЕСЛИ … ТО …; rules against SQLite agent stores.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/vsptd/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
