// Command ingestfilter runs ingest-node pipeline definitions against an
// event stream.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ingestfilter/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
