// Command revgraph inspects and edits revision graph history and serves
// the graph to synchronization clients.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/revgraph/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
