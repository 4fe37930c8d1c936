// Command rpmsgsock-demo exercises the rpmsgsock transport end-to-end over
// an in-process simulated bus: no real RPMsg hardware is required. It is a
// fixed client/server run, not an interactive admin tool.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/rpmsgsock/cmd/rpmsgsock-demo/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
