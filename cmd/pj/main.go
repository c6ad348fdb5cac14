// pj is the Pumpjack CLI for supervising AI coding agent processes.
package main

import (
	"os"

	"github.com/steveyegge/pumpjack/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
