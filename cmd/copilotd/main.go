// Command copilotd runs the glucose automation co-pilot as a headless daemon.
package main

import (
	"fmt"
	"os"

	"github.com/mrcode/glucocopilot/cmd/copilotd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
