// Command fitcoach is the command-line entry point of the coaching agent.
package main

import (
	"fmt"
	"os"

	"github.com/harun/fitcoach/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
