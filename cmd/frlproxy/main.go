// Command frlproxy is the operator-facing CLI for the FRL/NUL proxy:
// serve, configure, forward, export, import, clear.
package main

import (
	"fmt"
	"os"

	"frlproxy/core/cmd/frlproxy/command"
)

func main() {
	root := command.NewRoot()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(command.ExitCodeFor(err))
	}
}
