// The main package for the shoplab executable.
package main

import (
	"github.com/roshanis/shopagent/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
