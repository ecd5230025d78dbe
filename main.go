// The main package for the progression executable.
package main

import (
	"github.com/JakeFAU/progression/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
