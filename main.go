// ./main.go
package main

import (
	"github.com/jeffcmilberger/openclaw-browser-guard/cmd"
)

// main is the entry point for the browser-guard binary. All command-line
// parsing, configuration and execution happens in the cmd package.
func main() {
	cmd.Execute()
}
