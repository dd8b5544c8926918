// Command vela is the Vela language toolchain CLI.
package main

import (
	"fmt"
	"os"

	"github.com/vela-lang/vela/internal/cli/commands"
)

// version is set at build time via -ldflags.
var version = "0.1.0-dev"

func main() {
	root := commands.NewRootCommand(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
