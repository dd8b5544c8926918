// Package commands implements the vela CLI commands.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root vela command
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "vela",
		Short: "The Vela language toolchain",
		Long: `Vela is a statically-typed, reactive application language.

The toolchain compiles .vela sources to VM bytecode through a staged
pipeline: lexing, parsing, semantic analysis with type inference, and
bytecode generation, driven by a parallel, cache-aware build executor.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(NewBuildCommand())
	root.AddCommand(NewDisasmCommand())
	root.AddCommand(NewVersionCommand(version))

	return root
}
