package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vela-lang/vela/internal/compiler/bytecode"
)

// NewDisasmCommand creates the disasm command
func NewDisasmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <file.velac>",
		Short: "Disassemble a compiled bytecode file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			bc, err := bytecode.Deserialize(data)
			if err != nil {
				return err
			}
			if err := bc.Validate(); err != nil {
				return err
			}

			fmt.Print(bc.Disassemble())
			return nil
		},
	}
}
