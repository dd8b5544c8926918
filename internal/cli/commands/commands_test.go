package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vela-lang/vela/internal/compiler/bytecode"
)

func TestRootCommandWiring(t *testing.T) {
	root := NewRootCommand("test")
	names := make(map[string]bool)
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"build", "disasm", "version"} {
		if !names[want] {
			t.Errorf("root command must register %q", want)
		}
	}
}

func TestDisasmCommand(t *testing.T) {
	bc := bytecode.New()
	name := bc.AddString("main")
	file := bc.AddString("main.vela")
	code := bytecode.NewCodeObject(name, file)
	asm := bytecode.NewAssembler(code)
	asm.Emit(bytecode.Instruction{Op: bytecode.OpReturn})
	bc.AddCodeObject(code)

	path := filepath.Join(t.TempDir(), "main.velac")
	if err := os.WriteFile(path, bc.Serialize(), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := NewDisasmCommand()
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err != nil {
		t.Errorf("disasm: %v", err)
	}
}

func TestDisasmRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.velac")
	if err := os.WriteFile(path, []byte("not bytecode"), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := NewDisasmCommand()
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err == nil {
		t.Error("foreign input must be rejected")
	}
}
