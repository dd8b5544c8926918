package bytecode

import (
	"bytes"
	"testing"
)

// TestEmissionBytes covers the canonical encoding scenario: the sequence
// LoadConst(0), LoadConst(1), Add, Return encodes to exactly these bytes.
func TestEmissionBytes(t *testing.T) {
	code := NewCodeObject(0, 0)
	asm := NewAssembler(code)
	asm.Emit(Instruction{Op: OpLoadConst, Index: 0})
	asm.Emit(Instruction{Op: OpLoadConst, Index: 1})
	asm.Emit(Instruction{Op: OpAdd})
	asm.Emit(Instruction{Op: OpReturn})

	want := []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x10, 0x51}
	if !bytes.Equal(code.Bytecode, want) {
		t.Errorf("encoded % 02x, want % 02x", code.Bytecode, want)
	}

	// Disassembling yields the original instructions in order.
	instrs, err := Decode(code.Bytecode)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	wantInstrs := []Instruction{
		{Op: OpLoadConst, Index: 0},
		{Op: OpLoadConst, Index: 1},
		{Op: OpAdd},
		{Op: OpReturn},
	}
	if len(instrs) != len(wantInstrs) {
		t.Fatalf("decoded %d instructions, want %d", len(instrs), len(wantInstrs))
	}
	for i, instr := range instrs {
		if instr != wantInstrs[i] {
			t.Errorf("instruction %d: got %s, want %s", i, instr, wantInstrs[i])
		}
	}
}

// TestEncodeDecodeRoundTrip walks one instruction of every operand family.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	instrs := []Instruction{
		{Op: OpLoadConst, Index: 513},
		{Op: OpLoadLocal, Index: 2},
		{Op: OpStoreGlobal, Index: 65535},
		{Op: OpPop},
		{Op: OpDup},
		{Op: OpMul},
		{Op: OpGe},
		{Op: OpNot},
		{Op: OpJump, Offset: 1000},
		{Op: OpJumpIfFalse, Offset: -4},
		{Op: OpForIter, Offset: 12},
		{Op: OpSetupExcept, Offset: 99},
		{Op: OpCall, Count: 3},
		{Op: OpReturn},
		{Op: OpMakeFunction, Index: 7},
		{Op: OpMakeClosure, Index: 7, Count: 2},
		{Op: OpBuildList, Index: 10},
		{Op: OpBuildDict, Index: 4},
		{Op: OpLoadSubscript},
		{Op: OpGetIter},
		{Op: OpPopExcept},
		{Op: OpRaise},
		{Op: OpImportName, Index: 1},
		{Op: OpImportFrom, Index: 2},
		{Op: OpNop},
		{Op: OpBreakpoint},
	}

	var encoded []byte
	for _, instr := range instrs {
		encoded = instr.Encode(encoded)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(instrs) {
		t.Fatalf("decoded %d instructions, want %d", len(decoded), len(instrs))
	}
	for i, instr := range decoded {
		if instr != instrs[i] {
			t.Errorf("instruction %d: got %+v, want %+v", i, instr, instrs[i])
		}
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	_, err := Decode([]byte{0xEE})
	if err == nil {
		t.Fatal("unknown opcode must fail decoding")
	}
	if _, ok := err.(*DeserializationError); !ok {
		t.Errorf("expected *DeserializationError, got %T", err)
	}
}

func TestDecodeTruncatedOperand(t *testing.T) {
	_, err := Decode([]byte{byte(OpLoadConst), 0x01})
	if err == nil {
		t.Fatal("truncated operand must fail decoding")
	}
}

// TestPatchJump verifies forward-jump patching: exactly four bytes one past
// the opcode are rewritten with the absolute target.
func TestPatchJump(t *testing.T) {
	code := NewCodeObject(0, 0)
	asm := NewAssembler(code)

	jumpPos := asm.EmitJump(OpJumpIfFalse)
	asm.Emit(Instruction{Op: OpLoadConst, Index: 0})
	asm.Emit(Instruction{Op: OpPop})
	target := asm.Position()
	asm.Emit(Instruction{Op: OpReturn})
	asm.PatchJump(jumpPos, target)

	instrs, err := Decode(code.Bytecode)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if instrs[0].Op != OpJumpIfFalse || instrs[0].Offset != int32(target) {
		t.Errorf("patched jump = %s, want target %d", instrs[0], target)
	}
}

func TestAssemblerLineTable(t *testing.T) {
	code := NewCodeObject(0, 0)
	asm := NewAssembler(code)

	asm.MarkLine(1)
	asm.Emit(Instruction{Op: OpLoadConst, Index: 0})
	asm.Emit(Instruction{Op: OpPop})
	asm.MarkLine(3)
	asm.Emit(Instruction{Op: OpReturn})

	if len(code.LineNumbers) != 2 {
		t.Fatalf("expected 2 line entries, got %d", len(code.LineNumbers))
	}
	for i := 1; i < len(code.LineNumbers); i++ {
		if code.LineNumbers[i].Offset < code.LineNumbers[i-1].Offset {
			t.Error("line table must be non-decreasing in offset")
		}
	}
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		instr Instruction
		want  string
	}{
		{Instruction{Op: OpAdd}, "ADD"},
		{Instruction{Op: OpLoadConst, Index: 0}, "LOAD_CONST 0"},
		{Instruction{Op: OpJump, Offset: 100}, "JUMP 100"},
		{Instruction{Op: OpCall, Count: 3}, "CALL 3"},
		{Instruction{Op: OpMakeClosure, Index: 4, Count: 1}, "MAKE_CLOSURE 4 1"},
	}
	for _, tt := range tests {
		if got := tt.instr.String(); got != tt.want {
			t.Errorf("String = %q, want %q", got, tt.want)
		}
	}
}
