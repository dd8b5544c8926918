package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Opcode is a one-byte instruction opcode. Opcodes are grouped by family:
// stack 0x00-0x0F, arithmetic 0x10-0x1F, comparison 0x20-0x2F, logical
// 0x30-0x3F, control flow 0x40-0x4F, functions 0x50-0x5F, collections
// 0x60-0x6F, subscript 0x70-0x7F, iteration 0x80-0x8F, exceptions
// 0x90-0x9F, imports 0xA0-0xAF, debug 0xF0-0xFF.
type Opcode byte

const (
	// Stack operations (0x00 - 0x0F)
	OpLoadConst   Opcode = 0x00 // Push constant from pool
	OpLoadLocal   Opcode = 0x01 // Push local variable
	OpStoreLocal  Opcode = 0x02 // Pop to local variable
	OpLoadGlobal  Opcode = 0x03 // Push global variable
	OpStoreGlobal Opcode = 0x04 // Pop to global variable
	OpLoadAttr    Opcode = 0x05 // Load attribute (obj.attr)
	OpStoreAttr   Opcode = 0x06 // Store attribute
	OpPop         Opcode = 0x07 // Pop top of stack
	OpDup         Opcode = 0x08 // Duplicate top of stack

	// Arithmetic (0x10 - 0x1F)
	OpAdd Opcode = 0x10
	OpSub Opcode = 0x11
	OpMul Opcode = 0x12
	OpDiv Opcode = 0x13
	OpMod Opcode = 0x14
	OpPow Opcode = 0x15
	OpNeg Opcode = 0x16

	// Comparison (0x20 - 0x2F)
	OpEq Opcode = 0x20
	OpNe Opcode = 0x21
	OpLt Opcode = 0x22
	OpLe Opcode = 0x23
	OpGt Opcode = 0x24
	OpGe Opcode = 0x25

	// Logical (0x30 - 0x3F)
	OpAnd Opcode = 0x30
	OpOr  Opcode = 0x31
	OpNot Opcode = 0x32

	// Control flow (0x40 - 0x4F)
	OpJump        Opcode = 0x40 // Unconditional jump
	OpJumpIfFalse Opcode = 0x41 // Jump if top is false
	OpJumpIfTrue  Opcode = 0x42 // Jump if top is true

	// Functions (0x50 - 0x5F)
	OpCall         Opcode = 0x50 // Call function with N args
	OpReturn       Opcode = 0x51 // Return from function
	OpMakeFunction Opcode = 0x52 // Create function object
	OpMakeClosure  Opcode = 0x53 // Create closure

	// Collections (0x60 - 0x6F)
	OpBuildList  Opcode = 0x60 // Build list from N items
	OpBuildDict  Opcode = 0x61 // Build dict from N*2 items
	OpBuildSet   Opcode = 0x62 // Build set from N items
	OpBuildTuple Opcode = 0x63 // Build tuple from N items

	// Subscript (0x70 - 0x7F)
	OpLoadSubscript   Opcode = 0x70
	OpStoreSubscript  Opcode = 0x71
	OpDeleteSubscript Opcode = 0x72

	// Iteration (0x80 - 0x8F)
	OpGetIter Opcode = 0x80
	OpForIter Opcode = 0x81 // Iterate (jump if exhausted)

	// Exception handling (0x90 - 0x9F)
	OpSetupExcept Opcode = 0x90
	OpPopExcept   Opcode = 0x91
	OpRaise       Opcode = 0x92

	// Imports (0xA0 - 0xAF)
	OpImportName Opcode = 0xA0
	OpImportFrom Opcode = 0xA1

	// Debug (0xF0 - 0xFF)
	OpNop        Opcode = 0xF0
	OpBreakpoint Opcode = 0xFF
)

// opcodeNames maps opcodes to their mnemonics
var opcodeNames = map[Opcode]string{
	OpLoadConst:       "LOAD_CONST",
	OpLoadLocal:       "LOAD_LOCAL",
	OpStoreLocal:      "STORE_LOCAL",
	OpLoadGlobal:      "LOAD_GLOBAL",
	OpStoreGlobal:     "STORE_GLOBAL",
	OpLoadAttr:        "LOAD_ATTR",
	OpStoreAttr:       "STORE_ATTR",
	OpPop:             "POP",
	OpDup:             "DUP",
	OpAdd:             "ADD",
	OpSub:             "SUB",
	OpMul:             "MUL",
	OpDiv:             "DIV",
	OpMod:             "MOD",
	OpPow:             "POW",
	OpNeg:             "NEG",
	OpEq:              "EQ",
	OpNe:              "NE",
	OpLt:              "LT",
	OpLe:              "LE",
	OpGt:              "GT",
	OpGe:              "GE",
	OpAnd:             "AND",
	OpOr:              "OR",
	OpNot:             "NOT",
	OpJump:            "JUMP",
	OpJumpIfFalse:     "JUMP_IF_FALSE",
	OpJumpIfTrue:      "JUMP_IF_TRUE",
	OpCall:            "CALL",
	OpReturn:          "RETURN",
	OpMakeFunction:    "MAKE_FUNCTION",
	OpMakeClosure:     "MAKE_CLOSURE",
	OpBuildList:       "BUILD_LIST",
	OpBuildDict:       "BUILD_DICT",
	OpBuildSet:        "BUILD_SET",
	OpBuildTuple:      "BUILD_TUPLE",
	OpLoadSubscript:   "LOAD_SUBSCRIPT",
	OpStoreSubscript:  "STORE_SUBSCRIPT",
	OpDeleteSubscript: "DELETE_SUBSCRIPT",
	OpGetIter:         "GET_ITER",
	OpForIter:         "FOR_ITER",
	OpSetupExcept:     "SETUP_EXCEPT",
	OpPopExcept:       "POP_EXCEPT",
	OpRaise:           "RAISE",
	OpImportName:      "IMPORT_NAME",
	OpImportFrom:      "IMPORT_FROM",
	OpNop:             "NOP",
	OpBreakpoint:      "BREAKPOINT",
}

// String returns the mnemonic of an opcode
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))
}

// operandKind classifies the operand layout of an opcode family
type operandKind int

const (
	operandNone  operandKind = iota // bare opcode
	operandU16                      // u16 index or count
	operandU8                       // u8 count
	operandI32                      // i32 jump offset
	operandU16U8                    // u16 index + u8 count (MakeClosure)
)

// operandKindOf returns the operand layout for an opcode, or false for an
// unknown opcode.
func operandKindOf(op Opcode) (operandKind, bool) {
	switch op {
	case OpLoadConst, OpLoadLocal, OpStoreLocal, OpLoadGlobal, OpStoreGlobal,
		OpLoadAttr, OpStoreAttr, OpMakeFunction,
		OpBuildList, OpBuildDict, OpBuildSet, OpBuildTuple,
		OpImportName, OpImportFrom:
		return operandU16, true
	case OpPop, OpDup,
		OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow, OpNeg,
		OpEq, OpNe, OpLt, OpLe, OpGt, OpGe,
		OpAnd, OpOr, OpNot,
		OpReturn,
		OpLoadSubscript, OpStoreSubscript, OpDeleteSubscript,
		OpGetIter,
		OpPopExcept, OpRaise,
		OpNop, OpBreakpoint:
		return operandNone, true
	case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpForIter, OpSetupExcept:
		return operandI32, true
	case OpCall:
		return operandU8, true
	case OpMakeClosure:
		return operandU16U8, true
	default:
		return operandNone, false
	}
}

// Instruction is a decoded bytecode instruction. The operand fields used
// depend on the opcode family: Index for u16 operands, Count for u8
// operands, Offset for i32 jump operands. MakeClosure uses Index and Count.
type Instruction struct {
	Op     Opcode
	Index  uint16
	Count  uint8
	Offset int32
}

// String returns the mnemonic form of the instruction
func (i Instruction) String() string {
	kind, _ := operandKindOf(i.Op)
	switch kind {
	case operandU16:
		return fmt.Sprintf("%s %d", i.Op, i.Index)
	case operandU8:
		return fmt.Sprintf("%s %d", i.Op, i.Count)
	case operandI32:
		return fmt.Sprintf("%s %d", i.Op, i.Offset)
	case operandU16U8:
		return fmt.Sprintf("%s %d %d", i.Op, i.Index, i.Count)
	default:
		return i.Op.String()
	}
}

// Size returns the encoded byte length of the instruction.
func (i Instruction) Size() int {
	kind, _ := operandKindOf(i.Op)
	switch kind {
	case operandU16:
		return 3
	case operandU8:
		return 2
	case operandI32:
		return 5
	case operandU16U8:
		return 4
	default:
		return 1
	}
}

// Encode appends the instruction's binary encoding: the opcode byte
// followed by little-endian operands.
func (i Instruction) Encode(code []byte) []byte {
	code = append(code, byte(i.Op))
	kind, _ := operandKindOf(i.Op)
	switch kind {
	case operandU16:
		code = binary.LittleEndian.AppendUint16(code, i.Index)
	case operandU8:
		code = append(code, i.Count)
	case operandI32:
		code = binary.LittleEndian.AppendUint32(code, uint32(i.Offset))
	case operandU16U8:
		code = binary.LittleEndian.AppendUint16(code, i.Index)
		code = append(code, i.Count)
	}
	return code
}

// Decode decodes an instruction stream back into instructions, in order.
// Truncated operands and unknown opcodes produce a deserialization error.
func Decode(code []byte) ([]Instruction, error) {
	var out []Instruction
	offset := 0
	for offset < len(code) {
		instr, size, err := DecodeOne(code, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, instr)
		offset += size
	}
	return out, nil
}

// DecodeOne decodes the instruction at the given offset and returns it with
// its encoded size.
func DecodeOne(code []byte, offset int) (Instruction, int, error) {
	op := Opcode(code[offset])
	kind, known := operandKindOf(op)
	if !known {
		return Instruction{}, 0, &DeserializationError{
			Message: fmt.Sprintf("unknown opcode 0x%02X at offset %d", byte(op), offset),
		}
	}

	instr := Instruction{Op: op}
	size := instr.Size()
	if offset+size > len(code) {
		return Instruction{}, 0, &DeserializationError{
			Message: fmt.Sprintf("truncated operand for %s at offset %d", op, offset),
		}
	}

	switch kind {
	case operandU16:
		instr.Index = binary.LittleEndian.Uint16(code[offset+1:])
	case operandU8:
		instr.Count = code[offset+1]
	case operandI32:
		instr.Offset = int32(binary.LittleEndian.Uint32(code[offset+1:]))
	case operandU16U8:
		instr.Index = binary.LittleEndian.Uint16(code[offset+1:])
		instr.Count = code[offset+3]
	}
	return instr, size, nil
}

// Assembler emits instructions into a code object and supports forward-jump
// patching.
type Assembler struct {
	code *CodeObject
	line uint32 // current source line for the line table
}

// NewAssembler creates an assembler targeting the given code object.
func NewAssembler(code *CodeObject) *Assembler {
	return &Assembler{code: code}
}

// Position returns the current bytecode offset.
func (a *Assembler) Position() int {
	return len(a.code.Bytecode)
}

// Emit appends an instruction and returns the offset it was written at.
func (a *Assembler) Emit(instr Instruction) int {
	pos := len(a.code.Bytecode)
	a.code.Bytecode = instr.Encode(a.code.Bytecode)
	a.recordLine(uint32(pos))
	return pos
}

// EmitJump emits a jump-family instruction with a placeholder target and
// returns its offset for later patching.
func (a *Assembler) EmitJump(op Opcode) int {
	return a.Emit(Instruction{Op: op, Offset: -1})
}

// PatchJump writes the absolute target offset into the jump instruction at
// position. The patch writes exactly four bytes one past the opcode.
func (a *Assembler) PatchJump(position, target int) {
	binary.LittleEndian.PutUint32(a.code.Bytecode[position+1:], uint32(int32(target)))
}

// MarkLine sets the source line attributed to subsequently emitted
// instructions.
func (a *Assembler) MarkLine(line int) {
	a.line = uint32(line)
}

// recordLine appends a line-table entry when the line changed. Entries stay
// sorted because bytecode offsets only grow.
func (a *Assembler) recordLine(offset uint32) {
	if a.line == 0 {
		return
	}
	n := len(a.code.LineNumbers)
	if n > 0 && a.code.LineNumbers[n-1].Line == a.line {
		return
	}
	a.code.LineNumbers = append(a.code.LineNumbers, LineEntry{Offset: offset, Line: a.line})
}
