package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Magic is the bytecode file magic number ("VELA").
const Magic uint32 = 0x56454C41

// Version is the current bytecode format version triple.
var Version = [3]byte{0, 1, 0}

// ConstantKind identifies the category of a constant pool entry
type ConstantKind byte

const (
	// ConstNull is the null constant.
	ConstNull ConstantKind = iota
	// ConstBool is a boolean constant.
	ConstBool
	// ConstInt is a 64-bit integer constant.
	ConstInt
	// ConstFloat is a 64-bit float constant.
	ConstFloat
	// ConstString is an index into the string table.
	ConstString
	// ConstCode is an index into the code object table.
	ConstCode
)

// Constant is a tagged constant pool entry
type Constant struct {
	Kind  ConstantKind
	Bool  bool
	Int   int64
	Float float64
	Index uint16 // string table or code object index
}

// NullConstant creates a null constant.
func NullConstant() Constant { return Constant{Kind: ConstNull} }

// BoolConstant creates a boolean constant.
func BoolConstant(b bool) Constant { return Constant{Kind: ConstBool, Bool: b} }

// IntConstant creates an integer constant.
func IntConstant(n int64) Constant { return Constant{Kind: ConstInt, Int: n} }

// FloatConstant creates a float constant.
func FloatConstant(f float64) Constant { return Constant{Kind: ConstFloat, Float: f} }

// StringConstant creates a string-table reference constant.
func StringConstant(idx uint16) Constant { return Constant{Kind: ConstString, Index: idx} }

// CodeConstant creates a code-object reference constant.
func CodeConstant(idx uint16) Constant { return Constant{Kind: ConstCode, Index: idx} }

// String formats the constant for disassembly output.
func (c Constant) String() string {
	switch c.Kind {
	case ConstNull:
		return "null"
	case ConstBool:
		return fmt.Sprintf("%t", c.Bool)
	case ConstInt:
		return fmt.Sprintf("%d", c.Int)
	case ConstFloat:
		return fmt.Sprintf("%g", c.Float)
	case ConstString:
		return fmt.Sprintf("str(%d)", c.Index)
	case ConstCode:
		return fmt.Sprintf("code(%d)", c.Index)
	default:
		return fmt.Sprintf("unknown(%d)", byte(c.Kind))
	}
}

// LineEntry maps a bytecode offset to its source line. Entries are sorted
// by offset, non-decreasing.
type LineEntry struct {
	Offset uint32
	Line   uint32
}

// CodeObject is a self-contained bytecode unit: a function or module body
// with its own constants, names, and line table.
type CodeObject struct {
	Name        uint16 // String table index
	Filename    uint16 // String table index
	ArgCount    uint16
	LocalCount  uint16
	StackSize   uint16 // Max stack depth
	Flags       uint16
	Bytecode    []byte
	Constants   []Constant
	Names       []uint16 // String table indices
	LineNumbers []LineEntry
}

// NewCodeObject creates an empty code object with the given name and
// filename string indices.
func NewCodeObject(name, filename uint16) *CodeObject {
	return &CodeObject{Name: name, Filename: filename}
}

// AddConstant appends a constant to the per-object pool and returns its
// index.
func (c *CodeObject) AddConstant(constant Constant) uint16 {
	c.Constants = append(c.Constants, constant)
	return uint16(len(c.Constants) - 1)
}

// AddName appends a string-table index to the names table and returns its
// slot.
func (c *CodeObject) AddName(stringIdx uint16) uint16 {
	c.Names = append(c.Names, stringIdx)
	return uint16(len(c.Names) - 1)
}

// LineForOffset returns the source line for a bytecode offset: the entry
// with the largest offset <= the query. Returns 0 when no entry applies.
func (c *CodeObject) LineForOffset(offset uint32) uint32 {
	idx := sort.Search(len(c.LineNumbers), func(i int) bool {
		return c.LineNumbers[i].Offset > offset
	})
	if idx == 0 {
		return 0
	}
	return c.LineNumbers[idx-1].Line
}

// Equal checks deep equality with another code object.
func (c *CodeObject) Equal(other *CodeObject) bool {
	if c.Name != other.Name || c.Filename != other.Filename ||
		c.ArgCount != other.ArgCount || c.LocalCount != other.LocalCount ||
		c.StackSize != other.StackSize || c.Flags != other.Flags {
		return false
	}
	if !bytes.Equal(c.Bytecode, other.Bytecode) {
		return false
	}
	if len(c.Constants) != len(other.Constants) ||
		len(c.Names) != len(other.Names) ||
		len(c.LineNumbers) != len(other.LineNumbers) {
		return false
	}
	for i, con := range c.Constants {
		if con != other.Constants[i] {
			return false
		}
	}
	for i, n := range c.Names {
		if n != other.Names[i] {
			return false
		}
	}
	for i, ln := range c.LineNumbers {
		if ln != other.LineNumbers[i] {
			return false
		}
	}
	return true
}

// Bytecode is a complete, serializable bytecode file: magic, version,
// timestamp, global constant pool, string table, code objects, and an
// insertion-ordered metadata map.
type Bytecode struct {
	MagicNumber uint32
	Version     [3]byte
	Timestamp   uint64
	Constants   []Constant
	Strings     []string
	CodeObjects []*CodeObject
	Metadata    *orderedmap.OrderedMap[string, []byte]
}

// New creates an empty bytecode file stamped with the current time.
func New() *Bytecode {
	return &Bytecode{
		MagicNumber: Magic,
		Version:     Version,
		Timestamp:   uint64(time.Now().Unix()),
		Metadata:    orderedmap.New[string, []byte](),
	}
}

// AddConstant appends to the global constant pool and returns the index.
func (b *Bytecode) AddConstant(c Constant) uint16 {
	b.Constants = append(b.Constants, c)
	return uint16(len(b.Constants) - 1)
}

// AddString appends to the string table and returns the index. Existing
// entries are reused so interning stays deterministic in insertion order.
func (b *Bytecode) AddString(s string) uint16 {
	for i, existing := range b.Strings {
		if existing == s {
			return uint16(i)
		}
	}
	b.Strings = append(b.Strings, s)
	return uint16(len(b.Strings) - 1)
}

// AddCodeObject appends a code object and returns its index.
func (b *Bytecode) AddCodeObject(code *CodeObject) uint16 {
	b.CodeObjects = append(b.CodeObjects, code)
	return uint16(len(b.CodeObjects) - 1)
}

// SetMetadata stores a metadata entry, preserving insertion order.
func (b *Bytecode) SetMetadata(key string, value []byte) {
	b.Metadata.Set(key, value)
}

// Len returns the total encoded instruction bytes across all code objects.
func (b *Bytecode) Len() int {
	total := 0
	for _, c := range b.CodeObjects {
		total += len(c.Bytecode)
	}
	return total
}

// IsEmpty reports whether the file holds no code objects.
func (b *Bytecode) IsEmpty() bool {
	return len(b.CodeObjects) == 0
}

// Equal checks deep equality with another bytecode file.
func (b *Bytecode) Equal(other *Bytecode) bool {
	if b.MagicNumber != other.MagicNumber || b.Version != other.Version ||
		b.Timestamp != other.Timestamp {
		return false
	}
	if len(b.Constants) != len(other.Constants) ||
		len(b.Strings) != len(other.Strings) ||
		len(b.CodeObjects) != len(other.CodeObjects) ||
		b.Metadata.Len() != other.Metadata.Len() {
		return false
	}
	for i, c := range b.Constants {
		if c != other.Constants[i] {
			return false
		}
	}
	for i, s := range b.Strings {
		if s != other.Strings[i] {
			return false
		}
	}
	for i, c := range b.CodeObjects {
		if !c.Equal(other.CodeObjects[i]) {
			return false
		}
	}
	otherPair := other.Metadata.Oldest()
	for pair := b.Metadata.Oldest(); pair != nil; pair = pair.Next() {
		if otherPair == nil || pair.Key != otherPair.Key || !bytes.Equal(pair.Value, otherPair.Value) {
			return false
		}
		otherPair = otherPair.Next()
	}
	return true
}

// DeserializationError indicates a malformed or foreign bytecode file.
// It is fatal: no partial result is returned.
type DeserializationError struct {
	Message string
}

// Error implements the error interface
func (e *DeserializationError) Error() string {
	return fmt.Sprintf("bytecode deserialization error: %s", e.Message)
}

// Serialize encodes the file into its self-describing binary form. All
// multi-byte fields are little-endian; tables are written in insertion
// order so output is byte-reproducible.
func (b *Bytecode) Serialize() []byte {
	var out []byte
	out = binary.LittleEndian.AppendUint32(out, b.MagicNumber)
	out = append(out, b.Version[0], b.Version[1], b.Version[2])
	out = binary.LittleEndian.AppendUint64(out, b.Timestamp)

	out = appendConstants(out, b.Constants)

	out = binary.LittleEndian.AppendUint32(out, uint32(len(b.Strings)))
	for _, s := range b.Strings {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(s)))
		out = append(out, s...)
	}

	out = binary.LittleEndian.AppendUint32(out, uint32(len(b.CodeObjects)))
	for _, c := range b.CodeObjects {
		out = appendCodeObject(out, c)
	}

	out = binary.LittleEndian.AppendUint32(out, uint32(b.Metadata.Len()))
	for pair := b.Metadata.Oldest(); pair != nil; pair = pair.Next() {
		out = binary.LittleEndian.AppendUint16(out, uint16(len(pair.Key)))
		out = append(out, pair.Key...)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(pair.Value)))
		out = append(out, pair.Value...)
	}

	return out
}

func appendConstants(out []byte, constants []Constant) []byte {
	out = binary.LittleEndian.AppendUint32(out, uint32(len(constants)))
	for _, c := range constants {
		out = append(out, byte(c.Kind))
		switch c.Kind {
		case ConstNull:
		case ConstBool:
			if c.Bool {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		case ConstInt:
			out = binary.LittleEndian.AppendUint64(out, uint64(c.Int))
		case ConstFloat:
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(c.Float))
		case ConstString, ConstCode:
			out = binary.LittleEndian.AppendUint16(out, c.Index)
		}
	}
	return out
}

func appendCodeObject(out []byte, c *CodeObject) []byte {
	out = binary.LittleEndian.AppendUint16(out, c.Name)
	out = binary.LittleEndian.AppendUint16(out, c.Filename)
	out = binary.LittleEndian.AppendUint16(out, c.ArgCount)
	out = binary.LittleEndian.AppendUint16(out, c.LocalCount)
	out = binary.LittleEndian.AppendUint16(out, c.StackSize)
	out = binary.LittleEndian.AppendUint16(out, c.Flags)

	out = binary.LittleEndian.AppendUint32(out, uint32(len(c.Bytecode)))
	out = append(out, c.Bytecode...)

	out = appendConstants(out, c.Constants)

	out = binary.LittleEndian.AppendUint16(out, uint16(len(c.Names)))
	for _, n := range c.Names {
		out = binary.LittleEndian.AppendUint16(out, n)
	}

	out = binary.LittleEndian.AppendUint32(out, uint32(len(c.LineNumbers)))
	for _, ln := range c.LineNumbers {
		out = binary.LittleEndian.AppendUint32(out, ln.Offset)
		out = binary.LittleEndian.AppendUint32(out, ln.Line)
	}
	return out
}

// reader is a bounds-checked cursor over serialized bytes. Every read
// failure is sticky, so deserialization of arbitrary input never panics.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = &DeserializationError{Message: fmt.Sprintf(format, args...)}
	}
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.fail("unexpected end of input at offset %d", r.pos)
		return nil
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *reader) u8() byte {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) constants() []Constant {
	count := r.u32()
	if r.err != nil {
		return nil
	}
	if int(count) > len(r.data)-r.pos {
		r.fail("constant count %d exceeds remaining input", count)
		return nil
	}
	constants := make([]Constant, 0, count)
	for i := uint32(0); i < count && r.err == nil; i++ {
		kind := ConstantKind(r.u8())
		c := Constant{Kind: kind}
		switch kind {
		case ConstNull:
		case ConstBool:
			c.Bool = r.u8() != 0
		case ConstInt:
			c.Int = int64(r.u64())
		case ConstFloat:
			c.Float = math.Float64frombits(r.u64())
		case ConstString, ConstCode:
			c.Index = r.u16()
		default:
			r.fail("unknown constant kind %d", byte(kind))
		}
		constants = append(constants, c)
	}
	return constants
}

func (r *reader) codeObject() *CodeObject {
	c := &CodeObject{
		Name:       r.u16(),
		Filename:   r.u16(),
		ArgCount:   r.u16(),
		LocalCount: r.u16(),
		StackSize:  r.u16(),
		Flags:      r.u16(),
	}

	codeLen := r.u32()
	raw := r.bytes(int(codeLen))
	if raw != nil {
		c.Bytecode = append([]byte(nil), raw...)
	}

	c.Constants = r.constants()

	nameCount := r.u16()
	for i := uint16(0); i < nameCount && r.err == nil; i++ {
		c.Names = append(c.Names, r.u16())
	}

	lineCount := r.u32()
	if int(lineCount) > len(r.data)-r.pos {
		r.fail("line table count %d exceeds remaining input", lineCount)
	}
	for i := uint32(0); i < lineCount && r.err == nil; i++ {
		c.LineNumbers = append(c.LineNumbers, LineEntry{Offset: r.u32(), Line: r.u32()})
	}
	return c
}

// Deserialize decodes a serialized bytecode file. Inputs whose magic does
// not match are rejected with a distinct error; structurally malformed
// inputs return a DeserializationError, never a partial result.
func Deserialize(data []byte) (*Bytecode, error) {
	r := &reader{data: data}

	magic := r.u32()
	if r.err != nil {
		return nil, r.err
	}
	if magic != Magic {
		return nil, &DeserializationError{
			Message: fmt.Sprintf("bad magic: expected 0x%08X, got 0x%08X", Magic, magic),
		}
	}

	b := &Bytecode{
		MagicNumber: magic,
		Metadata:    orderedmap.New[string, []byte](),
	}

	version := r.bytes(3)
	if version != nil {
		copy(b.Version[:], version)
	}
	b.Timestamp = r.u64()

	b.Constants = r.constants()

	stringCount := r.u32()
	if int(stringCount) > len(r.data)-r.pos {
		r.fail("string count %d exceeds remaining input", stringCount)
	}
	for i := uint32(0); i < stringCount && r.err == nil; i++ {
		length := r.u32()
		raw := r.bytes(int(length))
		if raw != nil {
			b.Strings = append(b.Strings, string(raw))
		}
	}

	codeCount := r.u32()
	if int(codeCount) > len(r.data)-r.pos {
		r.fail("code object count %d exceeds remaining input", codeCount)
	}
	for i := uint32(0); i < codeCount && r.err == nil; i++ {
		b.CodeObjects = append(b.CodeObjects, r.codeObject())
	}

	metaCount := r.u32()
	if int(metaCount) > len(r.data)-r.pos {
		r.fail("metadata count %d exceeds remaining input", metaCount)
	}
	for i := uint32(0); i < metaCount && r.err == nil; i++ {
		keyLen := r.u16()
		key := r.bytes(int(keyLen))
		valLen := r.u32()
		val := r.bytes(int(valLen))
		if r.err == nil {
			b.Metadata.Set(string(key), append([]byte(nil), val...))
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	return b, nil
}

// Validate checks the container's structural invariants: every string and
// constant index in range, and line tables monotonically non-decreasing.
func (b *Bytecode) Validate() error {
	checkConstants := func(constants []Constant, where string) error {
		for i, c := range constants {
			switch c.Kind {
			case ConstString:
				if int(c.Index) >= len(b.Strings) {
					return &DeserializationError{
						Message: fmt.Sprintf("%s constant %d: string index %d out of range", where, i, c.Index),
					}
				}
			case ConstCode:
				if int(c.Index) >= len(b.CodeObjects) {
					return &DeserializationError{
						Message: fmt.Sprintf("%s constant %d: code index %d out of range", where, i, c.Index),
					}
				}
			}
		}
		return nil
	}

	if err := checkConstants(b.Constants, "global"); err != nil {
		return err
	}

	for i, c := range b.CodeObjects {
		where := fmt.Sprintf("code object %d", i)
		if int(c.Name) >= len(b.Strings) || int(c.Filename) >= len(b.Strings) {
			return &DeserializationError{
				Message: fmt.Sprintf("%s: name or filename string index out of range", where),
			}
		}
		if err := checkConstants(c.Constants, where); err != nil {
			return err
		}
		for _, n := range c.Names {
			if int(n) >= len(b.Strings) {
				return &DeserializationError{
					Message: fmt.Sprintf("%s: name string index %d out of range", where, n),
				}
			}
		}
		for j := 1; j < len(c.LineNumbers); j++ {
			if c.LineNumbers[j].Offset < c.LineNumbers[j-1].Offset {
				return &DeserializationError{
					Message: fmt.Sprintf("%s: line table not sorted at entry %d", where, j),
				}
			}
		}
		// Every LoadConst must resolve in the object's effective pool: the
		// per-object pool, falling back to the global pool when empty.
		pool := len(c.Constants)
		if pool == 0 {
			pool = len(b.Constants)
		}
		instrs, err := Decode(c.Bytecode)
		if err != nil {
			return err
		}
		for _, instr := range instrs {
			if instr.Op == OpLoadConst && int(instr.Index) >= pool {
				return &DeserializationError{
					Message: fmt.Sprintf("%s: LOAD_CONST index %d out of range", where, instr.Index),
				}
			}
		}
	}
	return nil
}

// Disassemble renders a human-readable listing of the entire file.
func (b *Bytecode) Disassemble() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "magic:   0x%08X\n", b.MagicNumber)
	fmt.Fprintf(&sb, "version: %d.%d.%d\n", b.Version[0], b.Version[1], b.Version[2])
	fmt.Fprintf(&sb, "stamp:   %d\n", b.Timestamp)

	if len(b.Constants) > 0 {
		fmt.Fprintf(&sb, "\nconstants (%d):\n", len(b.Constants))
		for i, c := range b.Constants {
			fmt.Fprintf(&sb, "  [%d] %s\n", i, c)
		}
	}

	if len(b.Strings) > 0 {
		fmt.Fprintf(&sb, "\nstrings (%d):\n", len(b.Strings))
		for i, s := range b.Strings {
			fmt.Fprintf(&sb, "  [%d] %q\n", i, s)
		}
	}

	for i, c := range b.CodeObjects {
		name := ""
		if int(c.Name) < len(b.Strings) {
			name = b.Strings[c.Name]
		}
		fmt.Fprintf(&sb, "\ncode object [%d] %s (args=%d locals=%d stack=%d):\n",
			i, name, c.ArgCount, c.LocalCount, c.StackSize)

		offset := 0
		for offset < len(c.Bytecode) {
			instr, size, err := DecodeOne(c.Bytecode, offset)
			if err != nil {
				fmt.Fprintf(&sb, "  %04d: <%v>\n", offset, err)
				break
			}
			fmt.Fprintf(&sb, "  %04d: %s\n", offset, instr)
			offset += size
		}
	}

	return sb.String()
}
