// Package codegen lowers a checked Vela program into VM bytecode: one code
// object per function plus a module-level object that runs top-level
// initializers and binds globals.
package codegen

import (
	"fmt"

	"github.com/vela-lang/vela/internal/compiler/ast"
	"github.com/vela-lang/vela/internal/compiler/bytecode"
)

// Generator compiles an AST into a bytecode file. Emission is deterministic:
// constants, strings, and names are interned in insertion order.
type Generator struct {
	bc       *bytecode.Bytecode
	filename uint16
}

// NewGenerator creates a generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateProgram compiles a program into a bytecode file. The module-level
// code object is always at index 0.
func (g *Generator) GenerateProgram(program *ast.Program, filename string) (*bytecode.Bytecode, error) {
	g.bc = bytecode.New()
	g.filename = g.bc.AddString(filename)

	moduleName := g.bc.AddString("<module>")
	module := bytecode.NewCodeObject(moduleName, g.filename)
	g.bc.AddCodeObject(module)

	fc := newFuncCompiler(g, module, nil)

	for _, decl := range program.Declarations {
		switch d := decl.(type) {
		case *ast.ImportDeclaration:
			path := ""
			for i, seg := range d.Segments {
				if i > 0 {
					path += "::"
				}
				path += seg
			}
			fc.asm.MarkLine(d.Span.Start.Line)
			fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpImportName, Index: g.bc.AddString(path)})

		case *ast.FunctionDeclaration:
			codeIdx, err := g.compileFunction(d)
			if err != nil {
				return nil, err
			}
			constIdx := module.AddConstant(bytecode.CodeConstant(codeIdx))
			fc.asm.MarkLine(d.Span.Start.Line)
			fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpMakeFunction, Index: constIdx})
			fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpStoreGlobal, Index: fc.nameSlot(d.Name)})

		case *ast.VariableDeclaration:
			fc.asm.MarkLine(d.Span.Start.Line)
			if d.Initializer != nil {
				if err := fc.compileExpression(d.Initializer); err != nil {
					return nil, err
				}
			} else {
				fc.emitLoadConst(bytecode.NullConstant())
			}
			fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpStoreGlobal, Index: fc.nameSlot(d.Name)})
		}
	}

	fc.emitLoadConst(bytecode.NullConstant())
	fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpReturn})

	return g.bc, nil
}

// compileFunction compiles one function declaration into its own code
// object and returns the object's index.
func (g *Generator) compileFunction(fn *ast.FunctionDeclaration) (uint16, error) {
	code := bytecode.NewCodeObject(g.bc.AddString(fn.Name), g.filename)
	code.ArgCount = uint16(len(fn.Parameters))

	fc := newFuncCompiler(g, code, fn.Parameters)
	if fn.Body != nil {
		for _, stmt := range fn.Body.Statements {
			if err := fc.compileStatement(stmt); err != nil {
				return 0, err
			}
		}
	}

	// Implicit return for functions that fall off the end.
	fc.emitLoadConst(bytecode.NullConstant())
	fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpReturn})

	code.LocalCount = uint16(len(fc.locals))
	return g.bc.AddCodeObject(code), nil
}

// funcCompiler holds per-code-object emission state.
type funcCompiler struct {
	gen    *Generator
	code   *bytecode.CodeObject
	asm    *bytecode.Assembler
	locals map[string]uint16
	names  map[string]uint16
}

func newFuncCompiler(g *Generator, code *bytecode.CodeObject, params []*ast.Parameter) *funcCompiler {
	fc := &funcCompiler{
		gen:    g,
		code:   code,
		asm:    bytecode.NewAssembler(code),
		locals: make(map[string]uint16),
		names:  make(map[string]uint16),
	}
	for _, p := range params {
		fc.locals[p.Name] = uint16(len(fc.locals))
	}
	return fc
}

// nameSlot interns a name into the code object's names table.
func (fc *funcCompiler) nameSlot(name string) uint16 {
	if slot, ok := fc.names[name]; ok {
		return slot
	}
	slot := fc.code.AddName(fc.gen.bc.AddString(name))
	fc.names[name] = slot
	return slot
}

// localSlot allocates or reuses a local variable slot.
func (fc *funcCompiler) localSlot(name string) uint16 {
	if slot, ok := fc.locals[name]; ok {
		return slot
	}
	slot := uint16(len(fc.locals))
	fc.locals[name] = slot
	return slot
}

func (fc *funcCompiler) emitLoadConst(c bytecode.Constant) {
	idx := fc.code.AddConstant(c)
	fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpLoadConst, Index: idx})
}

func (fc *funcCompiler) compileStatement(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.VariableDeclaration:
		fc.asm.MarkLine(s.Span.Start.Line)
		if s.Initializer != nil {
			if err := fc.compileExpression(s.Initializer); err != nil {
				return err
			}
		} else {
			fc.emitLoadConst(bytecode.NullConstant())
		}
		fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpStoreLocal, Index: fc.localSlot(s.Name)})
		return nil

	case *ast.ExpressionStatement:
		fc.asm.MarkLine(s.Span.Start.Line)
		if err := fc.compileExpression(s.Expr); err != nil {
			return err
		}
		fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpPop})
		return nil

	case *ast.ReturnStatement:
		fc.asm.MarkLine(s.Span.Start.Line)
		if s.Value != nil {
			if err := fc.compileExpression(s.Value); err != nil {
				return err
			}
		} else {
			fc.emitLoadConst(bytecode.NullConstant())
		}
		fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpReturn})
		return nil

	case *ast.IfStatement:
		return fc.compileIfStatement(s)

	case *ast.BlockStatement:
		for _, inner := range s.Statements {
			if err := fc.compileStatement(inner); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("cannot compile statement %T", stmt)
	}
}

func (fc *funcCompiler) compileIfStatement(s *ast.IfStatement) error {
	fc.asm.MarkLine(s.Span.Start.Line)
	if err := fc.compileExpression(s.Condition); err != nil {
		return err
	}

	elseJump := fc.asm.EmitJump(bytecode.OpJumpIfFalse)
	if err := fc.compileStatement(s.Then); err != nil {
		return err
	}

	if s.Else == nil {
		fc.asm.PatchJump(elseJump, fc.asm.Position())
		return nil
	}

	endJump := fc.asm.EmitJump(bytecode.OpJump)
	fc.asm.PatchJump(elseJump, fc.asm.Position())
	if err := fc.compileStatement(s.Else); err != nil {
		return err
	}
	fc.asm.PatchJump(endJump, fc.asm.Position())
	return nil
}

//nolint:gocyclo,cyclop // Expression lowering dispatch mirrors the AST surface
func (fc *funcCompiler) compileExpression(expr ast.Expression) error {
	switch e := expr.(type) {
	case *ast.LiteralExpr:
		return fc.compileLiteral(e)

	case *ast.IdentifierExpr:
		if slot, ok := fc.locals[e.Name]; ok {
			fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpLoadLocal, Index: slot})
		} else {
			fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpLoadGlobal, Index: fc.nameSlot(e.Name)})
		}
		return nil

	case *ast.BinaryExpr:
		return fc.compileBinary(e)

	case *ast.UnaryExpr:
		if err := fc.compileExpression(e.Operand); err != nil {
			return err
		}
		switch e.Operator {
		case "-":
			fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpNeg})
		case "!":
			fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpNot})
		default:
			return fmt.Errorf("cannot compile unary operator %q", e.Operator)
		}
		return nil

	case *ast.CallExpr:
		if err := fc.compileExpression(e.Callee); err != nil {
			return err
		}
		for _, arg := range e.Arguments {
			if err := fc.compileExpression(arg); err != nil {
				return err
			}
		}
		fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpCall, Count: uint8(len(e.Arguments))})
		return nil

	case *ast.MemberAccessExpr:
		if err := fc.compileExpression(e.Object); err != nil {
			return err
		}
		fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpLoadAttr, Index: fc.nameSlot(e.Member)})
		return nil

	case *ast.IndexAccessExpr:
		if err := fc.compileExpression(e.Object); err != nil {
			return err
		}
		if err := fc.compileExpression(e.Index); err != nil {
			return err
		}
		fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpLoadSubscript})
		return nil

	case *ast.ArrayLiteralExpr:
		for _, elem := range e.Elements {
			if err := fc.compileExpression(elem); err != nil {
				return err
			}
		}
		fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpBuildList, Index: uint16(len(e.Elements))})
		return nil

	case *ast.TupleLiteralExpr:
		for _, elem := range e.Elements {
			if err := fc.compileExpression(elem); err != nil {
				return err
			}
		}
		fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpBuildTuple, Index: uint16(len(e.Elements))})
		return nil

	case *ast.StructLiteralExpr:
		for _, field := range e.Fields {
			fc.emitLoadConst(bytecode.StringConstant(fc.gen.bc.AddString(field.Name)))
			if err := fc.compileExpression(field.Value); err != nil {
				return err
			}
		}
		fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpBuildDict, Index: uint16(len(e.Fields))})
		return nil

	case *ast.LambdaExpr:
		return fc.compileLambda(e)

	case *ast.IfExpr:
		if err := fc.compileExpression(e.Condition); err != nil {
			return err
		}
		elseJump := fc.asm.EmitJump(bytecode.OpJumpIfFalse)
		if err := fc.compileExpression(e.Then); err != nil {
			return err
		}
		endJump := fc.asm.EmitJump(bytecode.OpJump)
		fc.asm.PatchJump(elseJump, fc.asm.Position())
		if err := fc.compileExpression(e.Else); err != nil {
			return err
		}
		fc.asm.PatchJump(endJump, fc.asm.Position())
		return nil

	case *ast.MatchExpr:
		return fc.compileMatch(e)

	case *ast.StringInterpolationExpr:
		return fc.compileInterpolation(e)

	case *ast.AwaitExpr:
		// The runtime strips the future; lowering passes the inner value.
		return fc.compileExpression(e.Expr)

	case *ast.DispatchExpr:
		if err := fc.compileExpression(e.Action); err != nil {
			return err
		}
		fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpPop})
		fc.emitLoadConst(bytecode.NullConstant())
		return nil

	case *ast.ParenExpr:
		return fc.compileExpression(e.Expr)

	default:
		return fmt.Errorf("cannot compile expression %T", expr)
	}
}

func (fc *funcCompiler) compileLiteral(lit *ast.LiteralExpr) error {
	switch lit.Kind {
	case ast.LiteralNumber:
		n, _ := lit.Value.(int64)
		fc.emitLoadConst(bytecode.IntConstant(n))
	case ast.LiteralFloat:
		f, _ := lit.Value.(float64)
		fc.emitLoadConst(bytecode.FloatConstant(f))
	case ast.LiteralString:
		s, _ := lit.Value.(string)
		fc.emitLoadConst(bytecode.StringConstant(fc.gen.bc.AddString(s)))
	case ast.LiteralBool:
		b, _ := lit.Value.(bool)
		fc.emitLoadConst(bytecode.BoolConstant(b))
	case ast.LiteralNone:
		fc.emitLoadConst(bytecode.NullConstant())
	default:
		return fmt.Errorf("cannot compile literal kind %q", lit.Kind)
	}
	return nil
}

var binaryOps = map[string]bytecode.Opcode{
	"+":  bytecode.OpAdd,
	"-":  bytecode.OpSub,
	"*":  bytecode.OpMul,
	"/":  bytecode.OpDiv,
	"%":  bytecode.OpMod,
	"==": bytecode.OpEq,
	"!=": bytecode.OpNe,
	"<":  bytecode.OpLt,
	"<=": bytecode.OpLe,
	">":  bytecode.OpGt,
	">=": bytecode.OpGe,
	"&&": bytecode.OpAnd,
	"||": bytecode.OpOr,
}

func (fc *funcCompiler) compileBinary(e *ast.BinaryExpr) error {
	if e.Operator == "??" {
		return fc.compileCoalesce(e)
	}

	if err := fc.compileExpression(e.Left); err != nil {
		return err
	}
	if err := fc.compileExpression(e.Right); err != nil {
		return err
	}
	op, ok := binaryOps[e.Operator]
	if !ok {
		return fmt.Errorf("cannot compile binary operator %q", e.Operator)
	}
	fc.asm.Emit(bytecode.Instruction{Op: op})
	return nil
}

// compileCoalesce lowers left ?? right: keep left unless it is null.
func (fc *funcCompiler) compileCoalesce(e *ast.BinaryExpr) error {
	if err := fc.compileExpression(e.Left); err != nil {
		return err
	}
	fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpDup})
	fc.emitLoadConst(bytecode.NullConstant())
	fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpEq})
	useLeft := fc.asm.EmitJump(bytecode.OpJumpIfFalse)
	fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpPop})
	if err := fc.compileExpression(e.Right); err != nil {
		return err
	}
	fc.asm.PatchJump(useLeft, fc.asm.Position())
	return nil
}

func (fc *funcCompiler) compileLambda(e *ast.LambdaExpr) error {
	code := bytecode.NewCodeObject(fc.gen.bc.AddString("<lambda>"), fc.gen.filename)
	code.ArgCount = uint16(len(e.Parameters))

	inner := newFuncCompiler(fc.gen, code, e.Parameters)
	switch {
	case e.Body != nil:
		if err := inner.compileExpression(e.Body); err != nil {
			return err
		}
		inner.asm.Emit(bytecode.Instruction{Op: bytecode.OpReturn})
	case e.Block != nil:
		for _, stmt := range e.Block.Statements {
			if err := inner.compileStatement(stmt); err != nil {
				return err
			}
		}
		inner.emitLoadConst(bytecode.NullConstant())
		inner.asm.Emit(bytecode.Instruction{Op: bytecode.OpReturn})
	}
	code.LocalCount = uint16(len(inner.locals))

	codeIdx := fc.gen.bc.AddCodeObject(code)
	constIdx := fc.code.AddConstant(bytecode.CodeConstant(codeIdx))
	fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpMakeFunction, Index: constIdx})
	return nil
}

// compileMatch lowers a match to a chain of equality tests. Identifier
// patterns bind the scrutinee and always match.
func (fc *funcCompiler) compileMatch(e *ast.MatchExpr) error {
	if err := fc.compileExpression(e.Value); err != nil {
		return err
	}
	scrutinee := fc.localSlot(fmt.Sprintf("<match%d>", fc.asm.Position()))
	fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpStoreLocal, Index: scrutinee})

	var endJumps []int
	for _, arm := range e.Arms {
		switch pat := arm.Pattern.(type) {
		case *ast.IdentifierExpr:
			binding := fc.localSlot(pat.Name)
			fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpLoadLocal, Index: scrutinee})
			fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpStoreLocal, Index: binding})
			if err := fc.compileExpression(arm.Body); err != nil {
				return err
			}
			endJumps = append(endJumps, fc.asm.EmitJump(bytecode.OpJump))
		default:
			fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpLoadLocal, Index: scrutinee})
			if err := fc.compileExpression(arm.Pattern); err != nil {
				return err
			}
			fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpEq})
			nextArm := fc.asm.EmitJump(bytecode.OpJumpIfFalse)
			if err := fc.compileExpression(arm.Body); err != nil {
				return err
			}
			endJumps = append(endJumps, fc.asm.EmitJump(bytecode.OpJump))
			fc.asm.PatchJump(nextArm, fc.asm.Position())
		}
	}

	// No arm matched.
	fc.emitLoadConst(bytecode.NullConstant())
	for _, jump := range endJumps {
		fc.asm.PatchJump(jump, fc.asm.Position())
	}
	return nil
}

// compileInterpolation lowers "${a} b ${c}" into string concatenation.
func (fc *funcCompiler) compileInterpolation(e *ast.StringInterpolationExpr) error {
	if len(e.Parts) == 0 {
		fc.emitLoadConst(bytecode.StringConstant(fc.gen.bc.AddString("")))
		return nil
	}
	for i, part := range e.Parts {
		if part.Expr != nil {
			if err := fc.compileExpression(part.Expr); err != nil {
				return err
			}
		} else {
			fc.emitLoadConst(bytecode.StringConstant(fc.gen.bc.AddString(part.Text)))
		}
		if i > 0 {
			fc.asm.Emit(bytecode.Instruction{Op: bytecode.OpAdd})
		}
	}
	return nil
}
