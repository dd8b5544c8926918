package semantic

import (
	"fmt"

	"github.com/vela-lang/vela/internal/compiler/ast"
	"github.com/vela-lang/vela/internal/compiler/types"
)

// Analyzer performs symbol resolution and type checking over a parsed
// program in two phases: declare all top-level symbols (supporting forward
// references), then type-check declaration bodies.
//
// Analyze returns the first error encountered; Diagnostics exposes the full
// accumulated list for richer tooling. No error is silently dropped.
type Analyzer struct {
	symbols   *SymbolTable
	errors    []*SemanticError
	aliases   map[string]Type // transparent type aliases
	exprTypes map[ast.Expression]Type
}

// NewAnalyzer creates a semantic analyzer with an empty global scope.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		symbols:   NewSymbolTable(),
		errors:    make([]*SemanticError, 0),
		aliases:   make(map[string]Type),
		exprTypes: make(map[ast.Expression]Type),
	}
}

// Symbols exposes the populated symbol table for downstream consumers.
// The table must be treated as read-only after analysis.
func (a *Analyzer) Symbols() *SymbolTable {
	return a.symbols
}

// Diagnostics returns every accumulated error, in discovery order.
func (a *Analyzer) Diagnostics() []*SemanticError {
	return a.errors
}

// TypeOf returns the resolved type recorded for an expression node.
func (a *Analyzer) TypeOf(expr ast.Expression) (Type, bool) {
	t, ok := a.exprTypes[expr]
	return t, ok
}

// Analyze runs both phases over the program and returns the first error,
// or nil on success.
func (a *Analyzer) Analyze(program *ast.Program) error {
	a.declareSymbols(program)
	a.typeCheckProgram(program)

	if len(a.errors) > 0 {
		return a.errors[0]
	}
	return nil
}

// report records an error for Diagnostics and the Analyze result.
func (a *Analyzer) report(err *SemanticError) {
	a.errors = append(a.errors, err)
}

// Phase 1: declare top-level symbols. Function bodies are not entered, and
// type names are bound before any signature is resolved, so declarations
// may reference each other in any order.
func (a *Analyzer) declareSymbols(program *ast.Program) {
	// Bind struct and enum names first so signatures can forward-reference
	// them. Fields and variants are filled in the second sweep.
	placeholders := make(map[ast.Declaration]Symbol)
	for _, decl := range program.Declarations {
		switch d := decl.(type) {
		case *ast.StructDeclaration:
			sym := &StructSymbol{Name: d.Name, Loc: ast.LocationFromRange(d.Span)}
			if err := a.symbols.Declare(d.Name, sym); err != nil {
				a.report(err)
				continue
			}
			placeholders[decl] = sym
		case *ast.EnumDeclaration:
			sym := &EnumSymbol{Name: d.Name, Loc: ast.LocationFromRange(d.Span)}
			if err := a.symbols.Declare(d.Name, sym); err != nil {
				a.report(err)
				continue
			}
			placeholders[decl] = sym
		}
	}

	for _, decl := range program.Declarations {
		switch d := decl.(type) {
		case *ast.StructDeclaration:
			if sym, ok := placeholders[decl].(*StructSymbol); ok {
				a.fillStruct(sym, d)
			}
		case *ast.EnumDeclaration:
			if sym, ok := placeholders[decl].(*EnumSymbol); ok {
				a.fillEnum(sym, d)
			}
		case *ast.TypeAliasDeclaration:
			a.declareTypeAlias(d)
		}
	}

	for _, decl := range program.Declarations {
		switch d := decl.(type) {
		case *ast.FunctionDeclaration:
			a.declareFunction(d)
		case *ast.VariableDeclaration:
			a.declareVariable(d)
		}
	}
}

func (a *Analyzer) declareFunction(fn *ast.FunctionDeclaration) {
	params := make([]ParamSig, 0, len(fn.Parameters))
	for _, p := range fn.Parameters {
		if p.Type == nil {
			a.report(NewTypeInferenceFailed(
				"parameter type annotation required",
				ast.LocationFromRange(p.Span)))
			return
		}
		ty, err := a.resolveAnnotation(p.Type)
		if err != nil {
			a.report(err)
			return
		}
		params = append(params, ParamSig{Name: p.Name, Type: ty})
	}

	returnType := Type(&PrimitiveType{Name: typeVoid})
	if fn.ReturnType != nil {
		ty, err := a.resolveAnnotation(fn.ReturnType)
		if err != nil {
			a.report(err)
			return
		}
		returnType = ty
	}

	sym := &FunctionSymbol{
		Name:       fn.Name,
		Params:     params,
		ReturnType: returnType,
		Loc:        ast.LocationFromRange(fn.Span),
	}
	if err := a.symbols.Declare(fn.Name, sym); err != nil {
		a.report(err)
	}
}

// fillStruct resolves a struct's field types into its declared symbol.
func (a *Analyzer) fillStruct(sym *StructSymbol, st *ast.StructDeclaration) {
	fields := make([]FieldSig, 0, len(st.Fields))
	for _, f := range st.Fields {
		ty, err := a.resolveAnnotation(f.Type)
		if err != nil {
			a.report(err)
			return
		}
		fields = append(fields, FieldSig{Name: f.Name, Type: ty})
	}
	sym.Fields = fields
}

// fillEnum resolves an enum's variant payload types into its declared
// symbol.
func (a *Analyzer) fillEnum(sym *EnumSymbol, en *ast.EnumDeclaration) {
	variants := make([]VariantSig, 0, len(en.Variants))
	for _, v := range en.Variants {
		payloads := make([]Type, 0, len(v.Payloads))
		for _, p := range v.Payloads {
			ty, err := a.resolveAnnotation(p)
			if err != nil {
				a.report(err)
				return
			}
			payloads = append(payloads, ty)
		}
		variants = append(variants, VariantSig{Name: v.Name, Payloads: payloads})
	}
	sym.Variants = variants
}

// declareTypeAlias records a transparent alias: uses of the alias name
// resolve directly to the target type.
func (a *Analyzer) declareTypeAlias(alias *ast.TypeAliasDeclaration) {
	target, err := a.resolveAnnotation(alias.Target)
	if err != nil {
		a.report(err)
		return
	}
	a.aliases[alias.Name] = target
}

func (a *Analyzer) declareVariable(v *ast.VariableDeclaration) {
	var ty Type
	switch {
	case v.Type != nil:
		resolved, err := a.resolveAnnotation(v.Type)
		if err != nil {
			a.report(err)
			return
		}
		ty = resolved
	case v.Initializer != nil:
		inferred, err := a.checkExpression(v.Initializer)
		if err != nil {
			a.report(err)
			return
		}
		ty = inferred
	default:
		a.report(NewTypeInferenceFailed(
			"cannot infer type without initializer",
			ast.LocationFromRange(v.Span)))
		return
	}

	sym := &VariableSymbol{
		Name:    v.Name,
		Type:    ty,
		Mutable: v.IsState,
		Loc:     ast.LocationFromRange(v.Span),
	}
	if err := a.symbols.Declare(v.Name, sym); err != nil {
		a.report(err)
	}
}

// resolveAnnotation converts a syntactic type annotation into a semantic
// type against the symbols known so far.
func (a *Analyzer) resolveAnnotation(ann ast.TypeAnnotation) (Type, *SemanticError) {
	switch t := ann.(type) {
	case *ast.NamedType:
		switch t.Name {
		case typeNumber, typeFloat, typeString, typeBool, typeVoid:
			return &PrimitiveType{Name: t.Name}, nil
		}
		if target, ok := a.aliases[t.Name]; ok {
			return target, nil
		}
		if sym, ok := a.symbols.Lookup(t.Name); ok {
			switch sym.(type) {
			case *StructSymbol:
				return &StructType{Name: t.Name}, nil
			case *EnumSymbol:
				return &EnumType{Name: t.Name}, nil
			default:
				return nil, NewInvalidType(t.Name, ast.LocationFromRange(t.Span))
			}
		}
		return nil, NewUndefinedType(t.Name, ast.LocationFromRange(t.Span))

	case *ast.ArrayType:
		elem, err := a.resolveAnnotation(t.Element)
		if err != nil {
			return nil, err
		}
		return &ArrayType{Element: elem}, nil

	case *ast.TupleType:
		elems := make([]Type, 0, len(t.Elements))
		for _, e := range t.Elements {
			ty, err := a.resolveAnnotation(e)
			if err != nil {
				return nil, err
			}
			elems = append(elems, ty)
		}
		return &TupleType{Elements: elems}, nil

	case *ast.FunctionType:
		params := make([]Type, 0, len(t.Parameters))
		for _, p := range t.Parameters {
			ty, err := a.resolveAnnotation(p)
			if err != nil {
				return nil, err
			}
			params = append(params, ty)
		}
		ret, err := a.resolveAnnotation(t.Return)
		if err != nil {
			return nil, err
		}
		return &FunctionType{Params: params, Return: ret}, nil

	case *ast.GenericType:
		args := make([]Type, 0, len(t.Arguments))
		for _, arg := range t.Arguments {
			ty, err := a.resolveAnnotation(arg)
			if err != nil {
				return nil, err
			}
			args = append(args, ty)
		}
		return &GenericType{Name: t.Name, Args: args}, nil

	case *ast.OptionalType:
		inner, err := a.resolveAnnotation(t.Inner)
		if err != nil {
			return nil, err
		}
		return &GenericType{Name: "Option", Args: []Type{inner}}, nil

	default:
		return nil, NewUndefinedType(fmt.Sprintf("%T", ann), ast.SourceLocation{})
	}
}

// Phase 2: type-check declaration bodies.
func (a *Analyzer) typeCheckProgram(program *ast.Program) {
	for _, decl := range program.Declarations {
		switch d := decl.(type) {
		case *ast.FunctionDeclaration:
			a.typeCheckFunction(d)
		case *ast.VariableDeclaration:
			a.typeCheckVariable(d)
		}
	}
}

func (a *Analyzer) typeCheckFunction(fn *ast.FunctionDeclaration) {
	funcScope := a.symbols.CreateScope(a.symbols.Current(), ScopeFunction)
	prev := a.symbols.Current()
	a.symbols.Enter(funcScope)
	defer a.symbols.Enter(prev)

	for _, param := range fn.Parameters {
		if param.Type == nil {
			a.report(NewTypeInferenceFailed(
				"parameter type annotation required",
				ast.LocationFromRange(param.Span)))
			return
		}
		ty, err := a.resolveAnnotation(param.Type)
		if err != nil {
			a.report(err)
			return
		}
		sym := &VariableSymbol{
			Name: param.Name,
			Type: ty,
			Loc:  ast.LocationFromRange(param.Span),
		}
		if derr := a.symbols.Declare(param.Name, sym); derr != nil {
			a.report(derr)
			return
		}
	}

	if fn.Body != nil {
		a.typeCheckBlock(fn.Body)
	}
}

func (a *Analyzer) typeCheckVariable(v *ast.VariableDeclaration) {
	if v.Type == nil || v.Initializer == nil {
		return
	}
	declared, rerr := a.resolveAnnotation(v.Type)
	if rerr != nil {
		// Already reported during declaration.
		return
	}
	actual, err := a.checkExpression(v.Initializer)
	if err != nil {
		a.report(err)
		return
	}
	if !typesCompatible(declared, actual) {
		a.report(NewTypeMismatch(declared, actual, ast.LocationFromRange(v.Span)))
	}
}

func (a *Analyzer) typeCheckBlock(block *ast.BlockStatement) {
	blockScope := a.symbols.CreateScope(a.symbols.Current(), ScopeBlock)
	prev := a.symbols.Current()
	a.symbols.Enter(blockScope)
	defer a.symbols.Enter(prev)

	for _, stmt := range block.Statements {
		a.typeCheckStatement(stmt)
	}
}

func (a *Analyzer) typeCheckStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.VariableDeclaration:
		a.declareLocalVariable(s)
	case *ast.ExpressionStatement:
		if _, err := a.checkExpression(s.Expr); err != nil {
			a.report(err)
		}
	case *ast.ReturnStatement:
		if s.Value != nil {
			if _, err := a.checkExpression(s.Value); err != nil {
				a.report(err)
			}
		}
	case *ast.BlockStatement:
		a.typeCheckBlock(s)
	case *ast.IfStatement:
		if _, err := a.checkExpression(s.Condition); err != nil {
			a.report(err)
		}
		a.typeCheckBlock(s.Then)
		if s.Else != nil {
			a.typeCheckStatement(s.Else)
		}
	}
}

// declareLocalVariable declares a variable inside a function or block scope.
// The declaration uses its annotation when present, otherwise the type is
// inferred from the initializer.
func (a *Analyzer) declareLocalVariable(v *ast.VariableDeclaration) {
	var ty Type
	switch {
	case v.Type != nil:
		resolved, err := a.resolveAnnotation(v.Type)
		if err != nil {
			a.report(err)
			return
		}
		ty = resolved
		if v.Initializer != nil {
			actual, cerr := a.checkExpression(v.Initializer)
			if cerr != nil {
				a.report(cerr)
				return
			}
			if !typesCompatible(ty, actual) {
				a.report(NewTypeMismatch(ty, actual, ast.LocationFromRange(v.Span)))
				return
			}
		}
	case v.Initializer != nil:
		inferred, err := a.checkExpression(v.Initializer)
		if err != nil {
			a.report(err)
			return
		}
		ty = inferred
	default:
		a.report(NewTypeInferenceFailed(
			"cannot infer type without initializer",
			ast.LocationFromRange(v.Span)))
		return
	}

	sym := &VariableSymbol{
		Name:    v.Name,
		Type:    ty,
		Mutable: v.IsState,
		Loc:     ast.LocationFromRange(v.Span),
	}
	if err := a.symbols.Declare(v.Name, sym); err != nil {
		a.report(err)
	}
}

// checkExpression type-checks an expression and records its resolved type
// in the side table.
func (a *Analyzer) checkExpression(expr ast.Expression) (Type, *SemanticError) {
	ty, err := a.checkExpressionInner(expr)
	if err == nil {
		a.exprTypes[expr] = ty
	}
	return ty, err
}

func (a *Analyzer) checkExpressionInner(expr ast.Expression) (Type, *SemanticError) {
	switch e := expr.(type) {
	case *ast.LiteralExpr:
		return a.checkLiteral(e), nil
	case *ast.IdentifierExpr:
		return a.checkIdentifier(e)
	case *ast.BinaryExpr:
		return a.checkBinary(e)
	case *ast.UnaryExpr:
		return a.checkUnary(e)
	case *ast.DispatchExpr:
		return a.checkDispatch(e)
	case *ast.ParenExpr:
		return a.checkExpression(e.Expr)
	default:
		// Expression forms outside the checker's native set are handed to
		// the inference engine.
		return a.delegateToInference(expr)
	}
}

func (a *Analyzer) checkLiteral(lit *ast.LiteralExpr) Type {
	switch lit.Kind {
	case ast.LiteralNumber:
		return &PrimitiveType{Name: typeNumber}
	case ast.LiteralFloat:
		return &PrimitiveType{Name: typeFloat}
	case ast.LiteralString:
		return &PrimitiveType{Name: typeString}
	case ast.LiteralBool:
		return &PrimitiveType{Name: typeBool}
	case ast.LiteralNone:
		return &PrimitiveType{Name: typeVoid}
	default:
		return Unknown
	}
}

func (a *Analyzer) checkIdentifier(ident *ast.IdentifierExpr) (Type, *SemanticError) {
	sym, ok := a.symbols.Lookup(ident.Name)
	if !ok {
		return nil, NewUndefinedSymbol(ident.Name, ast.LocationFromRange(ident.Span))
	}
	switch s := sym.(type) {
	case *VariableSymbol:
		return s.Type, nil
	case *FunctionSymbol:
		return s.Type(), nil
	default:
		return nil, NewInvalidSymbolUsage(ident.Name, ast.LocationFromRange(ident.Span))
	}
}

func (a *Analyzer) checkBinary(bin *ast.BinaryExpr) (Type, *SemanticError) {
	leftTy, err := a.checkExpression(bin.Left)
	if err != nil {
		return nil, err
	}
	rightTy, err := a.checkExpression(bin.Right)
	if err != nil {
		return nil, err
	}

	loc := ast.LocationFromRange(bin.Span)
	switch bin.Operator {
	case "+", "-", "*", "/":
		if !isNumericType(leftTy) || !isNumericType(rightTy) || !typesCompatible(leftTy, rightTy) {
			return nil, NewInvalidBinaryOperation(bin.Operator, leftTy, rightTy, loc)
		}
		// Result takes the left operand's type.
		return leftTy, nil

	case "==", "!=", "<", ">", "<=", ">=":
		if !typesCompatible(leftTy, rightTy) {
			return nil, NewInvalidBinaryOperation(bin.Operator, leftTy, rightTy, loc)
		}
		return &PrimitiveType{Name: typeBool}, nil

	case "%", "&&", "||", "??":
		// Modulo, logical, and coalescing forms go through inference.
		return a.delegateToInference(bin)

	default:
		return nil, NewUnknownOperator(bin.Operator, loc)
	}
}

func (a *Analyzer) checkUnary(un *ast.UnaryExpr) (Type, *SemanticError) {
	operandTy, err := a.checkExpression(un.Operand)
	if err != nil {
		return nil, err
	}

	loc := ast.LocationFromRange(un.Span)
	switch un.Operator {
	case "-":
		if !isNumericType(operandTy) {
			return nil, NewInvalidUnaryOperation(un.Operator, operandTy, loc)
		}
		return operandTy, nil
	case "!":
		if !isBooleanType(operandTy) {
			return nil, NewInvalidUnaryOperation(un.Operator, operandTy, loc)
		}
		return operandTy, nil
	default:
		return nil, NewUnknownOperator(un.Operator, loc)
	}
}

// checkDispatch validates a dispatch expression. The action operand is
// checked; validation that it implements the dispatchable capability is a
// later pass. Dispatch yields void.
func (a *Analyzer) checkDispatch(disp *ast.DispatchExpr) (Type, *SemanticError) {
	if _, err := a.checkExpression(disp.Action); err != nil {
		return nil, err
	}
	return &PrimitiveType{Name: typeVoid}, nil
}

// delegateToInference hands an expression to the HM engine with a context
// built from the currently visible symbols, then maps the reconstructed
// type back into the analyzer's lattice.
func (a *Analyzer) delegateToInference(expr ast.Expression) (Type, *SemanticError) {
	inf := types.NewInference(types.NewContext())
	ctx := inf.Context()
	for name, sym := range a.symbols.VisibleSymbols() {
		switch s := sym.(type) {
		case *VariableSymbol:
			ctx.Add(name, types.Mono(a.toLattice(s.Type, inf)))
		case *FunctionSymbol:
			ctx.Add(name, types.Mono(a.toLattice(s.Type(), inf)))
		}
	}

	ty, err := inf.InferExpression(expr)
	if err != nil {
		return nil, NewTypeInferenceFailed(err.Error(), ast.LocationFromRange(expr.Range()))
	}
	return a.fromLattice(inf.Apply(ty)), nil
}

// toLattice converts a semantic type into the inference lattice.
func (a *Analyzer) toLattice(t Type, inf *types.Inference) types.Type {
	switch ty := t.(type) {
	case *PrimitiveType:
		switch ty.Name {
		case typeNumber:
			return types.Int
		case typeFloat:
			return types.Float
		case typeString:
			return types.String
		case typeBool:
			return types.Bool
		case typeVoid:
			return types.Unit
		}
		return inf.FreshVar()
	case *StructType:
		if sym, ok := a.symbols.Lookup(ty.Name); ok {
			if st, ok := sym.(*StructSymbol); ok {
				fields := make([]types.RecordField, 0, len(st.Fields))
				for _, f := range st.Fields {
					fields = append(fields, types.RecordField{
						Name: f.Name,
						Type: a.toLattice(f.Type, inf),
					})
				}
				return &types.Record{Fields: fields}
			}
		}
		return &types.Generic{Name: ty.Name}
	case *EnumType:
		return &types.Generic{Name: ty.Name}
	case *FunctionType:
		params := make([]types.Type, len(ty.Params))
		for i, p := range ty.Params {
			params[i] = a.toLattice(p, inf)
		}
		return &types.Function{Params: params, Return: a.toLattice(ty.Return, inf)}
	case *ArrayType:
		return &types.Array{Element: a.toLattice(ty.Element, inf)}
	case *TupleType:
		elems := make([]types.Type, len(ty.Elements))
		for i, e := range ty.Elements {
			elems[i] = a.toLattice(e, inf)
		}
		return &types.Tuple{Elements: elems}
	case *GenericType:
		args := make([]types.Type, len(ty.Args))
		for i, arg := range ty.Args {
			args[i] = a.toLattice(arg, inf)
		}
		if ty.Name == "Option" && len(args) == 1 {
			return &types.Option{Element: args[0]}
		}
		return &types.Generic{Name: ty.Name, Args: args}
	default:
		return inf.FreshVar()
	}
}

// fromLattice maps a reconstructed lattice type back into the analyzer's
// type system.
func (a *Analyzer) fromLattice(t types.Type) Type {
	switch ty := t.(type) {
	case *types.Basic:
		switch ty.Kind {
		case types.KindInt:
			return &PrimitiveType{Name: typeNumber}
		case types.KindFloat:
			return &PrimitiveType{Name: typeFloat}
		case types.KindString:
			return &PrimitiveType{Name: typeString}
		case types.KindBool:
			return &PrimitiveType{Name: typeBool}
		case types.KindUnit:
			return &PrimitiveType{Name: typeVoid}
		}
		return Unknown
	case *types.Function:
		params := make([]Type, len(ty.Params))
		for i, p := range ty.Params {
			params[i] = a.fromLattice(p)
		}
		return &FunctionType{Params: params, Return: a.fromLattice(ty.Return)}
	case *types.Array:
		return &ArrayType{Element: a.fromLattice(ty.Element)}
	case *types.Tuple:
		elems := make([]Type, len(ty.Elements))
		for i, e := range ty.Elements {
			elems[i] = a.fromLattice(e)
		}
		return &TupleType{Elements: elems}
	case *types.Option:
		return &GenericType{Name: "Option", Args: []Type{a.fromLattice(ty.Element)}}
	case *types.Result:
		return &GenericType{Name: "Result", Args: []Type{a.fromLattice(ty.Ok), a.fromLattice(ty.Err)}}
	case *types.Generic:
		args := make([]Type, len(ty.Args))
		for i, arg := range ty.Args {
			args[i] = a.fromLattice(arg)
		}
		if len(args) == 0 {
			if sym, ok := a.symbols.LookupIn(a.symbols.Global(), ty.Name); ok {
				switch sym.(type) {
				case *StructSymbol:
					return &StructType{Name: ty.Name}
				case *EnumSymbol:
					return &EnumType{Name: ty.Name}
				}
			}
		}
		return &GenericType{Name: ty.Name, Args: args}
	default:
		return Unknown
	}
}
