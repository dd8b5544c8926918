package types

import (
	"fmt"

	"github.com/vela-lang/vela/internal/compiler/ast"
)

// Inference is a Hindley-Milner type reconstruction engine. Each engine owns
// its fresh-variable counter and its accumulated substitution; engines for
// independent analyses must not be shared. An Inference is not safe for
// concurrent use.
type Inference struct {
	ctx     *Context
	subst   Substitution
	nextVar int
}

// NewInference creates an inference engine over the given environment.
func NewInference(ctx *Context) *Inference {
	if ctx == nil {
		ctx = NewContext()
	}
	return &Inference{
		ctx:   ctx,
		subst: make(Substitution),
	}
}

// Context returns the engine's typing environment.
func (inf *Inference) Context() *Context {
	return inf.ctx
}

// Substitution returns the accumulated substitution.
func (inf *Inference) Substitution() Substitution {
	return inf.subst
}

// FreshVar yields a unification variable unique within this engine. The
// counter is monotonic per instance.
func (inf *Inference) FreshVar() *Var {
	inf.nextVar++
	return &Var{ID: inf.nextVar}
}

// Apply applies the accumulated substitution to a type.
func (inf *Inference) Apply(t Type) Type {
	return inf.subst.Apply(t)
}

// Instantiate replaces every quantified variable of a scheme with a fresh
// unification variable.
func (inf *Inference) Instantiate(s Scheme) Type {
	if len(s.Vars) == 0 {
		return s.Body
	}
	quantified := make(map[int]struct{}, len(s.Vars))
	for _, id := range s.Vars {
		quantified[id] = struct{}{}
	}
	replacement := make(Substitution, len(s.Vars))
	for _, id := range s.Vars {
		// A fresh id equal to a quantified id would map a variable to
		// itself and make Apply recurse without end.
		fresh := inf.FreshVar()
		for _, clash := quantified[fresh.ID]; clash; _, clash = quantified[fresh.ID] {
			fresh = inf.FreshVar()
		}
		replacement[id] = fresh
	}
	return replacement.Apply(s.Body)
}

// Generalize closes t over variables not free in the engine's environment,
// under the current substitution.
func (inf *Inference) Generalize(t Type) Scheme {
	return Generalize(inf.ctx, inf.Apply(t))
}

// Unify makes two types equal, extending the accumulated substitution, or
// returns a structured error.
func (inf *Inference) Unify(lhs, rhs Type) error {
	a := inf.Apply(lhs)
	b := inf.Apply(rhs)

	if a.Equals(b) {
		return nil
	}

	if v, ok := a.(*Var); ok {
		return inf.unifyVar(v, b)
	}
	if v, ok := b.(*Var); ok {
		return inf.unifyVar(v, a)
	}

	switch at := a.(type) {
	case *Function:
		bt, ok := b.(*Function)
		if !ok {
			return NewUnificationFailure(a, b)
		}
		if len(at.Params) != len(bt.Params) {
			return NewWrongNumberOfArguments(len(at.Params), len(bt.Params))
		}
		for i := range at.Params {
			if err := inf.Unify(at.Params[i], bt.Params[i]); err != nil {
				return err
			}
		}
		return inf.Unify(at.Return, bt.Return)

	case *Array:
		bt, ok := b.(*Array)
		if !ok {
			return NewUnificationFailure(a, b)
		}
		return inf.Unify(at.Element, bt.Element)

	case *Option:
		bt, ok := b.(*Option)
		if !ok {
			return NewUnificationFailure(a, b)
		}
		return inf.Unify(at.Element, bt.Element)

	case *Tuple:
		bt, ok := b.(*Tuple)
		if !ok || len(at.Elements) != len(bt.Elements) {
			return NewUnificationFailure(a, b)
		}
		for i := range at.Elements {
			if err := inf.Unify(at.Elements[i], bt.Elements[i]); err != nil {
				return err
			}
		}
		return nil

	case *Record:
		bt, ok := b.(*Record)
		if !ok || len(at.Fields) != len(bt.Fields) {
			return NewUnificationFailure(a, b)
		}
		for _, f := range at.Fields {
			other, found := bt.Field(f.Name)
			if !found {
				return NewUnificationFailure(a, b)
			}
			if err := inf.Unify(f.Type, other); err != nil {
				return err
			}
		}
		return nil

	case *Variant:
		bt, ok := b.(*Variant)
		if !ok || len(at.Cases) != len(bt.Cases) {
			return NewUnificationFailure(a, b)
		}
		for _, c := range at.Cases {
			other, found := bt.Case(c.Tag)
			if !found {
				return NewUnificationFailure(a, b)
			}
			if err := inf.Unify(c.Type, other); err != nil {
				return err
			}
		}
		return nil

	case *Result:
		bt, ok := b.(*Result)
		if !ok {
			return NewUnificationFailure(a, b)
		}
		if err := inf.Unify(at.Ok, bt.Ok); err != nil {
			return err
		}
		return inf.Unify(at.Err, bt.Err)

	case *Generic:
		bt, ok := b.(*Generic)
		if !ok || at.Name != bt.Name || len(at.Args) != len(bt.Args) {
			return NewUnificationFailure(a, b)
		}
		for i := range at.Args {
			if err := inf.Unify(at.Args[i], bt.Args[i]); err != nil {
				return err
			}
		}
		return nil

	default:
		return NewUnificationFailure(a, b)
	}
}

// unifyVar binds a variable to a type after running the occurs check.
// Both operands have already had the substitution applied.
func (inf *Inference) unifyVar(v *Var, t Type) error {
	if other, ok := t.(*Var); ok && other.ID == v.ID {
		return nil
	}
	if occurs(v.ID, t) {
		return NewInfiniteType(v.ID, t)
	}
	inf.subst[v.ID] = t
	return nil
}

// occurs reports whether variable id appears anywhere inside t.
func occurs(id int, t Type) bool {
	_, found := FreeVars(t)[id]
	return found
}

// InferExpression computes the type of an expression under the engine's
// environment, extending the substitution as it goes. The result still
// contains unification variables; callers apply the substitution for the
// resolved form.
func (inf *Inference) InferExpression(expr ast.Expression) (Type, error) {
	switch e := expr.(type) {
	case *ast.LiteralExpr:
		return inf.inferLiteral(e)
	case *ast.IdentifierExpr:
		return inf.inferIdentifier(e)
	case *ast.BinaryExpr:
		return inf.inferBinary(e)
	case *ast.UnaryExpr:
		return inf.inferUnary(e)
	case *ast.CallExpr:
		return inf.inferCall(e)
	case *ast.MemberAccessExpr:
		return inf.inferMemberAccess(e)
	case *ast.IndexAccessExpr:
		return inf.inferIndexAccess(e)
	case *ast.ArrayLiteralExpr:
		return inf.inferArrayLiteral(e)
	case *ast.TupleLiteralExpr:
		return inf.inferTupleLiteral(e)
	case *ast.StructLiteralExpr:
		return inf.inferStructLiteral(e)
	case *ast.LambdaExpr:
		return inf.inferLambda(e)
	case *ast.IfExpr:
		return inf.inferIf(e)
	case *ast.MatchExpr:
		return inf.inferMatch(e)
	case *ast.StringInterpolationExpr:
		return inf.inferStringInterpolation(e)
	case *ast.AwaitExpr:
		return inf.InferExpression(e.Expr)
	case *ast.DispatchExpr:
		// The action operand is checked; validation of the dispatchable
		// capability is a later pass. Dispatch itself yields Unit.
		if _, err := inf.InferExpression(e.Action); err != nil {
			return nil, err
		}
		return Unit, nil
	case *ast.ParenExpr:
		return inf.InferExpression(e.Expr)
	default:
		return nil, &TypeError{
			Kind:    UnificationFailure,
			Message: fmt.Sprintf("cannot infer expression of type %T", expr),
		}
	}
}

func (inf *Inference) inferLiteral(lit *ast.LiteralExpr) (Type, error) {
	switch lit.Kind {
	case ast.LiteralNumber:
		return Int, nil
	case ast.LiteralFloat:
		return Float, nil
	case ast.LiteralString:
		return String, nil
	case ast.LiteralBool:
		return Bool, nil
	case ast.LiteralNone:
		return Unit, nil
	default:
		return nil, &TypeError{
			Kind:     UnificationFailure,
			Message:  fmt.Sprintf("unknown literal kind: %s", lit.Kind),
			Location: ast.LocationFromRange(lit.Span),
		}
	}
}

func (inf *Inference) inferIdentifier(ident *ast.IdentifierExpr) (Type, error) {
	scheme, ok := inf.ctx.Lookup(ident.Name)
	if !ok {
		err := NewVariableNotFound(ident.Name)
		err.Location = ast.LocationFromRange(ident.Span)
		return nil, err
	}
	return inf.Instantiate(scheme), nil
}

func (inf *Inference) inferBinary(bin *ast.BinaryExpr) (Type, error) {
	leftTy, err := inf.InferExpression(bin.Left)
	if err != nil {
		return nil, err
	}
	rightTy, err := inf.InferExpression(bin.Right)
	if err != nil {
		return nil, err
	}

	switch bin.Operator {
	case "+", "-", "*", "/", "%":
		if err := inf.Unify(leftTy, Int); err != nil {
			return nil, err
		}
		if err := inf.Unify(rightTy, Int); err != nil {
			return nil, err
		}
		return Int, nil

	case "==", "!=", "<", ">", "<=", ">=":
		if err := inf.Unify(leftTy, rightTy); err != nil {
			return nil, err
		}
		return Bool, nil

	case "&&", "||":
		if err := inf.Unify(leftTy, Bool); err != nil {
			return nil, err
		}
		if err := inf.Unify(rightTy, Bool); err != nil {
			return nil, err
		}
		return Bool, nil

	case "??":
		elem := inf.FreshVar()
		if err := inf.Unify(leftTy, &Option{Element: elem}); err != nil {
			return nil, err
		}
		if err := inf.Unify(rightTy, elem); err != nil {
			return nil, err
		}
		return elem, nil

	default:
		return nil, &TypeError{
			Kind:     UnificationFailure,
			Message:  fmt.Sprintf("unknown binary operator: %s", bin.Operator),
			Location: ast.LocationFromRange(bin.Span),
		}
	}
}

func (inf *Inference) inferUnary(un *ast.UnaryExpr) (Type, error) {
	operandTy, err := inf.InferExpression(un.Operand)
	if err != nil {
		return nil, err
	}

	switch un.Operator {
	case "-":
		if err := inf.Unify(operandTy, Int); err != nil {
			return nil, err
		}
		return Int, nil
	case "!":
		if err := inf.Unify(operandTy, Bool); err != nil {
			return nil, err
		}
		return Bool, nil
	default:
		return nil, &TypeError{
			Kind:     UnificationFailure,
			Message:  fmt.Sprintf("unknown unary operator: %s", un.Operator),
			Location: ast.LocationFromRange(un.Span),
		}
	}
}

func (inf *Inference) inferCall(call *ast.CallExpr) (Type, error) {
	funcTy, err := inf.InferExpression(call.Callee)
	if err != nil {
		return nil, err
	}

	argTypes := make([]Type, len(call.Arguments))
	for i, arg := range call.Arguments {
		argTy, err := inf.InferExpression(arg)
		if err != nil {
			return nil, err
		}
		argTypes[i] = argTy
	}

	retTy := inf.FreshVar()
	expected := &Function{Params: argTypes, Return: retTy}
	if err := inf.Unify(funcTy, expected); err != nil {
		return nil, err
	}
	return retTy, nil
}

func (inf *Inference) inferMemberAccess(member *ast.MemberAccessExpr) (Type, error) {
	objTy, err := inf.InferExpression(member.Object)
	if err != nil {
		return nil, err
	}

	switch t := inf.Apply(objTy).(type) {
	case *Record:
		fieldTy, ok := t.Field(member.Member)
		if !ok {
			ferr := NewFieldNotFound(member.Member, t)
			ferr.Location = ast.LocationFromRange(member.Span)
			return nil, ferr
		}
		return fieldTy, nil
	default:
		// The record is still unknown; defer with a fresh variable. A
		// pending-constraint mechanism would tighten this later.
		return inf.FreshVar(), nil
	}
}

func (inf *Inference) inferIndexAccess(index *ast.IndexAccessExpr) (Type, error) {
	objTy, err := inf.InferExpression(index.Object)
	if err != nil {
		return nil, err
	}
	indexTy, err := inf.InferExpression(index.Index)
	if err != nil {
		return nil, err
	}

	if err := inf.Unify(indexTy, Int); err != nil {
		return nil, err
	}

	elem := inf.FreshVar()
	if err := inf.Unify(objTy, &Array{Element: elem}); err != nil {
		return nil, err
	}
	return elem, nil
}

func (inf *Inference) inferArrayLiteral(arr *ast.ArrayLiteralExpr) (Type, error) {
	if len(arr.Elements) == 0 {
		return &Array{Element: inf.FreshVar()}, nil
	}

	elemTy, err := inf.InferExpression(arr.Elements[0])
	if err != nil {
		return nil, err
	}
	for _, elem := range arr.Elements[1:] {
		curr, err := inf.InferExpression(elem)
		if err != nil {
			return nil, err
		}
		if err := inf.Unify(elemTy, curr); err != nil {
			return nil, err
		}
	}
	return &Array{Element: elemTy}, nil
}

func (inf *Inference) inferTupleLiteral(tuple *ast.TupleLiteralExpr) (Type, error) {
	elems := make([]Type, len(tuple.Elements))
	for i, e := range tuple.Elements {
		ty, err := inf.InferExpression(e)
		if err != nil {
			return nil, err
		}
		elems[i] = ty
	}
	return &Tuple{Elements: elems}, nil
}

func (inf *Inference) inferStructLiteral(lit *ast.StructLiteralExpr) (Type, error) {
	fields := make([]RecordField, len(lit.Fields))
	for i, f := range lit.Fields {
		ty, err := inf.InferExpression(f.Value)
		if err != nil {
			return nil, err
		}
		fields[i] = RecordField{Name: f.Name, Type: ty}
	}
	return &Record{Fields: fields}, nil
}

func (inf *Inference) inferLambda(lambda *ast.LambdaExpr) (Type, error) {
	paramTypes := make([]Type, len(lambda.Parameters))
	child := inf.ctx.Child()
	for i, param := range lambda.Parameters {
		fresh := inf.FreshVar()
		paramTypes[i] = fresh
		child.Add(param.Name, Mono(fresh))
	}

	prev := inf.ctx
	inf.ctx = child
	defer func() { inf.ctx = prev }()

	var retTy Type
	if lambda.Body != nil {
		var err error
		retTy, err = inf.InferExpression(lambda.Body)
		if err != nil {
			return nil, err
		}
	} else {
		// Statement-bodied lambdas yield Unit.
		retTy = Unit
	}

	return &Function{Params: paramTypes, Return: retTy}, nil
}

func (inf *Inference) inferIf(ifExpr *ast.IfExpr) (Type, error) {
	condTy, err := inf.InferExpression(ifExpr.Condition)
	if err != nil {
		return nil, err
	}
	if err := inf.Unify(condTy, Bool); err != nil {
		return nil, err
	}

	thenTy, err := inf.InferExpression(ifExpr.Then)
	if err != nil {
		return nil, err
	}
	elseTy, err := inf.InferExpression(ifExpr.Else)
	if err != nil {
		return nil, err
	}
	if err := inf.Unify(thenTy, elseTy); err != nil {
		return nil, err
	}
	return thenTy, nil
}

func (inf *Inference) inferMatch(match *ast.MatchExpr) (Type, error) {
	valueTy, err := inf.InferExpression(match.Value)
	if err != nil {
		return nil, err
	}

	if len(match.Arms) == 0 {
		return Unit, nil
	}

	var resultTy Type
	for _, arm := range match.Arms {
		armCtx := inf.ctx.Child()
		switch pat := arm.Pattern.(type) {
		case *ast.IdentifierExpr:
			// An identifier pattern binds the matched value.
			armCtx.Add(pat.Name, Mono(valueTy))
		case *ast.LiteralExpr:
			litTy, err := inf.inferLiteral(pat)
			if err != nil {
				return nil, err
			}
			if err := inf.Unify(valueTy, litTy); err != nil {
				return nil, err
			}
		}

		prev := inf.ctx
		inf.ctx = armCtx
		bodyTy, err := inf.InferExpression(arm.Body)
		inf.ctx = prev
		if err != nil {
			return nil, err
		}

		if resultTy == nil {
			resultTy = bodyTy
		} else if err := inf.Unify(resultTy, bodyTy); err != nil {
			return nil, err
		}
	}
	return resultTy, nil
}

func (inf *Inference) inferStringInterpolation(interp *ast.StringInterpolationExpr) (Type, error) {
	for _, part := range interp.Parts {
		if part.Expr != nil {
			if _, err := inf.InferExpression(part.Expr); err != nil {
				return nil, err
			}
		}
	}
	return String, nil
}

// AlgorithmW runs type reconstruction for a single expression under a
// context, returning the resolved type and the final substitution.
func AlgorithmW(ctx *Context, expr ast.Expression) (Type, Substitution, error) {
	inf := NewInference(ctx)
	ty, err := inf.InferExpression(expr)
	if err != nil {
		return nil, nil, err
	}
	return inf.Apply(ty), inf.Substitution(), nil
}
