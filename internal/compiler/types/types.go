// Package types implements the Vela semantic type lattice and the
// Hindley-Milner inference engine: substitutions, unification with the
// occurs check, instantiation, and let-generalisation.
package types

import (
	"fmt"
	"sort"
	"strings"
)

// Type is a type in the Vela type lattice. All concrete types are tagged
// variants; consumers switch exhaustively over them.
type Type interface {
	// String returns the human-readable representation of the type
	String() string

	// Equals checks if two types are structurally equal
	Equals(other Type) bool

	typ()
}

// BasicKind identifies a base scalar type
type BasicKind int

const (
	// KindInt is the 64-bit integer scalar.
	KindInt BasicKind = iota
	// KindFloat is the 64-bit floating point scalar.
	KindFloat
	// KindBool is the boolean scalar.
	KindBool
	// KindString is the string scalar.
	KindString
	// KindUnit is the unit (void) type.
	KindUnit
)

// Basic is a base scalar type
type Basic struct {
	Kind BasicKind
}

// Shared scalar instances. Scalars carry no state, so every use of Int is
// the same value.
var (
	Int    = &Basic{KindInt}
	Float  = &Basic{KindFloat}
	Bool   = &Basic{KindBool}
	String = &Basic{KindString}
	Unit   = &Basic{KindUnit}
)

func (b *Basic) typ() {}

func (b *Basic) String() string {
	switch b.Kind {
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindString:
		return "String"
	case KindUnit:
		return "Unit"
	default:
		return fmt.Sprintf("Basic(%d)", int(b.Kind))
	}
}

// Equals checks structural equality with another type.
func (b *Basic) Equals(other Type) bool {
	o, ok := other.(*Basic)
	return ok && b.Kind == o.Kind
}

// Function is a function type with ordered parameters and a return type
type Function struct {
	Params []Type
	Return Type
}

func (f *Function) typ() {}

func (f *Function) String() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("(%s) -> %s", strings.Join(params, ", "), f.Return.String())
}

// Equals checks structural equality with another type.
func (f *Function) Equals(other Type) bool {
	o, ok := other.(*Function)
	if !ok || len(f.Params) != len(o.Params) {
		return false
	}
	for i, p := range f.Params {
		if !p.Equals(o.Params[i]) {
			return false
		}
	}
	return f.Return.Equals(o.Return)
}

// Array is a homogeneous array type
type Array struct {
	Element Type
}

func (a *Array) typ() {}

func (a *Array) String() string {
	return fmt.Sprintf("[%s]", a.Element.String())
}

// Equals checks structural equality with another type.
func (a *Array) Equals(other Type) bool {
	o, ok := other.(*Array)
	return ok && a.Element.Equals(o.Element)
}

// Tuple is an ordered, fixed-arity product type
type Tuple struct {
	Elements []Type
}

func (t *Tuple) typ() {}

func (t *Tuple) String() string {
	elems := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		elems[i] = e.String()
	}
	return fmt.Sprintf("(%s)", strings.Join(elems, ", "))
}

// Equals checks structural equality with another type.
func (t *Tuple) Equals(other Type) bool {
	o, ok := other.(*Tuple)
	if !ok || len(t.Elements) != len(o.Elements) {
		return false
	}
	for i, e := range t.Elements {
		if !e.Equals(o.Elements[i]) {
			return false
		}
	}
	return true
}

// RecordField is one named field of a record type
type RecordField struct {
	Name string
	Type Type
}

// Record is a structural record type. The field name set is the record's
// identity; field order is preserved for deterministic printing only.
type Record struct {
	Fields []RecordField
}

func (r *Record) typ() {}

func (r *Record) String() string {
	fields := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		fields[i] = fmt.Sprintf("%s: %s", f.Name, f.Type.String())
	}
	return fmt.Sprintf("{%s}", strings.Join(fields, ", "))
}

// Field looks up a field type by name.
func (r *Record) Field(name string) (Type, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// Equals checks structural equality with another type. Field order is
// irrelevant; the name set and per-name types must match.
func (r *Record) Equals(other Type) bool {
	o, ok := other.(*Record)
	if !ok || len(r.Fields) != len(o.Fields) {
		return false
	}
	for _, f := range r.Fields {
		ot, found := o.Field(f.Name)
		if !found || !f.Type.Equals(ot) {
			return false
		}
	}
	return true
}

// VariantCase is one tagged case of a variant type
type VariantCase struct {
	Tag  string
	Type Type
}

// Variant is a structural sum type. The tag set is the variant's identity.
type Variant struct {
	Cases []VariantCase
}

func (v *Variant) typ() {}

func (v *Variant) String() string {
	cases := make([]string, len(v.Cases))
	for i, c := range v.Cases {
		cases[i] = fmt.Sprintf("%s(%s)", c.Tag, c.Type.String())
	}
	return fmt.Sprintf("<%s>", strings.Join(cases, " | "))
}

// Case looks up a case type by tag.
func (v *Variant) Case(tag string) (Type, bool) {
	for _, c := range v.Cases {
		if c.Tag == tag {
			return c.Type, true
		}
	}
	return nil, false
}

// Equals checks structural equality with another type.
func (v *Variant) Equals(other Type) bool {
	o, ok := other.(*Variant)
	if !ok || len(v.Cases) != len(o.Cases) {
		return false
	}
	for _, c := range v.Cases {
		ot, found := o.Case(c.Tag)
		if !found || !c.Type.Equals(ot) {
			return false
		}
	}
	return true
}

// Option is an optional type: Option<T>
type Option struct {
	Element Type
}

func (o *Option) typ() {}

func (o *Option) String() string {
	return fmt.Sprintf("Option<%s>", o.Element.String())
}

// Equals checks structural equality with another type.
func (o *Option) Equals(other Type) bool {
	ot, ok := other.(*Option)
	return ok && o.Element.Equals(ot.Element)
}

// Result is a success-or-error type: Result<Ok, Err>
type Result struct {
	Ok  Type
	Err Type
}

func (r *Result) typ() {}

func (r *Result) String() string {
	return fmt.Sprintf("Result<%s, %s>", r.Ok.String(), r.Err.String())
}

// Equals checks structural equality with another type.
func (r *Result) Equals(other Type) bool {
	o, ok := other.(*Result)
	return ok && r.Ok.Equals(o.Ok) && r.Err.Equals(o.Err)
}

// Generic is a named parameterised type: Name<Args...>
type Generic struct {
	Name string
	Args []Type
}

func (g *Generic) typ() {}

func (g *Generic) String() string {
	if len(g.Args) == 0 {
		return g.Name
	}
	args := make([]string, len(g.Args))
	for i, a := range g.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s<%s>", g.Name, strings.Join(args, ", "))
}

// Equals checks structural equality with another type.
func (g *Generic) Equals(other Type) bool {
	o, ok := other.(*Generic)
	if !ok || g.Name != o.Name || len(g.Args) != len(o.Args) {
		return false
	}
	for i, a := range g.Args {
		if !a.Equals(o.Args[i]) {
			return false
		}
	}
	return true
}

// Var is a unification variable
type Var struct {
	ID int
}

func (v *Var) typ() {}

func (v *Var) String() string {
	return fmt.Sprintf("'t%d", v.ID)
}

// Equals checks structural equality with another type.
func (v *Var) Equals(other Type) bool {
	o, ok := other.(*Var)
	return ok && v.ID == o.ID
}

// Substitution maps unification-variable ids to types
type Substitution map[int]Type

// Apply replaces every Var bound in the substitution, recursively, until no
// bound Var remains in the result. Termination is guaranteed by the occurs
// check: no binding ever contains its own variable.
func (s Substitution) Apply(t Type) Type {
	switch ty := t.(type) {
	case *Basic:
		return ty
	case *Var:
		if bound, ok := s[ty.ID]; ok {
			return s.Apply(bound)
		}
		return ty
	case *Function:
		params := make([]Type, len(ty.Params))
		for i, p := range ty.Params {
			params[i] = s.Apply(p)
		}
		return &Function{Params: params, Return: s.Apply(ty.Return)}
	case *Array:
		return &Array{Element: s.Apply(ty.Element)}
	case *Tuple:
		elems := make([]Type, len(ty.Elements))
		for i, e := range ty.Elements {
			elems[i] = s.Apply(e)
		}
		return &Tuple{Elements: elems}
	case *Record:
		fields := make([]RecordField, len(ty.Fields))
		for i, f := range ty.Fields {
			fields[i] = RecordField{Name: f.Name, Type: s.Apply(f.Type)}
		}
		return &Record{Fields: fields}
	case *Variant:
		cases := make([]VariantCase, len(ty.Cases))
		for i, c := range ty.Cases {
			cases[i] = VariantCase{Tag: c.Tag, Type: s.Apply(c.Type)}
		}
		return &Variant{Cases: cases}
	case *Option:
		return &Option{Element: s.Apply(ty.Element)}
	case *Result:
		return &Result{Ok: s.Apply(ty.Ok), Err: s.Apply(ty.Err)}
	case *Generic:
		args := make([]Type, len(ty.Args))
		for i, a := range ty.Args {
			args[i] = s.Apply(a)
		}
		return &Generic{Name: ty.Name, Args: args}
	default:
		return t
	}
}

// Compose returns the substitution equivalent to applying s first and then
// other: Compose(other)(t) == other.Apply(s.Apply(t)).
func (s Substitution) Compose(other Substitution) Substitution {
	out := make(Substitution, len(s)+len(other))
	for id, t := range s {
		out[id] = other.Apply(t)
	}
	for id, t := range other {
		if _, ok := out[id]; !ok {
			out[id] = t
		}
	}
	return out
}

// FreeVars collects the unification-variable ids occurring in a type.
func FreeVars(t Type) map[int]struct{} {
	free := make(map[int]struct{})
	collectFreeVars(t, free)
	return free
}

func collectFreeVars(t Type, free map[int]struct{}) {
	switch ty := t.(type) {
	case *Var:
		free[ty.ID] = struct{}{}
	case *Function:
		for _, p := range ty.Params {
			collectFreeVars(p, free)
		}
		collectFreeVars(ty.Return, free)
	case *Array:
		collectFreeVars(ty.Element, free)
	case *Tuple:
		for _, e := range ty.Elements {
			collectFreeVars(e, free)
		}
	case *Record:
		for _, f := range ty.Fields {
			collectFreeVars(f.Type, free)
		}
	case *Variant:
		for _, c := range ty.Cases {
			collectFreeVars(c.Type, free)
		}
	case *Option:
		collectFreeVars(ty.Element, free)
	case *Result:
		collectFreeVars(ty.Ok, free)
		collectFreeVars(ty.Err, free)
	case *Generic:
		for _, a := range ty.Args {
			collectFreeVars(a, free)
		}
	}
}

// Scheme is a polymorphic type: forall Vars. Body. A monotype is a scheme
// with no quantified variables.
type Scheme struct {
	Vars []int
	Body Type
}

// Mono wraps a plain type as a scheme with no quantified variables.
func Mono(t Type) Scheme {
	return Scheme{Body: t}
}

func (s Scheme) String() string {
	if len(s.Vars) == 0 {
		return s.Body.String()
	}
	vars := make([]string, len(s.Vars))
	for i, v := range s.Vars {
		vars[i] = fmt.Sprintf("'t%d", v)
	}
	return fmt.Sprintf("forall %s. %s", strings.Join(vars, " "), s.Body.String())
}

// FreeVars returns the free variables of the scheme: those free in the body
// and not quantified.
func (s Scheme) FreeVars() map[int]struct{} {
	free := FreeVars(s.Body)
	for _, v := range s.Vars {
		delete(free, v)
	}
	return free
}

// Context is the typing environment: a mapping from names to schemes.
type Context struct {
	vars   map[string]Scheme
	parent *Context
}

// NewContext creates an empty typing environment
func NewContext() *Context {
	return &Context{vars: make(map[string]Scheme)}
}

// Child creates a nested environment whose lookups fall back to this one.
func (c *Context) Child() *Context {
	return &Context{vars: make(map[string]Scheme), parent: c}
}

// Add binds a name to a scheme in this environment.
func (c *Context) Add(name string, scheme Scheme) {
	c.vars[name] = scheme
}

// Lookup resolves a name, walking parent environments.
func (c *Context) Lookup(name string) (Scheme, bool) {
	for env := c; env != nil; env = env.parent {
		if s, ok := env.vars[name]; ok {
			return s, true
		}
	}
	return Scheme{}, false
}

// FreeVars collects the free variables of every scheme in scope.
func (c *Context) FreeVars() map[int]struct{} {
	free := make(map[int]struct{})
	for env := c; env != nil; env = env.parent {
		for _, s := range env.vars {
			for id := range s.FreeVars() {
				free[id] = struct{}{}
			}
		}
	}
	return free
}

// Generalize closes t over the variables free in t but not free in the
// environment, forming a scheme usable at let-binding sites. Quantified
// variables are sorted so the scheme prints deterministically.
func Generalize(ctx *Context, t Type) Scheme {
	ctxFree := ctx.FreeVars()
	var vars []int
	for id := range FreeVars(t) {
		if _, inCtx := ctxFree[id]; !inCtx {
			vars = append(vars, id)
		}
	}
	sort.Ints(vars)
	return Scheme{Vars: vars, Body: t}
}
