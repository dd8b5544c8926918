// Package semantic implements symbol resolution and type checking for Vela
// programs: a scoped symbol table and a two-phase analyzer (declare, then
// check) over the parsed declaration list.
package semantic

import (
	"fmt"
	"strings"
)

// Common primitive type name constants.
const (
	typeNumber = "Number"
	typeFloat  = "Float"
	typeString = "String"
	typeBool   = "Bool"
	typeVoid   = "void"
)

// Type is a type as seen by the semantic analyzer. Named struct and enum
// types are nominal; everything else is structural.
type Type interface {
	String() string
	semanticType()
}

// PrimitiveType is a built-in scalar type: Number, Float, String, Bool, void
type PrimitiveType struct {
	Name string
}

func (p *PrimitiveType) semanticType() {}

func (p *PrimitiveType) String() string { return p.Name }

// StructType references a declared struct by name
type StructType struct {
	Name string
}

func (s *StructType) semanticType() {}

func (s *StructType) String() string { return s.Name }

// EnumType references a declared enum by name
type EnumType struct {
	Name string
}

func (e *EnumType) semanticType() {}

func (e *EnumType) String() string { return e.Name }

// FunctionType is (params) -> return
type FunctionType struct {
	Params []Type
	Return Type
}

func (f *FunctionType) semanticType() {}

func (f *FunctionType) String() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("(%s) -> %s", strings.Join(params, ", "), f.Return.String())
}

// ArrayType is a homogeneous array
type ArrayType struct {
	Element Type
}

func (a *ArrayType) semanticType() {}

func (a *ArrayType) String() string { return fmt.Sprintf("[%s]", a.Element.String()) }

// TupleType is an ordered product
type TupleType struct {
	Elements []Type
}

func (t *TupleType) semanticType() {}

func (t *TupleType) String() string {
	elems := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		elems[i] = e.String()
	}
	return fmt.Sprintf("(%s)", strings.Join(elems, ", "))
}

// GenericType is a named parameterised type: Name<Args...>
type GenericType struct {
	Name string
	Args []Type
}

func (g *GenericType) semanticType() {}

func (g *GenericType) String() string {
	args := make([]string, len(g.Args))
	for i, a := range g.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s<%s>", g.Name, strings.Join(args, ", "))
}

// UnknownType is the placeholder for types still subject to inference
type UnknownType struct{}

func (u *UnknownType) semanticType() {}

func (u *UnknownType) String() string { return "unknown" }

// Unknown is the shared placeholder instance.
var Unknown = &UnknownType{}

// typesCompatible implements the compatibility rule: same base scalar, same
// named struct/enum, unknown on either side, or structural component-wise
// equality by arity and position/name.
func typesCompatible(left, right Type) bool {
	switch l := left.(type) {
	case *UnknownType:
		return true
	case *PrimitiveType:
		r, ok := right.(*PrimitiveType)
		if ok {
			return l.Name == r.Name
		}
	case *StructType:
		r, ok := right.(*StructType)
		if ok {
			return l.Name == r.Name
		}
	case *EnumType:
		r, ok := right.(*EnumType)
		if ok {
			return l.Name == r.Name
		}
	case *ArrayType:
		r, ok := right.(*ArrayType)
		if ok {
			return typesCompatible(l.Element, r.Element)
		}
	case *TupleType:
		r, ok := right.(*TupleType)
		if ok && len(l.Elements) == len(r.Elements) {
			for i := range l.Elements {
				if !typesCompatible(l.Elements[i], r.Elements[i]) {
					return false
				}
			}
			return true
		}
	case *FunctionType:
		r, ok := right.(*FunctionType)
		if ok && len(l.Params) == len(r.Params) {
			for i := range l.Params {
				if !typesCompatible(l.Params[i], r.Params[i]) {
					return false
				}
			}
			return typesCompatible(l.Return, r.Return)
		}
	case *GenericType:
		r, ok := right.(*GenericType)
		if ok && l.Name == r.Name && len(l.Args) == len(r.Args) {
			for i := range l.Args {
				if !typesCompatible(l.Args[i], r.Args[i]) {
					return false
				}
			}
			return true
		}
	}
	if _, ok := right.(*UnknownType); ok {
		return true
	}
	return false
}

// isNumericType checks if a type is Number or Float
func isNumericType(t Type) bool {
	p, ok := t.(*PrimitiveType)
	return ok && (p.Name == typeNumber || p.Name == typeFloat)
}

// isBooleanType checks if a type is Bool
func isBooleanType(t Type) bool {
	p, ok := t.(*PrimitiveType)
	return ok && p.Name == typeBool
}
