package types

import (
	"fmt"

	"github.com/vela-lang/vela/internal/compiler/ast"
)

// ErrorKind identifies the category of an inference error
type ErrorKind string

const (
	// UnificationFailure indicates two types could not be made equal.
	UnificationFailure ErrorKind = "unification_failure"
	// InfiniteType indicates the occurs check rejected a recursive binding.
	InfiniteType ErrorKind = "infinite_type"
	// VariableNotFound indicates an unbound name was referenced.
	VariableNotFound ErrorKind = "variable_not_found"
	// WrongNumberOfArguments indicates a function arity mismatch.
	WrongNumberOfArguments ErrorKind = "wrong_number_of_arguments"
	// FieldNotFound indicates a record field access on a missing field.
	FieldNotFound ErrorKind = "field_not_found"
)

// TypeError is a structured inference failure. Inference is total: every
// failure is returned as a value, never raised through control flow.
type TypeError struct {
	Kind     ErrorKind          `json:"kind"`
	Message  string             `json:"message"`
	Expected string             `json:"expected,omitempty"`
	Actual   string             `json:"actual,omitempty"`
	Name     string             `json:"name,omitempty"`
	Location ast.SourceLocation `json:"location"`
}

// Error implements the error interface
func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewUnificationFailure creates an error for two incompatible types.
func NewUnificationFailure(expected, actual Type) *TypeError {
	return &TypeError{
		Kind:     UnificationFailure,
		Message:  fmt.Sprintf("cannot unify %s with %s", expected.String(), actual.String()),
		Expected: expected.String(),
		Actual:   actual.String(),
	}
}

// NewInfiniteType creates an occurs-check failure for variable id inside t.
func NewInfiniteType(id int, t Type) *TypeError {
	return &TypeError{
		Kind:    InfiniteType,
		Message: fmt.Sprintf("infinite type: 't%d occurs in %s", id, t.String()),
		Actual:  t.String(),
	}
}

// NewVariableNotFound creates an unbound-name error.
func NewVariableNotFound(name string) *TypeError {
	return &TypeError{
		Kind:    VariableNotFound,
		Message: fmt.Sprintf("variable not found: %s", name),
		Name:    name,
	}
}

// NewWrongNumberOfArguments creates an arity-mismatch error.
func NewWrongNumberOfArguments(expected, actual int) *TypeError {
	return &TypeError{
		Kind:     WrongNumberOfArguments,
		Message:  fmt.Sprintf("wrong number of arguments: expected %d, got %d", expected, actual),
		Expected: fmt.Sprintf("%d", expected),
		Actual:   fmt.Sprintf("%d", actual),
	}
}

// NewFieldNotFound creates a missing-field error on a record type.
func NewFieldNotFound(field string, t Type) *TypeError {
	return &TypeError{
		Kind:    FieldNotFound,
		Message: fmt.Sprintf("field %q not found on %s", field, t.String()),
		Name:    field,
		Actual:  t.String(),
	}
}
