package semantic

import (
	"fmt"
	"strings"

	"github.com/vela-lang/vela/internal/compiler/ast"
)

// ErrorCode represents a specific semantic error code
type ErrorCode string

const (
	// ErrDuplicateSymbol indicates a name was declared twice in one scope.
	ErrDuplicateSymbol ErrorCode = "SEM001"
	// ErrUndefinedSymbol indicates a reference to an unbound name.
	ErrUndefinedSymbol ErrorCode = "SEM002"
	// ErrUndefinedType indicates a reference to an unknown type name.
	ErrUndefinedType ErrorCode = "SEM003"
	// ErrInvalidType indicates a name used as a type that is not one.
	ErrInvalidType ErrorCode = "SEM004"
	// ErrInvalidSymbolUsage indicates a struct or enum used in value position.
	ErrInvalidSymbolUsage ErrorCode = "SEM005"

	// ErrTypeMismatch indicates incompatible expected and actual types.
	ErrTypeMismatch ErrorCode = "SEM101"
	// ErrInvalidBinaryOperation indicates a binary operator applied to bad operands.
	ErrInvalidBinaryOperation ErrorCode = "SEM102"
	// ErrInvalidUnaryOperation indicates a unary operator applied to a bad operand.
	ErrInvalidUnaryOperation ErrorCode = "SEM103"
	// ErrUnknownOperator indicates an operator the checker does not recognize.
	ErrUnknownOperator ErrorCode = "SEM104"
	// ErrTypeInferenceFailed indicates a type could not be reconstructed.
	ErrTypeInferenceFailed ErrorCode = "SEM105"
)

// SemanticError represents a semantic analysis error with structured
// information for both terminal output and tooling.
type SemanticError struct {
	Code       ErrorCode          `json:"code"`
	Message    string             `json:"message"`
	Name       string             `json:"name,omitempty"`
	Expected   string             `json:"expected,omitempty"`
	Actual     string             `json:"actual,omitempty"`
	Operator   string             `json:"operator,omitempty"`
	Location   ast.SourceLocation `json:"location"`
	Suggestion string             `json:"suggestion,omitempty"`
}

// Error implements the error interface
func (e *SemanticError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s at %d:%d", e.Code, e.Message, e.Location.Line, e.Location.Column)
	if e.Expected != "" || e.Actual != "" {
		fmt.Fprintf(&b, " (expected %s, got %s)", e.Expected, e.Actual)
	}
	return b.String()
}

// NewDuplicateSymbol creates an error for a redeclared name.
func NewDuplicateSymbol(name string, loc ast.SourceLocation) *SemanticError {
	return &SemanticError{
		Code:     ErrDuplicateSymbol,
		Message:  fmt.Sprintf("symbol %q is already declared in this scope", name),
		Name:     name,
		Location: loc,
	}
}

// NewUndefinedSymbol creates an error for an unbound name reference.
func NewUndefinedSymbol(name string, loc ast.SourceLocation) *SemanticError {
	return &SemanticError{
		Code:     ErrUndefinedSymbol,
		Message:  fmt.Sprintf("undefined symbol: %s", name),
		Name:     name,
		Location: loc,
	}
}

// NewUndefinedType creates an error for an unknown type name.
func NewUndefinedType(name string, loc ast.SourceLocation) *SemanticError {
	return &SemanticError{
		Code:     ErrUndefinedType,
		Message:  fmt.Sprintf("undefined type: %s", name),
		Name:     name,
		Location: loc,
	}
}

// NewInvalidType creates an error for a non-type symbol used as a type.
func NewInvalidType(name string, loc ast.SourceLocation) *SemanticError {
	return &SemanticError{
		Code:     ErrInvalidType,
		Message:  fmt.Sprintf("%s is not a type", name),
		Name:     name,
		Location: loc,
	}
}

// NewInvalidSymbolUsage creates an error for a type symbol in value position.
func NewInvalidSymbolUsage(name string, loc ast.SourceLocation) *SemanticError {
	return &SemanticError{
		Code:     ErrInvalidSymbolUsage,
		Message:  fmt.Sprintf("%s cannot be used as a value", name),
		Name:     name,
		Location: loc,
	}
}

// NewTypeMismatch creates an error for incompatible types.
func NewTypeMismatch(expected, actual Type, loc ast.SourceLocation) *SemanticError {
	return &SemanticError{
		Code:     ErrTypeMismatch,
		Message:  fmt.Sprintf("type mismatch: expected %s, got %s", expected.String(), actual.String()),
		Expected: expected.String(),
		Actual:   actual.String(),
		Location: loc,
	}
}

// NewInvalidBinaryOperation creates an error for a bad binary operation.
func NewInvalidBinaryOperation(op string, left, right Type, loc ast.SourceLocation) *SemanticError {
	return &SemanticError{
		Code:     ErrInvalidBinaryOperation,
		Message:  fmt.Sprintf("invalid binary operation: %s %s %s", left.String(), op, right.String()),
		Operator: op,
		Location: loc,
	}
}

// NewInvalidUnaryOperation creates an error for a bad unary operation.
func NewInvalidUnaryOperation(op string, operand Type, loc ast.SourceLocation) *SemanticError {
	return &SemanticError{
		Code:     ErrInvalidUnaryOperation,
		Message:  fmt.Sprintf("invalid unary operation: %s%s", op, operand.String()),
		Operator: op,
		Actual:   operand.String(),
		Location: loc,
	}
}

// NewUnknownOperator creates an error for an unrecognized operator.
func NewUnknownOperator(op string, loc ast.SourceLocation) *SemanticError {
	return &SemanticError{
		Code:     ErrUnknownOperator,
		Message:  fmt.Sprintf("unknown operator: %s", op),
		Operator: op,
		Location: loc,
	}
}

// NewTypeInferenceFailed creates an error for a failed reconstruction.
func NewTypeInferenceFailed(message string, loc ast.SourceLocation) *SemanticError {
	return &SemanticError{
		Code:     ErrTypeInferenceFailed,
		Message:  message,
		Location: loc,
	}
}
