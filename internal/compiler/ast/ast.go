// Package ast defines the Abstract Syntax Tree (AST) node types for the Vela
// programming language: top-level declarations, statements, and the type
// annotation forms the semantic analyzer resolves.
package ast

import "github.com/vela-lang/vela/internal/compiler/lexer"

// SourceLocation tracks the position of an AST node in source code
type SourceLocation struct {
	Line   int `json:"line"`   // Line number (1-indexed)
	Column int `json:"column"` // Column number (1-indexed)
	Offset int `json:"offset"` // Byte offset into the source
}

// LocationFromRange derives a SourceLocation from the start of a range.
func LocationFromRange(r lexer.Range) SourceLocation {
	return SourceLocation{Line: r.Start.Line, Column: r.Start.Column}
}

// Node is the base interface for all AST nodes
type Node interface {
	Range() lexer.Range
	node()
}

// Program is the root node of the AST: an ordered sequence of declarations.
type Program struct {
	Declarations []Declaration
}

func (p *Program) node() {}

// Range returns the source span of the program.
func (p *Program) Range() lexer.Range {
	if len(p.Declarations) > 0 {
		return p.Declarations[0].Range()
	}
	return lexer.Range{
		Start: lexer.Position{Line: 1, Column: 1},
		End:   lexer.Position{Line: 1, Column: 1},
	}
}

// Declaration is a top-level declaration node
type Declaration interface {
	Node
	declaration()
}

// Parameter is a function or lambda parameter
type Parameter struct {
	Name string
	Type TypeAnnotation // nil when unannotated (lambdas only)
	Span lexer.Range
}

// FunctionDeclaration represents fn name(params) -> ret { body }
type FunctionDeclaration struct {
	Name       string
	Parameters []*Parameter
	ReturnType TypeAnnotation // nil means void
	Body       *BlockStatement
	IsAsync    bool
	Span       lexer.Range
}

func (f *FunctionDeclaration) node()        {}
func (f *FunctionDeclaration) declaration() {}

// Range returns the source span of the declaration.
func (f *FunctionDeclaration) Range() lexer.Range { return f.Span }

// StructField is a field in a struct declaration
type StructField struct {
	Name string
	Type TypeAnnotation
	Span lexer.Range
}

// StructDeclaration represents struct Name { fields }
type StructDeclaration struct {
	Name   string
	Fields []*StructField
	Span   lexer.Range
}

func (s *StructDeclaration) node()        {}
func (s *StructDeclaration) declaration() {}

// Range returns the source span of the declaration.
func (s *StructDeclaration) Range() lexer.Range { return s.Span }

// EnumVariant is a single variant of an enum declaration
type EnumVariant struct {
	Name     string
	Payloads []TypeAnnotation // payload types, empty for bare variants
	Span     lexer.Range
}

// EnumDeclaration represents enum Name { variants }
type EnumDeclaration struct {
	Name     string
	Variants []*EnumVariant
	Span     lexer.Range
}

func (e *EnumDeclaration) node()        {}
func (e *EnumDeclaration) declaration() {}

// Range returns the source span of the declaration.
func (e *EnumDeclaration) Range() lexer.Range { return e.Span }

// TypeAliasDeclaration represents type Name = Target
type TypeAliasDeclaration struct {
	Name   string
	Target TypeAnnotation
	Span   lexer.Range
}

func (t *TypeAliasDeclaration) node()        {}
func (t *TypeAliasDeclaration) declaration() {}

// Range returns the source span of the declaration.
func (t *TypeAliasDeclaration) Range() lexer.Range { return t.Span }

// VariableDeclaration represents state/const name[: type] [= initializer]
type VariableDeclaration struct {
	Name        string
	Type        TypeAnnotation // nil means inferred from the initializer
	Initializer Expression     // nil means uninitialized
	IsState     bool           // state (mutable) vs const
	Span        lexer.Range
}

func (v *VariableDeclaration) node()        {}
func (v *VariableDeclaration) declaration() {}
func (v *VariableDeclaration) statement()   {}

// Range returns the source span of the declaration.
func (v *VariableDeclaration) Range() lexer.Range { return v.Span }

// ImportDeclaration represents import path::to::module;
type ImportDeclaration struct {
	// Path segments, e.g. ["app", "models", "user"]
	Segments []string
	Span     lexer.Range
}

func (i *ImportDeclaration) node()        {}
func (i *ImportDeclaration) declaration() {}

// Range returns the source span of the declaration.
func (i *ImportDeclaration) Range() lexer.Range { return i.Span }

// Statement is a statement node inside a function body
type Statement interface {
	Node
	statement()
}

// BlockStatement is a brace-delimited list of statements
type BlockStatement struct {
	Statements []Statement
	Span       lexer.Range
}

func (b *BlockStatement) node()      {}
func (b *BlockStatement) statement() {}

// Range returns the source span of the statement.
func (b *BlockStatement) Range() lexer.Range { return b.Span }

// ExpressionStatement wraps an expression used as a statement
type ExpressionStatement struct {
	Expr Expression
	Span lexer.Range
}

func (e *ExpressionStatement) node()      {}
func (e *ExpressionStatement) statement() {}

// Range returns the source span of the statement.
func (e *ExpressionStatement) Range() lexer.Range { return e.Span }

// ReturnStatement represents return [value];
type ReturnStatement struct {
	Value Expression // nil for bare return
	Span  lexer.Range
}

func (r *ReturnStatement) node()      {}
func (r *ReturnStatement) statement() {}

// Range returns the source span of the statement.
func (r *ReturnStatement) Range() lexer.Range { return r.Span }

// IfStatement represents if cond { then } [else { else }]
type IfStatement struct {
	Condition Expression
	Then      *BlockStatement
	Else      Statement // *BlockStatement or *IfStatement, nil when absent
	Span      lexer.Range
}

func (i *IfStatement) node()      {}
func (i *IfStatement) statement() {}

// Range returns the source span of the statement.
func (i *IfStatement) Range() lexer.Range { return i.Span }

// TypeAnnotation is a syntactic type written in source
type TypeAnnotation interface {
	Node
	typeAnnotation()
}

// NamedType is a type referenced by name: Number, String, Point, ...
type NamedType struct {
	Name string
	Span lexer.Range
}

func (n *NamedType) node()           {}
func (n *NamedType) typeAnnotation() {}

// Range returns the source span of the annotation.
func (n *NamedType) Range() lexer.Range { return n.Span }

// ArrayType is [T]
type ArrayType struct {
	Element TypeAnnotation
	Span    lexer.Range
}

func (a *ArrayType) node()           {}
func (a *ArrayType) typeAnnotation() {}

// Range returns the source span of the annotation.
func (a *ArrayType) Range() lexer.Range { return a.Span }

// TupleType is (T1, T2, ...)
type TupleType struct {
	Elements []TypeAnnotation
	Span     lexer.Range
}

func (t *TupleType) node()           {}
func (t *TupleType) typeAnnotation() {}

// Range returns the source span of the annotation.
func (t *TupleType) Range() lexer.Range { return t.Span }

// FunctionType is fn(T1, T2) -> R
type FunctionType struct {
	Parameters []TypeAnnotation
	Return     TypeAnnotation
	Span       lexer.Range
}

func (f *FunctionType) node()           {}
func (f *FunctionType) typeAnnotation() {}

// Range returns the source span of the annotation.
func (f *FunctionType) Range() lexer.Range { return f.Span }

// GenericType is Name<T1, T2, ...>
type GenericType struct {
	Name      string
	Arguments []TypeAnnotation
	Span      lexer.Range
}

func (g *GenericType) node()           {}
func (g *GenericType) typeAnnotation() {}

// Range returns the source span of the annotation.
func (g *GenericType) Range() lexer.Range { return g.Span }

// OptionalType is T?
type OptionalType struct {
	Inner TypeAnnotation
	Span  lexer.Range
}

func (o *OptionalType) node()           {}
func (o *OptionalType) typeAnnotation() {}

// Range returns the source span of the annotation.
func (o *OptionalType) Range() lexer.Range { return o.Span }
