package ast

import "github.com/vela-lang/vela/internal/compiler/lexer"

// Expression is an expression node
type Expression interface {
	Node
	expression()
}

// LiteralKind identifies the literal category carried by a LiteralExpr
type LiteralKind string

const (
	// LiteralNumber is an integer literal.
	LiteralNumber LiteralKind = "number"
	// LiteralFloat is a floating-point literal.
	LiteralFloat LiteralKind = "float"
	// LiteralString is a string literal.
	LiteralString LiteralKind = "string"
	// LiteralBool is a boolean literal.
	LiteralBool LiteralKind = "bool"
	// LiteralNone is the none/unit literal.
	LiteralNone LiteralKind = "none"
)

// LiteralExpr is a literal value: 42, 3.14, "text", true, none
type LiteralExpr struct {
	Kind  LiteralKind
	Value interface{} // int64, float64, string, bool, or nil for none
	Span  lexer.Range
}

func (l *LiteralExpr) node()       {}
func (l *LiteralExpr) expression() {}

// Range returns the source span of the expression.
func (l *LiteralExpr) Range() lexer.Range { return l.Span }

// IdentifierExpr is a bare name reference
type IdentifierExpr struct {
	Name string
	Span lexer.Range
}

func (i *IdentifierExpr) node()       {}
func (i *IdentifierExpr) expression() {}

// Range returns the source span of the expression.
func (i *IdentifierExpr) Range() lexer.Range { return i.Span }

// BinaryExpr is left op right, including logical && || and coalescing ??
type BinaryExpr struct {
	Operator string
	Left     Expression
	Right    Expression
	Span     lexer.Range
}

func (b *BinaryExpr) node()       {}
func (b *BinaryExpr) expression() {}

// Range returns the source span of the expression.
func (b *BinaryExpr) Range() lexer.Range { return b.Span }

// UnaryExpr is op operand: -x, !x
type UnaryExpr struct {
	Operator string
	Operand  Expression
	Span     lexer.Range
}

func (u *UnaryExpr) node()       {}
func (u *UnaryExpr) expression() {}

// Range returns the source span of the expression.
func (u *UnaryExpr) Range() lexer.Range { return u.Span }

// CallExpr is callee(args)
type CallExpr struct {
	Callee    Expression
	Arguments []Expression
	Span      lexer.Range
}

func (c *CallExpr) node()       {}
func (c *CallExpr) expression() {}

// Range returns the source span of the expression.
func (c *CallExpr) Range() lexer.Range { return c.Span }

// MemberAccessExpr is object.member
type MemberAccessExpr struct {
	Object Expression
	Member string
	Span   lexer.Range
}

func (m *MemberAccessExpr) node()       {}
func (m *MemberAccessExpr) expression() {}

// Range returns the source span of the expression.
func (m *MemberAccessExpr) Range() lexer.Range { return m.Span }

// IndexAccessExpr is object[index]
type IndexAccessExpr struct {
	Object Expression
	Index  Expression
	Span   lexer.Range
}

func (i *IndexAccessExpr) node()       {}
func (i *IndexAccessExpr) expression() {}

// Range returns the source span of the expression.
func (i *IndexAccessExpr) Range() lexer.Range { return i.Span }

// ArrayLiteralExpr is [e1, e2, ...]
type ArrayLiteralExpr struct {
	Elements []Expression
	Span     lexer.Range
}

func (a *ArrayLiteralExpr) node()       {}
func (a *ArrayLiteralExpr) expression() {}

// Range returns the source span of the expression.
func (a *ArrayLiteralExpr) Range() lexer.Range { return a.Span }

// TupleLiteralExpr is (e1, e2, ...)
type TupleLiteralExpr struct {
	Elements []Expression
	Span     lexer.Range
}

func (t *TupleLiteralExpr) node()       {}
func (t *TupleLiteralExpr) expression() {}

// Range returns the source span of the expression.
func (t *TupleLiteralExpr) Range() lexer.Range { return t.Span }

// StructLiteralField is one field: value pair in a struct literal
type StructLiteralField struct {
	Name  string
	Value Expression
	Span  lexer.Range
}

// StructLiteralExpr is Name { field: value, ... }
type StructLiteralExpr struct {
	Name   string // empty for anonymous record literals
	Fields []*StructLiteralField
	Span   lexer.Range
}

func (s *StructLiteralExpr) node()       {}
func (s *StructLiteralExpr) expression() {}

// Range returns the source span of the expression.
func (s *StructLiteralExpr) Range() lexer.Range { return s.Span }

// LambdaExpr is fn(params) => body
type LambdaExpr struct {
	Parameters []*Parameter
	// Exactly one of Body / Block is set.
	Body  Expression
	Block *BlockStatement
	Span  lexer.Range
}

func (l *LambdaExpr) node()       {}
func (l *LambdaExpr) expression() {}

// Range returns the source span of the expression.
func (l *LambdaExpr) Range() lexer.Range { return l.Span }

// IfExpr is if cond { then } else { else } in expression position
type IfExpr struct {
	Condition Expression
	Then      Expression
	Else      Expression
	Span      lexer.Range
}

func (i *IfExpr) node()       {}
func (i *IfExpr) expression() {}

// Range returns the source span of the expression.
func (i *IfExpr) Range() lexer.Range { return i.Span }

// MatchArm is one pattern => body arm of a match expression
type MatchArm struct {
	// Pattern is intentionally shallow: an identifier binds, a literal
	// compares. Exhaustiveness checking is a separate pass.
	Pattern Expression
	Body    Expression
	Span    lexer.Range
}

// MatchExpr is match value { arms }
type MatchExpr struct {
	Value Expression
	Arms  []*MatchArm
	Span  lexer.Range
}

func (m *MatchExpr) node()       {}
func (m *MatchExpr) expression() {}

// Range returns the source span of the expression.
func (m *MatchExpr) Range() lexer.Range { return m.Span }

// InterpolationPart is one segment of an interpolated string: either raw
// text or an embedded expression.
type InterpolationPart struct {
	Text string     // raw text segment, valid when Expr is nil
	Expr Expression // expression segment
}

// StringInterpolationExpr is a string literal containing ${...} segments
type StringInterpolationExpr struct {
	Parts []InterpolationPart
	Span  lexer.Range
}

func (s *StringInterpolationExpr) node()       {}
func (s *StringInterpolationExpr) expression() {}

// Range returns the source span of the expression.
func (s *StringInterpolationExpr) Range() lexer.Range { return s.Span }

// AwaitExpr is await expr
type AwaitExpr struct {
	Expr Expression
	Span lexer.Range
}

func (a *AwaitExpr) node()       {}
func (a *AwaitExpr) expression() {}

// Range returns the source span of the expression.
func (a *AwaitExpr) Range() lexer.Range { return a.Span }

// DispatchExpr is dispatch action
type DispatchExpr struct {
	Action Expression
	Span   lexer.Range
}

func (d *DispatchExpr) node()       {}
func (d *DispatchExpr) expression() {}

// Range returns the source span of the expression.
func (d *DispatchExpr) Range() lexer.Range { return d.Span }

// ParenExpr is (expr), kept so ranges survive
type ParenExpr struct {
	Expr Expression
	Span lexer.Range
}

func (p *ParenExpr) node()       {}
func (p *ParenExpr) expression() {}

// Range returns the source span of the expression.
func (p *ParenExpr) Range() lexer.Range { return p.Span }
