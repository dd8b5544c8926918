// Package parser transforms a Vela token stream into an Abstract Syntax
// Tree. The parser is recursive-descent with operator precedence climbing
// and panic-free error recovery via synchronization points.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vela-lang/vela/internal/compiler/ast"
	"github.com/vela-lang/vela/internal/compiler/lexer"
)

// ParseError represents a parse failure at a specific token
type ParseError struct {
	Message string
	Token   lexer.Token
}

// Error implements the error interface
func (e ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s",
		e.Token.Range.Start.Line, e.Token.Range.Start.Column, e.Message)
}

// Parser transforms a stream of tokens into an AST
type Parser struct {
	tokens  []lexer.Token
	current int
	errors  []ParseError
}

// New creates a new parser for the given token stream
func New(tokens []lexer.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses the token stream and returns the program and any errors
func (p *Parser) Parse() (*ast.Program, []ParseError) {
	program := &ast.Program{}

	for !p.isAtEnd() {
		if decl := p.parseDeclaration(); decl != nil {
			program.Declarations = append(program.Declarations, decl)
		}
	}

	return program, p.errors
}

// ParseExpression parses a single expression from the stream. Used for
// interpolation segments and by tests.
func (p *Parser) ParseExpression() (ast.Expression, []ParseError) {
	expr := p.parseExpression()
	return expr, p.errors
}

func (p *Parser) parseDeclaration() ast.Declaration {
	switch {
	case p.check(lexer.TOKEN_IMPORT):
		if d := p.parseImport(); d != nil {
			return d
		}
	case p.check(lexer.TOKEN_FN), p.check(lexer.TOKEN_ASYNC):
		if d := p.parseFunction(); d != nil {
			return d
		}
	case p.check(lexer.TOKEN_STRUCT):
		if d := p.parseStruct(); d != nil {
			return d
		}
	case p.check(lexer.TOKEN_ENUM):
		if d := p.parseEnum(); d != nil {
			return d
		}
	case p.check(lexer.TOKEN_TYPE):
		if d := p.parseTypeAlias(); d != nil {
			return d
		}
	case p.check(lexer.TOKEN_STATE), p.check(lexer.TOKEN_CONST):
		if d := p.parseVariable(); d != nil {
			return d
		}
	default:
		p.errorAt(p.peek(), "expected declaration")
		p.synchronize()
	}
	return nil
}

// parseImport parses import a::b::c;
func (p *Parser) parseImport() *ast.ImportDeclaration {
	start := p.advance() // import

	var segments []string
	name, ok := p.expect(lexer.TOKEN_IDENTIFIER, "expected module path after 'import'")
	if !ok {
		p.synchronize()
		return nil
	}
	segments = append(segments, name.Lexeme)
	for p.match(lexer.TOKEN_DOUBLE_COLON) {
		seg, ok := p.expect(lexer.TOKEN_IDENTIFIER, "expected path segment after '::'")
		if !ok {
			p.synchronize()
			return nil
		}
		segments = append(segments, seg.Lexeme)
	}
	p.match(lexer.TOKEN_SEMICOLON)

	return &ast.ImportDeclaration{
		Segments: segments,
		Span:     spanFrom(start, p.previous()),
	}
}

// parseFunction parses [async] fn name(params) [-> T] { body }
func (p *Parser) parseFunction() *ast.FunctionDeclaration {
	start := p.peek()
	isAsync := p.match(lexer.TOKEN_ASYNC)
	if _, ok := p.expect(lexer.TOKEN_FN, "expected 'fn'"); !ok {
		p.synchronize()
		return nil
	}

	name, ok := p.expect(lexer.TOKEN_IDENTIFIER, "expected function name")
	if !ok {
		p.synchronize()
		return nil
	}

	params, ok := p.parseParameterList()
	if !ok {
		p.synchronize()
		return nil
	}

	var returnType ast.TypeAnnotation
	if p.match(lexer.TOKEN_ARROW) {
		returnType = p.parseTypeAnnotation()
		if returnType == nil {
			p.synchronize()
			return nil
		}
	}

	body := p.parseBlock()
	if body == nil {
		p.synchronize()
		return nil
	}

	return &ast.FunctionDeclaration{
		Name:       name.Lexeme,
		Parameters: params,
		ReturnType: returnType,
		Body:       body,
		IsAsync:    isAsync,
		Span:       spanFrom(start, p.previous()),
	}
}

func (p *Parser) parseParameterList() ([]*ast.Parameter, bool) {
	if _, ok := p.expect(lexer.TOKEN_LPAREN, "expected '(' after function name"); !ok {
		return nil, false
	}

	var params []*ast.Parameter
	for !p.check(lexer.TOKEN_RPAREN) && !p.isAtEnd() {
		name, ok := p.expect(lexer.TOKEN_IDENTIFIER, "expected parameter name")
		if !ok {
			return nil, false
		}
		param := &ast.Parameter{Name: name.Lexeme, Span: name.Range}
		if p.match(lexer.TOKEN_COLON) {
			param.Type = p.parseTypeAnnotation()
			if param.Type == nil {
				return nil, false
			}
		}
		params = append(params, param)
		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}

	if _, ok := p.expect(lexer.TOKEN_RPAREN, "expected ')' after parameters"); !ok {
		return nil, false
	}
	return params, true
}

// parseStruct parses struct Name { field: T, ... }
func (p *Parser) parseStruct() *ast.StructDeclaration {
	start := p.advance() // struct
	name, ok := p.expect(lexer.TOKEN_IDENTIFIER, "expected struct name")
	if !ok {
		p.synchronize()
		return nil
	}
	if _, ok := p.expect(lexer.TOKEN_LBRACE, "expected '{' after struct name"); !ok {
		p.synchronize()
		return nil
	}

	var fields []*ast.StructField
	for !p.check(lexer.TOKEN_RBRACE) && !p.isAtEnd() {
		fieldName, ok := p.expect(lexer.TOKEN_IDENTIFIER, "expected field name")
		if !ok {
			p.synchronize()
			return nil
		}
		if _, ok := p.expect(lexer.TOKEN_COLON, "expected ':' after field name"); !ok {
			p.synchronize()
			return nil
		}
		fieldType := p.parseTypeAnnotation()
		if fieldType == nil {
			p.synchronize()
			return nil
		}
		fields = append(fields, &ast.StructField{
			Name: fieldName.Lexeme,
			Type: fieldType,
			Span: fieldName.Range,
		})
		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}

	if _, ok := p.expect(lexer.TOKEN_RBRACE, "expected '}' after struct fields"); !ok {
		p.synchronize()
		return nil
	}

	return &ast.StructDeclaration{
		Name:   name.Lexeme,
		Fields: fields,
		Span:   spanFrom(start, p.previous()),
	}
}

// parseEnum parses enum Name { Variant, Variant(T, ...), ... }
func (p *Parser) parseEnum() *ast.EnumDeclaration {
	start := p.advance() // enum
	name, ok := p.expect(lexer.TOKEN_IDENTIFIER, "expected enum name")
	if !ok {
		p.synchronize()
		return nil
	}
	if _, ok := p.expect(lexer.TOKEN_LBRACE, "expected '{' after enum name"); !ok {
		p.synchronize()
		return nil
	}

	var variants []*ast.EnumVariant
	for !p.check(lexer.TOKEN_RBRACE) && !p.isAtEnd() {
		variantName, ok := p.expect(lexer.TOKEN_IDENTIFIER, "expected variant name")
		if !ok {
			p.synchronize()
			return nil
		}
		variant := &ast.EnumVariant{Name: variantName.Lexeme, Span: variantName.Range}
		if p.match(lexer.TOKEN_LPAREN) {
			for !p.check(lexer.TOKEN_RPAREN) && !p.isAtEnd() {
				payload := p.parseTypeAnnotation()
				if payload == nil {
					p.synchronize()
					return nil
				}
				variant.Payloads = append(variant.Payloads, payload)
				if !p.match(lexer.TOKEN_COMMA) {
					break
				}
			}
			if _, ok := p.expect(lexer.TOKEN_RPAREN, "expected ')' after variant payloads"); !ok {
				p.synchronize()
				return nil
			}
		}
		variants = append(variants, variant)
		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}

	if _, ok := p.expect(lexer.TOKEN_RBRACE, "expected '}' after enum variants"); !ok {
		p.synchronize()
		return nil
	}

	return &ast.EnumDeclaration{
		Name:     name.Lexeme,
		Variants: variants,
		Span:     spanFrom(start, p.previous()),
	}
}

// parseTypeAlias parses type Name = Target;
func (p *Parser) parseTypeAlias() *ast.TypeAliasDeclaration {
	start := p.advance() // type
	name, ok := p.expect(lexer.TOKEN_IDENTIFIER, "expected type alias name")
	if !ok {
		p.synchronize()
		return nil
	}
	if _, ok := p.expect(lexer.TOKEN_ASSIGN, "expected '=' in type alias"); !ok {
		p.synchronize()
		return nil
	}
	target := p.parseTypeAnnotation()
	if target == nil {
		p.synchronize()
		return nil
	}
	p.match(lexer.TOKEN_SEMICOLON)

	return &ast.TypeAliasDeclaration{
		Name:   name.Lexeme,
		Target: target,
		Span:   spanFrom(start, p.previous()),
	}
}

// parseVariable parses state|const name[: T] [= expr];
func (p *Parser) parseVariable() *ast.VariableDeclaration {
	start := p.advance() // state or const
	isState := start.Type == lexer.TOKEN_STATE

	name, ok := p.expect(lexer.TOKEN_IDENTIFIER, "expected variable name")
	if !ok {
		p.synchronize()
		return nil
	}

	var varType ast.TypeAnnotation
	if p.match(lexer.TOKEN_COLON) {
		varType = p.parseTypeAnnotation()
		if varType == nil {
			p.synchronize()
			return nil
		}
	}

	var initializer ast.Expression
	if p.match(lexer.TOKEN_ASSIGN) {
		initializer = p.parseExpression()
		if initializer == nil {
			p.synchronize()
			return nil
		}
	}
	p.match(lexer.TOKEN_SEMICOLON)

	return &ast.VariableDeclaration{
		Name:        name.Lexeme,
		Type:        varType,
		Initializer: initializer,
		IsState:     isState,
		Span:        spanFrom(start, p.previous()),
	}
}

// parseTypeAnnotation parses a syntactic type: named, [T], (T, ...),
// fn(T) -> R, Name<T, ...>, and T? for optional.
func (p *Parser) parseTypeAnnotation() ast.TypeAnnotation {
	base := p.parseTypeAnnotationBase()
	if base == nil {
		return nil
	}
	// Optional suffix binds tightest.
	for p.match(lexer.TOKEN_QUESTION) {
		base = &ast.OptionalType{Inner: base, Span: p.previous().Range}
	}
	return base
}

func (p *Parser) parseTypeAnnotationBase() ast.TypeAnnotation {
	switch {
	case p.check(lexer.TOKEN_LBRACKET):
		start := p.advance()
		elem := p.parseTypeAnnotation()
		if elem == nil {
			return nil
		}
		if _, ok := p.expect(lexer.TOKEN_RBRACKET, "expected ']' in array type"); !ok {
			return nil
		}
		return &ast.ArrayType{Element: elem, Span: spanFrom(start, p.previous())}

	case p.check(lexer.TOKEN_LPAREN):
		start := p.advance()
		var elems []ast.TypeAnnotation
		for !p.check(lexer.TOKEN_RPAREN) && !p.isAtEnd() {
			elem := p.parseTypeAnnotation()
			if elem == nil {
				return nil
			}
			elems = append(elems, elem)
			if !p.match(lexer.TOKEN_COMMA) {
				break
			}
		}
		if _, ok := p.expect(lexer.TOKEN_RPAREN, "expected ')' in tuple type"); !ok {
			return nil
		}
		return &ast.TupleType{Elements: elems, Span: spanFrom(start, p.previous())}

	case p.check(lexer.TOKEN_FN):
		start := p.advance()
		if _, ok := p.expect(lexer.TOKEN_LPAREN, "expected '(' in function type"); !ok {
			return nil
		}
		var params []ast.TypeAnnotation
		for !p.check(lexer.TOKEN_RPAREN) && !p.isAtEnd() {
			param := p.parseTypeAnnotation()
			if param == nil {
				return nil
			}
			params = append(params, param)
			if !p.match(lexer.TOKEN_COMMA) {
				break
			}
		}
		if _, ok := p.expect(lexer.TOKEN_RPAREN, "expected ')' in function type"); !ok {
			return nil
		}
		if _, ok := p.expect(lexer.TOKEN_ARROW, "expected '->' in function type"); !ok {
			return nil
		}
		ret := p.parseTypeAnnotation()
		if ret == nil {
			return nil
		}
		return &ast.FunctionType{Parameters: params, Return: ret, Span: spanFrom(start, p.previous())}

	case p.check(lexer.TOKEN_IDENTIFIER):
		name := p.advance()
		if p.match(lexer.TOKEN_LT) {
			var args []ast.TypeAnnotation
			for !p.check(lexer.TOKEN_GT) && !p.isAtEnd() {
				arg := p.parseTypeAnnotation()
				if arg == nil {
					return nil
				}
				args = append(args, arg)
				if !p.match(lexer.TOKEN_COMMA) {
					break
				}
			}
			if _, ok := p.expect(lexer.TOKEN_GT, "expected '>' in generic type"); !ok {
				return nil
			}
			return &ast.GenericType{Name: name.Lexeme, Arguments: args, Span: spanFrom(name, p.previous())}
		}
		return &ast.NamedType{Name: name.Lexeme, Span: name.Range}

	default:
		p.errorAt(p.peek(), "expected type")
		return nil
	}
}

// Statements

func (p *Parser) parseBlock() *ast.BlockStatement {
	start, ok := p.expect(lexer.TOKEN_LBRACE, "expected '{'")
	if !ok {
		return nil
	}

	var stmts []ast.Statement
	for !p.check(lexer.TOKEN_RBRACE) && !p.isAtEnd() {
		if stmt := p.parseStatement(); stmt != nil {
			stmts = append(stmts, stmt)
		}
	}

	if _, ok := p.expect(lexer.TOKEN_RBRACE, "expected '}'"); !ok {
		return nil
	}
	return &ast.BlockStatement{Statements: stmts, Span: spanFrom(start, p.previous())}
}

func (p *Parser) parseStatement() ast.Statement {
	switch {
	case p.check(lexer.TOKEN_STATE), p.check(lexer.TOKEN_CONST):
		if s := p.parseVariable(); s != nil {
			return s
		}
		return nil
	case p.check(lexer.TOKEN_RETURN):
		if s := p.parseReturn(); s != nil {
			return s
		}
		return nil
	case p.check(lexer.TOKEN_IF):
		if s := p.parseIf(); s != nil {
			return s
		}
		return nil
	case p.check(lexer.TOKEN_LBRACE):
		if s := p.parseBlock(); s != nil {
			return s
		}
		return nil
	default:
		start := p.peek()
		expr := p.parseExpression()
		if expr == nil {
			p.synchronize()
			return nil
		}
		p.match(lexer.TOKEN_SEMICOLON)
		return &ast.ExpressionStatement{Expr: expr, Span: spanFrom(start, p.previous())}
	}
}

func (p *Parser) parseReturn() *ast.ReturnStatement {
	start := p.advance() // return
	var value ast.Expression
	if !p.check(lexer.TOKEN_SEMICOLON) && !p.check(lexer.TOKEN_RBRACE) {
		value = p.parseExpression()
	}
	p.match(lexer.TOKEN_SEMICOLON)
	return &ast.ReturnStatement{Value: value, Span: spanFrom(start, p.previous())}
}

func (p *Parser) parseIf() *ast.IfStatement {
	start := p.advance() // if
	cond := p.parseExpression()
	if cond == nil {
		p.synchronize()
		return nil
	}
	then := p.parseBlock()
	if then == nil {
		p.synchronize()
		return nil
	}

	var elseStmt ast.Statement
	if p.match(lexer.TOKEN_ELSE) {
		if p.check(lexer.TOKEN_IF) {
			if s := p.parseIf(); s != nil {
				elseStmt = s
			}
		} else if s := p.parseBlock(); s != nil {
			elseStmt = s
		}
	}

	return &ast.IfStatement{
		Condition: cond,
		Then:      then,
		Else:      elseStmt,
		Span:      spanFrom(start, p.previous()),
	}
}

// Expressions, precedence climbing from loosest to tightest.

func (p *Parser) parseExpression() ast.Expression {
	return p.parseCoalesce()
}

// parseCoalesce handles ?? formed by two adjacent '?' tokens.
func (p *Parser) parseCoalesce() ast.Expression {
	expr := p.parseLogicalOr()
	if expr == nil {
		return nil
	}
	for p.checkAdjacentQuestions() {
		p.advance() // first ?
		p.advance() // second ?
		right := p.parseLogicalOr()
		if right == nil {
			return nil
		}
		expr = &ast.BinaryExpr{
			Operator: "??",
			Left:     expr,
			Right:    right,
			Span:     lexer.Range{Start: expr.Range().Start, End: right.Range().End},
		}
	}
	return expr
}

// checkAdjacentQuestions detects a '??' spelled as two question tokens with
// no gap between them.
func (p *Parser) checkAdjacentQuestions() bool {
	if !p.check(lexer.TOKEN_QUESTION) || p.current+1 >= len(p.tokens) {
		return false
	}
	next := p.tokens[p.current+1]
	if next.Type != lexer.TOKEN_QUESTION {
		return false
	}
	first := p.tokens[p.current]
	return first.Range.End == next.Range.Start
}

func (p *Parser) parseLogicalOr() ast.Expression {
	return p.parseBinaryLevel(p.parseLogicalAnd, map[lexer.TokenType]string{
		lexer.TOKEN_OR: "||",
	})
}

func (p *Parser) parseLogicalAnd() ast.Expression {
	return p.parseBinaryLevel(p.parseEquality, map[lexer.TokenType]string{
		lexer.TOKEN_AND: "&&",
	})
}

func (p *Parser) parseEquality() ast.Expression {
	return p.parseBinaryLevel(p.parseComparison, map[lexer.TokenType]string{
		lexer.TOKEN_EQ:  "==",
		lexer.TOKEN_NEQ: "!=",
	})
}

func (p *Parser) parseComparison() ast.Expression {
	return p.parseBinaryLevel(p.parseTerm, map[lexer.TokenType]string{
		lexer.TOKEN_LT:  "<",
		lexer.TOKEN_LTE: "<=",
		lexer.TOKEN_GT:  ">",
		lexer.TOKEN_GTE: ">=",
	})
}

func (p *Parser) parseTerm() ast.Expression {
	return p.parseBinaryLevel(p.parseFactor, map[lexer.TokenType]string{
		lexer.TOKEN_PLUS:  "+",
		lexer.TOKEN_MINUS: "-",
	})
}

func (p *Parser) parseFactor() ast.Expression {
	return p.parseBinaryLevel(p.parseUnary, map[lexer.TokenType]string{
		lexer.TOKEN_STAR:    "*",
		lexer.TOKEN_SLASH:   "/",
		lexer.TOKEN_PERCENT: "%",
	})
}

func (p *Parser) parseBinaryLevel(next func() ast.Expression, ops map[lexer.TokenType]string) ast.Expression {
	expr := next()
	if expr == nil {
		return nil
	}
	for {
		op, ok := ops[p.peek().Type]
		if !ok {
			return expr
		}
		p.advance()
		right := next()
		if right == nil {
			return nil
		}
		expr = &ast.BinaryExpr{
			Operator: op,
			Left:     expr,
			Right:    right,
			Span:     lexer.Range{Start: expr.Range().Start, End: right.Range().End},
		}
	}
}

func (p *Parser) parseUnary() ast.Expression {
	switch {
	case p.check(lexer.TOKEN_MINUS), p.check(lexer.TOKEN_BANG):
		op := p.advance()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		operator := "-"
		if op.Type == lexer.TOKEN_BANG {
			operator = "!"
		}
		return &ast.UnaryExpr{
			Operator: operator,
			Operand:  operand,
			Span:     lexer.Range{Start: op.Range.Start, End: operand.Range().End},
		}
	case p.check(lexer.TOKEN_AWAIT):
		start := p.advance()
		inner := p.parseUnary()
		if inner == nil {
			return nil
		}
		return &ast.AwaitExpr{Expr: inner, Span: lexer.Range{Start: start.Range.Start, End: inner.Range().End}}
	case p.check(lexer.TOKEN_DISPATCH):
		start := p.advance()
		action := p.parseUnary()
		if action == nil {
			return nil
		}
		return &ast.DispatchExpr{Action: action, Span: lexer.Range{Start: start.Range.Start, End: action.Range().End}}
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePostfix() ast.Expression {
	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}

	for {
		switch {
		case p.check(lexer.TOKEN_LPAREN):
			p.advance()
			var args []ast.Expression
			for !p.check(lexer.TOKEN_RPAREN) && !p.isAtEnd() {
				arg := p.parseExpression()
				if arg == nil {
					return nil
				}
				args = append(args, arg)
				if !p.match(lexer.TOKEN_COMMA) {
					break
				}
			}
			if _, ok := p.expect(lexer.TOKEN_RPAREN, "expected ')' after arguments"); !ok {
				return nil
			}
			expr = &ast.CallExpr{
				Callee:    expr,
				Arguments: args,
				Span:      lexer.Range{Start: expr.Range().Start, End: p.previous().Range.End},
			}

		case p.check(lexer.TOKEN_DOT):
			p.advance()
			member, ok := p.expect(lexer.TOKEN_IDENTIFIER, "expected member name after '.'")
			if !ok {
				return nil
			}
			expr = &ast.MemberAccessExpr{
				Object: expr,
				Member: member.Lexeme,
				Span:   lexer.Range{Start: expr.Range().Start, End: member.Range.End},
			}

		case p.check(lexer.TOKEN_LBRACKET):
			p.advance()
			index := p.parseExpression()
			if index == nil {
				return nil
			}
			if _, ok := p.expect(lexer.TOKEN_RBRACKET, "expected ']' after index"); !ok {
				return nil
			}
			expr = &ast.IndexAccessExpr{
				Object: expr,
				Index:  index,
				Span:   lexer.Range{Start: expr.Range().Start, End: p.previous().Range.End},
			}

		default:
			return expr
		}
	}
}

//nolint:gocyclo,cyclop // Primary expression dispatch covers every literal form
func (p *Parser) parsePrimary() ast.Expression {
	switch {
	case p.check(lexer.TOKEN_NUMBER_LITERAL):
		tok := p.advance()
		return numberLiteral(tok, &p.errors)

	case p.check(lexer.TOKEN_STRING_LITERAL):
		tok := p.advance()
		return p.stringLiteral(tok)

	case p.check(lexer.TOKEN_BOOL_LITERAL):
		tok := p.advance()
		value, _ := tok.Literal.(bool)
		return &ast.LiteralExpr{Kind: ast.LiteralBool, Value: value, Span: tok.Range}

	case p.check(lexer.TOKEN_FN):
		return p.parseLambda()

	case p.check(lexer.TOKEN_MATCH):
		return p.parseMatch()

	case p.check(lexer.TOKEN_IDENTIFIER):
		tok := p.advance()
		if tok.Lexeme == "none" {
			return &ast.LiteralExpr{Kind: ast.LiteralNone, Span: tok.Range}
		}
		if p.checkStructLiteral() {
			return p.parseStructLiteral(tok)
		}
		return &ast.IdentifierExpr{Name: tok.Lexeme, Span: tok.Range}

	case p.check(lexer.TOKEN_LBRACKET):
		start := p.advance()
		var elems []ast.Expression
		for !p.check(lexer.TOKEN_RBRACKET) && !p.isAtEnd() {
			elem := p.parseExpression()
			if elem == nil {
				return nil
			}
			elems = append(elems, elem)
			if !p.match(lexer.TOKEN_COMMA) {
				break
			}
		}
		if _, ok := p.expect(lexer.TOKEN_RBRACKET, "expected ']' after array elements"); !ok {
			return nil
		}
		return &ast.ArrayLiteralExpr{Elements: elems, Span: spanFrom(start, p.previous())}

	case p.check(lexer.TOKEN_LPAREN):
		start := p.advance()
		first := p.parseExpression()
		if first == nil {
			return nil
		}
		if p.match(lexer.TOKEN_COMMA) {
			elems := []ast.Expression{first}
			for !p.check(lexer.TOKEN_RPAREN) && !p.isAtEnd() {
				elem := p.parseExpression()
				if elem == nil {
					return nil
				}
				elems = append(elems, elem)
				if !p.match(lexer.TOKEN_COMMA) {
					break
				}
			}
			if _, ok := p.expect(lexer.TOKEN_RPAREN, "expected ')' after tuple elements"); !ok {
				return nil
			}
			return &ast.TupleLiteralExpr{Elements: elems, Span: spanFrom(start, p.previous())}
		}
		if _, ok := p.expect(lexer.TOKEN_RPAREN, "expected ')' after expression"); !ok {
			return nil
		}
		return &ast.ParenExpr{Expr: first, Span: spanFrom(start, p.previous())}

	default:
		p.errorAt(p.peek(), "expected expression")
		return nil
	}
}

// checkStructLiteral peeks past a '{' for the ident ':' shape that marks a
// struct literal rather than a block.
func (p *Parser) checkStructLiteral() bool {
	if !p.check(lexer.TOKEN_LBRACE) || p.current+2 >= len(p.tokens) {
		return false
	}
	return p.tokens[p.current+1].Type == lexer.TOKEN_IDENTIFIER &&
		p.tokens[p.current+2].Type == lexer.TOKEN_COLON
}

func (p *Parser) parseStructLiteral(name lexer.Token) ast.Expression {
	p.advance() // {
	var fields []*ast.StructLiteralField
	for !p.check(lexer.TOKEN_RBRACE) && !p.isAtEnd() {
		fieldName, ok := p.expect(lexer.TOKEN_IDENTIFIER, "expected field name in struct literal")
		if !ok {
			return nil
		}
		if _, ok := p.expect(lexer.TOKEN_COLON, "expected ':' in struct literal"); !ok {
			return nil
		}
		value := p.parseExpression()
		if value == nil {
			return nil
		}
		fields = append(fields, &ast.StructLiteralField{
			Name:  fieldName.Lexeme,
			Value: value,
			Span:  fieldName.Range,
		})
		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}
	if _, ok := p.expect(lexer.TOKEN_RBRACE, "expected '}' after struct literal"); !ok {
		return nil
	}
	return &ast.StructLiteralExpr{
		Name:   name.Lexeme,
		Fields: fields,
		Span:   spanFrom(name, p.previous()),
	}
}

// parseLambda parses fn(params) => expr | fn(params) { block }
func (p *Parser) parseLambda() ast.Expression {
	start := p.advance() // fn
	params, ok := p.parseParameterList()
	if !ok {
		return nil
	}

	if p.match(lexer.TOKEN_DOUBLE_ARROW) {
		body := p.parseExpression()
		if body == nil {
			return nil
		}
		return &ast.LambdaExpr{
			Parameters: params,
			Body:       body,
			Span:       lexer.Range{Start: start.Range.Start, End: body.Range().End},
		}
	}

	block := p.parseBlock()
	if block == nil {
		return nil
	}
	return &ast.LambdaExpr{
		Parameters: params,
		Block:      block,
		Span:       spanFrom(start, p.previous()),
	}
}

// parseMatch parses match value { pattern => expr, ... }
func (p *Parser) parseMatch() ast.Expression {
	start := p.advance() // match
	value := p.parseExpression()
	if value == nil {
		return nil
	}
	if _, ok := p.expect(lexer.TOKEN_LBRACE, "expected '{' after match value"); !ok {
		return nil
	}

	var arms []*ast.MatchArm
	for !p.check(lexer.TOKEN_RBRACE) && !p.isAtEnd() {
		pattern := p.parseExpression()
		if pattern == nil {
			return nil
		}
		if _, ok := p.expect(lexer.TOKEN_DOUBLE_ARROW, "expected '=>' after match pattern"); !ok {
			return nil
		}
		body := p.parseExpression()
		if body == nil {
			return nil
		}
		arms = append(arms, &ast.MatchArm{
			Pattern: pattern,
			Body:    body,
			Span:    lexer.Range{Start: pattern.Range().Start, End: body.Range().End},
		})
		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}

	if _, ok := p.expect(lexer.TOKEN_RBRACE, "expected '}' after match arms"); !ok {
		return nil
	}
	return &ast.MatchExpr{Value: value, Arms: arms, Span: spanFrom(start, p.previous())}
}

// numberLiteral converts a number token into a literal node. A lexeme with
// a decimal point is a float literal.
func numberLiteral(tok lexer.Token, errs *[]ParseError) ast.Expression {
	raw, _ := tok.Literal.(string)
	if raw == "" {
		raw = tok.Lexeme
	}
	if strings.Contains(raw, ".") {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			*errs = append(*errs, ParseError{Message: fmt.Sprintf("invalid float literal %q", raw), Token: tok})
			return nil
		}
		return &ast.LiteralExpr{Kind: ast.LiteralFloat, Value: value, Span: tok.Range}
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		*errs = append(*errs, ParseError{Message: fmt.Sprintf("invalid integer literal %q", raw), Token: tok})
		return nil
	}
	return &ast.LiteralExpr{Kind: ast.LiteralNumber, Value: value, Span: tok.Range}
}

// stringLiteral converts a string token into either a plain literal or an
// interpolation node when the value contains ${...} segments.
func (p *Parser) stringLiteral(tok lexer.Token) ast.Expression {
	value, _ := tok.Literal.(string)
	if !strings.Contains(value, "${") {
		return &ast.LiteralExpr{Kind: ast.LiteralString, Value: value, Span: tok.Range}
	}

	var parts []ast.InterpolationPart
	rest := value
	for {
		idx := strings.Index(rest, "${")
		if idx < 0 {
			if rest != "" {
				parts = append(parts, ast.InterpolationPart{Text: rest})
			}
			break
		}
		if idx > 0 {
			parts = append(parts, ast.InterpolationPart{Text: rest[:idx]})
		}
		rest = rest[idx+2:]
		end := strings.Index(rest, "}")
		if end < 0 {
			p.errorAt(tok, "unterminated interpolation segment")
			return nil
		}
		segment := rest[:end]
		rest = rest[end+1:]

		expr := p.parseInterpolationSegment(segment, tok)
		if expr == nil {
			return nil
		}
		parts = append(parts, ast.InterpolationPart{Expr: expr})
	}

	return &ast.StringInterpolationExpr{Parts: parts, Span: tok.Range}
}

// parseInterpolationSegment lexes and parses one embedded expression.
func (p *Parser) parseInterpolationSegment(segment string, tok lexer.Token) ast.Expression {
	lex := lexer.New(segment, "<interpolation>")
	tokens, lexErrs := lex.ScanTokens()
	if len(lexErrs) > 0 {
		p.errorAt(tok, fmt.Sprintf("invalid interpolation expression: %s", lexErrs[0].Message))
		return nil
	}
	sub := New(tokens)
	expr, errs := sub.ParseExpression()
	if len(errs) > 0 || expr == nil {
		p.errorAt(tok, "invalid interpolation expression")
		return nil
	}
	return expr
}

// Token stream helpers

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == lexer.TOKEN_EOF
}

func (p *Parser) peek() lexer.Token {
	if p.current >= len(p.tokens) {
		return lexer.Token{Type: lexer.TOKEN_EOF}
	}
	return p.tokens[p.current]
}

func (p *Parser) previous() lexer.Token {
	if p.current == 0 {
		return p.tokens[0]
	}
	return p.tokens[p.current-1]
}

func (p *Parser) advance() lexer.Token {
	tok := p.peek()
	if !p.isAtEnd() {
		p.current++
	}
	return tok
}

func (p *Parser) check(t lexer.TokenType) bool {
	return p.peek().Type == t
}

func (p *Parser) match(t lexer.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(t lexer.TokenType, message string) (lexer.Token, bool) {
	if p.check(t) {
		return p.advance(), true
	}
	p.errorAt(p.peek(), message)
	return lexer.Token{}, false
}

func (p *Parser) errorAt(tok lexer.Token, message string) {
	p.errors = append(p.errors, ParseError{Message: message, Token: tok})
}

// synchronize skips tokens until a likely declaration or statement start.
func (p *Parser) synchronize() {
	for !p.isAtEnd() {
		if p.previous().Type == lexer.TOKEN_SEMICOLON {
			return
		}
		switch p.peek().Type {
		case lexer.TOKEN_FN, lexer.TOKEN_STRUCT, lexer.TOKEN_ENUM, lexer.TOKEN_TYPE,
			lexer.TOKEN_STATE, lexer.TOKEN_CONST, lexer.TOKEN_IMPORT, lexer.TOKEN_RETURN:
			return
		}
		p.advance()
	}
}

// spanFrom combines the start of one token with the end of another.
func spanFrom(start, end lexer.Token) lexer.Range {
	return lexer.Range{Start: start.Range.Start, End: end.Range.End}
}
