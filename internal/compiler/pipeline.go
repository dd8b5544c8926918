// Package compiler wires the pipeline stages into a single-module compile
// function: source bytes -> tokens -> AST -> resolved symbols and checked
// types -> serialized bytecode.
package compiler

import (
	"context"
	"fmt"

	"github.com/vela-lang/vela/internal/compiler/codegen"
	"github.com/vela-lang/vela/internal/compiler/lexer"
	"github.com/vela-lang/vela/internal/compiler/parser"
	"github.com/vela-lang/vela/internal/compiler/semantic"
)

// Compile runs the full pipeline over one source file and returns the
// serialized bytecode artifact. Each call owns its lexer, parser, analyzer,
// and generator, so compiles of different files may run concurrently.
func Compile(ctx context.Context, path string, source []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lex := lexer.New(string(source), path)
	tokens, lexErrors := lex.ScanTokens()
	if len(lexErrors) > 0 {
		return nil, fmt.Errorf("%s: %w", path, lexErrors[0])
	}

	p := parser.New(tokens)
	program, parseErrors := p.Parse()
	if len(parseErrors) > 0 {
		return nil, fmt.Errorf("%s: %w", path, parseErrors[0])
	}

	analyzer := semantic.NewAnalyzer()
	if err := analyzer.Analyze(program); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gen := codegen.NewGenerator()
	bc, err := gen.GenerateProgram(program, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return bc.Serialize(), nil
}
