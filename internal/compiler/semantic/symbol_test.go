package semantic

import (
	"fmt"
	"testing"

	"github.com/vela-lang/vela/internal/compiler/ast"
)

func variable(name string, ty Type) *VariableSymbol {
	return &VariableSymbol{Name: name, Type: ty, Loc: ast.SourceLocation{Line: 1, Column: 1}}
}

func TestNewSymbolTableHasGlobalScope(t *testing.T) {
	st := NewSymbolTable()
	if st.ScopeCount() != 1 {
		t.Fatalf("expected 1 scope, got %d", st.ScopeCount())
	}
	if st.Current() != st.Global() {
		t.Error("cursor must start at the global scope")
	}
	if st.ScopeKindOf(st.Global()) != ScopeGlobal {
		t.Error("scope 0 must be the global scope")
	}
}

func TestCreateScopeIdsAreStable(t *testing.T) {
	st := NewSymbolTable()
	a := st.CreateScope(st.Global(), ScopeFunction)
	b := st.CreateScope(a, ScopeBlock)

	if a == b || a == st.Global() {
		t.Error("scope ids must be distinct")
	}
	if st.ScopeKindOf(a) != ScopeFunction || st.ScopeKindOf(b) != ScopeBlock {
		t.Error("scope kinds must be preserved")
	}
}

func TestDeclareAndLookup(t *testing.T) {
	st := NewSymbolTable()
	if err := st.Declare("x", variable("x", &PrimitiveType{Name: typeNumber})); err != nil {
		t.Fatalf("declare: %v", err)
	}

	sym, ok := st.Lookup("x")
	if !ok {
		t.Fatal("expected x to resolve")
	}
	if sym.SymbolName() != "x" {
		t.Errorf("got %q", sym.SymbolName())
	}
}

func TestDuplicateDeclaration(t *testing.T) {
	st := NewSymbolTable()
	if err := st.Declare("x", variable("x", &PrimitiveType{Name: typeNumber})); err != nil {
		t.Fatalf("first declare: %v", err)
	}
	err := st.Declare("x", variable("x", &PrimitiveType{Name: typeString}))
	if err == nil {
		t.Fatal("expected DuplicateSymbol")
	}
	if err.Code != ErrDuplicateSymbol {
		t.Errorf("expected %s, got %s", ErrDuplicateSymbol, err.Code)
	}
}

func TestLookupWalksParentChain(t *testing.T) {
	st := NewSymbolTable()
	if err := st.Declare("global_var", variable("global_var", &PrimitiveType{Name: typeNumber})); err != nil {
		t.Fatal(err)
	}

	fn := st.CreateScope(st.Global(), ScopeFunction)
	st.Enter(fn)
	block := st.CreateScope(fn, ScopeBlock)
	st.Enter(block)

	if _, ok := st.Lookup("global_var"); !ok {
		t.Error("lookup must walk to the global scope")
	}

	// Shadowing in the inner scope wins.
	if err := st.Declare("global_var", variable("global_var", &PrimitiveType{Name: typeString})); err != nil {
		t.Fatal(err)
	}
	sym, _ := st.Lookup("global_var")
	v := sym.(*VariableSymbol)
	if v.Type.String() != typeString {
		t.Errorf("expected shadowed String, got %s", v.Type)
	}
}

func TestSameNameInSiblingScopes(t *testing.T) {
	st := NewSymbolTable()
	a := st.CreateScope(st.Global(), ScopeBlock)
	b := st.CreateScope(st.Global(), ScopeBlock)

	st.Enter(a)
	if err := st.Declare("x", variable("x", &PrimitiveType{Name: typeNumber})); err != nil {
		t.Fatal(err)
	}
	st.Leave()

	st.Enter(b)
	if err := st.Declare("x", variable("x", &PrimitiveType{Name: typeBool})); err != nil {
		t.Errorf("sibling scopes must allow the same name: %v", err)
	}
}

func TestEnterAfterLeave(t *testing.T) {
	// Scopes form a tree, not a stack: re-entering a left scope is allowed.
	st := NewSymbolTable()
	fn := st.CreateScope(st.Global(), ScopeFunction)

	st.Enter(fn)
	if err := st.Declare("local", variable("local", &PrimitiveType{Name: typeNumber})); err != nil {
		t.Fatal(err)
	}
	st.Leave()

	if _, ok := st.Lookup("local"); ok {
		t.Error("local must not be visible from the global scope")
	}

	st.Enter(fn)
	if _, ok := st.Lookup("local"); !ok {
		t.Error("re-entering the scope must restore visibility")
	}
}

func TestLeaveGlobalIsNoOp(t *testing.T) {
	st := NewSymbolTable()
	st.Leave()
	if st.Current() != st.Global() {
		t.Error("leaving the global scope must keep the cursor there")
	}
}

// TestSymbolUniquenessInvariant checks that after a declaration pass, every
// scope binds each name at most once.
func TestSymbolUniquenessInvariant(t *testing.T) {
	st := NewSymbolTable()
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("sym%d", i)
		if err := st.Declare(name, variable(name, &PrimitiveType{Name: typeNumber})); err != nil {
			t.Fatal(err)
		}
	}
	seen := make(map[string]int)
	for name := range st.SymbolsIn(st.Global()) {
		seen[name]++
	}
	for name, count := range seen {
		if count != 1 {
			t.Errorf("name %q bound %d times", name, count)
		}
	}
}
