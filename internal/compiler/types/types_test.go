package types

import (
	"testing"
)

func TestBasicEquality(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Type
		equal bool
	}{
		{"int == int", Int, Int, true},
		{"bool == bool", Bool, Bool, true},
		{"int != bool", Int, Bool, false},
		{"unit != string", Unit, String, false},
		{"float == float", Float, Float, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equals(tt.b); got != tt.equal {
				t.Errorf("Equals = %v, want %v", got, tt.equal)
			}
		})
	}
}

func TestStructuralEquality(t *testing.T) {
	fnA := &Function{Params: []Type{Int, Bool}, Return: String}
	fnB := &Function{Params: []Type{Int, Bool}, Return: String}
	fnC := &Function{Params: []Type{Int}, Return: String}

	if !fnA.Equals(fnB) {
		t.Error("identical function types must be equal")
	}
	if fnA.Equals(fnC) {
		t.Error("function types with different arities must differ")
	}

	recA := &Record{Fields: []RecordField{{"x", Int}, {"y", Float}}}
	recB := &Record{Fields: []RecordField{{"y", Float}, {"x", Int}}}
	recC := &Record{Fields: []RecordField{{"x", Int}, {"z", Float}}}

	if !recA.Equals(recB) {
		t.Error("record equality must be order-independent")
	}
	if recA.Equals(recC) {
		t.Error("records with different field sets must differ")
	}

	varA := &Variant{Cases: []VariantCase{{"Some", Int}, {"None", Unit}}}
	varB := &Variant{Cases: []VariantCase{{"None", Unit}, {"Some", Int}}}
	if !varA.Equals(varB) {
		t.Error("variant equality must be tag-set based")
	}
}

func TestSubstitutionApply(t *testing.T) {
	s := Substitution{1: Int, 2: &Array{Element: &Var{ID: 1}}}

	got := s.Apply(&Var{ID: 2})
	want := &Array{Element: Int}
	if !got.Equals(want) {
		t.Errorf("Apply = %s, want %s", got, want)
	}

	// Unbound variables stay untouched.
	free := s.Apply(&Var{ID: 99})
	if !free.Equals(&Var{ID: 99}) {
		t.Errorf("unbound var must survive Apply, got %s", free)
	}

	// Application recurses through every constructor.
	nested := &Function{
		Params: []Type{&Tuple{Elements: []Type{&Var{ID: 1}}}},
		Return: &Result{Ok: &Var{ID: 1}, Err: String},
	}
	applied := s.Apply(nested)
	wantNested := &Function{
		Params: []Type{&Tuple{Elements: []Type{Int}}},
		Return: &Result{Ok: Int, Err: String},
	}
	if !applied.Equals(wantNested) {
		t.Errorf("Apply = %s, want %s", applied, wantNested)
	}
}

func TestSubstitutionCompose(t *testing.T) {
	s1 := Substitution{1: &Var{ID: 2}}
	s2 := Substitution{2: Int}

	composed := s1.Compose(s2)
	got := composed.Apply(&Var{ID: 1})
	if !got.Equals(Int) {
		t.Errorf("composed substitution: got %s, want Int", got)
	}
}

func TestFreeVars(t *testing.T) {
	ty := &Function{
		Params: []Type{&Var{ID: 1}, &Array{Element: &Var{ID: 2}}},
		Return: &Record{Fields: []RecordField{{"a", &Var{ID: 3}}}},
	}
	free := FreeVars(ty)
	for _, id := range []int{1, 2, 3} {
		if _, ok := free[id]; !ok {
			t.Errorf("expected var %d free", id)
		}
	}
	if len(free) != 3 {
		t.Errorf("expected 3 free vars, got %d", len(free))
	}
}

func TestGeneralize(t *testing.T) {
	ctx := NewContext()
	ctx.Add("x", Mono(&Var{ID: 1}))

	ty := &Function{Params: []Type{&Var{ID: 1}}, Return: &Var{ID: 2}}
	scheme := Generalize(ctx, ty)

	// Var 1 is free in the environment, so only var 2 generalises.
	if len(scheme.Vars) != 1 || scheme.Vars[0] != 2 {
		t.Errorf("expected quantified vars [2], got %v", scheme.Vars)
	}
}

func TestContextLookupWalksParents(t *testing.T) {
	parent := NewContext()
	parent.Add("outer", Mono(Int))

	child := parent.Child()
	child.Add("inner", Mono(Bool))

	if _, ok := child.Lookup("outer"); !ok {
		t.Error("child lookup must walk to parent")
	}
	if _, ok := parent.Lookup("inner"); ok {
		t.Error("parent must not see child bindings")
	}

	// Shadowing resolves to the innermost binding.
	child.Add("outer", Mono(String))
	scheme, _ := child.Lookup("outer")
	if !scheme.Body.Equals(String) {
		t.Errorf("expected shadowed String, got %s", scheme.Body)
	}
}

func TestSchemeString(t *testing.T) {
	mono := Mono(Int)
	if mono.String() != "Int" {
		t.Errorf("mono scheme: got %q", mono.String())
	}
	poly := Scheme{Vars: []int{1}, Body: &Function{Params: []Type{&Var{ID: 1}}, Return: &Var{ID: 1}}}
	if poly.String() != "forall 't1. ('t1) -> 't1" {
		t.Errorf("poly scheme: got %q", poly.String())
	}
}
