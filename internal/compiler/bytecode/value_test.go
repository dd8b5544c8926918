package bytecode

import (
	"math"
	"math/rand"
	"testing"
)

func TestValueInt(t *testing.T) {
	v := Int(42)
	if !v.IsInt() {
		t.Fatal("expected int")
	}
	n, ok := v.AsInt()
	if !ok || n != 42 {
		t.Errorf("AsInt = %d, %v", n, ok)
	}
	if v.IsFloat() || v.IsNull() || v.IsBool() || v.IsPtr() {
		t.Error("int must match no other category")
	}
}

func TestValueIntNegative(t *testing.T) {
	v := Int(-1)
	n, ok := v.AsInt()
	if !ok || n != -1 {
		t.Errorf("AsInt(-1) = %d, %v", n, ok)
	}
}

// TestIntRoundTrip covers the 48-bit boundary: every representable integer
// survives boxing, including both extremes.
func TestIntRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 42, -42, 1 << 30, -(1 << 30), MaxInt, MinInt, MaxInt - 1, MinInt + 1}
	for _, n := range cases {
		got, ok := Int(n).AsInt()
		if !ok || got != n {
			t.Errorf("Int(%d) round-tripped to %d, %v", n, got, ok)
		}
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		n := rng.Int63n(MaxInt-MinInt) + MinInt
		got, ok := Int(n).AsInt()
		if !ok || got != n {
			t.Errorf("Int(%d) round-tripped to %d, %v", n, got, ok)
		}
	}
}

func TestValueFloat(t *testing.T) {
	v := Float(3.14)
	if !v.IsFloat() {
		t.Fatal("expected float")
	}
	f, ok := v.AsFloat()
	if !ok || f != 3.14 {
		t.Errorf("AsFloat = %g, %v", f, ok)
	}
	if v.IsInt() {
		t.Error("float must not be int")
	}
}

func TestValueBool(t *testing.T) {
	vt, vf := Bool(true), Bool(false)
	if !vt.IsBool() || !vf.IsBool() {
		t.Fatal("expected booleans")
	}
	if b, _ := vt.AsBool(); !b {
		t.Error("True must unbox to true")
	}
	if b, _ := vf.AsBool(); b {
		t.Error("False must unbox to false")
	}
	if vt == vf {
		t.Error("true and false must differ")
	}
}

func TestValueNull(t *testing.T) {
	if !Null.IsNull() {
		t.Fatal("expected null")
	}
	if Null.IsInt() || Null.IsFloat() || Null.IsBool() || Null.IsPtr() {
		t.Error("null must match no other category")
	}
}

func TestValuePtr(t *testing.T) {
	v := Ptr(0x12345678)
	if !v.IsPtr() {
		t.Fatal("expected pointer")
	}
	p, ok := v.AsPtr()
	if !ok || p != 0x12345678 {
		t.Errorf("AsPtr = %#x, %v", p, ok)
	}
	if v.IsInt() || v.IsFloat() {
		t.Error("pointer must match no other category")
	}
}

// TestTagExclusivity verifies that for any 64-bit pattern exactly one
// category predicate holds.
func TestTagExclusivity(t *testing.T) {
	check := func(v Value) {
		t.Helper()
		count := 0
		for _, is := range []bool{v.IsNull(), v.IsBool(), v.IsInt(), v.IsPtr(), v.IsFloat()} {
			if is {
				count++
			}
		}
		if count != 1 {
			t.Errorf("value %#x matches %d categories", uint64(v), count)
		}
	}

	// Edge patterns.
	for _, bits := range []uint64{
		0, 1, 2, 3,
		0x0001_0000_0000_0000, 0x0001_FFFF_FFFF_FFFF,
		0xFFFE_0000_0000_0000, 0xFFFE_FFFF_FFFF_FFFF,
		0xFFFF_FFFF_FFFF_FFFF,
		math.Float64bits(0.0), math.Float64bits(-1.5),
		math.Float64bits(math.NaN()), math.Float64bits(math.Inf(1)),
	} {
		check(Value(bits))
	}

	// Random patterns.
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 10000; i++ {
		check(Value(rng.Uint64()))
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Null, "null"},
		{True, "true"},
		{False, "false"},
		{Int(7), "7"},
		{Float(1.5), "1.5"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String(%#x) = %q, want %q", uint64(tt.v), got, tt.want)
		}
	}
}
