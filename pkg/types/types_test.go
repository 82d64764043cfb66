package types

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		typ     Type
		in, out int64
	}{
		{SChar, 127, 127},
		{SChar, 128, -128},
		{SChar, -129, 127},
		{UChar, -1, 255},
		{UChar, 256, 0},
		{Int, 32768, -32768},
		{Int, -40320, 25216},
		{UInt, -1, 65535},
		{UInt, 65536, 0},
		{Void, 70000, 70000},
	}
	for _, tc := range tests {
		if got := tc.typ.Normalize(tc.in); got != tc.out {
			t.Errorf("%s.Normalize(%d) = %d, want %d", tc.typ, tc.in, got, tc.out)
		}
	}
}

func TestRange(t *testing.T) {
	for _, typ := range []Type{SChar, UChar, Int, UInt} {
		lo, hi := typ.Range()
		if !typ.InRange(lo) || !typ.InRange(hi) || typ.InRange(lo-1) || typ.InRange(hi+1) {
			t.Errorf("%s: range [%d, %d] is not tight", typ, lo, hi)
		}
		if typ.Normalize(hi+1) != lo {
			t.Errorf("%s: %d does not wrap to %d", typ, hi+1, lo)
		}
	}
}

func TestPromotions(t *testing.T) {
	tests := []struct {
		a, b, want Type
	}{
		{SChar, UChar, Int},
		{UChar, Int, Int},
		{Int, UInt, UInt},
		{UChar, UInt, UInt},
	}
	for _, tc := range tests {
		if got := Arith(tc.a, tc.b); got != tc.want {
			t.Errorf("Arith(%s, %s) = %s, want %s", tc.a, tc.b, got, tc.want)
		}
	}
	if Promote(UChar) != Int || Promote(UInt) != UInt {
		t.Error("char should promote to int and unsigned int should stay")
	}
}

func TestLiteral(t *testing.T) {
	tests := map[int64]Type{0: Int, 32767: Int, 32768: UInt, 65535: UInt, 65536: Int}
	for v, want := range tests {
		if got := Literal(v); got != want {
			t.Errorf("Literal(%d) = %s, want %s", v, got, want)
		}
	}
}

func TestSizes(t *testing.T) {
	if SChar.Size() != 1 || UChar.Size() != 1 || Int.Size() != 2 || UInt.Size() != 2 || Void.Size() != 0 {
		t.Error("unexpected type sizes")
	}
	if !SChar.IsSigned() || UChar.IsSigned() || !Int.IsSigned() || UInt.IsSigned() {
		t.Error("unexpected signedness")
	}
}
