package types

import "fmt"

// Type is one of the scalar types of the target: 8-bit chars and 16-bit ints.
type Type int

const (
	Void Type = iota
	SChar
	UChar
	Int
	UInt
)

func (t Type) String() string {
	switch t {
	case Void:
		return "void"
	case SChar:
		return "signed char"
	case UChar:
		return "unsigned char"
	case Int:
		return "int"
	case UInt:
		return "unsigned int"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

func (t Type) IsChar() bool   { return t == SChar || t == UChar }
func (t Type) IsInt() bool    { return t >= SChar && t <= UInt }
func (t Type) IsSigned() bool { return t == SChar || t == Int }

// Size is the storage size in bytes.
func (t Type) Size() int {
	switch t {
	case SChar, UChar:
		return 1
	case Int, UInt:
		return 2
	}
	return 0
}

// Range reports the inclusive value range representable by t.
func (t Type) Range() (lo, hi int64) {
	switch t {
	case SChar:
		return -128, 127
	case UChar:
		return 0, 255
	case Int:
		return -32768, 32767
	case UInt:
		return 0, 65535
	}
	return 0, 0
}

func (t Type) InRange(v int64) bool {
	lo, hi := t.Range()
	return v >= lo && v <= hi
}

// Normalize truncates v to the width of t and sign- or zero-extends it back.
func (t Type) Normalize(v int64) int64 {
	switch t {
	case SChar:
		return int64(int8(v))
	case UChar:
		return int64(uint8(v))
	case Int:
		return int64(int16(v))
	case UInt:
		return int64(uint16(v))
	}
	return v
}

// Promote applies the integer promotions: everything narrower than int becomes int.
func Promote(t Type) Type {
	if t == UInt {
		return UInt
	}
	return Int
}

// Arith returns the common type of a binary arithmetic operation.
func Arith(a, b Type) Type {
	if Promote(a) == UInt || Promote(b) == UInt {
		return UInt
	}
	return Int
}

// Literal picks the type of an integer constant the way the front end does.
func Literal(v int64) Type {
	if Int.InRange(v) {
		return Int
	}
	if UInt.InRange(v) {
		return UInt
	}
	return Int
}
