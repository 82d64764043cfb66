package ir

import (
	"fmt"

	"github.com/xplshn/stmtc/pkg/types"
)

// Op is a pseudo-instruction of the accumulator machine. The machine has a
// primary register (acc), a condition flag set by Cmp and Test, and a byte
// addressed value stack that holds locals, parameters and temporaries.
type Op int

const (
	OpLabel       Op = iota // define Label here
	OpJump                  // goto Label
	OpJumpTrue              // goto Label if flag
	OpJumpFalse             // goto Label if !flag
	OpCmp                   // flag = acc == Value, compared as Typ
	OpTest                  // flag = acc != 0
	OpSwitch                // dispatch header, Value case entries follow
	OpCase                  // dispatch entry: acc == Value -> Label
	OpSpace                 // Value > 0 releases Value bytes, Value < 0 allocates
	OpConst                 // acc = Value
	OpLoadLocal             // acc = Typ at (sp - Value)
	OpStoreLocal            // Typ at (sp - Value) = acc
	OpLoadGlobal            // acc = Name
	OpStoreGlobal           // Name = acc
	OpPush                  // push acc as Typ
	OpBinary                // acc = pop Bin acc
	OpBinaryImm             // acc = acc Bin Value
	OpUnary                 // acc = Un acc
	OpConvert               // acc = Typ(acc)
	OpCall                  // call Name, callee drops Value argument bytes
	OpEnter                 // function prologue
	OpLeave                 // drop Value parameter bytes, return acc
)

var opNames = [...]string{
	OpLabel: "label", OpJump: "jmp", OpJumpTrue: "jt", OpJumpFalse: "jf", OpCmp: "cmp",
	OpTest: "test", OpSwitch: "switch", OpCase: "case", OpSpace: "space", OpConst: "ld",
	OpLoadLocal: "ldl", OpStoreLocal: "stl", OpLoadGlobal: "ldg", OpStoreGlobal: "stg",
	OpPush: "push", OpBinary: "op", OpBinaryImm: "opi", OpUnary: "un", OpConvert: "cvt",
	OpCall: "call", OpEnter: "enter", OpLeave: "leave",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// IsBranch reports whether the instruction refers to a label it may jump to.
func (o Op) IsBranch() bool {
	return o == OpJump || o == OpJumpTrue || o == OpJumpFalse || o == OpCase
}

type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Rem
	And
	Or
	Xor
	Shl
	Shr
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
)

var binNames = [...]string{
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", Rem: "rem", And: "and", Or: "or", Xor: "xor",
	Shl: "shl", Shr: "shr", Eq: "eq", Ne: "ne", Lt: "lt", Le: "le", Gt: "gt", Ge: "ge",
}

func (b BinOp) String() string { return binNames[b] }

func (b BinOp) IsCompare() bool { return b >= Eq }

// Apply computes x b y in type t, truncating the result to t. Comparisons
// yield 0 or 1. It reports false on division by zero.
func (b BinOp) Apply(t types.Type, x, y int64) (int64, bool) {
	x, y = t.Normalize(x), t.Normalize(y)
	var v int64
	switch b {
	case Add:
		v = x + y
	case Sub:
		v = x - y
	case Mul:
		v = x * y
	case Div, Rem:
		if y == 0 {
			return 0, false
		}
		if b == Div {
			v = x / y
		} else {
			v = x % y
		}
	case And:
		v = x & y
	case Or:
		v = x | y
	case Xor:
		v = x ^ y
	case Shl:
		v = x << uint(y&15)
	case Shr:
		v = x >> uint(y&15)
	case Eq:
		return flag(x == y), true
	case Ne:
		return flag(x != y), true
	case Lt:
		return flag(x < y), true
	case Le:
		return flag(x <= y), true
	case Gt:
		return flag(x > y), true
	case Ge:
		return flag(x >= y), true
	}
	return t.Normalize(v), true
}

func flag(c bool) int64 {
	if c {
		return 1
	}
	return 0
}

type UnOp int

const (
	Neg UnOp = iota
	Not
	Compl
)

func (u UnOp) String() string { return [...]string{"neg", "not", "compl"}[u] }

type Label struct {
	Name string
	ID   int
}

func (l *Label) String() string { return l.Name }

type Instr struct {
	Op    Op
	Typ   types.Type
	Label *Label
	Value int64
	Name  string
	Bin   BinOp
	Un    UnOp
}

func (i *Instr) String() string {
	switch i.Op {
	case OpLabel:
		return i.Label.Name + ":"
	case OpJump, OpJumpTrue, OpJumpFalse:
		return fmt.Sprintf("\t%s\t%s", i.Op, i.Label)
	case OpCmp:
		return fmt.Sprintf("\tcmp\t%s, %d", i.Typ, i.Value)
	case OpTest, OpEnter:
		return "\t" + i.Op.String()
	case OpSwitch:
		return fmt.Sprintf("\tswitch\t%s, %d", i.Typ, i.Value)
	case OpCase:
		return fmt.Sprintf("\t.case\t%d, %s", i.Value, i.Label)
	case OpSpace:
		if i.Value < 0 {
			return fmt.Sprintf("\talloc\t%d", -i.Value)
		}
		return fmt.Sprintf("\tdrop\t%d", i.Value)
	case OpConst:
		return fmt.Sprintf("\tld\t#%d", i.Value)
	case OpLoadLocal, OpStoreLocal:
		return fmt.Sprintf("\t%s\t%s, (sp-%d)", i.Op, i.Typ, i.Value)
	case OpLoadGlobal, OpStoreGlobal:
		return fmt.Sprintf("\t%s\t%s, %s", i.Op, i.Typ, i.Name)
	case OpPush, OpConvert:
		return fmt.Sprintf("\t%s\t%s", i.Op, i.Typ)
	case OpBinary:
		return fmt.Sprintf("\t%s\t%s", i.Bin, i.Typ)
	case OpBinaryImm:
		return fmt.Sprintf("\t%s\t%s, #%d", i.Bin, i.Typ, i.Value)
	case OpUnary:
		return fmt.Sprintf("\t%s\t%s", i.Un, i.Typ)
	case OpCall:
		return fmt.Sprintf("\tcall\t%s, %d", i.Name, i.Value)
	case OpLeave:
		return fmt.Sprintf("\tleave\t%d", i.Value)
	}
	return "\t" + i.Op.String()
}

type Global struct {
	Name string
	Typ  types.Type
	Init int64
}

type Func struct {
	Name       string
	Ret        types.Type
	ParamBytes int
	Code       []*Instr
}

type Program struct {
	Globals []*Global
	Funcs   []*Func
}

func (p *Program) FindFunc(name string) *Func {
	for _, f := range p.Funcs {
		if f.Name == name { return f }
	}
	return nil
}

func (p *Program) FindGlobal(name string) *Global {
	for _, g := range p.Globals {
		if g.Name == name { return g }
	}
	return nil
}

// Labels maps every label defined in f to the index of its definition.
func (f *Func) Labels() map[*Label]int {
	m := make(map[*Label]int)
	for i, in := range f.Code {
		if in.Op == OpLabel {
			m[in.Label] = i
		}
	}
	return m
}

// Case is one (value, label) entry of a dispatch table.
type Case struct {
	Value int64
	Label *Label
}
