package codegen

import (
	"fmt"

	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/ir"
	"github.com/xplshn/stmtc/pkg/types"
)

// Mark is a position in the instruction stream of the current function.
type Mark int

// Context collects the pseudo-instructions of one translation unit. All
// emission goes to the function opened by BeginFunc.
type Context struct {
	prog        *ir.Program
	currentFunc *ir.Func
	labelCount  int
	cfg         *config.Config
}

func NewContext(cfg *config.Config) *Context {
	return &Context{prog: &ir.Program{}, cfg: cfg}
}

func (ctx *Context) Program() *ir.Program { return ctx.prog }
func (ctx *Context) Func() *ir.Func       { return ctx.currentFunc }
func (ctx *Context) LabelCount() int      { return ctx.labelCount }

func (ctx *Context) AddGlobal(name string, typ types.Type, init int64) {
	ctx.prog.Globals = append(ctx.prog.Globals, &ir.Global{Name: name, Typ: typ, Init: typ.Normalize(init)})
}

func (ctx *Context) BeginFunc(name string, ret types.Type, paramBytes int) *ir.Func {
	fn := &ir.Func{Name: name, Ret: ret, ParamBytes: paramBytes}
	ctx.prog.Funcs = append(ctx.prog.Funcs, fn)
	ctx.currentFunc = fn
	ctx.addInstr(&ir.Instr{Op: ir.OpEnter, Name: name})
	return fn
}

func (ctx *Context) EndFunc() {
	ctx.addInstr(&ir.Instr{Op: ir.OpLeave, Value: int64(ctx.currentFunc.ParamBytes)})
	ctx.currentFunc = nil
}

// addInstr appends to the open function. Outside a function (global
// initializers) there is nowhere for code to go and it is dropped.
func (ctx *Context) addInstr(instr *ir.Instr) {
	if ctx.currentFunc == nil {
		return
	}
	ctx.currentFunc.Code = append(ctx.currentFunc.Code, instr)
}

func (ctx *Context) NewLabel() *ir.Label {
	ctx.labelCount++
	return &ir.Label{Name: fmt.Sprintf("L%d", ctx.labelCount), ID: ctx.labelCount}
}

// NamedLabel allocates a label for a user-visible statement label.
func (ctx *Context) NamedLabel(name string) *ir.Label {
	ctx.labelCount++
	return &ir.Label{Name: fmt.Sprintf("L%d_%s", ctx.labelCount, name), ID: ctx.labelCount}
}

func (ctx *Context) DefineLabel(l *ir.Label) { ctx.addInstr(&ir.Instr{Op: ir.OpLabel, Label: l}) }
func (ctx *Context) Jump(l *ir.Label)        { ctx.addInstr(&ir.Instr{Op: ir.OpJump, Label: l}) }

// CondJump branches to l when the condition flag equals onTrue.
func (ctx *Context) CondJump(l *ir.Label, onTrue bool) {
	op := ir.OpJumpFalse
	if onTrue {
		op = ir.OpJumpTrue
	}
	ctx.addInstr(&ir.Instr{Op: op, Label: l})
}

// Compare sets the flag when the primary register equals v.
func (ctx *Context) Compare(typ types.Type, v int64) {
	ctx.addInstr(&ir.Instr{Op: ir.OpCmp, Typ: typ, Value: v})
}

func (ctx *Context) Test() { ctx.addInstr(&ir.Instr{Op: ir.OpTest}) }

// DispatchTable emits a switch header followed by one entry per case in order.
func (ctx *Context) DispatchTable(typ types.Type, cases []ir.Case) {
	ctx.addInstr(&ir.Instr{Op: ir.OpSwitch, Typ: typ, Value: int64(len(cases))})
	for _, c := range cases {
		ctx.addInstr(&ir.Instr{Op: ir.OpCase, Typ: typ, Value: c.Value, Label: c.Label})
	}
}

// Space adjusts the value stack: n > 0 releases n bytes, n < 0 allocates -n bytes.
func (ctx *Context) Space(n int) {
	if n == 0 {
		return
	}
	ctx.addInstr(&ir.Instr{Op: ir.OpSpace, Value: int64(n)})
}

func (ctx *Context) Const(v int64) { ctx.addInstr(&ir.Instr{Op: ir.OpConst, Value: v}) }

func (ctx *Context) LoadLocal(typ types.Type, offset int) {
	ctx.addInstr(&ir.Instr{Op: ir.OpLoadLocal, Typ: typ, Value: int64(offset)})
}

func (ctx *Context) StoreLocal(typ types.Type, offset int) {
	ctx.addInstr(&ir.Instr{Op: ir.OpStoreLocal, Typ: typ, Value: int64(offset)})
}

func (ctx *Context) LoadGlobal(typ types.Type, name string) {
	ctx.addInstr(&ir.Instr{Op: ir.OpLoadGlobal, Typ: typ, Name: name})
}

func (ctx *Context) StoreGlobal(typ types.Type, name string) {
	ctx.addInstr(&ir.Instr{Op: ir.OpStoreGlobal, Typ: typ, Name: name})
}

func (ctx *Context) Push(typ types.Type) { ctx.addInstr(&ir.Instr{Op: ir.OpPush, Typ: typ}) }

func (ctx *Context) Binary(op ir.BinOp, typ types.Type) {
	ctx.addInstr(&ir.Instr{Op: ir.OpBinary, Bin: op, Typ: typ})
}

func (ctx *Context) BinaryImm(op ir.BinOp, typ types.Type, v int64) {
	ctx.addInstr(&ir.Instr{Op: ir.OpBinaryImm, Bin: op, Typ: typ, Value: v})
}

func (ctx *Context) Unary(op ir.UnOp, typ types.Type) {
	ctx.addInstr(&ir.Instr{Op: ir.OpUnary, Un: op, Typ: typ})
}

func (ctx *Context) Convert(typ types.Type) { ctx.addInstr(&ir.Instr{Op: ir.OpConvert, Typ: typ}) }

func (ctx *Context) Call(name string, argBytes int) {
	ctx.addInstr(&ir.Instr{Op: ir.OpCall, Name: name, Value: int64(argBytes)})
}

func (ctx *Context) Mark() Mark {
	if ctx.currentFunc == nil {
		return 0
	}
	return Mark(len(ctx.currentFunc.Code))
}

// RemoveCode drops everything emitted after m.
func (ctx *Context) RemoveCode(m Mark) {
	if ctx.currentFunc == nil {
		return
	}
	code := ctx.currentFunc.Code
	for i := int(m); i < len(code); i++ {
		code[i] = nil
	}
	ctx.currentFunc.Code = code[:m]
}

// MoveCode relocates the range [start, end) so that it immediately precedes
// target. Labels travel with the instructions that define them.
func (ctx *Context) MoveCode(start, end, target Mark) {
	if ctx.currentFunc == nil {
		return
	}
	code := ctx.currentFunc.Code
	if start >= end || (target >= start && target <= end) {
		return
	}
	seg := append([]*ir.Instr(nil), code[start:end]...)
	n := Mark(len(seg))
	if target > end {
		copy(code[start:], code[end:target])
		copy(code[target-n:], seg)
	} else {
		copy(code[target+n:], code[target:start])
		copy(code[target:], seg)
	}
}
