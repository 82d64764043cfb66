package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/ir"
	"github.com/xplshn/stmtc/pkg/types"
)

// The accumulator machine is lowered onto QBE with a global byte array as the
// value stack. %acc and %flag are plain temporaries that QBE turns into SSA.
const (
	qbeStack     = "$stmtc_stack"
	qbeSP        = "$stmtc_sp"
	qbeStackSize = 1 << 16
)

// qbeInputName is the file name libqbe reports positions against.
const qbeInputName = "stmtc.ssa"

// assembleError wraps a failure of QBE. The IL is attached with line
// numbers, which is how QBE reports where it gave up.
func assembleError(target string, funcs int, il string, err error) error {
	var sb strings.Builder
	for i, line := range strings.Split(strings.TrimRight(il, "\n"), "\n") {
		fmt.Fprintf(&sb, "%5d  %s\n", i+1, line)
	}
	return fmt.Errorf("assembling %d function(s) for %s: %w\n%s", funcs, target, err, sb.String())
}

type qbeBackend struct {
	out       *strings.Builder
	prog      *ir.Program
	currentFn *ir.Func
	tempCount int
	needBlock bool
}

// NewQBEBackend lowers to QBE and assembles to target assembly.
func NewQBEBackend() Backend { return &qbeBackend{} }

type qbeIRBackend struct{ qbeBackend }

// NewQBEIRBackend stops after lowering and returns the QBE IL text.
func NewQBEIRBackend() Backend { return &qbeIRBackend{} }

func (b *qbeIRBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	qbeIR, err := b.GenerateIR(prog, cfg)
	if err != nil {
		return nil, err
	}
	return bytes.NewBufferString(qbeIR), nil
}

func (b *qbeBackend) GenerateIR(prog *ir.Program, cfg *config.Config) (string, error) {
	var qbeIRBuilder strings.Builder
	b.out, b.prog, b.tempCount = &qbeIRBuilder, prog, 0

	fmt.Fprintf(b.out, "data %s = align 8 { z %d }\n", qbeStack, qbeStackSize)
	fmt.Fprintf(b.out, "data %s = align 8 { l 0 }\n", qbeSP)
	b.out.WriteString("data $stmtc_fmt = { b \"%d\\n\", b 0 }\n")

	for _, g := range prog.Globals {
		fmt.Fprintf(b.out, "export data $%s = align 2 { %s %d }\n", g.Name, b.storeSuffix(g.Typ), g.Init)
	}

	for _, fn := range prog.Funcs {
		if err := b.genFunc(fn); err != nil {
			return "", err
		}
	}
	b.genBuiltinOut()
	return qbeIRBuilder.String(), nil
}

func (b *qbeBackend) newTemp() string {
	b.tempCount++
	return fmt.Sprintf("%%t%d", b.tempCount)
}

func (b *qbeBackend) newBlock(prefix string) string {
	b.tempCount++
	return fmt.Sprintf("@%s%d", prefix, b.tempCount)
}

func (b *qbeBackend) emit(format string, args ...any) {
	if b.needBlock {
		fmt.Fprintf(b.out, "%s\n", b.newBlock("dead"))
		b.needBlock = false
	}
	fmt.Fprintf(b.out, "\t"+format+"\n", args...)
}

func (b *qbeBackend) terminate(format string, args ...any) {
	b.emit(format, args...)
	b.needBlock = true
}

func (b *qbeBackend) genFunc(fn *ir.Func) error {
	b.currentFn = fn
	b.needBlock = false
	fmt.Fprintf(b.out, "\nexport function w $%s() {\n@start\n", fn.Name)
	b.emit("%%acc =w copy 0")
	b.emit("%%flag =w copy 0")

	for _, instr := range fn.Code {
		if err := b.genInstr(instr); err != nil {
			return fmt.Errorf("function %s: %w", fn.Name, err)
		}
	}
	if !b.needBlock {
		b.terminate("ret %%acc")
	}
	b.out.WriteString("}\n")
	return nil
}

// genBuiltinOut prints its argument, matching the out(int) builtin of the VM.
func (b *qbeBackend) genBuiltinOut() {
	if b.prog.FindFunc("out") != nil {
		return
	}
	b.needBlock = false
	b.out.WriteString("\nfunction w $out() {\n@start\n")
	b.emit("%%acc =w copy 0")
	b.loadLocal(types.Int, 2, "%v")
	b.adjustSP(-2)
	b.emit("call $printf(l $stmtc_fmt, ..., w %%v)")
	b.terminate("ret %%acc")
	b.out.WriteString("}\n")
}

func (b *qbeBackend) stackAddr(offset int64) string {
	sp, off, addr := b.newTemp(), b.newTemp(), b.newTemp()
	b.emit("%s =l loadl %s", sp, qbeSP)
	b.emit("%s =l sub %s, %d", off, sp, offset)
	b.emit("%s =l add %s, %s", addr, qbeStack, off)
	return addr
}

func (b *qbeBackend) adjustSP(delta int64) {
	sp, next := b.newTemp(), b.newTemp()
	b.emit("%s =l loadl %s", sp, qbeSP)
	b.emit("%s =l add %s, %d", next, sp, delta)
	b.emit("storel %s, %s", next, qbeSP)
}

func (b *qbeBackend) loadLocal(typ types.Type, offset int64, dst string) {
	addr := b.stackAddr(offset)
	b.emit("%s =w %s %s", dst, b.loadOp(typ), addr)
}

func (b *qbeBackend) loadOp(typ types.Type) string {
	switch typ {
	case types.SChar: return "loadsb"
	case types.UChar: return "loadub"
	case types.UInt: return "loaduh"
	default: return "loadsh"
	}
}

func (b *qbeBackend) storeSuffix(typ types.Type) string {
	if typ.Size() == 1 { return "b" }
	return "h"
}

func (b *qbeBackend) extOp(typ types.Type) string {
	switch typ {
	case types.SChar: return "extsb"
	case types.UChar: return "extub"
	case types.UInt: return "extuh"
	default: return "extsh"
	}
}

func (b *qbeBackend) binOp(op ir.BinOp, typ types.Type) string {
	signed := typ.IsSigned() || typ == types.Void
	pick := func(s, u string) string {
		if signed { return s }
		return u
	}
	switch op {
	case ir.Add: return "add"
	case ir.Sub: return "sub"
	case ir.Mul: return "mul"
	case ir.Div: return pick("div", "udiv")
	case ir.Rem: return pick("rem", "urem")
	case ir.And: return "and"
	case ir.Or: return "or"
	case ir.Xor: return "xor"
	case ir.Shl: return "shl"
	case ir.Shr: return pick("sar", "shr")
	case ir.Eq: return "ceqw"
	case ir.Ne: return "cnew"
	case ir.Lt: return pick("csltw", "cultw")
	case ir.Le: return pick("cslew", "culew")
	case ir.Gt: return pick("csgtw", "cugtw")
	case ir.Ge: return pick("csgew", "cugew")
	}
	return "add"
}

func (b *qbeBackend) applyBin(op ir.BinOp, typ types.Type, lhs, rhs string) {
	b.emit("%%acc =w %s %s, %s", b.binOp(op, typ), lhs, rhs)
	if !op.IsCompare() {
		b.emit("%%acc =w %s %%acc", b.extOp(typ))
	}
}

func (b *qbeBackend) genInstr(instr *ir.Instr) error {
	switch instr.Op {
	case ir.OpEnter:
	case ir.OpLabel:
		fmt.Fprintf(b.out, "@%s\n", instr.Label.Name)
		b.needBlock = false
	case ir.OpJump:
		b.terminate("jmp @%s", instr.Label.Name)
	case ir.OpJumpTrue, ir.OpJumpFalse:
		next := b.newBlock("f")
		if instr.Op == ir.OpJumpTrue {
			b.emit("jnz %%flag, @%s, %s", instr.Label.Name, next)
		} else {
			b.emit("jnz %%flag, %s, @%s", next, instr.Label.Name)
		}
		fmt.Fprintf(b.out, "%s\n", next)
	case ir.OpCmp:
		b.emit("%%flag =w ceqw %%acc, %d", instr.Value)
	case ir.OpTest:
		b.emit("%%flag =w cnew %%acc, 0")
	case ir.OpSwitch:
	case ir.OpCase:
		next := b.newBlock("c")
		t := b.newTemp()
		b.emit("%s =w ceqw %%acc, %d", t, instr.Value)
		b.emit("jnz %s, @%s, %s", t, instr.Label.Name, next)
		fmt.Fprintf(b.out, "%s\n", next)
	case ir.OpSpace:
		b.adjustSP(-instr.Value)
	case ir.OpConst:
		b.emit("%%acc =w copy %d", instr.Value)
	case ir.OpLoadLocal:
		b.loadLocal(instr.Typ, instr.Value, "%acc")
	case ir.OpStoreLocal:
		addr := b.stackAddr(instr.Value)
		b.emit("store%s %%acc, %s", b.storeSuffix(instr.Typ), addr)
	case ir.OpLoadGlobal:
		b.emit("%%acc =w %s $%s", b.loadOp(instr.Typ), instr.Name)
	case ir.OpStoreGlobal:
		b.emit("store%s %%acc, $%s", b.storeSuffix(instr.Typ), instr.Name)
	case ir.OpPush:
		addr := b.stackAddr(0)
		b.emit("store%s %%acc, %s", b.storeSuffix(instr.Typ), addr)
		b.adjustSP(int64(instr.Typ.Size()))
	case ir.OpBinary:
		lhs := b.newTemp()
		b.loadLocal(types.Promote(instr.Typ), 2, lhs)
		b.adjustSP(-2)
		b.applyBin(instr.Bin, instr.Typ, lhs, "%acc")
	case ir.OpBinaryImm:
		b.applyBin(instr.Bin, instr.Typ, "%acc", fmt.Sprint(instr.Value))
	case ir.OpUnary:
		switch instr.Un {
		case ir.Neg:
			b.emit("%%acc =w neg %%acc")
			b.emit("%%acc =w %s %%acc", b.extOp(instr.Typ))
		case ir.Not:
			b.emit("%%acc =w ceqw %%acc, 0")
		case ir.Compl:
			b.emit("%%acc =w xor %%acc, -1")
			b.emit("%%acc =w %s %%acc", b.extOp(instr.Typ))
		}
	case ir.OpConvert:
		b.emit("%%acc =w %s %%acc", b.extOp(instr.Typ))
	case ir.OpCall:
		b.emit("%%acc =w call $%s()", instr.Name)
	case ir.OpLeave:
		b.adjustSP(-instr.Value)
		b.terminate("ret %%acc")
	default:
		return fmt.Errorf("cannot lower %s", instr.Op)
	}
	return nil
}
