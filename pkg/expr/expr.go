// Package expr is the expression evaluator the statement compiler leans on.
// It parses and emits in one pass. Constant subexpressions produce no code at
// all, which is what lets conditions like while (1) fold to plain jumps.
package expr

import (
	"strconv"

	"github.com/xplshn/stmtc/pkg/codegen"
	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/ir"
	"github.com/xplshn/stmtc/pkg/scanner"
	"github.com/xplshn/stmtc/pkg/symtab"
	"github.com/xplshn/stmtc/pkg/token"
	"github.com/xplshn/stmtc/pkg/types"
	"github.com/xplshn/stmtc/pkg/util"
)

// Desc describes an evaluated expression. A constant Desc means no code was
// emitted for it; otherwise the value is in the primary register.
type Desc struct {
	Type  types.Type
	Const bool
	Value int64
}

// operand is a Desc that may still be an unloaded variable reference.
type operand struct {
	Desc
	sym *symtab.Symbol
	tok token.Token
}

func constant(t types.Type, v int64) operand {
	return operand{Desc: Desc{Type: t, Const: true, Value: t.Normalize(v)}}
}

func truth(b bool) operand {
	if b {
		return constant(types.Int, 1)
	}
	return constant(types.Int, 0)
}

func rvalue(t types.Type) operand { return operand{Desc: Desc{Type: t}} }

type Evaluator struct {
	toks *scanner.Scanner
	cg   *codegen.Context
	syms *symtab.Table
	fn   *symtab.Function
	diag *util.Reporter
	cfg  *config.Config
}

func New(toks *scanner.Scanner, cg *codegen.Context, syms *symtab.Table, diag *util.Reporter, cfg *config.Config) *Evaluator {
	return &Evaluator{toks: toks, cg: cg, syms: syms, diag: diag, cfg: cfg}
}

// SetFunction selects the function whose stack depth pushes are counted
// against. nil means file scope, where only constants are accepted.
func (e *Evaluator) SetFunction(fn *symtab.Function) { e.fn = fn }

// Expression evaluates a full (comma) expression into the primary register.
func (e *Evaluator) Expression() Desc {
	op := e.comma()
	e.load(&op)
	return op.Desc
}

// Assignment evaluates a single assignment expression, as needed for an
// initializer where a comma ends the declarator.
func (e *Evaluator) Assignment() Desc {
	op := e.assignment()
	e.load(&op)
	return op.Desc
}

// IntExpression is Expression for contexts that need an integer, such as a
// switch selector. Anything else is reported and treated as int.
func (e *Evaluator) IntExpression() Desc {
	tok := e.toks.Cur()
	d := e.Expression()
	if !d.Type.IsInt() {
		e.diag.Error(tok, "Integer expression expected")
		d.Type = types.Int
	}
	return d
}

// ConstInt evaluates a constant integer expression, as needed for case
// labels. A non-constant expression is reported, its code discarded, and 0
// returned.
func (e *Evaluator) ConstInt() Desc {
	tok := e.toks.Cur()
	mark := e.cg.Mark()
	op := e.conditional()
	if !op.Const {
		e.cg.RemoveCode(mark)
		e.diag.Error(tok, "Constant integer expression expected")
		return Desc{Type: types.Int, Const: true}
	}
	return op.Desc
}

// Condition evaluates a controlling expression and branches to target when
// its truth value equals onTrue. A constant condition emits at most one
// unconditional jump.
func (e *Evaluator) Condition(target *ir.Label, onTrue bool) {
	op := e.comma()
	e.branch(op, target, onTrue)
}

func (e *Evaluator) branch(op operand, target *ir.Label, onTrue bool) {
	if op.Const {
		if (op.Value != 0) == onTrue {
			e.cg.Jump(target)
		}
		return
	}
	e.load(&op)
	if op.Type == types.Void {
		e.diag.Error(op.tok, "Scalar expression expected")
	}
	e.cg.Test()
	e.cg.CondJump(target, onTrue)
}

// AssignAdjust converts the primary register holding d to type to, as for
// an assignment or a return value.
func (e *Evaluator) AssignAdjust(to types.Type, d Desc) {
	if d.Type == types.Void {
		if to != types.Void {
			e.diag.Error(e.toks.Prev(), "Cannot convert from 'void'")
		}
		return
	}
	if to == types.Void || to == d.Type {
		return
	}
	if d.Const {
		if !to.InRange(d.Value) {
			e.diag.Warn(config.WarnOverflow, e.toks.Prev(), "Constant %d is out of range for '%s'", d.Value, to)
		}
		return
	}
	e.cg.Convert(to)
}

func (e *Evaluator) adjustDepth(n int) {
	if e.fn != nil {
		e.fn.SetStackDepth(e.fn.StackDepth() + n)
	}
}

// load materializes op in the primary register.
func (e *Evaluator) load(op *operand) {
	switch {
	case op.Const:
		e.cg.Const(op.Value)
	case op.sym != nil:
		sym := op.sym
		if sym.Kind == symtab.Global {
			e.cg.LoadGlobal(sym.Type, sym.Name)
		} else {
			e.cg.LoadLocal(sym.Type, e.fn.StackDepth()-sym.Slot)
		}
		op.sym = nil
	default:
		return
	}
	op.Const = false
}

func (e *Evaluator) store(sym *symtab.Symbol) {
	if sym.Kind == symtab.Global {
		e.cg.StoreGlobal(sym.Type, sym.Name)
		return
	}
	e.cg.StoreLocal(sym.Type, e.fn.StackDepth()-sym.Slot)
}

func (e *Evaluator) push() {
	e.cg.Push(types.Int)
	e.adjustDepth(2)
}

func (e *Evaluator) expect(t token.Type, what string) {
	if !e.toks.Match(t) {
		e.diag.Error(e.toks.Cur(), "'%s' expected", what)
	}
}

func (e *Evaluator) comma() operand {
	op := e.assignment()
	for e.toks.Match(token.Comma) {
		e.load(&op)
		op = e.assignment()
	}
	return op
}

func (e *Evaluator) assignment() operand {
	lhs := e.conditional()
	tok := e.toks.Cur()
	binTok, compound := tok.Type.AssignOp()
	if tok.Type != token.Eq && !compound {
		return lhs
	}
	e.toks.Advance()

	sym := lhs.sym
	if sym == nil {
		e.diag.Error(tok, "Invalid lvalue in assignment")
		rhs := e.assignment()
		e.load(&rhs)
		return rvalue(rhs.Type)
	}

	var rhs operand
	if compound {
		cur := lhs
		e.load(&cur)
		rhs = e.applyBinary(cur, binTok, tok, e.assignment)
	} else {
		rhs = e.assignment()
	}
	e.load(&rhs)
	e.AssignAdjust(sym.Type, rhs.Desc)
	e.store(sym)
	return rvalue(sym.Type)
}

func (e *Evaluator) conditional() operand {
	cond := e.logical(token.OrOr)
	if !e.toks.Check(token.Question) {
		return cond
	}
	qtok := e.toks.Cur()
	e.toks.Advance()

	if cond.Const {
		taken := cond.Value != 0
		markA := e.cg.Mark()
		a := e.comma()
		if !taken {
			e.cg.RemoveCode(markA)
		}
		e.expect(token.Colon, ":")
		markB := e.cg.Mark()
		b := e.conditional()
		if taken {
			e.cg.RemoveCode(markB)
			if !a.Const {
				e.load(&a)
			}
			return a
		}
		if !b.Const {
			e.load(&b)
		}
		return b
	}

	elseL, doneL := e.cg.NewLabel(), e.cg.NewLabel()
	e.branch(cond, elseL, false)
	a := e.comma()
	e.load(&a)
	e.cg.Jump(doneL)
	e.expect(token.Colon, ":")
	e.cg.DefineLabel(elseL)
	b := e.conditional()
	e.load(&b)
	e.cg.DefineLabel(doneL)
	if a.Type == types.Void || b.Type == types.Void {
		if a.Type != b.Type {
			e.diag.Error(qtok, "Incompatible types in '?:'")
		}
		return rvalue(types.Void)
	}
	return rvalue(types.Arith(a.Type, b.Type))
}

// logical handles a chain of && (or ||). Operands that are known at compile
// time never reach the code stream, and a chain of constants folds.
func (e *Evaluator) logical(op token.Type) operand {
	next := func() operand { return e.logical(token.AndAnd) }
	if op == token.AndAnd {
		next = func() operand { return e.binary(1) }
	}
	// short is the operand value that decides the whole chain
	short := op == token.OrOr

	lhs := next()
	if !e.toks.Check(op) {
		return lhs
	}
	shortL, doneL := e.cg.NewLabel(), e.cg.NewLabel()
	allConst, decided := true, false

	visit := func(o operand) {
		if o.Const {
			if (o.Value != 0) == short {
				if !allConst {
					e.cg.Jump(shortL)
				}
				decided = true
			}
			return
		}
		allConst = false
		e.branch(o, shortL, short)
	}

	visit(lhs)
	for e.toks.Match(op) {
		mark := e.cg.Mark()
		rhs := next()
		if decided {
			e.cg.RemoveCode(mark)
			continue
		}
		visit(rhs)
	}

	if allConst {
		return truth(decided == short)
	}
	e.cg.Const(b2i(!short))
	e.cg.Jump(doneL)
	e.cg.DefineLabel(shortL)
	e.cg.Const(b2i(short))
	e.cg.DefineLabel(doneL)
	return rvalue(types.Int)
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func binaryPrecedence(op token.Type) int {
	switch op {
	case token.Or:
		return 1
	case token.Xor:
		return 2
	case token.And:
		return 3
	case token.EqEq, token.Neq:
		return 4
	case token.Lt, token.Gt, token.Lte, token.Gte:
		return 5
	case token.Shl, token.Shr:
		return 6
	case token.Plus, token.Minus:
		return 7
	case token.Star, token.Slash, token.Rem:
		return 8
	}
	return -1
}

var binOps = map[token.Type]ir.BinOp{
	token.Plus: ir.Add, token.Minus: ir.Sub, token.Star: ir.Mul, token.Slash: ir.Div, token.Rem: ir.Rem,
	token.And: ir.And, token.Or: ir.Or, token.Xor: ir.Xor, token.Shl: ir.Shl, token.Shr: ir.Shr,
	token.EqEq: ir.Eq, token.Neq: ir.Ne, token.Lt: ir.Lt, token.Lte: ir.Le, token.Gt: ir.Gt, token.Gte: ir.Ge,
}

func (e *Evaluator) binary(minPrec int) operand {
	lhs := e.unary()
	for {
		tok := e.toks.Cur()
		prec := binaryPrecedence(tok.Type)
		if prec < minPrec {
			return lhs
		}
		e.toks.Advance()
		lhs = e.applyBinary(lhs, tok.Type, tok, func() operand { return e.binary(prec + 1) })
	}
}

// applyBinary emits lhs op rhs. The left operand is pushed before the right
// one is parsed; if either turns out constant the push is taken back.
func (e *Evaluator) applyBinary(lhs operand, opType token.Type, tok token.Token, parseRHS func() operand) operand {
	bop := binOps[opType]
	loadMark := e.cg.Mark()
	e.load(&lhs)
	pushMark := e.cg.Mark()
	e.push()
	rhs := parseRHS()

	if lhs.Type == types.Void || rhs.Type == types.Void {
		e.diag.Error(tok, "Invalid operands to '%s'", tok.Type)
	}
	t := types.Arith(lhs.Type, rhs.Type)
	result := t
	if bop.IsCompare() {
		result = types.Int
	}

	if lhs.Const && rhs.Const {
		e.cg.RemoveCode(loadMark)
		e.adjustDepth(-2)
		return constant(result, e.fold(bop, t, lhs.Value, rhs.Value, tok))
	}
	if rhs.Const {
		e.cg.RemoveCode(pushMark)
		e.adjustDepth(-2)
		if (bop == ir.Div || bop == ir.Rem) && rhs.Value == 0 {
			e.diag.Error(tok, "Division by zero")
			return rvalue(result)
		}
		e.cg.BinaryImm(bop, t, rhs.Value)
		return rvalue(result)
	}
	e.load(&rhs)
	e.cg.Binary(bop, t)
	e.adjustDepth(-2)
	return rvalue(result)
}

// fold computes a binary operation on constants exactly as the target would.
func (e *Evaluator) fold(op ir.BinOp, t types.Type, a, b int64, tok token.Token) int64 {
	v, ok := op.Apply(t, a, b)
	if !ok {
		e.diag.Error(tok, "Division by zero")
	}
	return v
}

func parseNumber(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func (e *Evaluator) unary() operand {
	tok := e.toks.Cur()
	switch tok.Type {
	case token.Minus, token.Plus, token.Complement, token.Not:
		e.toks.Advance()
		op := e.unary()
		return e.applyUnary(tok, op)
	case token.Inc, token.Dec:
		e.toks.Advance()
		op := e.unary()
		return e.increment(tok, op, true)
	}
	return e.postfix()
}

func (e *Evaluator) applyUnary(tok token.Token, op operand) operand {
	if op.Type == types.Void {
		e.diag.Error(tok, "Invalid operand to '%s'", tok.Type)
		return rvalue(types.Int)
	}
	t := types.Promote(op.Type)
	switch tok.Type {
	case token.Plus:
		if op.Const {
			return constant(t, op.Value)
		}
		e.load(&op)
		return rvalue(t)
	case token.Not:
		if op.Const {
			return truth(op.Value == 0)
		}
		e.load(&op)
		e.cg.Unary(ir.Not, t)
		return rvalue(types.Int)
	}
	un, fn := ir.Neg, func(v int64) int64 { return -v }
	if tok.Type == token.Complement {
		un, fn = ir.Compl, func(v int64) int64 { return ^v }
	}
	if op.Const {
		return constant(t, fn(t.Normalize(op.Value)))
	}
	e.load(&op)
	e.cg.Unary(un, t)
	return rvalue(t)
}

// increment emits ++/--. The stored value is converted to the variable's
// type so that a wrapping char reads back correctly.
func (e *Evaluator) increment(tok token.Token, op operand, prefix bool) operand {
	sym := op.sym
	if sym == nil {
		e.diag.Error(tok, "Invalid lvalue in '%s'", tok.Type)
		e.load(&op)
		return rvalue(types.Int)
	}
	step, undo := ir.Add, ir.Sub
	if tok.Type == token.Dec {
		step, undo = ir.Sub, ir.Add
	}
	t := types.Promote(sym.Type)
	e.load(&op)
	e.cg.BinaryImm(step, t, 1)
	if sym.Type != t {
		e.cg.Convert(sym.Type)
	}
	e.store(sym)
	if !prefix {
		e.cg.BinaryImm(undo, t, 1)
		if sym.Type != t {
			e.cg.Convert(sym.Type)
		}
	}
	return rvalue(sym.Type)
}

func (e *Evaluator) postfix() operand {
	op := e.primary()
	for {
		tok := e.toks.Cur()
		if tok.Type != token.Inc && tok.Type != token.Dec {
			return op
		}
		e.toks.Advance()
		op = e.increment(tok, op, false)
	}
}

func (e *Evaluator) primary() operand {
	tok := e.toks.Cur()
	switch tok.Type {
	case token.Number:
		e.toks.Advance()
		v := parseNumber(tok.Value)
		return constant(types.Literal(v), v)
	case token.CharLit:
		e.toks.Advance()
		v := parseNumber(tok.Value)
		if e.cfg.IsFeatureEnabled(config.FeatSignedChars) {
			v = types.SChar.Normalize(v)
		}
		return constant(types.Int, v)
	case token.LParen:
		e.toks.Advance()
		op := e.comma()
		e.expect(token.RParen, ")")
		return op
	case token.Ident:
		e.toks.Advance()
		if e.toks.Check(token.LParen) {
			return e.call(tok)
		}
		return e.identifier(tok)
	}

	e.diag.Error(tok, "Expression expected")
	switch tok.Type {
	case token.Semi, token.RBrace, token.EOF:
	default:
		e.toks.Advance()
	}
	return constant(types.Int, 0)
}

func (e *Evaluator) identifier(tok token.Token) operand {
	sym := e.syms.Lookup(tok.Value)
	if sym == nil {
		e.diag.Error(tok, "Undefined symbol: '%s'", tok.Value)
		return constant(types.Int, 0)
	}
	if !sym.IsVar() {
		e.diag.Error(tok, "'%s' is a function, not a variable", tok.Value)
		return constant(types.Int, 0)
	}
	if e.fn == nil {
		e.diag.Error(tok, "Constant expression expected")
		return constant(types.Int, 0)
	}
	return operand{Desc: Desc{Type: sym.Type}, sym: sym, tok: tok}
}

// call pushes the arguments left to right, two bytes each, and calls name.
// An undeclared function is declared implicitly as returning int.
func (e *Evaluator) call(tok token.Token) operand {
	e.toks.Advance() // (
	sym := e.syms.LookupGlobal(tok.Value)
	if local := e.syms.Lookup(tok.Value); local != nil && local.IsVar() {
		e.diag.Error(tok, "'%s' is not a function", tok.Value)
		sym = nil
	} else if sym == nil {
		e.diag.Warn(config.WarnImplicitDecl, tok, "Call to undeclared function '%s'", tok.Value)
		sym = &symtab.Symbol{Name: tok.Value, Kind: symtab.Func, Type: types.Int, Tok: tok, Implicit: true}
		e.syms.DeclareGlobal(sym)
	}

	nargs := 0
	if !e.toks.Check(token.RParen) {
		for {
			arg := e.assignment()
			e.load(&arg)
			if sym != nil && !sym.Implicit && nargs < len(sym.Params) {
				e.AssignAdjust(sym.Params[nargs], arg.Desc)
			}
			e.push()
			nargs++
			if !e.toks.Match(token.Comma) {
				break
			}
		}
	}
	e.expect(token.RParen, ")")

	if e.fn == nil {
		e.diag.Error(tok, "Constant expression expected")
		return constant(types.Int, 0)
	}
	if sym == nil {
		e.adjustDepth(-2 * nargs)
		return rvalue(types.Int)
	}
	if !sym.Implicit && nargs != len(sym.Params) {
		e.diag.Error(tok, "Wrong number of arguments in call to '%s' (want %d, got %d)", sym.Name, len(sym.Params), nargs)
	}
	e.cg.Call(sym.Name, 2*nargs)
	e.adjustDepth(-2 * nargs)
	sym.Used = true
	return rvalue(sym.Type)
}
