package stmt

import (
	"github.com/xplshn/stmtc/pkg/codegen"
	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/ir"
	"github.com/xplshn/stmtc/pkg/loop"
	"github.com/xplshn/stmtc/pkg/token"
	"github.com/xplshn/stmtc/pkg/types"
)

// Strategy is the lowering of a switch statement.
type Strategy int

const (
	// Cascade compares the selector against each case in turn.
	Cascade Strategy = iota
	// Table emits the bodies first and a dispatch table behind them.
	Table
)

func (s Strategy) String() string {
	if s == Cascade {
		return "cascade"
	}
	return "table"
}

// ChooseStrategy picks the lowering for a selector of type sel. Byte-sized
// selectors always compare; ints compare only when code size is favored.
func ChooseStrategy(sel types.Type, cfg *config.Config) Strategy {
	if sel.IsChar() || (cfg.FavorsSize() && sel.IsInt()) {
		return Cascade
	}
	return Table
}

// lowering receives the labels and bodies of a switch in source order.
type lowering interface {
	// group starts a run of adjacent labels. haveBreak tells whether the
	// previous body ended in a definite exit.
	group(haveBreak bool)
	caseLabel(tok token.Token, v int64)
	defaultLabel(tok token.Token)
	// body is called once the labels of a group are done.
	body()
	finish(haveBreak bool)
}

func (c *Compiler) switchStatement() {
	c.toks.Advance()

	c.expect(token.LParen, "(")
	sel := c.eval.IntExpression()
	c.expect(token.RParen, ")")
	c.expect(token.LBrace, "{")

	strategy := ChooseStrategy(sel.Type, c.cfg)
	if c.trace != nil {
		c.trace.Annotate("strategy", strategy.String())
		c.trace.Annotate("selector", sel.Type.String())
	}

	exit := c.gen.NewLabel()
	c.loops.Push(&loop.Context{StackDepth: c.fn.StackDepth(), Exit: exit})
	defer c.loops.Pop()

	var low lowering
	if strategy == Cascade {
		low = &cascade{c: c, sel: sel.Type, exit: exit}
	} else {
		low = newTable(c, sel.Type, exit)
	}
	c.switchBody(low)
}

func (c *Compiler) switchBody(low lowering) {
	haveBreak, haveDefault := true, false
	labels, seenLabel := 0, false

	for !c.toks.Check(token.RBrace) {
		if c.toks.AtEnd() {
			c.diag.Error(c.toks.Cur(), "'}' expected")
			break
		}
		if c.toks.Check(token.Case) || c.toks.Check(token.Default) {
			low.group(haveBreak)
			for c.toks.Check(token.Case) || c.toks.Check(token.Default) {
				tok := c.toks.Cur()
				c.toks.Advance()
				switch {
				case tok.Type == token.Case:
					labels++
					d := c.eval.ConstInt()
					if !d.Type.IsInt() {
						c.diag.Error(tok, "Switch quantity not an integer")
					}
					low.caseLabel(tok, d.Value)
				case haveDefault:
					c.diag.Error(tok, "Multiple default labels in one switch")
				default:
					haveDefault = true
					low.defaultLabel(tok)
				}
				c.expect(token.Colon, ":")
			}
			low.body()
			haveBreak, seenLabel = false, true
		}

		if c.toks.Check(token.RBrace) || c.toks.AtEnd() {
			continue
		}
		if !seenLabel {
			// Nothing can reach code ahead of the first label.
			c.diag.Warn(config.WarnUnreachableCode, c.toks.Cur(), "Unreachable code")
			skip := c.gen.NewLabel()
			c.gen.Jump(skip)
			c.Statement(false)
			c.gen.DefineLabel(skip)
			continue
		}
		haveBreak = c.Statement(false).Exit == DefiniteExit
	}

	if labels == 0 && !haveDefault {
		c.diag.Warn(config.WarnNoCaseLabels, c.toks.Cur(), "No case labels")
	}
	low.finish(haveBreak)
	c.toks.Match(token.RBrace)
}

// cascade is the compare-and-branch lowering. Each group of labels is
// preceded by its compares; a compare that fails jumps to the next group,
// and adjacent case labels share one code label.
//
// A default that is not the last group would otherwise swallow the compares
// of the groups behind it. In that case the entry into the default group is
// redirected past its body, and the no-match path at the end of the chain
// jumps back to the default body.
type cascade struct {
	c    *Compiler
	sel  types.Type
	exit *ir.Label

	codeLab, nextLab *ir.Label
	groupMark        codegen.Mark
	inDefault        bool

	defaultBody  *ir.Label
	defaultMark  codegen.Mark
	afterDefault bool
	redirected   bool
}

func (s *cascade) group(haveBreak bool) {
	gen := s.c.gen

	var resume *ir.Label
	if s.afterDefault {
		resume = gen.NewLabel()
		start := gen.Mark()
		gen.Jump(resume)
		gen.MoveCode(start, gen.Mark(), s.defaultMark)
		s.afterDefault, s.redirected = false, true
	}

	// Fallthrough from the previous body must skip the compares below.
	if !haveBreak {
		if s.codeLab == nil {
			s.codeLab = gen.NewLabel()
		}
		gen.Jump(s.codeLab)
	}
	if s.nextLab != nil {
		gen.DefineLabel(s.nextLab)
		s.nextLab = nil
	}
	if resume != nil {
		gen.DefineLabel(resume)
	}
	s.groupMark = gen.Mark()
	s.inDefault = false
}

func (s *cascade) caseLabel(tok token.Token, v int64) {
	if !s.sel.InRange(v) {
		s.c.diag.Error(tok, "Range error")
	}
	// Once default is in the group every value lands in this body anyway.
	if s.inDefault {
		return
	}

	gen := s.c.gen
	gen.Compare(s.sel, v)
	// The current token is the ':' after the constant.
	switch s.c.toks.Peek().Type {
	case token.Case:
		if s.codeLab == nil {
			s.codeLab = gen.NewLabel()
		}
		gen.CondJump(s.codeLab, true)
	case token.Default:
	default:
		if s.nextLab == nil {
			s.nextLab = gen.NewLabel()
		}
		gen.CondJump(s.nextLab, false)
	}
}

func (s *cascade) defaultLabel(token.Token) {
	s.inDefault = true
	s.defaultMark = s.groupMark
	if s.codeLab == nil {
		s.codeLab = s.c.gen.NewLabel()
	}
	s.defaultBody = s.codeLab
}

func (s *cascade) body() {
	if s.codeLab != nil {
		s.c.gen.DefineLabel(s.codeLab)
		s.codeLab = nil
	}
	s.afterDefault = s.inDefault
}

func (s *cascade) finish(haveBreak bool) {
	gen := s.c.gen
	if s.nextLab != nil {
		if s.redirected && !haveBreak {
			gen.Jump(s.exit)
		}
		gen.DefineLabel(s.nextLab)
		if s.redirected {
			gen.Jump(s.defaultBody)
		}
	}
	gen.DefineLabel(s.exit)
}

// table is the dispatch-table lowering: bodies in source order behind a
// jump to the table, each case label defined in place.
type table struct {
	c          *Compiler
	sel        types.Type
	exit       *ir.Label
	dispatch   *ir.Label
	cases      []ir.Case
	defaultLab *ir.Label
}

func newTable(c *Compiler, sel types.Type, exit *ir.Label) *table {
	t := &table{c: c, sel: sel, exit: exit, dispatch: c.gen.NewLabel()}
	c.gen.Jump(t.dispatch)
	return t
}

func (t *table) group(bool) {}
func (t *table) body()      {}

func (t *table) caseLabel(_ token.Token, v int64) {
	l := t.c.gen.NewLabel()
	t.cases = append(t.cases, ir.Case{Value: v, Label: l})
	t.c.gen.DefineLabel(l)
}

func (t *table) defaultLabel(token.Token) {
	t.defaultLab = t.c.gen.NewLabel()
	t.c.gen.DefineLabel(t.defaultLab)
}

func (t *table) finish(haveBreak bool) {
	gen := t.c.gen
	if !haveBreak {
		gen.Jump(t.exit)
	}
	gen.DefineLabel(t.dispatch)
	gen.DispatchTable(t.sel, t.cases)
	if t.defaultLab != nil {
		gen.Jump(t.defaultLab)
	}
	gen.DefineLabel(t.exit)
}
