package stmt

import (
	"github.com/xplshn/stmtc/pkg/loop"
	"github.com/xplshn/stmtc/pkg/token"
)

func (c *Compiler) ifStatement() Exit {
	c.toks.Advance()

	falseLab := c.gen.NewLabel()
	c.condition(falseLab, false)
	thenExit := c.Statement(false).Exit

	if !c.toks.Check(token.Else) {
		// The condition may be false, so the statement as a whole never exits.
		c.gen.DefineLabel(falseLab)
		return FallsThrough
	}

	endLab := c.gen.NewLabel()
	c.gen.Jump(endLab)
	c.toks.Advance()
	c.gen.DefineLabel(falseLab)
	elseExit := c.Statement(false).Exit
	c.gen.DefineLabel(endLab)
	return thenExit.And(elseExit)
}

func (c *Compiler) whileStatement() {
	c.toks.Advance()

	top, exit := c.gen.NewLabel(), c.gen.NewLabel()
	c.loops.Push(&loop.Context{StackDepth: c.fn.StackDepth(), Exit: exit, Continue: top})
	defer c.loops.Pop()

	c.gen.DefineLabel(top)
	c.condition(exit, false)
	body := c.Statement(true)
	c.gen.Jump(top)
	c.gen.DefineLabel(exit)
	c.skipPending(body)
}

// doStatement compiles do body while (cond);. continue re-tests the
// condition, so it gets its own label between the body and the test.
func (c *Compiler) doStatement() {
	c.toks.Advance()

	top, exit, test := c.gen.NewLabel(), c.gen.NewLabel(), c.gen.NewLabel()
	c.loops.Push(&loop.Context{StackDepth: c.fn.StackDepth(), Exit: exit, Continue: test})
	defer c.loops.Pop()

	c.gen.DefineLabel(top)
	c.Statement(false)
	if !c.toks.Match(token.While) {
		c.diag.Error(c.toks.Cur(), "'while' expected")
	}
	c.gen.DefineLabel(test)
	c.condition(top, true)
	c.checkSemi(false)
	c.gen.DefineLabel(exit)
}

// forStatement emits the increment expression where it appears in the
// source and then moves it behind the body, so that an iteration costs one
// jump instead of two.
func (c *Compiler) forStatement() {
	c.toks.Advance()

	test, exit := c.gen.NewLabel(), c.gen.NewLabel()
	incr, body := c.gen.NewLabel(), c.gen.NewLabel()
	c.loops.Push(&loop.Context{
		StackDepth: c.fn.StackDepth(),
		Exit:       exit,
		Continue:   test,
		Increment:  incr,
	})
	defer c.loops.Pop()

	c.expect(token.LParen, "(")
	if !c.toks.Check(token.Semi) {
		c.eval.Expression()
	}
	c.expect(token.Semi, ";")

	c.gen.DefineLabel(test)
	if !c.toks.Check(token.Semi) {
		c.eval.Condition(body, true)
		c.gen.Jump(exit)
	} else {
		c.gen.Jump(body)
	}
	c.expect(token.Semi, ";")

	incStart := c.gen.Mark()
	c.gen.DefineLabel(incr)
	haveInc := !c.toks.Check(token.RParen)
	if haveInc {
		c.eval.Expression()
	}
	c.gen.Jump(test)
	incEnd := c.gen.Mark()
	c.expect(token.RParen, ")")

	c.gen.DefineLabel(body)
	res := c.Statement(true)
	if haveInc {
		c.gen.MoveCode(incStart, incEnd, c.gen.Mark())
	} else {
		c.gen.Jump(incr)
	}
	c.skipPending(res)
	c.gen.DefineLabel(exit)
}
