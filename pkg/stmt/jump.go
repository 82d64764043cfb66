package stmt

import (
	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/token"
)

func (c *Compiler) breakStatement() {
	tok := c.toks.Cur()
	c.toks.Advance()

	ctx := c.loops.Current()
	if ctx == nil {
		c.diag.Error(tok, "'break' statement not within loop or switch")
		return
	}
	c.gen.Space(c.fn.StackDepth() - ctx.StackDepth)
	c.gen.Jump(ctx.Exit)
}

func (c *Compiler) continueStatement() {
	tok := c.toks.Cur()
	c.toks.Advance()

	ctx := c.loops.ContinueTarget()
	if ctx == nil {
		c.diag.Error(tok, "'continue' statement not within a loop")
		return
	}
	c.gen.Space(c.fn.StackDepth() - ctx.StackDepth)
	c.gen.Jump(ctx.ContinueLabel())
}

func (c *Compiler) returnStatement() {
	tok := c.toks.Cur()
	c.toks.Advance()

	if !c.toks.Check(token.Semi) {
		if c.fn.ReturnsVoid() {
			c.diag.Error(tok, "Returning a value in function with return type void")
		}
		d := c.eval.Expression()
		if !c.fn.ReturnsVoid() {
			c.eval.AssignAdjust(c.fn.ReturnType(), d)
		}
	} else if !c.fn.ReturnsVoid() {
		c.diag.Error(tok, "Function '%s' must return a value", c.fn.Name())
	}

	// Locals of the enclosing blocks go away before the shared exit code.
	c.gen.Space(c.fn.StackDepth() - c.fn.TopLevelDepth())
	c.gen.Jump(c.fn.ReturnLabel())
}

// gotoStatement jumps to a function-scoped label. A backward jump releases
// the stack down to the label's depth; a forward jump must not cross a
// block with locals, which is checked when the label shows up.
func (c *Compiler) gotoStatement() {
	tok := c.toks.Cur()
	c.toks.Advance()
	if !c.cfg.IsFeatureEnabled(config.FeatGoto) {
		c.diag.Error(tok, "'goto' is disabled (-Fno-goto)")
	}

	name := c.toks.Cur()
	if name.Type != token.Ident {
		c.diag.Error(name, "Label name expected")
		return
	}
	c.toks.Advance()

	ul := c.fn.Label(name.Value, name)
	ul.Used = true
	depth := c.fn.StackDepth()
	if ul.Defined {
		c.gen.Space(depth - ul.Depth)
	} else {
		c.gotos[ul] = append(c.gotos[ul], gotoRef{tok: name, depth: depth})
	}
	c.gen.Jump(ul.Label)
}

// labeledStatement defines name: and compiles the statement it labels. A
// label is a jump target, so the statement never counts as an exit.
func (c *Compiler) labeledStatement(tok token.Token, wantPending bool) Result {
	c.toks.Advance() // name
	c.toks.Advance() // :
	if !c.cfg.IsFeatureEnabled(config.FeatGoto) {
		c.diag.Error(tok, "Statement labels are disabled (-Fno-goto)")
	}

	ul := c.fn.Label(tok.Value, tok)
	if ul.Defined {
		c.diag.Error(tok, "Label '%s' is defined more than once", tok.Value)
	} else {
		depth := c.fn.StackDepth()
		ul.Defined, ul.Tok, ul.Depth = true, tok, depth
		c.gen.DefineLabel(ul.Label)
		for _, ref := range c.gotos[ul] {
			if ref.depth != depth {
				c.diag.Error(ref.tok, "'goto %s' jumps across a block with local variables", tok.Value)
			}
		}
		delete(c.gotos, ul)
	}

	if c.toks.Check(token.RBrace) {
		c.diag.Error(c.toks.Cur(), "Statement expected")
		return Result{}
	}
	res := c.Statement(wantPending)
	return Result{Exit: FallsThrough, Term: res.Term}
}
