// Package compiler drives one translation unit: it lexes the source, handles
// the file-level declarations and hands every function body to the
// statement compiler.
package compiler

import (
	"fmt"

	"github.com/xplshn/stmtc/pkg/codegen"
	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/expr"
	"github.com/xplshn/stmtc/pkg/ir"
	"github.com/xplshn/stmtc/pkg/lexer"
	"github.com/xplshn/stmtc/pkg/scanner"
	"github.com/xplshn/stmtc/pkg/stmt"
	"github.com/xplshn/stmtc/pkg/symtab"
	"github.com/xplshn/stmtc/pkg/token"
	"github.com/xplshn/stmtc/pkg/types"
	"github.com/xplshn/stmtc/pkg/util"
)

// BuiltinOut is the one library routine every unit can call: void out(int)
// records its argument as program output.
const BuiltinOut = "out"

type Compiler struct {
	cfg   *config.Config
	diag  *util.Reporter
	trace stmt.Tracer

	toks  *scanner.Scanner
	cg    *codegen.Context
	syms  *symtab.Table
	eval  *expr.Evaluator
	stmts *stmt.Compiler
	fn    *symtab.Function
}

func New(cfg *config.Config, diag *util.Reporter) *Compiler {
	return &Compiler{cfg: cfg, diag: diag}
}

// SetTracer installs an observer for the statements of the next Compile.
func (c *Compiler) SetTracer(t stmt.Tracer) { c.trace = t }

// Compile translates the source of one file. Diagnostics go to the
// reporter; the error is non-nil when any of them was an error.
func (c *Compiler) Compile(name string, src []rune) (*ir.Program, error) {
	errorsBefore := c.diag.ErrorCount()
	fileIndex := c.diag.AddSourceFile(name, src)
	tokens := lexer.NewLexer(src, fileIndex, c.cfg, c.diag).Tokenize()

	c.toks = scanner.New(tokens)
	c.cg = codegen.NewContext(c.cfg)
	c.syms = symtab.NewTable()
	c.eval = expr.New(c.toks, c.cg, c.syms, c.diag, c.cfg)
	c.stmts = stmt.New(c.toks, c.eval, c.cg, c, c.diag, c.cfg)
	if c.trace != nil {
		c.stmts.SetTracer(c.trace)
	}

	c.syms.Declare(&symtab.Symbol{
		Name: BuiltinOut, Kind: symtab.Func, Type: types.Void,
		Params: []types.Type{types.Int}, Defined: true, Builtin: true,
	})

	for !c.toks.AtEnd() {
		c.topLevel()
	}

	for _, sym := range c.syms.Functions() {
		if sym.Used && !sym.Defined {
			c.diag.Error(sym.Tok, "Undefined function '%s'", sym.Name)
		}
	}

	if n := c.diag.ErrorCount() - errorsBefore; n > 0 {
		return c.cg.Program(), fmt.Errorf("%s: %d error(s)", name, n)
	}
	return c.cg.Program(), nil
}

func (c *Compiler) topLevel() {
	tok := c.toks.Cur()
	switch {
	case tok.Type == token.Pragma:
		c.toks.Advance()
		stmt.ApplyPragma(tok, c.cfg, c.diag)
		return
	case tok.Type == token.Semi:
		c.toks.Advance()
		return
	case !tok.Type.IsTypeSpecifier():
		c.diag.Error(tok, "Declaration expected")
		c.toks.Advance()
		return
	}

	typ := c.parseType()
	name := c.toks.Cur()
	if name.Type != token.Ident {
		c.diag.Error(name, "Identifier expected")
		c.skipTo(token.Semi)
		return
	}
	c.toks.Advance()

	if c.toks.Check(token.LParen) {
		c.function(typ, name)
		return
	}
	c.globals(typ, name)
}

func (c *Compiler) skipTo(t token.Type) {
	for !c.toks.Check(t) && !c.toks.AtEnd() {
		c.toks.Advance()
	}
	c.toks.Match(t)
}

func (c *Compiler) expect(t token.Type, what string) {
	if !c.toks.Match(t) {
		c.diag.Error(c.toks.Cur(), "'%s' expected", what)
	}
}

// parseType reads a run of type specifiers. Plain char follows the
// signed-chars feature; short is the same as int.
func (c *Compiler) parseType() types.Type {
	var signed, unsigned bool
	base := token.Int
	haveBase := false
	for c.toks.Cur().Type.IsTypeSpecifier() {
		tok := c.toks.Cur()
		switch tok.Type {
		case token.Signed:
			signed = true
		case token.Unsigned:
			unsigned = true
		case token.Int:
			if haveBase && base == token.Short {
				break
			}
			fallthrough
		default:
			if haveBase {
				c.diag.Error(tok, "Duplicate type specifier '%s'", tok.Type)
			}
			base, haveBase = tok.Type, true
		}
		c.toks.Advance()
	}
	if signed && unsigned {
		c.diag.Error(c.toks.Prev(), "Both 'signed' and 'unsigned' specified")
	}

	switch base {
	case token.Void:
		return types.Void
	case token.Char:
		switch {
		case unsigned:
			return types.UChar
		case signed || c.cfg.IsFeatureEnabled(config.FeatSignedChars):
			return types.SChar
		}
		return types.UChar
	}
	if unsigned {
		return types.UInt
	}
	return types.Int
}

func (c *Compiler) globals(typ types.Type, name token.Token) {
	for {
		if typ == types.Void {
			c.diag.Error(name, "Variable '%s' declared void", name.Value)
			typ = types.Int
		}
		var init int64
		if c.toks.Match(token.Eq) {
			d := c.eval.ConstInt()
			if !typ.InRange(d.Value) {
				c.diag.Warn(config.WarnOverflow, name, "Initializer %d is out of range for '%s'", d.Value, typ)
			}
			init = d.Value
		}
		sym := &symtab.Symbol{Name: name.Value, Kind: symtab.Global, Type: typ, Defined: true, Tok: name}
		if prev := c.syms.Declare(sym); prev != nil {
			c.diag.Error(name, "Multiple definition for '%s'", name.Value)
		} else {
			c.cg.AddGlobal(name.Value, typ, init)
		}

		if !c.toks.Match(token.Comma) {
			break
		}
		name = c.toks.Cur()
		if name.Type != token.Ident {
			c.diag.Error(name, "Identifier expected")
			break
		}
		c.toks.Advance()
	}
	c.expect(token.Semi, ";")
}

type param struct {
	tok token.Token
	typ types.Type
}

func (c *Compiler) parameters() []param {
	c.toks.Advance() // (
	if c.toks.Check(token.Void) && c.toks.Peek().Type == token.RParen {
		c.toks.Advance()
	}
	var params []param
	for !c.toks.Check(token.RParen) && !c.toks.AtEnd() {
		tok := c.toks.Cur()
		if !tok.Type.IsTypeSpecifier() {
			c.diag.Error(tok, "Parameter type expected")
			break
		}
		p := param{typ: c.parseType()}
		if p.typ == types.Void {
			c.diag.Error(tok, "Parameter declared void")
			p.typ = types.Int
		}
		p.tok = c.toks.Cur()
		if p.tok.Type == token.Ident {
			c.toks.Advance()
		} else {
			p.tok = token.Token{}
		}
		params = append(params, p)
		if !c.toks.Match(token.Comma) {
			break
		}
	}
	c.expect(token.RParen, ")")
	return params
}

func paramTypes(params []param) []types.Type {
	out := make([]types.Type, len(params))
	for i, p := range params {
		out[i] = p.typ
	}
	return out
}

func sameTypes(a, b []types.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *Compiler) function(ret types.Type, name token.Token) {
	params := c.parameters()
	ptypes := paramTypes(params)

	sym := c.syms.LookupGlobal(name.Value)
	switch {
	case sym == nil:
		sym = &symtab.Symbol{Name: name.Value, Kind: symtab.Func, Type: ret, Params: ptypes, Tok: name}
		c.syms.Declare(sym)
	case sym.Kind != symtab.Func:
		c.diag.Error(name, "'%s' redeclared as a different kind of symbol", name.Value)
		sym = &symtab.Symbol{Name: name.Value, Kind: symtab.Func, Type: ret, Params: ptypes, Tok: name}
	case sym.Implicit:
		if ret != types.Int {
			c.diag.Error(name, "Conflicting types for '%s' (implicitly declared as returning int)", name.Value)
		}
		sym.Implicit, sym.Type, sym.Params = false, ret, ptypes
	case sym.Type != ret || !sameTypes(sym.Params, ptypes) || sym.Builtin:
		c.diag.Error(name, "Conflicting types for '%s'", name.Value)
	}

	if c.toks.Match(token.Semi) {
		return
	}
	if !c.toks.Check(token.LBrace) {
		c.diag.Error(c.toks.Cur(), "'{' expected")
		c.skipTo(token.Semi)
		return
	}
	if sym.Defined {
		c.diag.Error(name, "Function '%s' is already defined", name.Value)
	}
	sym.Defined = true
	sym.Tok = name
	c.body(sym, params)
}

// body compiles a function definition. Arguments are pushed left to right,
// two bytes each, so parameter i lives at frame byte 2*i and the function
// starts with its parameters as the top-level stack depth.
func (c *Compiler) body(sym *symtab.Symbol, params []param) {
	if fr, ok := c.trace.(interface{ Function(name string) }); ok {
		fr.Function(sym.Name)
	}
	paramBytes := 2 * len(params)
	c.cg.BeginFunc(sym.Name, sym.Type, paramBytes)
	retLab := c.cg.NewLabel()
	c.fn = symtab.NewFunction(sym, paramBytes, retLab, c.cg.NamedLabel)
	c.eval.SetFunction(c.fn)
	c.stmts.BeginFunction(c.fn)

	c.syms.EnterBlock()
	for i, p := range params {
		if p.tok.Type != token.Ident {
			c.diag.Error(c.toks.Cur(), "Parameter %d of '%s' has no name", i+1, sym.Name)
			continue
		}
		ps := &symtab.Symbol{Name: p.tok.Value, Kind: symtab.Param, Type: p.typ, Slot: 2 * i, Defined: true, Tok: p.tok}
		if prev := c.syms.Declare(ps); prev != nil {
			c.diag.Error(p.tok, "Redefinition of parameter '%s'", p.tok.Value)
		}
	}

	c.stmts.Statement(false)
	c.stmts.EndFunction()
	c.syms.LeaveBlock()

	c.cg.DefineLabel(retLab)
	c.cg.EndFunc()
	c.eval.SetFunction(nil)
	c.fn = nil
}

func (c *Compiler) EnterBlock() { c.syms.EnterBlock() }
func (c *Compiler) LeaveBlock() { c.syms.LeaveBlock() }

// DeclareLocals handles the declarations at the head of a block. Each
// variable gets its own stack slot at the current depth.
func (c *Compiler) DeclareLocals() {
	for c.toks.Cur().Type.IsTypeSpecifier() {
		typ := c.parseType()
		if typ == types.Void {
			c.diag.Error(c.toks.Cur(), "Variable declared void")
			typ = types.Int
		}
		for {
			name := c.toks.Cur()
			if name.Type != token.Ident {
				c.diag.Error(name, "Identifier expected")
				break
			}
			c.toks.Advance()

			slot := c.fn.StackDepth()
			c.cg.Space(-typ.Size())
			c.fn.SetStackDepth(slot + typ.Size())
			sym := &symtab.Symbol{Name: name.Value, Kind: symtab.Local, Type: typ, Slot: slot, Defined: true, Tok: name}
			if prev := c.syms.Declare(sym); prev != nil {
				c.diag.Error(name, "Multiple definition for '%s'", name.Value)
			}

			if c.toks.Match(token.Eq) {
				d := c.eval.Assignment()
				c.eval.AssignAdjust(typ, d)
				c.cg.StoreLocal(typ, c.fn.StackDepth()-slot)
			}
			if !c.toks.Match(token.Comma) {
				break
			}
		}
		c.expect(token.Semi, ";")
	}
}
