// Package stmt compiles C statements straight into pseudo-instructions. It
// drives the recursive descent over statement forms, keeps the stack of
// enclosing loops and switches that break and continue resolve against, and
// picks the lowering of each switch.
package stmt

import (
	"github.com/xplshn/stmtc/pkg/codegen"
	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/expr"
	"github.com/xplshn/stmtc/pkg/ir"
	"github.com/xplshn/stmtc/pkg/loop"
	"github.com/xplshn/stmtc/pkg/symtab"
	"github.com/xplshn/stmtc/pkg/token"
	"github.com/xplshn/stmtc/pkg/types"
)

// Exit tells whether control can reach the end of a statement.
type Exit int

const (
	FallsThrough Exit = iota
	DefiniteExit
)

func (e Exit) String() string {
	if e == DefiniteExit {
		return "exits"
	}
	return "falls through"
}

// And combines two alternative paths: the result exits only if both do.
func (e Exit) And(o Exit) Exit {
	if e == DefiniteExit && o == DefiniteExit {
		return DefiniteExit
	}
	return FallsThrough
}

// Termination reports what happened to the token that ends a statement.
// Pending means it was checked but left for the caller to skip.
type Termination int

const (
	Consumed Termination = iota
	Pending
)

type Result struct {
	Exit Exit
	Term Termination
}

type TokenStream interface {
	Cur() token.Token
	Peek() token.Token
	Advance()
	Check(t token.Type) bool
	Match(t token.Type) bool
	AtEnd() bool
}

type Evaluator interface {
	Expression() expr.Desc
	IntExpression() expr.Desc
	ConstInt() expr.Desc
	Condition(target *ir.Label, onTrue bool)
	AssignAdjust(to types.Type, d expr.Desc)
}

// Generator is the part of the code buffer the statement compiler drives.
type Generator interface {
	NewLabel() *ir.Label
	DefineLabel(l *ir.Label)
	Jump(l *ir.Label)
	CondJump(l *ir.Label, onTrue bool)
	Compare(typ types.Type, v int64)
	DispatchTable(typ types.Type, cases []ir.Case)
	Space(n int)
	Mark() codegen.Mark
	MoveCode(start, end, target codegen.Mark)
}

// Function is the state of the function being compiled.
type Function interface {
	Name() string
	StackDepth() int
	SetStackDepth(n int)
	TopLevelDepth() int
	ReturnType() types.Type
	ReturnsVoid() bool
	ReturnLabel() *ir.Label
	Label(name string, tok token.Token) *symtab.UserLabel
	UserLabels() []*symtab.UserLabel
}

// Declarations handles block scopes and the declarations at their head.
type Declarations interface {
	EnterBlock()
	LeaveBlock()
	DeclareLocals()
}

type Reporter interface {
	Error(tok token.Token, format string, args ...any)
	Warn(wt config.Warning, tok token.Token, format string, args ...any)
}

// Tracer observes statement compilation. It is used to draw outlines.
type Tracer interface {
	Enter(kind Kind, tok token.Token)
	Annotate(key, value string)
	Leave(res Result)
}

type Kind int

const (
	KindExpr Kind = iota
	KindCompound
	KindIf
	KindWhile
	KindDo
	KindFor
	KindSwitch
	KindBreak
	KindContinue
	KindReturn
	KindGoto
	KindLabel
	KindPragma
	KindEmpty
	KindStrayLabel
	KindDecl
)

var kindNames = [...]string{
	KindExpr: "expr", KindCompound: "block", KindIf: "if", KindWhile: "while", KindDo: "do",
	KindFor: "for", KindSwitch: "switch", KindBreak: "break", KindContinue: "continue",
	KindReturn: "return", KindGoto: "goto", KindLabel: "label", KindPragma: "pragma",
	KindEmpty: "empty", KindStrayLabel: "case", KindDecl: "decl",
}

func (k Kind) String() string { return kindNames[k] }

type gotoRef struct {
	tok   token.Token
	depth int
}

type Compiler struct {
	toks  TokenStream
	eval  Evaluator
	gen   Generator
	decls Declarations
	diag  Reporter
	cfg   *config.Config
	trace Tracer

	fn    Function
	loops loop.Stack
	gotos map[*symtab.UserLabel][]gotoRef
}

func New(toks TokenStream, eval Evaluator, gen Generator, decls Declarations, diag Reporter, cfg *config.Config) *Compiler {
	return &Compiler{toks: toks, eval: eval, gen: gen, decls: decls, diag: diag, cfg: cfg}
}

func (c *Compiler) SetTracer(t Tracer) { c.trace = t }

// Loops exposes the stack of enclosing loops and switches.
func (c *Compiler) Loops() *loop.Stack { return &c.loops }

// BeginFunction makes fn the target of return statements and labels.
func (c *Compiler) BeginFunction(fn Function) {
	c.fn = fn
	c.gotos = make(map[*symtab.UserLabel][]gotoRef)
}

// EndFunction checks the labels of the finished function.
func (c *Compiler) EndFunction() {
	for _, ul := range c.fn.UserLabels() {
		switch {
		case !ul.Defined:
			c.diag.Error(ul.Tok, "Undefined label: '%s'", ul.Name)
		case !ul.Used:
			c.diag.Warn(config.WarnUnusedLabel, ul.Tok, "Label '%s' is defined but never used", ul.Name)
		}
	}
	if c.loops.Len() != 0 {
		panic("stmt: loop context stack not empty at end of function")
	}
	c.fn, c.gotos = nil, nil
}

func (c *Compiler) kindOf(tok token.Token) Kind {
	if tok.Type == token.Ident && c.toks.Peek().Type == token.Colon {
		return KindLabel
	}
	switch tok.Type {
	case token.LBrace:
		return KindCompound
	case token.If:
		return KindIf
	case token.While:
		return KindWhile
	case token.Do:
		return KindDo
	case token.For:
		return KindFor
	case token.Switch:
		return KindSwitch
	case token.Break:
		return KindBreak
	case token.Continue:
		return KindContinue
	case token.Return:
		return KindReturn
	case token.Goto:
		return KindGoto
	case token.Pragma:
		return KindPragma
	case token.Semi:
		return KindEmpty
	case token.Case, token.Default:
		return KindStrayLabel
	}
	if tok.Type.IsTypeSpecifier() {
		return KindDecl
	}
	return KindExpr
}

// Statement compiles exactly one statement. With wantPending set, the
// terminating ';' or '}' is checked but not skipped, and Term says whether
// the caller has to skip it.
func (c *Compiler) Statement(wantPending bool) Result {
	tok := c.toks.Cur()
	kind := c.kindOf(tok)
	if c.trace != nil {
		c.trace.Enter(kind, tok)
	}
	res := c.dispatch(kind, tok, wantPending)
	if c.trace != nil {
		c.trace.Leave(res)
	}
	return res
}

func (c *Compiler) dispatch(kind Kind, tok token.Token, wantPending bool) Result {
	switch kind {
	case KindLabel:
		return c.labeledStatement(tok, wantPending)
	case KindCompound:
		c.toks.Advance()
		exit := c.compound()
		return Result{Exit: exit, Term: c.checkTok(token.RBrace, "'}' expected", wantPending)}
	case KindIf:
		return Result{Exit: c.ifStatement()}
	case KindWhile:
		c.whileStatement()
	case KindDo:
		c.doStatement()
	case KindFor:
		c.forStatement()
	case KindSwitch:
		c.switchStatement()
	case KindBreak:
		c.breakStatement()
		return Result{Exit: DefiniteExit, Term: c.checkSemi(wantPending)}
	case KindContinue:
		c.continueStatement()
		return Result{Exit: DefiniteExit, Term: c.checkSemi(wantPending)}
	case KindReturn:
		c.returnStatement()
		return Result{Exit: DefiniteExit, Term: c.checkSemi(wantPending)}
	case KindGoto:
		c.gotoStatement()
		return Result{Exit: DefiniteExit, Term: c.checkSemi(wantPending)}
	case KindPragma:
		c.toks.Advance()
		ApplyPragma(tok, c.cfg, c.diag)
	case KindEmpty:
		c.toks.Advance()
	case KindStrayLabel:
		c.strayLabel(tok)
	case KindDecl:
		c.diag.Error(tok, "Declarations are only allowed at the start of a block")
		c.decls.DeclareLocals()
	default:
		c.eval.Expression()
		return Result{Term: c.checkSemi(wantPending)}
	}
	return Result{}
}

// compound compiles the statements of a block after its '{'. Only the last
// statement decides whether the block exits.
func (c *Compiler) compound() Exit {
	oldDepth := c.fn.StackDepth()
	c.decls.EnterBlock()
	c.decls.DeclareLocals()

	exit, warned := FallsThrough, false
	for !c.toks.Check(token.RBrace) && !c.toks.AtEnd() {
		if exit == DefiniteExit && !warned && c.kindOf(c.toks.Cur()) != KindLabel {
			c.diag.Warn(config.WarnUnreachableCode, c.toks.Cur(), "Unreachable code")
			warned = true
		}
		exit = c.Statement(false).Exit
	}

	if exit != DefiniteExit {
		c.gen.Space(c.fn.StackDepth() - oldDepth)
	}
	c.fn.SetStackDepth(oldDepth)
	c.decls.LeaveBlock()
	return exit
}

func (c *Compiler) strayLabel(tok token.Token) {
	c.toks.Advance()
	if tok.Type == token.Case {
		c.diag.Error(tok, "Case label not within a switch statement")
		c.eval.ConstInt()
	} else {
		c.diag.Error(tok, "Default label not within a switch statement")
	}
	c.expect(token.Colon, ":")
}

// checkTok verifies the terminator t. A missing terminator is reported and
// treated as present.
func (c *Compiler) checkTok(t token.Type, msg string, wantPending bool) Termination {
	if !c.toks.Check(t) {
		c.diag.Error(c.toks.Cur(), msg)
		return Consumed
	}
	if wantPending {
		return Pending
	}
	c.toks.Advance()
	return Consumed
}

func (c *Compiler) checkSemi(wantPending bool) Termination {
	return c.checkTok(token.Semi, "';' expected", wantPending)
}

func (c *Compiler) skipPending(res Result) {
	if res.Term == Pending {
		c.toks.Advance()
	}
}

func (c *Compiler) expect(t token.Type, what string) {
	if !c.toks.Match(t) {
		c.diag.Error(c.toks.Cur(), "'%s' expected", what)
	}
}

// condition compiles a parenthesized controlling expression that branches
// to target when its value equals onTrue.
func (c *Compiler) condition(target *ir.Label, onTrue bool) {
	c.expect(token.LParen, "(")
	c.eval.Condition(target, onTrue)
	c.expect(token.RParen, ")")
}
