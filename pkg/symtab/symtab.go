package symtab

import (
	"sort"

	"github.com/xplshn/stmtc/pkg/ir"
	"github.com/xplshn/stmtc/pkg/token"
	"github.com/xplshn/stmtc/pkg/types"
)

type Kind int

const (
	Global Kind = iota
	Local
	Param
	Func
)

type Symbol struct {
	Name     string
	Kind     Kind
	Type     types.Type
	Slot     int // frame byte position of a local or parameter
	Params   []types.Type
	Defined  bool
	Builtin  bool
	Implicit bool // declared by its first call
	Used     bool
	Tok      token.Token
}

func (s *Symbol) IsVar() bool { return s.Kind != Func }

// Table is a stack of lexical levels; level 0 holds globals and functions.
type Table struct {
	scopes []map[string]*Symbol
}

func NewTable() *Table {
	return &Table{scopes: []map[string]*Symbol{make(map[string]*Symbol)}}
}

func (t *Table) EnterBlock() { t.scopes = append(t.scopes, make(map[string]*Symbol)) }

func (t *Table) LeaveBlock() {
	if len(t.scopes) > 1 {
		t.scopes = t.scopes[:len(t.scopes)-1]
	}
}

func (t *Table) Level() int { return len(t.scopes) - 1 }

// Declare adds sym to the innermost level. It returns the symbol already
// declared there under the same name, if any, and does not replace it.
func (t *Table) Declare(sym *Symbol) *Symbol {
	scope := t.scopes[len(t.scopes)-1]
	if prev, ok := scope[sym.Name]; ok {
		return prev
	}
	scope[sym.Name] = sym
	return nil
}

// DeclareGlobal adds sym at file scope regardless of the current level.
func (t *Table) DeclareGlobal(sym *Symbol) *Symbol {
	if prev, ok := t.scopes[0][sym.Name]; ok {
		return prev
	}
	t.scopes[0][sym.Name] = sym
	return nil
}

func (t *Table) Lookup(name string) *Symbol {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		if sym, ok := t.scopes[i][name]; ok {
			return sym
		}
	}
	return nil
}

func (t *Table) LookupGlobal(name string) *Symbol { return t.scopes[0][name] }

// Functions lists the function symbols in name order.
func (t *Table) Functions() []*Symbol {
	var out []*Symbol
	for _, sym := range t.scopes[0] {
		if sym.Kind == Func {
			out = append(out, sym)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type UserLabel struct {
	Name    string
	Label   *ir.Label
	Defined bool
	Used    bool
	Depth   int // stack depth at the definition
	Tok     token.Token
}

// Function is the per-function state shared by the statement compiler and
// the expression evaluator: the value stack depth and the return protocol.
type Function struct {
	Sym         *Symbol
	sp          int
	topLevelSP  int
	returnLabel *ir.Label
	labels      map[string]*UserLabel
	order       []*UserLabel
	newLabel    func(name string) *ir.Label
}

// NewFunction starts a function whose parameters occupy paramBytes of stack.
func NewFunction(sym *Symbol, paramBytes int, ret *ir.Label, newLabel func(string) *ir.Label) *Function {
	return &Function{
		Sym: sym, sp: paramBytes, topLevelSP: paramBytes, returnLabel: ret,
		labels: make(map[string]*UserLabel), newLabel: newLabel,
	}
}

func (f *Function) Name() string                { return f.Sym.Name }
func (f *Function) StackDepth() int             { return f.sp }
func (f *Function) SetStackDepth(n int)         { f.sp = n }
func (f *Function) TopLevelDepth() int          { return f.topLevelSP }
func (f *Function) ReturnType() types.Type      { return f.Sym.Type }
func (f *Function) ReturnsVoid() bool           { return f.Sym.Type == types.Void }
func (f *Function) ReturnLabel() *ir.Label      { return f.returnLabel }
func (f *Function) UserLabels() []*UserLabel    { return f.order }

// Label returns the function-scoped label called name, creating it on first use.
func (f *Function) Label(name string, tok token.Token) *UserLabel {
	if ul, ok := f.labels[name]; ok {
		return ul
	}
	ul := &UserLabel{Name: name, Label: f.newLabel(name), Tok: tok}
	f.labels[name] = ul
	f.order = append(f.order, ul)
	return ul
}
