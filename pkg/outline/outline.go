// Package outline records the statement structure of a compilation and
// draws it as a tree.
package outline

import (
	"fmt"
	"io"
	"sort"

	asciitree "github.com/thediveo/go-asciitree"
	"github.com/xplshn/stmtc/pkg/stmt"
	"github.com/xplshn/stmtc/pkg/token"
)

type AsciiNode struct {
	Label    string      `asciitree:"label"`
	Props    []string    `asciitree:"properties"`
	Children []AsciiNode `asciitree:"children"`
}

// Node is one recorded statement.
type Node struct {
	Kind     stmt.Kind
	Line     int
	Exit     stmt.Exit
	Notes    map[string]string
	Children []*Node
}

// Recorder implements stmt.Tracer and groups statements by function.
type Recorder struct {
	Unit  string
	Funcs []*Func
	open  []*Node
}

type Func struct {
	Name string
	Body []*Node
}

func NewRecorder(unit string) *Recorder { return &Recorder{Unit: unit} }

// Function starts the outline of a new function body.
func (r *Recorder) Function(name string) {
	r.Funcs = append(r.Funcs, &Func{Name: name})
	r.open = r.open[:0]
}

func (r *Recorder) Enter(kind stmt.Kind, tok token.Token) {
	n := &Node{Kind: kind, Line: tok.Line}
	switch {
	case len(r.open) > 0:
		parent := r.open[len(r.open)-1]
		parent.Children = append(parent.Children, n)
	case len(r.Funcs) > 0:
		f := r.Funcs[len(r.Funcs)-1]
		f.Body = append(f.Body, n)
	default:
		r.Funcs = append(r.Funcs, &Func{Name: "?", Body: []*Node{n}})
	}
	r.open = append(r.open, n)
}

func (r *Recorder) Annotate(key, value string) {
	if len(r.open) == 0 {
		return
	}
	n := r.open[len(r.open)-1]
	if n.Notes == nil {
		n.Notes = make(map[string]string)
	}
	n.Notes[key] = value
}

func (r *Recorder) Leave(res stmt.Result) {
	if len(r.open) == 0 {
		return
	}
	r.open[len(r.open)-1].Exit = res.Exit
	r.open = r.open[:len(r.open)-1]
}

func convertToTree(n *Node) AsciiNode {
	keys := make([]string, 0, len(n.Notes))
	for k := range n.Notes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	props := []string{fmt.Sprintf("line: %d", n.Line), fmt.Sprintf("exit: %s", n.Exit)}
	for _, k := range keys {
		props = append(props, fmt.Sprintf("%s: %s", k, n.Notes[k]))
	}

	var children []AsciiNode
	for _, c := range n.Children {
		children = append(children, convertToTree(c))
	}
	return AsciiNode{Label: n.Kind.String(), Props: props, Children: children}
}

// Tree converts the recording into the form asciitree renders.
func (r *Recorder) Tree() AsciiNode {
	root := AsciiNode{Label: r.Unit}
	for _, f := range r.Funcs {
		fn := AsciiNode{Label: f.Name + "()"}
		for _, n := range f.Body {
			fn.Children = append(fn.Children, convertToTree(n))
		}
		root.Children = append(root.Children, fn)
	}
	return root
}

func (r *Recorder) Print(w io.Writer) {
	fmt.Fprintln(w, asciitree.RenderFancy(r.Tree()))
}
