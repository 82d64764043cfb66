// Package loop keeps the stack of enclosing loops and switches that break
// and continue resolve against.
package loop

import "github.com/xplshn/stmtc/pkg/ir"

// Context is one active loop or switch. Continue is nil for a switch, and
// Increment is only set for a for loop.
type Context struct {
	StackDepth int
	Exit       *ir.Label
	Continue   *ir.Label
	Increment  *ir.Label
	next       *Context
}

func (c *Context) IsSwitch() bool { return c.Continue == nil }

// Enclosing is the next outer context, or nil.
func (c *Context) Enclosing() *Context { return c.next }

// ContinueLabel is where a continue bound to c jumps.
func (c *Context) ContinueLabel() *ir.Label {
	if c.Increment != nil {
		return c.Increment
	}
	return c.Continue
}

type Stack struct {
	top   *Context
	depth int
}

func (s *Stack) Push(c *Context) {
	c.next = s.top
	s.top = c
	s.depth++
}

// Pop removes the innermost context. Popping an empty stack is a compiler bug.
func (s *Stack) Pop() *Context {
	c := s.top
	if c == nil {
		panic("loop: pop of empty context stack")
	}
	s.top, c.next = c.next, nil
	s.depth--
	return c
}

func (s *Stack) Current() *Context { return s.top }
func (s *Stack) Len() int          { return s.depth }

// ContinueTarget walks outwards past switches to the nearest loop.
func (s *Stack) ContinueTarget() *Context {
	for c := s.top; c != nil; c = c.next {
		if !c.IsSwitch() {
			return c
		}
	}
	return nil
}
