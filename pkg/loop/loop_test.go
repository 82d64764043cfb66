package loop

import (
	"testing"

	"github.com/xplshn/stmtc/pkg/ir"
)

func TestStack(t *testing.T) {
	var s Stack
	if s.Current() != nil || s.ContinueTarget() != nil {
		t.Fatal("empty stack has a current context")
	}

	outerExit, outerTop := &ir.Label{Name: "L1"}, &ir.Label{Name: "L2"}
	incr := &ir.Label{Name: "L3"}
	outer := &Context{StackDepth: 2, Exit: outerExit, Continue: outerTop, Increment: incr}
	sw := &Context{StackDepth: 4, Exit: &ir.Label{Name: "L4"}}

	s.Push(outer)
	s.Push(sw)

	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if s.Current() != sw || !sw.IsSwitch() {
		t.Error("the switch should be the current context")
	}
	if sw.Enclosing() != outer {
		t.Error("the switch should be enclosed by the loop")
	}
	if got := s.ContinueTarget(); got != outer {
		t.Errorf("ContinueTarget() skipped to %v, want the enclosing loop", got)
	}
	if got := outer.ContinueLabel(); got != incr {
		t.Errorf("ContinueLabel() = %v, want the increment label", got)
	}

	if s.Pop() != sw || s.Pop() != outer {
		t.Fatal("Pop returned contexts out of order")
	}
	if s.Len() != 0 || s.Current() != nil {
		t.Error("stack not empty after popping everything")
	}
}

func TestContinueLabelWithoutIncrement(t *testing.T) {
	top := &ir.Label{Name: "L1"}
	c := &Context{Exit: &ir.Label{Name: "L2"}, Continue: top}
	if c.ContinueLabel() != top {
		t.Error("a while loop continues at its top label")
	}
}

func TestPopEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Pop on an empty stack did not panic")
		}
	}()
	var s Stack
	s.Pop()
}
