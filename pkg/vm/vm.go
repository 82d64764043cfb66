// Package vm interprets compiled programs on the accumulator machine the
// code generator targets. It is how listings are checked for behavior.
package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/xplshn/stmtc/pkg/ir"
	"github.com/xplshn/stmtc/pkg/types"
)

var (
	ErrStepLimit       = errors.New("step limit exceeded")
	ErrUnknownFunction = errors.New("unknown function")
	ErrStackUnderflow  = errors.New("value stack underflow")
	ErrStackOverflow   = errors.New("value stack overflow")
	ErrDivideByZero    = errors.New("division by zero")
	ErrCallDepth       = errors.New("call depth exceeded")
)

const (
	StackSize    = 1 << 16
	maxCallDepth = 4096
)

// Result is what a run leaves behind.
type Result struct {
	Return  int64            `json:"return"`
	Output  []int64          `json:"output"`
	Globals map[string]int64 `json:"globals"`
	Steps   int              `json:"steps"`
}

type function struct {
	fn     *ir.Func
	labels map[*ir.Label]int
}

type Machine struct {
	prog     *ir.Program
	maxSteps int
	funcs    map[string]*function
	globals  map[string]int64
	stack    []byte
	sp       int
	output   []int64
	steps    int
	depth    int
	ctx      context.Context
}

// New prepares prog for execution. maxSteps <= 0 means no limit.
func New(prog *ir.Program, maxSteps int) *Machine {
	m := &Machine{
		prog:     prog,
		maxSteps: maxSteps,
		funcs:    make(map[string]*function),
		globals:  make(map[string]int64),
		stack:    make([]byte, StackSize),
	}
	for _, fn := range prog.Funcs {
		m.funcs[fn.Name] = &function{fn: fn, labels: fn.Labels()}
	}
	for _, g := range prog.Globals {
		m.globals[g.Name] = g.Typ.Normalize(g.Init)
	}
	return m
}

// Run calls entry with args and returns its result. The globals and the
// output collected so far are included even when an error stops the run.
func (m *Machine) Run(ctx context.Context, entry string, args ...int64) (*Result, error) {
	m.ctx = ctx
	for _, a := range args {
		if err := m.push(types.Int, a); err != nil {
			return m.result(0), err
		}
	}
	ret, err := m.call(entry)
	if err != nil {
		return m.result(0), err
	}
	if f := m.funcs[entry]; f != nil {
		ret = f.fn.Ret.Normalize(ret)
	}
	return m.result(ret), nil
}

func (m *Machine) result(ret int64) *Result {
	globals := make(map[string]int64, len(m.globals))
	for k, v := range m.globals {
		globals[k] = v
	}
	return &Result{Return: ret, Output: append([]int64(nil), m.output...), Globals: globals, Steps: m.steps}
}

func (m *Machine) call(name string) (int64, error) {
	if name == "out" && m.funcs[name] == nil {
		v, err := m.load(types.Int, 2)
		if err != nil {
			return 0, err
		}
		m.output = append(m.output, v)
		return 0, m.release(2)
	}
	f := m.funcs[name]
	if f == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if m.depth >= maxCallDepth {
		return 0, fmt.Errorf("%w in %s", ErrCallDepth, name)
	}
	m.depth++
	defer func() { m.depth-- }()
	ret, err := m.exec(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return ret, nil
}

func (m *Machine) addr(offset int64) (int, error) {
	a := m.sp - int(offset)
	if a < 0 {
		return 0, ErrStackUnderflow
	}
	return a, nil
}

func (m *Machine) load(typ types.Type, offset int64) (int64, error) {
	a, err := m.addr(offset)
	if err != nil {
		return 0, err
	}
	if typ.Size() == 1 {
		return typ.Normalize(int64(m.stack[a])), nil
	}
	if a+1 >= len(m.stack) {
		return 0, ErrStackOverflow
	}
	return typ.Normalize(int64(m.stack[a]) | int64(m.stack[a+1])<<8), nil
}

func (m *Machine) store(typ types.Type, offset, v int64) error {
	a, err := m.addr(offset)
	if err != nil {
		return err
	}
	m.stack[a] = byte(v)
	if typ.Size() == 2 {
		if a+1 >= len(m.stack) {
			return ErrStackOverflow
		}
		m.stack[a+1] = byte(v >> 8)
	}
	return nil
}

func (m *Machine) push(typ types.Type, v int64) error {
	size := typ.Size()
	if m.sp+size > len(m.stack) {
		return ErrStackOverflow
	}
	m.sp += size
	return m.store(typ, int64(size), v)
}

func (m *Machine) release(n int) error {
	if n > m.sp {
		return ErrStackUnderflow
	}
	m.sp -= n
	return nil
}

func (m *Machine) allocate(n int) error {
	if m.sp+n > len(m.stack) {
		return ErrStackOverflow
	}
	clear(m.stack[m.sp : m.sp+n])
	m.sp += n
	return nil
}

func (m *Machine) tick() error {
	m.steps++
	if m.maxSteps > 0 && m.steps > m.maxSteps {
		return ErrStepLimit
	}
	if m.ctx != nil && m.steps&1023 == 0 {
		return m.ctx.Err()
	}
	return nil
}

func (m *Machine) exec(f *function) (int64, error) {
	var acc int64
	var flag bool
	code := f.fn.Code

	jump := func(l *ir.Label, pc *int) error {
		idx, ok := f.labels[l]
		if !ok {
			return fmt.Errorf("jump to undefined label %s", l)
		}
		*pc = idx
		return nil
	}

	for pc := 0; pc < len(code); pc++ {
		if err := m.tick(); err != nil {
			return 0, err
		}
		in := code[pc]
		var err error
		switch in.Op {
		case ir.OpLabel, ir.OpEnter:
		case ir.OpJump:
			err = jump(in.Label, &pc)
		case ir.OpJumpTrue:
			if flag {
				err = jump(in.Label, &pc)
			}
		case ir.OpJumpFalse:
			if !flag {
				err = jump(in.Label, &pc)
			}
		case ir.OpCmp:
			flag = in.Typ.Normalize(acc) == in.Typ.Normalize(in.Value)
		case ir.OpTest:
			flag = acc != 0
		case ir.OpSwitch:
			n := int(in.Value)
			if pc+n >= len(code) {
				return 0, fmt.Errorf("truncated dispatch table")
			}
			var target *ir.Label
			for _, c := range code[pc+1 : pc+1+n] {
				if in.Typ.Normalize(acc) == in.Typ.Normalize(c.Value) {
					target = c.Label
					break
				}
			}
			if target != nil {
				err = jump(target, &pc)
			} else {
				pc += n
			}
		case ir.OpCase:
			if in.Typ.Normalize(acc) == in.Typ.Normalize(in.Value) {
				err = jump(in.Label, &pc)
			}
		case ir.OpSpace:
			if in.Value > 0 {
				err = m.release(int(in.Value))
			} else {
				err = m.allocate(int(-in.Value))
			}
		case ir.OpConst:
			acc = in.Value
		case ir.OpLoadLocal:
			acc, err = m.load(in.Typ, in.Value)
		case ir.OpStoreLocal:
			err = m.store(in.Typ, in.Value, acc)
		case ir.OpLoadGlobal:
			acc = in.Typ.Normalize(m.globals[in.Name])
		case ir.OpStoreGlobal:
			m.globals[in.Name] = in.Typ.Normalize(acc)
		case ir.OpPush:
			err = m.push(in.Typ, acc)
		case ir.OpBinary:
			var lhs int64
			if lhs, err = m.load(types.Promote(in.Typ), 2); err == nil {
				if err = m.release(2); err == nil {
					acc, err = apply(in.Bin, in.Typ, lhs, acc)
				}
			}
		case ir.OpBinaryImm:
			acc, err = apply(in.Bin, in.Typ, acc, in.Value)
		case ir.OpUnary:
			switch in.Un {
			case ir.Neg:
				acc = in.Typ.Normalize(-in.Typ.Normalize(acc))
			case ir.Not:
				if acc == 0 {
					acc = 1
				} else {
					acc = 0
				}
			case ir.Compl:
				acc = in.Typ.Normalize(^acc)
			}
		case ir.OpConvert:
			acc = in.Typ.Normalize(acc)
		case ir.OpCall:
			acc, err = m.call(in.Name)
		case ir.OpLeave:
			return acc, m.release(int(in.Value))
		default:
			err = fmt.Errorf("cannot execute %s", in.Op)
		}
		if err != nil {
			return 0, err
		}
	}
	return acc, nil
}

func apply(op ir.BinOp, typ types.Type, a, b int64) (int64, error) {
	v, ok := op.Apply(typ, a, b)
	if !ok {
		return 0, ErrDivideByZero
	}
	return v, nil
}
