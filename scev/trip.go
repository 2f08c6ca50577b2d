package scev

import (
	"github.com/nickng/loopfuse/ir"
	"github.com/nickng/loopfuse/loop"
)

// TripCount returns the exact number of times the header of l is left for
// the loop body, computed at its single exiting block. The exiting block must
// be the header and end in a comparison between an add-recurrence and a loop
// invariant value.
//
// With step 1 (or -1) the count is symbolic, e.g. n-s for i := s; i < n.
// When the start may exceed the bound the loop runs max(count, 0) times; two
// loops with the same count expression therefore still run equally often.
// A != exit does not stop a loop started past its bound, so it only has a
// count when the bound is provably not behind the start. Other steps need a
// constant start and bound.
func (e *Engine) TripCount(l *loop.Loop) (*Expr, error) {
	if x, ok := e.trips[l.Header()]; ok {
		if x == nil {
			return nil, ErrUnknownCount
		}
		return x, nil
	}
	x, err := e.tripCount(l)
	e.trips[l.Header()] = x
	return x, err
}

func (e *Engine) tripCount(l *loop.Loop) (*Expr, error) {
	h := l.Header()
	if l.ExitingBlock() != h {
		return nil, ErrNoExitCompare
	}
	t := e.fn.Blocks[h].Term
	if t.Kind != ir.TermIf {
		return nil, ErrNoExitCompare
	}
	cmp := e.fn.Value(t.Cond)
	if cmp == nil || !cmp.Op.IsCompare() || cmp.Block == ir.NoBlock || !l.Contains(cmp.Block) {
		return nil, ErrNoExitCompare
	}
	op := cmp.Op
	switch {
	case l.Contains(t.Succs[0]) && !l.Contains(t.Succs[1]):
	case !l.Contains(t.Succs[0]) && l.Contains(t.Succs[1]):
		op = op.Negate()
	default:
		return nil, ErrNoExitCompare
	}
	a, err := e.Evolution(cmp.Args[0], l)
	if err != nil {
		return nil, ErrUnknownCount
	}
	b, err := e.Evolution(cmp.Args[1], l)
	if err != nil {
		return nil, ErrUnknownCount
	}
	if a.IsInvariant() && !b.IsInvariant() {
		a, b, op = b, a, op.Swap()
	}
	if a.IsInvariant() || !b.IsInvariant() || !a.Step.IsConst() {
		return nil, ErrUnknownCount
	}
	// Continue while start + step*k <op> bound.
	start, step, bound := a.Start, a.Step.Const, b.Start
	switch {
	case step == 1 && op == ir.OpLt:
		return e.Minus(bound, start), nil
	case step == 1 && op == ir.OpNe:
		if d := e.Minus(bound, start); e.IsNonNegative(d) {
			return d, nil
		}
		return nil, ErrUnknownCount
	case step == 1 && op == ir.OpLe:
		return e.Add(e.Minus(bound, start), e.Const(1)), nil
	case step == -1 && op == ir.OpGt:
		return e.Minus(start, bound), nil
	case step == -1 && op == ir.OpNe:
		if d := e.Minus(start, bound); e.IsNonNegative(d) {
			return d, nil
		}
		return nil, ErrUnknownCount
	case step == -1 && op == ir.OpGe:
		return e.Add(e.Minus(start, bound), e.Const(1)), nil
	}
	if !start.IsConst() || !bound.IsConst() {
		return nil, ErrUnknownCount
	}
	n, ok := constTripCount(start.Const, step, bound.Const, op)
	if !ok {
		return nil, ErrUnknownCount
	}
	return e.Const(n), nil
}

// constTripCount counts the iterations of for i := s; i <op> b; i += step.
func constTripCount(s, step, b int64, op ir.Op) (int64, bool) {
	if step == 0 {
		return 0, false
	}
	switch op {
	case ir.OpLt, ir.OpLe:
		if step < 0 {
			return 0, false
		}
		if op == ir.OpLe {
			b++
		}
		if s >= b {
			return 0, true
		}
		return (b - s + step - 1) / step, true
	case ir.OpGt, ir.OpGe:
		if step > 0 {
			return 0, false
		}
		if op == ir.OpGe {
			b--
		}
		if s <= b {
			return 0, true
		}
		return (s - b - step - 1) / -step, true
	case ir.OpNe:
		d := b - s
		if d%step != 0 || d/step < 0 {
			return 0, false
		}
		return d / step, true
	case ir.OpEq:
		if s == b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
