// Package scev is a small symbolic evaluator for integer values in loops.
//
// Values are described as affine Exprs over symbolic values defined outside
// of the loop of interest, and values inside a loop as add-recurrences
// {Start,+,Step}: the value at iteration k is Start + Step*k. Exprs are
// interned, so equal affine forms compare equal by pointer.
package scev

import (
	"fmt"

	"github.com/nickng/loopfuse/ir"
	"github.com/nickng/loopfuse/loop"
	"github.com/pkg/errors"
)

var (
	ErrNotAffine     = errors.New("scev: value is not an affine recurrence")
	ErrNotInLoop     = errors.New("scev: instruction is not inside the loop")
	ErrNoExitCompare = errors.New("scev: loop does not exit on a header comparison")
	ErrUnknownCount  = errors.New("scev: trip count cannot be derived")
)

// AddRec is the evolution of a value or an address within a loop.
type AddRec struct {
	Base  ir.ValueID // Root pointer for addresses, ir.NoValue for scalars.
	Start *Expr      // Value (byte offset from Base) at the first iteration.
	Step  *Expr      // Increment per iteration.
	Loop  *loop.Loop
}

// IsInvariant returns true if the value does not change within the loop.
func (r *AddRec) IsInvariant() bool { return r.Step.IsZero() }

func (r *AddRec) String() string {
	if r.Base != ir.NoValue {
		return fmt.Sprintf("%s+{%s,+,%s}<%s>", r.Base, r.Start, r.Step, r.Loop.Header())
	}
	return fmt.Sprintf("{%s,+,%s}<%s>", r.Start, r.Step, r.Loop.Header())
}

type recKey struct {
	v      ir.ValueID
	header ir.BlockID
}

// Engine evaluates the values of one function.
type Engine struct {
	fn *ir.Func
	in *interner

	atoms map[string]ir.ValueID // Structural key of pure invariant values.
	evol  map[recKey]*AddRec
	trips map[ir.BlockID]*Expr
}

// New returns an Engine for fn.
func New(fn *ir.Func) *Engine {
	return &Engine{
		fn:    fn,
		in:    newInterner(),
		atoms: make(map[string]ir.ValueID),
		evol:  make(map[recKey]*AddRec),
		trips: make(map[ir.BlockID]*Expr),
	}
}

// Reset forgets every evolution and trip count, which refer to loops of a
// previous CFG. Interned expressions stay valid.
func (e *Engine) Reset() {
	e.evol = make(map[recKey]*AddRec)
	e.trips = make(map[ir.BlockID]*Expr)
}

// Const returns the constant expression c.
func (e *Engine) Const(c int64) *Expr { return e.in.get(c, nil) }

// Add returns a + b.
func (e *Engine) Add(a, b *Expr) *Expr { return e.in.add(a, b) }

// Minus returns a - b.
func (e *Engine) Minus(a, b *Expr) *Expr { return e.in.add(a, e.in.scale(b, -1)) }

// Negate returns -a.
func (e *Engine) Negate(a *Expr) *Expr { return e.in.scale(a, -1) }

// Scale returns k * a.
func (e *Engine) Scale(a *Expr, k int64) *Expr { return e.in.scale(a, k) }

// IsKnownNonZero returns true if x is provably not zero.
func (e *Engine) IsKnownNonZero(x *Expr) bool { return x.IsConst() && x.Const != 0 }

// IsNegative returns true if x is provably strictly below zero.
func (e *Engine) IsNegative(x *Expr) bool { return x.IsConst() && x.Const < 0 }

// IsNonNegative returns true if x is provably at least zero: a non-negative
// constant plus lengths with positive coefficients.
func (e *Engine) IsNonNegative(x *Expr) bool {
	if x.Const < 0 {
		return false
	}
	for _, t := range x.Terms {
		v := e.fn.Value(t.Value)
		if t.Coef < 0 || v == nil || v.Op != ir.OpLen {
			return false
		}
	}
	return true
}

// Symbol returns the expression standing for v as a whole.
func (e *Engine) Symbol(v ir.ValueID) *Expr {
	return e.in.get(0, []Term{{Value: v, Coef: 1}})
}

// Evolution returns the add-recurrence of integer value v in loop l. Values
// defined outside of l are invariant (Step 0).
func (e *Engine) Evolution(v ir.ValueID, l *loop.Loop) (*AddRec, error) {
	k := recKey{v: v, header: l.Header()}
	if r, ok := e.evol[k]; ok {
		if r == nil {
			return nil, ErrNotAffine
		}
		return r, nil
	}
	e.evol[k] = nil // Cycles through non-header phis are not affine.
	r, err := e.evolution(v, l)
	if err != nil {
		return nil, err
	}
	e.evol[k] = r
	return r, nil
}

func (e *Engine) invariant(x *Expr, l *loop.Loop) *AddRec {
	return &AddRec{Base: ir.NoValue, Start: x, Step: e.Const(0), Loop: l}
}

func (e *Engine) evolution(id ir.ValueID, l *loop.Loop) (*AddRec, error) {
	v := e.fn.Value(id)
	if v == nil || v.Dead {
		return nil, ErrNotAffine
	}
	if v.Op == ir.OpConst {
		return e.invariant(e.Const(v.Aux), l), nil
	}
	if v.Block == ir.NoBlock {
		return e.invariant(e.Symbol(id), l), nil
	}
	inside := l.Contains(v.Block)
	switch v.Op {
	case ir.OpPhi:
		if !inside {
			return e.invariant(e.Symbol(id), l), nil
		}
		if v.Block != l.Header() {
			return nil, ErrNotAffine
		}
		return e.headerPhi(id, l)
	case ir.OpLoad, ir.OpStore, ir.OpCall, ir.OpOpaque, ir.OpAlloc:
		if inside {
			return nil, ErrNotAffine
		}
		return e.invariant(e.Symbol(id), l), nil
	}

	args := make([]*AddRec, len(v.Args))
	for i, a := range v.Args {
		r, err := e.Evolution(a, l)
		if err != nil {
			if inside {
				return nil, err
			}
			return e.invariant(e.Symbol(id), l), nil
		}
		args[i] = r
	}
	switch v.Op {
	case ir.OpAdd:
		return e.combine(l, args[0], args[1], 1), nil
	case ir.OpSub:
		return e.combine(l, args[0], args[1], -1), nil
	case ir.OpNeg:
		return e.scaleRec(l, args[0], -1), nil
	case ir.OpMul:
		if k, ok := constOf(args[1]); ok {
			return e.scaleRec(l, args[0], k), nil
		}
		if k, ok := constOf(args[0]); ok {
			return e.scaleRec(l, args[1], k), nil
		}
	case ir.OpShl:
		if k, ok := constOf(args[1]); ok && k >= 0 && k < 63 {
			return e.scaleRec(l, args[0], 1<<uint(k)), nil
		}
	}
	// Any other pure operation is opaque, but invariant when its operands
	// are; equal operations on equal operands share one symbol.
	for _, a := range args {
		if !a.IsInvariant() {
			return nil, ErrNotAffine
		}
	}
	return e.invariant(e.Symbol(e.atom(v, args)), l), nil
}

// atom returns the representative of the pure value v whose operands
// evaluate to args.
func (e *Engine) atom(v *ir.Value, args []*AddRec) ir.ValueID {
	key := fmt.Sprintf("%s/%d/%d", v.Op, v.Type, v.Aux)
	for _, a := range args {
		key += "," + a.Start.key
	}
	if rep, ok := e.atoms[key]; ok {
		return rep
	}
	e.atoms[key] = v.ID
	return v.ID
}

func constOf(r *AddRec) (int64, bool) {
	if r.IsInvariant() && r.Start.IsConst() {
		return r.Start.Const, true
	}
	return 0, false
}

func (e *Engine) combine(l *loop.Loop, a, b *AddRec, sign int64) *AddRec {
	return &AddRec{
		Base:  ir.NoValue,
		Start: e.Add(a.Start, e.Scale(b.Start, sign)),
		Step:  e.Add(a.Step, e.Scale(b.Step, sign)),
		Loop:  l,
	}
}

func (e *Engine) scaleRec(l *loop.Loop, a *AddRec, k int64) *AddRec {
	return &AddRec{Base: ir.NoValue, Start: e.Scale(a.Start, k), Step: e.Scale(a.Step, k), Loop: l}
}

// headerPhi evaluates phi = [init from outside, next from latch] where next
// is phi plus an invariant.
func (e *Engine) headerPhi(id ir.ValueID, l *loop.Loop) (*AddRec, error) {
	phi := e.fn.Values[id]
	latch, pred := l.Latch(), l.Predecessor()
	if latch == ir.NoBlock || pred == ir.NoBlock || len(phi.Edges) != 2 {
		return nil, ErrNotAffine
	}
	var init, next ir.ValueID = ir.NoValue, ir.NoValue
	for _, edge := range phi.Edges {
		switch edge.Block {
		case pred:
			init = edge.Value
		case latch:
			next = edge.Value
		}
	}
	if init == ir.NoValue || next == ir.NoValue {
		return nil, ErrNotAffine
	}
	start, err := e.Evolution(init, l)
	if err != nil || !start.IsInvariant() {
		return nil, ErrNotAffine
	}
	step, err := e.offsetFrom(next, id, l, 0)
	if err != nil {
		return nil, err
	}
	return &AddRec{Base: ir.NoValue, Start: start.Start, Step: step, Loop: l}, nil
}

// offsetFrom returns d such that x == phi + d on every iteration, d being
// loop invariant.
func (e *Engine) offsetFrom(x, phi ir.ValueID, l *loop.Loop, depth int) (*Expr, error) {
	if x == phi {
		return e.Const(0), nil
	}
	v := e.fn.Value(x)
	if depth > 16 || v == nil || v.Block == ir.NoBlock || !l.Contains(v.Block) {
		return nil, ErrNotAffine
	}
	inv := func(a ir.ValueID) (*Expr, bool) {
		r, err := e.Evolution(a, l)
		if err != nil || !r.IsInvariant() {
			return nil, false
		}
		return r.Start, true
	}
	switch v.Op {
	case ir.OpAdd:
		if d, err := e.offsetFrom(v.Args[0], phi, l, depth+1); err == nil {
			if c, ok := inv(v.Args[1]); ok {
				return e.Add(d, c), nil
			}
		}
		if d, err := e.offsetFrom(v.Args[1], phi, l, depth+1); err == nil {
			if c, ok := inv(v.Args[0]); ok {
				return e.Add(d, c), nil
			}
		}
	case ir.OpSub:
		if d, err := e.offsetFrom(v.Args[0], phi, l, depth+1); err == nil {
			if c, ok := inv(v.Args[1]); ok {
				return e.Minus(d, c), nil
			}
		}
	}
	return nil, ErrNotAffine
}

// AddRecAt returns the evolution of the address accessed by the load or
// store v within loop l: a root pointer invariant in l plus an affine byte
// offset.
func (e *Engine) AddRecAt(v ir.ValueID, l *loop.Loop) (*AddRec, error) {
	val := e.fn.Value(v)
	if val == nil || val.Addr() == ir.NoValue {
		return nil, ErrNotAffine
	}
	if val.Block == ir.NoBlock || !l.Contains(val.Block) {
		return nil, ErrNotInLoop
	}
	return e.address(val.Addr(), l)
}

func (e *Engine) address(p ir.ValueID, l *loop.Loop) (*AddRec, error) {
	v := e.fn.Value(p)
	switch v.Op {
	case ir.OpIndexAddr:
		r, err := e.address(v.Args[0], l)
		if err != nil {
			return nil, err
		}
		idx, err := e.Evolution(v.Args[1], l)
		if err != nil {
			return nil, err
		}
		off := e.scaleRec(l, idx, v.Aux)
		return &AddRec{Base: r.Base, Start: e.Add(r.Start, off.Start), Step: e.Add(r.Step, off.Step), Loop: l}, nil
	case ir.OpFieldAddr:
		r, err := e.address(v.Args[0], l)
		if err != nil {
			return nil, err
		}
		return &AddRec{Base: r.Base, Start: e.Add(r.Start, e.Const(v.Aux)), Step: r.Step, Loop: l}, nil
	}
	if v.Block != ir.NoBlock && l.Contains(v.Block) {
		return nil, ErrNotAffine
	}
	return &AddRec{Base: p, Start: e.Const(0), Step: e.Const(0), Loop: l}, nil
}
