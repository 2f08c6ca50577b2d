// Package interp is a reference interpreter for ir functions.
//
// It executes the integer, pointer and memory subset of the IR: arithmetic,
// comparisons, phis, allocations, address computations, loads, stores and
// len. Calls, symbols and opaque instructions cannot be executed and stop the
// run with a TrapError. It is used to check that a transformed function
// computes the same results and memory as the original.
package interp

import (
	"fmt"

	"fortio.org/safecast"
	"github.com/nickng/loopfuse/block"
	"github.com/nickng/loopfuse/ir"
)

// DefaultStepLimit bounds the number of instructions executed by one run.
const DefaultStepLimit = 1000000

// TrapKind classifies why a run stopped.
type TrapKind int

const (
	TrapUnsupported TrapKind = iota // Instruction cannot be interpreted.
	TrapBounds                      // Index out of range or nil dereference.
	TrapDivide                      // Integer division by zero.
	TrapPanic                       // The function panicked.
	TrapStepLimit                   // Too many steps.
)

func (k TrapKind) String() string {
	switch k {
	case TrapUnsupported:
		return "unsupported"
	case TrapBounds:
		return "out of bounds"
	case TrapDivide:
		return "division by zero"
	case TrapPanic:
		return "panic"
	case TrapStepLimit:
		return "step limit exceeded"
	}
	return "unknown"
}

// TrapError is a run stopped before the function returned.
type TrapError struct {
	Func  string
	Kind  TrapKind
	Block ir.BlockID
	Value ir.ValueID // ir.NoValue for terminators.
	Msg   string
}

func (e *TrapError) Error() string {
	if e.Value != ir.NoValue {
		return fmt.Sprintf("%s: %s at %s in %s: %s", e.Func, e.Kind, e.Value, e.Block, e.Msg)
	}
	return fmt.Sprintf("%s: %s in %s: %s", e.Func, e.Kind, e.Block, e.Msg)
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithStepLimit bounds the number of steps of one run.
func WithStepLimit(n int) Option {
	return func(in *Interpreter) { in.limit = n }
}

// WithAnalyser reports every block transition of a run to a.
func WithAnalyser(a block.Analyser) Option {
	return func(in *Interpreter) { in.analyser = a }
}

// Interpreter runs ir functions.
type Interpreter struct {
	limit    int
	analyser block.Analyser
	nextObj  int
}

// New returns an Interpreter.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{limit: DefaultStepLimit, nextObj: 1 << 20}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Result is the outcome of a successful run.
type Result struct {
	Returns []Value
	Steps   int
}

type frame struct {
	fn    *ir.Func
	regs  []Value
	set   []bool
	steps int
	curr  ir.BlockID
}

func (f *frame) trap(kind TrapKind, v ir.ValueID, format string, args ...interface{}) *TrapError {
	return &TrapError{Func: f.fn.Name, Kind: kind, Block: f.curr, Value: v, Msg: fmt.Sprintf(format, args...)}
}

func (f *frame) get(id ir.ValueID) (Value, *TrapError) {
	v := f.fn.Value(id)
	switch v.Op {
	case ir.OpConst:
		return Int(v.Aux), nil
	case ir.OpSymbol:
		return Value{}, f.trap(TrapUnsupported, id, "symbol %s", v.Name)
	}
	if !f.set[id] {
		return Value{}, f.trap(TrapUnsupported, id, "value used before definition")
	}
	return f.regs[id], nil
}

// Run executes fn with the given arguments.
func (in *Interpreter) Run(fn *ir.Func, args []Value) (*Result, error) {
	if len(args) != len(fn.Params) {
		return nil, fmt.Errorf("%s: %d arguments for %d parameters", fn.Name, len(args), len(fn.Params))
	}
	f := &frame{
		fn:   fn,
		regs: make([]Value, len(fn.Values)),
		set:  make([]bool, len(fn.Values)),
		curr: fn.Entry,
	}
	for i, p := range fn.Params {
		f.regs[p], f.set[p] = args[i], true
	}
	if in.analyser != nil {
		in.analyser.EnterBlk(fn.Entry)
	}
	prev := ir.NoBlock
	for {
		blk := fn.Blocks[f.curr]
		if err := in.phis(f, prev); err != nil {
			return nil, err
		}
		for _, id := range blk.Instrs[fn.FirstNonPhi(f.curr):] {
			f.steps++
			if f.steps > in.limit {
				return nil, f.trap(TrapStepLimit, id, "after %d steps", in.limit)
			}
			if err := in.exec(f, fn.Values[id]); err != nil {
				return nil, err
			}
		}
		t := blk.Term
		switch t.Kind {
		case ir.TermJump, ir.TermIf:
			next := t.Succs[0]
			if t.Kind == ir.TermIf {
				c, err := f.get(t.Cond)
				if err != nil {
					return nil, err
				}
				if c.Int == 0 {
					next = t.Succs[1]
				}
			}
			if in.analyser != nil {
				in.analyser.JumpBlk(f.curr, next)
			}
			prev, f.curr = f.curr, next
		case ir.TermReturn:
			res := &Result{Steps: f.steps}
			for _, a := range t.Args {
				v, err := f.get(a)
				if err != nil {
					return nil, err
				}
				res.Returns = append(res.Returns, v)
			}
			if in.analyser != nil {
				in.analyser.ExitBlk(f.curr)
			}
			return res, nil
		case ir.TermPanic:
			if in.analyser != nil {
				in.analyser.ExitBlk(f.curr)
			}
			return nil, f.trap(TrapPanic, ir.NoValue, "panic")
		default:
			return nil, f.trap(TrapUnsupported, ir.NoValue, "block without terminator")
		}
	}
}

// phis evaluates the phis of the current block simultaneously for the edge
// from prev.
func (in *Interpreter) phis(f *frame, prev ir.BlockID) *TrapError {
	phis := f.fn.Phis(f.curr)
	if len(phis) == 0 {
		return nil
	}
	vals := make([]Value, len(phis))
	for i, id := range phis {
		found := false
		for _, e := range f.fn.Values[id].Edges {
			if e.Block == prev {
				v, err := f.get(e.Value)
				if err != nil {
					return err
				}
				vals[i], found = v, true
				break
			}
		}
		if !found {
			return f.trap(TrapUnsupported, id, "no phi edge from %s", prev)
		}
	}
	for i, id := range phis {
		f.regs[id], f.set[id] = vals[i], true
	}
	f.steps += len(phis)
	return nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (in *Interpreter) exec(f *frame, v *ir.Value) *TrapError {
	args := make([]Value, len(v.Args))
	if v.Op != ir.OpCall && v.Op != ir.OpOpaque {
		for i, a := range v.Args {
			val, err := f.get(a)
			if err != nil {
				return err
			}
			args[i] = val
		}
	}
	var res Value
	switch {
	case v.Op.IsBinary():
		r, err := binary(f, v, args[0], args[1])
		if err != nil {
			return err
		}
		res = r
	default:
		switch v.Op {
		case ir.OpNeg:
			res = Int(-args[0].Int)
		case ir.OpNot:
			res = Int(1 - args[0].Int)
		case ir.OpConvert:
			res = args[0]
		case ir.OpAlloc:
			in.nextObj++
			res = Value{Obj: &Object{ID: in.nextObj, Size: v.Aux, Cells: make(map[int64]Value)}, Len: -1}
		case ir.OpIndexAddr:
			base, idx := args[0], args[1].Int
			if base.Obj == nil {
				return f.trap(TrapBounds, v.ID, "index of nil")
			}
			off := base.Off + idx*v.Aux
			if base.Len >= 0 && (idx < 0 || idx >= base.Len) {
				return f.trap(TrapBounds, v.ID, "index %d out of range [0:%d]", idx, base.Len)
			}
			if base.Len < 0 && base.Obj.Size > 0 && (off < 0 || off+v.Aux > base.Obj.Size) {
				return f.trap(TrapBounds, v.ID, "offset %d out of object of %d bytes", off, base.Obj.Size)
			}
			res = Value{Obj: base.Obj, Off: off, Len: -1}
		case ir.OpFieldAddr:
			if args[0].Obj == nil {
				return f.trap(TrapBounds, v.ID, "field of nil")
			}
			res = Value{Obj: args[0].Obj, Off: args[0].Off + v.Aux, Len: -1}
		case ir.OpLen:
			switch {
			case v.Aux > 0:
				res = Int(v.Aux)
			case args[0].Len >= 0:
				res = Int(args[0].Len)
			default:
				return f.trap(TrapUnsupported, v.ID, "len of %s", args[0])
			}
		case ir.OpLoad:
			if args[0].Obj == nil {
				return f.trap(TrapBounds, v.ID, "nil dereference")
			}
			res = args[0].Obj.Load(args[0].Off)
		case ir.OpStore:
			if args[0].Obj == nil {
				return f.trap(TrapBounds, v.ID, "nil dereference")
			}
			args[0].Obj.Cells[args[0].Off] = args[1]
			return nil
		default:
			return f.trap(TrapUnsupported, v.ID, "%s %s", v.Op, v.Name)
		}
	}
	f.regs[v.ID], f.set[v.ID] = res, true
	return nil
}

func binary(f *frame, v *ir.Value, x, y Value) (Value, *TrapError) {
	a, b := x.Int, y.Int
	switch v.Op {
	case ir.OpEq, ir.OpNe:
		eq := sameValue(x, y) && x.Obj == y.Obj
		if v.Op == ir.OpNe {
			eq = !eq
		}
		return Int(boolInt(eq)), nil
	}
	if x.Obj != nil || y.Obj != nil {
		return Value{}, f.trap(TrapUnsupported, v.ID, "pointer arithmetic")
	}
	switch v.Op {
	case ir.OpAdd:
		return Int(a + b), nil
	case ir.OpSub:
		return Int(a - b), nil
	case ir.OpMul:
		return Int(a * b), nil
	case ir.OpDiv, ir.OpRem:
		if b == 0 {
			return Value{}, f.trap(TrapDivide, v.ID, "%d %s 0", a, v.Op)
		}
		if v.Op == ir.OpDiv {
			return Int(a / b), nil
		}
		return Int(a % b), nil
	case ir.OpAnd:
		return Int(a & b), nil
	case ir.OpOr:
		return Int(a | b), nil
	case ir.OpXor:
		return Int(a ^ b), nil
	case ir.OpShl, ir.OpShr:
		s, err := safecast.Conv[uint](b)
		if err != nil {
			return Value{}, f.trap(TrapBounds, v.ID, "negative shift count %d", b)
		}
		if v.Op == ir.OpShl {
			return Int(a << s), nil
		}
		return Int(a >> s), nil
	case ir.OpLt:
		return Int(boolInt(a < b)), nil
	case ir.OpLe:
		return Int(boolInt(a <= b)), nil
	case ir.OpGt:
		return Int(boolInt(a > b)), nil
	case ir.OpGe:
		return Int(boolInt(a >= b)), nil
	}
	return Value{}, f.trap(TrapUnsupported, v.ID, "%s", v.Op)
}
