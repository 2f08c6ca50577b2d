package interp

import (
	"fmt"
	"math/rand"

	"github.com/nickng/loopfuse/ir"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// InputConfig controls the arguments generated by Inputs.
type InputConfig struct {
	Count    int   // Number of argument lists.
	SliceLen int   // Length of every pointer argument; integers range over [0, SliceLen].
	Seed     int64 // Seed of the generator, so runs are reproducible.
	Alias    bool  // All pointer arguments share one object.
}

// DefaultInputs is the configuration used when none is given.
var DefaultInputs = InputConfig{Count: 8, SliceLen: 16, Seed: 1}

// Inputs generates argument lists for fn. Pointer arguments are slices of
// cfg.SliceLen 8-byte elements over objects with pseudo-random contents.
func Inputs(fn *ir.Func, cfg InputConfig) [][]Value {
	rnd := rand.New(rand.NewSource(cfg.Seed))
	var inputs [][]Value
	for n := 0; n < cfg.Count; n++ {
		var shared *Object
		args := make([]Value, len(fn.Params))
		for i, p := range fn.Params {
			switch fn.Values[p].Type {
			case ir.TypeBool:
				args[i] = Int(rnd.Int63n(2))
			case ir.TypePtr:
				obj := shared
				if obj == nil {
					obj = &Object{
						ID:    n*len(fn.Params) + i + 1,
						Size:  int64(cfg.SliceLen) * 8,
						Cells: make(map[int64]Value),
						Seed:  rnd.Int63() | 1,
					}
					if cfg.Alias {
						shared = obj
					}
				}
				args[i] = Value{Obj: obj, Len: int64(cfg.SliceLen)}
			default:
				args[i] = Int(rnd.Int63n(int64(cfg.SliceLen) + 1))
			}
		}
		inputs = append(inputs, args)
	}
	return inputs
}

// cloneArgs copies every object referenced by args, keeping aliasing between
// arguments.
func cloneArgs(args []Value) ([]Value, []*Object) {
	clones := make(map[int]*Object)
	var objs []*Object
	out := make([]Value, len(args))
	for i, a := range args {
		out[i] = a
		if a.Obj == nil {
			continue
		}
		c, ok := clones[a.Obj.ID]
		if !ok {
			c = a.Obj.Clone()
			clones[a.Obj.ID] = c
			objs = append(objs, c)
		}
		out[i].Obj = c
	}
	return out, objs
}

// MismatchError reports an input on which two functions behave differently.
type MismatchError struct {
	Func  string
	Input []Value
	Msg   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: mismatch on input %v: %s", e.Func, e.Input, e.Msg)
}

// Compare runs orig and fused on every input and reports each input where
// they differ in outcome, returned values or final memory of the arguments.
// Two runs trapping for the same reason are considered equal.
func Compare(orig, fused *ir.Func, inputs [][]Value, opts ...Option) error {
	if len(orig.Params) != len(fused.Params) {
		return errors.Errorf("%s: %d parameters, transformed function has %d", orig.Name, len(orig.Params), len(fused.Params))
	}
	var errs error
	for _, in := range inputs {
		if err := compareOne(orig, fused, in, opts); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func compareOne(orig, fused *ir.Func, input []Value, opts []Option) error {
	mismatch := func(format string, args ...interface{}) error {
		return &MismatchError{Func: orig.Name, Input: input, Msg: fmt.Sprintf(format, args...)}
	}
	a, aObjs := cloneArgs(input)
	b, bObjs := cloneArgs(input)
	ra, errA := New(opts...).Run(orig, a)
	rb, errB := New(opts...).Run(fused, b)
	if errA != nil || errB != nil {
		var ta, tb *TrapError
		if !errors.As(errA, &ta) || !errors.As(errB, &tb) {
			return mismatch("outcome differs: %v / %v", errA, errB)
		}
		if ta.Kind != tb.Kind {
			return mismatch("trap differs: %v / %v", ta, tb)
		}
		return nil
	}
	if len(ra.Returns) != len(rb.Returns) {
		return mismatch("%d results, got %d", len(ra.Returns), len(rb.Returns))
	}
	for i := range ra.Returns {
		if !sameValue(ra.Returns[i], rb.Returns[i]) {
			return mismatch("result %d: %s, got %s", i, ra.Returns[i], rb.Returns[i])
		}
	}
	for i := range aObjs {
		oa, ob := aObjs[i], bObjs[i]
		for _, off := range offsets(oa, ob) {
			if va, vb := oa.Load(off), ob.Load(off); !sameValue(va, vb) {
				return mismatch("obj%d+%d: %s, got %s", oa.ID, off, va, vb)
			}
		}
	}
	return nil
}
