package fusion

import (
	"fmt"

	"github.com/nickng/loopfuse/ir"
	"github.com/nickng/loopfuse/loop"
)

// accesses returns the memory reading and writing instructions of l.
func accesses(fn *ir.Func, l *loop.Loop) (reads, writes []ir.ValueID) {
	for _, b := range l.Blocks() {
		for _, id := range fn.Blocks[b].Instrs {
			v := fn.Values[id]
			if v.MayRead() {
				reads = append(reads, id)
			}
			if v.MayWrite() {
				writes = append(writes, id)
			}
		}
	}
	return reads, writes
}

// DependencesAllowFusion returns true if no dependence between l1 and l2
// would be reversed by running l2's iteration i right after l1's iteration
// i, and no value computed in l1 is used in l2.
func DependencesAllowFusion(a *Analysis, l1, l2 *loop.Loop) bool {
	ok, _ := dependencesAllowFusion(a, l1, l2)
	return ok
}

func dependencesAllowFusion(a *Analysis, l1, l2 *loop.Loop) (bool, string) {
	fn := a.Func
	r1, w1 := accesses(fn, l1)
	r2, w2 := accesses(fn, l2)
	check := func(kind string, in1, in2 []ir.ValueID, dep func(x, y ir.ValueID) bool) (bool, string) {
		for _, x := range in1 {
			for _, y := range in2 {
				if !dep(x, y) {
					continue
				}
				if neg, why := distanceNegative(a, l1, l2, x, y); neg {
					return false, fmt.Sprintf("%s %s / %s: %s", kind, fn.InstrString(x), fn.InstrString(y), why)
				}
			}
		}
		return true, ""
	}
	if ok, why := check("flow", w1, r2, a.DI.Depends); !ok {
		return false, why
	}
	if ok, why := check("anti", r1, w2, func(x, y ir.ValueID) bool { return a.DI.Depends(y, x) }); !ok {
		return false, why
	}
	if ok, why := check("output", w1, w2, a.DI.Depends); !ok {
		return false, why
	}
	if v, ok := scalarFlow(fn, l1, l2); ok {
		return false, fmt.Sprintf("%s is computed in L1 and used in L2", v)
	}
	return true, ""
}

// scalarFlow returns a value defined in l1 and used in l2.
func scalarFlow(fn *ir.Func, l1, l2 *loop.Loop) (ir.ValueID, bool) {
	inL1 := func(v ir.ValueID) bool {
		b := fn.Values[v].Block
		return b != ir.NoBlock && l1.Contains(b)
	}
	for _, b := range l2.Blocks() {
		blk := fn.Blocks[b]
		for _, id := range blk.Instrs {
			for _, op := range fn.Values[id].Operands() {
				if inL1(*op) {
					return *op, true
				}
			}
		}
		for _, op := range blk.Term.Operands() {
			if inL1(*op) {
				return *op, true
			}
		}
	}
	return ir.NoValue, false
}

// DistanceNegative returns true if the dependence between memory access i1
// in l1 and i2 in l2 has a negative distance, or if the distance cannot be
// computed.
func DistanceNegative(a *Analysis, l1, l2 *loop.Loop, i1, i2 ir.ValueID) bool {
	neg, _ := distanceNegative(a, l1, l2, i1, i2)
	return neg
}

func distanceNegative(a *Analysis, l1, l2 *loop.Loop, i1, i2 ir.ValueID) (bool, string) {
	r1, err := a.SE.AddRecAt(i1, l1)
	if err != nil {
		return true, fmt.Sprintf("no recurrence for %s: %v", i1, err)
	}
	r2, err := a.SE.AddRecAt(i2, l2)
	if err != nil {
		return true, fmt.Sprintf("no recurrence for %s: %v", i2, err)
	}
	if r1.Base != r2.Base {
		if a.DI.Distinct(r1.Base, r2.Base) {
			return false, "different objects"
		}
		if a.noAlias && a.DI.Root(r1.Base) != a.DI.Root(r2.Base) {
			return false, "different base pointers"
		}
		return true, fmt.Sprintf("bases %s and %s may alias", a.Func.ValueString(r1.Base), a.Func.ValueString(r2.Base))
	}
	if !a.SE.IsKnownNonZero(r1.Step) || r1.Step != r2.Step {
		return true, fmt.Sprintf("strides %s and %s not comparable", r1.Step, r2.Step)
	}
	delta := a.SE.Minus(r1.Start, r2.Start)
	if !delta.IsConst() || !r1.Step.IsConst() {
		return true, fmt.Sprintf("distance %s is not constant", delta)
	}
	d, s := delta.Const, r1.Step.Const
	if abs(d)%abs(s) != 0 {
		return false, "accesses never overlap"
	}
	if s < 0 {
		d = -d
	}
	a.Debugw(a.Module()+" Dependence distance",
		"func", a.Func.Name, "i1", i1, "i2", i2, "delta", delta.String(), "stride", s, "distance", d/abs(s))
	if d < 0 {
		return true, fmt.Sprintf("negative distance %d", d/abs(s))
	}
	return false, ""
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
