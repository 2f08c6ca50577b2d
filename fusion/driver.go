package fusion

import (
	"fmt"

	"github.com/nickng/loopfuse/dom"
	"github.com/nickng/loopfuse/ir"
	"github.com/pkg/errors"
)

// Stage is the step of the pass a decision was taken at.
type Stage string

const (
	StageAdjacency   Stage = "adjacency"
	StageTripCount   Stage = "trip-count"
	StageEquivalence Stage = "equivalence"
	StageDependence  Stage = "dependence"
	StageShape       Stage = "shape"
	StageFused       Stage = "fused"
)

// Decision is the outcome of trying to fuse the loops with headers L1 and L2.
type Decision struct {
	L1, L2 ir.BlockID
	Stage  Stage
	Reason string // Empty for StageFused.
}

func (d Decision) String() string {
	if d.Stage == StageFused {
		return fmt.Sprintf("%s + %s: fused", d.L1, d.L2)
	}
	return fmt.Sprintf("%s + %s: %s: %s", d.L1, d.L2, d.Stage, d.Reason)
}

// Result summarises a pass over one function.
type Result struct {
	Func      string
	Fusions   int
	Decisions []Decision
}

// Run fuses the innermost loops of the function of a until no adjacent pair
// can be fused, and returns true if the function changed.
//
// Pairs are tried from the first loop of the function onwards. After every
// fusion the absorbed loop is dropped and the scan restarts, so a function
// with n innermost loops is fused at most n-1 times.
func Run(a *Analysis) bool {
	cands := candidates(a)
	a.Debugw(a.Module()+" Fusion candidates", "func", a.Func.Name, "count", len(cands))
	if len(cands) < 2 {
		return false
	}
	changed := false
	for {
		if a.maxFusions > 0 && a.result.Fusions >= a.maxFusions {
			a.Infow(a.Module()+" Fusion limit reached", "func", a.Func.Name, "limit", a.maxFusions)
			return changed
		}
		fused := false
		for i := len(cands) - 1; i >= 1; i-- {
			if !tryFuse(a, cands[i], cands[i-1]) {
				continue
			}
			cands = append(cands[:i-1], cands[i:]...)
			cands = rebind(a, cands)
			fused, changed = true, true
			break
		}
		if !fused {
			return changed
		}
	}
}

// tryFuse runs the legality checks on c1 and c2 in order and fuses them when
// they all pass.
func tryFuse(a *Analysis, c1, c2 *Candidate) bool {
	l1, l2 := c1.Loop, c2.Loop
	log := a.with(modLegality)
	if ok, why := adjacent(a, l1, l2); !ok {
		a.decide(l1, l2, StageAdjacency, why)
		return false
	}
	log.Debugw(log.Module()+" Loops are adjacent", "func", a.Func.Name, "l1", l1.Header(), "l2", l2.Header())

	t1, err := c1.TripCount(a)
	if err != nil {
		a.decide(l1, l2, StageTripCount, "L1: "+err.Error())
		return false
	}
	t2, err := c2.TripCount(a)
	if err != nil {
		a.decide(l1, l2, StageTripCount, "L2: "+err.Error())
		return false
	}
	if t1 != t2 {
		a.decide(l1, l2, StageTripCount, fmt.Sprintf("trip counts %s and %s differ", t1, t2))
		return false
	}
	log.Debugw(log.Module()+" Same trip count", "func", a.Func.Name, "count", t1.String())

	if ok, why := controlEquivalent(a, l1, l2); !ok {
		a.decide(l1, l2, StageEquivalence, why)
		return false
	}
	if ok, why := dependencesAllowFusion(a, l1, l2); !ok {
		a.decide(l1, l2, StageDependence, why)
		return false
	}
	if err := Fuse(a, l1, l2); err != nil {
		reason := err.Error()
		var se *ShapeError
		if errors.As(err, &se) {
			reason = se.Err.Error()
		}
		a.decide(l1, l2, StageShape, reason)
		return false
	}
	a.decide(l1, l2, StageFused, "")
	return true
}

// RunFunc runs the pass over fn and checks the function is still well formed
// afterwards.
func RunFunc(fn *ir.Func, opts ...Option) (bool, error) {
	_, changed, err := RunResult(fn, opts...)
	return changed, err
}

// RunResult is RunFunc also returning the decisions taken.
func RunResult(fn *ir.Func, opts ...Option) (*Result, bool, error) {
	if err := fn.Validate(); err != nil {
		return nil, false, errors.Wrap(err, "invalid function")
	}
	a := New(fn, opts...)
	changed := Run(a)
	if changed {
		if err := fn.Validate(); err != nil {
			return a.Result(), true, errors.Wrapf(err, "malformed %s after fusion", fn.Name)
		}
		if err := dom.Verify(fn, a.Dom); err != nil {
			return a.Result(), true, errors.Wrapf(err, "malformed %s after fusion", fn.Name)
		}
	}
	return a.Result(), changed, nil
}
