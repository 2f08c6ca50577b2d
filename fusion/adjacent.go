package fusion

import (
	"github.com/nickng/loopfuse/ir"
	"github.com/nickng/loopfuse/loop"
)

// Adjacent returns true if control leaves l1 straight into l2, with nothing
// but control flow glue in between.
func Adjacent(a *Analysis, l1, l2 *loop.Loop) bool {
	ok, _ := adjacent(a, l1, l2)
	return ok
}

func adjacent(a *Analysis, l1, l2 *loop.Loop) (bool, string) {
	g1, guarded1 := FindGuard(a, l1)
	g2, guarded2 := FindGuard(a, l2)
	switch {
	case guarded1 && guarded2:
		return adjacentGuarded(a, l1, l2, g1, g2)
	case !guarded1 && !guarded2:
		return adjacentUnguarded(a, l1, l2)
	}
	return false, "one loop is guarded, the other is not"
}

func adjacentGuarded(a *Analysis, l1, l2 *loop.Loop, g1, g2 *Guard) (bool, string) {
	fn := a.Func
	if g1.Fallthrough != g2.Block {
		return false, "guard of L1 does not fall through to guard of L2"
	}
	exit1 := l1.ExitBlock()
	if exit1 == ir.NoBlock {
		return false, "L1 has no unique exit block"
	}
	if !isGlue(fn, exit1) || fn.Succs(exit1)[0] != g2.Block {
		return false, "exit block of L1 is not glue jumping to guard of L2"
	}
	for _, p := range fn.Preds(g2.Block) {
		if p != g1.Block && p != exit1 {
			return false, "guard of L2 is reached from elsewhere"
		}
	}
	if !isGlue(fn, l2.Preheader()) {
		return false, "preheader of L2 is not glue"
	}
	exit2 := l2.ExitBlock()
	if exit2 == ir.NoBlock || !isGlue(fn, exit2) || fn.Succs(exit2)[0] != g2.Fallthrough {
		return false, "exit block of L2 is not glue jumping past guard of L2"
	}
	for _, id := range fn.Blocks[g2.Block].Instrs {
		if fn.Values[id].HasSideEffects() {
			return false, "guard of L2 has side effects"
		}
		for _, u := range fn.Uses(id) {
			if u.Block != g2.Block {
				return false, "value computed in guard of L2 is used elsewhere"
			}
		}
	}
	return true, ""
}

func adjacentUnguarded(a *Analysis, l1, l2 *loop.Loop) (bool, string) {
	fn := a.Func
	ph2 := l2.Preheader()
	if ph2 == ir.NoBlock {
		return false, "L2 has no preheader"
	}
	exit1 := l1.ExitBlock()
	if exit1 == ir.NoBlock {
		// Distinct exit blocks cannot all be the preheader.
		exits := l1.ExitBlocks()
		if len(exits) == 0 {
			return false, "L1 never exits"
		}
		for _, e := range exits {
			if e != ph2 {
				return false, "exit blocks of L1 are not the preheader of L2"
			}
		}
		return true, ""
	}
	if exit1 != ph2 {
		return false, "exit block of L1 is not the preheader of L2"
	}
	if len(fn.Blocks[exit1].Instrs) > 0 {
		return false, "block between the loops holds instructions"
	}
	for _, p := range fn.Preds(exit1) {
		if !l1.Contains(p) {
			return false, "preheader of L2 is reached from outside of L1"
		}
	}
	return true, ""
}

// isGlue returns true if b only jumps to its successor.
func isGlue(fn *ir.Func, b ir.BlockID) bool {
	if b == ir.NoBlock {
		return false
	}
	blk := fn.Blocks[b]
	return len(blk.Instrs) == 0 && blk.Term.Kind == ir.TermJump
}
