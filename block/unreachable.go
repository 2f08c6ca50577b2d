package block

import "github.com/nickng/loopfuse/ir"

// EliminateUnreachable removes every block of fn that cannot be reached from
// the entry and returns how many were removed. Phi edges of reachable blocks
// coming from removed blocks are dropped.
func EliminateUnreachable(fn *ir.Func) int {
	reach := Reachable(fn)
	var dead []ir.BlockID
	for _, b := range fn.Blocks {
		if !b.Dead && !reach[b.ID] {
			dead = append(dead, b.ID)
		}
	}
	if len(dead) == 0 {
		return 0
	}
	for _, d := range dead {
		for _, s := range fn.Succs(d) {
			if reach[s] {
				fn.RemovePhiEdges(s, d)
			}
		}
	}
	for _, d := range dead {
		fn.RemoveBlock(d)
	}
	return len(dead)
}
