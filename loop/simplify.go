package loop

import (
	"github.com/nickng/loopfuse/dom"
	"github.com/nickng/loopfuse/ir"
)

// Simplify puts the loops of fn in simplified form by splitting edges with
// empty blocks:
//
//   - a loop with a single back edge gets a dedicated latch, an empty block
//     whose only predecessor is in the loop and which jumps to the header;
//   - every exit block reached from outside of the loop too gets a new exit
//     block per exiting edge;
//   - a loop whose unique outside predecessor also branches elsewhere gets a
//     preheader.
//
// Loops with several back edges or several outside predecessors keep them.
// Simplify returns the number of blocks added.
func Simplify(fn *ir.Func) int {
	n := splitLatches(fn)
	n += splitExits(fn)
	n += splitPreheaders(fn)
	return n
}

// splitEdge inserts an empty block named comment on the edge from b to succ.
func splitEdge(fn *ir.Func, b, succ ir.BlockID, comment string) ir.BlockID {
	mid := fn.NewBlock(comment)
	fn.ReplaceSucc(b, succ, mid)
	fn.Jump(mid, succ)
	fn.RetargetPhis(succ, b, mid)
	return mid
}

func dedicatedLatch(fn *ir.Func, l *Loop, latch ir.BlockID) bool {
	blk := fn.Blocks[latch]
	if len(blk.Instrs) > 0 || blk.Term.Kind != ir.TermJump {
		return false
	}
	p, ok := fn.SinglePred(latch)
	return ok && p != l.header && l.Contains(p)
}

func splitLatches(fn *ir.Func) int {
	n := 0
	for _, l := range Detect(fn, dom.New(fn)).Loops() {
		latch := l.Latch()
		if latch == ir.NoBlock || dedicatedLatch(fn, l, latch) {
			continue
		}
		splitEdge(fn, latch, l.header, "for.post")
		n++
	}
	return n
}

func splitExits(fn *ir.Func) int {
	type edge struct{ from, to ir.BlockID }
	var edges []edge
	seen := make(map[edge]bool)
	for _, l := range Detect(fn, dom.New(fn)).Loops() {
		for _, exit := range l.ExitBlocks() {
			dedicated := true
			for _, p := range fn.Preds(exit) {
				if !l.Contains(p) {
					dedicated = false
					break
				}
			}
			if dedicated {
				continue
			}
			for _, p := range fn.Preds(exit) {
				if e := (edge{p, exit}); l.Contains(p) && !seen[e] {
					seen[e] = true
					edges = append(edges, e)
				}
			}
		}
	}
	for _, e := range edges {
		splitEdge(fn, e.from, e.to, "for.done")
	}
	return len(edges)
}

func splitPreheaders(fn *ir.Func) int {
	n := 0
	for _, l := range Detect(fn, dom.New(fn)).Loops() {
		if p := l.Predecessor(); p != ir.NoBlock && l.Preheader() == ir.NoBlock {
			splitEdge(fn, p, l.header, "for.preheader")
			n++
		}
	}
	return n
}
