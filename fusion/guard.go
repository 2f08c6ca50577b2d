package fusion

import (
	"github.com/nickng/loopfuse/ir"
	"github.com/nickng/loopfuse/loop"
)

// Guard is the conditional branch deciding whether a loop runs at all.
type Guard struct {
	Block       ir.BlockID // Block ending with the branch.
	Cond        ir.ValueID
	Entry       ir.BlockID // Successor leading to the loop preheader.
	Fallthrough ir.BlockID // Successor skipping the loop.
}

// FindGuard returns the guard of l: the two-way branch ending the unique
// predecessor of its preheader, that predecessor being outside of every
// loop.
func FindGuard(a *Analysis, l *loop.Loop) (*Guard, bool) {
	ph := l.Preheader()
	if ph == ir.NoBlock {
		return nil, false
	}
	p, ok := a.Func.SinglePred(ph)
	if !ok || a.Loops.LoopFor(p) != nil {
		return nil, false
	}
	t := a.Func.Blocks[p].Term
	if t.Kind != ir.TermIf || t.Succs[0] == t.Succs[1] {
		return nil, false
	}
	g := &Guard{Block: p, Cond: t.Cond, Entry: t.Succs[0], Fallthrough: t.Succs[1]}
	if g.Entry != ph {
		g.Entry, g.Fallthrough = g.Fallthrough, g.Entry
	}
	return g, true
}
