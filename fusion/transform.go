package fusion

import (
	"github.com/nickng/loopfuse/block"
	"github.com/nickng/loopfuse/ir"
	"github.com/nickng/loopfuse/loop"
)

// pair is the set of blocks and values Fuse rewires.
type pair struct {
	g1, g2   *Guard
	iv1, iv2 ir.ValueID

	h1, latch1, bodyExit1  ir.BlockID
	h2, latch2, bodyExit2  ir.BlockID
	bodyEntry2, ph2, exit2 ir.BlockID
	exit1, final           ir.BlockID // Guarded pairs only.
	pre1                   ir.BlockID

	// Phis of l2's header other than its induction variable, moved to l1's
	// header.
	moved []movedPhi
}

type movedPhi struct {
	phi        ir.ValueID
	init, next ir.ValueID
}

func (p *pair) guarded() bool { return p.g1 != nil && p.g2 != nil }

// latchParts returns the unique latch of l and its unique predecessor, which
// must be inside l.
func latchParts(fn *ir.Func, l *loop.Loop) (latch, bodyExit ir.BlockID, err error) {
	latch = l.Latch()
	if latch == ir.NoBlock {
		return ir.NoBlock, ir.NoBlock, ErrNoLatch
	}
	bodyExit, ok := fn.SinglePred(latch)
	if !ok || !l.Contains(bodyExit) {
		return ir.NoBlock, ir.NoBlock, ErrNoBodyExit
	}
	return latch, bodyExit, nil
}

// shape checks that l1 and l2 can be rewired and collects what is rewired.
// It does not modify the function.
func shape(a *Analysis, l1, l2 *loop.Loop) (*pair, error) {
	fn := a.Func
	fail := func(l *loop.Loop, err error) (*pair, error) {
		return nil, &ShapeError{Func: fn.Name, Header: l.Header(), Err: err}
	}
	p := &pair{h1: l1.Header(), h2: l2.Header(), exit1: ir.NoBlock, final: ir.NoBlock}
	p.g1, _ = FindGuard(a, l1)
	p.g2, _ = FindGuard(a, l2)
	if p.iv1 = l1.InductionVar(); p.iv1 == ir.NoValue {
		return fail(l1, ErrNoInductionVar)
	}
	if p.iv2 = l2.InductionVar(); p.iv2 == ir.NoValue {
		return fail(l2, ErrNoInductionVar)
	}
	var err error
	if p.latch1, p.bodyExit1, err = latchParts(fn, l1); err != nil {
		return fail(l1, err)
	}
	if p.latch2, p.bodyExit2, err = latchParts(fn, l2); err != nil {
		return fail(l2, err)
	}
	if p.bodyExit2 == p.h2 {
		return fail(l2, ErrNoBodyEntry)
	}
	for _, l := range []*loop.Loop{l1, l2} {
		if l.ExitingBlock() != l.Header() {
			return fail(l, ErrNoExit)
		}
	}
	if p.ph2 = l2.Preheader(); p.ph2 == ir.NoBlock {
		return fail(l2, ErrNoPreheader)
	}
	if p.exit2 = l2.ExitBlock(); p.exit2 == ir.NoBlock {
		return fail(l2, ErrNoExit)
	}

	p.bodyEntry2 = ir.NoBlock
	for _, s := range fn.Succs(p.h2) {
		if !l2.Contains(s) {
			continue
		}
		if p.bodyEntry2 != ir.NoBlock || s == p.latch2 {
			return fail(l2, ErrNoBodyEntry)
		}
		p.bodyEntry2 = s
	}
	if p.bodyEntry2 == ir.NoBlock {
		return fail(l2, ErrNoBodyEntry)
	}
	p.pre1 = l1.Predecessor()
	for _, phi := range fn.Phis(p.h2) {
		if phi == p.iv2 {
			continue
		}
		m, ok := movable(a, p, phi)
		if !ok {
			return fail(l2, ErrHeaderPhi)
		}
		p.moved = append(p.moved, m)
	}
	for _, b := range []ir.BlockID{p.h2, p.latch2} {
		for _, id := range fn.Blocks[b].Instrs {
			if b == p.h2 && fn.Values[id].Op == ir.OpPhi {
				continue
			}
			for _, u := range fn.Uses(id) {
				if u.Block != p.h2 && u.Block != p.latch2 {
					return fail(l2, ErrEscapingControl)
				}
			}
		}
	}

	target := p.exit2
	if p.guarded() {
		if p.exit1 = l1.ExitBlock(); p.exit1 == ir.NoBlock {
			return fail(l1, ErrNoExit)
		}
		p.final = p.g2.Fallthrough
		target = p.final
	}
	if len(fn.Phis(target)) > 0 {
		return fail(l2, ErrExitPhi)
	}
	return p, nil
}

// movable checks that a phi of l2's header can be moved to l1's header: its
// initial value must be available on entry to l1 and its next value must be
// computed in l2's body.
func movable(a *Analysis, p *pair, phi ir.ValueID) (movedPhi, bool) {
	fn := a.Func
	m := movedPhi{phi: phi, init: ir.NoValue, next: ir.NoValue}
	for _, e := range fn.Values[phi].Edges {
		switch e.Block {
		case p.ph2:
			m.init = e.Value
		case p.latch2:
			m.next = e.Value
		}
	}
	if m.init == ir.NoValue || m.next == ir.NoValue {
		return m, false
	}
	if b := fn.Values[m.init].Block; b != ir.NoBlock && !a.Dom.StrictlyDominates(b, p.h1) {
		return m, false
	}
	if b := fn.Values[m.next].Block; b == p.h2 || b == p.latch2 {
		return m, false
	}
	return m, true
}

// Fuse moves the body of l2 into l1, right after l1's body, and removes l2.
// Legality is not checked. If the loops do not have the expected shape, a
// *ShapeError is returned and the function is unchanged.
func Fuse(a *Analysis, l1, l2 *loop.Loop) error {
	p, err := shape(a, l1, l2)
	if err != nil {
		return err
	}
	fn := a.Func
	log := a.with(modTransform)

	if p.guarded() {
		fn.ReplaceSucc(p.g1.Block, p.g1.Fallthrough, p.final)
		fn.ReplaceTerm(p.exit1, ir.Term{Kind: ir.TermJump, Succs: []ir.BlockID{p.final}})
		log.Debugw(log.Module()+" Guards rewired", "func", fn.Name, "guard", p.g1.Block, "final", p.final)
	}

	fn.ReplaceAllUses(p.iv2, p.iv1)
	fn.Erase(p.iv2)
	log.Debugw(log.Module()+" Induction variable replaced", "func", fn.Name, "old", p.iv2, "new", p.iv1)

	relink(fn, p.bodyExit1, p.latch1, p.bodyEntry2)
	fn.RetargetPhis(p.bodyEntry2, p.h2, p.bodyExit1)
	if !p.guarded() {
		fn.ReplaceSucc(p.h1, p.ph2, p.exit2)
	}

	relink(fn, p.bodyExit2, p.latch2, p.latch1)
	fn.RetargetPhis(p.latch1, p.bodyExit1, p.bodyExit2)
	fn.ReplaceTerm(p.h2, ir.Term{Kind: ir.TermJump, Succs: []ir.BlockID{p.latch2}})

	for _, m := range p.moved {
		fn.Erase(m.phi)
		moved := fn.Phi(p.h1, fn.Values[m.phi].Type,
			ir.PhiEdge{Block: p.pre1, Value: m.init},
			ir.PhiEdge{Block: p.latch1, Value: m.next})
		fn.ReplaceAllUses(m.phi, moved)
	}

	n := block.EliminateUnreachable(fn)
	log.Debugw(log.Module()+" Bodies spliced", "func", fn.Name, "l1", p.h1, "l2", p.h2, "removed", n)
	a.Invalidate()
	return nil
}

// relink redirects the edge from b to oldSucc to newSucc. A block with a
// single successor gets a new jump, otherwise only that edge changes.
func relink(fn *ir.Func, b, oldSucc, newSucc ir.BlockID) {
	if len(fn.Succs(b)) == 1 {
		fn.ReplaceTerm(b, ir.Term{Kind: ir.TermJump, Succs: []ir.BlockID{newSucc}})
		return
	}
	fn.ReplaceSucc(b, oldSucc, newSucc)
}
