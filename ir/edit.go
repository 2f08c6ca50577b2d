package ir

// ReplaceSucc replaces every edge b -> old by b -> repl and returns the number
// of edges changed. Phis are not updated; see RetargetPhis.
func (f *Func) ReplaceSucc(b, old, repl BlockID) int {
	n := 0
	succs := f.Blocks[b].Term.Succs
	for i := range succs {
		if succs[i] == old {
			succs[i] = repl
			n++
		}
	}
	return n
}

// SetSucc sets successor i of b.
func (f *Func) SetSucc(b BlockID, i int, to BlockID) {
	f.Blocks[b].Term.Succs[i] = to
}

// ReplaceTerm replaces the terminator of b with t and returns the terminator
// it discarded.
func (f *Func) ReplaceTerm(b BlockID, t Term) Term {
	old := f.Blocks[b].Term
	if t.Kind != TermIf {
		t.Cond = NoValue
	}
	f.Blocks[b].Term = t
	return old
}

// ReplaceAllUses rewrites every use of old in live instructions and
// terminators to repl.
func (f *Func) ReplaceAllUses(old, repl ValueID) {
	for _, v := range f.Values {
		if v.Dead {
			continue
		}
		for _, op := range v.Operands() {
			if *op == old {
				*op = repl
			}
		}
	}
	for _, b := range f.Blocks {
		if b.Dead {
			continue
		}
		for _, op := range b.Term.Operands() {
			if *op == old {
				*op = repl
			}
		}
	}
}

// Use is a single use of a value: the instruction using it, or the block
// whose terminator uses it (User == NoValue).
type Use struct {
	User  ValueID
	Block BlockID
}

// Uses returns every live use of v.
func (f *Func) Uses(v ValueID) []Use {
	var uses []Use
	for _, u := range f.Values {
		if u.Dead || u.Block == NoBlock {
			continue
		}
		for _, op := range u.Operands() {
			if *op == v {
				uses = append(uses, Use{User: u.ID, Block: u.Block})
				break
			}
		}
	}
	for _, b := range f.Blocks {
		if b.Dead {
			continue
		}
		for _, op := range b.Term.Operands() {
			if *op == v {
				uses = append(uses, Use{User: NoValue, Block: b.ID})
				break
			}
		}
	}
	return uses
}

// Erase removes instruction v from its block and marks it dead. Uses of v are
// not rewritten.
func (f *Func) Erase(v ValueID) {
	val := f.Values[v]
	if val.Block != NoBlock {
		blk := f.Blocks[val.Block]
		for i, id := range blk.Instrs {
			if id == v {
				blk.Instrs = append(blk.Instrs[:i:i], blk.Instrs[i+1:]...)
				break
			}
		}
	}
	val.Dead = true
}

// RetargetPhis rewrites the incoming block of phi edges in b from oldPred to
// newPred.
func (f *Func) RetargetPhis(b, oldPred, newPred BlockID) {
	for _, phi := range f.Phis(b) {
		edges := f.Values[phi].Edges
		for i := range edges {
			if edges[i].Block == oldPred {
				edges[i].Block = newPred
			}
		}
	}
}

// RemovePhiEdges drops the phi edges of b coming from pred.
func (f *Func) RemovePhiEdges(b, pred BlockID) {
	for _, phi := range f.Phis(b) {
		p := f.Values[phi]
		edges := p.Edges[:0]
		for _, e := range p.Edges {
			if e.Block != pred {
				edges = append(edges, e)
			}
		}
		p.Edges = edges
	}
}

// RemoveBlock marks b and its instructions dead. Edges into b from live blocks
// must have been removed by the caller.
func (f *Func) RemoveBlock(b BlockID) {
	blk := f.Blocks[b]
	for _, id := range blk.Instrs {
		f.Values[id].Dead = true
	}
	blk.Instrs = nil
	blk.Term = Term{Cond: NoValue}
	blk.Dead = true
}
