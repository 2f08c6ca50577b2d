package ir

import "fmt"

// ValidationError describes the first malformed construct found by Validate.
type ValidationError struct {
	Func  string
	Block BlockID
	Value ValueID
	Msg   string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Value != NoValue:
		return fmt.Sprintf("%s: %s: %s: %s", e.Func, e.Block, e.Value, e.Msg)
	case e.Block != NoBlock:
		return fmt.Sprintf("%s: %s: %s", e.Func, e.Block, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Func, e.Msg)
}

// Validate checks the structural well-formedness of f: live entry, complete
// terminators, edges to live blocks only, phis first with exactly one edge per
// predecessor, and no operand referring to a removed value.
//
// Dominance of definitions over uses is checked by package dom.
func (f *Func) Validate() error {
	fail := func(b BlockID, v ValueID, format string, args ...interface{}) error {
		return &ValidationError{Func: f.Name, Block: b, Value: v, Msg: fmt.Sprintf(format, args...)}
	}
	if e := f.Block(f.Entry); e == nil || e.Dead {
		return fail(NoBlock, NoValue, "entry block %s is not live", f.Entry)
	}
	if preds := f.Preds(f.Entry); len(preds) > 0 {
		return fail(f.Entry, NoValue, "entry block has predecessors %v", preds)
	}
	preds := f.PredLists()
	for _, b := range f.Blocks {
		if b.Dead {
			continue
		}
		t := &b.Term
		switch t.Kind {
		case TermJump:
			if len(t.Succs) != 1 {
				return fail(b.ID, NoValue, "jump with %d successors", len(t.Succs))
			}
		case TermIf:
			if len(t.Succs) != 2 {
				return fail(b.ID, NoValue, "if with %d successors", len(t.Succs))
			}
			if c := f.Value(t.Cond); c == nil || c.Dead {
				return fail(b.ID, NoValue, "if on removed condition %s", t.Cond)
			}
		case TermReturn, TermPanic:
			if len(t.Succs) != 0 {
				return fail(b.ID, NoValue, "%s with successors", t.Kind)
			}
		default:
			return fail(b.ID, NoValue, "missing terminator")
		}
		for _, s := range t.Succs {
			if sb := f.Block(s); sb == nil || sb.Dead {
				return fail(b.ID, NoValue, "edge to removed block %s", s)
			}
		}
		for _, op := range t.Operands() {
			if v := f.Value(*op); v == nil || v.Dead {
				return fail(b.ID, NoValue, "terminator uses removed value %s", *op)
			}
		}
		seenNonPhi := false
		for _, id := range b.Instrs {
			v := f.Value(id)
			if v == nil || v.Dead {
				return fail(b.ID, id, "removed instruction still listed")
			}
			if v.Block != b.ID {
				return fail(b.ID, id, "instruction claims block %s", v.Block)
			}
			if v.Op == OpPhi {
				if seenNonPhi {
					return fail(b.ID, id, "phi after non-phi instruction")
				}
				if err := f.validatePhi(v, preds[b.ID]); err != nil {
					return fail(b.ID, id, "%v", err)
				}
			} else {
				seenNonPhi = true
			}
			for _, op := range v.Operands() {
				u := f.Value(*op)
				if u == nil || u.Dead {
					return fail(b.ID, id, "uses removed value %s", *op)
				}
			}
		}
	}
	return nil
}

func (f *Func) validatePhi(phi *Value, preds []BlockID) error {
	if len(phi.Edges) != len(preds) {
		return fmt.Errorf("phi has %d edges for %d predecessors", len(phi.Edges), len(preds))
	}
	for _, p := range preds {
		n := 0
		for _, e := range phi.Edges {
			if e.Block == p {
				n++
			}
		}
		if n != 1 {
			return fmt.Errorf("phi has %d edges from predecessor %s", n, p)
		}
	}
	return nil
}
