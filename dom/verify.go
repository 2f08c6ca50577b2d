package dom

import (
	"fmt"

	"github.com/nickng/loopfuse/ir"
)

// UseError is a use of a value not dominated by its definition.
type UseError struct {
	Func  string
	Def   ir.ValueID
	User  ir.ValueID // ir.NoValue for a terminator use.
	Block ir.BlockID
}

func (e *UseError) Error() string {
	if e.User == ir.NoValue {
		return fmt.Sprintf("%s: terminator of %s uses %s which does not dominate it", e.Func, e.Block, e.Def)
	}
	return fmt.Sprintf("%s: %s in %s uses %s which does not dominate it", e.Func, e.User, e.Block, e.Def)
}

// Verify checks that every use of an instruction in fn is dominated by its
// definition, t being the dominator tree of fn. A phi operand must be
// available at the end of the corresponding predecessor.
func Verify(fn *ir.Func, t *Tree) error {
	pos := make(map[ir.ValueID]int)
	for _, b := range fn.Blocks {
		if b.Dead {
			continue
		}
		for i, id := range b.Instrs {
			pos[id] = i
		}
	}
	// available reports whether def is available at position i of block b;
	// i == len(Instrs) is the terminator.
	available := func(def ir.ValueID, b ir.BlockID, i int) bool {
		d := fn.Value(def)
		if d.Block == ir.NoBlock {
			return true
		}
		if d.Block == b {
			return pos[def] < i
		}
		return t.Dominates(d.Block, b)
	}
	for _, b := range fn.Blocks {
		if b.Dead || !t.Reachable(b.ID) {
			continue
		}
		for i, id := range b.Instrs {
			v := fn.Values[id]
			if v.Op == ir.OpPhi {
				for _, e := range v.Edges {
					if !available(e.Value, e.Block, len(fn.Blocks[e.Block].Instrs)) {
						return &UseError{Func: fn.Name, Def: e.Value, User: id, Block: b.ID}
					}
				}
				continue
			}
			for _, a := range v.Args {
				if !available(a, b.ID, i) {
					return &UseError{Func: fn.Name, Def: a, User: id, Block: b.ID}
				}
			}
		}
		for _, op := range b.Term.Operands() {
			if !available(*op, b.ID, len(b.Instrs)) {
				return &UseError{Func: fn.Name, Def: *op, User: ir.NoValue, Block: b.ID}
			}
		}
	}
	return nil
}
