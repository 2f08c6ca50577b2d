package loop

import (
	"bytes"
	"fmt"

	"github.com/nickng/loopfuse/ir"
)

// Loop is a natural loop of a function. It is a read-only view over the CFG
// at the time of detection; any CFG edit invalidates it.
type Loop struct {
	forest *Forest

	header  ir.BlockID
	latches []ir.BlockID // Sources of back edges, in RPO order.
	blocks  []ir.BlockID // Members, header first, in RPO order.
	member  []bool       // Indexed by BlockID.

	parent   *Loop
	children []*Loop
	depth    int // 1 for outermost loops.
}

// Header returns the block every member is dominated by.
func (l *Loop) Header() ir.BlockID { return l.header }

// Latch returns the unique block with a back edge to the header, or
// ir.NoBlock if there are several.
func (l *Loop) Latch() ir.BlockID {
	if len(l.latches) != 1 {
		return ir.NoBlock
	}
	return l.latches[0]
}

// Latches returns every block with a back edge to the header.
func (l *Loop) Latches() []ir.BlockID { return l.latches }

// Blocks returns the member blocks in reverse postorder, header first.
func (l *Loop) Blocks() []ir.BlockID { return l.blocks }

// Contains returns true if b is a member of l or of a loop nested in l.
func (l *Loop) Contains(b ir.BlockID) bool {
	return b >= 0 && int(b) < len(l.member) && l.member[b]
}

// Parent returns the loop immediately enclosing l, or nil.
func (l *Loop) Parent() *Loop { return l.parent }

// Children returns the loops immediately nested in l.
func (l *Loop) Children() []*Loop { return l.children }

// Depth returns the nesting depth of l, 1 for outermost loops.
func (l *Loop) Depth() int { return l.depth }

// IsInnermost returns true if no loop is nested in l.
func (l *Loop) IsInnermost() bool { return len(l.children) == 0 }

func (l *Loop) fn() *ir.Func { return l.forest.fn }

// Predecessor returns the unique predecessor of the header outside of the
// loop, or ir.NoBlock.
func (l *Loop) Predecessor() ir.BlockID {
	pred := ir.NoBlock
	for _, p := range l.fn().Preds(l.header) {
		if l.Contains(p) {
			continue
		}
		if pred != ir.NoBlock {
			return ir.NoBlock
		}
		pred = p
	}
	return pred
}

// Preheader returns the unique predecessor of the header outside of the loop
// if its only successor is the header, or ir.NoBlock.
func (l *Loop) Preheader() ir.BlockID {
	p := l.Predecessor()
	if p == ir.NoBlock {
		return ir.NoBlock
	}
	succs := l.fn().Succs(p)
	if len(succs) != 1 || succs[0] != l.header {
		return ir.NoBlock
	}
	return p
}

// ExitingBlocks returns the members with a successor outside of the loop.
func (l *Loop) ExitingBlocks() []ir.BlockID {
	var exiting []ir.BlockID
	for _, b := range l.blocks {
		for _, s := range l.fn().Succs(b) {
			if !l.Contains(s) {
				exiting = append(exiting, b)
				break
			}
		}
	}
	return exiting
}

// ExitBlocks returns the distinct blocks outside of the loop with a
// predecessor inside, in the order they are first found.
func (l *Loop) ExitBlocks() []ir.BlockID {
	var exits []ir.BlockID
	seen := make(map[ir.BlockID]bool)
	for _, b := range l.blocks {
		for _, s := range l.fn().Succs(b) {
			if !l.Contains(s) && !seen[s] {
				seen[s] = true
				exits = append(exits, s)
			}
		}
	}
	return exits
}

// ExitingBlock returns the unique exiting block, or ir.NoBlock.
func (l *Loop) ExitingBlock() ir.BlockID {
	if e := l.ExitingBlocks(); len(e) == 1 {
		return e[0]
	}
	return ir.NoBlock
}

// ExitBlock returns the unique exit block, or ir.NoBlock.
func (l *Loop) ExitBlock() ir.BlockID {
	if e := l.ExitBlocks(); len(e) == 1 {
		return e[0]
	}
	return ir.NoBlock
}

// InductionVar returns the canonical induction variable of l: a header phi
// starting at constant 0 on entry and incremented by constant 1 along the
// back edge. It returns ir.NoValue if the loop has no unique latch, the header
// has other predecessors, or no phi has that shape.
func (l *Loop) InductionVar() ir.ValueID {
	fn := l.fn()
	latch, pred := l.Latch(), l.Predecessor()
	if latch == ir.NoBlock || pred == ir.NoBlock || len(fn.Preds(l.header)) != 2 {
		return ir.NoValue
	}
	for _, id := range fn.Phis(l.header) {
		phi := fn.Values[id]
		if phi.Type != ir.TypeInt || len(phi.Edges) != 2 {
			continue
		}
		var init, next ir.ValueID = ir.NoValue, ir.NoValue
		for _, e := range phi.Edges {
			switch e.Block {
			case pred:
				init = e.Value
			case latch:
				next = e.Value
			}
		}
		if init == ir.NoValue || next == ir.NoValue {
			continue
		}
		if !isConst(fn, init, 0) {
			continue
		}
		inc := fn.Value(next)
		if inc.Op != ir.OpAdd || len(inc.Args) != 2 {
			continue
		}
		if inc.Args[0] == id && isConst(fn, inc.Args[1], 1) || inc.Args[1] == id && isConst(fn, inc.Args[0], 1) {
			return id
		}
	}
	return ir.NoValue
}

func isConst(fn *ir.Func, v ir.ValueID, c int64) bool {
	val := fn.Value(v)
	return val != nil && val.Op == ir.OpConst && val.Type == ir.TypeInt && val.Aux == c
}

func (l *Loop) String() string {
	fn := l.fn()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "loop@%s", l.header)
	if iv := l.InductionVar(); iv != ir.NoValue {
		buf.WriteString(fmt.Sprintf(" %s = 0; ", iv))
		if t := fn.Blocks[l.header].Term; t.Kind == ir.TermIf {
			buf.WriteString(fmt.Sprintf("%s; ", exprToString(fn, t.Cond, 2)))
		}
		buf.WriteString(fmt.Sprintf("%s = %s + 1", iv, iv))
	}
	return buf.String()
}

var opSyms = map[ir.Op]string{
	ir.OpAdd: "+", ir.OpSub: "-", ir.OpMul: "*", ir.OpDiv: "/", ir.OpRem: "%",
	ir.OpEq: "==", ir.OpNe: "!=", ir.OpLt: "<", ir.OpLe: "<=", ir.OpGt: ">", ir.OpGe: ">=",
}

// exprToString converts an expression to string, expanding operands up to
// depth levels.
func exprToString(fn *ir.Func, id ir.ValueID, depth int) string {
	v := fn.Value(id)
	if v == nil || depth == 0 || v.Block == ir.NoBlock {
		return fn.ValueString(id)
	}
	if sym, ok := opSyms[v.Op]; ok {
		return fmt.Sprintf("(%s%s%s)", exprToString(fn, v.Args[0], depth-1), sym, exprToString(fn, v.Args[1], depth-1))
	}
	if v.Op == ir.OpLen {
		return fmt.Sprintf("len(%s)", exprToString(fn, v.Args[0], depth-1))
	}
	return fn.ValueString(id)
}
