package block

import "github.com/nickng/loopfuse/ir"

// TraverseEdges takes a Func and applies visit to the edge through which each
// reachable block is first entered, breadth first from the entry. The entry
// itself is visited with from == ir.NoBlock.
func TraverseEdges(fn *ir.Func, visit func(from, to ir.BlockID)) {
	if fn.Block(fn.Entry) == nil {
		return
	}
	visited := make([]bool, len(fn.Blocks))
	type Edge struct {
		From, To ir.BlockID
	}
	queue := []Edge{{From: ir.NoBlock, To: fn.Entry}}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if visited[e.To] || fn.Blocks[e.To].Dead {
			continue
		}
		visited[e.To] = true
		visit(e.From, e.To)
		for _, succ := range fn.Succs(e.To) {
			queue = append(queue, Edge{From: e.To, To: succ})
		}
	}
}

// Reachable returns, indexed by BlockID, whether each block is reachable from
// the entry of fn.
func Reachable(fn *ir.Func) []bool {
	seen := make([]bool, len(fn.Blocks))
	TraverseEdges(fn, func(_, to ir.BlockID) { seen[to] = true })
	return seen
}

// Postorder returns the reachable blocks of fn in depth first postorder.
// Successors are explored in terminator order.
func Postorder(fn *ir.Func) []ir.BlockID {
	if fn.Block(fn.Entry) == nil {
		return nil
	}
	type frame struct {
		b    ir.BlockID
		next int
	}
	seen := make([]bool, len(fn.Blocks))
	order := make([]ir.BlockID, 0, len(fn.Blocks))
	stack := []frame{{b: fn.Entry}}
	seen[fn.Entry] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := fn.Succs(top.b)
		if top.next < len(succs) {
			s := succs[top.next]
			top.next++
			if !seen[s] && !fn.Blocks[s].Dead {
				seen[s] = true
				stack = append(stack, frame{b: s})
			}
			continue
		}
		order = append(order, top.b)
		stack = stack[:len(stack)-1]
	}
	return order
}

// ReversePostorder returns the reachable blocks of fn in reverse postorder.
func ReversePostorder(fn *ir.Func) []ir.BlockID {
	order := Postorder(fn)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}
