// Package dom computes dominator and post-dominator trees of ir functions.
//
// Immediate dominators are found with the iterative algorithm of Cooper,
// Harvey and Kennedy ("A Simple, Fast Dominance Algorithm") over reverse
// postorder. The tree is then numbered in preorder and postorder so
// Dominates is answered in constant time.
//
// The post-dominator tree is the dominator tree of the reversed CFG rooted at
// a virtual exit node, which every block without successors jumps to. Blocks
// that cannot reach a return (infinite loops) are also attached to the
// virtual exit so every reachable block has a post-dominator.
package dom

import (
	"github.com/nickng/loopfuse/block"
	"github.com/nickng/loopfuse/ir"
)

// Tree is a dominator or post-dominator tree.
type Tree struct {
	post    bool
	root    int // Node index of the root; the virtual exit for post trees.
	nblocks int

	idom     []int   // Immediate dominator per node, -1 for root and unreachable.
	children [][]int // Dominator tree children per node.
	pre      []int32 // Preorder number, -1 when unreachable.
	postn    []int32
}

// New returns the dominator tree of fn.
func New(fn *ir.Func) *Tree {
	t := &Tree{}
	t.Recalculate(fn)
	return t
}

// NewPost returns the post-dominator tree of fn.
func NewPost(fn *ir.Func) *Tree {
	t := &Tree{post: true}
	t.Recalculate(fn)
	return t
}

// IsPostDom returns true if t is a post-dominator tree.
func (t *Tree) IsPostDom() bool { return t.post }

// Recalculate rebuilds t from the current CFG of fn.
func (t *Tree) Recalculate(fn *ir.Func) {
	var g *graph
	if t.post {
		g = reverseGraph(fn)
	} else {
		g = forwardGraph(fn)
	}
	t.root = g.root
	t.nblocks = len(fn.Blocks)
	t.idom = g.idoms()
	t.number(len(g.succs))
}

// number builds children lists and the pre/post numbering of the tree.
func (t *Tree) number(n int) {
	t.children = make([][]int, n)
	for v, d := range t.idom {
		if d >= 0 {
			t.children[d] = append(t.children[d], v)
		}
	}
	t.pre = make([]int32, n)
	t.postn = make([]int32, n)
	for i := range t.pre {
		t.pre[i], t.postn[i] = -1, -1
	}
	type frame struct{ v, next int }
	var pre, post int32
	stack := []frame{{v: t.root}}
	t.pre[t.root] = pre
	pre++
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(t.children[top.v]) {
			c := t.children[top.v][top.next]
			top.next++
			t.pre[c] = pre
			pre++
			stack = append(stack, frame{v: c})
			continue
		}
		t.postn[top.v] = post
		post++
		stack = stack[:len(stack)-1]
	}
}

func (t *Tree) valid(b ir.BlockID) bool {
	return b >= 0 && int(b) < t.nblocks
}

// Reachable returns true if b is part of the tree, i.e. reachable from the
// entry (dominators) or reaching the exit (post-dominators).
func (t *Tree) Reachable(b ir.BlockID) bool {
	return t.valid(b) && t.pre[b] >= 0
}

// Dominates returns true if a dominates b (a post-dominates b for a
// post-dominator tree). Every block dominates itself. Blocks not part of the
// tree dominate nothing and are dominated by nothing but themselves.
func (t *Tree) Dominates(a, b ir.BlockID) bool {
	if a == b {
		return true
	}
	if !t.Reachable(a) || !t.Reachable(b) {
		return false
	}
	return t.pre[a] <= t.pre[b] && t.postn[b] <= t.postn[a]
}

// StrictlyDominates returns true if a dominates b and a != b.
func (t *Tree) StrictlyDominates(a, b ir.BlockID) bool {
	return a != b && t.Dominates(a, b)
}

// Idom returns the immediate dominator of b, or ir.NoBlock for the root,
// blocks whose immediate post-dominator is the virtual exit, and blocks not
// part of the tree.
func (t *Tree) Idom(b ir.BlockID) ir.BlockID {
	if !t.Reachable(b) {
		return ir.NoBlock
	}
	d := t.idom[b]
	if d < 0 || d == t.root && t.post {
		return ir.NoBlock
	}
	return ir.BlockID(d)
}

// Children returns the blocks immediately dominated by b.
func (t *Tree) Children(b ir.BlockID) []ir.BlockID {
	if !t.Reachable(b) {
		return nil
	}
	return toBlocks(t.children[b])
}

// Roots returns the blocks at the top of the tree: the entry for a dominator
// tree, the blocks immediately post-dominated by the virtual exit otherwise.
func (t *Tree) Roots() []ir.BlockID {
	if !t.post {
		return []ir.BlockID{ir.BlockID(t.root)}
	}
	return toBlocks(t.children[t.root])
}

func toBlocks(vs []int) []ir.BlockID {
	bs := make([]ir.BlockID, len(vs))
	for i, v := range vs {
		bs[i] = ir.BlockID(v)
	}
	return bs
}

// graph is the CFG (or its reverse) as dense adjacency lists over node
// indices; BlockIDs are used as indices directly.
type graph struct {
	root  int
	succs [][]int
	preds [][]int
}

func forwardGraph(fn *ir.Func) *graph {
	n := len(fn.Blocks)
	g := &graph{root: int(fn.Entry), succs: make([][]int, n), preds: make([][]int, n)}
	for _, b := range fn.Blocks {
		if b.Dead {
			continue
		}
		for _, s := range b.Term.Succs {
			g.addEdge(int(b.ID), int(s))
		}
	}
	return g
}

func reverseGraph(fn *ir.Func) *graph {
	n := len(fn.Blocks)
	exit := n
	g := &graph{root: exit, succs: make([][]int, n+1), preds: make([][]int, n+1)}
	reach := block.Reachable(fn)
	for _, b := range fn.Blocks {
		if b.Dead || !reach[b.ID] {
			continue
		}
		if len(b.Term.Succs) == 0 {
			g.addEdge(exit, int(b.ID))
		}
		for _, s := range b.Term.Succs {
			g.addEdge(int(s), int(b.ID))
		}
	}
	// Attach blocks which never reach an exit, one per unreached region, so
	// that their post-dominators are well defined.
	po := block.Postorder(fn)
	for {
		seen := g.reachable()
		orphan := -1
		for _, b := range po {
			if !seen[b] {
				orphan = int(b)
				break
			}
		}
		if orphan < 0 {
			break
		}
		g.addEdge(exit, orphan)
	}
	return g
}

func (g *graph) addEdge(from, to int) {
	for _, s := range g.succs[from] {
		if s == to {
			return
		}
	}
	g.succs[from] = append(g.succs[from], to)
	g.preds[to] = append(g.preds[to], from)
}

func (g *graph) postorder() []int {
	type frame struct{ v, next int }
	seen := make([]bool, len(g.succs))
	var order []int
	stack := []frame{{v: g.root}}
	seen[g.root] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(g.succs[top.v]) {
			s := g.succs[top.v][top.next]
			top.next++
			if !seen[s] {
				seen[s] = true
				stack = append(stack, frame{v: s})
			}
			continue
		}
		order = append(order, top.v)
		stack = stack[:len(stack)-1]
	}
	return order
}

func (g *graph) reachable() []bool {
	seen := make([]bool, len(g.succs))
	for _, v := range g.postorder() {
		seen[v] = true
	}
	return seen
}

// idoms returns the immediate dominator of every node, -1 for the root and
// for nodes unreachable from it.
func (g *graph) idoms() []int {
	po := g.postorder()
	num := make([]int, len(g.succs)) // Postorder number; -1 if unreachable.
	for i := range num {
		num[i] = -1
	}
	for i, v := range po {
		num[v] = i
	}
	idom := make([]int, len(g.succs))
	for i := range idom {
		idom[i] = -1
	}
	idom[g.root] = g.root

	intersect := func(a, b int) int {
		for a != b {
			for num[a] < num[b] {
				a = idom[a]
			}
			for num[b] < num[a] {
				b = idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for i := len(po) - 2; i >= 0; i-- { // Reverse postorder, root excluded.
			v := po[i]
			d := -1
			for _, p := range g.preds[v] {
				if num[p] < 0 || idom[p] < 0 {
					continue
				}
				if d < 0 {
					d = p
				} else {
					d = intersect(p, d)
				}
			}
			if d >= 0 && idom[v] != d {
				idom[v] = d
				changed = true
			}
		}
	}
	idom[g.root] = -1
	return idom
}
