// Package block provides CFG traversal over ir functions, the Analyser
// interface for observing block transitions and supporting utils.
package block

import "github.com/nickng/loopfuse/ir"

// Analyser is an interface for following block transitions within a function
// as it executes.
type Analyser interface {
	// EnterBlk is called for the first block of a function.
	EnterBlk(blk ir.BlockID)

	// JumpBlk is called when control transfers from curr to next.
	JumpBlk(curr, next ir.BlockID)

	// ExitBlk is called for a block ending the function, i.e. one whose
	// terminator has no successors.
	ExitBlk(blk ir.BlockID)
}

// Counter is an Analyser counting how often each block and edge is taken.
type Counter struct {
	Blocks map[ir.BlockID]int
	Edges  map[[2]ir.BlockID]int
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{
		Blocks: make(map[ir.BlockID]int),
		Edges:  make(map[[2]ir.BlockID]int),
	}
}

func (c *Counter) EnterBlk(blk ir.BlockID) { c.Blocks[blk]++ }

func (c *Counter) JumpBlk(curr, next ir.BlockID) {
	c.Blocks[next]++
	c.Edges[[2]ir.BlockID{curr, next}]++
}

func (c *Counter) ExitBlk(ir.BlockID) {}
