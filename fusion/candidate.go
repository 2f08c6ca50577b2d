package fusion

import (
	"github.com/nickng/loopfuse/loop"
	"github.com/nickng/loopfuse/scev"
)

// Candidate is an innermost loop considered for fusion.
type Candidate struct {
	Loop *loop.Loop

	trip    *scev.Expr
	tripErr error
	tripSet bool
}

// TripCount returns the exact trip count of the loop, computed on first use.
// The result never changes for the lifetime of the candidate.
func (c *Candidate) TripCount(a *Analysis) (*scev.Expr, error) {
	if !c.tripSet {
		c.trip, c.tripErr = a.SE.TripCount(c.Loop)
		c.tripSet = true
	}
	return c.trip, c.tripErr
}

// candidates returns the innermost loops of the function, ordered so that
// the candidate at index i precedes the one at index i-1.
func candidates(a *Analysis) []*Candidate {
	var cands []*Candidate
	for _, l := range a.Loops.Innermost() {
		cands = append(cands, &Candidate{Loop: l})
	}
	return cands
}

// rebind points every candidate to the loop with the same header in the
// current loop forest, dropping candidates whose loop disappeared.
func rebind(a *Analysis, cands []*Candidate) []*Candidate {
	kept := cands[:0]
	for _, c := range cands {
		if l := a.Loops.LoopAt(c.Loop.Header()); l != nil {
			c.Loop = l
			kept = append(kept, c)
		}
	}
	return kept
}
