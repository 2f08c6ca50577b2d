package loop

import (
	"sort"

	"github.com/nickng/loopfuse/block"
	"github.com/nickng/loopfuse/dom"
	"github.com/nickng/loopfuse/ir"
	"go.uber.org/zap"
)

// Forest is the set of natural loops of a function and their nesting.
type Forest struct {
	fn     *ir.Func
	loops  []*Loop // In reverse postorder of headers, outer before inner.
	loopOf []*Loop // Innermost loop per BlockID.
	rpo    []int   // Reverse postorder number per BlockID, -1 if unreachable.
}

// Func returns the function the forest was detected for.
func (f *Forest) Func() *ir.Func { return f.fn }

// Loops returns every loop in reverse postorder of their headers.
func (f *Forest) Loops() []*Loop { return f.loops }

// LoopFor returns the innermost loop containing b, or nil.
func (f *Forest) LoopFor(b ir.BlockID) *Loop {
	if b < 0 || int(b) >= len(f.loopOf) {
		return nil
	}
	return f.loopOf[b]
}

// LoopAt returns the loop whose header is h, or nil.
func (f *Forest) LoopAt(h ir.BlockID) *Loop {
	if l := f.LoopFor(h); l != nil && l.header == h {
		return l
	}
	return nil
}

// RPO returns the reverse postorder number of b, -1 if b is unreachable.
func (f *Forest) RPO(b ir.BlockID) int {
	if b < 0 || int(b) >= len(f.rpo) {
		return -1
	}
	return f.rpo[b]
}

// Innermost returns the loops with no nested loop, ordered by descending
// reverse postorder number of their headers; the loop at index i therefore
// comes before the loop at index i-1 in program order.
func (f *Forest) Innermost() []*Loop {
	var inner []*Loop
	for i := len(f.loops) - 1; i >= 0; i-- {
		if f.loops[i].IsInnermost() {
			inner = append(inner, f.loops[i])
		}
	}
	return inner
}

// Detector finds the natural loops of functions.
type Detector struct {
	logger *zap.SugaredLogger
}

// NewDetector returns a Detector which does not log.
func NewDetector() *Detector {
	return &Detector{logger: zap.NewNop().Sugar()}
}

// SetLogger sets the logger tracing detection.
func (d *Detector) SetLogger(l *zap.SugaredLogger) {
	d.logger = l
}

// Detect returns the loop forest of fn, dt being its dominator tree.
func Detect(fn *ir.Func, dt *dom.Tree) *Forest {
	return NewDetector().Detect(fn, dt)
}

// Detect returns the loop forest of fn, dt being its dominator tree.
func (d *Detector) Detect(fn *ir.Func, dt *dom.Tree) *Forest {
	f := &Forest{
		fn:     fn,
		loopOf: make([]*Loop, len(fn.Blocks)),
		rpo:    make([]int, len(fn.Blocks)),
	}
	for i := range f.rpo {
		f.rpo[i] = -1
	}
	order := block.ReversePostorder(fn)
	for i, b := range order {
		f.rpo[b] = i
	}
	preds := fn.PredLists()

	for _, h := range order {
		var latches []ir.BlockID
		for _, p := range preds[h] {
			if f.rpo[p] >= 0 && dt.Dominates(h, p) {
				latches = append(latches, p)
			}
		}
		if len(latches) == 0 {
			continue
		}
		sort.Slice(latches, func(i, j int) bool { return f.rpo[latches[i]] < f.rpo[latches[j]] })
		l := &Loop{
			forest:  f,
			header:  h,
			latches: latches,
			member:  make([]bool, len(fn.Blocks)),
		}
		l.member[h] = true
		work := NewStack()
		for _, latch := range latches {
			work.Push(latch)
		}
		for !work.IsEmpty() {
			b, _ := work.Pop()
			if l.member[b] {
				continue
			}
			l.member[b] = true
			for _, p := range preds[b] {
				if f.rpo[p] >= 0 && !l.member[p] {
					work.Push(p)
				}
			}
		}
		for _, b := range order {
			if l.member[b] {
				l.blocks = append(l.blocks, b)
			}
		}
		d.logger.Debugw("Natural loop found",
			"func", fn.Name, "header", h, "latches", latches, "blocks", len(l.blocks))
		f.loops = append(f.loops, l)
	}

	// Headers come in reverse postorder so enclosing loops are seen first, and
	// the nearest enclosing loop is the last one seen containing the header.
	for i, l := range f.loops {
		for j := i - 1; j >= 0; j-- {
			if f.loops[j].Contains(l.header) {
				l.parent = f.loops[j]
				l.parent.children = append(l.parent.children, l)
				break
			}
		}
		l.depth = 1
		if l.parent != nil {
			l.depth = l.parent.depth + 1
		}
		for _, b := range l.blocks {
			f.loopOf[b] = l
		}
	}
	return f
}
