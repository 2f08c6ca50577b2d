package fusion

import (
	"github.com/nickng/loopfuse/depend"
	"github.com/nickng/loopfuse/dom"
	"github.com/nickng/loopfuse/ir"
	"github.com/nickng/loopfuse/loop"
	"github.com/nickng/loopfuse/scev"
	"go.uber.org/zap"
)

// Analysis holds the analyses of one function the pass queries. It is owned
// by a single pass and must be invalidated after every CFG mutation.
type Analysis struct {
	Func    *ir.Func
	Dom     *dom.Tree
	PostDom *dom.Tree
	Loops   *loop.Forest
	SE      *scev.Engine
	DI      *depend.Oracle

	*Logger

	detector   *loop.Detector
	maxFusions int
	noAlias    bool
	result     Result
}

// Option configures an Analysis.
type Option func(*Analysis)

// WithLogger narrates every decision to l.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(a *Analysis) { a.Logger = NewLogger(l, modDriver) }
}

// WithMaxFusions stops the pass after n fusions; 0 means no limit.
func WithMaxFusions(n int) Option {
	return func(a *Analysis) { a.maxFusions = n }
}

// WithNoAlias assumes accesses through different base pointers never
// overlap. By default they block fusion unless the bases are provably
// different objects, since Go slices may share their backing array.
func WithNoAlias(noAlias bool) Option {
	return func(a *Analysis) { a.noAlias = noAlias }
}

// New computes the analyses of fn.
func New(fn *ir.Func, opts ...Option) *Analysis {
	a := &Analysis{
		Func:     fn,
		Logger:   NewLogger(zap.NewNop().Sugar(), modDriver),
		detector: loop.NewDetector(),
		SE:       scev.New(fn),
		result:   Result{Func: fn.Name},
	}
	for _, o := range opts {
		o(a)
	}
	a.detector.SetLogger(a.SugaredLogger)
	a.Dom = dom.New(fn)
	a.PostDom = dom.NewPost(fn)
	a.Loops = a.detector.Detect(fn, a.Dom)
	a.DI = depend.New(fn)
	return a
}

// Invalidate recomputes every analysis after the CFG of the function
// changed. The expression interner of the symbolic engine survives, so trip
// counts computed before and after stay comparable by identity.
func (a *Analysis) Invalidate() {
	a.Dom.Recalculate(a.Func)
	a.PostDom.Recalculate(a.Func)
	a.Loops = a.detector.Detect(a.Func, a.Dom)
	a.SE.Reset()
	a.DI = depend.New(a.Func)
}

// Result returns what the pass did so far.
func (a *Analysis) Result() *Result { return &a.result }

func (a *Analysis) decide(l1, l2 *loop.Loop, stage Stage, reason string) {
	d := Decision{L1: l1.Header(), L2: l2.Header(), Stage: stage, Reason: reason}
	a.result.Decisions = append(a.result.Decisions, d)
	if stage == StageFused {
		a.result.Fusions++
		a.Infow(a.Module()+" Loops fused", "func", a.Func.Name, "l1", d.L1, "l2", d.L2)
		return
	}
	a.Debugw(a.Module()+" Loops not fused",
		"func", a.Func.Name, "l1", d.L1, "l2", d.L2, "stage", string(stage), "reason", reason)
}
