package fusion

import (
	"strings"
	"testing"

	"github.com/nickng/loopfuse/dom"
	"github.com/nickng/loopfuse/interp"
	"github.com/nickng/loopfuse/ir"
	"github.com/nickng/loopfuse/ir/build"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const src = `package main

func simple(a []int, n int) {
	for i := 0; i < n; i++ {
		a[i] = i
	}
	for i := 0; i < n; i++ {
		a[i] = a[i] * 2
	}
}

func guards(a []int, n int) {
	if n > 0 {
		for i := 0; i < n; i++ {
			a[i] = i
		}
	}
	if n > 0 {
		for i := 0; i < n; i++ {
			a[i] = a[i] * 2
		}
	}
}

func branchy(a []int, n int) {
	for i := 0; i < n; i++ {
		if a[i] > 50 {
			a[i] = 0
		}
	}
	for i := 0; i < n; i++ {
		if a[i] == 0 {
			a[i] = i
		}
	}
}

func three(a []int, n int) {
	for i := 0; i < n; i++ {
		a[i] = i
	}
	for i := 0; i < n; i++ {
		a[i] = a[i] + 3
	}
	for i := 0; i < n; i++ {
		a[i] = a[i] * a[i]
	}
}

func behind(a []int, n int) {
	for i := 0; i < n; i++ {
		a[i+1] = i
	}
	for i := 0; i < n; i++ {
		a[i] = a[i] * 2
	}
}

func ahead(a []int, n int) {
	for i := 0; i < n; i++ {
		a[i] = i
	}
	for i := 0; i < n; i++ {
		a[i] = a[i+1]
	}
}

func anti(a []int, n int) int {
	var x [16]int
	for i := 0; i < n; i++ {
		x[i] = a[i]
	}
	for i := 0; i < n; i++ {
		a[i+1] = i
	}
	return x[2]
}

func overwrite(a []int, n int) {
	for i := 0; i < n; i++ {
		a[i] = a[i+1] + 1
	}
	for i := 0; i < n; i++ {
		a[i+1] = i
	}
}

func counts(a []int, n, m int) {
	for i := 0; i < n; i++ {
		a[i] = i
	}
	for i := 0; i < m; i++ {
		a[i] = i
	}
}

func inclusive(a []int, n int) {
	for i := 0; i < n; i++ {
		a[i] = i
	}
	for i := 0; i <= n; i++ {
		a[i] = i
	}
}

func lengths(a []int) {
	for i := 0; i < len(a); i++ {
		a[i] = i
	}
	for i := 0; i < len(a); i++ {
		a[i] += i
	}
}

func between(a []int, n int) {
	for i := 0; i < n; i++ {
		a[i] = i
	}
	a[0] = 7
	for i := 0; i < n; i++ {
		a[i] = a[i] * 2
	}
}

func reduce(a []int, n int) int {
	s := 0
	for i := 0; i < n; i++ {
		s += a[i]
	}
	for i := 0; i < n; i++ {
		a[i] = s
	}
	return s
}

func sum(a []int, n int) int {
	s := 0
	for i := 0; i < n; i++ {
		s += a[i]
	}
	t := 0
	for i := 0; i < n; i++ {
		t += a[i] * 2
	}
	return s + t
}

func twoSlices(a, b []int, n int) {
	for i := 0; i < n; i++ {
		a[i] = i
	}
	for i := 0; i < n; i++ {
		b[i] = a[i]
	}
}

func locals(n int) int {
	var x, y [16]int
	for i := 0; i < n; i++ {
		x[i] = i
	}
	for i := 0; i < n; i++ {
		y[i] = x[i] * 2
	}
	return x[3] + y[3]
}

func calls(a []int, n int) {
	for i := 0; i < n; i++ {
		a[i] = i
	}
	for i := 0; i < n; i++ {
		println(a[i])
	}
}

func main() {}
`

var prog *build.Program

func buildFunc(t *testing.T, name string) *ir.Func {
	t.Helper()
	if prog == nil {
		p, err := build.FromReader(strings.NewReader(src)).Default().Build()
		require.NoError(t, err)
		prog = p
	}
	fn := prog.Func(name)
	require.NotNil(t, fn, "function %s", name)
	c, err := fn.Clone()
	require.NoError(t, err)
	return c
}

// fuse runs the pass over a copy of function name and checks the fused
// function computes what the original computes.
func fuse(t *testing.T, name string, opts ...Option) (*ir.Func, *Analysis) {
	t.Helper()
	fn := buildFunc(t, name)
	orig, err := fn.Clone()
	require.NoError(t, err)
	a := New(fn, append([]Option{WithLogger(zaptest.NewLogger(t).Sugar())}, opts...)...)
	if Run(a) {
		require.NoError(t, fn.Validate())
		require.NoError(t, dom.Verify(fn, a.Dom))
	}
	require.NoError(t, interp.Compare(orig, fn, interp.Inputs(orig, interp.DefaultInputs)), "fused:\n%s", fn)
	return fn, a
}

func lastDecision(t *testing.T, a *Analysis) Decision {
	t.Helper()
	ds := a.Result().Decisions
	require.NotEmpty(t, ds)
	return ds[len(ds)-1]
}

func TestFuseSimple(t *testing.T) {
	fn, a := fuse(t, "simple")
	assert.Equal(t, 1, a.Result().Fusions)
	inner := a.Loops.Innermost()
	require.Len(t, inner, 1)
	l := inner[0]
	assert.NotEqual(t, ir.NoValue, l.InductionVar())
	assert.NotEqual(t, ir.NoBlock, l.Latch())
	assert.Len(t, fn.Phis(l.Header()), 1, "a single induction variable")

	// Both bodies are in the loop, the store of the first loop first.
	var stores []ir.ValueID
	for _, b := range l.Blocks() {
		for _, id := range fn.Blocks[b].Instrs {
			if fn.Values[id].Op == ir.OpStore {
				stores = append(stores, id)
			}
		}
	}
	require.Len(t, stores, 2)
	first := fn.Values[stores[0]]
	assert.Equal(t, l.InductionVar(), first.Args[1], "a[i] = i comes first")
	assert.True(t, a.Dom.Dominates(first.Block, fn.Values[stores[1]].Block))
}

func TestFuseGuardedSource(t *testing.T) {
	fn, a := fuse(t, "guards")
	assert.Equal(t, 1, a.Result().Fusions)
	require.Len(t, a.Loops.Innermost(), 1)
	g, ok := FindGuard(a, a.Loops.Innermost()[0])
	require.True(t, ok, "the fused loop keeps the guard of L1")
	assert.Equal(t, ir.TermReturn, fn.Blocks[g.Fallthrough].Term.Kind)
}

func TestFuseBranchyBodies(t *testing.T) {
	fn, a := fuse(t, "branchy")
	assert.Equal(t, 1, a.Result().Fusions)
	inner := a.Loops.Innermost()
	require.Len(t, inner, 1)
	var ifs int
	for _, b := range inner[0].Blocks() {
		if b != inner[0].Header() && fn.Blocks[b].Term.Kind == ir.TermIf {
			ifs++
		}
	}
	assert.Equal(t, 2, ifs, "both bodies keep their branch")
}

func TestFuseFixedPoint(t *testing.T) {
	fn, a := fuse(t, "three")
	assert.Equal(t, 2, a.Result().Fusions, "n loops fuse at most n-1 times")
	assert.Len(t, a.Loops.Innermost(), 1)
	before := fn.String()
	assert.False(t, Run(a), "nothing left to fuse")
	assert.Equal(t, before, fn.String())
}

func TestMaxFusions(t *testing.T) {
	_, a := fuse(t, "three", WithMaxFusions(1))
	assert.Equal(t, 1, a.Result().Fusions)
	assert.Len(t, a.Loops.Innermost(), 2)
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name  string
		fused bool
	}{
		{"behind", true},     // Second loop reads what the first wrote an iteration earlier.
		{"ahead", false},     // Second loop reads an element the fused loop has not written yet.
		{"anti", false},      // Second loop overwrites an element the first still has to read.
		{"overwrite", false}, // First loop overwrites what the second stored an iteration earlier.
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, a := fuse(t, tt.name)
			if tt.fused {
				assert.Equal(t, 1, a.Result().Fusions)
				return
			}
			assert.Zero(t, a.Result().Fusions)
			d := lastDecision(t, a)
			assert.Equal(t, StageDependence, d.Stage)
			assert.Contains(t, d.Reason, "negative distance")
		})
	}
}

func TestTripCountGating(t *testing.T) {
	for _, name := range []string{"counts", "inclusive"} {
		t.Run(name, func(t *testing.T) {
			_, a := fuse(t, name)
			assert.Zero(t, a.Result().Fusions)
			assert.Equal(t, StageTripCount, lastDecision(t, a).Stage)
		})
	}
	_, a := fuse(t, "lengths")
	assert.Equal(t, 1, a.Result().Fusions, "len(a) in both headers is the same trip count")
}

func TestGlueInstruction(t *testing.T) {
	_, a := fuse(t, "between")
	assert.Zero(t, a.Result().Fusions)
	d := lastDecision(t, a)
	assert.Equal(t, StageAdjacency, d.Stage)
}

func TestScalarFlow(t *testing.T) {
	_, a := fuse(t, "reduce")
	assert.Zero(t, a.Result().Fusions)
	d := lastDecision(t, a)
	assert.Equal(t, StageDependence, d.Stage)
	assert.Contains(t, d.Reason, "computed in L1")

	_, a = fuse(t, "sum")
	assert.Equal(t, 1, a.Result().Fusions, "independent reductions")
}

func TestAliasing(t *testing.T) {
	_, a := fuse(t, "twoSlices")
	assert.Zero(t, a.Result().Fusions)
	d := lastDecision(t, a)
	assert.Equal(t, StageDependence, d.Stage)
	assert.Contains(t, d.Reason, "may alias")

	_, a = fuse(t, "twoSlices", WithNoAlias(true))
	assert.Equal(t, 1, a.Result().Fusions)

	_, a = fuse(t, "locals")
	assert.Equal(t, 1, a.Result().Fusions, "local arrays never alias")
}

func TestCalls(t *testing.T) {
	_, a := fuse(t, "calls")
	assert.Zero(t, a.Result().Fusions)
	d := lastDecision(t, a)
	assert.Equal(t, StageDependence, d.Stage)
}

func TestRefusalIsStable(t *testing.T) {
	fn := buildFunc(t, "ahead")
	first := New(fn)
	require.False(t, Run(first))
	second := New(fn)
	require.False(t, Run(second))
	assert.Equal(t, first.Result().Decisions, second.Result().Decisions)
}

func TestRunFunc(t *testing.T) {
	fn := buildFunc(t, "simple")
	changed, err := RunFunc(fn)
	require.NoError(t, err)
	assert.True(t, changed)

	res, changed, err := RunResult(buildFunc(t, "ahead"))
	require.NoError(t, err)
	assert.False(t, changed)
	require.Len(t, res.Decisions, 1)
	assert.Equal(t, "ahead", res.Func)
	assert.Contains(t, res.Decisions[0].String(), "dependence")

	bad := ir.NewFunc("bad")
	bad.NewBlock("entry")
	_, err = RunFunc(bad)
	assert.Error(t, err, "function without terminator")
}
