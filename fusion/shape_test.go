package fusion

import (
	"testing"

	"github.com/nickng/loopfuse/interp"
	"github.com/nickng/loopfuse/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type counted struct {
	header, body, latch, exit ir.BlockID
	iv                        ir.ValueID
}

// countedLoop adds `for i := 0; i < n; i++ { a[i] = f(a[i], i) }` entered
// from pre. The terminator of pre is left to the caller.
func countedLoop(fn *ir.Func, pre ir.BlockID, a, n ir.ValueID, op ir.Op) counted {
	l := counted{
		header: fn.NewBlock("for.loop"),
		body:   fn.NewBlock("for.body"),
		latch:  fn.NewBlock("for.post"),
		exit:   fn.NewBlock("for.done"),
	}
	l.iv = fn.Phi(l.header, ir.TypeInt, ir.PhiEdge{Block: pre, Value: fn.Const(0)})
	cmp := fn.Emit(l.header, ir.OpLt, ir.TypeBool, 0, l.iv, n)
	fn.If(l.header, cmp, l.body, l.exit)

	addr := fn.Emit(l.body, ir.OpIndexAddr, ir.TypePtr, 8, a, l.iv)
	x := fn.Emit(l.body, ir.OpLoad, ir.TypeInt, 0, addr)
	y := fn.Emit(l.body, op, ir.TypeInt, 0, x, l.iv)
	fn.Emit(l.body, ir.OpStore, ir.TypeOther, 0, addr, y)
	fn.Jump(l.body, l.latch)

	next := fn.Emit(l.latch, ir.OpAdd, ir.TypeInt, 0, l.iv, fn.Const(1))
	fn.AddPhiEdge(l.iv, l.latch, next)
	fn.Jump(l.latch, l.header)
	return l
}

// emptyLoop adds `for i := 0; i < n; i++ {}` entered from pre: the header
// branches straight to the latch.
func emptyLoop(fn *ir.Func, pre ir.BlockID, n ir.ValueID) counted {
	l := counted{
		header: fn.NewBlock("for.loop"),
		latch:  fn.NewBlock("for.post"),
		exit:   fn.NewBlock("for.done"),
	}
	l.body = l.latch
	l.iv = fn.Phi(l.header, ir.TypeInt, ir.PhiEdge{Block: pre, Value: fn.Const(0)})
	cmp := fn.Emit(l.header, ir.OpLt, ir.TypeBool, 0, l.iv, n)
	fn.If(l.header, cmp, l.latch, l.exit)
	next := fn.Emit(l.latch, ir.OpAdd, ir.TypeInt, 0, l.iv, fn.Const(1))
	fn.AddPhiEdge(l.iv, l.latch, next)
	fn.Jump(l.latch, l.header)
	return l
}

// unguarded is entry -> L1 -> glue -> L2 -> return.
func unguarded() (*ir.Func, counted, counted) {
	fn := ir.NewFunc("unguarded")
	a := fn.Param("a", ir.TypePtr)
	n := fn.Param("n", ir.TypeInt)
	entry := fn.NewBlock("entry")
	l1 := countedLoop(fn, entry, a, n, ir.OpAdd)
	fn.Jump(entry, l1.header)
	l2 := countedLoop(fn, l1.exit, a, n, ir.OpMul)
	fn.Jump(l1.exit, l2.header)
	fn.Return(l2.exit)
	return fn, l1, l2
}

// guarded is
//
//	if n > 0 { L1 }
//	if n > k { L2 }
//	return
func guarded(k int64) (*ir.Func, counted, counted) {
	fn := ir.NewFunc("guarded")
	a := fn.Param("a", ir.TypePtr)
	n := fn.Param("n", ir.TypeInt)
	entry := fn.NewBlock("entry")
	ph1 := fn.NewBlock("if.then")
	l1 := countedLoop(fn, ph1, a, n, ir.OpAdd)
	guard2 := fn.NewBlock("if.done")
	ph2 := fn.NewBlock("if.then")
	l2 := countedLoop(fn, ph2, a, n, ir.OpMul)
	done := fn.NewBlock("if.done")

	fn.If(entry, fn.Emit(entry, ir.OpGt, ir.TypeBool, 0, n, fn.Const(0)), ph1, guard2)
	fn.Jump(ph1, l1.header)
	fn.Jump(l1.exit, guard2)
	fn.If(guard2, fn.Emit(guard2, ir.OpGt, ir.TypeBool, 0, n, fn.Const(k)), ph2, done)
	fn.Jump(ph2, l2.header)
	fn.Jump(l2.exit, done)
	fn.Return(done)
	return fn, l1, l2
}

// mixed is `if n > 0 { L1 }; L2`.
func mixed() (*ir.Func, counted, counted) {
	fn := ir.NewFunc("mixed")
	a := fn.Param("a", ir.TypePtr)
	n := fn.Param("n", ir.TypeInt)
	entry := fn.NewBlock("entry")
	ph1 := fn.NewBlock("if.then")
	l1 := countedLoop(fn, ph1, a, n, ir.OpAdd)
	mid := fn.NewBlock("if.done")
	l2 := countedLoop(fn, mid, a, n, ir.OpMul)
	fn.If(entry, fn.Emit(entry, ir.OpGt, ir.TypeBool, 0, n, fn.Const(0)), ph1, mid)
	fn.Jump(ph1, l1.header)
	fn.Jump(l1.exit, mid)
	fn.Jump(mid, l2.header)
	fn.Return(l2.exit)
	return fn, l1, l2
}

func loopsOf(t *testing.T, a *Analysis, l1, l2 counted) (first, second *Candidate) {
	t.Helper()
	x, y := a.Loops.LoopAt(l1.header), a.Loops.LoopAt(l2.header)
	require.NotNil(t, x)
	require.NotNil(t, y)
	return &Candidate{Loop: x}, &Candidate{Loop: y}
}

func TestFindGuard(t *testing.T) {
	fn, l1, l2 := guarded(0)
	a := New(fn)
	c1, c2 := loopsOf(t, a, l1, l2)
	g, ok := FindGuard(a, c1.Loop)
	require.True(t, ok)
	assert.Equal(t, fn.Entry, g.Block)
	assert.Equal(t, fn.Preds(l1.header)[0], g.Entry)
	g2, ok := FindGuard(a, c2.Loop)
	require.True(t, ok)
	assert.Equal(t, g2.Block, g.Fallthrough)

	fn, l1, _ = unguarded()
	a = New(fn)
	_, ok = FindGuard(a, a.Loops.LoopAt(l1.header))
	assert.False(t, ok, "entry has no predecessor")
}

func TestAdjacent(t *testing.T) {
	fn, l1, l2 := unguarded()
	a := New(fn)
	c1, c2 := loopsOf(t, a, l1, l2)
	assert.True(t, Adjacent(a, c1.Loop, c2.Loop), "glue block with a terminator only")
	assert.False(t, Adjacent(a, c2.Loop, c1.Loop))

	fn, l1, l2 = unguarded()
	fn.Emit(l1.exit, ir.OpAdd, ir.TypeInt, 0, fn.Params[1], fn.Const(1))
	a = New(fn)
	c1, c2 = loopsOf(t, a, l1, l2)
	assert.False(t, Adjacent(a, c1.Loop, c2.Loop), "glue block with an instruction")

	fn, l1, l2 = mixed()
	a = New(fn)
	c1, c2 = loopsOf(t, a, l1, l2)
	assert.False(t, Adjacent(a, c1.Loop, c2.Loop), "guarded and unguarded")
	assert.False(t, ControlEquivalent(a, c1.Loop, c2.Loop))

	fn, l1, l2 = guarded(0)
	a = New(fn)
	c1, c2 = loopsOf(t, a, l1, l2)
	assert.True(t, Adjacent(a, c1.Loop, c2.Loop))
}

func TestControlEquivalent(t *testing.T) {
	fn, l1, l2 := unguarded()
	a := New(fn)
	c1, c2 := loopsOf(t, a, l1, l2)
	assert.True(t, ControlEquivalent(a, c1.Loop, c2.Loop))

	fn, l1, l2 = guarded(0)
	a = New(fn)
	c1, c2 = loopsOf(t, a, l1, l2)
	assert.True(t, ControlEquivalent(a, c1.Loop, c2.Loop), "identical guards")

	fn, l1, l2 = guarded(1)
	a = New(fn)
	c1, c2 = loopsOf(t, a, l1, l2)
	assert.False(t, ControlEquivalent(a, c1.Loop, c2.Loop), "different guards")
}

func TestDistanceNegative(t *testing.T) {
	fn, l1, l2 := unguarded()
	a := New(fn)
	c1, c2 := loopsOf(t, a, l1, l2)
	store1 := fn.Blocks[l1.body].Instrs[3]
	load2 := fn.Blocks[l2.body].Instrs[1]
	assert.False(t, DistanceNegative(a, c1.Loop, c2.Loop, store1, load2), "same element")

	// Make the second loop access a[i+1].
	addr2 := fn.Values[fn.Blocks[l2.body].Instrs[0]]
	next := fn.Emit(l2.body, ir.OpAdd, ir.TypeInt, 0, l2.iv, fn.Const(1))
	body := fn.Blocks[l2.body]
	body.Instrs = append([]ir.ValueID{next}, body.Instrs[:len(body.Instrs)-1]...)
	addr2.Args[1] = next
	a.Invalidate()
	assert.True(t, DistanceNegative(a, c1.Loop, c2.Loop, store1, load2))
	assert.False(t, DependencesAllowFusion(a, c1.Loop, c2.Loop))
}

func TestFuseGuarded(t *testing.T) {
	fn, _, _ := guarded(0)
	orig, err := fn.Clone()
	require.NoError(t, err)
	a := New(fn, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.True(t, Run(a))
	require.NoError(t, fn.Validate())
	assert.Len(t, a.Loops.Loops(), 1)
	skip := fn.Succs(fn.Entry)[1]
	assert.Equal(t, ir.TermReturn, fn.Blocks[skip].Term.Kind, "guard of L1 skips both loops")
	require.NoError(t, interp.Compare(orig, fn, interp.Inputs(orig, interp.DefaultInputs)))

	fn, _, _ = guarded(1)
	a = New(fn)
	assert.False(t, Run(a))
	assert.Equal(t, StageEquivalence, lastDecision(t, a).Stage)
}

func TestFuseUnguarded(t *testing.T) {
	fn, l1, l2 := unguarded()
	orig, err := fn.Clone()
	require.NoError(t, err)
	a := New(fn, WithLogger(zaptest.NewLogger(t).Sugar()))
	c1, c2 := loopsOf(t, a, l1, l2)
	require.NoError(t, Fuse(a, c1.Loop, c2.Loop))
	require.NoError(t, fn.Validate())
	for _, b := range []ir.BlockID{l1.exit, l2.header, l2.latch} {
		assert.True(t, fn.Blocks[b].Dead, "%s is removed", b)
	}
	assert.True(t, fn.Values[l2.iv].Dead)
	assert.Equal(t, []ir.BlockID{l2.body}, fn.Succs(l1.body))
	assert.Equal(t, []ir.BlockID{l1.latch}, fn.Succs(l2.body))
	assert.Equal(t, []ir.BlockID{l1.body, l2.exit}, fn.Succs(l1.header))
	l := a.Loops.LoopAt(l1.header)
	require.NotNil(t, l)
	assert.True(t, l.Contains(l2.body))
	require.NoError(t, interp.Compare(orig, fn, interp.Inputs(orig, interp.DefaultInputs)))
}

func TestShapeError(t *testing.T) {
	fn, l1, l2 := unguarded()
	// L2 counts from 1.
	fn.Values[l2.iv].Edges[0].Value = fn.Const(1)
	before := fn.String()
	a := New(fn)
	c1, c2 := loopsOf(t, a, l1, l2)
	err := Fuse(a, c1.Loop, c2.Loop)
	var se *ShapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, l2.header, se.Header)
	assert.ErrorIs(t, err, ErrNoInductionVar)
	assert.Equal(t, before, fn.String(), "nothing is modified")
}

func TestFuseEmptyBody(t *testing.T) {
	fn := ir.NewFunc("empty")
	a := fn.Param("a", ir.TypePtr)
	n := fn.Param("n", ir.TypeInt)
	entry := fn.NewBlock("entry")
	l1 := emptyLoop(fn, entry, n)
	fn.Jump(entry, l1.header)
	l2 := countedLoop(fn, l1.exit, a, n, ir.OpMul)
	fn.Jump(l1.exit, l2.header)
	fn.Return(l2.exit)
	orig, err := fn.Clone()
	require.NoError(t, err)

	a1 := New(fn, WithLogger(zaptest.NewLogger(t).Sugar()))
	c1, c2 := loopsOf(t, a1, l1, l2)
	require.NoError(t, Fuse(a1, c1.Loop, c2.Loop))
	require.NoError(t, fn.Validate())
	// Only the edge of the header to the latch is moved.
	assert.Equal(t, []ir.BlockID{l2.body, l2.exit}, fn.Succs(l1.header))
	assert.Equal(t, ir.TermIf, fn.Blocks[l1.header].Term.Kind)
	assert.Equal(t, []ir.BlockID{l1.latch}, fn.Succs(l2.body))
	require.NoError(t, interp.Compare(orig, fn, interp.Inputs(orig, interp.DefaultInputs)))
}

func TestTripCountExitPredicate(t *testing.T) {
	fn, _, l2 := unguarded()
	// for i := 0; i != n; i++ does not stop when n < 0.
	cmp := fn.Values[fn.Blocks[l2.header].Instrs[1]]
	require.Equal(t, ir.OpLt, cmp.Op)
	cmp.Op = ir.OpNe
	before := fn.String()

	a := New(fn, WithLogger(zaptest.NewLogger(t).Sugar()))
	assert.False(t, Run(a))
	d := lastDecision(t, a)
	assert.Equal(t, StageTripCount, d.Stage)
	assert.Contains(t, d.Reason, "L2")
	assert.Equal(t, before, fn.String())
}
