package dom

import (
	"testing"

	"github.com/nickng/loopfuse/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopFunc builds
//
//	b0 -> b1
//	b1 -> b2, b4   (header)
//	b2 -> b3, b1'  (body, if i odd skip)
//	b3 -> b1       (latch)
//	b4             (return)
func loopFunc() *ir.Func {
	fn := ir.NewFunc("loop")
	n := fn.Param("n", ir.TypeInt)
	b0 := fn.NewBlock("entry")
	b1 := fn.NewBlock("for.loop")
	b2 := fn.NewBlock("for.body")
	b3 := fn.NewBlock("for.post")
	b4 := fn.NewBlock("for.done")
	fn.Jump(b0, b1)
	i := fn.Phi(b1, ir.TypeInt, ir.PhiEdge{Block: b0, Value: fn.Const(0)})
	c := fn.Emit(b1, ir.OpLt, ir.TypeBool, 0, i, n)
	fn.If(b1, c, b2, b4)
	odd := fn.Emit(b2, ir.OpAnd, ir.TypeInt, 0, i, fn.Const(1))
	isOdd := fn.Emit(b2, ir.OpNe, ir.TypeBool, 0, odd, fn.Const(0))
	fn.If(b2, isOdd, b3, b3)
	next := fn.Emit(b3, ir.OpAdd, ir.TypeInt, 0, i, fn.Const(1))
	fn.Jump(b3, b1)
	fn.AddPhiEdge(i, b3, next)
	fn.Return(b4, i)
	return fn
}

func TestDominators(t *testing.T) {
	fn := loopFunc()
	d := New(fn)
	require.False(t, d.IsPostDom())

	tests := []struct {
		a, b ir.BlockID
		want bool
	}{
		{0, 0, true},
		{0, 4, true},
		{1, 3, true},
		{1, 4, true},
		{2, 3, true},
		{3, 1, false},
		{2, 4, false},
		{4, 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, d.Dominates(tt.a, tt.b), "%s dom %s", tt.a, tt.b)
	}
	assert.Equal(t, ir.BlockID(1), d.Idom(2))
	assert.Equal(t, ir.BlockID(1), d.Idom(4))
	assert.Equal(t, ir.NoBlock, d.Idom(0))
	assert.ElementsMatch(t, []ir.BlockID{2, 4}, d.Children(1))
	assert.True(t, d.StrictlyDominates(1, 2))
	assert.False(t, d.StrictlyDominates(1, 1))
}

func TestPostDominators(t *testing.T) {
	fn := loopFunc()
	pd := NewPost(fn)
	require.True(t, pd.IsPostDom())

	assert.True(t, pd.Dominates(4, 0), "exit post-dominates entry")
	assert.True(t, pd.Dominates(1, 3), "header post-dominates latch")
	assert.True(t, pd.Dominates(3, 2), "latch post-dominates body")
	assert.False(t, pd.Dominates(2, 1), "body does not post-dominate header")
	assert.Equal(t, []ir.BlockID{4}, pd.Roots())
	assert.Equal(t, ir.NoBlock, pd.Idom(4))
	assert.Equal(t, ir.BlockID(1), pd.Idom(0))
}

func TestPostDominatorsInfiniteLoop(t *testing.T) {
	fn := ir.NewFunc("spin")
	b0 := fn.NewBlock("entry")
	b1 := fn.NewBlock("for.body")
	fn.Jump(b0, b1)
	fn.Jump(b1, b1)
	pd := NewPost(fn)
	assert.True(t, pd.Reachable(b0))
	assert.True(t, pd.Reachable(b1))
	assert.True(t, pd.Dominates(b1, b0))
}

func TestUnreachable(t *testing.T) {
	fn := loopFunc()
	dead := fn.NewBlock("dead")
	fn.Jump(dead, 4)
	d := New(fn)
	assert.False(t, d.Reachable(dead))
	assert.False(t, d.Dominates(0, dead))
	assert.True(t, d.Dominates(dead, dead))
	assert.Nil(t, d.Children(dead))
}

func TestRecalculate(t *testing.T) {
	fn := loopFunc()
	d := New(fn)
	require.True(t, d.Dominates(2, 3))
	// Let the header jump straight to the latch: b2 becomes unreachable.
	fn.ReplaceSucc(1, 2, 3)
	fn.RemoveBlock(2)
	d.Recalculate(fn)
	assert.False(t, d.Reachable(2))
	assert.Equal(t, ir.BlockID(1), d.Idom(3))
}

func TestVerify(t *testing.T) {
	fn := loopFunc()
	require.NoError(t, Verify(fn, New(fn)))

	// Use the body's value in the exit block, which the body does not dominate.
	odd := fn.Blocks[2].Instrs[0]
	fn.Blocks[4].Term.Args = []ir.ValueID{odd}
	err := Verify(fn, New(fn))
	require.Error(t, err)
	var ue *UseError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, odd, ue.Def)
	assert.Equal(t, ir.NoValue, ue.User)
}
