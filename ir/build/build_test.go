package build

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nickng/loopfuse/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func build(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := FromReader(strings.NewReader(src)).Default().Build()
	require.NoError(t, err)
	return prog
}

func ops(fn *ir.Func) map[ir.Op]int {
	count := make(map[ir.Op]int)
	for _, v := range fn.Values {
		if !v.Dead && v.Block != ir.NoBlock {
			count[v.Op]++
		}
	}
	return count
}

func TestBuildFromReader(t *testing.T) {
	var log bytes.Buffer
	src := `package main
	func sum(a []int) int {
		s := 0
		for i := 0; i < len(a); i++ {
			s += a[i]
		}
		return s
	}
	func main() { println(sum(nil)) }`
	prog, err := FromReader(strings.NewReader(src)).Default().WithBuildLog(&log, 0).Build()
	require.NoError(t, err)
	require.NoError(t, prog.Errs)
	assert.Contains(t, log.String(), "Lowered")

	fn := prog.Func("sum")
	require.NotNil(t, fn)
	require.NoError(t, fn.Validate())
	require.Len(t, fn.Params, 1)
	assert.Equal(t, "a", fn.Values[fn.Params[0]].Name)
	assert.Equal(t, ir.TypePtr, fn.Values[fn.Params[0]].Type)

	var comments []string
	for _, b := range fn.Blocks {
		comments = append(comments, b.Comment)
	}
	assert.Contains(t, comments, "for.loop")
	assert.Contains(t, comments, "for.body")
	assert.Contains(t, comments, "for.done")

	count := ops(fn)
	assert.Equal(t, 2, count[ir.OpPhi], "i and s")
	assert.Equal(t, 1, count[ir.OpLen])
	assert.Equal(t, 1, count[ir.OpIndexAddr])
	assert.Equal(t, 1, count[ir.OpLoad])
	assert.Equal(t, 1, count[ir.OpLt])
	assert.Zero(t, count[ir.OpOpaque])

	assert.NotNil(t, prog.Func("main"))
	assert.Nil(t, prog.Func("missing"))

	src2 := prog.Source("sum")
	require.NotNil(t, src2)
	// The loop body gets a separate latch.
	assert.Equal(t, len(src2.Blocks)+1, len(fn.LiveBlocks()))
	assert.Contains(t, comments, "for.post")
	assert.Nil(t, prog.Source("missing"))
}

func TestLowerMemory(t *testing.T) {
	src := `package main
	type point struct{ x, y int }
	func f(p *point, a *[4]int16) int {
		p.y = 3
		var local [8]int
		local[2] = p.x
		a[1] = 7
		return local[2] + len(a)
	}
	func main() {}`
	fn := build(t, src).Func("f")
	require.NotNil(t, fn)

	var fields, elems []*ir.Value
	for _, v := range fn.Values {
		switch v.Op {
		case ir.OpFieldAddr:
			fields = append(fields, v)
		case ir.OpIndexAddr:
			elems = append(elems, v)
		}
	}
	require.Len(t, fields, 2)
	assert.ElementsMatch(t, []int64{0, 8}, []int64{fields[0].Aux, fields[1].Aux})
	for _, e := range elems {
		assert.Contains(t, []int64{8, 2}, e.Aux, "element size of [8]int or [4]int16")
	}
	// Store to p.y uses the field address.
	for _, v := range fn.Values {
		if v.Op == ir.OpStore && fn.Value(v.Args[0]).Op == ir.OpFieldAddr {
			assert.Equal(t, int64(8), fn.Value(v.Args[0]).Aux)
			assert.Equal(t, "3", fn.ValueString(v.Args[1]))
		}
	}
}

func TestLowerOpaque(t *testing.T) {
	src := `package main
	var g []int
	func f(m map[int]int, s string, u uint) bool {
		m[1] = 2
		g = append(g, 1)
		return len(s) > 0 && u/2 > 1
	}
	func main() {}`
	fn := build(t, src).Func("f")
	require.NotNil(t, fn)
	count := ops(fn)
	assert.NotZero(t, count[ir.OpOpaque], "map update and unsigned division are opaque")
	assert.NotZero(t, count[ir.OpCall], "append and len(string) are calls")
	assert.Zero(t, count[ir.OpDiv])
}

func TestUnsupported(t *testing.T) {
	src := `package main
	func safe() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = nil
			}
		}()
		panic("x")
	}
	func ok() int { return 1 }
	func main() {}`
	prog := build(t, src)
	require.Error(t, prog.Errs)
	errs := multierr.Errors(prog.Errs)
	require.Len(t, errs, 1)
	var ue UnsupportedError
	require.ErrorAs(t, errs[0], &ue)
	assert.Equal(t, "safe", ue.Func)
	assert.Nil(t, prog.Func("safe"))
	assert.NotNil(t, prog.Func("ok"))
	assert.NotNil(t, prog.Func("safe$1"), "the closure itself is supported")
}

func TestBadPkg(t *testing.T) {
	src := `package main
	func main() {}`
	prog, err := FromReader(strings.NewReader(src)).AddBadPkg("main", "testing").Build()
	require.NoError(t, err)
	assert.Empty(t, prog.Funcs)
}

func TestParseError(t *testing.T) {
	_, err := FromReader(strings.NewReader("package main\nfunc {")).Build()
	assert.Error(t, err)
}
