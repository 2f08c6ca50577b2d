package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fatih/color"
	"github.com/nickng/loopfuse/fusion"
	"github.com/nickng/loopfuse/interp"
	"github.com/nickng/loopfuse/ir"
	"github.com/nickng/loopfuse/ir/build"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const src = `package main

func scale(a []int, k int) {
	for i := 0; i < len(a); i++ {
		a[i] = a[i] * k
	}
	for i := 0; i < len(a); i++ {
		a[i] = a[i] + 1
	}
}

func shift(a []int) {
	for i := 0; i < len(a); i++ {
		a[i] = 0
	}
	for i := 0; i < len(a); i++ {
		if i+1 < len(a) {
			a[i] = a[i+1]
		}
	}
}

func main() {}
`

func buildSrc(t *testing.T) *build.Program {
	t.Helper()
	prog, err := build.FromReader(strings.NewReader(src)).Default().Build()
	require.NoError(t, err)
	return prog
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	_, ok, err := findConfig(sub)
	require.NoError(t, err)
	// The temporary directory may be below a loopfuse.toml only by accident.
	if ok {
		t.Skip("loopfuse.toml above the temporary directory")
	}

	want := filepath.Join(root, configName)
	require.NoError(t, os.WriteFile(want, []byte("jobs = 2\n"), 0o644))
	got, ok, err := findConfig(sub)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), configName)
	require.NoError(t, os.WriteFile(path, []byte(`jobs = 3
[build]
skip = ["unsafe"]
[fuse]
max_fusions = 2
funcs = ["scale"]
assume_noalias = true
[verify]
inputs = 5
`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Jobs)
	assert.Equal(t, []string{"unsafe"}, cfg.Build.Skip)
	assert.Equal(t, 2, cfg.Fuse.MaxFusions)
	assert.Equal(t, []string{"scale"}, cfg.Fuse.Funcs)
	assert.True(t, cfg.Fuse.AssumeNoAlias)
	assert.Equal(t, 5, cfg.Verify.Inputs)
	// Keys not in the file keep their defaults.
	assert.Equal(t, interp.DefaultInputs.SliceLen, cfg.Verify.SliceLen)
	assert.Equal(t, interp.DefaultInputs.Seed, cfg.Verify.Seed)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name, body, msg string
	}{
		{"syntax", "jobs = \n", "failed to parse TOML"},
		{"unknown", "[fuse]\nmax = 1\n", "unknown key"},
		{"negative", "[fuse]\nmax_fusions = -1\n", "must not be negative"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), configName)
			require.NoError(t, os.WriteFile(path, []byte(test.body), 0o644))
			_, err := loadConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.msg)
		})
	}
}

func TestSelectFuncs(t *testing.T) {
	prog := buildSrc(t)

	all, err := selectFuncs(prog.Funcs, nil)
	require.NoError(t, err)
	assert.Len(t, all, len(prog.Funcs))

	sel, err := selectFuncs(prog.Funcs, []string{"shift", "scale"})
	require.NoError(t, err)
	require.Len(t, sel, 2)
	assert.Equal(t, "shift", sel[0].Name)
	assert.Equal(t, "scale", sel[1].Name)

	_, err = selectFuncs(prog.Funcs, []string{"scale", "missing"})
	assert.EqualError(t, err, `no function "missing"`)
}

func TestEach(t *testing.T) {
	prog := buildSrc(t)
	s := &session{cfg: &Config{Jobs: 2}}

	var n int32
	seen := make([]bool, len(prog.Funcs))
	err := s.each(context.Background(), prog.Funcs, func(i int, fn *ir.Func) error {
		atomic.AddInt32(&n, 1)
		seen[i] = fn == prog.Funcs[i]
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, len(prog.Funcs), n)
	for i := range seen {
		assert.True(t, seen[i], "func %d", i)
	}
	assert.NoError(t, s.each(context.Background(), nil, nil))
}

func TestVerifyFunc(t *testing.T) {
	prog := buildSrc(t)
	opts := []fusion.Option{fusion.WithLogger(zaptest.NewLogger(t).Sugar())}

	r := verifyFunc(prog.Func("scale"), opts, interp.DefaultInputs, interp.DefaultStepLimit)
	require.NoError(t, r.err)
	assert.Equal(t, 1, r.fusions)
	assert.Equal(t, interp.DefaultInputs.Count, r.inputs)

	// Reading ahead of the first loop's write is refused, so nothing changes.
	r = verifyFunc(prog.Func("shift"), opts, interp.DefaultInputs, interp.DefaultStepLimit)
	require.NoError(t, r.err)
	assert.Equal(t, 0, r.fusions)
	assert.Equal(t, 0, r.inputs)
}

func TestPrintDecisions(t *testing.T) {
	color.NoColor = true
	prog := buildSrc(t)
	res, changed, err := fusion.RunResult(prog.Func("shift"))
	require.NoError(t, err)
	assert.False(t, changed)

	var buf bytes.Buffer
	printDecisions(&buf, res)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "func shift: 0 fusions", lines[0])
	assert.Contains(t, lines[1], "dependence")
}

func TestSetColor(t *testing.T) {
	defer func(c bool) { color.NoColor = c }(color.NoColor)
	require.NoError(t, setColor("on", os.Stdout))
	assert.False(t, color.NoColor)
	require.NoError(t, setColor("off", os.Stdout))
	assert.True(t, color.NoColor)
	assert.Error(t, setColor("always", os.Stdout))
}

func TestSnapshotRoundTrip(t *testing.T) {
	prog := buildSrc(t)
	fn := prog.Func("scale")
	_, err := fusion.RunFunc(fn)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "fused.msgpack")
	require.NoError(t, writeSnapshot(path, []*ir.Func{fn}))
	fns, err := readSnapshot(path)
	require.NoError(t, err)
	require.Len(t, fns, 1)
	assert.Equal(t, fn.String(), fns[0].String())
}

func TestOverride(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("jobs", 0, "")
	flags.Int64("seed", 0, "")
	flags.StringSlice("func", nil, "")
	require.NoError(t, flags.Parse([]string{"--jobs=3", "--func=a,b"}))

	cfg := defaultConfig()
	err := override(flags, map[string]interface{}{
		"jobs": &cfg.Jobs,
		"seed": &cfg.Verify.Seed,
		"func": &cfg.Fuse.Funcs,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Jobs)
	assert.Equal(t, []string{"a", "b"}, cfg.Fuse.Funcs)
	// Flags not given leave the config alone.
	assert.Equal(t, interp.DefaultInputs.Seed, cfg.Verify.Seed)
}
