package build

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"io"
	"log"
	"sort"

	"github.com/nickng/loopfuse/ir"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// Configurer is a Builder which can be configured before building.
type Configurer interface {
	Builder
	Default() Configurer
	AddBadPkg(pkg, reason string) Configurer
	WithTests(tests bool) Configurer
	WithBuildLog(l io.Writer, flags int) Configurer
}

// Config represents a build configuration.
type Config struct {
	badPkgs map[string]string
	tests   bool

	bldLog    io.Writer // Build log.
	bldLFlags int       // Build log flags.

	src interface{} // src points to the program source.
}

func newConfig(src interface{}) *Config {
	return &Config{
		badPkgs:   make(map[string]string),
		bldLog:    io.Discard,
		bldLFlags: log.LstdFlags,
		src:       src,
	}
}

// WithBuildLog adds build log to config.
func (c *Config) WithBuildLog(l io.Writer, flags int) Configurer {
	c.bldLog = l
	c.bldLFlags = flags
	return c
}

// AddBadPkg marks a package 'bad' so its functions are not lowered.
func (c *Config) AddBadPkg(pkg, reason string) Configurer {
	c.badPkgs[pkg] = reason
	return c
}

// WithTests includes test files of the loaded packages.
func (c *Config) WithTests(tests bool) Configurer {
	c.tests = tests
	return c
}

// Default returns a default configuration.
func (c *Config) Default() Configurer {
	return c.
		AddBadPkg("reflect", "Reflection is not supported").
		AddBadPkg("runtime", "Runtime is ignored")
}

// Program is the result of a build: the lowered functions and the go/ssa
// program they come from.
type Program struct {
	Funcs []*ir.Func
	Prog  *ssa.Program
	FSet  *token.FileSet

	// Errs holds every function which could not be lowered, combined with
	// multierr.
	Errs error

	byName map[string]*ir.Func
	srcs   map[string]*ssa.Function
}

// Func returns the lowered function with the given name, e.g. "sum" or
// "(*T).m", or nil.
func (p *Program) Func(name string) *ir.Func {
	return p.byName[name]
}

// Source returns the go/ssa function the named function was lowered from,
// or nil.
func (p *Program) Source(name string) *ssa.Function {
	return p.srcs[name]
}

// Build loads, type checks and lowers the program.
func (c *Config) Build() (*Program, error) {
	bldLog := log.New(c.bldLog, "irbuild: ", c.bldLFlags)

	var (
		prog *ssa.Program
		pkgs []*ssa.Package
		fset *token.FileSet
	)
	switch src := c.src.(type) {
	case *PkgSrc:
		cfg := &packages.Config{Mode: packages.LoadSyntax, Tests: c.tests}
		initial, err := packages.Load(cfg, src.Patterns...)
		if err != nil {
			return nil, errors.Wrap(err, "cannot load packages")
		}
		var errs error
		packages.Visit(initial, nil, func(p *packages.Package) {
			for _, e := range p.Errors {
				errs = multierr.Append(errs, e)
			}
		})
		if errs != nil {
			return nil, errors.Wrap(errs, "packages contain errors")
		}
		prog, pkgs = ssautil.Packages(initial, ssa.BareInits)
		if len(initial) > 0 {
			fset = initial[0].Fset
		}
		for _, p := range pkgs {
			if p != nil {
				p.Build()
			}
		}
	case *CachedSrc:
		if src.err != nil {
			return nil, src.err
		}
		fset = token.NewFileSet()
		f, err := parser.ParseFile(fset, "tmp.go", src.cached, parser.ParseComments)
		if err != nil {
			return nil, errors.Wrap(err, "cannot parse source")
		}
		conf := &types.Config{Importer: importer.Default()}
		pkg, _, err := ssautil.BuildPackage(conf, fset, types.NewPackage(f.Name.Name, ""), []*ast.File{f}, ssa.BareInits)
		if err != nil {
			return nil, errors.Wrap(err, "cannot type check source")
		}
		prog, pkgs = pkg.Prog, []*ssa.Package{pkg}
	default:
		return nil, errors.Errorf("unknown source type %T", c.src)
	}
	bldLog.Print("Program loaded and type checked")

	wanted := make(map[*ssa.Package]bool)
	for _, p := range pkgs {
		if p == nil {
			continue
		}
		if reason, bad := c.badPkgs[p.Pkg.Name()]; bad {
			bldLog.Printf("Skip package: %s (%s)", p.Pkg.Name(), reason)
			continue
		}
		wanted[p] = true
	}

	var fns []*ssa.Function
	for fn := range ssautil.AllFunctions(prog) {
		if fn.Pkg == nil || !wanted[fn.Pkg] || fn.Synthetic != "" || len(fn.Blocks) == 0 {
			continue
		}
		fns = append(fns, fn)
	}
	sort.Slice(fns, func(i, j int) bool {
		if fns[i].Pos() != fns[j].Pos() {
			return fns[i].Pos() < fns[j].Pos()
		}
		return fns[i].String() < fns[j].String()
	})

	res := &Program{Prog: prog, FSet: fset, byName: make(map[string]*ir.Func), srcs: make(map[string]*ssa.Function)}
	sizes := types.SizesFor("gc", "amd64")
	for _, fn := range fns {
		irFn, err := Lower(fn, sizes)
		if err != nil {
			bldLog.Printf("Skip function: %v", err)
			res.Errs = multierr.Append(res.Errs, err)
			continue
		}
		res.Funcs = append(res.Funcs, irFn)
		res.byName[irFn.Name] = irFn
		res.srcs[irFn.Name] = fn
	}
	bldLog.Printf("Lowered %d functions", len(res.Funcs))
	return res, nil
}
