// Command loopfuse is the command line entry point to the loop fusion pass.
//
// It lowers Go packages or files to the loop fusion IR and then either prints
// the IR (view), fuses adjacent loops (fuse), or fuses and checks the result
// against the original function by interpretation (verify).
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/nickng/loopfuse/ir"
	"github.com/nickng/loopfuse/ir/build"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var rootCmd = &cobra.Command{
	Use:   "loopfuse",
	Short: "Fuse adjacent loops of Go functions",
	Long: `loopfuse is a tool for fusing adjacent loops in Go source code.

Two loops are fused when they are adjacent, run the same number of times,
execute under the same conditions and no dependence between them is
violated by running both bodies in the same iteration.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default: loopfuse.toml in the working directory or above)")
	pf.String("log", "", "Specify analysis log file (use '-' for stderr)")
	pf.StringSlice("func", nil, "Only process the named functions")
	pf.String("color", "auto", "Colorize output (auto|on|off)")
	pf.Int("jobs", 0, "Functions processed in parallel (0 for GOMAXPROCS)")
}

func main() {
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(fuseCmd)
	rootCmd.AddCommand(verifyCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// override copies the flags given on the command line into the config fields
// they shadow.
func override(flags *pflag.FlagSet, fields map[string]interface{}) error {
	for name, dst := range fields {
		if !flags.Changed(name) {
			continue
		}
		var err error
		switch dst := dst.(type) {
		case *int:
			*dst, err = flags.GetInt(name)
		case *int64:
			*dst, err = flags.GetInt64(name)
		case *bool:
			*dst, err = flags.GetBool(name)
		case *[]string:
			*dst, err = flags.GetStringSlice(name)
		default:
			return errors.Errorf("flag --%s: unsupported destination %T", name, dst)
		}
		if err != nil {
			return errors.Wrapf(err, "flag --%s", name)
		}
	}
	return nil
}

// session is the state shared by every subcommand: the config with the flags
// applied and the loggers.
type session struct {
	cfg    *Config
	log    *zap.SugaredLogger
	bldLog io.Writer
	out    io.Writer

	files []*os.File
}

func newSession(cmd *cobra.Command) (*session, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	err = override(flags, map[string]interface{}{
		"func": &cfg.Fuse.Funcs,
		"jobs": &cfg.Jobs,
	})
	if err != nil {
		return nil, err
	}
	colorFlag, _ := flags.GetString("color")
	if err := setColor(colorFlag, os.Stdout); err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, bldLog: io.Discard, out: cmd.OutOrStdout()}
	paths := append([]string(nil), cfg.Log.Files...)
	switch logPath, _ := flags.GetString("log"); logPath {
	case "":
	case "-":
		s.bldLog = os.Stderr
		paths = append(paths, "stderr")
	default:
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot create log %s", logPath)
		}
		s.files = append(s.files, f)
		s.bldLog = f
		paths = append(paths, logPath)
	}
	if len(paths) == 0 {
		s.log = zap.NewNop().Sugar()
	} else if s.log, err = newLogger(cfg.Log.Debug, paths...); err != nil {
		s.Close()
		return nil, err
	}
	if cfg.path != "" {
		s.log.Debugw("Config loaded", "path", cfg.path)
	}
	return s, nil
}

// Close flushes the logger and closes the log files.
func (s *session) Close() error {
	var err error
	if s.log != nil {
		// Sync fails on terminals; only the files matter.
		s.log.Sync()
	}
	for _, f := range s.files {
		err = multierr.Append(err, f.Close())
	}
	return err
}

// load builds the program named by args and returns it with the functions
// selected by the func filter, in source order.
func (s *session) load(args []string) (*build.Program, []*ir.Func, error) {
	conf := build.FromFiles(args).Default().
		WithTests(s.cfg.Build.Tests).
		WithBuildLog(s.bldLog, log.LstdFlags)
	for _, pkg := range s.cfg.Build.Skip {
		conf = conf.AddBadPkg(pkg, "Skipped by configuration")
	}
	prog, err := conf.Build()
	if err != nil {
		return nil, nil, errors.Wrap(err, "build failed")
	}
	for _, err := range multierr.Errors(prog.Errs) {
		s.log.Warnw("Function not lowered", "error", err)
	}
	fns, err := selectFuncs(prog.Funcs, s.cfg.Fuse.Funcs)
	return prog, fns, err
}

// selectFuncs returns the functions of fns named in names, or all of fns if
// names is empty.
func selectFuncs(fns []*ir.Func, names []string) ([]*ir.Func, error) {
	if len(names) == 0 {
		return fns, nil
	}
	byName := make(map[string]*ir.Func, len(fns))
	for _, fn := range fns {
		byName[fn.Name] = fn
	}
	var selected []*ir.Func
	var err error
	for _, name := range names {
		fn, ok := byName[name]
		if !ok {
			err = multierr.Append(err, errors.Errorf("no function %q", name))
			continue
		}
		selected = append(selected, fn)
	}
	return selected, err
}

// each calls do for every function, at most cfg.Jobs at a time. The first
// error cancels the functions not yet started.
func (s *session) each(ctx context.Context, fns []*ir.Func, do func(i int, fn *ir.Func) error) error {
	if len(fns) == 0 {
		return nil
	}
	jobs := s.cfg.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(fns)))
	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return do(i, fn)
		})
	}
	return g.Wait()
}

func pluralise(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
