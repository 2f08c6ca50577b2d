package main

import (
	"os"

	"github.com/nickng/loopfuse/ir"
	"github.com/nickng/loopfuse/ir/build"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var viewCmd = &cobra.Command{
	Use:   "view [packages|files]",
	Short: "Print the IR of Go functions",
	Long: `Print the loop fusion IR of every function in the given packages or files.

With --ssa, the go/ssa form each function was lowered from is printed
before it. With --snapshot, the functions are read from a snapshot written
by "loopfuse fuse --snapshot" instead.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if snap, _ := cmd.Flags().GetString("snapshot"); snap != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runView,
}

func init() {
	viewCmd.Flags().String("snapshot", "", "Read functions from a snapshot file")
	viewCmd.Flags().Bool("ssa", false, "Also print the go/ssa form of every function")
}

func runView(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var (
		fns  []*ir.Func
		prog *build.Program
	)
	if snap, _ := cmd.Flags().GetString("snapshot"); snap != "" {
		if fns, err = readSnapshot(snap); err != nil {
			return err
		}
		if fns, err = selectFuncs(fns, s.cfg.Fuse.Funcs); err != nil {
			return err
		}
	} else if prog, fns, err = s.load(args); err != nil {
		return err
	}
	showSSA, _ := cmd.Flags().GetBool("ssa")
	for _, fn := range fns {
		if showSSA && prog != nil {
			if src := prog.Source(fn.Name); src != nil {
				if _, err := src.WriteTo(s.out); err != nil {
					return errors.Wrap(err, "cannot write SSA")
				}
			}
		}
		if _, err := fn.WriteTo(s.out); err != nil {
			return errors.Wrap(err, "cannot write IR")
		}
	}
	return nil
}

func readSnapshot(path string) ([]*ir.Func, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open snapshot")
	}
	defer f.Close()
	return ir.ReadSnapshot(f)
}

func writeSnapshot(path string, fns []*ir.Func) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "cannot create snapshot")
	}
	if err := ir.WriteSnapshot(f, fns); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "cannot write snapshot")
}
