package main

import (
	"fmt"

	"github.com/nickng/loopfuse/fusion"
	"github.com/nickng/loopfuse/interp"
	"github.com/nickng/loopfuse/ir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [packages|files]",
	Short: "Fuse loops and check the result by interpretation",
	Long: `Fuse the loops of every function in the given packages or files, then
run the original and the fused function on the same generated inputs and
compare their results and the memory they leave behind.

Only integer, boolean and slice parameters are generated; functions calling
other functions are reported as unsupported by both runs and pass trivially.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	f := verifyCmd.Flags()
	f.Int("max-fusions", 0, "Fusions per function (0 for no limit)")
	f.Bool("noalias", false, "Assume distinct pointer parameters never alias")
	f.Int("inputs", 0, "Generated inputs per function (default from config)")
	f.Int("slice-len", 0, "Length of generated slices (default from config)")
	f.Int64("seed", 0, "Seed of the input generator (default from config)")
	f.Bool("alias", false, "Make every slice argument share one backing array")
	f.Int("step-limit", interp.DefaultStepLimit, "Instructions executed before a run is stopped")
}

// verifyReport is the outcome of checking one function.
type verifyReport struct {
	fn      *ir.Func
	fusions int
	inputs  int
	err     error
}

func runVerify(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	opts, err := fuseOptions(cmd, s)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	err = override(flags, map[string]interface{}{
		"inputs":    &s.cfg.Verify.Inputs,
		"slice-len": &s.cfg.Verify.SliceLen,
		"seed":      &s.cfg.Verify.Seed,
	})
	if err != nil {
		return err
	}
	alias, _ := flags.GetBool("alias")
	limit, _ := flags.GetInt("step-limit")
	if s.cfg.Verify.Inputs <= 0 || s.cfg.Verify.SliceLen < 0 {
		return errors.Errorf("invalid input configuration %+v", s.cfg.Verify)
	}
	inputs := s.cfg.inputs(alias)

	_, fns, err := s.load(args)
	if err != nil {
		return err
	}
	reports := make([]verifyReport, len(fns))
	err = s.each(cmd.Context(), fns, func(i int, fn *ir.Func) error {
		reports[i] = verifyFunc(fn, opts, inputs, limit)
		return nil
	})
	if err != nil {
		return err
	}

	var errs error
	for _, r := range reports {
		if r.err != nil {
			printErrors(s.out, r.fn.Name, r.err)
			errs = multierr.Append(errs, r.err)
			continue
		}
		fusedStyle.Fprintf(s.out, "ok")
		fmt.Fprintf(s.out, "   %s (%s, %s)\n", r.fn.Name, pluralise(r.fusions, "fusion"), pluralise(r.inputs, "input"))
	}
	if errs != nil {
		return errors.Errorf("%s failed verification", pluralise(len(multierr.Errors(errs)), "check"))
	}
	return nil
}

// verifyFunc fuses fn and compares it with a copy taken before fusion.
func verifyFunc(fn *ir.Func, opts []fusion.Option, cfg interp.InputConfig, limit int) verifyReport {
	r := verifyReport{fn: fn}
	orig, err := fn.Clone()
	if err != nil {
		r.err = err
		return r
	}
	res, changed, err := fusion.RunResult(fn, opts...)
	if err != nil {
		r.err = err
		return r
	}
	r.fusions = res.Fusions
	if !changed {
		return r
	}
	in := interp.Inputs(orig, cfg)
	r.inputs = len(in)
	r.err = interp.Compare(orig, fn, in, interp.WithStepLimit(limit))
	return r
}
