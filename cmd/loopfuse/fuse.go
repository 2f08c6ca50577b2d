package main

import (
	"github.com/nickng/loopfuse/fusion"
	"github.com/nickng/loopfuse/ir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var fuseCmd = &cobra.Command{
	Use:   "fuse [packages|files]",
	Short: "Fuse adjacent loops and print the decisions",
	Long: `Run loop fusion over every function in the given packages or files.

Every pair of loops considered is reported with the stage it was refused at,
or as fused. The IR of the functions which changed is printed after the
decisions.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFuse,
}

func init() {
	fuseCmd.Flags().Int("max-fusions", 0, "Fusions per function (0 for no limit)")
	fuseCmd.Flags().Bool("noalias", false, "Assume distinct pointer parameters never alias")
	fuseCmd.Flags().Bool("ir", true, "Print the IR of changed functions")
	fuseCmd.Flags().String("snapshot", "", "Write the functions after fusion to a snapshot file")
}

// fuseReport is the outcome of the pass over one function.
type fuseReport struct {
	fn      *ir.Func
	res     *fusion.Result
	changed bool
	err     error
}

// fuseOptions returns the pass options from the config and the flags of cmd.
func fuseOptions(cmd *cobra.Command, s *session) ([]fusion.Option, error) {
	err := override(cmd.Flags(), map[string]interface{}{
		"max-fusions": &s.cfg.Fuse.MaxFusions,
		"noalias":     &s.cfg.Fuse.AssumeNoAlias,
	})
	if err != nil {
		return nil, err
	}
	if s.cfg.Fuse.MaxFusions < 0 {
		return nil, errors.Errorf("invalid --max-fusions %d", s.cfg.Fuse.MaxFusions)
	}
	return []fusion.Option{
		fusion.WithLogger(s.log),
		fusion.WithMaxFusions(s.cfg.Fuse.MaxFusions),
		fusion.WithNoAlias(s.cfg.Fuse.AssumeNoAlias),
	}, nil
}

func runFuse(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	opts, err := fuseOptions(cmd, s)
	if err != nil {
		return err
	}
	_, fns, err := s.load(args)
	if err != nil {
		return err
	}

	reports := make([]fuseReport, len(fns))
	err = s.each(cmd.Context(), fns, func(i int, fn *ir.Func) error {
		res, changed, err := fusion.RunResult(fn, opts...)
		reports[i] = fuseReport{fn: fn, res: res, changed: changed, err: err}
		return nil
	})
	if err != nil {
		return err
	}

	showIR, _ := cmd.Flags().GetBool("ir")
	var errs error
	for _, r := range reports {
		if r.err != nil {
			printErrors(s.out, r.fn.Name, r.err)
			errs = multierr.Append(errs, r.err)
			continue
		}
		printDecisions(s.out, r.res)
		if r.changed && showIR {
			if _, err := r.fn.WriteTo(s.out); err != nil {
				return errors.Wrap(err, "cannot write IR")
			}
		}
	}
	if snap, _ := cmd.Flags().GetString("snapshot"); snap != "" {
		if err := writeSnapshot(snap, fns); err != nil {
			return err
		}
		s.log.Infow("Snapshot written", "path", snap, "funcs", len(fns))
	}
	return errs
}
