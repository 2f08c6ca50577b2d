package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/nickng/loopfuse/fusion"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/term"
)

var (
	funcStyle    = color.New(color.Bold)
	fusedStyle   = color.New(color.FgGreen)
	refusedStyle = color.New(color.FgYellow)
	failStyle    = color.New(color.FgRed, color.Bold)
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// setColor turns colored output on or off. In auto mode colors are used only
// if f is a terminal.
func setColor(mode string, f *os.File) error {
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(f)
	default:
		return errors.Errorf("invalid --color %q: want auto, on or off", mode)
	}
	return nil
}

// printDecisions writes the decisions of res, one per line.
func printDecisions(w io.Writer, res *fusion.Result) {
	funcStyle.Fprintf(w, "func %s", res.Func)
	fmt.Fprintf(w, ": %s\n", pluralise(res.Fusions, "fusion"))
	for _, d := range res.Decisions {
		if d.Stage == fusion.StageFused {
			fusedStyle.Fprintf(w, "  %s\n", d)
			continue
		}
		refusedStyle.Fprintf(w, "  %s\n", d)
	}
}

// printErrors writes every error combined in err under the failing function.
func printErrors(w io.Writer, fn string, err error) {
	failStyle.Fprintf(w, "FAIL")
	fmt.Fprintf(w, " %s\n", fn)
	for _, e := range multierr.Errors(err) {
		fmt.Fprintf(w, "  %v\n", e)
	}
}
