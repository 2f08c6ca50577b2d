package ir

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// ValueString returns the short operand form of v: constants print as their
// value, parameters and symbols by name, instructions by handle.
func (f *Func) ValueString(id ValueID) string {
	v := f.Value(id)
	if v == nil {
		return id.String()
	}
	switch v.Op {
	case OpConst:
		if v.Type == TypeBool {
			return fmt.Sprintf("%t", v.Aux != 0)
		}
		return fmt.Sprintf("%d", v.Aux)
	case OpParam, OpSymbol:
		return v.Name
	}
	return id.String()
}

// InstrString returns the textual form of instruction id.
func (f *Func) InstrString(id ValueID) string {
	v := f.Value(id)
	if v == nil {
		return id.String()
	}
	var buf bytes.Buffer
	switch v.Op {
	case OpStore:
		fmt.Fprintf(&buf, "store %s <- %s", f.ValueString(v.Args[0]), f.ValueString(v.Args[1]))
		return buf.String()
	case OpPhi:
		fmt.Fprintf(&buf, "%s = phi", id)
		for i, e := range v.Edges {
			if i > 0 {
				buf.WriteString(",")
			}
			fmt.Fprintf(&buf, " %s:%s", e.Block, f.ValueString(e.Value))
		}
		return buf.String()
	}
	fmt.Fprintf(&buf, "%s = %s", id, v.Op)
	if v.Name != "" && (v.Op == OpCall || v.Op == OpOpaque) {
		fmt.Fprintf(&buf, " %s", v.Name)
	}
	for _, a := range v.Args {
		fmt.Fprintf(&buf, " %s", f.ValueString(a))
	}
	switch v.Op {
	case OpIndexAddr, OpAlloc:
		fmt.Fprintf(&buf, " [%d]", v.Aux)
	case OpFieldAddr:
		fmt.Fprintf(&buf, " +%d", v.Aux)
	case OpLen:
		if v.Aux > 0 {
			fmt.Fprintf(&buf, " [%d]", v.Aux)
		}
	}
	return buf.String()
}

// TermString returns the textual form of the terminator of b.
func (f *Func) TermString(b BlockID) string {
	t := f.Blocks[b].Term
	switch t.Kind {
	case TermJump:
		return fmt.Sprintf("jump %s", t.Succs[0])
	case TermIf:
		return fmt.Sprintf("if %s goto %s else %s", f.ValueString(t.Cond), t.Succs[0], t.Succs[1])
	case TermReturn, TermPanic:
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = f.ValueString(a)
		}
		return strings.TrimSpace(fmt.Sprintf("%s %s", t.Kind, strings.Join(args, ", ")))
	}
	return "<no terminator>"
}

// WriteTo writes f in human readable form to w. Removed blocks are skipped.
func (f *Func) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = f.ValueString(p)
	}
	fmt.Fprintf(&buf, "func %s(%s):\n", f.Name, strings.Join(params, ", "))
	preds := f.PredLists()
	for _, b := range f.Blocks {
		if b.Dead {
			continue
		}
		head := fmt.Sprintf("%s: %s", b.ID, b.Comment)
		ps := make([]string, len(preds[b.ID]))
		for i, p := range preds[b.ID] {
			ps[i] = p.String()
		}
		fmt.Fprintf(&buf, "%-40s preds: %s\n", head, strings.Join(ps, " "))
		for _, id := range b.Instrs {
			fmt.Fprintf(&buf, "\t%s\n", f.InstrString(id))
		}
		fmt.Fprintf(&buf, "\t%s\n", f.TermString(b.ID))
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func (f *Func) String() string {
	var buf bytes.Buffer
	f.WriteTo(&buf)
	return buf.String()
}
