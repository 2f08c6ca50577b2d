package scev

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/nickng/loopfuse/ir"
)

// Term is a coefficient times a symbolic value.
type Term struct {
	Value ir.ValueID
	Coef  int64
}

// Expr is an affine expression Const + sum(Terms). Exprs are interned by an
// Engine: two Exprs of the same Engine are equal iff they are the same
// pointer.
type Expr struct {
	key   string
	Const int64
	Terms []Term // Sorted by Value, no zero coefficient.
}

// IsConst returns true if x has no symbolic term.
func (x *Expr) IsConst() bool { return len(x.Terms) == 0 }

// IsZero returns true if x is the constant 0.
func (x *Expr) IsZero() bool { return x.IsConst() && x.Const == 0 }

func (x *Expr) String() string { return x.key }

func exprKey(c int64, terms []Term) string {
	if len(terms) == 0 {
		return strconv.FormatInt(c, 10)
	}
	var buf bytes.Buffer
	for i, t := range terms {
		switch {
		case t.Coef == 1 && i == 0:
		case t.Coef == 1:
			buf.WriteString("+")
		case t.Coef == -1:
			buf.WriteString("-")
		case t.Coef > 0 && i > 0:
			fmt.Fprintf(&buf, "+%d*", t.Coef)
		default:
			fmt.Fprintf(&buf, "%d*", t.Coef)
		}
		buf.WriteString(t.Value.String())
	}
	switch {
	case c > 0:
		fmt.Fprintf(&buf, "+%d", c)
	case c < 0:
		fmt.Fprintf(&buf, "%d", c)
	}
	return buf.String()
}

// interner owns the canonical Expr of every affine form.
type interner struct {
	exprs map[string]*Expr
}

func newInterner() *interner {
	return &interner{exprs: make(map[string]*Expr)}
}

func (in *interner) get(c int64, terms []Term) *Expr {
	sort.Slice(terms, func(i, j int) bool { return terms[i].Value < terms[j].Value })
	merged := terms[:0]
	for _, t := range terms {
		if n := len(merged); n > 0 && merged[n-1].Value == t.Value {
			merged[n-1].Coef += t.Coef
			continue
		}
		merged = append(merged, t)
	}
	nonzero := merged[:0]
	for _, t := range merged {
		if t.Coef != 0 {
			nonzero = append(nonzero, t)
		}
	}
	key := exprKey(c, nonzero)
	if x, ok := in.exprs[key]; ok {
		return x
	}
	x := &Expr{key: key, Const: c, Terms: append([]Term(nil), nonzero...)}
	in.exprs[key] = x
	return x
}

func (in *interner) add(a, b *Expr) *Expr {
	terms := make([]Term, 0, len(a.Terms)+len(b.Terms))
	terms = append(terms, a.Terms...)
	terms = append(terms, b.Terms...)
	return in.get(a.Const+b.Const, terms)
}

func (in *interner) scale(a *Expr, k int64) *Expr {
	terms := make([]Term, len(a.Terms))
	for i, t := range a.Terms {
		terms[i] = Term{Value: t.Value, Coef: t.Coef * k}
	}
	return in.get(a.Const*k, terms)
}
