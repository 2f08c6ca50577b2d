// Package depend answers whether two memory instructions may access the
// same memory, at least one of them writing.
//
// The oracle is deliberately simple: it separates accesses whose root
// objects are provably distinct (different local allocations, or a local
// allocation whose address never escapes against anything else) and accesses
// to the same root at different constant offsets. Everything else may
// depend.
package depend

import "github.com/nickng/loopfuse/ir"

// Oracle is a dependence oracle for one function.
type Oracle struct {
	fn      *ir.Func
	escapes map[ir.ValueID]bool // Per OpAlloc.
}

// New returns an Oracle for fn. It must be rebuilt after fn is edited.
func New(fn *ir.Func) *Oracle {
	o := &Oracle{fn: fn, escapes: make(map[ir.ValueID]bool)}
	o.findEscapes()
	return o
}

// path is an address decomposed into its root and a constant byte offset.
type path struct {
	root     ir.ValueID
	offset   int64
	constant bool // offset is exact.
	last     ir.Op
	lastAux  int64
	parent   ir.ValueID // Operand of the last address step.
	hasSteps bool
}

func (o *Oracle) decompose(p ir.ValueID) path {
	res := path{constant: true, parent: ir.NoValue}
	first := true
	for {
		v := o.fn.Value(p)
		switch v.Op {
		case ir.OpIndexAddr:
			if c := o.fn.Value(v.Args[1]); c.Op == ir.OpConst {
				res.offset += c.Aux * v.Aux
			} else {
				res.constant = false
			}
		case ir.OpFieldAddr:
			res.offset += v.Aux
		default:
			res.root = p
			return res
		}
		if first {
			res.last, res.lastAux, res.parent, res.hasSteps = v.Op, v.Aux, v.Args[0], true
			first = false
		}
		p = v.Args[0]
	}
}

// Root returns the object an address is derived from.
func (o *Oracle) Root(addr ir.ValueID) ir.ValueID {
	return o.decompose(addr).root
}

// Distinct returns true if the root pointers a and b provably refer to
// different objects.
func (o *Oracle) Distinct(a, b ir.ValueID) bool {
	if a == b {
		return false
	}
	va, vb := o.fn.Value(a), o.fn.Value(b)
	aAlloc, bAlloc := va.Op == ir.OpAlloc, vb.Op == ir.OpAlloc
	switch {
	case aAlloc && bAlloc:
		return true
	case aAlloc:
		return !o.escapes[a]
	case bAlloc:
		return !o.escapes[b]
	}
	return false
}

// Depends returns true if the memory instructions a and b may access the
// same location and at least one of them writes.
func (o *Oracle) Depends(a, b ir.ValueID) bool {
	va, vb := o.fn.Value(a), o.fn.Value(b)
	if !va.MayWrite() && !vb.MayWrite() {
		return false
	}
	pa, pb := va.Addr(), vb.Addr()
	if pa == ir.NoValue || pb == ir.NoValue {
		return true
	}
	da, db := o.decompose(pa), o.decompose(pb)
	if da.root != db.root {
		return !o.Distinct(da.root, db.root)
	}
	if !da.constant || !db.constant || da.offset == db.offset || !da.hasSteps || !db.hasSteps {
		return true
	}
	// Different constant offsets from the same root do not overlap when both
	// are elements of the same size, or distinct fields of the same struct.
	switch {
	case da.last == ir.OpIndexAddr && db.last == ir.OpIndexAddr && da.lastAux == db.lastAux:
		return false
	case da.last == ir.OpFieldAddr && db.last == ir.OpFieldAddr && da.parent == db.parent:
		return false
	}
	return true
}

// findEscapes marks every allocation whose address, or an address derived
// from it, is used other than as the address of a load or store.
func (o *Oracle) findEscapes() {
	for _, v := range o.fn.Values {
		if v.Dead || v.Op != ir.OpAlloc {
			continue
		}
		o.escapes[v.ID] = o.escaping(v.ID, make(map[ir.ValueID]bool))
	}
}

func (o *Oracle) escaping(p ir.ValueID, seen map[ir.ValueID]bool) bool {
	if seen[p] {
		return false
	}
	seen[p] = true
	for _, u := range o.fn.Uses(p) {
		if u.User == ir.NoValue {
			return true // Returned, or a panic argument.
		}
		user := o.fn.Values[u.User]
		switch user.Op {
		case ir.OpLoad:
		case ir.OpStore:
			if user.Args[1] == p {
				return true
			}
		case ir.OpIndexAddr, ir.OpFieldAddr:
			if user.Args[0] != p {
				continue
			}
			if o.escaping(user.ID, seen) {
				return true
			}
		case ir.OpLen:
		default:
			return true
		}
	}
	return false
}
