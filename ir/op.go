package ir

// Op is the operation of a Value.
type Op uint8

const (
	OpInvalid Op = iota

	// Values defined outside of the body.
	OpConst  // Aux holds the value.
	OpParam  // Aux holds the parameter index.
	OpSymbol // Global, function or non-integer constant; Name identifies it.

	OpPhi

	// Arithmetic and comparison; two operands.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	// Unary.
	OpNeg
	OpNot
	OpConvert

	// Memory.
	OpAlloc     // Local object of Aux bytes.
	OpIndexAddr // &Args[0][Args[1]], element size Aux bytes.
	OpFieldAddr // &Args[0].f, field at byte offset Aux.
	OpLen       // len(Args[0]); Aux is the static length when the operand is an array.
	OpLoad      // *Args[0]
	OpStore     // *Args[0] = Args[1]

	OpCall   // Call to Name with Args.
	OpOpaque // Anything the frontend does not model; Name describes it.
)

var opNames = [...]string{
	OpInvalid:   "invalid",
	OpConst:     "const",
	OpParam:     "param",
	OpSymbol:    "symbol",
	OpPhi:       "phi",
	OpAdd:       "add",
	OpSub:       "sub",
	OpMul:       "mul",
	OpDiv:       "div",
	OpRem:       "rem",
	OpAnd:       "and",
	OpOr:        "or",
	OpXor:       "xor",
	OpShl:       "shl",
	OpShr:       "shr",
	OpEq:        "eq",
	OpNe:        "ne",
	OpLt:        "lt",
	OpLe:        "le",
	OpGt:        "gt",
	OpGe:        "ge",
	OpNeg:       "neg",
	OpNot:       "not",
	OpConvert:   "convert",
	OpAlloc:     "alloc",
	OpIndexAddr: "indexaddr",
	OpFieldAddr: "fieldaddr",
	OpLen:       "len",
	OpLoad:      "load",
	OpStore:     "store",
	OpCall:      "call",
	OpOpaque:    "opaque",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "op?"
}

// IsCompare reports whether op is a comparison.
func (op Op) IsCompare() bool {
	return op >= OpEq && op <= OpGe
}

// IsBinary reports whether op takes two operands and computes a value
// without side effects.
func (op Op) IsBinary() bool {
	return op >= OpAdd && op <= OpGe
}

// Swap returns the comparison with its operands exchanged, e.g. a<b == b>a.
func (op Op) Swap() Op {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return op
}

// Negate returns the comparison computing the negated result.
func (op Op) Negate() Op {
	switch op {
	case OpEq:
		return OpNe
	case OpNe:
		return OpEq
	case OpLt:
		return OpGe
	case OpLe:
		return OpGt
	case OpGt:
		return OpLe
	case OpGe:
		return OpLt
	}
	return op
}

// MayRead reports whether v may read memory.
func (v *Value) MayRead() bool {
	switch v.Op {
	case OpLoad, OpCall, OpOpaque:
		return true
	}
	return false
}

// MayWrite reports whether v may write memory.
func (v *Value) MayWrite() bool {
	switch v.Op {
	case OpStore, OpCall, OpOpaque:
		return true
	}
	return false
}

// HasSideEffects reports whether removing v could change the behaviour of the
// function. Address computations and OpLen are treated as pure: out of bounds
// accesses trap at the load or store that uses them.
func (v *Value) HasSideEffects() bool {
	return v.MayWrite() || v.Op == OpAlloc
}

// Addr returns the address operand of a load or store, or NoValue.
func (v *Value) Addr() ValueID {
	switch v.Op {
	case OpLoad, OpStore:
		return v.Args[0]
	}
	return NoValue
}

// Operands returns pointers to every operand slot of v, phi edges included.
func (v *Value) Operands() []*ValueID {
	ops := make([]*ValueID, 0, len(v.Args)+len(v.Edges))
	for i := range v.Args {
		ops = append(ops, &v.Args[i])
	}
	for i := range v.Edges {
		ops = append(ops, &v.Edges[i].Value)
	}
	return ops
}

// Operands returns pointers to every operand slot of t.
func (t *Term) Operands() []*ValueID {
	var ops []*ValueID
	if t.Kind == TermIf {
		ops = append(ops, &t.Cond)
	}
	for i := range t.Args {
		ops = append(ops, &t.Args[i])
	}
	return ops
}
