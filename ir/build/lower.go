package build

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"

	"fortio.org/safecast"
	"github.com/nickng/loopfuse/instr"
	"github.com/nickng/loopfuse/ir"
	"github.com/nickng/loopfuse/loop"
	"golang.org/x/tools/go/ssa"
)

// UnsupportedError is a function the lowering cannot represent.
type UnsupportedError struct {
	Func   string
	Reason string
}

func (e UnsupportedError) Error() string {
	return fmt.Sprintf("%s: unsupported: %s", e.Func, e.Reason)
}

// lowerer lowers a single go/ssa function. It implements instr.Analyser;
// each Visit method completes the ir value allocated for the instruction.
type lowerer struct {
	src   *ssa.Function
	fn    *ir.Func
	sizes types.Sizes

	blocks []ir.BlockID
	vals   map[ssa.Value]ir.ValueID
	ids    map[ssa.Instruction]ir.ValueID
	curr   ir.BlockID
}

// Lower converts fn to an ir.Func. Element sizes and field offsets are
// computed with sizes. Loops of the result are in simplified form, see
// loop.Simplify.
func Lower(fn *ssa.Function, sizes types.Sizes) (*ir.Func, error) {
	name := fn.Name()
	if fn.Pkg != nil {
		name = fn.RelString(fn.Pkg.Pkg)
	}
	if fn.TypeParams().Len() > 0 {
		return nil, UnsupportedError{Func: name, Reason: "generic function"}
	}
	if fn.Recover != nil {
		return nil, UnsupportedError{Func: name, Reason: "recover block"}
	}
	l := &lowerer{
		src:   fn,
		fn:    ir.NewFunc(name),
		sizes: sizes,
		vals:  make(map[ssa.Value]ir.ValueID),
		ids:   make(map[ssa.Instruction]ir.ValueID),
	}
	for _, p := range fn.Params {
		l.vals[p] = l.fn.Param(p.Name(), kindOf(p.Type()))
	}
	for _, fv := range fn.FreeVars {
		l.vals[fv] = l.fn.Symbol(fv.Name(), kindOf(fv.Type()))
	}
	for _, b := range fn.Blocks {
		l.blocks = append(l.blocks, l.fn.NewBlock(b.Comment))
	}
	// Allocate every value first, so operands defined later (phi edges)
	// resolve.
	for _, b := range fn.Blocks {
		blk := l.blocks[b.Index]
		for _, in := range b.Instrs {
			switch in := in.(type) {
			case *ssa.DebugRef, *ssa.If, *ssa.Jump, *ssa.Return, *ssa.Panic:
			case *ssa.Phi:
				id := l.fn.Phi(blk, kindOf(in.Type()))
				l.ids[in], l.vals[in] = id, id
			default:
				id := l.fn.Emit(blk, ir.OpOpaque, ir.TypeOther, 0)
				l.ids[in] = id
				if v, ok := in.(ssa.Value); ok {
					l.vals[v] = id
				}
			}
		}
	}
	for _, b := range fn.Blocks {
		l.curr = l.blocks[b.Index]
		for _, in := range b.Instrs {
			instr.Visit(l, in)
		}
	}
	loop.Simplify(l.fn)
	if err := l.fn.Validate(); err != nil {
		return nil, UnsupportedError{Func: name, Reason: err.Error()}
	}
	return l.fn, nil
}

// kindOf maps a Go type to the coarse ir type.
func kindOf(t types.Type) ir.TypeKind {
	switch u := t.Underlying().(type) {
	case *types.Basic:
		switch {
		case u.Info()&types.IsInteger != 0:
			return ir.TypeInt
		case u.Info()&types.IsBoolean != 0:
			return ir.TypeBool
		case u.Kind() == types.UnsafePointer:
			return ir.TypePtr
		}
	case *types.Pointer, *types.Slice:
		return ir.TypePtr
	}
	return ir.TypeOther
}

func isSigned(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Info()&types.IsInteger != 0 && b.Info()&types.IsUnsigned == 0
}

// operand returns the ir value for an ssa operand.
func (l *lowerer) operand(v ssa.Value) ir.ValueID {
	if id, ok := l.vals[v]; ok {
		return id
	}
	var id ir.ValueID
	switch v := v.(type) {
	case *ssa.Const:
		id = l.constant(v)
	case *ssa.Global:
		id = l.fn.Symbol(v.RelString(nil), ir.TypePtr)
	case *ssa.Function:
		id = l.fn.Symbol(v.String(), ir.TypeOther)
	case *ssa.Builtin:
		id = l.fn.Symbol(v.Name(), ir.TypeOther)
	default:
		id = l.fn.Symbol(v.String(), kindOf(v.Type()))
	}
	l.vals[v] = id
	return id
}

func (l *lowerer) constant(c *ssa.Const) ir.ValueID {
	if c.Value != nil {
		switch c.Value.Kind() {
		case constant.Int:
			if n, exact := constant.Int64Val(c.Value); exact {
				return l.fn.Const(n)
			}
		case constant.Bool:
			return l.fn.Bool(constant.BoolVal(c.Value))
		}
	}
	return l.fn.Symbol(c.String(), kindOf(c.Type()))
}

func (l *lowerer) operands(vs ...ssa.Value) []ir.ValueID {
	ids := make([]ir.ValueID, len(vs))
	for i, v := range vs {
		ids[i] = l.operand(v)
	}
	return ids
}

// set completes the value allocated for in.
func (l *lowerer) set(in ssa.Instruction, op ir.Op, typ ir.TypeKind, aux int64, args ...ir.ValueID) {
	v := l.fn.Values[l.ids[in]]
	v.Op, v.Type, v.Aux, v.Args = op, typ, aux, args
}

// opaque completes in as an instruction the IR does not model.
func (l *lowerer) opaque(in ssa.Instruction, name string, args ...ssa.Value) {
	typ := ir.TypeOther
	if v, ok := in.(ssa.Value); ok {
		typ = kindOf(v.Type())
	}
	l.set(in, ir.OpOpaque, typ, 0, l.operands(args...)...)
	l.fn.Values[l.ids[in]].Name = name
}

func (l *lowerer) sizeof(t types.Type) int64 {
	return l.sizes.Sizeof(t)
}

func (l *lowerer) VisitInstr(in ssa.Instruction) {
	var args []ssa.Value
	for _, op := range in.Operands(nil) {
		if *op != nil {
			args = append(args, *op)
		}
	}
	l.opaque(in, fmt.Sprintf("%T", in)[len("*ssa."):], args...)
}

func (l *lowerer) VisitAlloc(in *ssa.Alloc) {
	elem := in.Type().(*types.Pointer).Elem()
	l.set(in, ir.OpAlloc, ir.TypePtr, l.sizeof(elem))
}

var binOps = map[token.Token]ir.Op{
	token.ADD: ir.OpAdd,
	token.SUB: ir.OpSub,
	token.MUL: ir.OpMul,
	token.QUO: ir.OpDiv,
	token.REM: ir.OpRem,
	token.AND: ir.OpAnd,
	token.OR:  ir.OpOr,
	token.XOR: ir.OpXor,
	token.SHL: ir.OpShl,
	token.SHR: ir.OpShr,
	token.EQL: ir.OpEq,
	token.NEQ: ir.OpNe,
	token.LSS: ir.OpLt,
	token.LEQ: ir.OpLe,
	token.GTR: ir.OpGt,
	token.GEQ: ir.OpGe,
}

// signedOnly are the operations whose result depends on signedness.
var signedOnly = map[token.Token]bool{
	token.QUO: true, token.REM: true, token.SHR: true,
	token.LSS: true, token.LEQ: true, token.GTR: true, token.GEQ: true,
}

func (l *lowerer) VisitBinOp(in *ssa.BinOp) {
	op, ok := binOps[in.Op]
	xk := kindOf(in.X.Type())
	switch {
	case !ok:
	case xk == ir.TypeInt && (isSigned(in.X.Type()) || !signedOnly[in.Op]):
	case xk == ir.TypeBool && (in.Op == token.EQL || in.Op == token.NEQ):
	case xk == ir.TypePtr && (in.Op == token.EQL || in.Op == token.NEQ):
	default:
		ok = false
	}
	if !ok {
		l.opaque(in, "binop "+in.Op.String(), in.X, in.Y)
		return
	}
	l.set(in, op, kindOf(in.Type()), 0, l.operands(in.X, in.Y)...)
}

func (l *lowerer) VisitUnOp(in *ssa.UnOp) {
	switch in.Op {
	case token.MUL:
		l.set(in, ir.OpLoad, kindOf(in.Type()), 0, l.operand(in.X))
		return
	case token.SUB:
		if kindOf(in.Type()) == ir.TypeInt {
			l.set(in, ir.OpNeg, ir.TypeInt, 0, l.operand(in.X))
			return
		}
	case token.NOT:
		l.set(in, ir.OpNot, ir.TypeBool, 0, l.operand(in.X))
		return
	case token.XOR:
		if kindOf(in.Type()) == ir.TypeInt {
			l.set(in, ir.OpXor, ir.TypeInt, 0, l.operand(in.X), l.fn.Const(-1))
			return
		}
	}
	l.opaque(in, "unop "+in.Op.String(), in.X)
}

func (l *lowerer) VisitCall(in *ssa.Call) {
	common := in.Common()
	if b, ok := common.Value.(*ssa.Builtin); ok && b.Name() == "len" && len(common.Args) == 1 {
		var static int64
		if p, ok := common.Args[0].Type().Underlying().(*types.Pointer); ok {
			if a, ok := p.Elem().Underlying().(*types.Array); ok {
				static = a.Len()
			}
		}
		if kindOf(common.Args[0].Type()) == ir.TypePtr {
			l.set(in, ir.OpLen, ir.TypeInt, static, l.operand(common.Args[0]))
			return
		}
	}
	args := common.Args
	name := common.Value.String()
	if common.IsInvoke() {
		name = common.Method.Name()
		args = append([]ssa.Value{common.Value}, args...)
	} else if callee := common.StaticCallee(); callee != nil {
		name = callee.String()
	}
	l.set(in, ir.OpCall, kindOf(in.Type()), 0, l.operands(args...)...)
	l.fn.Values[l.ids[in]].Name = name
}

func (l *lowerer) convert(in ssa.Instruction, from, to types.Type, x ssa.Value) {
	fk, tk := kindOf(from), kindOf(to)
	if fk == tk && fk != ir.TypeOther {
		l.set(in, ir.OpConvert, tk, 0, l.operand(x))
		return
	}
	l.opaque(in, "convert", x)
}

func (l *lowerer) VisitChangeType(in *ssa.ChangeType) { l.convert(in, in.X.Type(), in.Type(), in.X) }

func (l *lowerer) VisitConvert(in *ssa.Convert) { l.convert(in, in.X.Type(), in.Type(), in.X) }

func (l *lowerer) VisitDebugRef(*ssa.DebugRef) {}

func (l *lowerer) VisitFieldAddr(in *ssa.FieldAddr) {
	st := in.X.Type().Underlying().(*types.Pointer).Elem().Underlying().(*types.Struct)
	fields := make([]*types.Var, st.NumFields())
	for i := range fields {
		fields[i] = st.Field(i)
	}
	offsets := l.sizes.Offsetsof(fields)
	l.set(in, ir.OpFieldAddr, ir.TypePtr, offsets[in.Field], l.operand(in.X))
}

func (l *lowerer) VisitIndexAddr(in *ssa.IndexAddr) {
	var elem types.Type
	switch t := in.X.Type().Underlying().(type) {
	case *types.Slice:
		elem = t.Elem()
	case *types.Pointer:
		elem = t.Elem().Underlying().(*types.Array).Elem()
	}
	if elem == nil || kindOf(in.Index.Type()) != ir.TypeInt {
		l.opaque(in, "indexaddr", in.X, in.Index)
		return
	}
	l.set(in, ir.OpIndexAddr, ir.TypePtr, l.sizeof(elem), l.operands(in.X, in.Index)...)
}

func (l *lowerer) VisitPhi(in *ssa.Phi) {
	id := l.ids[in]
	seen := make(map[ir.BlockID]bool)
	for i, e := range in.Edges {
		pred := l.blocks[in.Block().Preds[i].Index]
		if seen[pred] {
			continue
		}
		seen[pred] = true
		l.fn.AddPhiEdge(id, pred, l.operand(e))
	}
}

func (l *lowerer) VisitStore(in *ssa.Store) {
	l.set(in, ir.OpStore, ir.TypeOther, 0, l.operands(in.Addr, in.Val)...)
}

func (l *lowerer) block(b *ssa.BasicBlock) ir.BlockID {
	idx, err := safecast.Conv[int32](b.Index)
	if err != nil {
		return ir.NoBlock
	}
	return l.blocks[idx]
}

func (l *lowerer) VisitIf(in *ssa.If) {
	succs := in.Block().Succs
	l.fn.If(l.curr, l.operand(in.Cond), l.block(succs[0]), l.block(succs[1]))
}

func (l *lowerer) VisitJump(in *ssa.Jump) {
	l.fn.Jump(l.curr, l.block(in.Block().Succs[0]))
}

func (l *lowerer) VisitReturn(in *ssa.Return) {
	l.fn.Return(l.curr, l.operands(in.Results...)...)
}

func (l *lowerer) VisitPanic(in *ssa.Panic) {
	l.fn.Panic(l.curr, l.operand(in.X))
}
