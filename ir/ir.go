// Package ir is the control flow graph representation the loop fusion pass
// works on.
//
// A Func owns two arenas: Blocks and Values. Both are addressed by stable
// integer handles (BlockID and ValueID) which stay valid across every edit;
// removing a block or a value only marks it Dead, nothing is ever relocated.
// Edits therefore replace edge targets or operand handles in place.
//
// Instructions are Values that belong to a block (Value.Block). Constants,
// parameters and symbols live outside of any block (Block == NoBlock).
// Every block ends with a Term, which is not part of Block.Instrs.
//
package ir

import "fmt"

// BlockID is a handle to a Block in Func.Blocks.
type BlockID int32

// ValueID is a handle to a Value in Func.Values.
type ValueID int32

const (
	NoBlock BlockID = -1
	NoValue ValueID = -1
)

func (b BlockID) String() string {
	if b == NoBlock {
		return "b?"
	}
	return fmt.Sprintf("b%d", int32(b))
}

func (v ValueID) String() string {
	if v == NoValue {
		return "v?"
	}
	return fmt.Sprintf("v%d", int32(v))
}

// TypeKind is the coarse type of a Value.
type TypeKind uint8

const (
	TypeOther TypeKind = iota
	TypeInt
	TypeBool
	TypePtr
)

// Value is a constant, parameter, symbol or instruction.
type Value struct {
	ID    ValueID   `msgpack:"id"`
	Op    Op        `msgpack:"op"`
	Type  TypeKind  `msgpack:"type"`
	Block BlockID   `msgpack:"block"` // NoBlock for values defined outside of the body.
	Args  []ValueID `msgpack:"args"`
	Edges []PhiEdge `msgpack:"edges"` // Incoming edges, OpPhi only.
	Aux   int64     `msgpack:"aux"`   // Constant value, element size, byte offset...
	Name  string    `msgpack:"name"`
	Dead  bool      `msgpack:"dead"`
}

// PhiEdge is an incoming (block, value) pair of a phi.
type PhiEdge struct {
	Block BlockID `msgpack:"block"`
	Value ValueID `msgpack:"value"`
}

// TermKind is the kind of a block terminator.
type TermKind uint8

const (
	TermNone TermKind = iota
	TermJump
	TermIf
	TermReturn
	TermPanic
)

func (k TermKind) String() string {
	switch k {
	case TermJump:
		return "jump"
	case TermIf:
		return "if"
	case TermReturn:
		return "return"
	case TermPanic:
		return "panic"
	}
	return "none"
}

// Term is a block terminator.
//
// A TermJump has one successor, a TermIf has two (then, else) and branches on
// Cond. TermReturn and TermPanic have no successors and carry their operands
// in Args.
type Term struct {
	Kind  TermKind  `msgpack:"kind"`
	Cond  ValueID   `msgpack:"cond"`
	Succs []BlockID `msgpack:"succs"`
	Args  []ValueID `msgpack:"args"`
}

// Block is a basic block.
type Block struct {
	ID      BlockID   `msgpack:"id"`
	Comment string    `msgpack:"comment"` // e.g. "for.loop", kept from the frontend.
	Instrs  []ValueID `msgpack:"instrs"`  // Phis first.
	Term    Term      `msgpack:"term"`
	Dead    bool      `msgpack:"dead"`
}

// Func is a function body.
type Func struct {
	Name   string    `msgpack:"name"`
	Entry  BlockID   `msgpack:"entry"`
	Params []ValueID `msgpack:"params"`
	Blocks []*Block  `msgpack:"blocks"`
	Values []*Value  `msgpack:"values"`

	consts map[int64]ValueID // Interned TypeInt constants.
}

// NewFunc returns an empty function with no blocks.
func NewFunc(name string) *Func {
	return &Func{
		Name:   name,
		Entry:  NoBlock,
		consts: make(map[int64]ValueID),
	}
}

// NewBlock appends a new block to f. The first block created is the entry.
func (f *Func) NewBlock(comment string) BlockID {
	id := BlockID(len(f.Blocks))
	f.Blocks = append(f.Blocks, &Block{ID: id, Comment: comment, Term: Term{Cond: NoValue}})
	if f.Entry == NoBlock {
		f.Entry = id
	}
	return id
}

// Block returns the block with the given handle, or nil.
func (f *Func) Block(id BlockID) *Block {
	if id < 0 || int(id) >= len(f.Blocks) {
		return nil
	}
	return f.Blocks[id]
}

// Value returns the value with the given handle, or nil.
func (f *Func) Value(id ValueID) *Value {
	if id < 0 || int(id) >= len(f.Values) {
		return nil
	}
	return f.Values[id]
}

// LiveBlocks returns the handles of all blocks not removed, in creation order.
func (f *Func) LiveBlocks() []BlockID {
	ids := make([]BlockID, 0, len(f.Blocks))
	for _, b := range f.Blocks {
		if !b.Dead {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

func (f *Func) newValue(op Op, typ TypeKind, blk BlockID, aux int64, args []ValueID) ValueID {
	id := ValueID(len(f.Values))
	f.Values = append(f.Values, &Value{
		ID:    id,
		Op:    op,
		Type:  typ,
		Block: blk,
		Args:  args,
		Aux:   aux,
	})
	return id
}

// Const returns the interned integer constant c.
func (f *Func) Const(c int64) ValueID {
	if f.consts == nil {
		f.consts = make(map[int64]ValueID)
		for _, v := range f.Values {
			if v.Op == OpConst && v.Type == TypeInt && !v.Dead {
				f.consts[v.Aux] = v.ID
			}
		}
	}
	if id, ok := f.consts[c]; ok {
		return id
	}
	id := f.newValue(OpConst, TypeInt, NoBlock, c, nil)
	f.consts[c] = id
	return id
}

// Bool returns a boolean constant. Booleans are not interned with integers.
func (f *Func) Bool(b bool) ValueID {
	for _, v := range f.Values {
		if v.Op == OpConst && v.Type == TypeBool && !v.Dead && (v.Aux != 0) == b {
			return v.ID
		}
	}
	var aux int64
	if b {
		aux = 1
	}
	return f.newValue(OpConst, TypeBool, NoBlock, aux, nil)
}

// Param appends a parameter.
func (f *Func) Param(name string, typ TypeKind) ValueID {
	id := f.newValue(OpParam, typ, NoBlock, int64(len(f.Params)), nil)
	f.Values[id].Name = name
	f.Params = append(f.Params, id)
	return id
}

// Symbol returns an opaque value defined outside of the function, e.g. a
// global or a function reference.
func (f *Func) Symbol(name string, typ TypeKind) ValueID {
	for _, v := range f.Values {
		if v.Op == OpSymbol && v.Name == name && !v.Dead {
			return v.ID
		}
	}
	id := f.newValue(OpSymbol, typ, NoBlock, 0, nil)
	f.Values[id].Name = name
	return id
}

// Emit appends an instruction to block b.
func (f *Func) Emit(b BlockID, op Op, typ TypeKind, aux int64, args ...ValueID) ValueID {
	id := f.newValue(op, typ, b, aux, args)
	blk := f.Blocks[b]
	blk.Instrs = append(blk.Instrs, id)
	return id
}

// Phi inserts a phi after the existing phis of block b.
func (f *Func) Phi(b BlockID, typ TypeKind, edges ...PhiEdge) ValueID {
	id := f.newValue(OpPhi, typ, b, 0, nil)
	f.Values[id].Edges = edges
	blk := f.Blocks[b]
	n := len(f.Phis(b))
	blk.Instrs = append(blk.Instrs, NoValue)
	copy(blk.Instrs[n+1:], blk.Instrs[n:])
	blk.Instrs[n] = id
	return id
}

// AddPhiEdge appends an incoming edge to phi.
func (f *Func) AddPhiEdge(phi ValueID, pred BlockID, v ValueID) {
	p := f.Values[phi]
	p.Edges = append(p.Edges, PhiEdge{Block: pred, Value: v})
}

// Phis returns the phis at the start of block b.
func (f *Func) Phis(b BlockID) []ValueID {
	blk := f.Blocks[b]
	n := 0
	for _, id := range blk.Instrs {
		if f.Values[id].Op != OpPhi {
			break
		}
		n++
	}
	return blk.Instrs[:n]
}

// Jump sets the terminator of b to an unconditional jump.
func (f *Func) Jump(b, to BlockID) {
	f.Blocks[b].Term = Term{Kind: TermJump, Cond: NoValue, Succs: []BlockID{to}}
}

// If sets the terminator of b to a two-way conditional branch.
func (f *Func) If(b BlockID, cond ValueID, then, els BlockID) {
	f.Blocks[b].Term = Term{Kind: TermIf, Cond: cond, Succs: []BlockID{then, els}}
}

// Return sets the terminator of b to a return.
func (f *Func) Return(b BlockID, results ...ValueID) {
	f.Blocks[b].Term = Term{Kind: TermReturn, Cond: NoValue, Args: results}
}

// Panic sets the terminator of b to a panic.
func (f *Func) Panic(b BlockID, args ...ValueID) {
	f.Blocks[b].Term = Term{Kind: TermPanic, Cond: NoValue, Args: args}
}

// Succs returns the successors of b in terminator order.
func (f *Func) Succs(b BlockID) []BlockID {
	return f.Blocks[b].Term.Succs
}

// Preds returns the distinct live predecessors of b, in block order.
func (f *Func) Preds(b BlockID) []BlockID {
	var preds []BlockID
	for _, p := range f.Blocks {
		if p.Dead {
			continue
		}
		for _, s := range p.Term.Succs {
			if s == b {
				preds = append(preds, p.ID)
				break
			}
		}
	}
	return preds
}

// PredLists returns the distinct live predecessors of every block, indexed by
// BlockID.
func (f *Func) PredLists() [][]BlockID {
	preds := make([][]BlockID, len(f.Blocks))
	for _, p := range f.Blocks {
		if p.Dead {
			continue
		}
		for i, s := range p.Term.Succs {
			dup := false
			for _, prev := range p.Term.Succs[:i] {
				if prev == s {
					dup = true
					break
				}
			}
			if !dup {
				preds[s] = append(preds[s], p.ID)
			}
		}
	}
	return preds
}

// SinglePred returns the unique predecessor of b.
func (f *Func) SinglePred(b BlockID) (BlockID, bool) {
	preds := f.Preds(b)
	if len(preds) != 1 {
		return NoBlock, false
	}
	return preds[0], true
}

// FirstNonPhi returns the index in Instrs of the first instruction which is
// not a phi.
func (f *Func) FirstNonPhi(b BlockID) int {
	return len(f.Phis(b))
}

// Identical reports whether a and b are the same computation: same opcode,
// same operands and same immediate. Values are identical to themselves.
func (f *Func) Identical(a, b ValueID) bool {
	if a == b {
		return true
	}
	va, vb := f.Value(a), f.Value(b)
	if va == nil || vb == nil || va.Op != vb.Op || va.Type != vb.Type || va.Aux != vb.Aux || va.Name != vb.Name {
		return false
	}
	// Only pure instructions compute the same thing twice.
	if va.Block == NoBlock || vb.Block == NoBlock || va.Op == OpPhi || va.MayRead() || va.HasSideEffects() {
		return false
	}
	if len(va.Args) != len(vb.Args) {
		return false
	}
	for i := range va.Args {
		if va.Args[i] != vb.Args[i] {
			return false
		}
	}
	return true
}
