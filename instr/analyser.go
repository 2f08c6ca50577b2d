// Package instr provides the Analyser interface for go/ssa instructions.
package instr

import "golang.org/x/tools/go/ssa"

// Analyser is an interface for Instruction analysis,
// handles each Instruction the loop fusion frontend models. Every other
// instruction is handled by VisitInstr.
type Analyser interface {
	VisitInstr(instr ssa.Instruction)
	VisitAlloc(instr *ssa.Alloc)
	VisitBinOp(instr *ssa.BinOp)
	VisitCall(instr *ssa.Call)
	VisitChangeType(instr *ssa.ChangeType)
	VisitConvert(instr *ssa.Convert)
	VisitDebugRef(instr *ssa.DebugRef)
	VisitFieldAddr(instr *ssa.FieldAddr)
	VisitIf(instr *ssa.If)
	VisitIndexAddr(instr *ssa.IndexAddr)
	VisitJump(instr *ssa.Jump)
	VisitPanic(instr *ssa.Panic)
	VisitPhi(instr *ssa.Phi)
	VisitReturn(instr *ssa.Return)
	VisitStore(instr *ssa.Store)
	VisitUnOp(instr *ssa.UnOp)
}

// Visit dispatches instr to the matching method of v.
func Visit(v Analyser, instr ssa.Instruction) {
	switch instr := instr.(type) {
	case *ssa.Alloc:
		v.VisitAlloc(instr)
	case *ssa.BinOp:
		v.VisitBinOp(instr)
	case *ssa.Call:
		v.VisitCall(instr)
	case *ssa.ChangeType:
		v.VisitChangeType(instr)
	case *ssa.Convert:
		v.VisitConvert(instr)
	case *ssa.DebugRef:
		v.VisitDebugRef(instr)
	case *ssa.FieldAddr:
		v.VisitFieldAddr(instr)
	case *ssa.If:
		v.VisitIf(instr)
	case *ssa.IndexAddr:
		v.VisitIndexAddr(instr)
	case *ssa.Jump:
		v.VisitJump(instr)
	case *ssa.Panic:
		v.VisitPanic(instr)
	case *ssa.Phi:
		v.VisitPhi(instr)
	case *ssa.Return:
		v.VisitReturn(instr)
	case *ssa.Store:
		v.VisitStore(instr)
	case *ssa.UnOp:
		v.VisitUnOp(instr)
	default:
		v.VisitInstr(instr)
	}
}
