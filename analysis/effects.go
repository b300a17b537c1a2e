package analysis

import "github.com/tomacox74/js2il-sub000/lir"

// StackEffect returns the number of values an instruction pops and pushes
// at the LIR level: its operands are popped and its result, if any, pushed.
// Hints have no effect.
func StackEffect(instr lir.Instruction) (pops, pushes int) {
	if IsHint(instr) {
		return 0, 0
	}
	switch instr.(type) {
	case *lir.Label, *lir.Branch, *lir.Leave, *lir.EndFinally, *lir.CreateLeafScope:
		return 0, 0
	}
	pops = len(instr.Uses())
	if instr.Def().Valid() {
		pushes = 1
	}
	return pops, pushes
}

// IsControlFlow reports whether instr may transfer control, suspend the
// method, or change the identity of the current scope.
func IsControlFlow(instr lir.Instruction) bool {
	switch instr.(type) {
	case *lir.Label, *lir.Branch, *lir.BranchIfTrue, *lir.BranchIfFalse,
		*lir.Return, *lir.Leave, *lir.EndFinally, *lir.Throw, *lir.ThrowTypeError,
		*lir.Await, *lir.Yield, *lir.CreateLeafScope, *lir.StoreException:
		return true
	}
	return false
}

// reads summarizes the mutable state a temp's regeneration observes.
type reads struct {
	slots map[int]bool
	heap  bool
}

// readsOf collects the variable slots and heap state read when t is
// loaded at a use site: the slot itself for variable-backed temps,
// otherwise everything its defining instruction reads, recursively.
func (x *Index) readsOf(t lir.Temp) reads {
	r := reads{slots: map[int]bool{}}
	x.collectReads(t, &r, 0)
	return r
}

func (x *Index) collectReads(t lir.Temp, r *reads, depth int) {
	if slot := x.body.VariableSlot(t); slot >= 0 {
		r.slots[slot] = true
		return
	}
	if depth > maxInlineChain {
		r.heap = true
		return
	}
	def := x.Def(t)
	if def == nil {
		return
	}
	switch def.(type) {
	case *lir.LoadScopeField, *lir.LoadInstanceField:
		r.heap = true
	}
	for _, used := range def.Uses() {
		x.collectReads(used, r, depth+1)
	}
}

// clobbers reports whether executing instr may change a value described by
// r: it writes one of the slots, or it has effects while r reads the heap.
func (x *Index) clobbers(instr lir.Instruction, r reads) bool {
	if def := instr.Def(); def.Valid() {
		if slot := x.body.VariableSlot(def); slot >= 0 && r.slots[slot] {
			return true
		}
	}
	if r.heap && !IsHint(instr) && !x.IsPure(instr) {
		return true
	}
	return false
}

// SafeBetween reports whether t, loaded at index to, still observes the
// value it had at index from: no instruction in (from, to) clobbers what it
// reads.
func (x *Index) SafeBetween(t lir.Temp, from, to int) bool {
	if from+1 >= to {
		return true
	}
	r := x.readsOf(t)
	if len(r.slots) == 0 && !r.heap {
		return true
	}
	for idx := from + 1; idx < to; idx++ {
		if x.clobbers(x.body.Instructions[idx], r) {
			return false
		}
	}
	return true
}
