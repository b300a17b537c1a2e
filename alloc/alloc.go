// Package alloc maps temps that must be materialized to reusable local
// slots with a linear scan over the instruction stream.
package alloc

import (
	"github.com/tomacox74/js2il-sub000/analysis"
	"github.com/tomacox74/js2il-sub000/lir"
)

// Allocation maps temps to local slots. A temp with slot -1 is not
// materialized and is regenerated wherever it is loaded.
type Allocation struct {
	TempToSlot   []int
	SlotStorages []lir.Storage
}

// IsMaterialized returns true if t has a slot.
func (a Allocation) IsMaterialized(t lir.Temp) bool {
	return t >= 0 && int(t) < len(a.TempToSlot) && a.TempToSlot[t] >= 0
}

// Slot returns the slot of t, or -1.
func (a Allocation) Slot(t lir.Temp) int {
	if t < 0 || int(t) >= len(a.TempToSlot) {
		return -1
	}
	return a.TempToSlot[t]
}

// SlotCount returns the number of distinct slots.
func (a Allocation) SlotCount() int {
	return len(a.SlotStorages)
}

// Allocate assigns slots to the temps marked in mustMaterialize. A nil
// mask considers every temp and temps past the end of a short mask are not
// considered. Slots are reused only between temps with the
// same storage signature, and a slot is freed at the last use of its temp.
func Allocate(body *lir.MethodBody, mustMaterialize []bool) Allocation {
	return AllocateIndexed(analysis.NewIndex(body), mustMaterialize)
}

// AllocateIndexed is Allocate over an existing index.
func AllocateIndexed(x *analysis.Index, mustMaterialize []bool) Allocation {
	body := x.Body()
	n := body.TempCount()
	alloc := Allocation{TempToSlot: make([]int, n)}
	for t := range alloc.TempToSlot {
		alloc.TempToSlot[t] = -1
	}
	if n == 0 {
		return alloc
	}
	considered := func(t lir.Temp) bool {
		return body.ValidTemp(t) && (mustMaterialize == nil || int(t) < len(mustMaterialize) && mustMaterialize[t])
	}
	regenerated := func(t lir.Temp) bool {
		if body.IsVariableBacked(t) {
			return false
		}
		if !considered(t) {
			return true
		}
		def := x.Def(t)
		return def != nil && x.Repeatable(def)
	}

	lastUse := LastUses(x, regenerated)
	dying := make([][]lir.Temp, len(body.Instructions))
	for t, idx := range lastUse {
		if idx >= 0 {
			dying[idx] = append(dying[idx], lir.Temp(t))
		}
	}

	free := map[string][]int{}
	for idx, instr := range body.Instructions {
		// Free dead operands first so the result can reuse their slot.
		for _, used := range dying[idx] {
			slot := alloc.TempToSlot[used]
			if slot < 0 {
				continue
			}
			sig := body.StorageOf(used).Signature()
			free[sig] = append(free[sig], slot)
		}
		def := instr.Def()
		if !body.ValidTemp(def) || !considered(def) || lastUse[def] == -1 {
			continue
		}
		if body.IsVariableBacked(def) || x.Repeatable(instr) || alloc.TempToSlot[def] >= 0 {
			continue
		}
		storage := body.StorageOf(def)
		sig := storage.Signature()
		if stack := free[sig]; len(stack) > 0 {
			alloc.TempToSlot[def] = stack[len(stack)-1]
			free[sig] = stack[:len(stack)-1]
		} else {
			alloc.TempToSlot[def] = len(alloc.SlotStorages)
			alloc.SlotStorages = append(alloc.SlotStorages, storage)
		}
	}
	return alloc
}

// LastUses computes the index of the last read of every temp. A read of a
// regenerated temp also reads the operands of its definition at that point,
// so their live ranges extend to it. Temps never read have -1.
func LastUses(x *analysis.Index, regenerated func(lir.Temp) bool) []int {
	body := x.Body()
	lastUse := make([]int, body.TempCount())
	for t := range lastUse {
		lastUse[t] = -1
	}
	var visit func(t lir.Temp, idx, depth int)
	visit = func(t lir.Temp, idx, depth int) {
		if !body.ValidTemp(t) || depth > body.TempCount() {
			return
		}
		if idx > lastUse[t] {
			lastUse[t] = idx
		}
		if !regenerated(t) {
			return
		}
		if def := x.Def(t); def != nil {
			for _, operand := range def.Uses() {
				visit(operand, idx, depth+1)
			}
		}
	}
	for idx, instr := range body.Instructions {
		for _, used := range instr.Uses() {
			visit(used, idx, 0)
		}
	}
	extendAcrossLoops(x, lastUse)
	return lastUse
}

// extendAcrossLoops keeps a temp defined before a loop alive until the
// loop's back edge when it is read inside the loop; otherwise its slot could
// be reused within the loop body and clobbered for the next iteration.
func extendAcrossLoops(x *analysis.Index, lastUse []int) {
	body := x.Body()
	labels := map[int]int{}
	for idx, instr := range body.Instructions {
		if l, ok := instr.(*lir.Label); ok {
			labels[l.ID] = idx
		}
	}
	type loop struct{ head, backEdge int }
	var loops []loop
	for idx, instr := range body.Instructions {
		target := -1
		switch i := instr.(type) {
		case *lir.Branch:
			target = i.Target
		case *lir.BranchIfTrue:
			target = i.Target
		case *lir.BranchIfFalse:
			target = i.Target
		default:
			continue
		}
		if head, ok := labels[target]; ok && head < idx {
			loops = append(loops, loop{head, idx})
		}
	}
	for changed := len(loops) > 0; changed; {
		changed = false
		for t, last := range lastUse {
			def := x.DefIndex(lir.Temp(t))
			if last < 0 || def < 0 {
				continue
			}
			for _, l := range loops {
				if def < l.head && last >= l.head && last < l.backEdge {
					lastUse[t] = l.backEdge
					last = l.backEdge
					changed = true
				}
			}
		}
	}
}
