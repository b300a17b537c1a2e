// Package analysis implements the dataflow analyses that decide where each
// temp lives: on the evaluation stack, regenerated at its use, or in a local
// slot.
package analysis

import "github.com/tomacox74/js2il-sub000/lir"

// Index holds the def and use sites of every temp of one method body.
type Index struct {
	body *lir.MethodBody
	defs [][]int
	uses [][]int
}

// NewIndex scans the body once and records def and use sites. Temps outside
// the temp table are ignored.
func NewIndex(body *lir.MethodBody) *Index {
	n := body.TempCount()
	x := &Index{
		body: body,
		defs: make([][]int, n),
		uses: make([][]int, n),
	}
	for idx, instr := range body.Instructions {
		if def := instr.Def(); body.ValidTemp(def) {
			x.defs[def] = append(x.defs[def], idx)
		}
		for _, used := range instr.Uses() {
			if body.ValidTemp(used) {
				x.uses[used] = append(x.uses[used], idx)
			}
		}
	}
	return x
}

// Body returns the indexed method body.
func (x *Index) Body() *lir.MethodBody {
	return x.body
}

// DefCount returns the number of instructions defining t.
func (x *Index) DefCount(t lir.Temp) int {
	if !x.body.ValidTemp(t) {
		return 0
	}
	return len(x.defs[t])
}

// DefIndex returns the index of the single instruction defining t, or -1
// when t has no definition or several.
func (x *Index) DefIndex(t lir.Temp) int {
	if x.DefCount(t) != 1 {
		return -1
	}
	return x.defs[t][0]
}

// Def returns the single instruction defining t, or nil.
func (x *Index) Def(t lir.Temp) lir.Instruction {
	idx := x.DefIndex(t)
	if idx < 0 {
		return nil
	}
	return x.body.Instructions[idx]
}

// Uses returns the instruction indices reading t, one entry per operand
// occurrence, in ascending order.
func (x *Index) Uses(t lir.Temp) []int {
	if !x.body.ValidTemp(t) {
		return nil
	}
	return x.uses[t]
}

// UseCount returns the number of operand occurrences of t.
func (x *Index) UseCount(t lir.Temp) int {
	return len(x.Uses(t))
}

// HasUses returns true if any instruction reads t.
func (x *Index) HasUses(t lir.Temp) bool {
	return x.UseCount(t) > 0
}
