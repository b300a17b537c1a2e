package analysis

import "github.com/tomacox74/js2il-sub000/lir"

// BranchConditions marks comparison temps whose only use is a conditional
// branch that can evaluate the comparison itself, so the boolean never
// needs a local.
func (x *Index) BranchConditions() []bool {
	marks := make([]bool, x.body.TempCount())
	for t := range marks {
		marks[t] = x.branchCondition(lir.Temp(t))
	}
	return marks
}

func (x *Index) branchCondition(t lir.Temp) bool {
	if x.body.IsVariableBacked(t) || x.DefCount(t) != 1 || x.UseCount(t) != 1 {
		return false
	}
	def, use := x.DefIndex(t), x.Uses(t)[0]
	if use <= def {
		return false
	}
	switch x.body.Instructions[def].(type) {
	case *lir.CompareNumber, *lir.CompareBoolean:
	default:
		return false
	}
	switch x.body.Instructions[use].(type) {
	case *lir.BranchIfTrue, *lir.BranchIfFalse:
	default:
		return false
	}
	for idx := def + 1; idx < use; idx++ {
		instr := x.body.Instructions[idx]
		if IsHint(instr) {
			continue
		}
		if IsControlFlow(instr) || !x.IsPure(instr) {
			return false
		}
	}
	return true
}
