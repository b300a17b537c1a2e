package analysis

import "github.com/tomacox74/js2il-sub000/lir"

// StackifyResult marks the temps that need no local slot: their single use
// receives the value directly on the evaluation stack.
type StackifyResult []bool

// IsStackable returns true if t can stay on the stack.
func (r StackifyResult) IsStackable(t lir.Temp) bool {
	return t >= 0 && int(t) < len(r) && r[t]
}

// Count returns the number of stackable temps.
func (r StackifyResult) Count() int {
	n := 0
	for _, ok := range r {
		if ok {
			n++
		}
	}
	return n
}

// Stackify decides, for every temp, whether it can stay on the evaluation
// stack between its definition and its use. It does not modify the body and
// returns the same result for the same body.
func Stackify(body *lir.MethodBody) StackifyResult {
	return NewIndex(body).Stackify()
}

// Stackify runs the analysis over an existing index.
func (x *Index) Stackify() StackifyResult {
	result := make(StackifyResult, x.body.TempCount())
	for t := range result {
		result[t] = x.stackable(lir.Temp(t))
	}
	return result
}

func (x *Index) stackable(t lir.Temp) bool {
	if x.body.IsVariableBacked(t) {
		return false
	}
	if x.DefCount(t) != 1 || x.UseCount(t) != 1 {
		return false
	}
	def := x.DefIndex(t)
	use := x.Uses(t)[0]
	if use <= def {
		return false
	}
	instr := x.body.Instructions[def]
	// A typed numeric result is only kept when consumed by the very next
	// instruction.
	if _, ok := instr.(*lir.BinaryNumber); ok && use != def+1 {
		return false
	}
	if !x.CanEmitInline(instr) {
		// The one side-effecting exception: a typed member call consumed
		// immediately. Its execution moves to the use site.
		if _, ok := instr.(*lir.CallTypedMember); !ok || use != def+1 {
			return false
		}
	}
	if !x.stackDiscipline(t, def, use) {
		return false
	}
	return x.SafeBetween(t, def, use)
}

// stackDiscipline checks that the value pushed at def is still reachable on
// the stack, in consumption order, at use.
func (x *Index) stackDiscipline(t lir.Temp, def, use int) bool {
	instrs := x.body.Instructions
	operands := instrs[use].Uses()
	if use == def+1 && len(operands) > 0 && operands[0] == t {
		return true
	}
	for idx := def + 1; idx < use; idx++ {
		if IsControlFlow(instrs[idx]) {
			return false
		}
	}
	if x.isGlobalReceiver(t, def, use) {
		return true
	}
	if !x.CanEmitInline(instrs[def]) {
		return false
	}
	depth, position := 1, 0
	for idx := def + 1; idx < use; idx++ {
		pops, pushes := StackEffect(instrs[idx])
		if pops > depth-1 {
			return false
		}
		depth = depth - pops + pushes
		position += pushes
		if depth < 1 || position >= depth {
			return false
		}
	}
	operand := -1
	for n, used := range operands {
		if used == t {
			operand = n
			break
		}
	}
	if operand < 0 {
		return false
	}
	return position == 0 || operand == 0
}

// isGlobalReceiver recognizes an intrinsic global lookup consumed as the
// receiver of a call. Such lookups are treated as free singleton
// projections that may be repeated at the call.
func (x *Index) isGlobalReceiver(t lir.Temp, def, use int) bool {
	if _, ok := x.body.Instructions[def].(*lir.GetIntrinsicGlobal); !ok {
		return false
	}
	switch i := x.body.Instructions[use].(type) {
	case *lir.CallIntrinsic:
		return i.Receiver == t
	case *lir.CallMember:
		return i.Receiver == t
	case *lir.CallTypedMember:
		return i.Receiver == t
	}
	return false
}
