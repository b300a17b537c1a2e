package analysis

import "github.com/tomacox74/js2il-sub000/lir"

// maxInlineChain bounds the recursion of the inlineability predicate so that
// malformed bodies with cyclic definitions terminate.
const maxInlineChain = 64

// CanEmitInline reports whether instr may be duplicated between its
// definition site and a use site without changing behavior or cost: it is
// pure, cheap, and every operand is itself inlineable. Variable-backed
// operands are inlineable since they load from their slot.
func (x *Index) CanEmitInline(instr lir.Instruction) bool {
	return x.canEmitInline(instr, 0)
}

func (x *Index) canEmitInline(instr lir.Instruction, depth int) bool {
	if depth > maxInlineChain {
		return false
	}
	operand := func(t lir.Temp) bool {
		return x.inlineOperand(t, depth+1)
	}
	all := func(ts []lir.Temp) bool {
		for _, t := range ts {
			if !operand(t) {
				return false
			}
		}
		return true
	}
	switch i := instr.(type) {
	case *lir.ConstNumber, *lir.ConstString, *lir.ConstBool, *lir.ConstUndefined, *lir.ConstNull:
		return true
	case *lir.LoadParameter, *lir.LoadThis, *lir.LoadScopesArgument, *lir.LoadLeafScope, *lir.LoadParentScope:
		return true
	case *lir.GetIntrinsicGlobal, *lir.BuildScopesArray:
		return true
	case *lir.LoadScopeField:
		if slot := x.body.VariableSlot(i.Scope); slot >= 0 {
			return x.body.IsSingleAssignment(slot)
		}
		return operand(i.Scope)
	case *lir.NegateNumber:
		return operand(i.Value)
	case *lir.LogicalNot:
		return operand(i.Value)
	case *lir.TypeOf:
		return operand(i.Value)
	case *lir.IsInstanceOf:
		return operand(i.Value)
	case *lir.BinaryNumber:
		return operand(i.Left) && operand(i.Right)
	case *lir.CompareNumber:
		return operand(i.Left) && operand(i.Right)
	case *lir.CompareBoolean:
		return operand(i.Left) && operand(i.Right)
	case *lir.Concat:
		return operand(i.Left) && operand(i.Right)
	case *lir.NewObjectArray:
		if len(i.Elements) == 0 && i.Length > 0 {
			return false
		}
		return all(i.Elements)
	case *lir.BuildArray:
		return all(i.Elements)
	case *lir.NewObjectLiteral:
		return all(i.Values)
	case *lir.Convert:
		if i.Kind.IsCoercion() {
			return false
		}
		return x.stableSource(i.Source, depth+1)
	case *lir.CopyTemp:
		if x.body.IsVariableBacked(i.Result) {
			return false
		}
		return x.stableSource(i.Source, depth+1)
	}
	return false
}

func (x *Index) inlineOperand(t lir.Temp, depth int) bool {
	if x.body.IsVariableBacked(t) {
		return true
	}
	def := x.Def(t)
	return def != nil && x.canEmitInline(def, depth)
}

// stableSource is the operand rule for conversions: a variable-backed source
// must be single-assignment, otherwise the slot may be overwritten before
// the converted value is consumed.
func (x *Index) stableSource(t lir.Temp, depth int) bool {
	if slot := x.body.VariableSlot(t); slot >= 0 {
		return x.body.IsSingleAssignment(slot)
	}
	def := x.Def(t)
	return def != nil && x.canEmitInline(def, depth)
}

// Repeatable reports whether instr is a free projection that may be
// re-emitted at every use of its result, however many there are. The
// allocator never gives such a temp a slot.
func (x *Index) Repeatable(instr lir.Instruction) bool {
	return x.repeatable(instr, 0)
}

func (x *Index) repeatable(instr lir.Instruction, depth int) bool {
	if depth > maxInlineChain {
		return false
	}
	switch i := instr.(type) {
	case *lir.ConstNumber, *lir.ConstString, *lir.ConstBool, *lir.ConstUndefined, *lir.ConstNull:
		return true
	case *lir.LoadParameter, *lir.LoadThis, *lir.LoadScopesArgument, *lir.LoadLeafScope, *lir.LoadParentScope:
		return true
	case *lir.GetIntrinsicGlobal:
		return true
	case *lir.Convert:
		switch i.Kind {
		case lir.Box, lir.UnboxNumber, lir.UnboxBool, lir.BoolToNumber:
			if x.body.IsVariableBacked(i.Source) {
				return false
			}
			def := x.Def(i.Source)
			return def != nil && x.repeatable(def, depth+1)
		}
	}
	return false
}

// IsPure reports whether emitting instr has no observable effect other than
// producing its result. A pure instruction whose result is never read may be
// skipped entirely.
func (x *Index) IsPure(instr lir.Instruction) bool {
	if def := instr.Def(); def.Valid() && x.body.IsVariableBacked(def) {
		return false
	}
	switch i := instr.(type) {
	case *lir.ConstNumber, *lir.ConstString, *lir.ConstBool, *lir.ConstUndefined, *lir.ConstNull,
		*lir.LoadParameter, *lir.LoadThis, *lir.LoadScopesArgument, *lir.LoadLeafScope, *lir.LoadParentScope,
		*lir.GetIntrinsicGlobal, *lir.BuildScopesArray,
		*lir.NegateNumber, *lir.LogicalNot, *lir.TypeOf, *lir.IsInstanceOf,
		*lir.BinaryNumber, *lir.CompareNumber, *lir.CompareBoolean, *lir.Concat,
		*lir.NewObjectArray, *lir.BuildArray, *lir.NewObjectLiteral, *lir.CopyTemp,
		*lir.LoadScopeField, *lir.LoadInstanceField:
		return true
	case *lir.Convert:
		return !i.Kind.IsCoercion()
	}
	return false
}

// IsHint reports whether instr emits nothing.
func IsHint(instr lir.Instruction) bool {
	switch instr.(type) {
	case *lir.BeginInitArrayElement, *lir.SequencePoint:
		return true
	}
	return false
}
