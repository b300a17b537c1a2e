// Package validate checks a finished method body against the invariants the
// backend relies on. A failure always indicates a bug in the lowering that
// produced the body.
package validate

import (
	"github.com/hashicorp/go-multierror"
	"github.com/tomacox74/js2il-sub000/errz"
	"github.com/tomacox74/js2il-sub000/lir"
)

// Body runs every check against the method body. Each check stops at its
// first finding; findings of different checks are aggregated. The body is
// never modified.
func Body(body *lir.MethodBody) error {
	var result *multierror.Error
	for _, check := range []func(*lir.MethodBody) *errz.StructuredError{
		checkTemps,
		checkSlotMaterialization,
		checkNumericLowering,
	} {
		if err := check(body); err != nil {
			result = multierror.Append(result, err.WithMethod(body.Name))
		}
	}
	return result.ErrorOrNil()
}

// checkTemps verifies that every referenced temp indexes the temp table.
func checkTemps(body *lir.MethodBody) *errz.StructuredError {
	for idx, instr := range body.Instructions {
		if def := instr.Def(); def.Valid() && !body.ValidTemp(def) {
			return errz.Invariantf(errz.E1003, idx, int(def), "defined temp is outside the temp table (%d temps)", body.TempCount())
		}
		for _, used := range instr.Uses() {
			if !body.ValidTemp(used) {
				return errz.Invariantf(errz.E1003, idx, int(used), "used temp is outside the temp table (%d temps)", body.TempCount())
			}
		}
	}
	return nil
}

// checkSlotMaterialization verifies that every temp mapped to a variable
// slot is defined by at least one instruction. A slot temp without a
// definition would read an uninitialized local.
func checkSlotMaterialization(body *lir.MethodBody) *errz.StructuredError {
	defined := make([]bool, body.TempCount())
	for _, instr := range body.Instructions {
		if def := instr.Def(); body.ValidTemp(def) {
			defined[def] = true
		}
	}
	for t, slot := range body.TempVariableSlots {
		if slot < 0 || t >= len(defined) || defined[t] {
			continue
		}
		return errz.Invariantf(errz.E1001, firstUse(body, lir.Temp(t)), t,
			"temp is mapped to variable slot %d (%s) but is never defined", slot, body.VariableName(slot))
	}
	return nil
}

func firstUse(body *lir.MethodBody, t lir.Temp) int {
	for idx, instr := range body.Instructions {
		for _, used := range instr.Uses() {
			if used == t {
				return idx
			}
		}
	}
	return -1
}

// checkNumericLowering verifies that operands of raw numeric instructions
// are unboxed doubles.
func checkNumericLowering(body *lir.MethodBody) *errz.StructuredError {
	for idx, instr := range body.Instructions {
		var operands []lir.Temp
		switch i := instr.(type) {
		case *lir.BinaryNumber:
			operands = []lir.Temp{i.Left, i.Right}
		case *lir.CompareNumber:
			operands = []lir.Temp{i.Left, i.Right}
		case *lir.NegateNumber:
			operands = []lir.Temp{i.Value}
		default:
			continue
		}
		for _, operand := range operands {
			if storage := body.StorageOf(operand); !storage.IsDouble() {
				return errz.Invariantf(errz.E1002, idx, int(operand),
					"operand of %s has storage %s, want unboxed double", lir.Format(instr), storage)
			}
		}
	}
	return nil
}
