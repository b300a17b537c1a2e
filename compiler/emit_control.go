package compiler

import (
	"github.com/tomacox74/js2il-sub000/lir"
	"github.com/tomacox74/js2il-sub000/op"
	"github.com/tomacox74/js2il-sub000/registry"
)

func (e *emitter) emitCondBranch(cond lir.Temp, target int, onTrue bool) {
	e.loadTruthiness(cond)
	if onTrue {
		e.asm.branch(op.BrTrue, e.label(target))
	} else {
		e.asm.branch(op.BrFalse, e.label(target))
	}
}

func (e *emitter) emitReturn(r *lir.Return) {
	value := func() {
		if r.Value.Valid() && !e.desc.ReturnsVoid {
			e.load(r.Value, lir.Object)
			return
		}
		e.discard(r.Value)
		e.asm.emit(op.LdUndef)
	}
	if e.susp != nil {
		e.emitSuspendReturn(value)
		return
	}
	value()
	e.emitRet()
}

// emitUnwrap converts a caught exception into the script value it carries.
// Thrown script values are unwrapped, runtime errors are passed through
// and anything else is rethrown.
func (e *emitter) emitUnwrap(load func()) {
	notThrown := e.asm.newLabel()
	notError := e.asm.newLabel()
	done := e.asm.newLabel()

	load()
	e.asm.emitName(op.IsInst, registry.TypeThrown)
	e.asm.emit(op.Dup)
	e.asm.branch(op.BrFalse, notThrown)
	e.asm.emitName(op.LdFld, registry.FieldThrownValue)
	e.asm.branch(op.Br, done)

	e.asm.mark(notThrown)
	e.asm.emit(op.Pop)
	load()
	e.asm.emitName(op.IsInst, registry.TypeError)
	e.asm.emit(op.Dup)
	e.asm.branch(op.BrFalse, notError)
	e.asm.branch(op.Br, done)

	e.asm.mark(notError)
	e.asm.emit(op.Pop)
	load()
	e.asm.emit(op.Throw)

	e.asm.mark(done)
}
