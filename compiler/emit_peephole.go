package compiler

import (
	"github.com/tomacox74/js2il-sub000/errz"
	"github.com/tomacox74/js2il-sub000/lir"
	"github.com/tomacox74/js2il-sub000/op"
	"github.com/tomacox74/js2il-sub000/peephole"
)

// emitWindow emits a matched console.log window as one sequence: the
// receiver, a fresh argument vector filled in place, and the call.
func (e *emitter) emitWindow(w *peephole.Window) {
	global, ok := e.body.Instructions[w.Start].(*lir.GetIntrinsicGlobal)
	if !ok {
		panic(errz.Unsupportedf(errz.E2001, w.Start, "window does not start with a global lookup"))
	}
	call, ok := e.body.Instructions[w.Call].(*lir.CallIntrinsic)
	if !ok {
		panic(errz.Unsupportedf(errz.E2001, w.Call, "window does not end with an intrinsic call"))
	}
	e.checkArgs(len(w.Args))
	e.asm.emitName(op.LdGlobal, global.Name)
	e.asm.ldI4(len(w.Args))
	e.asm.emit(op.NewArr)
	if w.Update != nil {
		e.emitFusedUpdate(w.Update)
	} else {
		for n, arg := range w.Args {
			e.asm.emit(op.Dup)
			e.asm.ldI4(n)
			e.load(arg, lir.Object)
			e.asm.emit(op.StElem)
		}
	}
	e.asm.emitName(op.CallMemberArgs, call.Method)
	e.finishResult(w.Result, lir.Object)
}

// emitFusedUpdate stores the increment or decrement of a double variable
// and its logged value into element 0 of the vector on the stack.
func (e *emitter) emitFusedUpdate(u *peephole.Update) {
	local := e.varBase + u.Slot
	arith := op.Add
	if u.Op == lir.SubNumber {
		arith = op.Sub
	}
	e.asm.emit(op.Dup)
	e.asm.ldI4(0)
	e.asm.emit(op.LdLoc, local)
	if u.Prefix {
		e.asm.ldF64(1)
		e.asm.emit(arith)
		e.asm.emit(op.Dup)
		e.asm.emit(op.StLoc, local)
	} else {
		e.asm.emit(op.Dup)
		e.asm.ldF64(1)
		e.asm.emit(arith)
		e.asm.emit(op.StLoc, local)
	}
	e.asm.emit(op.BoxF)
	e.asm.emit(op.StElem)
}
