package compiler

import (
	"github.com/tomacox74/js2il-sub000/bytecode"
	"github.com/tomacox74/js2il-sub000/errz"
	"github.com/tomacox74/js2il-sub000/lir"
	"github.com/tomacox74/js2il-sub000/op"
	"github.com/tomacox74/js2il-sub000/registry"
)

type suspendKind uint8

const (
	generatorKind suspendKind = iota + 1
	asyncKind
	asyncAwaitKind
	asyncGeneratorKind
)

// suspension is the resumable layout of a generator or async method.
//
// A resumable method is entered twice over: once by its caller, which
// creates the leaf scope and returns a generator or promise, and then once
// per resumption through a closure over the scopes array with the leaf
// scope prepended. A resumed entry is recognized by finding the leaf scope
// at element 0 of the scopes array.
type suspension struct {
	kind suspendKind
	self registry.CallableInfo

	// genCases[0] starts the body; genCases[k] resumes after yield k.
	genCases []label
	// asyncCases[0] starts the body (or the generator dispatch);
	// asyncCases[n] resumes after await n.
	asyncCases []label
	// resume maps the index of a Yield or Await to its case number.
	resume map[int]int
	done   label

	// wrapped methods run their body inside a catch-all region that
	// settles the promise.
	wrapped    bool
	tryStart   label
	handler    label
	handlerEnd label
}

// prependsLeaf is true for shapes whose leaf scope outlives a single entry.
func (s *suspension) prependsLeaf() bool {
	return s.kind != asyncKind
}

func (s *suspension) resumeCount() int {
	return len(s.genCases) - 1 + len(s.asyncCases) - 1
}

// planSuspension classifies a suspendable method and allocates its resume
// labels. It returns nil for ordinary methods.
func (e *emitter) planSuspension() *suspension {
	b := e.body
	for idx, instr := range b.Instructions {
		switch instr.(type) {
		case *lir.Yield:
			if !b.IsGenerator {
				panic(errz.Unsupportedf(errz.E2001, idx, "yield outside a generator"))
			}
		case *lir.Await:
			if !b.IsAsync {
				panic(errz.Unsupportedf(errz.E2001, idx, "await outside an async function"))
			}
		}
	}
	if !b.IsSuspendable() {
		return nil
	}
	s := &suspension{resume: map[int]int{}, wrapped: b.IsAsync}
	switch {
	case b.IsGenerator && b.IsAsync:
		s.kind = asyncGeneratorKind
	case b.IsGenerator:
		s.kind = generatorKind
	case b.HasAwaits:
		s.kind = asyncAwaitKind
	default:
		s.kind = asyncKind
	}
	if b.IsGenerator && e.desc.Instance {
		panic(errz.Unsupportedf(errz.E2002, -1, "generator methods on class instances"))
	}
	if s.prependsLeaf() {
		if !e.desc.HasScopesParameter || b.LeafScope == "" {
			panic(errz.Unsupportedf(errz.E2002, -1, "resumable method needs a leaf scope and a scopes parameter"))
		}
		info, ok := e.res.Callable(lir.CallableID(b.Name))
		if !ok {
			panic(errz.Fatalf(errz.E3002, -1, -1, "resumable method %q is not registered", b.Name))
		}
		s.self = info
	}

	s.genCases = []label{e.asm.newLabel()}
	s.asyncCases = []label{e.asm.newLabel()}
	for idx, instr := range b.Instructions {
		switch instr.(type) {
		case *lir.Yield:
			s.resume[idx] = len(s.genCases)
			s.genCases = append(s.genCases, e.asm.newLabel())
		case *lir.Await:
			if s.kind == asyncKind {
				continue
			}
			s.resume[idx] = len(s.asyncCases)
			s.asyncCases = append(s.asyncCases, e.asm.newLabel())
		}
	}
	s.done = e.asm.newLabel()
	if s.wrapped {
		s.tryStart = e.asm.newLabel()
		s.handler = e.asm.newLabel()
		s.handlerEnd = e.asm.newLabel()
	}
	return s
}

// Leaf-scope field helpers. Each leaves the stack as it found it.

func (e *emitter) setStateField(field string, v int) {
	e.loadLeaf()
	e.asm.ldI4(v)
	e.asm.emitName(op.StFld, field)
}

func (e *emitter) setFlagField(field string, v bool) {
	e.loadLeaf()
	if v {
		e.asm.emit(op.LdTrue)
	} else {
		e.asm.emit(op.LdFalse)
	}
	e.asm.emitName(op.StFld, field)
}

func (e *emitter) loadLeafField(field string) {
	e.loadLeaf()
	e.asm.emitName(op.LdFld, field)
}

// loadPromise pushes the promise of the method's deferred.
func (e *emitter) loadPromise() {
	e.loadLeafField(registry.FieldDeferred)
	e.asm.emitName(op.LdFld, registry.FieldPromise)
}

// settleDeferred calls resolve or reject on the method's deferred with the
// value pushed by value.
func (e *emitter) settleDeferred(method string, value func()) {
	e.loadLeafField(registry.FieldDeferred)
	value()
	e.asm.emitName(op.CallMember, method, 1)
	e.asm.emit(op.Pop)
}

func (e *emitter) iterResult(value func(), done bool) {
	value()
	if done {
		e.asm.emit(op.LdTrue)
	} else {
		e.asm.emit(op.LdFalse)
	}
	e.callHelper(registry.HelperIterResult, 2)
}

// pushArgsVector pushes the method's own declared arguments as an object[].
func (e *emitter) pushArgsVector() {
	n := len(e.desc.Params)
	e.checkArgs(n)
	e.asm.ldI4(n)
	e.asm.emit(op.NewArr)
	for p := 0; p < n; p++ {
		e.asm.emit(op.Dup)
		e.asm.ldI4(p)
		e.asm.emit(op.LdArg, e.desc.ParamArgIndex(p))
		e.asm.emit(op.StElem)
	}
}

// spill saves every local except the leaf scope into the leaf scope.
func (e *emitter) spill() {
	for local := 1; local < len(e.locals); local++ {
		e.loadLeaf()
		e.asm.emit(op.LdLoc, local)
		switch e.locals[local].Kind {
		case bytecode.LocalDouble:
			e.asm.emit(op.BoxF)
		case bytecode.LocalBool:
			e.asm.emit(op.BoxB)
		}
		e.asm.emitName(op.StFld, registry.SpillField(local))
	}
	e.setFlagField(registry.FieldSpilled, true)
}

// restore reloads the locals saved by spill, if any were saved.
func (e *emitter) restore() {
	skip := e.asm.newLabel()
	e.loadLeafField(registry.FieldSpilled)
	e.asm.branch(op.BrFalse, skip)
	for local := 1; local < len(e.locals); local++ {
		e.loadLeafField(registry.SpillField(local))
		switch e.locals[local].Kind {
		case bytecode.LocalDouble:
			e.asm.emit(op.UnboxF)
		case bytecode.LocalBool:
			e.asm.emit(op.UnboxB)
		}
		e.asm.emit(op.StLoc, local)
	}
	e.asm.mark(skip)
}

// enterLeaf emits the entry check shared by every resumable shape: on a
// resumed entry it jumps to resumed with the leaf scope stored in local 0;
// on a first entry it falls through with a fresh leaf scope prepended to the
// scopes array.
func (e *emitter) enterLeaf(resumed label) {
	scopes := e.scopesArg()
	leafType := registry.ScopeTypeName(e.body.LeafScope)

	e.asm.emit(op.LdArg, scopes)
	e.asm.ldI4(0)
	e.asm.emit(op.LdElem)
	e.asm.emitName(op.IsInst, leafType)
	e.asm.emit(op.Dup)
	e.asm.branch(op.BrTrue, resumed)
	e.asm.emit(op.Pop)
	e.asm.emitName(op.NewObj, leafType, 0)
	e.asm.emit(op.StLoc, e.leafLocal)
}

func (e *emitter) prependLeaf() {
	scopes := e.scopesArg()
	e.loadLeaf()
	e.asm.emit(op.LdArg, scopes)
	e.callHelper(registry.HelperPrependScope, 2)
	e.asm.emit(op.StArg, scopes)
}

// closeOverSelf pushes a closure that re-enters this method with the
// current scopes array.
func (e *emitter) closeOverSelf() {
	e.asm.emit(op.LdArg, e.scopesArg())
	e.asm.emit(op.MkClosure, int(e.susp.self.Token))
}

func (e *emitter) emitSuspendPrologue() {
	s := e.susp
	switch s.kind {
	case generatorKind:
		resumed := e.asm.newLabel()
		e.enterLeaf(resumed)
		e.setStateField(registry.FieldGenState, 0)
		e.prependLeaf()
		e.closeOverSelf()
		e.pushArgsVector()
		e.asm.emitName(op.NewObj, registry.TypeGenerator, 2)
		e.asm.emit(op.Ret)

		e.asm.mark(resumed)
		e.asm.emit(op.StLoc, e.leafLocal)
		e.restore()
		e.emitGeneratorDispatch()

	case asyncGeneratorKind:
		resumed := e.asm.newLabel()
		e.enterLeaf(resumed)
		e.setStateField(registry.FieldGenState, 0)
		e.setStateField(registry.FieldAsyncState, 0)
		e.prependLeaf()
		e.loadLeaf()
		e.closeOverSelf()
		e.asm.emitName(op.StFld, registry.FieldMoveNext)
		e.loadLeaf()
		e.pushArgsVector()
		e.asm.emitName(op.StFld, registry.FieldArgs)
		e.loadLeafField(registry.FieldMoveNext)
		e.loadLeafField(registry.FieldArgs)
		e.asm.emitName(op.NewObj, registry.TypeAsyncGenerator, 2)
		e.asm.emit(op.Ret)

		e.asm.mark(resumed)
		e.asm.emit(op.StLoc, e.leafLocal)
		e.restore()
		e.asm.mark(s.tryStart)
		e.inOuterTry = true
		e.loadLeafField(registry.FieldAsyncState)
		e.asm.switchTo(s.asyncCases)
		e.asm.branch(op.Br, s.done)
		e.asm.mark(s.asyncCases[0])
		e.emitGeneratorDispatch()

	case asyncAwaitKind:
		resumed := e.asm.newLabel()
		e.enterLeaf(resumed)
		e.setStateField(registry.FieldAsyncState, 0)
		e.prependLeaf()
		e.loadLeaf()
		e.asm.emitName(op.NewObj, registry.TypeDeferred, 0)
		e.asm.emitName(op.StFld, registry.FieldDeferred)
		e.loadLeaf()
		e.pushArgsVector()
		e.asm.emitName(op.StFld, registry.FieldArgs)
		e.loadLeaf()
		e.closeOverSelf()
		e.asm.emitName(op.StFld, registry.FieldMoveNext)
		e.asm.branch(op.Br, s.asyncCases[0])

		e.asm.mark(resumed)
		e.asm.emit(op.StLoc, e.leafLocal)
		e.restore()
		e.loadLeafField(registry.FieldAsyncState)
		e.asm.switchTo(s.asyncCases)
		e.loadPromise()
		e.asm.emit(op.Ret)

		e.asm.mark(s.asyncCases[0])
		e.asm.mark(s.tryStart)
		e.inOuterTry = true

	case asyncKind:
		e.asm.mark(s.tryStart)
		e.inOuterTry = true
	}
}

// emitGeneratorDispatch jumps to the resume point of the current generator
// state. Finished or unknown states go to the done epilogue.
func (e *emitter) emitGeneratorDispatch() {
	s := e.susp
	e.loadLeafField(registry.FieldGenState)
	e.asm.switchTo(s.genCases)
	e.asm.branch(op.Br, s.done)
	e.asm.mark(s.genCases[0])
}

// emitYield suspends a generator with an incomplete iterator result. On
// resumption it honors pending return and throw requests, then pushes the
// value sent by the caller.
func (e *emitter) emitYield(y *lir.Yield) lir.Storage {
	s := e.susp
	k, ok := s.resume[e.idx]
	if !ok {
		panic(errz.Unsupportedf(errz.E2001, e.idx, "yield outside a generator"))
	}
	value := func() {
		if y.Value.Valid() {
			e.load(y.Value, lir.Object)
		} else {
			e.asm.emit(op.LdUndef)
		}
	}
	e.setStateField(registry.FieldGenState, k)
	e.spill()
	if s.kind == generatorKind {
		e.iterResult(value, false)
		e.asm.emit(op.Ret)
	} else {
		e.settleDeferred("resolve", func() { e.iterResult(value, false) })
		e.loadPromise()
		e.asm.emit(op.Ret)
	}

	e.asm.mark(s.genCases[k])
	if y.HandleThrowReturn {
		noReturn := e.asm.newLabel()
		noThrow := e.asm.newLabel()

		e.loadLeafField(registry.FieldHasReturn)
		e.asm.branch(op.BrFalse, noReturn)
		e.setFlagField(registry.FieldHasReturn, false)
		e.completeGenerator(func() { e.loadLeafField(registry.FieldReturnValue) })

		e.asm.mark(noReturn)
		e.loadLeafField(registry.FieldHasResumeException)
		e.asm.branch(op.BrFalse, noThrow)
		e.setFlagField(registry.FieldHasResumeException, false)
		e.loadLeafField(registry.FieldResumeException)
		e.callHelper(registry.HelperCreateThrowable, 1)
		e.asm.emit(op.Throw)

		e.asm.mark(noThrow)
	}
	e.loadLeafField(registry.FieldResumeValue)
	return lir.Object
}

// emitAwait suspends until the awaited value settles. The continuation
// stores the outcome in a per-await field and re-enters the method.
func (e *emitter) emitAwait(a *lir.Await) lir.Storage {
	s := e.susp
	if s.kind == asyncKind {
		e.load(a.Value, lir.Object)
		e.callHelper(registry.HelperAwaitValue, 1)
		return lir.Object
	}
	n, ok := s.resume[e.idx]
	if !ok {
		panic(errz.Unsupportedf(errz.E2001, e.idx, "await outside an async function"))
	}
	e.setStateField(registry.FieldAsyncState, n)
	e.loadLeaf()
	e.load(a.Value, lir.Object)
	e.asm.ldStr(registry.AwaitedField(n))
	e.callHelper(registry.HelperAwaitContinue, 3)
	e.asm.emit(op.Pop)
	e.spill()
	e.loadPromise()
	e.asm.emit(op.Ret)

	e.asm.mark(s.asyncCases[n])
	if s.kind == asyncGeneratorKind {
		e.setStateField(registry.FieldAsyncState, 0)
	}
	e.loadLeaf()
	e.callHelper(registry.HelperThrowIfResumeException, 1)
	e.asm.emit(op.Pop)
	e.loadLeafField(registry.AwaitedField(n))
	return lir.Object
}

// completeGenerator finishes a generator with a done iterator result.
func (e *emitter) completeGenerator(value func()) {
	e.setStateField(registry.FieldGenState, -1)
	e.setFlagField(registry.FieldDone, true)
	if e.susp.kind == generatorKind {
		e.iterResult(value, true)
		e.emitRet()
		return
	}
	e.settleDeferred("resolve", func() { e.iterResult(value, true) })
	e.loadPromise()
	e.emitRet()
}

// completeAsync settles the promise of an async function with value.
func (e *emitter) completeAsync(value func()) {
	if e.susp.kind == asyncKind {
		value()
		e.callHelper(registry.HelperPromiseResolve, 1)
		e.emitRet()
		return
	}
	e.setStateField(registry.FieldAsyncState, -1)
	e.settleDeferred("resolve", value)
	e.loadPromise()
	e.emitRet()
}

func (e *emitter) emitSuspendReturn(value func()) {
	switch e.susp.kind {
	case generatorKind, asyncGeneratorKind:
		e.completeGenerator(value)
	default:
		e.completeAsync(value)
	}
}

// emitSuspendEpilogue emits the implicit completion at the end of the body
// and, for async methods, the handler that rejects the promise.
func (e *emitter) emitSuspendEpilogue() {
	s := e.susp
	undefined := func() { e.asm.emit(op.LdUndef) }
	switch s.kind {
	case generatorKind, asyncGeneratorKind:
		e.asm.mark(s.done)
		e.completeGenerator(undefined)
	default:
		if e.asm.reachableEnd() {
			e.completeAsync(undefined)
		}
	}
	if !s.wrapped {
		return
	}

	e.inOuterTry = false
	e.asm.mark(s.handler)
	e.asm.emit(op.StLoc, e.exLocal)
	e.emitUnwrap(func() { e.asm.emit(op.LdLoc, e.exLocal) })
	e.asm.emit(op.StLoc, e.exLocal)
	reason := func() { e.asm.emit(op.LdLoc, e.exLocal) }
	switch s.kind {
	case asyncKind:
		reason()
		e.callHelper(registry.HelperPromiseReject, 1)
	case asyncAwaitKind:
		e.setStateField(registry.FieldAsyncState, -1)
		e.settleDeferred("reject", reason)
		e.loadPromise()
	case asyncGeneratorKind:
		e.setStateField(registry.FieldGenState, -1)
		e.setFlagField(registry.FieldDone, true)
		e.settleDeferred("reject", reason)
		e.loadPromise()
	}
	e.asm.emit(op.StLoc, e.retLocal)
	e.asm.branch(op.Leave, e.epilogue)
	e.usesEpilogue = true
	e.asm.mark(s.handlerEnd)

	e.extraRegions = append(e.extraRegions, bytecode.ExceptionRegion{
		Kind:         bytecode.RegionCatch,
		TryStart:     e.asm.labels[s.tryStart],
		TryEnd:       e.asm.labels[s.handler],
		HandlerStart: e.asm.labels[s.handler],
		HandlerEnd:   e.asm.labels[s.handlerEnd],
	})
}
