package compiler

import (
	"sort"

	"github.com/tomacox74/js2il-sub000/alloc"
	"github.com/tomacox74/js2il-sub000/analysis"
	"github.com/tomacox74/js2il-sub000/bytecode"
	"github.com/tomacox74/js2il-sub000/errz"
	"github.com/tomacox74/js2il-sub000/lir"
	"github.com/tomacox74/js2il-sub000/op"
	"github.com/tomacox74/js2il-sub000/peephole"
	"github.com/tomacox74/js2il-sub000/registry"
)

// emitter lowers one method body. It is used once and then discarded.
type emitter struct {
	body *lir.MethodBody
	desc lir.MethodDescriptor
	res  registry.Resolver
	cfg  Config
	asm  *assembler

	x          *analysis.Index
	stackable  analysis.StackifyResult
	branchCond []bool
	peep       *peephole.Analysis
	alloc      alloc.Allocation

	locals     []bytecode.LocalType
	localNames []string
	leafLocal  int
	varBase    int
	tempBase   int
	retLocal   int
	exLocal    int

	labels      map[int]label
	labelIndex  map[int]int
	protected   []bool
	catchStarts map[int]bool

	// extraRegions are added by the lowering itself and enclose every
	// region of the body.
	extraRegions []bytecode.ExceptionRegion
	epilogue     label
	usesEpilogue bool

	susp *suspension

	idx              int
	depth            int
	pendingException bool
	inOuterTry       bool
}

func newEmitter(body *lir.MethodBody, desc lir.MethodDescriptor, res registry.Resolver, cfg Config) *emitter {
	return &emitter{
		body:        body,
		desc:        desc,
		res:         res,
		cfg:         cfg,
		asm:         newAssembler(),
		leafLocal:   -1,
		retLocal:    -1,
		exLocal:     -1,
		labels:      map[int]label{},
		labelIndex:  map[int]int{},
		catchStarts: map[int]bool{},
	}
}

func (e *emitter) compile() *bytecode.Code {
	e.analyze()
	e.indexLabels()
	e.checkConstructor()
	e.susp = e.planSuspension()
	e.layoutLocals()
	e.epilogue = e.asm.newLabel()

	e.idx = -1
	e.asm.instr = -1
	if e.susp != nil {
		e.emitSuspendPrologue()
	}
	e.emitBody()
	e.idx = len(e.body.Instructions)
	e.asm.instr = -1
	if e.pendingException {
		e.asm.emit(op.Pop)
		e.pendingException = false
	}
	if e.susp != nil {
		e.emitSuspendEpilogue()
	} else if e.asm.reachableEnd() {
		e.asm.emit(op.LdUndef)
		e.emitRet()
	}
	if e.usesEpilogue {
		e.asm.mark(e.epilogue)
		e.asm.emit(op.LdLoc, e.retLocal)
		e.asm.emit(op.Ret)
	}
	e.asm.resolve()

	regions := e.buildRegions()
	maxStack, err := bytecode.Verify(e.asm.code, regions)
	if err != nil {
		panic(errz.Fatalf(errz.E3005, -1, -1, "%v", err).WithCause(err))
	}
	resumeCount := 0
	if e.susp != nil {
		resumeCount = e.susp.resumeCount()
	}
	return bytecode.NewCode(bytecode.CodeParams{
		Name:           e.body.Name,
		Instructions:   e.asm.code,
		Constants:      e.asm.constants,
		Names:          e.asm.names,
		ParamCount:     e.desc.ArgCount(),
		HasScopes:      e.desc.HasScopesParameter,
		IsInstance:     e.desc.Instance,
		IsConstructor:  e.desc.IsConstructor,
		MaxStack:       maxStack,
		Locals:         e.locals,
		LocalNames:     e.localNames,
		Regions:        regions,
		SequencePoints: e.asm.points,
		ResumeCount:    resumeCount,
	})
}

// checkConstructor rejects constructor shapes NewUser cannot invoke.
func (e *emitter) checkConstructor() {
	if !e.desc.IsConstructor {
		return
	}
	if !e.desc.Instance {
		panic(errz.Fatalf(errz.E3010, -1, -1, "constructor %q is not an instance method", e.body.Name))
	}
	if e.body.IsSuspendable() {
		panic(errz.Unsupportedf(errz.E2002, -1, "generator or async constructor"))
	}
}

// analyze runs the placement analyses and allocates temp slots.
func (e *emitter) analyze() {
	e.x = analysis.NewIndex(e.body)
	e.stackable = e.x.Stackify()
	e.branchCond = e.x.BranchConditions()
	if e.cfg.Peephole {
		e.peep = peephole.MaskIndexed(e.x)
	}
	mask := make([]bool, e.body.TempCount())
	for i := range mask {
		t := lir.Temp(i)
		mask[i] = e.x.HasUses(t) &&
			!e.stackable.IsStackable(t) &&
			!e.peep.IsAbsorbed(t) &&
			!e.body.IsVariableBacked(t) &&
			!e.branchCond[i]
	}
	e.alloc = alloc.AllocateIndexed(e.x, mask)
}

func (e *emitter) windowCount() int {
	if e.peep == nil {
		return 0
	}
	return len(e.peep.Windows)
}

// indexLabels assigns an assembler label to every LIR label and records
// which instructions lie inside an exception region.
func (e *emitter) indexLabels() {
	for idx, instr := range e.body.Instructions {
		l, ok := instr.(*lir.Label)
		if !ok {
			continue
		}
		if _, exists := e.labelIndex[l.ID]; exists {
			panic(errz.Fatalf(errz.E3007, idx, -1, "label L%d defined twice", l.ID))
		}
		e.labelIndex[l.ID] = idx
		e.labels[l.ID] = e.asm.newLabel()
	}
	e.protected = make([]bool, len(e.body.Instructions))
	for _, r := range e.body.Regions {
		lo, hi := len(e.body.Instructions), 0
		for _, id := range []int{r.TryStart, r.TryEnd, r.HandlerStart, r.HandlerEnd} {
			idx, ok := e.labelIndex[id]
			if !ok {
				panic(errz.Fatalf(errz.E3007, -1, -1, "exception region refers to unknown label L%d", id))
			}
			lo, hi = min(lo, idx), max(hi, idx)
		}
		for idx := lo; idx < hi; idx++ {
			e.protected[idx] = true
		}
		if r.Kind == lir.Catch {
			e.catchStarts[r.HandlerStart] = true
		}
	}
}

func (e *emitter) label(id int) label {
	l, ok := e.labels[id]
	if !ok {
		panic(errz.Fatalf(errz.E3007, e.idx, -1, "unknown label L%d", id))
	}
	return l
}

func (e *emitter) addLocal(t bytecode.LocalType, name string) int {
	e.locals = append(e.locals, t)
	e.localNames = append(e.localNames, name)
	return len(e.locals) - 1
}

func (e *emitter) layoutLocals() {
	if e.body.LeafScope != "" {
		e.leafLocal = e.addLocal(bytecode.LocalType{Kind: bytecode.LocalScope, Type: e.body.LeafScope}, "$scope")
	}
	e.varBase = len(e.locals)
	for slot := 0; slot < e.body.VariableCount(); slot++ {
		e.addLocal(e.localType(e.body.VariableStorage(slot)), e.body.VariableName(slot))
	}
	e.tempBase = len(e.locals)
	for _, s := range e.alloc.SlotStorages {
		e.addLocal(e.localType(s), "")
	}
	if len(e.body.Regions) > 0 || e.susp != nil {
		e.retLocal = e.addLocal(bytecode.LocalType{Kind: bytecode.LocalObject}, "$ret")
	}
	if e.susp != nil && e.susp.wrapped {
		e.exLocal = e.addLocal(bytecode.LocalType{Kind: bytecode.LocalObject}, "$ex")
	}
}

func (e *emitter) localType(s lir.Storage) bytecode.LocalType {
	switch {
	case s.IsDouble():
		return bytecode.LocalType{Kind: bytecode.LocalDouble}
	case s.IsBool():
		return bytecode.LocalType{Kind: bytecode.LocalBool}
	case s.IsUnboxed():
		panic(errz.Unsupportedf(errz.E2003, -1, "no local representation for %s", s))
	case s.Scope != "":
		return bytecode.LocalType{Kind: bytecode.LocalScope, Type: s.Scope}
	case s.Type == "" || s.Type == lir.TypeObject:
		return bytecode.LocalType{Kind: bytecode.LocalObject}
	case s.Type == lir.TypeString:
		return bytecode.LocalType{Kind: bytecode.LocalString}
	}
	return bytecode.LocalType{Kind: bytecode.LocalTyped, Type: s.Type}
}

func (e *emitter) buildRegions() []bytecode.ExceptionRegion {
	regions := make([]bytecode.ExceptionRegion, 0, len(e.body.Regions)+len(e.extraRegions))
	for _, r := range e.body.Regions {
		kind := bytecode.RegionCatch
		if r.Kind == lir.Finally {
			kind = bytecode.RegionFinally
		}
		regions = append(regions, bytecode.ExceptionRegion{
			Kind:         kind,
			TryStart:     e.asm.position(e.label(r.TryStart)),
			TryEnd:       e.asm.position(e.label(r.TryEnd)),
			HandlerStart: e.asm.position(e.label(r.HandlerStart)),
			HandlerEnd:   e.asm.position(e.label(r.HandlerEnd)),
			CatchType:    r.CatchType,
		})
	}
	// Innermost first: a nested try range is strictly shorter than the
	// range enclosing it.
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].TryEnd-regions[i].TryStart < regions[j].TryEnd-regions[j].TryStart
	})
	return append(regions, e.extraRegions...)
}

func (e *emitter) emitBody() {
	for idx, instr := range e.body.Instructions {
		e.idx = idx
		e.asm.instr = idx
		if w, ok := e.peep.Covering(idx); ok {
			if sp, ok := instr.(*lir.SequencePoint); ok {
				e.asm.sequencePoint(sp.Span)
			}
			if idx == w.Call {
				e.emitWindow(w)
			}
			continue
		}
		e.emitInstruction(instr)
	}
}

func (e *emitter) emitInstruction(instr lir.Instruction) {
	if e.pendingException {
		switch instr.(type) {
		case *lir.StoreException, *lir.SequencePoint, *lir.BeginInitArrayElement:
		default:
			e.asm.emit(op.Pop)
			e.pendingException = false
		}
	}
	switch i := instr.(type) {
	case *lir.Label:
		e.asm.mark(e.label(i.ID))
		if e.catchStarts[i.ID] {
			e.pendingException = true
		}
	case *lir.SequencePoint:
		e.asm.sequencePoint(i.Span)
	case *lir.BeginInitArrayElement:
	case *lir.CreateLeafScope:
		e.emitCreateLeafScope()
	case *lir.Branch:
		e.asm.branch(op.Br, e.label(i.Target))
	case *lir.BranchIfTrue:
		e.emitCondBranch(i.Cond, i.Target, true)
	case *lir.BranchIfFalse:
		e.emitCondBranch(i.Cond, i.Target, false)
	case *lir.Return:
		e.emitReturn(i)
	case *lir.Leave:
		e.asm.branch(op.Leave, e.label(i.Target))
	case *lir.EndFinally:
		e.asm.emit(op.EndFinally)
	case *lir.Throw:
		e.load(i.Value, lir.Object)
		e.callHelper(registry.HelperCreateThrowable, 1)
		e.asm.emit(op.Throw)
	case *lir.ThrowTypeError:
		e.asm.ldStr(i.Message)
		e.asm.emitName(op.NewObj, registry.TypeTypeError, 1)
		e.callHelper(registry.HelperCreateThrowable, 1)
		e.asm.emit(op.Throw)
	case *lir.StoreException:
		if !e.pendingException {
			panic(errz.Unsupportedf(errz.E2001, e.idx, "exception store outside a catch handler"))
		}
		e.pendingException = false
		e.finishResult(i.Result, lir.Object)
	case *lir.StoreElementRef:
		e.load(i.Array, lir.ObjectArray)
		e.asm.ldI4(i.Index)
		e.load(i.Value, lir.Object)
		e.asm.emit(op.StElem)
	case *lir.StoreScopeField:
		e.emitStoreScopeField(i)
	case *lir.StoreInstanceField:
		e.emitStoreInstanceField(i)
	case *lir.SetItem:
		e.emitSetItem(i)
	case *lir.CallBaseConstructor:
		e.emitCallBaseConstructor(i)
	default:
		def := instr.Def()
		if !e.needsEmission(instr, def) {
			return
		}
		have := e.emitValue(instr)
		e.finishResult(def, have)
	}
}

// needsEmission decides what happens at the definition site of a value:
// emitted and stored, emitted and discarded, or skipped because every use
// regenerates it.
func (e *emitter) needsEmission(instr lir.Instruction, def lir.Temp) bool {
	switch {
	case e.body.IsVariableBacked(def), e.alloc.IsMaterialized(def):
		return true
	case !e.x.HasUses(def):
		return !e.x.IsPure(instr) || e.defersEffect(instr, 0)
	case e.regenerable(instr):
		return false
	}
	panic(errz.Fatalf(errz.E3008, e.idx, int(def), "%s has uses but neither a slot nor a regenerable definition", def))
}

// finishResult disposes of a value just pushed for t.
func (e *emitter) finishResult(t lir.Temp, have lir.Storage) {
	switch {
	case !e.body.ValidTemp(t):
		e.asm.emit(op.Pop)
	case e.body.IsVariableBacked(t):
		slot := e.body.VariableSlot(t)
		e.coerce(have, e.body.VariableStorage(slot))
		e.asm.emit(op.StLoc, e.varBase+slot)
	case e.alloc.IsMaterialized(t):
		e.coerce(have, e.body.StorageOf(t))
		e.asm.emit(op.StLoc, e.tempBase+e.alloc.Slot(t))
	default:
		e.asm.emit(op.Pop)
	}
}

// regenerable is true for definitions that may be emitted at their use in
// place of their definition site.
func (e *emitter) regenerable(instr lir.Instruction) bool {
	if e.x.IsPure(instr) {
		return true
	}
	c, ok := instr.(*lir.CallTypedMember)
	return ok && e.stackable.IsStackable(c.Result)
}

// defersEffect is true if emitting instr also runs a side effect that was
// moved from its own definition site to this one.
func (e *emitter) defersEffect(instr lir.Instruction, depth int) bool {
	if depth > e.cfg.MaxInlineDepth {
		return false
	}
	for _, used := range instr.Uses() {
		if e.body.IsVariableBacked(used) || e.alloc.IsMaterialized(used) {
			continue
		}
		def := e.x.Def(used)
		if def == nil {
			continue
		}
		if _, ok := def.(*lir.CallTypedMember); ok && !e.x.IsPure(def) {
			return true
		}
		if e.defersEffect(def, depth+1) {
			return true
		}
	}
	return false
}

// discard evaluates a value that is not consumed, but only when doing so
// runs a deferred side effect.
func (e *emitter) discard(t lir.Temp) {
	if !e.body.ValidTemp(t) || e.body.IsVariableBacked(t) || e.alloc.IsMaterialized(t) {
		return
	}
	def := e.x.Def(t)
	if def == nil {
		return
	}
	if !e.regenerable(def) {
		return
	}
	if _, ok := def.(*lir.CallTypedMember); ok || e.defersEffect(def, 0) {
		e.load(t, lir.Object)
		e.asm.emit(op.Pop)
	}
}

// load pushes the value of t in the requested representation.
func (e *emitter) load(t lir.Temp, want lir.Storage) {
	e.coerce(e.loadRaw(t), want)
}

// loadRaw pushes the value of t and returns the representation it has on
// the stack.
func (e *emitter) loadRaw(t lir.Temp) lir.Storage {
	if !e.body.ValidTemp(t) {
		panic(errz.Fatalf(errz.E3001, e.idx, int(t), "operand %s is not in the temp table", t))
	}
	if slot := e.body.VariableSlot(t); slot >= 0 {
		e.asm.emit(op.LdLoc, e.varBase+slot)
		return e.body.VariableStorage(slot)
	}
	if slot := e.alloc.Slot(t); slot >= 0 {
		e.asm.emit(op.LdLoc, e.tempBase+slot)
		return e.alloc.SlotStorages[slot]
	}
	def := e.x.Def(t)
	if def == nil {
		panic(errz.Fatalf(errz.E3001, e.idx, int(t), "%s has no definition to regenerate", t))
	}
	if !e.regenerable(def) {
		panic(errz.Fatalf(errz.E3008, e.idx, int(t), "%s cannot be regenerated", t))
	}
	if e.depth >= e.cfg.MaxInlineDepth {
		panic(errz.Fatalf(errz.E3006, e.idx, int(t), "regenerating %s exceeds depth %d", t, e.cfg.MaxInlineDepth))
	}
	e.depth++
	defer func() { e.depth-- }()
	return e.emitValue(def)
}

// coerce converts the value on top of the stack from one representation to
// another.
func (e *emitter) coerce(have, want lir.Storage) {
	switch {
	case want.IsDouble():
		switch {
		case have.IsDouble():
		case have.IsBool():
			e.asm.emit(op.ConvF)
		case have.IsUnboxed():
			e.unsupportedRepresentation(have, want)
		default:
			e.asm.emit(op.UnboxF)
		}
	case want.IsBool():
		switch {
		case have.IsBool():
		case have.IsDouble():
			e.asm.emit(op.BoxF)
			e.callHelper(registry.HelperToBoolean, 1)
		case have.IsUnboxed():
			e.unsupportedRepresentation(have, want)
		default:
			e.asm.emit(op.UnboxB)
		}
	case want.IsUnboxed():
		e.unsupportedRepresentation(have, want)
	default:
		switch {
		case have.IsDouble():
			e.asm.emit(op.BoxF)
			have = lir.Ref(registry.TypeNumber)
		case have.IsBool():
			e.asm.emit(op.BoxB)
			have = lir.Ref(registry.TypeBoolean)
		case have.IsUnboxed():
			e.unsupportedRepresentation(have, want)
		}
		if name, ok := castTarget(have, want); ok {
			e.asm.emitName(op.CastClass, name)
		}
	}
}

// castTarget returns the runtime type a reference must be cast to before it
// can be used as want.
func castTarget(have, want lir.Storage) (string, bool) {
	switch {
	case want.Scope != "":
		if have.Scope == want.Scope {
			return "", false
		}
		return registry.ScopeTypeName(want.Scope), true
	case want.Type == "", want.Type == lir.TypeObject, want.Type == lir.TypeString,
		want.Type == lir.TypeObjectVector, want.Type == lir.TypeScope:
		return "", false
	case want.Type == have.Type:
		return "", false
	}
	return want.Type, true
}

func (e *emitter) unsupportedRepresentation(have, want lir.Storage) {
	panic(errz.Unsupportedf(errz.E2003, e.idx, "cannot convert %s to %s", have, want))
}

func (e *emitter) callHelper(name string, argc int) {
	e.asm.emitName(op.CallHelper, name, argc)
}

// vector pushes a new object[] holding the given values.
func (e *emitter) vector(values []lir.Temp) {
	e.asm.ldI4(len(values))
	e.asm.emit(op.NewArr)
	for i, v := range values {
		e.asm.emit(op.Dup)
		e.asm.ldI4(i)
		e.load(v, lir.Object)
		e.asm.emit(op.StElem)
	}
}

func (e *emitter) scopesArg() int {
	idx := e.desc.ScopesArgIndex()
	if idx < 0 {
		panic(errz.Fatalf(errz.E3004, e.idx, -1, "method has no scopes parameter"))
	}
	return idx
}

func (e *emitter) loadLeaf() {
	if e.leafLocal < 0 {
		panic(errz.Fatalf(errz.E3004, e.idx, -1, "method has no leaf scope"))
	}
	e.asm.emit(op.LdLoc, e.leafLocal)
}

// emitRet returns the value on top of the stack. Inside a protected region
// the value goes through the return local so that finally handlers run.
func (e *emitter) emitRet() {
	if e.retLocal >= 0 && e.isProtected() {
		e.asm.emit(op.StLoc, e.retLocal)
		e.asm.branch(op.Leave, e.epilogue)
		e.usesEpilogue = true
		return
	}
	e.asm.emit(op.Ret)
}

func (e *emitter) isProtected() bool {
	if e.inOuterTry {
		return true
	}
	return e.idx >= 0 && e.idx < len(e.protected) && e.protected[e.idx]
}
