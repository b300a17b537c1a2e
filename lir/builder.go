package lir

// Builder assembles a MethodBody. It is used by the LIR file loader and by
// tests; the front-end proper is an external collaborator.
type Builder struct {
	body        MethodBody
	labels      int
	inlineAwait bool
}

// NewBuilder returns a builder for a method with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{body: MethodBody{Name: name}}
}

// Temp allocates a temp with the given storage.
func (b *Builder) Temp(s Storage) Temp {
	b.body.TempStorages = append(b.body.TempStorages, s)
	return Temp(len(b.body.TempStorages) - 1)
}

// Variable declares a stable variable slot and returns its index.
func (b *Builder) Variable(name string, s Storage) int {
	b.body.VariableNames = append(b.body.VariableNames, name)
	b.body.VariableStorages = append(b.body.VariableStorages, s)
	return len(b.body.VariableStorages) - 1
}

// VariableTemp allocates a temp aliasing a variable slot.
func (b *Builder) VariableTemp(slot int) Temp {
	t := b.Temp(b.body.VariableStorage(slot))
	for len(b.body.TempVariableSlots) <= int(t) {
		b.body.TempVariableSlots = append(b.body.TempVariableSlots, -1)
	}
	b.body.TempVariableSlots[t] = slot
	return t
}

// SingleAssignment marks a variable slot as assigned exactly once.
func (b *Builder) SingleAssignment(slot int) *Builder {
	if b.body.SingleAssignmentSlots == nil {
		b.body.SingleAssignmentSlots = map[int]bool{}
	}
	b.body.SingleAssignmentSlots[slot] = true
	return b
}

// NewLabel allocates a label id.
func (b *Builder) NewLabel() int {
	id := b.labels
	b.labels++
	return id
}

// Emit appends instructions.
func (b *Builder) Emit(instrs ...Instruction) *Builder {
	b.body.Instructions = append(b.body.Instructions, instrs...)
	return b
}

// Mark appends a Label instruction for id.
func (b *Builder) Mark(id int) *Builder {
	return b.Emit(&Label{ID: id})
}

// Region adds an exception region.
func (b *Builder) Region(r ExceptionRegion) *Builder {
	b.body.Regions = append(b.body.Regions, r)
	return b
}

// LeafScope sets the scope type of the method's own scope.
func (b *Builder) LeafScope(name string) *Builder {
	b.body.LeafScope = name
	return b
}

// Generator marks the method as a generator.
func (b *Builder) Generator() *Builder {
	b.body.IsGenerator = true
	return b
}

// Async marks the method as async. HasAwaits is derived in Build.
func (b *Builder) Async() *Builder {
	b.body.IsAsync = true
	return b
}

// InlineAwaits leaves HasAwaits unset so that the method's awaits unwrap
// already settled values instead of suspending.
func (b *Builder) InlineAwaits() *Builder {
	b.inlineAwait = true
	return b
}

// Number emits a numeric constant into a new unboxed double temp.
func (b *Builder) Number(v float64) Temp {
	t := b.Temp(Double)
	b.Emit(&ConstNumber{Value: v, Result: t})
	return t
}

// String emits a string constant.
func (b *Builder) String(v string) Temp {
	t := b.Temp(String)
	b.Emit(&ConstString{Value: v, Result: t})
	return t
}

// Boolean emits a bool constant into a new unboxed bool temp.
func (b *Builder) Boolean(v bool) Temp {
	t := b.Temp(Bool)
	b.Emit(&ConstBool{Value: v, Result: t})
	return t
}

// Undefined emits the undefined constant.
func (b *Builder) Undefined() Temp {
	t := b.Temp(Object)
	b.Emit(&ConstUndefined{Result: t})
	return t
}

// Global emits an intrinsic global lookup.
func (b *Builder) Global(name string) Temp {
	t := b.Temp(Object)
	b.Emit(&GetIntrinsicGlobal{Name: name, Result: t})
	return t
}

// Box emits a boxing conversion of an unboxed temp.
func (b *Builder) Box(src Temp) Temp {
	t := b.Temp(Object)
	b.Emit(&Convert{Kind: Box, Source: src, Result: t})
	return t
}

// Build returns the finished body. The builder must not be used afterwards.
func (b *Builder) Build() *MethodBody {
	for len(b.body.TempVariableSlots) < len(b.body.TempStorages) {
		b.body.TempVariableSlots = append(b.body.TempVariableSlots, -1)
	}
	for _, instr := range b.body.Instructions {
		if _, ok := instr.(*Await); ok && !b.inlineAwait {
			b.body.HasAwaits = true
		}
	}
	body := b.body
	return &body
}
