package lir

// RegionKind distinguishes catch and finally handlers.
type RegionKind uint8

const (
	Catch RegionKind = iota
	Finally
)

func (k RegionKind) String() string {
	if k == Finally {
		return "finally"
	}
	return "catch"
}

// ExceptionRegion describes a protected region by label ids. The try range
// runs from the TryStart label up to the TryEnd label; the handler runs from
// HandlerStart up to HandlerEnd.
type ExceptionRegion struct {
	Kind         RegionKind
	TryStart     int
	TryEnd       int
	HandlerStart int
	HandlerEnd   int
	CatchType    string
}

// MethodBody is the unit handed to the backend: one method in LIR form.
// It is treated as immutable by every consumer.
type MethodBody struct {
	Name         string
	Instructions []Instruction

	// TempStorages holds the storage of each temp; its length is the temp
	// count.
	TempStorages []Storage

	// TempVariableSlots maps a temp to the stable variable slot backing it,
	// or -1. It may be shorter than TempStorages.
	TempVariableSlots []int

	VariableNames    []string
	VariableStorages []Storage

	// SingleAssignmentSlots lists variable slots proven to be assigned once.
	SingleAssignmentSlots map[int]bool

	// LeafScope names the scope type of the method's own scope instance,
	// or is empty when the method has none.
	LeafScope string

	IsGenerator bool
	IsAsync     bool
	// HasAwaits selects the suspending lowering of an async method. Without
	// it an await unwraps a value that is already settled.
	HasAwaits bool

	Regions []ExceptionRegion
}

// TempCount returns the number of temps in the temp table.
func (b *MethodBody) TempCount() int {
	return len(b.TempStorages)
}

// ValidTemp returns true if t indexes the temp table.
func (b *MethodBody) ValidTemp(t Temp) bool {
	return t >= 0 && int(t) < len(b.TempStorages)
}

// StorageOf returns the storage of a temp; out-of-range temps are Unknown.
func (b *MethodBody) StorageOf(t Temp) Storage {
	if !b.ValidTemp(t) {
		return Storage{}
	}
	return b.TempStorages[t]
}

// VariableSlot returns the variable slot backing t, or -1.
func (b *MethodBody) VariableSlot(t Temp) int {
	if t < 0 || int(t) >= len(b.TempVariableSlots) {
		return -1
	}
	return b.TempVariableSlots[t]
}

// IsVariableBacked returns true if t aliases a stable variable slot.
func (b *MethodBody) IsVariableBacked(t Temp) bool {
	return b.VariableSlot(t) >= 0
}

// IsSingleAssignment returns true if the slot is proven assigned once.
func (b *MethodBody) IsSingleAssignment(slot int) bool {
	return b.SingleAssignmentSlots[slot]
}

// VariableCount returns the number of stable variable slots.
func (b *MethodBody) VariableCount() int {
	n := len(b.VariableStorages)
	for _, slot := range b.TempVariableSlots {
		if slot+1 > n {
			n = slot + 1
		}
	}
	return n
}

// VariableStorage returns the storage of a variable slot. Slots without a
// declared storage are Unknown references.
func (b *MethodBody) VariableStorage(slot int) Storage {
	if slot >= 0 && slot < len(b.VariableStorages) {
		return b.VariableStorages[slot]
	}
	return Storage{}
}

// VariableName returns the source name of a variable slot, if known.
func (b *MethodBody) VariableName(slot int) string {
	if slot >= 0 && slot < len(b.VariableNames) {
		return b.VariableNames[slot]
	}
	return ""
}

// IsSuspendable returns true for generators and async functions.
func (b *MethodBody) IsSuspendable() bool {
	return b.IsGenerator || b.IsAsync
}

// MethodDescriptor is the calling convention of the method being compiled.
type MethodDescriptor struct {
	// Instance methods receive this as their first argument.
	Instance      bool
	IsConstructor bool
	// HasScopesParameter is set when the scopes array is passed after this.
	HasScopesParameter bool
	Params             []string
	ReturnsVoid        bool
	// HasRestParameter marks a final rest parameter collecting extra
	// arguments.
	HasRestParameter bool
}

// ParamArgIndex returns the argument index of a declared parameter.
func (d MethodDescriptor) ParamArgIndex(param int) int {
	return d.FixedArgCount() + param
}

// FixedArgCount is the number of implicit leading arguments.
func (d MethodDescriptor) FixedArgCount() int {
	n := 0
	if d.Instance {
		n++
	}
	if d.HasScopesParameter {
		n++
	}
	return n
}

// ScopesArgIndex returns the argument index of the scopes array, or -1.
func (d MethodDescriptor) ScopesArgIndex() int {
	if !d.HasScopesParameter {
		return -1
	}
	if d.Instance {
		return 1
	}
	return 0
}

// ArgCount is the total number of arguments including implicit ones.
func (d MethodDescriptor) ArgCount() int {
	return d.FixedArgCount() + len(d.Params)
}
