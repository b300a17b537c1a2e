package lir

// NumberOp is a typed numeric binary operator over unboxed doubles.
type NumberOp uint8

const (
	AddNumber NumberOp = iota
	SubNumber
	MulNumber
	DivNumber
	ModNumber
	PowNumber
)

var numberOpNames = [...]string{"add", "sub", "mul", "div", "mod", "pow"}

func (o NumberOp) String() string {
	if int(o) < len(numberOpNames) {
		return numberOpNames[o]
	}
	return "?"
}

// CompareOp is a comparison producing an unboxed bool.
type CompareOp uint8

const (
	Less CompareOp = iota
	Greater
	LessOrEqual
	GreaterOrEqual
	Equal
	NotEqual
)

var compareOpNames = [...]string{"lt", "gt", "le", "ge", "eq", "ne"}

func (o CompareOp) String() string {
	if int(o) < len(compareOpNames) {
		return compareOpNames[o]
	}
	return "?"
}

// DynamicOp is an operator over boxed values whose semantics are resolved by
// the runtime.
type DynamicOp uint8

const (
	DynAdd DynamicOp = iota
	DynSub
	DynMul
	DynDiv
	DynMod
	DynLess
	DynGreater
	DynLessOrEqual
	DynGreaterOrEqual
	DynEqual
	DynNotEqual
	DynStrictEqual
	DynStrictNotEqual
)

var dynamicOpNames = [...]string{
	"Add", "Sub", "Mul", "Div", "Mod",
	"LessThan", "GreaterThan", "LessThanOrEqual", "GreaterThanOrEqual",
	"Equal", "NotEqual", "StrictEqual", "StrictNotEqual",
}

// HelperName returns the runtime helper implementing the operator.
func (o DynamicOp) HelperName() string {
	if int(o) < len(dynamicOpNames) {
		return dynamicOpNames[o]
	}
	return "?"
}

func (o DynamicOp) String() string {
	return o.HelperName()
}

// ReturnsBool is true for the relational and equality operators.
func (o DynamicOp) ReturnsBool() bool {
	return o >= DynLess
}

// ConvertKind selects a representation change.
type ConvertKind uint8

const (
	// Box converts an unboxed double or bool into a reference.
	Box ConvertKind = iota
	// UnboxNumber converts a boxed number into an unboxed double.
	UnboxNumber
	// UnboxBool converts a boxed bool into an unboxed bool.
	UnboxBool
	// BoolToNumber widens an unboxed bool into an unboxed double.
	BoolToNumber
	// ToNumber applies the language's numeric coercion.
	ToNumber
	// ToBoolean applies the language's truthiness coercion.
	ToBoolean
	// ToString applies the language's string coercion.
	ToString
)

var convertNames = [...]string{"box", "unbox.number", "unbox.bool", "bool.to.number", "to.number", "to.boolean", "to.string"}

func (k ConvertKind) String() string {
	if int(k) < len(convertNames) {
		return convertNames[k]
	}
	return "?"
}

// IsCoercion is true for conversions implemented by runtime helpers, which
// may observe user code and are never regenerated inline.
func (k ConvertKind) IsCoercion() bool {
	return k >= ToNumber
}

// ScopeSlotKind selects where a scopes-array element comes from.
type ScopeSlotKind uint8

const (
	// LeafScope is the current method's own scope instance.
	LeafScope ScopeSlotKind = iota
	// ParentScope is an element of the incoming scopes argument.
	ParentScope
)

// ScopeSlot is one element of a scopes array under construction.
type ScopeSlot struct {
	Kind  ScopeSlotKind
	Index int
	Scope string
}
