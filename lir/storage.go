package lir

import "fmt"

// Temp is a handle into a method body's temp table. It carries no storage
// of its own.
type Temp int

// NoTemp marks an absent optional operand.
const NoTemp Temp = -1

// Valid returns true if the handle refers to a temp.
func (t Temp) Valid() bool {
	return t >= 0
}

func (t Temp) String() string {
	if t < 0 {
		return "_"
	}
	return fmt.Sprintf("t%d", int(t))
}

// StorageKind is the physical representation of a value.
type StorageKind uint8

const (
	// Unknown storage is treated as a boxed reference.
	Unknown StorageKind = iota
	// Unboxed values are raw primitives (double or bool).
	Unboxed
	// Reference values are boxed or heap objects.
	Reference
)

func (k StorageKind) String() string {
	switch k {
	case Unboxed:
		return "unboxed"
	case Reference:
		return "ref"
	default:
		return "unknown"
	}
}

// Concrete type names used by Storage.Type.
const (
	TypeDouble       = "double"
	TypeBool         = "bool"
	TypeString       = "string"
	TypeObject       = "object"
	TypeArray        = "Array"
	TypeFloat64Array = "Float64Array"
	TypeObjectVector = "object[]"
	TypeScope        = "Scope"
)

// Storage describes how a temp, variable or local slot is represented.
type Storage struct {
	Kind StorageKind
	// Type is the concrete runtime type when known, e.g. "double" for an
	// unboxed number or "Array" for a proven list-backed array.
	Type string
	// Scope is the scope-type name when the value is a scope instance.
	Scope string
}

// Commonly used storages.
var (
	Double      = Storage{Kind: Unboxed, Type: TypeDouble}
	Bool        = Storage{Kind: Unboxed, Type: TypeBool}
	Object      = Storage{Kind: Reference}
	String      = Storage{Kind: Reference, Type: TypeString}
	ObjectArray = Storage{Kind: Reference, Type: TypeObjectVector}
)

// Ref returns a reference storage tagged with a concrete runtime type.
func Ref(typeName string) Storage {
	return Storage{Kind: Reference, Type: typeName}
}

// ScopeRef returns a reference storage holding an instance of the named scope.
func ScopeRef(scope string) Storage {
	return Storage{Kind: Reference, Type: TypeScope, Scope: scope}
}

// IsDouble returns true for an unboxed double.
func (s Storage) IsDouble() bool {
	return s.Kind == Unboxed && s.Type == TypeDouble
}

// IsBool returns true for an unboxed bool.
func (s Storage) IsBool() bool {
	return s.Kind == Unboxed && s.Type == TypeBool
}

// IsUnboxed returns true for any raw primitive.
func (s Storage) IsUnboxed() bool {
	return s.Kind == Unboxed
}

// IsReference returns true for boxed, object and unknown storages.
func (s Storage) IsReference() bool {
	return s.Kind != Unboxed
}

// Signature identifies the physical layout of a storage. Two local slots may
// only be shared when their signatures are equal.
func (s Storage) Signature() string {
	switch {
	case s.Kind == Unboxed:
		return "unboxed:" + s.Type
	case s.Scope != "":
		return "scope:" + s.Scope
	case s.Type != "":
		return "ref:" + s.Type
	default:
		return "ref"
	}
}

func (s Storage) String() string {
	return s.Signature()
}
