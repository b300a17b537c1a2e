package bytecode

// LocalKind is the physical layout of a local slot.
type LocalKind uint8

const (
	LocalObject LocalKind = iota
	LocalDouble
	LocalBool
	LocalString
	LocalTyped // reference with a concrete runtime type, see LocalType.Type
	LocalScope // reference to a scope instance, see LocalType.Type
)

// LocalType describes one entry of a method's local-variable signature.
type LocalType struct {
	Kind LocalKind
	Type string
}

func (l LocalType) String() string {
	switch l.Kind {
	case LocalDouble:
		return "double"
	case LocalBool:
		return "bool"
	case LocalString:
		return "string"
	case LocalTyped:
		return l.Type
	case LocalScope:
		return "scope:" + l.Type
	}
	return "object"
}

// Zero returns the initial value of a local with this type.
func (l LocalType) Zero() any {
	switch l.Kind {
	case LocalDouble:
		return float64(0)
	case LocalBool:
		return false
	}
	return nil
}
