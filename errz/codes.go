package errz

// ErrorCode represents a unique identifier for error types.
// Codes are organized by category:
//   - E1xxx: Invariant violations
//   - E2xxx: Unsupported constructs
//   - E3xxx: Fatal internal errors
type ErrorCode string

const (
	// Invariant violations (E1xxx)
	E1001 ErrorCode = "E1001" // Variable-slot temp never defined
	E1002 ErrorCode = "E1002" // Raw numeric operand not an unboxed double
	E1003 ErrorCode = "E1003" // Temp handle out of range

	// Unsupported constructs (E2xxx)
	E2001 ErrorCode = "E2001" // Unsupported instruction
	E2002 ErrorCode = "E2002" // Unsupported suspendable shape
	E2003 ErrorCode = "E2003" // Unsupported operand representation

	// Fatal internal errors (E3xxx)
	E3001 ErrorCode = "E3001" // Missing definition for an inlined temp
	E3002 ErrorCode = "E3002" // Unresolved call target
	E3003 ErrorCode = "E3003" // Arity mismatch
	E3004 ErrorCode = "E3004" // Unresolved field or scope shape
	E3005 ErrorCode = "E3005" // Stack verification failed
	E3006 ErrorCode = "E3006" // Inline regeneration too deep
	E3007 ErrorCode = "E3007" // Unknown label
	E3008 ErrorCode = "E3008" // Temp cannot be regenerated inline
	E3009 ErrorCode = "E3009" // Operand does not fit the instruction encoding
	E3010 ErrorCode = "E3010" // Constructor without a receiver
)

// codeDescriptions maps error codes to their short descriptions.
var codeDescriptions = map[ErrorCode]string{
	E1001: "a temp mapped to a variable slot has no defining instruction",
	E1002: "an operand of a raw numeric instruction is not an unboxed double",
	E1003: "a temp handle is outside the method's temp table",

	E2001: "the instruction cannot be lowered",
	E2002: "the suspendable function shape cannot be lowered",
	E2003: "the operand representation cannot be lowered",

	E3001: "an unmaterialized temp has no definition to regenerate",
	E3002: "a call target could not be resolved",
	E3003: "the call does not match the callee's declared arity",
	E3004: "a field or scope shape could not be resolved",
	E3005: "the emitted stream failed stack verification",
	E3006: "inline regeneration exceeded the maximum depth",
	E3007: "a branch refers to a label that was never defined",
	E3008: "an unmaterialized temp cannot be regenerated inline",
	E3009: "an operand does not fit the instruction encoding",
	E3010: "a constructor must receive the new instance as argument 0",
}

// Description returns the short description of the error code.
func (c ErrorCode) Description() string {
	return codeDescriptions[c]
}

// String returns the code itself.
func (c ErrorCode) String() string {
	return string(c)
}
