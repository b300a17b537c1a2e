// Package bytecode provides the immutable output of the compiler backend.
//
// A [Code] value is everything the downstream assembly writer needs for one
// method: the instruction stream, its constant and name pools, the ordered
// local-variable signature, the exception-region table, sequence points and
// the computed maximum evaluation-stack depth.
//
// # Key Types
//
//   - [Code]: an immutable compiled method body
//   - [ExceptionRegion]: a protected range and its catch or finally handler
//   - [LocalType]: the storage of one local slot
//   - [SequencePoint]: maps an instruction offset to a source span
//
// # Immutability Guarantees
//
// All fields are unexported and constructors copy their input slices.
// Collections are exposed through index-based accessors:
//
//	code.InstructionAt(0)
//	code.ConstantAt(i)
//	code.RegionAt(j)
//
// # Verification
//
// [Verify] simulates the evaluation stack across every control-flow path of
// an instruction stream. The compiler uses it to compute the max-stack bound
// and to reject streams whose stack would underflow or whose join points
// disagree on depth.
package bytecode
