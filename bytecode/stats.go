package bytecode

// Stats contains statistics about a compiled method body.
type Stats struct {
	// InstructionCount is the number of decoded instructions.
	InstructionCount int

	// WordCount is the size of the instruction stream including operands.
	WordCount int

	// ConstantCount is the number of constants in the constant pool.
	ConstantCount int

	// LocalCount is the number of local slots in the signature.
	LocalCount int

	// RegionCount is the number of exception regions.
	RegionCount int

	// MaxStack is the computed evaluation-stack bound.
	MaxStack int
}
