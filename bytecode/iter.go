package bytecode

import "github.com/tomacox74/js2il-sub000/op"

// InstructionIter iterates over instructions in a Code object.
type InstructionIter struct {
	code *Code
	pos  int
}

// Next returns the next instruction and its operands.
// Returns false when there are no more instructions.
func (i *InstructionIter) Next() ([]op.Code, bool) {
	if i.pos >= i.code.InstructionCount() {
		return nil, false
	}
	width := op.Width(i.code.instructions, i.pos)
	instr := make([]op.Code, width)
	copy(instr, i.code.instructions[i.pos:i.pos+width])
	i.pos += width
	return instr, true
}

// Offset returns the word offset of the instruction Next will return.
func (i *InstructionIter) Offset() int {
	return i.pos
}

// All returns all instructions as a newly allocated slice.
func (i *InstructionIter) All() [][]op.Code {
	var results [][]op.Code
	for {
		instr, ok := i.Next()
		if !ok {
			break
		}
		results = append(results, instr)
	}
	return results
}

// NewInstructionIter creates a new instruction iterator for the given code.
func NewInstructionIter(code *Code) *InstructionIter {
	return &InstructionIter{code: code}
}
