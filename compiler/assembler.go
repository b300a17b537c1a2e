package compiler

import (
	"math"

	"github.com/tomacox74/js2il-sub000/bytecode"
	"github.com/tomacox74/js2il-sub000/errz"
	"github.com/tomacox74/js2il-sub000/op"
)

// label is a forward-referenceable position in the instruction stream.
type label int

type fixup struct {
	pos    int // word to patch
	target label
	from   int // offset of the branch instruction
}

// assembler accumulates the instruction stream of one method, resolving
// labels once every instruction has been emitted.
type assembler struct {
	code       []op.Code
	constants  []any
	constIndex map[any]int
	names      []string
	nameIndex  map[string]int
	labels     []int
	fixups     []fixup
	points     []bytecode.SequencePoint
	lastOp     op.Code
	lastOffset int

	// instr is the LIR instruction being lowered, for error positions.
	instr int
}

func newAssembler() *assembler {
	return &assembler{
		constIndex: map[any]int{},
		nameIndex:  map[string]int{},
		lastOffset: -1,
	}
}

func (a *assembler) offset() int {
	return len(a.code)
}

func (a *assembler) newLabel() label {
	a.labels = append(a.labels, -1)
	return label(len(a.labels) - 1)
}

// mark binds l to the current offset.
func (a *assembler) mark(l label) {
	if a.labels[l] >= 0 {
		panic(errz.Fatalf(errz.E3007, a.instr, -1, "label bound twice"))
	}
	a.labels[l] = len(a.code)
}

func (a *assembler) bound(l label) bool {
	return a.labels[l] >= 0
}

// position returns the resolved offset of l.
func (a *assembler) position(l label) int {
	pos := a.labels[l]
	if pos < 0 {
		panic(errz.Fatalf(errz.E3007, a.instr, -1, "label %d is never bound", l))
	}
	return pos
}

// emit appends an instruction. Operands must fit in one word each.
func (a *assembler) emit(opcode op.Code, operands ...int) int {
	pos := len(a.code)
	a.code = append(a.code, opcode)
	for _, operand := range operands {
		a.code = append(a.code, a.word(opcode, operand))
	}
	a.lastOp = opcode
	a.lastOffset = pos
	return pos
}

func (a *assembler) word(opcode op.Code, operand int) op.Code {
	if operand < 0 || operand > math.MaxUint16 {
		panic(errz.Fatalf(errz.E3009, a.instr, -1,
			"operand %d of %s out of range", operand, op.GetInfo(opcode).Name))
	}
	return op.Code(operand)
}

// ldI4 pushes a small integer. Values are encoded as a signed 16-bit word.
func (a *assembler) ldI4(v int) {
	if v < math.MinInt16 || v > math.MaxInt16 {
		panic(errz.Fatalf(errz.E3009, a.instr, -1, "integer %d does not fit LD_I4", v))
	}
	a.emit(op.LdI4, int(uint16(int16(v))))
}

func (a *assembler) ldF64(v float64) {
	a.emit(op.LdF64, a.constant(v))
}

func (a *assembler) ldStr(s string) {
	a.emit(op.LdStr, a.constant(s))
}

// emitName appends an instruction whose operands are a name followed by
// plain integers.
func (a *assembler) emitName(opcode op.Code, name string, operands ...int) {
	a.emit(opcode, append([]int{a.name(name)}, operands...)...)
}

// branch appends a branch whose target is patched during resolve.
func (a *assembler) branch(opcode op.Code, target label) {
	pos := a.emit(opcode, 0)
	a.fixups = append(a.fixups, fixup{pos: pos + 1, target: target, from: pos})
}

// switchTo appends a computed branch over targets.
func (a *assembler) switchTo(targets []label) {
	pos := len(a.code)
	a.code = append(a.code, op.Switch, a.word(op.Switch, len(targets)))
	for _, target := range targets {
		a.fixups = append(a.fixups, fixup{pos: len(a.code), target: target, from: pos})
		a.code = append(a.code, 0)
	}
	a.lastOp = op.Switch
	a.lastOffset = pos
}

// floatKey dedups doubles by bit pattern so that -0 and NaN keep their
// own entries.
type floatKey uint64

func (a *assembler) constant(v any) int {
	key := v
	if f, ok := v.(float64); ok {
		key = floatKey(math.Float64bits(f))
	}
	if idx, ok := a.constIndex[key]; ok {
		return idx
	}
	idx := len(a.constants)
	a.constants = append(a.constants, v)
	a.constIndex[key] = idx
	return idx
}

func (a *assembler) name(s string) int {
	if idx, ok := a.nameIndex[s]; ok {
		return idx
	}
	idx := len(a.names)
	a.names = append(a.names, s)
	a.nameIndex[s] = idx
	return idx
}

func (a *assembler) sequencePoint(span bytecode.SourceSpan) {
	a.points = append(a.points, bytecode.SequencePoint{Offset: len(a.code), Span: span})
}

// reachableEnd is false when the last instruction never falls through and
// no label is bound at the end of the stream.
func (a *assembler) reachableEnd() bool {
	if a.lastOffset < 0 || !op.IsTerminator(a.lastOp) {
		return true
	}
	for _, pos := range a.labels {
		if pos == len(a.code) {
			return true
		}
	}
	return false
}

// resolve patches every branch target.
func (a *assembler) resolve() {
	for _, f := range a.fixups {
		a.instr = -1
		target := a.position(f.target)
		a.code[f.pos] = a.word(a.code[f.from], target)
	}
}
