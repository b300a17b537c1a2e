package bytecode

import (
	"github.com/tomacox74/js2il-sub000/op"
)

// Code represents one compiled method body.
// It is immutable after creation and safe for concurrent use.
type Code struct {
	name         string
	instructions []op.Code
	constants    []any
	names        []string

	paramCount  int
	hasScopes   bool
	isInstance  bool
	isCtor      bool
	maxStack    int
	locals      []LocalType
	localNames  []string
	regions     []ExceptionRegion
	points      []SequencePoint
	resumeCount int
}

// CodeParams contains parameters for creating a new Code.
type CodeParams struct {
	Name         string
	Instructions []op.Code
	Constants    []any
	Names        []string

	// ParamCount is the number of physical arguments, including the scopes
	// array and the receiver when present.
	ParamCount int
	HasScopes  bool
	IsInstance bool
	// IsConstructor marks a class constructor. NewUser only invokes
	// constructors.
	IsConstructor bool

	MaxStack       int
	Locals         []LocalType
	LocalNames     []string
	Regions        []ExceptionRegion
	SequencePoints []SequencePoint
	ResumeCount    int
}

// NewCode creates a new immutable Code from the given parameters.
// Input slices are copied to ensure immutability.
func NewCode(params CodeParams) *Code {
	return &Code{
		name:         params.Name,
		instructions: clone(params.Instructions),
		constants:    clone(params.Constants),
		names:        clone(params.Names),
		paramCount:   params.ParamCount,
		hasScopes:    params.HasScopes,
		isInstance:   params.IsInstance,
		isCtor:       params.IsConstructor,
		maxStack:     params.MaxStack,
		locals:       clone(params.Locals),
		localNames:   clone(params.LocalNames),
		regions:      clone(params.Regions),
		points:       clone(params.SequencePoints),
		resumeCount:  params.ResumeCount,
	}
}

// Name returns the name of the compiled method.
func (c *Code) Name() string {
	return c.name
}

// InstructionCount returns the number of words in the instruction stream.
func (c *Code) InstructionCount() int {
	return len(c.instructions)
}

// InstructionAt returns the word at the given index.
func (c *Code) InstructionAt(index int) op.Code {
	return c.instructions[index]
}

// Instructions returns a copy of the instruction stream.
func (c *Code) Instructions() []op.Code {
	return clone(c.instructions)
}

// ConstantCount returns the number of constants.
func (c *Code) ConstantCount() int {
	return len(c.constants)
}

// ConstantAt returns the constant at the given index.
func (c *Code) ConstantAt(index int) any {
	return c.constants[index]
}

// NameCount returns the number of member and helper names.
func (c *Code) NameCount() int {
	return len(c.names)
}

// NameAt returns the name at the given index.
func (c *Code) NameAt(index int) string {
	return c.names[index]
}

// ParamCount returns the number of physical arguments.
func (c *Code) ParamCount() int {
	return c.paramCount
}

// HasScopes returns true if argument 0 (or 1 for instance methods) is the
// scopes array.
func (c *Code) HasScopes() bool {
	return c.hasScopes
}

// IsInstance returns true if argument 0 is the receiver.
func (c *Code) IsInstance() bool {
	return c.isInstance
}

// IsConstructor returns true for a class constructor.
func (c *Code) IsConstructor() bool {
	return c.isCtor
}

// MaxStack returns the computed maximum evaluation-stack depth.
func (c *Code) MaxStack() int {
	return c.maxStack
}

// LocalCount returns the number of local slots.
func (c *Code) LocalCount() int {
	return len(c.locals)
}

// LocalAt returns the storage of the local slot at the given index.
func (c *Code) LocalAt(index int) LocalType {
	return c.locals[index]
}

// LocalNameAt returns the debug name of the local slot at the given index.
// Returns an empty string if the slot is unnamed.
func (c *Code) LocalNameAt(index int) string {
	if index < 0 || index >= len(c.localNames) {
		return ""
	}
	return c.localNames[index]
}

// RegionCount returns the number of exception regions.
func (c *Code) RegionCount() int {
	return len(c.regions)
}

// RegionAt returns the exception region at the given index. Regions are
// ordered innermost first.
func (c *Code) RegionAt(index int) ExceptionRegion {
	return c.regions[index]
}

// SequencePointCount returns the number of sequence points.
func (c *Code) SequencePointCount() int {
	return len(c.points)
}

// SequencePointAt returns the sequence point at the given index.
func (c *Code) SequencePointAt(index int) SequencePoint {
	return c.points[index]
}

// SpanAt returns the source span of the closest sequence point at or before
// the given offset.
func (c *Code) SpanAt(offset int) (SourceSpan, bool) {
	var found bool
	var span SourceSpan
	for _, p := range c.points {
		if p.Offset > offset {
			break
		}
		span = p.Span
		found = true
	}
	return span, found
}

// ResumeCount returns the number of resume points of a suspendable method.
func (c *Code) ResumeCount() int {
	return c.resumeCount
}

// Stats returns statistics about this code block.
func (c *Code) Stats() Stats {
	count := 0
	iter := NewInstructionIter(c)
	for {
		if _, ok := iter.Next(); !ok {
			break
		}
		count++
	}
	return Stats{
		InstructionCount: count,
		WordCount:        len(c.instructions),
		ConstantCount:    len(c.constants),
		LocalCount:       len(c.locals),
		RegionCount:      len(c.regions),
		MaxStack:         c.maxStack,
	}
}
