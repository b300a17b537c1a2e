package lir

import "github.com/tomacox74/js2il-sub000/bytecode"

// Instruction is one LIR operation. The set of implementations is closed:
// every consumer dispatches with an exhaustive type switch.
type Instruction interface {
	// Uses returns the temps read by the instruction in the order their
	// values are loaded during emission.
	Uses() []Temp
	// Def returns the temp defined by the instruction, or NoTemp.
	Def() Temp
	instruction()
}

func temps(ts ...Temp) []Temp {
	out := make([]Temp, 0, len(ts))
	for _, t := range ts {
		if t.Valid() {
			out = append(out, t)
		}
	}
	return out
}

func withArgs(args []Temp, ts ...Temp) []Temp {
	out := temps(ts...)
	return append(out, temps(args...)...)
}

type noUses struct{}

func (noUses) Uses() []Temp { return nil }

type noDef struct{}

func (noDef) Def() Temp { return NoTemp }

// Constants

type ConstNumber struct {
	Value  float64
	Result Temp
}

type ConstString struct {
	Value  string
	Result Temp
}

type ConstBool struct {
	Value  bool
	Result Temp
}

type ConstUndefined struct {
	Result Temp
}

type ConstNull struct {
	Result Temp
}

// Parameters, scopes and globals

// LoadParameter loads a declared parameter by its zero-based index.
type LoadParameter struct {
	Index  int
	Result Temp
}

type LoadThis struct {
	Result Temp
}

// LoadScopesArgument loads the incoming scopes array.
type LoadScopesArgument struct {
	Result Temp
}

// LoadLeafScope loads the method's own scope instance.
type LoadLeafScope struct {
	Result Temp
}

// LoadParentScope loads an element of the incoming scopes array cast to its
// scope type.
type LoadParentScope struct {
	Index  int
	Scope  string
	Result Temp
}

// CreateLeafScope allocates the method's leaf scope instance.
type CreateLeafScope struct {
	noUses
	noDef
}

// BuildScopesArray builds the scopes array passed to a callee.
type BuildScopesArray struct {
	Scopes []ScopeSlot
	Result Temp
}

// GetIntrinsicGlobal loads a runtime-library singleton such as console.
type GetIntrinsicGlobal struct {
	Name   string
	Result Temp
}

// Unary and binary operators

type NegateNumber struct {
	Value  Temp
	Result Temp
}

type LogicalNot struct {
	Value  Temp
	Result Temp
}

type TypeOf struct {
	Value  Temp
	Result Temp
}

type BinaryNumber struct {
	Op          NumberOp
	Left, Right Temp
	Result      Temp
}

type CompareNumber struct {
	Op          CompareOp
	Left, Right Temp
	Result      Temp
}

// CompareBoolean compares two unboxed bools. Op is Equal or NotEqual.
type CompareBoolean struct {
	Op          CompareOp
	Left, Right Temp
	Result      Temp
}

type DynamicBinary struct {
	Op          DynamicOp
	Left, Right Temp
	Result      Temp
}

// Concat concatenates two strings.
type Concat struct {
	Left, Right Temp
	Result      Temp
}

type IsInstanceOf struct {
	Value    Temp
	TypeName string
	Result   Temp
}

type Convert struct {
	Kind   ConvertKind
	Source Temp
	Result Temp
}

// CopyTemp copies Source into Result, typically a variable-slot temp.
type CopyTemp struct {
	Source Temp
	Result Temp
}

// Aggregates

// NewObjectArray creates an object vector. With Elements set the vector is
// built in one step; otherwise Length slots are filled by later
// StoreElementRef instructions.
type NewObjectArray struct {
	Length   int
	Elements []Temp
	Result   Temp
}

// BeginInitArrayElement marks the start of the instructions computing one
// element of an object vector under construction.
type BeginInitArrayElement struct {
	noUses
	noDef
	Array Temp
	Index int
}

type StoreElementRef struct {
	Array Temp
	Index int
	Value Temp
}

// BuildArray creates a list-backed Array from its elements.
type BuildArray struct {
	Elements []Temp
	Result   Temp
}

type NewObjectLiteral struct {
	Keys   []string
	Values []Temp
	Result Temp
}

// Calls

// CallableID identifies a compiled function in the registry.
type CallableID string

// CallFunction calls a compiled function directly.
type CallFunction struct {
	Callee      CallableID
	ScopesArray Temp
	Args        []Temp
	Result      Temp
}

// CallFunctionValue calls a closure value.
type CallFunctionValue struct {
	Target Temp
	Args   []Temp
	Result Temp
}

// CallMember dispatches a method by name on an arbitrary receiver.
type CallMember struct {
	Receiver Temp
	Method   string
	Args     []Temp
	Result   Temp
}

// CallTypedMember calls an early-bound runtime-library member on a receiver
// of a proven type.
type CallTypedMember struct {
	Receiver Temp
	Type     string
	Method   string
	Args     []Temp
	Result   Temp
}

// CallIntrinsic calls a method of a runtime-library object with all
// arguments packed into one object vector.
type CallIntrinsic struct {
	Receiver       Temp
	Method         string
	ArgumentsArray Temp
	Result         Temp
}

type NewIntrinsicObject struct {
	Type   string
	Args   []Temp
	Result Temp
}

type NewUserClass struct {
	Class       string
	ScopesArray Temp
	Args        []Temp
	Result      Temp
}

// CallBaseConstructor invokes the base class constructor on this.
type CallBaseConstructor struct {
	Class string
	Args  []Temp
}

// CallBaseMethod invokes a base class method on this.
type CallBaseMethod struct {
	Class  string
	Method string
	Args   []Temp
	Result Temp
}

// Fields

type LoadScopeField struct {
	Scope     Temp
	ScopeName string
	Field     string
	Result    Temp
}

type StoreScopeField struct {
	Scope     Temp
	ScopeName string
	Field     string
	Value     Temp
}

type LoadInstanceField struct {
	Object Temp
	Class  string
	Field  string
	Result Temp
}

type StoreInstanceField struct {
	Object Temp
	Class  string
	Field  string
	Value  Temp
}

// Collections

type GetItem struct {
	Object Temp
	Index  Temp
	Result Temp
}

type SetItem struct {
	Object Temp
	Index  Temp
	Value  Temp
}

type GetLength struct {
	Object Temp
	Result Temp
}

// Control flow

type Label struct {
	noUses
	noDef
	ID int
}

type Branch struct {
	noUses
	noDef
	Target int
}

type BranchIfTrue struct {
	Cond   Temp
	Target int
}

type BranchIfFalse struct {
	Cond   Temp
	Target int
}

// Return returns Value, or undefined when Value is NoTemp.
type Return struct {
	Value Temp
}

// Leave exits a protected region to Target, running finally handlers.
type Leave struct {
	noUses
	noDef
	Target int
}

// EndFinally ends a finally handler.
type EndFinally struct {
	noUses
	noDef
}

// Exceptions

// StoreException stores the caught exception. It is the first instruction
// of a catch handler.
type StoreException struct {
	Result Temp
}

// UnwrapCatchException converts a caught exception into a script value.
type UnwrapCatchException struct {
	Exception Temp
	Result    Temp
}

type Throw struct {
	Value Temp
}

type ThrowTypeError struct {
	noUses
	noDef
	Message string
}

// NewBuiltInError constructs an Error, TypeError or RangeError. Message may
// be NoTemp.
type NewBuiltInError struct {
	Type    string
	Message Temp
	Result  Temp
}

// Suspension

type Await struct {
	Value    Temp
	ResumeID int
	Result   Temp
}

type Yield struct {
	Value             Temp
	ResumeID          int
	HandleThrowReturn bool
	Result            Temp
}

// SequencePoint associates the following instructions with a source span.
type SequencePoint struct {
	noUses
	noDef
	Span bytecode.SourceSpan
}

func (i *ConstNumber) Uses() []Temp { return nil }
func (i *ConstString) Uses() []Temp { return nil }
func (i *ConstBool) Uses() []Temp { return nil }
func (i *ConstUndefined) Uses() []Temp { return nil }
func (i *ConstNull) Uses() []Temp { return nil }
func (i *LoadParameter) Uses() []Temp { return nil }
func (i *LoadThis) Uses() []Temp { return nil }
func (i *LoadScopesArgument) Uses() []Temp { return nil }
func (i *LoadLeafScope) Uses() []Temp { return nil }
func (i *LoadParentScope) Uses() []Temp { return nil }
func (i *BuildScopesArray) Uses() []Temp { return nil }
func (i *GetIntrinsicGlobal) Uses() []Temp { return nil }
func (i *NegateNumber) Uses() []Temp { return temps(i.Value) }
func (i *LogicalNot) Uses() []Temp { return temps(i.Value) }
func (i *TypeOf) Uses() []Temp { return temps(i.Value) }
func (i *BinaryNumber) Uses() []Temp { return temps(i.Left, i.Right) }
func (i *CompareNumber) Uses() []Temp { return temps(i.Left, i.Right) }
func (i *CompareBoolean) Uses() []Temp { return temps(i.Left, i.Right) }
func (i *DynamicBinary) Uses() []Temp { return temps(i.Left, i.Right) }
func (i *Concat) Uses() []Temp { return temps(i.Left, i.Right) }
func (i *IsInstanceOf) Uses() []Temp { return temps(i.Value) }
func (i *Convert) Uses() []Temp { return temps(i.Source) }
func (i *CopyTemp) Uses() []Temp { return temps(i.Source) }
func (i *NewObjectArray) Uses() []Temp { return temps(i.Elements...) }
func (i *StoreElementRef) Uses() []Temp { return temps(i.Array, i.Value) }
func (i *BuildArray) Uses() []Temp { return temps(i.Elements...) }
func (i *NewObjectLiteral) Uses() []Temp { return temps(i.Values...) }
func (i *CallFunction) Uses() []Temp { return withArgs(i.Args, i.ScopesArray) }
func (i *CallFunctionValue) Uses() []Temp { return append(temps(i.Args...), temps(i.Target)...) }
func (i *CallMember) Uses() []Temp { return withArgs(i.Args, i.Receiver) }
func (i *CallTypedMember) Uses() []Temp { return withArgs(i.Args, i.Receiver) }
func (i *CallIntrinsic) Uses() []Temp { return temps(i.Receiver, i.ArgumentsArray) }
func (i *NewIntrinsicObject) Uses() []Temp { return temps(i.Args...) }
func (i *NewUserClass) Uses() []Temp { return withArgs(i.Args, i.ScopesArray) }
func (i *CallBaseConstructor) Uses() []Temp { return temps(i.Args...) }
func (i *CallBaseMethod) Uses() []Temp { return temps(i.Args...) }
func (i *LoadScopeField) Uses() []Temp { return temps(i.Scope) }
func (i *StoreScopeField) Uses() []Temp { return temps(i.Scope, i.Value) }
func (i *LoadInstanceField) Uses() []Temp { return temps(i.Object) }
func (i *StoreInstanceField) Uses() []Temp { return temps(i.Object, i.Value) }
func (i *GetItem) Uses() []Temp { return temps(i.Object, i.Index) }
func (i *SetItem) Uses() []Temp { return temps(i.Object, i.Index, i.Value) }
func (i *GetLength) Uses() []Temp { return temps(i.Object) }
func (i *BranchIfTrue) Uses() []Temp { return temps(i.Cond) }
func (i *BranchIfFalse) Uses() []Temp { return temps(i.Cond) }
func (i *Return) Uses() []Temp { return temps(i.Value) }
func (i *StoreException) Uses() []Temp { return nil }
func (i *UnwrapCatchException) Uses() []Temp { return temps(i.Exception) }
func (i *Throw) Uses() []Temp { return temps(i.Value) }
func (i *NewBuiltInError) Uses() []Temp { return temps(i.Message) }
func (i *Await) Uses() []Temp { return temps(i.Value) }
func (i *Yield) Uses() []Temp { return temps(i.Value) }

func (i *ConstNumber) Def() Temp { return i.Result }
func (i *ConstString) Def() Temp { return i.Result }
func (i *ConstBool) Def() Temp { return i.Result }
func (i *ConstUndefined) Def() Temp { return i.Result }
func (i *ConstNull) Def() Temp { return i.Result }
func (i *LoadParameter) Def() Temp { return i.Result }
func (i *LoadThis) Def() Temp { return i.Result }
func (i *LoadScopesArgument) Def() Temp { return i.Result }
func (i *LoadLeafScope) Def() Temp { return i.Result }
func (i *LoadParentScope) Def() Temp { return i.Result }
func (i *BuildScopesArray) Def() Temp { return i.Result }
func (i *GetIntrinsicGlobal) Def() Temp { return i.Result }
func (i *NegateNumber) Def() Temp { return i.Result }
func (i *LogicalNot) Def() Temp { return i.Result }
func (i *TypeOf) Def() Temp { return i.Result }
func (i *BinaryNumber) Def() Temp { return i.Result }
func (i *CompareNumber) Def() Temp { return i.Result }
func (i *CompareBoolean) Def() Temp { return i.Result }
func (i *DynamicBinary) Def() Temp { return i.Result }
func (i *Concat) Def() Temp { return i.Result }
func (i *IsInstanceOf) Def() Temp { return i.Result }
func (i *Convert) Def() Temp { return i.Result }
func (i *CopyTemp) Def() Temp { return i.Result }
func (i *NewObjectArray) Def() Temp { return i.Result }
func (i *StoreElementRef) Def() Temp { return NoTemp }
func (i *BuildArray) Def() Temp { return i.Result }
func (i *NewObjectLiteral) Def() Temp { return i.Result }
func (i *CallFunction) Def() Temp { return i.Result }
func (i *CallFunctionValue) Def() Temp { return i.Result }
func (i *CallMember) Def() Temp { return i.Result }
func (i *CallTypedMember) Def() Temp { return i.Result }
func (i *CallIntrinsic) Def() Temp { return i.Result }
func (i *NewIntrinsicObject) Def() Temp { return i.Result }
func (i *NewUserClass) Def() Temp { return i.Result }
func (i *CallBaseConstructor) Def() Temp { return NoTemp }
func (i *CallBaseMethod) Def() Temp { return i.Result }
func (i *LoadScopeField) Def() Temp { return i.Result }
func (i *StoreScopeField) Def() Temp { return NoTemp }
func (i *LoadInstanceField) Def() Temp { return i.Result }
func (i *StoreInstanceField) Def() Temp { return NoTemp }
func (i *GetItem) Def() Temp { return i.Result }
func (i *SetItem) Def() Temp { return NoTemp }
func (i *GetLength) Def() Temp { return i.Result }
func (i *BranchIfTrue) Def() Temp { return NoTemp }
func (i *BranchIfFalse) Def() Temp { return NoTemp }
func (i *Return) Def() Temp { return NoTemp }
func (i *StoreException) Def() Temp { return i.Result }
func (i *UnwrapCatchException) Def() Temp { return i.Result }
func (i *Throw) Def() Temp { return NoTemp }
func (i *NewBuiltInError) Def() Temp { return i.Result }
func (i *Await) Def() Temp { return i.Result }
func (i *Yield) Def() Temp { return i.Result }

func (*ConstNumber) instruction() {}
func (*ConstString) instruction() {}
func (*ConstBool) instruction() {}
func (*ConstUndefined) instruction() {}
func (*ConstNull) instruction() {}
func (*LoadParameter) instruction() {}
func (*LoadThis) instruction() {}
func (*LoadScopesArgument) instruction() {}
func (*LoadLeafScope) instruction() {}
func (*LoadParentScope) instruction() {}
func (*CreateLeafScope) instruction() {}
func (*BuildScopesArray) instruction() {}
func (*GetIntrinsicGlobal) instruction() {}
func (*NegateNumber) instruction() {}
func (*LogicalNot) instruction() {}
func (*TypeOf) instruction() {}
func (*BinaryNumber) instruction() {}
func (*CompareNumber) instruction() {}
func (*CompareBoolean) instruction() {}
func (*DynamicBinary) instruction() {}
func (*Concat) instruction() {}
func (*IsInstanceOf) instruction() {}
func (*Convert) instruction() {}
func (*CopyTemp) instruction() {}
func (*NewObjectArray) instruction() {}
func (*BeginInitArrayElement) instruction() {}
func (*StoreElementRef) instruction() {}
func (*BuildArray) instruction() {}
func (*NewObjectLiteral) instruction() {}
func (*CallFunction) instruction() {}
func (*CallFunctionValue) instruction() {}
func (*CallMember) instruction() {}
func (*CallTypedMember) instruction() {}
func (*CallIntrinsic) instruction() {}
func (*NewIntrinsicObject) instruction() {}
func (*NewUserClass) instruction() {}
func (*CallBaseConstructor) instruction() {}
func (*CallBaseMethod) instruction() {}
func (*LoadScopeField) instruction() {}
func (*StoreScopeField) instruction() {}
func (*LoadInstanceField) instruction() {}
func (*StoreInstanceField) instruction() {}
func (*GetItem) instruction() {}
func (*SetItem) instruction() {}
func (*GetLength) instruction() {}
func (*Label) instruction() {}
func (*Branch) instruction() {}
func (*BranchIfTrue) instruction() {}
func (*BranchIfFalse) instruction() {}
func (*Return) instruction() {}
func (*Leave) instruction() {}
func (*EndFinally) instruction() {}
func (*StoreException) instruction() {}
func (*UnwrapCatchException) instruction() {}
func (*Throw) instruction() {}
func (*ThrowTypeError) instruction() {}
func (*NewBuiltInError) instruction() {}
func (*Await) instruction() {}
func (*Yield) instruction() {}
func (*SequencePoint) instruction() {}
