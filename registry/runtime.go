package registry

import (
	"fmt"

	"github.com/tomacox74/js2il-sub000/lir"
)

// Runtime-library type names used by typed member calls, casts and
// instance checks.
const (
	TypeArray          = lir.TypeArray
	TypeFloat64Array   = lir.TypeFloat64Array
	TypeString         = "String"
	TypeNumber         = "Number"
	TypeBoolean        = "Boolean"
	TypeError          = "Error"
	TypeTypeError      = "TypeError"
	TypeRangeError     = "RangeError"
	TypeThrown         = "Thrown"
	TypeGenerator      = "Generator"
	TypeAsyncGenerator = "AsyncGenerator"
	TypePromise        = "Promise"
	TypeDeferred       = "Deferred"
	TypeObject         = "Object"
	TypeConsole        = "Console"
)

var runtimeMembers = []MemberInfo{
	{Type: TypeArray, Name: "push", ParamCount: Variadic, Returns: lir.Object},
	{Type: TypeArray, Name: "pop", ParamCount: 0, Returns: lir.Object},
	{Type: TypeArray, Name: "join", ParamCount: 1, Returns: lir.Object},
	{Type: TypeArray, Name: "indexOf", ParamCount: 1, Returns: lir.Object},
	{Type: TypeArray, Name: "includes", ParamCount: 1, Returns: lir.Object},
	{Type: TypeArray, Name: "slice", ParamCount: 2, Returns: lir.Ref(TypeArray)},
	{Type: TypeFloat64Array, Name: "fill", ParamCount: 1, Returns: lir.Ref(TypeFloat64Array)},
	{Type: TypeString, Name: "charAt", ParamCount: 1, Returns: lir.Object},
	{Type: TypeString, Name: "toUpperCase", ParamCount: 0, Returns: lir.Object},
	{Type: TypeString, Name: "toLowerCase", ParamCount: 0, Returns: lir.Object},
	{Type: TypeGenerator, Name: "next", ParamCount: 1, Returns: lir.Object},
	{Type: TypeGenerator, Name: "return", ParamCount: 1, Returns: lir.Object},
	{Type: TypeGenerator, Name: "throw", ParamCount: 1, Returns: lir.Object},
	{Type: TypeAsyncGenerator, Name: "next", ParamCount: 1, Returns: lir.Ref(TypePromise)},
	{Type: TypePromise, Name: "then", ParamCount: 2, Returns: lir.Ref(TypePromise)},
	{Type: TypePromise, Name: "catch", ParamCount: 1, Returns: lir.Ref(TypePromise)},
	{Type: TypeConsole, Name: "log", ParamCount: Variadic, Returns: lir.Object},
	{Type: TypeConsole, Name: "error", ParamCount: Variadic, Returns: lir.Object},
}

// RuntimeMembers returns the built-in runtime-library members.
func RuntimeMembers() []MemberInfo {
	members := make([]MemberInfo, len(runtimeMembers))
	copy(members, runtimeMembers)
	return members
}

// Helpers invoked with CallHelper. Every helper pushes exactly one value.
const (
	HelperToBoolean              = "ToBoolean" // raw bool
	HelperToNumber               = "ToNumber"  // raw double
	HelperToString               = "ToString"
	HelperTypeOf                 = "TypeOf"
	HelperConcat                 = "Concat"
	HelperGetItem                = "GetItem"
	HelperSetItem                = "SetItem"
	HelperGetLength              = "GetLength" // raw double
	HelperNewArray               = "NewArray"
	HelperToVector               = "ToVector"
	HelperAwaitValue             = "AwaitValue"
	HelperCreateThrowable        = "CreateThrowable"
	HelperPrependScope           = "PrependScope"
	HelperIterResult             = "IterResult"
	HelperAwaitContinue          = "AwaitContinue"
	HelperThrowIfResumeException = "ThrowIfResumeException"
	HelperPromiseResolve         = "PromiseResolve"
	HelperPromiseReject          = "PromiseReject"
)

// Fields of the leaf scope of a suspendable method, and of the runtime
// objects the lowering reads.
const (
	FieldGenState           = "_genState"
	FieldAsyncState         = "_asyncState"
	FieldDone               = "_done"
	FieldResumeValue        = "_resumeValue"
	FieldHasReturn          = "_hasReturn"
	FieldReturnValue        = "_returnValue"
	FieldHasResumeException = "_hasResumeException"
	FieldResumeException    = "_resumeException"
	FieldDeferred           = "_deferred"
	FieldArgs               = "_args"
	FieldMoveNext           = "_moveNext"
	FieldSpilled            = "_spilled"
	FieldPromise            = "promise"
	FieldThrownValue        = "value"
)

// AwaitedField names the leaf-scope field holding the result of the n-th
// await of a method.
func AwaitedField(n int) string {
	return fmt.Sprintf("_awaited%d", n)
}

// SpillField names the leaf-scope field a local is saved to while the
// method is suspended.
func SpillField(local int) string {
	return fmt.Sprintf("_l%d", local)
}

// ScopeTypeName is the runtime type name of a scope instance, as used by
// NewObj, CastClass and IsInst.
func ScopeTypeName(scope string) string {
	return "Scope:" + scope
}
