// Package registry resolves the names a method body refers to: callables,
// classes and their members, runtime-library members and scope shapes.
//
// The compiler only reads from a Resolver. A Table may be shared by several
// concurrent compiles and extended while they run.
package registry

import (
	"fmt"

	"github.com/tomacox74/js2il-sub000/lir"
)

// Token identifies an entry point in the module's function table.
type Token uint16

// CallableInfo describes an entry point: a function, a class constructor
// or a class method.
type CallableInfo struct {
	ID    lir.CallableID
	Token Token
	Name  string

	// ParamCount is the declared number of script-level parameters.
	ParamCount int

	// HasScopes is set when the entry point takes the scopes array as its
	// first argument (after this for instance methods).
	HasScopes bool

	// NeedsArguments is set when the callee reads the whole call-site
	// argument list. It then receives the arguments as one object[] in
	// place of its declared parameters.
	NeedsArguments bool
}

// ArgCount returns the number of physical arguments passed at a call,
// excluding the receiver.
func (c CallableInfo) ArgCount() int {
	n := c.ParamCount
	if c.NeedsArguments {
		n = 1
	}
	if c.HasScopes {
		n++
	}
	return n
}

// FieldInfo describes a field of a scope or class and its declared
// representation.
type FieldInfo struct {
	Name    string
	Storage lir.Storage
}

// ScopeShape lists the fields of a scope type in declaration order.
type ScopeShape struct {
	Name   string
	Fields []FieldInfo
}

// Field returns the named field of the shape.
func (s ScopeShape) Field(name string) (FieldInfo, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// Variadic marks a runtime member accepting any number of arguments.
const Variadic = -1

// MemberInfo describes a method of a runtime-library type.
type MemberInfo struct {
	Type       string
	Name       string
	ParamCount int
	Returns    lir.Storage
}

// Resolver is the read-only view of the registries used while compiling.
type Resolver interface {
	Callable(id lir.CallableID) (CallableInfo, bool)
	ClassConstructor(class string) (CallableInfo, bool)
	ClassMethod(class, method string) (CallableInfo, bool)
	ClassField(class, field string) (FieldInfo, bool)
	RuntimeMember(typeName, member string) (MemberInfo, bool)
	ScopeField(scope, field string) (FieldInfo, bool)
	ScopeShape(scope string) (ScopeShape, bool)
}

// ConstructorID returns the callable id of a class constructor.
func ConstructorID(class string) lir.CallableID {
	return lir.CallableID(class + ".constructor")
}

// MethodID returns the callable id of a class method.
func MethodID(class, method string) lir.CallableID {
	return lir.CallableID(fmt.Sprintf("%s.%s", class, method))
}
