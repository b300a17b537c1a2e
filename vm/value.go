package vm

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tomacox74/js2il-sub000/lir"
	"github.com/tomacox74/js2il-sub000/registry"
)

// Values on the evaluation stack are one of:
//
//   - nil: undefined
//   - Null
//   - float64, bool and int: raw unboxed values
//   - Number and Boolean: boxed primitives
//   - string
//   - a pointer to one of the runtime objects below, or an object[] vector
//     ([]any)

// NullType is the type of the null value.
type NullType struct{}

// Null is the null value.
var Null = NullType{}

// Number is a boxed double.
type Number float64

// Boolean is a boxed bool.
type Boolean bool

// Array is a list-backed script array.
type Array struct {
	Items []any
}

// Float64Array is a fixed-length array of doubles.
type Float64Array struct {
	Items []float64
}

// Object is a script object: an object literal, an iterator result or an
// instance of a user class.
type Object struct {
	Class  string
	fields map[string]any
	keys   []string
}

// NewObject returns an empty object of the given class.
func NewObject(class string) *Object {
	return &Object{Class: class, fields: map[string]any{}}
}

// Get returns a field value; missing fields are undefined.
func (o *Object) Get(name string) any {
	return o.fields[name]
}

// Set stores a field value, keeping the order in which fields were added.
func (o *Object) Set(name string, value any) {
	if _, ok := o.fields[name]; !ok {
		o.keys = append(o.keys, name)
	}
	o.fields[name] = value
}

// Keys returns the field names in insertion order.
func (o *Object) Keys() []string {
	return o.keys
}

// Scope is an instance of a compiler-generated scope type.
type Scope struct {
	Name   string
	Fields map[string]any
}

// NewScope returns an empty scope instance.
func NewScope(name string) *Scope {
	return &Scope{Name: name, Fields: map[string]any{}}
}

// Closure binds a compiled function to the scopes array it was created with.
// Calling it passes the scopes array ahead of the arguments.
type Closure struct {
	Token  registry.Token
	Scopes []any
}

// NativeFunc is a runtime-provided function value.
type NativeFunc func(args []any) (any, error)

// ErrorObject is an Error, TypeError or RangeError.
type ErrorObject struct {
	Type    string
	Message string
}

func (e *ErrorObject) String() string {
	if e.Message == "" {
		return e.Type
	}
	return e.Type + ": " + e.Message
}

// Thrown wraps a thrown script value that is not an error object.
type Thrown struct {
	Value any
}

// Console is the console global.
type Console struct{}

// Deferred is a promise together with its resolving functions.
type Deferred struct {
	Promise *Promise
}

// typeName returns the runtime type name of a value as used by CastClass
// and IsInst.
func typeName(v any) string {
	switch v := v.(type) {
	case nil:
		return "undefined"
	case NullType:
		return "null"
	case float64:
		return "double"
	case bool:
		return "bool"
	case int:
		return "int"
	case Number:
		return registry.TypeNumber
	case Boolean:
		return registry.TypeBoolean
	case string:
		return registry.TypeString
	case []any:
		return lir.TypeObjectVector
	case *Array:
		return registry.TypeArray
	case *Float64Array:
		return registry.TypeFloat64Array
	case *Object:
		return v.Class
	case *Scope:
		return registry.ScopeTypeName(v.Name)
	case *Closure, NativeFunc:
		return "Function"
	case *ErrorObject:
		return v.Type
	case *Thrown:
		return registry.TypeThrown
	case *Console:
		return registry.TypeConsole
	case *Deferred:
		return registry.TypeDeferred
	case *Promise:
		return registry.TypePromise
	case *Generator:
		return registry.TypeGenerator
	case *AsyncGenerator:
		return registry.TypeAsyncGenerator
	}
	return fmt.Sprintf("%T", v)
}

// isInstance reports whether v is an instance of the named runtime type.
func isInstance(v any, name string) bool {
	switch name {
	case registry.TypeObject:
		_, ok := v.(*Object)
		return ok
	case registry.TypeError:
		_, ok := v.(*ErrorObject)
		return ok
	}
	if v == nil || v == Null {
		return false
	}
	return typeName(v) == name
}

// isObjectValue reports whether a constructor returning v replaces the new
// instance with it. Primitives, null and undefined never do.
func isObjectValue(v any) bool {
	switch v.(type) {
	case *Object, *Array, *Float64Array, []any, *Closure, NativeFunc,
		*ErrorObject, *Promise, *Generator, *AsyncGenerator:
		return true
	}
	return false
}

// primitive unwraps boxed primitives.
func primitive(v any) any {
	switch v := v.(type) {
	case Number:
		return float64(v)
	case Boolean:
		return bool(v)
	case int:
		return float64(v)
	}
	return v
}

func toBoolean(v any) bool {
	switch v := primitive(v).(type) {
	case nil, NullType:
		return false
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case string:
		return v != ""
	}
	return true
}

func toNumber(v any) float64 {
	switch v := primitive(v).(type) {
	case nil:
		return math.NaN()
	case NullType:
		return 0
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		return v
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case *Array:
		if len(v.Items) == 0 {
			return 0
		}
		if len(v.Items) == 1 {
			return toNumber(v.Items[0])
		}
	}
	return math.NaN()
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		exp = strings.TrimLeft(exp[1:], "0")
		return mantissa + "e" + sign + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// toString applies the script's string coercion.
func toString(v any) string {
	switch v := primitive(v).(type) {
	case nil:
		return "undefined"
	case NullType:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return formatNumber(v)
	case string:
		return v
	case *Array:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			if item != nil && item != Null {
				parts[i] = toString(item)
			}
		}
		return strings.Join(parts, ",")
	case *Float64Array:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = formatNumber(item)
		}
		return strings.Join(parts, ",")
	case *ErrorObject:
		return v.String()
	case *Thrown:
		return toString(v.Value)
	case *Closure, NativeFunc:
		return "function"
	case *Promise:
		return "[object Promise]"
	}
	return "[object Object]"
}

func typeOf(v any) string {
	switch primitive(v).(type) {
	case nil:
		return "undefined"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case *Closure, NativeFunc:
		return "function"
	}
	return "object"
}

// Inspect renders a value the way console.log prints it.
func Inspect(v any) string {
	return inspect(v)
}

func inspect(v any) string {
	return inspectDepth(v, 0, true)
}

func inspectDepth(v any, depth int, top bool) string {
	if depth > 4 {
		return "..."
	}
	switch v := v.(type) {
	case string:
		if top {
			return v
		}
		return strconv.Quote(v)
	case *Array:
		return inspectList(len(v.Items), func(i int) string { return inspectDepth(v.Items[i], depth+1, false) })
	case []any:
		return inspectList(len(v), func(i int) string { return inspectDepth(v[i], depth+1, false) })
	case *Float64Array:
		return "Float64Array(" + strconv.Itoa(len(v.Items)) + ") " +
			inspectList(len(v.Items), func(i int) string { return formatNumber(v.Items[i]) })
	case *Object:
		if len(v.keys) == 0 {
			return "{}"
		}
		parts := make([]string, len(v.keys))
		for i, key := range v.keys {
			parts[i] = key + ": " + inspectDepth(v.fields[key], depth+1, false)
		}
		prefix := ""
		if v.Class != registry.TypeObject {
			prefix = v.Class + " "
		}
		return prefix + "{ " + strings.Join(parts, ", ") + " }"
	case *Scope:
		keys := make([]string, 0, len(v.Fields))
		for key := range v.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, key := range keys {
			parts[i] = key + ": " + inspectDepth(v.Fields[key], depth+1, false)
		}
		return "Scope:" + v.Name + " { " + strings.Join(parts, ", ") + " }"
	case *Promise:
		switch v.state {
		case fulfilled:
			return "Promise { " + inspectDepth(v.value, depth+1, false) + " }"
		case rejected:
			return "Promise { <rejected> " + inspectDepth(v.value, depth+1, false) + " }"
		}
		return "Promise { <pending> }"
	case *Closure, NativeFunc:
		return "[Function]"
	case *Generator:
		return "Object [Generator] {}"
	case *AsyncGenerator:
		return "Object [AsyncGenerator] {}"
	}
	return toString(v)
}

func inspectList(n int, item func(int) string) string {
	if n == 0 {
		return "[]"
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = item(i)
	}
	return "[ " + strings.Join(parts, ", ") + " ]"
}

// strictEquals compares without coercion. Boxed and raw primitives of the
// same kind compare by value.
func strictEquals(a, b any) bool {
	a, b = primitive(a), primitive(b)
	switch a := a.(type) {
	case float64:
		bf, ok := b.(float64)
		return ok && a == bf
	case bool:
		bb, ok := b.(bool)
		return ok && a == bb
	case string:
		bs, ok := b.(string)
		return ok && a == bs
	case nil:
		return b == nil
	case NullType:
		return b == Null
	case []any:
		bs, ok := b.([]any)
		return ok && len(a) == len(bs) && (len(a) == 0 || &a[0] == &bs[0])
	case NativeFunc:
		return false
	}
	if _, ok := b.([]any); ok {
		return false
	}
	if _, ok := b.(NativeFunc); ok {
		return false
	}
	return a == b
}

// looseEquals is the script's == comparison.
func looseEquals(a, b any) bool {
	a, b = primitive(a), primitive(b)
	nullish := func(v any) bool { return v == nil || v == Null }
	if nullish(a) || nullish(b) {
		return nullish(a) && nullish(b)
	}
	switch av := a.(type) {
	case float64:
		switch b.(type) {
		case string, bool:
			return av == toNumber(b)
		}
	case string:
		switch bv := b.(type) {
		case float64:
			return toNumber(av) == bv
		case bool:
			return toNumber(av) == toNumber(bv)
		}
	case bool:
		if _, ok := b.(bool); !ok {
			return looseEquals(toNumber(av), b)
		}
	}
	return strictEquals(a, b)
}

func newTypeError(format string, args ...any) *Exception {
	return &Exception{Value: &ErrorObject{Type: registry.TypeTypeError, Message: fmt.Sprintf(format, args...)}}
}

func newRangeError(format string, args ...any) *Exception {
	return &Exception{Value: &ErrorObject{Type: registry.TypeRangeError, Message: fmt.Sprintf(format, args...)}}
}

// throwable wraps a script value so it can be thrown. Error objects and
// already wrapped values are thrown as they are.
func throwable(v any) any {
	switch v.(type) {
	case *ErrorObject, *Thrown:
		return v
	}
	return &Thrown{Value: v}
}

// thrownValue is the script value carried by a thrown object.
func thrownValue(v any) any {
	if t, ok := v.(*Thrown); ok {
		return t.Value
	}
	return v
}
