package vm

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/tomacox74/js2il-sub000/registry"
)

// callMember dispatches a member call on the runtime type of recv.
func (r *Runtime) callMember(recv any, name string, args []any) (any, error) {
	switch recv := recv.(type) {
	case *Console:
		switch name {
		case "log":
			return nil, r.print(r.out, args)
		case "error":
			return nil, r.print(r.errOut, args)
		}
	case *Array:
		if out, ok := arrayMember(recv, name, args); ok {
			return out, nil
		}
	case *Float64Array:
		if name == "fill" {
			x := toNumber(arg(args, 0))
			for i := range recv.Items {
				recv.Items[i] = x
			}
			return recv, nil
		}
	case string:
		switch name {
		case "charAt":
			i := int(toNumber(arg(args, 0)))
			if arg(args, 0) == nil {
				i = 0
			}
			if i < 0 || i >= len(recv) {
				return "", nil
			}
			return recv[i : i+1], nil
		case "toUpperCase":
			return strings.ToUpper(recv), nil
		case "toLowerCase":
			return strings.ToLower(recv), nil
		}
	case *Generator:
		switch name {
		case "next":
			return r.generatorNext(recv, arg(args, 0))
		case "return":
			return r.generatorReturn(recv, arg(args, 0))
		case "throw":
			return r.generatorThrow(recv, arg(args, 0))
		}
	case *AsyncGenerator:
		if name == "next" {
			return r.asyncGeneratorNext(recv, arg(args, 0))
		}
	case *Promise:
		switch name {
		case "then":
			return r.then(recv, r.handler(arg(args, 0)), r.handler(arg(args, 1))), nil
		case "catch":
			return r.then(recv, nil, r.handler(arg(args, 0))), nil
		}
	case *Deferred:
		switch name {
		case "resolve":
			r.resolve(recv.Promise, arg(args, 0))
			return nil, nil
		case "reject":
			r.reject(recv.Promise, arg(args, 0))
			return nil, nil
		}
	case *Object:
		fn := recv.Get(name)
		switch fn.(type) {
		case *Closure, NativeFunc:
			return r.callValue(fn, args)
		}
	case nil, NullType:
		return nil, newTypeError("cannot read properties of %s (reading '%s')", toString(recv), name)
	}
	return nil, newTypeError("%s.%s is not a function", typeName(recv), name)
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func (r *Runtime) print(w io.Writer, args []any) error {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = inspect(a)
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}

// handler adapts a script callback for a promise reaction. Values that are
// not callable pass the outcome through.
func (r *Runtime) handler(fn any) func(any) (any, error) {
	switch fn.(type) {
	case *Closure, NativeFunc:
		return func(v any) (any, error) { return r.callValue(fn, []any{v}) }
	}
	return nil
}

func arrayMember(a *Array, name string, args []any) (any, bool) {
	switch name {
	case "push":
		a.Items = append(a.Items, args...)
		return Number(len(a.Items)), true
	case "pop":
		n := len(a.Items)
		if n == 0 {
			return nil, true
		}
		v := a.Items[n-1]
		a.Items = a.Items[:n-1]
		return v, true
	case "join":
		sep := ","
		if s := arg(args, 0); s != nil {
			sep = toString(s)
		}
		parts := make([]string, len(a.Items))
		for i, item := range a.Items {
			if item != nil && item != Null {
				parts[i] = toString(item)
			}
		}
		return strings.Join(parts, sep), true
	case "indexOf":
		for i, item := range a.Items {
			if strictEquals(item, arg(args, 0)) {
				return Number(i), true
			}
		}
		return Number(-1), true
	case "includes":
		for _, item := range a.Items {
			if strictEquals(item, arg(args, 0)) {
				return Boolean(true), true
			}
		}
		return Boolean(false), true
	case "slice":
		n := len(a.Items)
		start := relativeIndex(arg(args, 0), n, 0)
		end := relativeIndex(arg(args, 1), n, n)
		out := &Array{}
		if start < end {
			out.Items = append(out.Items, a.Items[start:end]...)
		}
		return out, true
	}
	return nil, false
}

// relativeIndex clamps a slice bound, counting negative values from the end.
func relativeIndex(v any, n, def int) int {
	if v == nil {
		return def
	}
	x := toNumber(v)
	if math.IsNaN(x) {
		return 0
	}
	i := int(x)
	if x < 0 {
		i = n + int(x)
	}
	return max(0, min(i, n))
}

// newObject creates an instance of a runtime-library type for NewObj.
func (r *Runtime) newObject(name string, args []any) (any, error) {
	switch name {
	case registry.TypeObject:
		return NewObject(registry.TypeObject), nil
	case registry.TypeArray:
		return &Array{Items: append([]any(nil), args...)}, nil
	case registry.TypeFloat64Array:
		n := 0
		if len(args) > 0 {
			x := toNumber(args[0])
			if x < 0 || math.IsNaN(x) || x != math.Trunc(x) {
				return nil, newRangeError("invalid typed array length: %s", toString(args[0]))
			}
			n = int(x)
		}
		return &Float64Array{Items: make([]float64, n)}, nil
	case registry.TypeError, registry.TypeTypeError, registry.TypeRangeError:
		e := &ErrorObject{Type: name}
		if m := arg(args, 0); m != nil {
			e.Message = toString(m)
		}
		return e, nil
	case registry.TypeDeferred:
		return &Deferred{Promise: &Promise{}}, nil
	case registry.TypePromise:
		return r.newPromise(arg(args, 0))
	case registry.TypeThrown:
		return &Thrown{Value: arg(args, 0)}, nil
	case registry.TypeGenerator:
		step, vec, err := suspendArgs(args)
		if err != nil {
			return nil, err
		}
		return &Generator{step: step, args: vec}, nil
	case registry.TypeAsyncGenerator:
		moveNext, vec, err := suspendArgs(args)
		if err != nil {
			return nil, err
		}
		return &AsyncGenerator{moveNext: moveNext, args: vec}, nil
	}
	if scope, ok := strings.CutPrefix(name, registry.ScopeTypeName("")); ok {
		return NewScope(scope), nil
	}
	return nil, fmt.Errorf("unknown runtime type %q", name)
}

func suspendArgs(args []any) (*Closure, []any, error) {
	if len(args) != 2 {
		return nil, nil, fmt.Errorf("expected a closure and an argument vector, got %d values", len(args))
	}
	c, ok := args[0].(*Closure)
	if !ok {
		return nil, nil, fmt.Errorf("expected a closure, got %s", typeName(args[0]))
	}
	vec, ok := args[1].([]any)
	if !ok {
		return nil, nil, fmt.Errorf("expected an argument vector, got %s", typeName(args[1]))
	}
	if len(c.Scopes) == 0 {
		return nil, nil, fmt.Errorf("closure has no leaf scope")
	}
	if _, ok := c.Scopes[0].(*Scope); !ok {
		return nil, nil, fmt.Errorf("closure has no leaf scope")
	}
	return c, vec, nil
}

func (r *Runtime) newPromise(executor any) (any, error) {
	p := &Promise{}
	resolve := NativeFunc(func(args []any) (any, error) {
		r.resolve(p, arg(args, 0))
		return nil, nil
	})
	reject := NativeFunc(func(args []any) (any, error) {
		r.reject(p, arg(args, 0))
		return nil, nil
	})
	if _, err := r.callValue(executor, []any{resolve, reject}); err != nil {
		exc, ok := AsException(err)
		if !ok {
			return nil, err
		}
		r.reject(p, exc.ThrownValue())
	}
	return p, nil
}

// className is the class of instances created by a constructor.
func className(constructor string) string {
	return strings.TrimSuffix(constructor, ".constructor")
}

func loadField(obj any, name string) (any, error) {
	switch obj := obj.(type) {
	case *Scope:
		return obj.Fields[name], nil
	case *Object:
		return obj.Get(name), nil
	case *ErrorObject:
		switch name {
		case "message":
			return obj.Message, nil
		case "name":
			return obj.Type, nil
		}
	case *Thrown:
		if name == registry.FieldThrownValue {
			return obj.Value, nil
		}
	case *Deferred:
		if name == registry.FieldPromise {
			return obj.Promise, nil
		}
	case *Array:
		if name == "length" {
			return Number(len(obj.Items)), nil
		}
	case *Float64Array:
		if name == "length" {
			return Number(len(obj.Items)), nil
		}
	case string:
		if name == "length" {
			return Number(len(obj)), nil
		}
	case nil, NullType:
		return nil, newTypeError("cannot read properties of %s (reading '%s')", toString(obj), name)
	}
	return nil, nil
}

func storeField(obj any, name string, value any) error {
	switch obj := obj.(type) {
	case *Scope:
		obj.Fields[name] = value
	case *Object:
		obj.Set(name, value)
	case *ErrorObject:
		if name == "message" {
			obj.Message = toString(value)
		}
	case nil, NullType:
		return newTypeError("cannot set properties of %s (setting '%s')", toString(obj), name)
	}
	return nil
}

func (r *Runtime) callHelper(name string, args []any) (any, error) {
	switch name {
	case registry.HelperToBoolean:
		return toBoolean(arg(args, 0)), nil
	case registry.HelperToNumber:
		return toNumber(arg(args, 0)), nil
	case registry.HelperToString:
		return toString(arg(args, 0)), nil
	case registry.HelperTypeOf:
		return typeOf(arg(args, 0)), nil
	case registry.HelperConcat:
		return toString(toPrimitive(arg(args, 0))) + toString(toPrimitive(arg(args, 1))), nil
	case registry.HelperGetItem:
		return getItem(arg(args, 0), arg(args, 1))
	case registry.HelperSetItem:
		return arg(args, 2), setItem(arg(args, 0), arg(args, 1), arg(args, 2))
	case registry.HelperGetLength:
		return getLength(arg(args, 0))
	case registry.HelperNewArray:
		vec, ok := arg(args, 0).([]any)
		if !ok {
			return nil, fmt.Errorf("expected an object vector, got %s", typeName(arg(args, 0)))
		}
		return &Array{Items: append([]any(nil), vec...)}, nil
	case registry.HelperToVector:
		switch v := arg(args, 0).(type) {
		case []any:
			return v, nil
		case *Array:
			return append([]any(nil), v.Items...), nil
		}
		return nil, fmt.Errorf("expected an array, got %s", typeName(arg(args, 0)))
	case registry.HelperAwaitValue:
		return awaitValue(arg(args, 0))
	case registry.HelperCreateThrowable:
		return throwable(arg(args, 0)), nil
	case registry.HelperPrependScope:
		scopes, ok := arg(args, 1).([]any)
		if !ok {
			return nil, fmt.Errorf("expected a scopes array, got %s", typeName(arg(args, 1)))
		}
		out := make([]any, 0, len(scopes)+1)
		return append(append(out, arg(args, 0)), scopes...), nil
	case registry.HelperIterResult:
		return iterResult(arg(args, 0), toBoolean(arg(args, 1))), nil
	case registry.HelperAwaitContinue:
		return nil, r.awaitContinue(arg(args, 0), arg(args, 1), arg(args, 2))
	case registry.HelperThrowIfResumeException:
		leaf, ok := arg(args, 0).(*Scope)
		if !ok {
			return nil, fmt.Errorf("expected a leaf scope, got %s", typeName(arg(args, 0)))
		}
		if toBoolean(leaf.Fields[registry.FieldHasResumeException]) {
			leaf.Fields[registry.FieldHasResumeException] = false
			reason := leaf.Fields[registry.FieldResumeException]
			delete(leaf.Fields, registry.FieldResumeException)
			return nil, &Exception{Value: throwable(reason)}
		}
		return nil, nil
	case registry.HelperPromiseResolve:
		return r.resolved(arg(args, 0)), nil
	case registry.HelperPromiseReject:
		return r.rejectedWith(arg(args, 0)), nil
	}
	if op, ok := dynamicOps[name]; ok {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s expects 2 operands, got %d", name, len(args))
		}
		return op(args[0], args[1]), nil
	}
	return nil, fmt.Errorf("unknown helper %q", name)
}

// awaitValue unwraps an awaited value without suspending. A pending
// promise cannot be waited for here.
func awaitValue(v any) (any, error) {
	p, ok := v.(*Promise)
	if !ok {
		return v, nil
	}
	switch p.state {
	case fulfilled:
		return p.value, nil
	case rejected:
		return nil, &Exception{Value: throwable(p.value)}
	}
	return nil, errors.New("cannot await a pending promise in a method that does not suspend")
}

func iterResult(value any, done bool) *Object {
	o := NewObject(registry.TypeObject)
	o.Set("value", value)
	o.Set("done", Boolean(done))
	return o
}

// awaitContinue re-enters the suspended method owning leaf once value
// settles, storing a fulfilled value in the given leaf field or recording
// the rejection reason for ThrowIfResumeException.
func (r *Runtime) awaitContinue(leafValue, value, fieldValue any) error {
	leaf, ok := leafValue.(*Scope)
	if !ok {
		return fmt.Errorf("expected a leaf scope, got %s", typeName(leafValue))
	}
	field, ok := fieldValue.(string)
	if !ok {
		return fmt.Errorf("expected a field name, got %s", typeName(fieldValue))
	}
	moveNext := func() (any, error) {
		args, _ := leaf.Fields[registry.FieldArgs].([]any)
		return r.callValue(leaf.Fields[registry.FieldMoveNext], args)
	}
	r.then(r.resolved(value),
		func(v any) (any, error) {
			leaf.Fields[field] = v
			return moveNext()
		},
		func(reason any) (any, error) {
			leaf.Fields[registry.FieldHasResumeException] = true
			leaf.Fields[registry.FieldResumeException] = reason
			return moveNext()
		})
	return nil
}

func getItem(obj, index any) (any, error) {
	switch o := obj.(type) {
	case *Array:
		if i, ok := arrayIndex(index); ok {
			if i < len(o.Items) {
				return o.Items[i], nil
			}
			return nil, nil
		}
		if toString(index) == "length" {
			return Number(len(o.Items)), nil
		}
	case []any:
		if i, ok := arrayIndex(index); ok && i < len(o) {
			return o[i], nil
		}
	case *Float64Array:
		if i, ok := arrayIndex(index); ok && i < len(o.Items) {
			return Number(o.Items[i]), nil
		}
	case string:
		if i, ok := arrayIndex(index); ok && i < len(o) {
			return o[i : i+1], nil
		}
	case *Object:
		return o.Get(toString(index)), nil
	case *Scope:
		return o.Fields[toString(index)], nil
	case nil, NullType:
		return nil, newTypeError("cannot read properties of %s (reading '%s')", toString(obj), toString(index))
	}
	return nil, nil
}

func setItem(obj, index, value any) error {
	switch o := obj.(type) {
	case *Array:
		if i, ok := arrayIndex(index); ok {
			o.set(i, value)
		}
	case []any:
		if i, ok := arrayIndex(index); ok && i < len(o) {
			o[i] = value
		}
	case *Float64Array:
		if i, ok := arrayIndex(index); ok && i < len(o.Items) {
			o.Items[i] = toNumber(value)
		}
	case *Object:
		o.Set(toString(index), value)
	case *Scope:
		o.Fields[toString(index)] = value
	case nil, NullType:
		return newTypeError("cannot set properties of %s (setting '%s')", toString(obj), toString(index))
	}
	return nil
}

// arrayIndex returns index as a non-negative integer, when it is one.
func arrayIndex(index any) (int, bool) {
	var x float64
	switch v := primitive(index).(type) {
	case float64:
		x = v
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		x = float64(n)
	default:
		return 0, false
	}
	if x < 0 || x != math.Trunc(x) || x > math.MaxInt32 {
		return 0, false
	}
	return int(x), true
}

func getLength(v any) (any, error) {
	switch v := v.(type) {
	case *Array:
		return float64(len(v.Items)), nil
	case *Float64Array:
		return float64(len(v.Items)), nil
	case []any:
		return float64(len(v)), nil
	case string:
		return float64(len(v)), nil
	case *Object:
		return toNumber(v.Get("length")), nil
	case nil, NullType:
		return nil, newTypeError("cannot read properties of %s (reading 'length')", toString(v))
	}
	return math.NaN(), nil
}

// toPrimitive converts references to their string form and unwraps boxed
// primitives.
func toPrimitive(v any) any {
	switch v := primitive(v).(type) {
	case nil, NullType, bool, float64, string:
		return v
	default:
		return toString(v)
	}
}

var dynamicOps = map[string]func(a, b any) any{
	"Add": func(a, b any) any {
		a, b = toPrimitive(a), toPrimitive(b)
		_, as := a.(string)
		_, bs := b.(string)
		if as || bs {
			return toString(a) + toString(b)
		}
		return Number(toNumber(a) + toNumber(b))
	},
	"Sub": func(a, b any) any { return Number(toNumber(a) - toNumber(b)) },
	"Mul": func(a, b any) any { return Number(toNumber(a) * toNumber(b)) },
	"Div": func(a, b any) any { return Number(toNumber(a) / toNumber(b)) },
	"Mod": func(a, b any) any { return Number(math.Mod(toNumber(a), toNumber(b))) },
	"LessThan": func(a, b any) any {
		return compare(a, b, func(c int) bool { return c < 0 })
	},
	"GreaterThan": func(a, b any) any {
		return compare(a, b, func(c int) bool { return c > 0 })
	},
	"LessThanOrEqual": func(a, b any) any {
		return compare(a, b, func(c int) bool { return c <= 0 })
	},
	"GreaterThanOrEqual": func(a, b any) any {
		return compare(a, b, func(c int) bool { return c >= 0 })
	},
	"Equal":          func(a, b any) any { return looseEquals(a, b) },
	"NotEqual":       func(a, b any) any { return !looseEquals(a, b) },
	"StrictEqual":    func(a, b any) any { return strictEquals(a, b) },
	"StrictNotEqual": func(a, b any) any { return !strictEquals(a, b) },
}

// compare applies a relational comparison: by code units when both operands
// are strings, numerically otherwise. NaN compares false.
func compare(a, b any, test func(int) bool) bool {
	a, b = toPrimitive(a), toPrimitive(b)
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return test(strings.Compare(as, bs))
	}
	x, y := toNumber(a), toNumber(b)
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return false
	case x < y:
		return test(-1)
	case x > y:
		return test(1)
	}
	return test(0)
}
