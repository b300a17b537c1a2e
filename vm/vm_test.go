package vm

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomacox74/js2il-sub000/bytecode"
	"github.com/tomacox74/js2il-sub000/compiler"
	"github.com/tomacox74/js2il-sub000/lir"
	"github.com/tomacox74/js2il-sub000/op"
	"github.com/tomacox74/js2il-sub000/registry"
)

func compile(t *testing.T, table *registry.Table, body *lir.MethodBody, desc lir.MethodDescriptor) *bytecode.Code {
	t.Helper()
	cfg := compiler.DefaultConfig()
	cfg.Debug = true
	code, err := compiler.Compile(body, desc, table, cfg)
	require.Nil(t, err)
	return code
}

func newRuntime(codes ...*bytecode.Code) (*Runtime, *bytes.Buffer) {
	var out bytes.Buffer
	return New(codes, WithOutput(&out, nil)), &out
}

// logValues emits console.log(values...).
func logValues(b *lir.Builder, values ...lir.Temp) {
	console := b.Global("console")
	arr := b.Temp(lir.ObjectArray)
	b.Emit(&lir.NewObjectArray{Length: len(values), Result: arr})
	for i, v := range values {
		b.Emit(&lir.BeginInitArrayElement{Array: arr, Index: i})
		b.Emit(&lir.StoreElementRef{Array: arr, Index: i, Value: v})
	}
	b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "log", ArgumentsArray: arr, Result: b.Temp(lir.Object)})
}

func TestRunLogSum(t *testing.T) {
	b := lir.NewBuilder("main")
	x := b.VariableTemp(b.Variable("x", lir.Double))
	y := b.VariableTemp(b.Variable("y", lir.Double))
	b.Emit(&lir.ConstNumber{Value: 2, Result: x})
	b.Emit(&lir.ConstNumber{Value: 3, Result: y})
	sum := b.Temp(lir.Double)
	b.Emit(&lir.BinaryNumber{Op: lir.AddNumber, Left: x, Right: y, Result: sum})
	logValues(b, b.Box(sum))
	b.Emit(&lir.Return{Value: lir.NoTemp})

	code := compile(t, registry.NewTable(), b.Build(), lir.MethodDescriptor{})
	r, out := newRuntime(code)
	result, err := r.Run(context.Background(), 0)
	require.Nil(t, err)
	require.Nil(t, result)
	require.Equal(t, "5\n", out.String())
	require.Greater(t, r.Steps(), int64(0))
}

// runWithPeephole compiles the body with the peephole on and off and returns
// the console output of each run.
func runWithPeephole(t *testing.T, build func() *lir.MethodBody) (on, off string) {
	t.Helper()
	outputs := map[bool]string{}
	for _, peephole := range []bool{true, false} {
		cfg := compiler.DefaultConfig()
		cfg.Peephole = peephole
		code, err := compiler.Compile(build(), lir.MethodDescriptor{}, registry.NewTable(), cfg)
		require.Nil(t, err, "peephole=%v", peephole)
		r, out := newRuntime(code)
		_, err = r.Run(context.Background(), 0)
		require.Nil(t, err, "peephole=%v", peephole)
		outputs[peephole] = out.String()
	}
	return outputs[true], outputs[false]
}

// logUpdate logs x once around an increment or decrement of x (boxing the
// old value before the update, or the new value after it) and then logs x
// again.
func logUpdate(op lir.NumberOp, boxNew, boxAfter bool) func() *lir.MethodBody {
	return func() *lir.MethodBody {
		b := lir.NewBuilder("main")
		x := b.Variable("x", lir.Double)
		before := b.VariableTemp(x)
		b.Emit(&lir.ConstNumber{Value: 5, Result: before})
		console := b.Global("console")
		arr := b.Temp(lir.ObjectArray)
		b.Emit(&lir.NewObjectArray{Length: 1, Result: arr})
		b.Emit(&lir.BeginInitArrayElement{Array: arr, Index: 0})
		one := b.Number(1)
		after := b.VariableTemp(x)
		src := before
		if boxNew {
			src = after
		}
		var boxed lir.Temp
		if !boxAfter {
			boxed = b.Box(src)
		}
		b.Emit(&lir.BinaryNumber{Op: op, Left: before, Right: one, Result: after})
		if boxAfter {
			boxed = b.Box(src)
		}
		b.Emit(&lir.StoreElementRef{Array: arr, Index: 0, Value: boxed})
		b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "log", ArgumentsArray: arr, Result: b.Temp(lir.Object)})
		logValues(b, b.Box(after))
		b.Emit(&lir.Return{Value: lir.NoTemp})
		return b.Build()
	}
}

func TestRunPeepholeEquivalence(t *testing.T) {
	tests := []struct {
		name  string
		build func() *lir.MethodBody
		want  string
	}{
		{
			"element by element",
			func() *lir.MethodBody {
				b := lir.NewBuilder("main")
				sum := b.Temp(lir.Double)
				b.Emit(&lir.BinaryNumber{Op: lir.AddNumber, Left: b.Number(2), Right: b.Number(3), Result: sum})
				logValues(b, b.Box(b.Number(1)), b.Box(sum))
				b.Emit(&lir.Return{Value: lir.NoTemp})
				return b.Build()
			},
			"1 5\n",
		},
		{
			"object array with elements",
			func() *lir.MethodBody {
				b := lir.NewBuilder("main")
				console := b.Global("console")
				arr := b.Temp(lir.ObjectArray)
				b.Emit(&lir.NewObjectArray{Elements: []lir.Temp{b.Box(b.Number(1)), b.String("x")}, Result: arr})
				b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "log", ArgumentsArray: arr, Result: b.Temp(lir.Object)})
				b.Emit(&lir.Return{Value: lir.NoTemp})
				return b.Build()
			},
			"1 x\n",
		},
		{
			"array literal",
			func() *lir.MethodBody {
				b := lir.NewBuilder("main")
				one, x := b.Box(b.Number(1)), b.String("x")
				console := b.Global("console")
				arr := b.Temp(lir.Ref(lir.TypeArray))
				b.Emit(&lir.BuildArray{Elements: []lir.Temp{one, x}, Result: arr})
				b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "log", ArgumentsArray: arr, Result: b.Temp(lir.Object)})
				b.Emit(&lir.Return{Value: lir.NoTemp})
				return b.Build()
			},
			"1 x\n",
		},
		{"x++", logUpdate(lir.AddNumber, false, false), "5\n6\n"},
		{"++x", logUpdate(lir.AddNumber, true, true), "6\n6\n"},
		{"x--", logUpdate(lir.SubNumber, false, false), "5\n4\n"},
		{"--x", logUpdate(lir.SubNumber, true, true), "4\n4\n"},
		// The old temp names the variable slot, so boxing it after the
		// update observes the new value.
		{"old temp boxed after update", logUpdate(lir.AddNumber, false, true), "6\n6\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			on, off := runWithPeephole(t, tt.build)
			require.Equal(t, tt.want, off)
			require.Equal(t, tt.want, on)
		})
	}
}

func TestRunTryCatch(t *testing.T) {
	tests := []struct {
		name   string
		throws bool
		want   any
	}{
		{"callee returns", false, Number(1)},
		{"callee throws", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := registry.NewTable()
			_, err := table.AddFunction(registry.Function{ID: "f", Name: "f"})
			require.Nil(t, err)
			_, err = table.AddFunction(registry.Function{ID: "main", Name: "main"})
			require.Nil(t, err)

			fb := lir.NewBuilder("f")
			if tt.throws {
				fb.Emit(&lir.Throw{Value: fb.String("boom")})
			} else {
				fb.Emit(&lir.Return{Value: lir.NoTemp})
			}

			b := lir.NewBuilder("main")
			tryStart, handler, end := b.NewLabel(), b.NewLabel(), b.NewLabel()
			b.Region(lir.ExceptionRegion{Kind: lir.Catch, TryStart: tryStart, TryEnd: handler, HandlerStart: handler, HandlerEnd: end})
			b.Mark(tryStart)
			b.Emit(&lir.CallFunction{Callee: "f", ScopesArray: lir.NoTemp, Result: b.Temp(lir.Object)})
			b.Emit(&lir.Return{Value: b.Box(b.Number(1))})
			b.Mark(handler)
			b.Emit(&lir.StoreException{Result: b.Temp(lir.Object)})
			b.Emit(&lir.Leave{Target: end})
			b.Mark(end)
			b.Emit(&lir.Return{Value: lir.NoTemp})

			r, _ := newRuntime(
				compile(t, table, fb.Build(), lir.MethodDescriptor{}),
				compile(t, table, b.Build(), lir.MethodDescriptor{}))
			result, err := r.Run(context.Background(), 1)
			require.Nil(t, err)
			require.Equal(t, tt.want, result)
		})
	}
}

func TestRunUncaughtThrow(t *testing.T) {
	b := lir.NewBuilder("main")
	b.Emit(&lir.Throw{Value: b.String("boom")})
	r, _ := newRuntime(compile(t, registry.NewTable(), b.Build(), lir.MethodDescriptor{}))

	_, err := r.Run(context.Background(), 0)
	exc, ok := AsException(err)
	require.True(t, ok, "got %v", err)
	require.Equal(t, "boom", exc.ThrownValue())
	require.Equal(t, "uncaught exception: boom", err.Error())
}

func TestRunGenerator(t *testing.T) {
	table := registry.NewTable()
	_, err := table.AddFunction(registry.Function{ID: "gen", Name: "gen", HasScopes: true})
	require.Nil(t, err)

	b := lir.NewBuilder("gen").Generator().LeafScope("gen")
	b.Emit(&lir.CreateLeafScope{})
	b.Emit(&lir.Yield{Value: b.Box(b.Number(1)), Result: b.Temp(lir.Object)})
	b.Emit(&lir.Yield{Value: b.Box(b.Number(2)), Result: b.Temp(lir.Object)})
	b.Emit(&lir.Return{Value: lir.NoTemp})
	desc := lir.MethodDescriptor{HasScopesParameter: true}

	r, _ := newRuntime(compile(t, table, b.Build(), desc))
	ctx := context.Background()
	g, err := r.Call(ctx, 0, []any{})
	require.Nil(t, err)
	require.IsType(t, &Generator{}, g)

	var got []string
	for i := 0; i < 4; i++ {
		res, err := r.callMember(g, "next", nil)
		require.Nil(t, err)
		got = append(got, inspect(res))
	}
	require.Equal(t, []string{
		"{ value: 1, done: false }",
		"{ value: 2, done: false }",
		"{ value: undefined, done: true }",
		"{ value: undefined, done: true }",
	}, got)
}

func TestRunGeneratorFallsOffEnd(t *testing.T) {
	table := registry.NewTable()
	_, err := table.AddFunction(registry.Function{ID: "gen", Name: "gen", HasScopes: true})
	require.Nil(t, err)

	b := lir.NewBuilder("gen").Generator().LeafScope("gen")
	b.Emit(&lir.Yield{Value: b.Box(b.Number(7)), Result: b.Temp(lir.Object)})
	r, _ := newRuntime(compile(t, table, b.Build(), lir.MethodDescriptor{HasScopesParameter: true}))

	g, err := r.Call(context.Background(), 0, []any{})
	require.Nil(t, err)
	first, err := r.callMember(g, "next", nil)
	require.Nil(t, err)
	require.Equal(t, "{ value: 7, done: false }", inspect(first))
	second, err := r.callMember(g, "next", nil)
	require.Nil(t, err)
	require.Equal(t, "{ value: undefined, done: true }", inspect(second))
}

func TestGeneratorReturnAndThrowBeforeStart(t *testing.T) {
	table := registry.NewTable()
	_, err := table.AddFunction(registry.Function{ID: "gen", Name: "gen", HasScopes: true})
	require.Nil(t, err)
	b := lir.NewBuilder("gen").Generator().LeafScope("gen")
	b.Emit(&lir.Yield{Value: b.Box(b.Number(1)), HandleThrowReturn: true, Result: b.Temp(lir.Object)})
	b.Emit(&lir.Return{Value: lir.NoTemp})
	r, _ := newRuntime(compile(t, table, b.Build(), lir.MethodDescriptor{HasScopesParameter: true}))
	ctx := context.Background()

	g, err := r.Call(ctx, 0, []any{})
	require.Nil(t, err)
	res, err := r.callMember(g, "return", []any{Number(9)})
	require.Nil(t, err)
	require.Equal(t, "{ value: 9, done: true }", inspect(res))
	res, err = r.callMember(g, "next", nil)
	require.Nil(t, err)
	require.Equal(t, "{ value: undefined, done: true }", inspect(res))

	g, err = r.Call(ctx, 0, []any{})
	require.Nil(t, err)
	_, err = r.callMember(g, "throw", []any{"early"})
	exc, ok := AsException(err)
	require.True(t, ok)
	require.Equal(t, "early", exc.ThrownValue())

	g, err = r.Call(ctx, 0, []any{})
	require.Nil(t, err)
	_, err = r.callMember(g, "next", nil)
	require.Nil(t, err)
	res, err = r.callMember(g, "return", []any{Number(5)})
	require.Nil(t, err)
	require.Equal(t, "{ value: 5, done: true }", inspect(res))
}

func TestRunAsyncAwait(t *testing.T) {
	table := registry.NewTable()
	_, err := table.AddFunction(registry.Function{ID: "run", Name: "run", HasScopes: true})
	require.Nil(t, err)

	b := lir.NewBuilder("run").Async().LeafScope("run")
	logValues(b, b.String("start"))
	first := b.Temp(lir.Object)
	b.Emit(&lir.Await{Value: b.Box(b.Number(1)), Result: first})
	second := b.Temp(lir.Object)
	b.Emit(&lir.Await{Value: b.Box(b.Number(2)), Result: second})
	logValues(b, first, second)
	b.Emit(&lir.Return{Value: second})

	r, out := newRuntime(compile(t, table, b.Build(), lir.MethodDescriptor{HasScopesParameter: true}))
	result, err := r.Run(context.Background(), 0, []any{})
	require.Nil(t, err)
	require.Equal(t, Number(2), result)
	require.Equal(t, "start\n1 2\n", out.String())
	require.Equal(t, 0, r.Pending())
}

func TestRunAsyncRejection(t *testing.T) {
	table := registry.NewTable()
	_, err := table.AddFunction(registry.Function{ID: "run", Name: "run", HasScopes: true})
	require.Nil(t, err)

	b := lir.NewBuilder("run").Async().LeafScope("run")
	b.Emit(&lir.Await{Value: b.Box(b.Number(1)), Result: b.Temp(lir.Object)})
	b.Emit(&lir.Throw{Value: b.String("late")})

	r, _ := newRuntime(compile(t, table, b.Build(), lir.MethodDescriptor{HasScopesParameter: true}))
	_, err = r.Run(context.Background(), 0, []any{})
	exc, ok := AsException(err)
	require.True(t, ok, "got %v", err)
	require.Equal(t, "late", exc.ThrownValue())
}

func TestRunAsyncInlineAwait(t *testing.T) {
	build := func() *lir.MethodBody {
		b := lir.NewBuilder("run").Async().InlineAwaits()
		p := b.Temp(lir.Object)
		b.Emit(&lir.LoadParameter{Index: 0, Result: p})
		v := b.Temp(lir.Object)
		b.Emit(&lir.Await{Value: p, Result: v})
		b.Emit(&lir.Return{Value: v})
		return b.Build()
	}
	desc := lir.MethodDescriptor{Params: []string{"p"}}

	tests := []struct {
		name  string
		input any
		want  any
	}{
		{"plain value", Number(3), Number(3)},
		{"fulfilled promise", &Promise{state: fulfilled, value: Number(4)}, Number(4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRuntime(compile(t, registry.NewTable(), build(), desc))
			result, err := r.Run(context.Background(), 0, tt.input)
			require.Nil(t, err)
			require.Equal(t, tt.want, result)
		})
	}

	t.Run("rejected promise", func(t *testing.T) {
		r, _ := newRuntime(compile(t, registry.NewTable(), build(), desc))
		_, err := r.Run(context.Background(), 0, &Promise{state: rejected, value: "no"})
		exc, ok := AsException(err)
		require.True(t, ok, "got %v", err)
		require.Equal(t, "no", exc.ThrownValue())
	})

	t.Run("pending promise", func(t *testing.T) {
		r, _ := newRuntime(compile(t, registry.NewTable(), build(), desc))
		_, err := r.Run(context.Background(), 0, &Promise{})
		var fault *Fault
		require.True(t, errors.As(err, &fault), "got %v", err)
		require.Contains(t, err.Error(), "cannot await a pending promise")
	})
}

func TestRunAsyncGenerator(t *testing.T) {
	table := registry.NewTable()
	_, err := table.AddFunction(registry.Function{ID: "agen", Name: "agen", HasScopes: true})
	require.Nil(t, err)

	b := lir.NewBuilder("agen").Generator().Async().LeafScope("agen")
	v := b.Temp(lir.Object)
	b.Emit(&lir.Await{Value: b.Box(b.Number(1)), Result: v})
	b.Emit(&lir.Yield{Value: v, Result: b.Temp(lir.Object)})
	b.Emit(&lir.Return{Value: lir.NoTemp})

	r, _ := newRuntime(compile(t, table, b.Build(), lir.MethodDescriptor{HasScopesParameter: true}))
	ctx := context.Background()
	g, err := r.Call(ctx, 0, []any{})
	require.Nil(t, err)
	require.IsType(t, &AsyncGenerator{}, g)

	for _, want := range []string{
		"{ value: 1, done: false }",
		"{ value: undefined, done: true }",
		"{ value: undefined, done: true }",
	} {
		p, err := r.callMember(g, "next", nil)
		require.Nil(t, err)
		require.Nil(t, r.Drain(ctx))
		promise, ok := p.(*Promise)
		require.True(t, ok)
		require.Equal(t, "fulfilled", promise.State())
		require.Equal(t, want, inspect(promise.Value()))
	}
}

func code(name string, locals int, regions []bytecode.ExceptionRegion, consts []any, instrs ...op.Code) *bytecode.Code {
	types := make([]bytecode.LocalType, locals)
	for i := range types {
		types[i] = bytecode.LocalType{Kind: bytecode.LocalObject}
	}
	return bytecode.NewCode(bytecode.CodeParams{
		Name:         name,
		Instructions: instrs,
		Constants:    consts,
		Names:        []string{"Error"},
		MaxStack:     4,
		Locals:       types,
		Regions:      regions,
	})
}

func TestFinallyOnLeave(t *testing.T) {
	c := code("main", 1,
		[]bytecode.ExceptionRegion{
			{Kind: bytecode.RegionFinally, TryStart: 0, TryEnd: 5, HandlerStart: 5, HandlerEnd: 10},
		},
		[]any{"try", "finally"},
		op.LdStr, 0,
		op.Pop,
		op.Leave, 10,
		op.LdStr, 1,
		op.StLoc, 0,
		op.EndFinally,
		op.LdLoc, 0,
		op.Ret,
	)
	r, _ := newRuntime(c)
	result, err := r.Run(context.Background(), 0)
	require.Nil(t, err)
	require.Equal(t, "finally", result)
}

func TestFinallyThenOuterCatch(t *testing.T) {
	c := code("main", 2,
		[]bytecode.ExceptionRegion{
			{Kind: bytecode.RegionFinally, TryStart: 0, TryEnd: 3, HandlerStart: 3, HandlerEnd: 8},
			{Kind: bytecode.RegionCatch, TryStart: 0, TryEnd: 8, HandlerStart: 8, HandlerEnd: 12},
		},
		[]any{"boom", "fin"},
		op.LdStr, 0,
		op.Throw,
		op.LdStr, 1,
		op.StLoc, 0,
		op.EndFinally,
		op.StLoc, 1,
		op.Leave, 12,
		op.LdLoc, 0,
		op.Ret,
	)
	r, _ := newRuntime(c)
	result, err := r.Run(context.Background(), 0)
	require.Nil(t, err)
	require.Equal(t, "fin", result)
}

func TestFinallyRethrowsOutOfFrame(t *testing.T) {
	c := code("main", 1,
		[]bytecode.ExceptionRegion{
			{Kind: bytecode.RegionFinally, TryStart: 0, TryEnd: 3, HandlerStart: 3, HandlerEnd: 4},
		},
		[]any{"boom"},
		op.LdStr, 0,
		op.Throw,
		op.EndFinally,
	)
	r, _ := newRuntime(c)
	_, err := r.Run(context.Background(), 0)
	exc, ok := AsException(err)
	require.True(t, ok, "got %v", err)
	require.Equal(t, "boom", exc.ThrownValue())
}

func TestCatchTypeFilter(t *testing.T) {
	c := code("main", 0,
		[]bytecode.ExceptionRegion{
			{Kind: bytecode.RegionCatch, TryStart: 0, TryEnd: 3, HandlerStart: 3, HandlerEnd: 4, CatchType: "Error"},
		},
		[]any{"plain"},
		op.LdStr, 0,
		op.Throw,
		op.Ret,
	)
	r, _ := newRuntime(c)
	_, err := r.Run(context.Background(), 0)
	_, ok := AsException(err)
	require.True(t, ok, "a thrown string is not an Error")
}

func TestRethrow(t *testing.T) {
	c := code("main", 0,
		[]bytecode.ExceptionRegion{
			{Kind: bytecode.RegionCatch, TryStart: 0, TryEnd: 3, HandlerStart: 3, HandlerEnd: 5},
		},
		[]any{"again"},
		op.LdStr, 0,
		op.Throw,
		op.Pop,
		op.Rethrow,
	)
	r, _ := newRuntime(c)
	_, err := r.Run(context.Background(), 0)
	exc, ok := AsException(err)
	require.True(t, ok)
	require.Equal(t, "again", exc.ThrownValue())
}

func TestFaultIsNotCatchable(t *testing.T) {
	c := code("main", 0,
		[]bytecode.ExceptionRegion{
			{Kind: bytecode.RegionCatch, TryStart: 0, TryEnd: 5, HandlerStart: 5, HandlerEnd: 7},
		},
		[]any{"a", "b"},
		op.LdStr, 0,
		op.LdStr, 1,
		op.Add,
		op.Pop,
		op.LdUndef,
		op.Ret,
	)
	r, _ := newRuntime(c)
	_, err := r.Run(context.Background(), 0)
	var fault *Fault
	require.True(t, errors.As(err, &fault), "got %v", err)
	require.Equal(t, "main", fault.Method)
	require.Equal(t, 4, fault.Offset)
	require.Equal(t, "ADD", fault.Opcode)
	_, ok := AsException(err)
	require.False(t, ok)
}

func TestRawOperandChecks(t *testing.T) {
	tests := []struct {
		name   string
		instrs []op.Code
	}{
		{"unbox raw double", []op.Code{op.LdF64, 0, op.UnboxF, op.Ret}},
		{"box boxed value", []op.Code{op.LdF64, 0, op.BoxF, op.BoxF, op.Ret}},
		{"not on double", []op.Code{op.LdF64, 0, op.Not, op.Ret}},
		{"switch on double", []op.Code{op.LdF64, 0, op.Switch, 0, op.LdUndef, op.Ret}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRuntime(code("main", 0, nil, []any{1.5}, tt.instrs...))
			_, err := r.Run(context.Background(), 0)
			var fault *Fault
			require.True(t, errors.As(err, &fault), "got %v", err)
		})
	}
}

func TestRawArithmetic(t *testing.T) {
	tests := []struct {
		name   string
		opcode op.Code
		want   any
	}{
		{"add", op.Add, 9.0},
		{"sub", op.Sub, 3.0},
		{"mul", op.Mul, 18.0},
		{"div", op.Div, 2.0},
		{"rem", op.Rem, 0.0},
		{"pow", op.Pow, 216.0},
		{"clt", op.Clt, false},
		{"cgt", op.Cgt, true},
		{"cle", op.Cle, false},
		{"cge", op.Cge, true},
		{"ceq", op.Ceq, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRuntime(code("main", 0, nil, []any{6.0, 3.0},
				op.LdF64, 0, op.LdF64, 1, tt.opcode, op.Ret))
			result, err := r.Run(context.Background(), 0)
			require.Nil(t, err)
			require.Equal(t, tt.want, result)
		})
	}
}

func TestSwitchAndBranches(t *testing.T) {
	// switch (n) { case 0: return "zero"; case 1: return "one" } return "other"
	instrs := []op.Code{
		op.LdI4, 0,
		op.Switch, 2, 11, 14,
		op.LdStr, 2,
		op.Ret,
		op.Nop, op.Nop,
		op.LdStr, 0,
		op.Ret,
		op.LdStr, 1,
		op.Ret,
	}
	for n, want := range []string{"zero", "one", "other"} {
		prog := append([]op.Code(nil), instrs...)
		prog[1] = op.Code(n)
		r, _ := newRuntime(code("main", 0, nil, []any{"zero", "one", "other"}, prog...))
		result, err := r.Run(context.Background(), 0)
		require.Nil(t, err)
		require.Equal(t, want, result)
	}
}

func TestLdI4IsSigned(t *testing.T) {
	r, _ := newRuntime(code("main", 0, nil, nil, op.LdI4, 0xFFFF, op.ConvF, op.Ret))
	result, err := r.Run(context.Background(), 0)
	require.Nil(t, err)
	require.Equal(t, -1.0, result)
}

func TestVectorOps(t *testing.T) {
	r, _ := newRuntime(code("main", 1, nil, nil,
		op.LdI4, 2, op.NewArr, op.StLoc, 0,
		op.LdLoc, 0, op.LdI4, 1, op.LdTrue, op.StElem,
		op.LdLoc, 0, op.LdI4, 5, op.LdElem, op.Pop,
		op.LdLoc, 0, op.LdLen, op.ConvF, op.BoxF, op.Ret,
	))
	result, err := r.Run(context.Background(), 0)
	require.Nil(t, err)
	require.Equal(t, Number(2), result)
}

func TestContextCancellation(t *testing.T) {
	var out bytes.Buffer
	r := New([]*bytecode.Code{code("spin", 0, nil, nil, op.Br, 0)},
		WithOutput(&out, nil), WithContextCheckInterval(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, 0)
	require.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestMaxFrameDepth(t *testing.T) {
	r, _ := newRuntime(code("recurse", 0, nil, nil, op.Call, 0, 0, op.Ret))
	_, err := r.Run(context.Background(), 0)
	exc, ok := AsException(err)
	require.True(t, ok, "got %v", err)
	e, ok := exc.Value.(*ErrorObject)
	require.True(t, ok)
	require.Equal(t, registry.TypeRangeError, e.Type)
}

func TestUnknownToken(t *testing.T) {
	r, _ := newRuntime()
	_, err := r.Run(context.Background(), 3)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "no function for token 3")
}

func TestNewUser(t *testing.T) {
	ctor := bytecode.NewCode(bytecode.CodeParams{
		Name:          "Point.constructor",
		Instructions:  []op.Code{op.LdArg, 0, op.LdArg, 1, op.StFld, 0, op.LdUndef, op.Ret},
		Names:         []string{"x"},
		ParamCount:    2,
		IsInstance:    true,
		IsConstructor: true,
		MaxStack:      2,
	})
	main := bytecode.NewCode(bytecode.CodeParams{
		Name:         "main",
		Instructions: []op.Code{op.LdF64, 0, op.BoxF, op.NewUser, 0, 1, op.Ret},
		Constants:    []any{4.0},
		MaxStack:     2,
	})
	r, _ := newRuntime(ctor, main)
	result, err := r.Run(context.Background(), 1)
	require.Nil(t, err)
	obj, ok := result.(*Object)
	require.True(t, ok)
	require.Equal(t, "Point", obj.Class)
	require.Equal(t, Number(4), obj.Get("x"))
	require.Equal(t, "Point { x: 4 }", inspect(obj))
}

func TestLoadFieldOfUndefined(t *testing.T) {
	c := bytecode.NewCode(bytecode.CodeParams{
		Name:         "main",
		Instructions: []op.Code{op.LdUndef, op.LdFld, 0, op.Ret},
		Names:        []string{"x"},
		MaxStack:     1,
	})
	r, _ := newRuntime(c)
	_, err := r.Run(context.Background(), 0)
	exc, ok := AsException(err)
	require.True(t, ok)
	require.Equal(t, "TypeError: cannot read properties of undefined (reading 'x')", toString(exc.Value))
}

func TestPromiseThen(t *testing.T) {
	r, _ := newRuntime()
	ctx := context.Background()
	var seen []any
	record := NativeFunc(func(args []any) (any, error) {
		seen = append(seen, args[0])
		return Number(10), nil
	})
	p := r.resolved(Number(1))
	derived, err := r.callMember(p, "then", []any{record})
	require.Nil(t, err)
	require.Empty(t, seen, "reactions run as jobs")
	require.Nil(t, r.Drain(ctx))
	require.Equal(t, []any{Number(1)}, seen)
	require.Equal(t, Number(10), derived.(*Promise).Value())

	failed := r.rejectedWith("no")
	caught, err := r.callMember(failed, "catch", []any{record})
	require.Nil(t, err)
	require.Nil(t, r.Drain(ctx))
	require.Equal(t, "fulfilled", caught.(*Promise).State())
	require.Equal(t, "no", seen[1])
}

func TestPromiseExecutor(t *testing.T) {
	r, _ := newRuntime()
	executor := NativeFunc(func(args []any) (any, error) {
		return nil, newTypeError("bad")
	})
	p, err := r.newObject(registry.TypePromise, []any{executor})
	require.Nil(t, err)
	require.Equal(t, "rejected", p.(*Promise).State())
	require.Equal(t, "TypeError: bad", toString(p.(*Promise).Value()))
}

func TestNewUserRequiresConstructor(t *testing.T) {
	plain := bytecode.NewCode(bytecode.CodeParams{
		Name:         "Point.constructor",
		Instructions: []op.Code{op.LdUndef, op.Ret},
		ParamCount:   1,
		IsInstance:   true,
		MaxStack:     1,
	})
	main := bytecode.NewCode(bytecode.CodeParams{
		Name:         "main",
		Instructions: []op.Code{op.NewUser, 0, 0, op.Ret},
		MaxStack:     1,
	})
	r, _ := newRuntime(plain, main)
	_, err := r.Run(context.Background(), 1)
	var fault *Fault
	require.True(t, errors.As(err, &fault), "got %v", err)
	require.Contains(t, err.Error(), "Point.constructor is not a constructor")
}

func TestRunConstructorResult(t *testing.T) {
	tests := []struct {
		name     string
		ret      func(b *lir.Builder) lir.Temp
		replaced bool
	}{
		{"returns undefined", func(b *lir.Builder) lir.Temp { return lir.NoTemp }, false},
		{"returns a primitive", func(b *lir.Builder) lir.Temp { return b.Box(b.Number(7)) }, false},
		{"returns an object", func(b *lir.Builder) lir.Temp {
			obj := b.Temp(lir.Object)
			b.Emit(&lir.NewObjectLiteral{Keys: []string{"tag"}, Values: []lir.Temp{b.String("other")}, Result: obj})
			return obj
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := registry.NewTable()
			_, err := table.AddClass(registry.Class{
				Name:        "Point",
				Constructor: registry.Function{ParamCount: 1},
				Fields:      []registry.FieldInfo{{Name: "x", Storage: lir.Double}},
			})
			require.Nil(t, err)
			_, err = table.AddFunction(registry.Function{ID: "main", Name: "main"})
			require.Nil(t, err)

			cb := lir.NewBuilder("Point.constructor")
			this, x := cb.Temp(lir.Object), cb.Temp(lir.Object)
			cb.Emit(&lir.LoadThis{Result: this})
			cb.Emit(&lir.LoadParameter{Index: 0, Result: x})
			cb.Emit(&lir.StoreInstanceField{Object: this, Class: "Point", Field: "x", Value: x})
			cb.Emit(&lir.Return{Value: tt.ret(cb)})
			ctor := compile(t, table, cb.Build(), lir.MethodDescriptor{Instance: true, IsConstructor: true, Params: []string{"x"}})

			b := lir.NewBuilder("main")
			obj := b.Temp(lir.Ref("Point"))
			b.Emit(&lir.NewUserClass{Class: "Point", ScopesArray: lir.NoTemp, Args: []lir.Temp{b.Box(b.Number(4))}, Result: obj})
			if !tt.replaced {
				field, sum := b.Temp(lir.Double), b.Temp(lir.Double)
				b.Emit(&lir.LoadInstanceField{Object: obj, Class: "Point", Field: "x", Result: field})
				b.Emit(&lir.BinaryNumber{Op: lir.AddNumber, Left: field, Right: b.Number(1), Result: sum})
				logValues(b, sum)
			}
			b.Emit(&lir.Return{Value: obj})

			r, out := newRuntime(ctor, compile(t, table, b.Build(), lir.MethodDescriptor{}))
			result, err := r.Run(context.Background(), 1)
			require.Nil(t, err)
			got, ok := result.(*Object)
			require.True(t, ok, "got %T", result)
			if tt.replaced {
				require.Equal(t, registry.TypeObject, got.Class)
				require.Equal(t, "other", got.Get("tag"))
				require.Empty(t, out.String())
				return
			}
			require.Equal(t, "Point", got.Class)
			require.Equal(t, "5\n", out.String())
		})
	}
}

func TestRunScopeFieldCoercion(t *testing.T) {
	table := registry.NewTable()
	table.AddScope(registry.ScopeShape{Name: "main", Fields: []registry.FieldInfo{
		{Name: "n", Storage: lir.Double},
		{Name: "ok", Storage: lir.Bool},
	}})

	b := lir.NewBuilder("main").LeafScope("main")
	b.Emit(&lir.CreateLeafScope{})
	scope := b.Temp(lir.ScopeRef("main"))
	b.Emit(&lir.LoadLeafScope{Result: scope})
	b.Emit(&lir.StoreScopeField{Scope: scope, ScopeName: "main", Field: "n", Value: b.Box(b.Number(5))})
	b.Emit(&lir.StoreScopeField{Scope: scope, ScopeName: "main", Field: "ok", Value: b.Box(b.Boolean(true))})
	n, ok, sum := b.Temp(lir.Double), b.Temp(lir.Bool), b.Temp(lir.Double)
	b.Emit(&lir.LoadScopeField{Scope: scope, ScopeName: "main", Field: "n", Result: n})
	b.Emit(&lir.LoadScopeField{Scope: scope, ScopeName: "main", Field: "ok", Result: ok})
	b.Emit(&lir.BinaryNumber{Op: lir.AddNumber, Left: n, Right: b.Number(1), Result: sum})
	logValues(b, sum, ok)
	b.Emit(&lir.Return{Value: lir.NoTemp})

	r, out := newRuntime(compile(t, table, b.Build(), lir.MethodDescriptor{}))
	_, err := r.Run(context.Background(), 0)
	require.Nil(t, err)
	require.Equal(t, "6 true\n", out.String())
}

func TestRunCollections(t *testing.T) {
	b := lir.NewBuilder("main")
	arr := b.Temp(lir.Ref(lir.TypeArray))
	b.Emit(&lir.NewIntrinsicObject{Type: lir.TypeArray, Args: []lir.Temp{b.Box(b.Number(1)), b.Box(b.Number(2))}, Result: arr})
	floats := b.Temp(lir.Ref(lir.TypeFloat64Array))
	b.Emit(&lir.NewIntrinsicObject{Type: lir.TypeFloat64Array, Args: []lir.Temp{b.Box(b.Number(3))}, Result: floats})
	vec := b.Temp(lir.ObjectArray)
	b.Emit(&lir.NewObjectArray{Length: 2, Elements: []lir.Temp{b.String("a"), b.String("b")}, Result: vec})

	// Typed forms.
	b.Emit(&lir.SetItem{Object: floats, Index: b.Number(1), Value: b.Number(4.5)})
	b.Emit(&lir.SetItem{Object: arr, Index: b.Number(2), Value: b.String("c")})
	second, f1, flen, alen, vlen := b.Temp(lir.Object), b.Temp(lir.Double), b.Temp(lir.Double), b.Temp(lir.Double), b.Temp(lir.Double)
	b.Emit(&lir.GetItem{Object: arr, Index: b.Number(1), Result: second})
	b.Emit(&lir.GetItem{Object: floats, Index: b.Number(1), Result: f1})
	b.Emit(&lir.GetLength{Object: floats, Result: flen})
	b.Emit(&lir.GetLength{Object: arr, Result: alen})
	b.Emit(&lir.GetLength{Object: vec, Result: vlen})

	// Dynamic forms.
	b.Emit(&lir.SetItem{Object: floats, Index: b.Box(b.Number(0)), Value: b.Box(b.Number(2))})
	first, f0, vb := b.Temp(lir.Object), b.Temp(lir.Object), b.Temp(lir.Object)
	b.Emit(&lir.GetItem{Object: arr, Index: b.Box(b.Number(0)), Result: first})
	b.Emit(&lir.GetItem{Object: floats, Index: b.Box(b.Number(0)), Result: f0})
	b.Emit(&lir.GetItem{Object: vec, Index: b.Number(1), Result: vb})

	logValues(b, second, f1, flen, alen, vlen, first, f0, vb)
	b.Emit(&lir.Return{Value: lir.NoTemp})
	body := b.Build()

	for _, peephole := range []bool{true, false} {
		cfg := compiler.DefaultConfig()
		cfg.Debug = true
		cfg.Peephole = peephole
		code, err := compiler.Compile(body, lir.MethodDescriptor{}, registry.NewTable(), cfg)
		require.Nil(t, err)
		r, out := newRuntime(code)
		_, err = r.Run(context.Background(), 0)
		require.Nil(t, err, "peephole %v", peephole)
		require.Equal(t, "2 4.5 3 3 2 1 2 b\n", out.String(), "peephole %v", peephole)
	}
}

func TestRunArgumentRouting(t *testing.T) {
	table := registry.NewTable()
	for _, fn := range []registry.Function{
		{ID: "count", Name: "count", ParamCount: 0, NeedsArguments: true},
		{ID: "first", Name: "first", ParamCount: 1},
		{ID: "note", Name: "note"},
		{ID: "main", Name: "main"},
	} {
		_, err := table.AddFunction(fn)
		require.Nil(t, err)
	}

	cb := lir.NewBuilder("count")
	args, n := cb.Temp(lir.Object), cb.Temp(lir.Double)
	cb.Emit(&lir.LoadParameter{Index: 0, Result: args})
	cb.Emit(&lir.GetLength{Object: args, Result: n})
	cb.Emit(&lir.Return{Value: cb.Box(n)})

	fb := lir.NewBuilder("first")
	p := fb.Temp(lir.Object)
	fb.Emit(&lir.LoadParameter{Index: 0, Result: p})
	fb.Emit(&lir.Return{Value: p})

	nb := lir.NewBuilder("note")
	logValues(nb, nb.String("side"))
	nb.Emit(&lir.Return{Value: lir.NoTemp})

	b := lir.NewBuilder("main")
	counted, extra, firstOf := b.Temp(lir.Object), b.Temp(lir.Object), b.Temp(lir.Object)
	b.Emit(&lir.CallFunction{Callee: "count", ScopesArray: lir.NoTemp, Args: []lir.Temp{b.Box(b.Number(1)), b.String("x"), b.Box(b.Boolean(true))}, Result: counted})
	b.Emit(&lir.CallFunction{Callee: "note", ScopesArray: lir.NoTemp, Result: extra})
	b.Emit(&lir.CallFunction{Callee: "first", ScopesArray: lir.NoTemp, Args: []lir.Temp{b.String("a"), extra, b.String("c")}, Result: firstOf})
	logValues(b, counted, firstOf)
	b.Emit(&lir.Return{Value: lir.NoTemp})

	r, out := newRuntime(
		compile(t, table, cb.Build(), lir.MethodDescriptor{Params: []string{"args"}}),
		compile(t, table, fb.Build(), lir.MethodDescriptor{Params: []string{"p"}}),
		compile(t, table, nb.Build(), lir.MethodDescriptor{}),
		compile(t, table, b.Build(), lir.MethodDescriptor{}))
	_, err := r.Run(context.Background(), 3)
	require.Nil(t, err)
	require.Equal(t, "side\n3 a\n", out.String())
}

func TestRunUnwrapCatchException(t *testing.T) {
	tests := []struct {
		name  string
		throw func(b *lir.Builder)
		want  any
	}{
		{
			name:  "thrown value is unwrapped",
			throw: func(b *lir.Builder) { b.Emit(&lir.Throw{Value: b.String("boom")}) },
			want:  "boom",
		},
		{
			name:  "runtime error passes through",
			throw: func(b *lir.Builder) { b.Emit(&lir.ThrowTypeError{Message: "bad"}) },
			want:  &ErrorObject{Type: registry.TypeTypeError, Message: "bad"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := lir.NewBuilder("main")
			v := b.VariableTemp(b.Variable("e", lir.Object))
			tryStart, handler, end := b.NewLabel(), b.NewLabel(), b.NewLabel()
			b.Region(lir.ExceptionRegion{Kind: lir.Catch, TryStart: tryStart, TryEnd: handler, HandlerStart: handler, HandlerEnd: end})
			b.Mark(tryStart)
			tt.throw(b)
			b.Mark(handler)
			caught := b.Temp(lir.Object)
			b.Emit(&lir.StoreException{Result: caught})
			b.Emit(&lir.UnwrapCatchException{Exception: caught, Result: v})
			b.Emit(&lir.Leave{Target: end})
			b.Mark(end)
			b.Emit(&lir.Return{Value: v})

			r, _ := newRuntime(compile(t, registry.NewTable(), b.Build(), lir.MethodDescriptor{}))
			result, err := r.Run(context.Background(), 0)
			require.Nil(t, err)
			require.Equal(t, tt.want, result)
		})
	}

	t.Run("other value is rethrown", func(t *testing.T) {
		b := lir.NewBuilder("main")
		v := b.Temp(lir.Object)
		b.Emit(&lir.UnwrapCatchException{Exception: b.String("raw"), Result: v})
		b.Emit(&lir.Return{Value: v})

		r, _ := newRuntime(compile(t, registry.NewTable(), b.Build(), lir.MethodDescriptor{}))
		_, err := r.Run(context.Background(), 0)
		exc, ok := AsException(err)
		require.True(t, ok, "got %v", err)
		require.Equal(t, "raw", exc.ThrownValue())
	})
}
