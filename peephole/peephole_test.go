package peephole

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomacox74/js2il-sub000/lir"
)

// logOneAndSum builds log(1, 2+3) in element-by-element form.
func logOneAndSum() (*lir.MethodBody, []lir.Temp) {
	b := lir.NewBuilder("main")
	console := b.Global("console")
	arr := b.Temp(lir.ObjectArray)
	b.Emit(&lir.NewObjectArray{Length: 2, Result: arr})
	b.Emit(&lir.BeginInitArrayElement{Array: arr, Index: 0})
	one := b.Box(b.Number(1))
	b.Emit(&lir.StoreElementRef{Array: arr, Index: 0, Value: one})
	b.Emit(&lir.BeginInitArrayElement{Array: arr, Index: 1})
	two, three := b.Number(2), b.Number(3)
	sum := b.Temp(lir.Double)
	b.Emit(&lir.BinaryNumber{Op: lir.AddNumber, Left: two, Right: three, Result: sum})
	boxed := b.Box(sum)
	b.Emit(&lir.StoreElementRef{Array: arr, Index: 1, Value: boxed})
	result := b.Temp(lir.Object)
	b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "log", ArgumentsArray: arr, Result: result})
	b.Emit(&lir.Return{Value: lir.NoTemp})
	return b.Build(), []lir.Temp{one, boxed, result}
}

func TestMaskElementByElement(t *testing.T) {
	body, temps := logOneAndSum()
	m := Mask(body)
	require.Len(t, m.Windows, 1)
	w := m.Windows[0]
	require.Equal(t, 0, w.Start)
	require.Equal(t, 12, w.Call)
	require.Equal(t, 13, w.Len())
	require.Equal(t, []lir.Temp{temps[0], temps[1]}, w.Args)
	require.Equal(t, temps[2], w.Result)
	require.Nil(t, w.Update)

	for tmp := 0; tmp < body.TempCount(); tmp++ {
		absorbed := lir.Temp(tmp) != temps[2]
		require.Equal(t, absorbed, m.IsAbsorbed(lir.Temp(tmp)), "t%d", tmp)
		require.False(t, m.UsedOutside[tmp], "t%d", tmp)
	}

	got, ok := m.At(12)
	require.True(t, ok)
	require.Same(t, w, got)
	_, ok = m.At(5)
	require.False(t, ok)
	_, ok = m.Covering(5)
	require.True(t, ok)
	_, ok = m.Covering(13)
	require.False(t, ok)
}

func TestMaskAggregateForms(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *lir.Builder, elems []lir.Temp) lir.Temp
	}{
		{"build array", func(b *lir.Builder, elems []lir.Temp) lir.Temp {
			arr := b.Temp(lir.ObjectArray)
			b.Emit(&lir.BuildArray{Elements: elems, Result: arr})
			return arr
		}},
		{"object array with elements", func(b *lir.Builder, elems []lir.Temp) lir.Temp {
			arr := b.Temp(lir.ObjectArray)
			b.Emit(&lir.NewObjectArray{Length: len(elems), Elements: elems, Result: arr})
			return arr
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := lir.NewBuilder("main")
			a := b.Box(b.Number(1))
			s := b.String("x")
			console := b.Global("Console")
			arr := tt.build(b, []lir.Temp{a, s})
			res := b.Temp(lir.Object)
			b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "LOG", ArgumentsArray: arr, Result: res})
			body := b.Build()

			m := Mask(body)
			require.Len(t, m.Windows, 1)
			require.Equal(t, 3, m.Windows[0].Start)
			require.Equal(t, 5, m.Windows[0].Call)
			require.Equal(t, []lir.Temp{a, s}, m.Windows[0].Args)
			require.True(t, m.IsAbsorbed(console))
			require.True(t, m.IsAbsorbed(arr))
			require.False(t, m.IsAbsorbed(a), "defined before the window")
		})
	}
}

func TestMaskRejects(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *lir.Builder)
	}{
		{"call argument", func(b *lir.Builder) {
			console := b.Global("console")
			arr := b.Temp(lir.ObjectArray)
			b.Emit(&lir.NewObjectArray{Length: 1, Result: arr})
			v := b.Temp(lir.Object)
			b.Emit(&lir.CallFunction{Callee: "f", ScopesArray: lir.NoTemp, Result: v})
			b.Emit(&lir.StoreElementRef{Array: arr, Index: 0, Value: v})
			b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "log", ArgumentsArray: arr, Result: b.Temp(lir.Object)})
		}},
		{"escaping array", func(b *lir.Builder) {
			u := b.Undefined()
			console := b.Global("console")
			arr := b.Temp(lir.ObjectArray)
			b.Emit(&lir.BuildArray{Elements: []lir.Temp{u}, Result: arr})
			b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "log", ArgumentsArray: arr, Result: b.Temp(lir.Object)})
			b.Emit(&lir.Return{Value: arr})
		}},
		{"other method", func(b *lir.Builder) {
			u := b.Undefined()
			console := b.Global("console")
			arr := b.Temp(lir.ObjectArray)
			b.Emit(&lir.BuildArray{Elements: []lir.Temp{u}, Result: arr})
			b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "error", ArgumentsArray: arr, Result: b.Temp(lir.Object)})
		}},
		{"other receiver", func(b *lir.Builder) {
			u := b.Undefined()
			math := b.Global("Math")
			arr := b.Temp(lir.ObjectArray)
			b.Emit(&lir.BuildArray{Elements: []lir.Temp{u}, Result: arr})
			b.Emit(&lir.CallIntrinsic{Receiver: math, Method: "log", ArgumentsArray: arr, Result: b.Temp(lir.Object)})
		}},
		{"missing store", func(b *lir.Builder) {
			console := b.Global("console")
			arr := b.Temp(lir.ObjectArray)
			b.Emit(&lir.NewObjectArray{Length: 2, Result: arr})
			b.Emit(&lir.StoreElementRef{Array: arr, Index: 0, Value: b.Undefined()})
			b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "log", ArgumentsArray: arr, Result: b.Temp(lir.Object)})
		}},
		{"store to a variable inside", func(b *lir.Builder) {
			x := b.Variable("x", lir.Object)
			console := b.Global("console")
			arr := b.Temp(lir.ObjectArray)
			b.Emit(&lir.NewObjectArray{Length: 1, Result: arr})
			b.Emit(&lir.ConstNull{Result: b.VariableTemp(x)})
			b.Emit(&lir.StoreElementRef{Array: arr, Index: 0, Value: b.Undefined()})
			b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "log", ArgumentsArray: arr, Result: b.Temp(lir.Object)})
		}},
		{"empty", func(b *lir.Builder) {
			console := b.Global("console")
			arr := b.Temp(lir.ObjectArray)
			b.Emit(&lir.BuildArray{Result: arr})
			b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "log", ArgumentsArray: arr, Result: b.Temp(lir.Object)})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := lir.NewBuilder("main")
			tt.build(b)
			body := b.Build()
			m := Mask(body)
			require.Empty(t, m.Windows)
			for tmp := 0; tmp < body.TempCount(); tmp++ {
				require.False(t, m.IsAbsorbed(lir.Temp(tmp)))
			}
		})
	}
}

func TestMaskFusedUpdate(t *testing.T) {
	tests := []struct {
		name   string
		op     lir.NumberOp
		prefix bool
	}{
		{"x++", lir.AddNumber, false},
		{"++x", lir.AddNumber, true},
		{"x--", lir.SubNumber, false},
		{"--x", lir.SubNumber, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
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
			var boxed lir.Temp
			if tt.prefix {
				b.Emit(&lir.BinaryNumber{Op: tt.op, Left: before, Right: one, Result: after})
				boxed = b.Box(after)
			} else {
				boxed = b.Box(before)
				b.Emit(&lir.BinaryNumber{Op: tt.op, Left: before, Right: one, Result: after})
			}
			b.Emit(&lir.StoreElementRef{Array: arr, Index: 0, Value: boxed})
			b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "log", ArgumentsArray: arr, Result: b.Temp(lir.Object)})
			b.Emit(&lir.Return{Value: lir.NoTemp})
			body := b.Build()

			index := 5
			if !tt.prefix {
				index = 6
			}
			m := Mask(body)
			require.Len(t, m.Windows, 1)
			w := m.Windows[0]
			require.NotNil(t, w.Update)
			require.Equal(t, Update{Index: index, Slot: x, Op: tt.op, Prefix: tt.prefix}, *w.Update)
			require.True(t, m.IsAbsorbed(boxed))
			require.True(t, m.IsAbsorbed(one))
			require.False(t, m.IsAbsorbed(after))
		})
	}
}

func TestMaskUpdateRejectsMisplacedBox(t *testing.T) {
	tests := []struct {
		name   string
		prefix bool
	}{
		// box of the old temp taken after the slot was written
		{"old value boxed after update", false},
		// box of the new temp taken before the slot was written
		{"new value boxed before update", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := lir.NewBuilder("main")
			x := b.Variable("x", lir.Double)
			before := b.VariableTemp(x)
			b.Emit(&lir.ConstNumber{Value: 5, Result: before})
			console := b.Global("console")
			arr := b.Temp(lir.ObjectArray)
			b.Emit(&lir.NewObjectArray{Length: 1, Result: arr})
			one := b.Number(1)
			after := b.VariableTemp(x)
			var boxed lir.Temp
			if tt.prefix {
				boxed = b.Box(after)
				b.Emit(&lir.BinaryNumber{Op: lir.AddNumber, Left: before, Right: one, Result: after})
			} else {
				b.Emit(&lir.BinaryNumber{Op: lir.AddNumber, Left: before, Right: one, Result: after})
				boxed = b.Box(before)
			}
			b.Emit(&lir.StoreElementRef{Array: arr, Index: 0, Value: boxed})
			b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "log", ArgumentsArray: arr, Result: b.Temp(lir.Object)})
			require.Empty(t, Mask(b.Build()).Windows)
		})
	}
}

func TestMaskUpdateNeedsConstantOne(t *testing.T) {
	b := lir.NewBuilder("main")
	x := b.Variable("x", lir.Double)
	before := b.VariableTemp(x)
	b.Emit(&lir.ConstNumber{Value: 5, Result: before})
	console := b.Global("console")
	arr := b.Temp(lir.ObjectArray)
	b.Emit(&lir.NewObjectArray{Length: 1, Result: arr})
	two := b.Number(2)
	after := b.VariableTemp(x)
	b.Emit(&lir.BinaryNumber{Op: lir.AddNumber, Left: before, Right: two, Result: after})
	boxed := b.Box(after)
	b.Emit(&lir.StoreElementRef{Array: arr, Index: 0, Value: boxed})
	b.Emit(&lir.CallIntrinsic{Receiver: console, Method: "log", ArgumentsArray: arr, Result: b.Temp(lir.Object)})
	body := b.Build()

	// Without the fused form the add writes a variable inside the window,
	// so the window is left alone.
	require.Empty(t, Mask(body).Windows)
}

func TestMaskDoesNotModifyBody(t *testing.T) {
	body, _ := logOneAndSum()
	before := body.String()
	first := Mask(body)
	second := Mask(body)
	require.Equal(t, before, body.String())
	require.Equal(t, first.Absorbed, second.Absorbed)
	require.Equal(t, len(first.Windows), len(second.Windows))
}

func TestNilAnalysis(t *testing.T) {
	var m *Analysis
	require.False(t, m.IsAbsorbed(0))
	_, ok := m.At(0)
	require.False(t, ok)
}
