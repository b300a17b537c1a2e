package lirfile

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomacox74/js2il-sub000/compiler"
	"github.com/tomacox74/js2il-sub000/lir"
	"github.com/tomacox74/js2il-sub000/registry"
	"github.com/tomacox74/js2il-sub000/vm"
)

func run(t *testing.T, m *Module) string {
	t.Helper()
	cfg := compiler.DefaultConfig()
	cfg.Debug = true
	codes, err := m.Compile(cfg)
	require.Nil(t, err)
	var out bytes.Buffer
	r := vm.New(codes, vm.WithOutput(&out, nil))
	_, err = r.Run(context.Background(), m.Entry)
	require.Nil(t, err)
	return out.String()
}

func TestLoadLogSum(t *testing.T) {
	m, err := Load("testdata/logsum.yaml")
	require.Nil(t, err)
	require.Equal(t, "logsum", m.Name)
	require.Equal(t, registry.Token(0), m.Entry)
	require.Len(t, m.Methods, 1)

	body := m.Methods[0].Body
	require.Equal(t, "main", body.Name)
	require.Equal(t, []string{"x", "y"}, body.VariableNames)
	require.Equal(t, []int{0, 1, -1, -1, -1, -1, -1}, body.TempVariableSlots)
	require.Equal(t, lir.ObjectArray, body.TempStorages[5])
	require.Len(t, body.Instructions, 10)
	require.Equal(t, "t0 = const 2", lir.Format(body.Instructions[0]))
	require.Equal(t, "t2 = add t0 t1", lir.Format(body.Instructions[2]))
	require.Equal(t, "t3 = box t2", lir.Format(body.Instructions[3]))
	require.Equal(t, "t6 = call.intrinsic t4.log t5", lir.Format(body.Instructions[8]))
	require.Equal(t, &lir.Return{Value: lir.NoTemp}, body.Instructions[9])

	require.Equal(t, "5\n", run(t, m))
}

func TestLoadGenerator(t *testing.T) {
	m, err := Load("testdata/generator.yaml")
	require.Nil(t, err)
	require.Len(t, m.Methods, 2)

	count := m.Methods[1]
	require.True(t, count.Body.IsGenerator)
	require.Equal(t, "count", count.Body.LeafScope)
	require.True(t, count.Descriptor.HasScopesParameter)
	require.Equal(t, &lir.CreateLeafScope{}, count.Body.Instructions[0])
	require.Equal(t, "t2 = yield t1 #1", lir.Format(count.Body.Instructions[3]))

	info, ok := m.Table.Callable("count")
	require.True(t, ok)
	require.Equal(t, registry.Token(1), info.Token)
	require.True(t, info.HasScopes)

	require.Equal(t, strings.Join([]string{
		"{ value: 1, done: false }",
		"{ value: 2, done: false }",
		"{ value: undefined, done: true }",
	}, "\n")+"\n", run(t, m))
}

func TestLoadTryCatch(t *testing.T) {
	m, err := Load("testdata/trycatch.yaml")
	require.Nil(t, err)
	require.Equal(t, []lir.ExceptionRegion{
		{Kind: lir.Catch, TryStart: 0, TryEnd: 1, HandlerStart: 1, HandlerEnd: 2},
	}, m.Methods[0].Body.Regions)
	require.Equal(t, "caught TypeError: boom\n", run(t, m))
}

func TestParseHasAwaits(t *testing.T) {
	tests := []struct {
		name string
		flag string
		want bool
	}{
		{"derived", "", true},
		{"explicit", "    has_awaits: true\n", true},
		{"inline", "    has_awaits: false\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse([]byte("methods:\n  - name: run\n    async: true\n" + tt.flag +
				"    temps: [object, object]\n    body:\n      - ConstUndefined: {result: t0}\n" +
				"      - Await: {value: t0, result: t1}\n      - Return: {value: t1}\n"))
			require.Nil(t, err)
			require.Equal(t, tt.want, m.Methods[0].Body.HasAwaits)
		})
	}
}

func TestParseClasses(t *testing.T) {
	m, err := Parse([]byte(`
entry: main
scopes:
  - name: main
    fields: [{name: p, storage: "ref:Point"}]
classes:
  - name: Point
    fields: [{name: x, storage: object}]
methods:
  - name: main
    body: [{Return: {value: _}}]
  - name: constructor
    class: Point
    constructor: true
    params: [x]
    body:
      - LoadThis: {result: t0}
      - LoadParameter: {index: 0, result: t1}
      - StoreInstanceField: {object: t0, class: Point, field: x, value: t1}
      - Return: {value: _}
    temps: [object, object]
  - name: getX
    class: Point
    temps: [object, object]
    body:
      - LoadThis: {result: t0}
      - LoadInstanceField: {object: t0, class: Point, field: x, result: t1}
      - Return: {value: t1}
`))
	require.Nil(t, err)
	require.Len(t, m.Methods, 3)

	ctor, ok := m.Table.ClassConstructor("Point")
	require.True(t, ok)
	require.Equal(t, registry.Token(1), ctor.Token)
	require.Equal(t, 1, ctor.ParamCount)
	method, ok := m.Table.ClassMethod("Point", "getX")
	require.True(t, ok)
	require.Equal(t, registry.Token(2), method.Token)
	field, ok := m.Table.ScopeField("main", "p")
	require.True(t, ok)
	require.Equal(t, lir.Ref("Point"), field.Storage)

	require.Equal(t, "Point.constructor", m.Methods[1].Body.Name)
	require.Equal(t, lir.MethodDescriptor{Instance: true, IsConstructor: true, Params: []string{"x"}}, m.Methods[1].Descriptor)
	require.True(t, m.Methods[2].Descriptor.Instance)

	got, ok := m.Method(2)
	require.True(t, ok)
	require.Equal(t, "Point.getX", got.Body.Name)
	_, ok = m.Method(3)
	require.False(t, ok)
}

func TestParseOperands(t *testing.T) {
	m, err := Parse([]byte(`
methods:
  - name: f
    temps: [object, object, bool, object, "object[]"]
    body:
      - DynamicBinary: {op: StrictEqual, left: t0, right: t1, result: t3}
      - CompareBoolean: {op: ne, left: t2, right: t2, result: _}
      - BuildScopesArray:
          scopes:
            - {kind: leaf, scope: f}
            - {kind: parent, index: 0, scope: outer}
          result: t4
      - CallFunctionValue: {target: t0, args: [t1, t3]}
      - SequencePoint: {span: {start: {line: 3, column: 5}, end: {line: 3, column: 9}}}
      - ThrowTypeError: {message: nope}
      - EndFinally
`))
	require.Nil(t, err)
	instrs := m.Methods[0].Body.Instructions
	require.Equal(t, &lir.DynamicBinary{Op: lir.DynStrictEqual, Left: 0, Right: 1, Result: 3}, instrs[0])
	require.Equal(t, lir.NoTemp, instrs[1].Def())
	require.Equal(t, &lir.BuildScopesArray{
		Scopes: []lir.ScopeSlot{
			{Kind: lir.LeafScope, Scope: "f"},
			{Kind: lir.ParentScope, Index: 0, Scope: "outer"},
		},
		Result: 4,
	}, instrs[2])
	require.Equal(t, []lir.Temp{1, 3, 0}, instrs[3].Uses())
	require.Equal(t, lir.NoTemp, instrs[3].Def())
	sp := instrs[4].(*lir.SequencePoint)
	require.Equal(t, 3, sp.Span.Start.Line)
	require.Equal(t, 9, sp.Span.End.Column)
	require.Equal(t, &lir.ThrowTypeError{Message: "nope"}, instrs[5])
	require.Equal(t, &lir.EndFinally{}, instrs[6])
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty", ``, "empty module"},
		{"no methods", `module: m`, "module has no methods"},
		{"unknown top-level key", "methods: []\nfunctions: []", "field functions not found"},
		{
			"unknown instruction",
			"methods:\n  - name: f\n    body: [{Frobnicate: {}}]",
			`method f: line 3: unknown instruction "Frobnicate"`,
		},
		{
			"unknown field",
			"methods:\n  - name: f\n    body: [{ConstNumber: {value: 1, target: t0}}]",
			`method f: ConstNumber: line 3: unknown field "target"`,
		},
		{
			"bad temp",
			"methods:\n  - name: f\n    body: [{ConstUndefined: {result: x1}}]",
			`method f: ConstUndefined: line 3: invalid temp "x1"`,
		},
		{
			"unknown operator",
			"methods:\n  - name: f\n    body: [{BinaryNumber: {op: xor}}]",
			`unknown operator "xor", expected one of add, sub, mul, div, mod, pow`,
		},
		{
			"unknown storage",
			"methods:\n  - name: f\n    temps: [float]",
			`unknown storage "float"`,
		},
		{
			"unknown region kind",
			"methods:\n  - name: f\n    regions: [{kind: fault}]",
			`method f: unknown region kind "fault"`,
		},
		{
			"bad temp slot",
			"methods:\n  - name: f\n    temps: [double]\n    temp_slots: {0: 2}",
			"method f: temp_slots: t0 maps to undeclared variable 2",
		},
		{
			"constructor without class",
			"methods:\n  - name: f\n    constructor: true",
			"method f: constructor without a class",
		},
		{
			"method of unknown class",
			"methods:\n  - name: f\n    class: Nope",
			"method f: unknown class: Nope",
		},
		{
			"duplicate function",
			"methods:\n  - name: f\n  - name: f",
			"method f: callable already registered: f",
		},
		{
			"missing entry",
			"entry: main\nmethods:\n  - name: f",
			`entry method "main" not found`,
		},
		{
			"instruction shape",
			"methods:\n  - name: f\n    body: [{Return: {}, Label: {}}]",
			"instruction must be a single-key mapping",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			require.NotNil(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseReportsEveryMethod(t *testing.T) {
	_, err := Parse([]byte(`
methods:
  - name: a
    body: [Nope]
  - name: b
    body: [{Return: {value: q}}]
`))
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "2 errors occurred")
	require.Contains(t, err.Error(), "method a:")
	require.Contains(t, err.Error(), "method b:")
}

func TestParseStorage(t *testing.T) {
	tests := []struct {
		in   string
		want lir.Storage
	}{
		{"double", lir.Double},
		{"unboxed:bool", lir.Bool},
		{"object", lir.Object},
		{"string", lir.String},
		{"ref:string", lir.String},
		{"object[]", lir.ObjectArray},
		{"ref:Float64Array", lir.Ref(lir.TypeFloat64Array)},
		{"scope:main", lir.ScopeRef("main")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStorage(tt.in)
			require.Nil(t, err)
			require.Equal(t, tt.want, got)
		})
	}
	_, err := ParseStorage("scope:")
	require.NotNil(t, err)
}

func TestInstructionNames(t *testing.T) {
	names := InstructionNames()
	require.Contains(t, names, "Yield")
	require.Contains(t, names, "CallTypedMember")
	require.NotContains(t, names, "noUses")
	require.Equal(t, "Await", names[0])
}
