package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomacox74/js2il-sub000/op"
)

func TestNewCodeImmutability(t *testing.T) {
	instructions := []op.Code{op.LdF64, 0, op.Ret}
	constants := []any{42.0, "hello"}
	names := []string{"log"}
	locals := []LocalType{{Kind: LocalDouble}}
	regions := []ExceptionRegion{{TryStart: 0, TryEnd: 2}}
	points := []SequencePoint{{Offset: 0, Span: SourceSpan{Start: SourceLocation{Line: 1, Column: 1}}}}

	code := NewCode(CodeParams{
		Name:           "main",
		Instructions:   instructions,
		Constants:      constants,
		Names:          names,
		Locals:         locals,
		Regions:        regions,
		SequencePoints: points,
		MaxStack:       1,
	})

	instructions[0] = op.Nop
	constants[0] = 99.0
	names[0] = "modified"
	locals[0] = LocalType{Kind: LocalBool}
	regions[0] = ExceptionRegion{TryStart: 999}
	points[0] = SequencePoint{Offset: 7}

	require.Equal(t, op.LdF64, code.InstructionAt(0))
	require.Equal(t, 42.0, code.ConstantAt(0))
	require.Equal(t, "log", code.NameAt(0))
	require.Equal(t, LocalDouble, code.LocalAt(0).Kind)
	require.Equal(t, 0, code.RegionAt(0).TryStart)
	require.Equal(t, 0, code.SequencePointAt(0).Offset)
}

func TestCodeAccessors(t *testing.T) {
	code := NewCode(CodeParams{
		Name:         "f",
		Instructions: []op.Code{op.LdUndef, op.Ret},
		ParamCount:   2,
		HasScopes:    true,
		Locals:       []LocalType{{Kind: LocalScope, Type: "f"}, {Kind: LocalObject}},
		LocalNames:   []string{"<leaf>"},
		MaxStack:     1,
		ResumeCount:  2,
	})
	require.Equal(t, "f", code.Name())
	require.Equal(t, 2, code.InstructionCount())
	require.Equal(t, 2, code.ParamCount())
	require.True(t, code.HasScopes())
	require.False(t, code.IsInstance())
	require.Equal(t, 2, code.LocalCount())
	require.Equal(t, "<leaf>", code.LocalNameAt(0))
	require.Equal(t, "", code.LocalNameAt(1))
	require.Equal(t, "scope:f", code.LocalAt(0).String())
	require.Equal(t, 2, code.ResumeCount())
	require.Equal(t, []op.Code{op.LdUndef, op.Ret}, code.Instructions())
}

func TestSpanAt(t *testing.T) {
	line := func(n int) SourceSpan {
		return SourceSpan{Start: SourceLocation{Line: n, Column: 1}, End: SourceLocation{Line: n, Column: 9}}
	}
	code := NewCode(CodeParams{
		Instructions: []op.Code{op.Nop, op.Nop, op.Nop, op.LdUndef, op.Ret},
		SequencePoints: []SequencePoint{
			{Offset: 0, Span: line(1)},
			{Offset: 3, Span: line(2)},
		},
	})
	_, ok := NewCode(CodeParams{}).SpanAt(0)
	require.False(t, ok)

	span, ok := code.SpanAt(2)
	require.True(t, ok)
	require.Equal(t, 1, span.Start.Line)

	span, ok = code.SpanAt(4)
	require.True(t, ok)
	require.Equal(t, 2, span.Start.Line)
	require.Equal(t, "2:1-2:9", span.String())
}

func TestStats(t *testing.T) {
	code := NewCode(CodeParams{
		Instructions: []op.Code{op.LdI4, 1, op.LdI4, 2, op.Pop, op.Pop, op.LdUndef, op.Ret},
		Constants:    []any{1.0},
		MaxStack:     2,
	})
	stats := code.Stats()
	require.Equal(t, 6, stats.InstructionCount)
	require.Equal(t, 8, stats.WordCount)
	require.Equal(t, 1, stats.ConstantCount)
	require.Equal(t, 2, stats.MaxStack)
}

func TestInstructionIter(t *testing.T) {
	code := NewCode(CodeParams{
		Instructions: []op.Code{op.LdI4, 0, op.Switch, 2, 6, 6, op.LdUndef, op.Ret},
	})
	iter := NewInstructionIter(code)
	all := iter.All()
	require.Len(t, all, 4)
	require.Equal(t, []op.Code{op.Switch, 2, 6, 6}, all[1])
	require.Equal(t, 8, iter.Offset())
}
