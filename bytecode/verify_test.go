package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomacox74/js2il-sub000/op"
)

func TestVerify(t *testing.T) {
	testCases := []struct {
		name     string
		code     []op.Code
		regions  []ExceptionRegion
		maxStack int
		errMsg   string
	}{
		{
			name:     "straight line",
			code:     []op.Code{op.LdF64, 0, op.LdF64, 1, op.Add, op.BoxF, op.Ret},
			maxStack: 2,
		},
		{
			name: "branch join",
			code: []op.Code{
				op.LdTrue,       // 0
				op.BrFalse, 6,   // 1
				op.LdI4, 1,      // 3
				op.Pop,          // 5
				op.LdUndef,      // 6
				op.Ret,          // 7
			},
			maxStack: 1,
		},
		{
			name:   "underflow",
			code:   []op.Code{op.Pop, op.LdUndef, op.Ret},
			errMsg: "stack verification failed at offset 0 (POP): stack underflow: depth 0, pops 1",
		},
		{
			name:   "residual at return",
			code:   []op.Code{op.LdUndef, op.LdUndef, op.Ret},
			errMsg: "stack verification failed at offset 2 (RET): 1 values left on the stack at return",
		},
		{
			name: "join mismatch",
			code: []op.Code{
				op.LdTrue,      // 0
				op.BrTrue, 5,   // 1
				op.LdUndef,     // 3
				op.Nop,         // 4
				op.LdUndef,     // 5
				op.Ret,         // 6
			},
			errMsg: "stack verification failed at offset 4 (NOP): stack depth 1 disagrees with 0 at join 5",
		},
		{
			name:   "falls off end",
			code:   []op.Code{op.Nop},
			errMsg: "stack verification failed at offset 1 (<end>): execution falls off the end of the method",
		},
		{
			name: "catch handler starts with exception",
			code: []op.Code{
				op.LdUndef,   // 0
				op.Throw,     // 1
				op.Pop,       // 2 handler
				op.Leave, 5,  // 3
				op.LdUndef,   // 5
				op.Ret,       // 6
			},
			regions: []ExceptionRegion{
				{Kind: RegionCatch, TryStart: 0, TryEnd: 2, HandlerStart: 2, HandlerEnd: 5},
			},
			maxStack: 1,
		},
		{
			name: "switch targets",
			code: []op.Code{
				op.LdI4, 1,        // 0
				op.Switch, 2, 6, 7, // 2
				op.LdUndef,        // 6
				op.Ret,            // 7 (reached with depth 0 from switch)
			},
			errMsg: "stack verification failed at offset 7 (RET): stack underflow: depth 0, pops 1",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			maxStack, err := Verify(tc.code, tc.regions)
			if tc.errMsg != "" {
				require.NotNil(t, err)
				require.Equal(t, tc.errMsg, err.Error())
				return
			}
			require.Nil(t, err)
			require.Equal(t, tc.maxStack, maxStack)
		})
	}
}
