// Package op defines the opcodes emitted by the compiler backend and executed
// by the reference virtual machine.
package op

// Code is an integer opcode that indicates an operation to execute.
type Code uint16

const (
	Invalid Code = 0

	// Stack
	Nop Code = 1
	Pop Code = 2
	Dup Code = 3

	// Constants
	LdUndef Code = 10
	LdNull  Code = 11
	LdTrue  Code = 12
	LdFalse Code = 13
	LdI4    Code = 14
	LdF64   Code = 15
	LdStr   Code = 16

	// Arguments and locals
	LdArg Code = 20
	StArg Code = 21
	LdLoc Code = 22
	StLoc Code = 23

	// Raw numeric operations. Operands must be unboxed doubles.
	Add Code = 30
	Sub Code = 31
	Mul Code = 32
	Div Code = 33
	Rem Code = 34
	Pow Code = 35
	Neg Code = 36
	Clt Code = 37
	Cgt Code = 38
	Ceq Code = 39
	Not Code = 40
	Cle Code = 41
	Cge Code = 42

	// Conversions
	ConvF     Code = 45
	ConvI     Code = 46
	BoxF      Code = 47
	BoxB      Code = 48
	UnboxF    Code = 49
	UnboxB    Code = 50
	CastClass Code = 51
	IsInst    Code = 52

	// Calls
	Call           Code = 60
	CallValue      Code = 61
	CallMember     Code = 62
	CallMemberArgs Code = 63
	CallHelper     Code = 64
	NewObj         Code = 65
	NewUser        Code = 66
	MkClosure      Code = 67

	// Fields and globals
	LdFld    Code = 70
	StFld    Code = 71
	LdGlobal Code = 72

	// Object vectors
	NewArr Code = 80
	LdElem Code = 81
	StElem Code = 82
	LdLen  Code = 83

	// List-backed arrays
	ArrGet Code = 90
	ArrSet Code = 91
	ArrLen Code = 92

	// Fixed-size numeric arrays
	F64Get Code = 95
	F64Set Code = 96
	F64Len Code = 97

	// Control flow
	Br         Code = 100
	BrTrue     Code = 101
	BrFalse    Code = 102
	Switch     Code = 103
	Ret        Code = 104
	Leave      Code = 105
	EndFinally Code = 106
	Throw      Code = 107
	Rethrow    Code = 108
)

// Operand encoding. LdF64 and LdStr index the constant pool. CastClass,
// IsInst, NewObj, CallMember, CallMemberArgs, CallHelper, LdFld, StFld and
// LdGlobal index the name table. Call, NewUser and MkClosure take a
// function-table token. LdI4 takes a signed 16-bit word. Branch targets are
// absolute word offsets.

// Variable marks an operand count or stack effect that depends on the
// instruction's operands.
const Variable = -1

// Info describes an opcode: its mnemonic, the number of operands that follow
// it in the instruction stream, and its effect on the evaluation stack.
type Info struct {
	Code         Code
	Name         string
	OperandCount int
	Pops         int
	Pushes       int
}

var infos = make([]Info, 256)

func init() {
	type opInfo struct {
		op     Code
		name   string
		count  int
		pops   int
		pushes int
	}
	ops := []opInfo{
		{Nop, "NOP", 0, 0, 0},
		{Pop, "POP", 0, 1, 0},
		{Dup, "DUP", 0, 1, 2},
		{LdUndef, "LD_UNDEF", 0, 0, 1},
		{LdNull, "LD_NULL", 0, 0, 1},
		{LdTrue, "LD_TRUE", 0, 0, 1},
		{LdFalse, "LD_FALSE", 0, 0, 1},
		{LdI4, "LD_I4", 1, 0, 1},
		{LdF64, "LD_F64", 1, 0, 1},
		{LdStr, "LD_STR", 1, 0, 1},
		{LdArg, "LD_ARG", 1, 0, 1},
		{StArg, "ST_ARG", 1, 1, 0},
		{LdLoc, "LD_LOC", 1, 0, 1},
		{StLoc, "ST_LOC", 1, 1, 0},
		{Add, "ADD", 0, 2, 1},
		{Sub, "SUB", 0, 2, 1},
		{Mul, "MUL", 0, 2, 1},
		{Div, "DIV", 0, 2, 1},
		{Rem, "REM", 0, 2, 1},
		{Pow, "POW", 0, 2, 1},
		{Neg, "NEG", 0, 1, 1},
		{Clt, "CLT", 0, 2, 1},
		{Cgt, "CGT", 0, 2, 1},
		{Ceq, "CEQ", 0, 2, 1},
		{Not, "NOT", 0, 1, 1},
		{Cle, "CLE", 0, 2, 1},
		{Cge, "CGE", 0, 2, 1},
		{ConvF, "CONV_F", 0, 1, 1},
		{ConvI, "CONV_I", 0, 1, 1},
		{BoxF, "BOX_F", 0, 1, 1},
		{BoxB, "BOX_B", 0, 1, 1},
		{UnboxF, "UNBOX_F", 0, 1, 1},
		{UnboxB, "UNBOX_B", 0, 1, 1},
		{CastClass, "CAST_CLASS", 1, 1, 1},
		{IsInst, "IS_INST", 1, 1, 1},
		{Call, "CALL", 2, Variable, 1},
		{CallValue, "CALL_VALUE", 1, Variable, 1},
		{CallMember, "CALL_MEMBER", 2, Variable, 1},
		{CallMemberArgs, "CALL_MEMBER_ARGS", 1, 2, 1},
		{CallHelper, "CALL_HELPER", 2, Variable, 1},
		{NewObj, "NEW_OBJ", 2, Variable, 1},
		{NewUser, "NEW_USER", 2, Variable, 1},
		{MkClosure, "MK_CLOSURE", 1, 1, 1},
		{LdFld, "LD_FLD", 1, 1, 1},
		{StFld, "ST_FLD", 1, 2, 0},
		{LdGlobal, "LD_GLOBAL", 1, 0, 1},
		{NewArr, "NEW_ARR", 0, 1, 1},
		{LdElem, "LD_ELEM", 0, 2, 1},
		{StElem, "ST_ELEM", 0, 3, 0},
		{LdLen, "LD_LEN", 0, 1, 1},
		{ArrGet, "ARR_GET", 0, 2, 1},
		{ArrSet, "ARR_SET", 0, 3, 0},
		{ArrLen, "ARR_LEN", 0, 1, 1},
		{F64Get, "F64_GET", 0, 2, 1},
		{F64Set, "F64_SET", 0, 3, 0},
		{F64Len, "F64_LEN", 0, 1, 1},
		{Br, "BR", 1, 0, 0},
		{BrTrue, "BR_TRUE", 1, 1, 0},
		{BrFalse, "BR_FALSE", 1, 1, 0},
		{Switch, "SWITCH", Variable, 1, 0},
		{Ret, "RET", 0, 1, 0},
		{Leave, "LEAVE", 1, 0, 0},
		{EndFinally, "END_FINALLY", 0, 0, 0},
		{Throw, "THROW", 0, 1, 0},
		{Rethrow, "RETHROW", 0, 0, 0},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Code:         o.op,
			Name:         o.name,
			OperandCount: o.count,
			Pops:         o.pops,
			Pushes:       o.pushes,
		}
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(op Code) Info {
	if int(op) >= len(infos) {
		return Info{}
	}
	return infos[op]
}

// Width returns the number of words occupied by the instruction starting at
// ip, including the opcode itself.
func Width(instructions []Code, ip int) int {
	opcode := instructions[ip]
	if opcode == Switch {
		return 2 + int(instructions[ip+1])
	}
	return 1 + GetInfo(opcode).OperandCount
}

// StackEffect returns the number of values popped and pushed by the given
// instruction. The operands slice holds the words following the opcode.
func StackEffect(opcode Code, operands []Code) (pops, pushes int) {
	info := GetInfo(opcode)
	pops, pushes = info.Pops, info.Pushes
	switch opcode {
	case Call, CallHelper, NewObj, NewUser:
		pops = int(operands[1])
	case CallValue:
		pops = int(operands[0]) + 1
	case CallMember:
		pops = int(operands[1]) + 1
	}
	return pops, pushes
}

// IsBranch returns true if the opcode transfers control to an operand target.
func IsBranch(opcode Code) bool {
	switch opcode {
	case Br, BrTrue, BrFalse, Switch, Leave:
		return true
	}
	return false
}

// IsTerminator returns true if execution never falls through to the next
// instruction after the opcode.
func IsTerminator(opcode Code) bool {
	switch opcode {
	case Br, Ret, Leave, EndFinally, Throw, Rethrow:
		return true
	}
	return false
}

// HasName returns true if the first operand of the opcode indexes the name
// table.
func HasName(opcode Code) bool {
	switch opcode {
	case CastClass, IsInst, NewObj, CallMember, CallMemberArgs, CallHelper, LdFld, StFld, LdGlobal:
		return true
	}
	return false
}

// HasConstant returns true if the operand of the opcode indexes the
// constant pool.
func HasConstant(opcode Code) bool {
	return opcode == LdF64 || opcode == LdStr
}

// HasToken returns true if the first operand of the opcode is a
// function-table token.
func HasToken(opcode Code) bool {
	switch opcode {
	case Call, NewUser, MkClosure:
		return true
	}
	return false
}
