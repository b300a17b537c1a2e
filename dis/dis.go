// Package dis supports analysis of emitted bytecode by disassembling it.
// This works with the opcodes defined in the `op` package and uses the
// InstructionIter type from the `bytecode` package.
package dis

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/tomacox74/js2il-sub000/bytecode"
	"github.com/tomacox74/js2il-sub000/internal/table"
	"github.com/tomacox74/js2il-sub000/op"
)

// Instruction represents a single bytecode instruction and its operands.
type Instruction struct {
	Offset     int
	Name       string
	Opcode     op.Code
	Operands   []op.Code
	Annotation string
	Constant   any
}

var (
	bold    = color.New(color.Bold).SprintFunc()
	italic  = color.New(color.Italic).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
	cyan    = color.New(color.FgHiCyan).SprintFunc()
)

// Disassemble returns a parsed representation of the given bytecode.
func Disassemble(code *bytecode.Code) ([]Instruction, error) {
	var instructions []Instruction
	iter := bytecode.NewInstructionIter(code)
	for {
		offset := iter.Offset()
		val, ok := iter.Next()
		if !ok {
			break
		}
		opcode := val[0]
		info := op.GetInfo(opcode)
		if info.Name == "" {
			return nil, fmt.Errorf("unknown opcode %d at offset %d", opcode, offset)
		}
		instr := Instruction{
			Offset:   offset,
			Name:     info.Name,
			Opcode:   opcode,
			Operands: val[1:],
		}
		var err error
		switch {
		case opcode == op.LdLoc || opcode == op.StLoc:
			instr.Annotation, err = getLocalName(code, int(val[1]))
		case opcode == op.LdArg || opcode == op.StArg:
			instr.Annotation = fmt.Sprintf("arg_%d", val[1])
		case opcode == op.LdI4:
			instr.Constant = int(int16(val[1]))
		case op.HasConstant(opcode):
			instr.Constant, err = getConstant(code, int(val[1]))
		case op.HasName(opcode):
			instr.Annotation, err = getName(code, int(val[1]))
		case op.HasToken(opcode):
			instr.Annotation = fmt.Sprintf("fn:%d", val[1])
		case opcode == op.Switch:
			targets := make([]string, len(val)-2)
			for i, target := range val[2:] {
				targets[i] = fmt.Sprintf("%d", target)
			}
			instr.Annotation = "-> " + strings.Join(targets, ", ")
		case op.IsBranch(opcode):
			instr.Annotation = fmt.Sprintf("-> %d", val[1])
		}
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", offset, err)
		}
		instructions = append(instructions, instr)
	}
	return instructions, nil
}

// Print a string representation of the given instructions to the given writer.
func Print(instructions []Instruction, writer io.Writer) error {
	var lines [][]string
	for _, instr := range instructions {
		values := []string{
			fmt.Sprintf("%d", instr.Offset),
			bold(instr.Name),
			formatOperands(instr.Operands),
		}
		switch c := instr.Constant.(type) {
		case nil:
			if instr.Annotation != "" {
				values = append(values, cyan(instr.Annotation))
			} else {
				values = append(values, "")
			}
		case int:
			values = append(values, yellow(fmt.Sprintf("%d", c)))
		case float64:
			values = append(values, yellow(fmt.Sprintf("%g", c)))
		case string:
			if len(c) > 80 {
				c = c[:77] + "..."
			}
			values = append(values, green(fmt.Sprintf("%q", c)))
		default:
			values = append(values, bold(fmt.Sprintf("%v", c)))
		}
		lines = append(lines, values)
	}

	return table.NewTable(writer).
		WithHeader([]string{"OFFSET", "OPCODE", "OPERANDS", "INFO"}).
		WithColumnAlignment([]table.Alignment{
			table.AlignRight,
			table.AlignLeft,
			table.AlignRight,
			table.AlignLeft,
		}).
		WithHeaderAlignment([]table.Alignment{
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
		}).
		WithRows(lines).
		Render()
}

// PrintCode writes a summary of the method followed by its instructions:
// the parameter count, the local signature and the exception regions.
func PrintCode(code *bytecode.Code, writer io.Writer) error {
	instructions, err := Disassemble(code)
	if err != nil {
		return err
	}
	stats := code.Stats()
	fmt.Fprintf(writer, "%s %s params=%d max_stack=%d instructions=%d words=%d\n",
		magenta("method"), bold(code.Name()), code.ParamCount(), code.MaxStack(),
		stats.InstructionCount, stats.WordCount)
	if n := code.ResumeCount(); n > 0 {
		fmt.Fprintf(writer, "  resume points: %d\n", n)
	}
	for i := 0; i < code.LocalCount(); i++ {
		name, _ := getLocalName(code, i)
		fmt.Fprintf(writer, "  local %d %s: %s\n", i, name, italic(code.LocalAt(i).String()))
	}
	for i := 0; i < code.RegionCount(); i++ {
		r := code.RegionAt(i)
		fmt.Fprintf(writer, "  region %d %s try [%d, %d) handler [%d, %d)", i, r.Kind, r.TryStart, r.TryEnd, r.HandlerStart, r.HandlerEnd)
		if r.CatchType != "" {
			fmt.Fprintf(writer, " catch %s", r.CatchType)
		}
		fmt.Fprintln(writer)
	}
	return Print(instructions, writer)
}

func formatOperands(ops []op.Code) string {
	var sb strings.Builder
	for i, op := range ops {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%d", op))
	}
	return sb.String()
}

func getLocalName(code *bytecode.Code, index int) (string, error) {
	if code.LocalCount() <= index {
		return "", fmt.Errorf("local variable index out of range: %d", index)
	}
	if name := code.LocalNameAt(index); name != "" {
		return name, nil
	}
	return fmt.Sprintf("local_%d", index), nil
}

func getConstant(code *bytecode.Code, index int) (any, error) {
	if code.ConstantCount() <= index {
		return nil, fmt.Errorf("constant index out of range: %d", index)
	}
	return code.ConstantAt(index), nil
}

func getName(code *bytecode.Code, index int) (string, error) {
	if code.NameCount() <= index {
		return "", fmt.Errorf("name index out of range: %d", index)
	}
	return code.NameAt(index), nil
}
