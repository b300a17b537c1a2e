package bytecode

import (
	"fmt"

	"github.com/tomacox74/js2il-sub000/op"
)

// VerifyError describes a stack-discipline violation at an offset.
type VerifyError struct {
	Offset int
	Opcode string
	Reason string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("stack verification failed at offset %d (%s): %s",
		e.Offset, e.Opcode, e.Reason)
}

// Verify simulates the evaluation stack across every reachable path of the
// instruction stream and returns the maximum depth. Catch handlers start with
// the exception on the stack; finally handlers and Leave targets start empty.
// Every Ret must leave the stack empty.
func Verify(instructions []op.Code, regions []ExceptionRegion) (int, error) {
	n := len(instructions)
	depth := make([]int, n+1)
	for i := range depth {
		depth[i] = -1
	}
	type entry struct{ offset, depth int }
	var work []entry
	maxDepth := 0

	enqueue := func(from, target, d int) error {
		if target < 0 || target >= n {
			return &VerifyError{Offset: from, Opcode: opName(instructions, from),
				Reason: fmt.Sprintf("branch target %d out of range", target)}
		}
		if depth[target] == -1 {
			depth[target] = d
			work = append(work, entry{target, d})
			return nil
		}
		if depth[target] != d {
			return &VerifyError{Offset: from, Opcode: opName(instructions, from),
				Reason: fmt.Sprintf("stack depth %d disagrees with %d at join %d",
					d, depth[target], target)}
		}
		return nil
	}

	if n == 0 {
		return 0, nil
	}
	if err := enqueue(0, 0, 0); err != nil {
		return 0, err
	}
	for _, r := range regions {
		start := 0
		if r.Kind == RegionCatch {
			start = 1
		}
		if err := enqueue(r.HandlerStart, r.HandlerStart, start); err != nil {
			return 0, err
		}
		if start > maxDepth {
			maxDepth = start
		}
	}

	for len(work) > 0 {
		e := work[len(work)-1]
		work = work[:len(work)-1]
		ip, d := e.offset, e.depth
		for {
			if ip >= n {
				return 0, &VerifyError{Offset: ip, Opcode: "<end>",
					Reason: "execution falls off the end of the method"}
			}
			opcode := instructions[ip]
			info := op.GetInfo(opcode)
			if info.Name == "" {
				return 0, &VerifyError{Offset: ip, Opcode: fmt.Sprintf("%d", opcode),
					Reason: "unknown opcode"}
			}
			width := op.Width(instructions, ip)
			if ip+width > n {
				return 0, &VerifyError{Offset: ip, Opcode: info.Name, Reason: "truncated operands"}
			}
			operands := instructions[ip+1 : ip+width]
			pops, pushes := op.StackEffect(opcode, operands)
			if d < pops {
				return 0, &VerifyError{Offset: ip, Opcode: info.Name,
					Reason: fmt.Sprintf("stack underflow: depth %d, pops %d", d, pops)}
			}
			d = d - pops + pushes
			if d > maxDepth {
				maxDepth = d
			}
			switch opcode {
			case op.Ret:
				if d != 0 {
					return 0, &VerifyError{Offset: ip, Opcode: info.Name,
						Reason: fmt.Sprintf("%d values left on the stack at return", d)}
				}
			case op.Br:
				if err := enqueue(ip, int(operands[0]), d); err != nil {
					return 0, err
				}
			case op.BrTrue, op.BrFalse:
				if err := enqueue(ip, int(operands[0]), d); err != nil {
					return 0, err
				}
			case op.Leave:
				if err := enqueue(ip, int(operands[0]), 0); err != nil {
					return 0, err
				}
			case op.Switch:
				for _, target := range operands[1:] {
					if err := enqueue(ip, int(target), d); err != nil {
						return 0, err
					}
				}
			}
			if op.IsTerminator(opcode) {
				break
			}
			next := ip + width
			if depth[next] != -1 && next < n {
				if depth[next] != d {
					return 0, &VerifyError{Offset: ip, Opcode: info.Name,
						Reason: fmt.Sprintf("stack depth %d disagrees with %d at join %d",
							d, depth[next], next)}
				}
				break
			}
			if next < n {
				depth[next] = d
			}
			ip = next
		}
	}
	return maxDepth, nil
}

func opName(instructions []op.Code, offset int) string {
	if offset < 0 || offset >= len(instructions) {
		return "<none>"
	}
	return op.GetInfo(instructions[offset]).Name
}
