package vm

import (
	"errors"
	"fmt"
)

// ErrHalted is returned when an observer stops execution.
var ErrHalted = errors.New("vm: execution halted by observer")

// Exception is a script-level exception propagating out of a frame. Value is
// the thrown object: an *ErrorObject or a *Thrown wrapper.
type Exception struct {
	Value any
}

func (e *Exception) Error() string {
	return "uncaught exception: " + toString(thrownValue(e.Value))
}

// ThrownValue returns the script value that was thrown.
func (e *Exception) ThrownValue() any {
	return thrownValue(e.Value)
}

// Fault reports a violation of the instruction-stream contract: an operand
// of the wrong representation, an unknown name or a malformed stream.
// Faults are never catchable by script code.
type Fault struct {
	Method string
	Offset int
	Opcode string
	Err    error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("vm fault in %s at offset %d (%s): %v", f.Method, f.Offset, f.Opcode, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// AsException returns the script exception carried by err, if any.
func AsException(err error) (*Exception, bool) {
	var exc *Exception
	if errors.As(err, &exc) {
		return exc, true
	}
	return nil, false
}
