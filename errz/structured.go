// Package errz defines the error taxonomy of the compiler backend.
//
// Three kinds exist. Invariant violations are reported by the validator and
// indicate a bug in the lowering that produced the method body. Unsupported
// constructs are ordinary failures the caller may recover from by choosing
// another compilation path. Fatal internal errors abort the current method.
package errz

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// ErrInvariant indicates a violated method-body invariant.
	ErrInvariant ErrorKind = iota
	// ErrUnsupported indicates an instruction or shape that cannot be lowered.
	ErrUnsupported
	// ErrFatal indicates an assumption violated during emission.
	ErrFatal
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrInvariant:
		return "invariant violation"
	case ErrUnsupported:
		return "unsupported construct"
	case ErrFatal:
		return "fatal internal error"
	default:
		return "error"
	}
}

// StructuredError carries the kind, code and position of a backend failure.
// Instruction and Operand are -1 when not applicable.
type StructuredError struct {
	Message     string
	Kind        ErrorKind
	Code        ErrorCode
	Method      string
	Instruction int
	Operand     int
	Cause       error
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	var msg bytes.Buffer
	msg.WriteString(e.Kind.String())
	if e.Code != "" {
		msg.WriteString(" [")
		msg.WriteString(string(e.Code))
		msg.WriteString("]")
	}
	msg.WriteString(": ")
	msg.WriteString(e.Message)
	if pos := e.position(); pos != "" {
		msg.WriteString(" (")
		msg.WriteString(pos)
		msg.WriteString(")")
	}
	return msg.String()
}

func (e *StructuredError) position() string {
	var parts []string
	if e.Method != "" {
		parts = append(parts, "method "+e.Method)
	}
	if e.Instruction >= 0 {
		parts = append(parts, fmt.Sprintf("instruction %d", e.Instruction))
	}
	if e.Operand >= 0 {
		parts = append(parts, fmt.Sprintf("temp t%d", e.Operand))
	}
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(p)
	}
	return buf.String()
}

// Unwrap returns the underlying cause of the error.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// IsFatal returns whether the error aborts compilation of the method.
// Only unsupported constructs are recoverable.
func (e *StructuredError) IsFatal() bool {
	return e.Kind != ErrUnsupported
}

// FriendlyErrorMessage returns the error followed by the description of its
// code and the cause chain.
func (e *StructuredError) FriendlyErrorMessage() string {
	var msg bytes.Buffer
	msg.WriteString(e.Error())
	msg.WriteString("\n")
	if desc := e.Code.Description(); desc != "" {
		msg.WriteString(" = ")
		msg.WriteString(desc)
		msg.WriteString("\n")
	}
	for cause := e.Cause; cause != nil; cause = errors.Unwrap(cause) {
		msg.WriteString(" caused by: ")
		msg.WriteString(cause.Error())
		msg.WriteString("\n")
	}
	return msg.String()
}

// WithCause wraps the error with a cause.
func (e *StructuredError) WithCause(cause error) *StructuredError {
	e.Cause = cause
	return e
}

// WithMethod records the name of the method being compiled.
func (e *StructuredError) WithMethod(name string) *StructuredError {
	e.Method = name
	return e
}

func newError(kind ErrorKind, code ErrorCode, instr, operand int, format string, args ...any) *StructuredError {
	return &StructuredError{
		Message:     fmt.Sprintf(format, args...),
		Kind:        kind,
		Code:        code,
		Instruction: instr,
		Operand:     operand,
	}
}

// Invariantf creates an invariant violation at the given instruction index
// and temp operand.
func Invariantf(code ErrorCode, instr, operand int, format string, args ...any) *StructuredError {
	return newError(ErrInvariant, code, instr, operand, format, args...)
}

// Unsupportedf creates an unsupported-construct error.
func Unsupportedf(code ErrorCode, instr int, format string, args ...any) *StructuredError {
	return newError(ErrUnsupported, code, instr, -1, format, args...)
}

// Fatalf creates a fatal internal error.
func Fatalf(code ErrorCode, instr, operand int, format string, args ...any) *StructuredError {
	return newError(ErrFatal, code, instr, operand, format, args...)
}

// KindOf returns the kind of the first StructuredError in the chain.
func KindOf(err error) (ErrorKind, bool) {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsUnsupported returns true if err reports an unsupported construct.
func IsUnsupported(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == ErrUnsupported
}

// IsInvariant returns true if err reports a violated invariant.
func IsInvariant(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == ErrInvariant
}

// IsFatal returns true unless err is an unsupported-construct error.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var se *StructuredError
	if errors.As(err, &se) {
		return se.IsFatal()
	}
	return true
}
