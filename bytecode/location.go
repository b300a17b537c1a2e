package bytecode

import "fmt"

// SourceLocation represents a position in source code.
type SourceLocation struct {
	Line   int // 1-based line number
	Column int // 1-based column number
}

// String returns a formatted string representation of the source location.
func (s SourceLocation) String() string {
	return fmt.Sprintf("%d:%d", s.Line, s.Column)
}

// IsZero returns true if the location has not been set.
func (s SourceLocation) IsZero() bool {
	return s.Line == 0 && s.Column == 0
}

// SourceSpan is a half-open range of source positions.
type SourceSpan struct {
	Start SourceLocation
	End   SourceLocation
}

// String returns a formatted string representation of the span.
func (s SourceSpan) String() string {
	return fmt.Sprintf("%s-%s", s.Start, s.End)
}

// SequencePoint maps an instruction offset to the source span it came from.
type SequencePoint struct {
	Offset int
	Span   SourceSpan
}
