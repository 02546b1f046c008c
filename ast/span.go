package ast

import "fmt"

// Span is a range of source text. Lines are 1-indexed and columns are
// 0-indexed, matching the coordinates the lexer tracks while scanning.
type Span struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// NewSpan creates a span from explicit coordinates.
func NewSpan(startLine, startCol, endLine, endCol int) Span {
	return Span{
		StartLine: startLine,
		StartCol:  startCol,
		EndLine:   endLine,
		EndCol:    endCol,
	}
}

// Extend returns a span covering the receiver through the end of other.
func (s Span) Extend(other Span) Span {
	s.EndLine = other.EndLine
	s.EndCol = other.EndCol
	return s
}

// String renders the start of the span as "line:column".
func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.StartLine, s.StartCol)
}

// SourcePos is a position within a named file, used for diagnostics.
type SourcePos struct {
	Filename string
	Span     Span
}

func (p SourcePos) String() string {
	if p.Filename == "" {
		return p.Span.String()
	}
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Span.StartLine, p.Span.StartCol)
}

// UnknownPos is a placeholder position for errors that cannot be
// attributed to a location in the file.
func UnknownPos(filename string) SourcePos {
	return SourcePos{Filename: filename}
}
