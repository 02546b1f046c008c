// Package reporter collects the diagnostics of a compilation and
// renders them for people.
//
// Every stage of the pipeline shares one Handler. Stages report
// diagnostics as they find them and keep going; a stage boundary
// calls Err and fails if anything of error severity accumulated. An
// error limit can cut collection short: once the limit is reached,
// every further report tells its caller to unwind.
//
// Diagnostics batch per source file. When a file's text has been
// registered with the handler, each diagnostic against that file
// carries the offending source line with a caret, so a failed build
// can be rendered without going back to the inputs.
package reporter

import (
	"fmt"
	"strings"

	"github.com/swerdloj/jitter/ast"
)

// Severity classifies a diagnostic.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic is one message anchored to a source location. It
// implements error, so stages can hand a diagnostic up the stack
// anywhere a plain error is expected.
type Diagnostic struct {
	Severity Severity
	Pos      ast.SourcePos
	Message  string

	// Snippet is the offending source line with a caret underneath,
	// filled in by the handler when the file's text was registered.
	// Empty otherwise.
	Snippet string
}

// Errorf creates an error-severity diagnostic.
func Errorf(pos ast.SourcePos, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{
		Severity: SeverityError,
		Pos:      pos,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Warningf creates a warning-severity diagnostic.
func Warningf(pos ast.SourcePos, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{
		Severity: SeverityWarning,
		Pos:      pos,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Error renders the diagnostic as "<file>:<line>:<column>: <message>".
func (d *Diagnostic) Error() string {
	if d.Severity == SeverityWarning {
		return fmt.Sprintf("%s: warning: %s", d.Pos, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Pos, d.Message)
}

// CompileError is a failed stage boundary: every diagnostic the stage
// accumulated, warnings included.
type CompileError struct {
	Diagnostics []*Diagnostic
}

// Error renders the first error plus a count of the rest, so a
// CompileError is useful even when treated as a plain error.
func (e *CompileError) Error() string {
	var first *Diagnostic
	errs := 0
	for _, d := range e.Diagnostics {
		if d.Severity != SeverityError {
			continue
		}
		if first == nil {
			first = d
		}
		errs++
	}
	if first == nil {
		return "compilation failed"
	}
	if errs == 1 {
		return first.Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", first.Error(), errs-1)
}

// ByFile batches the diagnostics by source file. Files appear in the
// order they first produced a diagnostic; within a file, diagnostics
// keep their report order.
func (e *CompileError) ByFile() ([]string, map[string][]*Diagnostic) {
	var files []string
	byFile := make(map[string][]*Diagnostic)
	for _, d := range e.Diagnostics {
		name := d.Pos.Filename
		if _, seen := byFile[name]; !seen {
			files = append(files, name)
		}
		byFile[name] = append(byFile[name], d)
	}
	return files, byFile
}

// Render formats every diagnostic, file by file, with source snippets
// where available.
func (e *CompileError) Render() string {
	var sb strings.Builder
	files, byFile := e.ByFile()
	for _, file := range files {
		for _, d := range byFile[file] {
			sb.WriteString(d.Error())
			sb.WriteByte('\n')
			if d.Snippet != "" {
				for _, line := range strings.Split(d.Snippet, "\n") {
					sb.WriteString("    ")
					sb.WriteString(line)
					sb.WriteByte('\n')
				}
			}
		}
	}
	return sb.String()
}
