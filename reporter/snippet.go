package reporter

import (
	"strings"

	"github.com/rivo/uniseg"

	"github.com/swerdloj/jitter/ast"
)

// tabstopWidth is the size all tabstops render as in snippets.
const tabstopWidth = 4

// renderSnippet extracts the source line a diagnostic points at and
// draws a caret under the offending column:
//
//	let x: i32 = (;
//	              ^
//
// Returns "" when the position does not land on a line of the source.
func renderSnippet(source string, pos ast.SourcePos) string {
	lines := strings.Split(source, "\n")
	if pos.Span.StartLine < 1 || pos.Span.StartLine > len(lines) {
		return ""
	}
	line := lines[pos.Span.StartLine-1]

	// The caret column is measured in display cells, not bytes, so
	// multi-byte and wide graphemes before the error keep it aligned.
	col := pos.Span.StartCol
	width := 0
	cells := 0
	gr := uniseg.NewGraphemes(line)
	for gr.Next() && cells < col {
		if gr.Str() == "\t" {
			width += tabstopWidth
		} else {
			w := gr.Width()
			if w < 1 {
				w = 1
			}
			width += w
		}
		cells++
	}

	rendered := strings.ReplaceAll(line, "\t", strings.Repeat(" ", tabstopWidth))
	return rendered + "\n" + strings.Repeat(" ", width) + "^"
}
