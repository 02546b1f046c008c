package lexer

// preState enumerates the preprocessor's states. The machine observes
// every token the scanner produces before it reaches the output
// stream; directives therefore operate on tokens, not raw text.
type preState uint8

const (
	preNone preState = iota
	preFoundPound
	preDefine
	preInclude
	preAwaitingNewLine
)

// preprocessor is the directive state machine embedded in the lexer.
//
// A `#define` in progress has defineFrom set; its replacement tokens
// accumulate in defineTo until the terminating newline registers the
// rule. `#include` splices the included file's tokens directly into
// the output stream, so it keeps no state beyond the transition.
type preprocessor struct {
	state preState

	defineFrom *Token
	defineTo   []Token
}

func (p *preprocessor) reset() {
	*p = preprocessor{}
}
