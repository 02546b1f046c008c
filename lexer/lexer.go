// Package lexer converts source text into a stream of spanned tokens.
//
// The lexer is a single-pass scanner with one character of lookahead.
// While scanning it runs a small preprocessor state machine over the
// tokens it produces, interpreting `#define` and `#include` directives
// and applying registered token rewrite rules before tokens reach the
// output stream.
package lexer

import (
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/swerdloj/jitter/ast"
	"github.com/swerdloj/jitter/reporter"
)

// ReadFile resolves a path to source text. The filesystem is reduced
// to this single operation so that `#include` expansion is testable
// without touching disk.
type ReadFile func(path string) (string, error)

// Callback is a pre-seeded token rewrite: every occurrence of the
// single token that Pattern lexes to is replaced by the token sequence
// that Replacement lexes to.
type Callback struct {
	Pattern     string
	Replacement string
}

// Lexer tokenizes one named source text.
type Lexer struct {
	filePath string
	input    string
	pos      int

	lastLine int
	lastCol  int
	curLine  int
	curCol   int

	stripWhitespace bool

	pre preprocessor

	// Token replacements (seen token -> becomes).
	rewrites map[Token][]Token

	read    ReadFile
	handler *reporter.Handler
}

// New creates a lexer for the given named input. read may be nil, in
// which case includes resolve through the OS. handler may be nil, in
// which case errors collect until the end of the lex.
func New(filePath, input string, stripWhitespace bool, read ReadFile, handler *reporter.Handler) *Lexer {
	if read == nil {
		read = func(path string) (string, error) {
			data, err := os.ReadFile(path)
			return string(data), err
		}
	}
	if handler == nil {
		handler = reporter.NewHandler()
	}
	return &Lexer{
		filePath:        filePath,
		input:           input,
		curLine:         1,
		stripWhitespace: stripWhitespace,
		rewrites:        make(map[Token][]Token),
		read:            read,
		handler:         handler,
	}
}

// LexString converts the given input to tokens. filePath is used for
// resolving includes and for diagnostics.
func LexString(filePath, input string, stripWhitespace bool) ([]SpannedToken, error) {
	return New(filePath, input, stripWhitespace, nil, nil).Lex()
}

// AddCallback registers a pre-seeded rewrite rule. The pattern must
// lex to exactly one token.
func (l *Lexer) AddCallback(cb Callback) error {
	pattern, err := LexString("callback pattern", cb.Pattern, true)
	if err != nil {
		return err
	}
	if len(pattern) != 1 {
		return reporter.Errorf(ast.UnknownPos("callback pattern"),
			"rewrite patterns must be a single token, got %d", len(pattern))
	}

	spanned, err := LexString("callback replacement", cb.Replacement, true)
	if err != nil {
		return err
	}
	replacement := make([]Token, len(spanned))
	for i, st := range spanned {
		replacement[i] = st.Token
	}

	l.rewrites[pattern[0].Token] = replacement
	return nil
}

func (l *Lexer) currentPos() ast.SourcePos {
	return ast.SourcePos{
		Filename: l.filePath,
		Span:     ast.NewSpan(l.curLine, l.curCol, l.curLine, l.curCol),
	}
}

func (l *Lexer) errorf(format string, args ...interface{}) error {
	return l.handler.Errorf(l.currentPos(), format, args...)
}

// Lex scans the entire input. Any collected errors make the whole lex
// fail; the returned error is the handler's accumulated result.
func (l *Lexer) Lex() ([]SpannedToken, error) {
	var tokens []SpannedToken
	l.handler.RegisterSource(l.filePath, l.input)

	for l.pos < len(l.input) {
		if l.handler.Stopped() {
			// the error limit is already hit; skip the rest
			break
		}

		tok, ok := l.next()
		if !ok {
			continue
		}

		if tok.Token.Kind == KindWhitespace {
			// Whitespace never participates in a directive, even when
			// it is otherwise kept in the output stream.
			if l.stripWhitespace || l.pre.state != preNone {
				continue
			}
		}

		// `#` arms the directive state machine.
		if tok.Token.Kind == KindPound {
			if l.pre.state == preNone {
				l.pre.state = preFoundPound
			} else {
				l.errorf("preprocessor directive cannot include `#` symbol")
			}
			continue
		}

		switch l.pre.state {
		case preFoundPound:
			// Identify the directive in `#directive`.
			if tok.Token.Kind == KindIdent {
				switch strings.ToLower(tok.Token.Text) {
				case "define":
					l.pre.state = preDefine
				case "include":
					l.pre.state = preInclude
				default:
					l.errorf("invalid preprocessor directive: `%s` (valid options are `define`, `include`)", tok.Token.Text)
					l.pre.reset()
				}
			} else {
				l.errorf("expected `define` or `include` after `#`, found `%s`", tok.Token)
				l.pre.reset()
			}
			continue

		case preDefine:
			// Capture `from` in `#define from to...`.
			l.pre.defineFrom = &tok.Token
			l.pre.state = preAwaitingNewLine
			continue

		case preInclude:
			if tok.Token.Kind == KindString {
				included := l.include(tok.Token.Text)
				tokens = append(tokens, included...)
				l.pre.state = preAwaitingNewLine
			} else {
				l.errorf("expected a path string after `#include`, found `%s`", tok.Token)
				l.pre.reset()
			}
			continue

		case preAwaitingNewLine:
			if tok.Token.Kind == KindNewLine {
				// Finalize a `#define`.
				if l.pre.defineFrom != nil {
					l.rewrites[*l.pre.defineFrom] = l.pre.defineTo
				}
				l.pre.reset()
			} else if l.pre.defineFrom != nil {
				// Have `#define from`, accumulate the replacement.
				l.pre.defineTo = append(l.pre.defineTo, tok.Token)
			} else {
				// Do not allow dangling tokens.
				l.errorf("found unexpected token `%s` while waiting for a new line", tok.Token)
			}
			continue

		case preNone:
			if tok.Token.Kind == KindNewLine && l.stripWhitespace {
				continue
			}
		}

		if rule, ok := l.rewrites[tok.Token]; ok {
			// Rewrites keep the source span of the token they replace
			// and are not re-scanned for further rewrites.
			for _, t := range rule {
				tokens = append(tokens, SpannedToken{Token: t, Span: tok.Span})
			}
		} else {
			tokens = append(tokens, tok)
		}
	}

	if err := l.handler.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// include resolves path relative to the current file's directory,
// reads it, and lexes it with the same whitespace policy. On failure
// no tokens from the file reach the output.
func (l *Lexer) include(path string) []SpannedToken {
	target := resolveInclude(l.filePath, path)

	source, err := l.read(target)
	if err != nil {
		l.errorf("failed to read include file `%s`: %v", path, err)
		return nil
	}

	sub := New(target, source, l.stripWhitespace, l.read, l.handler)
	tokens, err := sub.Lex()
	if err != nil {
		// already reported through the shared handler
		return nil
	}
	return tokens
}

func resolveInclude(from, path string) string {
	dir := from
	if i := strings.LastIndexByte(dir, '/'); i >= 0 {
		return dir[:i+1] + path
	}
	return path
}

// advance moves the lexer forward one byte.
func (l *Lexer) advance() {
	l.pos++
	l.curCol++
}

// current returns the byte at the current position.
func (l *Lexer) current() byte {
	return l.input[l.pos]
}

// peek returns the next byte, or 0 at end of input.
func (l *Lexer) peek() (byte, bool) {
	if l.pos+1 >= len(l.input) {
		return 0, false
	}
	return l.input[l.pos+1], true
}

func (l *Lexer) resetLastPosition() {
	l.lastLine = l.curLine
	l.lastCol = l.curCol
}

func (l *Lexer) spanned(tok Token) SpannedToken {
	return SpannedToken{
		Token: tok,
		Span:  ast.NewSpan(l.lastLine, l.lastCol, l.curLine, l.curCol),
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

var singleByteTokens = map[byte]Kind{
	'@':  KindAt,
	'`':  KindBacktick,
	'\\': KindBackslash,
	'^':  KindCaret,
	'$':  KindDollarSign,
	'#':  KindPound,
	'+':  KindPlus,
	'-':  KindMinus,
	'*':  KindAsterisk,
	'=':  KindEquals,
	'.':  KindDot,
	',':  KindComma,
	':':  KindColon,
	';':  KindSemicolon,
	'&':  KindAnd,
	'!':  KindBang,
	'|':  KindPipe,
	'(':  KindOpenParen,
	')':  KindCloseParen,
	'{':  KindOpenCurly,
	'}':  KindCloseCurly,
	'[':  KindOpenSquare,
	']':  KindCloseSquare,
	'<':  KindLeftAngle,
	'>':  KindRightAngle,
}

// next scans a single token. It reports errors through the handler
// and returns ok=false when no token was produced.
func (l *Lexer) next() (SpannedToken, bool) {
	l.resetLastPosition()

	c := l.current()
	switch {
	// Whitespace tracks lines and columns.
	case c == '\n':
		l.curCol = 0
		l.curLine++
		l.pos++
		return l.spanned(punct(KindNewLine)), true
	case c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f':
		l.advance()
		return l.spanned(punct(KindWhitespace)), true

	case c == '"':
		return l.lexString()

	// Slash or single-line comment.
	case c == '/':
		l.advance()
		if l.pos < len(l.input) && l.current() == '/' {
			for l.pos < len(l.input) && l.current() != '\n' {
				l.advance()
			}
			// don't consume the newline; reuse the whitespace logic
			return l.spanned(punct(KindWhitespace)), true
		}
		return l.spanned(punct(KindSlash)), true

	// Identifier or keyword.
	case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		from := l.pos
		for {
			next, ok := l.peek()
			if !ok || !isIdentByte(next) {
				break
			}
			l.advance()
		}
		l.advance()
		word := l.input[from:l.pos]
		if kw, ok := keywords[word]; ok {
			return l.spanned(Key(kw)), true
		}
		return l.spanned(Ident(word)), true

	case isDigit(c):
		from := l.pos
		for {
			// Underscores are allowed in numbers as separators.
			next, ok := l.peek()
			if !ok || !isDigit(next) && next != '_' {
				break
			}
			l.advance()
		}
		l.advance()
		digits := strings.ReplaceAll(l.input[from:l.pos], "_", "")
		n, err := strconv.ParseUint(digits, 10, 64)
		if err != nil {
			l.errorf("numeric literal `%s` out of range", digits)
			return SpannedToken{}, false
		}
		return l.spanned(Number(n)), true

	default:
		if kind, ok := singleByteTokens[c]; ok {
			l.advance()
			return l.spanned(punct(kind)), true
		}
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		l.pos += size
		l.curCol++
		l.errorf("invalid character: `%c`", r)
		return SpannedToken{}, false
	}
}

// lexString scans a string literal. A backslash escapes the following
// character; `\"` and `\\` unescape, anything else is kept verbatim.
func (l *Lexer) lexString() (SpannedToken, bool) {
	l.advance() // opening quote

	var sb strings.Builder
	for {
		if l.pos >= len(l.input) {
			l.errorf("unexpected EOF while scanning string literal")
			return SpannedToken{}, false
		}
		c := l.current()
		if c == '"' {
			l.advance()
			break
		}
		if c == '\n' {
			// keep line accounting consistent inside multi-line strings
			l.curCol = 0
			l.curLine++
			l.pos++
			sb.WriteByte(c)
			continue
		}
		if c == '\\' {
			l.advance()
			if l.pos >= len(l.input) {
				l.errorf("unexpected EOF while scanning string literal")
				return SpannedToken{}, false
			}
			esc := l.current()
			if esc != '"' && esc != '\\' {
				sb.WriteByte('\\')
			}
			sb.WriteByte(esc)
			l.advance()
			continue
		}
		sb.WriteByte(c)
		l.advance()
	}

	return l.spanned(String(sb.String())), true
}
