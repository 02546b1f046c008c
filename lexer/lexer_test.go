package lexer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swerdloj/jitter/ast"
)

func kinds(tokens []SpannedToken) []Token {
	out := make([]Token, len(tokens))
	for i, t := range tokens {
		out[i] = t.Token
	}
	return out
}

func TestLexTokenKinds(t *testing.T) {
	input := `1_2_30 ident _0_1 _1test test1_
fn for struct let mut
- + * / = < > , : ; ( ) { } [ ]`

	tokens, err := LexString("lex_test.txt", input, true)
	require.NoError(t, err)

	expected := []Token{
		Number(1230),
		Ident("ident"),
		Ident("_0_1"),
		Ident("_1test"),
		Ident("test1_"),
		Key(KeywordFn),
		Key(KeywordFor),
		Key(KeywordStruct),
		Key(KeywordLet),
		Key(KeywordMut),
		punct(KindMinus),
		punct(KindPlus),
		punct(KindAsterisk),
		punct(KindSlash),
		punct(KindEquals),
		punct(KindLeftAngle),
		punct(KindRightAngle),
		punct(KindComma),
		punct(KindColon),
		punct(KindSemicolon),
		punct(KindOpenParen),
		punct(KindCloseParen),
		punct(KindOpenCurly),
		punct(KindCloseCurly),
		punct(KindOpenSquare),
		punct(KindCloseSquare),
	}
	assert.Equal(t, expected, kinds(tokens))
}

func TestLexAllKeywords(t *testing.T) {
	input := "binary box extern enum for fn impl let mut pub return self struct trait unary use"
	tokens, err := LexString("kw.txt", input, true)
	require.NoError(t, err)

	expected := []Token{
		Key(KeywordBinary), Key(KeywordBox), Key(KeywordExtern), Key(KeywordEnum),
		Key(KeywordFor), Key(KeywordFn), Key(KeywordImpl), Key(KeywordLet),
		Key(KeywordMut), Key(KeywordPub), Key(KeywordReturn), Key(KeywordSelf),
		Key(KeywordStruct), Key(KeywordTrait), Key(KeywordUnary), Key(KeywordUse),
	}
	assert.Equal(t, expected, kinds(tokens))
}

func TestKeywordPrefixIsIdent(t *testing.T) {
	tokens, err := LexString("kw.txt", "fnx letter fork structure", true)
	require.NoError(t, err)
	assert.Equal(t, []Token{
		Ident("fnx"), Ident("letter"), Ident("fork"), Ident("structure"),
	}, kinds(tokens))
}

func TestSpans(t *testing.T) {
	tokens, err := LexString("spans.txt", "let x;\nx", true)
	require.NoError(t, err)
	require.Len(t, tokens, 4)

	// Lines are 1-indexed, columns 0-indexed.
	assert.Equal(t, ast.NewSpan(1, 0, 1, 3), tokens[0].Span) // let
	assert.Equal(t, ast.NewSpan(1, 4, 1, 5), tokens[1].Span) // x
	assert.Equal(t, ast.NewSpan(1, 5, 1, 6), tokens[2].Span) // ;
	assert.Equal(t, ast.NewSpan(2, 0, 2, 1), tokens[3].Span) // x
}

func TestComments(t *testing.T) {
	tokens, err := LexString("comments.txt", "a // the rest is ignored\nb", true)
	require.NoError(t, err)
	assert.Equal(t, []Token{Ident("a"), Ident("b")}, kinds(tokens))
}

func TestStringLiteral(t *testing.T) {
	tokens, err := LexString("strings.txt", `"hello" "with \"escape\""`, true)
	require.NoError(t, err)
	assert.Equal(t, []Token{String("hello"), String(`with "escape"`)}, kinds(tokens))
}

func TestUnterminatedString(t *testing.T) {
	_, err := LexString("strings.txt", `"never ends`, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EOF")
}

func TestInvalidCharacter(t *testing.T) {
	_, err := LexString("invalid.txt", "let ~ x", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid character")
}

func TestWhitespaceKeptWhenNotStripping(t *testing.T) {
	tokens, err := LexString("ws.txt", "a b\n", false)
	require.NoError(t, err)
	assert.Equal(t, []Token{
		Ident("a"), punct(KindWhitespace), Ident("b"), punct(KindNewLine),
	}, kinds(tokens))
}

///////////// Preprocessor /////////////

func TestDefineReplacesTokens(t *testing.T) {
	input := "#define PI 3\nfn f() -> i32 { return PI; }"
	tokens, err := LexString("define.txt", input, true)
	require.NoError(t, err)

	for _, tok := range tokens {
		assert.NotEqual(t, Ident("PI"), tok.Token, "PI must be rewritten")
	}

	// `return 3 ;` appears with 3 in PI's place.
	var found bool
	for i, tok := range tokens {
		if tok.Token == Key(KeywordReturn) {
			require.Greater(t, len(tokens), i+1)
			assert.Equal(t, Number(3), tokens[i+1].Token)
			// The rewrite keeps the span of the token it replaced,
			// which sits on line 2.
			assert.Equal(t, 2, tokens[i+1].Span.StartLine)
			found = true
		}
	}
	assert.True(t, found)
}

func TestDefineKeepsOriginalSpan(t *testing.T) {
	input := "#define PI 3\nPI"
	tokens, err := LexString("define.txt", input, true)
	require.NoError(t, err)
	require.Len(t, tokens, 1)

	assert.Equal(t, Number(3), tokens[0].Token)
	// The span is that of the `PI` occurrence on line 2, not of the
	// replacement's definition.
	assert.Equal(t, ast.NewSpan(2, 0, 2, 2), tokens[0].Span)
}

func TestDefineMultiTokenReplacement(t *testing.T) {
	input := "#define TWO 1 + 1\nTWO"
	tokens, err := LexString("define.txt", input, true)
	require.NoError(t, err)

	assert.Equal(t, []Token{Number(1), punct(KindPlus), Number(1)}, kinds(tokens))
}

func TestDefineIsNotRescanned(t *testing.T) {
	// The replacement contains the pattern; rewrites must not apply
	// to their own output.
	input := "#define X X + 1\nX"
	tokens, err := LexString("define.txt", input, true)
	require.NoError(t, err)

	assert.Equal(t, []Token{Ident("X"), punct(KindPlus), Number(1)}, kinds(tokens))
}

func TestIncludeSplicesTokens(t *testing.T) {
	read := func(path string) (string, error) {
		if path == "lib.src" {
			return "fn f() -> i32 { return 0; }", nil
		}
		return "", fmt.Errorf("unexpected path %q", path)
	}

	input := "#include \"lib.src\"\nfn g() -> i32 { return 1; }"
	lex := New("main.jitter", input, true, read, nil)
	tokens, err := lex.Lex()
	require.NoError(t, err)

	// Both f and g appear, f first (the include splices in place).
	var names []string
	for _, tok := range tokens {
		if tok.Token.Kind == KindIdent {
			names = append(names, tok.Token.Text)
		}
	}
	assert.Equal(t, []string{"f", "i32", "g", "i32"}, names)
}

func TestIncludeResolvesRelativeToFile(t *testing.T) {
	var got string
	read := func(path string) (string, error) {
		got = path
		return "", nil
	}

	lex := New("src/deep/main.jitter", "#include \"lib.src\"\n", true, read, nil)
	_, err := lex.Lex()
	require.NoError(t, err)
	assert.Equal(t, "src/deep/lib.src", got)
}

func TestIncludeUnreadable(t *testing.T) {
	read := func(path string) (string, error) {
		return "", fmt.Errorf("no such file")
	}

	lex := New("main.jitter", "#include \"missing.src\"\nfn g() {}", true, read, nil)
	_, err := lex.Lex()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.src")
}

func TestDirectiveErrors(t *testing.T) {
	cases := map[string]string{
		"unknown directive": "#definitely x\n",
		"pound in directive": "#define # 1\n",
		"dangling tokens":    "#include \"x\" dangling\n",
		"non-string include": "#include 42\n",
		"non-ident after #":  "# 42\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			read := func(path string) (string, error) { return "", nil }
			_, err := New("directives.txt", input, true, read, nil).Lex()
			assert.Error(t, err)
		})
	}
}

func TestNewlineTerminatesDirectiveButIsStripped(t *testing.T) {
	// The newline ends the directive yet never reaches the output
	// when whitespace is stripped.
	tokens, err := LexString("define.txt", "#define A 1\na", true)
	require.NoError(t, err)
	assert.Equal(t, []Token{Ident("a")}, kinds(tokens))
}

///////////// Callbacks /////////////

func TestCallbackRewrite(t *testing.T) {
	lex := New("cb.txt", "speed + 1", true, nil, nil)
	require.NoError(t, lex.AddCallback(Callback{Pattern: "speed", Replacement: "velocity"}))

	tokens, err := lex.Lex()
	require.NoError(t, err)
	assert.Equal(t, []Token{Ident("velocity"), punct(KindPlus), Number(1)}, kinds(tokens))
}

func TestCallbackPatternMustBeSingleToken(t *testing.T) {
	lex := New("cb.txt", "", true, nil, nil)
	err := lex.AddCallback(Callback{Pattern: "two tokens", Replacement: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single token")
}
