// Package parser builds a spanned AST from a token stream.
//
// The parser is a straight-line recursive descent over top-level
// items and statements, with precedence climbing for expressions.
// Every grammar rule records the span of its first token and extends
// it through the last token it consumed, so each produced node is
// anchored to the exact source range it came from.
package parser

import (
	"github.com/swerdloj/jitter/ast"
	"github.com/swerdloj/jitter/lexer"
	"github.com/swerdloj/jitter/reporter"
	"github.com/swerdloj/jitter/types"
)

// Parser holds the token cursor for a single file.
type Parser struct {
	filePath string
	tokens   []lexer.SpannedToken
	pos      int
}

// New creates a parser over the given tokens. filePath is used only
// for diagnostics.
func New(filePath string, tokens []lexer.SpannedToken) *Parser {
	return &Parser{filePath: filePath, tokens: tokens}
}

// Parse lexes nothing and parses everything: it consumes the token
// stream and produces the file's AST. A failing parse reports through
// the handler and never yields a validation-eligible AST.
func Parse(filePath string, tokens []lexer.SpannedToken, handler *reporter.Handler) (*ast.File, error) {
	if handler == nil {
		handler = reporter.NewHandler()
	}
	file, err := New(filePath, tokens).ParseFile()
	if err != nil {
		_ = handler.ReportError(err)
		return nil, handler.Err()
	}
	return file, nil
}

// ParseFile parses all remaining top-level items.
func (p *Parser) ParseFile() (*ast.File, error) {
	file := &ast.File{}
	for p.pos < len(p.tokens) {
		if err := p.parseTopLevel(file); err != nil {
			return nil, err
		}
	}
	return file, nil
}

///////////// Cursor helpers /////////////

var eofToken = lexer.Token{Kind: lexer.KindEOF}

func (p *Parser) current() lexer.SpannedToken {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return lexer.SpannedToken{Token: eofToken, Span: p.lastSpan()}
}

func (p *Parser) currentToken() lexer.Token {
	return p.current().Token
}

func (p *Parser) currentSpan() ast.Span {
	return p.current().Span
}

// previousSpan is the span of the most recently consumed token. Rules
// use it to close their node spans after parsing.
func (p *Parser) previousSpan() ast.Span {
	if p.pos == 0 {
		return ast.Span{}
	}
	if p.pos > len(p.tokens) {
		return p.lastSpan()
	}
	return p.tokens[p.pos-1].Span
}

func (p *Parser) lastSpan() ast.Span {
	if len(p.tokens) == 0 {
		return ast.NewSpan(1, 0, 1, 0)
	}
	return p.tokens[len(p.tokens)-1].Span
}

func (p *Parser) lookAhead(n int) lexer.Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n].Token
	}
	return eofToken
}

func (p *Parser) advance() {
	p.pos++
}

func (p *Parser) at(kind lexer.Kind) bool {
	return p.currentToken().Kind == kind
}

func (p *Parser) atKey(k lexer.Keyword) bool {
	return p.currentToken().IsKey(k)
}

// eat consumes the current token if it has the given kind.
func (p *Parser) eat(kind lexer.Kind) bool {
	if p.at(kind) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) errf(span ast.Span, format string, args ...interface{}) error {
	return reporter.Errorf(ast.SourcePos{Filename: p.filePath, Span: span}, format, args...)
}

// expect consumes a token of the given kind or fails with a
// diagnostic naming what was being parsed.
func (p *Parser) expect(kind lexer.Kind, context string) error {
	if p.eat(kind) {
		return nil
	}
	return p.errf(p.currentSpan(), "expected `%s` %s, found `%s`",
		lexer.Token{Kind: kind}, context, p.currentToken())
}

///////////// Top-level items /////////////

func (p *Parser) parseTopLevel(file *ast.File) error {
	tok := p.currentToken()
	if tok.Kind != lexer.KindKeyword {
		return p.errf(p.currentSpan(), "expected one of `extern`, `fn`, `struct`, `trait`, `impl`, `use`, found `%s`", tok)
	}

	switch tok.Keyword {
	case lexer.KeywordExtern:
		p.advance()
		block, err := p.parseExternBlock()
		if err != nil {
			return err
		}
		block.File = p.filePath
		file.Externs = append(file.Externs, block)

	case lexer.KeywordFn:
		p.advance()
		fn, err := p.parseFunctionDefinition()
		if err != nil {
			return err
		}
		fn.File = p.filePath
		file.Functions = append(file.Functions, fn)

	case lexer.KeywordStruct:
		p.advance()
		s, err := p.parseStructDefinition()
		if err != nil {
			return err
		}
		s.File = p.filePath
		file.Structs = append(file.Structs, s)

	case lexer.KeywordTrait:
		p.advance()
		t, err := p.parseTraitDefinition()
		if err != nil {
			return err
		}
		t.File = p.filePath
		file.Traits = append(file.Traits, t)

	case lexer.KeywordImpl:
		p.advance()
		i, err := p.parseImpl()
		if err != nil {
			return err
		}
		i.File = p.filePath
		file.Impls = append(file.Impls, i)

	case lexer.KeywordUse:
		p.advance()
		u, err := p.parseUse()
		if err != nil {
			return err
		}
		u.File = p.filePath
		file.Uses = append(file.Uses, u)

	default:
		return p.errf(p.currentSpan(), "expected one of `extern`, `fn`, `struct`, `trait`, `impl`, `use`, found unexpected keyword `%s`", tok)
	}

	return nil
}

// extern { fn prototype; .. }
func (p *Parser) parseExternBlock() (*ast.ExternBlock, error) {
	// span of the `extern` keyword
	start := p.previousSpan()

	if err := p.expect(lexer.KindOpenCurly, "to begin extern block"); err != nil {
		return nil, err
	}

	var protos []*ast.Prototype
	for !p.eat(lexer.KindCloseCurly) {
		if !p.atKey(lexer.KeywordFn) {
			return nil, p.errf(p.currentSpan(), "expected `fn` prototype or `}` in extern block, found `%s`", p.currentToken())
		}
		p.advance()

		proto, err := p.parseFunctionPrototype()
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.KindSemicolon, "following extern function prototype"); err != nil {
			return nil, err
		}
		protos = append(protos, proto)
	}

	return &ast.ExternBlock{
		Prototypes: protos,
		Span:       start.Extend(p.previousSpan()),
	}, nil
}

// use a::b::c;
func (p *Parser) parseUse() (*ast.Use, error) {
	// span of the `use` keyword
	start := p.previousSpan()

	var path []string
	for {
		tok := p.currentToken()
		if tok.Kind != lexer.KindIdent {
			return nil, p.errf(p.currentSpan(), "expected path segment after `use`, found `%s`", tok)
		}
		path = append(path, tok.Text)
		p.advance()

		if p.at(lexer.KindColon) && p.lookAhead(1).Kind == lexer.KindColon {
			p.advance()
			p.advance()
			continue
		}
		break
	}

	if err := p.expect(lexer.KindSemicolon, "to terminate `use` declaration"); err != nil {
		return nil, err
	}

	return &ast.Use{Path: path, Span: start.Extend(p.previousSpan())}, nil
}

// Recursively evaluates types.
func (p *Parser) parseType() (types.Type, error) {
	switch tok := p.currentToken(); tok.Kind {
	// `T`
	case lexer.KindIdent:
		p.advance()
		return types.Resolve(tok.Text), nil

	// `&T` or `&mut T`
	case lexer.KindAnd:
		p.advance()
		mutable := false
		if p.atKey(lexer.KeywordMut) {
			p.advance()
			mutable = true
		}
		inner, err := p.parseType()
		if err != nil {
			return types.Unknown, err
		}
		return types.Reference(inner, mutable), nil

	// `()` or tuple
	case lexer.KindOpenParen:
		p.advance()

		// Unit: ()
		if p.eat(lexer.KindCloseParen) {
			return types.Unit, nil
		}

		// Tuple: (A, B, C, ..)
		var elems []types.Type
		for {
			// Allows one comma after the final element.
			if p.at(lexer.KindComma) {
				return types.Unknown, p.errf(p.currentSpan(), "only one trailing comma is allowed in tuples following the final element")
			}

			elem, err := p.parseType()
			if err != nil {
				return types.Unknown, err
			}
			elems = append(elems, elem)

			p.eat(lexer.KindComma)
			if p.eat(lexer.KindCloseParen) {
				break
			}
		}
		return types.Tuple(elems), nil

	case lexer.KindOpenSquare:
		return types.Unknown, p.errf(p.currentSpan(), "array types are not supported")

	default:
		return types.Unknown, p.errf(p.currentSpan(), "expected a type component, found `%s`", tok)
	}
}

// struct ident { field1: type1, .. }
func (p *Parser) parseStructDefinition() (*ast.Struct, error) {
	// span of the `struct` keyword
	start := p.previousSpan()

	name := p.currentToken()
	if name.Kind != lexer.KindIdent {
		return nil, p.errf(p.currentSpan(), "expected identifier after keyword `struct`, found `%s`", name)
	}
	p.advance()

	if err := p.expect(lexer.KindOpenCurly, "after struct name"); err != nil {
		return nil, err
	}

	fields, err := p.parseStructFields()
	if err != nil {
		return nil, err
	}

	return &ast.Struct{
		Name:   name.Text,
		Fields: fields,
		Span:   start.Extend(p.previousSpan()),
	}, nil
}

func (p *Parser) parseStructFields() ([]*ast.StructField, error) {
	var fields []*ast.StructField

	for {
		span := p.currentSpan()

		// Allows one comma after the final field.
		if p.at(lexer.KindComma) {
			return nil, p.errf(p.currentSpan(), "only one trailing comma is allowed after struct fields")
		}

		if tok := p.currentToken(); tok.Kind == lexer.KindIdent {
			p.advance()
			if err := p.expect(lexer.KindColon, "after struct field name"); err != nil {
				return nil, err
			}
			ty, err := p.parseType()
			if err != nil {
				return nil, err
			}
			fields = append(fields, &ast.StructField{
				Name: tok.Text,
				Ty:   ty,
				Span: span.Extend(p.previousSpan()),
			})
		}

		if p.eat(lexer.KindComma) {
			continue
		}
		break
	}

	if err := p.expect(lexer.KindCloseCurly, "to end struct declaration"); err != nil {
		return nil, err
	}
	return fields, nil
}

// fn ident(param: type, ..) -> return_type { statements.. }
func (p *Parser) parseFunctionDefinition() (*ast.Function, error) {
	// span of the `fn` keyword
	start := p.previousSpan()

	proto, err := p.parseFunctionPrototype()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlockExpr()
	if err != nil {
		return nil, err
	}

	return &ast.Function{
		Proto: proto,
		Body:  body,
		Span:  start.Extend(p.previousSpan()),
	}, nil
}

// fn ident(param: type, ..) -> return_type
func (p *Parser) parseFunctionPrototype() (*ast.Prototype, error) {
	// span of the `fn` keyword
	start := p.previousSpan()

	name := p.currentToken()
	if name.Kind != lexer.KindIdent {
		return nil, p.errf(p.currentSpan(), "expected identifier while parsing function definition, found `%s`", name)
	}
	p.advance()

	if err := p.expect(lexer.KindOpenParen, "after function name"); err != nil {
		return nil, err
	}
	params, err := p.parseFunctionParameters()
	if err != nil {
		return nil, err
	}

	// No `->` means the unit return type.
	returnType := types.Unit
	if p.eat(lexer.KindMinus) {
		if err := p.expect(lexer.KindRightAngle, "to complete `->`"); err != nil {
			return nil, err
		}
		returnType, err = p.parseType()
		if err != nil {
			return nil, err
		}
	}

	return &ast.Prototype{
		Name:       name.Text,
		Params:     params,
		ReturnType: returnType,
		Span:       start.Extend(p.previousSpan()),
	}, nil
}

// (mut? ident: type, ..) — `self` becomes `self: <unknown>`. No later
// stage fills in that type: the validator rejects traits and impls.
func (p *Parser) parseFunctionParameters() ([]*ast.Parameter, error) {
	var params []*ast.Parameter

	for {
		span := p.currentSpan()
		mutable := false

		// Allows one comma after the final parameter.
		if p.at(lexer.KindComma) {
			return nil, p.errf(p.currentSpan(), "only one trailing comma is allowed in function parameters following the final parameter")
		}

		if p.atKey(lexer.KeywordMut) {
			p.advance()
			mutable = true
		}

		if p.atKey(lexer.KeywordSelf) {
			p.advance()
			params = append(params, &ast.Parameter{
				Mutable: mutable,
				Name:    "self",
				Ty:      types.Unknown,
				Span:    span.Extend(p.previousSpan()),
			})
		} else if tok := p.currentToken(); tok.Kind == lexer.KindIdent {
			p.advance()
			if err := p.expect(lexer.KindColon, "after function parameter name"); err != nil {
				return nil, err
			}
			ty, err := p.parseType()
			if err != nil {
				return nil, err
			}
			params = append(params, &ast.Parameter{
				Mutable: mutable,
				Name:    tok.Text,
				Ty:      ty,
				Span:    span.Extend(p.previousSpan()),
			})
		}

		if p.eat(lexer.KindComma) {
			continue
		}
		break
	}

	if err := p.expect(lexer.KindCloseParen, "to end function parameter list"); err != nil {
		return nil, err
	}
	return params, nil
}

// trait ident { prototype; | fn .. }
func (p *Parser) parseTraitDefinition() (*ast.Trait, error) {
	// span of the `trait` keyword
	start := p.previousSpan()

	name := p.currentToken()
	if name.Kind != lexer.KindIdent {
		return nil, p.errf(p.currentSpan(), "expected trait identifier, found `%s`", name)
	}
	p.advance()

	if err := p.expect(lexer.KindOpenCurly, "to begin trait body"); err != nil {
		return nil, err
	}

	var required []*ast.Prototype
	var defaults []*ast.Function

	for !p.eat(lexer.KindCloseCurly) {
		if !p.atKey(lexer.KeywordFn) {
			return nil, p.errf(p.currentSpan(), "expected `fn` in trait body, found `%s`", p.currentToken())
		}
		fnStart := p.currentSpan()
		p.advance()

		proto, err := p.parseFunctionPrototype()
		if err != nil {
			return nil, err
		}

		// A prototype with no default implementation ends with `;`.
		if p.eat(lexer.KindSemicolon) {
			required = append(required, proto)
			continue
		}

		body, err := p.parseBlockExpr()
		if err != nil {
			return nil, err
		}
		defaults = append(defaults, &ast.Function{
			Proto: proto,
			Body:  body,
			Span:  fnStart.Extend(p.previousSpan()),
		})
	}

	return &ast.Trait{
		Name:     name.Text,
		Required: required,
		Defaults: defaults,
		Span:     start.Extend(p.previousSpan()),
	}, nil
}

// impl Type { .. } or impl Trait for Type { .. }
func (p *Parser) parseImpl() (*ast.Impl, error) {
	// span of the `impl` keyword
	start := p.previousSpan()

	first := p.currentToken()
	if first.Kind != lexer.KindIdent {
		return nil, p.errf(p.currentSpan(), "expected identifier after `impl`, found `%s`", first)
	}
	p.advance()

	traitName := ""
	targetName := first.Text
	if p.atKey(lexer.KeywordFor) {
		p.advance()
		target := p.currentToken()
		if target.Kind != lexer.KindIdent {
			return nil, p.errf(p.currentSpan(), "expected target type identifier after `for`, found `%s`", target)
		}
		p.advance()
		traitName = first.Text
		targetName = target.Text
	}

	if err := p.expect(lexer.KindOpenCurly, "to begin impl body"); err != nil {
		return nil, err
	}

	var functions []*ast.Function
	for p.atKey(lexer.KeywordFn) {
		p.advance()
		fn, err := p.parseFunctionDefinition()
		if err != nil {
			return nil, err
		}
		functions = append(functions, fn)
	}

	if err := p.expect(lexer.KindCloseCurly, "to end impl body"); err != nil {
		return nil, err
	}

	return &ast.Impl{
		TraitName:  traitName,
		TargetName: targetName,
		Functions:  functions,
		Span:       start.Extend(p.previousSpan()),
	}, nil
}
