package parser

import (
	"math"

	"github.com/swerdloj/jitter/ast"
	"github.com/swerdloj/jitter/lexer"
	"github.com/swerdloj/jitter/types"
)

///////////// Statements /////////////

// parseStatement parses a statement terminated by `;`, assuming an
// implicit return for non-terminated expressions.
func (p *Parser) parseStatement() (ast.Statement, error) {
	// span of the first statement element
	start := p.currentSpan()

	switch {
	// let mut? ident: type? = expr?;
	case p.atKey(lexer.KeywordLet):
		p.advance()

		mutable := false
		if p.atKey(lexer.KeywordMut) {
			p.advance()
			mutable = true
		}

		name := p.currentToken()
		if name.Kind != lexer.KindIdent {
			return nil, p.errf(p.currentSpan(), "expected identifier after `let`, found `%s`", name)
		}
		p.advance()

		// Has `:` -> the type must be specified.
		ty := types.Unknown
		if p.eat(lexer.KindColon) {
			var err error
			ty, err = p.parseType()
			if err != nil {
				return nil, err
			}
		}

		// Has `=` -> must have an assignment expression.
		var value ast.Expression
		if p.eat(lexer.KindEquals) {
			var err error
			value, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}

		if err := p.expect(lexer.KindSemicolon, "to terminate a statement"); err != nil {
			return nil, err
		}
		return &ast.Let{
			Name:    name.Text,
			Mutable: mutable,
			Ty:      ty,
			Value:   value,
			Span:    start.Extend(p.previousSpan()),
		}, nil

	// return expr?;
	case p.atKey(lexer.KeywordReturn):
		p.advance()

		var value ast.Expression
		if p.at(lexer.KindSemicolon) {
			// there is no expression -> the return value is `()`
			value = &ast.Literal{
				Value: ast.UnitValue{},
				Ty:    types.Unit,
				Span:  p.previousSpan(),
			}
		} else {
			var err error
			value, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}

		if err := p.expect(lexer.KindSemicolon, "to terminate a statement"); err != nil {
			return nil, err
		}
		return &ast.Return{
			Value: value,
			Span:  start.Extend(p.previousSpan()),
		}, nil
	}

	// Everything else begins with an expression. What follows decides
	// whether it is an assignment, an expression statement, or an
	// implicit return.
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if op, opSpan, ok, err := p.parseAssignOp(); err != nil {
		return nil, err
	} else if ok {
		if !isPlace(expr) {
			return nil, p.errf(expr.GetSpan(), "invalid assignment target (expected a variable or field access)")
		}
		rhs, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.KindSemicolon, "to terminate a statement"); err != nil {
			return nil, err
		}
		return &ast.Assign{
			Lhs:      expr,
			Operator: op,
			OpSpan:   opSpan,
			Rhs:      rhs,
			Span:     start.Extend(p.previousSpan()),
		}, nil
	}

	if p.eat(lexer.KindSemicolon) {
		return &ast.ExprStatement{
			Value: expr,
			Span:  start.Extend(p.previousSpan()),
		}, nil
	}

	// Not terminated -> assume implicit return.
	return &ast.ImplicitReturn{
		Value: expr,
		Span:  start.Extend(p.previousSpan()),
	}, nil
}

// parseAssignOp recognizes `=`, `+=`, `-=`, `*=`, `/=` at the cursor.
func (p *Parser) parseAssignOp() (ast.AssignOp, ast.Span, bool, error) {
	opSpan := p.currentSpan()

	switch p.currentToken().Kind {
	case lexer.KindEquals:
		p.advance()
		return ast.AssignPlain, opSpan, true, nil

	case lexer.KindPlus, lexer.KindMinus, lexer.KindAsterisk, lexer.KindSlash:
		if p.lookAhead(1).Kind != lexer.KindEquals {
			return 0, ast.Span{}, false, nil
		}
		var op ast.AssignOp
		switch p.currentToken().Kind {
		case lexer.KindPlus:
			op = ast.AssignAdd
		case lexer.KindMinus:
			op = ast.AssignSubtract
		case lexer.KindAsterisk:
			op = ast.AssignMultiply
		case lexer.KindSlash:
			op = ast.AssignDivide
		}
		p.advance()
		opSpan = opSpan.Extend(p.currentSpan())
		p.advance()
		return op, opSpan, true, nil
	}

	return 0, ast.Span{}, false, nil
}

// isPlace reports whether the expression can be assigned through: an
// identifier or a field access chain rooted at one.
func isPlace(expr ast.Expression) bool {
	switch e := expr.(type) {
	case *ast.Ident:
		return true
	case *ast.FieldAccess:
		return isPlace(e.Base)
	default:
		return false
	}
}

// parseBlockExpr parses `{ statements.. }`.
func (p *Parser) parseBlockExpr() (*ast.BlockExpr, error) {
	// span of the starting `{`
	start := p.currentSpan()

	if err := p.expect(lexer.KindOpenCurly, "to form a statement block"); err != nil {
		return nil, err
	}

	var statements []ast.Statement
	for !p.eat(lexer.KindCloseCurly) {
		if p.at(lexer.KindEOF) {
			return nil, p.errf(p.currentSpan(), "expected `}` to end block, found `%s`", p.currentToken())
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}

	return &ast.BlockExpr{
		Statements: statements,
		Ty:         types.Unknown,
		Span:       start.Extend(p.previousSpan()),
	}, nil
}

///////////// Expressions /////////////
// Precedence: lowest first. Each binary level is left-associative.

func (p *Parser) parseExpression() (ast.Expression, error) {
	return p.parseExpressionAdditive()
}

// Precedence for [+, -].
func (p *Parser) parseExpressionAdditive() (ast.Expression, error) {
	start := p.currentSpan()
	expr, err := p.parseExpressionMultiplicative()
	if err != nil {
		return nil, err
	}

	// The expression is built up with each iteration.
	for {
		var op ast.BinaryOp
		switch p.currentToken().Kind {
		case lexer.KindPlus:
			op = ast.OpAdd
		case lexer.KindMinus:
			op = ast.OpSubtract
		default:
			return expr, nil
		}

		// `+=` / `-=` belongs to the enclosing assignment statement.
		if p.lookAhead(1).Kind == lexer.KindEquals {
			return expr, nil
		}

		opSpan := p.currentSpan()
		p.advance()

		rhs, err := p.parseExpressionMultiplicative()
		if err != nil {
			return nil, err
		}
		expr = &ast.Binary{
			Lhs:    expr,
			Op:     op,
			OpSpan: opSpan,
			Rhs:    rhs,
			Ty:     types.Unknown,
			Span:   start.Extend(p.previousSpan()),
		}
	}
}

// Precedence for [*, /].
func (p *Parser) parseExpressionMultiplicative() (ast.Expression, error) {
	start := p.currentSpan()
	expr, err := p.parseExpressionUnary()
	if err != nil {
		return nil, err
	}

	for {
		var op ast.BinaryOp
		switch p.currentToken().Kind {
		case lexer.KindAsterisk:
			op = ast.OpMultiply
		case lexer.KindSlash:
			op = ast.OpDivide
		default:
			return expr, nil
		}

		// `*=` / `/=` belongs to the enclosing assignment statement.
		if p.lookAhead(1).Kind == lexer.KindEquals {
			return expr, nil
		}

		opSpan := p.currentSpan()
		p.advance()

		rhs, err := p.parseExpressionUnary()
		if err != nil {
			return nil, err
		}
		expr = &ast.Binary{
			Lhs:    expr,
			Op:     op,
			OpSpan: opSpan,
			Rhs:    rhs,
			Ty:     types.Unknown,
			Span:   start.Extend(p.previousSpan()),
		}
	}
}

// Precedence for [negation, not].
func (p *Parser) parseExpressionUnary() (ast.Expression, error) {
	start := p.currentSpan()

	switch p.currentToken().Kind {
	case lexer.KindMinus:
		opSpan := p.currentSpan()
		p.advance()

		// A `-` directly preceding a numeric literal folds into a
		// signed literal.
		if tok := p.currentToken(); tok.Kind == lexer.KindNumber {
			lit, err := p.parseNumericLiteral(tok.Number, true)
			if err != nil {
				return nil, err
			}
			lit.Span = start.Extend(p.previousSpan())
			return lit, nil
		}

		operand, err := p.parseExpressionUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{
			Op:      ast.OpNegate,
			OpSpan:  opSpan,
			Operand: operand,
			Ty:      types.Unknown,
			Span:    start.Extend(p.previousSpan()),
		}, nil

	case lexer.KindBang:
		opSpan := p.currentSpan()
		p.advance()

		operand, err := p.parseExpressionUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{
			Op:      ast.OpNot,
			OpSpan:  opSpan,
			Operand: operand,
			Ty:      types.Unknown,
			Span:    start.Extend(p.previousSpan()),
		}, nil
	}

	return p.parseExpressionFieldAccess()
}

// `a.b.c` etc.
func (p *Parser) parseExpressionFieldAccess() (ast.Expression, error) {
	start := p.currentSpan()
	base, err := p.parseExpressionBase()
	if err != nil {
		return nil, err
	}

	for p.eat(lexer.KindDot) {
		field := p.currentToken()
		if field.Kind != lexer.KindIdent {
			return nil, p.errf(p.currentSpan(), "expected identifier to create field access, found `%s`", field)
		}
		p.advance()

		base = &ast.FieldAccess{
			Base:  base,
			Field: field.Text,
			Ty:    types.Unknown,
			Span:  start.Extend(p.previousSpan()),
		}
	}

	return base, nil
}

// Precedence for [parentheticals, blocks, literals, identifiers].
func (p *Parser) parseExpressionBase() (ast.Expression, error) {
	// This is a terminal item, so the span starts at the element
	// about to be parsed.
	start := p.currentSpan()

	switch tok := p.currentToken(); tok.Kind {
	// ( expression )
	case lexer.KindOpenParen:
		p.advance()

		// `()` -> the unit literal
		if p.eat(lexer.KindCloseParen) {
			return &ast.Literal{
				Value: ast.UnitValue{},
				Ty:    types.Unit,
				Span:  start.Extend(p.previousSpan()),
			}, nil
		}

		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.KindCloseParen, "to end parenthesized expression"); err != nil {
			return nil, err
		}
		return inner, nil

	// { statements.. }
	case lexer.KindOpenCurly:
		block, err := p.parseBlockExpr()
		if err != nil {
			return nil, err
		}
		return block, nil

	// Numeric literal
	case lexer.KindNumber:
		lit, err := p.parseNumericLiteral(tok.Number, false)
		if err != nil {
			return nil, err
		}
		return lit, nil

	// Identifier, constructor, or function call
	case lexer.KindIdent:
		p.advance()

		switch p.currentToken().Kind {
		case lexer.KindOpenCurly:
			return p.parseFieldConstructor(tok.Text, start)

		case lexer.KindOpenParen:
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			return &ast.Call{
				Name: tok.Text,
				Args: args,
				Ty:   types.Unknown,
				Span: start.Extend(p.previousSpan()),
			}, nil

		default:
			return &ast.Ident{
				Name: tok.Text,
				Ty:   types.Unknown,
				Span: start.Extend(p.previousSpan()),
			}, nil
		}

	default:
		return nil, p.errf(p.currentSpan(), "expected a base expression, found `%s`", tok)
	}
}

///////////// Expression helpers /////////////

func (p *Parser) parseCallArgs() ([]ast.Expression, error) {
	// Eat the opening `(`.
	p.advance()

	var args []ast.Expression
	for {
		// Allow one trailing comma.
		if p.at(lexer.KindComma) {
			return nil, p.errf(p.currentSpan(), "only one trailing comma is allowed in function call inputs following the final argument")
		}

		if p.eat(lexer.KindCloseParen) {
			break
		}

		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		p.eat(lexer.KindComma)
	}

	return args, nil
}

// parseNumericLiteral parses the literal whose integer part is the
// current token, including an optional fraction and type specifier.
func (p *Parser) parseNumericLiteral(number uint64, negative bool) (*ast.Literal, error) {
	start := p.currentSpan()
	p.advance()

	// `#.` -> must be a floating point number.
	if p.eat(lexer.KindDot) {
		var value float64
		if frac := p.currentToken(); frac.Kind == lexer.KindNumber {
			// `#.#`
			p.advance()
			value = composeFloat(number, frac.Number)
		} else {
			// Don't allow `#.type` to avoid struct-field confusion.
			if p.at(lexer.KindIdent) {
				return nil, p.errf(p.currentSpan(), "floating point numbers with trailing decimal points cannot have type specifiers (use `1.0f32` or `1f32` instead of `1.f32`)")
			}
			// `#.` -> `#.0`
			value = float64(number)
		}
		if negative {
			value = -value
		}

		// `#.#type`
		ty := types.Unknown
		if spec := p.currentToken(); spec.Kind == lexer.KindIdent && types.IsBuiltin(spec.Text) {
			p.advance()
			ty = types.Resolve(spec.Text)
			if !ty.IsFloat() {
				return nil, p.errf(p.previousSpan(), "`%s` is not a valid floating-point type specifier", spec.Text)
			}
		}

		return &ast.Literal{
			Value: ast.FloatValue(value),
			Ty:    ty,
			Span:  start.Extend(p.previousSpan()),
		}, nil
	}

	// No decimal -> could be any numeric builtin.
	ty := types.Unknown
	if spec := p.currentToken(); spec.Kind == lexer.KindIdent && types.IsBuiltin(spec.Text) {
		p.advance()
		ty = types.Resolve(spec.Text)
		if !ty.IsNumeric() {
			return nil, p.errf(p.previousSpan(), "`%s` is not a valid type specifier", spec.Text)
		}
	}

	if ty.IsFloat() {
		value := float64(number)
		if negative {
			value = -value
		}
		return &ast.Literal{
			Value: ast.FloatValue(value),
			Ty:    ty,
			Span:  start.Extend(p.previousSpan()),
		}, nil
	}

	if number > math.MaxInt64 {
		return nil, p.errf(start, "integer literal `%d` is too large", number)
	}
	value := int64(number)
	if negative {
		value = -value
	}
	// A negated literal with an unsigned specifier is rejected by the
	// validator, which owns literal/type agreement.
	return &ast.Literal{
		Value: ast.IntegerValue(value),
		Ty:    ty,
		Span:  start.Extend(p.previousSpan()),
	}, nil
}

// composeFloat builds the float "whole.frac" without going through
// repeated division, so 1.25 comes out exact.
func composeFloat(whole, frac uint64) float64 {
	scale := 1.0
	for f := frac; f > 0; f /= 10 {
		scale *= 10
	}
	return float64(whole) + float64(frac)/scale
}

// TypeName { field: expr, shorthand, .. }
func (p *Parser) parseFieldConstructor(name string, start ast.Span) (ast.Expression, error) {
	// Eat the opening `{`.
	p.advance()

	var fields []*ast.FieldInit
	seen := make(map[string]bool)

	for {
		if p.at(lexer.KindComma) {
			return nil, p.errf(p.currentSpan(), "only one trailing comma is allowed in field constructors following the final field")
		}

		fieldTok := p.currentToken()
		if fieldTok.Kind != lexer.KindIdent {
			return nil, p.errf(p.currentSpan(), "expected field name identifier, found `%s`", fieldTok)
		}
		fieldSpan := p.currentSpan()
		p.advance()

		var value ast.Expression
		if p.eat(lexer.KindColon) {
			var err error
			value, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		} else if p.at(lexer.KindComma) || p.at(lexer.KindCloseCurly) {
			// Shorthand: `field` means `field: field`.
			value = &ast.Ident{
				Name: fieldTok.Text,
				Ty:   types.Unknown,
				Span: fieldSpan,
			}
		} else {
			return nil, p.errf(p.currentSpan(), "expected `:` after field name, found `%s`", p.currentToken())
		}

		if seen[fieldTok.Text] {
			return nil, p.errf(fieldSpan, "field `%s` was already defined", fieldTok.Text)
		}
		seen[fieldTok.Text] = true
		fields = append(fields, &ast.FieldInit{
			Name:  fieldTok.Text,
			Value: value,
			Span:  fieldSpan.Extend(p.previousSpan()),
		})

		p.eat(lexer.KindComma)
		if p.eat(lexer.KindCloseCurly) {
			break
		}
	}

	return &ast.FieldConstructor{
		Ty:     types.User(name),
		Fields: fields,
		Span:   start.Extend(p.previousSpan()),
	}, nil
}
