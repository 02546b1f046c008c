package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swerdloj/jitter/ast"
	"github.com/swerdloj/jitter/lexer"
	"github.com/swerdloj/jitter/types"
)

func parseString(t *testing.T, input string) *ast.File {
	t.Helper()
	file, err := tryParse(input)
	require.NoError(t, err)
	return file
}

func tryParse(input string) (*ast.File, error) {
	tokens, err := lexer.LexString("test.jitter", input, true)
	if err != nil {
		return nil, err
	}
	return Parse("test.jitter", tokens, nil)
}

func TestFunctionDefinition(t *testing.T) {
	file := parseString(t, "fn add(a: i32, mut b: i32) -> i32 { return a + b; }")
	require.Len(t, file.Functions, 1)

	fn := file.Functions[0]
	assert.Equal(t, "add", fn.Proto.Name)
	assert.Equal(t, types.I32, fn.Proto.ReturnType)

	require.Len(t, fn.Proto.Params, 2)
	assert.Equal(t, "a", fn.Proto.Params[0].Name)
	assert.False(t, fn.Proto.Params[0].Mutable)
	assert.Equal(t, "b", fn.Proto.Params[1].Name)
	assert.True(t, fn.Proto.Params[1].Mutable)

	require.Len(t, fn.Body.Statements, 1)
	ret, ok := fn.Body.Statements[0].(*ast.Return)
	require.True(t, ok)
	_, ok = ret.Value.(*ast.Binary)
	assert.True(t, ok)
}

func TestOmittedReturnTypeIsUnit(t *testing.T) {
	file := parseString(t, "fn nop() { }")
	assert.Equal(t, types.Unit, file.Functions[0].Proto.ReturnType)
}

func TestPrecedence(t *testing.T) {
	file := parseString(t, "fn f() -> i32 { return 1 + 2 * 3; }")
	ret := file.Functions[0].Body.Statements[0].(*ast.Return)

	// 1 + (2 * 3): multiplication binds tighter.
	add, ok := ret.Value.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.OpAdd, add.Op)

	lhs, ok := add.Lhs.(*ast.Literal)
	require.True(t, ok)
	assert.Equal(t, ast.IntegerValue(1), lhs.Value)

	mul, ok := add.Rhs.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.OpMultiply, mul.Op)
}

func TestLeftAssociativity(t *testing.T) {
	file := parseString(t, "fn f() -> i32 { return 1 - 2 - 3; }")
	ret := file.Functions[0].Body.Statements[0].(*ast.Return)

	// (1 - 2) - 3
	outer := ret.Value.(*ast.Binary)
	assert.Equal(t, ast.OpSubtract, outer.Op)
	inner, ok := outer.Lhs.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.OpSubtract, inner.Op)
	rhs := outer.Rhs.(*ast.Literal)
	assert.Equal(t, ast.IntegerValue(3), rhs.Value)
}

func TestNegativeLiteralFolding(t *testing.T) {
	file := parseString(t, "fn f() -> i32 { return -7; }")
	ret := file.Functions[0].Body.Statements[0].(*ast.Return)

	lit, ok := ret.Value.(*ast.Literal)
	require.True(t, ok, "a `-` directly before a literal folds into it")
	assert.Equal(t, ast.IntegerValue(-7), lit.Value)
}

func TestNegationOfIdent(t *testing.T) {
	file := parseString(t, "fn f(x: i32) -> i32 { return -x; }")
	ret := file.Functions[0].Body.Statements[0].(*ast.Return)

	unary, ok := ret.Value.(*ast.Unary)
	require.True(t, ok)
	assert.Equal(t, ast.OpNegate, unary.Op)
}

func TestTypedLiterals(t *testing.T) {
	file := parseString(t, "fn f() { let a = 7i32; let b = 1.5f32; let c = 2.; let d = -3i8; }")
	stmts := file.Functions[0].Body.Statements

	a := stmts[0].(*ast.Let).Value.(*ast.Literal)
	assert.Equal(t, ast.IntegerValue(7), a.Value)
	assert.Equal(t, types.I32, a.Ty)

	b := stmts[1].(*ast.Let).Value.(*ast.Literal)
	assert.Equal(t, ast.FloatValue(1.5), b.Value)
	assert.Equal(t, types.F32, b.Ty)

	c := stmts[2].(*ast.Let).Value.(*ast.Literal)
	assert.Equal(t, ast.FloatValue(2), c.Value)
	assert.Equal(t, types.Unknown, c.Ty)

	d := stmts[3].(*ast.Let).Value.(*ast.Literal)
	assert.Equal(t, ast.IntegerValue(-3), d.Value)
	assert.Equal(t, types.I8, d.Ty)
}

func TestTrailingDecimalSpecifierRejected(t *testing.T) {
	_, err := tryParse("fn f() { let a = 1.f32; }")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing decimal")
}

func TestBadTypeSpecifier(t *testing.T) {
	_, err := tryParse("fn f() { let a = 1bool; }")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid type specifier")
}

func TestTrailingCommas(t *testing.T) {
	// One trailing comma is fine in every comma-separated list.
	parseString(t, "fn f(a: i32,) { }")
	parseString(t, "struct S { a: i32, b: i32, }")
	parseString(t, "fn f() { g(1, 2,); }")
	parseString(t, "fn f(t: (i32, i32,)) { }")

	// Two trailing commas, or a lone leading comma, are not.
	for _, input := range []string{
		"fn f(a: i32,,) { }",
		"fn f(,) { }",
		"struct S { a: i32,, }",
		"fn f() { g(1,,); }",
		"fn f() { g(,); }",
		"fn f(t: (i32,,)) { }",
	} {
		_, err := tryParse(input)
		assert.Error(t, err, "input %q", input)
		if err != nil {
			assert.Contains(t, err.Error(), "trailing comma", "input %q", input)
		}
	}
}

func TestStructDefinition(t *testing.T) {
	file := parseString(t, "struct P { x: i32, y: f64 }")
	require.Len(t, file.Structs, 1)

	s := file.Structs[0]
	assert.Equal(t, "P", s.Name)
	require.Len(t, s.Fields, 2)
	assert.Equal(t, "x", s.Fields[0].Name)
	assert.Equal(t, types.I32, s.Fields[0].Ty)
	assert.Equal(t, "y", s.Fields[1].Name)
	assert.Equal(t, types.F64, s.Fields[1].Ty)
}

func TestEmptyStruct(t *testing.T) {
	file := parseString(t, "struct Nothing { }")
	assert.Empty(t, file.Structs[0].Fields)
}

func TestFieldConstructor(t *testing.T) {
	file := parseString(t, "fn f(x: i32) -> P { return P { x, y: 2 }; }")
	ret := file.Functions[0].Body.Statements[0].(*ast.Return)

	ctor, ok := ret.Value.(*ast.FieldConstructor)
	require.True(t, ok)
	assert.Equal(t, types.User("P"), ctor.Ty)
	require.Len(t, ctor.Fields, 2)

	// Shorthand `x` desugars to `x: x`.
	assert.Equal(t, "x", ctor.Fields[0].Name)
	shorthand, ok := ctor.Fields[0].Value.(*ast.Ident)
	require.True(t, ok)
	assert.Equal(t, "x", shorthand.Name)

	assert.Equal(t, "y", ctor.Fields[1].Name)
}

func TestDuplicateConstructorField(t *testing.T) {
	_, err := tryParse("fn f() -> P { return P { x: 1, x: 2 }; }")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already defined")
}

func TestFieldAccessChain(t *testing.T) {
	file := parseString(t, "fn f(p: Outer) -> i32 { return p.inner.x; }")
	ret := file.Functions[0].Body.Statements[0].(*ast.Return)

	outer, ok := ret.Value.(*ast.FieldAccess)
	require.True(t, ok)
	assert.Equal(t, "x", outer.Field)

	inner, ok := outer.Base.(*ast.FieldAccess)
	require.True(t, ok)
	assert.Equal(t, "inner", inner.Field)
}

func TestAssignStatements(t *testing.T) {
	file := parseString(t, "fn f(mut p: P) { p.x = 1; p.x += 2; p.x /= 3; }")
	stmts := file.Functions[0].Body.Statements
	require.Len(t, stmts, 3)

	assert.Equal(t, ast.AssignPlain, stmts[0].(*ast.Assign).Operator)
	assert.Equal(t, ast.AssignAdd, stmts[1].(*ast.Assign).Operator)
	assert.Equal(t, ast.AssignDivide, stmts[2].(*ast.Assign).Operator)
}

func TestInvalidAssignTarget(t *testing.T) {
	_, err := tryParse("fn f() { 1 + 2 = 3; }")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assignment target")
}

func TestImplicitReturn(t *testing.T) {
	file := parseString(t, "fn f() -> i32 { 42 }")
	stmts := file.Functions[0].Body.Statements
	require.Len(t, stmts, 1)

	implicit, ok := stmts[0].(*ast.ImplicitReturn)
	require.True(t, ok)
	// The flag is the validator's to set.
	assert.False(t, implicit.IsFunctionReturn)
	lit := implicit.Value.(*ast.Literal)
	assert.Equal(t, ast.IntegerValue(42), lit.Value)
}

func TestReturnWithoutExpression(t *testing.T) {
	file := parseString(t, "fn f() { return; }")
	ret := file.Functions[0].Body.Statements[0].(*ast.Return)

	lit, ok := ret.Value.(*ast.Literal)
	require.True(t, ok)
	assert.Equal(t, ast.UnitValue{}, lit.Value)
	assert.Equal(t, types.Unit, lit.Ty)
}

func TestExternBlock(t *testing.T) {
	file := parseString(t, "extern { fn host_add(a: i32, b: i32) -> i32; fn host_log(); }")
	require.Len(t, file.Externs, 1)
	protos := file.Externs[0].Prototypes
	require.Len(t, protos, 2)
	assert.Equal(t, "host_add", protos[0].Name)
	assert.Equal(t, "host_log", protos[1].Name)
	assert.Equal(t, types.Unit, protos[1].ReturnType)
}

func TestTraitDefinition(t *testing.T) {
	file := parseString(t, "trait Shape { fn area(self) -> f64; fn describe(self) { } }")
	require.Len(t, file.Traits, 1)

	trait := file.Traits[0]
	assert.Equal(t, "Shape", trait.Name)
	require.Len(t, trait.Required, 1)
	assert.Equal(t, "area", trait.Required[0].Name)
	require.Len(t, trait.Defaults, 1)
	assert.Equal(t, "describe", trait.Defaults[0].Proto.Name)

	// `self` parses with an unknown type.
	self := trait.Required[0].Params[0]
	assert.Equal(t, "self", self.Name)
	assert.True(t, self.Ty.IsUnknown())
}

func TestImpl(t *testing.T) {
	file := parseString(t, "impl Circle { fn radius(self) -> f64 { return 1.0; } }")
	require.Len(t, file.Impls, 1)
	assert.Equal(t, "", file.Impls[0].TraitName)
	assert.Equal(t, "Circle", file.Impls[0].TargetName)

	file = parseString(t, "impl Shape for Circle { }")
	assert.Equal(t, "Shape", file.Impls[0].TraitName)
	assert.Equal(t, "Circle", file.Impls[0].TargetName)
}

func TestUseDeclaration(t *testing.T) {
	file := parseString(t, "use geometry::shapes::circle;")
	require.Len(t, file.Uses, 1)
	assert.Equal(t, []string{"geometry", "shapes", "circle"}, file.Uses[0].Path)
}

func TestTypeForms(t *testing.T) {
	file := parseString(t, "fn f(a: &i32, b: &mut P, c: (), d: (i32, f64)) { }")
	params := file.Functions[0].Proto.Params

	assert.Equal(t, types.Reference(types.I32, false), params[0].Ty)
	assert.Equal(t, types.Reference(types.User("P"), true), params[1].Ty)
	assert.Equal(t, types.Unit, params[2].Ty)
	assert.Equal(t, types.Tuple([]types.Type{types.I32, types.F64}), params[3].Ty)
}

func TestBlockExpression(t *testing.T) {
	file := parseString(t, "fn f() -> i32 { let x = { let y = 1; y + 1 }; return x; }")
	let := file.Functions[0].Body.Statements[0].(*ast.Let)

	block, ok := let.Value.(*ast.BlockExpr)
	require.True(t, ok)
	require.Len(t, block.Statements, 2)
	_, ok = block.Statements[1].(*ast.ImplicitReturn)
	assert.True(t, ok)
}

func TestErrorReporting(t *testing.T) {
	_, err := tryParse("fn h() { let x: i32 = (; }")
	require.Error(t, err)

	// Diagnostics carry <file>:<line>:<column> and name the expected
	// category.
	assert.Contains(t, err.Error(), "test.jitter:1:23")
	assert.Contains(t, err.Error(), "base expression")
}

func TestSpanCoversWholeItem(t *testing.T) {
	file := parseString(t, "fn f() { }\nstruct S { a: i32 }")

	fn := file.Functions[0]
	assert.Equal(t, 1, fn.Span.StartLine)
	assert.Equal(t, 0, fn.Span.StartCol)

	s := file.Structs[0]
	assert.Equal(t, 2, s.Span.StartLine)
	assert.Equal(t, 19, s.Span.EndCol)
}

func TestUnexpectedEOF(t *testing.T) {
	_, err := tryParse("fn f() {")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "end of file")
}
